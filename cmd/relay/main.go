package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/chat-relay/internal/config"
	"github.com/rickgao/chat-relay/internal/connection"
	"github.com/rickgao/chat-relay/internal/database"
	"github.com/rickgao/chat-relay/internal/heartbeat"
	"github.com/rickgao/chat-relay/internal/metrics"
	"github.com/rickgao/chat-relay/internal/registry"
	"github.com/rickgao/chat-relay/internal/router"
	"github.com/rickgao/chat-relay/internal/server"
	"github.com/rickgao/chat-relay/internal/version"
	"github.com/rickgao/chat-relay/internal/writer"
)

func main() {
	if err := run(); err != nil {
		slog.Error("relay failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "configs/relay.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the config")
	flag.Parse()

	// A missing .env is fine; variables may come from the environment.
	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", *envPath, err)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	logger.Info("starting relay", append(version.LogAttrs(), "config", *configPath)...)

	policy, err := registry.ParsePolicy(cfg.Relay.AdmissionPolicy)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Presence journal (optional)
	var (
		presence *router.GrowableBuffer[router.PresenceEvent]
		journal  *writer.PresenceWriter
		pinger   server.Pinger
	)
	if cfg.Journal.Enabled {
		logger.Info("connecting to journal database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		pool, err := database.OpenJournal(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		pinger = pool

		presence = router.NewGrowableBuffer[router.PresenceEvent](cfg.Journal.BufferSize, cfg.Journal.MaxBufferSize)
		wcfg := writer.DefaultWriterConfig()
		wcfg.BatchSize = cfg.Journal.BatchSize
		wcfg.FlushInterval = cfg.Journal.FlushInterval
		journal = writer.NewPresenceWriter(wcfg, presence, pool, logger.With("component", "journal"))
		logger.Info("journal enabled", "batch_size", wcfg.BatchSize, "flush_interval", wcfg.FlushInterval)
	}

	r := router.NewRouter(router.Config{
		AdmissionPolicy:   policy,
		Fanout:            router.FanoutMode(cfg.Relay.Fanout),
		FanoutConcurrency: cfg.Relay.FanoutConcurrency,
		SendTimeout:       cfg.Relay.SendTimeout,
		Presence:          presence,
	}, logger.With("component", "router"))

	chat := server.New(server.Config{
		Transport: cfg.Server.Transport,
		Upgrader: connection.UpgraderConfig{
			ReadBufferSize:  cfg.Server.ReadBufferSize,
			WriteBufferSize: cfg.Server.WriteBufferSize,
			AllowedOrigins:  cfg.Server.AllowedOrigins,
		},
		Conn: connection.ConnConfig{
			WriteTimeout:   cfg.Server.WriteTimeout,
			MaxMessageSize: cfg.Server.MaxMessageSize,
		},
		RejectDuplicates: policy == registry.PolicyReject,
	}, r, logger.With("component", "server"))

	var journalStats metrics.JournalSource
	if journal != nil {
		journalStats = journal
	}
	reg := metrics.NewRegistry(metrics.NewCollector(r, journalStats))

	chatServer := &http.Server{
		Addr:        cfg.Server.ListenAddr,
		Handler:     chat.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	opsServer := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: server.NewOpsHandler(server.OpsConfig{
			Journal:     pinger,
			Metrics:     metrics.Handler(reg),
			MetricsPath: cfg.Metrics.Path,
		}, r, logger.With("component", "ops")),
	}

	// Background workers
	if journal != nil {
		if err := journal.Start(ctx); err != nil {
			return fmt.Errorf("start journal: %w", err)
		}
	}
	var sweeper *heartbeat.Sweeper
	if !cfg.Heartbeat.Disabled {
		sweeper = heartbeat.New(heartbeat.Config{
			Interval:    cfg.Heartbeat.Interval,
			IdleTimeout: cfg.Heartbeat.IdleTimeout,
			PingTimeout: cfg.Heartbeat.PingTimeout,
			Concurrency: cfg.Heartbeat.Concurrency,
		}, r, logger.With("component", "heartbeat"))
		if err := sweeper.Start(ctx); err != nil {
			return fmt.Errorf("start heartbeat: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("chat server listening", "addr", cfg.Server.ListenAddr, "transport", cfg.Server.Transport)
		if err := chatServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("chat server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("ops server listening", "port", cfg.Metrics.Port, "metrics_path", cfg.Metrics.Path)
		if err := opsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Hijacked websocket connections are not tracked by Shutdown; the router closes them.
		chatServer.Shutdown(shutdownCtx)
		r.Close()

		if sweeper != nil {
			sweeper.Stop(shutdownCtx)
		}
		if journal != nil {
			// Give Serve loops a moment to publish their final presence events.
			waitForDrain(shutdownCtx, r, 100*time.Millisecond)
			if err := journal.Stop(shutdownCtx); err != nil {
				logger.Warn("journal stop", "error", err)
			}
			presence.Close()
		}

		opsServer.Shutdown(shutdownCtx)
		return nil
	})

	err = g.Wait()
	logger.Info("relay stopped", "stats", r.Stats())
	return err
}

// waitForDrain polls until no session is registered or ctx ends.
func waitForDrain(ctx context.Context, r router.Router, poll time.Duration) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for r.Stats().Sessions > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
}
