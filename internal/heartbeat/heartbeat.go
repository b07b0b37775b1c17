package heartbeat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/chat-relay/internal/registry"
)

// ErrIdle is the cause recorded for sessions that stopped answering.
var ErrIdle = errors.New("idle timeout")

// SessionSource is the part of the router the sweeper drives.
type SessionSource interface {
	Sessions() []registry.Session
	Disconnect(s registry.Session, cause error) bool
}

// Config holds sweeper configuration.
type Config struct {
	Interval    time.Duration // Sweep interval (default: 30s)
	IdleTimeout time.Duration // Disconnect after this long without a frame (default: 90s)
	PingTimeout time.Duration // Per-ping write timeout (default: 5s)
	Concurrency int           // Max concurrent pings (default: 64)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    30 * time.Second,
		IdleTimeout: 90 * time.Second,
		PingTimeout: 5 * time.Second,
		Concurrency: 64,
	}
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Checked int64
	Pinged  int64
	Expired int64
	Failed  int64
}

// Sweeper periodically pings sessions and expires idle ones.
type Sweeper struct {
	cfg    Config
	source SessionSource
	logger *slog.Logger

	mu   sync.Mutex
	last SweepResult

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Sweeper.
func New(cfg Config, source SessionSource, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Sweeper{
		cfg:    cfg,
		source: source,
		logger: logger,
	}
}

// Start begins the sweep loop.
func (s *Sweeper) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("heartbeat sweeper started",
		"interval", s.cfg.Interval,
		"idle_timeout", s.cfg.IdleTimeout,
	)

	return nil
}

// Stop gracefully shuts down the sweeper.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("heartbeat sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Last returns the result of the most recent sweep.
func (s *Sweeper) Last() SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(s.ctx)
		}
	}
}

// SweepOnce checks every session once.
func (s *Sweeper) SweepOnce(ctx context.Context) SweepResult {
	start := time.Now()

	sessions := s.source.Sessions()
	if len(sessions) == 0 {
		return SweepResult{}
	}

	// Semaphore for bounded concurrency.
	sem := make(chan struct{}, s.cfg.Concurrency)
	var wg sync.WaitGroup
	var checked, pinged, expired, failed atomic.Int64

	for _, sess := range sessions {
		wg.Add(1)
		go func(sess registry.Session) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			checked.Add(1)

			if s.cfg.IdleTimeout > 0 && time.Since(sess.Conn.LastSeen()) > s.cfg.IdleTimeout {
				s.logger.Info("session idle, disconnecting",
					"identity", sess.Identity,
					"last_seen", sess.Conn.LastSeen(),
				)
				if s.source.Disconnect(sess, ErrIdle) {
					expired.Add(1)
				}
				return
			}

			if err := s.ping(ctx, sess); err != nil {
				s.logger.Warn("ping failed", "identity", sess.Identity, "err", err)
				if s.source.Disconnect(sess, err) {
					failed.Add(1)
				}
				return
			}
			pinged.Add(1)
		}(sess)
	}

	wg.Wait()

	res := SweepResult{
		Checked: checked.Load(),
		Pinged:  pinged.Load(),
		Expired: expired.Load(),
		Failed:  failed.Load(),
	}

	s.mu.Lock()
	s.last = res
	s.mu.Unlock()

	s.logger.Debug("sweep complete",
		"sessions", len(sessions),
		"pinged", res.Pinged,
		"expired", res.Expired,
		"failed", res.Failed,
		"duration", time.Since(start),
	)
	return res
}

func (s *Sweeper) ping(ctx context.Context, sess registry.Session) error {
	if s.cfg.PingTimeout <= 0 {
		return sess.Conn.Ping(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PingTimeout)
	defer cancel()
	return sess.Conn.Ping(ctx)
}
