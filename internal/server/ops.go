package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/chat-relay/internal/router"
	"github.com/rickgao/chat-relay/internal/version"
)

// Pinger checks a dependency, e.g. *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpsConfig wires the ops endpoints.
type OpsConfig struct {
	Journal     Pinger       // nil when the journal is disabled
	Metrics     http.Handler // nil disables the metrics endpoint
	MetricsPath string
}

// NewOpsHandler creates the HTTP handler for health checks, roster and metrics.
func NewOpsHandler(cfg OpsConfig, r router.Router, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Version    string                 `json:"version"`
			Build      version.Info           `json:"build"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Version:    version.Version,
			Build:      version.Get(),
			Components: make(map[string]interface{}),
		}

		st := r.Stats()
		health.Components["relay"] = map[string]interface{}{
			"sessions":      st.Sessions,
			"send_failures": st.SendFailures,
		}

		if cfg.Journal == nil {
			health.Components["journal"] = "disabled"
		} else if err := cfg.Journal.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["journal"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
			logger.Warn("journal health check failed", "error", err)
		} else {
			health.Components["journal"] = "connected"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("GET /roster", func(w http.ResponseWriter, req *http.Request) {
		users := r.Roster()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"count": len(users),
			"users": users,
		})
	})

	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle(path, cfg.Metrics)
	}

	return mux
}
