package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/rickgao/chat-relay/internal/connection"
	"github.com/rickgao/chat-relay/internal/message"
	"github.com/rickgao/chat-relay/internal/registry"
	"github.com/rickgao/chat-relay/internal/router"
)

// Transports
const (
	TransportGorilla = "gorilla"
	TransportGobwas  = "gobwas"
)

// Config holds chat listener settings.
type Config struct {
	Transport        string
	Upgrader         connection.UpgraderConfig
	Conn             connection.ConnConfig
	RejectDuplicates bool // Answer 409 before upgrading when the identity is online
}

// Server serves the chat WebSocket endpoint.
type Server struct {
	cfg      Config
	router   router.Router
	logger   *slog.Logger
	upgrader *websocket.Upgrader
}

// New creates a chat Server.
func New(cfg Config, r router.Router, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Transport == "" {
		cfg.Transport = TransportGorilla
	}
	return &Server{
		cfg:      cfg,
		router:   r,
		logger:   logger,
		upgrader: connection.NewUpgrader(cfg.Upgrader),
	}
}

// Handler returns the chat mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{username}", s.handleWS)
	mux.HandleFunc("GET /ws/{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "username required", http.StatusBadRequest)
	})
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	if username == "" {
		http.Error(w, "username required", http.StatusBadRequest)
		return
	}
	// Identities are used verbatim; " alice" must not pass for "alice".
	if strings.TrimSpace(username) != username {
		http.Error(w, "username must not start or end with whitespace", http.StatusBadRequest)
		return
	}

	if s.cfg.RejectDuplicates {
		if _, online := s.router.Resolve(username); online {
			s.logger.Info("duplicate identity refused", "identity", username, "remote", r.RemoteAddr)
			http.Error(w, registry.ErrIdentityTaken.Error(), http.StatusConflict)
			return
		}
	}

	conn, err := s.upgrade(w, r)
	if err != nil {
		// The upgrader has already written the HTTP error.
		s.logger.Warn("websocket upgrade failed", "identity", username, "remote", r.RemoteAddr, "error", err)
		return
	}

	s.serve(r.Context(), username, conn)
}

func (s *Server) upgrade(w http.ResponseWriter, r *http.Request) (connection.Conn, error) {
	logger := s.logger.With("component", "conn", "remote", r.RemoteAddr)

	if s.cfg.Transport == TransportGobwas {
		return connection.UpgradeGobwas(w, r, s.cfg.Conn, logger)
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return connection.NewGorillaConn(ws, s.cfg.Conn, logger), nil
}

// serve hands conn to the router and logs how it ended.
func (s *Server) serve(ctx context.Context, username string, conn connection.Conn) {
	term, err := s.router.Serve(ctx, username, conn)
	if err != nil {
		// Lost the race with another admission, or shutting down.
		if errors.Is(err, registry.ErrIdentityTaken) {
			conn.Send(ctx, message.Error(err.Error(), message.SystemClock{}))
		}
		conn.Close()
		s.logger.Info("connection refused", "identity", username, "error", err)
		return
	}

	s.logger.Debug("connection ended", "identity", username, "termination", term)
}
