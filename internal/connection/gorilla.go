package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/chat-relay/internal/message"
)

// UpgraderConfig configures the gorilla HTTP upgrader.
type UpgraderConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	AllowedOrigins  []string // Empty or "*" accepts any origin
}

// NewUpgrader builds a gorilla Upgrader from cfg.
func NewUpgrader(cfg UpgraderConfig) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(r *http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// gorillaConn adapts a server-side gorilla connection to Conn.
type gorillaConn struct {
	cfg    ConnConfig
	logger *slog.Logger
	ws     *websocket.Conn

	// Write serialization
	writeMu sync.Mutex

	// State
	mu       sync.RWMutex
	lastSeen time.Time
	closed   bool
}

// NewGorillaConn wraps an upgraded gorilla connection.
func NewGorillaConn(ws *websocket.Conn, cfg ConnConfig, logger *slog.Logger) Conn {
	if logger == nil {
		logger = slog.Default()
	}

	c := &gorillaConn{
		cfg:      cfg,
		logger:   logger,
		ws:       ws,
		lastSeen: time.Now(),
	}

	if cfg.MaxMessageSize > 0 {
		ws.SetReadLimit(cfg.MaxMessageSize)
	}

	// Client ping: answer with pong. WriteControl may run concurrently with WriteMessage.
	ws.SetPingHandler(func(data string) error {
		c.touch()
		err := ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	// Client pong: reply to our keepalive.
	ws.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	return c
}

// Send encodes msg and writes it as a text frame.
func (c *gorillaConn) Send(ctx context.Context, msg message.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Kind, err)
	}

	if c.isClosed() {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(writeDeadline(ctx, c.cfg.WriteTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Receive reads the next text frame and decodes it.
func (c *gorillaConn) Receive(ctx context.Context) (message.Inbound, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return message.Inbound{}, c.readError(err)
	}
	c.touch()

	return message.DecodeInbound(data)
}

// readError maps a gorilla read error to ErrClosed or a failure.
func (c *gorillaConn) readError(err error) error {
	if c.isClosed() {
		return ErrAlreadyClosed
	}
	// gorilla reports a dropped socket as CloseAbnormalClosure; no frame was received.
	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure {
		return fmt.Errorf("%w: code %d", ErrClosed, ce.Code)
	}
	return err
}

// Ping sends a keepalive ping.
func (c *gorillaConn) Ping(ctx context.Context) error {
	if c.isClosed() {
		return ErrNotConnected
	}
	deadline := writeDeadline(ctx, c.cfg.WriteTimeout)
	if deadline.IsZero() {
		deadline = time.Now().Add(time.Second)
	}
	return c.ws.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline)
}

// LastSeen returns when the last inbound frame arrived.
func (c *gorillaConn) LastSeen() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSeen
}

// Close sends a normal close frame and releases the socket. Safe to call twice.
func (c *gorillaConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.ws.Close()
}

func (c *gorillaConn) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

func (c *gorillaConn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
