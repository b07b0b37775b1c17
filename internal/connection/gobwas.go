package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/rickgao/chat-relay/internal/message"
)

// UpgradeGobwas upgrades an HTTP request with gobwas/ws and wraps the result.
func UpgradeGobwas(w http.ResponseWriter, r *http.Request, cfg ConnConfig, logger *slog.Logger) (Conn, error) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return nil, fmt.Errorf("upgrade: %w", err)
	}
	return NewGobwasConn(conn, cfg, logger), nil
}

// ErrFrameTooLarge is returned when a data frame exceeds MaxMessageSize.
var ErrFrameTooLarge = errors.New("frame exceeds max message size")

// gobwasConn adapts a raw server-side connection speaking WebSocket frames.
type gobwasConn struct {
	cfg    ConnConfig
	logger *slog.Logger
	conn   net.Conn
	reader *wsutil.Reader

	// Write serialization
	writeMu sync.Mutex

	// State
	mu       sync.RWMutex
	lastSeen time.Time
	closed   bool
}

// NewGobwasConn wraps an upgraded net.Conn.
func NewGobwasConn(conn net.Conn, cfg ConnConfig, logger *slog.Logger) Conn {
	if logger == nil {
		logger = slog.Default()
	}
	c := &gobwasConn{
		cfg:      cfg,
		logger:   logger,
		conn:     conn,
		lastSeen: time.Now(),
	}
	c.reader = &wsutil.Reader{
		Source: conn,
		State:  ws.StateServerSide,
		// Control frames between fragments of one message.
		OnIntermediate: func(h ws.Header, r io.Reader) error {
			return c.control(context.Background(), h, r)
		},
	}
	return c
}

// Send encodes msg and writes it as a text frame.
func (c *gobwasConn) Send(ctx context.Context, msg message.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Kind, err)
	}
	return c.write(ctx, ws.OpText, data)
}

// Receive returns the next data message, handling control frames in between.
// The frame header is checked against MaxMessageSize before any payload is read.
// Only one goroutine may call Receive.
func (c *gobwasConn) Receive(ctx context.Context) (message.Inbound, error) {
	for {
		h, err := c.reader.NextFrame()
		if err != nil {
			return message.Inbound{}, c.readError(err)
		}
		c.touch()

		if h.OpCode.IsControl() {
			if err := c.control(ctx, h, c.reader); err != nil {
				return message.Inbound{}, err
			}
			continue
		}

		limit := c.cfg.MaxMessageSize
		if limit > 0 && h.Length > limit {
			return message.Inbound{}, fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, h.Length, limit)
		}

		var src io.Reader = c.reader
		if limit > 0 {
			// Continuation frames count toward the same limit.
			src = io.LimitReader(c.reader, limit+1)
		}
		data, err := io.ReadAll(src)
		if err != nil {
			return message.Inbound{}, c.readError(err)
		}
		if limit > 0 && int64(len(data)) > limit {
			return message.Inbound{}, fmt.Errorf("%w: more than %d bytes across fragments", ErrFrameTooLarge, limit)
		}

		return message.DecodeInbound(data)
	}
}

// control handles one ping, pong or close frame whose payload is in r.
func (c *gobwasConn) control(ctx context.Context, h ws.Header, r io.Reader) error {
	if h.Length > ws.MaxControlFramePayloadSize {
		return ws.ErrProtocolControlPayloadOverflow
	}
	payload := make([]byte, h.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return c.readError(err)
	}

	switch h.OpCode {
	case ws.OpClose:
		code, _ := ws.ParseCloseFrameData(payload)
		c.write(ctx, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
		return fmt.Errorf("%w: code %d", ErrClosed, code)

	case ws.OpPing:
		if err := c.write(ctx, ws.OpPong, payload); err != nil {
			return fmt.Errorf("pong: %w", err)
		}
	}
	// A pong only needs the touch() done by the caller.
	return nil
}

func (c *gobwasConn) readError(err error) error {
	if c.isClosed() {
		return ErrAlreadyClosed
	}
	return err
}

// Ping sends a keepalive ping.
func (c *gobwasConn) Ping(ctx context.Context) error {
	return c.write(ctx, ws.OpPing, []byte("keepalive"))
}

// LastSeen returns when the last inbound frame arrived.
func (c *gobwasConn) LastSeen() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSeen
}

// Close sends a normal close frame and releases the socket. Safe to call twice.
func (c *gobwasConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	wsutil.WriteServerMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
	c.writeMu.Unlock()

	return c.conn.Close()
}

func (c *gobwasConn) write(ctx context.Context, op ws.OpCode, payload []byte) error {
	if c.isClosed() {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(writeDeadline(ctx, c.cfg.WriteTimeout))
	return wsutil.WriteServerMessage(c.conn, op, payload)
}

func (c *gobwasConn) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

func (c *gobwasConn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
