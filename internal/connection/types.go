package connection

import (
	"context"
	"errors"
	"time"

	"github.com/rickgao/chat-relay/internal/message"
)

// Errors
var (
	ErrClosed          = errors.New("connection closed by peer")
	ErrNotConnected    = errors.New("not connected")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrStaleConnection = errors.New("connection stale: no pong received")
)

// Conn is a live duplex channel to one client, as seen by the relay.
//
// Receive blocks until a client message arrives. It returns an error wrapping
// ErrClosed when the peer closed the connection gracefully; any other error is
// a failure. Receive is not interrupted by ctx; call Close to unblock it.
// Send and Ping are safe for concurrent use with each other and with Receive.
type Conn interface {
	Send(ctx context.Context, msg message.Message) error
	Receive(ctx context.Context) (message.Inbound, error)
	Ping(ctx context.Context) error
	LastSeen() time.Time
	Close() error
}

// ConnConfig configures a server-side connection.
type ConnConfig struct {
	WriteTimeout   time.Duration // Upper bound for a single write (0 = ctx deadline only)
	MaxMessageSize int64         // Read limit in bytes (0 = unlimited)
}

// DefaultConnConfig returns sensible defaults.
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 64 * 1024,
	}
}

// ClientConfig configures a dial-side client.
type ClientConfig struct {
	URL          string        // e.g. ws://localhost:8000/ws/alice
	PingInterval time.Duration // Keepalive ping period
	PingTimeout  time.Duration // Stale after this long without ping/pong
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Messages channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval: 30 * time.Second,
		PingTimeout:  90 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   256,
	}
}

// writeDeadline picks the earlier of ctx's deadline and now+limit.
// The zero time means no deadline.
func writeDeadline(ctx context.Context, limit time.Duration) time.Time {
	var deadline time.Time
	if limit > 0 {
		deadline = time.Now().Add(limit)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	return deadline
}
