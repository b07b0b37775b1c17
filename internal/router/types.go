package router

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/chat-relay/internal/connection"
	"github.com/rickgao/chat-relay/internal/message"
	"github.com/rickgao/chat-relay/internal/registry"
)

// Errors
var (
	ErrOffline      = errors.New("recipient offline")
	ErrRouterClosed = errors.New("router closed")
)

// FanoutMode selects how Broadcast delivers to recipients.
type FanoutMode string

const (
	// FanoutSequential sends to one recipient at a time in roster order.
	FanoutSequential FanoutMode = "sequential"
	// FanoutParallel sends concurrently, bounded by FanoutConcurrency.
	FanoutParallel FanoutMode = "parallel"
)

// Config holds configuration for the Router.
type Config struct {
	AdmissionPolicy   registry.Policy // Default: replace
	Fanout            FanoutMode      // Default: sequential
	FanoutConcurrency int             // Parallel fan-out limit. Default: 16
	SendTimeout       time.Duration   // Per-recipient send bound (0 = none). Default: 10s

	// Clock stamps outbound messages. Default: wall clock.
	Clock message.Clock

	// Presence receives join/leave events when set.
	Presence *GrowableBuffer[PresenceEvent]
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		AdmissionPolicy:   registry.PolicyReplace,
		Fanout:            FanoutSequential,
		FanoutConcurrency: 16,
		SendTimeout:       10 * time.Second,
		Clock:             message.SystemClock{},
	}
}

// TerminationKind tells a graceful close from a failure.
type TerminationKind int

const (
	// Closed means the client closed the connection.
	Closed TerminationKind = iota
	// Failed covers every other ending: drops, protocol errors, send failures.
	Failed
)

func (k TerminationKind) String() string {
	if k == Closed {
		return "closed"
	}
	return "failed"
}

// Termination is how a connection's receive loop ended.
type Termination struct {
	Kind  TerminationKind
	Cause error
}

func (t Termination) String() string {
	if t.Cause == nil {
		return t.Kind.String()
	}
	return fmt.Sprintf("%s: %v", t.Kind, t.Cause)
}

// terminationFor classifies a receive error.
func terminationFor(err error) Termination {
	if errors.Is(err, connection.ErrClosed) {
		return Termination{Kind: Closed, Cause: err}
	}
	return Termination{Kind: Failed, Cause: err}
}

// PresenceKind is the type of a presence event.
type PresenceKind string

const (
	PresenceJoin    PresenceKind = "join"
	PresenceLeave   PresenceKind = "leave"
	PresenceFail    PresenceKind = "fail"
	PresenceReplace PresenceKind = "replace"
)

// PresenceEvent records a session entering or leaving the registry.
type PresenceEvent struct {
	SessionID uuid.UUID
	Identity  string
	Kind      PresenceKind
	At        time.Time
}

// Stats contains runtime statistics.
type Stats struct {
	Sessions int

	Admitted      int64
	Rejected      int64
	Replaced      int64
	EvictedClosed int64
	EvictedFailed int64

	MessagesReceived  int64
	MessagesRouted    map[message.Kind]int64
	DroppedPrivate    int64
	OfflineRecipients int64
	SendFailures      int64

	Presence BufferStats
}
