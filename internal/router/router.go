package router

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/chat-relay/internal/connection"
	"github.com/rickgao/chat-relay/internal/message"
	"github.com/rickgao/chat-relay/internal/registry"
)

// Router admits connections and dispatches their messages.
type Router interface {
	// Admit registers conn and announces the arrival to everyone, the newcomer included.
	Admit(ctx context.Context, identity string, conn connection.Conn) (registry.Session, error)

	// Evict removes identity without a departure notice and closes its connection.
	// It is a no-op when identity is absent.
	Evict(identity string) bool

	// Disconnect evicts s if it is still the registered session and closes its connection.
	Disconnect(s registry.Session, cause error) bool

	// Serve admits conn and runs its receive loop until the connection ends.
	Serve(ctx context.Context, identity string, conn connection.Conn) (Termination, error)

	// Broadcast delivers msg to every registered session and returns the number reached.
	Broadcast(ctx context.Context, msg message.Message) int

	// SendTo delivers msg to one identity.
	SendTo(ctx context.Context, identity string, msg message.Message) error

	// Roster returns registered identities in admission order.
	Roster() []string

	// Resolve looks up an identity.
	Resolve(identity string) (registry.Session, bool)

	// Sessions returns a snapshot of all sessions.
	Sessions() []registry.Session

	// Stats returns current router statistics.
	Stats() Stats

	// Close refuses new admissions and closes every live connection.
	Close() error
}

// router is the internal implementation.
type router struct {
	cfg    Config
	logger *slog.Logger
	reg    *registry.Registry

	// Stats
	mu                sync.RWMutex
	closed            bool
	admitted          int64
	rejected          int64
	replaced          int64
	evictedClosed     int64
	evictedFailed     int64
	received          int64
	routed            map[message.Kind]int64
	droppedPrivate    int64
	offlineRecipients int64
	sendFailures      int64
}

// NewRouter creates a new Router.
func NewRouter(cfg Config, logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = message.SystemClock{}
	}
	if cfg.Fanout == "" {
		cfg.Fanout = FanoutSequential
	}
	if cfg.FanoutConcurrency < 1 {
		cfg.FanoutConcurrency = 1
	}

	return &router{
		cfg:    cfg,
		logger: logger,
		reg:    registry.New(cfg.AdmissionPolicy),
		routed: make(map[message.Kind]int64),
	}
}

// Admit registers conn and broadcasts the join notice.
func (r *router) Admit(ctx context.Context, identity string, conn connection.Conn) (registry.Session, error) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return registry.Session{}, ErrRouterClosed
	}

	s, displaced, err := r.reg.Admit(identity, conn)
	if err != nil {
		r.mu.Lock()
		r.rejected++
		r.mu.Unlock()
		r.logger.Info("admission rejected", "identity", identity, "error", err)
		return registry.Session{}, err
	}

	// Close may have taken its snapshot between the check above and reg.Admit.
	r.mu.Lock()
	closed = r.closed
	if !closed {
		r.admitted++
	}
	r.mu.Unlock()
	if closed {
		r.reg.EvictSession(s.Identity, s.ID)
		conn.Close()
		if displaced != nil {
			displaced.Conn.Close()
		}
		return registry.Session{}, ErrRouterClosed
	}

	if displaced != nil {
		r.retire(ctx, *displaced)
	}

	r.publish(s, PresenceJoin)
	r.logger.Info("client joined", "identity", identity, "session", s.ID, "online", r.reg.Len())

	r.Broadcast(ctx, message.System(message.JoinedText(identity), r.cfg.Clock))
	return s, nil
}

// retire shuts down a session displaced by a same-name admission.
func (r *router) retire(ctx context.Context, old registry.Session) {
	r.mu.Lock()
	r.replaced++
	r.mu.Unlock()

	if r.reg.Policy() == registry.PolicyReplaceNotify {
		sendCtx, cancel := r.sendContext(ctx)
		if err := old.Conn.Send(sendCtx, message.System(message.ReplacedText, r.cfg.Clock)); err != nil {
			r.logger.Debug("replace notice not delivered", "identity", old.Identity, "error", err)
		}
		cancel()
	}

	old.Conn.Close()
	r.publish(old, PresenceReplace)
	r.logger.Info("session replaced", "identity", old.Identity, "session", old.ID)
}

// Evict removes identity without announcing a departure.
func (r *router) Evict(identity string) bool {
	s, ok := r.reg.Evict(identity)
	if !ok {
		return false
	}
	r.recordFailure(s)
	s.Conn.Close()
	return true
}

// Disconnect evicts s if it is still current.
func (r *router) Disconnect(s registry.Session, cause error) bool {
	removed := r.reg.EvictSession(s.Identity, s.ID)
	if removed {
		r.recordFailure(s)
		r.logger.Warn("client disconnected", "identity", s.Identity, "session", s.ID, "cause", cause)
	}
	s.Conn.Close()
	return removed
}

// Serve runs one connection from admission to eviction.
func (r *router) Serve(ctx context.Context, identity string, conn connection.Conn) (Termination, error) {
	s, err := r.Admit(ctx, identity, conn)
	if err != nil {
		return Termination{}, err
	}
	defer conn.Close()

	// Receive does not watch ctx; closing the connection unblocks it.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	r.deliver(ctx, s, message.UserList(r.reg.Roster(), r.cfg.Clock))

	term := r.receiveLoop(ctx, s)
	r.finish(ctx, s, term)
	return term, nil
}

func (r *router) receiveLoop(ctx context.Context, s registry.Session) Termination {
	for {
		in, err := s.Conn.Receive(ctx)
		if err != nil {
			return terminationFor(err)
		}

		r.mu.Lock()
		r.received++
		r.mu.Unlock()

		r.dispatch(ctx, s, in)
	}
}

// dispatch routes one inbound message from s.
func (r *router) dispatch(ctx context.Context, s registry.Session, in message.Inbound) {
	if !in.IsPrivate() {
		r.Broadcast(ctx, message.Public(s.Identity, in.Message, r.cfg.Clock))
		return
	}

	req, ok := in.PrivateRequest()
	if !ok {
		r.mu.Lock()
		r.droppedPrivate++
		r.mu.Unlock()
		r.logger.Debug("incomplete private message dropped", "identity", s.Identity, "to", in.To)
		return
	}

	target, ok := r.reg.Resolve(req.To)
	if !ok {
		r.mu.Lock()
		r.offlineRecipients++
		r.mu.Unlock()
		r.deliver(ctx, s, message.Error(message.OfflineText(req.To), r.cfg.Clock))
		return
	}

	r.deliver(ctx, target, message.Private(s.Identity, req.Message, r.cfg.Clock))
	r.deliver(ctx, s, message.PrivateSent(req.To, req.Message, r.cfg.Clock))
}

// finish evicts s and announces the departure when the client closed cleanly.
func (r *router) finish(ctx context.Context, s registry.Session, term Termination) {
	removed := r.reg.EvictSession(s.Identity, s.ID)
	if !removed {
		r.logger.Debug("connection ended after eviction", "identity", s.Identity, "session", s.ID, "termination", term)
		return
	}

	if term.Kind == Failed {
		r.recordFailure(s)
		r.logger.Warn("client failed", "identity", s.Identity, "session", s.ID, "cause", term.Cause)
		return
	}

	r.mu.Lock()
	r.evictedClosed++
	r.mu.Unlock()
	r.publish(s, PresenceLeave)
	r.logger.Info("client left", "identity", s.Identity, "session", s.ID, "online", r.reg.Len())

	// Shutdown cancels ctx; the notice still goes out, bounded by SendTimeout.
	r.Broadcast(context.WithoutCancel(ctx), message.System(message.LeftText(s.Identity), r.cfg.Clock))
}

// Broadcast delivers msg to every session in the current snapshot.
func (r *router) Broadcast(ctx context.Context, msg message.Message) int {
	sessions := r.reg.Sessions()

	var (
		mu        sync.Mutex
		delivered int
	)
	send := func(s registry.Session) {
		if r.deliver(ctx, s, msg) == nil {
			mu.Lock()
			delivered++
			mu.Unlock()
		}
	}

	if r.cfg.Fanout != FanoutParallel || len(sessions) < 2 {
		for _, s := range sessions {
			send(s)
		}
		return delivered
	}

	var g errgroup.Group
	g.SetLimit(r.cfg.FanoutConcurrency)
	for _, s := range sessions {
		g.Go(func() error {
			send(s)
			return nil
		})
	}
	g.Wait()
	return delivered
}

// SendTo delivers msg to identity.
func (r *router) SendTo(ctx context.Context, identity string, msg message.Message) error {
	s, ok := r.reg.Resolve(identity)
	if !ok {
		return ErrOffline
	}
	return r.deliver(ctx, s, msg)
}

// deliver sends msg to s. A failure disconnects s and is never passed to other recipients.
func (r *router) deliver(ctx context.Context, s registry.Session, msg message.Message) error {
	sendCtx, cancel := r.sendContext(ctx)
	defer cancel()

	err := s.Conn.Send(sendCtx, msg)
	if err == nil {
		r.mu.Lock()
		r.routed[msg.Kind]++
		r.mu.Unlock()
		return nil
	}

	r.mu.Lock()
	r.sendFailures++
	r.mu.Unlock()

	if errors.Is(err, context.DeadlineExceeded) {
		r.logger.Warn("send timed out", "identity", s.Identity, "type", msg.Kind, "timeout", r.cfg.SendTimeout)
	} else {
		r.logger.Warn("send failed", "identity", s.Identity, "type", msg.Kind, "error", err)
	}

	r.Disconnect(s, err)
	return err
}

func (r *router) sendContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.SendTimeout > 0 {
		return context.WithTimeout(ctx, r.cfg.SendTimeout)
	}
	return context.WithCancel(ctx)
}

func (r *router) recordFailure(s registry.Session) {
	r.mu.Lock()
	r.evictedFailed++
	r.mu.Unlock()
	r.publish(s, PresenceFail)
}

func (r *router) publish(s registry.Session, kind PresenceKind) {
	if r.cfg.Presence == nil {
		return
	}
	ev := PresenceEvent{
		SessionID: s.ID,
		Identity:  s.Identity,
		Kind:      kind,
		At:        time.Now(),
	}
	if !r.cfg.Presence.Send(ev) {
		r.logger.Debug("presence event dropped", "identity", s.Identity, "kind", kind)
	}
}

// Roster returns registered identities.
func (r *router) Roster() []string {
	return r.reg.Roster()
}

// Resolve looks up an identity.
func (r *router) Resolve(identity string) (registry.Session, bool) {
	return r.reg.Resolve(identity)
}

// Sessions returns a snapshot of all sessions.
func (r *router) Sessions() []registry.Session {
	return r.reg.Sessions()
}

// Stats returns current statistics.
func (r *router) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routed := make(map[message.Kind]int64, len(r.routed))
	for k, v := range r.routed {
		routed[k] = v
	}

	st := Stats{
		Sessions:          r.reg.Len(),
		Admitted:          r.admitted,
		Rejected:          r.rejected,
		Replaced:          r.replaced,
		EvictedClosed:     r.evictedClosed,
		EvictedFailed:     r.evictedFailed,
		MessagesReceived:  r.received,
		MessagesRouted:    routed,
		DroppedPrivate:    r.droppedPrivate,
		OfflineRecipients: r.offlineRecipients,
		SendFailures:      r.sendFailures,
	}
	if r.cfg.Presence != nil {
		st.Presence = r.cfg.Presence.Stats()
	}
	return st
}

// Close refuses new admissions and closes every live connection.
// Each Serve loop then ends as a failure and evicts its own session.
func (r *router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	sessions := r.reg.Sessions()
	for _, s := range sessions {
		s.Conn.Close()
	}
	r.logger.Info("router closed", "sessions", len(sessions))
	return nil
}
