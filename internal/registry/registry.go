// Package registry maps chat identities to their live connections.
//
// A Registry holds at most one session per identity. Every method runs as a
// single critical section under one mutex and never performs I/O, so callers
// snapshot with Sessions or Resolve and send after the lock is released.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/rickgao/chat-relay/internal/connection"
)

// Errors
var (
	ErrEmptyIdentity = errors.New("identity must not be empty")
	ErrIdentityTaken = errors.New("identity already connected")
	ErrUnknownPolicy = errors.New("unknown admission policy")
)

// Policy decides what Admit does when the identity is already registered.
type Policy string

const (
	// PolicyReplace swaps in the new connection without telling the old one.
	PolicyReplace Policy = "replace"
	// PolicyReplaceNotify swaps in the new connection; the caller notifies the old one.
	PolicyReplaceNotify Policy = "replace_notify"
	// PolicyReject refuses the second connection.
	PolicyReject Policy = "reject"
)

// ParsePolicy converts a config string into a Policy. Empty means PolicyReplace.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case "":
		return PolicyReplace, nil
	case PolicyReplace, PolicyReplaceNotify, PolicyReject:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// Session is one admitted connection.
type Session struct {
	ID         uuid.UUID
	Identity   string
	Conn       connection.Conn
	AdmittedAt time.Time
}

// Registry is the identity to session map.
type Registry struct {
	policy Policy

	mu       sync.Mutex
	sessions map[string]Session
	order    []string // Admission order of live identities
}

// New creates an empty registry.
func New(policy Policy) *Registry {
	if policy == "" {
		policy = PolicyReplace
	}
	return &Registry{
		policy:   policy,
		sessions: make(map[string]Session),
	}
}

// Policy returns the admission policy.
func (r *Registry) Policy() Policy {
	return r.policy
}

// Admit registers conn under identity.
//
// When the identity is already registered, PolicyReject returns
// ErrIdentityTaken and leaves the map untouched. The replace policies keep the
// identity's roster position and return the displaced session so the caller can
// notify and close it.
func (r *Registry) Admit(identity string, conn connection.Conn) (Session, *Session, error) {
	if identity == "" {
		return Session{}, nil, ErrEmptyIdentity
	}

	s := Session{
		ID:         uuid.New(),
		Identity:   identity,
		Conn:       conn,
		AdmittedAt: time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, exists := r.sessions[identity]
	if exists && r.policy == PolicyReject {
		return Session{}, nil, fmt.Errorf("%w: %s", ErrIdentityTaken, identity)
	}

	r.sessions[identity] = s
	if !exists {
		r.order = append(r.order, identity)
		return s, nil, nil
	}
	return s, &prev, nil
}

// Evict removes identity. It is a no-op when the identity is absent.
func (r *Registry) Evict(identity string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[identity]
	if !ok {
		return Session{}, false
	}
	r.remove(identity)
	return s, true
}

// EvictSession removes identity only while it still belongs to session id.
// A connection that was replaced cannot evict its successor.
func (r *Registry) EvictSession(identity string, id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[identity]
	if !ok || s.ID != id {
		return false
	}
	r.remove(identity)
	return true
}

// remove must be called with mu held.
func (r *Registry) remove(identity string) {
	delete(r.sessions, identity)
	r.order = lo.Without(r.order, identity)
}

// Resolve looks up identity.
func (r *Registry) Resolve(identity string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[identity]
	return s, ok
}

// Has reports whether identity is registered.
func (r *Registry) Has(identity string) bool {
	_, ok := r.Resolve(identity)
	return ok
}

// Roster returns registered identities in admission order.
func (r *Registry) Roster() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Sessions returns a snapshot of every session in admission order.
func (r *Registry) Sessions() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	return lo.Map(r.order, func(identity string, _ int) Session {
		return r.sessions[identity]
	})
}

// Len returns the number of registered identities.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
