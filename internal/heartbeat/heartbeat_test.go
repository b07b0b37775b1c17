package heartbeat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/chat-relay/internal/message"
	"github.com/rickgao/chat-relay/internal/registry"
)

// mockConn reports a fixed LastSeen and counts pings.
type mockConn struct {
	lastSeen time.Time
	pingErr  error
	pings    atomic.Int32
}

func (c *mockConn) Send(context.Context, message.Message) error { return nil }
func (c *mockConn) Receive(context.Context) (message.Inbound, error) {
	return message.Inbound{}, nil
}
func (c *mockConn) Ping(context.Context) error {
	c.pings.Add(1)
	return c.pingErr
}
func (c *mockConn) LastSeen() time.Time { return c.lastSeen }
func (c *mockConn) Close() error        { return nil }

// mockSource records disconnects.
type mockSource struct {
	sessions []registry.Session

	mu           sync.Mutex
	disconnected map[string]error
}

func (m *mockSource) Sessions() []registry.Session {
	return m.sessions
}

func (m *mockSource) Disconnect(s registry.Session, cause error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disconnected == nil {
		m.disconnected = make(map[string]error)
	}
	m.disconnected[s.Identity] = cause
	return true
}

func (m *mockSource) cause(identity string) (error, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	err, ok := m.disconnected[identity]
	return err, ok
}

func session(identity string, conn *mockConn) registry.Session {
	return registry.Session{ID: uuid.New(), Identity: identity, Conn: conn}
}

func TestSweeper_SweepOnce(t *testing.T) {
	fresh := &mockConn{lastSeen: time.Now()}
	idle := &mockConn{lastSeen: time.Now().Add(-time.Hour)}
	broken := &mockConn{lastSeen: time.Now(), pingErr: errors.New("write: broken pipe")}

	source := &mockSource{sessions: []registry.Session{
		session("alice", fresh),
		session("bob", idle),
		session("carol", broken),
	}}

	cfg := Config{
		Interval:    time.Hour,
		IdleTimeout: time.Minute,
		PingTimeout: time.Second,
		Concurrency: 2,
	}
	s := New(cfg, source, nil)

	res := s.SweepOnce(context.Background())

	want := SweepResult{Checked: 3, Pinged: 1, Expired: 1, Failed: 1}
	if res != want {
		t.Errorf("SweepOnce() = %+v, want %+v", res, want)
	}
	if s.Last() != want {
		t.Errorf("Last() = %+v, want %+v", s.Last(), want)
	}

	if fresh.pings.Load() != 1 {
		t.Errorf("alice pings = %d, want 1", fresh.pings.Load())
	}
	if idle.pings.Load() != 0 {
		t.Errorf("idle bob was pinged %d times, want 0", idle.pings.Load())
	}
	if cause, ok := source.cause("bob"); !ok || !errors.Is(cause, ErrIdle) {
		t.Errorf("bob disconnect cause = %v, want ErrIdle", cause)
	}
	if _, ok := source.cause("carol"); !ok {
		t.Error("carol should be disconnected after ping failure")
	}
	if _, ok := source.cause("alice"); ok {
		t.Error("alice should stay connected")
	}
}

func TestSweeper_NoSessions(t *testing.T) {
	s := New(DefaultConfig(), &mockSource{}, nil)

	if res := s.SweepOnce(context.Background()); res != (SweepResult{}) {
		t.Errorf("SweepOnce() = %+v, want zero", res)
	}
}

func TestSweeper_IdleTimeoutDisabled(t *testing.T) {
	old := &mockConn{lastSeen: time.Now().Add(-24 * time.Hour)}
	source := &mockSource{sessions: []registry.Session{session("alice", old)}}

	cfg := DefaultConfig()
	cfg.IdleTimeout = 0
	res := New(cfg, source, nil).SweepOnce(context.Background())

	if res.Pinged != 1 || res.Expired != 0 {
		t.Errorf("SweepOnce() = %+v, want one ping and no expiry", res)
	}
}

func TestSweeper_StartStop(t *testing.T) {
	conn := &mockConn{lastSeen: time.Now()}
	source := &mockSource{sessions: []registry.Session{session("alice", conn)}}

	cfg := DefaultConfig()
	cfg.Interval = 10 * time.Millisecond
	s := New(cfg, source, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for conn.pings.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not ping on its interval")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
