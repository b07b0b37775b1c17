package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rickgao/chat-relay/internal/message"
	"github.com/rickgao/chat-relay/internal/router"
	"github.com/rickgao/chat-relay/internal/writer"
)

type staticRouter struct{ st router.Stats }

func (s staticRouter) Stats() router.Stats { return s.st }

type staticJournal struct{ st writer.WriterMetrics }

func (s staticJournal) Stats() writer.WriterMetrics { return s.st }

func testStats() router.Stats {
	return router.Stats{
		Sessions:         3,
		Admitted:         5,
		Rejected:         1,
		EvictedClosed:    1,
		EvictedFailed:    1,
		MessagesReceived: 10,
		MessagesRouted: map[message.Kind]int64{
			message.KindPublic: 20,
			message.KindSystem: 7,
		},
		SendFailures: 2,
		Presence:     router.BufferStats{Count: 4, Dropped: 0},
	}
}

func TestCollector_RouterMetrics(t *testing.T) {
	c := NewCollector(staticRouter{testStats()}, nil)

	expected := `
# HELP chat_relay_sessions Currently registered sessions.
# TYPE chat_relay_sessions gauge
chat_relay_sessions 3
# HELP chat_relay_admissions_total Admission attempts by result.
# TYPE chat_relay_admissions_total counter
chat_relay_admissions_total{result="admitted"} 5
chat_relay_admissions_total{result="rejected"} 1
chat_relay_admissions_total{result="replaced"} 0
# HELP chat_relay_messages_routed_total Outbound messages delivered by kind.
# TYPE chat_relay_messages_routed_total counter
chat_relay_messages_routed_total{kind="public"} 20
chat_relay_messages_routed_total{kind="system"} 7
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"chat_relay_sessions", "chat_relay_admissions_total", "chat_relay_messages_routed_total")
	if err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
}

func TestCollector_JournalOptional(t *testing.T) {
	without := NewCollector(staticRouter{testStats()}, nil)
	with := NewCollector(staticRouter{testStats()}, staticJournal{writer.WriterMetrics{Inserts: 9}})

	n1 := testutil.CollectAndCount(without)
	n2 := testutil.CollectAndCount(with)
	if n2-n1 != 3 {
		t.Errorf("journal adds %d metrics, want 3", n2-n1)
	}

	if got := testutil.CollectAndCount(with, "chat_relay_journal_inserts_total"); got != 1 {
		t.Errorf("journal_inserts_total series = %d, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	reg := NewRegistry(NewCollector(staticRouter{testStats()}, nil))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"chat_relay_sessions 3", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
