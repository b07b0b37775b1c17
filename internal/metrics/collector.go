package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/chat-relay/internal/router"
	"github.com/rickgao/chat-relay/internal/writer"
)

const namespace = "chat_relay"

// RouterSource provides router statistics.
type RouterSource interface {
	Stats() router.Stats
}

// JournalSource provides presence writer statistics.
type JournalSource interface {
	Stats() writer.WriterMetrics
}

// Collector exports relay statistics as Prometheus metrics.
type Collector struct {
	router  RouterSource
	journal JournalSource // nil when the journal is disabled

	sessions         *prometheus.Desc
	admissions       *prometheus.Desc
	evictions        *prometheus.Desc
	received         *prometheus.Desc
	routed           *prometheus.Desc
	droppedPrivate   *prometheus.Desc
	offline          *prometheus.Desc
	sendFailures     *prometheus.Desc
	presenceDepth    *prometheus.Desc
	presenceDropped  *prometheus.Desc
	journalInserts   *prometheus.Desc
	journalConflicts *prometheus.Desc
	journalErrors    *prometheus.Desc
}

// NewCollector creates a Collector. journal may be nil.
func NewCollector(r RouterSource, journal JournalSource) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		router:  r,
		journal: journal,

		sessions:         desc("sessions", "Currently registered sessions."),
		admissions:       desc("admissions_total", "Admission attempts by result.", "result"),
		evictions:        desc("evictions_total", "Evicted sessions by termination.", "termination"),
		received:         desc("messages_received_total", "Inbound client messages."),
		routed:           desc("messages_routed_total", "Outbound messages delivered by kind.", "kind"),
		droppedPrivate:   desc("private_dropped_total", "Private messages dropped for missing recipient or body."),
		offline:          desc("offline_recipients_total", "Private messages addressed to an offline identity."),
		sendFailures:     desc("send_failures_total", "Outbound sends that failed or timed out."),
		presenceDepth:    desc("presence_buffer_depth", "Presence events waiting for the journal."),
		presenceDropped:  desc("presence_dropped_total", "Presence events dropped at the buffer ceiling."),
		journalInserts:   desc("journal_inserts_total", "Presence rows inserted."),
		journalConflicts: desc("journal_conflicts_total", "Presence rows skipped as duplicates."),
		journalErrors:    desc("journal_errors_total", "Failed presence batch inserts."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sessions
	ch <- c.admissions
	ch <- c.evictions
	ch <- c.received
	ch <- c.routed
	ch <- c.droppedPrivate
	ch <- c.offline
	ch <- c.sendFailures
	ch <- c.presenceDepth
	ch <- c.presenceDropped
	if c.journal != nil {
		ch <- c.journalInserts
		ch <- c.journalConflicts
		ch <- c.journalErrors
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.router.Stats()

	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	gauge(c.sessions, float64(st.Sessions))
	counter(c.admissions, st.Admitted, "admitted")
	counter(c.admissions, st.Rejected, "rejected")
	counter(c.admissions, st.Replaced, "replaced")
	counter(c.evictions, st.EvictedClosed, "closed")
	counter(c.evictions, st.EvictedFailed, "failed")
	counter(c.received, st.MessagesReceived)
	for kind, n := range st.MessagesRouted {
		counter(c.routed, n, string(kind))
	}
	counter(c.droppedPrivate, st.DroppedPrivate)
	counter(c.offline, st.OfflineRecipients)
	counter(c.sendFailures, st.SendFailures)
	gauge(c.presenceDepth, float64(st.Presence.Count))
	counter(c.presenceDropped, st.Presence.Dropped)

	if c.journal != nil {
		js := c.journal.Stats()
		counter(c.journalInserts, js.Inserts)
		counter(c.journalConflicts, js.Conflicts)
		counter(c.journalErrors, js.Errors)
	}
}

// NewRegistry returns a registry with c plus the Go runtime and process collectors.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
