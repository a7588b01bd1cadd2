package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bot's Prometheus collectors. A nil *Metrics is valid and
// records nothing, so one-shot binaries can skip it.
type Metrics struct {
	registry *prometheus.Registry

	DedupDecisions *prometheus.CounterVec
	InboundEvents  *prometheus.CounterVec
	Utterances     prometheus.Counter
	SyncRuns       *prometheus.CounterVec
	SyncDuration   *prometheus.HistogramVec
	NotionRequests *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,

		// result: accepted, rejected, error
		DedupDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "omochi_dedup_decisions_total",
			Help: "Inbound event dedup decisions by result",
		}, []string{"result"}),

		InboundEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "omochi_inbound_events_total",
			Help: "Inbound events by channel and event type",
		}, []string{"channel", "type"}),

		Utterances: f.NewCounter(prometheus.CounterOpts{
			Name: "omochi_utterances_recorded_total",
			Help: "Utterances appended to the message log",
		}),

		SyncRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "omochi_sync_runs_total",
			Help: "Sync job runs by job and outcome",
		}, []string{"job", "outcome"}),

		SyncDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "omochi_sync_duration_seconds",
			Help:    "Sync job duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"job"}),

		NotionRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "omochi_notion_requests_total",
			Help: "Notion API requests by method and status class",
		}, []string{"method", "status"}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Dedup(result string) {
	if m == nil {
		return
	}
	m.DedupDecisions.WithLabelValues(result).Inc()
}

func (m *Metrics) Inbound(channel, eventType string) {
	if m == nil {
		return
	}
	m.InboundEvents.WithLabelValues(channel, eventType).Inc()
}

func (m *Metrics) Utterance() {
	if m == nil {
		return
	}
	m.Utterances.Inc()
}

func (m *Metrics) SyncRun(job, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.SyncRuns.WithLabelValues(job, outcome).Inc()
	m.SyncDuration.WithLabelValues(job).Observe(took.Seconds())
}

func (m *Metrics) NotionRequest(method string, status int) {
	if m == nil {
		return
	}
	m.NotionRequests.WithLabelValues(method, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status == 0:
		return "error"
	case status < 300:
		return "2xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
