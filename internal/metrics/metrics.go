// ABOUTME: Prometheus instrumentation for conversation turns and generator calls.
// ABOUTME: All methods are nil-receiver safe so metrics can stay disabled.

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is a
// valid no-op recorder, which keeps call sites free of enabled checks.
type Metrics struct {
	registry          *prometheus.Registry
	turnsTotal        *prometheus.CounterVec
	escalationsTotal  prometheus.Counter
	generatorDuration prometheus.Histogram
	generatorFailures prometheus.Counter
}

// New creates and registers the service collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supportdesk_turns_total",
			Help: "Completed customer message turns by resulting conversation status.",
		}, []string{"status"}),
		escalationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "supportdesk_escalations_total",
			Help: "Conversations escalated to a human agent.",
		}),
		generatorDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "supportdesk_generator_request_duration_seconds",
			Help:    "Wall time of response generator calls, including retries.",
			Buckets: prometheus.DefBuckets,
		}),
		generatorFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "supportdesk_generator_degraded_total",
			Help: "Generator calls that fell back to the degraded reply.",
		}),
	}

	reg.MustRegister(
		m.turnsTotal,
		m.escalationsTotal,
		m.generatorDuration,
		m.generatorFailures,
	)
	return m
}

// Handler returns the scrape endpoint for the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTurn records a completed turn and its resulting status.
func (m *Metrics) ObserveTurn(status string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(status).Inc()
}

// ObserveEscalation records a conversation escalating to a human.
func (m *Metrics) ObserveEscalation() {
	if m == nil {
		return
	}
	m.escalationsTotal.Inc()
}

// ObserveGenerator records a generator call's duration and whether it
// degraded to the fallback reply.
func (m *Metrics) ObserveGenerator(elapsed time.Duration, degraded bool) {
	if m == nil {
		return
	}
	m.generatorDuration.Observe(elapsed.Seconds())
	if degraded {
		m.generatorFailures.Inc()
	}
}
