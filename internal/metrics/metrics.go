// Package metrics exposes the pipeline's Prometheus counters. Metrics are
// purely observational: no component reads one back to make a decision.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters the fetch and writer pools update, plus the
// per-host in-flight lease gauge the RateLimiter reports into.
type Metrics struct {
	fetches   prometheus.CounterVec
	writes    prometheus.CounterVec
	inFlights prometheus.GaugeVec
}

// New registers the pipeline's counters against reg and returns a ready
// Metrics. Each process calls this once; main.go passes a dedicated
// prometheus.NewRegistry() rather than the global default registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetches: *prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedwright_fetch_total",
			Help: "Feed fetch attempts by outcome (success, failure).",
		}, []string{"outcome"}),
		writes: *prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedwright_entry_write_total",
			Help: "Entry write attempts by outcome (inserted, duplicate, error).",
		}, []string{"outcome"}),
		inFlights: *prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "feedwright_inflight_requests",
			Help: "Current in-flight HTTP requests per remote host.",
		}, []string{"host"}),
	}
	reg.MustRegister(&m.fetches, &m.writes, &m.inFlights)
	return m
}

// RecordFetch increments the fetch counter for the given outcome.
func (m *Metrics) RecordFetch(outcome string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(outcome).Inc()
}

// RecordWrite increments the entry-write counter for the given outcome.
func (m *Metrics) RecordWrite(outcome string) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(outcome).Inc()
}

// IncInFlight and DecInFlight implement ratelimit.Observer, reporting the
// current number of in-flight requests held against host.
func (m *Metrics) IncInFlight(host string) {
	if m == nil {
		return
	}
	m.inFlights.WithLabelValues(host).Inc()
}

func (m *Metrics) DecInFlight(host string) {
	if m == nil {
		return
	}
	m.inFlights.WithLabelValues(host).Dec()
}
