// Package metrics collects per-run Prometheus counters. A batch run has no
// scrape endpoint, so the registry is written to a node-exporter textfile.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "unmash"

// Metrics holds the counters of one run. Each instance owns its registry, so
// tests and repeated runs never collide on registration.
type Metrics struct {
	Registry *prometheus.Registry

	// RequestsTotal counts remote requests, labeled by service and outcome.
	RequestsTotal *prometheus.CounterVec

	// RetriesTotal counts retried remote requests, labeled by service.
	RetriesTotal *prometheus.CounterVec

	// PagesTotal counts index pages fetched, labeled by query direction.
	PagesTotal *prometheus.CounterVec

	// EdgesCollected counts distinct edges collected, labeled by source query.
	EdgesCollected *prometheus.CounterVec

	// LookupsTotal counts metadata lookups, labeled by outcome status.
	LookupsTotal *prometheus.CounterVec

	// EdgesPlaced counts edge placements, labeled by placement.
	EdgesPlaced *prometheus.CounterVec

	// EntitiesTotal counts processed entities, labeled by collection status.
	EntitiesTotal *prometheus.CounterVec

	// RunDuration is the wall time of the last run in seconds.
	RunDuration prometheus.Gauge

	// LastSuccess is the unix time of the last run that finished.
	LastSuccess prometheus.Gauge
}

// New creates a Metrics instance on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "remote_requests_total",
			Help:      "Remote requests by service and outcome",
		}, []string{"service", "outcome"}),
		RetriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "remote_retries_total",
			Help:      "Retried remote requests by service",
		}, []string{"service"}),
		PagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "index_pages_total",
			Help:      "Citation index pages fetched by direction",
		}, []string{"source"}),
		EdgesCollected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "edges_collected_total",
			Help:      "Edges collected by source query",
		}, []string{"source"}),
		LookupsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "metadata_lookups_total",
			Help:      "Metadata lookups by outcome",
		}, []string{"status"}),
		EdgesPlaced: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "edges_placed_total",
			Help:      "Edge placements by bucket",
		}, []string{"placement"}),
		EntitiesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "entities_total",
			Help:      "Processed entities by collection status",
		}, []string{"status"}),
		RunDuration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of the last run",
		}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}
}

// RequestDone records a finished remote request.
func (m *Metrics) RequestDone(service, outcome string) {
	m.RequestsTotal.WithLabelValues(service, outcome).Inc()
}

// RequestRetried records a retry of a remote request.
func (m *Metrics) RequestRetried(service string) {
	m.RetriesTotal.WithLabelValues(service).Inc()
}

// LookupDone records a metadata lookup outcome.
func (m *Metrics) LookupDone(status string) {
	m.LookupsTotal.WithLabelValues(status).Inc()
}

// PageFetched records one index page and the new edges it carried.
func (m *Metrics) PageFetched(source string, edges int) {
	m.PagesTotal.WithLabelValues(source).Inc()
	m.EdgesCollected.WithLabelValues(source).Add(float64(edges))
}

// EdgesPlacedIn records n placements in a bucket.
func (m *Metrics) EdgesPlacedIn(placement string, n int) {
	if n > 0 {
		m.EdgesPlaced.WithLabelValues(placement).Add(float64(n))
	}
}

// EntityDone records an entity by collection status.
func (m *Metrics) EntityDone(status string) {
	m.EntitiesTotal.WithLabelValues(status).Inc()
}

// RunFinished records the run duration and completion time.
func (m *Metrics) RunFinished(started, finished time.Time) {
	m.RunDuration.Set(finished.Sub(started).Seconds())
	m.LastSuccess.Set(float64(finished.Unix()))
}

// WriteToTextfile writes the registry in the text exposition format, atomically.
func (m *Metrics) WriteToTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
