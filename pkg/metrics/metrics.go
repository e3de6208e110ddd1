// Package metrics defines the Prometheus metric collectors used by the index
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	IndexUpdatesTotal    *prometheus.CounterVec
	IndexKeysUpdated     *prometheus.CounterVec
	BootstrapInitsTotal  *prometheus.CounterVec
	PruneRunsTotal       *prometheus.CounterVec
	PrunedEntriesTotal   *prometheus.CounterVec
	StorageOpDuration    *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		IndexUpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_updates_total",
				Help: "Total slot update attempts by slot and outcome (applied, skipped, error).",
			},
			[]string{"slot", "outcome"},
		),
		IndexKeysUpdated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_keys_updated_total",
				Help: "Total counter keys incremented or decremented, per slot.",
			},
			[]string{"slot"},
		),
		BootstrapInitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_bootstrap_inits_total",
				Help: "Counter-mapping bootstrap attempts by outcome (created, lost_race).",
			},
			[]string{"outcome"},
		),
		PruneRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_prune_runs_total",
				Help: "Read-time prune passes by outcome (clean, pruned).",
			},
			[]string{"outcome"},
		),
		PrunedEntriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_pruned_entries_total",
				Help: "Non-positive counter entries removed at read time, per slot.",
			},
			[]string{"slot"},
		),
		StorageOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "index_storage_op_duration_seconds",
				Help:    "Index table operation latency in seconds, per operation.",
				Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"op"},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.IndexUpdatesTotal,
		m.IndexKeysUpdated,
		m.BootstrapInitsTotal,
		m.PruneRunsTotal,
		m.PrunedEntriesTotal,
		m.StorageOpDuration,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
