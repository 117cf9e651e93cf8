package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackcard_pipeline_runs_total",
			Help: "Total number of message pipeline runs by terminal outcome (count)",
		},
		[]string{"outcome"},
	)

	CatalogFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackcard_catalog_fetches_total",
			Help: "Total number of catalog lookups by kind and status (count)",
		},
		[]string{"kind", "status"},
	)

	CatalogFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trackcard_catalog_fetch_duration_ms",
			Help:    "Catalog lookup duration in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"kind"},
	)

	CatalogBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trackcard_catalog_breaker_state",
			Help: "Catalog circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CardsSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trackcard_cards_sent_total",
			Help: "Total number of cards delivered to Discord (count)",
		},
	)
)

var registerOnce sync.Once

// Register adds all collectors to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			PipelineRunsTotal,
			CatalogFetchesTotal,
			CatalogFetchDuration,
			CatalogBreakerState,
			CardsSentTotal,
		)
	})
}
