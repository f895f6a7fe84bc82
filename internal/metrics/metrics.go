package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RateMetrics covers the aggregation pipeline and the scheduler.
type RateMetrics struct {
	RunsTotal          *prometheus.CounterVec
	RunDuration        prometheus.Histogram
	SourceFetchTotal   *prometheus.CounterVec
	SourceDuration     *prometheus.HistogramVec
	RatesSavedTotal    *prometheus.CounterVec
	RatesRejectedTotal *prometheus.CounterVec
	PairsInSnapshot    prometheus.Gauge
	ScheduledRuns      prometheus.Counter
}

func NewRateMetrics(reg prometheus.Registerer) *RateMetrics {
	factory := promauto.With(reg)
	return &RateMetrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rates_update_runs_total",
				Help: "Aggregation runs by outcome",
			},
			[]string{"outcome"},
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rates_update_run_duration_seconds",
				Help:    "Wall time of one aggregation run",
				Buckets: prometheus.DefBuckets,
			},
		),
		SourceFetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rates_source_fetch_total",
				Help: "Per-source fetch outcomes",
			},
			[]string{"source", "outcome"},
		),
		SourceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rates_source_fetch_duration_seconds",
				Help:    "Per-source fetch wall time including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		RatesSavedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rates_saved_total",
				Help: "Rates written to the snapshot by currency class",
			},
			[]string{"class"},
		),
		RatesRejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rates_rejected_total",
				Help: "Rates dropped by range validation by currency class",
			},
			[]string{"class"},
		),
		PairsInSnapshot: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "rates_snapshot_pairs",
				Help: "Pairs in the last written snapshot",
			},
		),
		ScheduledRuns: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "rates_scheduler_runs_total",
				Help: "Runs triggered by the scheduler",
			},
		),
	}
}
