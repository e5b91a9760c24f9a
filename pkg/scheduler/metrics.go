package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes sweep counters for scraping.
type Metrics struct {
	SweepRuns     *prometheus.CounterVec
	SweepFailures *prometheus.CounterVec
	SweepDuration *prometheus.HistogramVec
	Compressions  prometheus.Counter
	BatchMerges   prometheus.Counter
	SoftDeletes   prometheus.Counter
	HardDeletes   prometheus.Counter
	RecordWeight  prometheus.Histogram
}

// NewMetrics registers the scheduler metrics with reg. Pass
// prometheus.DefaultRegisterer for the global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "landoubao_sweep_runs_total",
			Help: "Completed sweep runs by sweep name.",
		}, []string{"sweep"}),
		SweepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "landoubao_sweep_failures_total",
			Help: "Per-user sweep failures by sweep name.",
		}, []string{"sweep"}),
		SweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "landoubao_sweep_duration_seconds",
			Help:    "Wall time of sweep runs by sweep name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"sweep"}),
		Compressions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "landoubao_compressions_total",
			Help: "Records demoted one compression tier.",
		}),
		BatchMerges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "landoubao_batch_merges_total",
			Help: "Near-duplicate clusters merged into summary records.",
		}),
		SoftDeletes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "landoubao_soft_deletes_total",
			Help: "Records soft-deleted by sweeps.",
		}),
		HardDeletes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "landoubao_hard_deletes_total",
			Help: "Soft-deleted records purged after the grace period.",
		}),
		RecordWeight: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "landoubao_record_weight",
			Help:    "Distribution of live record weights seen by the compression sweep.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.3, 0.5, 0.7, 1.0, 1.5, 2.0},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.SweepRuns, m.SweepFailures, m.SweepDuration,
			m.Compressions, m.BatchMerges, m.SoftDeletes, m.HardDeletes, m.RecordWeight)
	}
	return m
}
