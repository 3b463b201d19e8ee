package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds compliance aggregation counters.
type Metrics struct {
	Computed        *prometheus.CounterVec
	Failed          *prometheus.CounterVec
	SnapshotsIngest *prometheus.CounterVec
	CompliancePct   prometheus.Histogram
	ComputeDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		Computed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "medisupply_compliance_results_total",
			Help: "Compliance results persisted, by status",
		}, []string{"status"}),
		Failed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "medisupply_compliance_failures_total",
			Help: "Compliance computations that failed, by error code",
		}, []string{"code"}),
		SnapshotsIngest: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "medisupply_compliance_snapshots_ingested_total",
			Help: "Snapshots ingested, by kind (sales, plan) and outcome",
		}, []string{"kind", "outcome"}),
		CompliancePct: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "medisupply_compliance_pct",
			Help:    "Distribution of computed vendor compliance percentages",
			Buckets: []float64{25, 50, 70, 80, 90, 100, 110, 125, 150, 200},
		}),
		ComputeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "medisupply_compliance_compute_duration_seconds",
			Help:    "Time to compute and persist one compliance result",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) ObserveComputed(status string, pct, seconds float64) {
	if m == nil {
		return
	}
	m.Computed.WithLabelValues(status).Inc()
	m.CompliancePct.Observe(pct)
	m.ComputeDuration.Observe(seconds)
}

func (m *Metrics) IncFailed(code string) {
	if m == nil {
		return
	}
	m.Failed.WithLabelValues(code).Inc()
}

func (m *Metrics) IncIngested(kind, outcome string) {
	if m == nil {
		return
	}
	m.SnapshotsIngest.WithLabelValues(kind, outcome).Inc()
}
