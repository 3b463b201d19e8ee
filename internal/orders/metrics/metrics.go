package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds order lifecycle counters.
type Metrics struct {
	Created       prometheus.Counter
	Rejected      *prometheus.CounterVec
	Transitions   *prometheus.CounterVec
	OrderValue    prometheus.Histogram
	IdempotentHit prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Created: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medisupply_orders_created_total",
			Help: "Orders accepted in Pending state",
		}),
		Rejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "medisupply_orders_rejected_total",
			Help: "Order creations rejected, by error code",
		}, []string{"code"}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "medisupply_orders_transitions_total",
			Help: "Order state transitions by target state",
		}, []string{"to"}),
		OrderValue: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "medisupply_orders_value",
			Help:    "Total value of created orders",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		}),
		IdempotentHit: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medisupply_orders_idempotent_replays_total",
			Help: "Create requests answered from an existing idempotency claim",
		}),
	}
}

func (m *Metrics) IncCreated(value float64) {
	if m == nil {
		return
	}
	m.Created.Inc()
	m.OrderValue.Observe(value)
}

func (m *Metrics) IncRejected(code string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(code).Inc()
}

func (m *Metrics) IncTransition(to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(to).Inc()
}

func (m *Metrics) IncIdempotentHit() {
	if m == nil {
		return
	}
	m.IdempotentHit.Inc()
}
