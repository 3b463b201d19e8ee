package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds inventory ledger counters.
type Metrics struct {
	Reservations    *prometheus.CounterVec
	ReservedUnits   prometheus.Counter
	Commits         prometheus.Counter
	Releases        prometheus.Counter
	ReserveDuration prometheus.Histogram
}

// New creates and registers the inventory metrics.
func New() *Metrics {
	return &Metrics{
		Reservations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "medisupply_inventory_reservations_total",
			Help: "Reservation attempts by outcome (reserved, insufficient, error)",
		}, []string{"outcome"}),
		ReservedUnits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medisupply_inventory_reserved_units_total",
			Help: "Units placed on hold by successful reservations",
		}),
		Commits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medisupply_inventory_commits_total",
			Help: "Reservations committed against on-hand stock",
		}),
		Releases: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medisupply_inventory_releases_total",
			Help: "Reservations released back to available stock",
		}),
		ReserveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "medisupply_inventory_reserve_duration_seconds",
			Help:    "Time spent allocating a reservation, including lock waits",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}),
	}
}

func (m *Metrics) IncReservation(outcome string, units int) {
	if m == nil {
		return
	}
	m.Reservations.WithLabelValues(outcome).Inc()
	if units > 0 {
		m.ReservedUnits.Add(float64(units))
	}
}

func (m *Metrics) IncCommit() {
	if m == nil {
		return
	}
	m.Commits.Inc()
}

func (m *Metrics) IncRelease() {
	if m == nil {
		return
	}
	m.Releases.Inc()
}

func (m *Metrics) ObserveReserve(seconds float64) {
	if m == nil {
		return
	}
	m.ReserveDuration.Observe(seconds)
}
