// Package metrics holds the Prometheus collectors for the booking core.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "facility"

const (
	ResultOK       = "ok"
	ResultConflict = "conflict"
)

type Metrics struct {
	Reservations       *prometheus.CounterVec
	InvoiceTransitions *prometheus.CounterVec
	Finalizations      *prometheus.CounterVec
	SweepExpired       *prometheus.CounterVec
	SweepDuration      *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_reservations_total",
			Help:      "Slot reservation attempts by slot kind and result.",
		}, []string{"kind", "result"}),
		InvoiceTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_transitions_total",
			Help:      "Invoice state transitions by target status.",
		}, []string{"status"}),
		Finalizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_finalizations_total",
			Help:      "Finalized booking workflows by payment method.",
		}, []string{"payment_method"}),
		SweepExpired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_expired_total",
			Help:      "Holds released by background sweep jobs.",
		}, []string{"job"}),
		SweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of background sweep runs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
	}

	reg.MustRegister(
		m.Reservations,
		m.InvoiceTransitions,
		m.Finalizations,
		m.SweepExpired,
		m.SweepDuration,
	)
	return m
}

func (m *Metrics) ObserveReservation(kind, result string) {
	if m == nil {
		return
	}
	m.Reservations.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveTransition(status string) {
	if m == nil {
		return
	}
	m.InvoiceTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveFinalization(paymentMethod string) {
	if m == nil {
		return
	}
	m.Finalizations.WithLabelValues(paymentMethod).Inc()
}

func (m *Metrics) ObserveSweep(job string, released int, took time.Duration) {
	if m == nil {
		return
	}
	m.SweepExpired.WithLabelValues(job).Add(float64(released))
	m.SweepDuration.WithLabelValues(job).Observe(took.Seconds())
}
