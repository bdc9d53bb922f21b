// Package metrics exposes Prometheus instrumentation for the scheduling core.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics counts the outcomes of slot reservations and lifecycle
// transitions.
type SchedulingMetrics struct {
	reservationsTotal *prometheus.CounterVec
	transitionsTotal  *prometheus.CounterVec
	eventsDropped     prometheus.Counter
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		reservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medbook",
			Subsystem: "scheduling",
			Name:      "reservations_total",
			Help:      "Total slot reservation attempts",
		}, []string{"result"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medbook",
			Subsystem: "scheduling",
			Name:      "transitions_total",
			Help:      "Total committed appointment status transitions",
		}, []string{"to"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "medbook",
			Subsystem: "scheduling",
			Name:      "events_dropped_total",
			Help:      "Appointment events dropped because the dispatch queue was full",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.reservationsTotal, m.transitionsTotal, m.eventsDropped)
	return m
}

// ObserveReservation records one reservation attempt. Result is "booked",
// "conflict", "invalid" or "error".
func (m *SchedulingMetrics) ObserveReservation(result string) {
	if m == nil {
		return
	}
	m.reservationsTotal.WithLabelValues(result).Inc()
}

// ObserveTransition records one committed status transition.
func (m *SchedulingMetrics) ObserveTransition(to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(to).Inc()
}

// ObserveEventDropped records one dropped dispatch event.
func (m *SchedulingMetrics) ObserveEventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}
