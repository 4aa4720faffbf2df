// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for dispatch and delivery.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds metric instruments for the webhook subsystem. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	EventsDispatched   *prometheus.CounterVec
	DeliveriesEnqueued prometheus.Counter
	DeliveriesTotal    *prometheus.CounterVec
	DeliveryLatency    prometheus.Histogram
	BatchFetched       prometheus.Gauge
	ClaimsLost         prometheus.Counter
	SweptDeliveries    prometheus.Counter
}

// NewMetrics creates the instruments and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ubtrippin_webhook_events_dispatched_total",
			Help: "Domain events accepted by the dispatcher.",
		}, []string{"event"}),
		DeliveriesEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ubtrippin_webhook_deliveries_enqueued_total",
			Help: "Deliveries created by fan-out.",
		}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ubtrippin_webhook_deliveries_total",
			Help: "Processed queue entries by outcome.",
		}, []string{"outcome"}),
		DeliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ubtrippin_webhook_delivery_latency_seconds",
			Help:    "HTTP attempt latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		BatchFetched: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ubtrippin_webhook_batch_fetched",
			Help: "Due queue entries fetched by the last batch.",
		}),
		ClaimsLost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ubtrippin_webhook_claims_lost_total",
			Help: "Queue entries claimed by another worker first.",
		}),
		SweptDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ubtrippin_webhook_swept_deliveries_total",
			Help: "Deliveries removed by retention.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.EventsDispatched,
			m.DeliveriesEnqueued,
			m.DeliveriesTotal,
			m.DeliveryLatency,
			m.BatchFetched,
			m.ClaimsLost,
			m.SweptDeliveries,
		)
	}

	return m
}

// RecordDispatch counts a dispatched event and the deliveries it produced.
func (m *Metrics) RecordDispatch(eventType string, deliveries int) {
	if m == nil {
		return
	}
	m.EventsDispatched.WithLabelValues(eventType).Inc()
	m.DeliveriesEnqueued.Add(float64(deliveries))
}

// RecordDelivery records a processed entry with the given outcome. A
// negative latency means no HTTP attempt was made.
func (m *Metrics) RecordDelivery(outcome string, latencySeconds float64) {
	if m == nil {
		return
	}
	m.DeliveriesTotal.WithLabelValues(outcome).Inc()
	if latencySeconds >= 0 {
		m.DeliveryLatency.Observe(latencySeconds)
	}
}

// RecordBatch records the size of a fetched batch.
func (m *Metrics) RecordBatch(fetched int) {
	if m == nil {
		return
	}
	m.BatchFetched.Set(float64(fetched))
}

// RecordClaimLost counts a claim that lost the race.
func (m *Metrics) RecordClaimLost() {
	if m == nil {
		return
	}
	m.ClaimsLost.Inc()
}

// RecordSweep counts deliveries removed by retention.
func (m *Metrics) RecordSweep(deleted int64) {
	if m == nil {
		return
	}
	m.SweptDeliveries.Add(float64(deleted))
}
