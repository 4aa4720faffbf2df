package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetrics_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	if m.EventsDispatched == nil {
		t.Fatal("EventsDispatched should not be nil")
	}
	if m.DeliveriesTotal == nil {
		t.Fatal("DeliveriesTotal should not be nil")
	}
	if m.DeliveryLatency == nil {
		t.Fatal("DeliveryLatency should not be nil")
	}
	if m.BatchFetched == nil {
		t.Fatal("BatchFetched should not be nil")
	}
	if m.ClaimsLost == nil {
		t.Fatal("ClaimsLost should not be nil")
	}
}

func TestRecordDelivery(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordDelivery("success", 0.5)
	m.RecordDelivery("success", 1.2)
	m.RecordDelivery("failed", 0.3)
	m.RecordDelivery("skipped", -1)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	found := false
	for _, f := range families {
		switch f.GetName() {
		case "ubtrippin_webhook_deliveries_total":
			found = true
			metrics := f.GetMetric()
			if len(metrics) != 3 { // success + failed + skipped
				t.Fatalf("expected 3 label combinations, got %d", len(metrics))
			}
		case "ubtrippin_webhook_delivery_latency_seconds":
			if got := f.GetMetric()[0].GetHistogram().GetSampleCount(); got != 3 {
				t.Fatalf("expected 3 latency samples, got %d", got)
			}
		}
	}
	if !found {
		t.Fatal("ubtrippin_webhook_deliveries_total metric not found")
	}
}

func TestRecordDispatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordDispatch("trip.created", 2)
	m.RecordDispatch("trip.created", 1)
	m.RecordDispatch("item.updated", 0)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	for _, f := range families {
		if f.GetName() == "ubtrippin_webhook_deliveries_enqueued_total" {
			metrics := f.GetMetric()
			if len(metrics) != 1 {
				t.Fatalf("expected 1 metric, got %d", len(metrics))
			}
			val := metrics[0].GetCounter().GetValue()
			if val != 3 {
				t.Fatalf("expected count 3, got %f", val)
			}
			return
		}
	}
	t.Fatal("ubtrippin_webhook_deliveries_enqueued_total metric not found")
}

func TestGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordBatch(42)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	for _, f := range families {
		if f.GetName() != "ubtrippin_webhook_batch_fetched" {
			continue
		}
		if val := f.GetMetric()[0].GetGauge().GetValue(); val != 42 {
			t.Fatalf("expected 42, got %f", val)
		}
		return
	}
	t.Fatal("ubtrippin_webhook_batch_fetched metric not found")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordDispatch("trip.created", 1)
	m.RecordDelivery("success", 0.1)
	m.RecordBatch(1)
	m.RecordClaimLost()
	m.RecordSweep(3)
}
