package catalog_test

import (
	"encoding/json"
	"testing"

	"github.com/fistfulayen/ubtrippin-sub001/catalog"
	"github.com/fistfulayen/ubtrippin-sub001/event"
)

func TestDefaultCatalogTypes(t *testing.T) {
	c := catalog.Default()

	subscribable := []string{
		event.TripCreated, event.TripUpdated, event.TripDeleted,
		event.ItemCreated, event.ItemUpdated, event.ItemDeleted,
		event.ItemStatusChanged, event.ItemsBatchCreated,
		event.CollaboratorInvited, event.CollaboratorAccepted, event.CollaboratorRemoved,
	}
	for _, name := range subscribable {
		if !c.IsSubscribable(name) {
			t.Errorf("%s should be subscribable", name)
		}
	}

	if !c.Has(event.Ping) {
		t.Fatal("ping should be a known type")
	}
	if c.IsSubscribable(event.Ping) {
		t.Fatal("ping must not be subscribable")
	}
	if c.Has("invoice.created") {
		t.Fatal("unexpected event type in catalog")
	}

	if got := len(c.List(true)); got != len(subscribable) {
		t.Fatalf("List(true) returned %d types, want %d", got, len(subscribable))
	}
	if got := len(c.List(false)); got != len(subscribable)+1 {
		t.Fatalf("List(false) returned %d types, want %d", got, len(subscribable)+1)
	}
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := catalog.New(
		catalog.Definition{Name: "trip.created"},
		catalog.Definition{Name: "trip.created"},
	)
	if err == nil {
		t.Fatal("expected duplicate error")
	}
}

func TestCheckSubscription(t *testing.T) {
	c := catalog.Default()

	if err := c.CheckSubscription(nil); err != nil {
		t.Fatalf("empty subscription should be valid: %v", err)
	}
	if err := c.CheckSubscription([]string{event.ItemCreated, event.TripDeleted}); err != nil {
		t.Fatal(err)
	}
	if err := c.CheckSubscription([]string{event.Ping}); err == nil {
		t.Fatal("ping subscription should be rejected")
	}
	if err := c.CheckSubscription([]string{"trip.*"}); err == nil {
		t.Fatal("unknown type should be rejected")
	}
}

func TestSubscribed(t *testing.T) {
	tests := []struct {
		name   string
		events []string
		typ    string
		want   bool
	}{
		{"empty is wildcard", nil, event.TripUpdated, true},
		{"exact member", []string{event.ItemCreated}, event.ItemCreated, true},
		{"non member", []string{event.ItemCreated}, event.TripUpdated, false},
		{"one of many", []string{event.TripCreated, event.TripUpdated}, event.TripUpdated, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := catalog.Subscribed(tt.events, tt.typ); got != tt.want {
				t.Fatalf("Subscribed(%v, %q) = %v, want %v", tt.events, tt.typ, got, tt.want)
			}
		})
	}
}

func TestValidateEventRequiresObject(t *testing.T) {
	c := catalog.Default()
	v := catalog.NewValidator()

	d, ok := c.Lookup(event.TripCreated)
	if !ok {
		t.Fatal("trip.created missing")
	}

	var obj any
	if err := json.Unmarshal([]byte(`{"trip_id":"t_1"}`), &obj); err != nil {
		t.Fatal(err)
	}
	if err := v.ValidateEvent(d, obj); err != nil {
		t.Fatalf("object payload rejected: %v", err)
	}

	if err := v.ValidateEvent(d, []any{"not", "an", "object"}); err == nil {
		t.Fatal("array payload should be rejected")
	}

	if err := v.ValidateEvent(catalog.Definition{Name: "x"}, "anything"); err != nil {
		t.Fatalf("definition without schema should skip validation: %v", err)
	}
}
