package catalog_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/fistfulayen/ubtrippin-sub001/catalog"
)

func statusDefinition() catalog.Definition {
	return catalog.Definition{
		Name:         "item.status_changed",
		Subscribable: true,
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"item_id": {"type": "string"},
				"status": {"type": "string", "enum": ["confirmed", "cancelled", "delayed"]},
				"delay_minutes": {"type": "integer"}
			},
			"required": ["item_id", "status"]
		}`),
	}
}

func TestValidatorAcceptsMatchingData(t *testing.T) {
	v := catalog.NewValidator()

	data := map[string]any{"item_id": "it_1", "status": "delayed", "delay_minutes": 45}
	if err := v.ValidateEvent(statusDefinition(), data); err != nil {
		t.Fatal("valid data should pass, got:", err)
	}
}

func TestValidatorMissingRequired(t *testing.T) {
	v := catalog.NewValidator()

	err := v.ValidateEvent(statusDefinition(), map[string]any{"item_id": "it_1"})
	if err == nil {
		t.Fatal("expected validation error for missing status")
	}
	if !strings.Contains(err.Error(), "item.status_changed") {
		t.Fatalf("error should name the event type: %v", err)
	}
}

func TestValidatorWrongType(t *testing.T) {
	v := catalog.NewValidator()

	data := map[string]any{"item_id": "it_1", "status": "delayed", "delay_minutes": "late"}
	if err := v.ValidateEvent(statusDefinition(), data); err == nil {
		t.Fatal("expected validation error for wrong type")
	}
}

func TestValidatorReusesCompiledSchema(t *testing.T) {
	v := catalog.NewValidator()
	d := statusDefinition()
	data := map[string]any{"item_id": "it_1", "status": "confirmed"}

	for range 3 {
		if err := v.ValidateEvent(d, data); err != nil {
			t.Fatal(err)
		}
	}
	if err := v.ValidateEvent(d, map[string]any{"item_id": "it_1", "status": "lost"}); err == nil {
		t.Fatal("cached schema should still reject values outside the enum")
	}
}

func TestValidatorRejectsBrokenSchema(t *testing.T) {
	v := catalog.NewValidator()
	d := catalog.Definition{Name: "trip.created", Schema: json.RawMessage(`{"type":`)}

	if err := v.ValidateEvent(d, map[string]any{}); err == nil {
		t.Fatal("expected error for malformed schema")
	}
}
