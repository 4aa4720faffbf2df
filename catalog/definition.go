package catalog

import "encoding/json"

// Definition describes one event type the dispatcher accepts.
type Definition struct {
	// Name is the dot-separated event type name, e.g. "item.status_changed".
	Name string `json:"name"`

	// Description explains when the event fires.
	Description string `json:"description"`

	// Group organizes event types for display ("trip", "item", "collaborator").
	Group string `json:"group,omitempty"`

	// Subscribable is false for internal types such as ping.
	Subscribable bool `json:"subscribable"`

	// Schema is an optional JSON Schema the redacted payload must satisfy.
	Schema json.RawMessage `json:"schema,omitempty"`
}
