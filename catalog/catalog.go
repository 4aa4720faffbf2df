// Package catalog holds the closed registry of webhook event types.
package catalog

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/fistfulayen/ubtrippin-sub001/event"
)

// objectSchema requires event data to be a JSON object.
var objectSchema = json.RawMessage(`{"type":"object"}`)

// Catalog is an immutable set of event type definitions keyed by name.
type Catalog struct {
	defs  map[string]Definition
	names []string
}

// New builds a catalog from definitions. Duplicate names are rejected.
func New(defs ...Definition) (*Catalog, error) {
	c := &Catalog{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("catalog: definition with empty name")
		}
		if _, dup := c.defs[d.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate event type %q", d.Name)
		}
		c.defs[d.Name] = d
		c.names = append(c.names, d.Name)
	}
	sort.Strings(c.names)
	return c, nil
}

// Default returns the trip application's event types plus ping.
func Default() *Catalog {
	c, err := New(
		def(event.TripCreated, "trip", "A trip was created."),
		def(event.TripUpdated, "trip", "Trip details changed."),
		def(event.TripDeleted, "trip", "A trip was deleted."),
		def(event.ItemCreated, "item", "An itinerary item was added to a trip."),
		def(event.ItemUpdated, "item", "An itinerary item changed."),
		def(event.ItemDeleted, "item", "An itinerary item was removed."),
		def(event.ItemStatusChanged, "item", "An itinerary item's booking status changed."),
		def(event.ItemsBatchCreated, "item", "Several itinerary items were extracted at once."),
		def(event.CollaboratorInvited, "collaborator", "A user was invited to a trip."),
		def(event.CollaboratorAccepted, "collaborator", "An invited user joined a trip."),
		def(event.CollaboratorRemoved, "collaborator", "A collaborator left or was removed from a trip."),
		Definition{
			Name:        event.Ping,
			Description: "Connectivity test sent on request.",
			Group:       "system",
			Schema:      objectSchema,
		},
	)
	if err != nil {
		panic(err)
	}
	return c
}

func def(name, group, desc string) Definition {
	return Definition{
		Name:         name,
		Description:  desc,
		Group:        group,
		Subscribable: true,
		Schema:       objectSchema,
	}
}

// Lookup returns the definition for name.
func (c *Catalog) Lookup(name string) (Definition, bool) {
	d, ok := c.defs[name]
	return d, ok
}

// Has reports whether name is a known event type.
func (c *Catalog) Has(name string) bool {
	_, ok := c.defs[name]
	return ok
}

// IsSubscribable reports whether webhooks may list name in their events.
func (c *Catalog) IsSubscribable(name string) bool {
	d, ok := c.defs[name]
	return ok && d.Subscribable
}

// List returns all definitions sorted by name. When subscribableOnly is
// set, internal types are omitted.
func (c *Catalog) List(subscribableOnly bool) []Definition {
	out := make([]Definition, 0, len(c.names))
	for _, n := range c.names {
		d := c.defs[n]
		if subscribableOnly && !d.Subscribable {
			continue
		}
		out = append(out, d)
	}
	return out
}

// CheckSubscription validates a webhook's event list. Every entry must be a
// subscribable event type. An empty list subscribes to everything.
func (c *Catalog) CheckSubscription(events []string) error {
	for _, e := range events {
		if !c.IsSubscribable(e) {
			return fmt.Errorf("catalog: %q is not a subscribable event type", e)
		}
	}
	return nil
}
