// Package id defines the identifiers of webhooks, deliveries and queue
// entries.
//
// IDs are TypeIDs ("prefix_suffix" with a UUIDv7 suffix), so they sort by
// creation time. A delivery ID is also the idempotency token sent to
// receivers in the x-ubt-delivery header; it stays the same across retries
// while every retry gets a fresh queue entry ID.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix names the entity an ID belongs to.
type Prefix string

const (
	PrefixWebhook    Prefix = "wh"
	PrefixDelivery   Prefix = "del"
	PrefixQueueEntry Prefix = "whq"
)

var entityNames = map[Prefix]string{
	PrefixWebhook:    "webhook",
	PrefixDelivery:   "delivery",
	PrefixQueueEntry: "queue entry",
}

// ID identifies a webhook, delivery or queue entry.
//
//nolint:recvcheck // UnmarshalText needs a pointer receiver.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

func generate(p Prefix) ID {
	tid, err := typeid.Generate(string(p))
	if err != nil {
		panic(fmt.Sprintf("id: generate %s ID: %v", entityNames[p], err))
	}
	return ID{inner: tid, valid: true}
}

// NewWebhookID generates a webhook ID.
func NewWebhookID() ID { return generate(PrefixWebhook) }

// NewDeliveryID generates a delivery ID.
func NewDeliveryID() ID { return generate(PrefixDelivery) }

// NewQueueEntryID generates a queue entry ID.
func NewQueueEntryID() ID { return generate(PrefixQueueEntry) }

// ParseWebhookID parses s and requires a webhook ID.
func ParseWebhookID(s string) (ID, error) { return parseAs(s, PrefixWebhook) }

// ParseDeliveryID parses s and requires a delivery ID.
func ParseDeliveryID(s string) (ID, error) { return parseAs(s, PrefixDelivery) }

// ParseQueueEntryID parses s and requires a queue entry ID.
func ParseQueueEntryID(s string) (ID, error) { return parseAs(s, PrefixQueueEntry) }

func parseAs(s string, want Prefix) (ID, error) {
	parsed, err := parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.Prefix() != want {
		return Nil, fmt.Errorf("id: %q is not a %s ID", s, entityNames[want])
	}
	return parsed, nil
}

// parse accepts an ID of any known entity.
func parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: empty ID")
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	if _, ok := entityNames[Prefix(tid.Prefix())]; !ok {
		return Nil, fmt.Errorf("id: unknown prefix %q", tid.Prefix())
	}
	return ID{inner: tid, valid: true}, nil
}

// MustParse parses a fixed ID of any known entity and panics on error.
func MustParse(s string) ID {
	parsed, err := parse(s)
	if err != nil {
		panic(err.Error())
	}
	return parsed
}

// String returns the "prefix_suffix" form, or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the entity prefix, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether i is the zero value.
func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler. Nil encodes as "".
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. "" decodes to Nil.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
