// Package event defines the domain events fanned out to webhooks, the
// versioned envelope they are delivered in, and payload redaction.
package event

import "time"

// Event type names accepted by the dispatcher.
const (
	TripCreated          = "trip.created"
	TripUpdated          = "trip.updated"
	TripDeleted          = "trip.deleted"
	ItemCreated          = "item.created"
	ItemUpdated          = "item.updated"
	ItemDeleted          = "item.deleted"
	ItemStatusChanged    = "item.status_changed"
	ItemsBatchCreated    = "items.batch_created"
	CollaboratorInvited  = "collaborator.invited"
	CollaboratorAccepted = "collaborator.accepted"
	CollaboratorRemoved  = "collaborator.removed"

	// Ping is queued by connectivity tests only. Webhooks cannot subscribe to it.
	Ping = "ping"
)

// Event is a domain occurrence produced by the trip application.
type Event struct {
	// Type is one of the event type constants.
	Type string `json:"type"`

	// OwnerUserID is the user that owns the affected resource.
	OwnerUserID string `json:"owner_user_id"`

	// TripID scopes the event to a trip. When set, accepted collaborators of
	// the trip receive the event on their own webhooks too.
	TripID string `json:"trip_id,omitempty"`

	// Data is the event payload. It is redacted before it is persisted.
	Data any `json:"data"`

	// OccurredAt stamps the envelope. Zero means the time of dispatch.
	OccurredAt time.Time `json:"occurred_at,omitzero"`
}
