// Package delivery runs the outbound side of webhooks: the durable due-queue,
// the batch worker that claims and attempts queued deliveries, and the
// retry policy.
package delivery

import (
	"encoding/json"
	"time"

	"github.com/fistfulayen/ubtrippin-sub001/id"
	"github.com/fistfulayen/ubtrippin-sub001/internal/entity"
	"github.com/fistfulayen/ubtrippin-sub001/webhook"
)

// Status represents the current state of a delivery.
type Status string

const (
	// StatusPending indicates the delivery still has an attempt queued or paused.
	StatusPending Status = "pending"

	// StatusSuccess indicates a 2xx response was received.
	StatusSuccess Status = "success"

	// StatusFailed indicates the delivery ran out of attempts.
	StatusFailed Status = "failed"
)

// MaxResponseBody is the number of characters of a response kept on a delivery.
const MaxResponseBody = 500

// Delivery is one event addressed to one webhook.
type Delivery struct {
	entity.Entity

	// ID is the unique TypeID for this delivery. Receivers use it as an
	// idempotency token.
	ID id.ID `json:"id"`

	// WebhookID references the target webhook.
	WebhookID id.ID `json:"webhook_id"`

	// Event is the event type name.
	Event string `json:"event"`

	// Payload is the serialized envelope, sent and signed byte for byte.
	Payload json.RawMessage `json:"payload"`

	// Status is the current delivery state.
	Status Status `json:"status"`

	// Attempts is the highest attempt number made so far.
	Attempts int `json:"attempts"`

	// LastAttemptAt is when the most recent attempt was made.
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`

	// LastResponseCode is the HTTP status of the most recent attempt. Nil when
	// no response was received.
	LastResponseCode *int `json:"last_response_code,omitempty"`

	// LastResponseBody is the response body or error message of the most
	// recent attempt, truncated to MaxResponseBody characters.
	LastResponseBody string `json:"last_response_body,omitempty"`
}

// Terminal reports whether the delivery has reached success or failed.
func (d *Delivery) Terminal() bool {
	return d.Status == StatusSuccess || d.Status == StatusFailed
}

// QueueEntry is one claimable attempt of a delivery.
type QueueEntry struct {
	// ID is the unique TypeID for this entry. A requeue always gets a new ID.
	ID id.ID `json:"id"`

	// WebhookID references the target webhook.
	WebhookID id.ID `json:"webhook_id"`

	// DeliveryID references the delivery being attempted.
	DeliveryID id.ID `json:"delivery_id"`

	// Attempt is the 1-based attempt number this entry will make.
	Attempt int `json:"attempt"`

	// DeliverAfter is the earliest time the entry may be claimed.
	DeliverAfter time.Time `json:"deliver_after"`

	// CreatedAt is when the entry was enqueued.
	CreatedAt time.Time `json:"created_at"`
}

// NewQueueEntry returns an entry for the given attempt of a delivery.
func NewQueueEntry(d *Delivery, attempt int, deliverAfter time.Time) *QueueEntry {
	return &QueueEntry{
		ID:           id.NewQueueEntryID(),
		WebhookID:    d.WebhookID,
		DeliveryID:   d.ID,
		Attempt:      attempt,
		DeliverAfter: deliverAfter.UTC(),
		CreatedAt:    time.Now().UTC(),
	}
}

// Job is a due queue entry joined with its webhook and delivery. Webhook or
// Delivery is nil when the referenced row no longer exists.
type Job struct {
	Entry    *QueueEntry
	Webhook  *webhook.Webhook
	Delivery *Delivery
}

// TenantKey returns the owner used for per-tenant fairness. Jobs without a
// webhook share the empty key.
func (j *Job) TenantKey() string {
	if j.Webhook == nil {
		return ""
	}
	return j.Webhook.UserID
}

// Stats summarizes the delivery tables.
type Stats struct {
	Pending int64 `json:"pending"`
	Success int64 `json:"success"`
	Failed  int64 `json:"failed"`
	Queued  int64 `json:"queued"`
}

// ListOpts configures filtering and pagination for delivery listing.
type ListOpts struct {
	Offset int
	Limit  int
	Status *Status
}
