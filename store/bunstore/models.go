package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/fistfulayen/ubtrippin-sub001/delivery"
	"github.com/fistfulayen/ubtrippin-sub001/id"
	"github.com/fistfulayen/ubtrippin-sub001/internal/entity"
	"github.com/fistfulayen/ubtrippin-sub001/participant"
	"github.com/fistfulayen/ubtrippin-sub001/webhook"
)

type webhookModel struct {
	bun.BaseModel `bun:"table:ubt_webhooks,alias:w"`

	ID              string    `bun:"id,pk"`
	UserID          string    `bun:"user_id,notnull"`
	URL             string    `bun:"url,notnull"`
	Description     string    `bun:"description,notnull"`
	SecretEncrypted string    `bun:"secret_encrypted,notnull"`
	SecretMask      string    `bun:"secret_mask,notnull"`
	Events          []string  `bun:"events,notnull"`
	Enabled         bool      `bun:"enabled,notnull"`
	CreatedAt       time.Time `bun:"created_at,notnull"`
	UpdatedAt       time.Time `bun:"updated_at,notnull"`
}

// deliveryModel keeps the payload as text so the signed bytes survive the
// round trip unchanged.
type deliveryModel struct {
	bun.BaseModel `bun:"table:ubt_webhook_deliveries,alias:d"`

	ID               string     `bun:"id,pk"`
	WebhookID        string     `bun:"webhook_id,notnull"`
	Event            string     `bun:"event,notnull"`
	Payload          string     `bun:"payload,notnull"`
	Status           string     `bun:"status,notnull"`
	Attempts         int        `bun:"attempts,notnull"`
	LastAttemptAt    *time.Time `bun:"last_attempt_at"`
	LastResponseCode *int       `bun:"last_response_code"`
	LastResponseBody string     `bun:"last_response_body,notnull"`
	CreatedAt        time.Time  `bun:"created_at,notnull"`
	UpdatedAt        time.Time  `bun:"updated_at,notnull"`
}

type queueModel struct {
	bun.BaseModel `bun:"table:ubt_webhook_queue,alias:q"`

	ID           string    `bun:"id,pk"`
	WebhookID    string    `bun:"webhook_id,notnull"`
	DeliveryID   string    `bun:"delivery_id,notnull"`
	Attempt      int       `bun:"attempt,notnull"`
	DeliverAfter time.Time `bun:"deliver_after,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
}

type collaboratorModel struct {
	bun.BaseModel `bun:"table:trip_collaborators,alias:tc"`

	TripID    string    `bun:"trip_id,pk"`
	UserID    string    `bun:"user_id,pk"`
	Status    string    `bun:"status,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

// statusCount is one row of the per-status aggregate.
type statusCount struct {
	Status string `bun:"status"`
	N      int64  `bun:"n"`
}

func toWebhookModel(w *webhook.Webhook) *webhookModel {
	events := w.Events
	if events == nil {
		events = []string{}
	}
	return &webhookModel{
		ID:              w.ID.String(),
		UserID:          w.UserID,
		URL:             w.URL,
		Description:     w.Description,
		SecretEncrypted: w.SecretEncrypted,
		SecretMask:      w.SecretMask,
		Events:          events,
		Enabled:         w.Enabled,
		CreatedAt:       w.CreatedAt.UTC(),
		UpdatedAt:       w.UpdatedAt.UTC(),
	}
}

func fromWebhookModel(m *webhookModel) (*webhook.Webhook, error) {
	whID, err := id.ParseWebhookID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse webhook ID %q: %w", m.ID, err)
	}
	return &webhook.Webhook{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:              whID,
		UserID:          m.UserID,
		URL:             m.URL,
		Description:     m.Description,
		SecretEncrypted: m.SecretEncrypted,
		SecretMask:      m.SecretMask,
		Events:          m.Events,
		Enabled:         m.Enabled,
	}, nil
}

func toDeliveryModel(d *delivery.Delivery) *deliveryModel {
	var lastAttempt *time.Time
	if d.LastAttemptAt != nil {
		t := d.LastAttemptAt.UTC()
		lastAttempt = &t
	}
	return &deliveryModel{
		ID:               d.ID.String(),
		WebhookID:        d.WebhookID.String(),
		Event:            d.Event,
		Payload:          string(d.Payload),
		Status:           string(d.Status),
		Attempts:         d.Attempts,
		LastAttemptAt:    lastAttempt,
		LastResponseCode: d.LastResponseCode,
		LastResponseBody: d.LastResponseBody,
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
	}
}

func fromDeliveryModel(m *deliveryModel) (*delivery.Delivery, error) {
	delID, err := id.ParseDeliveryID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse delivery ID %q: %w", m.ID, err)
	}
	whID, err := id.ParseWebhookID(m.WebhookID)
	if err != nil {
		return nil, fmt.Errorf("parse webhook ID %q: %w", m.WebhookID, err)
	}
	return &delivery.Delivery{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:               delID,
		WebhookID:        whID,
		Event:            m.Event,
		Payload:          []byte(m.Payload),
		Status:           delivery.Status(m.Status),
		Attempts:         m.Attempts,
		LastAttemptAt:    m.LastAttemptAt,
		LastResponseCode: m.LastResponseCode,
		LastResponseBody: m.LastResponseBody,
	}, nil
}

func toQueueModel(e *delivery.QueueEntry) *queueModel {
	return &queueModel{
		ID:           e.ID.String(),
		WebhookID:    e.WebhookID.String(),
		DeliveryID:   e.DeliveryID.String(),
		Attempt:      e.Attempt,
		DeliverAfter: e.DeliverAfter.UTC(),
		CreatedAt:    e.CreatedAt.UTC(),
	}
}

func fromQueueModel(m *queueModel) (*delivery.QueueEntry, error) {
	qID, err := id.ParseQueueEntryID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse queue entry ID %q: %w", m.ID, err)
	}
	whID, err := id.ParseWebhookID(m.WebhookID)
	if err != nil {
		return nil, fmt.Errorf("parse webhook ID %q: %w", m.WebhookID, err)
	}
	delID, err := id.ParseDeliveryID(m.DeliveryID)
	if err != nil {
		return nil, fmt.Errorf("parse delivery ID %q: %w", m.DeliveryID, err)
	}
	return &delivery.QueueEntry{
		ID:           qID,
		WebhookID:    whID,
		DeliveryID:   delID,
		Attempt:      m.Attempt,
		DeliverAfter: m.DeliverAfter,
		CreatedAt:    m.CreatedAt,
	}, nil
}

func toCollaboratorModel(c *participant.Collaborator) *collaboratorModel {
	return &collaboratorModel{
		TripID:    c.TripID,
		UserID:    c.UserID,
		Status:    string(c.Status),
		CreatedAt: c.CreatedAt.UTC(),
	}
}
