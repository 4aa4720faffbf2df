package postgres

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/fistfulayen/ubtrippin-sub001/delivery"
	"github.com/fistfulayen/ubtrippin-sub001/id"
	"github.com/fistfulayen/ubtrippin-sub001/internal/entity"
	"github.com/fistfulayen/ubtrippin-sub001/participant"
	"github.com/fistfulayen/ubtrippin-sub001/webhook"
)

// --- Webhook models ---

type webhookModel struct {
	grove.BaseModel `grove:"table:ubt_webhooks"`

	ID              string    `grove:"id,pk"`
	UserID          string    `grove:"user_id"`
	URL             string    `grove:"url"`
	Description     string    `grove:"description"`
	SecretEncrypted string    `grove:"secret_encrypted"`
	SecretMask      string    `grove:"secret_mask"`
	Events          []string  `grove:"events,array"`
	Enabled         bool      `grove:"enabled"`
	CreatedAt       time.Time `grove:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"`
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
		CreatedAt:       w.CreatedAt,
		UpdatedAt:       w.UpdatedAt,
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

// --- Delivery models ---

type deliveryModel struct {
	grove.BaseModel `grove:"table:ubt_webhook_deliveries"`

	ID               string     `grove:"id,pk"`
	WebhookID        string     `grove:"webhook_id"`
	Event            string     `grove:"event"`
	Payload          string     `grove:"payload"`
	Status           string     `grove:"status"`
	Attempts         int        `grove:"attempts"`
	LastAttemptAt    *time.Time `grove:"last_attempt_at"`
	LastResponseCode *int       `grove:"last_response_code"`
	LastResponseBody string     `grove:"last_response_body"`
	CreatedAt        time.Time  `grove:"created_at"`
	UpdatedAt        time.Time  `grove:"updated_at"`
}

func toDeliveryModel(d *delivery.Delivery) *deliveryModel {
	return &deliveryModel{
		ID:               d.ID.String(),
		WebhookID:        d.WebhookID.String(),
		Event:            d.Event,
		Payload:          string(d.Payload),
		Status:           string(d.Status),
		Attempts:         d.Attempts,
		LastAttemptAt:    d.LastAttemptAt,
		LastResponseCode: d.LastResponseCode,
		LastResponseBody: d.LastResponseBody,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
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

// --- Queue models ---

type queueModel struct {
	grove.BaseModel `grove:"table:ubt_webhook_queue"`

	ID           string    `grove:"id,pk"`
	WebhookID    string    `grove:"webhook_id"`
	DeliveryID   string    `grove:"delivery_id"`
	Attempt      int       `grove:"attempt"`
	DeliverAfter time.Time `grove:"deliver_after"`
	CreatedAt    time.Time `grove:"created_at"`
}

func toQueueModel(e *delivery.QueueEntry) *queueModel {
	return &queueModel{
		ID:           e.ID.String(),
		WebhookID:    e.WebhookID.String(),
		DeliveryID:   e.DeliveryID.String(),
		Attempt:      e.Attempt,
		DeliverAfter: e.DeliverAfter,
		CreatedAt:    e.CreatedAt,
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

// --- Collaborator models ---

type collaboratorModel struct {
	grove.BaseModel `grove:"table:trip_collaborators"`

	TripID    string    `grove:"trip_id,pk"`
	UserID    string    `grove:"user_id,pk"`
	Status    string    `grove:"status"`
	CreatedAt time.Time `grove:"created_at"`
}

func toCollaboratorModel(c *participant.Collaborator) *collaboratorModel {
	return &collaboratorModel{
		TripID:    c.TripID,
		UserID:    c.UserID,
		Status:    string(c.Status),
		CreatedAt: c.CreatedAt,
	}
}
