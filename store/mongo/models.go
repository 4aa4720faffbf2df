package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/fistfulayen/ubtrippin-sub001/delivery"
	"github.com/fistfulayen/ubtrippin-sub001/id"
	"github.com/fistfulayen/ubtrippin-sub001/internal/entity"
	"github.com/fistfulayen/ubtrippin-sub001/webhook"
)

// --- Webhook models ---

type webhookModel struct {
	grove.BaseModel `grove:"table:ubt_webhooks"`

	ID              string    `grove:"id,pk"            bson:"_id"`
	UserID          string    `grove:"user_id"          bson:"user_id"`
	URL             string    `grove:"url"              bson:"url"`
	Description     string    `grove:"description"      bson:"description"`
	SecretEncrypted string    `grove:"secret_encrypted" bson:"secret_encrypted"`
	SecretMask      string    `grove:"secret_mask"      bson:"secret_mask"`
	Events          []string  `grove:"events"           bson:"events"`
	Enabled         bool      `grove:"enabled"          bson:"enabled"`
	CreatedAt       time.Time `grove:"created_at"       bson:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"       bson:"updated_at"`
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

// deliveryModel keeps the payload as a string so the signed bytes are not
// re-encoded by BSON.
type deliveryModel struct {
	grove.BaseModel `grove:"table:ubt_webhook_deliveries"`

	ID               string     `grove:"id,pk"              bson:"_id"`
	WebhookID        string     `grove:"webhook_id"         bson:"webhook_id"`
	Event            string     `grove:"event"              bson:"event"`
	Payload          string     `grove:"payload"            bson:"payload"`
	Status           string     `grove:"status"             bson:"status"`
	Attempts         int        `grove:"attempts"           bson:"attempts"`
	LastAttemptAt    *time.Time `grove:"last_attempt_at"    bson:"last_attempt_at,omitempty"`
	LastResponseCode *int       `grove:"last_response_code" bson:"last_response_code,omitempty"`
	LastResponseBody string     `grove:"last_response_body" bson:"last_response_body"`
	CreatedAt        time.Time  `grove:"created_at"         bson:"created_at"`
	UpdatedAt        time.Time  `grove:"updated_at"         bson:"updated_at"`
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

	ID           string    `grove:"id,pk"         bson:"_id"`
	WebhookID    string    `grove:"webhook_id"    bson:"webhook_id"`
	DeliveryID   string    `grove:"delivery_id"   bson:"delivery_id"`
	Attempt      int       `grove:"attempt"       bson:"attempt"`
	DeliverAfter time.Time `grove:"deliver_after" bson:"deliver_after"`
	CreatedAt    time.Time `grove:"created_at"    bson:"created_at"`
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

	ID        string    `grove:"id,pk"      bson:"_id"` // trip_id/user_id
	TripID    string    `grove:"trip_id"    bson:"trip_id"`
	UserID    string    `grove:"user_id"    bson:"user_id"`
	Status    string    `grove:"status"     bson:"status"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
}
