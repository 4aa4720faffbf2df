package sqlite

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/fistfulayen/ubtrippin-sub001/delivery"
	"github.com/fistfulayen/ubtrippin-sub001/id"
	"github.com/fistfulayen/ubtrippin-sub001/internal/entity"
	"github.com/fistfulayen/ubtrippin-sub001/participant"
	"github.com/fistfulayen/ubtrippin-sub001/webhook"
)

// timestampLayout is fixed width so that text comparison in SQLite orders
// values chronologically.
const timestampLayout = "2006-01-02 15:04:05.000000000"

// timestamp stores a time as UTC text in timestampLayout. The driver hands
// back TEXT columns as strings, and DATETIME columns as time.Time only when
// the result column keeps its declared type, which RETURNING does not.
type timestamp struct {
	time.Time
}

func newTimestamp(t time.Time) timestamp { return timestamp{Time: t.UTC()} }

func newTimestampPtr(t *time.Time) *timestamp {
	if t == nil {
		return nil
	}
	ts := newTimestamp(*t)
	return &ts
}

// Value implements driver.Valuer.
func (t timestamp) Value() (driver.Value, error) {
	return t.UTC().Format(timestampLayout), nil
}

// Scan implements sql.Scanner.
func (t *timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("ubtrippin/sqlite: cannot scan %T into timestamp", src)
	}
}

func (t *timestamp) parse(s string) error {
	for _, layout := range []string{timestampLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("ubtrippin/sqlite: invalid timestamp %q", s)
}

func (t *timestamp) ptr() *time.Time {
	if t == nil {
		return nil
	}
	v := t.Time
	return &v
}

// --- Webhook models ---

type webhookModel struct {
	grove.BaseModel `grove:"table:ubt_webhooks"`

	ID              string    `grove:"id,pk"`
	UserID          string    `grove:"user_id"`
	URL             string    `grove:"url"`
	Description     string    `grove:"description"`
	SecretEncrypted string    `grove:"secret_encrypted"`
	SecretMask      string    `grove:"secret_mask"`
	Events          string    `grove:"events"`
	Enabled         bool      `grove:"enabled"`
	CreatedAt       timestamp `grove:"created_at"`
	UpdatedAt       timestamp `grove:"updated_at"`
}

func toWebhookModel(w *webhook.Webhook) *webhookModel {
	events := w.Events
	if events == nil {
		events = []string{}
	}
	eventsJSON, _ := json.Marshal(events) //nolint:errcheck // []string always encodes
	return &webhookModel{
		ID:              w.ID.String(),
		UserID:          w.UserID,
		URL:             w.URL,
		Description:     w.Description,
		SecretEncrypted: w.SecretEncrypted,
		SecretMask:      w.SecretMask,
		Events:          string(eventsJSON),
		Enabled:         w.Enabled,
		CreatedAt:       newTimestamp(w.CreatedAt),
		UpdatedAt:       newTimestamp(w.UpdatedAt),
	}
}

func fromWebhookModel(m *webhookModel) (*webhook.Webhook, error) {
	whID, err := id.ParseWebhookID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse webhook ID %q: %w", m.ID, err)
	}
	var events []string
	if m.Events != "" {
		if err := json.Unmarshal([]byte(m.Events), &events); err != nil {
			return nil, fmt.Errorf("decode events of webhook %q: %w", m.ID, err)
		}
	}
	return &webhook.Webhook{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt.Time,
			UpdatedAt: m.UpdatedAt.Time,
		},
		ID:              whID,
		UserID:          m.UserID,
		URL:             m.URL,
		Description:     m.Description,
		SecretEncrypted: m.SecretEncrypted,
		SecretMask:      m.SecretMask,
		Events:          events,
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
	LastAttemptAt    *timestamp `grove:"last_attempt_at"`
	LastResponseCode *int       `grove:"last_response_code"`
	LastResponseBody string     `grove:"last_response_body"`
	CreatedAt        timestamp  `grove:"created_at"`
	UpdatedAt        timestamp  `grove:"updated_at"`
}

func toDeliveryModel(d *delivery.Delivery) *deliveryModel {
	return &deliveryModel{
		ID:               d.ID.String(),
		WebhookID:        d.WebhookID.String(),
		Event:            d.Event,
		Payload:          string(d.Payload),
		Status:           string(d.Status),
		Attempts:         d.Attempts,
		LastAttemptAt:    newTimestampPtr(d.LastAttemptAt),
		LastResponseCode: d.LastResponseCode,
		LastResponseBody: d.LastResponseBody,
		CreatedAt:        newTimestamp(d.CreatedAt),
		UpdatedAt:        newTimestamp(d.UpdatedAt),
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
			CreatedAt: m.CreatedAt.Time,
			UpdatedAt: m.UpdatedAt.Time,
		},
		ID:               delID,
		WebhookID:        whID,
		Event:            m.Event,
		Payload:          []byte(m.Payload),
		Status:           delivery.Status(m.Status),
		Attempts:         m.Attempts,
		LastAttemptAt:    m.LastAttemptAt.ptr(),
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
	DeliverAfter timestamp `grove:"deliver_after"`
	CreatedAt    timestamp `grove:"created_at"`
}

func toQueueModel(e *delivery.QueueEntry) *queueModel {
	return &queueModel{
		ID:           e.ID.String(),
		WebhookID:    e.WebhookID.String(),
		DeliveryID:   e.DeliveryID.String(),
		Attempt:      e.Attempt,
		DeliverAfter: newTimestamp(e.DeliverAfter),
		CreatedAt:    newTimestamp(e.CreatedAt),
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
		DeliverAfter: m.DeliverAfter.Time,
		CreatedAt:    m.CreatedAt.Time,
	}, nil
}

// --- Collaborator models ---

type collaboratorModel struct {
	grove.BaseModel `grove:"table:trip_collaborators"`

	TripID    string    `grove:"trip_id,pk"`
	UserID    string    `grove:"user_id,pk"`
	Status    string    `grove:"status"`
	CreatedAt timestamp `grove:"created_at"`
}

func toCollaboratorModel(c *participant.Collaborator) *collaboratorModel {
	return &collaboratorModel{
		TripID:    c.TripID,
		UserID:    c.UserID,
		Status:    string(c.Status),
		CreatedAt: newTimestamp(c.CreatedAt),
	}
}
