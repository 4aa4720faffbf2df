package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fistfulayen/ubtrippin-sub001/id"
)

// EnvelopeVersion is the payload format version sent to receivers.
const EnvelopeVersion = "1"

// TimestampLayout renders envelope timestamps as RFC 3339 UTC with
// millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Envelope is the JSON body POSTed to a webhook. Field order is the wire order.
type Envelope struct {
	Version    string `json:"version"`
	Event      string `json:"event"`
	WebhookID  string `json:"webhook_id"`
	DeliveryID string `json:"delivery_id"`
	Timestamp  string `json:"timestamp"`
	Data       any    `json:"data"`
}

// NewEnvelope builds an envelope for one webhook's copy of an event.
func NewEnvelope(eventType string, webhookID, deliveryID id.ID, at time.Time, data any) Envelope {
	if data == nil {
		data = map[string]any{}
	}
	return Envelope{
		Version:    EnvelopeVersion,
		Event:      eventType,
		WebhookID:  webhookID.String(),
		DeliveryID: deliveryID.String(),
		Timestamp:  at.UTC().Format(TimestampLayout),
		Data:       data,
	}
}

// Marshal serializes the envelope once. The returned bytes are stored on the
// delivery and sent and signed verbatim on every attempt.
func (e Envelope) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return nil, fmt.Errorf("event: marshal envelope: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
