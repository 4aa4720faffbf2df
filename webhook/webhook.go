// Package webhook holds the customer-registered delivery targets and the
// service that manages them.
package webhook

import (
	"github.com/fistfulayen/ubtrippin-sub001/catalog"
	"github.com/fistfulayen/ubtrippin-sub001/id"
	"github.com/fistfulayen/ubtrippin-sub001/internal/entity"
)

// Webhook is a customer-owned URL subscribed to domain events.
type Webhook struct {
	entity.Entity

	// ID is the unique TypeID for this webhook.
	ID id.ID `json:"id"`

	// UserID is the owner of the webhook.
	UserID string `json:"user_id"`

	// URL is the https delivery target.
	URL string `json:"url"`

	// Description is a human-readable label.
	Description string `json:"description"`

	// SecretEncrypted is the vault ciphertext of the signing secret. Never serialized.
	SecretEncrypted string `json:"-"`

	// SecretMask is a display-safe hint of the signing secret.
	SecretMask string `json:"secret_mask"`

	// Events is the subscription set. Empty means every subscribable event.
	Events []string `json:"events"`

	// Enabled is false while the owner has paused deliveries.
	Enabled bool `json:"enabled"`
}

// Subscribes reports whether the webhook wants events of the given type.
func (w *Webhook) Subscribes(eventType string) bool {
	return catalog.Subscribed(w.Events, eventType)
}
