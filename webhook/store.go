package webhook

import (
	"context"

	"github.com/fistfulayen/ubtrippin-sub001/id"
)

// Store defines the persistence contract for webhooks.
type Store interface {
	// CreateWebhook persists a new webhook.
	CreateWebhook(ctx context.Context, w *Webhook) error

	// GetWebhook returns a webhook by ID.
	GetWebhook(ctx context.Context, whID id.ID) (*Webhook, error)

	// UpdateWebhook modifies an existing webhook.
	UpdateWebhook(ctx context.Context, w *Webhook) error

	// DeleteWebhook removes a webhook together with its deliveries and queue entries.
	DeleteWebhook(ctx context.Context, whID id.ID) error

	// ListWebhooks returns the webhooks owned by a user, newest first.
	ListWebhooks(ctx context.Context, userID string, opts ListOpts) ([]*Webhook, error)

	// ListEnabledByUsers returns the enabled webhooks of any of the given users.
	// This is the dispatch hot path.
	ListEnabledByUsers(ctx context.Context, userIDs []string) ([]*Webhook, error)

	// SetEnabled pauses or resumes a webhook without deleting it.
	SetEnabled(ctx context.Context, whID id.ID, enabled bool) error
}
