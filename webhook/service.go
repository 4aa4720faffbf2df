package webhook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fistfulayen/ubtrippin-sub001/catalog"
	"github.com/fistfulayen/ubtrippin-sub001/id"
	"github.com/fistfulayen/ubtrippin-sub001/internal/entity"
	"github.com/fistfulayen/ubtrippin-sub001/signature"
)

// Sealer encrypts signing secrets before they are persisted.
type Sealer interface {
	Encrypt(plaintext string) (string, error)
	Mask(plaintext string) string
}

// Service provides webhook management operations.
type Service struct {
	store   Store
	sealer  Sealer
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// NewService creates a new webhook service. A nil catalog means the default
// event catalog.
func NewService(store Store, sealer Sealer, cat *catalog.Catalog, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cat == nil {
		cat = catalog.Default()
	}
	return &Service{
		store:   store,
		sealer:  sealer,
		catalog: cat,
		logger:  logger,
	}
}

// Create registers a new webhook. The plaintext signing secret is returned
// once and never stored.
func (svc *Service) Create(ctx context.Context, in Input) (*Webhook, string, error) {
	if in.UserID == "" {
		return nil, "", &ValidationError{Field: "user_id", Message: "required"}
	}

	if err := ValidateURL(in.URL); err != nil {
		return nil, "", err
	}

	if err := svc.checkEvents(in.Events); err != nil {
		return nil, "", err
	}

	secret := in.Secret
	if secret == "" {
		secret = signature.GenerateSecret()
	} else if !signature.ValidSecret(secret) {
		return nil, "", &ValidationError{Field: "secret", Message: fmt.Sprintf("must be at least %d characters", signature.MinSecretLength)}
	}

	sealed, err := svc.sealer.Encrypt(secret)
	if err != nil {
		return nil, "", fmt.Errorf("webhook: seal secret: %w", err)
	}

	w := &Webhook{
		Entity:          entity.New(),
		ID:              id.NewWebhookID(),
		UserID:          in.UserID,
		URL:             in.URL,
		Description:     in.Description,
		SecretEncrypted: sealed,
		SecretMask:      svc.sealer.Mask(secret),
		Events:          dedupe(in.Events),
		Enabled:         true,
	}

	if err := svc.store.CreateWebhook(ctx, w); err != nil {
		return nil, "", err
	}

	svc.logger.InfoContext(ctx, "webhook created",
		"webhook_id", w.ID, "user_id", w.UserID, "events", len(w.Events))

	return w, secret, nil
}

// Get returns a webhook by ID.
func (svc *Service) Get(ctx context.Context, whID id.ID) (*Webhook, error) {
	return svc.store.GetWebhook(ctx, whID)
}

// Update modifies an existing webhook.
func (svc *Service) Update(ctx context.Context, whID id.ID, in UpdateInput) (*Webhook, error) {
	w, err := svc.store.GetWebhook(ctx, whID)
	if err != nil {
		return nil, err
	}

	if in.URL != nil {
		if err := ValidateURL(*in.URL); err != nil {
			return nil, err
		}
		w.URL = *in.URL
	}
	if in.Description != nil {
		w.Description = *in.Description
	}
	if in.Events != nil {
		if err := svc.checkEvents(*in.Events); err != nil {
			return nil, err
		}
		w.Events = dedupe(*in.Events)
	}
	if in.Enabled != nil {
		w.Enabled = *in.Enabled
	}

	w.Touch()
	if err := svc.store.UpdateWebhook(ctx, w); err != nil {
		return nil, err
	}

	return w, nil
}

// Delete removes a webhook and everything queued for it.
func (svc *Service) Delete(ctx context.Context, whID id.ID) error {
	if err := svc.store.DeleteWebhook(ctx, whID); err != nil {
		return err
	}
	svc.logger.InfoContext(ctx, "webhook deleted", "webhook_id", whID)
	return nil
}

// List returns the webhooks of a user.
func (svc *Service) List(ctx context.Context, userID string, opts ListOpts) ([]*Webhook, error) {
	return svc.store.ListWebhooks(ctx, userID, opts)
}

// SetEnabled pauses or resumes a webhook. Deliveries queued while a webhook
// is paused wait without consuming attempts.
func (svc *Service) SetEnabled(ctx context.Context, whID id.ID, enabled bool) error {
	return svc.store.SetEnabled(ctx, whID, enabled)
}

// RotateSecret replaces the signing secret and returns the new plaintext once.
// Queued deliveries are signed with the new secret.
func (svc *Service) RotateSecret(ctx context.Context, whID id.ID) (string, error) {
	w, err := svc.store.GetWebhook(ctx, whID)
	if err != nil {
		return "", err
	}

	secret := signature.GenerateSecret()
	sealed, err := svc.sealer.Encrypt(secret)
	if err != nil {
		return "", fmt.Errorf("webhook: seal secret: %w", err)
	}

	w.SecretEncrypted = sealed
	w.SecretMask = svc.sealer.Mask(secret)
	w.Touch()
	if err := svc.store.UpdateWebhook(ctx, w); err != nil {
		return "", err
	}

	svc.logger.InfoContext(ctx, "webhook secret rotated", "webhook_id", whID)

	return secret, nil
}

func (svc *Service) checkEvents(events []string) error {
	if err := svc.catalog.CheckSubscription(events); err != nil {
		return &ValidationError{Field: "events", Message: err.Error()}
	}
	return nil
}

func dedupe(events []string) []string {
	out := make([]string, 0, len(events))
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
