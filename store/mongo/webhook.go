package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	ubtrippin "github.com/fistfulayen/ubtrippin-sub001"
	"github.com/fistfulayen/ubtrippin-sub001/id"
	"github.com/fistfulayen/ubtrippin-sub001/webhook"
)

// CreateWebhook persists a new webhook.
func (s *Store) CreateWebhook(ctx context.Context, w *webhook.Webhook) error {
	m := toWebhookModel(w)

	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("ubtrippin/mongo: create webhook: %w", err)
	}

	return nil
}

// GetWebhook returns a webhook by ID.
func (s *Store) GetWebhook(ctx context.Context, whID id.ID) (*webhook.Webhook, error) {
	var m webhookModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": whID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, ubtrippin.ErrWebhookNotFound
		}

		return nil, fmt.Errorf("ubtrippin/mongo: get webhook: %w", err)
	}

	return fromWebhookModel(&m)
}

// UpdateWebhook modifies an existing webhook.
func (s *Store) UpdateWebhook(ctx context.Context, w *webhook.Webhook) error {
	m := toWebhookModel(w)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ubtrippin/mongo: update webhook: %w", err)
	}

	if res.MatchedCount() == 0 {
		return ubtrippin.ErrWebhookNotFound
	}

	return nil
}

// DeleteWebhook removes a webhook, then its queue entries and deliveries.
func (s *Store) DeleteWebhook(ctx context.Context, whID id.ID) error {
	res, err := s.mdb.NewDelete((*webhookModel)(nil)).
		Filter(bson.M{"_id": whID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ubtrippin/mongo: delete webhook: %w", err)
	}

	if res.DeletedCount() == 0 {
		return ubtrippin.ErrWebhookNotFound
	}

	if _, err := s.mdb.NewDelete((*queueModel)(nil)).
		Many().
		Filter(bson.M{"webhook_id": whID.String()}).
		Exec(ctx); err != nil {
		return fmt.Errorf("ubtrippin/mongo: delete webhook queue: %w", err)
	}

	if _, err := s.mdb.NewDelete((*deliveryModel)(nil)).
		Many().
		Filter(bson.M{"webhook_id": whID.String()}).
		Exec(ctx); err != nil {
		return fmt.Errorf("ubtrippin/mongo: delete webhook deliveries: %w", err)
	}

	return nil
}

// ListWebhooks returns the webhooks of a user, newest first.
func (s *Store) ListWebhooks(ctx context.Context, userID string, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	var models []webhookModel

	filter := bson.M{"user_id": userID}
	if opts.Enabled != nil {
		filter["enabled"] = *opts.Enabled
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}

	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("ubtrippin/mongo: list webhooks: %w", err)
	}

	return fromWebhookModels(models)
}

// ListEnabledByUsers returns the enabled webhooks of any of the given users.
func (s *Store) ListEnabledByUsers(ctx context.Context, userIDs []string) ([]*webhook.Webhook, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	var models []webhookModel

	if err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"user_id": bson.M{"$in": userIDs},
			"enabled": true,
		}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("ubtrippin/mongo: list enabled webhooks: %w", err)
	}

	return fromWebhookModels(models)
}

// SetEnabled pauses or resumes a webhook.
func (s *Store) SetEnabled(ctx context.Context, whID id.ID, enabled bool) error {
	res, err := s.mdb.NewUpdate((*webhookModel)(nil)).
		Filter(bson.M{"_id": whID.String()}).
		Set("enabled", enabled).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ubtrippin/mongo: set enabled: %w", err)
	}

	if res.MatchedCount() == 0 {
		return ubtrippin.ErrWebhookNotFound
	}

	return nil
}

func fromWebhookModels(models []webhookModel) ([]*webhook.Webhook, error) {
	result := make([]*webhook.Webhook, 0, len(models))

	for i := range models {
		w, err := fromWebhookModel(&models[i])
		if err != nil {
			return nil, err
		}

		result = append(result, w)
	}

	return result, nil
}
