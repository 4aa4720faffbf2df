package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	ubtrippin "github.com/fistfulayen/ubtrippin-sub001"
	"github.com/fistfulayen/ubtrippin-sub001/id"
	"github.com/fistfulayen/ubtrippin-sub001/internal/entity"
	"github.com/fistfulayen/ubtrippin-sub001/webhook"
)

// webhookModel is the JSON representation stored in Redis.
type webhookModel struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	URL             string    `json:"url"`
	Description     string    `json:"description"`
	SecretEncrypted string    `json:"secret_encrypted"`
	SecretMask      string    `json:"secret_mask"`
	Events          []string  `json:"events"`
	Enabled         bool      `json:"enabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toWebhookModel(w *webhook.Webhook) *webhookModel {
	return &webhookModel{
		ID:              w.ID.String(),
		UserID:          w.UserID,
		URL:             w.URL,
		Description:     w.Description,
		SecretEncrypted: w.SecretEncrypted,
		SecretMask:      w.SecretMask,
		Events:          w.Events,
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

func (s *Store) CreateWebhook(ctx context.Context, w *webhook.Webhook) error {
	m := toWebhookModel(w)
	if err := s.setEntity(ctx, entityKey(prefixWebhook, m.ID), m); err != nil {
		return fmt.Errorf("ubtrippin/redis: create webhook: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zWebhookUser+m.UserID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	if m.Enabled {
		pipe.SAdd(ctx, enabledSetKey(m.UserID), m.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ubtrippin/redis: create webhook indexes: %w", err)
	}
	return nil
}

func (s *Store) GetWebhook(ctx context.Context, whID id.ID) (*webhook.Webhook, error) {
	m, err := s.getWebhookModel(ctx, whID.String())
	if err != nil {
		return nil, err
	}
	return fromWebhookModel(m)
}

func (s *Store) getWebhookModel(ctx context.Context, whID string) (*webhookModel, error) {
	var m webhookModel
	if err := s.getEntity(ctx, entityKey(prefixWebhook, whID), &m); err != nil {
		if isNotFound(err) {
			return nil, ubtrippin.ErrWebhookNotFound
		}
		return nil, fmt.Errorf("ubtrippin/redis: get webhook: %w", err)
	}
	return &m, nil
}

func (s *Store) UpdateWebhook(ctx context.Context, w *webhook.Webhook) error {
	if _, err := s.getWebhookModel(ctx, w.ID.String()); err != nil {
		return err
	}

	m := toWebhookModel(w)
	m.UpdatedAt = now()
	if err := s.setEntity(ctx, entityKey(prefixWebhook, m.ID), m); err != nil {
		return fmt.Errorf("ubtrippin/redis: update webhook: %w", err)
	}
	return s.syncEnabled(ctx, m)
}

// DeleteWebhook removes the webhook, its deliveries and its queue entries
// in one MULTI/EXEC.
func (s *Store) DeleteWebhook(ctx context.Context, whID id.ID) error {
	m, err := s.getWebhookModel(ctx, whID.String())
	if err != nil {
		return err
	}

	delIDs, err := s.rdb.ZRange(ctx, zDeliveryWebhook+m.ID, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("ubtrippin/redis: delete webhook deliveries: %w", err)
	}

	queueIDs := make([]string, 0, len(delIDs))
	for _, delID := range delIDs {
		ids, err := s.rdb.SMembers(ctx, sQueueDelivery+delID).Result()
		if err != nil {
			return fmt.Errorf("ubtrippin/redis: delete webhook queue: %w", err)
		}
		queueIDs = append(queueIDs, ids...)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, entityKey(prefixWebhook, m.ID), zDeliveryWebhook+m.ID)
		pipe.ZRem(ctx, zWebhookUser+m.UserID, m.ID)
		pipe.SRem(ctx, enabledSetKey(m.UserID), m.ID)
		for _, delID := range delIDs {
			pipe.Del(ctx, entityKey(prefixDelivery, delID), sQueueDelivery+delID)
			pipe.ZRem(ctx, zDeliveryAll, delID)
		}
		for _, qID := range queueIDs {
			pipe.Del(ctx, entityKey(prefixQueue, qID))
			pipe.ZRem(ctx, zQueueDue, qID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ubtrippin/redis: delete webhook: %w", err)
	}
	return nil
}

func (s *Store) ListWebhooks(ctx context.Context, userID string, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	ids, err := s.rdb.ZRevRange(ctx, zWebhookUser+userID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("ubtrippin/redis: list webhooks: %w", err)
	}

	all, err := s.loadWebhooks(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]*webhook.Webhook, 0, len(all))
	for _, w := range all {
		if opts.Enabled != nil && w.Enabled != *opts.Enabled {
			continue
		}
		result = append(result, w)
	}
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListEnabledByUsers(ctx context.Context, userIDs []string) ([]*webhook.Webhook, error) {
	var ids []string
	for _, u := range userIDs {
		members, err := s.rdb.SMembers(ctx, enabledSetKey(u)).Result()
		if err != nil {
			return nil, fmt.Errorf("ubtrippin/redis: list enabled webhooks: %w", err)
		}
		ids = append(ids, members...)
	}

	ws, err := s.loadWebhooks(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := ws[:0]
	for _, w := range ws {
		if w.Enabled {
			result = append(result, w)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) SetEnabled(ctx context.Context, whID id.ID, enabled bool) error {
	m, err := s.getWebhookModel(ctx, whID.String())
	if err != nil {
		return err
	}

	m.Enabled = enabled
	m.UpdatedAt = now()
	if err := s.setEntity(ctx, entityKey(prefixWebhook, m.ID), m); err != nil {
		return fmt.Errorf("ubtrippin/redis: set enabled: %w", err)
	}
	return s.syncEnabled(ctx, m)
}

// syncEnabled keeps the per-user enabled set in step with the entity.
func (s *Store) syncEnabled(ctx context.Context, m *webhookModel) error {
	var err error
	if m.Enabled {
		err = s.rdb.SAdd(ctx, enabledSetKey(m.UserID), m.ID).Err()
	} else {
		err = s.rdb.SRem(ctx, enabledSetKey(m.UserID), m.ID).Err()
	}
	if err != nil {
		return fmt.Errorf("ubtrippin/redis: enabled index: %w", err)
	}
	return nil
}

// loadWebhooks fetches webhooks by ID, preserving order and skipping
// missing keys.
func (s *Store) loadWebhooks(ctx context.Context, ids []string) ([]*webhook.Webhook, error) {
	keys := make([]string, len(ids))
	for i, whID := range ids {
		keys[i] = entityKey(prefixWebhook, whID)
	}

	result := make([]*webhook.Webhook, 0, len(ids))
	err := s.mgetEntities(ctx, keys, func(_ int, raw []byte) error {
		var m webhookModel
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		w, err := fromWebhookModel(&m)
		if err != nil {
			return err
		}
		result = append(result, w)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ubtrippin/redis: load webhooks: %w", err)
	}
	return result, nil
}
