package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	ubtrippin "github.com/fistfulayen/ubtrippin-sub001"
	"github.com/fistfulayen/ubtrippin-sub001/delivery"
	"github.com/fistfulayen/ubtrippin-sub001/id"
	"github.com/fistfulayen/ubtrippin-sub001/internal/entity"
	"github.com/fistfulayen/ubtrippin-sub001/webhook"
)

// deliveryModel is the JSON representation stored in Redis. Payload is a
// string so the signed bytes round-trip untouched.
type deliveryModel struct {
	ID               string     `json:"id"`
	WebhookID        string     `json:"webhook_id"`
	Event            string     `json:"event"`
	Payload          string     `json:"payload"`
	Status           string     `json:"status"`
	Attempts         int        `json:"attempts"`
	LastAttemptAt    *time.Time `json:"last_attempt_at,omitempty"`
	LastResponseCode *int       `json:"last_response_code,omitempty"`
	LastResponseBody string     `json:"last_response_body"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
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

// queueModel is the JSON representation of a queue entry.
type queueModel struct {
	ID           string    `json:"id"`
	WebhookID    string    `json:"webhook_id"`
	DeliveryID   string    `json:"delivery_id"`
	Attempt      int       `json:"attempt"`
	DeliverAfter time.Time `json:"deliver_after"`
	CreatedAt    time.Time `json:"created_at"`
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

// claimScript removes one queue entry and returns its body. Only the caller
// whose ZREM succeeds gets the entry.
// KEYS[1] = ubt:z:q:due
// KEYS[2] = ubt:q:<id>
// ARGV[1] = queue entry ID
// ARGV[2] = per-delivery queue set prefix
var claimScript = goredis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then return false end
local body = redis.call('GET', KEYS[2])
redis.call('DEL', KEYS[2])
if not body then return false end
local entry = cjson.decode(body)
redis.call('SREM', ARGV[2] .. entry['delivery_id'], ARGV[1])
return body
`)

// addEntry queues the writes for one queue entry on a pipeline.
func addEntry(ctx context.Context, pipe goredis.Pipeliner, m *queueModel) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	pipe.Set(ctx, entityKey(prefixQueue, m.ID), raw, 0)
	pipe.ZAdd(ctx, zQueueDue, goredis.Z{Score: scoreFromTime(m.DeliverAfter), Member: m.ID})
	pipe.SAdd(ctx, sQueueDelivery+m.DeliveryID, m.ID)
	return nil
}

// EnqueueBatch writes deliveries, queue entries and their indexes in one
// MULTI/EXEC.
func (s *Store) EnqueueBatch(ctx context.Context, ds []*delivery.Delivery, entries []*delivery.QueueEntry) error {
	if len(ds) == 0 && len(entries) == 0 {
		return nil
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, d := range ds {
			m := toDeliveryModel(d)
			raw, err := json.Marshal(m)
			if err != nil {
				return err
			}
			pipe.Set(ctx, entityKey(prefixDelivery, m.ID), raw, 0)
			pipe.ZAdd(ctx, zDeliveryAll, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
			pipe.ZAdd(ctx, zDeliveryWebhook+m.WebhookID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
		}
		for _, e := range entries {
			if err := addEntry(ctx, pipe, toQueueModel(e)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ubtrippin/redis: enqueue batch: %w", err)
	}
	return nil
}

func (s *Store) DueEntries(ctx context.Context, at time.Time, limit int) ([]*delivery.Job, error) {
	rng := &goredis.ZRangeBy{Min: "-inf", Max: scoreArg(at)}
	if limit > 0 {
		rng.Count = int64(limit)
	}
	ids, err := s.rdb.ZRangeByScore(ctx, zQueueDue, rng).Result()
	if err != nil {
		return nil, fmt.Errorf("ubtrippin/redis: due entries: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, qID := range ids {
		keys[i] = entityKey(prefixQueue, qID)
	}

	var rows []*queueModel
	err = s.mgetEntities(ctx, keys, func(_ int, raw []byte) error {
		var m queueModel
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		rows = append(rows, &m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ubtrippin/redis: due entries load: %w", err)
	}

	whKeys := make([]string, len(rows))
	delKeys := make([]string, len(rows))
	for i, m := range rows {
		whKeys[i] = entityKey(prefixWebhook, m.WebhookID)
		delKeys[i] = entityKey(prefixDelivery, m.DeliveryID)
	}

	webhooks := make(map[string]*webhook.Webhook, len(rows))
	err = s.mgetEntities(ctx, whKeys, func(_ int, raw []byte) error {
		var m webhookModel
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		w, err := fromWebhookModel(&m)
		if err != nil {
			return err
		}
		webhooks[m.ID] = w
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ubtrippin/redis: due entries webhooks: %w", err)
	}

	deliveries := make(map[string]*delivery.Delivery, len(rows))
	err = s.mgetEntities(ctx, delKeys, func(_ int, raw []byte) error {
		var m deliveryModel
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		d, err := fromDeliveryModel(&m)
		if err != nil {
			return err
		}
		deliveries[m.ID] = d
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ubtrippin/redis: due entries deliveries: %w", err)
	}

	jobs := make([]*delivery.Job, 0, len(rows))
	for _, m := range rows {
		e, err := fromQueueModel(m)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, &delivery.Job{
			Entry:    e,
			Webhook:  webhooks[m.WebhookID],
			Delivery: deliveries[m.DeliveryID],
		})
	}
	return jobs, nil
}

func (s *Store) Claim(ctx context.Context, entryID id.ID) (*delivery.QueueEntry, bool, error) {
	qID := entryID.String()
	body, err := claimScript.Run(ctx, s.rdb,
		[]string{zQueueDue, entityKey(prefixQueue, qID)},
		qID, sQueueDelivery,
	).Text()
	if err != nil {
		if isRedisNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("ubtrippin/redis: claim: %w", err)
	}

	var m queueModel
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		return nil, false, fmt.Errorf("ubtrippin/redis: claim decode: %w", err)
	}
	e, err := fromQueueModel(&m)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

func (s *Store) Requeue(ctx context.Context, e *delivery.QueueEntry) error {
	n, err := s.rdb.Exists(ctx, entityKey(prefixDelivery, e.DeliveryID.String())).Result()
	if err != nil {
		return fmt.Errorf("ubtrippin/redis: requeue: %w", err)
	}
	if n == 0 {
		return ubtrippin.ErrDeliveryNotFound
	}

	pipe := s.rdb.TxPipeline()
	if err := addEntry(ctx, pipe, toQueueModel(e)); err != nil {
		return fmt.Errorf("ubtrippin/redis: requeue marshal: %w", err)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ubtrippin/redis: requeue: %w", err)
	}
	return nil
}

// Reschedule writes the delivery and its follow-up entry in one MULTI/EXEC.
func (s *Store) Reschedule(ctx context.Context, d *delivery.Delivery, follow *delivery.QueueEntry) error {
	key := entityKey(prefixDelivery, d.ID.String())
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("ubtrippin/redis: reschedule: %w", err)
	}
	if n == 0 {
		return ubtrippin.ErrDeliveryNotFound
	}

	m := toDeliveryModel(d)
	m.UpdatedAt = now()
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("ubtrippin/redis: reschedule marshal: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, key, raw, 0)
		return addEntry(ctx, pipe, toQueueModel(follow))
	})
	if err != nil {
		return fmt.Errorf("ubtrippin/redis: reschedule: %w", err)
	}
	return nil
}

func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	key := entityKey(prefixDelivery, d.ID.String())
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("ubtrippin/redis: update delivery: %w", err)
	}
	if n == 0 {
		return ubtrippin.ErrDeliveryNotFound
	}

	m := toDeliveryModel(d)
	m.UpdatedAt = now()
	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("ubtrippin/redis: update delivery: %w", err)
	}
	return nil
}

func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	var m deliveryModel
	if err := s.getEntity(ctx, entityKey(prefixDelivery, delID.String()), &m); err != nil {
		if isNotFound(err) {
			return nil, ubtrippin.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("ubtrippin/redis: get delivery: %w", err)
	}
	return fromDeliveryModel(&m)
}

func (s *Store) ListByWebhook(ctx context.Context, whID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	ids, err := s.rdb.ZRevRange(ctx, zDeliveryWebhook+whID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("ubtrippin/redis: list deliveries: %w", err)
	}

	result, err := s.loadDeliveries(ctx, ids, func(d *delivery.Delivery) bool {
		return opts.Status == nil || d.Status == *opts.Status
	})
	if err != nil {
		return nil, err
	}
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) CountQueued(ctx context.Context) (int64, error) {
	count, err := s.rdb.ZCard(ctx, zQueueDue).Result()
	if err != nil {
		return 0, fmt.Errorf("ubtrippin/redis: count queued: %w", err)
	}
	return count, nil
}

// CountByStatus scans every delivery. Redis keeps no per-status index; the
// figure serves the stats endpoint only.
func (s *Store) CountByStatus(ctx context.Context) (map[delivery.Status]int64, error) {
	ids, err := s.rdb.ZRange(ctx, zDeliveryAll, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("ubtrippin/redis: count by status: %w", err)
	}

	counts := make(map[delivery.Status]int64, 3)
	_, err = s.loadDeliveries(ctx, ids, func(d *delivery.Delivery) bool {
		counts[d.Status]++
		return false
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// PurgeDeliveries deletes deliveries created before the cutoff together
// with any queue entries still pointing at them.
func (s *Store) PurgeDeliveries(ctx context.Context, before time.Time) (int64, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, zDeliveryAll, &goredis.ZRangeBy{
		Min: "-inf",
		Max: "(" + scoreArg(before),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("ubtrippin/redis: purge: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	ds, err := s.loadDeliveries(ctx, ids, nil)
	if err != nil {
		return 0, err
	}
	webhookOf := make(map[string]string, len(ds))
	for _, d := range ds {
		webhookOf[d.ID.String()] = d.WebhookID.String()
	}

	var purged int64
	for _, delID := range ids {
		queueIDs, err := s.rdb.SMembers(ctx, sQueueDelivery+delID).Result()
		if err != nil {
			return purged, fmt.Errorf("ubtrippin/redis: purge queue: %w", err)
		}

		_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, entityKey(prefixDelivery, delID), sQueueDelivery+delID)
			pipe.ZRem(ctx, zDeliveryAll, delID)
			if whID, ok := webhookOf[delID]; ok {
				pipe.ZRem(ctx, zDeliveryWebhook+whID, delID)
			}
			for _, qID := range queueIDs {
				pipe.Del(ctx, entityKey(prefixQueue, qID))
				pipe.ZRem(ctx, zQueueDue, qID)
			}
			return nil
		})
		if err != nil {
			return purged, fmt.Errorf("ubtrippin/redis: purge delivery: %w", err)
		}
		if _, ok := webhookOf[delID]; ok {
			purged++
		}
	}
	return purged, nil
}

// loadDeliveries fetches deliveries by ID in order. keep filters the
// result; nil keeps everything.
func (s *Store) loadDeliveries(ctx context.Context, ids []string, keep func(*delivery.Delivery) bool) ([]*delivery.Delivery, error) {
	keys := make([]string, len(ids))
	for i, delID := range ids {
		keys[i] = entityKey(prefixDelivery, delID)
	}

	result := make([]*delivery.Delivery, 0, len(ids))
	err := s.mgetEntities(ctx, keys, func(_ int, raw []byte) error {
		var m deliveryModel
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		d, err := fromDeliveryModel(&m)
		if err != nil {
			return err
		}
		if keep == nil || keep(d) {
			result = append(result, d)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ubtrippin/redis: load deliveries: %w", err)
	}
	return result, nil
}
