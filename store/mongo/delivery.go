package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	ubtrippin "github.com/fistfulayen/ubtrippin-sub001"
	"github.com/fistfulayen/ubtrippin-sub001/delivery"
	"github.com/fistfulayen/ubtrippin-sub001/id"
	"github.com/fistfulayen/ubtrippin-sub001/webhook"
)

// EnqueueBatch inserts deliveries, then their queue entries. Without a
// replica-set transaction the pair is not atomic, so a failed second insert
// removes the deliveries again.
func (s *Store) EnqueueBatch(ctx context.Context, ds []*delivery.Delivery, entries []*delivery.QueueEntry) error {
	if len(ds) > 0 {
		models := make([]deliveryModel, len(ds))
		for i, d := range ds {
			models[i] = *toDeliveryModel(d)
		}

		if _, err := s.mdb.NewInsert(&models).Exec(ctx); err != nil {
			return fmt.Errorf("ubtrippin/mongo: enqueue deliveries: %w", err)
		}
	}

	if len(entries) == 0 {
		return nil
	}

	rows := make([]queueModel, len(entries))
	for i, e := range entries {
		rows[i] = *toQueueModel(e)
	}

	if _, err := s.mdb.NewInsert(&rows).Exec(ctx); err != nil {
		if len(ds) > 0 {
			ids := make([]string, len(ds))
			for i, d := range ds {
				ids[i] = d.ID.String()
			}
			//nolint:errcheck // best-effort rollback
			_, _ = s.mdb.NewDelete((*deliveryModel)(nil)).
				Many().
				Filter(bson.M{"_id": bson.M{"$in": ids}}).
				Exec(ctx)
		}

		return fmt.Errorf("ubtrippin/mongo: enqueue queue entries: %w", err)
	}

	return nil
}

// DueEntries returns due queue entries oldest first with their webhook and
// delivery. Missing parents are left nil.
func (s *Store) DueEntries(ctx context.Context, at time.Time, limit int) ([]*delivery.Job, error) {
	var rows []queueModel

	q := s.mdb.NewFind(&rows).
		Filter(bson.M{"deliver_after": bson.M{"$lte": at}}).
		Sort(bson.D{{Key: "deliver_after", Value: 1}, {Key: "_id", Value: 1}})

	if limit > 0 {
		q = q.Limit(int64(limit))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("ubtrippin/mongo: due entries: %w", err)
	}

	if len(rows) == 0 {
		return nil, nil
	}

	whIDs := make([]string, 0, len(rows))
	delIDs := make([]string, 0, len(rows))

	for i := range rows {
		whIDs = append(whIDs, rows[i].WebhookID)
		delIDs = append(delIDs, rows[i].DeliveryID)
	}

	var whModels []webhookModel
	if err := s.mdb.NewFind(&whModels).
		Filter(bson.M{"_id": bson.M{"$in": whIDs}}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("ubtrippin/mongo: due entries webhooks: %w", err)
	}

	var delModels []deliveryModel
	if err := s.mdb.NewFind(&delModels).
		Filter(bson.M{"_id": bson.M{"$in": delIDs}}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("ubtrippin/mongo: due entries deliveries: %w", err)
	}

	webhooks := make(map[string]*webhook.Webhook, len(whModels))
	for i := range whModels {
		w, err := fromWebhookModel(&whModels[i])
		if err != nil {
			return nil, err
		}

		webhooks[whModels[i].ID] = w
	}

	deliveries := make(map[string]*delivery.Delivery, len(delModels))
	for i := range delModels {
		d, err := fromDeliveryModel(&delModels[i])
		if err != nil {
			return nil, err
		}

		deliveries[delModels[i].ID] = d
	}

	jobs := make([]*delivery.Job, 0, len(rows))
	for i := range rows {
		e, err := fromQueueModel(&rows[i])
		if err != nil {
			return nil, err
		}

		jobs = append(jobs, &delivery.Job{
			Entry:    e,
			Webhook:  webhooks[rows[i].WebhookID],
			Delivery: deliveries[rows[i].DeliveryID],
		})
	}

	return jobs, nil
}

// Claim removes a queue entry with FindOneAndDelete. Only one concurrent
// caller receives the document.
func (s *Store) Claim(ctx context.Context, entryID id.ID) (*delivery.QueueEntry, bool, error) {
	var m queueModel

	err := s.mdb.Collection(colQueue).
		FindOneAndDelete(ctx, bson.M{"_id": entryID.String()}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("ubtrippin/mongo: claim: %w", err)
	}

	e, err := fromQueueModel(&m)
	if err != nil {
		return nil, false, err
	}

	return e, true, nil
}

// Requeue inserts a follow-up queue entry.
func (s *Store) Requeue(ctx context.Context, e *delivery.QueueEntry) error {
	_, err := s.mdb.NewInsert(toQueueModel(e)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("ubtrippin/mongo: requeue: %w", err)
	}

	return nil
}

// Reschedule inserts the follow-up entry, then updates the delivery. When
// the update fails the entry is removed again.
func (s *Store) Reschedule(ctx context.Context, d *delivery.Delivery, follow *delivery.QueueEntry) error {
	if err := s.Requeue(ctx, follow); err != nil {
		return err
	}

	if err := s.UpdateDelivery(ctx, d); err != nil {
		//nolint:errcheck // best-effort rollback
		_, _ = s.mdb.NewDelete((*queueModel)(nil)).
			Filter(bson.M{"_id": follow.ID.String()}).
			Exec(ctx)

		return err
	}

	return nil
}

// UpdateDelivery modifies a delivery.
func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ubtrippin/mongo: update delivery: %w", err)
	}

	if res.MatchedCount() == 0 {
		return ubtrippin.ErrDeliveryNotFound
	}

	return nil
}

// GetDelivery returns a delivery by ID.
func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	var m deliveryModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": delID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, ubtrippin.ErrDeliveryNotFound
		}

		return nil, fmt.Errorf("ubtrippin/mongo: get delivery: %w", err)
	}

	return fromDeliveryModel(&m)
}

// ListByWebhook returns delivery history for a webhook.
func (s *Store) ListByWebhook(ctx context.Context, whID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	var models []deliveryModel

	filter := bson.M{"webhook_id": whID.String()}
	if opts.Status != nil {
		filter["status"] = string(*opts.Status)
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
		return nil, fmt.Errorf("ubtrippin/mongo: list deliveries: %w", err)
	}

	result := make([]*delivery.Delivery, 0, len(models))

	for i := range models {
		d, err := fromDeliveryModel(&models[i])
		if err != nil {
			return nil, err
		}

		result = append(result, d)
	}

	return result, nil
}

// CountQueued returns the number of queue entries.
func (s *Store) CountQueued(ctx context.Context) (int64, error) {
	count, err := s.mdb.NewFind((*queueModel)(nil)).
		Filter(bson.M{}).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("ubtrippin/mongo: count queued: %w", err)
	}

	return count, nil
}

// CountByStatus returns the number of deliveries per status.
func (s *Store) CountByStatus(ctx context.Context) (map[delivery.Status]int64, error) {
	counts := make(map[delivery.Status]int64, 3)

	for _, st := range []delivery.Status{delivery.StatusPending, delivery.StatusSuccess, delivery.StatusFailed} {
		n, err := s.mdb.NewFind((*deliveryModel)(nil)).
			Filter(bson.M{"status": string(st)}).
			Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("ubtrippin/mongo: count %s: %w", st, err)
		}

		counts[st] = n
	}

	return counts, nil
}

// PurgeDeliveries deletes the queue entries of expired deliveries, then the
// deliveries.
func (s *Store) PurgeDeliveries(ctx context.Context, before time.Time) (int64, error) {
	var expired []deliveryModel

	if err := s.mdb.NewFind(&expired).
		Filter(bson.M{"created_at": bson.M{"$lt": before}}).
		Scan(ctx); err != nil {
		return 0, fmt.Errorf("ubtrippin/mongo: purge scan: %w", err)
	}

	if len(expired) == 0 {
		return 0, nil
	}

	ids := make([]string, len(expired))
	for i := range expired {
		ids[i] = expired[i].ID
	}

	if _, err := s.mdb.NewDelete((*queueModel)(nil)).
		Many().
		Filter(bson.M{"delivery_id": bson.M{"$in": ids}}).
		Exec(ctx); err != nil {
		return 0, fmt.Errorf("ubtrippin/mongo: purge queue: %w", err)
	}

	res, err := s.mdb.NewDelete((*deliveryModel)(nil)).
		Many().
		Filter(bson.M{"_id": bson.M{"$in": ids}}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("ubtrippin/mongo: purge deliveries: %w", err)
	}

	return res.DeletedCount(), nil
}
