// Package bunstore implements store.Store on the Bun ORM. It runs on any
// dialect Bun supports; the CLI wires it to PostgreSQL (lib/pq) and SQLite
// (mattn/go-sqlite3).
package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	ubtrippin "github.com/fistfulayen/ubtrippin-sub001"
	"github.com/fistfulayen/ubtrippin-sub001/delivery"
	"github.com/fistfulayen/ubtrippin-sub001/id"
	"github.com/fistfulayen/ubtrippin-sub001/participant"
	"github.com/fistfulayen/ubtrippin-sub001/store"
	"github.com/fistfulayen/ubtrippin-sub001/webhook"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using the Bun ORM.
type Store struct {
	db *bun.DB
}

// New creates a new Bun-backed store.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying Bun database for direct access.
func (s *Store) DB() *bun.DB { return s.db }

// Migrate creates the required tables using Bun's CreateTable.
func (s *Store) Migrate(ctx context.Context) error {
	tables := []struct {
		model       any
		foreignKeys []string
	}{
		{model: (*webhookModel)(nil)},
		{
			model: (*deliveryModel)(nil),
			foreignKeys: []string{
				`("webhook_id") REFERENCES "ubt_webhooks" ("id") ON DELETE CASCADE`,
			},
		},
		{
			model: (*queueModel)(nil),
			foreignKeys: []string{
				`("webhook_id") REFERENCES "ubt_webhooks" ("id") ON DELETE CASCADE`,
				`("delivery_id") REFERENCES "ubt_webhook_deliveries" ("id") ON DELETE CASCADE`,
			},
		},
		{model: (*collaboratorModel)(nil)},
	}
	for _, t := range tables {
		q := s.db.NewCreateTable().
			Model(t.model).
			IfNotExists()
		for _, fk := range t.foreignKeys {
			q = q.ForeignKey(fk)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("%w: bun: %w", ubtrippin.ErrMigrationFailed, err)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_ubt_webhooks_user ON ubt_webhooks (user_id, enabled)",
		"CREATE INDEX IF NOT EXISTS idx_ubt_deliveries_webhook ON ubt_webhook_deliveries (webhook_id, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_ubt_deliveries_created ON ubt_webhook_deliveries (created_at)",
		"CREATE INDEX IF NOT EXISTS idx_ubt_queue_due ON ubt_webhook_queue (deliver_after, id)",
		"CREATE INDEX IF NOT EXISTS idx_ubt_queue_delivery ON ubt_webhook_queue (delivery_id)",
		"CREATE INDEX IF NOT EXISTS idx_trip_collaborators_status ON trip_collaborators (trip_id, status)",
	}
	for _, ddl := range indexes {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("%w: bun: %w", ubtrippin.ErrMigrationFailed, err)
		}
	}

	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Webhook Store ====================

func (s *Store) CreateWebhook(ctx context.Context, w *webhook.Webhook) error {
	_, err := s.db.NewInsert().Model(toWebhookModel(w)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("ubtrippin/bun: create webhook: %w", err)
	}
	return nil
}

func (s *Store) GetWebhook(ctx context.Context, whID id.ID) (*webhook.Webhook, error) {
	m := new(webhookModel)
	err := s.db.NewSelect().
		Model(m).
		Where("id = ?", whID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ubtrippin.ErrWebhookNotFound
		}
		return nil, fmt.Errorf("ubtrippin/bun: get webhook: %w", err)
	}
	return fromWebhookModel(m)
}

func (s *Store) UpdateWebhook(ctx context.Context, w *webhook.Webhook) error {
	m := toWebhookModel(w)
	m.UpdatedAt = now()
	res, err := s.db.NewUpdate().
		Model(m).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ubtrippin/bun: update webhook: %w", err)
	}
	return expectRow(res, ubtrippin.ErrWebhookNotFound)
}

// DeleteWebhook removes a webhook with its queue entries and deliveries in
// one transaction. The children are deleted explicitly so SQLite databases
// opened without foreign key enforcement behave the same.
func (s *Store) DeleteWebhook(ctx context.Context, whID id.ID) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*queueModel)(nil)).
			Where("webhook_id = ?", whID.String()).
			Exec(ctx); err != nil {
			return fmt.Errorf("ubtrippin/bun: delete webhook queue: %w", err)
		}
		if _, err := tx.NewDelete().
			Model((*deliveryModel)(nil)).
			Where("webhook_id = ?", whID.String()).
			Exec(ctx); err != nil {
			return fmt.Errorf("ubtrippin/bun: delete webhook deliveries: %w", err)
		}
		res, err := tx.NewDelete().
			Model((*webhookModel)(nil)).
			Where("id = ?", whID.String()).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("ubtrippin/bun: delete webhook: %w", err)
		}
		return expectRow(res, ubtrippin.ErrWebhookNotFound)
	})
}

func (s *Store) ListWebhooks(ctx context.Context, userID string, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	var models []webhookModel
	q := s.db.NewSelect().
		Model(&models).
		Where("user_id = ?", userID)

	if opts.Enabled != nil {
		q = q.Where("enabled = ?", *opts.Enabled)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.Order("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("ubtrippin/bun: list webhooks: %w", err)
	}
	return fromWebhookModels(models)
}

func (s *Store) ListEnabledByUsers(ctx context.Context, userIDs []string) ([]*webhook.Webhook, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	var models []webhookModel
	if err := s.db.NewSelect().
		Model(&models).
		Where("user_id IN (?)", bun.In(userIDs)).
		Where("enabled = ?", true).
		Order("created_at ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("ubtrippin/bun: list enabled webhooks: %w", err)
	}
	return fromWebhookModels(models)
}

func (s *Store) SetEnabled(ctx context.Context, whID id.ID, enabled bool) error {
	res, err := s.db.NewUpdate().
		Model((*webhookModel)(nil)).
		Set("enabled = ?", enabled).
		Set("updated_at = ?", now()).
		Where("id = ?", whID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ubtrippin/bun: set enabled: %w", err)
	}
	return expectRow(res, ubtrippin.ErrWebhookNotFound)
}

// ==================== Delivery Store ====================

// EnqueueBatch writes the deliveries and their first queue entries in one
// transaction.
func (s *Store) EnqueueBatch(ctx context.Context, ds []*delivery.Delivery, entries []*delivery.QueueEntry) error {
	if len(ds) == 0 && len(entries) == 0 {
		return nil
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if len(ds) > 0 {
			models := make([]deliveryModel, len(ds))
			for i, d := range ds {
				models[i] = *toDeliveryModel(d)
			}
			if _, err := tx.NewInsert().Model(&models).Exec(ctx); err != nil {
				return fmt.Errorf("ubtrippin/bun: enqueue deliveries: %w", err)
			}
		}

		if len(entries) > 0 {
			rows := make([]queueModel, len(entries))
			for i, e := range entries {
				rows[i] = *toQueueModel(e)
			}
			if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
				return fmt.Errorf("ubtrippin/bun: enqueue queue entries: %w", err)
			}
		}

		return nil
	})
}

func (s *Store) DueEntries(ctx context.Context, at time.Time, limit int) ([]*delivery.Job, error) {
	var rows []queueModel
	q := s.db.NewSelect().
		Model(&rows).
		Where("deliver_after <= ?", at.UTC()).
		Order("deliver_after ASC", "id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("ubtrippin/bun: due entries: %w", err)
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
	if err := s.db.NewSelect().
		Model(&whModels).
		Where("id IN (?)", bun.In(whIDs)).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("ubtrippin/bun: due entries webhooks: %w", err)
	}

	var delModels []deliveryModel
	if err := s.db.NewSelect().
		Model(&delModels).
		Where("id IN (?)", bun.In(delIDs)).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("ubtrippin/bun: due entries deliveries: %w", err)
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

// Claim deletes the queue row and returns it in a single statement. Exactly
// one concurrent caller sees the row come back.
func (s *Store) Claim(ctx context.Context, entryID id.ID) (*delivery.QueueEntry, bool, error) {
	var rows []queueModel
	err := s.db.NewRaw(
		`DELETE FROM ubt_webhook_queue WHERE id = ?
RETURNING id, webhook_id, delivery_id, attempt, deliver_after, created_at`,
		entryID.String(),
	).Scan(ctx, &rows)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("ubtrippin/bun: claim: %w", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}

	e, err := fromQueueModel(&rows[0])
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

func (s *Store) Requeue(ctx context.Context, e *delivery.QueueEntry) error {
	_, err := s.db.NewInsert().Model(toQueueModel(e)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("ubtrippin/bun: requeue: %w", err)
	}
	return nil
}

// Reschedule updates the delivery and inserts its follow-up entry in one
// transaction.
func (s *Store) Reschedule(ctx context.Context, d *delivery.Delivery, follow *delivery.QueueEntry) error {
	m := toDeliveryModel(d)
	m.UpdatedAt = now()
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model(m).WherePK().Exec(ctx)
		if err != nil {
			return fmt.Errorf("ubtrippin/bun: reschedule delivery: %w", err)
		}
		if err := expectRow(res, ubtrippin.ErrDeliveryNotFound); err != nil {
			return err
		}
		if _, err := tx.NewInsert().Model(toQueueModel(follow)).Exec(ctx); err != nil {
			return fmt.Errorf("ubtrippin/bun: reschedule entry: %w", err)
		}
		return nil
	})
}

func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	m.UpdatedAt = now()
	res, err := s.db.NewUpdate().
		Model(m).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ubtrippin/bun: update delivery: %w", err)
	}
	return expectRow(res, ubtrippin.ErrDeliveryNotFound)
}

func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	m := new(deliveryModel)
	err := s.db.NewSelect().
		Model(m).
		Where("id = ?", delID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ubtrippin.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("ubtrippin/bun: get delivery: %w", err)
	}
	return fromDeliveryModel(m)
}

func (s *Store) ListByWebhook(ctx context.Context, whID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	var models []deliveryModel
	q := s.db.NewSelect().
		Model(&models).
		Where("webhook_id = ?", whID.String())

	if opts.Status != nil {
		q = q.Where("status = ?", string(*opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.Order("created_at DESC", "id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("ubtrippin/bun: list deliveries: %w", err)
	}

	result := make([]*delivery.Delivery, len(models))
	for i := range models {
		d, err := fromDeliveryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}

func (s *Store) CountQueued(ctx context.Context) (int64, error) {
	n, err := s.db.NewSelect().Model((*queueModel)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("ubtrippin/bun: count queued: %w", err)
	}
	return int64(n), nil
}

func (s *Store) CountByStatus(ctx context.Context) (map[delivery.Status]int64, error) {
	var rows []statusCount
	if err := s.db.NewSelect().
		Model((*deliveryModel)(nil)).
		Column("status").
		ColumnExpr("count(*) AS n").
		Group("status").
		Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("ubtrippin/bun: count by status: %w", err)
	}

	counts := map[delivery.Status]int64{
		delivery.StatusPending: 0,
		delivery.StatusSuccess: 0,
		delivery.StatusFailed:  0,
	}
	for _, r := range rows {
		counts[delivery.Status(r.Status)] = r.N
	}
	return counts, nil
}

// ==================== Participant Store ====================

func (s *Store) AcceptedCollaborators(ctx context.Context, tripID string) ([]string, error) {
	var models []collaboratorModel
	if err := s.db.NewSelect().
		Model(&models).
		Where("trip_id = ?", tripID).
		Where("status = ?", string(participant.StatusAccepted)).
		Order("created_at ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("ubtrippin/bun: accepted collaborators: %w", err)
	}

	users := make([]string, len(models))
	for i := range models {
		users[i] = models[i].UserID
	}
	return users, nil
}

// UpsertCollaborator records a trip membership. Collaborator rows belong to
// the trip application; this exists for seeding and standalone deployments.
func (s *Store) UpsertCollaborator(ctx context.Context, c *participant.Collaborator) error {
	m := toCollaboratorModel(c)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
	}
	_, err := s.db.NewInsert().
		Model(m).
		On("CONFLICT (trip_id, user_id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ubtrippin/bun: upsert collaborator: %w", err)
	}
	return nil
}

// ==================== Retention Store ====================

func (s *Store) PurgeDeliveries(ctx context.Context, before time.Time) (int64, error) {
	var deleted int64
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var expired []string
		if err := tx.NewSelect().
			Model((*deliveryModel)(nil)).
			Column("id").
			Where("created_at < ?", before.UTC()).
			Scan(ctx, &expired); err != nil {
			return fmt.Errorf("ubtrippin/bun: purge scan: %w", err)
		}
		if len(expired) == 0 {
			return nil
		}

		if _, err := tx.NewDelete().
			Model((*queueModel)(nil)).
			Where("delivery_id IN (?)", bun.In(expired)).
			Exec(ctx); err != nil {
			return fmt.Errorf("ubtrippin/bun: purge queue: %w", err)
		}

		res, err := tx.NewDelete().
			Model((*deliveryModel)(nil)).
			Where("id IN (?)", bun.In(expired)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("ubtrippin/bun: purge deliveries: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// ==================== helpers ====================

func fromWebhookModels(models []webhookModel) ([]*webhook.Webhook, error) {
	result := make([]*webhook.Webhook, len(models))
	for i := range models {
		w, err := fromWebhookModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = w
	}
	return result, nil
}

// expectRow maps a zero-row write to notFound.
func expectRow(res sql.Result, notFound error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}
