package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate"
	"github.com/xraph/grove/migrate"

	ubtrippin "github.com/fistfulayen/ubtrippin-sub001"
	"github.com/fistfulayen/ubtrippin-sub001/delivery"
	"github.com/fistfulayen/ubtrippin-sub001/id"
	"github.com/fistfulayen/ubtrippin-sub001/participant"
	ubtstore "github.com/fistfulayen/ubtrippin-sub001/store"
	"github.com/fistfulayen/ubtrippin-sub001/webhook"
)

// compile-time interface check
var _ ubtstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("ubtrippin/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: sqlite: %w", ubtrippin.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Webhook Store ====================

func (s *Store) CreateWebhook(ctx context.Context, w *webhook.Webhook) error {
	_, err := s.sdb.NewInsert(toWebhookModel(w)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("ubtrippin/sqlite: create webhook: %w", err)
	}
	return nil
}

func (s *Store) GetWebhook(ctx context.Context, whID id.ID) (*webhook.Webhook, error) {
	m := new(webhookModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", whID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ubtrippin.ErrWebhookNotFound
		}
		return nil, fmt.Errorf("ubtrippin/sqlite: get webhook: %w", err)
	}
	return fromWebhookModel(m)
}

func (s *Store) UpdateWebhook(ctx context.Context, w *webhook.Webhook) error {
	m := toWebhookModel(w)
	m.UpdatedAt = newTimestamp(now())
	res, err := s.sdb.NewUpdate(m).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ubtrippin/sqlite: update webhook: %w", err)
	}
	return expectRow(res, ubtrippin.ErrWebhookNotFound)
}

// DeleteWebhook removes the webhook, then its queue entries and deliveries.
// SQLite foreign keys are off unless the connection enables them, so the
// cascade is explicit.
func (s *Store) DeleteWebhook(ctx context.Context, whID id.ID) error {
	res, err := s.sdb.NewDelete((*webhookModel)(nil)).
		Where("id = ?", whID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ubtrippin/sqlite: delete webhook: %w", err)
	}
	if err := expectRow(res, ubtrippin.ErrWebhookNotFound); err != nil {
		return err
	}

	if _, err := s.sdb.NewDelete((*queueModel)(nil)).
		Where("webhook_id = ?", whID.String()).
		Exec(ctx); err != nil {
		return fmt.Errorf("ubtrippin/sqlite: delete webhook queue: %w", err)
	}
	if _, err := s.sdb.NewDelete((*deliveryModel)(nil)).
		Where("webhook_id = ?", whID.String()).
		Exec(ctx); err != nil {
		return fmt.Errorf("ubtrippin/sqlite: delete webhook deliveries: %w", err)
	}
	return nil
}

func (s *Store) ListWebhooks(ctx context.Context, userID string, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	var models []webhookModel
	q := s.sdb.NewSelect(&models).Where("user_id = ?", userID)
	if opts.Enabled != nil {
		q = q.Where("enabled = ?", *opts.Enabled)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("ubtrippin/sqlite: list webhooks: %w", err)
	}
	return fromWebhookModels(models)
}

func (s *Store) ListEnabledByUsers(ctx context.Context, userIDs []string) ([]*webhook.Webhook, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	var models []webhookModel
	if err := s.sdb.NewSelect(&models).
		Where("user_id IN ("+placeholders(len(userIDs))+")", stringArgs(userIDs)...).
		Where("enabled = 1").
		OrderExpr("created_at ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("ubtrippin/sqlite: list enabled webhooks: %w", err)
	}
	return fromWebhookModels(models)
}

func (s *Store) SetEnabled(ctx context.Context, whID id.ID, enabled bool) error {
	res, err := s.sdb.NewUpdate((*webhookModel)(nil)).
		Set("enabled = ?", enabled).
		Set("updated_at = ?", newTimestamp(now())).
		Where("id = ?", whID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ubtrippin/sqlite: set enabled: %w", err)
	}
	return expectRow(res, ubtrippin.ErrWebhookNotFound)
}

// ==================== Delivery Store ====================

// EnqueueBatch inserts deliveries and their queue entries in one transaction.
func (s *Store) EnqueueBatch(ctx context.Context, ds []*delivery.Delivery, entries []*delivery.QueueEntry) (err error) {
	if len(ds) == 0 && len(entries) == 0 {
		return nil
	}

	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("ubtrippin/sqlite: enqueue: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() //nolint:errcheck // best-effort rollback
		}
	}()

	if len(ds) > 0 {
		models := make([]deliveryModel, len(ds))
		for i, d := range ds {
			models[i] = *toDeliveryModel(d)
		}
		if _, err = tx.NewInsert(&models).Exec(ctx); err != nil {
			return fmt.Errorf("ubtrippin/sqlite: enqueue deliveries: %w", err)
		}
	}

	if len(entries) > 0 {
		rows := make([]queueModel, len(entries))
		for i, e := range entries {
			rows[i] = *toQueueModel(e)
		}
		if _, err = tx.NewInsert(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("ubtrippin/sqlite: enqueue queue entries: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("ubtrippin/sqlite: enqueue: commit: %w", err)
	}
	return nil
}

// DueEntries reads due queue rows, then loads the webhooks and deliveries
// they point at. Missing parents are left nil on the job.
func (s *Store) DueEntries(ctx context.Context, at time.Time, limit int) ([]*delivery.Job, error) {
	var rows []queueModel
	q := s.sdb.NewSelect(&rows).
		Where("deliver_after <= ?", newTimestamp(at)).
		OrderExpr("deliver_after ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("ubtrippin/sqlite: due entries: %w", err)
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
	if err := s.sdb.NewSelect(&whModels).
		Where("id IN ("+placeholders(len(whIDs))+")", stringArgs(whIDs)...).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("ubtrippin/sqlite: due entries webhooks: %w", err)
	}
	var delModels []deliveryModel
	if err := s.sdb.NewSelect(&delModels).
		Where("id IN ("+placeholders(len(delIDs))+")", stringArgs(delIDs)...).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("ubtrippin/sqlite: due entries deliveries: %w", err)
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

// Claim deletes the queue row and returns it.
// SQLite serializes writes, so only one DELETE can return the row.
func (s *Store) Claim(ctx context.Context, entryID id.ID) (*delivery.QueueEntry, bool, error) {
	var rows []queueModel
	err := s.sdb.NewRaw(`
		DELETE FROM ubt_webhook_queue
		WHERE id = ?
		RETURNING *
	`, entryID.String()).Scan(ctx, &rows)
	if err != nil {
		return nil, false, fmt.Errorf("ubtrippin/sqlite: claim: %w", err)
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
	_, err := s.sdb.NewInsert(toQueueModel(e)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("ubtrippin/sqlite: requeue: %w", err)
	}
	return nil
}

// Reschedule updates the delivery and inserts its follow-up entry in one
// transaction.
func (s *Store) Reschedule(ctx context.Context, d *delivery.Delivery, follow *delivery.QueueEntry) (err error) {
	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("ubtrippin/sqlite: reschedule: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() //nolint:errcheck // best-effort rollback
		}
	}()

	m := toDeliveryModel(d)
	m.UpdatedAt = newTimestamp(now())
	res, err := tx.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("ubtrippin/sqlite: reschedule delivery: %w", err)
	}
	if err = expectRow(res, ubtrippin.ErrDeliveryNotFound); err != nil {
		return err
	}
	if _, err = tx.NewInsert(toQueueModel(follow)).Exec(ctx); err != nil {
		return fmt.Errorf("ubtrippin/sqlite: reschedule entry: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("ubtrippin/sqlite: reschedule: commit: %w", err)
	}
	return nil
}

func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	m.UpdatedAt = newTimestamp(now())
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("ubtrippin/sqlite: update delivery: %w", err)
	}
	return expectRow(res, ubtrippin.ErrDeliveryNotFound)
}

func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	m := new(deliveryModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", delID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ubtrippin.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("ubtrippin/sqlite: get delivery: %w", err)
	}
	return fromDeliveryModel(m)
}

func (s *Store) ListByWebhook(ctx context.Context, whID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	var models []deliveryModel
	q := s.sdb.NewSelect(&models).Where("webhook_id = ?", whID.String())

	if opts.Status != nil {
		q = q.Where("status = ?", string(*opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("ubtrippin/sqlite: list deliveries: %w", err)
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
	return s.sdb.NewSelect((*queueModel)(nil)).Count(ctx)
}

func (s *Store) CountByStatus(ctx context.Context) (map[delivery.Status]int64, error) {
	counts := make(map[delivery.Status]int64, 3)
	for _, st := range []delivery.Status{delivery.StatusPending, delivery.StatusSuccess, delivery.StatusFailed} {
		n, err := s.sdb.NewSelect((*deliveryModel)(nil)).
			Where("status = ?", string(st)).
			Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("ubtrippin/sqlite: count %s: %w", st, err)
		}
		counts[st] = n
	}
	return counts, nil
}

// ==================== Participant Store ====================

func (s *Store) AcceptedCollaborators(ctx context.Context, tripID string) ([]string, error) {
	var models []collaboratorModel
	if err := s.sdb.NewSelect(&models).
		Where("trip_id = ?", tripID).
		Where("status = ?", string(participant.StatusAccepted)).
		OrderExpr("created_at ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("ubtrippin/sqlite: accepted collaborators: %w", err)
	}

	users := make([]string, len(models))
	for i := range models {
		users[i] = models[i].UserID
	}
	return users, nil
}

// UpsertCollaborator records a trip membership.
func (s *Store) UpsertCollaborator(ctx context.Context, c *participant.Collaborator) error {
	m := toCollaboratorModel(c)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = newTimestamp(now())
	}
	_, err := s.sdb.NewInsert(m).
		OnConflict("(trip_id, user_id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ubtrippin/sqlite: upsert collaborator: %w", err)
	}
	return nil
}

// ==================== Retention Store ====================

// PurgeDeliveries deletes queue entries of expired deliveries, then the
// deliveries themselves.
func (s *Store) PurgeDeliveries(ctx context.Context, before time.Time) (int64, error) {
	if _, err := s.sdb.NewDelete((*queueModel)(nil)).
		Where("delivery_id IN (SELECT id FROM ubt_webhook_deliveries WHERE created_at < ?)", newTimestamp(before)).
		Exec(ctx); err != nil {
		return 0, fmt.Errorf("ubtrippin/sqlite: purge queue: %w", err)
	}

	res, err := s.sdb.NewDelete((*deliveryModel)(nil)).
		Where("created_at < ?", newTimestamp(before)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("ubtrippin/sqlite: purge deliveries: %w", err)
	}
	return res.RowsAffected()
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

// placeholders renders n ? parameters.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

// rowsResult is satisfied by the results of grove write queries.
type rowsResult interface {
	RowsAffected() (int64, error)
}

// expectRow maps a zero-row write to notFound.
func expectRow(res rowsResult, notFound error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}
