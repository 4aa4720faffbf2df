package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate"
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

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("ubtrippin/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: postgres: %w", ubtrippin.ErrMigrationFailed, err)
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
	_, err := s.pg.NewInsert(toWebhookModel(w)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("ubtrippin/postgres: create webhook: %w", err)
	}
	return nil
}

func (s *Store) GetWebhook(ctx context.Context, whID id.ID) (*webhook.Webhook, error) {
	m := new(webhookModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", whID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ubtrippin.ErrWebhookNotFound
		}
		return nil, fmt.Errorf("ubtrippin/postgres: get webhook: %w", err)
	}
	return fromWebhookModel(m)
}

func (s *Store) UpdateWebhook(ctx context.Context, w *webhook.Webhook) error {
	m := toWebhookModel(w)
	m.UpdatedAt = now()
	res, err := s.pg.NewUpdate(m).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ubtrippin/postgres: update webhook: %w", err)
	}
	return expectRow(res, ubtrippin.ErrWebhookNotFound)
}

// DeleteWebhook removes the webhook. Deliveries and queue entries go with
// it through ON DELETE CASCADE.
func (s *Store) DeleteWebhook(ctx context.Context, whID id.ID) error {
	res, err := s.pg.NewDelete((*webhookModel)(nil)).
		Where("id = $1", whID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ubtrippin/postgres: delete webhook: %w", err)
	}
	return expectRow(res, ubtrippin.ErrWebhookNotFound)
}

func (s *Store) ListWebhooks(ctx context.Context, userID string, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	var models []webhookModel
	q := s.pg.NewSelect(&models).Where("user_id = $1", userID)
	if opts.Enabled != nil {
		q = q.Where("enabled = $2", *opts.Enabled)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("ubtrippin/postgres: list webhooks: %w", err)
	}
	return fromWebhookModels(models)
}

func (s *Store) ListEnabledByUsers(ctx context.Context, userIDs []string) ([]*webhook.Webhook, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	var models []webhookModel
	if err := s.pg.NewSelect(&models).
		Where("user_id IN ("+placeholders(1, len(userIDs))+")", stringArgs(userIDs)...).
		Where("enabled = true").
		OrderExpr("created_at ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("ubtrippin/postgres: list enabled webhooks: %w", err)
	}
	return fromWebhookModels(models)
}

func (s *Store) SetEnabled(ctx context.Context, whID id.ID, enabled bool) error {
	res, err := s.pg.NewUpdate((*webhookModel)(nil)).
		Set("enabled = $1", enabled).
		Set("updated_at = $2", now()).
		Where("id = $3", whID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ubtrippin/postgres: set enabled: %w", err)
	}
	return expectRow(res, ubtrippin.ErrWebhookNotFound)
}

// ==================== Delivery Store ====================

// EnqueueBatch inserts the deliveries and their queue entries in one
// statement, so either all rows land or none do.
func (s *Store) EnqueueBatch(ctx context.Context, ds []*delivery.Delivery, entries []*delivery.QueueEntry) error {
	if len(ds) == 0 && len(entries) == 0 {
		return nil
	}

	var (
		b    strings.Builder
		args []any
	)

	if len(ds) > 0 {
		b.WriteString(`WITH ins AS (
			INSERT INTO ubt_webhook_deliveries
				(id, webhook_id, event, payload, status, attempts, created_at, updated_at)
			VALUES `)
		for i, d := range ds {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(" + placeholders(len(args)+1, 8) + ")")
			args = append(args, d.ID.String(), d.WebhookID.String(), d.Event, string(d.Payload),
				string(d.Status), d.Attempts, d.CreatedAt, d.UpdatedAt)
		}
		b.WriteString(" RETURNING id) ")
	}

	var rows []queueModel
	if len(entries) > 0 {
		b.WriteString(`INSERT INTO ubt_webhook_queue
			(id, webhook_id, delivery_id, attempt, deliver_after, created_at)
			VALUES `)
		for i, e := range entries {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(" + placeholders(len(args)+1, 6) + ")")
			args = append(args, e.ID.String(), e.WebhookID.String(), e.DeliveryID.String(),
				e.Attempt, e.DeliverAfter, e.CreatedAt)
		}
		b.WriteString(" RETURNING *")
	} else {
		b.WriteString("SELECT * FROM ubt_webhook_queue WHERE false")
	}

	if err := s.pg.NewRaw(b.String(), args...).Scan(ctx, &rows); err != nil {
		return fmt.Errorf("ubtrippin/postgres: enqueue batch: %w", err)
	}
	return nil
}

// DueEntries reads due queue rows, then loads the webhooks and deliveries
// they point at. Missing parents are left nil on the job.
func (s *Store) DueEntries(ctx context.Context, at time.Time, limit int) ([]*delivery.Job, error) {
	var rows []queueModel
	q := s.pg.NewSelect(&rows).
		Where("deliver_after <= $1", at).
		OrderExpr("deliver_after ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("ubtrippin/postgres: due entries: %w", err)
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
	if err := s.pg.NewSelect(&whModels).
		Where("id IN ("+placeholders(1, len(whIDs))+")", stringArgs(whIDs)...).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("ubtrippin/postgres: due entries webhooks: %w", err)
	}
	var delModels []deliveryModel
	if err := s.pg.NewSelect(&delModels).
		Where("id IN ("+placeholders(1, len(delIDs))+")", stringArgs(delIDs)...).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("ubtrippin/postgres: due entries deliveries: %w", err)
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

// Claim deletes the queue row and returns it. Row-level locking makes the
// delete the arbiter: of two concurrent claims exactly one sees the row.
func (s *Store) Claim(ctx context.Context, entryID id.ID) (*delivery.QueueEntry, bool, error) {
	var rows []queueModel
	err := s.pg.NewRaw(`
		DELETE FROM ubt_webhook_queue
		WHERE id = $1
		RETURNING *
	`, entryID.String()).Scan(ctx, &rows)
	if err != nil {
		return nil, false, fmt.Errorf("ubtrippin/postgres: claim: %w", err)
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
	_, err := s.pg.NewInsert(toQueueModel(e)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("ubtrippin/postgres: requeue: %w", err)
	}
	return nil
}

// Reschedule updates the delivery and inserts its follow-up entry in one
// transaction.
func (s *Store) Reschedule(ctx context.Context, d *delivery.Delivery, follow *delivery.QueueEntry) (err error) {
	tx, err := s.pg.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("ubtrippin/postgres: reschedule: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() //nolint:errcheck // best-effort rollback
		}
	}()

	m := toDeliveryModel(d)
	m.UpdatedAt = now()
	res, err := tx.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("ubtrippin/postgres: reschedule delivery: %w", err)
	}
	if err = expectRow(res, ubtrippin.ErrDeliveryNotFound); err != nil {
		return err
	}
	if _, err = tx.NewInsert(toQueueModel(follow)).Exec(ctx); err != nil {
		return fmt.Errorf("ubtrippin/postgres: reschedule entry: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("ubtrippin/postgres: reschedule: commit: %w", err)
	}
	return nil
}

func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	m.UpdatedAt = now()
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("ubtrippin/postgres: update delivery: %w", err)
	}
	return expectRow(res, ubtrippin.ErrDeliveryNotFound)
}

func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	m := new(deliveryModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", delID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ubtrippin.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("ubtrippin/postgres: get delivery: %w", err)
	}
	return fromDeliveryModel(m)
}

func (s *Store) ListByWebhook(ctx context.Context, whID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	var models []deliveryModel
	q := s.pg.NewSelect(&models).Where("webhook_id = $1", whID.String())

	if opts.Status != nil {
		q = q.Where("status = $2", string(*opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("ubtrippin/postgres: list deliveries: %w", err)
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
	return s.pg.NewSelect((*queueModel)(nil)).Count(ctx)
}

func (s *Store) CountByStatus(ctx context.Context) (map[delivery.Status]int64, error) {
	counts := make(map[delivery.Status]int64, 3)
	for _, st := range []delivery.Status{delivery.StatusPending, delivery.StatusSuccess, delivery.StatusFailed} {
		n, err := s.pg.NewSelect((*deliveryModel)(nil)).
			Where("status = $1", string(st)).
			Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("ubtrippin/postgres: count %s: %w", st, err)
		}
		counts[st] = n
	}
	return counts, nil
}

// ==================== Participant Store ====================

func (s *Store) AcceptedCollaborators(ctx context.Context, tripID string) ([]string, error) {
	var models []collaboratorModel
	if err := s.pg.NewSelect(&models).
		Where("trip_id = $1", tripID).
		Where("status = $2", string(participant.StatusAccepted)).
		OrderExpr("created_at ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("ubtrippin/postgres: accepted collaborators: %w", err)
	}

	users := make([]string, len(models))
	for i := range models {
		users[i] = models[i].UserID
	}
	return users, nil
}

// UpsertCollaborator records a trip membership. The trip application
// normally owns this table; the method serves tooling and tests.
func (s *Store) UpsertCollaborator(ctx context.Context, c *participant.Collaborator) error {
	m := toCollaboratorModel(c)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
	}
	_, err := s.pg.NewInsert(m).
		OnConflict("(trip_id, user_id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ubtrippin/postgres: upsert collaborator: %w", err)
	}
	return nil
}

// ==================== Retention Store ====================

// PurgeDeliveries deletes deliveries created before the cutoff. Their queue
// entries cascade.
func (s *Store) PurgeDeliveries(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.pg.NewDelete((*deliveryModel)(nil)).
		Where("created_at < $1", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("ubtrippin/postgres: purge deliveries: %w", err)
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

// placeholders renders n positional parameters starting at $start.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
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
