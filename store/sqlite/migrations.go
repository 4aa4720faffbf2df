package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the webhook store (SQLite).
var Migrations = migrate.NewGroup("ubtrippin_webhooks")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_ubt_webhooks",
			Version: "20260301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ubt_webhooks (
    id               TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL,
    url              TEXT NOT NULL,
    description      TEXT NOT NULL DEFAULT '',
    secret_encrypted TEXT NOT NULL,
    secret_mask      TEXT NOT NULL DEFAULT '',
    events           TEXT NOT NULL DEFAULT '[]',
    enabled          INTEGER NOT NULL DEFAULT 1,
    created_at       TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at       TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_ubt_webhooks_user ON ubt_webhooks (user_id, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS ubt_webhooks`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_ubt_webhook_deliveries",
			Version: "20260301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ubt_webhook_deliveries (
    id                 TEXT PRIMARY KEY,
    webhook_id         TEXT NOT NULL,
    event              TEXT NOT NULL,
    payload            TEXT NOT NULL,
    status             TEXT NOT NULL DEFAULT 'pending',
    attempts           INTEGER NOT NULL DEFAULT 0,
    last_attempt_at    TEXT,
    last_response_code INTEGER,
    last_response_body TEXT NOT NULL DEFAULT '',
    created_at         TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at         TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_ubt_deliveries_webhook ON ubt_webhook_deliveries (webhook_id, created_at);
CREATE INDEX IF NOT EXISTS idx_ubt_deliveries_created ON ubt_webhook_deliveries (created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS ubt_webhook_deliveries`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_ubt_webhook_queue",
			Version: "20260301000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ubt_webhook_queue (
    id            TEXT PRIMARY KEY,
    webhook_id    TEXT NOT NULL,
    delivery_id   TEXT NOT NULL,
    attempt       INTEGER NOT NULL DEFAULT 1,
    deliver_after TEXT NOT NULL DEFAULT (datetime('now')),
    created_at    TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_ubt_queue_due ON ubt_webhook_queue (deliver_after, id);
CREATE INDEX IF NOT EXISTS idx_ubt_queue_delivery ON ubt_webhook_queue (delivery_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS ubt_webhook_queue`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_trip_collaborators",
			Version: "20260301000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS trip_collaborators (
    trip_id    TEXT NOT NULL,
    user_id    TEXT NOT NULL,
    status     TEXT NOT NULL DEFAULT 'pending',
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (trip_id, user_id)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS trip_collaborators`)
				return err
			},
		},
	)
}
