package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the webhook store.
// It can be registered with a grove orchestrator shared with the host
// application (locking, version tracking, rollback support).
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
    events           TEXT[] NOT NULL DEFAULT '{}',
    enabled          BOOLEAN NOT NULL DEFAULT TRUE,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_ubt_webhooks_user ON ubt_webhooks (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_ubt_webhooks_enabled ON ubt_webhooks (user_id) WHERE enabled;
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
				// payload is TEXT, not JSONB: the stored bytes are signed and
				// must come back exactly as written.
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ubt_webhook_deliveries (
    id                 TEXT PRIMARY KEY,
    webhook_id         TEXT NOT NULL REFERENCES ubt_webhooks (id) ON DELETE CASCADE,
    event              TEXT NOT NULL,
    payload            TEXT NOT NULL,
    status             TEXT NOT NULL DEFAULT 'pending',
    attempts           INT NOT NULL DEFAULT 0,
    last_attempt_at    TIMESTAMPTZ,
    last_response_code INT,
    last_response_body TEXT NOT NULL DEFAULT '',
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT chk_ubt_delivery_status CHECK (status IN ('pending', 'success', 'failed'))
);

CREATE INDEX IF NOT EXISTS idx_ubt_deliveries_webhook ON ubt_webhook_deliveries (webhook_id, created_at DESC);
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
    webhook_id    TEXT NOT NULL REFERENCES ubt_webhooks (id) ON DELETE CASCADE,
    delivery_id   TEXT NOT NULL REFERENCES ubt_webhook_deliveries (id) ON DELETE CASCADE,
    attempt       INT NOT NULL DEFAULT 1,
    deliver_after TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_ubt_queue_due ON ubt_webhook_queue (deliver_after, id);
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
				// Owned by the trip application; created here only when absent
				// so the store works against a bare database.
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS trip_collaborators (
    trip_id    TEXT NOT NULL,
    user_id    TEXT NOT NULL,
    status     TEXT NOT NULL DEFAULT 'pending',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
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
