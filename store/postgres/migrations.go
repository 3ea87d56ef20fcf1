package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the custody store.
var Migrations = migrate.NewGroup("custody")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_custody_contributions",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS custody_contributions (
    id              TEXT PRIMARY KEY,
    epoch           BIGINT NOT NULL,
    seq             BIGINT NOT NULL,
    contributor     TEXT NOT NULL,
    amount          NUMERIC(78, 0) NOT NULL,
    reference_value NUMERIC(78, 0) NOT NULL DEFAULT 0,
    price_feed      TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_custody_contributions_epoch_seq ON custody_contributions (epoch, seq);
CREATE INDEX IF NOT EXISTS idx_custody_contributions_contributor ON custody_contributions (contributor);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS custody_contributions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_custody_withdrawals",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS custody_withdrawals (
    id           TEXT PRIMARY KEY,
    epoch        BIGINT NOT NULL,
    owner        TEXT NOT NULL,
    amount       NUMERIC(78, 0) NOT NULL,
    contributors INT NOT NULL DEFAULT 0,
    strategy     TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_custody_withdrawals_epoch ON custody_withdrawals (epoch);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS custody_withdrawals`)
				return err
			},
		},
	)
}
