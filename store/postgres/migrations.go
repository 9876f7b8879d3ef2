package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Tally store.
var Migrations = migrate.NewGroup("tally")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_tally_businesses",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_businesses (
    id                 TEXT PRIMARY KEY,
    name               TEXT NOT NULL DEFAULT '',
    email              TEXT NOT NULL DEFAULT '',
    currency           TEXT NOT NULL DEFAULT 'usd',
    tier               TEXT NOT NULL DEFAULT 'free',
    payment_terms_days INT NOT NULL DEFAULT 30,
    invoice_prefix     TEXT NOT NULL DEFAULT 'INV',
    payment_account_id TEXT NOT NULL DEFAULT '',
    address            TEXT NOT NULL DEFAULT '',
    invoice_seq        BIGINT NOT NULL DEFAULT 0,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_businesses`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tally_clients",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_clients (
    id          TEXT PRIMARY KEY,
    business_id TEXT NOT NULL,
    name        TEXT NOT NULL DEFAULT '',
    email       TEXT NOT NULL DEFAULT '',
    company     TEXT NOT NULL DEFAULT '',
    address     TEXT NOT NULL DEFAULT '',
    phone       TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tally_clients_business ON tally_clients (business_id, name);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_clients`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tally_tax_types",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_tax_types (
    id          TEXT PRIMARY KEY,
    business_id TEXT NOT NULL,
    name        TEXT NOT NULL DEFAULT '',
    rate        TEXT NOT NULL DEFAULT '0',
    is_default  BOOLEAN NOT NULL DEFAULT FALSE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tally_tax_types_business ON tally_tax_types (business_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_tax_types`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tally_invoices",
			Version: "20250101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_invoices (
    id                    TEXT PRIMARY KEY,
    business_id           TEXT NOT NULL,
    client_id             TEXT NOT NULL DEFAULT '',
    invoice_number        TEXT NOT NULL DEFAULT '',
    status                TEXT NOT NULL DEFAULT 'draft',
    currency              TEXT NOT NULL DEFAULT 'usd',
    issue_date            TIMESTAMPTZ NOT NULL,
    due_date              TIMESTAMPTZ NOT NULL,
    notes                 TEXT NOT NULL DEFAULT '',
    line_items            JSONB NOT NULL DEFAULT '[]',
    payments              JSONB NOT NULL DEFAULT '[]',
    tax_breakdown         JSONB NOT NULL DEFAULT '[]',
    discount              JSONB NOT NULL DEFAULT '{}',
    shipping_cents        BIGINT NOT NULL DEFAULT 0,
    subtotal_cents        BIGINT NOT NULL DEFAULT 0,
    tax_amount_cents      BIGINT NOT NULL DEFAULT 0,
    discount_amount_cents BIGINT NOT NULL DEFAULT 0,
    total_cents           BIGINT NOT NULL DEFAULT 0,
    amount_paid_cents     BIGINT NOT NULL DEFAULT 0,
    version               BIGINT NOT NULL DEFAULT 0,
    share_token           TEXT NOT NULL DEFAULT '',
    accept_online_payment BOOLEAN NOT NULL DEFAULT FALSE,
    payment_link          TEXT NOT NULL DEFAULT '',
    checkout_session_id   TEXT NOT NULL DEFAULT '',
    is_recurring          BOOLEAN NOT NULL DEFAULT FALSE,
    recurrence            JSONB NOT NULL DEFAULT '{}',
    next_recurring_date   TIMESTAMPTZ,
    last_recurring_date   TIMESTAMPTZ,
    template_id           TEXT NOT NULL DEFAULT '',
    sent_at               TIMESTAMPTZ,
    paid_at               TIMESTAMPTZ,
    thank_you_sent_at     TIMESTAMPTZ,
    created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tally_invoices_business ON tally_invoices (business_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_tally_invoices_status ON tally_invoices (business_id, status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tally_invoices_share_token ON tally_invoices (share_token) WHERE share_token != '';
CREATE INDEX IF NOT EXISTS idx_tally_invoices_next_recurring ON tally_invoices (next_recurring_date) WHERE is_recurring;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_invoices`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tally_usage",
			Version: "20250101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_usage (
    business_id TEXT NOT NULL,
    period      TEXT NOT NULL,
    count       BIGINT NOT NULL DEFAULT 0,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (business_id, period)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_usage`)
				return err
			},
		},
	)
}
