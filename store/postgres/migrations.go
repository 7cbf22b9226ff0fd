package postgres

import (
	"context"

	"github.com/rentbook/ledger/store/migrate"
)

// Migrations is the migration group for the ledger store (PostgreSQL).
var Migrations = migrate.NewGroup("ledger")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_ledger_accounts",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ledger_accounts (
    code           TEXT PRIMARY KEY,
    name           TEXT NOT NULL,
    description    TEXT NOT NULL DEFAULT '',
    category       TEXT NOT NULL CHECK (category IN ('ASSET','LIABILITY','EQUITY','INCOME','EXPENSE')),
    normal_balance TEXT NOT NULL DEFAULT '',
    active         BOOLEAN NOT NULL DEFAULT TRUE,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS ledger_accounts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_ledger_journal",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ledger_posting_groups (
    id              TEXT PRIMARY KEY,
    idempotency_key TEXT,
    memo            TEXT NOT NULL DEFAULT '',
    actor           TEXT NOT NULL DEFAULT '',
    reversal_of     TEXT REFERENCES ledger_posting_groups (id),
    created_at      TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_groups_key
    ON ledger_posting_groups (idempotency_key) WHERE idempotency_key IS NOT NULL;

CREATE TABLE IF NOT EXISTS ledger_entries (
    id               TEXT PRIMARY KEY,
    group_id         TEXT NOT NULL REFERENCES ledger_posting_groups (id),
    line             INT NOT NULL,
    account_code     TEXT NOT NULL REFERENCES ledger_accounts (code),
    side             TEXT NOT NULL CHECK (side IN ('DEBIT','CREDIT')),
    amount           BIGINT NOT NULL CHECK (amount > 0),
    currency         TEXT NOT NULL,
    description      TEXT NOT NULL DEFAULT '',
    effective_date   TIMESTAMPTZ NOT NULL,
    subject_id       TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL CHECK (status IN ('POSTED','VOID')),
    actor            TEXT NOT NULL DEFAULT '',
    idempotency_key  TEXT NOT NULL DEFAULT '',
    void_of_entry_id TEXT REFERENCES ledger_entries (id),
    void_reason      TEXT NOT NULL DEFAULT '',
    voided_at        TIMESTAMPTZ,
    created_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_group ON ledger_entries (group_id, line);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_account ON ledger_entries (account_code, subject_id, status);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_status ON ledger_entries (status);

CREATE OR REPLACE FUNCTION ledger_entries_guard() RETURNS trigger AS $$
BEGIN
    IF TG_OP = 'DELETE' THEN
        RAISE EXCEPTION 'ledger entries are append-only';
    END IF;
    IF OLD.status = 'VOID'
       OR NEW.id IS DISTINCT FROM OLD.id
       OR NEW.group_id IS DISTINCT FROM OLD.group_id
       OR NEW.line IS DISTINCT FROM OLD.line
       OR NEW.account_code IS DISTINCT FROM OLD.account_code
       OR NEW.side IS DISTINCT FROM OLD.side
       OR NEW.amount IS DISTINCT FROM OLD.amount
       OR NEW.currency IS DISTINCT FROM OLD.currency
       OR NEW.effective_date IS DISTINCT FROM OLD.effective_date
       OR NEW.subject_id IS DISTINCT FROM OLD.subject_id
       OR NEW.void_of_entry_id IS DISTINCT FROM OLD.void_of_entry_id THEN
        RAISE EXCEPTION 'ledger entries are immutable';
    END IF;
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS ledger_entries_guard ON ledger_entries;
CREATE TRIGGER ledger_entries_guard
    BEFORE UPDATE OR DELETE ON ledger_entries
    FOR EACH ROW EXECUTE FUNCTION ledger_entries_guard();
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS ledger_entries;
DROP FUNCTION IF EXISTS ledger_entries_guard();
DROP TABLE IF EXISTS ledger_posting_groups;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_ledger_recurring",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ledger_subjects (
    id                 TEXT PRIMARY KEY,
    name               TEXT NOT NULL DEFAULT '',
    receivable_account TEXT NOT NULL,
    status             TEXT NOT NULL,
    start_date         TIMESTAMPTZ NOT NULL,
    end_date           TIMESTAMPTZ,
    created_at         TIMESTAMPTZ NOT NULL,
    updated_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_charge_definitions (
    id                  TEXT PRIMARY KEY,
    subject_id          TEXT NOT NULL,
    description         TEXT NOT NULL DEFAULT '',
    amount              BIGINT NOT NULL CHECK (amount > 0),
    currency            TEXT NOT NULL,
    income_account      TEXT NOT NULL,
    due_day             INT NOT NULL CHECK (due_day BETWEEN 1 AND 31),
    active              BOOLEAN NOT NULL DEFAULT TRUE,
    last_charged_period TEXT NOT NULL DEFAULT '',
    created_at          TIMESTAMPTZ NOT NULL,
    updated_at          TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_defs_active ON ledger_charge_definitions (active, subject_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS ledger_charge_definitions;
DROP TABLE IF EXISTS ledger_subjects;
`)
				return err
			},
		},
	)
}
