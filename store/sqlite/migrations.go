package sqlite

import (
	"context"

	"github.com/rentbook/ledger/store/migrate"
)

// Migrations is the migration group for the ledger store (SQLite).
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
    active         INTEGER NOT NULL DEFAULT 1,
    created_at     TEXT NOT NULL,
    updated_at     TEXT NOT NULL
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
    idempotency_key TEXT UNIQUE,
    memo            TEXT NOT NULL DEFAULT '',
    actor           TEXT NOT NULL DEFAULT '',
    reversal_of     TEXT REFERENCES ledger_posting_groups (id),
    created_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_entries (
    id               TEXT PRIMARY KEY,
    group_id         TEXT NOT NULL REFERENCES ledger_posting_groups (id),
    line             INTEGER NOT NULL,
    account_code     TEXT NOT NULL REFERENCES ledger_accounts (code),
    side             TEXT NOT NULL CHECK (side IN ('DEBIT','CREDIT')),
    amount           INTEGER NOT NULL CHECK (amount > 0),
    currency         TEXT NOT NULL,
    description      TEXT NOT NULL DEFAULT '',
    effective_date   TEXT NOT NULL,
    subject_id       TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL CHECK (status IN ('POSTED','VOID')),
    actor            TEXT NOT NULL DEFAULT '',
    idempotency_key  TEXT NOT NULL DEFAULT '',
    void_of_entry_id TEXT REFERENCES ledger_entries (id),
    void_reason      TEXT NOT NULL DEFAULT '',
    voided_at        TEXT,
    created_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_group ON ledger_entries (group_id, line);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_account ON ledger_entries (account_code, subject_id, status);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_status ON ledger_entries (status);

CREATE TRIGGER IF NOT EXISTS ledger_entries_no_delete
BEFORE DELETE ON ledger_entries
BEGIN
    SELECT RAISE(ABORT, 'ledger entries are append-only');
END;

CREATE TRIGGER IF NOT EXISTS ledger_entries_immutable
BEFORE UPDATE ON ledger_entries
WHEN NEW.id IS NOT OLD.id
  OR NEW.group_id IS NOT OLD.group_id
  OR NEW.line IS NOT OLD.line
  OR NEW.account_code IS NOT OLD.account_code
  OR NEW.side IS NOT OLD.side
  OR NEW.amount IS NOT OLD.amount
  OR NEW.currency IS NOT OLD.currency
  OR NEW.effective_date IS NOT OLD.effective_date
  OR NEW.subject_id IS NOT OLD.subject_id
  OR NEW.void_of_entry_id IS NOT OLD.void_of_entry_id
  OR OLD.status = 'VOID'
BEGIN
    SELECT RAISE(ABORT, 'ledger entries are immutable');
END;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS ledger_entries;
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
    start_date         TEXT NOT NULL,
    end_date           TEXT,
    created_at         TEXT NOT NULL,
    updated_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_charge_definitions (
    id                  TEXT PRIMARY KEY,
    subject_id          TEXT NOT NULL,
    description         TEXT NOT NULL DEFAULT '',
    amount              INTEGER NOT NULL CHECK (amount > 0),
    currency            TEXT NOT NULL,
    income_account      TEXT NOT NULL,
    due_day             INTEGER NOT NULL CHECK (due_day BETWEEN 1 AND 31),
    active              INTEGER NOT NULL DEFAULT 1,
    last_charged_period TEXT NOT NULL DEFAULT '',
    created_at          TEXT NOT NULL,
    updated_at          TEXT NOT NULL
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
