// Package sqlite implements store.Store on an embedded SQLite database using
// the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	ledger "github.com/rentbook/ledger"
	"github.com/rentbook/ledger/account"
	"github.com/rentbook/ledger/id"
	"github.com/rentbook/ledger/journal"
	"github.com/rentbook/ledger/recurring"
	ledgerstore "github.com/rentbook/ledger/store"
	"github.com/rentbook/ledger/store/migrate"
	"github.com/rentbook/ledger/types"
)

// compile-time interface check
var _ ledgerstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite.
type Store struct {
	db *sql.DB
}

// New wraps an open database. The handle should enable foreign keys and
// immediate transactions; Open does both.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens (creating if needed) the database file at path. Writers take
// the lock at BEGIN and wait on contention instead of failing.
func Open(path string) (*Store, error) {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_txlock", "immediate")

	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("ledger/sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return New(db), nil
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate creates the required tables, indexes and triggers.
func (s *Store) Migrate(ctx context.Context) error {
	orch := migrate.NewOrchestrator(migrate.NewSQLExecutor(s.db), Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: sqlite: %w", ledger.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return ledger.Unavailable("sqlite ping", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Account Store ====================

const accountColumns = `code, name, description, category, normal_balance, active, created_at, updated_at`

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Code, a.Name, a.Description, string(a.Category), string(a.NormalBalance),
		a.Active, formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	if err != nil {
		if isUnique(err) {
			return ledger.ErrAlreadyExists
		}
		return classify("create account", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, code string) (*account.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM ledger_accounts WHERE code = ?`, code)
	a, err := scanAccount(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ledger.ErrAccountNotFound
		}
		return nil, classify("get account", err)
	}
	return a, nil
}

func (s *Store) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM ledger_accounts WHERE 1=1`
	var args []any
	if opts.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(opts.Category))
	}
	if opts.ActiveOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY code` + limitClause(opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list accounts", err)
	}
	defer rows.Close()

	var out []*account.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) UpdateAccount(ctx context.Context, a *account.Account) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE ledger_accounts
SET name = ?, description = ?, category = ?, normal_balance = ?, active = ?, updated_at = ?
WHERE code = ?`,
		a.Name, a.Description, string(a.Category), string(a.NormalBalance), a.Active,
		formatTime(a.UpdatedAt), a.Code)
	if err != nil {
		return classify("update account", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports rows
		return ledger.ErrAccountNotFound
	}
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, code string) error {
	return s.inTx(ctx, "delete account", func(tx *sql.Tx) error {
		var referenced int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM ledger_entries WHERE account_code = ?`, code).Scan(&referenced); err != nil {
			return err
		}
		if referenced > 0 {
			return ledger.ErrAccountInUse
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM ledger_accounts WHERE code = ?`, code)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports rows
			return ledger.ErrAccountNotFound
		}
		return nil
	})
}

// ==================== Journal Store ====================

const entryColumns = `id, group_id, line, account_code, side, amount, currency, description,
effective_date, subject_id, status, actor, idempotency_key, void_of_entry_id, void_reason,
voided_at, created_at`

func (s *Store) AppendGroup(ctx context.Context, g *journal.PostingGroup) error {
	return s.inTx(ctx, "append group", func(tx *sql.Tx) error {
		return insertGroup(ctx, tx, g)
	})
}

func insertGroup(ctx context.Context, tx *sql.Tx, g *journal.PostingGroup) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO ledger_posting_groups (id, idempotency_key, memo, actor, reversal_of, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		g.ID.String(), nullString(g.IdempotencyKey), g.Memo, g.Actor, g.ReversalOf,
		formatTime(g.CreatedAt))
	if err != nil {
		if isUnique(err) {
			return ledger.ErrDuplicateKey
		}
		return err
	}

	for _, e := range g.Entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_entries (`+entryColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID.String(), e.GroupID.String(), e.Line, e.AccountCode, string(e.Side),
			e.Amount.Amount, e.Amount.Currency, e.Description, formatTime(e.EffectiveDate),
			e.SubjectID, string(e.Status), e.Actor, e.IdempotencyKey, e.VoidOfEntryID,
			e.VoidReason, formatTimePtr(e.VoidedAt), formatTime(e.CreatedAt))
		if err != nil {
			if isForeignKey(err) {
				return fmt.Errorf("%w: %s", ledger.ErrUnknownAccount, e.AccountCode)
			}
			return err
		}
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, entryID id.EntryID) (*journal.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE id = ?`, entryID.String())
	e, err := scanEntry(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ledger.ErrEntryNotFound
		}
		return nil, classify("get entry", err)
	}
	return e, nil
}

func (s *Store) GetGroup(ctx context.Context, groupID id.PostingGroupID) (*journal.PostingGroup, error) {
	return s.getGroup(ctx, `id = ?`, groupID.String())
}

func (s *Store) GetGroupByKey(ctx context.Context, idempotencyKey string) (*journal.PostingGroup, error) {
	if idempotencyKey == "" {
		return nil, ledger.ErrGroupNotFound
	}
	return s.getGroup(ctx, `idempotency_key = ?`, idempotencyKey)
}

func (s *Store) getGroup(ctx context.Context, where string, arg any) (*journal.PostingGroup, error) {
	var g *journal.PostingGroup
	err := s.inReadTx(ctx, func(tx *sql.Tx) error {
		var (
			groupID, createdAt string
			key, reversalOf    sql.NullString
		)
		g = &journal.PostingGroup{}
		err := tx.QueryRowContext(ctx, `
SELECT id, idempotency_key, memo, actor, reversal_of, created_at
FROM ledger_posting_groups WHERE `+where, arg).
			Scan(&groupID, &key, &g.Memo, &g.Actor, &reversalOf, &createdAt)
		if err != nil {
			return err
		}
		if g.ID, err = id.ParsePostingGroupID(groupID); err != nil {
			return err
		}
		if reversalOf.Valid {
			if g.ReversalOf, err = id.ParsePostingGroupID(reversalOf.String); err != nil {
				return err
			}
		}
		g.IdempotencyKey = key.String
		if g.CreatedAt, err = parseTime(createdAt); err != nil {
			return err
		}

		g.Entries, err = queryEntries(ctx, tx,
			`SELECT `+entryColumns+` FROM ledger_entries WHERE group_id = ? ORDER BY line`, groupID)
		return err
	})
	if err != nil {
		if isNoRows(err) {
			return nil, ledger.ErrGroupNotFound
		}
		return nil, classify("get group", err)
	}
	return g, nil
}

func (s *Store) VoidGroup(ctx context.Context, v *journal.Void) ([]*journal.Entry, error) {
	var voided []*journal.Entry
	err := s.inTx(ctx, "void group", func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM ledger_posting_groups WHERE id = ?`, v.GroupID.String()).Scan(&exists)
		if err != nil {
			return err
		}
		if exists == 0 {
			return ledger.ErrGroupNotFound
		}

		at := formatTime(v.At)
		res, err := tx.ExecContext(ctx, `
UPDATE ledger_entries SET status = 'VOID', void_reason = ?, voided_at = ?
WHERE group_id = ? AND status = 'POSTED'`, v.Reason, at, v.GroupID.String())
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports rows
			return ledger.ErrAlreadyVoided
		}

		if v.Reversal != nil {
			if err := insertGroup(ctx, tx, v.Reversal); err != nil {
				return err
			}
		}

		voided, err = queryEntries(ctx, tx, `SELECT `+entryColumns+` FROM ledger_entries
WHERE group_id = ? AND status = 'VOID' AND voided_at = ? ORDER BY line`, v.GroupID.String(), at)
		return err
	})
	if err != nil {
		return nil, err
	}
	return voided, nil
}

func (s *Store) ListEntries(ctx context.Context, f journal.Filter) ([]*journal.Entry, error) {
	where, args := entryWhere(f)
	query := `SELECT ` + entryColumns + ` FROM ledger_entries` + where +
		` ORDER BY created_at, group_id, line` + limitClause(f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list entries", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (s *Store) SumEntries(ctx context.Context, f journal.Filter) (journal.Totals, error) {
	where, args := entryWhere(f)
	var t journal.Totals
	err := s.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(CASE WHEN side = 'DEBIT' THEN amount ELSE 0 END), 0),
       COALESCE(SUM(CASE WHEN side = 'CREDIT' THEN amount ELSE 0 END), 0),
       COUNT(*)
FROM ledger_entries`+where, args...).Scan(&t.Debits, &t.Credits, &t.Count)
	if err != nil {
		return journal.Totals{}, classify("sum entries", err)
	}
	return t, nil
}

func entryWhere(f journal.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.AccountCode != "" {
		conds = append(conds, "account_code = ?")
		args = append(args, f.AccountCode)
	}
	if f.SubjectID != "" {
		conds = append(conds, "subject_id = ?")
		args = append(args, f.SubjectID)
	}
	if !f.GroupID.IsNil() {
		conds = append(conds, "group_id = ?")
		args = append(args, f.GroupID.String())
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.From.IsZero() {
		conds = append(conds, "effective_date >= ?")
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		conds = append(conds, "effective_date < ?")
		args = append(args, formatTime(f.To))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ==================== Recurring Store ====================

const definitionColumns = `id, subject_id, description, amount, currency, income_account, due_day,
active, last_charged_period, created_at, updated_at`

func (s *Store) CreateDefinition(ctx context.Context, d *recurring.Definition) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_charge_definitions (`+definitionColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID.String(), d.SubjectID, d.Description, d.Amount.Amount, d.Amount.Currency,
		d.IncomeAccount, d.DueDay, d.Active, string(d.LastChargedPeriod),
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt))
	if err != nil {
		if isUnique(err) {
			return ledger.ErrAlreadyExists
		}
		return classify("create definition", err)
	}
	return nil
}

func (s *Store) GetDefinition(ctx context.Context, defID id.DefinitionID) (*recurring.Definition, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+definitionColumns+` FROM ledger_charge_definitions WHERE id = ?`, defID.String())
	d, err := scanDefinition(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ledger.ErrDefinitionNotFound
		}
		return nil, classify("get definition", err)
	}
	return d, nil
}

func (s *Store) ListDefinitions(ctx context.Context, opts recurring.ListOpts) ([]*recurring.Definition, error) {
	query := `SELECT ` + definitionColumns + ` FROM ledger_charge_definitions WHERE 1=1`
	var args []any
	if opts.SubjectID != "" {
		query += ` AND subject_id = ?`
		args = append(args, opts.SubjectID)
	}
	if opts.ActiveOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY id` + limitClause(opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list definitions", err)
	}
	defer rows.Close()

	var out []*recurring.Definition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) UpdateDefinition(ctx context.Context, d *recurring.Definition) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE ledger_charge_definitions
SET subject_id = ?, description = ?, amount = ?, currency = ?, income_account = ?,
    due_day = ?, active = ?, updated_at = ?
WHERE id = ?`,
		d.SubjectID, d.Description, d.Amount.Amount, d.Amount.Currency, d.IncomeAccount,
		d.DueDay, d.Active, formatTime(d.UpdatedAt), d.ID.String())
	if err != nil {
		return classify("update definition", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports rows
		return ledger.ErrDefinitionNotFound
	}
	return nil
}

func (s *Store) MarkCharged(ctx context.Context, defID id.DefinitionID, period recurring.Period) (bool, error) {
	var changed bool
	err := s.inTx(ctx, "mark charged", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE ledger_charge_definitions SET last_charged_period = ?
WHERE id = ? AND last_charged_period < ?`, string(period), defID.String(), string(period))
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected() //nolint:errcheck // sqlite always reports rows
		if n > 0 {
			changed = true
			return nil
		}
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM ledger_charge_definitions WHERE id = ?`, defID.String()).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ledger.ErrDefinitionNotFound
		}
		return nil
	})
	return changed, err
}

func (s *Store) UpsertSubject(ctx context.Context, sub *recurring.Subject) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO ledger_subjects (id, name, receivable_account, status, start_date, end_date, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    name = excluded.name,
    receivable_account = excluded.receivable_account,
    status = excluded.status,
    start_date = excluded.start_date,
    end_date = excluded.end_date,
    updated_at = excluded.updated_at`,
		sub.ID, sub.Name, sub.ReceivableAccount, string(sub.Status), formatTime(sub.StartDate),
		formatTimePtr(sub.EndDate), formatTime(sub.CreatedAt), formatTime(sub.UpdatedAt))
	if err != nil {
		return classify("upsert subject", err)
	}
	return nil
}

func (s *Store) GetSubject(ctx context.Context, subjectID string) (*recurring.Subject, error) {
	var (
		sub                             recurring.Subject
		status, start, created, updated string
		end                             sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, name, receivable_account, status, start_date, end_date, created_at, updated_at
FROM ledger_subjects WHERE id = ?`, subjectID).
		Scan(&sub.ID, &sub.Name, &sub.ReceivableAccount, &status, &start, &end, &created, &updated)
	if err != nil {
		if isNoRows(err) {
			return nil, ledger.ErrSubjectNotFound
		}
		return nil, classify("get subject", err)
	}
	sub.Status = recurring.SubjectStatus(status)
	if sub.StartDate, err = parseTime(start); err != nil {
		return nil, err
	}
	if sub.EndDate, err = parseTimePtr(end); err != nil {
		return nil, err
	}
	if sub.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if sub.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &sub, nil
}

// ==================== Helpers ====================

func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback() //nolint:errcheck // the original error wins
		if isSentinel(err) {
			return err
		}
		return classify(op, err)
	}
	if err := tx.Commit(); err != nil {
		return classify(op, err)
	}
	return nil
}

// inReadTx runs fn in a transaction that is always rolled back, so
// multi-statement reads see one snapshot.
func (s *Store) inReadTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // nothing to keep
	return fn(tx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*account.Account, error) {
	var (
		a                    account.Account
		category, normal     string
		createdAt, updatedAt string
	)
	if err := row.Scan(&a.Code, &a.Name, &a.Description, &category, &normal, &a.Active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.Category = account.Category(category)
	a.NormalBalance = types.Side(normal)

	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanEntry(row scanner) (*journal.Entry, error) {
	var (
		e                                   journal.Entry
		entryID, groupID, side, status, cur string
		effective, created                  string
		voidOf, voidedAt                    sql.NullString
	)
	err := row.Scan(&entryID, &groupID, &e.Line, &e.AccountCode, &side, &e.Amount.Amount, &cur,
		&e.Description, &effective, &e.SubjectID, &status, &e.Actor, &e.IdempotencyKey,
		&voidOf, &e.VoidReason, &voidedAt, &created)
	if err != nil {
		return nil, err
	}

	if e.ID, err = id.ParseEntryID(entryID); err != nil {
		return nil, err
	}
	if e.GroupID, err = id.ParsePostingGroupID(groupID); err != nil {
		return nil, err
	}
	if voidOf.Valid && voidOf.String != "" {
		if e.VoidOfEntryID, err = id.ParseEntryID(voidOf.String); err != nil {
			return nil, err
		}
	}
	e.Side = types.Side(side)
	e.Status = journal.Status(status)
	e.Amount.Currency = cur
	if e.EffectiveDate, err = parseTime(effective); err != nil {
		return nil, err
	}
	if e.VoidedAt, err = parseTimePtr(voidedAt); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &e, nil
}

func queryEntries(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]*journal.Entry, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func collectEntries(rows *sql.Rows) ([]*journal.Entry, error) {
	out := make([]*journal.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanDefinition(row scanner) (*recurring.Definition, error) {
	var (
		d                    recurring.Definition
		defID, cur, last     string
		createdAt, updatedAt string
	)
	err := row.Scan(&defID, &d.SubjectID, &d.Description, &d.Amount.Amount, &cur, &d.IncomeAccount,
		&d.DueDay, &d.Active, &last, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if d.ID, err = id.ParseDefinitionID(defID); err != nil {
		return nil, err
	}
	d.Amount.Currency = cur
	d.LastChargedPeriod = recurring.Period(last)
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// timeLayout is fixed-width so stored timestamps order lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("ledger/sqlite: parse time %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil //nolint:nilnil // NULL column
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func limitClause(limit, offset int) string {
	switch {
	case limit > 0 && offset > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	case limit > 0:
		return fmt.Sprintf(" LIMIT %d", limit)
	case offset > 0:
		return fmt.Sprintf(" LIMIT -1 OFFSET %d", offset)
	}
	return ""
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func sqliteCode(err error) (int, bool) {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code(), true
	}
	return 0, false
}

func isUnique(err error) bool {
	code, ok := sqliteCode(err)
	if !ok {
		return false
	}
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(err.Error(), "UNIQUE constraint failed")
	}
	return false
}

func isForeignKey(err error) bool {
	code, ok := sqliteCode(err)
	if !ok {
		return false
	}
	return code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY ||
		(code == sqlite3.SQLITE_CONSTRAINT && strings.Contains(err.Error(), "FOREIGN KEY constraint failed"))
}

// isSentinel reports errors that are already in the ledger's vocabulary.
func isSentinel(err error) bool {
	return errors.Is(err, ledger.ErrNotFound) ||
		errors.Is(err, ledger.ErrDuplicateKey) ||
		errors.Is(err, ledger.ErrAlreadyVoided) ||
		errors.Is(err, ledger.ErrAccountInUse) ||
		errors.Is(err, ledger.ErrUnknownAccount) ||
		errors.Is(err, ledger.ErrAlreadyExists)
}

// classify marks lock contention and I/O failures as retryable.
func classify(op string, err error) error {
	if code, ok := sqliteCode(err); ok {
		switch code & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CANTOPEN:
			return ledger.Unavailable("sqlite "+op, err)
		}
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return ledger.Unavailable("sqlite "+op, err)
	}
	return fmt.Errorf("ledger/sqlite: %s: %w", op, err)
}
