// Package postgres implements store.Store on PostgreSQL using a pgx/v5
// connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

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

// Store implements store.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store over an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects a new pool to dsn.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger/postgres: connect: %w", err)
	}
	return New(pool), nil
}

// Pool returns the underlying pool for direct access.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Migrate creates the required tables, indexes and triggers.
func (s *Store) Migrate(ctx context.Context) error {
	orch := migrate.NewOrchestrator(executor{s.pool}, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: postgres: %w", ledger.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return ledger.Unavailable("postgres ping", err)
	}
	return nil
}

// Close closes every pooled connection.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// executor adapts the pool to migrate.Executor.
type executor struct {
	pool *pgxpool.Pool
}

func (e executor) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := e.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (e executor) QueryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := e.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (executor) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ==================== Account Store ====================

const accountColumns = `code, name, description, category, normal_balance, active, created_at, updated_at`

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ledger_accounts (`+accountColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.Code, a.Name, a.Description, string(a.Category), string(a.NormalBalance),
		a.Active, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return ledger.ErrAlreadyExists
		}
		return classify("create account", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, code string) (*account.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM ledger_accounts WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrAccountNotFound
		}
		return nil, classify("get account", err)
	}
	return a, nil
}

func (s *Store) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	var w where
	if opts.Category != "" {
		w.add("category = ", string(opts.Category))
	}
	if opts.ActiveOnly {
		w.add("active = ", true)
	}
	rows, err := s.pool.Query(ctx, `SELECT `+accountColumns+` FROM ledger_accounts`+w.String()+
		` ORDER BY code`+limitClause(opts.Limit, opts.Offset), w.args...)
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
	tag, err := s.pool.Exec(ctx, `
UPDATE ledger_accounts
SET name = $1, description = $2, category = $3, normal_balance = $4, active = $5, updated_at = $6
WHERE code = $7`,
		a.Name, a.Description, string(a.Category), string(a.NormalBalance), a.Active, a.UpdatedAt, a.Code)
	if err != nil {
		return classify("update account", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, code string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ledger_accounts WHERE code = $1`, code)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return ledger.ErrAccountInUse
		}
		return classify("delete account", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

// ==================== Journal Store ====================

const entryColumns = `id, group_id, line, account_code, side, amount, currency, description,
effective_date, subject_id, status, actor, idempotency_key, void_of_entry_id, void_reason,
voided_at, created_at`

func (s *Store) AppendGroup(ctx context.Context, g *journal.PostingGroup) error {
	return s.inTx(ctx, "append group", pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return insertGroup(ctx, tx, g)
	})
}

func insertGroup(ctx context.Context, tx pgx.Tx, g *journal.PostingGroup) error {
	_, err := tx.Exec(ctx, `
INSERT INTO ledger_posting_groups (id, idempotency_key, memo, actor, reversal_of, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		g.ID.String(), nullString(g.IdempotencyKey), g.Memo, g.Actor, nullID(g.ReversalOf), g.CreatedAt)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return ledger.ErrDuplicateKey
		}
		return err
	}

	batch := &pgx.Batch{}
	for _, e := range g.Entries {
		batch.Queue(`INSERT INTO ledger_entries (`+entryColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
			e.ID.String(), e.GroupID.String(), e.Line, e.AccountCode, string(e.Side),
			e.Amount.Amount, e.Amount.Currency, e.Description, e.EffectiveDate,
			e.SubjectID, string(e.Status), e.Actor, e.IdempotencyKey, nullID(e.VoidOfEntryID),
			e.VoidReason, e.VoidedAt, e.CreatedAt)
	}
	br := tx.SendBatch(ctx, batch)
	for _, e := range g.Entries {
		if _, err := br.Exec(); err != nil {
			_ = br.Close() //nolint:errcheck // the insert error wins
			if pgCode(err) == codeForeignKeyViolation {
				return fmt.Errorf("%w: %s", ledger.ErrUnknownAccount, e.AccountCode)
			}
			return err
		}
	}
	return br.Close()
}

func (s *Store) GetEntry(ctx context.Context, entryID id.EntryID) (*journal.Entry, error) {
	e, err := scanEntry(s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1`, entryID.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrEntryNotFound
		}
		return nil, classify("get entry", err)
	}
	return e, nil
}

func (s *Store) GetGroup(ctx context.Context, groupID id.PostingGroupID) (*journal.PostingGroup, error) {
	return s.getGroup(ctx, `id = $1`, groupID.String())
}

func (s *Store) GetGroupByKey(ctx context.Context, idempotencyKey string) (*journal.PostingGroup, error) {
	if idempotencyKey == "" {
		return nil, ledger.ErrGroupNotFound
	}
	return s.getGroup(ctx, `idempotency_key = $1`, idempotencyKey)
}

func (s *Store) getGroup(ctx context.Context, cond string, arg any) (*journal.PostingGroup, error) {
	var g *journal.PostingGroup
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err := s.inTx(ctx, "get group", opts, func(tx pgx.Tx) error {
		var (
			groupID         string
			key, reversalOf *string
		)
		g = &journal.PostingGroup{}
		err := tx.QueryRow(ctx, `
SELECT id, idempotency_key, memo, actor, reversal_of, created_at
FROM ledger_posting_groups WHERE `+cond, arg).
			Scan(&groupID, &key, &g.Memo, &g.Actor, &reversalOf, &g.CreatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ledger.ErrGroupNotFound
			}
			return err
		}
		if g.ID, err = id.ParsePostingGroupID(groupID); err != nil {
			return err
		}
		if reversalOf != nil {
			if g.ReversalOf, err = id.ParsePostingGroupID(*reversalOf); err != nil {
				return err
			}
		}
		if key != nil {
			g.IdempotencyKey = *key
		}
		g.CreatedAt = g.CreatedAt.UTC()

		g.Entries, err = queryEntries(ctx, tx,
			`SELECT `+entryColumns+` FROM ledger_entries WHERE group_id = $1 ORDER BY line`, groupID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (s *Store) VoidGroup(ctx context.Context, v *journal.Void) ([]*journal.Entry, error) {
	var voided []*journal.Entry
	err := s.inTx(ctx, "void group", pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM ledger_posting_groups WHERE id = $1)`, v.GroupID.String()).Scan(&exists)
		if err != nil {
			return err
		}
		if !exists {
			return ledger.ErrGroupNotFound
		}

		// Row locks make a concurrent void wait here and then match nothing.
		voided, err = queryEntries(ctx, tx, `
UPDATE ledger_entries SET status = 'VOID', void_reason = $1, voided_at = $2
WHERE group_id = $3 AND status = 'POSTED'
RETURNING `+entryColumns, v.Reason, v.At, v.GroupID.String())
		if err != nil {
			return err
		}
		if len(voided) == 0 {
			return ledger.ErrAlreadyVoided
		}
		slices.SortFunc(voided, func(a, b *journal.Entry) int { return a.Line - b.Line })

		if v.Reversal != nil {
			return insertGroup(ctx, tx, v.Reversal)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return voided, nil
}

func (s *Store) ListEntries(ctx context.Context, f journal.Filter) ([]*journal.Entry, error) {
	w := entryWhere(f)
	entries, err := queryEntries(ctx, s.pool, `SELECT `+entryColumns+` FROM ledger_entries`+w.String()+
		` ORDER BY created_at, group_id, line`+limitClause(f.Limit, f.Offset), w.args...)
	if err != nil {
		return nil, classify("list entries", err)
	}
	return entries, nil
}

func (s *Store) SumEntries(ctx context.Context, f journal.Filter) (journal.Totals, error) {
	w := entryWhere(f)
	var t journal.Totals
	err := s.pool.QueryRow(ctx, `
SELECT COALESCE(SUM(amount) FILTER (WHERE side = 'DEBIT'), 0)::BIGINT,
       COALESCE(SUM(amount) FILTER (WHERE side = 'CREDIT'), 0)::BIGINT,
       COUNT(*)
FROM ledger_entries`+w.String(), w.args...).Scan(&t.Debits, &t.Credits, &t.Count)
	if err != nil {
		return journal.Totals{}, classify("sum entries", err)
	}
	return t, nil
}

func entryWhere(f journal.Filter) where {
	var w where
	if f.AccountCode != "" {
		w.add("account_code = ", f.AccountCode)
	}
	if f.SubjectID != "" {
		w.add("subject_id = ", f.SubjectID)
	}
	if !f.GroupID.IsNil() {
		w.add("group_id = ", f.GroupID.String())
	}
	if f.Status != "" {
		w.add("status = ", string(f.Status))
	}
	if !f.From.IsZero() {
		w.add("effective_date >= ", f.From)
	}
	if !f.To.IsZero() {
		w.add("effective_date < ", f.To)
	}
	return w
}

// ==================== Recurring Store ====================

const definitionColumns = `id, subject_id, description, amount, currency, income_account, due_day,
active, last_charged_period, created_at, updated_at`

func (s *Store) CreateDefinition(ctx context.Context, d *recurring.Definition) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ledger_charge_definitions (`+definitionColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		d.ID.String(), d.SubjectID, d.Description, d.Amount.Amount, d.Amount.Currency,
		d.IncomeAccount, d.DueDay, d.Active, string(d.LastChargedPeriod), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return ledger.ErrAlreadyExists
		}
		return classify("create definition", err)
	}
	return nil
}

func (s *Store) GetDefinition(ctx context.Context, defID id.DefinitionID) (*recurring.Definition, error) {
	d, err := scanDefinition(s.pool.QueryRow(ctx,
		`SELECT `+definitionColumns+` FROM ledger_charge_definitions WHERE id = $1`, defID.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrDefinitionNotFound
		}
		return nil, classify("get definition", err)
	}
	return d, nil
}

func (s *Store) ListDefinitions(ctx context.Context, opts recurring.ListOpts) ([]*recurring.Definition, error) {
	var w where
	if opts.SubjectID != "" {
		w.add("subject_id = ", opts.SubjectID)
	}
	if opts.ActiveOnly {
		w.add("active = ", true)
	}
	rows, err := s.pool.Query(ctx, `SELECT `+definitionColumns+` FROM ledger_charge_definitions`+w.String()+
		` ORDER BY id`+limitClause(opts.Limit, opts.Offset), w.args...)
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
	tag, err := s.pool.Exec(ctx, `
UPDATE ledger_charge_definitions
SET subject_id = $1, description = $2, amount = $3, currency = $4, income_account = $5,
    due_day = $6, active = $7, updated_at = $8
WHERE id = $9`,
		d.SubjectID, d.Description, d.Amount.Amount, d.Amount.Currency, d.IncomeAccount,
		d.DueDay, d.Active, d.UpdatedAt, d.ID.String())
	if err != nil {
		return classify("update definition", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrDefinitionNotFound
	}
	return nil
}

func (s *Store) MarkCharged(ctx context.Context, defID id.DefinitionID, period recurring.Period) (bool, error) {
	var changed bool
	err := s.inTx(ctx, "mark charged", pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE ledger_charge_definitions SET last_charged_period = $1
WHERE id = $2 AND last_charged_period < $1`, string(period), defID.String())
		if err != nil {
			return err
		}
		if tag.RowsAffected() > 0 {
			changed = true
			return nil
		}
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM ledger_charge_definitions WHERE id = $1)`, defID.String()).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ledger.ErrDefinitionNotFound
		}
		return nil
	})
	return changed, err
}

func (s *Store) UpsertSubject(ctx context.Context, sub *recurring.Subject) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO ledger_subjects (id, name, receivable_account, status, start_date, end_date, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    receivable_account = EXCLUDED.receivable_account,
    status = EXCLUDED.status,
    start_date = EXCLUDED.start_date,
    end_date = EXCLUDED.end_date,
    updated_at = EXCLUDED.updated_at`,
		sub.ID, sub.Name, sub.ReceivableAccount, string(sub.Status), sub.StartDate,
		sub.EndDate, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return classify("upsert subject", err)
	}
	return nil
}

func (s *Store) GetSubject(ctx context.Context, subjectID string) (*recurring.Subject, error) {
	var (
		sub    recurring.Subject
		status string
	)
	err := s.pool.QueryRow(ctx, `
SELECT id, name, receivable_account, status, start_date, end_date, created_at, updated_at
FROM ledger_subjects WHERE id = $1`, subjectID).
		Scan(&sub.ID, &sub.Name, &sub.ReceivableAccount, &status, &sub.StartDate, &sub.EndDate,
			&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrSubjectNotFound
		}
		return nil, classify("get subject", err)
	}
	sub.Status = recurring.SubjectStatus(status)
	sub.StartDate = sub.StartDate.UTC()
	sub.EndDate = utcPtr(sub.EndDate)
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	return &sub, nil
}

// ==================== Helpers ====================

func (s *Store) inTx(ctx context.Context, op string, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return classify(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx) //nolint:errcheck // the original error wins
		if isSentinel(err) {
			return err
		}
		return classify(op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(op, err)
	}
	return nil
}

// where accumulates AND-ed conditions with numbered placeholders.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, cond+"$"+strconv.Itoa(len(w.args)))
}

func (w where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var (
		a                account.Account
		category, normal string
	)
	if err := row.Scan(&a.Code, &a.Name, &a.Description, &category, &normal, &a.Active,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Category = account.Category(category)
	a.NormalBalance = types.Side(normal)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func scanEntry(row pgx.Row) (*journal.Entry, error) {
	var (
		e                                   journal.Entry
		entryID, groupID, side, status, cur string
		voidOf                              *string
	)
	err := row.Scan(&entryID, &groupID, &e.Line, &e.AccountCode, &side, &e.Amount.Amount, &cur,
		&e.Description, &e.EffectiveDate, &e.SubjectID, &status, &e.Actor, &e.IdempotencyKey,
		&voidOf, &e.VoidReason, &e.VoidedAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}

	if e.ID, err = id.ParseEntryID(entryID); err != nil {
		return nil, err
	}
	if e.GroupID, err = id.ParsePostingGroupID(groupID); err != nil {
		return nil, err
	}
	if voidOf != nil && *voidOf != "" {
		if e.VoidOfEntryID, err = id.ParseEntryID(*voidOf); err != nil {
			return nil, err
		}
	}
	e.Side = types.Side(side)
	e.Status = journal.Status(status)
	e.Amount.Currency = cur
	e.EffectiveDate = e.EffectiveDate.UTC()
	e.VoidedAt = utcPtr(e.VoidedAt)
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func queryEntries(ctx context.Context, q querier, query string, args ...any) ([]*journal.Entry, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

func scanDefinition(row pgx.Row) (*recurring.Definition, error) {
	var (
		d                recurring.Definition
		defID, cur, last string
	)
	err := row.Scan(&defID, &d.SubjectID, &d.Description, &d.Amount.Amount, &cur, &d.IncomeAccount,
		&d.DueDay, &d.Active, &last, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if d.ID, err = id.ParseDefinitionID(defID); err != nil {
		return nil, err
	}
	d.Amount.Currency = cur
	d.LastChargedPeriod = recurring.Period(last)
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return &d, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullID(i id.ID) *string {
	if i.IsNil() {
		return nil
	}
	return nullString(i.String())
}

func limitClause(limit, offset int) string {
	var b strings.Builder
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	if offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", offset)
	}
	return b.String()
}

// SQLSTATE codes the store maps to ledger errors.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeAdminShutdown        = "57P01"
	codeCannotConnectNow     = "57P03"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
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

// classify marks connection loss and transaction conflicts as retryable.
func classify(op string, err error) error {
	switch pgCode(err) {
	case codeSerializationFailure, codeDeadlockDetected, codeAdminShutdown, codeCannotConnectNow:
		return ledger.Unavailable("postgres "+op, err)
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return ledger.Unavailable("postgres "+op, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return ledger.Unavailable("postgres "+op, err)
	}
	return fmt.Errorf("ledger/postgres: %s: %w", op, err)
}
