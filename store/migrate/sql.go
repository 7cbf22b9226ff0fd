package migrate

import (
	"context"
	"database/sql"
	"strconv"
)

// SQLExecutor adapts a database/sql handle.
type SQLExecutor struct {
	DB *sql.DB
	// Dollar selects "$n" placeholders instead of "?".
	Dollar bool
}

var _ Executor = (*SQLExecutor)(nil)

// NewSQLExecutor returns an executor using "?" placeholders.
func NewSQLExecutor(db *sql.DB) *SQLExecutor {
	return &SQLExecutor{DB: db}
}

func (e *SQLExecutor) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := e.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil //nolint:nilerr // DDL on some drivers does not report rows
	}
	return n, nil
}

func (e *SQLExecutor) QueryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := e.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (e *SQLExecutor) Placeholder(n int) string {
	if e.Dollar {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}
