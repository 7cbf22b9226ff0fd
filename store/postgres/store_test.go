package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentbook/ledger/store"
	"github.com/rentbook/ledger/store/postgres"
	"github.com/rentbook/ledger/store/storetest"
)

// newStore connects to LEDGER_TEST_POSTGRES_DSN and resets the ledger
// tables. Each test needs a clean schema, so the tables are dropped first.
func newStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv("LEDGER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LEDGER_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := postgres.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.Pool().Exec(ctx, `
DROP TABLE IF EXISTS ledger_entries, ledger_posting_groups, ledger_accounts,
    ledger_charge_definitions, ledger_subjects, ledger_migrations CASCADE`)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newStore(t) })
}

func TestEntriesCannotBeRewritten(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	storetest.SeedAccounts(t, s)

	g := storetest.Pair("k", "1200", "4000", 50000, "L1")
	require.NoError(t, s.AppendGroup(ctx, g))

	_, err := s.Pool().Exec(ctx, `UPDATE ledger_entries SET amount = 1 WHERE id = $1`, g.Entries[0].ID.String())
	assert.Error(t, err, "amount must be immutable")

	_, err = s.Pool().Exec(ctx, `DELETE FROM ledger_entries WHERE id = $1`, g.Entries[0].ID.String())
	assert.Error(t, err, "entries must not be deletable")
}
