package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentbook/ledger/store"
	"github.com/rentbook/ledger/store/sqlite"
	"github.com/rentbook/ledger/store/storetest"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newStore(t) })
}

func TestMigrateTwice(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestEntriesCannotBeRewritten(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	storetest.SeedAccounts(t, s)

	g := storetest.Pair("k", "1200", "4000", 50000, "L1")
	require.NoError(t, s.AppendGroup(ctx, g))

	_, err := s.DB().ExecContext(ctx, `UPDATE ledger_entries SET amount = 1 WHERE id = ?`, g.Entries[0].ID.String())
	assert.Error(t, err, "amount must be immutable")

	_, err = s.DB().ExecContext(ctx, `DELETE FROM ledger_entries WHERE id = ?`, g.Entries[0].ID.String())
	assert.Error(t, err, "entries must not be deletable")

	e, err := s.GetEntry(ctx, g.Entries[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), e.Amount.Amount)
}
