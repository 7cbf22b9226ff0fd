package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentbook/ledger"
	"github.com/rentbook/ledger/store"
	"github.com/rentbook/ledger/store/memory"
	"github.com/rentbook/ledger/store/storetest"
)

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return memory.New()
	})
}

func TestReturnedEntriesAreCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	storetest.SeedAccounts(t, s)

	g := storetest.Pair("k", "1200", "4000", 100, "L1")
	require.NoError(t, s.AppendGroup(ctx, g))

	g.Entries[0].Amount.Amount = 1 // caller mutates its own copy
	got, err := s.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	got.Entries[0].Amount.Amount = 2

	again, err := s.GetEntry(ctx, g.Entries[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), again.Amount.Amount)
}

func TestClosed(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Ping(ctx), ledger.ErrStoreClosed)
	assert.ErrorIs(t, s.AppendGroup(ctx, storetest.Pair("", "1200", "4000", 1, "")), ledger.ErrStoreClosed)
}
