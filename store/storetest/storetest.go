// Package storetest is the behavioural contract every store.Store backend
// must satisfy. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentbook/ledger"
	"github.com/rentbook/ledger/account"
	"github.com/rentbook/ledger/id"
	"github.com/rentbook/ledger/journal"
	"github.com/rentbook/ledger/recurring"
	"github.com/rentbook/ledger/store"
	"github.com/rentbook/ledger/types"
)

// Factory returns a fresh, migrated, empty store.
type Factory func(t *testing.T) store.Store

// Now is millisecond-truncated so every backend round-trips it exactly.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Run executes the full contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Accounts", func(t *testing.T) { testAccounts(t, newStore(t)) })
	t.Run("AppendAndRead", func(t *testing.T) { testAppendAndRead(t, newStore(t)) })
	t.Run("DuplicateKey", func(t *testing.T) { testDuplicateKey(t, newStore(t)) })
	t.Run("UnknownAccountWritesNothing", func(t *testing.T) { testUnknownAccount(t, newStore(t)) })
	t.Run("ConcurrentSameKey", func(t *testing.T) { testConcurrentSameKey(t, newStore(t)) })
	t.Run("VoidGroup", func(t *testing.T) { testVoidGroup(t, newStore(t)) })
	t.Run("VoidWithReversal", func(t *testing.T) { testVoidWithReversal(t, newStore(t)) })
	t.Run("ListAndSum", func(t *testing.T) { testListAndSum(t, newStore(t)) })
	t.Run("Definitions", func(t *testing.T) { testDefinitions(t, newStore(t)) })
	t.Run("Subjects", func(t *testing.T) { testSubjects(t, newStore(t)) })
	t.Run("LedgerSequence", func(t *testing.T) { testLedgerSequence(t, newStore(t)) })
}

// SeedAccounts creates a small chart of accounts.
func SeedAccounts(t *testing.T, s store.Store) {
	t.Helper()
	now := Now()
	for _, a := range []*account.Account{
		{Code: "1000", Name: "Operating Cash", Category: account.CategoryAsset, Active: true},
		{Code: "1200", Name: "Accounts Receivable", Category: account.CategoryAsset, Active: true},
		{Code: "4000", Name: "Rental Income", Category: account.CategoryIncome, Active: true},
	} {
		a.Entity = types.NewEntity(now)
		require.NoError(t, s.CreateAccount(context.Background(), a))
	}
}

// Pair builds a two-leg posting group debiting one account and crediting
// another.
func Pair(key, debit, credit string, amount int64, subjectID string) *journal.PostingGroup {
	now := Now()
	g := &journal.PostingGroup{
		ID:             id.NewPostingGroupID(),
		IdempotencyKey: key,
		Actor:          "storetest",
		CreatedAt:      now,
	}
	for i, leg := range []struct {
		code string
		side types.Side
	}{{debit, types.Debit}, {credit, types.Credit}} {
		g.Entries = append(g.Entries, &journal.Entry{
			ID:             id.NewEntryID(),
			GroupID:        g.ID,
			Line:           i + 1,
			AccountCode:    leg.code,
			Side:           leg.side,
			Amount:         types.USD(amount),
			Description:    "storetest",
			EffectiveDate:  now,
			SubjectID:      subjectID,
			Status:         journal.StatusPosted,
			Actor:          g.Actor,
			IdempotencyKey: key,
			CreatedAt:      now,
		})
	}
	return g
}

func testAccounts(t *testing.T, s store.Store) {
	ctx := context.Background()
	SeedAccounts(t, s)

	dup := &account.Account{Code: "1200", Name: "again", Category: account.CategoryAsset, Entity: types.NewEntity(Now())}
	assert.ErrorIs(t, s.CreateAccount(ctx, dup), ledger.ErrAlreadyExists)

	a, err := s.GetAccount(ctx, "4000")
	require.NoError(t, err)
	assert.Equal(t, "Rental Income", a.Name)
	assert.Equal(t, account.CategoryIncome, a.Category)
	assert.True(t, a.Active)

	_, err = s.GetAccount(ctx, "9999")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)

	a.Active = false
	a.Name = "Rent"
	require.NoError(t, s.UpdateAccount(ctx, a))
	a, err = s.GetAccount(ctx, "4000")
	require.NoError(t, err)
	assert.False(t, a.Active)
	assert.Equal(t, "Rent", a.Name)

	all, err := s.ListAccounts(ctx, account.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "1000", all[0].Code, "ordered by code")

	active, err := s.ListAccounts(ctx, account.ListOpts{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	assets, err := s.ListAccounts(ctx, account.ListOpts{Category: account.CategoryAsset, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "1200", assets[0].Code)

	require.NoError(t, s.AppendGroup(ctx, Pair("", "1200", "1000", 100, "")))
	assert.ErrorIs(t, s.DeleteAccount(ctx, "1200"), ledger.ErrAccountInUse)
	require.NoError(t, s.DeleteAccount(ctx, "4000"))
	assert.ErrorIs(t, s.DeleteAccount(ctx, "4000"), ledger.ErrAccountNotFound)
}

func testAppendAndRead(t *testing.T, s store.Store) {
	ctx := context.Background()
	SeedAccounts(t, s)

	g := Pair("L1-rent-2025-01", "1200", "4000", 50000, "L1")
	require.NoError(t, s.AppendGroup(ctx, g))

	got, err := s.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.ID.String(), got.ID.String())
	assert.Equal(t, "L1-rent-2025-01", got.IdempotencyKey)
	require.Len(t, got.Entries, 2)
	assert.Equal(t, types.Debit, got.Entries[0].Side)
	assert.Equal(t, types.Credit, got.Entries[1].Side)
	assert.True(t, got.Totals().Balanced())
	assert.True(t, got.ReversalOf.IsNil())

	byKey, err := s.GetGroupByKey(ctx, "L1-rent-2025-01")
	require.NoError(t, err)
	assert.Equal(t, g.ID.String(), byKey.ID.String())

	e, err := s.GetEntry(ctx, g.Entries[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "1200", e.AccountCode)
	assert.Equal(t, types.USD(50000), e.Amount)
	assert.Equal(t, "L1", e.SubjectID)
	assert.Equal(t, journal.StatusPosted, e.Status)
	assert.True(t, e.EffectiveDate.Equal(g.Entries[0].EffectiveDate))
	assert.Nil(t, e.VoidedAt)
	assert.True(t, e.VoidOfEntryID.IsNil())

	_, err = s.GetEntry(ctx, id.NewEntryID())
	assert.ErrorIs(t, err, ledger.ErrEntryNotFound)
	_, err = s.GetGroup(ctx, id.NewPostingGroupID())
	assert.ErrorIs(t, err, ledger.ErrGroupNotFound)
	_, err = s.GetGroupByKey(ctx, "nope")
	assert.ErrorIs(t, err, ledger.ErrGroupNotFound)

	// Groups without a key never collide.
	require.NoError(t, s.AppendGroup(ctx, Pair("", "1000", "1200", 100, "L1")))
	require.NoError(t, s.AppendGroup(ctx, Pair("", "1000", "1200", 100, "L1")))
}

func testDuplicateKey(t *testing.T, s store.Store) {
	ctx := context.Background()
	SeedAccounts(t, s)

	require.NoError(t, s.AppendGroup(ctx, Pair("k1", "1200", "4000", 500, "L1")))
	err := s.AppendGroup(ctx, Pair("k1", "1200", "4000", 500, "L1"))
	require.ErrorIs(t, err, ledger.ErrDuplicateKey)

	totals, err := s.SumEntries(ctx, journal.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals.Count, "rejected group must write nothing")
}

func testUnknownAccount(t *testing.T, s store.Store) {
	ctx := context.Background()
	SeedAccounts(t, s)

	err := s.AppendGroup(ctx, Pair("k-bad", "1200", "9999", 500, "L1"))
	require.ErrorIs(t, err, ledger.ErrUnknownAccount)

	totals, err := s.SumEntries(ctx, journal.Filter{})
	require.NoError(t, err)
	assert.Zero(t, totals.Count)
	_, err = s.GetGroupByKey(ctx, "k-bad")
	assert.ErrorIs(t, err, ledger.ErrGroupNotFound)
}

func testConcurrentSameKey(t *testing.T, s store.Store) {
	ctx := context.Background()
	SeedAccounts(t, s)

	const workers = 8
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		dups      atomic.Int32
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.AppendGroup(ctx, Pair("race", "1200", "4000", 700, "L2"))
			switch {
			case err == nil:
				successes.Add(1)
			case assert.ErrorIs(t, err, ledger.ErrDuplicateKey):
				dups.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(workers-1), dups.Load())

	totals, err := s.SumEntries(ctx, journal.Filter{SubjectID: "L2"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals.Count)
}

func testVoidGroup(t *testing.T, s store.Store) {
	ctx := context.Background()
	SeedAccounts(t, s)

	g := Pair("", "1200", "4000", 50000, "L1")
	require.NoError(t, s.AppendGroup(ctx, g))

	at := Now()
	voided, err := s.VoidGroup(ctx, &journal.Void{GroupID: g.ID, Reason: "entered twice", At: at})
	require.NoError(t, err)
	require.Len(t, voided, 2)
	for _, e := range voided {
		assert.Equal(t, journal.StatusVoid, e.Status)
		assert.Equal(t, "entered twice", e.VoidReason)
		require.NotNil(t, e.VoidedAt)
		assert.True(t, e.VoidedAt.Equal(at))
	}

	e, err := s.GetEntry(ctx, g.Entries[0].ID)
	require.NoError(t, err)
	assert.Equal(t, journal.StatusVoid, e.Status)
	assert.Equal(t, types.USD(50000), e.Amount, "amount untouched")
	assert.Equal(t, types.Debit, e.Side, "side untouched")
	assert.Equal(t, "1200", e.AccountCode, "account untouched")

	_, err = s.VoidGroup(ctx, &journal.Void{GroupID: g.ID, Reason: "again", At: Now()})
	assert.ErrorIs(t, err, ledger.ErrAlreadyVoided)

	_, err = s.VoidGroup(ctx, &journal.Void{GroupID: id.NewPostingGroupID(), Reason: "x", At: Now()})
	assert.ErrorIs(t, err, ledger.ErrGroupNotFound)
}

func testVoidWithReversal(t *testing.T, s store.Store) {
	ctx := context.Background()
	SeedAccounts(t, s)

	g := Pair("orig", "1200", "4000", 50000, "L1")
	require.NoError(t, s.AppendGroup(ctx, g))

	at := Now()
	rev := Pair("reversal:"+g.ID.String(), "4000", "1200", 50000, "L1")
	rev.ReversalOf = g.ID
	for i, e := range rev.Entries {
		e.VoidOfEntryID = g.Entries[len(g.Entries)-1-i].ID
		e.Status = journal.StatusVoid
		e.VoidReason = "tenant moved out"
		e.VoidedAt = &at
	}

	_, err := s.VoidGroup(ctx, &journal.Void{GroupID: g.ID, Reason: "tenant moved out", At: at, Reversal: rev})
	require.NoError(t, err)

	got, err := s.GetGroup(ctx, rev.ID)
	require.NoError(t, err)
	assert.Equal(t, g.ID.String(), got.ReversalOf.String())
	assert.Equal(t, journal.StatusVoid, got.Status())
	for _, e := range got.Entries {
		assert.False(t, e.VoidOfEntryID.IsNil())
	}

	// A second void must not append a second reversal.
	rev2 := Pair("reversal:"+g.ID.String()+":2", "4000", "1200", 50000, "L1")
	_, err = s.VoidGroup(ctx, &journal.Void{GroupID: g.ID, Reason: "again", At: Now(), Reversal: rev2})
	require.ErrorIs(t, err, ledger.ErrAlreadyVoided)
	_, err = s.GetGroup(ctx, rev2.ID)
	assert.ErrorIs(t, err, ledger.ErrGroupNotFound)

	posted, err := s.SumEntries(ctx, journal.Filter{Status: journal.StatusPosted})
	require.NoError(t, err)
	assert.Zero(t, posted.Count)

	all, err := s.SumEntries(ctx, journal.Filter{AccountCode: "1200"})
	require.NoError(t, err)
	assert.Equal(t, all.Debits, all.Credits, "all-status history nets to zero")
}

func testListAndSum(t *testing.T, s store.Store) {
	ctx := context.Background()
	SeedAccounts(t, s)

	require.NoError(t, s.AppendGroup(ctx, Pair("a", "1200", "4000", 50000, "L1")))
	require.NoError(t, s.AppendGroup(ctx, Pair("b", "1200", "4000", 30000, "L2")))
	pay := Pair("c", "1000", "1200", 20000, "L1")
	require.NoError(t, s.AppendGroup(ctx, pay))

	entries, err := s.ListEntries(ctx, journal.Filter{AccountCode: "1200", SubjectID: "L1"})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	byGroup, err := s.ListEntries(ctx, journal.Filter{GroupID: pay.ID})
	require.NoError(t, err)
	assert.Len(t, byGroup, 2)

	limited, err := s.ListEntries(ctx, journal.Filter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	ar, err := s.SumEntries(ctx, journal.Filter{AccountCode: "1200", Status: journal.StatusPosted})
	require.NoError(t, err)
	assert.Equal(t, int64(80000), ar.Debits)
	assert.Equal(t, int64(20000), ar.Credits)
	assert.Equal(t, int64(3), ar.Count)

	l1, err := s.SumEntries(ctx, journal.Filter{AccountCode: "1200", SubjectID: "L1"})
	require.NoError(t, err)
	assert.Equal(t, int64(50000), l1.Debits)
	assert.Equal(t, int64(20000), l1.Credits)

	all, err := s.SumEntries(ctx, journal.Filter{Status: journal.StatusPosted})
	require.NoError(t, err)
	assert.True(t, all.Balanced())
	assert.Equal(t, int64(6), all.Count)

	future, err := s.SumEntries(ctx, journal.Filter{From: Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Zero(t, future.Count)

	empty, err := s.SumEntries(ctx, journal.Filter{AccountCode: "9999"})
	require.NoError(t, err)
	assert.Equal(t, journal.Totals{}, empty)
}

func testDefinitions(t *testing.T, s store.Store) {
	ctx := context.Background()

	d := &recurring.Definition{
		Entity:        types.NewEntity(Now()),
		ID:            id.NewDefinitionID(),
		SubjectID:     "L1",
		Description:   "Monthly rent",
		Amount:        types.USD(150000),
		IncomeAccount: "4000",
		DueDay:        1,
		Active:        true,
	}
	require.NoError(t, s.CreateDefinition(ctx, d))
	assert.ErrorIs(t, s.CreateDefinition(ctx, d), ledger.ErrAlreadyExists)

	inactive := *d
	inactive.ID = id.NewDefinitionID()
	inactive.SubjectID = "L2"
	inactive.Active = false
	require.NoError(t, s.CreateDefinition(ctx, &inactive))

	got, err := s.GetDefinition(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, types.USD(150000), got.Amount)
	assert.Equal(t, recurring.Period(""), got.LastChargedPeriod)

	_, err = s.GetDefinition(ctx, id.NewDefinitionID())
	assert.ErrorIs(t, err, ledger.ErrDefinitionNotFound)

	active, err := s.ListDefinitions(ctx, recurring.ListOpts{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, d.ID.String(), active[0].ID.String())

	forL2, err := s.ListDefinitions(ctx, recurring.ListOpts{SubjectID: "L2"})
	require.NoError(t, err)
	assert.Len(t, forL2, 1)

	changed, err := s.MarkCharged(ctx, d.ID, "2025-02")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.MarkCharged(ctx, d.ID, "2025-02")
	require.NoError(t, err)
	assert.False(t, changed, "same period is a no-op")

	changed, err = s.MarkCharged(ctx, d.ID, "2025-01")
	require.NoError(t, err)
	assert.False(t, changed, "never moves backwards")

	_, err = s.MarkCharged(ctx, id.NewDefinitionID(), "2025-01")
	assert.ErrorIs(t, err, ledger.ErrDefinitionNotFound)

	d.Amount = types.USD(160000)
	d.LastChargedPeriod = ""
	d.Touch(Now())
	require.NoError(t, s.UpdateDefinition(ctx, d))

	got, err = s.GetDefinition(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, types.USD(160000), got.Amount)
	assert.Equal(t, recurring.Period("2025-02"), got.LastChargedPeriod, "update leaves the charge marker alone")

	missing := *d
	missing.ID = id.NewDefinitionID()
	assert.ErrorIs(t, s.UpdateDefinition(ctx, &missing), ledger.ErrDefinitionNotFound)
}

func testSubjects(t *testing.T, s store.Store) {
	ctx := context.Background()

	start := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	sub := &recurring.Subject{
		Entity:            types.NewEntity(Now()),
		ID:                "L1",
		Name:              "Unit 4B",
		ReceivableAccount: "1200",
		Status:            recurring.SubjectActive,
		StartDate:         start,
	}
	require.NoError(t, s.UpsertSubject(ctx, sub))

	got, err := s.GetSubject(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, "Unit 4B", got.Name)
	assert.True(t, got.StartDate.Equal(start))
	assert.Nil(t, got.EndDate)

	end := time.Date(2025, time.May, 31, 0, 0, 0, 0, time.UTC)
	sub.Status = recurring.SubjectTerminated
	sub.EndDate = &end
	require.NoError(t, s.UpsertSubject(ctx, sub))

	got, err = s.GetSubject(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, recurring.SubjectTerminated, got.Status)
	require.NotNil(t, got.EndDate)
	assert.True(t, got.EndDate.Equal(end))

	_, err = s.GetSubject(ctx, "nobody")
	assert.ErrorIs(t, err, ledger.ErrSubjectNotFound)
}
