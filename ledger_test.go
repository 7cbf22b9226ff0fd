package ledger_test

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentbook/ledger"
	"github.com/rentbook/ledger/account"
	"github.com/rentbook/ledger/journal"
	"github.com/rentbook/ledger/store"
	"github.com/rentbook/ledger/store/memory"
	"github.com/rentbook/ledger/types"
)

var testNow = time.Date(2025, time.January, 15, 9, 30, 0, 0, time.UTC)

func chart() []*account.Account {
	return []*account.Account{
		{Code: "1000", Name: "Operating cash", Category: account.CategoryAsset, Active: true},
		{Code: "1200", Name: "Tenant receivables", Category: account.CategoryAsset, Active: true},
		{Code: "2100", Name: "Security deposits held", Category: account.CategoryLiability, Active: true},
		{Code: "4000", Name: "Rental income", Category: account.CategoryIncome, Active: true},
		{Code: "4100", Name: "Late fee income", Category: account.CategoryIncome, Active: true},
	}
}

func newLedgerWithStore(t *testing.T, s store.Store, opts ...ledger.Option) *ledger.Ledger {
	t.Helper()
	opts = append([]ledger.Option{ledger.WithClock(func() time.Time { return testNow })}, opts...)
	l := ledger.New(s, opts...)

	ctx := context.Background()
	require.NoError(t, l.Start(ctx))
	t.Cleanup(func() { _ = l.Stop() })

	n, err := l.SeedAccounts(ctx, chart())
	require.NoError(t, err)
	require.Equal(t, len(chart()), n)
	return l
}

func newLedger(t *testing.T, opts ...ledger.Option) *ledger.Ledger {
	t.Helper()
	return newLedgerWithStore(t, memory.New(), opts...)
}

func rentPosting(key string, cents int64) *ledger.PostRequest {
	return &ledger.PostRequest{
		IdempotencyKey: key,
		Memo:           "January rent",
		Entries: []journal.EntrySpec{
			{AccountCode: "1200", Side: types.Debit, Amount: types.USD(cents), SubjectID: "L1"},
			{AccountCode: "4000", Side: types.Credit, Amount: types.USD(cents), SubjectID: "L1"},
		},
	}
}

func balance(t *testing.T, l *ledger.Ledger, code, subjectID string) int64 {
	t.Helper()
	b, err := l.Balance(context.Background(), code, subjectID)
	require.NoError(t, err)
	return b.Amount
}

func TestPostAndReplay(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	first, err := l.Post(ctx, rentPosting("L1-rent-2025-01", 50000))
	require.NoError(t, err)
	assert.False(t, first.Replayed)
	require.Len(t, first.Group.Entries, 2)
	for i, e := range first.Group.Entries {
		assert.Equal(t, i+1, e.Line)
		assert.Equal(t, journal.StatusPosted, e.Status)
		assert.Equal(t, "L1-rent-2025-01", e.IdempotencyKey)
		assert.Equal(t, testNow, e.EffectiveDate, "effective date defaults to now")
	}

	assert.Equal(t, int64(50000), balance(t, l, "1200", "L1"))
	assert.Equal(t, int64(50000), balance(t, l, "4000", ""))
	assert.Equal(t, int64(0), balance(t, l, "1200", "L2"))

	again, err := l.Post(ctx, rentPosting("L1-rent-2025-01", 50000))
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Group.ID.String(), again.Group.ID.String())
	assert.Equal(t, int64(50000), balance(t, l, "1200", "L1"), "replay must not double count")

	entries, err := l.ListEntries(ctx, journal.Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestPostWithoutKeyIsNotDeduplicated(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	_, err := l.Post(ctx, rentPosting("", 100))
	require.NoError(t, err)
	_, err = l.Post(ctx, rentPosting("", 100))
	require.NoError(t, err)

	assert.Equal(t, int64(200), balance(t, l, "1200", "L1"))
}

func TestPostValidation(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	require.NoError(t, l.SetAccountActive(ctx, "4100", false))

	leg := func(code string, side types.Side, m types.Money) journal.EntrySpec {
		return journal.EntrySpec{AccountCode: code, Side: side, Amount: m}
	}

	tests := []struct {
		name    string
		entries []journal.EntrySpec
		want    error
	}{
		{
			name:    "single entry",
			entries: []journal.EntrySpec{leg("1200", types.Debit, types.USD(100))},
			want:    ledger.ErrInvalidInput,
		},
		{
			name:    "missing account",
			entries: []journal.EntrySpec{leg("", types.Debit, types.USD(100)), leg("4000", types.Credit, types.USD(100))},
			want:    ledger.ErrInvalidInput,
		},
		{
			name:    "bad side",
			entries: []journal.EntrySpec{leg("1200", "LEFT", types.USD(100)), leg("4000", types.Credit, types.USD(100))},
			want:    ledger.ErrInvalidInput,
		},
		{
			name:    "zero amount",
			entries: []journal.EntrySpec{leg("1200", types.Debit, types.USD(0)), leg("4000", types.Credit, types.USD(0))},
			want:    ledger.ErrInvalidAmount,
		},
		{
			name:    "negative amount",
			entries: []journal.EntrySpec{leg("1200", types.Debit, types.USD(-100)), leg("4000", types.Credit, types.USD(-100))},
			want:    ledger.ErrInvalidAmount,
		},
		{
			name:    "foreign currency",
			entries: []journal.EntrySpec{leg("1200", types.Debit, types.EUR(100)), leg("4000", types.Credit, types.EUR(100))},
			want:    ledger.ErrCurrencyMismatch,
		},
		{
			name:    "unbalanced",
			entries: []journal.EntrySpec{leg("1200", types.Debit, types.USD(100)), leg("4000", types.Credit, types.USD(99))},
			want:    ledger.ErrUnbalanced,
		},
		{
			name:    "one sided",
			entries: []journal.EntrySpec{leg("1200", types.Debit, types.USD(100)), leg("1000", types.Debit, types.USD(100))},
			want:    ledger.ErrUnbalanced,
		},
		{
			name:    "unknown account",
			entries: []journal.EntrySpec{leg("1200", types.Debit, types.USD(100)), leg("9999", types.Credit, types.USD(100))},
			want:    ledger.ErrUnknownAccount,
		},
		{
			name:    "inactive account",
			entries: []journal.EntrySpec{leg("1200", types.Debit, types.USD(100)), leg("4100", types.Credit, types.USD(100))},
			want:    ledger.ErrInactiveAccount,
		},
		{
			name: "overflowing debits",
			entries: []journal.EntrySpec{
				leg("1200", types.Debit, types.USD(math.MaxInt64)),
				leg("1200", types.Debit, types.USD(1)),
				leg("4000", types.Credit, types.USD(1)),
			},
			want: ledger.ErrInvalidAmount,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Post(ctx, &ledger.PostRequest{IdempotencyKey: "k-" + tt.name, Entries: tt.entries})
			require.ErrorIs(t, err, tt.want)
			assert.True(t, ledger.IsValidation(err))
			assert.False(t, ledger.IsRetryable(err))
		})
	}

	entries, err := l.ListEntries(ctx, journal.Filter{})
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected postings write nothing")

	_, err = l.GetGroupByKey(ctx, "k-unbalanced")
	assert.True(t, ledger.IsNotFound(err), "a rejected key stays free")
}

func TestPostRejectsWrappedTotals(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	// 2*MaxInt64 + 7 wraps to 5 in int64, matching the credit side.
	_, err := l.Post(ctx, &ledger.PostRequest{
		IdempotencyKey: "wrap",
		Entries: []journal.EntrySpec{
			{AccountCode: "1200", Side: types.Debit, Amount: types.USD(math.MaxInt64)},
			{AccountCode: "1200", Side: types.Debit, Amount: types.USD(math.MaxInt64)},
			{AccountCode: "1000", Side: types.Debit, Amount: types.USD(7)},
			{AccountCode: "4000", Side: types.Credit, Amount: types.USD(5)},
		},
	})
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)
	assert.Contains(t, err.Error(), "line 2")

	report, err := l.CheckIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.Balanced)
	assert.Zero(t, report.EntryCount)
	assert.Zero(t, balance(t, l, "1200", ""))
	assert.Zero(t, balance(t, l, "1000", ""))
}

func TestOverflowedSumsFailClosed(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	// Each group balances on its own; together they leave the int64 range.
	_, err := l.Post(ctx, rentPosting("big-1", math.MaxInt64))
	require.NoError(t, err)
	_, err = l.Post(ctx, rentPosting("big-2", math.MaxInt64))
	require.NoError(t, err)

	_, err = l.Balance(ctx, "1200", "")
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)
	_, err = l.TrialBalance(ctx)
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)

	report, err := l.CheckIntegrity(ctx)
	require.NoError(t, err)
	assert.False(t, report.Balanced, "wrapped sums are never reported balanced")
}

func TestPostDefaultsCurrency(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	res, err := l.Post(ctx, &ledger.PostRequest{Entries: []journal.EntrySpec{
		{AccountCode: "1000", Side: types.Debit, Amount: types.Money{Amount: 2500}},
		{AccountCode: "2100", Side: types.Credit, Amount: types.Money{Amount: 2500, Currency: "USD"}},
	}})
	require.NoError(t, err)
	for _, e := range res.Group.Entries {
		assert.Equal(t, "usd", e.Amount.Currency)
	}
}

func TestConcurrentPostSameKey(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[string]int{}
		created int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Post(ctx, rentPosting("L1-rent-2025-01", 50000))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[res.Group.ID.String()]++
			if !res.Replayed {
				created++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 1, "every caller sees the same group")
	assert.Equal(t, 1, created)
	assert.Equal(t, int64(50000), balance(t, l, "1200", "L1"))
}

func TestActorFromContext(t *testing.T) {
	l := newLedger(t)
	ctx := ledger.WithActor(context.Background(), "manager:42")

	res, err := l.Post(ctx, rentPosting("", 100))
	require.NoError(t, err)
	assert.Equal(t, "manager:42", res.Group.Actor)
	for _, e := range res.Group.Entries {
		assert.Equal(t, "manager:42", e.Actor)
	}

	req := rentPosting("", 100)
	req.Actor = "import"
	res, err = l.Post(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "import", res.Group.Actor, "explicit actor wins")
}

func TestVoidWithReversal(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	posted, err := l.Post(ctx, rentPosting("L1-rent-2025-01", 50000))
	require.NoError(t, err)

	res, err := l.Void(ctx, posted.Group.Entries[0].ID, "entered twice", true)
	require.NoError(t, err)
	require.Len(t, res.Voided, 2, "voiding one leg voids the whole group")
	for _, e := range res.Voided {
		assert.Equal(t, journal.StatusVoid, e.Status)
		assert.Equal(t, "entered twice", e.VoidReason)
		require.NotNil(t, e.VoidedAt)
	}

	require.NotNil(t, res.Reversal)
	assert.Equal(t, posted.Group.ID.String(), res.Reversal.ReversalOf.String())
	assert.Equal(t, ledger.ReversalKeyPrefix+posted.Group.ID.String(), res.Reversal.IdempotencyKey)
	require.Len(t, res.Reversal.Entries, 2)
	for i, e := range res.Reversal.Entries {
		orig := posted.Group.Entries[i]
		assert.Equal(t, orig.ID.String(), e.VoidOfEntryID.String())
		assert.Equal(t, orig.Side.Opposite(), e.Side)
		assert.Equal(t, orig.Amount, e.Amount)
		assert.Equal(t, orig.AccountCode, e.AccountCode)
	}

	assert.Equal(t, int64(0), balance(t, l, "1200", "L1"))
	assert.Equal(t, int64(0), balance(t, l, "4000", ""))

	report, err := l.CheckIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.Balanced)
	assert.True(t, report.Discrepancy.IsZero())

	all, err := l.ListEntries(ctx, journal.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	var raw journal.Totals
	for _, e := range all {
		raw.Add(e)
	}
	assert.True(t, raw.Balanced(), "original and reversal net to zero")

	// The original amounts are untouched.
	orig, err := l.GetEntry(ctx, posted.Group.Entries[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), orig.Amount.Amount)
	assert.Equal(t, types.Debit, orig.Side)

	_, err = l.Void(ctx, posted.Group.Entries[1].ID, "again", true)
	assert.ErrorIs(t, err, ledger.ErrAlreadyVoided)
}

func TestVoidWithoutReversal(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	posted, err := l.Post(ctx, rentPosting("k", 7500))
	require.NoError(t, err)

	res, err := l.Void(ctx, posted.Group.Entries[1].ID, "wrong lease", false)
	require.NoError(t, err)
	assert.Nil(t, res.Reversal)

	g, err := l.GetGroup(ctx, posted.Group.ID)
	require.NoError(t, err)
	assert.Equal(t, journal.StatusVoid, g.Status())
	assert.Equal(t, int64(0), balance(t, l, "1200", ""))

	report, err := l.CheckIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.Balanced)
	assert.Zero(t, report.EntryCount)

	// A replay after a void still returns the voided group.
	again, err := l.Post(ctx, rentPosting("k", 7500))
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, int64(0), balance(t, l, "1200", ""))
}

func TestVoidRequiresReason(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	posted, err := l.Post(ctx, rentPosting("", 100))
	require.NoError(t, err)

	_, err = l.Void(ctx, posted.Group.Entries[0].ID, "  ", false)
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)

	_, err = l.Void(ctx, ledger.ID{}, "reason", false)
	assert.True(t, ledger.IsNotFound(err))
}

func TestConcurrentVoid(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	posted, err := l.Post(ctx, rentPosting("", 100))
	require.NoError(t, err)

	const workers = 8
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ok  int
		bad int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Void(ctx, posted.Group.Entries[0].ID, "race", true)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if assert.ErrorIs(t, err, ledger.ErrAlreadyVoided) {
				bad++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, bad)

	all, err := l.ListEntries(ctx, journal.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 4, "exactly one reversal")
}

func TestBalanceUnknownAccount(t *testing.T) {
	l := newLedger(t)
	_, err := l.Balance(context.Background(), "9999", "")
	assert.ErrorIs(t, err, ledger.ErrUnknownAccount)
}

func TestTrialBalance(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	_, err := l.Post(ctx, rentPosting("", 50000))
	require.NoError(t, err)
	_, err = l.Post(ctx, &ledger.PostRequest{Entries: []journal.EntrySpec{
		{AccountCode: "1000", Side: types.Debit, Amount: types.USD(30000)},
		{AccountCode: "1200", Side: types.Credit, Amount: types.USD(30000), SubjectID: "L1"},
	}})
	require.NoError(t, err)

	lines, err := l.TrialBalance(ctx)
	require.NoError(t, err)
	require.Len(t, lines, len(chart()))

	got := map[string]int64{}
	var debits, credits int64
	for _, line := range lines {
		got[line.Account.Code] = line.Balance.Amount
		debits += line.Debits.Amount
		credits += line.Credits.Amount
	}
	assert.Equal(t, int64(30000), got["1000"])
	assert.Equal(t, int64(20000), got["1200"])
	assert.Equal(t, int64(50000), got["4000"])
	assert.Equal(t, int64(0), got["2100"])
	assert.Equal(t, debits, credits)
}

func TestAccountStructureFreezesOnceUsed(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	_, err := l.Post(ctx, rentPosting("", 100))
	require.NoError(t, err)

	used, err := l.GetAccount(ctx, "4000")
	require.NoError(t, err)
	used.Category = account.CategoryLiability
	assert.ErrorIs(t, l.UpdateAccount(ctx, used), ledger.ErrAccountImmutable)

	used, err = l.GetAccount(ctx, "4000")
	require.NoError(t, err)
	used.Name = "Residential rent"
	require.NoError(t, l.UpdateAccount(ctx, used))

	unused, err := l.GetAccount(ctx, "2100")
	require.NoError(t, err)
	unused.Category = account.CategoryEquity
	unused.NormalBalance = ""
	require.NoError(t, l.UpdateAccount(ctx, unused))

	assert.ErrorIs(t, l.DeleteAccount(ctx, "4000"), ledger.ErrAccountInUse)
	require.NoError(t, l.DeleteAccount(ctx, "2100"))
	_, err = l.GetAccount(ctx, "2100")
	assert.True(t, ledger.IsNotFound(err))
}

func TestDeactivatedAccountRejectsNewPostings(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	_, err := l.Post(ctx, rentPosting("", 100))
	require.NoError(t, err)
	require.NoError(t, l.SetAccountActive(ctx, "4000", false))

	_, err = l.Post(ctx, rentPosting("", 100))
	assert.ErrorIs(t, err, ledger.ErrInactiveAccount)
	assert.Equal(t, int64(100), balance(t, l, "4000", ""), "history stays readable")
}

func TestSeedAccounts(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	n, err := l.SeedAccounts(ctx, chart())
	require.NoError(t, err)
	assert.Zero(t, n, "existing accounts are left alone")

	n, err = l.SeedAccounts(ctx, []*account.Account{
		{Code: "5000", Name: "Repairs", Category: account.CategoryExpense, Active: true},
		{Code: "5100", Name: "", Category: account.CategoryExpense},
		{Code: "5200", Name: "Bad", Category: "REVENUE"},
	})
	assert.Equal(t, 1, n)
	var multi ledger.MultiError
	require.ErrorAs(t, err, &multi)
	assert.Len(t, multi.Errors, 2)
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)

	repairs, err := l.GetAccount(ctx, "5000")
	require.NoError(t, err)
	assert.Equal(t, types.Debit, repairs.NormalSide())
}
