package ledger_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentbook/ledger"
	"github.com/rentbook/ledger/id"
	"github.com/rentbook/ledger/journal"
	"github.com/rentbook/ledger/recurring"
	"github.com/rentbook/ledger/store/memory"
	"github.com/rentbook/ledger/types"
)

var januaryRun = time.Date(2025, time.January, 15, 6, 0, 0, 0, time.UTC)

func addLease(t *testing.T, l *ledger.Ledger, subjectID string, mutate ...func(*recurring.Subject)) {
	t.Helper()
	s := &recurring.Subject{
		ID:                subjectID,
		Name:              "Lease " + subjectID,
		ReceivableAccount: "1200",
		Status:            recurring.SubjectActive,
		StartDate:         time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, fn := range mutate {
		fn(s)
	}
	require.NoError(t, l.UpsertSubject(context.Background(), s))
}

func addCharge(t *testing.T, l *ledger.Ledger, subjectID, income string, cents int64, dueDay int) *recurring.Definition {
	t.Helper()
	d := &recurring.Definition{
		SubjectID:     subjectID,
		Description:   "Monthly rent",
		Amount:        types.USD(cents),
		IncomeAccount: income,
		DueDay:        dueDay,
		Active:        true,
	}
	require.NoError(t, l.CreateDefinition(context.Background(), d))
	return d
}

func TestBillingRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	addLease(t, l, "L1")
	addLease(t, l, "L2")
	rent1 := addCharge(t, l, "L1", "4000", 120000, 1)
	addCharge(t, l, "L2", "4000", 95000, 5)

	first, err := l.RunBillingCycle(ctx, januaryRun)
	require.NoError(t, err)
	assert.Equal(t, recurring.Period("2025-01"), first.Period)
	assert.Len(t, first.Posted, 2)
	assert.Empty(t, first.Skipped)
	assert.Empty(t, first.Errored)
	assert.NoError(t, first.Err())

	assert.Equal(t, int64(120000), balance(t, l, "1200", "L1"))
	assert.Equal(t, int64(95000), balance(t, l, "1200", "L2"))
	assert.Equal(t, int64(215000), balance(t, l, "4000", ""))

	def, err := l.GetDefinition(ctx, rent1.ID)
	require.NoError(t, err)
	assert.Equal(t, recurring.Period("2025-01"), def.LastChargedPeriod)

	key := recurring.IdempotencyKey("L1", rent1.ID, "2025-01")
	g, err := l.GetGroupByKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, ledger.BillingActor, g.Actor)
	assert.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), g.Entries[0].EffectiveDate)

	second, err := l.RunBillingCycle(ctx, januaryRun.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, second.Posted)
	require.Len(t, second.Skipped, 2)
	for _, item := range second.Skipped {
		assert.Equal(t, recurring.ReasonAlreadyPosted, item.Reason)
	}
	assert.Equal(t, int64(215000), balance(t, l, "4000", ""), "second run posts nothing")
}

// lossyMarkerStore commits postings but never records the charged period.
type lossyMarkerStore struct {
	*memory.Store
}

func (lossyMarkerStore) MarkCharged(context.Context, id.DefinitionID, recurring.Period) (bool, error) {
	return false, errors.New("marker write lost")
}

func TestBillingReplaysWhenMarkerIsLost(t *testing.T) {
	ctx := context.Background()
	l := newLedgerWithStore(t, lossyMarkerStore{memory.New()})
	addLease(t, l, "L1")
	addCharge(t, l, "L1", "4000", 120000, 1)

	first, err := l.RunBillingCycle(ctx, januaryRun)
	require.NoError(t, err)
	require.Len(t, first.Posted, 1, "a failed marker does not fail the item")

	second, err := l.RunBillingCycle(ctx, januaryRun)
	require.NoError(t, err)
	require.Len(t, second.Skipped, 1)
	item := second.Skipped[0]
	assert.Equal(t, recurring.ReasonDuplicateKey, item.Reason)
	assert.Equal(t, first.Posted[0].GroupID.String(), item.GroupID.String())

	assert.Equal(t, int64(120000), balance(t, l, "1200", "L1"))
}

func TestBillingIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	addLease(t, l, "L1")
	addCharge(t, l, "L1", "4000", 120000, 1)
	broken := addCharge(t, l, "L1", "4100", 5000, 1)
	require.NoError(t, l.SetAccountActive(ctx, "4100", false))

	report, err := l.RunBillingCycle(ctx, januaryRun)
	require.NoError(t, err)
	assert.Len(t, report.Posted, 1)
	require.Len(t, report.Errored, 1)
	assert.Equal(t, broken.ID.String(), report.Errored[0].DefinitionID.String())
	assert.ErrorIs(t, report.Errored[0].Err, ledger.ErrInactiveAccount)
	assert.ErrorIs(t, report.Err(), ledger.ErrInactiveAccount)

	def, err := l.GetDefinition(ctx, broken.ID)
	require.NoError(t, err)
	assert.Empty(t, def.LastChargedPeriod, "failed items stay chargeable")

	require.NoError(t, l.SetAccountActive(ctx, "4100", true))
	retry, err := l.RunBillingCycle(ctx, januaryRun)
	require.NoError(t, err)
	assert.Len(t, retry.Posted, 1)
	assert.Len(t, retry.Skipped, 1)
	assert.Equal(t, int64(125000), balance(t, l, "1200", "L1"))
}

func TestBillingLeavesOutIneligibleDefinitions(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	addLease(t, l, "not-due")
	addCharge(t, l, "not-due", "4000", 100, 20)

	addLease(t, l, "ended", func(s *recurring.Subject) {
		end := time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC)
		s.EndDate = &end
	})
	addCharge(t, l, "ended", "4000", 100, 1)

	addLease(t, l, "future", func(s *recurring.Subject) {
		s.StartDate = time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	})
	addCharge(t, l, "future", "4000", 100, 1)

	addLease(t, l, "terminated", func(s *recurring.Subject) { s.Status = recurring.SubjectTerminated })
	addCharge(t, l, "terminated", "4000", 100, 1)

	addLease(t, l, "paused")
	paused := addCharge(t, l, "paused", "4000", 100, 1)
	paused.Active = false
	require.NoError(t, l.UpdateDefinition(ctx, paused))

	report, err := l.RunBillingCycle(ctx, januaryRun)
	require.NoError(t, err)
	assert.Empty(t, report.Posted)
	assert.Empty(t, report.Skipped)
	assert.Empty(t, report.Errored)

	entries, err := l.ListEntries(ctx, journal.Filter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBillingMissingSubjectIsErrored(t *testing.T) {
	l := newLedger(t)
	addCharge(t, l, "ghost", "4000", 100, 1)

	report, err := l.RunBillingCycle(context.Background(), januaryRun)
	require.NoError(t, err)
	require.Len(t, report.Errored, 1)
	assert.ErrorIs(t, report.Errored[0].Err, ledger.ErrSubjectNotFound)
}

func TestBillingClampsDueDayToMonthEnd(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	addLease(t, l, "L1")
	d := addCharge(t, l, "L1", "4000", 100, 31)

	early, err := l.RunBillingCycle(ctx, time.Date(2025, time.February, 27, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, early.Posted)

	report, err := l.RunBillingCycle(ctx, time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, report.Posted, 1)

	g, err := l.GetGroupByKey(ctx, recurring.IdempotencyKey("L1", d.ID, "2025-02"))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC), g.Entries[0].EffectiveDate)
}

func TestConcurrentBillingRuns(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, ledger.WithBillingConcurrency(3))

	const leases = 12
	for i := range leases {
		subject := string(rune('A' + i))
		addLease(t, l, subject)
		addCharge(t, l, subject, "4000", 1000, 1)
	}

	const runs = 4
	var (
		wg     sync.WaitGroup
		posted atomic.Int32
	)
	for range runs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := l.RunBillingCycle(ctx, januaryRun)
			if !assert.NoError(t, err) {
				return
			}
			assert.Empty(t, report.Errored)
			posted.Add(int32(len(report.Posted)))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(leases), posted.Load(), "each definition posts once")
	assert.Equal(t, int64(leases*1000), balance(t, l, "4000", ""))

	check, err := l.CheckIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, check.Balanced)
	assert.Equal(t, int64(leases*2), check.EntryCount)
}

// flakyStore fails the first appends as if the database were restarting.
type flakyStore struct {
	*memory.Store
	failures atomic.Int32
}

func (s *flakyStore) AppendGroup(ctx context.Context, g *journal.PostingGroup) error {
	if s.failures.Add(-1) >= 0 {
		return ledger.Unavailable("append group", errors.New("connection reset"))
	}
	return s.Store.AppendGroup(ctx, g)
}

func TestBillingRetriesUnavailableStorage(t *testing.T) {
	ctx := context.Background()
	s := &flakyStore{Store: memory.New()}
	l := newLedgerWithStore(t, s, ledger.WithBillingRetry(4, time.Millisecond))
	addLease(t, l, "L1")
	addCharge(t, l, "L1", "4000", 120000, 1)

	s.failures.Store(2)
	report, err := l.RunBillingCycle(ctx, januaryRun)
	require.NoError(t, err)
	assert.Len(t, report.Posted, 1)
	assert.Equal(t, int64(120000), balance(t, l, "1200", "L1"))

	addLease(t, l, "L2")
	addCharge(t, l, "L2", "4000", 100, 1)
	s.failures.Store(10)
	report, err = l.RunBillingCycle(ctx, januaryRun)
	require.NoError(t, err)
	require.Len(t, report.Errored, 1)
	assert.True(t, ledger.IsRetryable(report.Errored[0].Err))
}

func TestBillingRateLimit(t *testing.T) {
	l := newLedger(t, ledger.WithBillingRateLimit(1000, 1))
	addLease(t, l, "L1")
	addCharge(t, l, "L1", "4000", 100, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	report, err := l.RunBillingCycle(ctx, januaryRun)
	require.NoError(t, err)
	assert.Len(t, report.Posted, 1)
}

func TestDefinitionCurrencyMustMatch(t *testing.T) {
	l := newLedger(t)
	err := l.CreateDefinition(context.Background(), &recurring.Definition{
		SubjectID: "L1", Amount: types.EUR(100), IncomeAccount: "4000", DueDay: 1, Active: true,
	})
	assert.ErrorIs(t, err, ledger.ErrCurrencyMismatch)

	err = l.CreateDefinition(context.Background(), &recurring.Definition{
		SubjectID: "L1", Amount: types.USD(100), IncomeAccount: "4000", DueDay: 0, Active: true,
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)
}
