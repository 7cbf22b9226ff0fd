package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/rentbook/ledger/journal"
	"github.com/rentbook/ledger/recurring"
	"github.com/rentbook/ledger/types"
)

// BillingActor is recorded on entries posted by billing runs.
const BillingActor = "billing-run"

// RunBillingCycle posts every active definition that is due and eligible as
// of asOf. Each definition is its own atomic posting; a failure is recorded
// on the report and never stops the run. Running the same cycle again is
// safe: already charged definitions come back as SKIPPED.
//
// The returned error is non-nil only when the definitions cannot be listed.
// Per-item failures are in the report; use RunReport.Err to collect them.
func (l *Ledger) RunBillingCycle(ctx context.Context, asOf time.Time) (*recurring.RunReport, error) {
	asOf = asOf.UTC()
	report := recurring.NewRunReport(asOf, l.clock())

	defs, err := l.store.ListDefinitions(ctx, recurring.ListOpts{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("billing run: list definitions: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(l.billingConcurrency)
	for _, d := range defs {
		g.Go(func() error {
			l.billDefinition(ctx, report, d, asOf)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // items report their own failures

	report.FinishedAt = l.clock()
	elapsed := report.FinishedAt.Sub(report.StartedAt)

	posted, skipped, errored := report.Counts()
	attrs := []any{
		"run_id", report.ID.String(),
		"period", report.Period.String(),
		"posted", posted,
		"skipped", skipped,
		"errored", errored,
		"elapsed", elapsed,
	}
	if errored > 0 {
		l.logger.Warn("billing run finished with errors", attrs...)
	} else {
		l.logger.Info("billing run finished", attrs...)
	}
	l.plugins.EmitBillingRunCompleted(ctx, report, elapsed)
	return report, nil
}

// billDefinition handles one definition. Definitions that are not due or
// whose subject is not eligible are left out of the report.
func (l *Ledger) billDefinition(ctx context.Context, report *recurring.RunReport, d *recurring.Definition, asOf time.Time) {
	item := recurring.RunItem{DefinitionID: d.ID, SubjectID: d.SubjectID, Amount: d.Amount}
	fail := func(err error) {
		item.Outcome = recurring.OutcomeErrored
		item.Err = err
		item.Reason = err.Error()
		report.Record(item)
		l.logger.Warn("billing item failed",
			"definition_id", d.ID.String(),
			"subject_id", d.SubjectID,
			"period", report.Period.String(),
			"error", err,
		)
	}

	if !d.IsDue(asOf) {
		return
	}
	subject, err := l.store.GetSubject(ctx, d.SubjectID)
	if err != nil {
		fail(err)
		return
	}
	if !subject.EligibleAt(asOf) {
		return
	}

	unlock := l.definitionLocks.Lock(d.ID.String())
	defer unlock()

	// Another run may have charged this definition since it was listed.
	fresh, err := l.store.GetDefinition(ctx, d.ID)
	if err != nil {
		fail(err)
		return
	}
	if fresh.ChargedIn(report.Period) {
		item.Outcome = recurring.OutcomeSkipped
		item.Reason = recurring.ReasonAlreadyPosted
		report.Record(item)
		l.logger.Debug("billing item skipped",
			"definition_id", d.ID.String(),
			"period", report.Period.String(),
			"reason", item.Reason,
		)
		return
	}

	if l.billingLimiter != nil {
		if err := l.billingLimiter.Wait(ctx); err != nil {
			fail(err)
			return
		}
	}

	res, err := l.postWithRetry(ctx, chargeRequest(fresh, subject, report.Period))
	if err != nil {
		fail(err)
		return
	}

	item.GroupID = res.Group.ID
	if res.Replayed {
		item.Outcome = recurring.OutcomeSkipped
		item.Reason = recurring.ReasonDuplicateKey
	} else {
		item.Outcome = recurring.OutcomePosted
	}

	if _, err := l.store.MarkCharged(ctx, d.ID, report.Period); err != nil {
		// The posting stands; the next run replays its key and marks again.
		l.logger.Warn("billing marker not updated",
			"definition_id", d.ID.String(),
			"period", report.Period.String(),
			"error", err,
		)
	}
	report.Record(item)
}

// chargeRequest debits the subject's receivable and credits the income
// account, dated on the definition's due day within period.
func chargeRequest(d *recurring.Definition, s *recurring.Subject, period recurring.Period) *PostRequest {
	start := period.Start()
	dueDay := min(d.DueDay, recurring.DaysIn(start))
	effective := start.AddDate(0, 0, dueDay-1)

	description := d.Description
	if description == "" {
		description = "recurring charge " + period.String()
	}
	return &PostRequest{
		IdempotencyKey: recurring.IdempotencyKey(s.ID, d.ID, period),
		Actor:          BillingActor,
		Memo:           fmt.Sprintf("%s for %s", description, period),
		Entries: []journal.EntrySpec{
			{
				AccountCode:   s.ReceivableAccount,
				Side:          types.Debit,
				Amount:        d.Amount,
				Description:   description,
				EffectiveDate: effective,
				SubjectID:     s.ID,
			},
			{
				AccountCode:   d.IncomeAccount,
				Side:          types.Credit,
				Amount:        d.Amount,
				Description:   description,
				EffectiveDate: effective,
				SubjectID:     s.ID,
			},
		},
	}
}

// postWithRetry retries Post while storage reports itself unavailable.
// The idempotency key makes every retry safe.
func (l *Ledger) postWithRetry(ctx context.Context, req *PostRequest) (*PostResult, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.billingBackoff

	return backoff.Retry(ctx, func() (*PostResult, error) {
		res, err := l.Post(ctx, req)
		if err != nil && !IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return res, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(l.billingMaxTries))
}

// keyedMutex serialises work per key. Entries are dropped once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

// Lock acquires the lock for key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
