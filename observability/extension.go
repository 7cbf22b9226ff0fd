// Package observability provides a metrics extension for the ledger that
// records lifecycle event counts via a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/rentbook/ledger/account"
	"github.com/rentbook/ledger/journal"
	"github.com/rentbook/ledger/plugin"
	"github.com/rentbook/ledger/recurring"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnGroupPosted         = (*MetricsExtension)(nil)
	_ plugin.OnPostingReplayed     = (*MetricsExtension)(nil)
	_ plugin.OnPostingRejected     = (*MetricsExtension)(nil)
	_ plugin.OnGroupVoided         = (*MetricsExtension)(nil)
	_ plugin.OnBillingRunCompleted = (*MetricsExtension)(nil)
	_ plugin.OnIntegrityChecked    = (*MetricsExtension)(nil)
	_ plugin.OnAccountCreated      = (*MetricsExtension)(nil)
	_ plugin.OnAccountUpdated      = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// Gauge interface for metric gauges.
type Gauge interface {
	Set(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
	Gauge(name string) Gauge
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a ledger plugin to track posting and billing activity.
type MetricsExtension struct {
	factory MetricFactory

	// Posting metrics
	PostingsCommitted Counter
	PostingsReplayed  Counter
	PostingsRejected  Counter
	EntriesWritten    Counter
	PostingAmount     Histogram

	// Void metrics
	GroupsVoided     Counter
	ReversalsWritten Counter

	// Billing metrics
	BillingRuns       Counter
	BillingPosted     Counter
	BillingSkipped    Counter
	BillingErrored    Counter
	BillingRunLatency Histogram

	// Integrity metrics
	IntegrityChecks      Counter
	IntegrityFailures    Counter
	IntegrityDiscrepancy Gauge

	// Chart of accounts metrics
	AccountsCreated Counter
	AccountsUpdated Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		PostingsCommitted: factory.Counter("ledger.posting.committed"),
		PostingsReplayed:  factory.Counter("ledger.posting.replayed"),
		PostingsRejected:  factory.Counter("ledger.posting.rejected"),
		EntriesWritten:    factory.Counter("ledger.entries.written"),
		PostingAmount:     factory.Histogram("ledger.posting.amount_minor"),

		GroupsVoided:     factory.Counter("ledger.posting.voided"),
		ReversalsWritten: factory.Counter("ledger.posting.reversals"),

		BillingRuns:       factory.Counter("ledger.billing.runs"),
		BillingPosted:     factory.Counter("ledger.billing.items.posted"),
		BillingSkipped:    factory.Counter("ledger.billing.items.skipped"),
		BillingErrored:    factory.Counter("ledger.billing.items.errored"),
		BillingRunLatency: factory.Histogram("ledger.billing.run.latency_ms"),

		IntegrityChecks:      factory.Counter("ledger.integrity.checks"),
		IntegrityFailures:    factory.Counter("ledger.integrity.failures"),
		IntegrityDiscrepancy: factory.Gauge("ledger.integrity.discrepancy_minor"),

		AccountsCreated: factory.Counter("ledger.account.created"),
		AccountsUpdated: factory.Counter("ledger.account.updated"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ──────────────────────────────────────────────────
// Posting hooks
// ──────────────────────────────────────────────────

// OnGroupPosted implements plugin.OnGroupPosted.
func (m *MetricsExtension) OnGroupPosted(_ context.Context, g *journal.PostingGroup) error {
	m.PostingsCommitted.Inc()
	m.EntriesWritten.Add(float64(len(g.Entries)))
	m.PostingAmount.Observe(float64(g.Totals().Debits))
	return nil
}

// OnPostingReplayed implements plugin.OnPostingReplayed.
func (m *MetricsExtension) OnPostingReplayed(_ context.Context, _ *journal.PostingGroup) error {
	m.PostingsReplayed.Inc()
	return nil
}

// OnPostingRejected implements plugin.OnPostingRejected.
func (m *MetricsExtension) OnPostingRejected(_ context.Context, _ string, _ error) error {
	m.PostingsRejected.Inc()
	return nil
}

// OnGroupVoided implements plugin.OnGroupVoided.
func (m *MetricsExtension) OnGroupVoided(_ context.Context, res *journal.VoidResult) error {
	m.GroupsVoided.Inc()
	if res.Reversal != nil {
		m.ReversalsWritten.Inc()
		m.EntriesWritten.Add(float64(len(res.Reversal.Entries)))
	}
	return nil
}

// ──────────────────────────────────────────────────
// Billing and integrity hooks
// ──────────────────────────────────────────────────

// OnBillingRunCompleted implements plugin.OnBillingRunCompleted.
func (m *MetricsExtension) OnBillingRunCompleted(_ context.Context, report *recurring.RunReport, elapsed time.Duration) error {
	posted, skipped, errored := report.Counts()
	m.BillingRuns.Inc()
	m.BillingPosted.Add(float64(posted))
	m.BillingSkipped.Add(float64(skipped))
	m.BillingErrored.Add(float64(errored))
	m.BillingRunLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// OnIntegrityChecked implements plugin.OnIntegrityChecked.
func (m *MetricsExtension) OnIntegrityChecked(_ context.Context, report *journal.IntegrityReport) error {
	m.IntegrityChecks.Inc()
	if !report.Balanced {
		m.IntegrityFailures.Inc()
	}
	m.IntegrityDiscrepancy.Set(float64(report.Discrepancy.Amount))
	return nil
}

// ──────────────────────────────────────────────────
// Chart of accounts hooks
// ──────────────────────────────────────────────────

// OnAccountCreated implements plugin.OnAccountCreated.
func (m *MetricsExtension) OnAccountCreated(_ context.Context, _ *account.Account) error {
	m.AccountsCreated.Inc()
	return nil
}

// OnAccountUpdated implements plugin.OnAccountUpdated.
func (m *MetricsExtension) OnAccountUpdated(_ context.Context, _, _ *account.Account) error {
	m.AccountsUpdated.Inc()
	return nil
}
