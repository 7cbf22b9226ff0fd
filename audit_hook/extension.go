// Package audithook bridges ledger lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import any
// audit backend directly. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rentbook/ledger/account"
	"github.com/rentbook/ledger/journal"
	"github.com/rentbook/ledger/plugin"
	"github.com/rentbook/ledger/recurring"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnGroupPosted         = (*Extension)(nil)
	_ plugin.OnPostingReplayed     = (*Extension)(nil)
	_ plugin.OnPostingRejected     = (*Extension)(nil)
	_ plugin.OnGroupVoided         = (*Extension)(nil)
	_ plugin.OnBillingRunCompleted = (*Extension)(nil)
	_ plugin.OnIntegrityChecked    = (*Extension)(nil)
	_ plugin.OnAccountCreated      = (*Extension)(nil)
	_ plugin.OnAccountUpdated      = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audit trail record.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges ledger lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Posting hooks
// ──────────────────────────────────────────────────

// OnGroupPosted implements plugin.OnGroupPosted.
func (e *Extension) OnGroupPosted(ctx context.Context, g *journal.PostingGroup) error {
	t := g.Totals()
	return e.record(ctx, ActionPostingCommitted, SeverityInfo, OutcomeSuccess,
		ResourcePostingGroup, g.ID.String(), CategoryJournal, nil,
		"idempotency_key", g.IdempotencyKey,
		"actor", g.Actor,
		"entries", len(g.Entries),
		"debits", t.Debits,
		"credits", t.Credits,
	)
}

// OnPostingReplayed implements plugin.OnPostingReplayed.
func (e *Extension) OnPostingReplayed(ctx context.Context, g *journal.PostingGroup) error {
	return e.record(ctx, ActionPostingReplayed, SeverityInfo, OutcomeSuccess,
		ResourcePostingGroup, g.ID.String(), CategoryJournal, nil,
		"idempotency_key", g.IdempotencyKey,
	)
}

// OnPostingRejected implements plugin.OnPostingRejected.
func (e *Extension) OnPostingRejected(ctx context.Context, idempotencyKey string, err error) error {
	return e.record(ctx, ActionPostingRejected, SeverityWarning, OutcomeFailure,
		ResourcePostingGroup, "", CategoryJournal, err,
		"idempotency_key", idempotencyKey,
	)
}

// OnGroupVoided implements plugin.OnGroupVoided.
func (e *Extension) OnGroupVoided(ctx context.Context, res *journal.VoidResult) error {
	var groupID, reversalID string
	if len(res.Voided) > 0 {
		groupID = res.Voided[0].GroupID.String()
	}
	if res.Reversal != nil {
		reversalID = res.Reversal.ID.String()
	}
	return e.record(ctx, ActionPostingVoided, SeverityWarning, OutcomeSuccess,
		ResourcePostingGroup, groupID, CategoryJournal, nil,
		"void_reason", res.Reason,
		"entries", len(res.Voided),
		"reversal_group_id", reversalID,
	)
}

// ──────────────────────────────────────────────────
// Billing and integrity hooks
// ──────────────────────────────────────────────────

// OnBillingRunCompleted implements plugin.OnBillingRunCompleted. A run with
// errored items is recorded as a partial outcome.
func (e *Extension) OnBillingRunCompleted(ctx context.Context, report *recurring.RunReport, elapsed time.Duration) error {
	posted, skipped, errored := report.Counts()
	severity, outcome := SeverityInfo, OutcomeSuccess
	if errored > 0 {
		severity, outcome = SeverityError, OutcomePartial
	}
	return e.record(ctx, ActionBillingRunCompleted, severity, outcome,
		ResourceBillingRun, report.ID.String(), CategoryBilling, report.Err(),
		"period", report.Period.String(),
		"posted", posted,
		"skipped", skipped,
		"errored", errored,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnIntegrityChecked implements plugin.OnIntegrityChecked. An unbalanced
// journal is critical.
func (e *Extension) OnIntegrityChecked(ctx context.Context, report *journal.IntegrityReport) error {
	severity, outcome := SeverityInfo, OutcomeSuccess
	var err error
	if !report.Balanced {
		severity, outcome = SeverityCritical, OutcomeFailure
		err = fmt.Errorf("journal out of balance by %s", report.Discrepancy)
	}
	return e.record(ctx, ActionIntegrityChecked, severity, outcome,
		ResourceJournal, "", CategoryIntegrity, err,
		"total_debits", report.TotalDebits.Amount,
		"total_credits", report.TotalCredits.Amount,
		"entry_count", report.EntryCount,
	)
}

// ──────────────────────────────────────────────────
// Chart of accounts hooks
// ──────────────────────────────────────────────────

// OnAccountCreated implements plugin.OnAccountCreated.
func (e *Extension) OnAccountCreated(ctx context.Context, a *account.Account) error {
	return e.record(ctx, ActionAccountCreated, SeverityInfo, OutcomeSuccess,
		ResourceAccount, a.Code, CategoryChart, nil,
		"name", a.Name,
		"category", string(a.Category),
	)
}

// OnAccountUpdated implements plugin.OnAccountUpdated.
func (e *Extension) OnAccountUpdated(ctx context.Context, before, after *account.Account) error {
	return e.record(ctx, ActionAccountUpdated, SeverityInfo, OutcomeSuccess,
		ResourceAccount, after.Code, CategoryChart, nil,
		"name", after.Name,
		"was_active", before.Active,
		"active", after.Active,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
