// Package plugin provides an extensible plugin system for the ledger.
// Plugins hook into lifecycle events by implementing any of the hook
// interfaces below; the Registry discovers them at registration.
package plugin

import (
	"context"
	"time"

	"github.com/rentbook/ledger/account"
	"github.com/rentbook/ledger/journal"
	"github.com/rentbook/ledger/recurring"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the ledger starts. l is the *ledger.Ledger.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l any) error
}

// OnShutdown is called when the ledger stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Posting hooks
// ──────────────────────────────────────────────────

// OnGroupPosted is called after a posting group is committed.
type OnGroupPosted interface {
	Plugin
	OnGroupPosted(ctx context.Context, g *journal.PostingGroup) error
}

// OnPostingReplayed is called when a post resolves to an existing group
// through its idempotency key.
type OnPostingReplayed interface {
	Plugin
	OnPostingReplayed(ctx context.Context, g *journal.PostingGroup) error
}

// OnPostingRejected is called when a post fails validation or storage.
type OnPostingRejected interface {
	Plugin
	OnPostingRejected(ctx context.Context, idempotencyKey string, err error) error
}

// OnGroupVoided is called after a posting group is voided.
type OnGroupVoided interface {
	Plugin
	OnGroupVoided(ctx context.Context, res *journal.VoidResult) error
}

// ──────────────────────────────────────────────────
// Billing and integrity hooks
// ──────────────────────────────────────────────────

// OnBillingRunCompleted is called after every billing cycle.
type OnBillingRunCompleted interface {
	Plugin
	OnBillingRunCompleted(ctx context.Context, report *recurring.RunReport, elapsed time.Duration) error
}

// OnIntegrityChecked is called after every integrity check.
type OnIntegrityChecked interface {
	Plugin
	OnIntegrityChecked(ctx context.Context, report *journal.IntegrityReport) error
}

// ──────────────────────────────────────────────────
// Chart of accounts hooks
// ──────────────────────────────────────────────────

// OnAccountCreated is called when an account is added to the chart.
type OnAccountCreated interface {
	Plugin
	OnAccountCreated(ctx context.Context, a *account.Account) error
}

// OnAccountUpdated is called when an account's mutable fields change.
type OnAccountUpdated interface {
	Plugin
	OnAccountUpdated(ctx context.Context, before, after *account.Account) error
}
