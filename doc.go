// Package ledger is the double-entry accounting core of a property
// management system.
//
// Ledger is designed as a library, not a service. Lease, tenant and payment
// code import it directly and never write accounting rows themselves. It
// provides:
//
//   - A chart of accounts resolved through a short-lived cache
//   - An append-only journal of entries committed in balanced posting groups
//   - Idempotent posting keyed by caller-supplied idempotency keys
//   - Voids with optional reversing entries; nothing is ever deleted
//   - Balances and trial balances derived from entries, never stored
//   - Recurring monthly billing that is safe to re-run for the same period
//   - A read-only integrity check that the whole journal balances
//
// # Quick Start
//
//	import (
//	    "github.com/rentbook/ledger"
//	    "github.com/rentbook/ledger/store/postgres"
//	)
//
//	s, err := postgres.Open(ctx, databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	l := ledger.New(s, ledger.WithCurrency("usd"))
//	if err := l.Start(ctx); err != nil { // runs migrations
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
// # Posting
//
// Every financial fact is a group of at least two entries whose debits equal
// their credits:
//
//	res, err := l.Post(ctx, &ledger.PostRequest{
//	    IdempotencyKey: "payment:pay_123",
//	    Entries: []journal.EntrySpec{
//	        {AccountCode: "1000", Side: ledger.Debit, Amount: ledger.USD(50000)},
//	        {AccountCode: "1200", Side: ledger.Credit, Amount: ledger.USD(50000), SubjectID: "L1"},
//	    },
//	})
//
// Posting the same key again returns the first group with Replayed set.
// Validation failures (ErrUnbalanced, ErrInvalidAmount, ErrCurrencyMismatch,
// ErrUnknownAccount, ErrInactiveAccount) write nothing.
//
// # Money
//
// All amounts are integer minor units in the single ledger currency. The
// Money type never uses floating point.
//
// # Identifiers
//
// Entries, posting groups, charge definitions and billing runs use TypeIDs:
//
//	le_01h2xcejqtf2nbrexx3vqjhp41   // entry
//	pg_01h2xcejqtf2nbrexx3vqjhp41   // posting group
//	rcd_01h455vb4pex5vsknk084sn02q  // recurring charge definition
//
// TypeIDs are K-sortable, so entry order follows creation order.
package ledger
