package journal

import (
	"context"

	"github.com/rentbook/ledger/id"
)

// Store is the journal's persistence contract. Every mutating method is a
// single storage transaction.
type Store interface {
	// AppendGroup writes the group and all its entries atomically. A group
	// whose non-empty idempotency key is already taken fails with the
	// store's duplicate-key error and writes nothing.
	AppendGroup(ctx context.Context, g *PostingGroup) error
	GetEntry(ctx context.Context, entryID id.EntryID) (*Entry, error)
	GetGroup(ctx context.Context, groupID id.PostingGroupID) (*PostingGroup, error)
	GetGroupByKey(ctx context.Context, idempotencyKey string) (*PostingGroup, error)
	// VoidGroup flips every POSTED entry of the group to VOID with a
	// conditional update and appends v.Reversal if set. If no entry was
	// POSTED it fails with the already-voided error.
	VoidGroup(ctx context.Context, v *Void) ([]*Entry, error)
	ListEntries(ctx context.Context, f Filter) ([]*Entry, error)
	// SumEntries aggregates matching entries in one read.
	SumEntries(ctx context.Context, f Filter) (Totals, error)
}
