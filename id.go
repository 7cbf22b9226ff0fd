package ledger

import "github.com/rentbook/ledger/id"

// ID is the primary identifier type for all Ledger entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

// Typed aliases for the identifiers the engine hands out.
type (
	EntryID        = id.EntryID
	PostingGroupID = id.PostingGroupID
	DefinitionID   = id.DefinitionID
	BillingRunID   = id.BillingRunID
)
