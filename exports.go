package ledger

import "github.com/rentbook/ledger/types"

// Re-export common types for convenience so users don't have to import types package.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// Side is re-exported from types package.
type Side = types.Side

// Re-export entry sides
const (
	Debit  = types.Debit
	Credit = types.Credit
)

// Re-export Money constructors
var (
	NewMoney   = types.New
	USD        = types.USD
	EUR        = types.EUR
	Zero       = types.Zero
	ParseMoney = types.ParseMoney
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
