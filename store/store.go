// Package store defines the unified persistence contract implemented by the
// memory, sqlite, postgres and mongo backends.
package store

import (
	"context"

	"github.com/rentbook/ledger/account"
	"github.com/rentbook/ledger/journal"
	"github.com/rentbook/ledger/recurring"
)

// Store is the unified storage interface for the ledger. The sub-interfaces
// use prefixed method names, so they embed without conflict.
//
// Backends translate driver failures into the root package's sentinels:
// a taken idempotency key becomes ErrDuplicateKey, missing rows become the
// typed not-found errors, and connectivity or serialization failures wrap
// ErrStorageUnavailable.
type Store interface {
	account.Store
	journal.Store
	recurring.Store

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
