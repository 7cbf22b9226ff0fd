package config

import (
	"context"
	"fmt"

	"github.com/rentbook/ledger"
	"github.com/rentbook/ledger/store"
	"github.com/rentbook/ledger/store/memory"
	"github.com/rentbook/ledger/store/mongo"
	"github.com/rentbook/ledger/store/postgres"
	"github.com/rentbook/ledger/store/sqlite"
)

// OpenStore connects the backend named by sc.Driver. Migrations are not
// run; ledger.Start does that.
func OpenStore(ctx context.Context, sc StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case "", "memory":
		return memory.New(), nil
	case "sqlite":
		s, err := sqlite.Open(sc.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := postgres.Open(ctx, sc.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "mongo":
		s, err := mongo.Open(sc.DSN, sc.Database)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", ledger.ErrInvalidInput, sc.Driver)
	}
}
