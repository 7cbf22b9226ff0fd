package mongo_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rentbook/ledger/store"
	"github.com/rentbook/ledger/store/mongo"
	"github.com/rentbook/ledger/store/storetest"
)

// newStore connects to LEDGER_TEST_MONGO_URI (a replica set) and uses a
// fresh database per test.
func newStore(t *testing.T) *mongo.Store {
	t.Helper()
	uri := os.Getenv("LEDGER_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("LEDGER_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	s, err := mongo.Open(uri, fmt.Sprintf("ledger_test_%d", time.Now().UnixNano()))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.DB().Drop(ctx)
		_ = s.Close()
	})
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newStore(t) })
}
