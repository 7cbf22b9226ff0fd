package migrate_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/rentbook/ledger/store/migrate"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableGroup(t *testing.T) *migrate.Group {
	t.Helper()
	g := migrate.NewGroup("test")
	require.NoError(t, g.Register(
		&migrate.Migration{
			Name:    "create_b",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `CREATE TABLE b (id INTEGER PRIMARY KEY)`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE b`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_a",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `CREATE TABLE a (id INTEGER PRIMARY KEY)`)
				return err
			},
		},
	))
	return g
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	g := tableGroup(t)
	err := g.Register(&migrate.Migration{
		Name:    "again",
		Version: "20250101000001",
		Up:      func(context.Context, migrate.Executor) error { return nil },
	})
	assert.Error(t, err)

	err = g.Register(&migrate.Migration{Name: "no version"})
	assert.Error(t, err)

	ms := g.Migrations()
	require.Len(t, ms, 2)
	assert.Equal(t, "create_a", ms[0].Name, "migrations are ordered by version")
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	orch := migrate.NewOrchestrator(migrate.NewSQLExecutor(db), tableGroup(t))

	ran, err := orch.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"20250101000001", "20250101000002"}, ran)

	ran, err = orch.Migrate(ctx)
	require.NoError(t, err)
	assert.Empty(t, ran)

	states, err := orch.Status(ctx)
	require.NoError(t, err)
	require.Len(t, states, 2)
	for _, s := range states {
		assert.True(t, s.Applied, s.Name)
	}
}

func TestRollback(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	orch := migrate.NewOrchestrator(migrate.NewSQLExecutor(db), tableGroup(t))

	_, err := orch.Migrate(ctx)
	require.NoError(t, err)

	version, err := orch.Rollback(ctx)
	require.NoError(t, err)
	assert.Equal(t, "20250101000002", version)

	_, err = db.ExecContext(ctx, `INSERT INTO b (id) VALUES (1)`)
	assert.Error(t, err, "table b should be dropped")

	version, err = orch.Rollback(ctx)
	require.NoError(t, err)
	assert.Equal(t, "20250101000001", version)

	_, err = orch.Rollback(ctx)
	assert.ErrorIs(t, err, migrate.ErrNothingToRollback)
}
