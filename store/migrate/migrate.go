// Package migrate runs versioned schema migrations for the SQL backends.
// Each backend registers its migrations in a Group and hands an Executor for
// its driver to an Orchestrator, which applies pending versions in order and
// records them in a bookkeeping table.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Executor is the minimal driver surface needed to run migrations.
type Executor interface {
	// Exec runs a statement and returns the number of affected rows.
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	// QueryStrings runs a query returning a single text column.
	QueryStrings(ctx context.Context, query string, args ...any) ([]string, error)
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string
}

// Func is the body of an up or down step.
type Func func(ctx context.Context, exec Executor) error

// Migration is one versioned schema change. Versions sort lexically, so use
// fixed-width timestamps ("20250101000001").
type Migration struct {
	Name    string
	Version string
	Up      Func
	Down    Func
}

// Group is an ordered set of migrations owned by one component.
type Group struct {
	name string

	mu         sync.Mutex
	migrations []*Migration
}

// NewGroup creates an empty migration group.
func NewGroup(name string) *Group {
	return &Group{name: name}
}

// Name returns the group name recorded in the bookkeeping table.
func (g *Group) Name() string { return g.name }

// Register adds migrations to the group. Versions must be unique.
func (g *Group) Register(ms ...*Migration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	seen := make(map[string]bool, len(g.migrations))
	for _, m := range g.migrations {
		seen[m.Version] = true
	}
	for _, m := range ms {
		if m.Version == "" || m.Up == nil {
			return fmt.Errorf("migrate: %s: migration %q needs a version and an up step", g.name, m.Name)
		}
		if seen[m.Version] {
			return fmt.Errorf("migrate: %s: duplicate version %s", g.name, m.Version)
		}
		seen[m.Version] = true
		g.migrations = append(g.migrations, m)
	}
	sort.Slice(g.migrations, func(i, j int) bool { return g.migrations[i].Version < g.migrations[j].Version })
	return nil
}

// MustRegister is like Register but panics on error. Use from init.
func (g *Group) MustRegister(ms ...*Migration) {
	if err := g.Register(ms...); err != nil {
		panic(err)
	}
}

// Migrations returns the registered migrations in version order.
func (g *Group) Migrations() []*Migration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Migration(nil), g.migrations...)
}

// ──────────────────────────────────────────────────
// Orchestrator
// ──────────────────────────────────────────────────

// Table is the bookkeeping table shared by every group.
const Table = "ledger_migrations"

// Orchestrator applies and rolls back the migrations of one or more groups.
type Orchestrator struct {
	exec   Executor
	groups []*Group
	now    func() time.Time
}

// NewOrchestrator binds groups to an executor.
func NewOrchestrator(exec Executor, groups ...*Group) *Orchestrator {
	return &Orchestrator{exec: exec, groups: groups, now: time.Now}
}

func (o *Orchestrator) ensureTable(ctx context.Context) error {
	_, err := o.exec.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+Table+` (
    group_name TEXT NOT NULL,
    version    TEXT NOT NULL,
    name       TEXT NOT NULL,
    applied_at TEXT NOT NULL,
    PRIMARY KEY (group_name, version)
)`)
	if err != nil {
		return fmt.Errorf("migrate: create %s: %w", Table, err)
	}
	return nil
}

func (o *Orchestrator) applied(ctx context.Context, g *Group) (map[string]bool, error) {
	versions, err := o.exec.QueryStrings(ctx,
		`SELECT version FROM `+Table+` WHERE group_name = `+o.exec.Placeholder(1), g.name)
	if err != nil {
		return nil, fmt.Errorf("migrate: read applied versions: %w", err)
	}
	done := make(map[string]bool, len(versions))
	for _, v := range versions {
		done[v] = true
	}
	return done, nil
}

// Migrate applies every pending migration and returns the versions it ran.
func (o *Orchestrator) Migrate(ctx context.Context) ([]string, error) {
	if err := o.ensureTable(ctx); err != nil {
		return nil, err
	}

	var ran []string
	for _, g := range o.groups {
		done, err := o.applied(ctx, g)
		if err != nil {
			return ran, err
		}
		for _, m := range g.Migrations() {
			if done[m.Version] {
				continue
			}
			if err := m.Up(ctx, o.exec); err != nil {
				return ran, fmt.Errorf("migrate: %s %s (%s): %w", g.name, m.Version, m.Name, err)
			}
			_, err := o.exec.Exec(ctx,
				`INSERT INTO `+Table+` (group_name, version, name, applied_at) VALUES (`+
					o.exec.Placeholder(1)+`, `+o.exec.Placeholder(2)+`, `+
					o.exec.Placeholder(3)+`, `+o.exec.Placeholder(4)+`)`,
				g.name, m.Version, m.Name, o.now().UTC().Format(time.RFC3339))
			if err != nil {
				return ran, fmt.Errorf("migrate: record %s %s: %w", g.name, m.Version, err)
			}
			ran = append(ran, m.Version)
		}
	}
	return ran, nil
}

// ErrNothingToRollback is returned when no migration of the group is applied.
var ErrNothingToRollback = errors.New("migrate: nothing to roll back")

// Rollback reverts the most recently applied migration of the last group
// and returns its version.
func (o *Orchestrator) Rollback(ctx context.Context) (string, error) {
	if len(o.groups) == 0 {
		return "", ErrNothingToRollback
	}
	if err := o.ensureTable(ctx); err != nil {
		return "", err
	}

	g := o.groups[len(o.groups)-1]
	done, err := o.applied(ctx, g)
	if err != nil {
		return "", err
	}
	ms := g.Migrations()
	for i := len(ms) - 1; i >= 0; i-- {
		m := ms[i]
		if !done[m.Version] {
			continue
		}
		if m.Down != nil {
			if err := m.Down(ctx, o.exec); err != nil {
				return "", fmt.Errorf("migrate: rollback %s %s: %w", g.name, m.Version, err)
			}
		}
		_, err := o.exec.Exec(ctx,
			`DELETE FROM `+Table+` WHERE group_name = `+o.exec.Placeholder(1)+
				` AND version = `+o.exec.Placeholder(2), g.name, m.Version)
		if err != nil {
			return "", fmt.Errorf("migrate: forget %s %s: %w", g.name, m.Version, err)
		}
		return m.Version, nil
	}
	return "", ErrNothingToRollback
}

// State describes one migration and whether it is applied.
type State struct {
	Group   string
	Version string
	Name    string
	Applied bool
}

// Status lists every registered migration with its applied state.
func (o *Orchestrator) Status(ctx context.Context) ([]State, error) {
	if err := o.ensureTable(ctx); err != nil {
		return nil, err
	}

	var out []State
	for _, g := range o.groups {
		done, err := o.applied(ctx, g)
		if err != nil {
			return nil, err
		}
		for _, m := range g.Migrations() {
			out = append(out, State{Group: g.name, Version: m.Version, Name: m.Name, Applied: done[m.Version]})
		}
	}
	return out, nil
}
