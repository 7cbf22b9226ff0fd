// Package memory provides an in-process Store. All mutations run under one
// mutex, which gives the same all-or-nothing and key-uniqueness guarantees
// as the SQL backends. It is used by tests and demos.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/rentbook/ledger"
	"github.com/rentbook/ledger/account"
	"github.com/rentbook/ledger/id"
	"github.com/rentbook/ledger/journal"
	"github.com/rentbook/ledger/recurring"
	ledgerstore "github.com/rentbook/ledger/store"
)

// Compile-time interface check.
var _ ledgerstore.Store = (*Store)(nil)

type groupRecord struct {
	group    journal.PostingGroup // Entries unset
	entryIDs []string
}

type Store struct {
	mu     sync.RWMutex
	closed bool

	// Chart of accounts
	accounts map[string]*account.Account

	// Journal
	entries map[string]*journal.Entry
	order   []string // entry IDs in commit order
	groups  map[string]*groupRecord
	keys    map[string]string // idempotency key -> group ID

	// Recurring charges
	definitions map[string]*recurring.Definition
	subjects    map[string]*recurring.Subject
}

func New() *Store {
	return &Store{
		accounts:    make(map[string]*account.Account),
		entries:     make(map[string]*journal.Entry),
		groups:      make(map[string]*groupRecord),
		keys:        make(map[string]string),
		definitions: make(map[string]*recurring.Definition),
		subjects:    make(map[string]*recurring.Subject),
	}
}

// ──────────────────────────────────────────────────
// Account Store
// ──────────────────────────────────────────────────

func (s *Store) CreateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ledger.ErrStoreClosed
	}
	if _, exists := s.accounts[a.Code]; exists {
		return ledger.ErrAlreadyExists
	}
	cp := *a
	s.accounts[a.Code] = &cp
	return nil
}

func (s *Store) GetAccount(_ context.Context, code string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[code]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) ListAccounts(_ context.Context, opts account.ListOpts) ([]*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*account.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		if opts.Match(a) {
			cp := *a
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })

	start, end := page(len(result), opts.Limit, opts.Offset)
	return result[start:end], nil
}

func (s *Store) UpdateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.Code]; !exists {
		return ledger.ErrAccountNotFound
	}
	cp := *a
	s.accounts[a.Code] = &cp
	return nil
}

func (s *Store) DeleteAccount(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[code]; !exists {
		return ledger.ErrAccountNotFound
	}
	for _, e := range s.entries {
		if e.AccountCode == code {
			return ledger.ErrAccountInUse
		}
	}
	delete(s.accounts, code)
	return nil
}

// ──────────────────────────────────────────────────
// Journal Store
// ──────────────────────────────────────────────────

func (s *Store) AppendGroup(_ context.Context, g *journal.PostingGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ledger.ErrStoreClosed
	}
	return s.appendLocked(g)
}

// appendLocked validates every row before writing any of them.
func (s *Store) appendLocked(g *journal.PostingGroup) error {
	if g.IdempotencyKey != "" {
		if _, taken := s.keys[g.IdempotencyKey]; taken {
			return ledger.ErrDuplicateKey
		}
	}
	for _, e := range g.Entries {
		if _, ok := s.accounts[e.AccountCode]; !ok {
			return ledger.ErrUnknownAccount
		}
	}

	rec := &groupRecord{group: *g}
	rec.group.Entries = nil
	for _, e := range g.Entries {
		cp := *e
		s.entries[e.ID.String()] = &cp
		s.order = append(s.order, e.ID.String())
		rec.entryIDs = append(rec.entryIDs, e.ID.String())
	}
	s.groups[g.ID.String()] = rec
	if g.IdempotencyKey != "" {
		s.keys[g.IdempotencyKey] = g.ID.String()
	}
	return nil
}

func (s *Store) GetEntry(_ context.Context, entryID id.EntryID) (*journal.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[entryID.String()]
	if !ok {
		return nil, ledger.ErrEntryNotFound
	}
	return copyEntry(e), nil
}

func (s *Store) GetGroup(_ context.Context, groupID id.PostingGroupID) (*journal.PostingGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.groupLocked(groupID.String())
}

func (s *Store) GetGroupByKey(_ context.Context, idempotencyKey string) (*journal.PostingGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groupID, ok := s.keys[idempotencyKey]
	if !ok {
		return nil, ledger.ErrGroupNotFound
	}
	return s.groupLocked(groupID)
}

func (s *Store) groupLocked(groupID string) (*journal.PostingGroup, error) {
	rec, ok := s.groups[groupID]
	if !ok {
		return nil, ledger.ErrGroupNotFound
	}
	g := rec.group
	g.Entries = make([]*journal.Entry, 0, len(rec.entryIDs))
	for _, entryID := range rec.entryIDs {
		g.Entries = append(g.Entries, copyEntry(s.entries[entryID]))
	}
	return &g, nil
}

func (s *Store) VoidGroup(_ context.Context, v *journal.Void) ([]*journal.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ledger.ErrStoreClosed
	}
	rec, ok := s.groups[v.GroupID.String()]
	if !ok {
		return nil, ledger.ErrGroupNotFound
	}

	var targets []*journal.Entry
	for _, entryID := range rec.entryIDs {
		if e := s.entries[entryID]; e.Status == journal.StatusPosted {
			targets = append(targets, e)
		}
	}
	if len(targets) == 0 {
		return nil, ledger.ErrAlreadyVoided
	}

	// Append first so a rejected reversal leaves the group untouched.
	if v.Reversal != nil {
		if err := s.appendLocked(v.Reversal); err != nil {
			return nil, err
		}
	}

	at := v.At
	voided := make([]*journal.Entry, 0, len(targets))
	for _, e := range targets {
		e.Status = journal.StatusVoid
		e.VoidReason = v.Reason
		e.VoidedAt = &at
		voided = append(voided, copyEntry(e))
	}
	return voided, nil
}

func (s *Store) ListEntries(_ context.Context, f journal.Filter) ([]*journal.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*journal.Entry, 0)
	for _, entryID := range s.order {
		if e := s.entries[entryID]; f.Match(e) {
			result = append(result, copyEntry(e))
		}
	}

	start, end := page(len(result), f.Limit, f.Offset)
	return result[start:end], nil
}

func (s *Store) SumEntries(_ context.Context, f journal.Filter) (journal.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var totals journal.Totals
	for _, e := range s.entries {
		if f.Match(e) {
			totals.Add(e)
		}
	}
	return totals, nil
}

// ──────────────────────────────────────────────────
// Recurring Store
// ──────────────────────────────────────────────────

func (s *Store) CreateDefinition(_ context.Context, d *recurring.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.definitions[d.ID.String()]; exists {
		return ledger.ErrAlreadyExists
	}
	cp := *d
	s.definitions[d.ID.String()] = &cp
	return nil
}

func (s *Store) GetDefinition(_ context.Context, defID id.DefinitionID) (*recurring.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.definitions[defID.String()]
	if !ok {
		return nil, ledger.ErrDefinitionNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *Store) ListDefinitions(_ context.Context, opts recurring.ListOpts) ([]*recurring.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*recurring.Definition, 0, len(s.definitions))
	for _, d := range s.definitions {
		if opts.Match(d) {
			cp := *d
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })

	start, end := page(len(result), opts.Limit, opts.Offset)
	return result[start:end], nil
}

func (s *Store) UpdateDefinition(_ context.Context, d *recurring.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.definitions[d.ID.String()]
	if !ok {
		return ledger.ErrDefinitionNotFound
	}
	cp := *d
	cp.LastChargedPeriod = existing.LastChargedPeriod
	s.definitions[d.ID.String()] = &cp
	return nil
}

func (s *Store) MarkCharged(_ context.Context, defID id.DefinitionID, period recurring.Period) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.definitions[defID.String()]
	if !ok {
		return false, ledger.ErrDefinitionNotFound
	}
	if !period.After(d.LastChargedPeriod) {
		return false, nil
	}
	d.LastChargedPeriod = period
	return true, nil
}

func (s *Store) UpsertSubject(_ context.Context, sub *recurring.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sub
	if existing, ok := s.subjects[sub.ID]; ok {
		cp.CreatedAt = existing.CreatedAt
	}
	s.subjects[sub.ID] = &cp
	return nil
}

func (s *Store) GetSubject(_ context.Context, subjectID string) (*recurring.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subjects[subjectID]
	if !ok {
		return nil, ledger.ErrSubjectNotFound
	}
	cp := *sub
	return &cp, nil
}

// ──────────────────────────────────────────────────
// Core
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ledger.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func copyEntry(e *journal.Entry) *journal.Entry {
	cp := *e
	if e.VoidedAt != nil {
		at := *e.VoidedAt
		cp.VoidedAt = &at
	}
	return &cp
}

func page(n, limit, offset int) (start, end int) {
	start = min(max(offset, 0), n)
	end = n
	if limit > 0 && start+limit < n {
		end = start + limit
	}
	return start, end
}
