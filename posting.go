package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rentbook/ledger/id"
	"github.com/rentbook/ledger/journal"
	"github.com/rentbook/ledger/types"
)

// PostRequest describes one balanced posting.
type PostRequest struct {
	Entries []journal.EntrySpec `json:"entries" validate:"min=2,dive"`
	// IdempotencyKey collapses repeated attempts into one posting group.
	// Empty disables deduplication.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	Actor          string `json:"actor,omitempty"`
	Memo           string `json:"memo,omitempty"`
}

// PostResult is the committed group. Replayed is true when the key had
// already been used and Group is the earlier result.
type PostResult struct {
	Group    *journal.PostingGroup `json:"group"`
	Replayed bool                  `json:"replayed"`
}

// Post validates req and commits its entries as one posting group. Nothing
// is written when validation fails. A key that is already taken resolves to
// the group committed under it.
func (l *Ledger) Post(ctx context.Context, req *PostRequest) (*PostResult, error) {
	g, err := l.buildGroup(ctx, req)
	if err != nil {
		l.rejected(ctx, req.IdempotencyKey, err)
		return nil, err
	}

	err = l.store.AppendGroup(ctx, g)
	switch {
	case err == nil:
		l.logger.Info("posting group committed",
			"group_id", g.ID.String(),
			"idempotency_key", g.IdempotencyKey,
			"entries", len(g.Entries),
		)
		l.plugins.EmitGroupPosted(ctx, g)
		return &PostResult{Group: g}, nil

	case errors.Is(err, ErrDuplicateKey):
		existing, gerr := l.store.GetGroupByKey(ctx, req.IdempotencyKey)
		if gerr != nil {
			l.logger.Error("replayed key has no group",
				"idempotency_key", req.IdempotencyKey,
				"error", gerr,
			)
			return nil, gerr
		}
		l.logger.Debug("posting replayed",
			"group_id", existing.ID.String(),
			"idempotency_key", req.IdempotencyKey,
		)
		l.plugins.EmitPostingReplayed(ctx, existing)
		return &PostResult{Group: existing, Replayed: true}, nil

	default:
		if errors.Is(err, ErrUnknownAccount) {
			// The cached chart disagreed with storage.
			for _, e := range g.Entries {
				l.accounts.Invalidate(e.AccountCode)
			}
		}
		if IsRetryable(err) {
			l.logger.Error("posting failed",
				"idempotency_key", req.IdempotencyKey,
				"error", err,
			)
		}
		l.rejected(ctx, req.IdempotencyKey, err)
		return nil, err
	}
}

func (l *Ledger) rejected(ctx context.Context, key string, err error) {
	l.logger.Debug("posting rejected",
		"idempotency_key", key,
		"error", err,
	)
	l.plugins.EmitPostingRejected(ctx, key, err)
}

// buildGroup checks req in order: shape, amounts, currency, balance, then
// account resolution. It returns the group ready to append.
func (l *Ledger) buildGroup(ctx context.Context, req *PostRequest) (*journal.PostingGroup, error) {
	if req == nil || len(req.Entries) < 2 {
		return nil, ValidationError{Field: "entries", Message: "at least two entries are required"}
	}

	specs := make([]journal.EntrySpec, len(req.Entries))
	var totals journal.Totals
	var debitLegs, creditLegs int
	for i, spec := range req.Entries {
		line := i + 1
		spec.AccountCode = strings.TrimSpace(spec.AccountCode)
		if spec.AccountCode == "" {
			return nil, ValidationError{Field: fmt.Sprintf("entries[%d].account_code", i), Message: "is required"}
		}
		if !spec.Side.Valid() {
			return nil, ValidationError{Field: fmt.Sprintf("entries[%d].side", i), Message: fmt.Sprintf("must be DEBIT or CREDIT, got %q", spec.Side)}
		}
		if !spec.Amount.IsPositive() {
			return nil, fmt.Errorf("%w: line %d is %s, must be strictly positive", ErrInvalidAmount, line, spec.Amount)
		}
		if spec.Amount.Currency == "" {
			spec.Amount.Currency = l.currency
		}
		if !strings.EqualFold(spec.Amount.Currency, l.currency) {
			return nil, fmt.Errorf("%w: line %d is %s, ledger is %s", ErrCurrencyMismatch, line, spec.Amount.Currency, l.currency)
		}
		spec.Amount.Currency = l.currency

		if spec.Side == types.Debit {
			debitLegs++
		} else {
			creditLegs++
		}
		totals.AddLeg(spec.Side, spec.Amount.Amount)
		if totals.Overflow {
			return nil, fmt.Errorf("%w: line %d overflows the %s total", ErrInvalidAmount, line, spec.Side)
		}
		specs[i] = spec
	}
	if debitLegs == 0 || creditLegs == 0 || !totals.Balanced() {
		return nil, fmt.Errorf("%w: debits %s, credits %s", ErrUnbalanced,
			types.New(totals.Debits, l.currency), types.New(totals.Credits, l.currency))
	}

	for _, spec := range specs {
		a, err := l.accounts.Resolve(ctx, spec.AccountCode)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, spec.AccountCode)
			}
			return nil, err
		}
		if !a.Active {
			return nil, fmt.Errorf("%w: %s", ErrInactiveAccount, spec.AccountCode)
		}
	}

	now := l.clock()
	actor := req.Actor
	if actor == "" {
		actor = ActorFrom(ctx)
	}
	g := &journal.PostingGroup{
		ID:             id.NewPostingGroupID(),
		IdempotencyKey: req.IdempotencyKey,
		Memo:           req.Memo,
		Actor:          actor,
		Entries:        make([]*journal.Entry, 0, len(specs)),
		CreatedAt:      now,
	}
	for i, spec := range specs {
		effective := spec.EffectiveDate
		if effective.IsZero() {
			effective = now
		}
		g.Entries = append(g.Entries, &journal.Entry{
			ID:             id.NewEntryID(),
			GroupID:        g.ID,
			Line:           i + 1,
			AccountCode:    spec.AccountCode,
			Side:           spec.Side,
			Amount:         spec.Amount,
			Description:    spec.Description,
			EffectiveDate:  effective.UTC(),
			SubjectID:      spec.SubjectID,
			Status:         journal.StatusPosted,
			Actor:          actor,
			IdempotencyKey: req.IdempotencyKey,
			CreatedAt:      now,
		})
	}
	return g, nil
}

// ──────────────────────────────────────────────────
// Journal reads
// ──────────────────────────────────────────────────

// GetEntry returns one entry, void or not.
func (l *Ledger) GetEntry(ctx context.Context, entryID id.EntryID) (*journal.Entry, error) {
	return l.store.GetEntry(ctx, entryID)
}

// GetGroup returns a posting group with all of its entries.
func (l *Ledger) GetGroup(ctx context.Context, groupID id.PostingGroupID) (*journal.PostingGroup, error) {
	return l.store.GetGroup(ctx, groupID)
}

// GetGroupByKey returns the group committed under an idempotency key.
func (l *Ledger) GetGroupByKey(ctx context.Context, key string) (*journal.PostingGroup, error) {
	return l.store.GetGroupByKey(ctx, key)
}

// ListEntries returns entries matching f, including void ones unless f
// filters by status.
func (l *Ledger) ListEntries(ctx context.Context, f journal.Filter) ([]*journal.Entry, error) {
	return l.store.ListEntries(ctx, f)
}
