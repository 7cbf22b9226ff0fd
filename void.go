package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/rentbook/ledger/id"
	"github.com/rentbook/ledger/journal"
)

// ReversalKeyPrefix prefixes the idempotency key of reversal groups; the
// rest is the voided group's ID.
const ReversalKeyPrefix = "reversal:"

// Void marks the posting group containing entryID as void. Every leg of the
// group is voided together so the remaining journal stays balanced; amounts,
// sides and accounts are never touched.
//
// With autoReverse the engine also appends, in the same transaction, a
// group with flipped sides whose legs point back at the originals through
// VoidOfEntryID. Those legs are recorded already void, so balances exclude
// both the original and its reversal while an export of every entry nets
// to zero.
func (l *Ledger) Void(ctx context.Context, entryID id.EntryID, reason string, autoReverse bool) (*journal.VoidResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ValidationError{Field: "reason", Message: "is required"}
	}

	target, err := l.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if target.IsVoid() {
		return nil, ErrAlreadyVoided
	}

	at := l.clock()
	v := &journal.Void{GroupID: target.GroupID, Reason: reason, At: at}
	if autoReverse {
		g, err := l.store.GetGroup(ctx, target.GroupID)
		if err != nil {
			return nil, err
		}
		v.Reversal = l.reversalOf(ctx, g, reason, at)
	}

	voided, err := l.store.VoidGroup(ctx, v)
	if err != nil {
		l.logger.Debug("void rejected",
			"entry_id", entryID.String(),
			"group_id", target.GroupID.String(),
			"error", err,
		)
		return nil, err
	}

	res := &journal.VoidResult{Voided: voided, Reason: reason, Reversal: v.Reversal}
	l.logger.Info("posting group voided",
		"entry_id", entryID.String(),
		"group_id", target.GroupID.String(),
		"entries", len(voided),
		"reversed", autoReverse,
	)
	l.plugins.EmitGroupVoided(ctx, res)
	return res, nil
}

func (l *Ledger) reversalOf(ctx context.Context, g *journal.PostingGroup, reason string, at time.Time) *journal.PostingGroup {
	actor := ActorFrom(ctx)
	key := ReversalKeyPrefix + g.ID.String()
	rev := &journal.PostingGroup{
		ID:             id.NewPostingGroupID(),
		IdempotencyKey: key,
		Memo:           "reversal of " + g.ID.String() + ": " + reason,
		Actor:          actor,
		ReversalOf:     g.ID,
		CreatedAt:      at,
	}
	for _, e := range g.Entries {
		if e.IsVoid() {
			continue
		}
		voidedAt := at
		rev.Entries = append(rev.Entries, &journal.Entry{
			ID:             id.NewEntryID(),
			GroupID:        rev.ID,
			Line:           len(rev.Entries) + 1,
			AccountCode:    e.AccountCode,
			Side:           e.Side.Opposite(),
			Amount:         e.Amount,
			Description:    "reversal: " + e.Description,
			EffectiveDate:  at,
			SubjectID:      e.SubjectID,
			Status:         journal.StatusVoid,
			Actor:          actor,
			IdempotencyKey: key,
			VoidOfEntryID:  e.ID,
			VoidReason:     reason,
			VoidedAt:       &voidedAt,
			CreatedAt:      at,
		})
	}
	return rev
}
