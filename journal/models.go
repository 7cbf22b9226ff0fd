// Package journal defines the append-only record of financial facts:
// entries, the posting groups that commit them, and the read models derived
// from them.
package journal

import (
	"math"
	"time"

	"github.com/rentbook/ledger/id"
	"github.com/rentbook/ledger/types"
)

// Status is the lifecycle state of an entry. The only permitted transition
// is StatusPosted to StatusVoid.
type Status string

const (
	StatusPosted Status = "POSTED"
	StatusVoid   Status = "VOID"
)

// Entry is one leg of a posting group. Once written, only Status,
// VoidReason and VoidedAt ever change, and only once.
type Entry struct {
	ID            id.EntryID        `json:"id"`
	GroupID       id.PostingGroupID `json:"group_id"`
	Line          int               `json:"line"`
	AccountCode   string            `json:"account_code"`
	Side          types.Side        `json:"side"`
	Amount        types.Money       `json:"amount"`
	Description   string            `json:"description,omitempty"`
	EffectiveDate time.Time         `json:"effective_date"`
	SubjectID     string            `json:"subject_id,omitempty"`
	Status        Status            `json:"status"`
	Actor         string            `json:"actor,omitempty"`
	// IdempotencyKey is copied from the group that produced the entry.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	// VoidOfEntryID points from a reversal leg to the leg it cancels.
	VoidOfEntryID id.EntryID `json:"void_of_entry_id,omitzero"`
	VoidReason    string     `json:"void_reason,omitempty"`
	VoidedAt      *time.Time `json:"voided_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// IsVoid reports whether the entry has been voided.
func (e *Entry) IsVoid() bool { return e.Status == StatusVoid }

// PostingGroup is the balanced set of entries committed by one call to the
// posting engine.
type PostingGroup struct {
	ID             id.PostingGroupID `json:"id"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	Memo           string            `json:"memo,omitempty"`
	Actor          string            `json:"actor,omitempty"`
	// ReversalOf is set on groups written by the void engine.
	ReversalOf id.PostingGroupID `json:"reversal_of,omitzero"`
	Entries    []*Entry          `json:"entries"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Status is VOID when every entry is void, POSTED otherwise.
func (g *PostingGroup) Status() Status {
	if len(g.Entries) == 0 {
		return StatusPosted
	}
	for _, e := range g.Entries {
		if e.Status != StatusVoid {
			return StatusPosted
		}
	}
	return StatusVoid
}

// Totals sums the group's legs by side, regardless of status.
func (g *PostingGroup) Totals() Totals {
	var t Totals
	for _, e := range g.Entries {
		t.AddLeg(e.Side, e.Amount.Amount)
	}
	return t
}

// EntrySpec is the caller's description of one leg to post.
type EntrySpec struct {
	AccountCode   string      `json:"account_code" validate:"required"`
	Side          types.Side  `json:"side" validate:"required,oneof=DEBIT CREDIT"`
	Amount        types.Money `json:"amount"`
	Description   string      `json:"description,omitempty"`
	EffectiveDate time.Time   `json:"effective_date,omitzero"`
	SubjectID     string      `json:"subject_id,omitempty"`
}

// Totals is a debit/credit aggregate in minor units. Overflow is set once
// either side has left the int64 range; the sums are then meaningless.
type Totals struct {
	Debits   int64 `json:"debits"`
	Credits  int64 `json:"credits"`
	Count    int64 `json:"count"`
	Overflow bool  `json:"overflow,omitempty"`
}

// AddLeg folds one amount into the side it belongs to.
func (t *Totals) AddLeg(side types.Side, amount int64) {
	switch side {
	case types.Debit:
		t.Debits = t.sum(t.Debits, amount)
	case types.Credit:
		t.Credits = t.sum(t.Credits, amount)
	}
	t.Count++
}

func (t *Totals) sum(total, amount int64) int64 {
	if (amount > 0 && total > math.MaxInt64-amount) || (amount < 0 && total < math.MinInt64-amount) {
		t.Overflow = true
	}
	return total + amount
}

// Add folds one leg into the aggregate.
func (t *Totals) Add(e *Entry) { t.AddLeg(e.Side, e.Amount.Amount) }

// Balanced reports whether debits equal credits. Overflowed totals never
// balance.
func (t Totals) Balanced() bool { return !t.Overflow && t.Debits == t.Credits }

// Filter selects entries for listing and aggregation. Zero-valued fields
// do not constrain the result.
type Filter struct {
	AccountCode string
	SubjectID   string
	GroupID     id.PostingGroupID
	Status      Status
	From        time.Time // inclusive effective date
	To          time.Time // exclusive effective date
	Limit       int
	Offset      int
}

// Match reports whether e passes the filter. Used by in-process stores.
func (f Filter) Match(e *Entry) bool {
	if f.AccountCode != "" && e.AccountCode != f.AccountCode {
		return false
	}
	if f.SubjectID != "" && e.SubjectID != f.SubjectID {
		return false
	}
	if !f.GroupID.IsNil() && e.GroupID.String() != f.GroupID.String() {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && e.EffectiveDate.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.EffectiveDate.Before(f.To) {
		return false
	}
	return true
}

// Void describes a void applied to every posted leg of a group.
type Void struct {
	GroupID id.PostingGroupID
	Reason  string
	At      time.Time
	// Reversal, when set, is appended in the same transaction.
	Reversal *PostingGroup
}

// VoidResult reports what a void changed.
type VoidResult struct {
	Voided   []*Entry      `json:"voided"`
	Reason   string        `json:"reason"`
	Reversal *PostingGroup `json:"reversal,omitempty"`
}

// IntegrityReport is the outcome of a whole-journal balance check over
// non-void entries.
type IntegrityReport struct {
	Balanced     bool        `json:"balanced"`
	TotalDebits  types.Money `json:"total_debits"`
	TotalCredits types.Money `json:"total_credits"`
	Discrepancy  types.Money `json:"discrepancy"`
	EntryCount   int64       `json:"entry_count"`
	CheckedAt    time.Time   `json:"checked_at"`
}
