package recurring

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rentbook/ledger/id"
	"github.com/rentbook/ledger/types"
)

// Outcome is the per-definition result of a billing run.
type Outcome string

const (
	OutcomePosted  Outcome = "POSTED"
	OutcomeSkipped Outcome = "SKIPPED"
	OutcomeErrored Outcome = "ERRORED"
)

// Skip reasons recorded on SKIPPED items.
const (
	ReasonAlreadyPosted = "already posted this period"
	ReasonDuplicateKey  = "duplicate key — already posted"
)

// RunItem is the outcome for one eligible definition.
type RunItem struct {
	DefinitionID id.DefinitionID   `json:"definition_id"`
	SubjectID    string            `json:"subject_id"`
	Amount       types.Money       `json:"amount"`
	Outcome      Outcome           `json:"outcome"`
	GroupID      id.PostingGroupID `json:"group_id,omitzero"`
	Reason       string            `json:"reason,omitempty"`
	Err          error             `json:"-"`
}

// RunReport aggregates one billing run. Only eligible, due definitions
// appear; each lands in exactly one of the three lists.
type RunReport struct {
	ID         id.BillingRunID `json:"id"`
	AsOf       time.Time       `json:"as_of"`
	Period     Period          `json:"period"`
	Posted     []RunItem       `json:"posted"`
	Skipped    []RunItem       `json:"skipped"`
	Errored    []RunItem       `json:"errored"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`

	mu sync.Mutex
}

// NewRunReport starts an empty report for asOf.
func NewRunReport(asOf, startedAt time.Time) *RunReport {
	return &RunReport{
		ID:        id.NewBillingRunID(),
		AsOf:      asOf,
		Period:    PeriodOf(asOf),
		Posted:    []RunItem{},
		Skipped:   []RunItem{},
		Errored:   []RunItem{},
		StartedAt: startedAt,
	}
}

// Record files item under its outcome. Safe for concurrent use.
func (r *RunReport) Record(item RunItem) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch item.Outcome {
	case OutcomePosted:
		r.Posted = append(r.Posted, item)
	case OutcomeSkipped:
		r.Skipped = append(r.Skipped, item)
	default:
		item.Outcome = OutcomeErrored
		if item.Reason == "" && item.Err != nil {
			item.Reason = item.Err.Error()
		}
		r.Errored = append(r.Errored, item)
	}
}

// Counts returns the number of posted, skipped and errored items.
func (r *RunReport) Counts() (posted, skipped, errored int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Posted), len(r.Skipped), len(r.Errored)
}

// Err joins the errors of all ERRORED items, or returns nil.
func (r *RunReport) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.Errored) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Errored))
	for _, item := range r.Errored {
		err := item.Err
		if err == nil {
			err = errors.New(item.Reason)
		}
		errs = append(errs, fmt.Errorf("definition %s (subject %s): %w", item.DefinitionID, item.SubjectID, err))
	}
	return errors.Join(errs...)
}

// Summary is a one-line description for logs and CLI output.
func (r *RunReport) Summary() string {
	posted, skipped, errored := r.Counts()
	return fmt.Sprintf("period %s: %d posted, %d skipped, %d errored", r.Period, posted, skipped, errored)
}
