// Package recurring models recurring charge definitions, the subjects
// (leases) they bill, and the per-period due-date rules used by the billing
// run.
package recurring

import (
	"fmt"
	"time"

	"github.com/rentbook/ledger/id"
	"github.com/rentbook/ledger/types"
)

// Period is a billing interval marker: the calendar month "YYYY-MM".
type Period string

const periodLayout = "2006-01"

// PeriodOf returns the period containing t, evaluated in UTC.
func PeriodOf(t time.Time) Period {
	return Period(t.UTC().Format(periodLayout))
}

// ParsePeriod validates a "YYYY-MM" marker.
func ParsePeriod(s string) (Period, error) {
	if _, err := time.Parse(periodLayout, s); err != nil {
		return "", fmt.Errorf("recurring: invalid period %q: %w", s, err)
	}
	return Period(s), nil
}

// Start returns the first instant of the period in UTC.
func (p Period) Start() time.Time {
	t, _ := time.Parse(periodLayout, string(p))
	return t
}

// String implements fmt.Stringer.
func (p Period) String() string { return string(p) }

// After reports whether p is strictly later than other. Markers compare
// lexically because the layout is fixed-width.
func (p Period) After(other Period) bool { return p > other }

// DaysIn returns the number of days in the month containing t.
func DaysIn(t time.Time) int {
	t = t.UTC()
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// SubjectStatus is the lifecycle of a billed agreement.
type SubjectStatus string

const (
	SubjectPending    SubjectStatus = "pending"
	SubjectActive     SubjectStatus = "active"
	SubjectTerminated SubjectStatus = "terminated"
)

// Subject is the billed party of a definition, typically a lease. It is
// owned by the lease CRUD and synchronised into the ledger for eligibility.
type Subject struct {
	types.Entity
	ID                string        `json:"id" yaml:"id"`
	Name              string        `json:"name" yaml:"name"`
	ReceivableAccount string        `json:"receivable_account" yaml:"receivable_account"`
	Status            SubjectStatus `json:"status" yaml:"status"`
	StartDate         time.Time     `json:"start_date" yaml:"start_date"`
	EndDate           *time.Time    `json:"end_date,omitempty" yaml:"end_date"`
}

// EligibleAt reports whether the subject can be billed as of asOf: its
// agreement is active, has started, and has not ended.
func (s *Subject) EligibleAt(asOf time.Time) bool {
	if s.Status != SubjectActive {
		return false
	}
	if s.StartDate.After(asOf) {
		return false
	}
	if s.EndDate != nil && s.EndDate.Before(asOf) {
		return false
	}
	return true
}

// Definition is a charge that recurs once per period for a subject.
type Definition struct {
	types.Entity
	ID            id.DefinitionID `json:"id"`
	SubjectID     string          `json:"subject_id"`
	Description   string          `json:"description"`
	Amount        types.Money     `json:"amount"`
	IncomeAccount string          `json:"income_account"`
	// DueDay is the day of the month the charge becomes due (1-31). Days past
	// the end of a short month fall due on its last day.
	DueDay            int    `json:"due_day"`
	Active            bool   `json:"active"`
	LastChargedPeriod Period `json:"last_charged_period,omitempty"`
}

// Validate checks the configuration fields of a definition.
func (d *Definition) Validate() error {
	switch {
	case d.SubjectID == "":
		return fmt.Errorf("recurring: subject is required")
	case d.IncomeAccount == "":
		return fmt.Errorf("recurring: income account is required")
	case !d.Amount.IsPositive():
		return fmt.Errorf("recurring: amount must be positive, got %s", d.Amount)
	case d.DueDay < 1 || d.DueDay > 31:
		return fmt.Errorf("recurring: due day must be within 1..31, got %d", d.DueDay)
	}
	return nil
}

// IsDue reports whether the definition's due day has been reached in the
// period containing asOf.
func (d *Definition) IsDue(asOf time.Time) bool {
	due := min(d.DueDay, DaysIn(asOf))
	return asOf.UTC().Day() >= due
}

// ChargedIn reports whether the definition already posted for period.
func (d *Definition) ChargedIn(period Period) bool {
	return d.LastChargedPeriod == period
}

// IdempotencyKey derives the posting key for one (subject, definition,
// period) tuple. At most one posting group can ever exist per key.
func IdempotencyKey(subjectID string, definitionID id.DefinitionID, period Period) string {
	return fmt.Sprintf("recurring:%s:%s:%s", subjectID, definitionID, period)
}
