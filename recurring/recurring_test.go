package recurring

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rentbook/ledger/id"
	"github.com/rentbook/ledger/types"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func TestPeriodOf(t *testing.T) {
	tests := []struct {
		in   time.Time
		want Period
	}{
		{date(2025, time.January, 1), "2025-01"},
		{date(2025, time.December, 31), "2025-12"},
		{time.Date(2025, time.February, 1, 1, 0, 0, 0, time.FixedZone("X", 5*3600)), "2025-01"},
	}
	for _, tt := range tests {
		if got := PeriodOf(tt.in); got != tt.want {
			t.Errorf("PeriodOf(%v): got %q, want %q", tt.in, got, tt.want)
		}
	}

	p, err := ParsePeriod("2025-03")
	if err != nil {
		t.Fatalf("ParsePeriod: %v", err)
	}
	if !p.Start().Equal(time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Start: got %v", p.Start())
	}
	if !p.After("2025-02") || p.After("2025-03") {
		t.Error("After: wrong ordering")
	}
	if _, err := ParsePeriod("2025-13"); err == nil {
		t.Error("expected error for month 13")
	}
}

func TestIsDue(t *testing.T) {
	tests := []struct {
		name   string
		dueDay int
		asOf   time.Time
		want   bool
	}{
		{"before due day", 5, date(2025, time.January, 4), false},
		{"on due day", 5, date(2025, time.January, 5), true},
		{"after due day", 1, date(2025, time.January, 20), true},
		{"31st in february clamps", 31, date(2025, time.February, 28), true},
		{"31st in leap february", 31, date(2024, time.February, 28), false},
		{"30th in april end", 31, date(2025, time.April, 30), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Definition{DueDay: tt.dueDay}
			if got := d.IsDue(tt.asOf); got != tt.want {
				t.Errorf("IsDue: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEligibleAt(t *testing.T) {
	asOf := date(2025, time.January, 15)
	ended := date(2025, time.January, 10)
	later := date(2025, time.June, 1)

	tests := []struct {
		name    string
		subject Subject
		want    bool
	}{
		{"active started", Subject{Status: SubjectActive, StartDate: date(2024, time.June, 1)}, true},
		{"starts today", Subject{Status: SubjectActive, StartDate: asOf}, true},
		{"not started", Subject{Status: SubjectActive, StartDate: date(2025, time.February, 1)}, false},
		{"pending", Subject{Status: SubjectPending, StartDate: date(2024, time.June, 1)}, false},
		{"terminated", Subject{Status: SubjectTerminated, StartDate: date(2024, time.June, 1)}, false},
		{"ended", Subject{Status: SubjectActive, StartDate: date(2024, time.June, 1), EndDate: &ended}, false},
		{"ends later", Subject{Status: SubjectActive, StartDate: date(2024, time.June, 1), EndDate: &later}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.subject.EligibleAt(asOf); got != tt.want {
				t.Errorf("EligibleAt: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefinitionValidate(t *testing.T) {
	valid := Definition{SubjectID: "L1", IncomeAccount: "4000", Amount: types.USD(50000), DueDay: 1}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid definition rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Definition)
	}{
		{"no subject", func(d *Definition) { d.SubjectID = "" }},
		{"no income account", func(d *Definition) { d.IncomeAccount = "" }},
		{"zero amount", func(d *Definition) { d.Amount = types.USD(0) }},
		{"due day zero", func(d *Definition) { d.DueDay = 0 }},
		{"due day 32", func(d *Definition) { d.DueDay = 32 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			tt.mutate(&d)
			if err := d.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestIdempotencyKey(t *testing.T) {
	defID := id.NewDefinitionID()
	key := IdempotencyKey("L1", defID, "2025-01")
	want := "recurring:L1:" + defID.String() + ":2025-01"
	if key != want {
		t.Errorf("got %q, want %q", key, want)
	}
	if IdempotencyKey("L1", defID, "2025-02") == key {
		t.Error("different periods must produce different keys")
	}
}

func TestRunReport(t *testing.T) {
	r := NewRunReport(date(2025, time.January, 5), time.Now())
	if r.Period != "2025-01" {
		t.Fatalf("period: got %q", r.Period)
	}

	var wg sync.WaitGroup
	for i := range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch i % 3 {
			case 0:
				r.Record(RunItem{Outcome: OutcomePosted})
			case 1:
				r.Record(RunItem{Outcome: OutcomeSkipped, Reason: ReasonAlreadyPosted})
			default:
				r.Record(RunItem{SubjectID: "L9", Err: errors.New("boom")})
			}
		}()
	}
	wg.Wait()

	posted, skipped, errored := r.Counts()
	if posted != 10 || skipped != 10 || errored != 10 {
		t.Fatalf("counts: got %d/%d/%d, want 10/10/10", posted, skipped, errored)
	}
	for _, item := range r.Errored {
		if item.Outcome != OutcomeErrored || item.Reason != "boom" {
			t.Errorf("errored item not normalised: %+v", item)
		}
	}

	err := r.Err()
	if err == nil || !strings.Contains(err.Error(), "subject L9") {
		t.Errorf("Err: got %v", err)
	}
	if !strings.Contains(r.Summary(), "10 errored") {
		t.Errorf("Summary: got %q", r.Summary())
	}

	clean := NewRunReport(date(2025, time.January, 5), time.Now())
	if clean.Err() != nil {
		t.Error("empty report should have no error")
	}
}
