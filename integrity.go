package ledger

import (
	"context"

	"github.com/rentbook/ledger/journal"
	"github.com/rentbook/ledger/types"
)

// CheckIntegrity sums every posted debit and credit in one aggregate read
// and reports whether they agree. It takes no locks and writes nothing.
func (l *Ledger) CheckIntegrity(ctx context.Context) (*journal.IntegrityReport, error) {
	totals, err := l.store.SumEntries(ctx, journal.Filter{Status: journal.StatusPosted})
	if err != nil {
		return nil, err
	}

	report := &journal.IntegrityReport{
		Balanced:     totals.Balanced(),
		TotalDebits:  types.New(totals.Debits, l.currency),
		TotalCredits: types.New(totals.Credits, l.currency),
		Discrepancy:  types.New(totals.Debits-totals.Credits, l.currency),
		EntryCount:   totals.Count,
		CheckedAt:    l.clock(),
	}

	if report.Balanced {
		l.logger.Info("integrity check passed",
			"entries", report.EntryCount,
			"total", report.TotalDebits.String(),
		)
	} else {
		l.logger.Error("integrity check failed",
			"debits", report.TotalDebits.String(),
			"credits", report.TotalCredits.String(),
			"discrepancy", report.Discrepancy.String(),
			"overflow", totals.Overflow,
		)
	}
	l.plugins.EmitIntegrityChecked(ctx, report)
	return report, nil
}
