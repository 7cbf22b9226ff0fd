package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/rentbook/ledger/account"
	"github.com/rentbook/ledger/journal"
	"github.com/rentbook/ledger/types"
)

// Balance derives the balance of accountCode from its posted entries,
// positive on the account's normal side. An empty subjectID covers every
// subject. Accounts without entries have a zero balance.
func (l *Ledger) Balance(ctx context.Context, accountCode, subjectID string) (types.Money, error) {
	a, err := l.resolveForQuery(ctx, accountCode)
	if err != nil {
		return types.Money{}, err
	}
	totals, err := l.store.SumEntries(ctx, journal.Filter{
		AccountCode: accountCode,
		SubjectID:   subjectID,
		Status:      journal.StatusPosted,
	})
	if err != nil {
		return types.Money{}, err
	}
	if totals.Overflow {
		return types.Money{}, fmt.Errorf("%w: balance of %s overflows", ErrInvalidAmount, accountCode)
	}
	return types.New(a.Signed(totals.Debits, totals.Credits), l.currency), nil
}

// AccountBalance is one line of a trial balance.
type AccountBalance struct {
	Account *account.Account `json:"account"`
	Debits  types.Money      `json:"debits"`
	Credits types.Money      `json:"credits"`
	Balance types.Money      `json:"balance"`
}

// TrialBalance returns the balance of every account in code order.
func (l *Ledger) TrialBalance(ctx context.Context) ([]AccountBalance, error) {
	accounts, err := l.store.ListAccounts(ctx, account.ListOpts{})
	if err != nil {
		return nil, err
	}
	out := make([]AccountBalance, 0, len(accounts))
	for _, a := range accounts {
		totals, err := l.store.SumEntries(ctx, journal.Filter{AccountCode: a.Code, Status: journal.StatusPosted})
		if err != nil {
			return nil, fmt.Errorf("trial balance %s: %w", a.Code, err)
		}
		if totals.Overflow {
			return nil, fmt.Errorf("trial balance %s: %w: totals overflow", a.Code, ErrInvalidAmount)
		}
		out = append(out, AccountBalance{
			Account: a,
			Debits:  types.New(totals.Debits, l.currency),
			Credits: types.New(totals.Credits, l.currency),
			Balance: types.New(a.Signed(totals.Debits, totals.Credits), l.currency),
		})
	}
	return out, nil
}

func (l *Ledger) resolveForQuery(ctx context.Context, code string) (*account.Account, error) {
	a, err := l.accounts.Resolve(ctx, code)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, code)
	}
	return a, err
}
