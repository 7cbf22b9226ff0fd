package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/rentbook/ledger/account"
	"github.com/rentbook/ledger/journal"
	"github.com/rentbook/ledger/types"
)

// ──────────────────────────────────────────────────
// Chart of accounts
// ──────────────────────────────────────────────────

// CreateAccount adds an account to the chart. A missing normal balance is
// filled in from the category.
func (l *Ledger) CreateAccount(ctx context.Context, a *account.Account) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if a.NormalBalance == "" {
		a.NormalBalance = a.Category.NormalSide()
	}
	a.Entity = types.NewEntity(l.clock())

	if err := l.store.CreateAccount(ctx, a); err != nil {
		return err
	}
	l.accounts.Invalidate(a.Code)

	l.logger.Info("account created", "code", a.Code, "category", string(a.Category))
	l.plugins.EmitAccountCreated(ctx, a)
	return nil
}

// GetAccount returns an account by code.
func (l *Ledger) GetAccount(ctx context.Context, code string) (*account.Account, error) {
	return l.store.GetAccount(ctx, code)
}

// ListAccounts returns accounts in code order.
func (l *Ledger) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	return l.store.ListAccounts(ctx, opts)
}

// UpdateAccount saves a's name, description and active flag. Code,
// category and normal side may only change while no entry references the
// account.
func (l *Ledger) UpdateAccount(ctx context.Context, a *account.Account) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	current, err := l.store.GetAccount(ctx, a.Code)
	if err != nil {
		return err
	}
	if a.NormalBalance == "" {
		a.NormalBalance = a.Category.NormalSide()
	}
	if current.StructuralChange(a) {
		used, err := l.store.SumEntries(ctx, journal.Filter{AccountCode: a.Code})
		if err != nil {
			return err
		}
		if used.Count > 0 {
			return fmt.Errorf("%w: %s", ErrAccountImmutable, a.Code)
		}
	}

	a.CreatedAt = current.CreatedAt
	a.Touch(l.clock())
	if err := l.store.UpdateAccount(ctx, a); err != nil {
		return err
	}
	l.accounts.Invalidate(a.Code)

	l.logger.Info("account updated", "code", a.Code, "active", a.Active)
	l.plugins.EmitAccountUpdated(ctx, current, a)
	return nil
}

// SetAccountActive toggles whether new postings may reference code.
func (l *Ledger) SetAccountActive(ctx context.Context, code string, active bool) error {
	a, err := l.store.GetAccount(ctx, code)
	if err != nil {
		return err
	}
	a.Active = active
	return l.UpdateAccount(ctx, a)
}

// DeleteAccount removes an account that no entry references.
func (l *Ledger) DeleteAccount(ctx context.Context, code string) error {
	if err := l.store.DeleteAccount(ctx, code); err != nil {
		return err
	}
	l.accounts.Invalidate(code)
	l.logger.Info("account deleted", "code", code)
	return nil
}

// SeedAccounts creates every account in accounts that does not exist yet
// and returns how many it created. Failures do not stop the seed; they are
// collected into a MultiError.
func (l *Ledger) SeedAccounts(ctx context.Context, accounts []*account.Account) (int, error) {
	var (
		created int
		errs    MultiError
	)
	for _, a := range accounts {
		err := l.CreateAccount(ctx, a)
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrAlreadyExists):
		default:
			errs.Add(fmt.Errorf("account %s: %w", a.Code, err))
		}
	}
	return created, errs.ErrorOrNil()
}
