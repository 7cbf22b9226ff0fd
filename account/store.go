package account

import "context"

// Store persists chart-of-accounts entries.
type Store interface {
	CreateAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, code string) (*Account, error)
	ListAccounts(ctx context.Context, opts ListOpts) ([]*Account, error)
	UpdateAccount(ctx context.Context, a *Account) error
	// DeleteAccount removes an account only if no entry references it.
	DeleteAccount(ctx context.Context, code string) error
}

// ListOpts filters ListAccounts. Results are ordered by code.
type ListOpts struct {
	Category   Category
	ActiveOnly bool
	Limit      int
	Offset     int
}

// Match reports whether a passes the filter fields of opts.
func (o ListOpts) Match(a *Account) bool {
	if o.Category != "" && a.Category != o.Category {
		return false
	}
	if o.ActiveOnly && !a.Active {
		return false
	}
	return true
}
