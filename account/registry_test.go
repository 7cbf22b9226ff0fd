package account_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentbook/ledger/account"
	"github.com/rentbook/ledger/types"
)

var errMissing = errors.New("missing")

type countingStore struct {
	accounts map[string]*account.Account
	gets     int
}

func (s *countingStore) CreateAccount(_ context.Context, a *account.Account) error {
	s.accounts[a.Code] = a
	return nil
}

func (s *countingStore) GetAccount(_ context.Context, code string) (*account.Account, error) {
	s.gets++
	a, ok := s.accounts[code]
	if !ok {
		return nil, errMissing
	}
	cp := *a
	return &cp, nil
}

func (s *countingStore) ListAccounts(context.Context, account.ListOpts) ([]*account.Account, error) {
	return nil, nil
}

func (s *countingStore) UpdateAccount(_ context.Context, a *account.Account) error {
	s.accounts[a.Code] = a
	return nil
}

func (s *countingStore) DeleteAccount(_ context.Context, code string) error {
	delete(s.accounts, code)
	return nil
}

func newStore() *countingStore {
	return &countingStore{accounts: map[string]*account.Account{
		"1200": {Code: "1200", Name: "Accounts Receivable", Category: account.CategoryAsset, Active: true},
		"4000": {Code: "4000", Name: "Rental Income", Category: account.CategoryIncome, Active: false},
	}}
}

func TestRegistryResolve(t *testing.T) {
	s := newStore()
	r := account.NewRegistry(s, time.Minute)
	ctx := context.Background()

	a, err := r.Resolve(ctx, "1200")
	require.NoError(t, err)
	assert.Equal(t, "Accounts Receivable", a.Name)

	_, err = r.Resolve(ctx, "1200")
	require.NoError(t, err)
	assert.Equal(t, 1, s.gets, "second resolve should hit the cache")

	_, err = r.Resolve(ctx, "9999")
	assert.ErrorIs(t, err, errMissing)
}

func TestRegistryReturnsCopies(t *testing.T) {
	r := account.NewRegistry(newStore(), time.Minute)
	ctx := context.Background()

	a, err := r.Resolve(ctx, "1200")
	require.NoError(t, err)
	a.Name = "mutated"

	b, err := r.Resolve(ctx, "1200")
	require.NoError(t, err)
	assert.Equal(t, "Accounts Receivable", b.Name)
}

func TestRegistryInvalidate(t *testing.T) {
	s := newStore()
	r := account.NewRegistry(s, time.Minute)
	ctx := context.Background()

	active, err := r.IsActive(ctx, "4000")
	require.NoError(t, err)
	assert.False(t, active)

	s.accounts["4000"].Active = true
	active, err = r.IsActive(ctx, "4000")
	require.NoError(t, err)
	assert.False(t, active, "stale cached value expected before invalidation")

	r.Invalidate("4000")
	active, err = r.IsActive(ctx, "4000")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestRegistryWithoutCache(t *testing.T) {
	s := newStore()
	r := account.NewRegistry(s, 0)
	ctx := context.Background()

	for range 3 {
		_, err := r.Resolve(ctx, "1200")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, s.gets)
	r.Invalidate("1200")
	r.Flush()
}

func TestNormalSide(t *testing.T) {
	tests := []struct {
		name    string
		acct    account.Account
		want    types.Side
		debits  int64
		credits int64
		balance int64
	}{
		{"asset", account.Account{Category: account.CategoryAsset}, types.Debit, 500, 200, 300},
		{"expense", account.Account{Category: account.CategoryExpense}, types.Debit, 100, 0, 100},
		{"liability", account.Account{Category: account.CategoryLiability}, types.Credit, 0, 700, 700},
		{"equity", account.Account{Category: account.CategoryEquity}, types.Credit, 100, 50, -50},
		{"income", account.Account{Category: account.CategoryIncome}, types.Credit, 0, 50000, 50000},
		{"contra asset", account.Account{Category: account.CategoryAsset, NormalBalance: types.Credit}, types.Credit, 10, 30, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.acct.NormalSide())
			assert.Equal(t, tt.balance, tt.acct.Signed(tt.debits, tt.credits))
		})
	}
}

func TestValidate(t *testing.T) {
	ok := &account.Account{Code: "1200", Name: "AR", Category: account.CategoryAsset}
	require.NoError(t, ok.Validate())

	bad := []*account.Account{
		{Name: "no code", Category: account.CategoryAsset},
		{Code: "1", Category: account.CategoryAsset},
		{Code: "1", Name: "x", Category: "REVENUE"},
		{Code: "1", Name: "x", Category: account.CategoryAsset, NormalBalance: "LEFT"},
	}
	for _, a := range bad {
		assert.Error(t, a.Validate(), "%+v", a)
	}

	cat, err := account.ParseCategory(" income ")
	require.NoError(t, err)
	assert.Equal(t, account.CategoryIncome, cat)
	_, err = account.ParseCategory("revenue")
	assert.Error(t, err)
}

func TestStructuralChange(t *testing.T) {
	a := &account.Account{Code: "1200", Name: "AR", Category: account.CategoryAsset}

	renamed := *a
	renamed.Name = "Receivables"
	renamed.Active = true
	assert.False(t, a.StructuralChange(&renamed))

	recat := *a
	recat.Category = account.CategoryLiability
	assert.True(t, a.StructuralChange(&recat))

	explicit := *a
	explicit.NormalBalance = types.Debit
	assert.False(t, a.StructuralChange(&explicit), "explicit default side is not a change")
}
