// Package account models the chart of accounts and resolves account codes
// for the posting path.
package account

import (
	"fmt"
	"strings"

	"github.com/rentbook/ledger/types"
)

// Category is the accounting class of an account.
type Category string

const (
	CategoryAsset     Category = "ASSET"
	CategoryLiability Category = "LIABILITY"
	CategoryEquity    Category = "EQUITY"
	CategoryIncome    Category = "INCOME"
	CategoryExpense   Category = "EXPENSE"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryAsset, CategoryLiability, CategoryEquity, CategoryIncome, CategoryExpense:
		return true
	}
	return false
}

// NormalSide is the side on which balances of this category are positive.
func (c Category) NormalSide() types.Side {
	switch c {
	case CategoryAsset, CategoryExpense:
		return types.Debit
	default:
		return types.Credit
	}
}

// ParseCategory parses a category name case-insensitively.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("account: unknown category %q", s)
	}
	return c, nil
}

// Account is a chart-of-accounts entry. Accounts are created by
// configuration and never by the posting path.
type Account struct {
	types.Entity
	Code        string   `json:"code" yaml:"code"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Category    Category `json:"category" yaml:"category"`
	// NormalBalance overrides the category default (contra accounts).
	NormalBalance types.Side `json:"normal_balance,omitempty" yaml:"normal_balance"`
	Active        bool       `json:"active" yaml:"active"`
}

// NormalSide returns the explicit normal balance, or the category default.
func (a *Account) NormalSide() types.Side {
	if a.NormalBalance.Valid() {
		return a.NormalBalance
	}
	return a.Category.NormalSide()
}

// Signed turns raw debit and credit totals into a balance that is positive
// on the account's normal side.
func (a *Account) Signed(debits, credits int64) int64 {
	if a.NormalSide() == types.Debit {
		return debits - credits
	}
	return credits - debits
}

// Validate checks the structural fields of an account definition.
func (a *Account) Validate() error {
	if strings.TrimSpace(a.Code) == "" {
		return fmt.Errorf("account: code is required")
	}
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("account %s: name is required", a.Code)
	}
	if !a.Category.Valid() {
		return fmt.Errorf("account %s: unknown category %q", a.Code, a.Category)
	}
	if a.NormalBalance != "" && !a.NormalBalance.Valid() {
		return fmt.Errorf("account %s: unknown normal balance %q", a.Code, a.NormalBalance)
	}
	return nil
}

// StructuralChange reports whether next differs from a in a field that is
// frozen once the account is referenced by an entry.
func (a *Account) StructuralChange(next *Account) bool {
	return a.Code != next.Code ||
		a.Category != next.Category ||
		a.NormalSide() != next.NormalSide()
}
