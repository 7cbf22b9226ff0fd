package types

import "fmt"

// Side is the column of a double-entry posting.
type Side string

const (
	Debit  Side = "DEBIT"
	Credit Side = "CREDIT"
)

// Valid reports whether s is one of the two posting sides.
func (s Side) Valid() bool { return s == Debit || s == Credit }

// Opposite returns the other side. Used to build reversals.
func (s Side) Opposite() Side {
	if s == Debit {
		return Credit
	}
	return Debit
}

// ParseSide accepts "debit"/"credit" in any case, plus the "dr"/"cr" shorthands.
func ParseSide(s string) (Side, error) {
	switch s {
	case "DEBIT", "debit", "Debit", "DR", "dr":
		return Debit, nil
	case "CREDIT", "credit", "Credit", "CR", "cr":
		return Credit, nil
	}
	return "", fmt.Errorf("side: unknown side %q", s)
}
