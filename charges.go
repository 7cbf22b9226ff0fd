package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/rentbook/ledger/id"
	"github.com/rentbook/ledger/recurring"
	"github.com/rentbook/ledger/types"
)

// ──────────────────────────────────────────────────
// Recurring charge definitions
// ──────────────────────────────────────────────────

// CreateDefinition stores a new recurring charge definition.
func (l *Ledger) CreateDefinition(ctx context.Context, d *recurring.Definition) error {
	if d.ID.IsNil() {
		d.ID = id.NewDefinitionID()
	}
	if err := l.normalizeDefinition(d); err != nil {
		return err
	}
	d.Entity = types.NewEntity(l.clock())

	if err := l.store.CreateDefinition(ctx, d); err != nil {
		return err
	}
	l.logger.Info("charge definition created",
		"definition_id", d.ID.String(),
		"subject_id", d.SubjectID,
		"amount", d.Amount.String(),
	)
	return nil
}

// UpdateDefinition saves configuration changes (amount, accounts, due day,
// active flag). The charged-period marker is owned by billing runs and is
// never written here.
func (l *Ledger) UpdateDefinition(ctx context.Context, d *recurring.Definition) error {
	current, err := l.store.GetDefinition(ctx, d.ID)
	if err != nil {
		return err
	}
	if err := l.normalizeDefinition(d); err != nil {
		return err
	}
	d.CreatedAt = current.CreatedAt
	d.LastChargedPeriod = current.LastChargedPeriod
	d.Touch(l.clock())
	return l.store.UpdateDefinition(ctx, d)
}

// GetDefinition returns a definition by ID.
func (l *Ledger) GetDefinition(ctx context.Context, defID id.DefinitionID) (*recurring.Definition, error) {
	return l.store.GetDefinition(ctx, defID)
}

// ListDefinitions returns definitions in ID order.
func (l *Ledger) ListDefinitions(ctx context.Context, opts recurring.ListOpts) ([]*recurring.Definition, error) {
	return l.store.ListDefinitions(ctx, opts)
}

func (l *Ledger) normalizeDefinition(d *recurring.Definition) error {
	if d.Amount.Currency == "" {
		d.Amount.Currency = l.currency
	}
	if !strings.EqualFold(d.Amount.Currency, l.currency) {
		return fmt.Errorf("%w: definition is %s, ledger is %s", ErrCurrencyMismatch, d.Amount.Currency, l.currency)
	}
	d.Amount.Currency = l.currency
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Billing subjects
// ──────────────────────────────────────────────────

// UpsertSubject creates or replaces a billed subject. Lease management
// calls this whenever an agreement starts, changes or ends.
func (l *Ledger) UpsertSubject(ctx context.Context, s *recurring.Subject) error {
	switch {
	case strings.TrimSpace(s.ID) == "":
		return ValidationError{Field: "id", Message: "is required"}
	case strings.TrimSpace(s.ReceivableAccount) == "":
		return ValidationError{Field: "receivable_account", Message: "is required"}
	case s.StartDate.IsZero():
		return ValidationError{Field: "start_date", Message: "is required"}
	}
	if s.Status == "" {
		s.Status = recurring.SubjectActive
	}

	now := l.clock()
	s.Entity = types.NewEntity(now)
	if existing, err := l.store.GetSubject(ctx, s.ID); err == nil {
		s.CreatedAt = existing.CreatedAt
	} else if !IsNotFound(err) {
		return err
	}
	return l.store.UpsertSubject(ctx, s)
}

// GetSubject returns a billed subject by ID.
func (l *Ledger) GetSubject(ctx context.Context, subjectID string) (*recurring.Subject, error) {
	return l.store.GetSubject(ctx, subjectID)
}
