package recurring

import (
	"context"

	"github.com/rentbook/ledger/id"
)

// Store persists charge definitions and their subjects.
type Store interface {
	CreateDefinition(ctx context.Context, d *Definition) error
	GetDefinition(ctx context.Context, defID id.DefinitionID) (*Definition, error)
	ListDefinitions(ctx context.Context, opts ListOpts) ([]*Definition, error)
	// UpdateDefinition rewrites the configuration fields. LastChargedPeriod
	// is owned by MarkCharged and is not written here.
	UpdateDefinition(ctx context.Context, d *Definition) error
	// MarkCharged advances LastChargedPeriod to period with a conditional
	// update that never moves it backwards. It reports whether a row changed.
	MarkCharged(ctx context.Context, defID id.DefinitionID, period Period) (bool, error)

	UpsertSubject(ctx context.Context, s *Subject) error
	GetSubject(ctx context.Context, subjectID string) (*Subject, error)
}

// ListOpts filters ListDefinitions. Results are ordered by ID.
type ListOpts struct {
	SubjectID  string
	ActiveOnly bool
	Limit      int
	Offset     int
}

// Match reports whether d passes the filter fields of opts.
func (o ListOpts) Match(d *Definition) bool {
	if o.SubjectID != "" && d.SubjectID != o.SubjectID {
		return false
	}
	if o.ActiveOnly && !d.Active {
		return false
	}
	return true
}
