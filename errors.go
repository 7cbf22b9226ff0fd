package ledger

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("ledger: not found")
	ErrAlreadyExists = errors.New("ledger: already exists")
	ErrInvalidInput  = errors.New("ledger: invalid input")

	// Posting validation errors. These indicate caller bugs or bad input
	// and are never retried automatically.
	ErrUnbalanced       = errors.New("ledger: debits and credits do not balance")
	ErrInvalidAmount    = errors.New("ledger: invalid amount")
	ErrCurrencyMismatch = errors.New("ledger: currency does not match ledger currency")
	ErrUnknownAccount   = errors.New("ledger: unknown account")
	ErrInactiveAccount  = errors.New("ledger: account is inactive")

	// Journal errors
	ErrEntryNotFound = fmt.Errorf("%w: entry", ErrNotFound)
	ErrGroupNotFound = fmt.Errorf("%w: posting group", ErrNotFound)
	ErrAlreadyVoided = errors.New("ledger: entry is already voided")
	// ErrDuplicateKey is raised by stores when an idempotency key is taken.
	// The posting engine resolves it into a replayed success.
	ErrDuplicateKey = errors.New("ledger: duplicate idempotency key")

	// Account errors
	ErrAccountNotFound  = fmt.Errorf("%w: account", ErrNotFound)
	ErrAccountInUse     = errors.New("ledger: account is referenced by entries")
	ErrAccountImmutable = errors.New("ledger: account structure is immutable once referenced")

	// Recurring errors
	ErrDefinitionNotFound = fmt.Errorf("%w: charge definition", ErrNotFound)
	ErrSubjectNotFound    = fmt.Errorf("%w: subject", ErrNotFound)

	// Store errors
	ErrStorageUnavailable = errors.New("ledger: storage unavailable")
	ErrStoreClosed        = errors.New("ledger: store is closed")
	ErrTransactionFailed  = errors.New("ledger: transaction failed")
	ErrMigrationFailed    = errors.New("ledger: migration failed")
)

// ValidationError represents a validation failure with details. It wraps
// ErrInvalidInput.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("ledger: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is(err, ErrInvalidInput) match.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "ledger: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("ledger: %d errors occurred (first: %v)", len(e.Errors), e.Errors[0])
}

// Unwrap exposes the wrapped errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ErrorOrNil returns e when it holds errors, nil otherwise.
func (e MultiError) ErrorOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation returns true if the error was caused by the request itself.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrUnbalanced) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrCurrencyMismatch) ||
		errors.Is(err, ErrUnknownAccount) ||
		errors.Is(err, ErrInactiveAccount)
}

// IsRetryable returns true if the error is temporary and the operation can
// be retried with the same idempotency key.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, ErrTransactionFailed)
}

// Unavailable wraps a driver error as ErrStorageUnavailable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}
