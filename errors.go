package creditledger

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// Input errors, always rejected before any write.
	ErrInvalidAmount    = errors.New("creditledger: amount must be positive")
	ErrCurrencyMismatch = errors.New("creditledger: currency mismatch")
	ErrInvalidInput     = errors.New("creditledger: invalid input")

	// Identity errors.
	ErrAccountNotFound = errors.New("creditledger: account not found")
	ErrCreditNotFound  = errors.New("creditledger: credit not found")
	ErrEntryNotFound   = errors.New("creditledger: ledger entry not found")

	// Infrastructure errors. ConcurrencyConflict is retried transparently
	// a bounded number of times by the engine before surfacing;
	// PersistenceFailure guarantees the unit of work was fully rolled
	// back and is safe for the caller to retry.
	ErrConcurrencyConflict = errors.New("creditledger: concurrent modification conflict")
	ErrPersistenceFailure  = errors.New("creditledger: persistence failure")

	// Store lifecycle errors.
	ErrStoreClosed     = errors.New("creditledger: store is closed")
	ErrMigrationFailed = errors.New("creditledger: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("creditledger: validation failed for %s: %s", e.Field, e.Message)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrCreditNotFound) ||
		errors.Is(err, ErrEntryNotFound)
}

// IsRetryable returns true if the error is transient and the operation
// can be retried by the caller without risk of double effect: the failed
// unit of work was never partially applied.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict) ||
		errors.Is(err, ErrPersistenceFailure)
}

// IsBusinessError returns true for errors the engine never retries
// internally: bad input and missing identities.
func IsBusinessError(err error) bool {
	var verr ValidationError
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrCurrencyMismatch) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.As(err, &verr) ||
		IsNotFound(err)
}
