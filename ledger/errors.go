/*
errors.go - Error taxonomy for the posting engine

PURPOSE:
  All error types in one place. The engine, the stores and the API agree on
  these sentinels; structured errors carry context and unwrap to them.

ERROR CATEGORIES:
  1. Rejections - the mutation is aborted, nothing is persisted
     ReferenceNotFound, DuplicateSource, InvalidCategory, DuplicateBusinessKey,
     SourceInUse, InvalidAmount
  2. Conflicts - ConcurrentModification (optimistic version check failed)
  3. Reconciliation failures - old postings were reversed but the new set
     could not be applied. Never swallowed.

USAGE:
  if errors.Is(err, ledger.ErrReferenceNotFound) {
      var ref *ledger.ReferenceNotFoundError
      errors.As(err, &ref) // ref.Kind, ref.Key
  }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrReferenceNotFound is returned when a document points at a loading slip,
	// bill, memo, party, supplier, vehicle or wallet that does not exist.
	ErrReferenceNotFound = errors.New("reference not found")

	// ErrDuplicateSource is returned when a bill or memo already exists for a
	// loading slip.
	ErrDuplicateSource = errors.New("duplicate source document")

	// ErrInvalidCategory is returned when a cash entry category needs data the
	// entry does not carry (e.g. vehicle_expense without vehicle_no).
	ErrInvalidCategory = errors.New("invalid category")

	// ErrPostingReconciliation is returned when old postings were removed but
	// re-applying the new ones failed.
	ErrPostingReconciliation = errors.New("posting reconciliation failure")

	// ErrDuplicateBusinessKey is returned when a bill/memo/slip number or a
	// master name is already used within its series.
	ErrDuplicateBusinessKey = errors.New("duplicate business key")

	// ErrNotFound is returned when the addressed document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConcurrentModification is returned when the stored version of a
	// document differs from the version the caller edited.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrSourceInUse is returned when deleting a document other documents
	// still reference (a loading slip with a bill or memo).
	ErrSourceInUse = errors.New("source document in use")

	// ErrInvalidAmount is returned for negative amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrDuplicateEntry is returned by stores when an entry id already exists.
	ErrDuplicateEntry = errors.New("duplicate ledger entry")

	// ErrInvalidRange is returned when a date range ends before it starts.
	ErrInvalidRange = errors.New("invalid date range: end before start")

	// ErrStoreRequired is returned when an engine or handler is built without
	// its transactional store.
	ErrStoreRequired = errors.New("operation requires transactional store")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ReferenceNotFoundError names the missing reference.
type ReferenceNotFoundError struct {
	Kind string // "loading_slip", "bill", "memo", "party", "supplier", "vehicle", "fuel_wallet"
	Key  string // id or business key that was looked up
}

func (e *ReferenceNotFoundError) Error() string {
	return fmt.Sprintf("reference not found: %s %q", e.Kind, e.Key)
}

func (e *ReferenceNotFoundError) Unwrap() error { return ErrReferenceNotFound }

// DuplicateSourceError reports a second bill or memo for one loading slip.
type DuplicateSourceError struct {
	Kind          string
	LoadingSlipID string
	ExistingID    string
}

func (e *DuplicateSourceError) Error() string {
	return fmt.Sprintf("%s %s already exists for loading slip %s", e.Kind, e.ExistingID, e.LoadingSlipID)
}

func (e *DuplicateSourceError) Unwrap() error { return ErrDuplicateSource }

// InvalidCategoryError explains why a cash entry could not be routed.
type InvalidCategoryError struct {
	Category string
	Reason   string
}

func (e *InvalidCategoryError) Error() string {
	return fmt.Sprintf("invalid category %q: %s", e.Category, e.Reason)
}

func (e *InvalidCategoryError) Unwrap() error { return ErrInvalidCategory }

// DuplicateKeyError reports a business key collision.
type DuplicateKeyError struct {
	Collection string
	Key        string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate business key in %s: %q", e.Collection, e.Key)
}

func (e *DuplicateKeyError) Unwrap() error { return ErrDuplicateBusinessKey }

// NotFoundError names the missing document.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %q not found", e.Kind, e.ID) }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ReconciliationError is the PostingReconciliationFailure condition. Flagged
// is true when the store could not be restored and the source was marked stale.
type ReconciliationError struct {
	Source  SourceRef
	Action  string
	Err     error
	Flagged bool
}

func (e *ReconciliationError) Error() string {
	msg := fmt.Sprintf("posting reconciliation failed for %s on %s: %v", e.Source, e.Action, e.Err)
	if e.Flagged {
		msg += " (source flagged stale)"
	}
	return msg
}

func (e *ReconciliationError) Unwrap() []error { return []error{ErrPostingReconciliation, e.Err} }

type InvalidLedgerTypeError struct{ Value string }

func (e *InvalidLedgerTypeError) Error() string { return fmt.Sprintf("unknown ledger type %q", e.Value) }

func (e *InvalidLedgerTypeError) Unwrap() error { return ErrInvalidCategory }

type InvalidSourceTypeError struct{ Value string }

func (e *InvalidSourceTypeError) Error() string { return fmt.Sprintf("unknown source type %q", e.Value) }

func (e *InvalidSourceTypeError) Unwrap() error { return ErrInvalidCategory }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidCategory) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidRange)
}

// IsNotFound returns true if the addressed document does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the mutation collides with existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateSource) ||
		errors.Is(err, ErrDuplicateBusinessKey) ||
		errors.Is(err, ErrDuplicateEntry) ||
		errors.Is(err, ErrSourceInUse) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
