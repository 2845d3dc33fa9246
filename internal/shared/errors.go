package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness or concurrency conflict that may be retried.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates a request rejected before any write.
	ErrValidation = errors.New("validation failed")
)

// IntegrityError reports a stored-data invariant violation: the engine
// refuses to work around it, the record has to be repaired.
type IntegrityError struct {
	Kind   string // e.g. "charge_linkage", "mixed_currency", "tenant_mismatch"
	Entity string
	ID     string
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation (%s) on %s %s: %s", e.Kind, e.Entity, e.ID, e.Detail)
}

// StateConflictError reports a lifecycle transition attempted from an invalid state.
type StateConflictError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("%s %s: invalid transition %s -> %s", e.Entity, e.ID, e.From, e.To)
}
