package store

import (
	"errors"
	"fmt"

	"github.com/claustre/claustre/internal/models"
)

// RecoverableError is an alias for models.RecoverableError, retained so
// callers that reference store.RecoverableError keep working.
type RecoverableError = models.RecoverableError

// Sentinel errors for simple equality checks with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrIllegalTransition = errors.New("illegal state transition")
)

// NotFoundError names the missing entity kind and ID (spec §7 NotFound).
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}
func (e *NotFoundError) ErrorCode() string { return "NOT_FOUND" }
func (e *NotFoundError) Context() map[string]string {
	return map[string]string{"entity": e.Entity, "id": e.ID}
}
func (e *NotFoundError) SuggestedAction() string {
	return fmt.Sprintf("verify the %s id and retry", e.Entity)
}
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
func (e *NotFoundError) Kind() models.ErrorKind { return models.ErrorKindNotFound }

// IllegalTransitionError reports a rejected status transition (spec §4.1 table).
type IllegalTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal %s transition for %q: %s -> %s", e.Entity, e.ID, e.From, e.To)
}
func (e *IllegalTransitionError) ErrorCode() string { return "ILLEGAL_TRANSITION" }
func (e *IllegalTransitionError) Context() map[string]string {
	return map[string]string{"entity": e.Entity, "id": e.ID, "from": e.From, "to": e.To}
}
func (e *IllegalTransitionError) SuggestedAction() string {
	return "reload current status before retrying the mutation"
}
func (e *IllegalTransitionError) Is(target error) bool { return target == ErrIllegalTransition }
func (e *IllegalTransitionError) Kind() models.ErrorKind {
	return models.ErrorKindIllegalTransition
}

// IntegrityError wraps a foreign-key or constraint violation (spec §7 Integrity).
type IntegrityError struct {
	Op  string
	Err error
}

func (e *IntegrityError) Error() string  { return fmt.Sprintf("integrity violation during %s: %v", e.Op, e.Err) }
func (e *IntegrityError) Unwrap() error  { return e.Err }
func (e *IntegrityError) ErrorCode() string { return "INTEGRITY" }
func (e *IntegrityError) Context() map[string]string {
	return map[string]string{"op": e.Op}
}
func (e *IntegrityError) SuggestedAction() string {
	return "check referenced rows exist before retrying"
}
func (e *IntegrityError) Kind() models.ErrorKind { return models.ErrorKindIntegrity }
