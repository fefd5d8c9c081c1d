package sheet

import (
	"errors"
	"fmt"
)

// The error taxonomy mirrors how failures are handled, not where they
// occur:
//
//   - ValidationError: bad user input, caught before any network call,
//     surfaced inline. Never triggers a rollback because nothing was
//     applied.
//   - NotFoundError: the mutation target no longer exists. Expected during
//     reconciliation races (a delta can outrun the creation ack for its own
//     row); logged, not surfaced.
//   - InvariantViolation: a structurally forbidden change, e.g. removing
//     the identity column. Rejected synchronously, never reaches the
//     network.
//   - PersistenceError: the server rejected or the network dropped a local
//     mutation. Triggers rollback of the optimistic change and a
//     user-visible notice. Never retried automatically.

// ValidationError reports rejected user input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Message
}

// NotFoundError reports a mutation whose target is gone. Target is "row",
// "column", or "cell"; Key identifies it.
type NotFoundError struct {
	Target string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Target, e.Key)
}

// InvariantViolation reports a structurally forbidden mutation.
type InvariantViolation struct {
	Message string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.Message
}

// PersistenceError wraps a failed persistence call for the mutation named
// by Op.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed for %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsInvariant reports whether err is (or wraps) an InvariantViolation.
func IsInvariant(err error) bool {
	var iv *InvariantViolation
	return errors.As(err, &iv)
}

// IsPersistence reports whether err is (or wraps) a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
