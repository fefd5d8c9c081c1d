package sheet

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorPredicates(t *testing.T) {
	val := &ValidationError{Message: "empty column title"}
	nf := &NotFoundError{Target: "row", Key: "p9"}
	inv := &InvariantViolation{Message: "identity column is read-only"}
	pe := &PersistenceError{Op: "setCell", Err: errors.New("503")}

	if !IsValidation(val) || IsValidation(nf) {
		t.Error("IsValidation misclassified")
	}
	if !IsNotFound(nf) || IsNotFound(val) {
		t.Error("IsNotFound misclassified")
	}
	if !IsInvariant(inv) || IsInvariant(pe) {
		t.Error("IsInvariant misclassified")
	}
	if !IsPersistence(pe) || IsPersistence(inv) {
		t.Error("IsPersistence misclassified")
	}
}

func TestErrorPredicates_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("apply: %w", &NotFoundError{Target: "column", Key: "price"})
	if !IsNotFound(wrapped) {
		t.Error("IsNotFound should see through wrapping")
	}

	inner := errors.New("connection reset")
	pe := fmt.Errorf("pipeline: %w", &PersistenceError{Op: "addRow", Err: inner})
	if !IsPersistence(pe) {
		t.Error("IsPersistence should see through wrapping")
	}
	if !errors.Is(pe, inner) {
		t.Error("PersistenceError should unwrap to its cause")
	}
}
