package tree

import (
	"errors"
	"fmt"
)

var (
	// ErrUnresolvedReference is returned when a parent or ref attribute
	// does not resolve to an instance of the same tree.
	ErrUnresolvedReference = errors.New("unresolved reference")

	// ErrInvalidInstance is returned for instances that cannot be stored
	// (missing id, unknown type).
	ErrInvalidInstance = errors.New("invalid instance")

	// ErrInvalidParent is returned when a subitem's parent is missing or of
	// a type that does not allow it, or when a top-level item has a parent.
	ErrInvalidParent = errors.New("invalid parent")

	// ErrTypeMismatch is returned when a reference or view targets an
	// instance of an incompatible type.
	ErrTypeMismatch = errors.New("type mismatch")
)

// ReferenceError describes a reference that does not resolve.
type ReferenceError struct {
	From Ref
	Attr string // "parent" for the parent link
	To   Ref
}

func (e *ReferenceError) Error() string {
	if e.From.IsZero() {
		return fmt.Sprintf("reference %s does not resolve", e.To)
	}
	return fmt.Sprintf("%s.%s: reference %s does not resolve", e.From, e.Attr, e.To)
}

// Unwrap makes ReferenceError match ErrUnresolvedReference.
func (e *ReferenceError) Unwrap() error {
	return ErrUnresolvedReference
}
