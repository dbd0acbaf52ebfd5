package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrRegistrationConflict is returned when an id is registered twice.
	ErrRegistrationConflict = errors.New("registration conflict")

	// ErrSealedRegistry is returned for any mutation after Seal.
	ErrSealedRegistry = errors.New("registry is sealed")

	// ErrUnknownChoice is returned when a value is not registered for a choice key.
	ErrUnknownChoice = errors.New("unknown choice")

	// ErrUnknownItem is returned when an item type id is not registered.
	ErrUnknownItem = errors.New("unknown item type")

	// ErrUnknownPoint is returned when a registry point is not registered.
	ErrUnknownPoint = errors.New("unknown registry point")

	// ErrUnknownAttribute is returned when an attribute is not part of a type's surface.
	ErrUnknownAttribute = errors.New("unknown attribute")

	// ErrInvalidDescriptor is returned for malformed descriptors.
	ErrInvalidDescriptor = errors.New("invalid item descriptor")
)

// ConflictError describes a rejected registration.
type ConflictError struct {
	Point string
	ID    string
	Kind  string // "point", "item", "subitem"
}

// Error returns the conflict error message.
func (e *ConflictError) Error() string {
	if e.Point == "" {
		return fmt.Sprintf("%s %q already registered", e.Kind, e.ID)
	}
	return fmt.Sprintf("%s %q already registered on point %q", e.Kind, e.ID, e.Point)
}

// Unwrap makes ConflictError match ErrRegistrationConflict.
func (e *ConflictError) Unwrap() error {
	return ErrRegistrationConflict
}

// ChoiceError describes a value that is not a registered choice.
type ChoiceError struct {
	Point string
	Key   string
	Value string
}

func (e *ChoiceError) Error() string {
	return fmt.Sprintf("value %q is not a registered choice for %s on point %q", e.Value, e.Key, e.Point)
}

// Unwrap makes ChoiceError match ErrUnknownChoice.
func (e *ChoiceError) Unwrap() error {
	return ErrUnknownChoice
}
