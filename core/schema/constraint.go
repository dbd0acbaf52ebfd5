package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// Constraint defines a validation rule for a field.
type Constraint struct {
	// Type is the constraint type (min, max, min_length, max_length, pattern).
	Type ConstraintType `yaml:"type" json:"type"`

	// Value is the constraint parameter (number or regex pattern).
	Value any `yaml:"value" json:"value"`

	// Message is the custom error message (optional).
	Message string `yaml:"message,omitempty" json:"message,omitempty"`
}

// ConstraintType identifies the type of constraint.
type ConstraintType string

const (
	ConstraintMin       ConstraintType = "min"
	ConstraintMax       ConstraintType = "max"
	ConstraintMinLength ConstraintType = "min_length"
	ConstraintMaxLength ConstraintType = "max_length"
	ConstraintPattern   ConstraintType = "pattern"
)

// ConstraintError represents a validation failure.
type ConstraintError struct {
	Field      string `json:"field"`
	Constraint string `json:"constraint"`
	Value      any    `json:"value,omitempty"`
	Message    string `json:"message"`
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Min is shorthand for a minimum numeric value constraint.
func Min(n int) Constraint { return Constraint{Type: ConstraintMin, Value: n} }

// Max is shorthand for a maximum numeric value constraint.
func Max(n int) Constraint { return Constraint{Type: ConstraintMax, Value: n} }

// MaxLength is shorthand for a maximum string length constraint.
func MaxLength(n int) Constraint { return Constraint{Type: ConstraintMaxLength, Value: n} }

// Pattern is shorthand for a regex constraint.
func Pattern(expr, message string) Constraint {
	return Constraint{Type: ConstraintPattern, Value: expr, Message: message}
}

// ValidateConstraint validates a coerced value against a single constraint.
// Constraints that do not apply to the value's type pass.
func ValidateConstraint(field string, value any, c Constraint) *ConstraintError {
	switch c.Type {
	case ConstraintMin, ConstraintMax:
		limit, lok := c.Value.(int)
		n, vok := value.(int)
		if !lok || !vok {
			return nil
		}
		if c.Type == ConstraintMin && n < limit {
			return constraintFailure(field, c, value, fmt.Sprintf("must be at least %d", limit))
		}
		if c.Type == ConstraintMax && n > limit {
			return constraintFailure(field, c, value, fmt.Sprintf("must be at most %d", limit))
		}
	case ConstraintMinLength, ConstraintMaxLength:
		limit, lok := c.Value.(int)
		s, vok := value.(string)
		if !lok || !vok {
			return nil
		}
		if c.Type == ConstraintMinLength && len(s) < limit {
			return constraintFailure(field, c, len(s), fmt.Sprintf("must be at least %d characters", limit))
		}
		if c.Type == ConstraintMaxLength && len(s) > limit {
			return constraintFailure(field, c, len(s), fmt.Sprintf("must be at most %d characters", limit))
		}
	case ConstraintPattern:
		expr, lok := c.Value.(string)
		s, vok := value.(string)
		if !lok || !vok || s == "" {
			return nil
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil
		}
		if !re.MatchString(s) {
			return constraintFailure(field, c, value, "does not match required pattern")
		}
	}
	return nil
}

func constraintFailure(field string, c Constraint, value any, fallback string) *ConstraintError {
	msg := c.Message
	if msg == "" {
		msg = fallback
	}
	return &ConstraintError{Field: field, Constraint: string(c.Type), Value: value, Message: msg}
}

// ValidationResult collects every constraint failure of one write.
type ValidationResult struct {
	Errors []ConstraintError `json:"errors,omitempty"`
}

// Add records a failure.
func (r *ValidationResult) Add(e ConstraintError) {
	r.Errors = append(r.Errors, e)
}

// Valid reports whether no failures were recorded.
func (r ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Err returns the result as an error, or nil when valid.
func (r ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}
	return r
}

// Error returns a combined error message.
func (r ValidationResult) Error() string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}
