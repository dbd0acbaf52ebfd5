package schema_test

import (
	"testing"

	"github.com/artpar/nodecfg/core/schema"
)

func TestValidateConstraint(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		c      schema.Constraint
		failed bool
	}{
		{"min ok", 1, schema.Min(1), false},
		{"min fail", 0, schema.Min(1), true},
		{"max ok", 49151, schema.Max(49151), false},
		{"max fail", 65000, schema.Max(49151), true},
		{"max length ok", "abc", schema.MaxLength(3), false},
		{"max length fail", "abcd", schema.MaxLength(3), true},
		{"min length fail", "a", schema.Constraint{Type: schema.ConstraintMinLength, Value: 2}, true},
		{"pattern ok", "node-1", schema.Pattern(`^[a-z0-9-]+$`, ""), false},
		{"pattern fail", "Node 1", schema.Pattern(`^[a-z0-9-]+$`, "invalid hostname"), true},
		{"pattern skips empty", "", schema.Pattern(`^[a-z]+$`, ""), false},
		{"type mismatch passes", "x", schema.Min(3), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := schema.ValidateConstraint("f", tt.value, tt.c)
			if (got != nil) != tt.failed {
				t.Errorf("ValidateConstraint() = %v, want failure %v", got, tt.failed)
			}
		})
	}
}

func TestValidateConstraint_CustomMessage(t *testing.T) {
	got := schema.ValidateConstraint("hostname", "A B", schema.Pattern(`^\S+$`, "no spaces allowed"))
	if got == nil {
		t.Fatal("ValidateConstraint() = nil, want failure")
	}
	if got.Error() != "hostname: no spaces allowed" {
		t.Errorf("Error() = %q", got.Error())
	}
}

func TestValidationResult(t *testing.T) {
	var r schema.ValidationResult
	if r.Err() != nil {
		t.Fatal("empty result should be valid")
	}
	r.Add(schema.ConstraintError{Field: "a", Message: "bad"})
	r.Add(schema.ConstraintError{Field: "b", Message: "worse"})
	if r.Valid() {
		t.Fatal("Valid() = true after Add")
	}
	if got := r.Error(); got != "a: bad; b: worse" {
		t.Errorf("Error() = %q", got)
	}
}
