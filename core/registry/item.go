package registry

import (
	"github.com/artpar/nodecfg/core/schema"
)

// Multiplicity controls how many instances of a slot a node may hold.
type Multiplicity string

const (
	// Inherit takes the multiplicity of the base variant (Single for roots).
	Inherit  Multiplicity = ""
	Single   Multiplicity = "single"
	Multiple Multiplicity = "multiple"
)

// CleanFunc validates the full attribute map of an instance after every
// field has been coerced. It is the hook for cross-field rules.
type CleanFunc func(values map[string]any) error

// Descriptor is the registration input for an item type.
type Descriptor struct {
	// ID is unique within the point (e.g. "core.interfaces.ethernet").
	ID string

	// Extends names a registered variant this one refines. The new variant
	// inherits the base's fields and slot and appends its own fields.
	Extends string

	// Name is a human-readable name (e.g. "Ethernet Interface").
	Name string

	// Section groups related items in listings (e.g. "Network Interface Configuration").
	Section string

	// Multiplicity of the slot. Only root variants may set it; refinements
	// must leave it empty or repeat the slot's value.
	Multiplicity Multiplicity

	// Hidden marks abstract or internal variants that are not offered
	// directly to editors.
	Hidden bool

	// Order is the generation/form order; zero inherits the base's order.
	Order int

	// Fields declared by this variant.
	Fields []schema.Field

	// LookupProxies names fields of this variant that every ancestor
	// exposes on its attribute surface.
	LookupProxies []string

	// Clean is an optional cross-field validation hook.
	Clean CleanFunc
}

// ItemType is a registered, immutable item type.
type ItemType struct {
	ID       string
	Extends  string
	Slot     string
	Name     string
	Section  string
	Multiple bool
	Hidden   bool
	Order    int

	// Fields is the full inherited field list, base fields first.
	Fields []schema.Field

	LookupProxies []string

	base    *ItemType
	parents []string
	cleans  []CleanFunc
	seq     int
}

// Parents lists the item types an instance may be nested under. A variant
// registered without its own parents uses its base's. Empty for top-level
// items.
func (t *ItemType) Parents() []string {
	for it := t; it != nil; it = it.base {
		if len(it.parents) > 0 {
			return append([]string(nil), it.parents...)
		}
	}
	return nil
}

// IsSubitem reports whether instances must be nested under a parent.
func (t *ItemType) IsSubitem() bool {
	return len(t.Parents()) > 0
}

// IsA reports whether t is the given type or one of its refinements.
func (t *ItemType) IsA(typeID string) bool {
	for it := t; it != nil; it = it.base {
		if it.ID == typeID {
			return true
		}
	}
	return false
}

// Ancestors returns the base chain of t, nearest first, excluding t.
func (t *ItemType) Ancestors() []*ItemType {
	var result []*ItemType
	for it := t.base; it != nil; it = it.base {
		result = append(result, it)
	}
	return result
}

// IsRoot reports whether the type starts its own slot.
func (t *ItemType) IsRoot() bool {
	return t.Extends == ""
}

// Field returns a field of the type (own or inherited).
func (t *ItemType) Field(name string) (schema.Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return schema.Field{}, false
}

// Multiplicity returns Single or Multiple.
func (t *ItemType) Multiplicity() Multiplicity {
	if t.Multiple {
		return Multiple
	}
	return Single
}

// Clean runs the clean hooks of the type and its bases, base first.
func (t *ItemType) Clean(values map[string]any) error {
	for _, fn := range t.cleans {
		if err := fn(values); err != nil {
			return err
		}
	}
	return nil
}

// Sequence returns the registration sequence number of the type.
func (t *ItemType) Sequence() int {
	return t.seq
}
