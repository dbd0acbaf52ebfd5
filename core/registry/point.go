package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/artpar/nodecfg/core/schema"
)

// Point binds a root entity kind (a node) to the tree of item types and
// choice sets registered for it.
type Point struct {
	registry *Registry
	name     string
	rootKind string

	// items by id
	items map[string]*ItemType
	seq   int

	// choices by key
	choices map[string]*ChoiceSet
}

func newPoint(r *Registry, rootKind, name string) *Point {
	return &Point{
		registry: r,
		name:     name,
		rootKind: rootKind,
		items:    make(map[string]*ItemType),
		choices:  make(map[string]*ChoiceSet),
	}
}

// Name returns the point name (e.g. "node.config").
func (p *Point) Name() string {
	return p.name
}

// RootKind returns the entity kind the point is bound to (e.g. "node").
func (p *Point) RootKind() string {
	return p.rootKind
}

// RegisterItem registers a top-level item type or a refinement of an
// existing variant.
func (p *Point) RegisterItem(d Descriptor) (*ItemType, error) {
	p.registry.mu.Lock()
	defer p.registry.mu.Unlock()

	return p.register(d, "")
}

// RegisterSubitem registers an item type nested under parentType. The
// parent must already be registered on the point.
func (p *Point) RegisterSubitem(parentType string, d Descriptor) (*ItemType, error) {
	p.registry.mu.Lock()
	defer p.registry.mu.Unlock()

	return p.register(d, parentType)
}

// AttachSubitem allows an already registered subitem type under an
// additional parent type.
func (p *Point) AttachSubitem(parentType, typeID string) error {
	p.registry.mu.Lock()
	defer p.registry.mu.Unlock()

	t, ok := p.items[typeID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, typeID)
	}
	for _, existing := range t.parents {
		if existing == parentType {
			return &ConflictError{Point: p.name, ID: typeID + " under " + parentType, Kind: "subitem"}
		}
	}
	if p.registry.sealed.Load() {
		return fmt.Errorf("attach subitem %q: %w", typeID, ErrSealedRegistry)
	}
	if _, ok := p.items[parentType]; !ok {
		return fmt.Errorf("%w: parent %s", ErrUnknownItem, parentType)
	}
	if !t.IsSubitem() {
		return fmt.Errorf("%w: %s is not a subitem", ErrInvalidDescriptor, typeID)
	}

	t.parents = append(t.parents, parentType)
	return nil
}

// register must be called with the registry lock held.
func (p *Point) register(d Descriptor, parentType string) (*ItemType, error) {
	if d.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidDescriptor)
	}
	if _, exists := p.items[d.ID]; exists {
		kind := "item"
		if parentType != "" {
			kind = "subitem"
		}
		return nil, &ConflictError{Point: p.name, ID: d.ID, Kind: kind}
	}
	if p.registry.sealed.Load() {
		return nil, fmt.Errorf("register item %q: %w", d.ID, ErrSealedRegistry)
	}

	if parentType != "" {
		if _, ok := p.items[parentType]; !ok {
			return nil, fmt.Errorf("%w: parent %s of %s", ErrUnknownItem, parentType, d.ID)
		}
	}

	t := &ItemType{
		ID:            d.ID,
		Extends:       d.Extends,
		Slot:          d.ID,
		Name:          d.Name,
		Section:       d.Section,
		Hidden:        d.Hidden,
		Order:         d.Order,
		LookupProxies: append([]string(nil), d.LookupProxies...),
	}
	if t.Name == "" {
		t.Name = d.ID
	}
	if parentType != "" {
		t.parents = []string{parentType}
	}

	switch {
	case d.Extends == "":
		t.Multiple = d.Multiplicity == Multiple
	default:
		base, ok := p.items[d.Extends]
		if !ok {
			return nil, fmt.Errorf("%w: base %s of %s", ErrUnknownItem, d.Extends, d.ID)
		}
		if d.Multiplicity != Inherit && d.Multiplicity != base.Multiplicity() {
			return nil, fmt.Errorf("%w: %s declares %s multiplicity but slot %s is %s",
				ErrInvalidDescriptor, d.ID, d.Multiplicity, base.Slot, base.Multiplicity())
		}
		t.base = base
		t.Slot = base.Slot
		t.Multiple = base.Multiple
		if t.Section == "" {
			t.Section = base.Section
		}
		if t.Order == 0 {
			t.Order = base.Order
		}
		t.Fields = append(t.Fields, base.Fields...)
		t.cleans = append(t.cleans, base.cleans...)
	}

	for _, f := range d.Fields {
		if err := f.Check(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDescriptor, d.ID, err)
		}
		if _, dup := t.Field(f.Name); dup {
			return nil, &ConflictError{Point: p.name, ID: d.ID + "." + f.Name, Kind: "field"}
		}
		if f.IsRef() {
			if _, ok := p.items[f.To]; !ok {
				return nil, fmt.Errorf("%w: ref target %s of %s.%s", ErrUnknownItem, f.To, d.ID, f.Name)
			}
		}
		t.Fields = append(t.Fields, f)
	}
	for _, name := range d.LookupProxies {
		if _, ok := t.Field(name); !ok {
			return nil, fmt.Errorf("%w: lookup proxy %q is not a field of %s", ErrInvalidDescriptor, name, d.ID)
		}
	}
	if d.Clean != nil {
		t.cleans = append(t.cleans, d.Clean)
	}

	p.seq++
	t.seq = p.seq
	p.items[t.ID] = t
	return t, nil
}

// UnregisterItem removes an item type. Types that other registrations
// depend on (refinements, subitems, ref targets) cannot be removed.
func (p *Point) UnregisterItem(typeID string) error {
	p.registry.mu.Lock()
	defer p.registry.mu.Unlock()

	if p.registry.sealed.Load() {
		return fmt.Errorf("unregister item %q: %w", typeID, ErrSealedRegistry)
	}
	if _, ok := p.items[typeID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, typeID)
	}

	for _, other := range p.items {
		if other.Extends == typeID {
			return fmt.Errorf("%w: %s is extended by %s", ErrInvalidDescriptor, typeID, other.ID)
		}
		for _, parent := range other.parents {
			if parent == typeID {
				return fmt.Errorf("%w: %s is the parent of %s", ErrInvalidDescriptor, typeID, other.ID)
			}
		}
		for _, f := range other.Fields {
			if f.IsRef() && f.To == typeID && other.ID != typeID {
				return fmt.Errorf("%w: %s is referenced by %s.%s", ErrInvalidDescriptor, typeID, other.ID, f.Name)
			}
		}
	}

	delete(p.items, typeID)
	return nil
}

// Item returns a registered item type.
func (p *Point) Item(typeID string) (*ItemType, error) {
	defer p.registry.rlock()()

	t, ok := p.items[typeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s on point %s", ErrUnknownItem, typeID, p.name)
	}
	return t, nil
}

// Items returns all item types sorted by order, then registration sequence.
func (p *Point) Items() []*ItemType {
	defer p.registry.rlock()()

	return p.sorted(func(*ItemType) bool { return true })
}

// Slots returns the root variant of every slot.
func (p *Point) Slots() []*ItemType {
	defer p.registry.rlock()()

	return p.sorted(func(t *ItemType) bool { return t.IsRoot() })
}

// Variants returns every registered refinement of typeID, transitively,
// in registration order. The type itself is not included.
func (p *Point) Variants(typeID string) ([]*ItemType, error) {
	defer p.registry.rlock()()

	if _, ok := p.items[typeID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownItem, typeID)
	}
	return p.bySeq(func(t *ItemType) bool {
		return t.ID != typeID && t.IsA(typeID)
	}), nil
}

// Concrete returns the leaf variants of typeID: the type and its
// refinements that are not themselves refined.
func (p *Point) Concrete(typeID string) ([]*ItemType, error) {
	defer p.registry.rlock()()

	if _, ok := p.items[typeID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownItem, typeID)
	}
	extended := make(map[string]bool)
	for _, t := range p.items {
		if t.Extends != "" {
			extended[t.Extends] = true
		}
	}
	return p.bySeq(func(t *ItemType) bool {
		return t.IsA(typeID) && !extended[t.ID]
	}), nil
}

// Subitems returns the item types that may be nested directly under an
// instance of typeID (including types registered under its ancestors).
func (p *Point) Subitems(typeID string) ([]*ItemType, error) {
	defer p.registry.rlock()()

	t, ok := p.items[typeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownItem, typeID)
	}
	return p.bySeq(func(candidate *ItemType) bool {
		for _, parent := range candidate.Parents() {
			if t.IsA(parent) {
				return true
			}
		}
		return false
	}), nil
}

// Schema returns the attribute surface of typeID: its own and inherited
// fields plus the lookup proxies declared by its refinements.
func (p *Point) Schema(typeID string) (*Surface, error) {
	defer p.registry.rlock()()

	t, ok := p.items[typeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownItem, typeID)
	}

	s := newSurface(t)
	for _, f := range t.Fields {
		s.add(Attr{Field: f, Owner: t.ID})
	}
	for _, d := range p.bySeq(func(c *ItemType) bool { return c.ID != t.ID && c.IsA(t.ID) }) {
		for _, name := range d.LookupProxies {
			f, _ := d.Field(name)
			s.add(Attr{Field: f, Owner: d.ID, Proxy: true})
		}
	}
	return s, nil
}

// Normalize coerces and validates a full attribute map for an instance of
// typeID. Missing fields take their default or zero value. Ref fields are
// not part of the attribute map and are rejected.
func (p *Point) Normalize(typeID string, values map[string]any) (map[string]any, error) {
	t, err := p.Item(typeID)
	if err != nil {
		return nil, err
	}

	for name := range values {
		f, ok := t.Field(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no attribute %q", ErrUnknownAttribute, typeID, name)
		}
		if f.IsRef() {
			return nil, fmt.Errorf("%w: %s.%s is a reference", ErrUnknownAttribute, typeID, name)
		}
	}

	out := make(map[string]any, len(t.Fields))
	var result schema.ValidationResult
	for _, f := range t.Fields {
		if f.IsRef() {
			continue
		}
		v, present := values[f.Name]
		if !present && f.Default != nil {
			v = f.Default
		}
		coerced, err := p.checkValue(f, v, &result)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", typeID, err)
		}
		out[f.Name] = coerced
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", typeID, err)
	}
	if err := t.Clean(out); err != nil {
		return nil, fmt.Errorf("%s: %w", typeID, err)
	}
	return out, nil
}

// ValidateValue coerces and validates a single attribute value of typeID.
// Lookup proxies of refinements are accepted.
func (p *Point) ValidateValue(typeID, name string, v any) (any, error) {
	s, err := p.Schema(typeID)
	if err != nil {
		return nil, err
	}
	attr, ok := s.Attr(name)
	if !ok || attr.IsRef() {
		return nil, fmt.Errorf("%w: %s has no attribute %q", ErrUnknownAttribute, typeID, name)
	}

	var result schema.ValidationResult
	coerced, err := p.checkValue(attr.Field, v, &result)
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return coerced, nil
}

// checkValue coerces v and validates choices, requiredness and
// constraints. Constraint failures are collected in result; coercion and
// choice failures are returned directly.
func (p *Point) checkValue(f schema.Field, v any, result *schema.ValidationResult) (any, error) {
	coerced, err := schema.Coerce(f, v)
	if err != nil {
		return nil, err
	}
	if f.Type == schema.FieldTypeChoice {
		if s, _ := coerced.(string); s != "" {
			if err := p.ValidChoice(f.Choice, s); err != nil {
				return nil, err
			}
		}
	}
	if f.Required && f.Type != schema.FieldTypeBool && schema.IsZero(f, coerced) {
		result.Add(schema.ConstraintError{Field: f.Name, Constraint: "required", Message: "field is required"})
		return coerced, nil
	}
	for _, c := range f.Constraints {
		if cerr := schema.ValidateConstraint(f.Name, coerced, c); cerr != nil {
			result.Add(*cerr)
		}
	}
	return coerced, nil
}

// sorted must be called with the read lock held.
func (p *Point) sorted(keep func(*ItemType) bool) []*ItemType {
	result := p.bySeq(keep)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Order < result[j].Order
	})
	return result
}

// bySeq must be called with the read lock held.
func (p *Point) bySeq(keep func(*ItemType) bool) []*ItemType {
	result := make([]*ItemType, 0, len(p.items))
	for _, t := range p.items {
		if keep(t) {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].seq < result[j].seq
	})
	return result
}

// String returns a one-line summary of the point.
func (p *Point) String() string {
	defer p.registry.rlock()()

	return fmt.Sprintf("%s(%s): %d items, choices [%s]", p.name, p.rootKind, len(p.items), strings.Join(p.choiceKeys(), ", "))
}
