// Package tree holds the per-node config tree: an arena of instances keyed
// by (slot, instance id). Links between instances are stored as Ref index
// pairs and resolved by arena lookup, so a tree can be copied, encoded and
// rebuilt without dangling pointers.
package tree

import (
	"fmt"
	"maps"
	"sort"

	"github.com/artpar/nodecfg/core/registry"
)

// Ref addresses an instance within one tree.
type Ref struct {
	Type string `json:"type" yaml:"type" cbor:"type"` // slot id
	ID   string `json:"id" yaml:"id" cbor:"id"`
}

// IsZero reports whether the ref is empty.
func (r Ref) IsZero() bool {
	return r.Type == "" && r.ID == ""
}

func (r Ref) String() string {
	return r.Type + "/" + r.ID
}

// Instance is one stored config item of a node.
type Instance struct {
	// Type is the variant id (e.g. "core.interfaces.ethernet").
	Type string `json:"type" yaml:"type" cbor:"type"`

	ID string `json:"id" yaml:"id" cbor:"id"`

	// Parent links a subitem to the instance it is nested under.
	Parent *Ref `json:"parent,omitempty" yaml:"parent,omitempty" cbor:"parent,omitempty"`

	// Values holds the plain attribute values.
	Values map[string]any `json:"values,omitempty" yaml:"values,omitempty" cbor:"values,omitempty"`

	// Refs holds the ref-typed attributes.
	Refs map[string]Ref `json:"refs,omitempty" yaml:"refs,omitempty" cbor:"refs,omitempty"`

	slot string
	seq  int
}

// Slot returns the slot id of a stored instance.
func (i *Instance) Slot() string {
	return i.slot
}

// Ref returns the address of a stored instance.
func (i *Instance) Ref() Ref {
	return Ref{Type: i.slot, ID: i.ID}
}

// Value returns a plain attribute value.
func (i *Instance) Value(name string) any {
	return i.Values[name]
}

// GetString returns the string value of an attribute, or "".
func (i *Instance) GetString(name string) string {
	s, _ := i.Values[name].(string)
	return s
}

// GetBool returns the bool value of an attribute, or false.
func (i *Instance) GetBool(name string) bool {
	b, _ := i.Values[name].(bool)
	return b
}

// GetInt returns the int value of an attribute, or 0.
func (i *Instance) GetInt(name string) int {
	n, _ := i.Values[name].(int)
	return n
}

func (i *Instance) clone() *Instance {
	c := *i
	c.Values = maps.Clone(i.Values)
	c.Refs = maps.Clone(i.Refs)
	if i.Parent != nil {
		p := *i.Parent
		c.Parent = &p
	}
	return &c
}

// Changes lists the mutations applied to a tree since it was built or
// since the last ResetChanges.
type Changes struct {
	Put     []*Instance
	Deleted []Ref
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c.Put) == 0 && len(c.Deleted) == 0
}

// Tree is the config tree of one node. It is not safe for concurrent
// mutation; a tree used for compilation is a private snapshot.
type Tree struct {
	Node  string
	point *registry.Point
	arena map[Ref]*Instance
	seq   int

	put     map[Ref]bool
	deleted []Ref
}

// New creates an empty tree for node bound to a registry point.
func New(point *registry.Point, node string) *Tree {
	return &Tree{
		Node:  node,
		point: point,
		arena: make(map[Ref]*Instance),
		put:   make(map[Ref]bool),
	}
}

// Build creates a tree from stored instances. Values are normalized
// against the registry and every parent and ref link must resolve to an
// instance of an allowed type.
func Build(point *registry.Point, node string, instances []*Instance) (*Tree, error) {
	t := New(point, node)
	for _, inst := range instances {
		typ, err := point.Item(inst.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: %s/%s: %v", ErrInvalidInstance, inst.Type, inst.ID, err)
		}
		if inst.ID == "" {
			return nil, fmt.Errorf("%w: %s instance without id", ErrInvalidInstance, inst.Type)
		}
		values, err := point.Normalize(inst.Type, inst.Values)
		if err != nil {
			return nil, fmt.Errorf("instance %s/%s: %w", typ.Slot, inst.ID, err)
		}
		c := inst.clone()
		c.Values = values
		c.slot = typ.Slot
		ref := c.Ref()
		if _, dup := t.arena[ref]; dup {
			return nil, fmt.Errorf("%w: duplicate instance %s", ErrInvalidInstance, ref)
		}
		t.seq++
		c.seq = t.seq
		t.arena[ref] = c
	}
	if err := t.Check(); err != nil {
		return nil, err
	}
	return t, nil
}

// Point returns the registry point the tree is bound to.
func (t *Tree) Point() *registry.Point {
	return t.point
}

// Len returns the number of instances.
func (t *Tree) Len() int {
	return len(t.arena)
}

// Resolve looks up an instance. A miss yields a *ReferenceError matching
// ErrUnresolvedReference. The returned instance must not be modified.
func (t *Tree) Resolve(ref Ref) (*Instance, error) {
	inst, ok := t.arena[ref]
	if !ok {
		return nil, &ReferenceError{To: ref}
	}
	return inst, nil
}

// Single returns the top-level instance of a single-multiplicity slot.
func (t *Tree) Single(slot string) (*Instance, bool) {
	for _, inst := range t.ordered() {
		if inst.slot == slot && inst.Parent == nil {
			return inst, true
		}
	}
	return nil, false
}

// Instances returns the instances of a slot in insertion order.
func (t *Tree) Instances(slot string) []*Instance {
	return t.filter(func(i *Instance) bool { return i.slot == slot })
}

// OfType returns the instances whose variant is typeID or refines it.
func (t *Tree) OfType(typeID string) []*Instance {
	return t.filter(func(i *Instance) bool {
		typ, err := t.point.Item(i.Type)
		return err == nil && typ.IsA(typeID)
	})
}

// Children returns the instances nested directly under parent.
func (t *Tree) Children(parent Ref) []*Instance {
	return t.filter(func(i *Instance) bool { return i.Parent != nil && *i.Parent == parent })
}

// All returns every instance ordered by item order, then insertion.
func (t *Tree) All() []*Instance {
	result := t.ordered()
	sort.SliceStable(result, func(a, b int) bool {
		return t.order(result[a]) < t.order(result[b])
	})
	return result
}

func (t *Tree) order(i *Instance) int {
	typ, err := t.point.Item(i.Type)
	if err != nil {
		return 0
	}
	return typ.Order
}

func (t *Tree) filter(keep func(*Instance) bool) []*Instance {
	var result []*Instance
	for _, inst := range t.ordered() {
		if keep(inst) {
			result = append(result, inst)
		}
	}
	return result
}

func (t *Tree) ordered() []*Instance {
	result := make([]*Instance, 0, len(t.arena))
	for _, inst := range t.arena {
		result = append(result, inst)
	}
	sort.Slice(result, func(a, b int) bool { return result[a].seq < result[b].seq })
	return result
}

// Put validates and stores inst. Storing an instance of a single slot
// removes the prior instance of that slot (under the same parent) and
// everything depending on it in the same operation. Put returns the
// stored copy and the refs it removed.
func (t *Tree) Put(inst *Instance) (*Instance, []Ref, error) {
	c, typ, err := t.prepare(inst)
	if err != nil {
		return nil, nil, err
	}
	ref := c.Ref()

	var removed []Ref
	if !typ.Multiple {
		for _, other := range t.arena {
			if other.slot != c.slot || other.ID == c.ID || !sameParent(other.Parent, c.Parent) {
				continue
			}
			removed = append(removed, t.closure(other.Ref())...)
		}
	}
	for _, r := range removed {
		if c.Parent != nil && *c.Parent == r {
			return nil, nil, &ReferenceError{From: ref, Attr: "parent", To: r}
		}
		for name, target := range c.Refs {
			if target == r {
				return nil, nil, &ReferenceError{From: ref, Attr: name, To: r}
			}
		}
	}

	for _, r := range removed {
		t.remove(r)
	}
	if prior, ok := t.arena[ref]; ok {
		c.seq = prior.seq
	} else {
		t.seq++
		c.seq = t.seq
	}
	t.arena[ref] = c
	t.put[ref] = true
	return c, removed, nil
}

func sameParent(a, b *Ref) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Delete removes the instance and, transitively, every instance whose
// parent or ref attribute targets a removed instance. The removed refs
// are returned, the requested instance first.
func (t *Tree) Delete(ref Ref) ([]Ref, error) {
	if _, ok := t.arena[ref]; !ok {
		return nil, &ReferenceError{To: ref}
	}
	removed := t.closure(ref)
	for _, r := range removed {
		t.remove(r)
	}
	return removed, nil
}

// Dependents returns the refs Delete(ref) would remove, excluding ref.
func (t *Tree) Dependents(ref Ref) []Ref {
	if _, ok := t.arena[ref]; !ok {
		return nil
	}
	return t.closure(ref)[1:]
}

// closure walks dependents breadth-first.
func (t *Tree) closure(root Ref) []Ref {
	seen := map[Ref]bool{root: true}
	queue := []Ref{root}
	for i := 0; i < len(queue); i++ {
		cur := queue[i]
		for _, inst := range t.ordered() {
			r := inst.Ref()
			if seen[r] || !dependsOn(inst, cur) {
				continue
			}
			seen[r] = true
			queue = append(queue, r)
		}
	}
	return queue
}

func dependsOn(inst *Instance, target Ref) bool {
	if inst.Parent != nil && *inst.Parent == target {
		return true
	}
	for _, r := range inst.Refs {
		if r == target {
			return true
		}
	}
	return false
}

func (t *Tree) remove(ref Ref) {
	delete(t.arena, ref)
	if t.put[ref] {
		delete(t.put, ref)
	}
	t.deleted = append(t.deleted, ref)
}

// Changes returns the mutations since Build or the last ResetChanges.
// Deleted refs that were stored again afterwards are only listed in Put.
func (t *Tree) Changes() Changes {
	var c Changes
	for _, r := range t.deleted {
		if _, back := t.arena[r]; !back {
			c.Deleted = append(c.Deleted, r)
		}
	}
	for _, inst := range t.ordered() {
		if t.put[inst.Ref()] {
			c.Put = append(c.Put, inst)
		}
	}
	return c
}

// ResetChanges clears the change log.
func (t *Tree) ResetChanges() {
	t.put = make(map[Ref]bool)
	t.deleted = nil
}

// Clone returns a deep copy with an empty change log.
func (t *Tree) Clone() *Tree {
	c := New(t.point, t.Node)
	c.seq = t.seq
	for ref, inst := range t.arena {
		c.arena[ref] = inst.clone()
	}
	return c
}

// Check verifies that every parent and ref link resolves to an instance
// of a type the link allows.
func (t *Tree) Check() error {
	for _, inst := range t.ordered() {
		typ, err := t.point.Item(inst.Type)
		if err != nil {
			return fmt.Errorf("%w: %s/%s: %v", ErrInvalidInstance, inst.slot, inst.ID, err)
		}
		if err := t.checkParent(inst, typ); err != nil {
			return fmt.Errorf("instance %s: %w", inst.Ref(), err)
		}
		if err := t.checkRefs(inst, typ); err != nil {
			return fmt.Errorf("instance %s: %w", inst.Ref(), err)
		}
	}
	return nil
}
