package tree

import (
	"fmt"
	"sort"

	"github.com/artpar/nodecfg/core/registry"
)

// Validate checks a candidate instance against the registry and the rest
// of the tree without storing it.
func (t *Tree) Validate(inst *Instance) error {
	_, _, err := t.prepare(inst)
	return err
}

// prepare returns a normalized copy of inst with its slot set.
func (t *Tree) prepare(inst *Instance) (*Instance, *registry.ItemType, error) {
	if inst == nil || inst.ID == "" {
		return nil, nil, fmt.Errorf("%w: instance id is required", ErrInvalidInstance)
	}
	typ, err := t.point.Item(inst.Type)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidInstance, err)
	}

	c := inst.clone()
	c.slot = typ.Slot
	ref := c.Ref()

	if prior, ok := t.arena[ref]; ok && prior.Parent != nil && !sameParent(prior.Parent, c.Parent) {
		return nil, nil, fmt.Errorf("%w: %s cannot move from %s", ErrInvalidParent, ref, prior.Parent)
	}

	values, err := t.point.Normalize(c.Type, c.Values)
	if err != nil {
		return nil, nil, err
	}
	c.Values = values

	if err := t.checkParent(c, typ); err != nil {
		return nil, nil, err
	}
	if err := t.checkRefs(c, typ); err != nil {
		return nil, nil, err
	}
	if prior, ok := t.arena[ref]; ok && prior.Type != c.Type {
		if err := t.checkRetype(ref, typ); err != nil {
			return nil, nil, err
		}
	}
	return c, typ, nil
}

func (t *Tree) checkParent(c *Instance, typ *registry.ItemType) error {
	allowed := typ.Parents()
	if len(allowed) == 0 {
		if c.Parent != nil {
			return fmt.Errorf("%w: %s is a top-level item", ErrInvalidParent, c.Type)
		}
		return nil
	}
	if c.Parent == nil {
		return fmt.Errorf("%w: %s must be nested under one of %v", ErrInvalidParent, c.Type, allowed)
	}

	parent, ok := t.arena[*c.Parent]
	if !ok {
		return &ReferenceError{From: c.Ref(), Attr: "parent", To: *c.Parent}
	}
	parentType, err := t.point.Item(parent.Type)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParent, err)
	}
	if !nestable(typ, parentType) {
		return fmt.Errorf("%w: %s cannot be nested under %s", ErrInvalidParent, c.Type, parent.Type)
	}
	return nil
}

// nestable reports whether instances of typ may sit under parentType.
func nestable(typ, parentType *registry.ItemType) bool {
	for _, p := range typ.Parents() {
		if parentType.IsA(p) {
			return true
		}
	}
	return false
}

// checkRetype verifies that the instances nested under ref and the ref
// attributes targeting it still accept it once it is stored as typ.
func (t *Tree) checkRetype(ref Ref, typ *registry.ItemType) error {
	for _, inst := range t.ordered() {
		instType, err := t.point.Item(inst.Type)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInstance, err)
		}
		if inst.Parent != nil && *inst.Parent == ref && !nestable(instType, typ) {
			return fmt.Errorf("%w: %s/%s of type %s cannot be nested under %s", ErrInvalidParent, inst.slot, inst.ID, inst.Type, typ.ID)
		}
		for _, name := range refNames(inst) {
			if inst.Refs[name] != ref {
				continue
			}
			if f, ok := instType.Field(name); ok && !typ.IsA(f.To) {
				return fmt.Errorf("%w: %s/%s.%s must reference %s, %s would be %s", ErrTypeMismatch, inst.slot, inst.ID, name, f.To, ref, typ.ID)
			}
		}
	}
	return nil
}

func refNames(inst *Instance) []string {
	names := make([]string, 0, len(inst.Refs))
	for name := range inst.Refs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *Tree) checkRefs(c *Instance, typ *registry.ItemType) error {
	names := refNames(c)
	for _, name := range names {
		f, ok := typ.Field(name)
		if !ok || !f.IsRef() {
			return fmt.Errorf("%w: %s has no reference %q", registry.ErrUnknownAttribute, c.Type, name)
		}
		if err := t.checkTarget(c, name, f.To, c.Refs[name]); err != nil {
			return err
		}
	}
	for _, f := range typ.Fields {
		if !f.IsRef() || !f.Required {
			continue
		}
		if r, ok := c.Refs[f.Name]; !ok || r.IsZero() {
			return fmt.Errorf("%w: %s.%s is required", ErrUnresolvedReference, c.Type, f.Name)
		}
	}
	return nil
}

func (t *Tree) checkTarget(c *Instance, name, to string, target Ref) error {
	inst, ok := t.arena[target]
	if !ok {
		return &ReferenceError{From: c.Ref(), Attr: name, To: target}
	}
	targetType, err := t.point.Item(inst.Type)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	if !targetType.IsA(to) {
		return fmt.Errorf("%w: %s.%s must reference %s, got %s", ErrTypeMismatch, c.Type, name, to, inst.Type)
	}
	return nil
}
