package tree

import (
	"fmt"

	"github.com/artpar/nodecfg/core/registry"
)

// View exposes one instance through the attribute surface of a type the
// instance is (or refines). Lookup proxies declared by refinements are
// readable and settable through the view and share the instance's storage.
type View struct {
	tree    *Tree
	ref     Ref
	surface *registry.Surface
}

// View returns a view of the instance at ref through asType. An empty
// asType uses the instance's own variant.
func (t *Tree) View(ref Ref, asType string) (*View, error) {
	inst, err := t.Resolve(ref)
	if err != nil {
		return nil, err
	}
	if asType == "" {
		asType = inst.Type
	}
	typ, err := t.point.Item(inst.Type)
	if err != nil {
		return nil, err
	}
	if !typ.IsA(asType) {
		return nil, fmt.Errorf("%w: %s is not a %s", ErrTypeMismatch, inst.Type, asType)
	}
	surface, err := t.point.Schema(asType)
	if err != nil {
		return nil, err
	}
	return &View{tree: t, ref: ref, surface: surface}, nil
}

// Type returns the type the view exposes.
func (v *View) Type() string {
	return v.surface.Type.ID
}

// Instance returns the viewed instance.
func (v *View) Instance() (*Instance, error) {
	return v.tree.Resolve(v.ref)
}

// attr resolves name on the surface and checks the instance backs it.
func (v *View) attr(name string) (registry.Attr, *Instance, error) {
	inst, err := v.tree.Resolve(v.ref)
	if err != nil {
		return registry.Attr{}, nil, err
	}
	a, ok := v.surface.Attr(name)
	if !ok {
		return registry.Attr{}, nil, fmt.Errorf("%w: %s has no attribute %q", registry.ErrUnknownAttribute, v.Type(), name)
	}
	if a.Proxy {
		typ, err := v.tree.point.Item(inst.Type)
		if err != nil {
			return registry.Attr{}, nil, err
		}
		if !typ.IsA(a.Owner) {
			return registry.Attr{}, nil, fmt.Errorf("%w: %q is only available on %s, instance is %s",
				registry.ErrUnknownAttribute, name, a.Owner, inst.Type)
		}
	}
	return a, inst, nil
}

// Get reads an attribute. Ref attributes are returned as Ref values.
func (v *View) Get(name string) (any, error) {
	a, inst, err := v.attr(name)
	if err != nil {
		return nil, err
	}
	if a.IsRef() {
		r, ok := inst.Refs[name]
		if !ok {
			return nil, nil
		}
		return r, nil
	}
	return inst.Values[name], nil
}

// Set writes an attribute and re-validates the whole instance. Ref
// attributes take a Ref value.
func (v *View) Set(name string, value any) error {
	a, inst, err := v.attr(name)
	if err != nil {
		return err
	}

	next := inst.clone()
	if a.IsRef() {
		r, ok := value.(Ref)
		if !ok {
			return fmt.Errorf("%w: %s.%s takes a tree.Ref, got %T", ErrTypeMismatch, v.Type(), name, value)
		}
		if next.Refs == nil {
			next.Refs = make(map[string]Ref)
		}
		next.Refs[name] = r
	} else {
		if next.Values == nil {
			next.Values = make(map[string]any)
		}
		next.Values[name] = value
	}

	_, _, err = v.tree.Put(next)
	return err
}
