// Package buildctx is the namespaced accumulator generation modules write
// into during one compile run.
//
// A Context holds a tree of ordered namespaces and a namespace stack.
// Modules write keys into the current namespace and enter nested
// namespaces with Push/Pop (or InNamespace), so two modules writing the
// same key under different namespaces never collide.
package buildctx

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotNamespace is returned when entering a key that holds a value.
	ErrNotNamespace = errors.New("key holds a value, not a namespace")

	// ErrStackUnderflow is returned when popping the root namespace.
	ErrStackUnderflow = errors.New("cannot pop the root namespace")
)

// Namespace is an ordered mapping of keys to values or nested namespaces.
type Namespace struct {
	keys   []string
	values map[string]any
}

// NewNamespace creates an empty namespace.
func NewNamespace() *Namespace {
	return &Namespace{values: make(map[string]any)}
}

// Set stores value under key. A new key is appended, an existing key keeps
// its position.
func (n *Namespace) Set(key string, value any) {
	if _, exists := n.values[key]; !exists {
		n.keys = append(n.keys, key)
	}
	n.values[key] = value
}

// Get returns the value or nested *Namespace stored under key.
func (n *Namespace) Get(key string) (any, bool) {
	v, ok := n.values[key]
	return v, ok
}

// Namespace returns the nested namespace under key.
func (n *Namespace) Namespace(key string) (*Namespace, bool) {
	child, ok := n.values[key].(*Namespace)
	return child, ok
}

// Delete removes key.
func (n *Namespace) Delete(key string) {
	if _, ok := n.values[key]; !ok {
		return
	}
	delete(n.values, key)
	for i, k := range n.keys {
		if k == key {
			n.keys = append(n.keys[:i], n.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (n *Namespace) Keys() []string {
	return append([]string(nil), n.keys...)
}

// Len returns the number of keys.
func (n *Namespace) Len() int {
	return len(n.keys)
}

// Lookup walks a dotted path ("network.lan.ipaddr") from n.
func (n *Namespace) Lookup(path string) (any, bool) {
	cur := n
	parts := strings.Split(path, ".")
	for i, part := range parts {
		v, ok := cur.values[part]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		if cur, ok = v.(*Namespace); !ok {
			return nil, false
		}
	}
	return nil, false
}

// Merge overlays other onto n. When both sides hold a namespace under a
// key they are merged recursively; otherwise the incoming value wins.
// Incoming namespaces are copied, so n never aliases other.
func (n *Namespace) Merge(other *Namespace) {
	for _, key := range other.keys {
		incoming := other.values[key]
		if in, ok := incoming.(*Namespace); ok {
			if existing, ok := n.values[key].(*Namespace); ok {
				existing.Merge(in)
				continue
			}
			n.Set(key, in.Clone())
			continue
		}
		n.Set(key, incoming)
	}
}

// Clone returns a deep copy of the namespace tree. Leaf values are
// copied by assignment.
func (n *Namespace) Clone() *Namespace {
	c := NewNamespace()
	for _, key := range n.keys {
		v := n.values[key]
		if child, ok := v.(*Namespace); ok {
			v = child.Clone()
		}
		c.Set(key, v)
	}
	return c
}

// Map returns a plain nested map, for tests and debugging.
func (n *Namespace) Map() map[string]any {
	m := make(map[string]any, len(n.keys))
	for _, key := range n.keys {
		v := n.values[key]
		if child, ok := v.(*Namespace); ok {
			v = child.Map()
		}
		m[key] = v
	}
	return m
}

// Context is the per-compile accumulator.
type Context struct {
	root  *Namespace
	stack []*Namespace
	path  []string
}

// New creates a context positioned at its root namespace.
func New() *Context {
	root := NewNamespace()
	return &Context{root: root, stack: []*Namespace{root}}
}

// Root returns the root namespace.
func (c *Context) Root() *Namespace {
	return c.root
}

// Current returns the namespace on top of the stack.
func (c *Context) Current() *Namespace {
	return c.stack[len(c.stack)-1]
}

// Path returns the names of the entered namespaces, outermost first.
func (c *Context) Path() []string {
	return append([]string(nil), c.path...)
}

// Depth returns the number of entered namespaces.
func (c *Context) Depth() int {
	return len(c.path)
}

// Set stores a value in the current namespace.
func (c *Context) Set(key string, value any) {
	c.Current().Set(key, value)
}

// Get reads a key of the current namespace.
func (c *Context) Get(key string) (any, bool) {
	return c.Current().Get(key)
}

// Push enters the namespace name of the current namespace, creating it
// on first use.
func (c *Context) Push(name string) (*Namespace, error) {
	cur := c.Current()
	v, exists := cur.Get(name)
	var ns *Namespace
	switch {
	case !exists:
		ns = NewNamespace()
		cur.Set(name, ns)
	default:
		var ok bool
		if ns, ok = v.(*Namespace); !ok {
			return nil, fmt.Errorf("push %q at %s: %w", name, c.location(), ErrNotNamespace)
		}
	}
	c.stack = append(c.stack, ns)
	c.path = append(c.path, name)
	return ns, nil
}

// Pop leaves the current namespace.
func (c *Context) Pop() error {
	if len(c.stack) == 1 {
		return ErrStackUnderflow
	}
	c.stack = c.stack[:len(c.stack)-1]
	c.path = c.path[:len(c.path)-1]
	return nil
}

// InNamespace runs fn inside the namespace name and always pops it again,
// also when fn fails.
func (c *Context) InNamespace(name string, fn func(*Context) error) error {
	if _, err := c.Push(name); err != nil {
		return err
	}
	defer func() { _ = c.Pop() }()
	return fn(c)
}

// Merge overlays another context's root onto this one.
func (c *Context) Merge(other *Context) {
	c.root.Merge(other.root)
}

// Reset returns the stack to the root namespace. The compiler calls it
// between modules so no module inherits a sibling's namespace.
func (c *Context) Reset() {
	c.stack = c.stack[:1]
	c.path = c.path[:0]
}

func (c *Context) location() string {
	if len(c.path) == 0 {
		return "<root>"
	}
	return strings.Join(c.path, ".")
}
