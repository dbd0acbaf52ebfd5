// Package registry manages registry points, their item types and choice sets.
//
// Registration happens once, at bootstrap, through explicit calls that
// return errors for duplicates. Once Seal is called the registry is
// read-only and may be shared by any number of goroutines: reads of a
// sealed registry take no locks.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Registry holds every registry point of the process.
type Registry struct {
	mu     sync.RWMutex
	sealed atomic.Bool

	// points by name, in registration order
	points map[string]*Point
	order  []string
}

// New creates an empty, unsealed registry.
func New() *Registry {
	return &Registry{
		points: make(map[string]*Point),
	}
}

// RegisterPoint creates a registry point binding rootKind to name
// (e.g. "node" and "node.config").
func (r *Registry) RegisterPoint(rootKind, name string) (*Point, error) {
	if rootKind == "" || name == "" {
		return nil, fmt.Errorf("%w: point requires a root kind and a name", ErrInvalidDescriptor)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.points[name]; exists {
		return nil, &ConflictError{ID: name, Kind: "point"}
	}
	if r.sealed.Load() {
		return nil, fmt.Errorf("register point %q: %w", name, ErrSealedRegistry)
	}

	p := newPoint(r, rootKind, name)
	r.points[name] = p
	r.order = append(r.order, name)
	return p, nil
}

// Point returns a registered point by name.
func (r *Registry) Point(name string) (*Point, error) {
	defer r.rlock()()

	p, ok := r.points[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPoint, name)
	}
	return p, nil
}

// Points returns all points in registration order.
func (r *Registry) Points() []*Point {
	defer r.rlock()()

	result := make([]*Point, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.points[name])
	}
	return result
}

// PointNames returns the sorted names of all points.
func (r *Registry) PointNames() []string {
	defer r.rlock()()

	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// Seal marks bootstrap as complete. Every later mutation fails with
// ErrSealedRegistry.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed.Store(true)
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

// rlock takes the read lock while the registry is still mutable and
// returns the matching unlock. Sealed registries are never written again,
// so readers skip the lock entirely.
func (r *Registry) rlock() func() {
	if r.sealed.Load() {
		return func() {}
	}
	r.mu.RLock()
	return r.mu.RUnlock
}
