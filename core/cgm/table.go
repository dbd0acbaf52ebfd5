// Package cgm generates device configuration from a node's config tree.
//
// Generation modules are registered per platform in a Table at bootstrap.
// The Compiler resolves a node's platform and router, selects and orders
// the modules that apply, runs them sequentially over a fresh build
// context and turns the result into an artifact.
package cgm

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/artpar/nodecfg/core/buildctx"
	"github.com/artpar/nodecfg/core/capability"
	"github.com/artpar/nodecfg/core/registry"
	"github.com/artpar/nodecfg/core/tree"
)

// Input is what a module sees of the node being compiled. Modules must
// treat it as read-only.
type Input struct {
	Node     string
	Platform *capability.Platform
	Router   *capability.Router
	Tree     *tree.Tree

	// Package is the enabled package instance that gates the module, or
	// nil for modules without a gate.
	Package *tree.Instance

	// Filter is the regulatory channel filter of the compile run.
	Filter capability.Filter

	Logger zerolog.Logger
}

// Func is a generation module.
type Func func(ctx context.Context, in *Input, bc *buildctx.Context) error

// Module is one registered generation step.
type Module struct {
	Name     string
	Platform string
	Router   string // empty for modules of every router
	Order    int
	Package  string // gating package item type, empty for ungated modules
	Fn       Func
	seq      int
}

// Sequence returns the registration sequence of the module.
func (m *Module) Sequence() int {
	return m.seq
}

// Option configures a module registration.
type Option func(*Module)

// WithName names the module. Unnamed modules are named after the
// registering function.
func WithName(name string) Option {
	return func(m *Module) { m.Name = name }
}

// WithPackage gates the module on an enabled package item of typeID.
func WithPackage(typeID string) Option {
	return func(m *Module) { m.Package = typeID }
}

// WithRouter restricts the module to one router of the platform.
func WithRouter(routerID string) Option {
	return func(m *Module) { m.Router = routerID }
}

// Table is the registry of generation modules.
type Table struct {
	mu      sync.RWMutex
	sealed  atomic.Bool
	modules []*Module
	seq     int
}

// NewTable creates an empty module table.
func NewTable() *Table {
	return &Table{}
}

// Register adds a module for platform. Module names are unique per
// platform.
func (t *Table) Register(platform string, order int, fn Func, opts ...Option) error {
	if platform == "" || fn == nil {
		return fmt.Errorf("%w: module requires a platform and a function", registry.ErrInvalidDescriptor)
	}
	m := &Module{Platform: platform, Order: order, Fn: fn}
	for _, opt := range opts {
		opt(m)
	}
	if m.Name == "" {
		m.Name = funcName(fn)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, existing := range t.modules {
		if existing.Platform == platform && existing.Name == m.Name {
			return &registry.ConflictError{Point: platform, ID: m.Name, Kind: "module"}
		}
	}
	if t.sealed.Load() {
		return fmt.Errorf("register module %q: %w", m.Name, registry.ErrSealedRegistry)
	}

	t.seq++
	m.seq = t.seq
	t.modules = append(t.modules, m)
	return nil
}

// Seal makes the table read-only.
func (t *Table) Seal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sealed.Store(true)
}

// Modules returns the modules of a platform sorted by order, ties broken
// by registration sequence.
func (t *Table) Modules(platform string) []*Module {
	if !t.sealed.Load() {
		t.mu.RLock()
		defer t.mu.RUnlock()
	}

	var result []*Module
	for _, m := range t.modules {
		if m.Platform == platform {
			result = append(result, m)
		}
	}
	sortModules(result)
	return result
}

// Select returns the modules to run for a node: modules of the platform
// that are not scoped to another router and whose package gate (if any)
// is satisfied by the tree. The gate instances are returned by module
// name.
func (t *Table) Select(platform, router string, tr *tree.Tree) ([]*Module, map[string]*tree.Instance) {
	gates := make(map[string]*tree.Instance)
	var result []*Module
	for _, m := range t.Modules(platform) {
		if m.Router != "" && m.Router != router {
			continue
		}
		if m.Package != "" {
			pkg := EnabledPackage(tr, m.Package)
			if pkg == nil {
				continue
			}
			gates[m.Name] = pkg
		}
		result = append(result, m)
	}
	return result, gates
}

// EnabledPackage returns the first instance of typeID whose "enabled"
// attribute is true, or nil.
func EnabledPackage(tr *tree.Tree, typeID string) *tree.Instance {
	for _, inst := range tr.OfType(typeID) {
		if inst.GetBool("enabled") {
			return inst
		}
	}
	return nil
}

func sortModules(ms []*Module) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].Order != ms[j].Order {
			return ms[i].Order < ms[j].Order
		}
		return ms[i].seq < ms[j].seq
	})
}

func funcName(fn Func) string {
	if f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()); f != nil {
		return f.Name()
	}
	return "anonymous"
}
