// Package formatter provides a pluggable output formatting system.
// Formatters convert records to various output formats (table, json, yaml).
package formatter

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/artpar/nodecfg/core/schema"
)

// View describes the records being formatted: their kind and columns.
type View struct {
	// Name is the record kind (e.g. "nodes", "core.general").
	Name string

	// Fields are the columns in display order. Internal fields are never
	// printed.
	Fields []schema.Field
}

// ViewOf builds a view of plain string columns.
func ViewOf(name string, columns ...string) View {
	v := View{Name: name}
	for _, c := range columns {
		v.Fields = append(v.Fields, schema.Field{Name: c, Type: schema.FieldTypeString})
	}
	return v
}

// Formatter converts records to a specific output format.
type Formatter interface {
	// Name returns the formatter name (e.g., "table", "json", "yaml").
	Name() string

	// Description returns a human-readable description.
	Description() string

	// FormatList formats a list of records.
	FormatList(w io.Writer, view View, records []map[string]any, opts FormatOptions) error

	// FormatRecord formats a single record.
	FormatRecord(w io.Writer, view View, record map[string]any, opts FormatOptions) error

	// FormatError formats an error.
	FormatError(w io.Writer, err error) error
}

// FormatOptions configures formatting behavior.
type FormatOptions struct {
	// Columns specifies which fields to include (nil = all non-internal).
	Columns []string

	// NoHeader disables header row for tabular formats.
	NoHeader bool

	// Compact minimizes whitespace (for json).
	Compact bool

	// MaxWidth truncates long values (0 = no limit).
	MaxWidth int
}

// Registry manages registered formatters.
type Registry struct {
	mu         sync.RWMutex
	formatters map[string]Formatter
	defaultFmt string
}

// NewRegistry creates a registry holding the table, json and yaml
// formatters, with table as default.
func NewRegistry() *Registry {
	r := &Registry{
		formatters: make(map[string]Formatter),
		defaultFmt: "table",
	}
	for _, f := range []Formatter{NewTableFormatter(), NewJSONFormatter(), NewYAMLFormatter()} {
		r.formatters[f.Name()] = f
	}
	return r
}

// Register adds a formatter to the registry.
func (r *Registry) Register(f Formatter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.formatters[f.Name()]; exists {
		return fmt.Errorf("formatter %q already registered", f.Name())
	}

	r.formatters[f.Name()] = f
	return nil
}

// Get returns a formatter by name.
func (r *Registry) Get(name string) (Formatter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.formatters[name]
	return f, ok
}

// Lookup returns the named formatter, or the default one for "".
func (r *Registry) Lookup(name string) (Formatter, error) {
	if name == "" {
		return r.Default(), nil
	}
	f, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown output format %q (available: %v)", name, r.List())
	}
	return f, nil
}

// Default returns the default formatter.
func (r *Registry) Default() Formatter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.formatters[r.defaultFmt]
}

// SetDefault sets the default formatter.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.formatters[name]; !exists {
		return fmt.Errorf("formatter %q not registered", name)
	}

	r.defaultFmt = name
	return nil
}

// List returns all registered formatter names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.formatters))
	for name := range r.formatters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// columns returns the names to print: the requested ones or every
// non-internal field of the view.
func columns(view View, requested []string) []string {
	if len(requested) > 0 {
		return requested
	}
	var cols []string
	for _, f := range view.Fields {
		if !f.IsInternal() {
			cols = append(cols, f.Name)
		}
	}
	return cols
}

func project(view View, record map[string]any, requested []string) map[string]any {
	if record == nil {
		return nil
	}
	result := make(map[string]any)
	for _, col := range columns(view, requested) {
		if val, ok := record[col]; ok {
			result[col] = val
		}
	}
	return result
}

func projectAll(view View, records []map[string]any, requested []string) []map[string]any {
	result := make([]map[string]any, len(records))
	for i, record := range records {
		result[i] = project(view, record, requested)
	}
	return result
}
