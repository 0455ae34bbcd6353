// Package views holds the field view modules that admin metadata binds to
// fields: each module exports a controller factory and the renderers for
// list cells, card values and form inputs.
package views

import (
	"fmt"
	"sort"

	"github.com/pitabwire/adminmeta/internal/field"
	"github.com/pitabwire/adminmeta/model"
)

// Export names of a view module.
const (
	ExportController    = "controller"
	ExportCell          = "Cell"
	ExportField         = "Field"
	ExportCardValue     = "CardValue"
	ExportAllowedCustom = "allowedExportsOnCustomViews"
)

// ExpectedExports must be present on every base module.
var ExpectedExports = []string{ExportCell, ExportField, ExportController, ExportCardValue}

// IsExpected reports whether name is one of ExpectedExports.
func IsExpected(name string) bool {
	for _, e := range ExpectedExports {
		if e == name {
			return true
		}
	}
	return false
}

// Module is a named set of exports.
type Module struct {
	Name    string
	Exports map[string]any
}

// ExportNames returns the module's export names, sorted.
func (m Module) ExportNames() []string {
	names := make([]string, 0, len(m.Exports))
	for n := range m.Exports {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AllowedOnCustomViews returns the extra exports a custom view may provide
// for fields using m as their base view.
func (m Module) AllowedOnCustomViews() []string {
	allowed, _ := m.Exports[ExportAllowedCustom].([]string)
	return allowed
}

// Resolved is the set of views bound to one field after custom views have
// been applied.
type Resolved struct {
	Name       string
	Controller field.Factory
	Cell       CellRenderer
	Field      FieldRenderer
	CardValue  CellRenderer
}

// Resolve converts the exports of m into typed renderers. Exports may be
// given as the named function types or as plain functions of the same
// signature.
func Resolve(m Module) (Resolved, error) {
	r := Resolved{Name: m.Name}
	var ok bool
	switch f := m.Exports[ExportController].(type) {
	case field.Factory:
		r.Controller, ok = f, true
	case func(field.Config) (*field.Controller, error):
		r.Controller, ok = f, true
	}
	if !ok {
		return r, exportTypeError(m, ExportController)
	}
	if r.Cell, ok = cellRenderer(m.Exports[ExportCell]); !ok {
		return r, exportTypeError(m, ExportCell)
	}
	if r.CardValue, ok = cellRenderer(m.Exports[ExportCardValue]); !ok {
		return r, exportTypeError(m, ExportCardValue)
	}
	switch f := m.Exports[ExportField].(type) {
	case FieldRenderer:
		r.Field, ok = f, true
	case func(FieldContext) FieldView:
		r.Field, ok = f, true
	default:
		ok = false
	}
	if !ok {
		return r, exportTypeError(m, ExportField)
	}
	return r, nil
}

func cellRenderer(v any) (CellRenderer, bool) {
	switch f := v.(type) {
	case CellRenderer:
		return f, true
	case func(CellContext) model.CellDescriptor:
		return f, true
	}
	return nil, false
}

func exportTypeError(m Module, name string) error {
	return fmt.Errorf("views: %s: %s export has type %T", m.Name, name, m.Exports[name])
}

// Registry is the ordered list of view modules. Server metadata refers to
// modules by their position.
type Registry struct {
	modules []Module
}

// NewRegistry returns a registry of modules in order.
func NewRegistry(modules ...Module) *Registry {
	return &Registry{modules: modules}
}

// FromNames builds a registry from module names, looking each up in custom
// first and then in the builtin modules.
func FromNames(names []string, custom map[string]Module) (*Registry, error) {
	modules := make([]Module, 0, len(names))
	for i, name := range names {
		if m, ok := custom[name]; ok {
			modules = append(modules, m)
			continue
		}
		m, ok := Builtin(name)
		if !ok {
			return nil, fmt.Errorf("views: unknown view module %q at index %d", name, i)
		}
		modules = append(modules, m)
	}
	return NewRegistry(modules...), nil
}

// At returns the module at index i.
func (r *Registry) At(i int) (Module, bool) {
	if i < 0 || i >= len(r.modules) {
		return Module{}, false
	}
	return r.modules[i], true
}

// Len returns the number of modules.
func (r *Registry) Len() int {
	return len(r.modules)
}

// Names returns the module names in index order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.modules))
	for i, m := range r.modules {
		names[i] = m.Name
	}
	return names
}
