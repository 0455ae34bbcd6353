// Package adminmeta assembles the admin metadata document from the server's
// list descriptions and the view module registry, and keeps the current
// document available to request handlers.
package adminmeta

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pitabwire/adminmeta/internal/field"
	"github.com/pitabwire/adminmeta/internal/graphql"
	"github.com/pitabwire/adminmeta/internal/views"
	"github.com/pitabwire/adminmeta/model"
)

// ContractError reports a mismatch between the server metadata and the
// view modules this process was deployed with. It is fatal for the build.
type ContractError struct {
	List    string
	Field   string
	Message string
	Err     error
}

func (e *ContractError) Error() string {
	var b strings.Builder
	b.WriteString("adminmeta: ")
	if e.List != "" {
		b.WriteString(e.List)
		if e.Field != "" {
			b.WriteString(".")
			b.WriteString(e.Field)
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ContractError) Unwrap() error { return e.Err }

// Envelope converts e to the API error envelope.
func (e *ContractError) Envelope() *model.ErrorEnvelope {
	return model.NewContractViolationError(e.Error())
}

// Meta is the immutable admin metadata document.
type Meta struct {
	Lists    map[string]*List
	Order    []string
	Checksum string
}

// List is one content type.
type List struct {
	Key            string
	Path           string
	Label          string
	Singular       string
	Plural         string
	Description    string
	IsSingleton    bool
	PageSize       int
	LabelField     string
	InitialColumns []string
	InitialSort    *model.SortMeta
	Names          model.GraphQLNames
	HideCreate     bool
	HideDelete     bool
	HideNavigation bool

	Fields     map[string]*Field
	FieldOrder []string
	Groups     []Group
}

// Field is one field of a list bound to its views and controller.
type Field struct {
	Path             string
	Label            string
	Description      string
	ViewsIndex       int
	CustomViewsIndex *int
	FieldMeta        json.RawMessage
	IsNonNull        []string
	// Search is "default", "insensitive" or empty when the field is not
	// searchable.
	Search       string
	CreateMode   string
	ItemMode     string
	ItemPosition string
	ListMode     string
	IsFilterable bool
	IsOrderable  bool

	Views       views.Resolved
	CustomViews map[string]any
	Controller  *field.Controller
	// ResponseKeys are the top level keys GraphQLSelection produces in a
	// response; field errors are matched against them.
	ResponseKeys []string
}

// Group is an ordered set of fields rendered together.
type Group struct {
	Label       string
	Description string
	Fields      []*Field
}

// List returns the list with key.
func (m *Meta) List(key string) (*List, bool) {
	l, ok := m.Lists[key]
	return l, ok
}

// ListByPath returns the list served at the given route segment.
func (m *Meta) ListByPath(path string) (*List, bool) {
	for _, key := range m.Order {
		if l := m.Lists[key]; l.Path == path {
			return l, true
		}
	}
	return nil, false
}

// ListRef implements views.Lists.
func (m *Meta) ListRef(key string) (views.ListRef, bool) {
	l, ok := m.Lists[key]
	if !ok {
		return views.ListRef{}, false
	}
	return l.Ref(), true
}

// Ref returns the link information of l.
func (l *List) Ref() views.ListRef {
	return views.ListRef{Key: l.Key, Path: l.Path, Singular: l.Singular, Plural: l.Plural}
}

// Field returns the field at path.
func (l *List) Field(path string) (*Field, bool) {
	f, ok := l.Fields[path]
	return f, ok
}

// OrderedFields returns the fields in server order.
func (l *List) OrderedFields() []*Field {
	out := make([]*Field, 0, len(l.FieldOrder))
	for _, p := range l.FieldOrder {
		out = append(out, l.Fields[p])
	}
	return out
}

// Controllers returns the controllers keyed by field path.
func (l *List) Controllers() map[string]*field.Controller {
	out := make(map[string]*field.Controller, len(l.Fields))
	for p, f := range l.Fields {
		out[p] = f.Controller
	}
	return out
}

// Searchable returns the fields participating in free text search.
func (l *List) Searchable() []*Field {
	var out []*Field
	for _, f := range l.OrderedFields() {
		if f.Search != "" {
			out = append(out, f)
		}
	}
	return out
}

// Build assembles the metadata document. Every field's views are resolved
// against reg and its controller is constructed; the first mismatch aborts
// the build with a *ContractError.
func Build(result model.AdminMetaResult, reg *views.Registry) (*Meta, error) {
	m := &Meta{Lists: make(map[string]*List, len(result.Lists))}

	for _, lm := range result.Lists {
		if lm.Key == "" {
			return nil, &ContractError{Message: "list without key"}
		}
		if _, dup := m.Lists[lm.Key]; dup {
			return nil, &ContractError{List: lm.Key, Message: "duplicate list key"}
		}
		list := &List{
			Key:            lm.Key,
			Path:           lm.Path,
			Label:          lm.Label,
			Singular:       lm.Singular,
			Plural:         lm.Plural,
			Description:    deref(lm.Description),
			IsSingleton:    lm.IsSingleton,
			PageSize:       lm.PageSize,
			LabelField:     lm.LabelField,
			InitialColumns: lm.InitialColumns,
			InitialSort:    lm.InitialSort,
			Names:          lm.GraphQL.Names,
			HideCreate:     lm.HideCreate,
			HideDelete:     lm.HideDelete,
			HideNavigation: lm.HideNavigation,
			Fields:         make(map[string]*Field, len(lm.Fields)),
		}
		if list.PageSize <= 0 {
			list.PageSize = 50
		}
		if list.LabelField == "" {
			list.LabelField = "id"
		}

		for _, fm := range lm.Fields {
			if _, dup := list.Fields[fm.Path]; dup {
				return nil, &ContractError{List: lm.Key, Field: fm.Path, Message: "duplicate field path"}
			}
			f, err := buildField(lm.Key, fm, reg)
			if err != nil {
				return nil, err
			}
			list.Fields[fm.Path] = f
			list.FieldOrder = append(list.FieldOrder, fm.Path)
		}

		for _, gm := range lm.Groups {
			g := Group{Label: gm.Label, Description: deref(gm.Description)}
			for _, gf := range gm.Fields {
				f, ok := list.Fields[gf.Path]
				if !ok {
					return nil, &ContractError{List: lm.Key, Field: gf.Path, Message: fmt.Sprintf("group %q refers to an unknown field", gm.Label)}
				}
				g.Fields = append(g.Fields, f)
			}
			list.Groups = append(list.Groups, g)
		}

		m.Lists[lm.Key] = list
		m.Order = append(m.Order, lm.Key)
	}

	sum, err := checksum(result)
	if err != nil {
		return nil, err
	}
	m.Checksum = sum
	return m, nil
}

// checksum hashes the canonical JSON of result. Decoding into generic
// values and encoding again sorts every object's keys, so snapshots that
// differ only in key order hash the same.
func checksum(result model.AdminMetaResult) (string, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("adminmeta: checksum: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("adminmeta: checksum: %w", err)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("adminmeta: checksum: %w", err)
	}
	return fmt.Sprintf("%x", sha256.Sum256(canonical)), nil
}

func buildField(listKey string, fm model.FieldMeta, reg *views.Registry) (*Field, error) {
	fail := func(msg string, err error) error {
		return &ContractError{List: listKey, Field: fm.Path, Message: msg, Err: err}
	}

	base, ok := reg.At(fm.ViewsIndex)
	if !ok {
		return nil, fail(fmt.Sprintf("viewsIndex %d is out of range (%d view modules)", fm.ViewsIndex, reg.Len()), nil)
	}
	for _, name := range views.ExpectedExports {
		if _, ok := base.Exports[name]; !ok {
			return nil, fail(fmt.Sprintf("the view %q is missing the %s export", base.Name, name), nil)
		}
	}
	for _, name := range base.ExportNames() {
		if !views.IsExpected(name) && name != views.ExportAllowedCustom {
			return nil, fail(fmt.Sprintf("unexpected export named %s from the view %q", name, base.Name), nil)
		}
	}

	resolved := views.Module{Name: base.Name, Exports: make(map[string]any, len(base.Exports))}
	for k, v := range base.Exports {
		resolved.Exports[k] = v
	}
	customViews := map[string]any{}
	if fm.CustomViewsIndex != nil {
		custom, ok := reg.At(*fm.CustomViewsIndex)
		if !ok {
			return nil, fail(fmt.Sprintf("customViewsIndex %d is out of range (%d view modules)", *fm.CustomViewsIndex, reg.Len()), nil)
		}
		allowed := map[string]bool{}
		for _, name := range base.AllowedOnCustomViews() {
			allowed[name] = true
		}
		for _, name := range custom.ExportNames() {
			switch {
			case allowed[name]:
				customViews[name] = custom.Exports[name]
			case views.IsExpected(name):
				resolved.Exports[name] = custom.Exports[name]
			default:
				return nil, fail(fmt.Sprintf("unexpected export named %s from the custom view %q", name, custom.Name), nil)
			}
		}
		resolved.Name = custom.Name
	}
	vs, err := views.Resolve(resolved)
	if err != nil {
		return nil, fail("invalid view exports", err)
	}

	ctrl, err := vs.Controller(field.Config{
		ListKey:     listKey,
		Path:        fm.Path,
		Label:       fm.Label,
		Description: deref(fm.Description),
		FieldMeta:   fm.FieldMeta,
		CustomViews: customViews,
	})
	if err != nil {
		return nil, fail("controller construction failed", err)
	}
	keys, err := graphql.ResponseKeys(ctrl.GraphQLSelection)
	if err != nil {
		return nil, fail("invalid graphql selection", err)
	}

	f := &Field{
		Path:             fm.Path,
		Label:            fm.Label,
		Description:      deref(fm.Description),
		ViewsIndex:       fm.ViewsIndex,
		CustomViewsIndex: fm.CustomViewsIndex,
		FieldMeta:        fm.FieldMeta,
		IsNonNull:        fm.IsNonNull,
		Search:           deref(fm.Search),
		CreateMode:       orDefault(fm.CreateView.FieldMode, model.FieldModeEdit),
		ItemMode:         orDefault(fm.ItemView.FieldMode, model.FieldModeEdit),
		ItemPosition:     orDefault(fm.ItemView.FieldPosition, model.FieldPositionForm),
		ListMode:         orDefault(fm.ListView.FieldMode, model.FieldModeRead),
		IsFilterable:     fm.IsFilterable && ctrl.Filter != nil,
		IsOrderable:      fm.IsOrderable,
		Views:            vs,
		CustomViews:      customViews,
		Controller:       ctrl,
		ResponseKeys:     keys,
	}
	return f, nil
}

// NonNull reports whether the field is non-nullable in operation, one of
// "read", "create" or "update".
func (f *Field) NonNull(operation string) bool {
	for _, op := range f.IsNonNull {
		if op == operation {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
