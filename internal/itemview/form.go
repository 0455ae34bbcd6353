// Package itemview implements the create and edit forms of single items.
// Forms are kept server side between requests so that the browser only
// sends field inputs and receives rendered form descriptors.
package itemview

import (
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/pitabwire/adminmeta/internal/adminmeta"
	"github.com/pitabwire/adminmeta/internal/field"
	"github.com/pitabwire/adminmeta/internal/views"
	"github.com/pitabwire/adminmeta/model"
)

// Form is the state of one open create or edit form.
type Form struct {
	ID       string
	Owner    string
	ListKey  string
	Kind     string
	ItemID   string
	Checksum string

	// Generation increases with every committed change. Operations that
	// started from an older generation are dropped when they finish.
	Generation uint64

	// Item is the last item read from the API. Empty for create forms.
	Item field.Item
	// Initial holds the values the form was opened or last saved with.
	Initial field.Values
	Values  field.Values

	Modes       map[string]string
	Positions   map[string]string
	AllowDelete bool

	// ShowValidation is set once a save was refused by validation, so
	// that field level problems are shown from then on.
	ShowValidation bool
	Errors         []string
	Message        string
}

func (f *Form) clone() *Form {
	c := *f
	c.Item = maps.Clone(f.Item)
	c.Initial = maps.Clone(f.Initial)
	c.Values = maps.Clone(f.Values)
	c.Modes = maps.Clone(f.Modes)
	c.Positions = maps.Clone(f.Positions)
	c.Errors = append([]string(nil), f.Errors...)
	return &c
}

// Visible returns the paths of the fields shown by the form in list order.
func (f *Form) Visible(list *adminmeta.List) []string {
	var out []string
	for _, p := range list.FieldOrder {
		if m, ok := f.Modes[p]; ok && m != model.FieldModeHidden {
			out = append(out, p)
		}
	}
	return out
}

// ChangedFields returns the paths whose serialized value differs from the
// value the form was opened with. Unreadable fields never count.
func (f *Form) ChangedFields(list *adminmeta.List) []string {
	ctrls := list.Controllers()
	paths := f.Visible(list)
	changed := field.Changed(
		field.Serialized(ctrls, f.Initial, paths),
		field.Serialized(ctrls, f.Values, paths),
	)
	if changed == nil {
		return []string{}
	}
	return changed
}

// HasUnsavedChanges reports whether leaving the form would lose edits.
func (f *Form) HasUnsavedChanges(list *adminmeta.List) bool {
	return len(f.ChangedFields(list)) > 0
}

// Invalid returns the visible readable fields whose value does not
// validate, keyed by path with the validation message.
func (f *Form) Invalid(list *adminmeta.List) map[string]string {
	out := map[string]string{}
	for _, p := range f.Visible(list) {
		st, ok := f.Values[p]
		if !ok || !st.Readable() {
			continue
		}
		if msg := list.Fields[p].Controller.Message(st.Value); msg != "" {
			out[p] = msg
		}
	}
	return out
}

// UpdateData is the update input of the changed fields.
func (f *Form) UpdateData(list *adminmeta.List) map[string]any {
	ctrls := list.Controllers()
	changed := f.ChangedFields(list)
	return field.Merge(field.Serialized(ctrls, f.Values, changed), changed)
}

// CreateData is the create input of the editable fields whose value moved
// away from the field default. Untouched defaults are left out so that
// server computed defaults such as autoincrement or now still apply.
func (f *Form) CreateData(list *adminmeta.List) map[string]any {
	var paths []string
	for _, p := range f.Visible(list) {
		if f.Modes[p] == model.FieldModeEdit {
			paths = append(paths, p)
		}
	}
	serialized := field.Serialized(list.Controllers(), f.Values, paths)
	for p, fragment := range serialized {
		ctrl := list.Fields[p].Controller
		if reflect.DeepEqual(fragment, ctrl.Serialize(ctrl.DefaultValue())) {
			delete(serialized, p)
		}
	}
	return field.Merge(serialized, paths)
}

// Title is the heading of the form.
func (f *Form) Title(list *adminmeta.List) string {
	if f.Kind == model.FormCreate {
		return "Create " + list.Singular
	}
	if list.IsSingleton {
		return list.Label
	}
	if s := field.Stringify(f.Item[list.LabelField]); s != "" {
		return s
	}
	return f.ItemID
}

// Descriptor renders the form with each field's Field view.
func (f *Form) Descriptor(meta *adminmeta.Meta, list *adminmeta.List) model.FormDescriptor {
	invalid := f.Invalid(list)
	changed := f.ChangedFields(list)
	d := model.FormDescriptor{
		ID:                f.ID,
		List:              list.Key,
		Kind:              f.Kind,
		ItemID:            f.ItemID,
		Title:             f.Title(list),
		Fields:            []model.FormFieldDescriptor{},
		ChangedFields:     changed,
		HasUnsavedChanges: len(changed) > 0,
		AllowDelete:       f.AllowDelete,
		Errors:            f.Errors,
		Message:           f.Message,
	}
	if f.ItemID != "" {
		d.Href = views.ItemHref(list.Ref(), f.ItemID)
	}
	for p := range invalid {
		d.InvalidFields = append(d.InvalidFields, p)
	}
	slices.Sort(d.InvalidFields)

	visible := map[string]bool{}
	for _, p := range f.Visible(list) {
		visible[p] = true
		d.Fields = append(d.Fields, f.fieldDescriptor(meta, list.Fields[p], invalid[p]))
	}
	for _, g := range list.Groups {
		gd := model.GroupDescriptor{Label: g.Label, Description: g.Description}
		for _, gf := range g.Fields {
			if visible[gf.Path] {
				gd.Fields = append(gd.Fields, gf.Path)
			}
		}
		if len(gd.Fields) > 0 {
			d.Groups = append(d.Groups, gd)
		}
	}
	return d
}

func (f *Form) fieldDescriptor(meta *adminmeta.Meta, fd *adminmeta.Field, problem string) model.FormFieldDescriptor {
	ctrl := fd.Controller
	out := model.FormFieldDescriptor{
		Path:        fd.Path,
		Label:       fd.Label,
		Description: fd.Description,
		View:        fd.Views.Name,
		Mode:        f.Modes[fd.Path],
		Position:    f.Positions[fd.Path],
		Required:    ctrl.Required,
	}
	for _, o := range ctrl.Options {
		out.Options = append(out.Options, model.OptionDescriptor{Value: o.Value, Label: o.Label})
	}
	st := f.Values[fd.Path]
	if !st.Readable() {
		out.Error = strings.Join(st.Errors, "\n")
		return out
	}
	view := fd.Views.Field(views.FieldContext{
		ListKey:     f.ListKey,
		Field:       ctrl,
		Value:       st.Value,
		ItemID:      f.ItemID,
		Mode:        out.Mode,
		CustomViews: fd.CustomViews,
		Lists:       meta,
	})
	out.Value = view.Value
	out.Control = view.Control
	if problem != "" && f.ShowValidation {
		out.Invalid = true
		out.Error = problem
	}
	return out
}
