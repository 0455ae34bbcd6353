package adminmeta

import (
	"github.com/pitabwire/adminmeta/model"
)

// Descriptor returns the metadata sent to the browser shell, limited to the
// lists caps allows reading.
func (m *Meta) Descriptor(caps model.CapabilitySet) model.MetaDescriptor {
	out := model.MetaDescriptor{Lists: []model.ListDescriptor{}}
	for _, key := range m.Order {
		if !caps.CanList(key, model.ActionRead) {
			continue
		}
		out.Lists = append(out.Lists, m.Lists[key].Descriptor(caps))
	}
	return out
}

// Descriptor describes l and its fields.
func (l *List) Descriptor(caps model.CapabilitySet) model.ListDescriptor {
	d := model.ListDescriptor{
		Key:            l.Key,
		Path:           l.Path,
		Label:          l.Label,
		Singular:       l.Singular,
		Plural:         l.Plural,
		Description:    l.Description,
		LabelField:     l.LabelField,
		IsSingleton:    l.IsSingleton,
		PageSize:       l.PageSize,
		InitialColumns: l.InitialColumns,
		HideCreate:     l.HideCreate || !caps.CanList(l.Key, model.ActionCreate),
		HideDelete:     l.HideDelete || !caps.CanList(l.Key, model.ActionDelete),
		HideNavigation: l.HideNavigation,
		Fields:         make([]model.FieldDescriptor, 0, len(l.FieldOrder)),
	}
	if l.InitialSort != nil {
		d.InitialSort = &model.SortDescriptor{Field: l.InitialSort.Field, Direction: l.InitialSort.Direction}
	}
	for _, f := range l.OrderedFields() {
		d.Fields = append(d.Fields, f.Descriptor())
	}
	for _, g := range l.Groups {
		gd := model.GroupDescriptor{Label: g.Label, Description: g.Description}
		for _, f := range g.Fields {
			gd.Fields = append(gd.Fields, f.Path)
		}
		d.Groups = append(d.Groups, gd)
	}
	return d
}

// Descriptor describes f independent of any item.
func (f *Field) Descriptor() model.FieldDescriptor {
	d := model.FieldDescriptor{
		Path:         f.Path,
		Label:        f.Label,
		Description:  f.Description,
		View:         f.Views.Name,
		CreateMode:   f.CreateMode,
		ItemMode:     f.ItemMode,
		ItemPosition: f.ItemPosition,
		ListMode:     f.ListMode,
		IsFilterable: f.IsFilterable,
		IsOrderable:  f.IsOrderable,
		Searchable:   f.Search != "",
	}
	if f.IsFilterable {
		for _, op := range f.Controller.Filter.Order {
			t := f.Controller.Filter.Types[op]
			d.Filters = append(d.Filters, model.FilterTypeDescriptor{Operator: op, Label: t.Label, InitialValue: t.InitialValue})
		}
	}
	return d
}

// Navigation returns the lists shown in the admin navigation.
func (m *Meta) Navigation(caps model.CapabilitySet) model.NavigationDescriptor {
	nav := model.NavigationDescriptor{Items: []model.NavigationItem{}}
	for _, key := range m.Order {
		l := m.Lists[key]
		if l.HideNavigation || !caps.CanList(key, model.ActionRead) {
			continue
		}
		nav.Items = append(nav.Items, model.NavigationItem{
			Key:         l.Key,
			Label:       l.Label,
			Route:       "/" + l.Path,
			IsSingleton: l.IsSingleton,
		})
	}
	return nav
}
