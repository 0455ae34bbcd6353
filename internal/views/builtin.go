package views

import (
	"github.com/pitabwire/adminmeta/internal/field"
)

// Builtin returns the stock view module with the given name.
func Builtin(name string) (Module, bool) {
	b, ok := builtins[name]
	if !ok {
		return Module{}, false
	}
	exports := map[string]any{
		ExportController: b.controller,
		ExportCell:       b.cell,
		ExportField:      b.field,
		ExportCardValue:  b.card,
	}
	if len(b.allowed) > 0 {
		exports[ExportAllowedCustom] = b.allowed
	}
	return Module{Name: name, Exports: exports}, true
}

// BuiltinNames returns the names of the stock view modules.
func BuiltinNames() []string {
	return []string{"id", "text", "checkbox", "integer", "decimal", "timestamp", "select", "multiselect", "relationship", "virtual"}
}

type builtin struct {
	controller field.Factory
	cell       CellRenderer
	card       CellRenderer
	field      FieldRenderer
	allowed    []string
}

var builtins = map[string]builtin{
	"id":           {controller: field.ID, cell: idCell, card: idCell, field: idField},
	"text":         {controller: field.Text, cell: textCell, card: textCell, field: textField, allowed: []string{"placeholder"}},
	"checkbox":     {controller: field.Checkbox, cell: checkboxCell, card: checkboxCell, field: checkboxField},
	"integer":      {controller: field.Integer, cell: numberCell, card: numberCell, field: integerField},
	"decimal":      {controller: field.Decimal, cell: numberCell, card: numberCell, field: decimalField},
	"timestamp":    {controller: field.Timestamp, cell: timestampCell, card: timestampCell, field: timestampField},
	"select":       {controller: field.Select, cell: selectCell, card: selectCell, field: selectField},
	"multiselect":  {controller: field.Multiselect, cell: multiselectCell, card: multiselectCell, field: multiselectField},
	"relationship": {controller: field.Relationship, cell: relationshipCell, card: relationshipCard, field: relationshipField},
	"virtual":      {controller: field.Virtual, cell: virtualCell, card: virtualCell, field: virtualField},
}

func control(input string) map[string]any {
	return map[string]any{"input": input}
}

func scalarValue(v field.Value) any {
	if s, ok := v.(field.Scalar); ok {
		return s.Value
	}
	return nil
}

func idField(c FieldContext) FieldView {
	return FieldView{Value: c.ItemID, Control: control(field.InputNone)}
}

func textField(c FieldContext) FieldView {
	ctl := control(field.InputText)
	if c.Field.Meta["display_mode"] == "textarea" {
		ctl["input"] = "textarea"
	}
	if p, ok := c.CustomViews["placeholder"].(string); ok {
		ctl["placeholder"] = p
	}
	return FieldView{Value: scalarValue(c.Value), Control: ctl}
}

func checkboxField(c FieldContext) FieldView {
	b, _ := c.Value.(bool)
	return FieldView{Value: b, Control: control("checkbox")}
}

func integerField(c FieldContext) FieldView {
	ctl := control(field.InputNumber)
	ctl["step"] = 1
	if auto, _ := c.Field.Meta["autoincrement"].(bool); auto {
		ctl["autoincrement"] = true
	}
	return FieldView{Value: scalarValue(c.Value), Control: ctl}
}

func decimalField(c FieldContext) FieldView {
	ctl := control(field.InputNumber)
	ctl["scale"] = c.Field.Meta["scale"]
	ctl["precision"] = c.Field.Meta["precision"]
	return FieldView{Value: scalarValue(c.Value), Control: ctl}
}

func timestampField(c FieldContext) FieldView {
	ctl := control(field.InputDateTime)
	if now, _ := c.Field.Meta["default_now"].(bool); now {
		ctl["default_now"] = true
	}
	if upd, _ := c.Field.Meta["updated_at"].(bool); upd {
		ctl["updated_at"] = true
	}
	return FieldView{Value: scalarValue(c.Value), Control: ctl}
}

func selectField(c FieldContext) FieldView {
	input, _ := c.Field.Meta["display_mode"].(string)
	if input == "" {
		input = field.InputSelect
	}
	var v any
	if ch, ok := c.Value.(field.Choice); ok && ch.Value != nil {
		v = ch.Value.Value
	}
	return FieldView{Value: v, Control: control(input)}
}

func multiselectField(c FieldContext) FieldView {
	input, _ := c.Field.Meta["display_mode"].(string)
	if input == "" {
		input = field.InputSelect
	}
	opts, _ := c.Value.([]field.Option)
	values := make([]string, len(opts))
	for i, o := range opts {
		values[i] = o.Value
	}
	ctl := control(input)
	ctl["multiple"] = true
	return FieldView{Value: values, Control: ctl}
}

func relationshipField(c FieldContext) FieldView {
	ref := c.Field.References
	ctl := control(field.InputRelation)
	ctl["ref_list"] = ref.ListKey
	ctl["many"] = ref.Many
	ctl["label_field"] = ref.LabelField
	ctl["search_fields"] = ref.SearchFields
	ctl["hide_create"] = ref.HideCreate
	ctl["display"] = ref.Display

	r, _ := c.Value.(field.Relation)
	if c.ItemID != "" && (r.Kind == field.RelCount || len(r.Value) > 0) {
		ctl["related_href"] = ListHref(lookup(c.Lists, ref.ListKey), field.RelatedItemsQuery(ref, c.ItemID, r))
	}
	switch r.Kind {
	case field.RelCount:
		return FieldView{Value: r.Count, Control: ctl}
	case field.RelMany:
		v := r.Value
		if v == nil {
			v = []field.Ref{}
		}
		return FieldView{Value: v, Control: ctl}
	}
	if len(r.Value) == 0 {
		return FieldView{Value: nil, Control: ctl}
	}
	return FieldView{Value: r.Value[0], Control: ctl}
}

func virtualField(c FieldContext) FieldView {
	return FieldView{Value: c.Value, Control: control(field.InputNone)}
}
