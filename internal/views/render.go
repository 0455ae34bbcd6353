package views

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/go-openapi/inflect"

	"github.com/pitabwire/adminmeta/internal/field"
	"github.com/pitabwire/adminmeta/model"
)

// ListRef is what renderers need to know about a list to link to it.
type ListRef struct {
	Key      string
	Path     string
	Singular string
	Plural   string
}

// Lists resolves lists by key.
type Lists interface {
	ListRef(key string) (ListRef, bool)
}

// ItemHref returns the admin route of an item.
func ItemHref(l ListRef, id string) string {
	return "/" + l.Path + "/" + id
}

// ListHref returns the admin route of a list page with an optional query.
func ListHref(l ListRef, query string) string {
	if query == "" {
		return "/" + l.Path
	}
	return "/" + l.Path + "?" + query
}

// Noun returns "1 post" or "3 posts" for a list.
func Noun(l ListRef, n int) string {
	if n == 1 {
		return "1 " + strings.ToLower(l.Singular)
	}
	plural := l.Plural
	if plural == "" {
		plural = inflect.Pluralize(l.Singular)
	}
	return strconv.Itoa(n) + " " + strings.ToLower(plural)
}

// lookup returns the list with key, or a ref derived from the key when the
// list is unknown.
func lookup(ls Lists, key string) ListRef {
	if ls != nil {
		if l, ok := ls.ListRef(key); ok {
			return l
		}
	}
	return ListRef{Key: key, Path: strings.ToLower(key), Singular: key}
}

// CellContext is the input of cell and card renderers.
type CellContext struct {
	ListKey string
	Field   *field.Controller
	Item    field.Item
	Lists   Lists
}

// CellRenderer renders one field of one item in a list row or card.
type CellRenderer func(c CellContext) model.CellDescriptor

// FieldContext is the input of form field renderers.
type FieldContext struct {
	ListKey     string
	Field       *field.Controller
	Value       field.Value
	ItemID      string
	Mode        string
	CustomViews map[string]any
	Lists       Lists
}

// FieldView is the rendered value and input description of a form field.
type FieldView struct {
	Value   any
	Control map[string]any
}

// FieldRenderer renders the form input of one field.
type FieldRenderer func(c FieldContext) FieldView

// CellTimeFormat renders timestamps in list cells.
const CellTimeFormat = "Jan 2, 2006, 3:04 PM"

func textCell(c CellContext) model.CellDescriptor {
	v := c.Item[c.Field.Path]
	if v == nil {
		return model.CellDescriptor{Field: c.Field.Path, Kind: model.CellEmpty}
	}
	return model.CellDescriptor{Field: c.Field.Path, Kind: model.CellText, Text: field.Stringify(v)}
}

func idCell(c CellContext) model.CellDescriptor {
	return model.CellDescriptor{Field: c.Field.Path, Kind: model.CellText, Text: c.Item.ID()}
}

func numberCell(c CellContext) model.CellDescriptor {
	v := c.Item[c.Field.Path]
	if v == nil {
		return model.CellDescriptor{Field: c.Field.Path, Kind: model.CellEmpty}
	}
	return model.CellDescriptor{Field: c.Field.Path, Kind: model.CellNumber, Text: field.Stringify(v), Value: v}
}

func checkboxCell(c CellContext) model.CellDescriptor {
	b, _ := c.Item[c.Field.Path].(bool)
	tone := "neutral"
	if b {
		tone = "positive"
	}
	return model.CellDescriptor{Field: c.Field.Path, Kind: model.CellBadge, Text: strconv.FormatBool(b), Value: b, Tone: tone}
}

func timestampCell(c CellContext) model.CellDescriptor {
	s, _ := c.Item[c.Field.Path].(string)
	if s == "" {
		return model.CellDescriptor{Field: c.Field.Path, Kind: model.CellEmpty}
	}
	text := s
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		text = ts.UTC().Format(CellTimeFormat)
	}
	return model.CellDescriptor{Field: c.Field.Path, Kind: model.CellText, Text: text, Value: s}
}

func selectCell(c CellContext) model.CellDescriptor {
	v := c.Item[c.Field.Path]
	if v == nil {
		return model.CellDescriptor{Field: c.Field.Path, Kind: model.CellEmpty}
	}
	return model.CellDescriptor{Field: c.Field.Path, Kind: model.CellText, Text: optionLabel(c.Field, v), Value: v}
}

func multiselectCell(c CellContext) model.CellDescriptor {
	values, _ := c.Item[c.Field.Path].([]any)
	if len(values) == 0 {
		return model.CellDescriptor{Field: c.Field.Path, Kind: model.CellEmpty}
	}
	labels := make([]string, len(values))
	for i, v := range values {
		labels[i] = optionLabel(c.Field, v)
	}
	return model.CellDescriptor{Field: c.Field.Path, Kind: model.CellText, Text: strings.Join(labels, ", "), Value: values}
}

func optionLabel(c *field.Controller, v any) string {
	s := field.Stringify(v)
	for _, o := range c.Options {
		if o.Value == s {
			return o.Label
		}
	}
	return s
}

func virtualCell(c CellContext) model.CellDescriptor {
	v := c.Item[c.Field.Path]
	switch t := v.(type) {
	case nil:
		return model.CellDescriptor{Field: c.Field.Path, Kind: model.CellEmpty}
	case string, float64, bool:
		return model.CellDescriptor{Field: c.Field.Path, Kind: model.CellText, Text: field.Stringify(t)}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return model.CellDescriptor{Field: c.Field.Path, Kind: model.CellEmpty}
	}
	return model.CellDescriptor{Field: c.Field.Path, Kind: model.CellText, Text: string(b), Value: v}
}

// relationshipCell renders count mode as "3 posts" and otherwise links to
// the related items. More than four items collapse to the first three and
// ", and N more".
func relationshipCell(c CellContext) model.CellDescriptor {
	return relationshipLinks(c, true)
}

func relationshipCard(c CellContext) model.CellDescriptor {
	return relationshipLinks(c, false)
}

func relationshipLinks(c CellContext, collapse bool) model.CellDescriptor {
	ref := c.Field.References
	list := lookup(c.Lists, ref.ListKey)
	if ref.Display == field.DisplayCount {
		n := 0
		if v, ok := c.Item[field.CountKey(c.Field.Path)].(float64); ok {
			n = int(v)
		}
		return model.CellDescriptor{Field: c.Field.Path, Kind: model.CellText, Text: Noun(list, n), Value: n}
	}

	var items []any
	switch t := c.Item[c.Field.Path].(type) {
	case []any:
		items = t
	case map[string]any:
		items = []any{t}
	}
	links := make([]model.LinkDescriptor, 0, len(items))
	for _, x := range items {
		m, ok := x.(map[string]any)
		if !ok {
			continue
		}
		id := field.Stringify(m["id"])
		if id == "" {
			continue
		}
		label := field.Stringify(m["label"])
		if label == "" {
			label = id
		}
		links = append(links, model.LinkDescriptor{Label: label, Href: ItemHref(list, id)})
	}
	if len(links) == 0 {
		return model.CellDescriptor{Field: c.Field.Path, Kind: model.CellEmpty}
	}
	overflow := 0
	if collapse && len(links) >= 5 {
		overflow = len(links) - 3
		links = links[:3]
	}
	names := make([]string, len(links))
	for i, l := range links {
		names[i] = l.Label
	}
	text := strings.Join(names, ", ")
	if overflow > 0 {
		text += ", and " + strconv.Itoa(overflow) + " more"
	}
	return model.CellDescriptor{Field: c.Field.Path, Kind: model.CellLinks, Text: text, Links: links}
}
