package views

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/adminmeta/internal/field"
	"github.com/pitabwire/adminmeta/model"
)

type lists map[string]ListRef

func (l lists) ListRef(key string) (ListRef, bool) {
	r, ok := l[key]
	return r, ok
}

var testLists = lists{
	"Tag":  {Key: "Tag", Path: "tags", Singular: "Tag", Plural: "Tags"},
	"Post": {Key: "Post", Path: "posts", Singular: "Post", Plural: "Posts"},
}

func controller(t *testing.T, module, path, meta string) (*field.Controller, Resolved) {
	t.Helper()
	m, ok := Builtin(module)
	require.True(t, ok)
	r, err := Resolve(m)
	require.NoError(t, err)
	c, err := r.Controller(field.Config{ListKey: "Post", Path: path, Label: path, FieldMeta: json.RawMessage(meta)})
	require.NoError(t, err)
	return c, r
}

func TestBuiltinModulesResolve(t *testing.T) {
	for _, name := range BuiltinNames() {
		m, ok := Builtin(name)
		if !ok {
			t.Fatalf("builtin %q missing", name)
		}
		for _, e := range ExpectedExports {
			if _, ok := m.Exports[e]; !ok {
				t.Errorf("builtin %q lacks export %s", name, e)
			}
		}
		if _, err := Resolve(m); err != nil {
			t.Errorf("Resolve(%q) error = %v", name, err)
		}
	}
	_, ok := Builtin("document")
	assert.False(t, ok)
}

func TestResolve_acceptsPlainFunctions(t *testing.T) {
	m := Module{Name: "custom", Exports: map[string]any{
		ExportController: func(cfg field.Config) (*field.Controller, error) { return field.Text(cfg) },
		ExportCell:       func(CellContext) model.CellDescriptor { return model.CellDescriptor{} },
		ExportCardValue:  CellRenderer(textCell),
		ExportField:      func(FieldContext) FieldView { return FieldView{} },
	}}
	_, err := Resolve(m)
	assert.NoError(t, err)

	m.Exports[ExportCell] = "not a renderer"
	_, err = Resolve(m)
	assert.Error(t, err)
}

func TestFromNames(t *testing.T) {
	custom := Module{Name: "fancy-text", Exports: map[string]any{"placeholder": "Write…"}}
	r, err := FromNames([]string{"id", "text", "fancy-text"}, map[string]Module{"fancy-text": custom})
	require.NoError(t, err)
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"id", "text", "fancy-text"}, r.Names())

	m, ok := r.At(1)
	require.True(t, ok)
	assert.Equal(t, []string{"placeholder"}, m.AllowedOnCustomViews())
	_, ok = r.At(3)
	assert.False(t, ok)
	_, ok = r.At(-1)
	assert.False(t, ok)

	_, err = FromNames([]string{"text", "nope"}, nil)
	assert.Error(t, err)
}

func TestRelationshipCell_overflow(t *testing.T) {
	c, r := controller(t, "relationship", "tags", `{"refListKey":"Tag","many":true,"refLabelField":"name"}`)

	var items []any
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		items = append(items, map[string]any{"id": id, "label": id + "!"})
	}
	cell := r.Cell(CellContext{ListKey: "Post", Field: c, Item: field.Item{"id": "p1", "tags": items}, Lists: testLists})
	assert.Equal(t, model.CellLinks, cell.Kind)
	assert.Equal(t, "a!, b!, c!, and 2 more", cell.Text)
	require.Len(t, cell.Links, 3)
	assert.Equal(t, "/tags/a", cell.Links[0].Href)

	four := field.Item{"id": "p1", "tags": items[:4]}
	assert.Equal(t, "a!, b!, c!, d!", r.Cell(CellContext{Field: c, Item: four, Lists: testLists}).Text)

	card := r.CardValue(CellContext{Field: c, Item: field.Item{"id": "p1", "tags": items}, Lists: testLists})
	assert.Len(t, card.Links, 5)

	noLabel := field.Item{"tags": []any{map[string]any{"id": "z", "label": ""}}}
	assert.Equal(t, "z", r.Cell(CellContext{Field: c, Item: noLabel, Lists: testLists}).Text)

	empty := r.Cell(CellContext{Field: c, Item: field.Item{"tags": nil}, Lists: testLists})
	assert.Equal(t, model.CellEmpty, empty.Kind)
}

func TestRelationshipCell_count(t *testing.T) {
	c, r := controller(t, "relationship", "posts", `{"refListKey":"Post","many":true,"displayMode":"count"}`)
	one := r.Cell(CellContext{Field: c, Item: field.Item{"postsCount": float64(1)}, Lists: testLists})
	assert.Equal(t, "1 post", one.Text)
	many := r.Cell(CellContext{Field: c, Item: field.Item{"postsCount": float64(3)}, Lists: testLists})
	assert.Equal(t, "3 posts", many.Text)
	none := r.Cell(CellContext{Field: c, Item: field.Item{}, Lists: nil})
	assert.Equal(t, "0 posts", none.Text)
}

func TestNoun_pluralFallback(t *testing.T) {
	assert.Equal(t, "2 categories", Noun(ListRef{Singular: "Category"}, 2))
}

func TestScalarCells(t *testing.T) {
	check, r := controller(t, "checkbox", "published", `{}`)
	cell := r.Cell(CellContext{Field: check, Item: field.Item{"published": true}})
	assert.Equal(t, model.CellBadge, cell.Kind)
	assert.Equal(t, "positive", cell.Tone)

	sel, r := controller(t, "select", "status", `{"options":[{"label":"Draft","value":"draft"}]}`)
	assert.Equal(t, "Draft", r.Cell(CellContext{Field: sel, Item: field.Item{"status": "draft"}}).Text)

	ts, r := controller(t, "timestamp", "publishAt", `{}`)
	assert.Equal(t, "Jan 2, 2024, 3:04 PM", r.Cell(CellContext{Field: ts, Item: field.Item{"publishAt": "2024-01-02T15:04:05Z"}}).Text)

	n, r := controller(t, "integer", "views", `{}`)
	assert.Equal(t, model.CellEmpty, r.Cell(CellContext{Field: n, Item: field.Item{}}).Kind)
	assert.Equal(t, "12", r.Cell(CellContext{Field: n, Item: field.Item{"views": float64(12)}}).Text)
}

func TestFieldRenderers(t *testing.T) {
	text, r := controller(t, "text", "title", `{"displayMode":"textarea"}`)
	view := r.Field(FieldContext{Field: text, Value: field.Scalar{Kind: field.KindUpdate, Value: "Hi"}, CustomViews: map[string]any{"placeholder": "Title…"}})
	assert.Equal(t, "Hi", view.Value)
	assert.Equal(t, "textarea", view.Control["input"])
	assert.Equal(t, "Title…", view.Control["placeholder"])

	rel, r := controller(t, "relationship", "author", `{"refListKey":"Post","refFieldKey":"author"}`)
	v := rel.Deserialize(field.Item{"id": "u1", "author": map[string]any{"id": "p9", "label": "Nine"}})
	view = r.Field(FieldContext{Field: rel, Value: v, ItemID: "u1", Lists: testLists})
	assert.Equal(t, field.Ref{ID: "p9", Label: "Nine"}, view.Value)
	assert.Equal(t, "/posts?!author_matches=%22u1%22", view.Control["related_href"])

	multi, r := controller(t, "multiselect", "flags", `{"options":[{"label":"A","value":"a"}]}`)
	view = r.Field(FieldContext{Field: multi, Value: []field.Option{{Label: "A", Value: "a"}}})
	assert.Equal(t, []string{"a"}, view.Value)
}
