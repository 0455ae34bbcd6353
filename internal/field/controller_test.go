package field

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, f Factory, path, meta string) *Controller {
	t.Helper()
	c, err := f(Config{ListKey: "Post", Path: path, Label: "Title", FieldMeta: json.RawMessage(meta)})
	require.NoError(t, err)
	return c
}

func postControllers(t *testing.T) map[string]*Controller {
	t.Helper()
	return map[string]*Controller{
		"id":        build(t, ID, "id", `{"kind":"cuid","type":"String"}`),
		"title":     build(t, Text, "title", `{"displayMode":"input","isNullable":false,"validation":{"isRequired":true,"length":{"min":1,"max":null},"match":null},"defaultValue":""}`),
		"published": build(t, Checkbox, "published", `{"defaultValue":false}`),
		"views":     build(t, Integer, "views", `{"validation":{"isRequired":false,"min":0,"max":null},"defaultValue":0}`),
		"price":     build(t, Decimal, "price", `{"precision":10,"scale":2,"defaultValue":null,"validation":{"isRequired":false}}`),
		"publishAt": build(t, Timestamp, "publishAt", `{"defaultValue":null,"updatedAt":false,"isRequired":false}`),
		"status":    build(t, Select, "status", `{"options":[{"label":"Draft","value":"draft"},{"label":"Published","value":"published"}],"type":"string","displayMode":"select","isRequired":false,"defaultValue":"draft"}`),
		"flags":     build(t, Multiselect, "flags", `{"options":[{"label":"One","value":1},{"label":"Two","value":2}],"type":"integer","displayMode":"checkboxes","defaultValue":[]}`),
		"author":    build(t, Relationship, "author", `{"refListKey":"User","many":false,"refLabelField":"name","refSearchFields":["name"],"displayMode":"select"}`),
		"tags":      build(t, Relationship, "tags", `{"refListKey":"Tag","refFieldKey":"posts","many":true,"refLabelField":"name","displayMode":"select"}`),
		"comments":  build(t, Relationship, "comments", `{"refListKey":"Comment","many":true,"refLabelField":"id","displayMode":"count"}`),
		"excerpt":   build(t, Virtual, "excerpt", `{"query":""}`),
	}
}

func postItem() Item {
	return Item{
		"id":            "p1",
		"title":         "Hello",
		"published":     false,
		"views":         float64(12),
		"price":         "9.5",
		"publishAt":     "2024-01-02T15:04:05Z",
		"status":        "draft",
		"flags":         []any{float64(2)},
		"author":        map[string]any{"id": "u1", "label": "Ada"},
		"tags":          []any{map[string]any{"id": "t1", "label": "go"}, map[string]any{"id": "t2", "label": ""}},
		"commentsCount": float64(3),
		"excerpt":       "Hel…",
	}
}

func deserializeAll(controllers map[string]*Controller, item Item) (Values, []string) {
	values := Values{}
	var paths []string
	for p, c := range controllers {
		values[p] = State{Kind: StateValue, Value: c.Deserialize(item)}
		paths = append(paths, p)
	}
	return values, paths
}

func TestUnchangedItemSerializesNoChanges(t *testing.T) {
	controllers := postControllers(t)
	initial, paths := deserializeAll(controllers, postItem())
	current, _ := deserializeAll(controllers, postItem())

	changed := Changed(Serialized(controllers, initial, paths), Serialized(controllers, current, paths))
	assert.Empty(t, changed)
}

func TestPostScenarioOnlyPublishedChanges(t *testing.T) {
	controllers := postControllers(t)
	initial, paths := deserializeAll(controllers, postItem())
	current, _ := deserializeAll(controllers, postItem())

	v, err := controllers["published"].Apply(current["published"].Value, json.RawMessage(`true`))
	require.NoError(t, err)
	current["published"] = State{Kind: StateValue, Value: v}

	before := Serialized(controllers, initial, paths)
	after := Serialized(controllers, current, paths)
	changed := Changed(before, after)
	require.Equal(t, []string{"published"}, changed)
	assert.Equal(t, map[string]any{"published": true}, Merge(after, changed))
}

func TestDeserializeToleratesMissingAndNull(t *testing.T) {
	controllers := postControllers(t)
	nulls := Item{}
	for p := range postItem() {
		nulls[p] = nil
	}
	wrong := Item{"title": 5, "published": "yes", "views": "x", "author": []any{}, "tags": "t", "flags": 1, "status": true}

	for _, item := range []Item{{}, nulls, wrong} {
		for path, c := range controllers {
			assert.NotPanics(t, func() {
				v := c.Deserialize(item)
				c.Serialize(v)
				c.Valid(v)
			}, path)
		}
	}
	assert.Equal(t, false, controllers["published"].Deserialize(wrong))
	assert.Equal(t, []Option{}, controllers["flags"].Deserialize(nulls))
}

func TestDefaultValuesAreFresh(t *testing.T) {
	c := postControllers(t)["tags"]
	a := c.DefaultValue().(Relation)
	a.Value = append(a.Value, Ref{ID: "x"})
	b := c.DefaultValue().(Relation)
	assert.Empty(t, b.Value)
}

func TestController_Message(t *testing.T) {
	c := postControllers(t)["title"]
	assert.Equal(t, "Title must not be empty", c.Message(Scalar{Kind: KindCreate, Value: ""}))
	assert.Equal(t, "", c.Message(Scalar{Kind: KindCreate, Value: "x"}))
}

func TestFilter_OperatorsLongestFirst(t *testing.T) {
	c := postControllers(t)["title"]
	ops := c.Filter.Operators()
	require.Len(t, ops, 8)
	assert.Equal(t, "not_starts_with_i", ops[0])
	for i := 1; i < len(ops); i++ {
		assert.GreaterOrEqual(t, len(ops[i-1]), len(ops[i]))
	}
	assert.True(t, c.Filter.Has("is_i"))
	assert.False(t, c.Filter.Has("equals"))
	var nilFilter *Filter
	assert.False(t, nilFilter.Has("is"))
}

func TestInvalidFieldMeta(t *testing.T) {
	_, err := Text(Config{ListKey: "Post", Path: "title", FieldMeta: json.RawMessage(`[`)})
	assert.Error(t, err)
	_, err = Relationship(Config{ListKey: "Post", Path: "author", FieldMeta: json.RawMessage(`{}`)})
	assert.Error(t, err)
	_, err = Text(Config{ListKey: "Post", Path: "slug", FieldMeta: json.RawMessage(`{"validation":{"match":{"regex":{"source":"(","flags":""}}}}`)})
	assert.Error(t, err)
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "12", Stringify(float64(12)))
	assert.Equal(t, "1.5", Stringify(1.5))
	assert.Equal(t, "7", Stringify(int64(7)))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "p1", Item{"id": "p1"}.ID())
}
