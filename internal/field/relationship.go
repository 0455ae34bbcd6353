package field

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// RelationshipMeta is the fieldMeta of relationship fields.
type RelationshipMeta struct {
	RefFieldKey     string   `json:"refFieldKey"`
	RefListKey      string   `json:"refListKey"`
	Many            bool     `json:"many"`
	HideCreate      bool     `json:"hideCreate"`
	RefLabelField   string   `json:"refLabelField"`
	RefSearchFields []string `json:"refSearchFields"`
	DisplayMode     string   `json:"displayMode"`
}

// Relation value kinds.
const (
	RelOne   = "one"
	RelMany  = "many"
	RelCount = "count"
)

// Display modes of relationship fields.
const (
	DisplaySelect = "select"
	DisplayCount  = "count"
)

// Relation is the edit value of relationship fields. For RelOne, Value
// holds at most one reference. RelCount values only carry the number of
// related items and are never written.
type Relation struct {
	Kind    string `json:"kind"`
	ItemID  string `json:"id,omitempty"`
	Value   []Ref  `json:"value"`
	Initial []Ref  `json:"initial"`
	Count   int    `json:"count,omitempty"`
}

// CountKey returns the response key of the related item count.
func CountKey(path string) string {
	return path + "Count"
}

// Relationship builds the controller of fields referencing items
// of another list.
func Relationship(cfg Config) (*Controller, error) {
	meta := RelationshipMeta{DisplayMode: DisplaySelect}
	if err := decodeMeta(cfg, &meta); err != nil {
		return nil, err
	}
	if meta.RefListKey == "" {
		return nil, fmt.Errorf("field: %s: relationship without refListKey", describe(cfg))
	}
	if meta.RefLabelField == "" {
		meta.RefLabelField = "id"
	}
	relOf := func(v Value) Relation {
		if r, ok := v.(Relation); ok {
			return r
		}
		if meta.Many {
			return Relation{Kind: RelMany}
		}
		return Relation{Kind: RelOne}
	}

	c := base(cfg)
	c.References = &Reference{
		ListKey:      meta.RefListKey,
		FieldKey:     meta.RefFieldKey,
		LabelField:   meta.RefLabelField,
		SearchFields: meta.RefSearchFields,
		Many:         meta.Many,
		HideCreate:   meta.HideCreate,
		Display:      meta.DisplayMode,
	}
	if meta.DisplayMode == DisplayCount {
		c.GraphQLSelection = CountKey(cfg.Path)
	} else {
		c.GraphQLSelection = cfg.Path + " {\n  id\n  label: " + meta.RefLabelField + "\n}"
	}
	c.DefaultValue = func() Value {
		if meta.Many {
			return Relation{Kind: RelMany, Value: []Ref{}, Initial: []Ref{}}
		}
		return Relation{Kind: RelOne}
	}
	c.Deserialize = func(item Item) Value {
		if meta.DisplayMode == DisplayCount {
			n, _ := toInt64(item[CountKey(cfg.Path)])
			return Relation{Kind: RelCount, ItemID: item.ID(), Count: int(n)}
		}
		if meta.Many {
			list, _ := item[cfg.Path].([]any)
			refs := make([]Ref, 0, len(list))
			for _, x := range list {
				if r, ok := refOf(x); ok {
					refs = append(refs, r)
				}
			}
			return Relation{Kind: RelMany, ItemID: item.ID(), Value: refs, Initial: cloneRefs(refs)}
		}
		r := Relation{Kind: RelOne, ItemID: item.ID()}
		if ref, ok := refOf(item[cfg.Path]); ok {
			r.Value = []Ref{ref}
			r.Initial = []Ref{ref}
		}
		return r
	}
	c.Serialize = func(v Value) map[string]any {
		r := relOf(v)
		switch r.Kind {
		case RelMany:
			current := idSet(r.Value)
			initial := idSet(r.Initial)
			out := map[string]any{}
			var disconnect, connect []map[string]any
			for _, x := range r.Initial {
				if !current[x.ID] {
					disconnect = append(disconnect, map[string]any{"id": x.ID})
				}
			}
			for _, x := range r.Value {
				if !initial[x.ID] {
					connect = append(connect, map[string]any{"id": x.ID})
				}
			}
			if len(disconnect) > 0 {
				out["disconnect"] = disconnect
			}
			if len(connect) > 0 {
				out["connect"] = connect
			}
			if len(out) == 0 {
				return map[string]any{}
			}
			return map[string]any{cfg.Path: out}
		case RelOne:
			if len(r.Initial) > 0 && len(r.Value) == 0 {
				return map[string]any{cfg.Path: map[string]any{"disconnect": true}}
			}
			if len(r.Value) > 0 && (len(r.Initial) == 0 || r.Initial[0].ID != r.Value[0].ID) {
				return map[string]any{cfg.Path: map[string]any{"connect": map[string]any{"id": r.Value[0].ID}}}
			}
		}
		return map[string]any{}
	}
	c.Validate = func(Value) bool { return true }
	c.Apply = func(prev Value, input json.RawMessage) (Value, error) {
		r := relOf(prev)
		if r.Kind == RelCount {
			return prev, fmt.Errorf("field: %s is read only", cfg.Path)
		}
		raw, err := decodeInput(input)
		if err != nil {
			return prev, err
		}
		if r.Kind == RelMany {
			list, ok := raw.([]any)
			if raw != nil && !ok {
				return prev, fmt.Errorf("field: %s expects an array of items", cfg.Path)
			}
			refs := make([]Ref, 0, len(list))
			seen := map[string]bool{}
			for _, x := range list {
				ref, ok := refOf(x)
				if !ok {
					return prev, fmt.Errorf("field: %s: invalid item reference", cfg.Path)
				}
				if !seen[ref.ID] {
					seen[ref.ID] = true
					refs = append(refs, ref)
				}
			}
			r.Value = refs
			return r, nil
		}
		if raw == nil {
			r.Value = nil
			return r, nil
		}
		ref, ok := refOf(raw)
		if !ok {
			return prev, fmt.Errorf("field: %s: invalid item reference", cfg.Path)
		}
		r.Value = []Ref{ref}
		return r, nil
	}

	c.Filter = &Filter{
		Types: map[string]FilterType{"matches": {Label: "Matches", InitialValue: ""}},
		Order: []string{"matches"},
		Parse: func(_ string, raw json.RawMessage) (any, error) {
			return parseString(raw)
		},
		GraphQL: func(_ string, value any) map[string]any {
			ids := FilterIDs(value)
			if meta.Many {
				return map[string]any{cfg.Path: map[string]any{"some": map[string]any{"id": map[string]any{"in": ids}}}}
			}
			return map[string]any{cfg.Path: map[string]any{"id": map[string]any{"in": ids}}}
		},
		Label: func(l FilterLabel) string {
			ids := FilterIDs(l.Value)
			if len(ids) == 0 {
				return "has no value"
			}
			labels := make([]string, len(ids))
			for i, id := range ids {
				labels[i] = id
				if name, ok := l.Lookup[id]; ok && name != "" {
					labels[i] = name
				}
			}
			if len(labels) > 1 {
				return "is in [" + strings.Join(labels, ", ") + "]"
			}
			return "is " + labels[0]
		},
		Control: func(string, any) FilterControl {
			return FilterControl{Input: InputRelation, RefList: meta.RefListKey, Multiple: true}
		},
	}
	return c, nil
}

// FilterIDs splits a relationship filter value into ids.
func FilterIDs(value any) []string {
	s := Stringify(value)
	ids := []string{}
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// RelatedItemsQuery returns the list page query string showing the items
// related to itemID through ref, or to the referenced ids when the field has
// no back reference.
func RelatedItemsQuery(ref *Reference, itemID string, v Relation) string {
	if ref.FieldKey != "" && itemID != "" {
		return "!" + url.QueryEscape(ref.FieldKey+"_matches") + "=" + url.QueryEscape(strconv.Quote(itemID))
	}
	ids := make([]string, 0, len(v.Value))
	for i, r := range v.Value {
		if i == 100 {
			break
		}
		ids = append(ids, r.ID)
	}
	return "!id_in=" + url.QueryEscape(strconv.Quote(strings.Join(ids, ",")))
}

func refOf(x any) (Ref, bool) {
	switch t := x.(type) {
	case map[string]any:
		id := Stringify(t["id"])
		if id == "" {
			return Ref{}, false
		}
		label := Stringify(t["label"])
		if label == "" {
			label = id
		}
		return Ref{ID: id, Label: label}, true
	case string:
		if t == "" {
			return Ref{}, false
		}
		return Ref{ID: t, Label: t}, true
	case json.Number:
		return Ref{ID: t.String(), Label: t.String()}, true
	}
	return Ref{}, false
}

func idSet(refs []Ref) map[string]bool {
	m := make(map[string]bool, len(refs))
	for _, r := range refs {
		m[r.ID] = true
	}
	return m
}

func cloneRefs(refs []Ref) []Ref {
	out := make([]Ref, len(refs))
	copy(out, refs)
	return out
}
