package field

import (
	"encoding/json"
	"regexp"
	"strings"
)

// IDMeta is the fieldMeta of the id field.
type IDMeta struct {
	// Kind is how ids are generated: autoincrement, uuid, cuid or random.
	Kind string `json:"kind"`
	// Type is the GraphQL scalar backing the id: String, Int or BigInt.
	Type string `json:"type"`
}

var whitespace = regexp.MustCompile(`\s`)

// ID builds the controller of the id field. Ids are never edited, so the
// edit value is always nil and the field serializes to nothing.
func ID(cfg Config) (*Controller, error) {
	meta := IDMeta{Kind: "cuid", Type: "String"}
	if err := decodeMeta(cfg, &meta); err != nil {
		return nil, err
	}

	c := base(cfg)
	c.Meta["kind"] = meta.Kind
	c.Meta["type"] = meta.Type
	c.DefaultValue = func() Value { return nil }
	c.Deserialize = func(Item) Value { return nil }
	c.Serialize = func(Value) map[string]any { return map[string]any{} }
	c.Validate = func(Value) bool { return true }
	c.Apply = func(prev Value, _ json.RawMessage) (Value, error) { return prev, nil }

	types, order := typesOf(
		[]string{"is", "not", "in", "not_in", "lt", "gt", "lte", "gte"},
		map[string]string{
			"is":     "Is exactly",
			"not":    "Is not exactly",
			"in":     "Is one of",
			"not_in": "Is not one of",
			"lt":     "Is less than",
			"gt":     "Is greater than",
			"lte":    "Is less than or equal to",
			"gte":    "Is greater than or equal to",
		},
		func(string) any { return "" },
	)
	c.Filter = &Filter{
		Types: types,
		Order: order,
		Parse: func(_ string, raw json.RawMessage) (any, error) {
			return parseString(raw)
		},
		GraphQL: func(op string, value any) map[string]any {
			v := whitespace.ReplaceAllString(Stringify(value), "")
			switch op {
			case "not":
				return map[string]any{cfg.Path: map[string]any{"not": map[string]any{"equals": v}}}
			case "in", "not_in":
				key := "in"
				if op == "not_in" {
					key = "notIn"
				}
				return map[string]any{cfg.Path: map[string]any{key: splitIDs(v)}}
			case "is":
				return map[string]any{cfg.Path: map[string]any{"equals": v}}
			default:
				return map[string]any{cfg.Path: map[string]any{op: v}}
			}
		},
		Label: func(l FilterLabel) string {
			v := Stringify(l.Value)
			if l.Type == "in" || l.Type == "not_in" {
				v = strings.Join(splitIDs(whitespace.ReplaceAllString(v, "")), ", ")
			}
			return Lower(l.Label) + ": " + v
		},
		Control: func(string, any) FilterControl {
			return FilterControl{Input: InputText, Required: true}
		},
	}
	return c, nil
}

func splitIDs(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}
