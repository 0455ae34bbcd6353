package field

import (
	"encoding/json"
	"fmt"
)

// CheckboxMeta is the fieldMeta of checkbox fields.
type CheckboxMeta struct {
	DefaultValue bool `json:"defaultValue"`
}

// Checkbox builds the controller of boolean fields. The edit value is a
// plain bool; anything else read from the server is treated as false.
func Checkbox(cfg Config) (*Controller, error) {
	var meta CheckboxMeta
	if err := decodeMeta(cfg, &meta); err != nil {
		return nil, err
	}

	c := base(cfg)
	c.DefaultValue = func() Value { return meta.DefaultValue }
	c.Deserialize = func(item Item) Value {
		b, _ := item[cfg.Path].(bool)
		return b
	}
	c.Serialize = func(v Value) map[string]any {
		b, _ := v.(bool)
		return map[string]any{cfg.Path: b}
	}
	c.Validate = func(Value) bool { return true }
	c.Apply = func(prev Value, input json.RawMessage) (Value, error) {
		var b bool
		if err := json.Unmarshal(input, &b); err != nil {
			return prev, fmt.Errorf("field: %s expects a boolean", cfg.Path)
		}
		return b, nil
	}

	types, order := typesOf([]string{"is", "not"},
		map[string]string{"is": "Is", "not": "Is not"},
		func(string) any { return true },
	)
	c.Filter = &Filter{
		Types: types,
		Order: order,
		Parse: func(_ string, raw json.RawMessage) (any, error) {
			var b bool
			if err := json.Unmarshal(raw, &b); err != nil {
				return nil, fmt.Errorf("%w: expected a boolean", ErrFilterValue)
			}
			return b, nil
		},
		GraphQL: func(op string, value any) map[string]any {
			b, _ := value.(bool)
			if op == "not" {
				b = !b
			}
			return map[string]any{cfg.Path: map[string]any{"equals": b}}
		},
		Label: func(l FilterLabel) string {
			if b, _ := l.Value.(bool); b {
				return Lower(l.Label) + " true"
			}
			return Lower(l.Label) + " false"
		},
		Control: func(string, any) FilterControl {
			return FilterControl{Input: InputBoolean}
		},
	}
	return c, nil
}
