package field

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimestampMeta is the fieldMeta of timestamp fields. DefaultValue is an
// RFC 3339 string, {"kind": "now"} or null.
type TimestampMeta struct {
	DefaultValue json.RawMessage `json:"defaultValue"`
	UpdatedAt    bool            `json:"updatedAt"`
	IsRequired   bool            `json:"isRequired"`
}

var timestampOperators = map[string]string{
	"is":     "equals",
	"not":    "not",
	"before": "lt",
	"after":  "gt",
}

// LabelTimeFormat renders filter values in chip labels.
const LabelTimeFormat = "1/2/06, 3:04 PM"

// Timestamp builds the controller of date-time fields. Values are RFC 3339
// strings.
func Timestamp(cfg Config) (*Controller, error) {
	var meta TimestampMeta
	if err := decodeMeta(cfg, &meta); err != nil {
		return nil, err
	}
	var (
		defaultValue any
		defaultNow   bool
	)
	if d := strings.TrimSpace(string(meta.DefaultValue)); d != "" && d != "null" {
		var s string
		var now struct {
			Kind string `json:"kind"`
		}
		switch {
		case json.Unmarshal(meta.DefaultValue, &s) == nil:
			defaultValue = s
		case json.Unmarshal(meta.DefaultValue, &now) == nil && now.Kind == "now":
			defaultNow = true
		default:
			return nil, fmt.Errorf("field: %s: invalid timestamp default %s", describe(cfg), d)
		}
	}

	c := base(cfg)
	c.Required = meta.IsRequired
	c.Meta["updated_at"] = meta.UpdatedAt
	c.Meta["default_now"] = defaultNow
	c.DefaultValue = func() Value { return Scalar{Kind: KindCreate, Value: defaultValue} }
	c.Deserialize = func(item Item) Value {
		v, _ := item[cfg.Path].(string)
		if v == "" {
			return Scalar{Kind: KindUpdate}
		}
		return Scalar{Kind: KindUpdate, Value: v, Initial: v}
	}
	c.Serialize = func(v Value) map[string]any {
		if s, _ := scalarOf(v).Value.(string); s != "" {
			return map[string]any{cfg.Path: s}
		}
		return map[string]any{cfg.Path: nil}
	}
	c.Problem = func(v Value) string {
		s := scalarOf(v)
		str, _ := s.Value.(string)
		if str == "" {
			if s.Kind == KindUpdate && s.Initial == nil {
				return ""
			}
			if s.Kind == KindCreate && (defaultNow || meta.UpdatedAt) {
				return ""
			}
			if meta.IsRequired {
				return cfg.Label + " is required"
			}
			return ""
		}
		if _, err := time.Parse(time.RFC3339, str); err != nil {
			return cfg.Label + " must be a valid date and time"
		}
		return ""
	}
	c.Validate = func(v Value) bool { return c.Problem(v) == "" }
	c.Apply = func(prev Value, input json.RawMessage) (Value, error) {
		raw, err := decodeInput(input)
		if err != nil {
			return prev, err
		}
		switch t := raw.(type) {
		case nil:
			return applyScalar(prev, nil), nil
		case string:
			if t == "" {
				return applyScalar(prev, nil), nil
			}
			if ts, err := time.Parse(time.RFC3339, t); err == nil {
				return applyScalar(prev, ts.UTC().Format(time.RFC3339Nano)), nil
			}
			return applyScalar(prev, t), nil
		default:
			return prev, fmt.Errorf("field: %s expects a date and time", cfg.Path)
		}
	}

	types, order := typesOf([]string{"is", "not", "before", "after"},
		map[string]string{
			"is":     "Is exactly",
			"not":    "Is not exactly",
			"before": "Is before",
			"after":  "Is after",
		},
		nil,
	)
	c.Filter = &Filter{
		Types: types,
		Order: order,
		Parse: func(_ string, raw json.RawMessage) (any, error) {
			s, err := parseString(raw)
			if err != nil {
				return nil, err
			}
			if _, err := time.Parse(time.RFC3339, s); err != nil {
				return nil, fmt.Errorf("%w: expected an RFC 3339 timestamp", ErrFilterValue)
			}
			return s, nil
		},
		GraphQL: func(op string, value any) map[string]any {
			if op == "not" {
				value = map[string]any{"equals": value}
			}
			return map[string]any{cfg.Path: map[string]any{timestampOperators[op]: value}}
		},
		Label: func(l FilterLabel) string {
			s := Stringify(l.Value)
			if ts, err := time.Parse(time.RFC3339, s); err == nil {
				s = ts.UTC().Format(LabelTimeFormat)
			}
			return Lower(l.Label) + " " + s
		},
		Control: func(string, any) FilterControl {
			return FilterControl{Input: InputDateTime, Required: true}
		},
	}
	return c, nil
}
