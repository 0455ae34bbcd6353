package field

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// IntegerMeta is the fieldMeta of integer fields. DefaultValue is a number,
// null or the string "autoincrement".
type IntegerMeta struct {
	Validation struct {
		IsRequired bool   `json:"isRequired"`
		Min        *int64 `json:"min"`
		Max        *int64 `json:"max"`
	} `json:"validation"`
	DefaultValue json.RawMessage `json:"defaultValue"`
}

var integerOperators = map[string]string{
	"equals": "=",
	"not":    "≠",
	"gt":     ">",
	"lt":     "<",
	"gte":    "≥",
	"lte":    "≤",
}

// Integer builds the controller of integer fields. The edit value holds an
// int64, nil, or the raw text the user typed when it is not a whole number.
func Integer(cfg Config) (*Controller, error) {
	var meta IntegerMeta
	if err := decodeMeta(cfg, &meta); err != nil {
		return nil, err
	}
	var (
		autoincrement bool
		defaultValue  any
	)
	if d := strings.TrimSpace(string(meta.DefaultValue)); d != "" && d != "null" {
		if d == `"autoincrement"` {
			autoincrement = true
		} else if n, ok := toInt64(json.Number(d)); ok {
			defaultValue = n
		} else {
			return nil, fmt.Errorf("field: %s: invalid integer default %s", describe(cfg), d)
		}
	}

	c := base(cfg)
	c.Required = meta.Validation.IsRequired
	c.Meta["autoincrement"] = autoincrement
	c.DefaultValue = func() Value { return Scalar{Kind: KindCreate, Value: defaultValue} }
	c.Deserialize = func(item Item) Value {
		n, ok := toInt64(item[cfg.Path])
		if !ok {
			return Scalar{Kind: KindUpdate}
		}
		return Scalar{Kind: KindUpdate, Value: n, Initial: n}
	}
	c.Serialize = func(v Value) map[string]any {
		return map[string]any{cfg.Path: scalarOf(v).Value}
	}
	c.Problem = func(v Value) string {
		s := scalarOf(v)
		if _, ok := s.Value.(string); ok {
			return cfg.Label + " must be a whole number"
		}
		if s.Kind == KindUpdate && s.Initial == nil && s.Value == nil {
			return ""
		}
		if s.Kind == KindCreate && s.Value == nil && autoincrement {
			return ""
		}
		if meta.Validation.IsRequired && s.Value == nil {
			return cfg.Label + " is required"
		}
		if n, ok := s.Value.(int64); ok {
			if min := meta.Validation.Min; min != nil && n < *min {
				return fmt.Sprintf("%s must be greater than or equal to %d", cfg.Label, *min)
			}
			if max := meta.Validation.Max; max != nil && n > *max {
				return fmt.Sprintf("%s must be less than or equal to %d", cfg.Label, *max)
			}
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
		case json.Number:
			if n, ok := toInt64(t); ok {
				return applyScalar(prev, n), nil
			}
			return applyScalar(prev, t.String()), nil
		case string:
			text := strings.TrimSpace(t)
			if text == "" {
				return applyScalar(prev, nil), nil
			}
			if n, err := strconv.ParseInt(text, 10, 64); err == nil {
				return applyScalar(prev, n), nil
			}
			return applyScalar(prev, t), nil
		default:
			return prev, fmt.Errorf("field: %s expects a whole number", cfg.Path)
		}
	}

	types, order := typesOf(
		[]string{"equals", "not", "gt", "lt", "gte", "lte", "empty", "not_empty"},
		map[string]string{
			"equals":    "Is exactly",
			"not":       "Is not exactly",
			"gt":        "Is greater than",
			"lt":        "Is less than",
			"gte":       "Is greater than or equal to",
			"lte":       "Is less than or equal to",
			"empty":     "Is empty",
			"not_empty": "Is not empty",
		},
		nil,
	)
	c.Filter = &Filter{
		Types: types,
		Order: order,
		Parse: func(op string, raw json.RawMessage) (any, error) {
			if op == "empty" || op == "not_empty" {
				return parseNull(raw)
			}
			v, err := decodeInput(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrFilterValue, err)
			}
			n, ok := toInt64(v)
			if !ok {
				return nil, fmt.Errorf("%w: expected a whole number", ErrFilterValue)
			}
			return n, nil
		},
		GraphQL: func(op string, value any) map[string]any {
			switch op {
			case "empty":
				return map[string]any{cfg.Path: map[string]any{"equals": nil}}
			case "not_empty":
				return map[string]any{cfg.Path: map[string]any{"not": map[string]any{"equals": nil}}}
			case "not":
				return map[string]any{cfg.Path: map[string]any{"not": map[string]any{"equals": value}}}
			default:
				return map[string]any{cfg.Path: map[string]any{op: value}}
			}
		},
		Label: func(l FilterLabel) string {
			if l.Type == "empty" || l.Type == "not_empty" {
				return Lower(l.Label)
			}
			return integerOperators[l.Type] + " " + Stringify(l.Value)
		},
		Control: func(op string, _ any) FilterControl {
			if op == "empty" || op == "not_empty" {
				return FilterControl{Input: InputNone}
			}
			return FilterControl{Input: InputNumber, Required: true}
		},
	}
	return c, nil
}

// toInt64 converts a decoded JSON number to int64. Fractions and values
// outside the int64 range are rejected.
func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		if t != math.Trunc(t) || t > math.MaxInt64 || t < math.MinInt64 {
			return 0, false
		}
		return int64(t), true
	case json.Number:
		n, err := strconv.ParseInt(t.String(), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
