package field

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DecimalMeta is the fieldMeta of decimal fields.
type DecimalMeta struct {
	Precision    int32   `json:"precision"`
	Scale        int32   `json:"scale"`
	DefaultValue *string `json:"defaultValue"`
	Validation   struct {
		IsRequired bool    `json:"isRequired"`
		Min        *string `json:"min"`
		Max        *string `json:"max"`
	} `json:"validation"`
}

// Decimal builds the controller of fixed point fields. Values travel as
// decimal strings so no precision is lost on the way to the server.
func Decimal(cfg Config) (*Controller, error) {
	var meta DecimalMeta
	if err := decodeMeta(cfg, &meta); err != nil {
		return nil, err
	}
	bound := func(s *string) (*decimal.Decimal, error) {
		if s == nil {
			return nil, nil
		}
		d, err := decimal.NewFromString(*s)
		if err != nil {
			return nil, fmt.Errorf("field: %s: invalid decimal bound %q: %w", describe(cfg), *s, err)
		}
		return &d, nil
	}
	min, err := bound(meta.Validation.Min)
	if err != nil {
		return nil, err
	}
	max, err := bound(meta.Validation.Max)
	if err != nil {
		return nil, err
	}

	c := base(cfg)
	c.Required = meta.Validation.IsRequired
	c.Meta["precision"] = meta.Precision
	c.Meta["scale"] = meta.Scale
	c.DefaultValue = func() Value {
		if meta.DefaultValue == nil {
			return Scalar{Kind: KindCreate}
		}
		return Scalar{Kind: KindCreate, Value: *meta.DefaultValue}
	}
	c.Deserialize = func(item Item) Value {
		d, ok := toDecimal(item[cfg.Path])
		if !ok {
			return Scalar{Kind: KindUpdate}
		}
		s := d.StringFixed(meta.Scale)
		return Scalar{Kind: KindUpdate, Value: s, Initial: s}
	}
	c.Serialize = func(v Value) map[string]any {
		return map[string]any{cfg.Path: scalarOf(v).Value}
	}
	c.Problem = func(v Value) string {
		s := scalarOf(v)
		if s.Value == nil {
			if s.Kind == KindUpdate && s.Initial == nil {
				return ""
			}
			if meta.Validation.IsRequired {
				return cfg.Label + " is required"
			}
			return ""
		}
		d, ok := toDecimal(s.Value)
		if !ok {
			return cfg.Label + " must be a decimal number"
		}
		if meta.Scale > 0 && -d.Exponent() > meta.Scale && !d.Equal(d.Truncate(meta.Scale)) {
			return fmt.Sprintf("%s must have at most %d decimal places", cfg.Label, meta.Scale)
		}
		if meta.Precision > 0 && digits(d.Truncate(0)) > int(meta.Precision-meta.Scale) {
			return fmt.Sprintf("%s must have at most %d digits before the decimal point", cfg.Label, meta.Precision-meta.Scale)
		}
		if min != nil && d.LessThan(*min) {
			return fmt.Sprintf("%s must be greater than or equal to %s", cfg.Label, min.String())
		}
		if max != nil && d.GreaterThan(*max) {
			return fmt.Sprintf("%s must be less than or equal to %s", cfg.Label, max.String())
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
			return applyScalar(prev, t.String()), nil
		case string:
			if strings.TrimSpace(t) == "" {
				return applyScalar(prev, nil), nil
			}
			return applyScalar(prev, strings.TrimSpace(t)), nil
		default:
			return prev, fmt.Errorf("field: %s expects a decimal number", cfg.Path)
		}
	}

	types, order := typesOf(
		[]string{"equals", "not", "gt", "lt", "gte", "lte"},
		map[string]string{
			"equals": "Is exactly",
			"not":    "Is not exactly",
			"gt":     "Is greater than",
			"lt":     "Is less than",
			"gte":    "Is greater than or equal to",
			"lte":    "Is less than or equal to",
		},
		nil,
	)
	c.Filter = &Filter{
		Types: types,
		Order: order,
		Parse: func(_ string, raw json.RawMessage) (any, error) {
			v, err := decodeInput(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrFilterValue, err)
			}
			d, ok := toDecimal(v)
			if !ok {
				return nil, fmt.Errorf("%w: expected a decimal number", ErrFilterValue)
			}
			return d.String(), nil
		},
		GraphQL: func(op string, value any) map[string]any {
			switch op {
			case "equals":
				return map[string]any{cfg.Path: map[string]any{"equals": value}}
			case "not":
				return map[string]any{cfg.Path: map[string]any{"not": map[string]any{"equals": value}}}
			default:
				return map[string]any{cfg.Path: map[string]any{op: value}}
			}
		},
		Label: func(l FilterLabel) string {
			return integerOperators[l.Type] + " " + Stringify(l.Value)
		},
		Control: func(string, any) FilterControl {
			return FilterControl{Input: InputNumber, Required: true}
		},
	}
	return c, nil
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		return d, err == nil
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(t), true
	case int64:
		return decimal.NewFromInt(t), true
	default:
		return decimal.Decimal{}, false
	}
}

// digits counts the digits of the integer part of d.
func digits(d decimal.Decimal) int {
	s := strings.TrimPrefix(d.Abs().String(), "0")
	return len(s)
}
