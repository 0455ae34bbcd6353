package field

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// TextMeta is the fieldMeta of text fields.
type TextMeta struct {
	DisplayMode              string         `json:"displayMode"`
	ShouldUseModeInsensitive bool           `json:"shouldUseModeInsensitive"`
	IsNullable               bool           `json:"isNullable"`
	Validation               TextValidation `json:"validation"`
	DefaultValue             *string        `json:"defaultValue"`
}

// TextValidation holds the server declared text constraints.
type TextValidation struct {
	IsRequired bool `json:"isRequired"`
	Match      *struct {
		Regex struct {
			Source string `json:"source"`
			Flags  string `json:"flags"`
		} `json:"regex"`
		Explanation string `json:"explanation"`
	} `json:"match"`
	Length struct {
		Min *int `json:"min"`
		Max *int `json:"max"`
	} `json:"length"`
}

var textOperators = map[string]string{
	"contains_i":        "contains",
	"not_contains_i":    "contains",
	"is_i":              "equals",
	"not_i":             "equals",
	"starts_with_i":     "startsWith",
	"not_starts_with_i": "startsWith",
	"ends_with_i":       "endsWith",
	"not_ends_with_i":   "endsWith",
}

// Text builds the controller of text fields.
func Text(cfg Config) (*Controller, error) {
	var meta TextMeta
	if err := decodeMeta(cfg, &meta); err != nil {
		return nil, err
	}
	var match *regexp.Regexp
	if m := meta.Validation.Match; m != nil {
		expr := m.Regex.Source
		if strings.Contains(m.Regex.Flags, "i") {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("field: %s: invalid match pattern: %w", describe(cfg), err)
		}
		match = re
	}

	c := base(cfg)
	c.Required = meta.Validation.IsRequired
	c.Meta["display_mode"] = meta.DisplayMode
	c.DefaultValue = func() Value {
		if meta.DefaultValue == nil {
			if meta.IsNullable {
				return Scalar{Kind: KindCreate}
			}
			return Scalar{Kind: KindCreate, Value: ""}
		}
		return Scalar{Kind: KindCreate, Value: *meta.DefaultValue}
	}
	c.Deserialize = func(item Item) Value {
		v, _ := item[cfg.Path].(string)
		if item[cfg.Path] == nil {
			return Scalar{Kind: KindUpdate}
		}
		return Scalar{Kind: KindUpdate, Value: v, Initial: v}
	}
	c.Serialize = func(v Value) map[string]any {
		return map[string]any{cfg.Path: scalarOf(v).Value}
	}
	c.Problem = func(v Value) string {
		s := scalarOf(v)
		str, ok := s.Value.(string)
		if !ok {
			if s.Kind == KindUpdate && s.Initial == nil {
				return ""
			}
			if meta.Validation.IsRequired {
				return cfg.Label + " is required"
			}
			return ""
		}
		n := utf8.RuneCountInString(str)
		if min := meta.Validation.Length.Min; min != nil && n < *min {
			if *min == 1 {
				return cfg.Label + " must not be empty"
			}
			return fmt.Sprintf("%s must be at least %d characters long", cfg.Label, *min)
		}
		if meta.Validation.IsRequired && n == 0 {
			return cfg.Label + " must not be empty"
		}
		if max := meta.Validation.Length.Max; max != nil && n > *max {
			return fmt.Sprintf("%s must be no longer than %d characters", cfg.Label, *max)
		}
		if match != nil && !match.MatchString(str) {
			if meta.Validation.Match.Explanation != "" {
				return meta.Validation.Match.Explanation
			}
			return fmt.Sprintf("%s must match %s", cfg.Label, meta.Validation.Match.Regex.Source)
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
			return applyScalar(prev, t), nil
		default:
			return prev, fmt.Errorf("field: %s expects a string", cfg.Path)
		}
	}

	order := []string{"contains_i", "not_contains_i", "is_i", "not_i", "starts_with_i", "not_starts_with_i", "ends_with_i", "not_ends_with_i"}
	types, order := typesOf(order, map[string]string{
		"contains_i":        "Contains",
		"not_contains_i":    "Does not contain",
		"is_i":              "Is exactly",
		"not_i":             "Is not exactly",
		"starts_with_i":     "Starts with",
		"not_starts_with_i": "Does not start with",
		"ends_with_i":       "Ends with",
		"not_ends_with_i":   "Does not end with",
	}, func(string) any { return "" })
	c.Filter = &Filter{
		Types: types,
		Order: order,
		Parse: func(_ string, raw json.RawMessage) (any, error) {
			return parseString(raw)
		},
		GraphQL: func(op string, value any) map[string]any {
			inner := map[string]any{textOperators[op]: Stringify(value)}
			if meta.ShouldUseModeInsensitive {
				inner["mode"] = "insensitive"
			}
			if strings.HasPrefix(op, "not_") {
				return map[string]any{cfg.Path: map[string]any{"not": inner}}
			}
			return map[string]any{cfg.Path: inner}
		},
		Label: func(l FilterLabel) string {
			return fmt.Sprintf("%s: %q", Lower(l.Label), Stringify(l.Value))
		},
		Control: func(string, any) FilterControl {
			return FilterControl{Input: InputText}
		},
	}
	return c, nil
}
