package field

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SelectMeta is the fieldMeta of single select fields.
type SelectMeta struct {
	OptionsMeta
	IsRequired   bool            `json:"isRequired"`
	DefaultValue json.RawMessage `json:"defaultValue"`
}

// Choice is the edit value of a single select field.
type Choice struct {
	Kind    string  `json:"kind"`
	Value   *Option `json:"value"`
	Initial *Option `json:"initial,omitempty"`
}

// Select builds the controller of single select fields.
func Select(cfg Config) (*Controller, error) {
	var meta SelectMeta
	if err := decodeMeta(cfg, &meta); err != nil {
		return nil, err
	}
	set, err := newOptionSet(cfg, meta.OptionsMeta)
	if err != nil {
		return nil, err
	}
	var defaultOption *Option
	if len(meta.DefaultValue) > 0 {
		var v any
		if err := json.Unmarshal(meta.DefaultValue, &v); err == nil {
			if o, ok := set.lookup(v); ok {
				defaultOption = &o
			}
		}
	}
	choiceOf := func(v Value) Choice {
		if ch, ok := v.(Choice); ok {
			return ch
		}
		return Choice{Kind: KindCreate}
	}

	c := base(cfg)
	c.Required = meta.IsRequired
	c.Options = set.options
	c.Meta["display_mode"] = meta.DisplayMode
	c.DefaultValue = func() Value {
		ch := Choice{Kind: KindCreate}
		if defaultOption != nil {
			o := *defaultOption
			ch.Value = &o
		}
		return ch
	}
	c.Deserialize = func(item Item) Value {
		ch := Choice{Kind: KindUpdate}
		if o, ok := set.lookup(item[cfg.Path]); ok {
			v, i := o, o
			ch.Value, ch.Initial = &v, &i
		}
		return ch
	}
	c.Serialize = func(v Value) map[string]any {
		ch := choiceOf(v)
		if ch.Value == nil {
			return map[string]any{cfg.Path: nil}
		}
		return map[string]any{cfg.Path: set.wire(ch.Value.Value)}
	}
	c.Problem = func(v Value) string {
		ch := choiceOf(v)
		if ch.Value != nil || !meta.IsRequired {
			return ""
		}
		if ch.Kind == KindUpdate && ch.Initial == nil {
			return ""
		}
		return cfg.Label + " is required"
	}
	c.Validate = func(v Value) bool { return c.Problem(v) == "" }
	c.Apply = func(prev Value, input json.RawMessage) (Value, error) {
		raw, err := decodeInput(input)
		if err != nil {
			return prev, err
		}
		ch := choiceOf(prev)
		if raw == nil {
			ch.Value = nil
			return ch, nil
		}
		o, ok := set.lookup(raw)
		if !ok {
			return prev, fmt.Errorf("field: %s: unknown option %q", cfg.Path, Stringify(raw))
		}
		ch.Value = &o
		return ch, nil
	}

	types, order := typesOf([]string{"matches", "not_matches"},
		map[string]string{"matches": "Matches", "not_matches": "Does not match"},
		func(string) any { return []string{} },
	)
	labels := set.labels()
	c.Filter = &Filter{
		Types: types,
		Order: order,
		Parse: func(_ string, raw json.RawMessage) (any, error) {
			var values []string
			if err := json.Unmarshal(raw, &values); err != nil {
				return nil, fmt.Errorf("%w: expected an array of option values", ErrFilterValue)
			}
			for _, v := range values {
				if _, ok := set.byValue[v]; !ok {
					return nil, fmt.Errorf("%w: unknown option %q", ErrFilterValue, v)
				}
			}
			if values == nil {
				values = []string{}
			}
			return values, nil
		},
		GraphQL: func(op string, value any) map[string]any {
			values, _ := value.([]string)
			wire := make([]any, 0, len(values))
			for _, v := range values {
				wire = append(wire, set.wire(v))
			}
			key := "in"
			if op == "not_matches" {
				key = "notIn"
			}
			return map[string]any{cfg.Path: map[string]any{key: wire}}
		},
		Label: func(l FilterLabel) string {
			values, _ := l.Value.([]string)
			not := l.Type == "not_matches"
			switch len(values) {
			case 0:
				if not {
					return "is set"
				}
				return "has no value"
			case 1:
				if not {
					return "is not " + labels[values[0]]
				}
				return "is " + labels[values[0]]
			}
			names := make([]string, len(values))
			for i, v := range values {
				names[i] = labels[v]
			}
			if not {
				return "is not in [" + strings.Join(names, ", ") + "]"
			}
			return "is in [" + strings.Join(names, ", ") + "]"
		},
		Control: func(string, any) FilterControl {
			return FilterControl{Input: InputSelect, Options: set.options, Multiple: true}
		},
	}
	return c, nil
}
