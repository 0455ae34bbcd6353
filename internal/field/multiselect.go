package field

import (
	"encoding/json"
	"fmt"
)

// MultiselectMeta is the fieldMeta of multi select fields.
type MultiselectMeta struct {
	OptionsMeta
	DefaultValue []any `json:"defaultValue"`
}

// Multiselect builds the controller of multi select fields. The edit value
// is the ordered []Option of selected options.
func Multiselect(cfg Config) (*Controller, error) {
	var meta MultiselectMeta
	if err := decodeMeta(cfg, &meta); err != nil {
		return nil, err
	}
	set, err := newOptionSet(cfg, meta.OptionsMeta)
	if err != nil {
		return nil, err
	}
	selected := func(values []any) []Option {
		out := make([]Option, 0, len(values))
		for _, v := range values {
			if o, ok := set.lookup(v); ok {
				out = append(out, o)
			}
		}
		return out
	}

	c := base(cfg)
	c.Options = set.options
	c.Meta["display_mode"] = meta.DisplayMode
	c.DefaultValue = func() Value { return selected(meta.DefaultValue) }
	c.Deserialize = func(item Item) Value {
		values, _ := item[cfg.Path].([]any)
		return selected(values)
	}
	c.Serialize = func(v Value) map[string]any {
		opts, _ := v.([]Option)
		wire := make([]any, 0, len(opts))
		for _, o := range opts {
			wire = append(wire, set.wire(o.Value))
		}
		return map[string]any{cfg.Path: wire}
	}
	c.Validate = func(Value) bool { return true }
	c.Apply = func(prev Value, input json.RawMessage) (Value, error) {
		var values []any
		if err := json.Unmarshal(input, &values); err != nil {
			return prev, fmt.Errorf("field: %s expects an array of option values", cfg.Path)
		}
		out := selected(values)
		if len(out) != len(values) {
			return prev, fmt.Errorf("field: %s: unknown option", cfg.Path)
		}
		return out, nil
	}
	return c, nil
}
