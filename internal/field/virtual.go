package field

import "encoding/json"

// VirtualMeta is the fieldMeta of virtual fields.
type VirtualMeta struct {
	// Query is the sub-selection appended to the field path.
	Query string `json:"query"`
}

// Virtual builds the controller of computed fields. They are read only:
// the value is whatever the server returned and nothing is ever written.
func Virtual(cfg Config) (*Controller, error) {
	var meta VirtualMeta
	if err := decodeMeta(cfg, &meta); err != nil {
		return nil, err
	}

	c := base(cfg)
	c.GraphQLSelection = cfg.Path + meta.Query
	c.DefaultValue = func() Value { return nil }
	c.Deserialize = func(item Item) Value { return item[cfg.Path] }
	c.Serialize = func(Value) map[string]any { return map[string]any{} }
	c.Validate = func(Value) bool { return true }
	c.Apply = func(prev Value, _ json.RawMessage) (Value, error) { return prev, nil }
	c.Meta["read_only"] = true
	return c, nil
}
