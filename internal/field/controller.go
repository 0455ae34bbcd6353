// Package field implements the field controller protocol: a uniform record
// of pure functions that the list and item engines use to select, read,
// edit, validate, serialize and filter the fields of any list without
// knowing their types.
package field

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Item is one item object as decoded from a GraphQL response.
type Item map[string]any

// ID returns the item id as a string. Numeric ids are formatted without a
// fraction.
func (it Item) ID() string {
	return Stringify(it["id"])
}

// Value is the edit value of one field of one item. Its concrete type is
// owned by the controller that produced it.
type Value any

// Edit value kinds.
const (
	KindCreate = "create"
	KindUpdate = "update"
)

// Scalar is the edit value of single valued fields. Initial is the value
// read from the server and is only meaningful for KindUpdate.
type Scalar struct {
	Kind    string `json:"kind"`
	Value   any    `json:"value"`
	Initial any    `json:"initial,omitempty"`
}

// Option is a selectable value.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Config is the input of a controller factory.
type Config struct {
	ListKey     string
	Path        string
	Label       string
	Description string
	FieldMeta   json.RawMessage
	CustomViews map[string]any
}

// Factory builds the controller of one field.
type Factory func(cfg Config) (*Controller, error)

// Controller is the capability record of one field. It is created once per
// field when admin metadata is built and holds no per-item state.
type Controller struct {
	Path        string
	Label       string
	Description string

	// GraphQLSelection is the sub-selection requested for the field in
	// item and list queries.
	GraphQLSelection string

	// DefaultValue seeds create forms. It returns a fresh value on every
	// call so callers may keep it.
	DefaultValue func() Value

	// Deserialize turns a fetched item into an edit value. Missing or
	// null members produce the empty value of the field.
	Deserialize func(item Item) Value

	// Serialize turns an edit value into the GraphQL input fragment of
	// the field.
	Serialize func(v Value) map[string]any

	// Validate reports whether v may be submitted.
	Validate func(v Value) bool

	// Problem returns the validation message for v, empty when v is valid.
	Problem func(v Value) string

	// Apply turns raw UI input into the next edit value. Server state
	// carried by prev (the initial value, the item id) is preserved.
	Apply func(prev Value, input json.RawMessage) (Value, error)

	// Required reports whether the form should mark the field as required.
	Required bool

	Filter     *Filter
	References *Reference
	Options    []Option
	Meta       map[string]any
}

// Valid runs Validate, treating a missing validator as always valid.
func (c *Controller) Valid(v Value) bool {
	if c.Validate == nil {
		return true
	}
	return c.Validate(v)
}

// Message returns the validation message of v.
func (c *Controller) Message(v Value) string {
	if c.Problem != nil {
		if msg := c.Problem(v); msg != "" {
			return msg
		}
	}
	if !c.Valid(v) {
		return c.Label + " is invalid"
	}
	return ""
}

// Reference describes a field pointing at items of another list.
type Reference struct {
	ListKey      string   `json:"ref_list_key"`
	FieldKey     string   `json:"ref_field_key,omitempty"`
	LabelField   string   `json:"ref_label_field"`
	SearchFields []string `json:"ref_search_fields,omitempty"`
	Many         bool     `json:"many"`
	HideCreate   bool     `json:"hide_create"`
	Display      string   `json:"display_mode"`
}

// Ref is one referenced item.
type Ref struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Stringify formats a JSON scalar for display and ids.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

var lower = cases.Lower(language.Und)

// Lower lowercases a label for use inside a sentence.
func Lower(s string) string {
	return lower.String(s)
}

func describe(cfg Config) string {
	return cfg.ListKey + "." + cfg.Path
}

func decodeMeta(cfg Config, dst any) error {
	if len(cfg.FieldMeta) == 0 || string(cfg.FieldMeta) == "null" {
		return nil
	}
	if err := json.Unmarshal(cfg.FieldMeta, dst); err != nil {
		return fmt.Errorf("field: %s: invalid fieldMeta: %w", describe(cfg), err)
	}
	return nil
}

func base(cfg Config) *Controller {
	return &Controller{
		Path:             cfg.Path,
		Label:            cfg.Label,
		Description:      cfg.Description,
		GraphQLSelection: cfg.Path,
		Meta:             map[string]any{},
	}
}

// decodeInput unmarshals UI input with numbers kept as json.Number.
func decodeInput(input json.RawMessage) (any, error) {
	if len(input) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(string(input)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("field: invalid input: %w", err)
	}
	return v, nil
}

// scalarOf returns v as a Scalar, or a create value when v has another type.
func scalarOf(v Value) Scalar {
	if s, ok := v.(Scalar); ok {
		return s
	}
	if s, ok := v.(*Scalar); ok && s != nil {
		return *s
	}
	return Scalar{Kind: KindCreate}
}

func applyScalar(prev Value, next any) Scalar {
	s := scalarOf(prev)
	s.Value = next
	return s
}
