package field

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrFilterValue is returned when a filter value has the wrong shape for
// its operator.
var ErrFilterValue = errors.New("field: invalid filter value")

// FilterType is one operator a field can be filtered by.
type FilterType struct {
	Label        string
	InitialValue any
}

// FilterLabel is the input of Filter.Label.
type FilterLabel struct {
	// Label is the label of the filter type, e.g. "Is exactly".
	Label string
	Type  string
	Value any
	// Lookup maps referenced ids to display labels for fields whose
	// filter values are ids of another list.
	Lookup map[string]string
}

// FilterControl describes the input the UI renders for a filter value.
type FilterControl struct {
	Input    string   `json:"input"`
	Options  []Option `json:"options,omitempty"`
	Multiple bool     `json:"multiple,omitempty"`
	RefList  string   `json:"ref_list,omitempty"`
	Required bool     `json:"required,omitempty"`
}

// Filter input kinds.
const (
	InputNone     = "none"
	InputText     = "text"
	InputNumber   = "number"
	InputBoolean  = "boolean"
	InputDateTime = "datetime"
	InputSelect   = "select"
	InputRelation = "relationship"
)

// Filter is the filter capability of a field.
type Filter struct {
	Types map[string]FilterType
	// Order is the display order of Types.
	Order []string

	// GraphQL returns the where fragment for one filter entry.
	GraphQL func(op string, value any) map[string]any
	// Label returns the chip label of one filter entry.
	Label func(l FilterLabel) string
	// Control describes the value input of op.
	Control func(op string, value any) FilterControl
	// Parse validates a JSON encoded filter value and returns it in the
	// canonical Go representation used by GraphQL and Label.
	Parse func(op string, raw json.RawMessage) (any, error)
}

// Has reports whether op is a declared filter type.
func (f *Filter) Has(op string) bool {
	if f == nil {
		return false
	}
	_, ok := f.Types[op]
	return ok
}

// Operators returns the declared operators longest first, so that suffix
// matching against URL parameter names picks "not_contains_i" over
// "contains_i".
func (f *Filter) Operators() []string {
	if f == nil {
		return nil
	}
	ops := make([]string, len(f.Order))
	copy(ops, f.Order)
	for i := 1; i < len(ops); i++ {
		for j := i; j > 0 && len(ops[j]) > len(ops[j-1]); j-- {
			ops[j], ops[j-1] = ops[j-1], ops[j]
		}
	}
	return ops
}

func typesOf(order []string, labels map[string]string, initial func(op string) any) (map[string]FilterType, []string) {
	types := make(map[string]FilterType, len(order))
	for _, op := range order {
		var iv any
		if initial != nil {
			iv = initial(op)
		}
		types[op] = FilterType{Label: labels[op], InitialValue: iv}
	}
	return types, order
}

func parseString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: expected a string", ErrFilterValue)
	}
	return s, nil
}

func parseNull(raw json.RawMessage) (any, error) {
	if strings.TrimSpace(string(raw)) != "null" {
		return nil, fmt.Errorf("%w: expected null", ErrFilterValue)
	}
	return nil, nil
}
