package field

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// OptionsMeta is the part of select style fieldMeta describing options.
type OptionsMeta struct {
	Options []struct {
		Label string          `json:"label"`
		Value json.RawMessage `json:"value"`
	} `json:"options"`
	// Type is the GraphQL representation of option values: string,
	// integer or enum.
	Type        string `json:"type"`
	DisplayMode string `json:"displayMode"`
}

// optionSet holds options with string values, the form they take in edit
// values and URLs, and converts back to the GraphQL type on the way out.
type optionSet struct {
	options []Option
	byValue map[string]Option
	integer bool
}

func newOptionSet(cfg Config, meta OptionsMeta) (*optionSet, error) {
	set := &optionSet{byValue: map[string]Option{}, integer: meta.Type == "integer"}
	for _, o := range meta.Options {
		var v any
		if err := json.Unmarshal(o.Value, &v); err != nil {
			return nil, fmt.Errorf("field: %s: invalid option value: %w", describe(cfg), err)
		}
		opt := Option{Label: o.Label, Value: Stringify(v)}
		set.options = append(set.options, opt)
		set.byValue[opt.Value] = opt
	}
	return set, nil
}

func (s *optionSet) lookup(v any) (Option, bool) {
	if v == nil {
		return Option{}, false
	}
	o, ok := s.byValue[Stringify(v)]
	return o, ok
}

// wire converts an option value to its GraphQL representation.
func (s *optionSet) wire(value string) any {
	if s.integer {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return value
}

func (s *optionSet) labels() map[string]string {
	m := make(map[string]string, len(s.options))
	for _, o := range s.options {
		m[o.Value] = o.Label
	}
	return m
}
