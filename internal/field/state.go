package field

import (
	"reflect"
	"sort"
)

// State kinds.
const (
	StateValue = "value"
	StateError = "error"
)

// State is the item level state of one field: either an edit value or the
// errors that prevented reading it.
type State struct {
	Kind   string   `json:"kind"`
	Value  Value    `json:"value,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// Readable reports whether the field holds a value.
func (s State) Readable() bool {
	return s.Kind != StateError
}

// Values maps field paths to their state.
type Values map[string]State

// Serialized returns the merged GraphQL input of the readable fields in
// paths, keyed by field path.
func Serialized(controllers map[string]*Controller, values Values, paths []string) map[string]map[string]any {
	out := make(map[string]map[string]any, len(paths))
	for _, p := range paths {
		c, ok := controllers[p]
		st, has := values[p]
		if !ok || !has || !st.Readable() {
			continue
		}
		out[p] = c.Serialize(st.Value)
	}
	return out
}

// Changed returns the paths, sorted, whose serialized current value differs
// from the serialized initial value.
func Changed(initial, current map[string]map[string]any) []string {
	var changed []string
	for p, cur := range current {
		if !reflect.DeepEqual(initial[p], cur) {
			changed = append(changed, p)
		}
	}
	sort.Strings(changed)
	return changed
}

// Merge flattens the serialized fragments of paths into one input object.
func Merge(serialized map[string]map[string]any, paths []string) map[string]any {
	data := map[string]any{}
	for _, p := range paths {
		for k, v := range serialized[p] {
			data[k] = v
		}
	}
	return data
}
