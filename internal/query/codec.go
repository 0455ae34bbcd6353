// Package query translates list page URL state (filters, sort, columns,
// search and pagination) to GraphQL arguments and back.
package query

import (
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/pitabwire/adminmeta/internal/adminmeta"
	"github.com/pitabwire/adminmeta/model"
)

// URL parameter names.
const (
	ParamSortBy   = "sortBy"
	ParamFields   = "fields"
	ParamSearch   = "search"
	ParamPage     = "page"
	ParamPageSize = "pageSize"

	filterPrefix = "!"
)

// Reasons a URL parameter is dropped.
const (
	ReasonUnknownFilter  = "unknown_filter"
	ReasonMalformedValue = "malformed_value"
	ReasonInvalidSort    = "invalid_sort"
	ReasonInvalidPage    = "invalid_page"
)

// Sort directions.
const (
	Asc  = "ASC"
	Desc = "DESC"
)

// Entry is one active filter.
type Entry struct {
	Field    string
	Operator string
	Value    any
}

// Param returns the URL parameter name of e.
func (e Entry) Param() string {
	return filterPrefix + e.Field + "_" + e.Operator
}

// Sort is a single field ordering.
type Sort struct {
	Field     string
	Direction string
}

// Dropped describes a URL parameter that was ignored.
type Dropped struct {
	Param  string
	Reason string
}

// State is the decoded list page URL state.
type State struct {
	Filters  []Entry
	Sort     *Sort
	Columns  []string
	Search   string
	Page     int
	PageSize int
}

// IsFilterParam reports whether name is a filter parameter.
func IsFilterParam(name string) bool {
	return strings.HasPrefix(name, filterPrefix)
}

// Decode reads the full list page state from params. Parameters that do not
// fit the list are dropped and reported.
func Decode(list *adminmeta.List, params url.Values) (State, []Dropped) {
	filters, dropped := DecodeFilters(list, params)
	st := State{
		Filters: filters,
		Columns: Columns(list, params.Get(ParamFields)),
		Search:  params.Get(ParamSearch),
	}

	s, ok := DecodeSort(list, params)
	if !ok {
		dropped = append(dropped, Dropped{Param: ParamSortBy, Reason: ReasonInvalidSort})
	}
	st.Sort = s

	st.Page = 1
	if v := params.Get(ParamPage); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			st.Page = n
		} else {
			dropped = append(dropped, Dropped{Param: ParamPage, Reason: ReasonInvalidPage})
		}
	}
	st.PageSize = list.PageSize
	if v := params.Get(ParamPageSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= MaxPageSize {
			st.PageSize = n
		} else {
			dropped = append(dropped, Dropped{Param: ParamPageSize, Reason: ReasonInvalidPage})
		}
	}
	// A page past the last representable skip is past the end of any list;
	// the engine clamps it to the last page once the count is known.
	st.Page = min(st.Page, MaxPage(st.PageSize))
	return st, dropped
}

// Encode writes s back to URL parameters. Zero values are omitted.
func (s State) Encode() url.Values {
	v := url.Values{}
	for _, e := range s.Filters {
		name, value, err := EncodeFilter(e)
		if err != nil {
			continue
		}
		v.Add(name, value)
	}
	if s.Sort != nil {
		v.Set(ParamSortBy, EncodeSort(*s.Sort))
	}
	if len(s.Columns) > 0 {
		v.Set(ParamFields, strings.Join(s.Columns, ","))
	}
	if s.Search != "" {
		v.Set(ParamSearch, s.Search)
	}
	if s.Page > 1 {
		v.Set(ParamPage, strconv.Itoa(s.Page))
	}
	if s.PageSize > 0 {
		v.Set(ParamPageSize, strconv.Itoa(s.PageSize))
	}
	return v
}

// EncodeFilter returns the URL parameter of e.
func EncodeFilter(e Entry) (name, value string, err error) {
	b, err := json.Marshal(e.Value)
	if err != nil {
		return "", "", err
	}
	return e.Param(), string(b), nil
}

// DecodeFilters returns the filter entries in params ordered by field and
// operator declaration order. Every value of a repeated parameter becomes
// its own entry.
func DecodeFilters(list *adminmeta.List, params url.Values) ([]Entry, []Dropped) {
	type match struct{ field, op string }
	names := map[string]match{}
	position := map[string]int{}
	i := 0
	for _, f := range list.OrderedFields() {
		if !f.IsFilterable {
			continue
		}
		for _, op := range f.Controller.Filter.Order {
			e := Entry{Field: f.Path, Operator: op}
			names[e.Param()] = match{f.Path, op}
			position[e.Param()] = i
			i++
		}
	}

	var (
		entries []Entry
		dropped []Dropped
		keys    []string
	)
	for k := range params {
		if IsFilterParam(k) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(a, b int) bool {
		pa, oka := position[keys[a]]
		pb, okb := position[keys[b]]
		if oka != okb {
			return oka
		}
		if pa != pb {
			return pa < pb
		}
		return keys[a] < keys[b]
	})

	for _, k := range keys {
		m, ok := names[k]
		if !ok {
			dropped = append(dropped, Dropped{Param: k, Reason: ReasonUnknownFilter})
			continue
		}
		filter := list.Fields[m.field].Controller.Filter
		for _, raw := range params[k] {
			if !json.Valid([]byte(raw)) {
				dropped = append(dropped, Dropped{Param: k, Reason: ReasonMalformedValue})
				continue
			}
			v, err := filter.Parse(m.op, json.RawMessage(raw))
			if err != nil {
				dropped = append(dropped, Dropped{Param: k, Reason: ReasonMalformedValue})
				continue
			}
			entries = append(entries, Entry{Field: m.field, Operator: m.op, Value: v})
		}
	}
	return entries, dropped
}

// Where returns the GraphQL where argument of entries.
func Where(list *adminmeta.List, entries []Entry) map[string]any {
	and := make([]any, 0, len(entries))
	for _, e := range entries {
		f, ok := list.Fields[e.Field]
		if !ok || !f.Controller.Filter.Has(e.Operator) {
			continue
		}
		and = append(and, f.Controller.Filter.GraphQL(e.Operator, e.Value))
	}
	return map[string]any{"AND": and}
}

// DecodeSort reads sortBy. A missing parameter yields the list's initial
// sort; an empty one yields no sort. The second result is false when the
// parameter names a field that cannot be ordered by.
func DecodeSort(list *adminmeta.List, params url.Values) (*Sort, bool) {
	raw, present := params[ParamSortBy]
	if !present || len(raw) == 0 {
		if list.InitialSort == nil {
			return nil, true
		}
		return &Sort{Field: list.InitialSort.Field, Direction: strings.ToUpper(list.InitialSort.Direction)}, true
	}
	v := raw[0]
	if v == "" {
		return nil, true
	}
	s := Sort{Field: strings.TrimPrefix(v, "-"), Direction: Asc}
	if strings.HasPrefix(v, "-") {
		s.Direction = Desc
	}
	if f, ok := list.Fields[s.Field]; !ok || !f.IsOrderable {
		return nil, false
	}
	return &s, true
}

// EncodeSort returns the sortBy value of s.
func EncodeSort(s Sort) string {
	if s.Direction == Desc {
		return "-" + s.Field
	}
	return s.Field
}

// OrderBy returns the GraphQL orderBy argument of s.
func OrderBy(s *Sort) []map[string]any {
	if s == nil {
		return []map[string]any{}
	}
	return []map[string]any{{s.Field: strings.ToLower(s.Direction)}}
}

// Descriptor returns the API form of s.
func (s *Sort) Descriptor() *model.SortDescriptor {
	if s == nil {
		return nil
	}
	return &model.SortDescriptor{Field: s.Field, Direction: s.Direction}
}

// Columns returns the selected columns from a comma separated fields value,
// keeping only fields shown in the list view. With none left the list's
// initial columns are used.
func Columns(list *adminmeta.List, fields string) []string {
	var cols []string
	seen := map[string]bool{}
	for _, p := range strings.Split(fields, ",") {
		f, ok := list.Fields[p]
		if !ok || f.ListMode != model.FieldModeRead || seen[p] {
			continue
		}
		seen[p] = true
		cols = append(cols, p)
	}
	if len(cols) == 0 {
		return append([]string(nil), list.InitialColumns...)
	}
	return cols
}
