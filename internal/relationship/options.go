// Package relationship loads the options of relationship pickers and the
// labels of referenced items.
package relationship

import (
	"context"
	"fmt"

	"github.com/pitabwire/adminmeta/internal/adminmeta"
	"github.com/pitabwire/adminmeta/internal/field"
	"github.com/pitabwire/adminmeta/internal/graphql"
	"github.com/pitabwire/adminmeta/internal/query"
	"github.com/pitabwire/adminmeta/model"
)

const (
	idAlias    = "____id____"
	labelAlias = "____label____"
)

// InitialTake is the number of options requested for a new search.
func InitialTake(pageSize int) int {
	return min(pageSize, 10)
}

// SubsequentTake is the number of options requested when loading more.
func SubsequentTake(pageSize int) int {
	return min(pageSize, 50)
}

// Source describes the list options are read from.
type Source struct {
	List       *adminmeta.List
	LabelField string
	// SearchFields are matched by the search term. Nil means the list's
	// searchable fields.
	SearchFields []string
}

// SourceFor returns the option source of a relationship field.
func SourceFor(meta *adminmeta.Meta, ref *field.Reference) (Source, error) {
	list, ok := meta.List(ref.ListKey)
	if !ok {
		return Source{}, fmt.Errorf("relationship: unknown list %q", ref.ListKey)
	}
	src := Source{List: list, LabelField: ref.LabelField, SearchFields: ref.SearchFields}
	if src.LabelField == "" {
		src.LabelField = list.LabelField
	}
	if src.SearchFields == nil {
		src.SearchFields = []string{}
	}
	return src, nil
}

// ListSource returns the option source of a whole list.
func ListSource(list *adminmeta.List) Source {
	return Source{List: list, LabelField: list.LabelField}
}

// Page is one window of options.
type Page struct {
	Skip  int
	Items []field.Ref
	// Count is the total number of matching items; it is only known for
	// requests that asked for it.
	Count int
}

// OptionsQuery returns the options document of src. The count root field
// is only selected when withCount is set.
func OptionsQuery(src Source, withCount bool) string {
	names := src.List.Names
	doc := fmt.Sprintf(`query RelationshipSelect($where: %s!, $take: Int!, $skip: Int!) {
  items: %s(where: $where, take: $take, skip: $skip) {
    %s: id
    %s: %s
  }`, names.WhereInputName, names.ListQueryName, idAlias, labelAlias, src.LabelField)
	if withCount {
		doc += fmt.Sprintf("\n  count: %s(where: $where)", names.ListQueryCountName)
	}
	return doc + "\n}"
}

// Variables returns the variables of an options request.
func Variables(src Source, search string, skip, take int) map[string]any {
	return map[string]any{
		"where": query.Search(src.List, search, src.SearchFields),
		"take":  take,
		"skip":  skip,
	}
}

// Fetch requests one window of options. The count is requested with the
// first window only.
func Fetch(ctx context.Context, exec graphql.Executor, src Source, search string, skip, take int) (Page, error) {
	withCount := skip == 0
	resp, err := exec.Execute(ctx, graphql.Request{
		Query:     OptionsQuery(src, withCount),
		Variables: Variables(src, search, skip, take),
	})
	if err != nil {
		return Page{}, err
	}
	if errs := resp.TopLevelErrors(); len(errs) > 0 {
		return Page{}, model.NewQueryFailedError(graphql.Messages(errs)...)
	}
	var data struct {
		Items []map[string]any `json:"items"`
		Count int              `json:"count"`
	}
	if err := resp.Decode(&data); err != nil {
		return Page{}, err
	}
	page := Page{Skip: skip, Count: data.Count, Items: make([]field.Ref, 0, len(data.Items))}
	for _, it := range data.Items {
		id := field.Stringify(it[idAlias])
		label := field.Stringify(it[labelAlias])
		if label == "" {
			label = id
		}
		page.Items = append(page.Items, field.Ref{ID: id, Label: label})
	}
	return page, nil
}

// MergeAt writes incoming into existing starting at skip, growing existing
// as needed. Windows arriving out of order fill their own range.
func MergeAt[T any](existing []T, skip int, incoming []T) []T {
	need := skip + len(incoming)
	merged := make([]T, max(len(existing), need))
	copy(merged, existing)
	copy(merged[skip:], incoming)
	return merged
}
