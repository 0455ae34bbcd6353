package query

import (
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/pitabwire/adminmeta/internal/adminmeta"
)

// Search returns the GraphQL where fragment matching term against the id
// field and the given search fields. With no paths the list's searchable
// fields are used. An empty term matches everything; a term no field can
// hold matches nothing.
func Search(list *adminmeta.List, term string, paths []string) map[string]any {
	term = strings.TrimSpace(term)
	or := []any{}
	if term == "" {
		return map[string]any{"OR": or}
	}

	if id, ok := list.Fields["id"]; ok {
		if v, ok := idTerm(id, term); ok {
			or = append(or, map[string]any{"id": map[string]any{"equals": v}})
		}
	}

	var fields []*adminmeta.Field
	if paths == nil {
		fields = list.Searchable()
	} else {
		for _, p := range paths {
			if f, ok := list.Fields[p]; ok && p != "id" {
				fields = append(fields, f)
			}
		}
	}
	for _, f := range fields {
		if f.Path == "id" {
			continue
		}
		cond := map[string]any{"contains": term}
		if f.Search == "insensitive" {
			cond["mode"] = "insensitive"
		}
		or = append(or, map[string]any{f.Path: cond})
	}
	if len(or) == 0 {
		// Nothing can contain the term; an empty OR would match every item.
		or = append(or, map[string]any{"id": map[string]any{"in": []any{}}})
	}
	return map[string]any{"OR": or}
}

// idTerm converts term to an id comparison value, reporting false when the
// term cannot be an id of the field.
func idTerm(id *adminmeta.Field, term string) (any, bool) {
	kind, _ := id.Controller.Meta["kind"].(string)
	typ, _ := id.Controller.Meta["type"].(string)
	switch typ {
	case "Int":
		n, err := strconv.ParseInt(term, 10, 64)
		if err != nil || n > math.MaxInt32 || n < math.MinInt32 {
			return nil, false
		}
		return n, true
	case "BigInt":
		if _, err := strconv.ParseInt(term, 10, 64); err != nil {
			return nil, false
		}
		return term, true
	default:
		if kind == "uuid" {
			if _, err := uuid.Parse(term); err != nil {
				return nil, false
			}
		}
		return term, true
	}
}

// Combine joins where fragments with AND, skipping empty ones.
func Combine(parts ...map[string]any) map[string]any {
	and := []any{}
	for _, p := range parts {
		if len(p) == 0 {
			continue
		}
		and = append(and, p)
	}
	return map[string]any{"AND": and}
}
