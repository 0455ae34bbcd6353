package listview

import (
	"fmt"
	"strings"

	"github.com/pitabwire/adminmeta/internal/adminmeta"
)

// ItemsQuery returns the combined items and count document selecting the
// given columns. The id is always selected.
func ItemsQuery(list *adminmeta.List, columns []string) string {
	names := list.Names
	var b strings.Builder
	fmt.Fprintf(&b, "query ListPage($where: %s, $take: Int!, $skip: Int!, $orderBy: [%s!]) {\n",
		names.WhereInputName, names.ListOrderName)
	fmt.Fprintf(&b, "  items: %s(where: $where, take: $take, skip: $skip, orderBy: $orderBy) {\n", names.ListQueryName)
	writeSelection(&b, list, columns)
	b.WriteString("  }\n")
	fmt.Fprintf(&b, "  count: %s(where: $where)\n}", names.ListQueryCountName)
	return b.String()
}

// DeleteManyQuery returns the bulk delete mutation of list.
func DeleteManyQuery(list *adminmeta.List) string {
	names := list.Names
	return fmt.Sprintf(`mutation DeleteItems($where: [%s!]!) {
  %s(where: $where) {
    id
    %s
  }
}`, names.WhereUniqueInputName, names.DeleteManyMutationName, labelSelection(list))
}

// CardQuery returns the single item document selecting columns.
func CardQuery(list *adminmeta.List, columns []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "query Card($id: ID!) {\n  item: %s(where: {id: $id}) {\n", list.Names.ItemQueryName)
	writeSelection(&b, list, columns)
	b.WriteString("  }\n}")
	return b.String()
}

func writeSelection(b *strings.Builder, list *adminmeta.List, columns []string) {
	hasID := false
	for _, c := range columns {
		if c == "id" {
			hasID = true
		}
	}
	if !hasID {
		b.WriteString("    id\n")
	}
	for _, c := range columns {
		f, ok := list.Fields[c]
		if !ok {
			continue
		}
		for _, line := range strings.Split(f.Controller.GraphQLSelection, "\n") {
			b.WriteString("    " + line + "\n")
		}
	}
}

// labelSelection selects the label field unless it is the id.
func labelSelection(list *adminmeta.List) string {
	if list.LabelField == "" || list.LabelField == "id" {
		return ""
	}
	return list.LabelField
}
