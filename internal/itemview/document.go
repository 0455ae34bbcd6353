package itemview

import (
	"fmt"
	"strings"

	"github.com/pitabwire/adminmeta/internal/adminmeta"
)

// ItemQuery reads one item together with its per item field modes.
func ItemQuery(list *adminmeta.List, paths []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "query ItemPage($id: ID!, $listKey: String!) {\n  item: %s(where: {id: $id}) {\n", list.Names.ItemQueryName)
	writeSelection(&b, list, paths)
	b.WriteString("  }\n  ")
	b.WriteString(adminmeta.ItemViewSelection)
	b.WriteString("\n}")
	return b.String()
}

// UpdateMutation writes the changed fields of one item and reads paths
// back.
func UpdateMutation(list *adminmeta.List, paths []string) string {
	names := list.Names
	var b strings.Builder
	fmt.Fprintf(&b, "mutation UpdateItem($data: %s!, $id: ID!) {\n  item: %s(where: {id: $id}, data: $data) {\n",
		names.UpdateInputName, names.UpdateMutationName)
	writeSelection(&b, list, paths)
	b.WriteString("  }\n}")
	return b.String()
}

// CreateMutation creates one item and reads back its id and label.
func CreateMutation(list *adminmeta.List) string {
	names := list.Names
	label := ""
	if list.LabelField != "" && list.LabelField != "id" {
		label = "\n    label: " + list.LabelField
	}
	return fmt.Sprintf(`mutation CreateItem($data: %s!) {
  item: %s(data: $data) {
    id%s
  }
}`, names.CreateInputName, names.CreateMutationName, label)
}

// DeleteMutation deletes one item.
func DeleteMutation(list *adminmeta.List) string {
	return fmt.Sprintf(`mutation DeleteItem($id: ID!) {
  item: %s(where: {id: $id}) {
    id
  }
}`, list.Names.DeleteMutationName)
}

func writeSelection(b *strings.Builder, list *adminmeta.List, paths []string) {
	b.WriteString("    id\n")
	for _, p := range paths {
		f, ok := list.Fields[p]
		if !ok || p == "id" {
			continue
		}
		for _, line := range strings.Split(f.Controller.GraphQLSelection, "\n") {
			b.WriteString("    " + line + "\n")
		}
	}
}
