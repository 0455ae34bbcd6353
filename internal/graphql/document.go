package graphql

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// Operation kinds.
const (
	KindQuery    = "query"
	KindMutation = "mutation"
)

// OperationKind parses a document and returns the kind of its first
// operation. Documents are built by string interpolation of server declared
// names, so a parse failure indicates a broken contract rather than user
// input.
func OperationKind(document string) (string, error) {
	kind, _, err := Operation(document)
	return kind, err
}

// Operation returns the kind and name of the first operation of document.
// Anonymous operations have an empty name.
func Operation(document string) (kind, name string, err error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: document})
	if err != nil {
		return "", "", fmt.Errorf("graphql: invalid document: %w", err)
	}
	if len(doc.Operations) == 0 {
		return "", "", fmt.Errorf("graphql: document has no operation")
	}
	op := doc.Operations[0]
	switch op.Operation {
	case ast.Mutation:
		return KindMutation, op.Name, nil
	case ast.Query:
		return KindQuery, op.Name, nil
	default:
		return "", "", fmt.Errorf("graphql: unsupported operation %q", op.Operation)
	}
}

// ResponseKeys returns the top level response keys a selection produces:
// the alias when present, otherwise the field name. "author { id label: name }"
// yields ["author"]; "postsCount" yields ["postsCount"].
func ResponseKeys(selection string) ([]string, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: "{" + selection + "\n}"})
	if err != nil {
		return nil, fmt.Errorf("graphql: invalid selection %q: %w", selection, err)
	}
	if len(doc.Operations) != 1 {
		return nil, fmt.Errorf("graphql: invalid selection %q", selection)
	}
	var keys []string
	for _, sel := range doc.Operations[0].SelectionSet {
		f, ok := sel.(*ast.Field)
		if !ok {
			return nil, fmt.Errorf("graphql: selection %q uses fragments", selection)
		}
		if f.Alias != "" {
			keys = append(keys, f.Alias)
		} else {
			keys = append(keys, f.Name)
		}
	}
	return keys, nil
}
