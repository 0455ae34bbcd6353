package adminmeta

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/adminmeta/internal/graphql"
	"github.com/pitabwire/adminmeta/model"
)

// Source fetches the raw list descriptions.
type Source interface {
	Fetch(ctx context.Context) (model.AdminMetaResult, error)
}

// GraphQLSource reads metadata from the GraphQL API.
type GraphQLSource struct {
	exec graphql.Executor
}

// NewGraphQLSource returns a Source querying exec.
func NewGraphQLSource(exec graphql.Executor) *GraphQLSource {
	return &GraphQLSource{exec: exec}
}

// Fetch runs MetaQuery. Any GraphQL error fails the fetch: partial metadata
// is never used.
func (s *GraphQLSource) Fetch(ctx context.Context) (model.AdminMetaResult, error) {
	resp, err := s.exec.Execute(ctx, graphql.Request{Query: MetaQuery})
	if err != nil {
		return model.AdminMetaResult{}, fmt.Errorf("adminmeta: fetching metadata: %w", err)
	}
	if len(resp.Errors) > 0 {
		return model.AdminMetaResult{}, fmt.Errorf("adminmeta: metadata query failed: %s", strings.Join(graphql.Messages(resp.Errors), "; "))
	}
	var data model.MetaQueryResult
	if err := resp.Decode(&data); err != nil {
		return model.AdminMetaResult{}, &ContractError{Message: "metadata response has an unexpected shape", Err: err}
	}
	return data.Keystone.AdminMeta, nil
}

// FileSource reads a metadata snapshot from disk. The file holds the data
// member of the metadata query response as JSON or YAML.
type FileSource struct {
	Path string
}

// Fetch reads and decodes the snapshot.
func (s FileSource) Fetch(context.Context) (model.AdminMetaResult, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return model.AdminMetaResult{}, fmt.Errorf("adminmeta: reading snapshot: %w", err)
	}
	return ParseSnapshot(raw, filepath.Ext(s.Path))
}

// ParseSnapshot decodes a metadata snapshot. YAML documents are converted
// to JSON first so both formats share the JSON field names.
func ParseSnapshot(raw []byte, ext string) (model.AdminMetaResult, error) {
	if ext != ".json" {
		var doc any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return model.AdminMetaResult{}, fmt.Errorf("adminmeta: parsing snapshot: %w", err)
		}
		b, err := json.Marshal(doc)
		if err != nil {
			return model.AdminMetaResult{}, fmt.Errorf("adminmeta: converting snapshot: %w", err)
		}
		raw = b
	}
	var data model.MetaQueryResult
	if err := json.Unmarshal(raw, &data); err != nil {
		return model.AdminMetaResult{}, &ContractError{Message: "metadata snapshot has an unexpected shape", Err: err}
	}
	return data.Keystone.AdminMeta, nil
}
