package listview

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/go-openapi/inflect"
	"go.uber.org/zap"

	"github.com/pitabwire/adminmeta/internal/adminmeta"
	"github.com/pitabwire/adminmeta/internal/graphql"
	"github.com/pitabwire/adminmeta/internal/observability"
	"github.com/pitabwire/adminmeta/model"
)

var pluralItem = inflect.Pluralize("item")

// itemCount formats "1 item" or "3 items".
func itemCount(n int) string {
	if n == 1 {
		return "1 item"
	}
	return strconv.Itoa(n) + " " + pluralItem
}

// DeleteMany deletes ids with one mutation. Items the API refuses to
// delete come back as null entries; they are reported as failed while the
// rest count as deleted. Only a response without data is an error.
func (e *Engine) DeleteMany(ctx context.Context, list *adminmeta.List, ids []string) (model.BulkDeleteResult, error) {
	logger := observability.RequestLogger(ctx, e.logger).With(zap.String("list", list.Key))
	ctx, span := observability.StartSpan(ctx, "listview.delete_many", observability.AttrListKey.String(list.Key))
	defer span.End()
	out := model.BulkDeleteResult{Deleted: []string{}, Failed: []string{}}
	if len(ids) == 0 {
		return out, nil
	}

	where := make([]map[string]any, len(ids))
	for i, id := range ids {
		where[i] = map[string]any{"id": id}
	}
	resp, err := e.exec.Execute(ctx, graphql.Request{
		Query:     DeleteManyQuery(list),
		Variables: map[string]any{"where": where},
	})
	if err != nil {
		e.metrics.RecordBulkDelete(list.Key, 0, len(ids))
		return out, err
	}

	var data map[string][]json.RawMessage
	if err := resp.Decode(&data); err != nil {
		e.metrics.RecordBulkDelete(list.Key, 0, len(ids))
		return out, model.NewDeleteFailedError(graphql.Messages(resp.Errors)...)
	}
	results := data[list.Names.DeleteManyMutationName]
	for i, id := range ids {
		if i < len(results) && string(results[i]) != "null" {
			out.Deleted = append(out.Deleted, id)
		} else {
			out.Failed = append(out.Failed, id)
		}
	}

	if n := len(out.Deleted); n > 0 {
		out.Message = fmt.Sprintf("Deleted %s.", itemCount(n))
	}
	if n := len(out.Failed); n > 0 {
		out.FailureMessage = fmt.Sprintf("Unable to delete %s.", itemCount(n))
	}
	out.Errors = uniqueMessages(resp.Errors)

	e.metrics.RecordBulkDelete(list.Key, len(out.Deleted), len(out.Failed))
	logger.Info("bulk delete",
		zap.Int("deleted", len(out.Deleted)),
		zap.Int("failed", len(out.Failed)),
	)
	return out, nil
}

func uniqueMessages(errs []graphql.Error) []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range errs {
		if !seen[e.Message] {
			seen[e.Message] = true
			out = append(out, e.Message)
		}
	}
	sort.Strings(out)
	return out
}
