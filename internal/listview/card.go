package listview

import (
	"context"

	"github.com/pitabwire/adminmeta/internal/adminmeta"
	"github.com/pitabwire/adminmeta/internal/field"
	"github.com/pitabwire/adminmeta/internal/graphql"
	"github.com/pitabwire/adminmeta/internal/views"
	"github.com/pitabwire/adminmeta/model"
)

// Card reads one item and renders the card value of each of the list's
// initial columns. Fields without a card view fall back to their cell.
func (e *Engine) Card(ctx context.Context, meta *adminmeta.Meta, list *adminmeta.List, id string) (model.CardDescriptor, error) {
	columns := list.InitialColumns
	resp, err := e.exec.Execute(ctx, graphql.Request{
		Query:     CardQuery(list, columns),
		Variables: map[string]any{"id": id},
	})
	if err != nil {
		return model.CardDescriptor{}, err
	}
	var data struct {
		Item field.Item `json:"item"`
	}
	if err := resp.Decode(&data); err != nil || data.Item == nil {
		if errs := resp.TopLevelErrors(); len(errs) > 0 {
			return model.CardDescriptor{}, model.NewQueryFailedError(graphql.Messages(errs)...)
		}
		return model.CardDescriptor{}, model.NewNotFoundError("item " + id + " not found in " + list.Key)
	}

	out := model.CardDescriptor{
		List:   list.Key,
		ItemID: data.Item.ID(),
		Href:   views.ItemHref(list.Ref(), data.Item.ID()),
		Values: make([]model.CellDescriptor, 0, len(columns)),
	}
	itemErrors := resp.ErrorsUnder("item")
	for _, path := range columns {
		f, ok := list.Fields[path]
		if !ok {
			continue
		}
		if msg := cardError(f, itemErrors); msg != "" {
			out.Values = append(out.Values, model.CellDescriptor{Field: path, Kind: model.CellError, Error: msg})
			continue
		}
		if f.Views.CardValue == nil {
			out.Values = append(out.Values, Cell(meta, list, f, data.Item, nil))
			continue
		}
		v := f.Views.CardValue(views.CellContext{ListKey: list.Key, Field: f.Controller, Item: data.Item, Lists: meta})
		v.Field = path
		out.Values = append(out.Values, v)
	}
	return out, nil
}

// cardError matches errors of the single item query, whose paths are one
// segment shorter than list item paths.
func cardError(f *adminmeta.Field, itemErrors []graphql.Error) string {
	for _, e := range itemErrors {
		if len(e.Path) < 2 {
			continue
		}
		for _, k := range f.ResponseKeys {
			if k == e.Path[1] {
				return e.Message
			}
		}
	}
	return ""
}
