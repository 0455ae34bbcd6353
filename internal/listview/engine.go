// Package listview renders the paginated, sortable and filterable table of
// one list using only admin metadata and field controllers.
package listview

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"github.com/pitabwire/adminmeta/internal/adminmeta"
	"github.com/pitabwire/adminmeta/internal/field"
	"github.com/pitabwire/adminmeta/internal/graphql"
	"github.com/pitabwire/adminmeta/internal/observability"
	"github.com/pitabwire/adminmeta/internal/query"
	"github.com/pitabwire/adminmeta/internal/relationship"
	"github.com/pitabwire/adminmeta/internal/views"
	"github.com/pitabwire/adminmeta/model"
)

// Engine loads list pages and performs bulk deletes.
type Engine struct {
	exec    graphql.Executor
	labels  *relationship.Labels
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewEngine creates an engine. labels may be nil, in which case
// relationship filter chips show raw ids.
func NewEngine(exec graphql.Executor, labels *relationship.Labels, metrics *observability.Metrics, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{exec: exec, labels: labels, metrics: metrics, logger: logger}
}

// Page is the input of Load.
type Page struct {
	Meta   *adminmeta.Meta
	List   *adminmeta.List
	Params url.Values
	Caps   model.CapabilitySet
}

type listData struct {
	Items []field.Item `json:"items"`
	Count int          `json:"count"`
}

// Load resolves the page state from the URL parameters, runs the combined
// items and count query and renders the rows. A page past the end is
// clamped to the last page and queried again.
func (e *Engine) Load(ctx context.Context, p Page) (model.ListPageDescriptor, error) {
	list := p.List
	logger := observability.RequestLogger(ctx, e.logger).With(zap.String("list", list.Key))
	ctx, span := observability.StartSpan(ctx, "listview.load", observability.AttrListKey.String(list.Key))
	defer span.End()

	st, dropped := query.Decode(list, p.Params)
	for _, d := range dropped {
		logger.Debug("dropped list page parameter", zap.String("param", d.Param), zap.String("reason", d.Reason))
		e.metrics.RecordDroppedURLParam(list.Key, d.Reason)
	}

	where := query.Where(list, st.Filters)
	if search := query.Search(list, st.Search, nil); len(search["OR"].([]any)) > 0 {
		where["OR"] = search["OR"]
	}

	doc := ItemsQuery(list, st.Columns)
	skip := query.Offset(st.Page, st.PageSize)
	vars := map[string]any{
		"where": where,
		"take":  st.PageSize,
		"skip":  skip,
	}
	if st.Sort != nil {
		vars["orderBy"] = query.OrderBy(st.Sort)
	}

	resp, data, err := e.fetch(ctx, doc, vars)
	if err != nil {
		e.metrics.RecordListQuery(list.Key, "error")
		return model.ListPageDescriptor{}, err
	}

	window := query.Paginate(data.Count, st.Page, st.PageSize)
	if data.Count > 0 && window.Skip != skip {
		logger.Debug("page out of range, querying last page",
			zap.Int("requested", st.Page), zap.Int("page", window.Page))
		vars["skip"] = window.Skip
		resp, data, err = e.fetch(ctx, doc, vars)
		if err != nil {
			e.metrics.RecordListQuery(list.Key, "error")
			return model.ListPageDescriptor{}, err
		}
		window = query.Paginate(data.Count, window.Page, st.PageSize)
	}

	constrained := len(st.Filters) > 0 || st.Search != ""
	out := model.ListPageDescriptor{
		List:          list.Key,
		Label:         list.Label,
		Count:         data.Count,
		Sort:          st.Sort.Descriptor(),
		Search:        st.Search,
		IsConstrained: constrained,
		IsEmpty:       data.Count == 0 && !constrained,
		AllowCreate:   !list.HideCreate && p.Caps.CanList(list.Key, model.ActionCreate),
		AllowDelete:   !list.HideDelete && p.Caps.CanList(list.Key, model.ActionDelete),
		Pagination: model.PaginationDescriptor{
			Page:      window.Page,
			PageSize:  window.PageSize,
			PageCount: window.PageCount,
			Skip:      window.Skip,
			Take:      window.Take,
		},
		Filters: e.chips(ctx, p.Meta, list, st.Filters),
	}
	if errs := resp.TopLevelErrors(); len(errs) > 0 {
		out.Errors = graphql.Messages(errs)
	}

	rows := 0
	out.Rows = []model.RowDescriptor{}
	for i, item := range data.Items {
		if item == nil {
			continue
		}
		out.Rows = append(out.Rows, e.row(p.Meta, list, st.Columns, resp, i, item))
		rows++
	}

	for _, path := range st.Columns {
		f := list.Fields[path]
		col := model.ColumnDescriptor{
			Field:    path,
			Label:    f.Label,
			Sortable: f.IsOrderable && (constrained || rows > 0),
		}
		if st.Sort != nil && st.Sort.Field == path {
			col.Sorted = st.Sort.Direction
		}
		out.Columns = append(out.Columns, col)
	}

	status := "ok"
	if len(resp.Errors) > 0 {
		status = "partial"
	}
	e.metrics.RecordListQuery(list.Key, status)
	logger.Debug("loaded list page",
		zap.Int("count", data.Count),
		zap.Int("page", window.Page),
		zap.Int("rows", rows),
	)
	return out, nil
}

func (e *Engine) fetch(ctx context.Context, doc string, vars map[string]any) (*graphql.Response, listData, error) {
	resp, err := e.exec.Execute(ctx, graphql.Request{Query: doc, Variables: vars})
	if err != nil {
		return nil, listData{}, err
	}
	var data listData
	if err := resp.Decode(&data); err != nil {
		if errs := resp.TopLevelErrors(); len(errs) > 0 {
			return nil, listData{}, model.NewQueryFailedError(graphql.Messages(errs)...)
		}
		return nil, listData{}, model.NewQueryFailedError(err.Error())
	}
	return resp, data, nil
}

func (e *Engine) row(meta *adminmeta.Meta, list *adminmeta.List, columns []string, resp *graphql.Response, index int, item field.Item) model.RowDescriptor {
	id := item.ID()
	row := model.RowDescriptor{
		ID:    id,
		Href:  views.ItemHref(list.Ref(), id),
		Cells: make([]model.CellDescriptor, 0, len(columns)),
	}
	for _, path := range columns {
		row.Cells = append(row.Cells, Cell(meta, list, list.Fields[path], item, resp.ErrorsUnder("items", index)))
	}
	return row
}

// Cell renders one field of item. Errors whose path continues with one of
// the field's response keys make the cell unreadable.
func Cell(meta *adminmeta.Meta, list *adminmeta.List, f *adminmeta.Field, item field.Item, itemErrors []graphql.Error) model.CellDescriptor {
	if msg := fieldError(f, itemErrors); msg != "" {
		return model.CellDescriptor{Field: f.Path, Kind: model.CellError, Error: msg}
	}
	ctx := views.CellContext{ListKey: list.Key, Field: f.Controller, Item: item, Lists: meta}
	var cell model.CellDescriptor
	if f.Views.Cell != nil {
		cell = f.Views.Cell(ctx)
	} else {
		cell = model.CellDescriptor{Kind: model.CellText, Text: field.Stringify(item[f.Path])}
	}
	cell.Field = f.Path
	return cell
}

// fieldError returns the first error message addressed to f inside an item.
func fieldError(f *adminmeta.Field, itemErrors []graphql.Error) string {
	for _, e := range itemErrors {
		if len(e.Path) < 3 {
			continue
		}
		key := e.Path[2]
		for _, k := range f.ResponseKeys {
			if k == key {
				return e.Message
			}
		}
	}
	return ""
}

// chips renders the active filters. Labels of referenced items are looked
// up so relationship filters read "is Ann" rather than "is u1".
func (e *Engine) chips(ctx context.Context, meta *adminmeta.Meta, list *adminmeta.List, entries []query.Entry) []model.ActiveFilterDescriptor {
	out := make([]model.ActiveFilterDescriptor, 0, len(entries))
	for _, en := range entries {
		f := list.Fields[en.Field]
		filter := f.Controller.Filter
		in := field.FilterLabel{
			Label: filter.Types[en.Operator].Label,
			Type:  en.Operator,
			Value: en.Value,
		}
		if ref := f.Controller.References; ref != nil && e.labels != nil {
			if ids := field.FilterIDs(en.Value); len(ids) > 0 {
				lookup, err := e.labels.LookupList(ctx, meta, ref, ids)
				if err != nil {
					e.logger.Warn("relationship filter label lookup failed",
						zap.String("list", list.Key), zap.String("field", f.Path), zap.Error(err))
				}
				in.Lookup = lookup
			}
		}
		name, _, _ := query.EncodeFilter(en)
		out = append(out, model.ActiveFilterDescriptor{
			Field:    en.Field,
			Operator: en.Operator,
			Label:    f.Label + " " + filter.Label(in),
			Value:    en.Value,
			Param:    name,
		})
	}
	return out
}
