package itemview

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/pitabwire/adminmeta/internal/adminmeta"
	"github.com/pitabwire/adminmeta/internal/field"
	"github.com/pitabwire/adminmeta/internal/graphql"
	"github.com/pitabwire/adminmeta/internal/observability"
	"github.com/pitabwire/adminmeta/internal/relationship"
	"github.com/pitabwire/adminmeta/internal/views"
	"github.com/pitabwire/adminmeta/model"
)

// SingletonID is the id of the only item of singleton lists.
const SingletonID = "1"

// Engine opens, edits, saves and deletes single items.
type Engine struct {
	exec     graphql.Executor
	sessions *SessionStore
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewEngine creates an item engine keeping its forms in sessions.
func NewEngine(exec graphql.Executor, sessions *SessionStore, metrics *observability.Metrics, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{exec: exec, sessions: sessions, metrics: metrics, logger: logger}
}

type itemData struct {
	Item     field.Item `json:"item"`
	Keystone struct {
		AdminMeta struct {
			List *struct {
				HideCreate bool                 `json:"hideCreate"`
				HideDelete bool                 `json:"hideDelete"`
				Fields     []model.ItemViewMeta `json:"fields"`
			} `json:"list"`
		} `json:"adminMeta"`
	} `json:"keystone"`
}

// owner returns the key forms are scoped to.
func owner(ctx context.Context) string {
	if rc := model.RequestContextFrom(ctx); rc != nil && rc.SubjectID != "" {
		return rc.Owner()
	}
	return "anonymous"
}

// selected returns the fields read by item queries: every field not hidden
// in the item view of the list.
func selected(list *adminmeta.List) []string {
	var out []string
	for _, f := range list.OrderedFields() {
		if f.ItemMode != model.FieldModeHidden {
			out = append(out, f.Path)
		}
	}
	return out
}

// OpenItem reads an item and opens an edit form for it. Field modes and
// positions are resolved for this item by the API.
func (e *Engine) OpenItem(ctx context.Context, meta *adminmeta.Meta, list *adminmeta.List, id string, caps model.CapabilitySet) (model.FormDescriptor, error) {
	if list.IsSingleton {
		id = SingletonID
	}
	logger := observability.RequestLogger(ctx, e.logger).With(zap.String("list", list.Key), zap.String("item", id))
	ctx, span := observability.StartSpan(ctx, "itemview.open",
		observability.AttrListKey.String(list.Key),
		observability.AttrItemID.String(id),
	)
	defer span.End()

	resp, err := e.exec.Execute(ctx, graphql.Request{
		Query:     ItemQuery(list, selected(list)),
		Variables: map[string]any{"id": id, "listKey": list.Key},
	})
	if err != nil {
		return model.FormDescriptor{}, err
	}
	var data itemData
	if err := resp.Decode(&data); err != nil {
		if errs := resp.TopLevelErrors(); len(errs) > 0 {
			return model.FormDescriptor{}, model.NewQueryFailedError(graphql.Messages(errs)...)
		}
		return model.FormDescriptor{}, model.NewQueryFailedError(err.Error())
	}
	if errs := resp.ErrorsUnder("keystone"); len(errs) > 0 {
		return model.FormDescriptor{}, model.NewQueryFailedError(graphql.Messages(errs)...)
	}
	if data.Item == nil {
		if errs := resp.ErrorsUnder("item"); len(errs) > 0 {
			return model.FormDescriptor{}, model.NewQueryFailedError(graphql.Messages(errs)...)
		}
		if list.IsSingleton {
			return model.FormDescriptor{}, model.NewNotFoundError(fmt.Sprintf("%q doesn't exist, or you don't have access to it.", list.Label))
		}
		return model.FormDescriptor{}, model.NewNotFoundError(fmt.Sprintf("The item with ID %q doesn't exist, or you don't have access to it.", id))
	}

	modes := make(map[string]string, len(list.Fields))
	positions := make(map[string]string, len(list.Fields))
	for _, f := range list.OrderedFields() {
		modes[f.Path] = f.ItemMode
		positions[f.Path] = f.ItemPosition
	}
	hideDelete := list.HideDelete
	if lm := data.Keystone.AdminMeta.List; lm != nil {
		hideDelete = lm.HideDelete
		for _, fm := range lm.Fields {
			static, ok := list.Fields[fm.Path]
			if !ok || fm.ItemView == nil || static.ItemMode == model.FieldModeHidden {
				continue
			}
			if fm.ItemView.FieldMode != "" {
				modes[fm.Path] = fm.ItemView.FieldMode
			}
			if fm.ItemView.FieldPosition != "" {
				positions[fm.Path] = fm.ItemView.FieldPosition
			}
		}
	}

	if !caps.CanList(list.Key, model.ActionUpdate) {
		for path, mode := range modes {
			if mode == model.FieldModeEdit {
				modes[path] = model.FieldModeRead
			}
		}
	}

	values := deserialize(list, data.Item, resp.ErrorsUnder("item"), modes)
	form := e.sessions.Open(&Form{
		Owner:       owner(ctx),
		ListKey:     list.Key,
		Kind:        model.FormUpdate,
		ItemID:      data.Item.ID(),
		Checksum:    meta.Checksum,
		Item:        data.Item,
		Initial:     values,
		Values:      maps.Clone(values),
		Modes:       modes,
		Positions:   positions,
		AllowDelete: !hideDelete && caps.CanList(list.Key, model.ActionDelete),
	})
	logger.Debug("opened edit form", zap.String("form", form.ID))
	return form.Descriptor(meta, list), nil
}

// OpenCreate opens a create form seeded with every field's default value.
func (e *Engine) OpenCreate(ctx context.Context, meta *adminmeta.Meta, list *adminmeta.List) (model.FormDescriptor, error) {
	modes := make(map[string]string, len(list.Fields))
	positions := make(map[string]string, len(list.Fields))
	values := field.Values{}
	for _, f := range list.OrderedFields() {
		modes[f.Path] = f.CreateMode
		if auto, _ := f.Controller.Meta["autoincrement"].(bool); auto && f.CreateMode == model.FieldModeEdit {
			modes[f.Path] = model.FieldModeRead
		}
		positions[f.Path] = model.FieldPositionForm
		if f.CreateMode != model.FieldModeHidden {
			values[f.Path] = field.State{Kind: field.StateValue, Value: f.Controller.DefaultValue()}
		}
	}
	form := e.sessions.Open(&Form{
		Owner:     owner(ctx),
		ListKey:   list.Key,
		Kind:      model.FormCreate,
		Checksum:  meta.Checksum,
		Initial:   values,
		Values:    maps.Clone(values),
		Modes:     modes,
		Positions: positions,
	})
	observability.RequestLogger(ctx, e.logger).Debug("opened create form",
		zap.String("list", list.Key), zap.String("form", form.ID))
	return form.Descriptor(meta, list), nil
}

// Form returns the current state of an open form.
func (e *Engine) Form(ctx context.Context, meta *adminmeta.Meta, formID string) (model.FormDescriptor, error) {
	form, list, err := e.load(ctx, meta, formID)
	if err != nil {
		return model.FormDescriptor{}, err
	}
	return form.Descriptor(meta, list), nil
}

// Discard closes a form.
func (e *Engine) Discard(ctx context.Context, formID string) error {
	return e.sessions.Discard(owner(ctx), formID)
}

// Change applies UI input to the fields of a form. Inputs are applied in
// path order; the first rejected input aborts the change and leaves the
// form untouched.
func (e *Engine) Change(ctx context.Context, meta *adminmeta.Meta, formID string, inputs map[string]json.RawMessage) (model.FormDescriptor, error) {
	form, list, err := e.load(ctx, meta, formID)
	if err != nil {
		return model.FormDescriptor{}, err
	}
	for _, path := range slices.Sorted(maps.Keys(inputs)) {
		f, ok := list.Fields[path]
		if !ok {
			return model.FormDescriptor{}, model.NewBadRequestError(fmt.Sprintf("unknown field %q", path))
		}
		st, ok := form.Values[path]
		if !ok || form.Modes[path] != model.FieldModeEdit || !st.Readable() {
			return model.FormDescriptor{}, model.NewBadRequestError(fmt.Sprintf("field %q is not editable", path))
		}
		next, err := f.Controller.Apply(st.Value, inputs[path])
		if err != nil {
			return model.FormDescriptor{}, model.NewBadRequestError(err.Error())
		}
		form.Values[path] = field.State{Kind: field.StateValue, Value: next}
	}
	form.Message = ""

	committed, err := e.sessions.Commit(form)
	if err != nil {
		return model.FormDescriptor{}, err
	}
	return committed.Descriptor(meta, list), nil
}

// Save validates the form and sends it: an update with only the changed
// fields for edit forms, a create with every visible field otherwise.
// Validation problems are reported without contacting the API.
func (e *Engine) Save(ctx context.Context, meta *adminmeta.Meta, formID string) (model.FormDescriptor, error) {
	ctx, span := observability.StartSpan(ctx, "itemview.save", observability.AttrFormID.String(formID))
	defer span.End()

	form, list, err := e.load(ctx, meta, formID)
	if err != nil {
		return model.FormDescriptor{}, err
	}
	span.SetAttributes(observability.AttrListKey.String(list.Key), observability.AttrItemID.String(form.ItemID))

	if invalid := form.Invalid(list); len(invalid) > 0 {
		e.metrics.RecordValidationFailure(list.Key)
		form.ShowValidation = true
		if _, err := e.sessions.Commit(form); err != nil {
			return model.FormDescriptor{}, err
		}
		details := make([]model.FieldError, 0, len(invalid))
		for _, p := range slices.Sorted(maps.Keys(invalid)) {
			details = append(details, model.FieldError{Field: p, Code: "INVALID", Message: invalid[p]})
		}
		return model.FormDescriptor{}, model.NewValidationError(details)
	}

	if form.Kind == model.FormCreate {
		return e.create(ctx, meta, list, form)
	}
	return e.update(ctx, meta, list, form)
}

func (e *Engine) update(ctx context.Context, meta *adminmeta.Meta, list *adminmeta.List, form *Form) (model.FormDescriptor, error) {
	logger := observability.RequestLogger(ctx, e.logger).With(zap.String("list", list.Key), zap.String("item", form.ItemID))
	data := form.UpdateData(list)
	if len(data) == 0 {
		return form.Descriptor(meta, list), nil
	}

	resp, err := e.exec.Execute(ctx, graphql.Request{
		Query:     UpdateMutation(list, selected(list)),
		Variables: map[string]any{"data": data, "id": form.ItemID},
	})
	if err != nil {
		logger.Warn("item update failed", zap.Error(err))
		return model.FormDescriptor{}, e.saveFailed(list, form, model.FormUpdate, err.Error())
	}
	// Errors below the item are field errors and do not fail the save.
	if errs := resp.TopLevelErrors(); len(errs) > 0 {
		logger.Warn("item update rejected", zap.Strings("errors", graphql.Messages(errs)))
		return model.FormDescriptor{}, e.saveFailed(list, form, model.FormUpdate, graphql.Messages(errs)...)
	}
	var out struct {
		Item field.Item `json:"item"`
	}
	if err := resp.Decode(&out); err != nil || out.Item == nil {
		return model.FormDescriptor{}, e.saveFailed(list, form, model.FormUpdate, graphql.Messages(resp.Errors)...)
	}

	values := deserialize(list, out.Item, resp.ErrorsUnder("item"), form.Modes)
	form.Item = out.Item
	form.Initial = values
	form.Values = maps.Clone(values)
	form.Errors = nil
	form.ShowValidation = false
	form.Message = "Saved successfully."

	committed, err := e.sessions.Commit(form)
	if err != nil {
		e.metrics.RecordSupersededResult("item_save")
		e.metrics.RecordItemSave(list.Key, model.FormUpdate, "superseded")
		return model.FormDescriptor{}, err
	}
	e.metrics.RecordItemSave(list.Key, model.FormUpdate, "ok")
	logger.Info("item updated", zap.Strings("fields", slices.Sorted(maps.Keys(data))))
	return committed.Descriptor(meta, list), nil
}

func (e *Engine) create(ctx context.Context, meta *adminmeta.Meta, list *adminmeta.List, form *Form) (model.FormDescriptor, error) {
	logger := observability.RequestLogger(ctx, e.logger).With(zap.String("list", list.Key))
	resp, err := e.exec.Execute(ctx, graphql.Request{
		Query:     CreateMutation(list),
		Variables: map[string]any{"data": form.CreateData(list)},
	})
	if err != nil {
		logger.Warn("item create failed", zap.Error(err))
		return model.FormDescriptor{}, e.saveFailed(list, form, model.FormCreate, err.Error())
	}
	var out struct {
		Item field.Item `json:"item"`
	}
	if err := resp.Decode(&out); err != nil || out.Item == nil {
		logger.Warn("item create rejected", zap.Strings("errors", graphql.Messages(resp.Errors)))
		return model.FormDescriptor{}, e.saveFailed(list, form, model.FormCreate, graphql.Messages(resp.Errors)...)
	}

	d := form.Descriptor(meta, list)
	if err := e.sessions.Discard(form.Owner, form.ID); err != nil {
		logger.Debug("create form already closed", zap.String("form", form.ID))
	}
	e.metrics.RecordItemSave(list.Key, model.FormCreate, "ok")

	id := out.Item.ID()
	d.ItemID = id
	d.Href = views.ItemHref(list.Ref(), id)
	d.HasUnsavedChanges = false
	d.ChangedFields = []string{}
	d.Message = list.Singular + " created."
	logger.Info("item created", zap.String("item", id))
	return d, nil
}

// saveFailed keeps the edit state, records the backend messages on the
// form and returns the SAVE_FAILED error.
func (e *Engine) saveFailed(list *adminmeta.List, form *Form, kind string, messages ...string) error {
	e.metrics.RecordItemSave(list.Key, kind, "error")
	form.Errors = messages
	form.Message = ""
	if _, err := e.sessions.Commit(form); err != nil {
		return err
	}
	return model.NewSaveFailedError(messages...)
}

// Delete deletes one item. confirm must be set; the UI asks the user first.
func (e *Engine) Delete(ctx context.Context, list *adminmeta.List, id string, confirm bool) (model.DeleteItemResult, error) {
	if !confirm {
		return model.DeleteItemResult{}, model.NewBadRequestError("deleting an item requires confirmation")
	}
	if list.IsSingleton {
		id = SingletonID
	}
	logger := observability.RequestLogger(ctx, e.logger).With(zap.String("list", list.Key), zap.String("item", id))

	resp, err := e.exec.Execute(ctx, graphql.Request{
		Query:     DeleteMutation(list),
		Variables: map[string]any{"id": id},
	})
	if err != nil {
		e.metrics.RecordItemSave(list.Key, "delete", "error")
		logger.Warn("item delete failed", zap.Error(err))
		return model.DeleteItemResult{}, model.NewDeleteFailedError(err.Error())
	}
	var out struct {
		Item field.Item `json:"item"`
	}
	if err := resp.Decode(&out); err != nil || out.Item == nil {
		e.metrics.RecordItemSave(list.Key, "delete", "error")
		return model.DeleteItemResult{}, model.NewDeleteFailedError(graphql.Messages(resp.Errors)...)
	}

	e.metrics.RecordItemSave(list.Key, "delete", "ok")
	logger.Info("item deleted")
	redirect := "/" + list.Path
	if list.IsSingleton {
		redirect = "/"
	}
	return model.DeleteItemResult{ID: id, Message: list.Singular + " deleted.", Redirect: redirect}, nil
}

// Options loads the options of a relationship field of a form. With more
// set the next window of the current search is appended; otherwise the
// search restarts with term.
func (e *Engine) Options(ctx context.Context, meta *adminmeta.Meta, formID, path, term string, more bool) (model.OptionsPageDescriptor, error) {
	form, list, err := e.load(ctx, meta, formID)
	if err != nil {
		return model.OptionsPageDescriptor{}, err
	}
	f, ok := list.Fields[path]
	if !ok || f.Controller.References == nil || form.Modes[path] != model.FieldModeEdit {
		return model.OptionsPageDescriptor{}, model.NewBadRequestError(fmt.Sprintf("field %q has no options", path))
	}
	src, err := relationship.SourceFor(meta, f.Controller.References)
	if err != nil {
		return model.OptionsPageDescriptor{}, model.NewContractViolationError(err.Error())
	}
	pager, err := e.sessions.Pager(form.Owner, form.ID, path, func() *relationship.Pager {
		return relationship.NewPager(e.exec, src, e.metrics)
	})
	if err != nil {
		return model.OptionsPageDescriptor{}, err
	}

	var snap relationship.Snapshot
	if more {
		snap, err = pager.LoadMore(ctx)
	} else {
		snap, err = pager.Search(ctx, term)
	}
	if err != nil {
		return model.OptionsPageDescriptor{}, err
	}
	return OptionsDescriptor(src, snap), nil
}

// OptionsDescriptor converts a pager snapshot to its API form.
func OptionsDescriptor(src relationship.Source, snap relationship.Snapshot) model.OptionsPageDescriptor {
	out := model.OptionsPageDescriptor{
		List:    src.List.Key,
		Options: make([]model.OptionDescriptor, 0, len(snap.Items)),
		Count:   snap.Count,
		HasMore: snap.HasMore,
	}
	for _, r := range snap.Items {
		out.Options = append(out.Options, model.OptionDescriptor{Value: r.ID, Label: r.Label})
	}
	return out
}

// load returns the form with id and its list. Forms opened against other
// metadata are discarded, since their values belong to other controllers.
func (e *Engine) load(ctx context.Context, meta *adminmeta.Meta, formID string) (*Form, *adminmeta.List, error) {
	form, err := e.sessions.Get(owner(ctx), formID)
	if err != nil {
		return nil, nil, err
	}
	list, ok := meta.List(form.ListKey)
	if !ok || form.Checksum != meta.Checksum {
		_ = e.sessions.Discard(form.Owner, form.ID)
		return nil, nil, model.NewFormSupersededError()
	}
	return form, list, nil
}

// deserialize reads the item state of every field not hidden by modes.
// Fields addressed by errors of the item query become unreadable.
func deserialize(list *adminmeta.List, item field.Item, itemErrors []graphql.Error, modes map[string]string) field.Values {
	values := field.Values{}
	for _, f := range list.OrderedFields() {
		if modes[f.Path] == model.FieldModeHidden {
			continue
		}
		if msgs := fieldErrors(f, itemErrors); len(msgs) > 0 {
			values[f.Path] = field.State{Kind: field.StateError, Errors: msgs}
			continue
		}
		values[f.Path] = field.State{Kind: field.StateValue, Value: f.Controller.Deserialize(item)}
	}
	return values
}

func fieldErrors(f *adminmeta.Field, itemErrors []graphql.Error) []string {
	var out []string
	for _, e := range itemErrors {
		if len(e.Path) < 2 {
			continue
		}
		for _, k := range f.ResponseKeys {
			if k == e.Path[1] {
				out = append(out, e.Message)
				break
			}
		}
	}
	slices.Sort(out)
	return out
}
