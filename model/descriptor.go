package model

// MetaDescriptor is the admin metadata sent to the browser shell.
type MetaDescriptor struct {
	Lists []ListDescriptor `json:"lists"`
}

// ListDescriptor describes one list and its fields.
type ListDescriptor struct {
	Key            string            `json:"key"`
	Path           string            `json:"path"`
	Label          string            `json:"label"`
	Singular       string            `json:"singular"`
	Plural         string            `json:"plural"`
	Description    string            `json:"description,omitempty"`
	LabelField     string            `json:"label_field"`
	IsSingleton    bool              `json:"is_singleton"`
	PageSize       int               `json:"page_size"`
	InitialColumns []string          `json:"initial_columns"`
	InitialSort    *SortDescriptor   `json:"initial_sort,omitempty"`
	HideCreate     bool              `json:"hide_create"`
	HideDelete     bool              `json:"hide_delete"`
	HideNavigation bool              `json:"hide_navigation"`
	Fields         []FieldDescriptor `json:"fields"`
	Groups         []GroupDescriptor `json:"groups,omitempty"`
}

// FieldDescriptor describes a field of a list independent of any item.
type FieldDescriptor struct {
	Path         string                 `json:"path"`
	Label        string                 `json:"label"`
	Description  string                 `json:"description,omitempty"`
	View         string                 `json:"view"`
	CreateMode   string                 `json:"create_mode"`
	ItemMode     string                 `json:"item_mode"`
	ItemPosition string                 `json:"item_position"`
	ListMode     string                 `json:"list_mode"`
	IsFilterable bool                   `json:"is_filterable"`
	IsOrderable  bool                   `json:"is_orderable"`
	Searchable   bool                   `json:"searchable"`
	Filters      []FilterTypeDescriptor `json:"filters,omitempty"`
}

// FilterTypeDescriptor describes one operator a field can be filtered by.
type FilterTypeDescriptor struct {
	Operator     string `json:"operator"`
	Label        string `json:"label"`
	InitialValue any    `json:"initial_value"`
}

// GroupDescriptor is an ordered set of field paths rendered together.
type GroupDescriptor struct {
	Label       string   `json:"label"`
	Description string   `json:"description,omitempty"`
	Fields      []string `json:"fields"`
}

// NavigationDescriptor lists the lists a user can navigate to.
type NavigationDescriptor struct {
	Items []NavigationItem `json:"items"`
}

// NavigationItem is a single navigation entry.
type NavigationItem struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Route       string `json:"route"`
	IsSingleton bool   `json:"is_singleton"`
}

// SortDescriptor is a single field ordering.
type SortDescriptor struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// ListPageDescriptor is the fully resolved list page.
type ListPageDescriptor struct {
	List          string                   `json:"list"`
	Label         string                   `json:"label"`
	Columns       []ColumnDescriptor       `json:"columns"`
	Rows          []RowDescriptor          `json:"rows"`
	Count         int                      `json:"count"`
	Pagination    PaginationDescriptor     `json:"pagination"`
	Sort          *SortDescriptor          `json:"sort,omitempty"`
	Filters       []ActiveFilterDescriptor `json:"filters"`
	Search        string                   `json:"search,omitempty"`
	IsConstrained bool                     `json:"is_constrained"`
	IsEmpty       bool                     `json:"is_empty"`
	AllowCreate   bool                     `json:"allow_create"`
	AllowDelete   bool                     `json:"allow_delete"`
	Errors        []string                 `json:"errors,omitempty"`
}

// ColumnDescriptor describes a visible table column.
type ColumnDescriptor struct {
	Field    string `json:"field"`
	Label    string `json:"label"`
	Sortable bool   `json:"sortable"`
	Sorted   string `json:"sorted,omitempty"`
}

// RowDescriptor is one rendered item of a list page.
type RowDescriptor struct {
	ID    string           `json:"id"`
	Href  string           `json:"href"`
	Cells []CellDescriptor `json:"cells"`
}

// Cell kinds.
const (
	CellText   = "text"
	CellNumber = "number"
	CellBadge  = "badge"
	CellLinks  = "links"
	CellEmpty  = "empty"
	CellError  = "error"
)

// CellDescriptor is the rendered value of one field of one item.
type CellDescriptor struct {
	Field string           `json:"field"`
	Kind  string           `json:"kind"`
	Text  string           `json:"text,omitempty"`
	Value any              `json:"value,omitempty"`
	Tone  string           `json:"tone,omitempty"`
	Links []LinkDescriptor `json:"links,omitempty"`
	Error string           `json:"error,omitempty"`
}

// LinkDescriptor points at another item.
type LinkDescriptor struct {
	Label string `json:"label"`
	Href  string `json:"href"`
}

// PaginationDescriptor describes the page window of a list page.
type PaginationDescriptor struct {
	Page      int `json:"page"`
	PageSize  int `json:"page_size"`
	PageCount int `json:"page_count"`
	Skip      int `json:"skip"`
	Take      int `json:"take"`
}

// ActiveFilterDescriptor is a decoded filter entry with its display label.
type ActiveFilterDescriptor struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Label    string `json:"label"`
	Value    any    `json:"value"`
	Param    string `json:"param"`
}

// BulkDeleteResult reports the outcome of a multi-item delete.
type BulkDeleteResult struct {
	Deleted        []string `json:"deleted"`
	Failed         []string `json:"failed"`
	Message        string   `json:"message,omitempty"`
	FailureMessage string   `json:"failure_message,omitempty"`
	Errors         []string `json:"errors,omitempty"`
}

// Form kinds.
const (
	FormCreate = "create"
	FormUpdate = "update"
)

// FormDescriptor is the state of an open create or edit form.
type FormDescriptor struct {
	ID                string                `json:"id"`
	List              string                `json:"list"`
	Kind              string                `json:"kind"`
	ItemID            string                `json:"item_id,omitempty"`
	Href              string                `json:"href,omitempty"`
	Title             string                `json:"title"`
	Fields            []FormFieldDescriptor `json:"fields"`
	Groups            []GroupDescriptor     `json:"groups,omitempty"`
	ChangedFields     []string              `json:"changed_fields"`
	InvalidFields     []string              `json:"invalid_fields,omitempty"`
	HasUnsavedChanges bool                  `json:"has_unsaved_changes"`
	AllowDelete       bool                  `json:"allow_delete"`
	Errors            []string              `json:"errors,omitempty"`
	Message           string                `json:"message,omitempty"`
}

// DeleteItemResult reports a deleted item and where the UI goes next.
type DeleteItemResult struct {
	ID       string `json:"id"`
	Message  string `json:"message"`
	Redirect string `json:"redirect"`
}

// FormFieldDescriptor is one rendered form input.
type FormFieldDescriptor struct {
	Path        string             `json:"path"`
	Label       string             `json:"label"`
	Description string             `json:"description,omitempty"`
	View        string             `json:"view"`
	Mode        string             `json:"mode"`
	Position    string             `json:"position"`
	Value       any                `json:"value"`
	Required    bool               `json:"required,omitempty"`
	Invalid     bool               `json:"invalid,omitempty"`
	Error       string             `json:"error,omitempty"`
	Options     []OptionDescriptor `json:"options,omitempty"`
	Control     map[string]any     `json:"control,omitempty"`
}

// OptionDescriptor is a selectable value.
type OptionDescriptor struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// CardDescriptor summarises an item with each field's card value.
type CardDescriptor struct {
	List   string           `json:"list"`
	ItemID string           `json:"item_id"`
	Href   string           `json:"href"`
	Values []CellDescriptor `json:"values"`
}

// OptionsPageDescriptor is the accumulated option list of a relationship picker.
type OptionsPageDescriptor struct {
	List    string             `json:"list"`
	Options []OptionDescriptor `json:"options"`
	Count   int                `json:"count"`
	HasMore bool               `json:"has_more"`
}
