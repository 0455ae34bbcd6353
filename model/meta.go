package model

import "encoding/json"

// Field modes reported by the admin metadata query.
const (
	FieldModeEdit   = "edit"
	FieldModeRead   = "read"
	FieldModeHidden = "hidden"

	FieldPositionForm    = "form"
	FieldPositionSidebar = "sidebar"
)

// MetaQueryResult is the data member of the admin metadata query response.
type MetaQueryResult struct {
	Keystone struct {
		AdminMeta AdminMetaResult `json:"adminMeta"`
	} `json:"keystone"`
}

// AdminMetaResult lists every content type the GraphQL API exposes.
type AdminMetaResult struct {
	Lists []ListMeta `json:"lists"`
}

// ListMeta is the server description of one list.
type ListMeta struct {
	Key            string      `json:"key"`
	ItemQueryName  string      `json:"itemQueryName"`
	ListQueryName  string      `json:"listQueryName"`
	InitialSort    *SortMeta   `json:"initialSort"`
	Path           string      `json:"path"`
	Label          string      `json:"label"`
	Singular       string      `json:"singular"`
	Plural         string      `json:"plural"`
	Description    *string     `json:"description"`
	InitialColumns []string    `json:"initialColumns"`
	PageSize       int         `json:"pageSize"`
	LabelField     string      `json:"labelField"`
	IsSingleton    bool        `json:"isSingleton"`
	Groups         []GroupMeta `json:"groups"`
	GraphQL        GraphQLMeta `json:"graphql"`
	Fields         []FieldMeta `json:"fields"`
	HideNavigation bool        `json:"hideNavigation"`
	HideCreate     bool        `json:"hideCreate"`
	HideDelete     bool        `json:"hideDelete"`
}

// SortMeta is a server declared default ordering.
type SortMeta struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// GroupMeta groups fields for display.
type GroupMeta struct {
	Label       string  `json:"label"`
	Description *string `json:"description"`
	Fields      []struct {
		Path string `json:"path"`
	} `json:"fields"`
}

// GraphQLMeta wraps the generated GraphQL names of a list.
type GraphQLMeta struct {
	Names GraphQLNames `json:"names"`
}

// GraphQLNames are the type, query and mutation names generated for a list.
type GraphQLNames struct {
	OutputTypeName                 string `json:"outputTypeName"`
	WhereInputName                 string `json:"whereInputName"`
	WhereUniqueInputName           string `json:"whereUniqueInputName"`
	CreateInputName                string `json:"createInputName"`
	CreateMutationName             string `json:"createMutationName"`
	CreateManyMutationName         string `json:"createManyMutationName"`
	RelateToOneForCreateInputName  string `json:"relateToOneForCreateInputName"`
	RelateToManyForCreateInputName string `json:"relateToManyForCreateInputName"`
	ItemQueryName                  string `json:"itemQueryName"`
	ListQueryName                  string `json:"listQueryName"`
	ListQueryCountName             string `json:"listQueryCountName"`
	ListOrderName                  string `json:"listOrderName"`
	UpdateInputName                string `json:"updateInputName"`
	UpdateMutationName             string `json:"updateMutationName"`
	UpdateManyInputName            string `json:"updateManyInputName"`
	UpdateManyMutationName         string `json:"updateManyMutationName"`
	RelateToOneForUpdateInputName  string `json:"relateToOneForUpdateInputName"`
	RelateToManyForUpdateInputName string `json:"relateToManyForUpdateInputName"`
	DeleteMutationName             string `json:"deleteMutationName"`
	DeleteManyMutationName         string `json:"deleteManyMutationName"`
}

// FieldMeta is the server description of one field.
type FieldMeta struct {
	Path             string          `json:"path"`
	Label            string          `json:"label"`
	Description      *string         `json:"description"`
	FieldMeta        json.RawMessage `json:"fieldMeta"`
	ViewsIndex       int             `json:"viewsIndex"`
	CustomViewsIndex *int            `json:"customViewsIndex"`
	Search           *string         `json:"search"`
	IsNonNull        []string        `json:"isNonNull"`
	CreateView       struct {
		FieldMode string `json:"fieldMode"`
	} `json:"createView"`
	ItemView struct {
		FieldMode     string `json:"fieldMode"`
		FieldPosition string `json:"fieldPosition"`
	} `json:"itemView"`
	ListView struct {
		FieldMode string `json:"fieldMode"`
	} `json:"listView"`
	IsOrderable  bool `json:"isOrderable"`
	IsFilterable bool `json:"isFilterable"`
}

// ItemViewMeta is the per item field mode returned by itemView(id:).
type ItemViewMeta struct {
	Path     string `json:"path"`
	ItemView *struct {
		FieldMode     string `json:"fieldMode"`
		FieldPosition string `json:"fieldPosition"`
	} `json:"itemView"`
}
