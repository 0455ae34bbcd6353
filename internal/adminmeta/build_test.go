package adminmeta

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/adminmeta/internal/config"
	"github.com/pitabwire/adminmeta/internal/field"
	"github.com/pitabwire/adminmeta/internal/views"
	"github.com/pitabwire/adminmeta/model"
)

func defaultRegistry(t *testing.T) *views.Registry {
	t.Helper()
	reg, err := views.FromNames(config.DefaultViews, nil)
	require.NoError(t, err)
	return reg
}

func blogResult(t *testing.T) model.AdminMetaResult {
	t.Helper()
	res, err := FileSource{Path: "testdata/blog.json"}.Fetch(context.Background())
	require.NoError(t, err)
	return res
}

func TestBuild_blog(t *testing.T) {
	m, err := Build(blogResult(t), defaultRegistry(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"Post", "User", "Tag", "Settings"}, m.Order)
	assert.NotEmpty(t, m.Checksum)

	post, ok := m.List("Post")
	require.True(t, ok)
	assert.Equal(t, "title", post.LabelField)
	assert.Equal(t, "PostWhereInput", post.Names.WhereInputName)
	assert.Equal(t, []string{"id", "title", "status", "published", "views", "publishAt", "author", "tags", "excerpt"}, post.FieldOrder)

	author, _ := post.Field("author")
	assert.Equal(t, "relationship", author.Views.Name)
	assert.Equal(t, []string{"author"}, author.ResponseKeys)
	require.NotNil(t, author.Controller.References)
	assert.Equal(t, "User", author.Controller.References.ListKey)

	user, _ := m.List("User")
	posts, _ := user.Field("posts")
	assert.Equal(t, []string{"postsCount"}, posts.ResponseKeys)

	excerpt, _ := post.Field("excerpt")
	assert.False(t, excerpt.IsFilterable, "fields without a filter capability are not filterable")

	require.Len(t, post.Groups, 1)
	assert.Equal(t, "publishAt", post.Groups[0].Fields[1].Path)

	searchable := post.Searchable()
	require.Len(t, searchable, 1)
	assert.Equal(t, "insensitive", searchable[0].Search)

	title, _ := post.Field("title")
	assert.True(t, title.NonNull("read"))
	assert.False(t, title.NonNull("create"))

	byPath, ok := m.ListByPath("tags")
	require.True(t, ok)
	assert.Equal(t, "Tag", byPath.Key)

	ref, ok := m.ListRef("Tag")
	require.True(t, ok)
	assert.Equal(t, views.ListRef{Key: "Tag", Path: "tags", Singular: "Tag", Plural: "Tags"}, ref)
}

func TestParseSnapshot_yamlMatchesJSON(t *testing.T) {
	fromYAML, err := FileSource{Path: "testdata/blog.yaml"}.Fetch(context.Background())
	require.NoError(t, err)
	a, err := Build(fromYAML, defaultRegistry(t))
	require.NoError(t, err)
	b, err := Build(blogResult(t), defaultRegistry(t))
	require.NoError(t, err)
	assert.Equal(t, b.Checksum, a.Checksum)
}

func oneFieldResult(fm model.FieldMeta) model.AdminMetaResult {
	return model.AdminMetaResult{Lists: []model.ListMeta{{Key: "Post", Path: "posts", Fields: []model.FieldMeta{fm}}}}
}

func intPtr(i int) *int { return &i }

func TestBuild_contractErrors(t *testing.T) {
	reg := defaultRegistry(t)
	customBad := views.Module{Name: "bad", Exports: map[string]any{"Toolbar": "x"}}
	customOK := views.Module{Name: "fancy", Exports: map[string]any{"placeholder": "Say something"}}
	incomplete := views.Module{Name: "partial", Exports: map[string]any{views.ExportController: field.Factory(field.Text)}}
	extra, _ := views.Builtin("text")
	extra.Exports["Toolbar"] = "x"
	withCustom := views.NewRegistry(mustBuiltin(t, "text"), customBad, customOK, incomplete, extra)

	tests := []struct {
		name string
		reg  *views.Registry
		fm   model.FieldMeta
		want string
	}{
		{"views index out of range", reg, model.FieldMeta{Path: "title", ViewsIndex: 42}, "viewsIndex 42 is out of range"},
		{"missing export", withCustom, model.FieldMeta{Path: "title", ViewsIndex: 3}, "missing the Cell export"},
		{"unexpected base export", withCustom, model.FieldMeta{Path: "title", ViewsIndex: 4}, "unexpected export named Toolbar"},
		{"unexpected custom export", withCustom, model.FieldMeta{Path: "title", ViewsIndex: 0, CustomViewsIndex: intPtr(1)}, "unexpected export named Toolbar from the custom view"},
		{"custom index out of range", withCustom, model.FieldMeta{Path: "title", ViewsIndex: 0, CustomViewsIndex: intPtr(9)}, "customViewsIndex 9 is out of range"},
		{"bad field meta", reg, model.FieldMeta{Path: "author", ViewsIndex: 8, FieldMeta: json.RawMessage(`{}`)}, "controller construction failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(oneFieldResult(tt.fm), tt.reg)
			var ce *ContractError
			if !errors.As(err, &ce) {
				t.Fatalf("Build() error = %v, want *ContractError", err)
			}
			assert.Contains(t, ce.Error(), tt.want)
			assert.Equal(t, "Post", ce.List)
			assert.Equal(t, model.ErrContractViolation, ce.Envelope().Code)
		})
	}

	m, err := Build(oneFieldResult(model.FieldMeta{Path: "title", ViewsIndex: 0, CustomViewsIndex: intPtr(2)}), withCustom)
	require.NoError(t, err)
	f, _ := m.Lists["Post"].Field("title")
	assert.Equal(t, map[string]any{"placeholder": "Say something"}, f.CustomViews)
	assert.Equal(t, "fancy", f.Views.Name)
}

func TestBuild_duplicatesAndGroups(t *testing.T) {
	reg := defaultRegistry(t)
	dupField := model.AdminMetaResult{Lists: []model.ListMeta{{Key: "Post", Fields: []model.FieldMeta{{Path: "title", ViewsIndex: 1}, {Path: "title", ViewsIndex: 1}}}}}
	_, err := Build(dupField, reg)
	assert.ErrorContains(t, err, "duplicate field path")

	dupList := model.AdminMetaResult{Lists: []model.ListMeta{{Key: "Post"}, {Key: "Post"}}}
	_, err = Build(dupList, reg)
	assert.ErrorContains(t, err, "duplicate list key")

	res := blogResult(t)
	res.Lists[0].Groups[0].Fields[0].Path = "missing"
	_, err = Build(res, reg)
	assert.ErrorContains(t, err, "unknown field")
}

func mustBuiltin(t *testing.T, name string) views.Module {
	t.Helper()
	m, ok := views.Builtin(name)
	require.True(t, ok)
	return m
}

func TestDescriptorAndNavigation(t *testing.T) {
	m, err := Build(blogResult(t), defaultRegistry(t))
	require.NoError(t, err)

	caps := model.CapabilitySet{"Post:read": true, "Settings:*": true}
	d := m.Descriptor(caps)
	require.Len(t, d.Lists, 2)
	assert.Equal(t, "Post", d.Lists[0].Key)
	assert.True(t, d.Lists[0].HideCreate, "no create capability")
	assert.True(t, d.Lists[0].HideDelete)
	assert.Equal(t, &model.SortDescriptor{Field: "title", Direction: "ASC"}, d.Lists[0].InitialSort)

	title := d.Lists[0].Fields[1]
	assert.Equal(t, "text", title.View)
	assert.True(t, title.Searchable)
	require.Len(t, title.Filters, 8)
	assert.Equal(t, model.FilterTypeDescriptor{Operator: "contains_i", Label: "Contains", InitialValue: ""}, title.Filters[0])

	nav := m.Navigation(caps)
	require.Len(t, nav.Items, 2)
	assert.Equal(t, model.NavigationItem{Key: "Settings", Label: "Settings", Route: "/settings", IsSingleton: true}, nav.Items[1])
}
