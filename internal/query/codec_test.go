package query

import (
	"context"
	"encoding/json"
	"math"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/adminmeta/internal/adminmeta"
	"github.com/pitabwire/adminmeta/internal/config"
	"github.com/pitabwire/adminmeta/internal/views"
)

func blogMeta(t *testing.T) *adminmeta.Meta {
	t.Helper()
	res, err := adminmeta.FileSource{Path: "../adminmeta/testdata/blog.json"}.Fetch(context.Background())
	require.NoError(t, err)
	reg, err := views.FromNames(config.DefaultViews, nil)
	require.NoError(t, err)
	m, err := adminmeta.Build(res, reg)
	require.NoError(t, err)
	return m
}

func blogList(t *testing.T, key string) *adminmeta.List {
	t.Helper()
	l, ok := blogMeta(t).List(key)
	require.True(t, ok)
	return l
}

func TestFilters_roundTripEveryOperator(t *testing.T) {
	post := blogList(t, "Post")
	sample := map[string]any{
		"id":        "abc",
		"title":     "hello world",
		"status":    []string{"draft"},
		"published": true,
		"views":     int64(42),
		"publishAt": "2024-03-01T10:00:00Z",
		"author":    "u1,u2",
		"tags":      "t1",
	}

	for _, f := range post.OrderedFields() {
		if !f.IsFilterable {
			continue
		}
		for _, op := range f.Controller.Filter.Order {
			e := Entry{Field: f.Path, Operator: op, Value: sample[f.Path]}
			if op == "empty" || op == "not_empty" {
				e.Value = nil
			}
			t.Run(f.Path+"_"+op, func(t *testing.T) {
				name, value, err := EncodeFilter(e)
				require.NoError(t, err)

				got, dropped := DecodeFilters(post, url.Values{name: {value}})
				assert.Empty(t, dropped)
				require.Len(t, got, 1)
				assert.Equal(t, e, got[0])
			})
		}
	}
}

func TestDecodeFilters_dropsUnknownAndMalformed(t *testing.T) {
	post := blogList(t, "Post")
	params := url.Values{
		"!title_contains_i": {`"a"`},
		"!title_bogus":      {`"b"`},
		"!views_gt":         {`"many"`},
		"!status_matches":   {`["nope"]`},
		"!published_is":     {`{`},
		"search":            {"x"},
	}
	entries, dropped := DecodeFilters(post, params)
	require.Len(t, entries, 1)
	assert.Equal(t, Entry{Field: "title", Operator: "contains_i", Value: "a"}, entries[0])

	reasons := map[string]string{}
	for _, d := range dropped {
		reasons[d.Param] = d.Reason
	}
	assert.Equal(t, map[string]string{
		"!title_bogus":    ReasonUnknownFilter,
		"!views_gt":       ReasonMalformedValue,
		"!status_matches": ReasonMalformedValue,
		"!published_is":   ReasonMalformedValue,
	}, reasons)
}

func TestDecodeFilters_orderAndRepeats(t *testing.T) {
	post := blogList(t, "Post")
	params := url.Values{
		"!views_gt":         {"1"},
		"!title_is_i":       {`"b"`},
		"!title_contains_i": {`"a"`, `"c"`},
	}
	entries, dropped := DecodeFilters(post, params)
	assert.Empty(t, dropped)
	assert.Equal(t, []Entry{
		{Field: "title", Operator: "contains_i", Value: "a"},
		{Field: "title", Operator: "contains_i", Value: "c"},
		{Field: "title", Operator: "is_i", Value: "b"},
		{Field: "views", Operator: "gt", Value: int64(1)},
	}, entries)
}

func TestWhere(t *testing.T) {
	post := blogList(t, "Post")
	where := Where(post, []Entry{
		{Field: "title", Operator: "not_contains_i", Value: "x"},
		{Field: "published", Operator: "is", Value: true},
		{Field: "author", Operator: "matches", Value: "u1,u2"},
	})
	assert.Equal(t, map[string]any{"AND": []any{
		map[string]any{"title": map[string]any{"not": map[string]any{"contains": "x", "mode": "insensitive"}}},
		map[string]any{"published": map[string]any{"equals": true}},
		map[string]any{"author": map[string]any{"id": map[string]any{"in": []string{"u1", "u2"}}}},
	}}, where)

	assert.Equal(t, map[string]any{"AND": []any{}}, Where(post, nil))
}

func TestDecodeSort(t *testing.T) {
	post := blogList(t, "Post")

	s, ok := DecodeSort(post, url.Values{})
	require.True(t, ok)
	assert.Equal(t, &Sort{Field: "title", Direction: Asc}, s)

	s, ok = DecodeSort(post, url.Values{ParamSortBy: {""}})
	assert.True(t, ok)
	assert.Nil(t, s)

	s, ok = DecodeSort(post, url.Values{ParamSortBy: {"-views"}})
	require.True(t, ok)
	assert.Equal(t, &Sort{Field: "views", Direction: Desc}, s)
	assert.Equal(t, "-views", EncodeSort(*s))
	assert.Equal(t, []map[string]any{{"views": "desc"}}, OrderBy(s))

	s, ok = DecodeSort(post, url.Values{ParamSortBy: {"author"}})
	assert.False(t, ok, "relationship fields are not orderable")
	assert.Nil(t, s)
	assert.Equal(t, []map[string]any{}, OrderBy(s))
}

func TestColumns(t *testing.T) {
	post := blogList(t, "Post")
	assert.Equal(t, []string{"views", "title"}, Columns(post, "views,title,views,id,nope"))
	assert.Equal(t, []string{"title", "status", "author"}, Columns(post, ""))
	assert.Equal(t, []string{"title", "status", "author"}, Columns(post, "id"))
}

func TestDecode_fullState(t *testing.T) {
	post := blogList(t, "Post")
	params, err := url.ParseQuery("!title_contains_i=%22a%22&sortBy=-views&fields=title,views&search=hi&page=3&pageSize=10&page_junk=1")
	require.NoError(t, err)

	st, dropped := Decode(post, params)
	assert.Empty(t, dropped)
	assert.Equal(t, State{
		Filters:  []Entry{{Field: "title", Operator: "contains_i", Value: "a"}},
		Sort:     &Sort{Field: "views", Direction: Desc},
		Columns:  []string{"title", "views"},
		Search:   "hi",
		Page:     3,
		PageSize: 10,
	}, st)

	again, dropped := Decode(post, st.Encode())
	assert.Empty(t, dropped)
	assert.Equal(t, st, again)
}

func TestDecode_invalidPaging(t *testing.T) {
	post := blogList(t, "Post")
	st, dropped := Decode(post, url.Values{ParamPage: {"x"}, ParamPageSize: {"-2"}, ParamSortBy: {"nope"}})
	assert.Equal(t, 1, st.Page)
	assert.Equal(t, 50, st.PageSize)
	assert.Nil(t, st.Sort)
	assert.ElementsMatch(t, []Dropped{
		{Param: ParamSortBy, Reason: ReasonInvalidSort},
		{Param: ParamPage, Reason: ReasonInvalidPage},
		{Param: ParamPageSize, Reason: ReasonInvalidPage},
	}, dropped)
}

func TestDecode_hugePagesStayInIntRange(t *testing.T) {
	post := blogList(t, "Post")
	for _, page := range []string{"9223372036854775807", "200000000000000000", "2147483647"} {
		t.Run(page, func(t *testing.T) {
			st, dropped := Decode(post, url.Values{ParamPage: {page}, ParamPageSize: {"50"}})
			assert.Empty(t, dropped)
			assert.Equal(t, MaxPage(50), st.Page)

			skip := Offset(st.Page, st.PageSize)
			assert.GreaterOrEqual(t, skip, 0)
			assert.LessOrEqual(t, skip, math.MaxInt32)
		})
	}

	st, dropped := Decode(post, url.Values{ParamPage: {"99999999999999999999"}})
	assert.Equal(t, 1, st.Page)
	assert.Equal(t, []Dropped{{Param: ParamPage, Reason: ReasonInvalidPage}}, dropped)
}

func TestDecode_pageSizeIsCapped(t *testing.T) {
	post := blogList(t, "Post")

	st, dropped := Decode(post, url.Values{ParamPageSize: {"1000"}})
	assert.Empty(t, dropped)
	assert.Equal(t, MaxPageSize, st.PageSize)

	st, dropped = Decode(post, url.Values{ParamPageSize: {"1001"}})
	assert.Equal(t, 50, st.PageSize)
	assert.Equal(t, []Dropped{{Param: ParamPageSize, Reason: ReasonInvalidPage}}, dropped)

	st, _ = Decode(post, url.Values{ParamPage: {"9223372036854775807"}, ParamPageSize: {"1000"}})
	assert.LessOrEqual(t, Offset(st.Page, st.PageSize), math.MaxInt32)
}

func TestFilters_roundTripBoundaryValues(t *testing.T) {
	post := blogList(t, "Post")
	boundaries := []struct {
		name  string
		value any
	}{
		{"empty string", ""},
		{"zero", int64(0)},
		{"false", false},
		{"empty list", []string{}},
		{"null", nil},
	}

	for _, f := range post.OrderedFields() {
		if !f.IsFilterable {
			continue
		}
		for _, op := range f.Controller.Filter.Order {
			for _, b := range boundaries {
				t.Run(f.Path+"_"+op+"/"+b.name, func(t *testing.T) {
					parsed, err := f.Controller.Filter.Parse(op, mustJSON(t, b.value))
					if err != nil {
						// The value does not fit this operator; the codec must
						// drop it rather than decode something else.
						name, value, encErr := EncodeFilter(Entry{Field: f.Path, Operator: op, Value: b.value})
						require.NoError(t, encErr)
						got, dropped := DecodeFilters(post, url.Values{name: {value}})
						assert.Empty(t, got)
						assert.Len(t, dropped, 1)
						return
					}

					e := Entry{Field: f.Path, Operator: op, Value: parsed}
					name, value, err := EncodeFilter(e)
					require.NoError(t, err)
					got, dropped := DecodeFilters(post, url.Values{name: {value}})
					assert.Empty(t, dropped)
					require.Len(t, got, 1)
					assert.Equal(t, e, got[0])
				})
			}
		}
	}
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}
