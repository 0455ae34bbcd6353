package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// MockAPI is an HTTP GraphQL server holding a small blog. Operations are
// routed by operation name; each one can be overridden with canned
// responses, and every received request is recorded.
type MockAPI struct {
	t      *testing.T
	server *httptest.Server
	meta   json.RawMessage

	mu        sync.Mutex
	posts     []map[string]any
	users     []map[string]any
	nextID    int
	overrides map[string][]*mockResponse
	received  []*RecordedRequest
}

// RecordedRequest captures one operation received by the mock API.
type RecordedRequest struct {
	Operation  string
	Query      string
	Variables  map[string]any
	Headers    http.Header
	ReceivedAt time.Time
}

type mockResponse struct {
	status int
	body   any
	delay  time.Duration
	once   bool
}

// OperationMock configures the responses of one operation.
type OperationMock struct {
	api *MockAPI
	op  string
}

func newMockAPI(t *testing.T, metaFile string, posts int) *MockAPI {
	t.Helper()

	raw, err := os.ReadFile(metaFile)
	if err != nil {
		t.Fatalf("read meta snapshot: %v", err)
	}
	api := &MockAPI{
		t:         t,
		meta:      raw,
		overrides: make(map[string][]*mockResponse),
		users: []map[string]any{
			{"id": "u1", "name": "Ann"},
			{"id": "u2", "name": "Bob"},
		},
	}
	for i := 1; i <= posts; i++ {
		api.posts = append(api.posts, PostFixture(fmt.Sprintf("p%d", i), fmt.Sprintf("Post %d", i)))
	}
	api.nextID = posts + 1

	api.server = httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(api.server.Close)
	return api
}

// URL returns the GraphQL endpoint.
func (m *MockAPI) URL() string {
	return m.server.URL + "/api/graphql"
}

// OnOperation returns a builder for the responses of op.
func (m *MockAPI) OnOperation(op string) *OperationMock {
	return &OperationMock{api: m, op: op}
}

// RespondWith answers every request for the operation with status and body
// until the operation is reset.
func (o *OperationMock) RespondWith(status int, body any) *OperationMock {
	o.push(&mockResponse{status: status, body: body})
	return o
}

// RespondOnce answers the next request only; later requests fall through
// to the following override or the blog.
func (o *OperationMock) RespondOnce(status int, body any) *OperationMock {
	o.push(&mockResponse{status: status, body: body, once: true})
	return o
}

// DelayBy holds requests for d before the blog answers them.
func (o *OperationMock) DelayBy(d time.Duration) *OperationMock {
	o.push(&mockResponse{delay: d})
	return o
}

func (o *OperationMock) push(r *mockResponse) {
	o.api.mu.Lock()
	defer o.api.mu.Unlock()
	o.api.overrides[o.op] = append(o.api.overrides[o.op], r)
}

// ResetOperation removes every override of op.
func (m *MockAPI) ResetOperation(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overrides, op)
}

// Requests returns the recorded requests for op.
func (m *MockAPI) Requests(op string) []*RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*RecordedRequest
	for _, r := range m.received {
		if r.Operation == op {
			out = append(out, r)
		}
	}
	return out
}

// LastRequest returns the most recent request for op or fails the test.
func (m *MockAPI) LastRequest(op string) *RecordedRequest {
	m.t.Helper()
	reqs := m.Requests(op)
	if len(reqs) == 0 {
		m.t.Fatalf("mock API received no %s request", op)
	}
	return reqs[len(reqs)-1]
}

// Post returns a copy of the stored post with id.
func (m *MockAPI) Post(id string) (map[string]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, p := m.find(id)
	if p == nil {
		return nil, false
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out, true
}

// PostCount returns the number of stored posts.
func (m *MockAPI) PostCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.posts)
}

func (m *MockAPI) serve(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	raw, _ := io.ReadAll(r.Body)
	if err := json.Unmarshal(raw, &body); err != nil {
		writeGraphQL(w, http.StatusBadRequest, errorsBody("invalid request body"))
		return
	}
	doc, err := parser.ParseQuery(&ast.Source{Input: body.Query})
	if err != nil || len(doc.Operations) == 0 {
		writeGraphQL(w, http.StatusBadRequest, errorsBody("invalid document"))
		return
	}
	op := doc.Operations[0]

	m.mu.Lock()
	m.received = append(m.received, &RecordedRequest{
		Operation:  op.Name,
		Query:      body.Query,
		Variables:  body.Variables,
		Headers:    r.Header.Clone(),
		ReceivedAt: time.Now(),
	})
	override := m.nextOverride(op.Name)
	m.mu.Unlock()

	if override != nil {
		if override.delay > 0 {
			select {
			case <-time.After(override.delay):
			case <-r.Context().Done():
				return
			}
		}
		if override.status != 0 {
			writeGraphQL(w, override.status, override.body)
			return
		}
	}

	m.mu.Lock()
	data, err := m.answer(op, body.Variables)
	m.mu.Unlock()
	if err != nil {
		writeGraphQL(w, http.StatusOK, errorsBody(err.Error()))
		return
	}
	writeGraphQL(w, http.StatusOK, data)
}

// nextOverride pops a one shot override or returns the sticky one.
func (m *MockAPI) nextOverride(op string) *mockResponse {
	list := m.overrides[op]
	if len(list) == 0 {
		return nil
	}
	r := list[0]
	if r.once {
		m.overrides[op] = list[1:]
	}
	return r
}

// answer runs op against the blog and returns the response body.
func (m *MockAPI) answer(op *ast.OperationDefinition, vars map[string]any) (any, error) {
	switch op.Name {
	case "":
		return map[string]any{"data": map[string]any{"__typename": "Query"}}, nil

	case "AdminMeta":
		return map[string]any{"data": m.meta}, nil

	case "ListPage":
		skip, take := intVar(vars, "skip"), intVar(vars, "take")
		items := []any{}
		for i := skip; i < len(m.posts) && i < skip+take; i++ {
			items = append(items, m.posts[i])
		}
		return dataBody(map[string]any{"items": items, "count": len(m.posts)}), nil

	case "Card":
		_, p := m.find(vars["id"])
		return dataBody(map[string]any{"item": p}), nil

	case "ItemPage":
		_, p := m.find(vars["id"])
		return dataBody(map[string]any{
			"item": p,
			"keystone": map[string]any{"adminMeta": map[string]any{"list": map[string]any{
				"hideCreate": false,
				"hideDelete": false,
				"fields":     []any{},
			}}},
		}), nil

	case "UpdateItem":
		_, p := m.find(vars["id"])
		if p == nil {
			return nil, fmt.Errorf("post %v not found", vars["id"])
		}
		data, _ := vars["data"].(map[string]any)
		for k, v := range data {
			p[k] = v
		}
		return dataBody(map[string]any{"item": p}), nil

	case "CreateItem":
		data, _ := vars["data"].(map[string]any)
		id := fmt.Sprintf("p%d", m.nextID)
		m.nextID++
		title, _ := data["title"].(string)
		post := PostFixture(id, title)
		for k, v := range data {
			post[k] = v
		}
		m.posts = append(m.posts, post)
		return dataBody(map[string]any{"item": map[string]any{"id": id, "label": title}}), nil

	case "DeleteItem":
		j, p := m.find(vars["id"])
		if p != nil {
			m.posts = append(m.posts[:j], m.posts[j+1:]...)
		}
		return dataBody(map[string]any{"item": p}), nil

	case "DeleteItems":
		where, _ := vars["where"].([]any)
		results := make([]any, len(where))
		for i, w := range where {
			unique, _ := w.(map[string]any)
			if j, p := m.find(unique["id"]); p != nil {
				m.posts = append(m.posts[:j], m.posts[j+1:]...)
				results[i] = map[string]any{"id": p["id"], "title": p["title"]}
			}
		}
		return dataBody(map[string]any{rootKey(op, 0): results}), nil

	case "RelationshipSelect":
		skip, take := intVar(vars, "skip"), intVar(vars, "take")
		items := []any{}
		for i := skip; i < len(m.users) && i < skip+take; i++ {
			items = append(items, userRef(m.users[i]))
		}
		return dataBody(map[string]any{"items": items, "count": len(m.users)}), nil

	case "RelationshipLabels":
		items := make([]any, len(m.users))
		for i, u := range m.users {
			items[i] = userRef(u)
		}
		return dataBody(map[string]any{"items": items}), nil
	}
	return nil, fmt.Errorf("unknown operation %q", op.Name)
}

func (m *MockAPI) find(id any) (int, map[string]any) {
	for i, p := range m.posts {
		if p["id"] == id {
			return i, p
		}
	}
	return -1, nil
}

// rootKey returns the response key of the i-th root field of op.
func rootKey(op *ast.OperationDefinition, i int) string {
	f, ok := op.SelectionSet[i].(*ast.Field)
	if !ok {
		return ""
	}
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

func userRef(u map[string]any) map[string]any {
	return map[string]any{"____id____": u["id"], "____label____": u["name"]}
}

// intVar reads a numeric variable, which JSON decodes as float64.
func intVar(vars map[string]any, name string) int {
	f, _ := vars[name].(float64)
	return int(f)
}

func dataBody(data any) map[string]any {
	return map[string]any{"data": data}
}

func errorsBody(messages ...string) map[string]any {
	errs := make([]any, len(messages))
	for i, msg := range messages {
		errs[i] = map[string]any{"message": msg}
	}
	return map[string]any{"errors": errs}
}

func writeGraphQL(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/graphql-response+json")
	w.WriteHeader(status)
	switch b := body.(type) {
	case nil:
	case string:
		io.WriteString(w, b)
	default:
		json.NewEncoder(w).Encode(b)
	}
}
