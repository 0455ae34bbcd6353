package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/adminmeta/internal/config"
	"github.com/pitabwire/adminmeta/internal/observability"
	"github.com/pitabwire/adminmeta/model"
)

func testConfig(endpoint string) config.GraphQLConfig {
	cfg := config.Defaults().GraphQL
	cfg.Endpoint = endpoint
	cfg.Retry.BackoffInitial = time.Millisecond
	cfg.Retry.BackoffMax = time.Millisecond
	return cfg
}

func TestClient_Execute_sendsQueryAndVariables(t *testing.T) {
	var got Request
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"items":[{"id":"1"}],"count":1}}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Headers = map[string]string{"X-Admin": "yes\r\nInjected: 1"}
	c := NewClient(cfg)

	ctx := model.WithRequestContext(context.Background(), &model.RequestContext{
		SubjectID:     "user-1",
		BearerToken:   "token-abc",
		CorrelationID: "corr-1",
	})
	resp, err := c.Execute(ctx, Request{
		Query:     "query($take: Int!) { items: posts(take: $take) { id } count: postsCount }",
		Variables: map[string]any{"take": 50},
	})
	require.NoError(t, err)

	var data struct {
		Items []struct{ ID string } `json:"items"`
		Count int                   `json:"count"`
	}
	require.NoError(t, resp.Decode(&data))
	assert.Equal(t, 1, data.Count)
	assert.Equal(t, "1", data.Items[0].ID)

	assert.Equal(t, float64(50), got.Variables["take"])
	assert.Equal(t, "Bearer token-abc", headers.Get("Authorization"))
	assert.Equal(t, "corr-1", headers.Get("X-Correlation-Id"))
	assert.Equal(t, "yesInjected: 1", headers.Get("X-Admin"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
}

func TestClient_Execute_forwardAuthDisabled(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`{"data":{"__typename":"Query"}}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.ForwardAuth = false
	ctx := model.WithRequestContext(context.Background(), &model.RequestContext{SubjectID: "u", BearerToken: "t"})

	_, err := NewClient(cfg).Execute(ctx, Request{Query: "{ __typename }"})
	require.NoError(t, err)
	assert.Empty(t, auth)
}

func TestClient_Execute_returnsDataAndErrorsTogether(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"data": {"item": {"id": "1", "title": null}},
			"errors": [{"message": "Access denied", "path": ["item", "title"]}]
		}`))
	}))
	defer srv.Close()

	resp, err := NewClient(testConfig(srv.URL)).Execute(context.Background(), Request{Query: "{ item: post(where: {id: 1}) { id title } }"})
	require.NoError(t, err)
	require.Len(t, resp.Errors, 1)

	assert.False(t, resp.Errors[0].TopLevel())
	assert.Empty(t, resp.TopLevelErrors())
	assert.Len(t, resp.ErrorsUnder("item", "title"), 1)
	assert.Equal(t, "item.title: Access denied", resp.Errors[0].Error())
	assert.Equal(t, []string{"Access denied"}, Messages(resp.Errors))
}

func TestClient_Execute_graphQLValidationErrorOn400(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"message":"Cannot query field \"bogus\""}]}`))
	}))
	defer srv.Close()

	resp, err := NewClient(testConfig(srv.URL)).Execute(context.Background(), Request{Query: "{ bogus }"})
	require.NoError(t, err)
	require.Len(t, resp.TopLevelErrors(), 1)
	assert.Error(t, resp.Decode(&struct{}{}))
}

func TestClient_Execute_retriesQueries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"data":{"ok":true}}`))
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	m := observability.InitMetrics(reg)
	c := NewClient(testConfig(srv.URL), WithMetrics(m))

	_, err := c.Execute(context.Background(), Request{Query: "{ ok }"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.GraphQLRetriesTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.GraphQLRequestsTotal.WithLabelValues("query", "ok")))
}

func TestClient_Execute_neverRetriesMutations(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(testConfig(srv.URL)).Execute(context.Background(), Request{
		Query: "mutation($id: ID!) { deletePost(where: {id: $id}) { id } }",
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var env *model.ErrorEnvelope
	require.True(t, errors.As(err, &env))
	assert.Equal(t, model.ErrBackendUnavailable, env.Code)
}

func TestClient_Execute_invalidDocument(t *testing.T) {
	c := NewClient(testConfig("http://127.0.0.1:1"))
	_, err := c.Execute(context.Background(), Request{Query: "query { posts { id }"})
	assert.Error(t, err)
}

func TestClient_Execute_openBreakerRejects(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Retry.MaxAttempts = 1
	cfg.CircuitBreaker.FailureThreshold = 2
	cfg.CircuitBreaker.Timeout = time.Hour

	reg := prometheus.NewRegistry()
	m := observability.InitMetrics(reg)
	c := NewClient(cfg, WithMetrics(m))

	for i := 0; i < 3; i++ {
		_, err := c.Execute(context.Background(), Request{Query: "{ ok }"})
		require.Error(t, err)
	}
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, BreakerOpen, c.BreakerState())
	assert.Equal(t, float64(2), testutil.ToFloat64(m.GraphQLCircuitBreakerState))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.GraphQLRequestsTotal.WithLabelValues("query", "circuit_open")))
}

func TestClient_Execute_serverErrorWithGraphQLBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"data":null,"errors":[{"message":"boom","path":["updatePost"]}]}`))
	}))
	defer srv.Close()

	resp, err := NewClient(testConfig(srv.URL)).Execute(context.Background(), Request{Query: "mutation { updatePost { id } }"})
	require.NoError(t, err)
	assert.Len(t, resp.TopLevelErrors(), 1)
}

func TestClient_Execute_nonGraphQLBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>login</html>`))
	}))
	defer srv.Close()

	_, err := NewClient(testConfig(srv.URL)).Execute(context.Background(), Request{Query: "{ ok }"})
	assert.Error(t, err)
}

func TestClient_Execute_timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewClient(testConfig(srv.URL)).Execute(ctx, Request{Query: "{ ok }"})
	var env *model.ErrorEnvelope
	require.True(t, errors.As(err, &env))
	assert.Equal(t, model.ErrBackendTimeout, env.Code)
}

func TestClient_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"__typename":"Query"}}`))
	}))
	defer srv.Close()

	assert.NoError(t, NewClient(testConfig(srv.URL)).HealthCheck(context.Background()))
}

func TestBackoff(t *testing.T) {
	cfg := config.RetryConfig{BackoffInitial: 100 * time.Millisecond, BackoffMultiplier: 2, BackoffMax: 300 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, backoff(cfg, 1))
	assert.Equal(t, 200*time.Millisecond, backoff(cfg, 2))
	assert.Equal(t, 300*time.Millisecond, backoff(cfg, 3))
	assert.Equal(t, 100*time.Millisecond, backoff(config.RetryConfig{}, 1))
}

func TestError_Under(t *testing.T) {
	e := Error{Message: "denied", Path: []any{"items", float64(2), "author"}}
	assert.True(t, e.Under("items", 2))
	assert.True(t, e.Under("items", 2, "author"))
	assert.False(t, e.Under("items", 1))
	assert.False(t, e.Under("items", 2, "author", "id"))
}
