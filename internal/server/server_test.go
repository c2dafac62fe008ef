package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/synapse/internal/config"
	"github.com/lazypower/synapse/internal/engine"
	"github.com/lazypower/synapse/internal/metrics"
	"github.com/lazypower/synapse/internal/store"
	"github.com/lazypower/synapse/internal/telemetry"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m := metrics.New()
	cfg := config.DefaultEngine()
	cfg.InferenceThreshold = 0.2
	eng, err := engine.New(engine.Options{
		DB:        db,
		Telemetry: &telemetry.Static{},
		Config:    cfg,
		Metrics:   m,
	})
	require.NoError(t, err)
	t.Cleanup(func() { eng.Shutdown(context.Background()) })
	return New(eng, db, m, nil, "test-version")
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), "body: %s", w.Body.String())
	return body
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "GET", "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test-version", body["version"])
	assert.Equal(t, true, body["db"])
}

func TestCreateAndGetNode(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "POST", "/api/nodes", map[string]any{
		"id":         "technology",
		"type":       "domain",
		"properties": map[string]any{"label": "Tech"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, srv, "GET", "/api/nodes/technology", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "domain", body["type"])
	assert.Equal(t, map[string]any{"label": "Tech"}, body["properties"])

	w = do(t, srv, "GET", "/api/nodes/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, srv, "GET", "/api/nodes?type=domain", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decodeBody(t, w)["count"])
}

func TestCreateNodeValidation(t *testing.T) {
	srv := testServer(t)

	tests := []struct {
		name string
		body any
	}{
		{"missing id", map[string]any{"type": "domain"}},
		{"blank id", map[string]any{"id": "  ", "type": "domain"}},
		{"missing type", map[string]any{"id": "a"}},
		{"bad json", "{not json"},
		{"properties not object", `{"id":"a","type":"t","properties":[1,2]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, "POST", "/api/nodes", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	w := do(t, srv, "POST", "/api/nodes", map[string]any{"type": "domain"})
	body := decodeBody(t, w)
	fields := body["fields"].([]any)
	require.Len(t, fields, 1)
	assert.Equal(t, "id", fields[0].(map[string]any)["field"])
}

func TestRelationshipsAndTraversal(t *testing.T) {
	srv := testServer(t)
	for _, id := range []string{"a", "b"} {
		w := do(t, srv, "POST", "/api/nodes", map[string]any{"id": id, "type": "concept"})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := do(t, srv, "POST", "/api/relationships", map[string]any{"from": "a", "to": "ghost", "edge_type": "uses"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, "POST", "/api/relationships", map[string]any{"from": "a", "to": "b", "edge_type": "uses", "strength": 0.7})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	edge := decodeBody(t, w)
	assert.Equal(t, "a_b", edge["id"])
	assert.Equal(t, 0.7, edge["strength"])

	w = do(t, srv, "POST", "/api/relationships", map[string]any{"from": "a", "to": "b", "edge_type": "uses", "strength": 3})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, "POST", "/api/edges/a_b/traverse", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decodeBody(t, w)["traversal_count"])

	w = do(t, srv, "POST", "/api/edges/nope/traverse", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, srv, "GET", "/api/nodes/b/neighbors", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"a"}, decodeBody(t, w)["neighbors"])

	w = do(t, srv, "GET", "/api/edges", nil)
	assert.Equal(t, 1.0, decodeBody(t, w)["count"])
}

func TestQueryEndpoint(t *testing.T) {
	srv := testServer(t)
	for _, id := range []string{"entrepreneurship", "technology"} {
		do(t, srv, "POST", "/api/nodes", map[string]any{"id": id, "type": "domain"})
	}

	w := do(t, srv, "GET", "/api/query?q=domain", nil)
	require.Equal(t, http.StatusOK, w.Code)
	results := decodeBody(t, w)["results"].([]any)
	require.Len(t, results, 2)
	first := results[0].(map[string]any)
	assert.Equal(t, 1.0, first["relevance"])
	assert.Equal(t, "entrepreneurship", first["node"].(map[string]any)["id"])

	w = do(t, srv, "GET", "/api/query", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMaintenanceRunAndDerivedViews(t *testing.T) {
	srv := testServer(t)
	for _, id := range []string{"A", "B", "C"} {
		do(t, srv, "POST", "/api/nodes", map[string]any{"id": id, "type": "concept"})
	}
	do(t, srv, "POST", "/api/relationships", map[string]any{"from": "A", "to": "B", "edge_type": "r", "strength": 0.8})
	do(t, srv, "POST", "/api/relationships", map[string]any{"from": "B", "to": "C", "edge_type": "r", "strength": 0.9})

	w := do(t, srv, "POST", "/api/maintenance/run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := decodeBody(t, w)
	assert.Equal(t, 1.0, report["inferred"])
	assert.Equal(t, 1.0, report["clusters"])

	w = do(t, srv, "GET", "/api/edges/A_C_inferred", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "inferred", decodeBody(t, w)["edge_type"])

	w = do(t, srv, "GET", "/api/clusters", nil)
	assert.Equal(t, 1.0, decodeBody(t, w)["count"])

	w = do(t, srv, "GET", "/api/inferences", nil)
	assert.Len(t, decodeBody(t, w)["inferences"], 1)

	require.NoError(t, srv.engine.Flush())
	w = do(t, srv, "GET", "/api/inferences?source=store", nil)
	assert.Len(t, decodeBody(t, w)["inferences"], 1)

	w = do(t, srv, "GET", "/api/stats", nil)
	stats := decodeBody(t, w)
	assert.Equal(t, 3.0, stats["nodes"])
	assert.Equal(t, 3.0, stats["edges"])
	assert.Equal(t, 1.0, stats["inferred_edges"])
}

func TestUsageEndpoint(t *testing.T) {
	srv := testServer(t)
	w := do(t, srv, "GET", "/api/usage", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t)
	do(t, srv, "POST", "/api/nodes", map[string]any{"id": "a", "type": "x"})
	do(t, srv, "GET", "/api/nodes/a", nil)

	w := do(t, srv, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "synapse_nodes_created_total 1"), body)
	assert.True(t, strings.Contains(body, `synapse_http_requests_total{method="GET",route="/api/nodes/{id}",status="200"} 1`), body)
}

func TestResourceErrorMapsTo503(t *testing.T) {
	srv := testServer(t)
	err := &engine.Error{Kind: engine.KindResource, Op: "x", Message: "busy"}
	w := httptest.NewRecorder()
	srv.writeEngineError(w, err)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
