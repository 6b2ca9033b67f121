package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Runbook-Agent/change-intelligence/internal/graph"
	"github.com/Runbook-Agent/change-intelligence/internal/models"
	"github.com/Runbook-Agent/change-intelligence/internal/service"
	"github.com/Runbook-Agent/change-intelligence/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	g := graph.New()
	g.AddDependency(graph.DependencyEdge{Source: "web", Target: "api"})
	return NewServer(0, service.New(st, g, nil))
}

func do(t *testing.T, s *Server, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func TestCreateEventStatusCodes(t *testing.T) {
	s := newTestServer(t)
	event := map[string]interface{}{
		"service":    "api",
		"summary":    "Deploy api",
		"changeType": "deployment",
	}

	created := do(t, s, http.MethodPost, "/api/v1/events", event,
		map[string]string{"Idempotency-Key": "deploy-1"})
	assert.Equal(t, http.StatusCreated, created.Code)

	var first models.ChangeEvent
	decode(t, created, &first)
	assert.NotEmpty(t, first.ID)
	assert.NotNil(t, first.BlastRadius)

	duplicate := do(t, s, http.MethodPost, "/api/v1/events", event,
		map[string]string{"Idempotency-Key": "deploy-1"})
	assert.Equal(t, http.StatusOK, duplicate.Code, "duplicate idempotency key returns the stored event")

	var second models.ChangeEvent
	decode(t, duplicate, &second)
	assert.Equal(t, first.ID, second.ID)
}

func TestCreateEventRejectsInvalidPayload(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader([]byte("{broken")))
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	missing := do(t, s, http.MethodPost, "/api/v1/events", map[string]interface{}{"service": "api"}, nil)
	assert.Equal(t, http.StatusBadRequest, missing.Code)

	var resp ErrorResponse
	decode(t, missing, &resp)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error)
}

func TestGetEventNotFound(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/v1/events/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	decode(t, rec, &resp)
	assert.Equal(t, "NOT_FOUND", resp.Error)
}

func TestEventLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	created := do(t, s, http.MethodPost, "/api/v1/events", map[string]interface{}{
		"service": "api", "summary": "Deploy", "changeType": "deployment",
	}, nil)
	require.Equal(t, http.StatusCreated, created.Code)
	var event models.ChangeEvent
	decode(t, created, &event)

	patched := do(t, s, http.MethodPatch, "/api/v1/events/"+event.ID, map[string]interface{}{
		"status": "rolled_back",
	}, nil)
	assert.Equal(t, http.StatusOK, patched.Code)
	var updated models.ChangeEvent
	decode(t, patched, &updated)
	assert.Equal(t, models.StatusRolledBack, updated.Status)

	deleted := do(t, s, http.MethodDelete, "/api/v1/events/"+event.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, deleted.Code)

	gone := do(t, s, http.MethodGet, "/api/v1/events/"+event.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, gone.Code)
}

func TestBatchCreateOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/v1/events/batch", map[string]interface{}{
		"events": []map[string]interface{}{
			{"service": "api", "summary": "one", "changeType": "deployment"},
			{"service": "web", "summary": "two", "changeType": "config_change"},
		},
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Count  int                   `json:"count"`
		Events []*models.ChangeEvent `json:"events"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, 2, resp.Count)

	empty := do(t, s, http.MethodPost, "/api/v1/events/batch", map[string]interface{}{
		"events": []map[string]interface{}{},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, empty.Code)
}

func TestQueryEventsOverHTTP(t *testing.T) {
	s := newTestServer(t)
	for _, env := range []string{"production", "staging"} {
		rec := do(t, s, http.MethodPost, "/api/v1/events", map[string]interface{}{
			"service": "api", "summary": "deploy to " + env,
			"changeType": "deployment", "environment": env,
		}, nil)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := do(t, s, http.MethodGet, "/api/v1/events?environment=staging", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Count int `json:"count"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, 1, resp.Count)

	bad := do(t, s, http.MethodGet, "/api/v1/events?since=not.a.date.xyzzy", nil, nil)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestSearchRequiresQuery(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/v1/events/search", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBlastRadiusOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/v1/blast-radius", map[string]interface{}{
		"services": []string{"api"},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var prediction models.BlastRadiusPrediction
	decode(t, rec, &prediction)
	assert.Equal(t, []string{"web"}, prediction.DirectServices)

	missing := do(t, s, http.MethodPost, "/api/v1/blast-radius", map[string]interface{}{}, nil)
	assert.Equal(t, http.StatusBadRequest, missing.Code)
}

func TestCorrelateOverHTTP(t *testing.T) {
	s := newTestServer(t)

	created := do(t, s, http.MethodPost, "/api/v1/events", map[string]interface{}{
		"service": "api", "summary": "Deploy api", "changeType": "deployment",
	}, nil)
	require.Equal(t, http.StatusCreated, created.Code)

	rec := do(t, s, http.MethodPost, "/api/v1/correlate", map[string]interface{}{
		"affectedServices": []string{"api"},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Correlations []*models.ChangeCorrelation `json:"correlations"`
	}
	decode(t, rec, &resp)
	require.Len(t, resp.Correlations, 1)

	noServices := do(t, s, http.MethodPost, "/api/v1/correlate", map[string]interface{}{}, nil)
	assert.Equal(t, http.StatusBadRequest, noServices.Code)
}

func TestVelocityOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/v1/velocity?service=api&windowMinutes=60&periods=2", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Service string                   `json:"service"`
		Periods []*models.VelocityMetric `json:"periods"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, "api", resp.Service)
	assert.Len(t, resp.Periods, 2)

	missing := do(t, s, http.MethodGet, "/api/v1/velocity", nil, nil)
	assert.Equal(t, http.StatusBadRequest, missing.Code)
}

func TestGraphEndpointsOverHTTP(t *testing.T) {
	s := newTestServer(t)

	imported := do(t, s, http.MethodPost, "/api/v1/graph/import?source=backstage", map[string]interface{}{
		"services":     []map[string]interface{}{{"id": "billing"}},
		"dependencies": []map[string]interface{}{{"source": "billing", "target": "api"}},
	}, nil)
	require.Equal(t, http.StatusOK, imported.Code)

	services := do(t, s, http.MethodGet, "/api/v1/graph/services", nil, nil)
	require.Equal(t, http.StatusOK, services.Code)
	var listed struct {
		Count int `json:"count"`
	}
	decode(t, services, &listed)
	assert.Equal(t, 3, listed.Count)

	deps := do(t, s, http.MethodGet, "/api/v1/graph/services/api/dependencies", nil, nil)
	require.Equal(t, http.StatusOK, deps.Code)

	missing := do(t, s, http.MethodGet, "/api/v1/graph/services/ghost/dependencies", nil, nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)

	export := do(t, s, http.MethodGet, "/api/v1/graph/export", nil, nil)
	require.Equal(t, http.StatusOK, export.Code)
	var snapshot graph.Export
	decode(t, export, &snapshot)
	assert.Len(t, snapshot.Nodes, 3)
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t)

	health := do(t, s, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, health.Code)
	var status struct {
		Status string `json:"status"`
	}
	decode(t, health, &status)
	assert.Equal(t, "ok", status.Status)

	ready := do(t, s, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusOK, ready.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodOptions, "/api/v1/events", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")
}
