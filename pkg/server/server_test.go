package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/buildvault/assetgraph/pkg/access"
	"github.com/buildvault/assetgraph/pkg/config"
)

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) (*Server, chi.Router) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Database.Type = "sqlite"
	if mutate != nil {
		mutate(cfg)
	}

	s := New(cfg, db, slog.Default())
	require.NoError(t, s.Migrate(context.Background()))

	// Seed membership: alice belongs to the organization owning proj-1.
	require.NoError(t, db.Create(&access.ProjectRecord{ID: "proj-1", OrganizationID: "org-1", Name: "Depot upgrade"}).Error)
	require.NoError(t, db.Create(&access.OrganizationUserRecord{OrganizationID: "org-1", UserID: "alice"}).Error)

	router, err := s.MountRoutes()
	require.NoError(t, err)
	return s, router
}

func serve(router chi.Router, method, target, user string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	if user != "" {
		req.Header.Set("X-Remote-User", user)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestServer_HealthEndpoints(t *testing.T) {
	_, router := newTestServer(t, nil)

	for _, path := range []string{"/healthz", "/livez", "/readyz"} {
		rec := serve(router, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestServer_WorkflowRoundTrip(t *testing.T) {
	_, router := newTestServer(t, nil)

	rec := serve(router, http.MethodPost, "/api/v1alpha1/approval-workflows", "alice", map[string]any{
		"projectId": "proj-1",
		"name":      "slab pour sign-off",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var created map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	require.NotEmpty(t, created["id"])

	rec = serve(router, http.MethodPut, "/api/v1alpha1/approval-workflows", "alice", map[string]any{
		"id": created["id"], "action": "decide", "decision": "approve",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = serve(router, http.MethodGet, "/api/v1alpha1/approval-workflows?projectId=proj-1&status=completed", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listed))
	assert.Len(t, listed["workflows"], 1)
}

func TestServer_GateDeniesNonMembers(t *testing.T) {
	_, router := newTestServer(t, nil)

	rec := serve(router, http.MethodPost, "/api/v1alpha1/approval-workflows", "mallory", map[string]any{
		"projectId": "proj-1",
		"name":      "wf",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Anonymous requests never reach the gate.
	rec = serve(router, http.MethodPost, "/api/v1alpha1/approval-workflows", "", map[string]any{
		"projectId": "proj-1",
		"name":      "wf",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_AllowAllGate(t *testing.T) {
	s, router := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.Gate = "allow-all"
	})
	assert.IsType(t, access.AllowAll{}, s.gate)

	// No membership seeded for mallory; the allow-all gate admits any
	// authenticated actor.
	rec := serve(router, http.MethodPost, "/api/v1alpha1/approval-workflows", "mallory", map[string]any{
		"projectId": "proj-9",
		"name":      "wf",
	})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Missing identity is still rejected before the gate.
	rec = serve(router, http.MethodPost, "/api/v1alpha1/approval-workflows", "", map[string]any{
		"projectId": "proj-9",
		"name":      "wf",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_CacheInvalidatedOnWrite(t *testing.T) {
	_, router := newTestServer(t, nil)

	list := func() *httptest.ResponseRecorder {
		return serve(router, http.MethodGet, "/api/v1alpha1/approval-workflows?projectId=proj-1", "alice", nil)
	}

	rec := list()
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	rec = list()
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))

	rec = serve(router, http.MethodPost, "/api/v1alpha1/approval-workflows", "alice", map[string]any{
		"projectId": "proj-1", "name": "drainage as-built sign-off",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = list()
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	var listed map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listed))
	assert.Len(t, listed["workflows"], 1)
}

func TestServer_CacheDisabled(t *testing.T) {
	_, router := newTestServer(t, func(cfg *config.Config) {
		cfg.Cache.Enabled = false
	})

	rec := serve(router, http.MethodGet, "/api/v1alpha1/approval-workflows?projectId=proj-1", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}
