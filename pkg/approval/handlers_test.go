package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildvault/assetgraph/pkg/access"
	"github.com/buildvault/assetgraph/pkg/graph"
)

// denyGate rejects every project.
type denyGate struct{}

func (denyGate) CanActOnProject(ctx context.Context, user, projectID string) (bool, error) {
	return false, nil
}

// brokenGate fails every access check.
type brokenGate struct{}

func (brokenGate) CanActOnProject(ctx context.Context, user, projectID string) (bool, error) {
	return false, fmt.Errorf("membership table unavailable")
}

func newRouterFixture(t *testing.T, gate access.Gate) (*engineFixture, http.Handler) {
	t.Helper()
	f := newEngineFixture(t)
	return f, NewRouter(f.engine, f.assets, f.edges, f.audit, gate)
}

func doRequest(handler http.Handler, method, target, user string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if user != "" {
		req = req.WithContext(access.WithIdentity(req.Context(), access.Identity{User: user}))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestCreateWorkflowHandler(t *testing.T) {
	f, router := newRouterFixture(t, access.AllowAll{})
	target := f.createTarget(t, context.Background())

	rec := doRequest(router, http.MethodPost, "/approval-workflows", "alice", map[string]any{
		"projectId":          "proj-1",
		"name":               "ITP sign-off",
		"workflowDefinition": map[string]any{"steps": []string{"review"}},
		"targetAssetId":      target.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["id"])

	wf, err := f.assets.GetByID(context.Background(), body["id"].(string))
	require.NoError(t, err)
	require.NotNil(t, wf)
	assert.Equal(t, StatusPending, wf.Content.String("status"))
}

func TestCreateWorkflowHandler_Errors(t *testing.T) {
	t.Run("unauthenticated", func(t *testing.T) {
		_, router := newRouterFixture(t, access.AllowAll{})
		rec := doRequest(router, http.MethodPost, "/approval-workflows", "", map[string]any{"projectId": "proj-1"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		_, router := newRouterFixture(t, access.AllowAll{})
		req := httptest.NewRequest(http.MethodPost, "/approval-workflows", strings.NewReader("{not json"))
		req = req.WithContext(access.WithIdentity(req.Context(), access.Identity{User: "alice"}))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing projectId", func(t *testing.T) {
		_, router := newRouterFixture(t, access.AllowAll{})
		rec := doRequest(router, http.MethodPost, "/approval-workflows", "alice", map[string]any{"name": "wf"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("forbidden", func(t *testing.T) {
		_, router := newRouterFixture(t, denyGate{})
		rec := doRequest(router, http.MethodPost, "/approval-workflows", "alice", map[string]any{
			"projectId": "proj-1", "name": "wf",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "Access denied", decodeBody(t, rec)["error"])
	})

	t.Run("gate failure", func(t *testing.T) {
		_, router := newRouterFixture(t, brokenGate{})
		rec := doRequest(router, http.MethodPost, "/approval-workflows", "alice", map[string]any{
			"projectId": "proj-1", "name": "wf",
		})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("target missing", func(t *testing.T) {
		_, router := newRouterFixture(t, access.AllowAll{})
		rec := doRequest(router, http.MethodPost, "/approval-workflows", "alice", map[string]any{
			"projectId": "proj-1", "name": "wf", "targetAssetId": "ghost",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestUpdateWorkflowHandler_Advance(t *testing.T) {
	f, router := newRouterFixture(t, access.AllowAll{})
	ctx := context.Background()
	wfID := f.createWorkflow(t, ctx, "")

	rec := doRequest(router, http.MethodPut, "/approval-workflows", "alice", map[string]any{
		"id": wfID, "action": "advance",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Workflow advanced", decodeBody(t, rec)["message"])

	wf, err := f.assets.GetByID(ctx, wfID)
	require.NoError(t, err)
	assert.Equal(t, 1, wf.Content.Int("current_step"))
	assert.Equal(t, StatusInProgress, wf.Content.String("status"))
}

func TestUpdateWorkflowHandler_Decide(t *testing.T) {
	f, router := newRouterFixture(t, access.AllowAll{})
	ctx := context.Background()
	target := f.createTarget(t, ctx)
	wfID := f.createWorkflow(t, ctx, target.ID)

	rec := doRequest(router, http.MethodPut, "/approval-workflows", "alice", map[string]any{
		"id": wfID, "action": "decide", "decision": "approve",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Decision recorded", body["message"])
	assert.Equal(t, target.ID, body["targetAssetId"])
	assert.NotContains(t, body, "warnings")

	got, err := f.assets.GetByID(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, graph.ApprovalApproved, got.ApprovalState)
}

func TestUpdateWorkflowHandler_Errors(t *testing.T) {
	t.Run("unknown action", func(t *testing.T) {
		f, router := newRouterFixture(t, access.AllowAll{})
		wfID := f.createWorkflow(t, context.Background(), "")
		rec := doRequest(router, http.MethodPut, "/approval-workflows", "alice", map[string]any{
			"id": wfID, "action": "pause",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid action", decodeBody(t, rec)["error"])
	})

	t.Run("workflow not found", func(t *testing.T) {
		_, router := newRouterFixture(t, access.AllowAll{})
		rec := doRequest(router, http.MethodPut, "/approval-workflows", "alice", map[string]any{
			"id": "ghost", "action": "advance",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Workflow not found", decodeBody(t, rec)["error"])
	})

	t.Run("invalid decision", func(t *testing.T) {
		f, router := newRouterFixture(t, access.AllowAll{})
		wfID := f.createWorkflow(t, context.Background(), "")
		rec := doRequest(router, http.MethodPut, "/approval-workflows", "alice", map[string]any{
			"id": wfID, "action": "decide", "decision": "maybe",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("decide twice conflicts", func(t *testing.T) {
		f, router := newRouterFixture(t, access.AllowAll{})
		wfID := f.createWorkflow(t, context.Background(), "")

		rec := doRequest(router, http.MethodPut, "/approval-workflows", "alice", map[string]any{
			"id": wfID, "action": "decide", "decision": "reject", "comment": "redo",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doRequest(router, http.MethodPut, "/approval-workflows", "alice", map[string]any{
			"id": wfID, "action": "decide", "decision": "approve",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("advance after decide conflicts", func(t *testing.T) {
		f, router := newRouterFixture(t, access.AllowAll{})
		wfID := f.createWorkflow(t, context.Background(), "")

		rec := doRequest(router, http.MethodPut, "/approval-workflows", "alice", map[string]any{
			"id": wfID, "action": "decide", "decision": "approve",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doRequest(router, http.MethodPut, "/approval-workflows", "alice", map[string]any{
			"id": wfID, "action": "advance",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestListWorkflowsHandler(t *testing.T) {
	f, router := newRouterFixture(t, access.AllowAll{})
	ctx := context.Background()

	a, err := f.engine.Create(ctx, CreateSpec{ProjectID: "proj-1", Name: "wf-a", Actor: "alice"})
	require.NoError(t, err)
	_, err = f.engine.Create(ctx, CreateSpec{ProjectID: "proj-1", Name: "wf-b", Actor: "alice"})
	require.NoError(t, err)
	require.NoError(t, f.engine.Advance(ctx, a, "alice"))

	rec := doRequest(router, http.MethodGet, "/approval-workflows?projectId=proj-1", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Len(t, body["workflows"], 2)

	rec = doRequest(router, http.MethodGet, "/approval-workflows?projectId=proj-1&status=in_progress", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	require.Len(t, body["workflows"], 1)

	rec = doRequest(router, http.MethodGet, "/approval-workflows", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(router, http.MethodGet, "/approval-workflows?projectId=proj-1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAssetHandlers(t *testing.T) {
	f, router := newRouterFixture(t, access.AllowAll{})
	ctx := context.Background()
	target := f.createTarget(t, ctx)

	t.Run("get asset", func(t *testing.T) {
		rec := doRequest(router, http.MethodGet, "/assets/"+target.ID, "alice", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doRequest(router, http.MethodGet, "/assets/ghost", "alice", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("create and list revisions", func(t *testing.T) {
		rec := doRequest(router, http.MethodPost, "/assets/"+target.ID+"/revisions", "bob", map[string]any{
			"commitMessage": "resubmitted after review",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, float64(2), body["version"])

		created, err := f.assets.GetByID(ctx, body["id"].(string))
		require.NoError(t, err)
		assert.True(t, created.IsCurrent)
		assert.Equal(t, "resubmitted after review", created.Metadata.String("commit_message"))

		rec = doRequest(router, http.MethodGet, "/assets/"+target.ID+"/revisions", "alice", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeBody(t, rec)["revisions"], 2)
	})

	t.Run("create revision requires identity", func(t *testing.T) {
		rec := doRequest(router, http.MethodPost, "/assets/"+target.ID+"/revisions", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("list edges", func(t *testing.T) {
		wfID := f.createWorkflow(t, ctx, target.ID)
		_, err := f.engine.Decide(ctx, wfID, DecisionApprove, "", "alice")
		require.NoError(t, err)

		rec := doRequest(router, http.MethodGet, "/assets/"+wfID+"/edges?type=APPROVED_BY", "alice", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Len(t, body["outgoing"], 1)
		assert.Len(t, body["incoming"], 0)
	})

	t.Run("history", func(t *testing.T) {
		wfID := f.createWorkflow(t, ctx, "")
		rec := doRequest(router, http.MethodGet, "/assets/"+wfID+"/history", "alice", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		events, ok := body["events"].([]any)
		require.True(t, ok)
		assert.NotEmpty(t, events)
	})
}
