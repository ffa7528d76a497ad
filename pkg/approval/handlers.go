package approval

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/buildvault/assetgraph/pkg/access"
	"github.com/buildvault/assetgraph/pkg/audit"
	"github.com/buildvault/assetgraph/pkg/graph"
)

// createWorkflowHandler returns a handler that creates an approval workflow.
// POST /approval-workflows
func createWorkflowHandler(engine *Engine, gate access.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := access.IdentityFromContext(r.Context())
		if !ok || id.Anonymous() {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		var body struct {
			ProjectID          string `json:"projectId"`
			Name               string `json:"name"`
			WorkflowDefinition any    `json:"workflowDefinition"`
			TargetAssetID      string `json:"targetAssetId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.ProjectID == "" {
			writeError(w, http.StatusBadRequest, "projectId required")
			return
		}

		if !allowProject(w, r, gate, id.User, body.ProjectID) {
			return
		}

		workflowID, err := engine.Create(r.Context(), CreateSpec{
			ProjectID:     body.ProjectID,
			Name:          body.Name,
			Definition:    body.WorkflowDefinition,
			TargetAssetID: body.TargetAssetID,
			Actor:         id.User,
		})
		if err != nil {
			if errors.Is(err, graph.ErrNotFound) {
				writeError(w, http.StatusNotFound, "target asset not found")
				return
			}
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to create workflow: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"id": workflowID})
	}
}

// updateWorkflowHandler returns a handler that advances or decides a workflow.
// PUT /approval-workflows
func updateWorkflowHandler(engine *Engine, gate access.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := access.IdentityFromContext(r.Context())
		if !ok || id.Anonymous() {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		var body struct {
			ID       string `json:"id"`
			Action   string `json:"action"`
			Decision string `json:"decision"`
			Comment  string `json:"comment"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		switch body.Action {
		case "advance", "decide":
		default:
			writeError(w, http.StatusBadRequest, "Invalid action")
			return
		}

		wf, err := engine.loadWorkflow(r.Context(), body.ID)
		if err != nil {
			if errors.Is(err, graph.ErrNotFound) {
				writeError(w, http.StatusNotFound, "Workflow not found")
				return
			}
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load workflow: %v", err))
			return
		}

		if !allowProject(w, r, gate, id.User, wf.ProjectID) {
			return
		}

		if body.Action == "advance" {
			if err := engine.Advance(r.Context(), body.ID, id.User); err != nil {
				writeWorkflowError(w, err, "failed to advance workflow")
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"message": "Workflow advanced"})
			return
		}

		result, err := engine.Decide(r.Context(), body.ID, Decision(body.Decision), body.Comment, id.User)
		if err != nil {
			if errors.Is(err, ErrInvalidDecision) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeWorkflowError(w, err, "failed to record decision")
			return
		}

		resp := map[string]any{
			"message":       "Decision recorded",
			"targetAssetId": result.TargetAssetID,
		}
		if len(result.Warnings) > 0 {
			resp["warnings"] = result.Warnings
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// listWorkflowsHandler returns a handler that lists a project's workflows.
// GET /approval-workflows?projectId=&status=
func listWorkflowsHandler(engine *Engine, gate access.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := access.IdentityFromContext(r.Context())
		if !ok || id.Anonymous() {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		projectID := r.URL.Query().Get("projectId")
		if projectID == "" {
			writeError(w, http.StatusBadRequest, "projectId required")
			return
		}

		if !allowProject(w, r, gate, id.User, projectID) {
			return
		}

		workflows, err := engine.ListWorkflows(r.Context(), projectID, r.URL.Query().Get("status"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list workflows: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"workflows": newAssetViews(workflows)})
	}
}

// getAssetHandler returns a handler that fetches a single asset version.
// GET /assets/{id}
func getAssetHandler(assets *graph.AssetStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, err := assets.GetByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get asset: %v", err))
			return
		}
		if record == nil {
			writeError(w, http.StatusNotFound, "Asset not found")
			return
		}
		writeJSON(w, http.StatusOK, newAssetView(record))
	}
}

// listRevisionsHandler returns a handler that lists all versions of the
// logical entity the given asset row belongs to.
// GET /assets/{id}/revisions
func listRevisionsHandler(assets *graph.AssetStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, err := assets.GetByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get asset: %v", err))
			return
		}
		if record == nil {
			writeError(w, http.StatusNotFound, "Asset not found")
			return
		}

		versions, err := assets.ListVersions(r.Context(), record.AssetUID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list revisions: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"revisions": newAssetViews(versions)})
	}
}

// createRevisionHandler returns a handler that snapshots the current head
// into a new version. The new version carries the head's fields forward;
// an optional commit message lands in metadata.
// POST /assets/{id}/revisions
func createRevisionHandler(assets *graph.AssetStore, gate access.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := access.IdentityFromContext(r.Context())
		if !ok || id.Anonymous() {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		record, err := assets.GetByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get asset: %v", err))
			return
		}
		if record == nil {
			writeError(w, http.StatusNotFound, "Asset not found")
			return
		}

		if record.ProjectID != "" && !allowProject(w, r, gate, id.User, record.ProjectID) {
			return
		}

		var body struct {
			CommitMessage string `json:"commitMessage"`
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}

		metadata := graph.JSONAny{}
		for k, v := range record.Metadata {
			metadata[k] = v
		}
		if body.CommitMessage != "" {
			metadata["commit_message"] = body.CommitMessage
		}

		idemKey := ""
		if record.IdempotencyKey != nil {
			idemKey = *record.IdempotencyKey
		}
		created, err := assets.CreateVersion(r.Context(), graph.NewAsset{
			AssetUID:       record.AssetUID,
			Type:           record.Type,
			Subtype:        record.Subtype,
			Name:           record.Name,
			ProjectID:      record.ProjectID,
			OrganizationID: record.OrganizationID,
			DocumentNumber: record.DocumentNumber,
			PathKey:        record.PathKey,
			Classification: record.Classification,
			Content:        record.Content,
			Metadata:       metadata,
			Status:         record.Status,
			ApprovalState:  record.ApprovalState,
			RevisionCode:   record.RevisionCode,
			IdempotencyKey: idemKey,
			Actor:          id.User,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to create revision: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"id": created.ID, "version": created.Version})
	}
}

// listEdgesHandler returns a handler that lists edges touching an asset.
// GET /assets/{id}/edges?type=
func listEdgesHandler(edges *graph.EdgeStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assetID := chi.URLParam(r, "id")
		edgeType := r.URL.Query().Get("type")

		out, err := edges.ListFrom(r.Context(), assetID, edgeType)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list edges: %v", err))
			return
		}
		in, err := edges.ListTo(r.Context(), assetID, edgeType)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list edges: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"outgoing": newEdgeViews(out), "incoming": newEdgeViews(in)})
	}
}

// assetHistoryHandler returns a handler that lists audit events for an asset.
// GET /assets/{id}/history?pageSize=&pageToken=
func assetHistoryHandler(assets *graph.AssetStore, auditStore *audit.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, err := assets.GetByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get asset: %v", err))
			return
		}
		if record == nil {
			writeError(w, http.StatusNotFound, "Asset not found")
			return
		}

		pageSize := 20
		if ps := r.URL.Query().Get("pageSize"); ps != "" {
			fmt.Sscanf(ps, "%d", &pageSize)
		}
		events, nextToken, total, err := auditStore.ListByAsset(record.AssetUID, pageSize, r.URL.Query().Get("pageToken"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list history: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"events":        newEventViews(events),
			"nextPageToken": nextToken,
			"totalSize":     total,
		})
	}
}

// allowProject runs the gate and writes the failure response when the actor
// is not admitted. Returns true when the request may proceed.
func allowProject(w http.ResponseWriter, r *http.Request, gate access.Gate, user, projectID string) bool {
	allowed, err := gate.CanActOnProject(r.Context(), user, projectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "access check failed")
		return false
	}
	if !allowed {
		writeError(w, http.StatusForbidden, "Access denied")
		return false
	}
	return true
}

func writeWorkflowError(w http.ResponseWriter, err error, prefix string) {
	switch {
	case errors.Is(err, graph.ErrNotFound):
		writeError(w, http.StatusNotFound, "Workflow not found")
	case errors.Is(err, ErrWorkflowCompleted):
		writeError(w, http.StatusConflict, ErrWorkflowCompleted.Error())
	default:
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("%s: %v", prefix, err))
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
