package approval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/buildvault/assetgraph/pkg/audit"
	"github.com/buildvault/assetgraph/pkg/graph"
)

// Engine drives approval workflows: it creates workflow assets bound to a
// target, advances them through steps, and records terminal decisions that
// mutate the target's approval state and revision code.
//
// The decision record is always durable even when downstream propagation
// fails: steps that follow the decision write (audit edge, target mutation)
// surface as warnings or as a retryable error, never roll the decision back.
type Engine struct {
	assets *graph.AssetStore
	edges  *graph.EdgeStore
	audit  *audit.Store
	policy DecidePolicy
	logger *slog.Logger
	now    func() time.Time
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithDecidePolicy sets the second-decision policy. Default is DecideOnce.
func WithDecidePolicy(p DecidePolicy) EngineOption {
	return func(e *Engine) { e.policy = p }
}

// WithAuditStore enables best-effort audit events.
func WithAuditStore(store *audit.Store) EngineOption {
	return func(e *Engine) { e.audit = store }
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a workflow engine over the given stores.
func NewEngine(assets *graph.AssetStore, edges *graph.EdgeStore, opts ...EngineOption) *Engine {
	e := &Engine{
		assets: assets,
		edges:  edges,
		policy: DecideOnce,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateSpec describes a workflow to create.
type CreateSpec struct {
	ProjectID     string
	Name          string
	Definition    any
	TargetAssetID string
	Actor         string
}

// Create makes a new workflow asset in state pending at step 0.
//
// When TargetAssetID is given the target must exist. Creation is idempotent
// on (name, project): re-submitting the same pair returns the existing
// workflow instead of a duplicate.
func (e *Engine) Create(ctx context.Context, spec CreateSpec) (string, error) {
	if spec.TargetAssetID != "" {
		target, err := e.assets.GetByID(ctx, spec.TargetAssetID)
		if err != nil {
			return "", fmt.Errorf("load target asset: %w", err)
		}
		if target == nil {
			return "", fmt.Errorf("target asset %s: %w", spec.TargetAssetID, graph.ErrNotFound)
		}
	}

	record, err := e.assets.Upsert(ctx, graph.NewAsset{
		Type:      AssetTypeWorkflow,
		Name:      spec.Name,
		ProjectID: spec.ProjectID,
		Status:    graph.StatusActive,
		Content: graph.JSONAny{
			keyDefinition:    spec.Definition,
			keyTargetAssetID: spec.TargetAssetID,
			keyStatus:        StatusPending,
			keyCurrentStep:   0,
		},
		IdempotencyKey: fmt.Sprintf("approval_workflow:%s:%s", spec.Name, spec.ProjectID),
		Actor:          spec.Actor,
	})
	if err != nil {
		return "", fmt.Errorf("create workflow asset: %w", err)
	}

	e.appendAudit(&audit.EventRecord{
		ID:            uuid.New().String(),
		CorrelationID: record.ID,
		EventType:     "workflow.created",
		Actor:         spec.Actor,
		ProjectID:     spec.ProjectID,
		AssetUID:      record.AssetUID,
		Action:        "create",
		Outcome:       "success",
		NewValue:      graph.JSONAny{"name": spec.Name, "target_asset_id": spec.TargetAssetID},
	})

	return record.ID, nil
}

// Advance moves the workflow one step forward and marks it in progress.
// Concurrent advances serialize on the workflow row, so both increments land.
// Advancing a completed workflow returns ErrWorkflowCompleted.
func (e *Engine) Advance(ctx context.Context, workflowID, actor string) error {
	wf, err := e.loadWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}

	err = e.assets.MutateContent(ctx, wf.ID, actor, func(content graph.JSONAny) error {
		if content.String(keyStatus) == StatusCompleted {
			return ErrWorkflowCompleted
		}
		content[keyCurrentStep] = content.Int(keyCurrentStep) + 1
		content[keyStatus] = StatusInProgress
		return nil
	})
	if err != nil {
		return err
	}

	e.appendAudit(&audit.EventRecord{
		ID:            uuid.New().String(),
		CorrelationID: wf.ID,
		EventType:     "workflow.advanced",
		Actor:         actor,
		ProjectID:     wf.ProjectID,
		AssetUID:      wf.AssetUID,
		Action:        "advance",
		Outcome:       "success",
	})

	return nil
}

// Decide records a terminal decision on the workflow.
//
// The decision payload and the completed status are written in one
// transaction; a reader never sees a half-written decision. The APPROVED_BY
// audit edge and the deciding actor's user asset are best-effort — failures
// are logged and collected into the result's warnings. The target asset
// mutation runs after the decision is durable; if it fails, the error is
// returned for the caller to retry while the completed decision stands.
func (e *Engine) Decide(ctx context.Context, workflowID string, decision Decision, comment, actor string) (*DecideResult, error) {
	if !decision.Valid() {
		return nil, ErrInvalidDecision
	}

	wf, err := e.loadWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	result := &DecideResult{
		WorkflowID:    wf.ID,
		Decision:      decision,
		TargetAssetID: wf.Content.String(keyTargetAssetID),
	}

	decidedAt := e.now().UTC().Format(time.RFC3339)
	err = e.assets.MutateContent(ctx, wf.ID, actor, func(content graph.JSONAny) error {
		if content.String(keyStatus) == StatusCompleted && e.policy == DecideOnce {
			return ErrWorkflowCompleted
		}
		content[keyDecision] = map[string]any{
			"decision":   string(decision),
			"decided_by": actor,
			"decided_at": decidedAt,
			"comment":    comment,
		}
		content[keyStatus] = StatusCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}

	if decision == DecisionApprove {
		e.recordApprovedByEdge(ctx, wf, actor, decidedAt, result)
	}

	if result.TargetAssetID != "" {
		if err := e.applyToTarget(ctx, result, comment, actor); err != nil {
			return result, err
		}
	}

	e.appendAudit(&audit.EventRecord{
		ID:            uuid.New().String(),
		CorrelationID: wf.ID,
		EventType:     "workflow.decided",
		Actor:         actor,
		ProjectID:     wf.ProjectID,
		AssetUID:      wf.AssetUID,
		Action:        string(decision),
		Outcome:       "success",
		Reason:        comment,
		NewValue:      graph.JSONAny{"target_asset_id": result.TargetAssetID, "revision_code": result.RevisionCode},
	})

	return result, nil
}

// ListWorkflows returns the current workflow heads for a project, optionally
// filtered by workflow status.
func (e *Engine) ListWorkflows(ctx context.Context, projectID, status string) ([]graph.AssetRecord, error) {
	heads, err := e.assets.ListHeads(ctx, graph.HeadFilter{ProjectID: projectID, Type: AssetTypeWorkflow})
	if err != nil {
		return nil, err
	}
	if status == "" {
		return heads, nil
	}
	filtered := heads[:0]
	for _, h := range heads {
		if h.Content.String(keyStatus) == status {
			filtered = append(filtered, h)
		}
	}
	return filtered, nil
}

// loadWorkflow fetches a workflow asset by row ID.
func (e *Engine) loadWorkflow(ctx context.Context, workflowID string) (*graph.AssetRecord, error) {
	wf, err := e.assets.GetByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow: %w", err)
	}
	if wf == nil || wf.Type != AssetTypeWorkflow {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, graph.ErrNotFound)
	}
	return wf, nil
}

// recordApprovedByEdge ensures a user asset for the actor and links the
// workflow to it. Both steps are best-effort: the decision stays valid when
// they fail.
func (e *Engine) recordApprovedByEdge(ctx context.Context, wf *graph.AssetRecord, actor, decidedAt string, result *DecideResult) {
	user, err := e.assets.GetCurrentByTypeName(ctx, AssetTypeUser, actor)
	if err == nil && user == nil {
		user, err = e.assets.Upsert(ctx, graph.NewAsset{
			Type:           AssetTypeUser,
			Name:           actor,
			ProjectID:      wf.ProjectID,
			Status:         graph.StatusActive,
			Content:        graph.JSONAny{"principal": actor},
			IdempotencyKey: fmt.Sprintf("user:%s:%s", actor, wf.ProjectID),
			Actor:          actor,
		})
	}
	if err != nil {
		e.warn(result, "ensure user asset", err)
		return
	}

	err = e.edges.Upsert(ctx, graph.NewEdge{
		FromAssetID:    wf.ID,
		ToAssetID:      user.ID,
		EdgeType:       EdgeApprovedBy,
		Properties:     graph.JSONAny{"approved_at": decidedAt},
		IdempotencyKey: fmt.Sprintf("%s:workflow:%s:user:%s", EdgeApprovedBy, wf.ID, user.ID),
		Actor:          actor,
	})
	if err != nil {
		e.warn(result, "record APPROVED_BY edge", err)
	}
}

// applyToTarget propagates the decision to the gated asset.
func (e *Engine) applyToTarget(ctx context.Context, result *DecideResult, comment, actor string) error {
	target, err := e.assets.GetByID(ctx, result.TargetAssetID)
	if err != nil {
		return fmt.Errorf("load target asset: %w", err)
	}
	if target == nil {
		// The target disappeared after the workflow was created. The
		// decision stands; nothing to propagate to.
		e.warn(result, "target asset lookup", fmt.Errorf("target asset %s no longer exists", result.TargetAssetID))
		return nil
	}

	if result.Decision == DecisionApprove {
		current, err := e.assets.LatestApprovedRevisionCode(ctx, target.AssetUID)
		if err != nil {
			return fmt.Errorf("latest approved revision: %w", err)
		}
		next := graph.NextNumberRevision(current)
		err = e.assets.SetApprovalState(ctx, target.ID, graph.ApprovalApproved, graph.SetApprovalStateOpts{
			Status:       graph.StatusApproved,
			RevisionCode: &next,
			Actor:        actor,
		})
		if err != nil {
			return fmt.Errorf("approve target asset: %w", err)
		}
		result.RevisionCode = next
		return nil
	}

	err = e.assets.SetApprovalState(ctx, target.ID, graph.ApprovalRejected, graph.SetApprovalStateOpts{
		Status:       graph.StatusDraft,
		ContentPatch: graph.JSONAny{"client_feedback": comment},
		Actor:        actor,
	})
	if err != nil {
		return fmt.Errorf("reject target asset: %w", err)
	}
	return nil
}

func (e *Engine) warn(result *DecideResult, what string, err error) {
	e.logger.Warn("non-fatal side effect failed during decision",
		"workflow", result.WorkflowID, "step", what, "error", err)
	result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", what, err))
}

func (e *Engine) appendAudit(event *audit.EventRecord) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Append(event); err != nil {
		e.logger.Warn("audit append failed", "eventType", event.EventType, "error", err)
	}
}
