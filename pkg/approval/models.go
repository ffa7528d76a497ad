// Package approval implements the approval-workflow state machine layered on
// the asset graph. A workflow is itself an asset of type "approval_workflow";
// its decisions mutate the approval state and revision code of the asset it
// gates.
package approval

import "errors"

// AssetTypeWorkflow is the asset type of workflow records.
const AssetTypeWorkflow = "approval_workflow"

// AssetTypeUser is the asset type of the actor records that APPROVED_BY
// edges point at.
const AssetTypeUser = "user"

// EdgeApprovedBy is the audit edge recorded from a workflow to the deciding
// actor's user asset.
const EdgeApprovedBy = "APPROVED_BY"

// Workflow content keys.
const (
	keyDefinition    = "workflow_definition"
	keyTargetAssetID = "target_asset_id"
	keyCurrentStep   = "current_step"
	keyStatus        = "status"
	keyDecision      = "decision"
)

// Workflow statuses, tracked in the workflow asset's content.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Decision is a terminal workflow outcome.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Valid reports whether the decision is one of the recognized outcomes.
func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// DecidePolicy controls what a second Decide call on an already-completed
// workflow does.
type DecidePolicy string

const (
	// DecideOnce rejects a second decision with ErrWorkflowCompleted.
	DecideOnce DecidePolicy = "once"
	// DecideLastWins overwrites the recorded decision and re-runs the
	// target mutation.
	DecideLastWins DecidePolicy = "last-wins"
)

var (
	// ErrWorkflowCompleted is returned when advancing or re-deciding a
	// workflow that has already reached its terminal state.
	ErrWorkflowCompleted = errors.New("workflow already completed")

	// ErrInvalidDecision is returned for a decision outside approve/reject.
	ErrInvalidDecision = errors.New("decision must be 'approve' or 'reject'")
)

// DecideResult reports the durable outcome of a decision. Warnings carry
// non-fatal side-channel failures (audit edge or user asset creation) that
// did not stop the decision from being recorded.
type DecideResult struct {
	WorkflowID    string
	Decision      Decision
	TargetAssetID string
	RevisionCode  string
	Warnings      []string
}
