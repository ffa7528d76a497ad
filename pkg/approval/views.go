package approval

import (
	"time"

	"github.com/buildvault/assetgraph/pkg/audit"
	"github.com/buildvault/assetgraph/pkg/graph"
)

// AssetView is the wire shape of one asset version.
type AssetView struct {
	ID             string        `json:"id"`
	AssetUID       string        `json:"assetUid"`
	Version        int           `json:"version"`
	IsCurrent      bool          `json:"isCurrent"`
	Type           string        `json:"type"`
	Subtype        string        `json:"subtype,omitempty"`
	Name           string        `json:"name"`
	ProjectID      string        `json:"projectId,omitempty"`
	OrganizationID string        `json:"organizationId,omitempty"`
	DocumentNumber string        `json:"documentNumber,omitempty"`
	Status         string        `json:"status"`
	ApprovalState  string        `json:"approvalState,omitempty"`
	RevisionCode   *string       `json:"revisionCode"`
	Content        graph.JSONAny `json:"content,omitempty"`
	Metadata       graph.JSONAny `json:"metadata,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	CreatedBy      string        `json:"createdBy,omitempty"`
	UpdatedBy      string        `json:"updatedBy,omitempty"`
}

func newAssetView(rec *graph.AssetRecord) AssetView {
	return AssetView{
		ID:             rec.ID,
		AssetUID:       rec.AssetUID,
		Version:        rec.Version,
		IsCurrent:      rec.IsCurrent,
		Type:           rec.Type,
		Subtype:        rec.Subtype,
		Name:           rec.Name,
		ProjectID:      rec.ProjectID,
		OrganizationID: rec.OrganizationID,
		DocumentNumber: rec.DocumentNumber,
		Status:         rec.Status,
		ApprovalState:  string(rec.ApprovalState),
		RevisionCode:   rec.RevisionCode,
		Content:        rec.Content,
		Metadata:       rec.Metadata,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
		CreatedBy:      rec.CreatedBy,
		UpdatedBy:      rec.UpdatedBy,
	}
}

func newAssetViews(recs []graph.AssetRecord) []AssetView {
	views := make([]AssetView, len(recs))
	for i := range recs {
		views[i] = newAssetView(&recs[i])
	}
	return views
}

// EdgeView is the wire shape of one relationship edge.
type EdgeView struct {
	ID          string        `json:"id"`
	FromAssetID string        `json:"fromAssetId"`
	ToAssetID   string        `json:"toAssetId"`
	EdgeType    string        `json:"edgeType"`
	Properties  graph.JSONAny `json:"properties,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	CreatedBy   string        `json:"createdBy,omitempty"`
}

func newEdgeViews(recs []graph.EdgeRecord) []EdgeView {
	views := make([]EdgeView, len(recs))
	for i, rec := range recs {
		views[i] = EdgeView{
			ID:          rec.ID,
			FromAssetID: rec.FromAssetID,
			ToAssetID:   rec.ToAssetID,
			EdgeType:    rec.EdgeType,
			Properties:  rec.Properties,
			CreatedAt:   rec.CreatedAt,
			CreatedBy:   rec.CreatedBy,
		}
	}
	return views
}

// EventView is the wire shape of one audit event.
type EventView struct {
	ID            string        `json:"id"`
	CorrelationID string        `json:"correlationId,omitempty"`
	EventType     string        `json:"eventType"`
	Actor         string        `json:"actor"`
	ProjectID     string        `json:"projectId,omitempty"`
	AssetUID      string        `json:"assetUid"`
	Action        string        `json:"action,omitempty"`
	Outcome       string        `json:"outcome,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	OldValue      graph.JSONAny `json:"oldValue,omitempty"`
	NewValue      graph.JSONAny `json:"newValue,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

func newEventViews(evs []audit.EventRecord) []EventView {
	views := make([]EventView, len(evs))
	for i, ev := range evs {
		views[i] = EventView{
			ID:            ev.ID,
			CorrelationID: ev.CorrelationID,
			EventType:     ev.EventType,
			Actor:         ev.Actor,
			ProjectID:     ev.ProjectID,
			AssetUID:      ev.AssetUID,
			Action:        ev.Action,
			Outcome:       ev.Outcome,
			Reason:        ev.Reason,
			OldValue:      ev.OldValue,
			NewValue:      ev.NewValue,
			CreatedAt:     ev.CreatedAt,
		}
	}
	return views
}
