package graph

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NewEdge describes an edge to be inserted.
type NewEdge struct {
	FromAssetID    string
	ToAssetID      string
	EdgeType       string
	Properties     JSONAny
	IdempotencyKey string
	Actor          string
}

// EdgeStore provides idempotent insertion of typed, directed relationships
// between assets.
type EdgeStore struct {
	db *gorm.DB
}

// NewEdgeStore creates a new EdgeStore.
func NewEdgeStore(db *gorm.DB) *EdgeStore {
	return &EdgeStore{db: db}
}

// AutoMigrate creates or updates the asset_edges table.
func (s *EdgeStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&EdgeRecord{}); err != nil {
		return fmt.Errorf("auto-migrate asset_edges: %w", err)
	}
	return nil
}

// Upsert inserts an edge unless one with the same (edge_type, idempotency_key)
// already exists, in which case the call is a silent no-op. The existing row's
// properties are never updated on conflict, so the first successful writer
// wins. Uniqueness is enforced by the storage layer, which makes concurrent
// retries of the same logical operation safe.
func (s *EdgeStore) Upsert(ctx context.Context, edge NewEdge) error {
	record := &EdgeRecord{
		ID:          uuid.New().String(),
		FromAssetID: edge.FromAssetID,
		ToAssetID:   edge.ToAssetID,
		EdgeType:    edge.EdgeType,
		Properties:  edge.Properties,
		CreatedBy:   edge.Actor,
	}

	tx := s.db.WithContext(ctx)
	if edge.IdempotencyKey != "" {
		key := edge.IdempotencyKey
		record.IdempotencyKey = &key
		tx = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "edge_type"}, {Name: "idempotency_key"}},
			DoNothing: true,
		})
	}

	if err := tx.Create(record).Error; err != nil {
		return fmt.Errorf("upsert edge: %w", err)
	}
	return nil
}

// ListFrom returns edges originating at the given asset, optionally filtered
// by edge type.
func (s *EdgeStore) ListFrom(ctx context.Context, assetID, edgeType string) ([]EdgeRecord, error) {
	return s.list(ctx, "from_asset_id", assetID, edgeType)
}

// ListTo returns edges pointing at the given asset, optionally filtered by
// edge type.
func (s *EdgeStore) ListTo(ctx context.Context, assetID, edgeType string) ([]EdgeRecord, error) {
	return s.list(ctx, "to_asset_id", assetID, edgeType)
}

func (s *EdgeStore) list(ctx context.Context, column, assetID, edgeType string) ([]EdgeRecord, error) {
	query := s.db.WithContext(ctx).Where(column+" = ?", assetID)
	if edgeType != "" {
		query = query.Where("edge_type = ?", edgeType)
	}
	var records []EdgeRecord
	if err := query.Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	return records, nil
}
