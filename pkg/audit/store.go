// Package audit provides an append-only trail of asset graph activity:
// workflow creation, advancement and decisions, version creation and
// approval-state changes. Writes are best-effort at every call site; the
// decision record on the asset itself is the source of truth.
package audit

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/buildvault/assetgraph/pkg/graph"
)

// EventRecord is an immutable audit event.
type EventRecord struct {
	ID            string        `gorm:"primaryKey;column:id;type:varchar(36)"`
	CorrelationID string        `gorm:"column:correlation_id;index"`
	EventType     string        `gorm:"column:event_type;index;not null"`
	Actor         string        `gorm:"column:actor;not null"`
	ProjectID     string        `gorm:"column:project_id;index"`
	AssetUID      string        `gorm:"column:asset_uid;index:idx_audit_asset;not null"`
	Action        string        `gorm:"column:action"`
	Outcome       string        `gorm:"column:outcome"`
	Reason        string        `gorm:"column:reason"`
	OldValue      graph.JSONAny `gorm:"column:old_value;type:text"`
	NewValue      graph.JSONAny `gorm:"column:new_value;type:text"`
	CreatedAt     time.Time     `gorm:"column:created_at;autoCreateTime;index"`
}

// TableName returns the GORM table name.
func (EventRecord) TableName() string { return "audit_events" }

// Store provides append-only operations for audit event records.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new audit Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the audit_events table.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&EventRecord{}); err != nil {
		return fmt.Errorf("auto-migrate audit_events: %w", err)
	}
	return nil
}

// Append creates a new immutable audit event record.
func (s *Store) Append(event *EventRecord) error {
	if err := s.db.Create(event).Error; err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// ListByAsset returns paginated audit events for a specific asset,
// ordered by created_at DESC (newest first).
// pageToken is an RFC3339Nano timestamp; events with created_at < pageToken
// are returned.
func (s *Store) ListByAsset(assetUID string, pageSize int, pageToken string) ([]EventRecord, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	var totalSize int64
	if err := s.db.Model(&EventRecord{}).Where("asset_uid = ?", assetUID).Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count audit events: %w", err)
	}

	query := s.db.Where("asset_uid = ?", assetUID).Order("created_at DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", 0, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("created_at < ?", t)
	}

	var records []EventRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list audit events by asset: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].CreatedAt.Format(time.RFC3339Nano)
		records = records[:pageSize]
	}

	return records, nextToken, int(totalSize), nil
}

// DeleteOlderThan deletes audit events created before the given cutoff time.
// Returns the number of deleted records.
func (s *Store) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := s.db.Where("created_at < ?", cutoff).Delete(&EventRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old audit events: %w", result.Error)
	}
	return result.RowsAffected, nil
}
