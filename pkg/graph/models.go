// Package graph implements the versioned asset graph: append-only versioned
// asset records with a single current version per logical entity, and typed
// directed edges between assets created idempotently.
package graph

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ApprovalState classifies an asset's position in the approval lifecycle.
// Not every asset participates; the zero value means "not applicable".
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
)

// Well-known asset statuses. Status is an open tag; callers may use others.
const (
	StatusDraft    = "draft"
	StatusActive   = "active"
	StatusApproved = "approved"
)

// JSONAny is a custom GORM type for map[string]any stored as JSON text.
type JSONAny map[string]any

// Scan implements the sql.Scanner interface for JSONAny.
func (m *JSONAny) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for JSONAny: %T", value)
	}
	return json.Unmarshal(bytes, m)
}

// Value implements the driver.Valuer interface for JSONAny.
func (m JSONAny) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// String reads a string value out of the map; "" if absent or not a string.
func (m JSONAny) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// Int reads an integer value out of the map, tolerating the float64 that
// encoding/json produces for numbers.
func (m JSONAny) Int(key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

// AssetRecord is one immutable version of a logical asset. All versions of the
// same entity share AssetUID; exactly one non-deleted version is current.
type AssetRecord struct {
	ID                string        `gorm:"primaryKey;column:id;type:varchar(36)"`
	AssetUID          string        `gorm:"column:asset_uid;uniqueIndex:idx_asset_uid_version,priority:1;not null"`
	Version           int           `gorm:"column:version;uniqueIndex:idx_asset_uid_version,priority:2;not null;default:1"`
	IsCurrent         bool          `gorm:"column:is_current;index:idx_asset_current;not null;default:false"`
	SupersedesAssetID string        `gorm:"column:supersedes_asset_id"`
	Type              string        `gorm:"column:type;index:idx_asset_type,priority:1;not null"`
	Subtype           string        `gorm:"column:subtype"`
	Name              string        `gorm:"column:name;index:idx_asset_type,priority:2"`
	ProjectID         string        `gorm:"column:project_id;index:idx_asset_project"`
	OrganizationID    string        `gorm:"column:organization_id;index:idx_asset_org"`
	DocumentNumber    string        `gorm:"column:document_number"`
	PathKey           string        `gorm:"column:path_key"`
	Classification    string        `gorm:"column:classification"`
	Content           JSONAny       `gorm:"column:content;type:text"`
	Metadata          JSONAny       `gorm:"column:metadata;type:text"`
	Status            string        `gorm:"column:status;not null;default:draft"`
	ApprovalState     ApprovalState `gorm:"column:approval_state"`
	RevisionCode      *string       `gorm:"column:revision_code"`
	IdempotencyKey    *string       `gorm:"column:idempotency_key;index:idx_asset_idem"`
	IsDeleted         bool          `gorm:"column:is_deleted;not null;default:false"`
	CreatedAt         time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time     `gorm:"column:updated_at;autoUpdateTime"`
	CreatedBy         string        `gorm:"column:created_by"`
	UpdatedBy         string        `gorm:"column:updated_by"`
}

// TableName returns the GORM table name.
func (AssetRecord) TableName() string { return "assets" }

// EdgeRecord is a directed, typed relationship between two asset rows.
//
// The unique index on (edge_type, idempotency_key) is the idempotency
// guarantee: re-inserting with the same non-nil key is a no-op. NULL keys
// compare distinct under both SQLite and Postgres, so unkeyed edges are
// unconstrained.
type EdgeRecord struct {
	ID             string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	FromAssetID    string    `gorm:"column:from_asset_id;index:idx_edge_from;not null"`
	ToAssetID      string    `gorm:"column:to_asset_id;index:idx_edge_to;not null"`
	EdgeType       string    `gorm:"column:edge_type;uniqueIndex:idx_edge_type_idem,priority:1;not null"`
	Properties     JSONAny   `gorm:"column:properties;type:text"`
	IdempotencyKey *string   `gorm:"column:idempotency_key;uniqueIndex:idx_edge_type_idem,priority:2"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	CreatedBy      string    `gorm:"column:created_by"`
}

// TableName returns the GORM table name.
func (EdgeRecord) TableName() string { return "asset_edges" }
