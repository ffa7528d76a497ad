package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a referenced asset does not exist.
var ErrNotFound = errors.New("asset not found")

// NewAsset describes an asset version to be created. AssetUID may be empty,
// in which case a fresh logical entity is started at version 1.
type NewAsset struct {
	AssetUID       string
	Type           string
	Subtype        string
	Name           string
	ProjectID      string
	OrganizationID string
	DocumentNumber string
	PathKey        string
	Classification string
	Content        JSONAny
	Metadata       JSONAny
	Status         string
	ApprovalState  ApprovalState
	RevisionCode   *string
	IdempotencyKey string
	Actor          string
}

// SetApprovalStateOpts carries the optional companions of an approval-state
// change. All fields are applied in the same transaction as the state change.
type SetApprovalStateOpts struct {
	Status       string
	RevisionCode *string
	ContentPatch JSONAny
	Actor        string
}

// AssetStore provides versioned CRUD over asset records.
type AssetStore struct {
	db *gorm.DB
}

// NewAssetStore creates a new AssetStore.
func NewAssetStore(db *gorm.DB) *AssetStore {
	return &AssetStore{db: db}
}

// AutoMigrate creates or updates the assets table.
func (s *AssetStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&AssetRecord{}); err != nil {
		return fmt.Errorf("auto-migrate assets: %w", err)
	}
	return nil
}

// lockForUpdate applies row-level locking where the dialect supports it.
// SQLite serializes writers at the database level, so the clause is skipped
// there rather than generating invalid SQL.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// CreateVersion inserts a new version of an asset.
//
// For a fresh AssetUID (or an empty one) this creates version 1 with
// is_current=true. When a current version already exists, the prior head is
// flipped to is_current=false and the new row inserted as the head, all inside
// one transaction. The unique index on (asset_uid, version) makes concurrent
// racers for the same entity fail the insert and roll back, so a reader can
// never observe zero or two current versions.
func (s *AssetStore) CreateVersion(ctx context.Context, spec NewAsset) (*AssetRecord, error) {
	record := newRecordFromSpec(spec)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if spec.AssetUID != "" {
			var head AssetRecord
			err := lockForUpdate(tx).
				Where("asset_uid = ? AND is_current = ? AND is_deleted = ?", spec.AssetUID, true, false).
				First(&head).Error
			switch {
			case err == nil:
				record.Version = head.Version + 1
				record.SupersedesAssetID = head.ID
				res := tx.Model(&AssetRecord{}).
					Where("id = ? AND is_current = ?", head.ID, true).
					Updates(map[string]any{"is_current": false, "updated_at": time.Now(), "updated_by": spec.Actor})
				if res.Error != nil {
					return fmt.Errorf("retire current version: %w", res.Error)
				}
				if res.RowsAffected == 0 {
					return fmt.Errorf("retire current version: head %s changed concurrently", head.ID)
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				// No live head; this becomes version 1 of the entity.
			default:
				return fmt.Errorf("load current version: %w", err)
			}
		}
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Upsert creates a new asset unless a live asset with the same idempotency key
// already exists, in which case the existing head is returned untouched.
func (s *AssetStore) Upsert(ctx context.Context, spec NewAsset) (*AssetRecord, error) {
	if spec.IdempotencyKey != "" {
		var existing AssetRecord
		err := s.db.WithContext(ctx).
			Where("idempotency_key = ? AND is_current = ? AND is_deleted = ?", spec.IdempotencyKey, true, false).
			First(&existing).Error
		if err == nil {
			return &existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("lookup by idempotency key: %w", err)
		}
	}
	return s.CreateVersion(ctx, spec)
}

// GetByID retrieves a specific asset version by its row ID.
// Returns nil, nil if no record exists.
func (s *AssetStore) GetByID(ctx context.Context, id string) (*AssetRecord, error) {
	var record AssetRecord
	err := s.db.WithContext(ctx).Where("id = ? AND is_deleted = ?", id, false).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return &record, nil
}

// GetCurrent retrieves the current version for a logical entity.
// Returns nil, nil if no live version exists.
func (s *AssetStore) GetCurrent(ctx context.Context, assetUID string) (*AssetRecord, error) {
	var record AssetRecord
	err := s.db.WithContext(ctx).
		Where("asset_uid = ? AND is_current = ? AND is_deleted = ?", assetUID, true, false).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get current version: %w", err)
	}
	return &record, nil
}

// GetCurrentByTypeName retrieves the current version of the first asset with
// the given type and name. Returns nil, nil if none exists.
func (s *AssetStore) GetCurrentByTypeName(ctx context.Context, assetType, name string) (*AssetRecord, error) {
	var record AssetRecord
	err := s.db.WithContext(ctx).
		Where("type = ? AND name = ? AND is_current = ? AND is_deleted = ?", assetType, name, true, false).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get asset by type and name: %w", err)
	}
	return &record, nil
}

// ListVersions returns all live versions of a logical entity, newest first.
func (s *AssetStore) ListVersions(ctx context.Context, assetUID string) ([]AssetRecord, error) {
	var records []AssetRecord
	err := s.db.WithContext(ctx).
		Where("asset_uid = ? AND is_deleted = ?", assetUID, false).
		Order("version DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return records, nil
}

// HeadFilter narrows ListHeads. Empty fields match everything.
type HeadFilter struct {
	ProjectID      string
	OrganizationID string
	Type           string
	Subtype        string
}

// ListHeads returns current asset versions matching the filter, newest first.
func (s *AssetStore) ListHeads(ctx context.Context, filter HeadFilter) ([]AssetRecord, error) {
	query := s.db.WithContext(ctx).Where("is_current = ? AND is_deleted = ?", true, false)
	if filter.ProjectID != "" {
		query = query.Where("project_id = ?", filter.ProjectID)
	}
	if filter.OrganizationID != "" {
		query = query.Where("organization_id = ?", filter.OrganizationID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Subtype != "" {
		query = query.Where("subtype = ?", filter.Subtype)
	}

	var records []AssetRecord
	if err := query.Order("created_at DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list heads: %w", err)
	}
	return records, nil
}

// MutateContent applies fn to an asset's content under the row lock and
// writes the result back in the same transaction. fn receives the stored
// content (never nil) and may mutate it in place; returning an error aborts
// the transaction unchanged. Concurrent mutations serialize, so
// read-modify-write callers (step counters and the like) never lose updates.
func (s *AssetStore) MutateContent(ctx context.Context, assetID, actor string, fn func(content JSONAny) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record AssetRecord
		err := lockForUpdate(tx).Where("id = ? AND is_deleted = ?", assetID, false).First(&record).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("load asset for content mutation: %w", err)
		}

		content := record.Content
		if content == nil {
			content = JSONAny{}
		}
		if err := fn(content); err != nil {
			return err
		}

		err = tx.Model(&AssetRecord{}).Where("id = ?", assetID).
			Updates(map[string]any{"content": content, "updated_at": time.Now(), "updated_by": actor}).Error
		if err != nil {
			return fmt.Errorf("write mutated content: %w", err)
		}
		return nil
	})
}

// PatchContent merges a partial map into an asset's content.
//
// The merge is shallow: only top-level keys present in the patch are touched,
// and nested structure under a touched key is replaced wholesale. Callers rely
// on "set field X without disturbing field Y".
func (s *AssetStore) PatchContent(ctx context.Context, assetID string, patch JSONAny, actor string) error {
	return s.MutateContent(ctx, assetID, actor, func(content JSONAny) error {
		for k, v := range patch {
			content[k] = v
		}
		return nil
	})
}

// SetApprovalState updates an asset's approval state together with its status,
// revision code and an optional content patch, in one transaction.
func (s *AssetStore) SetApprovalState(ctx context.Context, assetID string, state ApprovalState, opts SetApprovalStateOpts) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record AssetRecord
		err := lockForUpdate(tx).Where("id = ? AND is_deleted = ?", assetID, false).First(&record).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("load asset for approval state: %w", err)
		}

		updates := map[string]any{
			"approval_state": string(state),
			"updated_at":     time.Now(),
			"updated_by":     opts.Actor,
		}
		if opts.Status != "" {
			updates["status"] = opts.Status
		}
		if opts.RevisionCode != nil {
			updates["revision_code"] = *opts.RevisionCode
		}
		if len(opts.ContentPatch) > 0 {
			content := record.Content
			if content == nil {
				content = JSONAny{}
			}
			for k, v := range opts.ContentPatch {
				content[k] = v
			}
			updates["content"] = content
		}

		if err := tx.Model(&AssetRecord{}).Where("id = ?", assetID).Updates(updates).Error; err != nil {
			return fmt.Errorf("set approval state: %w", err)
		}
		return nil
	})
}

// LatestApprovedRevisionCode returns the revision code of the most recent
// approved version of an entity, or "" when no approved version exists.
func (s *AssetStore) LatestApprovedRevisionCode(ctx context.Context, assetUID string) (string, error) {
	var record AssetRecord
	err := s.db.WithContext(ctx).
		Where("asset_uid = ? AND approval_state = ? AND is_deleted = ?", assetUID, string(ApprovalApproved), false).
		Order("version DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("latest approved revision: %w", err)
	}
	if record.RevisionCode == nil {
		return "", nil
	}
	return *record.RevisionCode, nil
}

// SoftDelete marks an asset version deleted. A deleted head stops being the
// current version for reads; history rows are retained.
func (s *AssetStore) SoftDelete(ctx context.Context, assetID, actor string) error {
	res := s.db.WithContext(ctx).Model(&AssetRecord{}).
		Where("id = ? AND is_deleted = ?", assetID, false).
		Updates(map[string]any{"is_deleted": true, "is_current": false, "updated_at": time.Now(), "updated_by": actor})
	if res.Error != nil {
		return fmt.Errorf("soft delete asset: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func newRecordFromSpec(spec NewAsset) *AssetRecord {
	assetUID := spec.AssetUID
	if assetUID == "" {
		assetUID = uuid.New().String()
	}
	status := spec.Status
	if status == "" {
		status = StatusDraft
	}
	var idemKey *string
	if spec.IdempotencyKey != "" {
		k := spec.IdempotencyKey
		idemKey = &k
	}
	return &AssetRecord{
		ID:             uuid.New().String(),
		AssetUID:       assetUID,
		Version:        1,
		IsCurrent:      true,
		Type:           spec.Type,
		Subtype:        spec.Subtype,
		Name:           spec.Name,
		ProjectID:      spec.ProjectID,
		OrganizationID: spec.OrganizationID,
		DocumentNumber: spec.DocumentNumber,
		PathKey:        spec.PathKey,
		Classification: spec.Classification,
		Content:        spec.Content,
		Metadata:       spec.Metadata,
		Status:         status,
		ApprovalState:  spec.ApprovalState,
		RevisionCode:   spec.RevisionCode,
		IdempotencyKey: idemKey,
		CreatedBy:      spec.Actor,
		UpdatedBy:      spec.Actor,
	}
}
