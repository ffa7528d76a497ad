package access

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Gate answers whether an actor may act on a project's assets.
type Gate interface {
	CanActOnProject(ctx context.Context, user, projectID string) (bool, error)
}

// AllowAll is a development gate that admits every actor.
type AllowAll struct{}

// CanActOnProject always returns true.
func (AllowAll) CanActOnProject(ctx context.Context, user, projectID string) (bool, error) {
	return true, nil
}

// ProjectRecord is the minimal shape of the outer application's projects
// table that the gate reads.
type ProjectRecord struct {
	ID             string `gorm:"primaryKey;column:id;type:varchar(36)"`
	OrganizationID string `gorm:"column:organization_id;index"`
	Name           string `gorm:"column:name"`
}

// TableName returns the GORM table name.
func (ProjectRecord) TableName() string { return "projects" }

// OrganizationUserRecord links a user to an organization.
type OrganizationUserRecord struct {
	OrganizationID string `gorm:"primaryKey;column:organization_id"`
	UserID         string `gorm:"primaryKey;column:user_id"`
}

// TableName returns the GORM table name.
func (OrganizationUserRecord) TableName() string { return "organization_users" }

// ProjectMemberRecord links a user directly to a project, independent of
// organization membership.
type ProjectMemberRecord struct {
	ProjectID string `gorm:"primaryKey;column:project_id"`
	UserID    string `gorm:"primaryKey;column:user_id"`
}

// TableName returns the GORM table name.
func (ProjectMemberRecord) TableName() string { return "project_members" }

// StoreGate checks project access against the membership tables: a user has
// access when they belong to the project's organization, or failing that when
// they are a direct project member.
type StoreGate struct {
	db *gorm.DB
}

// NewStoreGate creates a new StoreGate.
func NewStoreGate(db *gorm.DB) *StoreGate {
	return &StoreGate{db: db}
}

// AutoMigrate creates the membership tables. Intended for development and
// tests; in production these tables are owned by the outer application.
func (g *StoreGate) AutoMigrate() error {
	if err := g.db.AutoMigrate(&ProjectRecord{}, &OrganizationUserRecord{}, &ProjectMemberRecord{}); err != nil {
		return fmt.Errorf("auto-migrate membership tables: %w", err)
	}
	return nil
}

// CanActOnProject implements Gate.
func (g *StoreGate) CanActOnProject(ctx context.Context, user, projectID string) (bool, error) {
	if user == "" || user == AnonymousUser || projectID == "" {
		return false, nil
	}

	var count int64
	err := g.db.WithContext(ctx).Model(&ProjectRecord{}).
		Joins("JOIN organization_users ou ON ou.organization_id = projects.organization_id").
		Where("projects.id = ? AND ou.user_id = ?", projectID, user).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check organization membership: %w", err)
	}
	if count > 0 {
		return true, nil
	}

	err = g.db.WithContext(ctx).Model(&ProjectMemberRecord{}).
		Where("project_id = ? AND user_id = ?", projectID, user).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check project membership: %w", err)
	}
	return count > 0, nil
}
