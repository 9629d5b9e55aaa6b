package toolrepo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"mcpbox/internal/domain/tool"
	"mcpbox/internal/infrastructure/database/dbschema"
	"mcpbox/internal/infrastructure/database/transaction"
	"mcpbox/internal/utils/platformerrors"
)

// ToolVersionGormRepository implements tool.VersionRepository using GORM.
// Version rows are insert-only.
type ToolVersionGormRepository struct {
	db *transaction.Database
}

var _ tool.VersionRepository = (*ToolVersionGormRepository)(nil)

// NewToolVersionGormRepository creates a new GORM-based tool version repository
func NewToolVersionGormRepository(db *transaction.Database) tool.VersionRepository {
	return &ToolVersionGormRepository{db: db}
}

// Create inserts a new version snapshot
func (r *ToolVersionGormRepository) Create(ctx context.Context, version *tool.Version) error {
	schema := dbschema.NewSchemaToolVersion(version)
	tx := r.db.GetTx(ctx)
	if err := tx.Create(schema).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict, "version number already recorded for this tool", err, "toolversionrepo-001")
		}
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to create tool version", err, "toolversionrepo-002")
	}
	version.ID = schema.ID
	version.CreatedAt = schema.CreatedAt
	return nil
}

// FindByTool returns all versions of a tool, newest first
func (r *ToolVersionGormRepository) FindByTool(ctx context.Context, toolID string) ([]*tool.Version, error) {
	tx := r.db.GetTx(ctx)
	var schemas []dbschema.ToolVersion
	err := tx.Where("tool_id = ?", toolID).
		Order("version_number DESC").
		Find(&schemas).Error
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to find tool versions", err, "toolversionrepo-003")
	}

	versions := make([]*tool.Version, 0, len(schemas))
	for i := range schemas {
		versions = append(versions, schemas[i].ToDomain())
	}
	return versions, nil
}

// FindByToolAndNumber returns one version snapshot
func (r *ToolVersionGormRepository) FindByToolAndNumber(ctx context.Context, toolID string, number int) (*tool.Version, error) {
	var schema dbschema.ToolVersion
	tx := r.db.GetTx(ctx)
	if err := tx.Where("tool_id = ? AND version_number = ?", toolID, number).First(&schema).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "tool version not found", err, "toolversionrepo-004")
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to find tool version", err, "toolversionrepo-005")
	}
	return schema.ToDomain(), nil
}

// CountByTool returns the number of versions recorded for a tool
func (r *ToolVersionGormRepository) CountByTool(ctx context.Context, toolID string) (int64, error) {
	tx := r.db.GetTx(ctx)
	var count int64
	err := tx.Model(&dbschema.ToolVersion{}).
		Where("tool_id = ?", toolID).
		Count(&count).Error
	if err != nil {
		return 0, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to count tool versions", err, "toolversionrepo-006")
	}
	return count, nil
}
