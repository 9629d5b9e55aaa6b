// Package requestrepo persists module and network access requests. Both
// repositories rely on partial unique indexes to reject duplicate pending
// requests, surfacing the violation as a CONFLICT.
package requestrepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"mcpbox/internal/domain/approval"
	"mcpbox/internal/infrastructure/database/dbschema"
	"mcpbox/internal/infrastructure/database/transaction"
	"mcpbox/internal/utils/platformerrors"
)

// ModuleRequestGormRepository implements approval.ModuleRequestRepository
// using GORM
type ModuleRequestGormRepository struct {
	db *transaction.Database
}

var _ approval.ModuleRequestRepository = (*ModuleRequestGormRepository)(nil)

// NewModuleRequestGormRepository creates a new GORM-based module request
// repository
func NewModuleRequestGormRepository(db *transaction.Database) approval.ModuleRequestRepository {
	return &ModuleRequestGormRepository{db: db}
}

// Create inserts a new module request. A duplicate pending request trips
// the partial unique index and is reported as a conflict.
func (r *ModuleRequestGormRepository) Create(ctx context.Context, request *approval.ModuleRequest) error {
	schema := dbschema.NewSchemaModuleRequest(request)
	tx := r.db.GetTx(ctx)
	if err := tx.Create(schema).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict, "a pending request for this module already exists", err, "requestrepo-001")
		}
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to create module request", err, "requestrepo-002")
	}
	request.ID = schema.ID
	request.CreatedAt = schema.CreatedAt
	request.UpdatedAt = schema.UpdatedAt
	return nil
}

// FindByID finds a module request by its ID
func (r *ModuleRequestGormRepository) FindByID(ctx context.Context, id string) (*approval.ModuleRequest, error) {
	var schema dbschema.ModuleRequest
	tx := r.db.GetTx(ctx)
	if err := tx.Where("id = ?", id).First(&schema).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "module request not found", err, "requestrepo-003")
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to find module request", err, "requestrepo-004")
	}
	return schema.ToDomain(), nil
}

// FindByFilter finds module requests matching the filter, newest first
func (r *ModuleRequestGormRepository) FindByFilter(ctx context.Context, filter approval.RequestFilter) ([]*approval.ModuleRequest, error) {
	tx := r.db.GetTx(ctx)
	q := applyModuleFilter(tx.Model(&dbschema.ModuleRequest{}), filter)

	var schemas []dbschema.ModuleRequest
	if err := q.Order("created_at DESC").Find(&schemas).Error; err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to find module requests", err, "requestrepo-005")
	}

	requests := make([]*approval.ModuleRequest, 0, len(schemas))
	for i := range schemas {
		requests = append(requests, schemas[i].ToDomain())
	}
	return requests, nil
}

// Count returns the count of module requests matching the filter
func (r *ModuleRequestGormRepository) Count(ctx context.Context, filter approval.RequestFilter) (int64, error) {
	tx := r.db.GetTx(ctx)
	q := applyModuleFilter(tx.Model(&dbschema.ModuleRequest{}), filter)

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to count module requests", err, "requestrepo-006")
	}
	return count, nil
}

// Update persists the review fields of an existing module request
func (r *ModuleRequestGormRepository) Update(ctx context.Context, request *approval.ModuleRequest) error {
	schema := dbschema.NewSchemaModuleRequest(request)
	schema.UpdatedAt = time.Now().UTC()

	tx := r.db.GetTx(ctx)
	result := tx.Model(&dbschema.ModuleRequest{}).
		Where("id = ?", schema.ID).
		Updates(map[string]interface{}{
			"status":       schema.Status,
			"reviewed_by":  schema.ReviewedBy,
			"reviewed_at":  schema.ReviewedAt,
			"review_notes": schema.ReviewNotes,
			"updated_at":   schema.UpdatedAt,
		})
	if result.Error != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to update module request", result.Error, "requestrepo-007")
	}
	if result.RowsAffected == 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "module request not found", nil, "requestrepo-008")
	}

	request.UpdatedAt = schema.UpdatedAt
	return nil
}

func applyModuleFilter(q *gorm.DB, filter approval.RequestFilter) *gorm.DB {
	if filter.ToolID != nil {
		q = q.Where("tool_id = ?", *filter.ToolID)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", string(*filter.Status))
	}
	if filter.ModuleName != nil {
		q = q.Where("module_name = ?", *filter.ModuleName)
	}
	return q
}
