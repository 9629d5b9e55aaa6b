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

// NetworkRequestGormRepository implements approval.NetworkRequestRepository
// using GORM
type NetworkRequestGormRepository struct {
	db *transaction.Database
}

var _ approval.NetworkRequestRepository = (*NetworkRequestGormRepository)(nil)

// NewNetworkRequestGormRepository creates a new GORM-based network access
// request repository
func NewNetworkRequestGormRepository(db *transaction.Database) approval.NetworkRequestRepository {
	return &NetworkRequestGormRepository{db: db}
}

// Create inserts a new network access request. A duplicate pending request
// trips the partial unique index and is reported as a conflict.
func (r *NetworkRequestGormRepository) Create(ctx context.Context, request *approval.NetworkAccessRequest) error {
	schema := dbschema.NewSchemaNetworkAccessRequest(request)
	tx := r.db.GetTx(ctx)
	if err := tx.Create(schema).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict, "a pending request for this host already exists", err, "requestrepo-009")
		}
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to create network access request", err, "requestrepo-010")
	}
	request.ID = schema.ID
	request.CreatedAt = schema.CreatedAt
	request.UpdatedAt = schema.UpdatedAt
	return nil
}

// FindByID finds a network access request by its ID
func (r *NetworkRequestGormRepository) FindByID(ctx context.Context, id string) (*approval.NetworkAccessRequest, error) {
	var schema dbschema.NetworkAccessRequest
	tx := r.db.GetTx(ctx)
	if err := tx.Where("id = ?", id).First(&schema).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "network access request not found", err, "requestrepo-011")
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to find network access request", err, "requestrepo-012")
	}
	return schema.ToDomain(), nil
}

// FindByFilter finds network access requests matching the filter, newest
// first
func (r *NetworkRequestGormRepository) FindByFilter(ctx context.Context, filter approval.RequestFilter) ([]*approval.NetworkAccessRequest, error) {
	tx := r.db.GetTx(ctx)
	q := applyNetworkFilter(tx.Model(&dbschema.NetworkAccessRequest{}), filter)

	var schemas []dbschema.NetworkAccessRequest
	if err := q.Order("created_at DESC").Find(&schemas).Error; err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to find network access requests", err, "requestrepo-013")
	}

	requests := make([]*approval.NetworkAccessRequest, 0, len(schemas))
	for i := range schemas {
		requests = append(requests, schemas[i].ToDomain())
	}
	return requests, nil
}

// Count returns the count of network access requests matching the filter
func (r *NetworkRequestGormRepository) Count(ctx context.Context, filter approval.RequestFilter) (int64, error) {
	tx := r.db.GetTx(ctx)
	q := applyNetworkFilter(tx.Model(&dbschema.NetworkAccessRequest{}), filter)

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to count network access requests", err, "requestrepo-014")
	}
	return count, nil
}

// Update persists the review fields of an existing network access request
func (r *NetworkRequestGormRepository) Update(ctx context.Context, request *approval.NetworkAccessRequest) error {
	schema := dbschema.NewSchemaNetworkAccessRequest(request)
	schema.UpdatedAt = time.Now().UTC()

	tx := r.db.GetTx(ctx)
	result := tx.Model(&dbschema.NetworkAccessRequest{}).
		Where("id = ?", schema.ID).
		Updates(map[string]interface{}{
			"status":       schema.Status,
			"reviewed_by":  schema.ReviewedBy,
			"reviewed_at":  schema.ReviewedAt,
			"review_notes": schema.ReviewNotes,
			"updated_at":   schema.UpdatedAt,
		})
	if result.Error != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to update network access request", result.Error, "requestrepo-015")
	}
	if result.RowsAffected == 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "network access request not found", nil, "requestrepo-016")
	}

	request.UpdatedAt = schema.UpdatedAt
	return nil
}

func applyNetworkFilter(q *gorm.DB, filter approval.RequestFilter) *gorm.DB {
	if filter.ToolID != nil {
		q = q.Where("tool_id = ?", *filter.ToolID)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", string(*filter.Status))
	}
	if filter.Host != nil {
		q = q.Where("host = ?", *filter.Host)
	}
	return q
}
