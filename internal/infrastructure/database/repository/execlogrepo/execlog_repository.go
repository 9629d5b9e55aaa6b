package execlogrepo

import (
	"context"

	"gorm.io/gorm"

	"mcpbox/internal/domain/execlog"
	"mcpbox/internal/domain/query"
	"mcpbox/internal/infrastructure/database/dbschema"
	"mcpbox/internal/infrastructure/database/transaction"
	"mcpbox/internal/utils/platformerrors"
)

// ExecLogGormRepository implements execlog.Repository using GORM
type ExecLogGormRepository struct {
	db *transaction.Database
}

var _ execlog.Repository = (*ExecLogGormRepository)(nil)

// NewExecLogGormRepository creates a new GORM-based execution log repository
func NewExecLogGormRepository(db *transaction.Database) execlog.Repository {
	return &ExecLogGormRepository{db: db}
}

// Create inserts a new execution record
func (r *ExecLogGormRepository) Create(ctx context.Context, record *execlog.Record) error {
	schema := dbschema.NewSchemaToolExecutionLog(record)
	tx := r.db.GetTx(ctx)
	if err := tx.Create(schema).Error; err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to create execution log", err, "execlogrepo-001")
	}
	record.ID = schema.ID
	record.CreatedAt = schema.CreatedAt
	return nil
}

// FindByFilter finds execution records matching the filter, newest first
func (r *ExecLogGormRepository) FindByFilter(ctx context.Context, filter execlog.Filter, p *query.Pagination) ([]*execlog.Record, error) {
	tx := r.db.GetTx(ctx)
	q := applyFilter(tx.Model(&dbschema.ToolExecutionLog{}), filter)

	if p != nil {
		if p.Limit > 0 {
			q = q.Limit(p.Limit)
		}
		if p.Offset > 0 {
			q = q.Offset(p.Offset)
		}
	}

	q = q.Order("created_at DESC")

	var schemas []dbschema.ToolExecutionLog
	if err := q.Find(&schemas).Error; err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to find execution logs", err, "execlogrepo-002")
	}

	records := make([]*execlog.Record, 0, len(schemas))
	for i := range schemas {
		records = append(records, schemas[i].ToDomain())
	}
	return records, nil
}

// Count returns the count of execution records matching the filter
func (r *ExecLogGormRepository) Count(ctx context.Context, filter execlog.Filter) (int64, error) {
	tx := r.db.GetTx(ctx)
	q := applyFilter(tx.Model(&dbschema.ToolExecutionLog{}), filter)

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to count execution logs", err, "execlogrepo-003")
	}
	return count, nil
}

func applyFilter(q *gorm.DB, filter execlog.Filter) *gorm.DB {
	if filter.ToolID != nil {
		q = q.Where("tool_id = ?", *filter.ToolID)
	}
	if filter.ServerID != nil {
		q = q.Where("server_id = ?", *filter.ServerID)
	}
	if filter.Success != nil {
		q = q.Where("success = ?", *filter.Success)
	}
	if filter.IsTest != nil {
		q = q.Where("is_test = ?", *filter.IsTest)
	}
	return q
}
