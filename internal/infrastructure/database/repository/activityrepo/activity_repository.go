package activityrepo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"mcpbox/internal/domain/activity"
	"mcpbox/internal/domain/query"
	"mcpbox/internal/infrastructure/database/dbschema"
	"mcpbox/internal/infrastructure/database/transaction"
	"mcpbox/internal/utils/platformerrors"
)

// ActivityGormRepository implements activity.Repository using GORM
type ActivityGormRepository struct {
	db *transaction.Database
}

var _ activity.Repository = (*ActivityGormRepository)(nil)

// NewActivityGormRepository creates a new GORM-based activity log repository
func NewActivityGormRepository(db *transaction.Database) activity.Repository {
	return &ActivityGormRepository{db: db}
}

// CreateBatch inserts a batch of entries in one statement
func (r *ActivityGormRepository) CreateBatch(ctx context.Context, entries []*activity.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	schemas := make([]*dbschema.ActivityLog, 0, len(entries))
	for _, e := range entries {
		schemas = append(schemas, dbschema.NewSchemaActivityLog(e))
	}

	tx := r.db.GetTx(ctx)
	if err := tx.Create(&schemas).Error; err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to insert activity log batch", err, "activityrepo-001")
	}
	return nil
}

// FindByFilter finds entries matching the filter, newest first
func (r *ActivityGormRepository) FindByFilter(ctx context.Context, filter activity.Filter, p *query.Pagination) ([]*activity.Entry, error) {
	tx := r.db.GetTx(ctx)
	q := applyFilter(tx.Model(&dbschema.ActivityLog{}), filter)

	if p != nil {
		if p.Limit > 0 {
			q = q.Limit(p.Limit)
		}
		if p.Offset > 0 {
			q = q.Offset(p.Offset)
		}
	}

	q = q.Order("created_at DESC")

	var schemas []dbschema.ActivityLog
	if err := q.Find(&schemas).Error; err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to find activity logs", err, "activityrepo-002")
	}

	entries := make([]*activity.Entry, 0, len(schemas))
	for i := range schemas {
		entries = append(entries, schemas[i].ToDomain())
	}
	return entries, nil
}

// Count returns the count of entries matching the filter
func (r *ActivityGormRepository) Count(ctx context.Context, filter activity.Filter) (int64, error) {
	tx := r.db.GetTx(ctx)
	q := applyFilter(tx.Model(&dbschema.ActivityLog{}), filter)

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to count activity logs", err, "activityrepo-003")
	}
	return count, nil
}

// DeleteOlderThan removes entries created before the cutoff and reports how
// many rows were removed
func (r *ActivityGormRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := r.db.GetTx(ctx)
	result := tx.Where("created_at < ?", cutoff).Delete(&dbschema.ActivityLog{})
	if result.Error != nil {
		return 0, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to delete old activity logs", result.Error, "activityrepo-004")
	}
	return result.RowsAffected, nil
}

// Stats aggregates totals, error count, mean duration and per-type and
// per-level breakdowns over the scoped window
func (r *ActivityGormRepository) Stats(ctx context.Context, sq activity.StatsQuery) (*activity.Stats, error) {
	tx := r.db.GetTx(ctx)

	scope := func() *gorm.DB {
		q := tx.Model(&dbschema.ActivityLog{})
		if sq.ServerID != nil {
			q = q.Where("server_id = ?", *sq.ServerID)
		}
		if sq.Since != nil {
			q = q.Where("created_at >= ?", *sq.Since)
		}
		if sq.Until != nil {
			q = q.Where("created_at <= ?", *sq.Until)
		}
		return q
	}

	var totals struct {
		TotalCount    int64
		ErrorCount    int64
		AvgDurationMS float64
	}
	err := scope().
		Select("COUNT(*) AS total_count, COUNT(*) FILTER (WHERE level = 'error') AS error_count, COALESCE(AVG(duration_ms), 0) AS avg_duration_ms").
		Scan(&totals).Error
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to aggregate activity logs", err, "activityrepo-005")
	}

	type bucket struct {
		Key   string
		Count int64
	}

	var byType []bucket
	if err := scope().Select("log_type AS key, COUNT(*) AS count").Group("log_type").Scan(&byType).Error; err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to aggregate activity logs by type", err, "activityrepo-006")
	}

	var byLevel []bucket
	if err := scope().Select("level AS key, COUNT(*) AS count").Group("level").Scan(&byLevel).Error; err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to aggregate activity logs by level", err, "activityrepo-007")
	}

	stats := &activity.Stats{
		TotalCount:    totals.TotalCount,
		ErrorCount:    totals.ErrorCount,
		AvgDurationMS: totals.AvgDurationMS,
		ByType:        make(map[string]int64, len(byType)),
		ByLevel:       make(map[string]int64, len(byLevel)),
	}
	for _, b := range byType {
		stats.ByType[b.Key] = b.Count
	}
	for _, b := range byLevel {
		stats.ByLevel[b.Key] = b.Count
	}
	return stats, nil
}

func applyFilter(q *gorm.DB, filter activity.Filter) *gorm.DB {
	if filter.ServerID != nil {
		q = q.Where("server_id = ?", *filter.ServerID)
	}
	if len(filter.LogTypes) > 0 {
		types := make([]string, 0, len(filter.LogTypes))
		for _, t := range filter.LogTypes {
			types = append(types, string(t))
		}
		q = q.Where("log_type IN ?", types)
	}
	if len(filter.Levels) > 0 {
		levels := make([]string, 0, len(filter.Levels))
		for _, l := range filter.Levels {
			levels = append(levels, string(l))
		}
		q = q.Where("level IN ?", levels)
	}
	if filter.RequestID != nil {
		q = q.Where("request_id = ?", *filter.RequestID)
	}
	if filter.Since != nil {
		q = q.Where("created_at >= ?", *filter.Since)
	}
	if filter.Until != nil {
		q = q.Where("created_at <= ?", *filter.Until)
	}
	return q
}
