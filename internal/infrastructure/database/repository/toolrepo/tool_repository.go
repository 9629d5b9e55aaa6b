package toolrepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"mcpbox/internal/domain/query"
	"mcpbox/internal/domain/tool"
	"mcpbox/internal/infrastructure/database/dbschema"
	"mcpbox/internal/infrastructure/database/transaction"
	"mcpbox/internal/utils/platformerrors"
)

// ToolGormRepository implements tool.Repository using GORM
type ToolGormRepository struct {
	db *transaction.Database
}

var _ tool.Repository = (*ToolGormRepository)(nil)

// NewToolGormRepository creates a new GORM-based tool repository
func NewToolGormRepository(db *transaction.Database) tool.Repository {
	return &ToolGormRepository{db: db}
}

// Create inserts a new tool row
func (r *ToolGormRepository) Create(ctx context.Context, t *tool.Tool) error {
	schema := dbschema.NewSchemaTool(t)
	tx := r.db.GetTx(ctx)
	if err := tx.Create(schema).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict, "a tool with this name already exists on the server", err, "toolrepo-001")
		}
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to create tool", err, "toolrepo-002")
	}
	t.ID = schema.ID
	t.CreatedAt = schema.CreatedAt
	t.UpdatedAt = schema.UpdatedAt
	return nil
}

// FindByID finds a tool by its ID
func (r *ToolGormRepository) FindByID(ctx context.Context, id string) (*tool.Tool, error) {
	var schema dbschema.Tool
	tx := r.db.GetTx(ctx)
	if err := tx.Where("id = ?", id).First(&schema).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "tool not found", err, "toolrepo-003")
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to find tool", err, "toolrepo-004")
	}
	return schema.ToDomain(), nil
}

// FindByServerAndName finds a tool by its owning server and name
func (r *ToolGormRepository) FindByServerAndName(ctx context.Context, serverID, name string) (*tool.Tool, error) {
	var schema dbschema.Tool
	tx := r.db.GetTx(ctx)
	if err := tx.Where("server_id = ? AND name = ?", serverID, name).First(&schema).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "tool not found", err, "toolrepo-005")
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to find tool", err, "toolrepo-006")
	}
	return schema.ToDomain(), nil
}

// FindByFilter finds tools matching the given filter
func (r *ToolGormRepository) FindByFilter(ctx context.Context, filter tool.Filter, p *query.Pagination) ([]*tool.Tool, error) {
	tx := r.db.GetTx(ctx)
	q := applyFilter(tx.Model(&dbschema.Tool{}), filter)

	if p != nil {
		if p.Limit > 0 {
			q = q.Limit(p.Limit)
		}
		if p.Offset > 0 {
			q = q.Offset(p.Offset)
		}
	}

	q = q.Order("name ASC")

	var schemas []dbschema.Tool
	if err := q.Find(&schemas).Error; err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to find tools", err, "toolrepo-007")
	}

	tools := make([]*tool.Tool, 0, len(schemas))
	for i := range schemas {
		tools = append(tools, schemas[i].ToDomain())
	}
	return tools, nil
}

// FindExposed returns enabled, approved tools whose server is running,
// joined with the server name that forms the exposed key.
func (r *ToolGormRepository) FindExposed(ctx context.Context) ([]*tool.ExposedTool, error) {
	tx := r.db.GetTx(ctx)

	var rows []struct {
		ServerID   string
		ServerName string
		ToolName   string
	}
	err := tx.Model(&dbschema.Tool{}).
		Select("mcpbox.tools.server_id AS server_id, mcpbox.servers.name AS server_name, mcpbox.tools.name AS tool_name").
		Joins("JOIN mcpbox.servers ON mcpbox.servers.id = mcpbox.tools.server_id").
		Where("mcpbox.tools.enabled = ? AND mcpbox.tools.approval_status = ? AND mcpbox.servers.status = ?",
			true, string(tool.ApprovalApproved), "running").
		Order("server_name ASC, tool_name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to find exposed tools", err, "toolrepo-008")
	}

	exposed := make([]*tool.ExposedTool, 0, len(rows))
	for _, row := range rows {
		exposed = append(exposed, &tool.ExposedTool{
			ServerID:   row.ServerID,
			ServerName: row.ServerName,
			ToolName:   row.ToolName,
		})
	}
	return exposed, nil
}

// Count returns the count of tools matching the given filter
func (r *ToolGormRepository) Count(ctx context.Context, filter tool.Filter) (int64, error) {
	tx := r.db.GetTx(ctx)
	q := applyFilter(tx.Model(&dbschema.Tool{}), filter)

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to count tools", err, "toolrepo-009")
	}
	return count, nil
}

// CountApprovedSince counts tools approved after the given time
func (r *ToolGormRepository) CountApprovedSince(ctx context.Context, since time.Time) (int64, error) {
	tx := r.db.GetTx(ctx)
	var count int64
	err := tx.Model(&dbschema.Tool{}).
		Where("approval_status = ? AND approved_at >= ?", string(tool.ApprovalApproved), since).
		Count(&count).Error
	if err != nil {
		return 0, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to count approved tools", err, "toolrepo-010")
	}
	return count, nil
}

// CountRejectedSince counts tools rejected after the given time
func (r *ToolGormRepository) CountRejectedSince(ctx context.Context, since time.Time) (int64, error) {
	tx := r.db.GetTx(ctx)
	var count int64
	err := tx.Model(&dbschema.Tool{}).
		Where("approval_status = ? AND updated_at >= ?", string(tool.ApprovalRejected), since).
		Count(&count).Error
	if err != nil {
		return 0, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to count rejected tools", err, "toolrepo-011")
	}
	return count, nil
}

// Update persists all mutable fields of an existing tool
func (r *ToolGormRepository) Update(ctx context.Context, t *tool.Tool) error {
	schema := dbschema.NewSchemaTool(t)
	schema.UpdatedAt = time.Now().UTC()

	tx := r.db.GetTx(ctx)
	result := tx.Model(&dbschema.Tool{}).
		Where("id = ?", schema.ID).
		Updates(map[string]interface{}{
			"name":                  schema.Name,
			"description":           schema.Description,
			"enabled":               schema.Enabled,
			"timeout_ms":            schema.TimeoutMS,
			"tool_type":             schema.ToolType,
			"python_code":           schema.PythonCode,
			"external_source_id":    schema.ExternalSourceID,
			"external_tool_name":    schema.ExternalToolName,
			"input_schema":          schema.InputSchema,
			"code_dependencies":     schema.CodeDependencies,
			"current_version":       schema.CurrentVersion,
			"approval_status":       schema.ApprovalStatus,
			"approval_requested_at": schema.ApprovalRequestedAt,
			"approved_at":           schema.ApprovedAt,
			"approved_by":           schema.ApprovedBy,
			"rejection_reason":      schema.RejectionReason,
			"publish_notes":         schema.PublishNotes,
			"updated_at":            schema.UpdatedAt,
		})
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict, "a tool with this name already exists on the server", result.Error, "toolrepo-012")
		}
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to update tool", result.Error, "toolrepo-013")
	}
	if result.RowsAffected == 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "tool not found", nil, "toolrepo-014")
	}

	t.UpdatedAt = schema.UpdatedAt
	return nil
}

// Delete removes a tool row; versions and requests cascade
func (r *ToolGormRepository) Delete(ctx context.Context, id string) error {
	tx := r.db.GetTx(ctx)
	result := tx.Where("id = ?", id).Delete(&dbschema.Tool{})
	if result.Error != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to delete tool", result.Error, "toolrepo-015")
	}
	if result.RowsAffected == 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "tool not found", nil, "toolrepo-016")
	}
	return nil
}

func applyFilter(q *gorm.DB, filter tool.Filter) *gorm.DB {
	if filter.ServerID != nil {
		q = q.Where("server_id = ?", *filter.ServerID)
	}
	if filter.Enabled != nil {
		q = q.Where("enabled = ?", *filter.Enabled)
	}
	if filter.ApprovalStatus != nil {
		q = q.Where("approval_status = ?", string(*filter.ApprovalStatus))
	}
	if filter.ToolType != nil {
		q = q.Where("tool_type = ?", string(*filter.ToolType))
	}
	if filter.ExternalSourceID != nil {
		q = q.Where("external_source_id = ?", *filter.ExternalSourceID)
	}
	return q
}
