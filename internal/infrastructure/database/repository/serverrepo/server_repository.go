package serverrepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"mcpbox/internal/domain/query"
	"mcpbox/internal/domain/server"
	"mcpbox/internal/infrastructure/database/dbschema"
	"mcpbox/internal/infrastructure/database/transaction"
	"mcpbox/internal/utils/platformerrors"
)

// ServerGormRepository implements server.Repository using GORM
type ServerGormRepository struct {
	db *transaction.Database
}

var _ server.Repository = (*ServerGormRepository)(nil)

// NewServerGormRepository creates a new GORM-based server repository
func NewServerGormRepository(db *transaction.Database) server.Repository {
	return &ServerGormRepository{db: db}
}

// Create inserts a new server row
func (r *ServerGormRepository) Create(ctx context.Context, srv *server.Server) error {
	schema := dbschema.NewSchemaServer(srv)
	tx := r.db.GetTx(ctx)
	if err := tx.Create(schema).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict, "a server with this name already exists", err, "serverrepo-001")
		}
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to create server", err, "serverrepo-002")
	}
	srv.ID = schema.ID
	srv.CreatedAt = schema.CreatedAt
	srv.UpdatedAt = schema.UpdatedAt
	return nil
}

// FindByID finds a server by its ID
func (r *ServerGormRepository) FindByID(ctx context.Context, id string) (*server.Server, error) {
	var schema dbschema.Server
	tx := r.db.GetTx(ctx)
	if err := tx.Where("id = ?", id).First(&schema).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "server not found", err, "serverrepo-003")
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to find server", err, "serverrepo-004")
	}
	return schema.ToDomain(), nil
}

// FindByName finds a server by its unique name
func (r *ServerGormRepository) FindByName(ctx context.Context, name string) (*server.Server, error) {
	var schema dbschema.Server
	tx := r.db.GetTx(ctx)
	if err := tx.Where("name = ?", name).First(&schema).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "server not found", err, "serverrepo-005")
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to find server", err, "serverrepo-006")
	}
	return schema.ToDomain(), nil
}

// FindByFilter finds servers matching the given filter
func (r *ServerGormRepository) FindByFilter(ctx context.Context, filter server.Filter, p *query.Pagination) ([]*server.Server, error) {
	tx := r.db.GetTx(ctx)
	q := applyFilter(tx.Model(&dbschema.Server{}), filter)

	if p != nil {
		if p.Limit > 0 {
			q = q.Limit(p.Limit)
		}
		if p.Offset > 0 {
			q = q.Offset(p.Offset)
		}
	}

	q = q.Order("name ASC")

	var schemas []dbschema.Server
	if err := q.Find(&schemas).Error; err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to find servers", err, "serverrepo-007")
	}

	servers := make([]*server.Server, 0, len(schemas))
	for i := range schemas {
		servers = append(servers, schemas[i].ToDomain())
	}
	return servers, nil
}

// Count returns the count of servers matching the given filter
func (r *ServerGormRepository) Count(ctx context.Context, filter server.Filter) (int64, error) {
	tx := r.db.GetTx(ctx)
	q := applyFilter(tx.Model(&dbschema.Server{}), filter)

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to count servers", err, "serverrepo-008")
	}
	return count, nil
}

// Update persists all mutable fields of an existing server
func (r *ServerGormRepository) Update(ctx context.Context, srv *server.Server) error {
	schema := dbschema.NewSchemaServer(srv)
	schema.UpdatedAt = time.Now().UTC()

	tx := r.db.GetTx(ctx)
	result := tx.Model(&dbschema.Server{}).
		Where("id = ?", schema.ID).
		Updates(map[string]interface{}{
			"name":               schema.Name,
			"description":        schema.Description,
			"status":             schema.Status,
			"allowed_hosts":      schema.AllowedHosts,
			"default_timeout_ms": schema.DefaultTimeoutMS,
			"updated_at":         schema.UpdatedAt,
		})
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict, "a server with this name already exists", result.Error, "serverrepo-009")
		}
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to update server", result.Error, "serverrepo-010")
	}
	if result.RowsAffected == 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "server not found", nil, "serverrepo-011")
	}

	srv.UpdatedAt = schema.UpdatedAt
	return nil
}

// Delete removes a server row; tools, secrets and sources cascade
func (r *ServerGormRepository) Delete(ctx context.Context, id string) error {
	tx := r.db.GetTx(ctx)
	result := tx.Where("id = ?", id).Delete(&dbschema.Server{})
	if result.Error != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to delete server", result.Error, "serverrepo-012")
	}
	if result.RowsAffected == 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "server not found", nil, "serverrepo-013")
	}
	return nil
}

func applyFilter(q *gorm.DB, filter server.Filter) *gorm.DB {
	if filter.Status != nil {
		q = q.Where("status = ?", string(*filter.Status))
	}
	if filter.Search != nil && *filter.Search != "" {
		pattern := "%" + *filter.Search + "%"
		q = q.Where("name ILIKE ? OR description ILIKE ?", pattern, pattern)
	}
	return q
}
