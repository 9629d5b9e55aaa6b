package sourcerepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"mcpbox/internal/domain/externalsource"
	"mcpbox/internal/infrastructure/database/dbschema"
	"mcpbox/internal/infrastructure/database/transaction"
	"mcpbox/internal/utils/platformerrors"
)

// SourceGormRepository implements externalsource.Repository using GORM
type SourceGormRepository struct {
	db *transaction.Database
}

var _ externalsource.Repository = (*SourceGormRepository)(nil)

// NewSourceGormRepository creates a new GORM-based external source repository
func NewSourceGormRepository(db *transaction.Database) externalsource.Repository {
	return &SourceGormRepository{db: db}
}

// Create inserts a new external source row
func (r *SourceGormRepository) Create(ctx context.Context, src *externalsource.Source) error {
	schema := dbschema.NewSchemaExternalMCPSource(src)
	tx := r.db.GetTx(ctx)
	if err := tx.Create(schema).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict, "a source with this name already exists on the server", err, "sourcerepo-001")
		}
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to create external source", err, "sourcerepo-002")
	}
	src.ID = schema.ID
	src.CreatedAt = schema.CreatedAt
	src.UpdatedAt = schema.UpdatedAt
	return nil
}

// FindByID finds an external source by its ID
func (r *SourceGormRepository) FindByID(ctx context.Context, id string) (*externalsource.Source, error) {
	var schema dbschema.ExternalMCPSource
	tx := r.db.GetTx(ctx)
	if err := tx.Where("id = ?", id).First(&schema).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "external source not found", err, "sourcerepo-003")
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to find external source", err, "sourcerepo-004")
	}
	return schema.ToDomain(), nil
}

// FindByServer returns all sources attached to a server
func (r *SourceGormRepository) FindByServer(ctx context.Context, serverID string) ([]*externalsource.Source, error) {
	tx := r.db.GetTx(ctx)
	var schemas []dbschema.ExternalMCPSource
	err := tx.Where("server_id = ?", serverID).
		Order("name ASC").
		Find(&schemas).Error
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to find external sources", err, "sourcerepo-005")
	}

	sources := make([]*externalsource.Source, 0, len(schemas))
	for i := range schemas {
		sources = append(sources, schemas[i].ToDomain())
	}
	return sources, nil
}

// FindByServerAndName finds one source by its server and name
func (r *SourceGormRepository) FindByServerAndName(ctx context.Context, serverID, name string) (*externalsource.Source, error) {
	var schema dbschema.ExternalMCPSource
	tx := r.db.GetTx(ctx)
	if err := tx.Where("server_id = ? AND name = ?", serverID, name).First(&schema).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "external source not found", err, "sourcerepo-006")
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to find external source", err, "sourcerepo-007")
	}
	return schema.ToDomain(), nil
}

// Update persists all mutable fields of an existing source
func (r *SourceGormRepository) Update(ctx context.Context, src *externalsource.Source) error {
	schema := dbschema.NewSchemaExternalMCPSource(src)
	schema.UpdatedAt = time.Now().UTC()

	tx := r.db.GetTx(ctx)
	result := tx.Model(&dbschema.ExternalMCPSource{}).
		Where("id = ?", schema.ID).
		Updates(map[string]interface{}{
			"name":                   schema.Name,
			"url":                    schema.URL,
			"auth_type":              schema.AuthType,
			"auth_secret_name":       schema.AuthSecretName,
			"auth_header_name":       schema.AuthHeaderName,
			"transport_type":         schema.TransportType,
			"status":                 schema.Status,
			"oauth_tokens_encrypted": schema.OAuthTokensEncrypted,
			"oauth_issuer":           schema.OAuthIssuer,
			"oauth_client_id":        schema.OAuthClientID,
			"tool_count":             schema.ToolCount,
			"discovered_tools_cache": schema.DiscoveredToolsCache,
			"updated_at":             schema.UpdatedAt,
		})
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict, "a source with this name already exists on the server", result.Error, "sourcerepo-008")
		}
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to update external source", result.Error, "sourcerepo-009")
	}
	if result.RowsAffected == 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "external source not found", nil, "sourcerepo-010")
	}

	src.UpdatedAt = schema.UpdatedAt
	return nil
}

// Delete removes a source row; imported tools keep their rows with
// external_source_id set NULL by the schema constraint
func (r *SourceGormRepository) Delete(ctx context.Context, id string) error {
	tx := r.db.GetTx(ctx)
	result := tx.Where("id = ?", id).Delete(&dbschema.ExternalMCPSource{})
	if result.Error != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to delete external source", result.Error, "sourcerepo-011")
	}
	if result.RowsAffected == 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "external source not found", nil, "sourcerepo-012")
	}
	return nil
}
