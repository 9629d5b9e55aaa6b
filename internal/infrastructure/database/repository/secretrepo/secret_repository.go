package secretrepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"mcpbox/internal/domain/secret"
	"mcpbox/internal/infrastructure/database/dbschema"
	"mcpbox/internal/infrastructure/database/transaction"
	"mcpbox/internal/utils/platformerrors"
)

// SecretGormRepository implements secret.Repository using GORM
type SecretGormRepository struct {
	db *transaction.Database
}

var _ secret.Repository = (*SecretGormRepository)(nil)

// NewSecretGormRepository creates a new GORM-based server secret repository
func NewSecretGormRepository(db *transaction.Database) secret.Repository {
	return &SecretGormRepository{db: db}
}

// Create inserts a new secret row
func (r *SecretGormRepository) Create(ctx context.Context, sec *secret.ServerSecret) error {
	schema := dbschema.NewSchemaServerSecret(sec)
	tx := r.db.GetTx(ctx)
	if err := tx.Create(schema).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict, "a secret with this key already exists on the server", err, "secretrepo-001")
		}
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to create secret", err, "secretrepo-002")
	}
	sec.ID = schema.ID
	sec.CreatedAt = schema.CreatedAt
	sec.UpdatedAt = schema.UpdatedAt
	return nil
}

// FindByID finds a secret by its ID
func (r *SecretGormRepository) FindByID(ctx context.Context, id string) (*secret.ServerSecret, error) {
	var schema dbschema.ServerSecret
	tx := r.db.GetTx(ctx)
	if err := tx.Where("id = ?", id).First(&schema).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "secret not found", err, "secretrepo-003")
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to find secret", err, "secretrepo-004")
	}
	return schema.ToDomain(), nil
}

// FindByServer returns all secrets of a server ordered by key name
func (r *SecretGormRepository) FindByServer(ctx context.Context, serverID string) ([]*secret.ServerSecret, error) {
	tx := r.db.GetTx(ctx)
	var schemas []dbschema.ServerSecret
	err := tx.Where("server_id = ?", serverID).
		Order("key_name ASC").
		Find(&schemas).Error
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to find secrets", err, "secretrepo-005")
	}

	secrets := make([]*secret.ServerSecret, 0, len(schemas))
	for i := range schemas {
		secrets = append(secrets, schemas[i].ToDomain())
	}
	return secrets, nil
}

// FindByServerAndKey finds one secret by its server and key name
func (r *SecretGormRepository) FindByServerAndKey(ctx context.Context, serverID, keyName string) (*secret.ServerSecret, error) {
	var schema dbschema.ServerSecret
	tx := r.db.GetTx(ctx)
	if err := tx.Where("server_id = ? AND key_name = ?", serverID, keyName).First(&schema).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "secret not found", err, "secretrepo-006")
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to find secret", err, "secretrepo-007")
	}
	return schema.ToDomain(), nil
}

// Update persists the value and description of an existing secret
func (r *SecretGormRepository) Update(ctx context.Context, sec *secret.ServerSecret) error {
	schema := dbschema.NewSchemaServerSecret(sec)
	schema.UpdatedAt = time.Now().UTC()

	tx := r.db.GetTx(ctx)
	result := tx.Model(&dbschema.ServerSecret{}).
		Where("id = ?", schema.ID).
		Updates(map[string]interface{}{
			"encrypted_value": schema.EncryptedValue,
			"description":     schema.Description,
			"updated_at":      schema.UpdatedAt,
		})
	if result.Error != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to update secret", result.Error, "secretrepo-008")
	}
	if result.RowsAffected == 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "secret not found", nil, "secretrepo-009")
	}

	sec.UpdatedAt = schema.UpdatedAt
	return nil
}

// Delete removes a secret row
func (r *SecretGormRepository) Delete(ctx context.Context, id string) error {
	tx := r.db.GetTx(ctx)
	result := tx.Where("id = ?", id).Delete(&dbschema.ServerSecret{})
	if result.Error != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to delete secret", result.Error, "secretrepo-010")
	}
	if result.RowsAffected == 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "secret not found", nil, "secretrepo-011")
	}
	return nil
}
