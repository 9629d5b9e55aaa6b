package settingsrepo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mcpbox/internal/domain/settings"
	"mcpbox/internal/infrastructure/database/dbschema"
	"mcpbox/internal/infrastructure/database/transaction"
	"mcpbox/internal/utils/platformerrors"
)

// SettingsGormRepository implements settings.Repository using GORM
type SettingsGormRepository struct {
	db *transaction.Database
}

var _ settings.Repository = (*SettingsGormRepository)(nil)

// NewSettingsGormRepository creates a new GORM-based settings repository
func NewSettingsGormRepository(db *transaction.Database) settings.Repository {
	return &SettingsGormRepository{db: db}
}

// Get returns the setting for the key, or nil when no row exists. Callers
// treat a missing row as "unset" rather than an error.
func (r *SettingsGormRepository) Get(ctx context.Context, key string) (*settings.Setting, error) {
	var schema dbschema.Setting
	tx := r.db.GetTx(ctx)
	err := tx.Where("key = ?", key).First(&schema).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to get setting", err, "settingsrepo-001")
	}
	return schema.ToDomain(), nil
}

// List returns all settings ordered by key
func (r *SettingsGormRepository) List(ctx context.Context) ([]*settings.Setting, error) {
	var schemas []dbschema.Setting
	tx := r.db.GetTx(ctx)
	if err := tx.Order("key ASC").Find(&schemas).Error; err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to list settings", err, "settingsrepo-002")
	}

	result := make([]*settings.Setting, 0, len(schemas))
	for i := range schemas {
		result = append(result, schemas[i].ToDomain())
	}
	return result, nil
}

// Upsert inserts the setting or updates the existing row with the same key.
// The write and the reload of generated columns run in one transaction.
func (r *SettingsGormRepository) Upsert(ctx context.Context, setting *settings.Setting) error {
	schema := dbschema.NewSchemaSetting(setting)

	assignments := map[string]interface{}{
		"value":       schema.Value,
		"encrypted":   schema.Encrypted,
		"description": schema.Description,
		"updated_at":  gorm.Expr("NOW()"),
	}

	return r.db.RunInTx(ctx, func(ctx context.Context) error {
		tx := r.db.GetTx(ctx)
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.Assignments(assignments),
		}).Create(schema).Error
		if err != nil {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to upsert setting", err, "settingsrepo-003")
		}

		var persisted dbschema.Setting
		if err := tx.Where("key = ?", setting.Key).First(&persisted).Error; err != nil {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to reload upserted setting", err, "settingsrepo-004")
		}

		setting.ID = persisted.ID
		setting.CreatedAt = persisted.CreatedAt
		setting.UpdatedAt = persisted.UpdatedAt
		return nil
	})
}

// Delete removes the setting with the key. Deleting a missing key is a
// no-op.
func (r *SettingsGormRepository) Delete(ctx context.Context, key string) error {
	tx := r.db.GetTx(ctx)
	if err := tx.Where("key = ?", key).Delete(&dbschema.Setting{}).Error; err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to delete setting", err, "settingsrepo-005")
	}
	return nil
}
