package dbschema

import (
	"time"

	"mcpbox/internal/domain/settings"
	"mcpbox/internal/infrastructure/database"
)

func init() {
	database.RegisterSchemaForAutoMigrate(Setting{})
}

// Setting represents the database schema for process-wide key/value
// settings. Encrypted rows hold a base64 AEAD blob in Value.
type Setting struct {
	ID          string    `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()"`
	Key         string    `gorm:"column:key;size:255;not null;uniqueIndex"`
	Value       string    `gorm:"column:value;type:text"`
	Encrypted   bool      `gorm:"column:encrypted;not null;default:false"`
	Description string    `gorm:"column:description;type:text"`
	CreatedAt   time.Time `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null;default:now()"`
}

// TableName returns the table name for GORM
func (Setting) TableName() string {
	return "mcpbox.settings"
}

// ToDomain converts a database schema Setting to a domain model
func (s *Setting) ToDomain() *settings.Setting {
	return &settings.Setting{
		ID:          s.ID,
		Key:         s.Key,
		Value:       s.Value,
		Encrypted:   s.Encrypted,
		Description: s.Description,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

// NewSchemaSetting converts a domain Setting to a database schema
func NewSchemaSetting(st *settings.Setting) *Setting {
	return &Setting{
		ID:          st.ID,
		Key:         st.Key,
		Value:       st.Value,
		Encrypted:   st.Encrypted,
		Description: st.Description,
		CreatedAt:   st.CreatedAt,
		UpdatedAt:   st.UpdatedAt,
	}
}
