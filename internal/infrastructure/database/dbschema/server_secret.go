package dbschema

import (
	"time"

	"mcpbox/internal/domain/secret"
	"mcpbox/internal/infrastructure/database"
)

func init() {
	database.RegisterSchemaForAutoMigrate(ServerSecret{})
}

// ServerSecret represents the database schema for per-server secrets.
// EncryptedValue NULL marks a placeholder key with no value yet.
type ServerSecret struct {
	ID             string    `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()"`
	ServerID       string    `gorm:"column:server_id;type:uuid;not null;uniqueIndex:idx_server_secrets_server_key"`
	KeyName        string    `gorm:"column:key_name;size:255;not null;uniqueIndex:idx_server_secrets_server_key"`
	EncryptedValue *string   `gorm:"column:encrypted_value;type:text"`
	Description    string    `gorm:"column:description;type:text"`
	CreatedAt      time.Time `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt      time.Time `gorm:"column:updated_at;not null;default:now()"`

	Server *Server `gorm:"foreignKey:ServerID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (ServerSecret) TableName() string {
	return "mcpbox.server_secrets"
}

// ToDomain converts a database schema ServerSecret to a domain model
func (s *ServerSecret) ToDomain() *secret.ServerSecret {
	return &secret.ServerSecret{
		ID:             s.ID,
		ServerID:       s.ServerID,
		KeyName:        s.KeyName,
		EncryptedValue: s.EncryptedValue,
		Description:    s.Description,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

// NewSchemaServerSecret converts a domain ServerSecret to a database schema
func NewSchemaServerSecret(sec *secret.ServerSecret) *ServerSecret {
	return &ServerSecret{
		ID:             sec.ID,
		ServerID:       sec.ServerID,
		KeyName:        sec.KeyName,
		EncryptedValue: sec.EncryptedValue,
		Description:    sec.Description,
		CreatedAt:      sec.CreatedAt,
		UpdatedAt:      sec.UpdatedAt,
	}
}
