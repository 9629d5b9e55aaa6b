package secret

import (
	"context"
	"time"
)

// ServerSecret is a named credential scoped to one server. A row with a nil
// EncryptedValue is a placeholder: the key is declared but no value has been
// provided yet, so it is skipped when building the sandbox environment.
type ServerSecret struct {
	ID             string    `json:"id"`
	ServerID       string    `json:"server_id"`
	KeyName        string    `json:"key_name"`
	EncryptedValue *string   `json:"-"`
	Description    string    `json:"description,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HasValue reports whether a real value is stored (placeholder otherwise).
func (s *ServerSecret) HasValue() bool {
	return s.EncryptedValue != nil && *s.EncryptedValue != ""
}

// Info is the external view of a secret. Values never leave the domain
// layer; only their presence is reported.
type Info struct {
	ID          string    `json:"id"`
	ServerID    string    `json:"server_id"`
	KeyName     string    `json:"key_name"`
	Description string    `json:"description,omitempty"`
	HasValue    bool      `json:"has_value"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Repository defines the data access interface for server secrets.
type Repository interface {
	Create(ctx context.Context, secret *ServerSecret) error
	FindByID(ctx context.Context, id string) (*ServerSecret, error)
	FindByServer(ctx context.Context, serverID string) ([]*ServerSecret, error)
	FindByServerAndKey(ctx context.Context, serverID, keyName string) (*ServerSecret, error)
	Update(ctx context.Context, secret *ServerSecret) error
	Delete(ctx context.Context, id string) error
}
