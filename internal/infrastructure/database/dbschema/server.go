package dbschema

import (
	"time"

	"github.com/lib/pq"

	"mcpbox/internal/domain/server"
	"mcpbox/internal/infrastructure/database"
)

func init() {
	database.RegisterSchemaForAutoMigrate(Server{})
}

// Server represents the database schema for MCP servers
type Server struct {
	ID               string         `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()"`
	Name             string         `gorm:"column:name;size:255;not null;uniqueIndex"`
	Description      string         `gorm:"column:description;type:text"`
	Status           string         `gorm:"column:status;size:20;not null;default:'imported';index"`
	AllowedHosts     pq.StringArray `gorm:"column:allowed_hosts;type:text[]"`
	DefaultTimeoutMS int            `gorm:"column:default_timeout_ms;not null;default:30000"`
	CreatedAt        time.Time      `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt        time.Time      `gorm:"column:updated_at;not null;default:now()"`
}

// TableName returns the table name for GORM
func (Server) TableName() string {
	return "mcpbox.servers"
}

// ToDomain converts a database schema Server to a domain model
func (s *Server) ToDomain() *server.Server {
	return &server.Server{
		ID:               s.ID,
		Name:             s.Name,
		Description:      s.Description,
		Status:           server.Status(s.Status),
		AllowedHosts:     []string(s.AllowedHosts),
		DefaultTimeoutMS: s.DefaultTimeoutMS,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

// NewSchemaServer converts a domain Server to a database schema
func NewSchemaServer(srv *server.Server) *Server {
	return &Server{
		ID:               srv.ID,
		Name:             srv.Name,
		Description:      srv.Description,
		Status:           string(srv.Status),
		AllowedHosts:     pq.StringArray(srv.AllowedHosts),
		DefaultTimeoutMS: srv.DefaultTimeoutMS,
		CreatedAt:        srv.CreatedAt,
		UpdatedAt:        srv.UpdatedAt,
	}
}
