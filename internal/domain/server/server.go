package server

import (
	"context"
	"time"

	"mcpbox/internal/domain/query"
)

// Status is the lifecycle state of a server.
type Status string

const (
	StatusImported Status = "imported"
	StatusReady    Status = "ready"
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// Server is a named container for tools. It is "running" iff currently
// registered with the sandbox.
type Server struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Status           Status    `json:"status"`
	AllowedHosts     []string  `json:"allowed_hosts"`
	DefaultTimeoutMS int       `json:"default_timeout_ms"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// HasAllowedHost reports whether host is already on the allow list.
func (s *Server) HasAllowedHost(host string) bool {
	for _, h := range s.AllowedHosts {
		if h == host {
			return true
		}
	}
	return false
}

// Filter narrows server list queries.
type Filter struct {
	Status *Status
	Search *string
}

// Repository defines the data access interface for servers.
type Repository interface {
	Create(ctx context.Context, server *Server) error
	FindByID(ctx context.Context, id string) (*Server, error)
	FindByName(ctx context.Context, name string) (*Server, error)
	FindByFilter(ctx context.Context, filter Filter, p *query.Pagination) ([]*Server, error)
	Count(ctx context.Context, filter Filter) (int64, error)
	Update(ctx context.Context, server *Server) error
	Delete(ctx context.Context, id string) error
}
