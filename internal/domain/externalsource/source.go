// Package externalsource manages upstream MCP servers whose tools are
// re-exposed through mcpbox as passthrough tools.
package externalsource

import (
	"context"
	"encoding/json"
	"time"
)

// AuthType is how requests to the external server authenticate.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBearer AuthType = "bearer"
	AuthHeader AuthType = "header"
	AuthOAuth  AuthType = "oauth"
)

// TransportType selects the MCP client transport.
type TransportType string

const (
	TransportStreamableHTTP TransportType = "streamable_http"
	TransportSSE            TransportType = "sse"
)

// Status is the health of a source as of its last use.
type Status string

const (
	StatusActive   Status = "active"
	StatusError    Status = "error"
	StatusDisabled Status = "disabled"
)

// Source is one external MCP server attached to a local server. Bearer and
// header auth reference a ServerSecret by key name; OAuth keeps its token
// bundle encrypted on the row.
type Source struct {
	ID       string
	ServerID string
	Name     string
	URL      string

	AuthType       AuthType
	AuthSecretName string
	AuthHeaderName string
	TransportType  TransportType
	Status         Status

	OAuthTokensEncrypted string
	OAuthIssuer          string
	OAuthClientID        string

	ToolCount            int
	DiscoveredToolsCache json.RawMessage

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository defines persistence operations for external sources.
type Repository interface {
	Create(ctx context.Context, src *Source) error
	FindByID(ctx context.Context, id string) (*Source, error)
	FindByServer(ctx context.Context, serverID string) ([]*Source, error)
	FindByServerAndName(ctx context.Context, serverID, name string) (*Source, error)
	Update(ctx context.Context, src *Source) error
	Delete(ctx context.Context, id string) error
}
