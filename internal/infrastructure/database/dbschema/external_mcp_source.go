package dbschema

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"mcpbox/internal/domain/externalsource"
	"mcpbox/internal/infrastructure/database"
)

func init() {
	database.RegisterSchemaForAutoMigrate(ExternalMCPSource{})
}

// ExternalMCPSource represents the database schema for upstream MCP servers
// attached to a local server.
type ExternalMCPSource struct {
	ID                   string         `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()"`
	ServerID             string         `gorm:"column:server_id;type:uuid;not null;uniqueIndex:idx_external_sources_server_name"`
	Name                 string         `gorm:"column:name;size:255;not null;uniqueIndex:idx_external_sources_server_name"`
	URL                  string         `gorm:"column:url;type:text;not null"`
	AuthType             string         `gorm:"column:auth_type;size:20;not null;default:'none'"`
	AuthSecretName       string         `gorm:"column:auth_secret_name;size:255"`
	AuthHeaderName       string         `gorm:"column:auth_header_name;size:255"`
	TransportType        string         `gorm:"column:transport_type;size:30;not null;default:'streamable_http'"`
	Status               string         `gorm:"column:status;size:20;not null;default:'active'"`
	OAuthTokensEncrypted string         `gorm:"column:oauth_tokens_encrypted;type:text"`
	OAuthIssuer          string         `gorm:"column:oauth_issuer;type:text"`
	OAuthClientID        string         `gorm:"column:oauth_client_id;size:255"`
	ToolCount            int            `gorm:"column:tool_count;not null;default:0"`
	DiscoveredToolsCache datatypes.JSON `gorm:"column:discovered_tools_cache;type:jsonb"`
	CreatedAt            time.Time      `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt            time.Time      `gorm:"column:updated_at;not null;default:now()"`

	Server *Server `gorm:"foreignKey:ServerID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (ExternalMCPSource) TableName() string {
	return "mcpbox.external_mcp_sources"
}

// ToDomain converts a database schema ExternalMCPSource to a domain model
func (s *ExternalMCPSource) ToDomain() *externalsource.Source {
	return &externalsource.Source{
		ID:                   s.ID,
		ServerID:             s.ServerID,
		Name:                 s.Name,
		URL:                  s.URL,
		AuthType:             externalsource.AuthType(s.AuthType),
		AuthSecretName:       s.AuthSecretName,
		AuthHeaderName:       s.AuthHeaderName,
		TransportType:        externalsource.TransportType(s.TransportType),
		Status:               externalsource.Status(s.Status),
		OAuthTokensEncrypted: s.OAuthTokensEncrypted,
		OAuthIssuer:          s.OAuthIssuer,
		OAuthClientID:        s.OAuthClientID,
		ToolCount:            s.ToolCount,
		DiscoveredToolsCache: json.RawMessage(s.DiscoveredToolsCache),
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}

// NewSchemaExternalMCPSource converts a domain Source to a database schema
func NewSchemaExternalMCPSource(src *externalsource.Source) *ExternalMCPSource {
	return &ExternalMCPSource{
		ID:                   src.ID,
		ServerID:             src.ServerID,
		Name:                 src.Name,
		URL:                  src.URL,
		AuthType:             string(src.AuthType),
		AuthSecretName:       src.AuthSecretName,
		AuthHeaderName:       src.AuthHeaderName,
		TransportType:        string(src.TransportType),
		Status:               string(src.Status),
		OAuthTokensEncrypted: src.OAuthTokensEncrypted,
		OAuthIssuer:          src.OAuthIssuer,
		OAuthClientID:        src.OAuthClientID,
		ToolCount:            src.ToolCount,
		DiscoveredToolsCache: datatypes.JSON(src.DiscoveredToolsCache),
		CreatedAt:            src.CreatedAt,
		UpdatedAt:            src.UpdatedAt,
	}
}
