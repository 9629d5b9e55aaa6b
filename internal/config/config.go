package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Global singleton for call sites outside the wire graph
var globalConfig *Config

// Config holds all environment backed configuration for mcpbox.
type Config struct {
	// HTTP Server
	HTTPPort    int           `env:"HTTP_PORT" envDefault:"8181"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	// PublicBaseURL is the externally reachable origin, used to build the
	// OAuth redirect URI for external MCP sources.
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8181"`
	// CORSAllowedOrigins extends the built-in localhost origins when the
	// admin UI is served from somewhere else.
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	// Database
	DatabaseURL string `env:"DATABASE_URL,notEmpty"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`

	// Secrets at rest. Absence is a startup fatal: nothing encrypted can be
	// read or written without it.
	EncryptionKey string `env:"MCPBOX_ENCRYPTION_KEY,notEmpty"`

	// Sandbox RPC
	SandboxURL     string        `env:"SANDBOX_URL" envDefault:"http://localhost:8100"`
	SandboxAPIKey  string        `env:"SANDBOX_API_KEY"`
	SandboxTimeout time.Duration `env:"SANDBOX_TIMEOUT" envDefault:"120s"`

	// Edge / internal endpoints
	InternalAPIToken string `env:"INTERNAL_API_TOKEN"`

	// Auth pipeline
	AuthCacheTTL     time.Duration `env:"AUTH_CACHE_TTL" envDefault:"60s"`
	FailedAuthMax    int           `env:"FAILED_AUTH_MAX" envDefault:"10"`
	FailedAuthWindow time.Duration `env:"FAILED_AUTH_WINDOW" envDefault:"15m"`

	// Gateway
	MaxSSEConnections int `env:"MAX_SSE_CONNECTIONS" envDefault:"50"`

	// Activity logger
	ActivityBatchInterval time.Duration `env:"ACTIVITY_BATCH_INTERVAL" envDefault:"100ms"`
	ActivityBatchSize     int           `env:"ACTIVITY_BATCH_SIZE" envDefault:"50"`
	LogRetentionDays      int           `env:"LOG_RETENTION_DAYS" envDefault:"30"`

	// External-source OAuth
	OAuthFlowExpiry  time.Duration `env:"OAUTH_FLOW_EXPIRY" envDefault:"10m"`
	OAuthHTTPTimeout time.Duration `env:"OAUTH_HTTP_TIMEOUT" envDefault:"15s"`

	// Observability / Logging
	OTLPEndpoint     string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPHeaders      string `env:"OTEL_EXPORTER_OTLP_HEADERS"`
	ServiceName      string `env:"SERVICE_NAME" envDefault:"mcpbox"`
	ServiceNamespace string `env:"SERVICE_NAMESPACE" envDefault:"mcpbox"`
	Environment      string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat        string `env:"LOG_FORMAT" envDefault:"console"`

	// Debug
	PprofEnabled bool `env:"PPROF_ENABLED" envDefault:"false"`
	PprofPort    int  `env:"PPROF_PORT" envDefault:"6060"`

	// Internal
	EnvReloadedAt time.Time
}

// Load parses environment variables into Config and performs minimal validation.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if _, err := url.ParseRequestURI(cfg.PublicBaseURL); err != nil {
		return nil, fmt.Errorf("invalid PUBLIC_BASE_URL: %w", err)
	}

	if _, err := url.ParseRequestURI(cfg.SandboxURL); err != nil {
		return nil, fmt.Errorf("invalid SANDBOX_URL: %w", err)
	}

	if cfg.FailedAuthMax <= 0 {
		return nil, fmt.Errorf("FAILED_AUTH_MAX must be positive, got %d", cfg.FailedAuthMax)
	}

	if cfg.MaxSSEConnections <= 0 {
		return nil, fmt.Errorf("MAX_SSE_CONNECTIONS must be positive, got %d", cfg.MaxSSEConnections)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.EnvReloadedAt = time.Now()

	globalConfig = cfg

	return cfg, nil
}

// OAuthRedirectURI returns the callback URL registered with external
// authorization servers.
func (c *Config) OAuthRedirectURI() string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/oauth/callback"
}

// GetGlobal returns the global config instance.
// Deprecated: Use dependency injection with Load() instead.
func GetGlobal() *Config {
	return globalConfig
}

var Version = "dev"

func IsDev() bool {
	return strings.HasPrefix(Version, "dev")
}
