package sandbox

import (
	"encoding/json"
	"fmt"
	"time"
)

// SandboxError is returned for any non-2xx sandbox response. The gateway
// and services switch on StatusCode; the raw transport error never leaks.
type SandboxError struct {
	StatusCode int
	Message    string
}

func (e *SandboxError) Error() string {
	return fmt.Sprintf("sandbox error (%d): %s", e.StatusCode, e.Message)
}

// CircuitBreakerOpenError is returned when the breaker rejects a call
// without attempting it. RetryAfter tells the caller when the breaker will
// next allow a probe.
type CircuitBreakerOpenError struct {
	RetryAfter time.Duration
}

func (e *CircuitBreakerOpenError) Error() string {
	return fmt.Sprintf("sandbox circuit breaker open, retry after %s", e.RetryAfter.Round(time.Millisecond))
}

// HealthStatus is the sandbox /health response.
type HealthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ToolDef is one tool in a server registration payload.
type ToolDef struct {
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	ToolType           string          `json:"tool_type"`
	PythonCode         string          `json:"python_code,omitempty"`
	InputSchema        json.RawMessage `json:"input_schema,omitempty"`
	TimeoutMS          int             `json:"timeout_ms"`
	ExternalSourceName string          `json:"external_source_name,omitempty"`
	ExternalToolName   string          `json:"external_tool_name,omitempty"`
}

// ExternalSourceConfig carries a resolved upstream MCP source: the auth
// token is already decrypted (secret lookup or OAuth access token).
type ExternalSourceConfig struct {
	Name           string `json:"name"`
	URL            string `json:"url"`
	TransportType  string `json:"transport_type"`
	AuthType       string `json:"auth_type"`
	AuthToken      string `json:"auth_token,omitempty"`
	AuthHeaderName string `json:"auth_header_name,omitempty"`
}

// RegisterServerRequest is the full runtime snapshot of a server handed to
// the sandbox on start and resync.
type RegisterServerRequest struct {
	ServerID        string                 `json:"server_id"`
	ServerName      string                 `json:"server_name"`
	Tools           []ToolDef              `json:"tools"`
	Secrets         map[string]string      `json:"secrets,omitempty"`
	AllowedHosts    []string               `json:"allowed_hosts"`
	AllowedModules  []string               `json:"allowed_modules"`
	ExternalSources []ExternalSourceConfig `json:"external_sources,omitempty"`
}

// RegisterServerResult reports registration outcome.
type RegisterServerResult struct {
	Success         bool   `json:"success"`
	ToolsRegistered int    `json:"tools_registered"`
	Message         string `json:"message,omitempty"`
}

// ServerInfo is one registered server as the sandbox sees it.
type ServerInfo struct {
	ServerID   string `json:"server_id"`
	ServerName string `json:"server_name"`
	ToolCount  int    `json:"tool_count"`
}

// ToolInfo is one registered tool descriptor. Name is the exposed
// `server__tool` key.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
	ServerName  string          `json:"server_name,omitempty"`
}

// CallToolResult is the outcome of a direct tool invocation.
type CallToolResult struct {
	Success    bool            `json:"success"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Stdout     string          `json:"stdout,omitempty"`
	DurationMS int             `json:"duration_ms"`
}

// ExecuteCodeRequest runs ad-hoc python with a live environment.
type ExecuteCodeRequest struct {
	Code           string            `json:"code"`
	InputArgs      map[string]any    `json:"input_args,omitempty"`
	Secrets        map[string]string `json:"secrets,omitempty"`
	AllowedHosts   []string          `json:"allowed_hosts"`
	AllowedModules []string          `json:"allowed_modules"`
	TimeoutMS      int               `json:"timeout_ms"`
}

// ExecuteCodeResult is the outcome of an ad-hoc execution.
type ExecuteCodeResult struct {
	Success    bool            `json:"success"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Stdout     string          `json:"stdout,omitempty"`
	DurationMS int             `json:"duration_ms"`
}

// PackageInstallResult reports a single module install.
type PackageInstallResult struct {
	Success bool   `json:"success"`
	Module  string `json:"module"`
	Message string `json:"message,omitempty"`
}

// SyncPackagesResult reports a bulk sync of the allowed-module list.
type SyncPackagesResult struct {
	Success   bool     `json:"success"`
	Installed []string `json:"installed,omitempty"`
	Failed    []string `json:"failed,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// PackageStatus is the install state of one module.
type PackageStatus struct {
	Module  string `json:"module"`
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// InstalledPackage is one entry of the sandbox package inventory.
type InstalledPackage struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClassifyModulesResult splits import names into stdlib and modules that
// need installation.
type ClassifyModulesResult struct {
	Stdlib     []string `json:"stdlib"`
	ThirdParty []string `json:"third_party"`
}

// PyPIInfo is upstream metadata for a module, used by the review UI.
type PyPIInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	Summary     string `json:"summary,omitempty"`
	HomePage    string `json:"home_page,omitempty"`
	ProjectURL  string `json:"project_url,omitempty"`
	RequiresDep int    `json:"requires_dep,omitempty"`
}

type listServersResponse struct {
	Servers []ServerInfo `json:"servers"`
}

type listToolsResponse struct {
	Tools []ToolInfo `json:"tools"`
}

type listPackagesResponse struct {
	Packages []InstalledPackage `json:"packages"`
}

type okResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
