package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"mcpbox/internal/config"
	"mcpbox/internal/infrastructure/logger"
	"mcpbox/internal/infrastructure/metrics"
)

// Client talks to the sandbox runtime over HTTP. Every operation runs
// through the retry loop and the shared circuit breaker.
type Client struct {
	http    *resty.Client
	retry   RetryConfig
	breaker *CircuitBreaker
	logger  zerolog.Logger
}

// NewClient builds a sandbox client from the application config with
// default resilience settings.
func NewClient(cfg *config.Config) *Client {
	return New(cfg.SandboxURL, cfg.SandboxAPIKey, cfg.SandboxTimeout, DefaultRetryConfig(), DefaultBreakerConfig())
}

// New builds a sandbox client with explicit resilience settings.
func New(baseURL, apiKey string, timeout time.Duration, retry RetryConfig, breaker BreakerConfig) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout)
	if apiKey != "" {
		httpClient.SetHeader("X-API-Key", apiKey)
	}
	return &Client{
		http:    httpClient,
		retry:   retry,
		breaker: NewCircuitBreaker(breaker),
		logger:  logger.Component("sandbox-client"),
	}
}

// BreakerState exposes the circuit state for health reporting.
func (c *Client) BreakerState() BreakerState {
	return c.breaker.State()
}

// withResilience wraps one sandbox operation: breaker gate, retry loop,
// then exactly one recorded breaker outcome for the whole call. Retries
// never amplify a single user-observed failure into several strikes.
func withResilience[T any](ctx context.Context, c *Client, operation string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := c.breaker.Allow(); err != nil {
		metrics.RecordSandboxRequest(operation, "rejected")
		return zero, err
	}

	result, err := retryWithBackoff(ctx, c.retry, c.logger, operation, fn)
	if err != nil {
		c.breaker.RecordFailure()
		metrics.RecordSandboxRequest(operation, "error")
		return zero, err
	}
	c.breaker.RecordSuccess()
	metrics.RecordSandboxRequest(operation, "success")
	return result, nil
}

// check converts a resty outcome into either nil or a structured error.
// Transport errors pass through for the retry classifier; HTTP errors
// become *SandboxError.
func (c *Client) check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		return &SandboxError{StatusCode: resp.StatusCode(), Message: errorMessage(resp)}
	}
	return nil
}

// errorMessage extracts a human-readable message from an error body,
// tolerating non-JSON payloads.
func errorMessage(resp *resty.Response) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil {
		switch {
		case body.Error != "":
			return body.Error
		case body.Message != "":
			return body.Message
		case body.Detail != "":
			return body.Detail
		}
	}
	s := strings.TrimSpace(resp.String())
	if s == "" {
		return resp.Status()
	}
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}

// HealthCheck probes the sandbox.
func (c *Client) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	return withResilience(ctx, c, "health_check", func(ctx context.Context) (*HealthStatus, error) {
		var out HealthStatus
		resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/health")
		if err := c.check(resp, err); err != nil {
			return nil, err
		}
		return &out, nil
	})
}

// RegisterServer registers or re-registers a server snapshot.
func (c *Client) RegisterServer(ctx context.Context, req RegisterServerRequest) (*RegisterServerResult, error) {
	return withResilience(ctx, c, "register_server", func(ctx context.Context) (*RegisterServerResult, error) {
		var out RegisterServerResult
		resp, err := c.http.R().SetContext(ctx).SetBody(req).SetResult(&out).Post("/servers/register")
		if err := c.check(resp, err); err != nil {
			return nil, err
		}
		return &out, nil
	})
}

// UnregisterServer removes a server registration.
func (c *Client) UnregisterServer(ctx context.Context, serverID string) error {
	_, err := withResilience(ctx, c, "unregister_server", func(ctx context.Context) (*okResponse, error) {
		var out okResponse
		resp, err := c.http.R().SetContext(ctx).
			SetPathParam("id", serverID).
			SetResult(&out).
			Post("/servers/{id}/unregister")
		if err := c.check(resp, err); err != nil {
			return nil, err
		}
		return &out, nil
	})
	return err
}

// ListServers returns the servers currently registered with the sandbox.
func (c *Client) ListServers(ctx context.Context) ([]ServerInfo, error) {
	return withResilience(ctx, c, "list_servers", func(ctx context.Context) ([]ServerInfo, error) {
		var out listServersResponse
		resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/servers")
		if err := c.check(resp, err); err != nil {
			return nil, err
		}
		return out.Servers, nil
	})
}

// ListTools returns registered tool descriptors, optionally scoped to one
// server.
func (c *Client) ListTools(ctx context.Context, serverID string) ([]ToolInfo, error) {
	return withResilience(ctx, c, "list_tools", func(ctx context.Context) ([]ToolInfo, error) {
		r := c.http.R().SetContext(ctx)
		if serverID != "" {
			r.SetQueryParam("server_id", serverID)
		}
		var out listToolsResponse
		resp, err := r.SetResult(&out).Get("/tools")
		if err := c.check(resp, err); err != nil {
			return nil, err
		}
		return out.Tools, nil
	})
}

// CallTool invokes one registered tool by its exposed key.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any, debug bool) (*CallToolResult, error) {
	return withResilience(ctx, c, "call_tool", func(ctx context.Context) (*CallToolResult, error) {
		var out CallToolResult
		resp, err := c.http.R().SetContext(ctx).
			SetPathParam("name", name).
			SetBody(map[string]any{"arguments": args, "debug": debug}).
			SetResult(&out).
			Post("/tools/{name}/call")
		if err := c.check(resp, err); err != nil {
			return nil, err
		}
		return &out, nil
	})
}

// MCPRequest forwards a raw JSON-RPC envelope and returns the raw reply.
func (c *Client) MCPRequest(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	return withResilience(ctx, c, "mcp_request", func(ctx context.Context) (json.RawMessage, error) {
		resp, err := c.http.R().SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody([]byte(payload)).
			Post("/mcp")
		if err := c.check(resp, err); err != nil {
			return nil, err
		}
		return json.RawMessage(resp.Body()), nil
	})
}

// ExecuteCode runs ad-hoc python in a live environment.
func (c *Client) ExecuteCode(ctx context.Context, req ExecuteCodeRequest) (*ExecuteCodeResult, error) {
	return withResilience(ctx, c, "execute_code", func(ctx context.Context) (*ExecuteCodeResult, error) {
		var out ExecuteCodeResult
		resp, err := c.http.R().SetContext(ctx).SetBody(req).SetResult(&out).Post("/execute")
		if err := c.check(resp, err); err != nil {
			return nil, err
		}
		return &out, nil
	})
}

// InstallPackage installs one python module into the sandbox environment.
func (c *Client) InstallPackage(ctx context.Context, module string) error {
	result, err := withResilience(ctx, c, "install_package", func(ctx context.Context) (*PackageInstallResult, error) {
		var out PackageInstallResult
		resp, err := c.http.R().SetContext(ctx).
			SetBody(map[string]string{"module": module}).
			SetResult(&out).
			Post("/packages/install")
		if err := c.check(resp, err); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("package install failed for %s: %s", module, result.Message)
	}
	return nil
}

// SyncPackages reconciles the sandbox environment with the allowed-module
// list.
func (c *Client) SyncPackages(ctx context.Context, modules []string) (*SyncPackagesResult, error) {
	return withResilience(ctx, c, "sync_packages", func(ctx context.Context) (*SyncPackagesResult, error) {
		var out SyncPackagesResult
		resp, err := c.http.R().SetContext(ctx).
			SetBody(map[string][]string{"modules": modules}).
			SetResult(&out).
			Post("/packages/sync")
		if err := c.check(resp, err); err != nil {
			return nil, err
		}
		return &out, nil
	})
}

// GetPackageStatus reports the install state of one module.
func (c *Client) GetPackageStatus(ctx context.Context, module string) (*PackageStatus, error) {
	return withResilience(ctx, c, "get_package_status", func(ctx context.Context) (*PackageStatus, error) {
		var out PackageStatus
		resp, err := c.http.R().SetContext(ctx).
			SetPathParam("module", module).
			SetResult(&out).
			Get("/packages/status/{module}")
		if err := c.check(resp, err); err != nil {
			return nil, err
		}
		return &out, nil
	})
}

// ListInstalledPackages returns the sandbox package inventory.
func (c *Client) ListInstalledPackages(ctx context.Context) ([]InstalledPackage, error) {
	return withResilience(ctx, c, "list_installed_packages", func(ctx context.Context) ([]InstalledPackage, error) {
		var out listPackagesResponse
		resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/packages")
		if err := c.check(resp, err); err != nil {
			return nil, err
		}
		return out.Packages, nil
	})
}

// ClassifyModules splits import names into stdlib and installable modules.
func (c *Client) ClassifyModules(ctx context.Context, modules []string) (*ClassifyModulesResult, error) {
	return withResilience(ctx, c, "classify_modules", func(ctx context.Context) (*ClassifyModulesResult, error) {
		var out ClassifyModulesResult
		resp, err := c.http.R().SetContext(ctx).
			SetBody(map[string][]string{"modules": modules}).
			SetResult(&out).
			Post("/packages/classify")
		if err := c.check(resp, err); err != nil {
			return nil, err
		}
		return &out, nil
	})
}

// GetPyPIInfo fetches upstream metadata for a module.
func (c *Client) GetPyPIInfo(ctx context.Context, module string) (*PyPIInfo, error) {
	return withResilience(ctx, c, "get_pypi_info", func(ctx context.Context) (*PyPIInfo, error) {
		var out PyPIInfo
		resp, err := c.http.R().SetContext(ctx).
			SetBody(map[string]string{"module": module}).
			SetResult(&out).
			Post("/packages/pypi-info")
		if err := c.check(resp, err); err != nil {
			return nil, err
		}
		return &out, nil
	})
}

// UpdateServerSecrets pushes a fresh decrypted secret map to a running
// server without a full re-registration.
func (c *Client) UpdateServerSecrets(ctx context.Context, serverID string, secrets map[string]string) error {
	_, err := withResilience(ctx, c, "update_server_secrets", func(ctx context.Context) (*okResponse, error) {
		var out okResponse
		resp, err := c.http.R().SetContext(ctx).
			SetPathParam("id", serverID).
			SetBody(map[string]any{"secrets": secrets}).
			SetResult(&out).
			Post("/servers/{id}/secrets")
		if err := c.check(resp, err); err != nil {
			return nil, err
		}
		return &out, nil
	})
	return err
}
