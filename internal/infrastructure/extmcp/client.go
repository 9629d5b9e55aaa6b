// Package extmcp holds the MCP client used to discover tools on external
// MCP servers (streamable HTTP or SSE).
package extmcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"mcpbox/internal/config"
	"mcpbox/internal/infrastructure/logger"
)

// TransportStreamableHTTP and TransportSSE are the supported external
// transports.
const (
	TransportStreamableHTTP = "streamable_http"
	TransportSSE            = "sse"
)

// AuthHeader is a resolved authentication header injected into every
// request of a discovery session.
type AuthHeader struct {
	Name  string
	Value string
}

// DiscoveredTool is one tool descriptor returned by an external server.
type DiscoveredTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// Client opens short-lived MCP sessions against external servers.
type Client struct {
	timeout time.Duration
	logger  zerolog.Logger
}

// NewClient creates a discovery client with the given per-session timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		timeout: timeout,
		logger:  logger.Component("extmcp-client"),
	}
}

// headerRoundTripper injects one header into every outgoing request.
type headerRoundTripper struct {
	base   http.RoundTripper
	header *AuthHeader
}

func (t *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.header != nil && t.header.Name != "" {
		req = req.Clone(req.Context())
		req.Header.Set(t.header.Name, t.header.Value)
	}
	return t.base.RoundTrip(req)
}

// httpClient builds the session HTTP client. Redirects are not followed:
// the injected auth header must never travel to a redirect target.
func (c *Client) httpClient(header *AuthHeader) *http.Client {
	return &http.Client{
		Timeout: c.timeout,
		Transport: &headerRoundTripper{
			base:   http.DefaultTransport,
			header: header,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Discover opens a session against url, lists all tools (following
// pagination) and closes the session.
func (c *Client) Discover(ctx context.Context, url, transportType string, header *AuthHeader) ([]DiscoveredTool, error) {
	httpClient := c.httpClient(header)

	var transport mcp.Transport
	switch transportType {
	case TransportSSE:
		transport = &mcp.SSEClientTransport{Endpoint: url, HTTPClient: httpClient}
	case TransportStreamableHTTP, "":
		transport = &mcp.StreamableClientTransport{Endpoint: url, HTTPClient: httpClient}
	default:
		return nil, fmt.Errorf("unsupported transport type %q", transportType)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{Name: "mcpbox", Version: config.Version}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to external server: %w", err)
	}
	defer func() { _ = session.Close() }()

	var tools []DiscoveredTool
	cursor := ""
	for {
		page, err := session.ListTools(ctx, &mcp.ListToolsParams{Cursor: cursor})
		if err != nil {
			return nil, fmt.Errorf("list external tools: %w", err)
		}
		for _, t := range page.Tools {
			dt := DiscoveredTool{Name: t.Name, Description: t.Description}
			if t.InputSchema != nil {
				raw, err := json.Marshal(t.InputSchema)
				if err == nil {
					dt.InputSchema = raw
				}
			}
			tools = append(tools, dt)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	c.logger.Debug().Str("url", url).Int("tool_count", len(tools)).Msg("external discovery complete")
	return tools, nil
}
