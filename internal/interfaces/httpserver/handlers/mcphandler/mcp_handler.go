package mcphandler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mcpbox/internal/config"
	"mcpbox/internal/domain"
	"mcpbox/internal/domain/activity"
	"mcpbox/internal/domain/management"
	"mcpbox/internal/infrastructure/logger"
	"mcpbox/internal/infrastructure/metrics"
	"mcpbox/internal/infrastructure/sandbox"
	"mcpbox/internal/interfaces/httpserver/middlewares"
)

// SandboxForwarder is the sandbox surface the gateway needs: the merged
// tool list and raw envelope passthrough.
type SandboxForwarder interface {
	ListTools(ctx context.Context, serverID string) ([]sandbox.ToolInfo, error)
	MCPRequest(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
}

// ManagementDispatcher routes mcpbox_ tool calls.
type ManagementDispatcher interface {
	Catalog() []management.Descriptor
	Dispatch(ctx context.Context, caller domain.Principal, name string, args json.RawMessage) *management.Result
}

// ExposedToolSource lists the server__tool keys currently visible to
// clients.
type ExposedToolSource interface {
	ExposedKeys(ctx context.Context) (map[string]struct{}, error)
}

// ChangeSignal is the in-process broadcast the SSE stream subscribes to.
type ChangeSignal interface {
	Subscribe() (<-chan uint64, func())
}

const sseKeepAliveInterval = 15 * time.Second

// MCPHandler serves the MCP gateway: POST /mcp for JSON-RPC and GET /mcp
// for the tool-change event stream.
type MCPHandler struct {
	cfg        *config.Config
	sandbox    SandboxForwarder
	dispatcher ManagementDispatcher
	tools      ExposedToolSource
	activity   *activity.Logger
	changes    ChangeSignal
	logger     zerolog.Logger

	sseMu     sync.Mutex
	sseActive int
}

func NewMCPHandler(
	cfg *config.Config,
	sandboxClient SandboxForwarder,
	dispatcher ManagementDispatcher,
	tools ExposedToolSource,
	activityLogger *activity.Logger,
	changes ChangeSignal,
) *MCPHandler {
	return &MCPHandler{
		cfg:        cfg,
		sandbox:    sandboxClient,
		dispatcher: dispatcher,
		tools:      tools,
		activity:   activityLogger,
		changes:    changes,
		logger:     logger.Component("mcp_gateway"),
	}
}

// Handle processes one JSON-RPC request or notification.
func (h *MCPHandler) Handle(c *gin.Context) {
	start := time.Now()
	correlationID := uuid.NewString()[:8]
	principal, _ := middlewares.PrincipalFromContext(c)

	body, err := c.GetRawData()
	if err != nil {
		h.activity.LogMCPRequest(correlationID, "", nil, nil)
		h.finish(c, correlationID, "", start, errorResponse(nil, codeParseError, "Parse error"))
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		h.activity.LogMCPRequest(correlationID, "", nil, nil)
		h.finish(c, correlationID, "", start, errorResponse(nil, codeParseError, "Parse error"))
		return
	}

	h.activity.LogMCPRequest(correlationID, req.Method, req.paramsMap(), nil)

	// Method-level authorization. The token was already validated by the
	// middleware; anonymous remotes are restricted to handshake methods.
	if denied := h.methodDenied(principal, req.Method); denied {
		h.finish(c, correlationID, req.Method, start, errorResponse(req.ID, codeInvalidRequest, msgAuthRequired))
		return
	}

	// Notifications are fire-and-forget.
	if req.IsNotification() || strings.HasPrefix(req.Method, "notifications/") {
		c.Status(http.StatusAccepted)
		h.logResponse(correlationID, req.Method, start, true, "")
		return
	}

	ctx := c.Request.Context()

	switch req.Method {
	case "initialize":
		h.finish(c, correlationID, req.Method, start, resultResponse(req.ID, h.initializeResult()))
	case "tools/list":
		h.handleToolsList(c, ctx, correlationID, req, start)
	case "tools/call":
		h.handleToolsCall(c, ctx, correlationID, req, body, principal, start)
	default:
		h.forward(c, ctx, correlationID, req, body, start)
	}
}

// methodDenied applies the per-method table for remote callers. Local
// callers and verified users pass everything.
func (h *MCPHandler) methodDenied(p domain.Principal, method string) bool {
	if p.CanUseTools() {
		return false
	}
	if method == "initialize" || strings.HasPrefix(method, "notifications/") {
		return false
	}
	return true
}

func (h *MCPHandler) initializeResult() map[string]any {
	return map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{"tools": map[string]any{}},
		"serverInfo":      map[string]any{"name": "mcpbox", "version": config.Version},
	}
}

func (h *MCPHandler) handleToolsList(c *gin.Context, ctx context.Context, correlationID string, req Request, start time.Time) {
	tools, err := h.mergedToolList(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("tools/list failed")
		h.activity.LogError("tools/list failed", map[string]any{"error": err.Error(), "request_id": correlationID})
		h.finish(c, correlationID, req.Method, start, errorResponse(req.ID, codeInternalError, msgInternalError))
		return
	}
	h.finish(c, correlationID, req.Method, start, resultResponse(req.ID, map[string]any{"tools": tools}))
}

// toolDescriptor is one tools/list entry.
type toolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// mergedToolList combines sandbox tools, filtered to the exposed set, with
// the static management catalog. A sandbox outage degrades the list to
// management tools instead of failing the call.
func (h *MCPHandler) mergedToolList(ctx context.Context) ([]toolDescriptor, error) {
	out := make([]toolDescriptor, 0, 32)

	sandboxTools, err := h.sandbox.ListTools(ctx, "")
	if err != nil {
		h.logger.Warn().Err(err).Msg("sandbox unavailable, serving management tools only")
		h.activity.LogAlert("sandbox unavailable for tools/list", map[string]any{"error": err.Error()})
	} else {
		exposed, err := h.tools.ExposedKeys(ctx)
		if err != nil {
			return nil, err
		}
		for _, t := range sandboxTools {
			if _, ok := exposed[t.Name]; !ok {
				continue
			}
			schema := t.InputSchema
			if len(schema) == 0 {
				schema = json.RawMessage(`{"type":"object"}`)
			}
			out = append(out, toolDescriptor{Name: t.Name, Description: t.Description, InputSchema: schema})
		}
	}

	for _, d := range h.dispatcher.Catalog() {
		out = append(out, toolDescriptor{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema})
	}
	return out, nil
}

func (h *MCPHandler) handleToolsCall(c *gin.Context, ctx context.Context, correlationID string, req Request, body []byte, principal domain.Principal, start time.Time) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		h.finish(c, correlationID, req.Method, start, errorResponse(req.ID, codeInvalidParams, "Invalid params: tool name is required"))
		return
	}

	if strings.HasPrefix(params.Name, "mcpbox_") {
		result := h.dispatcher.Dispatch(ctx, principal, params.Name, params.Arguments)
		h.finish(c, correlationID, req.Method, start, resultResponse(req.ID, result))
		return
	}

	h.forward(c, ctx, correlationID, req, body, start)
}

// forward relays the raw envelope to the sandbox and returns its reply
// verbatim. Sandbox JSON-RPC error codes pass through untouched.
func (h *MCPHandler) forward(c *gin.Context, ctx context.Context, correlationID string, req Request, body []byte, start time.Time) {
	raw, err := h.sandbox.MCPRequest(ctx, body)
	if err != nil {
		h.logger.Error().Err(err).Str("method", req.Method).Msg("sandbox forward failed")
		h.activity.LogError("sandbox forward failed", map[string]any{
			"method":     req.Method,
			"error":      err.Error(),
			"request_id": correlationID,
		})
		h.finish(c, correlationID, req.Method, start, errorResponse(req.ID, codeInternalError, msgInternalError))
		return
	}

	durationMS := int(time.Since(start).Milliseconds())
	h.activity.LogMCPResponse(correlationID, req.Method, true, durationMS, "")
	metrics.RecordMCPRequest(req.Method, "success", time.Since(start).Seconds())
	c.Data(http.StatusOK, "application/json", raw)
}

// finish emits the JSON-RPC response and the paired mcp_response entry.
func (h *MCPHandler) finish(c *gin.Context, correlationID, method string, start time.Time, resp Response) {
	success := resp.Error == nil
	errMsg := ""
	if resp.Error != nil {
		errMsg = fmt.Sprintf("%d: %s", resp.Error.Code, resp.Error.Message)
	}
	h.logResponse(correlationID, method, start, success, errMsg)
	c.JSON(http.StatusOK, resp)
}

func (h *MCPHandler) logResponse(correlationID, method string, start time.Time, success bool, errMsg string) {
	durationMS := int(time.Since(start).Milliseconds())
	h.activity.LogMCPResponse(correlationID, method, success, durationMS, errMsg)

	status := "success"
	if !success {
		status = "error"
	}
	metrics.RecordMCPRequest(method, status, time.Since(start).Seconds())
}

// Stream serves GET /mcp: a server-sent event stream that signals when the
// observable tool set changes. Clients react by re-running tools/list.
func (h *MCPHandler) Stream(c *gin.Context) {
	if !h.acquireSSESlot() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Too many concurrent connections"})
		return
	}
	defer h.releaseSSESlot()

	flusher, ok := middlewares.PrepareSSE(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming unsupported"})
		return
	}

	events, unsubscribe := h.changes.Subscribe()
	defer unsubscribe()

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"type\":\"connected\"}\n\n")
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAliveInterval)
	defer keepAlive.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case generation := <-events:
			fmt.Fprintf(c.Writer, "event: tool_change\ndata: {\"type\":\"tool_change\",\"generation\":%d}\n\n", generation)
			flusher.Flush()
		case <-keepAlive.C:
			fmt.Fprint(c.Writer, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

func (h *MCPHandler) acquireSSESlot() bool {
	h.sseMu.Lock()
	defer h.sseMu.Unlock()
	if h.sseActive >= h.cfg.MaxSSEConnections {
		return false
	}
	h.sseActive++
	metrics.SSEConnections.Inc()
	return true
}

func (h *MCPHandler) releaseSSESlot() {
	h.sseMu.Lock()
	h.sseActive--
	h.sseMu.Unlock()
	metrics.SSEConnections.Dec()
}
