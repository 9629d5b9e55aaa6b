package mcphandler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpbox/internal/config"
	"mcpbox/internal/domain"
	"mcpbox/internal/domain/activity"
	"mcpbox/internal/domain/management"
	"mcpbox/internal/domain/notify"
	"mcpbox/internal/domain/query"
	"mcpbox/internal/infrastructure/sandbox"
	"mcpbox/internal/interfaces/httpserver/middlewares"
)

type fakeActivityRepo struct{}

func (f *fakeActivityRepo) CreateBatch(ctx context.Context, entries []*activity.Entry) error {
	return nil
}

func (f *fakeActivityRepo) FindByFilter(ctx context.Context, filter activity.Filter, p *query.Pagination) ([]*activity.Entry, error) {
	return nil, nil
}

func (f *fakeActivityRepo) Count(ctx context.Context, filter activity.Filter) (int64, error) {
	return 0, nil
}

func (f *fakeActivityRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeActivityRepo) Stats(ctx context.Context, q activity.StatsQuery) (*activity.Stats, error) {
	return &activity.Stats{}, nil
}

type noRedaction struct{}

func (noRedaction) RedactionEnabled() bool { return false }

type fakeSandbox struct {
	tools      []sandbox.ToolInfo
	listErr    error
	forwarded  [][]byte
	response   json.RawMessage
	forwardErr error
}

func (f *fakeSandbox) ListTools(ctx context.Context, serverID string) ([]sandbox.ToolInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.tools, nil
}

func (f *fakeSandbox) MCPRequest(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	f.forwarded = append(f.forwarded, append([]byte(nil), payload...))
	if f.forwardErr != nil {
		return nil, f.forwardErr
	}
	return f.response, nil
}

type fakeDispatcher struct {
	catalog    []management.Descriptor
	lastName   string
	lastCaller domain.Principal
}

func (f *fakeDispatcher) Catalog() []management.Descriptor { return f.catalog }

func (f *fakeDispatcher) Dispatch(ctx context.Context, caller domain.Principal, name string, args json.RawMessage) *management.Result {
	f.lastName = name
	f.lastCaller = caller
	return &management.Result{Content: []management.ContentBlock{{Type: "text", Text: "handled " + name}}}
}

type fakeExposed struct {
	keys map[string]struct{}
}

func (f *fakeExposed) ExposedKeys(ctx context.Context) (map[string]struct{}, error) {
	return f.keys, nil
}

type gatewayRig struct {
	engine     *gin.Engine
	handler    *MCPHandler
	sandbox    *fakeSandbox
	dispatcher *fakeDispatcher
	activity   *activity.Logger
}

func newGatewayRig(t *testing.T, principal domain.Principal) *gatewayRig {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sb := &fakeSandbox{}
	dispatcher := &fakeDispatcher{}
	exposed := &fakeExposed{keys: map[string]struct{}{}}
	activityLogger := activity.NewLogger(&fakeActivityRepo{}, noRedaction{}, time.Hour, 100)

	cfg := &config.Config{MaxSSEConnections: 2}
	handler := NewMCPHandler(cfg, sb, dispatcher, exposed, activityLogger, notify.NewToolChangeNotifier())

	engine := gin.New()
	engine.POST("/mcp", func(c *gin.Context) {
		middlewares.SetPrincipal(c, principal)
	}, handler.Handle)
	engine.GET("/mcp", handler.Stream)

	return &gatewayRig{
		engine:     engine,
		handler:    handler,
		sandbox:    sb,
		dispatcher: dispatcher,
		activity:   activityLogger,
	}
}

func rpcBody(t *testing.T, id any, method string, params any) []byte {
	t.Helper()
	envelope := map[string]any{"jsonrpc": "2.0", "method": method}
	if id != nil {
		envelope["id"] = id
	}
	if params != nil {
		envelope["params"] = params
	}
	body, err := json.Marshal(envelope)
	require.NoError(t, err)
	return body
}

func (r *gatewayRig) post(body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.engine.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func localPrincipal() domain.Principal {
	return domain.Principal{Source: domain.SourceLocal}
}

func TestInitializeHandshake(t *testing.T) {
	rig := newGatewayRig(t, localPrincipal())

	rec := rig.post(rpcBody(t, 1, "initialize", map[string]any{"protocolVersion": protocolVersion}))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)

	result := resp.Result.(map[string]any)
	assert.Equal(t, protocolVersion, result["protocolVersion"])
	serverInfo := result["serverInfo"].(map[string]any)
	assert.Equal(t, "mcpbox", serverInfo["name"])
}

func TestNotificationsReturn202(t *testing.T) {
	rig := newGatewayRig(t, localPrincipal())

	rec := rig.post(rpcBody(t, nil, "notifications/initialized", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestToolsListFiltersToExposedSet(t *testing.T) {
	rig := newGatewayRig(t, localPrincipal())
	rig.sandbox.tools = []sandbox.ToolInfo{
		{Name: "weather__forecast", Description: "forecast"},
		{Name: "weather__history", Description: "not exposed"},
	}
	rig.handler.tools = &fakeExposed{keys: map[string]struct{}{"weather__forecast": {}}}
	rig.dispatcher.catalog = []management.Descriptor{
		{Name: "mcpbox_list_servers", Description: "list", InputSchema: json.RawMessage(`{"type":"object"}`)},
	}

	rec := rig.post(rpcBody(t, 2, "tools/list", nil))

	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)

	result := resp.Result.(map[string]any)
	tools := result["tools"].([]any)
	require.Len(t, tools, 2)

	names := make([]string, 0, len(tools))
	for _, raw := range tools {
		names = append(names, raw.(map[string]any)["name"].(string))
	}
	assert.Equal(t, []string{"weather__forecast", "mcpbox_list_servers"}, names)
}

func TestToolsListDegradesWhenSandboxDown(t *testing.T) {
	rig := newGatewayRig(t, localPrincipal())
	rig.sandbox.listErr = &sandbox.SandboxError{StatusCode: 502, Message: "bad gateway"}
	rig.dispatcher.catalog = []management.Descriptor{
		{Name: "mcpbox_list_servers", Description: "list", InputSchema: json.RawMessage(`{"type":"object"}`)},
	}

	rec := rig.post(rpcBody(t, 3, "tools/list", nil))

	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)
	tools := resp.Result.(map[string]any)["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "mcpbox_list_servers", tools[0].(map[string]any)["name"])
}

func TestToolsCallRoutesManagementTools(t *testing.T) {
	principal := domain.Principal{Source: domain.SourceWorker, Verified: true, Email: "alice@example.com"}
	rig := newGatewayRig(t, principal)

	rec := rig.post(rpcBody(t, 4, "tools/call", map[string]any{
		"name":      "mcpbox_list_servers",
		"arguments": map[string]any{},
	}))

	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)
	assert.Equal(t, "mcpbox_list_servers", rig.dispatcher.lastName)
	assert.Equal(t, domain.SourceWorker, rig.dispatcher.lastCaller.Source)
	assert.True(t, rig.dispatcher.lastCaller.Verified)

	result := resp.Result.(map[string]any)
	content := result["content"].([]any)
	require.Len(t, content, 1)
	assert.Equal(t, "handled mcpbox_list_servers", content[0].(map[string]any)["text"])

	// Management calls never reach the sandbox.
	assert.Empty(t, rig.sandbox.forwarded)
}

func TestToolsCallForwardsSandboxTools(t *testing.T) {
	rig := newGatewayRig(t, localPrincipal())
	rig.sandbox.response = json.RawMessage(`{"jsonrpc":"2.0","id":5,"result":{"content":[{"type":"text","text":"42"}]}}`)

	body := rpcBody(t, 5, "tools/call", map[string]any{
		"name":      "weather__forecast",
		"arguments": map[string]any{"city": "Berlin"},
	})
	rec := rig.post(body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, string(rig.sandbox.response), rec.Body.String())

	// The original envelope is forwarded verbatim.
	require.Len(t, rig.sandbox.forwarded, 1)
	assert.JSONEq(t, string(body), string(rig.sandbox.forwarded[0]))
}

func TestUnknownMethodsForwardToSandbox(t *testing.T) {
	rig := newGatewayRig(t, localPrincipal())
	rig.sandbox.response = json.RawMessage(`{"jsonrpc":"2.0","id":6,"result":{}}`)

	rec := rig.post(rpcBody(t, 6, "prompts/list", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, rig.sandbox.forwarded, 1)
}

func TestForwardFailureMapsToInternalError(t *testing.T) {
	rig := newGatewayRig(t, localPrincipal())
	rig.sandbox.forwardErr = &sandbox.SandboxError{StatusCode: 500, Message: "boom"}

	rec := rig.post(rpcBody(t, 7, "tools/call", map[string]any{
		"name":      "weather__forecast",
		"arguments": map[string]any{},
	}))

	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInternalError, resp.Error.Code)
	assert.Equal(t, msgInternalError, resp.Error.Message)
	// The sandbox detail stays out of the client response.
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestAnonymousRemoteDeniedToolMethods(t *testing.T) {
	rig := newGatewayRig(t, domain.Principal{Source: domain.SourceWorker})

	for _, method := range []string{"tools/list", "tools/call", "prompts/list"} {
		rec := rig.post(rpcBody(t, 8, method, nil))

		require.Equal(t, http.StatusOK, rec.Code, method)
		resp := decodeResponse(t, rec)
		require.NotNil(t, resp.Error, method)
		assert.Equal(t, codeInvalidRequest, resp.Error.Code, method)
		assert.Equal(t, msgAuthRequired, resp.Error.Message, method)
	}

	// Handshake methods stay open for anonymous remotes.
	rec := rig.post(rpcBody(t, 9, "initialize", nil))
	resp := decodeResponse(t, rec)
	assert.Nil(t, resp.Error)

	rec = rig.post(rpcBody(t, nil, "notifications/initialized", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestParseErrorReturnsCode(t *testing.T) {
	rig := newGatewayRig(t, localPrincipal())

	rec := rig.post([]byte(`{"jsonrpc":"2.0","id":`))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeParseError, resp.Error.Code)
}

func TestRequestResponseActivityPairing(t *testing.T) {
	rig := newGatewayRig(t, localPrincipal())

	rig.post(rpcBody(t, 10, "initialize", nil))

	entries := rig.activity.RecentLogs(10)
	require.Len(t, entries, 2)
	assert.Equal(t, activity.TypeMCPRequest, entries[0].LogType)
	assert.Equal(t, activity.TypeMCPResponse, entries[1].LogType)
	assert.Equal(t, entries[0].RequestID, entries[1].RequestID)
	assert.NotEmpty(t, entries[0].RequestID)
}

func TestStreamConnectionCap(t *testing.T) {
	rig := newGatewayRig(t, localPrincipal())
	rig.handler.cfg = &config.Config{MaxSSEConnections: 0}

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rec := httptest.NewRecorder()
	rig.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStreamSendsConnectedEvent(t *testing.T) {
	rig := newGatewayRig(t, localPrincipal())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/mcp", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	rig.engine.ServeHTTP(rec, req)

	assert.Contains(t, rec.Body.String(), "event: connected")
	assert.Contains(t, rec.Body.String(), `{"type":"connected"}`)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
}
