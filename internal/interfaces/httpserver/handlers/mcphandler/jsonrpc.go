package mcphandler

import "encoding/json"

// MCP protocol revision served by the initialize handshake.
const protocolVersion = "2024-11-05"

// JSON-RPC 2.0 error codes used by the gateway. Unknown methods are
// forwarded to the sandbox rather than rejected, so -32601 never originates
// here.
const (
	codeInvalidRequest = -32600
	codeInvalidParams  = -32602
	codeInternalError  = -32603
	codeParseError     = -32700
)

const (
	msgAuthRequired  = "Requires user authentication via Cloudflare Access"
	msgInternalError = "Internal server error"
)

// Request is one inbound JSON-RPC envelope. A request carries an id; a
// notification does not.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the envelope carries no id and therefore
// must not receive a response body.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// paramsMap decodes params into a generic map for activity logging. A nil
// map is returned for absent or non-object params.
func (r *Request) paramsMap() map[string]any {
	if len(r.Params) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(r.Params, &m); err != nil {
		return nil
	}
	return m
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Response is one outbound JSON-RPC envelope.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

func resultResponse(id json.RawMessage, result any) Response {
	return Response{JSONRPC: "2.0", ID: normalizeID(id), Result: result}
}

func errorResponse(id json.RawMessage, code int, message string) Response {
	return Response{JSONRPC: "2.0", ID: normalizeID(id), Error: &Error{Code: code, Message: message}}
}

func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}
