package management

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

type entry struct {
	name        string
	description string
	args        any
	handler     handlerFunc
	localOnly   bool
}

// entries is the full management catalog. Order here is the order clients
// see in tools/list.
func (d *Dispatcher) entries() []entry {
	return []entry{
		{
			name:        "mcpbox_list_servers",
			description: "List MCP servers with their status, optionally filtered by status or a name search.",
			args:        listServersArgs{},
			handler:     d.listServers,
		},
		{
			name:        "mcpbox_get_server",
			description: "Get one MCP server by id.",
			args:        getServerArgs{},
			handler:     d.getServer,
		},
		{
			name:        "mcpbox_create_server",
			description: "Create a new MCP server. Names must be lowercase snake_case.",
			args:        createServerArgs{},
			handler:     d.createServer,
		},
		{
			name:        "mcpbox_update_server",
			description: "Update an MCP server's name, description, allowed hosts or default timeout.",
			args:        updateServerArgs{},
			handler:     d.updateServer,
		},
		{
			name:        "mcpbox_delete_server",
			description: "Delete an MCP server and everything attached to it. Local deployment only.",
			args:        deleteServerArgs{},
			handler:     d.deleteServer,
			localOnly:   true,
		},
		{
			name:        "mcpbox_start_server",
			description: "Register a server's approved, enabled tools with the execution sandbox and mark it running.",
			args:        startServerArgs{},
			handler:     d.startServer,
		},
		{
			name:        "mcpbox_stop_server",
			description: "Unregister a server from the execution sandbox and mark it stopped.",
			args:        stopServerArgs{},
			handler:     d.stopServer,
		},
		{
			name:        "mcpbox_list_tools",
			description: "List tools, optionally filtered by server, approval status or enabled flag.",
			args:        listToolsArgs{},
			handler:     d.listTools,
		},
		{
			name:        "mcpbox_get_tool",
			description: "Get one tool by id, including its code and input schema.",
			args:        getToolArgs{},
			handler:     d.getTool,
		},
		{
			name:        "mcpbox_create_tool",
			description: "Create a tool on a server. Python tools need an async def main entry point; the input schema is derived from its signature when omitted. New tools start as drafts.",
			args:        createToolArgs{},
			handler:     d.createTool,
		},
		{
			name:        "mcpbox_update_tool",
			description: "Update a tool. Changing python_code resets approval to pending_review and records a new version.",
			args:        updateToolArgs{},
			handler:     d.updateTool,
		},
		{
			name:        "mcpbox_delete_tool",
			description: "Delete a tool and its history. Local deployment only.",
			args:        deleteToolArgs{},
			handler:     d.deleteTool,
			localOnly:   true,
		},
		{
			name:        "mcpbox_validate_code",
			description: "Validate Python tool code without saving it: structure check, entry-point check, derived input schema and detected imports.",
			args:        validateCodeArgs{},
			handler:     d.validateCode,
		},
		{
			name:        "mcpbox_test_code",
			description: "Execute a saved tool's code in the sandbox with the server's live secrets and allowlists. The run is recorded as a test execution.",
			args:        testCodeArgs{},
			handler:     d.testCode,
		},
		{
			name:        "mcpbox_get_tool_status",
			description: "Get a tool's lifecycle summary: approval state, version, whether it is currently exposed.",
			args:        getToolStatusArgs{},
			handler:     d.getToolStatus,
		},
		{
			name:        "mcpbox_list_tool_versions",
			description: "List a tool's immutable version history, newest first.",
			args:        listToolVersionsArgs{},
			handler:     d.listToolVersions,
		},
		{
			name:        "mcpbox_rollback_tool",
			description: "Restore a tool to an earlier version. The restore is recorded as a new version and resets approval to pending_review.",
			args:        rollbackToolArgs{},
			handler:     d.rollbackTool,
		},
		{
			name:        "mcpbox_get_execution_logs",
			description: "List tool execution logs, optionally filtered by tool, server, success or test runs.",
			args:        getExecutionLogsArgs{},
			handler:     d.getExecutionLogs,
		},
		{
			name:        "mcpbox_request_publish",
			description: "Submit a draft or rejected tool for review. Auto-approve mode publishes immediately.",
			args:        requestPublishArgs{},
			handler:     d.requestPublish,
		},
		{
			name:        "mcpbox_request_module",
			description: "Request a Python module be added to the global import allowlist. An admin must approve it.",
			args:        requestModuleArgs{},
			handler:     d.requestModule,
		},
		{
			name:        "mcpbox_request_network_access",
			description: "Request outbound network access to a host for a tool. An admin must approve it.",
			args:        requestNetworkAccessArgs{},
			handler:     d.requestNetworkAccess,
		},
		{
			name:        "mcpbox_get_pending_requests",
			description: "List everything awaiting admin review: tools pending approval, module requests and network access requests.",
			args:        getPendingRequestsArgs{},
			handler:     d.getPendingRequests,
		},
		{
			name:        "mcpbox_create_server_secret",
			description: "Create a named secret placeholder on a server. Values can only be set through the admin UI.",
			args:        createServerSecretArgs{},
			handler:     d.createServerSecret,
		},
		{
			name:        "mcpbox_list_server_secrets",
			description: "List a server's secret names and whether each has a value. Values are never returned.",
			args:        listServerSecretsArgs{},
			handler:     d.listServerSecrets,
		},
		{
			name:        "mcpbox_add_external_source",
			description: "Attach an upstream MCP server to a server as an external tool source.",
			args:        addExternalSourceArgs{},
			handler:     d.addExternalSource,
		},
		{
			name:        "mcpbox_list_external_sources",
			description: "List a server's external MCP sources.",
			args:        listExternalSourcesArgs{},
			handler:     d.listExternalSources,
		},
		{
			name:        "mcpbox_discover_external_tools",
			description: "Connect to an external source and list the tools it offers. Results are cached for import.",
			args:        discoverExternalToolsArgs{},
			handler:     d.discoverExternalTools,
		},
		{
			name:        "mcpbox_import_external_tools",
			description: "Import previously discovered external tools as local passthrough tools in draft state.",
			args:        importExternalToolsArgs{},
			handler:     d.importExternalTools,
		},
	}
}

var schemaReflector = jsonschema.Reflector{
	AllowAdditionalProperties: false,
	DoNotReference:            true,
	ExpandedStruct:            true,
}

// reflectSchema derives a plain JSON schema object from an args struct.
func reflectSchema(args any) json.RawMessage {
	s := schemaReflector.Reflect(args)
	s.Version = ""
	data, err := json.Marshal(s)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return data
}
