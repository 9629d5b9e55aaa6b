package management

import (
	"context"
	"encoding/json"

	"mcpbox/internal/domain"
	"mcpbox/internal/domain/execlog"
	"mcpbox/internal/domain/query"
	"mcpbox/internal/domain/settings"
	"mcpbox/internal/domain/tool"
	"mcpbox/internal/infrastructure/sandbox"
	"mcpbox/internal/utils/platformerrors"
)

type listToolsArgs struct {
	ServerID       string `json:"server_id,omitempty" jsonschema:"description=Filter by server id"`
	ApprovalStatus string `json:"approval_status,omitempty" jsonschema:"description=Filter by approval status: draft | pending_review | approved | rejected"`
	Enabled        *bool  `json:"enabled,omitempty" jsonschema:"description=Filter by enabled flag"`
	Limit          int    `json:"limit,omitempty" jsonschema:"description=Page size (default 50)"`
	Offset         int    `json:"offset,omitempty" jsonschema:"description=Page offset"`
}

type getToolArgs struct {
	ToolID string `json:"tool_id" validate:"required" jsonschema:"description=Tool id"`
}

type createToolArgs struct {
	ServerID         string         `json:"server_id" validate:"required" jsonschema:"description=Server the tool belongs to"`
	Name             string         `json:"name" validate:"required" jsonschema:"description=Tool name. Lowercase letters then letters/digits/underscores"`
	Description      string         `json:"description,omitempty" jsonschema:"description=What the tool does, shown to MCP clients"`
	PythonCode       string         `json:"python_code,omitempty" jsonschema:"description=Tool source. Must define async def main(...)"`
	ToolType         string         `json:"tool_type,omitempty" jsonschema:"description=python_code (default) or mcp_passthrough"`
	ExternalSourceID string         `json:"external_source_id,omitempty" jsonschema:"description=External source id for passthrough tools"`
	ExternalToolName string         `json:"external_tool_name,omitempty" jsonschema:"description=Upstream tool name for passthrough tools"`
	TimeoutMS        int            `json:"timeout_ms,omitempty" jsonschema:"description=Execution timeout in milliseconds. Defaults to the server's default"`
	InputSchema      map[string]any `json:"input_schema,omitempty" jsonschema:"description=JSON schema for arguments. Derived from the main signature when omitted"`
	ChangeSource     string         `json:"change_source,omitempty" jsonschema:"description=Origin recorded on version 1 (default llm)"`
}

type updateToolArgs struct {
	ToolID       string         `json:"tool_id" validate:"required" jsonschema:"description=Tool id"`
	Name         *string        `json:"name,omitempty" jsonschema:"description=New tool name"`
	Description  *string        `json:"description,omitempty" jsonschema:"description=New description"`
	Enabled      *bool          `json:"enabled,omitempty" jsonschema:"description=Enable or disable the tool"`
	TimeoutMS    *int           `json:"timeout_ms,omitempty" jsonschema:"description=New execution timeout in milliseconds"`
	PythonCode   *string        `json:"python_code,omitempty" jsonschema:"description=New source. Resets approval to pending_review"`
	InputSchema  map[string]any `json:"input_schema,omitempty" jsonschema:"description=Replacement argument schema"`
	ChangeSource string         `json:"change_source,omitempty" jsonschema:"description=Origin recorded on the new version (default llm)"`
}

type deleteToolArgs struct {
	ToolID string `json:"tool_id" validate:"required" jsonschema:"description=Tool id"`
}

type validateCodeArgs struct {
	PythonCode string `json:"python_code" validate:"required" jsonschema:"description=Tool source to check"`
}

type testCodeArgs struct {
	ToolID    string         `json:"tool_id" validate:"required" jsonschema:"description=Saved tool to execute"`
	InputArgs map[string]any `json:"input_args,omitempty" jsonschema:"description=Arguments passed to main"`
}

type getToolStatusArgs struct {
	ToolID string `json:"tool_id" validate:"required" jsonschema:"description=Tool id"`
}

type listToolVersionsArgs struct {
	ToolID string `json:"tool_id" validate:"required" jsonschema:"description=Tool id"`
}

type rollbackToolArgs struct {
	ToolID        string `json:"tool_id" validate:"required" jsonschema:"description=Tool id"`
	VersionNumber int    `json:"version_number" validate:"required,gt=0" jsonschema:"description=Version to restore"`
}

type getExecutionLogsArgs struct {
	ToolID   string `json:"tool_id,omitempty" jsonschema:"description=Filter by tool id"`
	ServerID string `json:"server_id,omitempty" jsonschema:"description=Filter by server id"`
	Success  *bool  `json:"success,omitempty" jsonschema:"description=Filter by outcome"`
	IsTest   *bool  `json:"is_test,omitempty" jsonschema:"description=Filter test runs in or out"`
	Limit    int    `json:"limit,omitempty" jsonschema:"description=Page size (default 50)"`
	Offset   int    `json:"offset,omitempty" jsonschema:"description=Page offset"`
}

func (d *Dispatcher) listTools(ctx context.Context, _ domain.Principal, args json.RawMessage) (any, error) {
	a, err := decode[listToolsArgs](d, args)
	if err != nil {
		return nil, err
	}

	filter := tool.Filter{Enabled: a.Enabled}
	if a.ServerID != "" {
		filter.ServerID = &a.ServerID
	}
	if a.ApprovalStatus != "" {
		status := tool.ApprovalStatus(a.ApprovalStatus)
		filter.ApprovalStatus = &status
	}
	p := &query.Pagination{Limit: a.Limit, Offset: a.Offset}
	p.Normalize(50, 200)

	tools, total, err := d.tools.List(ctx, filter, p)
	if err != nil {
		return nil, err
	}
	return map[string]any{"tools": tools, "total": total}, nil
}

func (d *Dispatcher) getTool(ctx context.Context, _ domain.Principal, args json.RawMessage) (any, error) {
	a, err := decode[getToolArgs](d, args)
	if err != nil {
		return nil, err
	}
	return d.tools.Get(ctx, a.ToolID)
}

func (d *Dispatcher) createTool(ctx context.Context, caller domain.Principal, args json.RawMessage) (any, error) {
	a, err := decode[createToolArgs](d, args)
	if err != nil {
		return nil, err
	}

	input := tool.CreateInput{
		ServerID:         a.ServerID,
		Name:             a.Name,
		Description:      a.Description,
		ToolType:         tool.Type(a.ToolType),
		PythonCode:       a.PythonCode,
		ExternalToolName: a.ExternalToolName,
		TimeoutMS:        a.TimeoutMS,
		CreatedBy:        callerName(caller),
		ChangeSource:     tool.ChangeSourceLLM,
	}
	if a.ExternalSourceID != "" {
		input.ExternalSourceID = &a.ExternalSourceID
	}
	if len(a.InputSchema) > 0 {
		raw, err := json.Marshal(a.InputSchema)
		if err != nil {
			return nil, err
		}
		input.InputSchema = raw
	}
	if a.ChangeSource != "" {
		input.ChangeSource = tool.ChangeSource(a.ChangeSource)
	}
	return d.tools.Create(ctx, input)
}

func (d *Dispatcher) updateTool(ctx context.Context, _ domain.Principal, args json.RawMessage) (any, error) {
	a, err := decode[updateToolArgs](d, args)
	if err != nil {
		return nil, err
	}

	input := tool.UpdateInput{
		Name:         a.Name,
		Description:  a.Description,
		Enabled:      a.Enabled,
		TimeoutMS:    a.TimeoutMS,
		PythonCode:   a.PythonCode,
		ChangeSource: tool.ChangeSourceLLM,
	}
	if len(a.InputSchema) > 0 {
		raw, err := json.Marshal(a.InputSchema)
		if err != nil {
			return nil, err
		}
		input.InputSchema = raw
	}
	if a.ChangeSource != "" {
		input.ChangeSource = tool.ChangeSource(a.ChangeSource)
	}
	return d.tools.Update(ctx, a.ToolID, input)
}

func (d *Dispatcher) deleteTool(ctx context.Context, _ domain.Principal, args json.RawMessage) (any, error) {
	a, err := decode[deleteToolArgs](d, args)
	if err != nil {
		return nil, err
	}
	t, err := d.tools.Delete(ctx, a.ToolID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"deleted": true, "tool": t}, nil
}

// validateCode checks code without persisting anything, reporting issues,
// the schema the main signature would produce and the detected imports.
func (d *Dispatcher) validateCode(ctx context.Context, _ domain.Principal, args json.RawMessage) (any, error) {
	a, err := decode[validateCodeArgs](d, args)
	if err != nil {
		return nil, err
	}

	issues := tool.ValidateCode(a.PythonCode)
	out := map[string]any{
		"valid":  len(issues) == 0,
		"issues": issues,
	}
	if len(issues) == 0 {
		if schema, err := tool.DeriveInputSchema(a.PythonCode); err == nil {
			out["input_schema"] = json.RawMessage(schema)
		}
		out["dependencies"] = tool.ExtractDependencies(a.PythonCode)
	}
	return out, nil
}

// testCode runs a saved tool in the sandbox against the server's live
// environment. Every run is recorded as a test execution, including failed
// transport attempts.
func (d *Dispatcher) testCode(ctx context.Context, caller domain.Principal, args json.RawMessage) (any, error) {
	a, err := decode[testCodeArgs](d, args)
	if err != nil {
		return nil, err
	}

	t, err := d.tools.Get(ctx, a.ToolID)
	if err != nil {
		return nil, err
	}
	if t.ToolType != tool.TypePythonCode {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "only python tools can be tested", nil, "mgmt-001")
	}

	mode, err := d.settings.ToolApprovalMode(ctx)
	if err != nil {
		return nil, err
	}
	if mode == settings.ApprovalModeRequire && t.ApprovalStatus != tool.ApprovalApproved {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden, "tool is not approved: request publish and wait for admin approval before testing", nil, "mgmt-002")
	}

	srv, err := d.servers.Get(ctx, t.ServerID)
	if err != nil {
		return nil, err
	}
	env, err := d.secrets.DecryptAll(ctx, srv.ID)
	if err != nil {
		return nil, err
	}
	modules, err := d.settings.AllowedModules(ctx)
	if err != nil {
		return nil, err
	}

	timeout := t.TimeoutMS
	if timeout <= 0 {
		timeout = srv.DefaultTimeoutMS
	}

	res, execErr := d.runner.ExecuteCode(ctx, sandbox.ExecuteCodeRequest{
		Code:           t.PythonCode,
		InputArgs:      a.InputArgs,
		Secrets:        env,
		AllowedHosts:   srv.AllowedHosts,
		AllowedModules: modules,
		TimeoutMS:      timeout,
	})

	record := &execlog.Record{
		ToolID:     t.ID,
		ServerID:   srv.ID,
		ToolName:   t.Name,
		InputArgs:  a.InputArgs,
		IsTest:     true,
		ExecutedBy: callerName(caller),
	}
	if execErr != nil {
		record.Error = execErr.Error()
	} else {
		record.Success = res.Success
		record.Result = string(res.Result)
		record.Error = res.Error
		record.Stdout = res.Stdout
		record.DurationMS = res.DurationMS
	}
	if err := d.execlogs.Record(ctx, record); err != nil {
		d.logger.Error().Err(err).Str("tool_id", t.ID).Msg("failed to record test execution")
	}

	if execErr != nil {
		return nil, execErr
	}
	return res, nil
}

func (d *Dispatcher) getToolStatus(ctx context.Context, _ domain.Principal, args json.RawMessage) (any, error) {
	a, err := decode[getToolStatusArgs](d, args)
	if err != nil {
		return nil, err
	}
	return d.tools.Status(ctx, a.ToolID)
}

func (d *Dispatcher) listToolVersions(ctx context.Context, _ domain.Principal, args json.RawMessage) (any, error) {
	a, err := decode[listToolVersionsArgs](d, args)
	if err != nil {
		return nil, err
	}
	versions, err := d.tools.ListVersions(ctx, a.ToolID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"versions": versions}, nil
}

func (d *Dispatcher) rollbackTool(ctx context.Context, _ domain.Principal, args json.RawMessage) (any, error) {
	a, err := decode[rollbackToolArgs](d, args)
	if err != nil {
		return nil, err
	}
	return d.tools.Rollback(ctx, a.ToolID, a.VersionNumber)
}

func (d *Dispatcher) getExecutionLogs(ctx context.Context, _ domain.Principal, args json.RawMessage) (any, error) {
	a, err := decode[getExecutionLogsArgs](d, args)
	if err != nil {
		return nil, err
	}

	filter := execlog.Filter{Success: a.Success, IsTest: a.IsTest}
	if a.ToolID != "" {
		filter.ToolID = &a.ToolID
	}
	if a.ServerID != "" {
		filter.ServerID = &a.ServerID
	}
	p := &query.Pagination{Limit: a.Limit, Offset: a.Offset}
	p.Normalize(50, 200)

	logs, total, err := d.execlogs.List(ctx, filter, p)
	if err != nil {
		return nil, err
	}
	return map[string]any{"logs": logs, "total": total}, nil
}
