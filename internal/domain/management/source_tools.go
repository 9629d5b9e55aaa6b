package management

import (
	"context"
	"encoding/json"

	"mcpbox/internal/domain"
	"mcpbox/internal/domain/externalsource"
)

type addExternalSourceArgs struct {
	ServerID       string `json:"server_id" validate:"required" jsonschema:"description=Server the source belongs to"`
	Name           string `json:"name" validate:"required" jsonschema:"description=Source name. Lowercase letters then letters/digits/underscores"`
	URL            string `json:"url" validate:"required" jsonschema:"description=Upstream MCP endpoint (http or https)"`
	AuthType       string `json:"auth_type,omitempty" jsonschema:"description=none (default) | bearer | header | oauth"`
	AuthSecretName string `json:"auth_secret_name,omitempty" jsonschema:"description=Server secret holding the credential for bearer/header auth"`
	AuthHeaderName string `json:"auth_header_name,omitempty" jsonschema:"description=Header carrying the credential for header auth"`
	TransportType  string `json:"transport_type,omitempty" jsonschema:"description=streamable_http (default) | sse"`
}

type listExternalSourcesArgs struct {
	ServerID string `json:"server_id" validate:"required" jsonschema:"description=Server id"`
}

type discoverExternalToolsArgs struct {
	SourceID string `json:"source_id" validate:"required" jsonschema:"description=External source id"`
}

type importExternalToolsArgs struct {
	SourceID  string   `json:"source_id" validate:"required" jsonschema:"description=External source id"`
	ToolNames []string `json:"tool_names,omitempty" jsonschema:"description=Upstream tool names to import. Omit to import everything discovered"`
}

func (d *Dispatcher) addExternalSource(ctx context.Context, _ domain.Principal, args json.RawMessage) (any, error) {
	a, err := decode[addExternalSourceArgs](d, args)
	if err != nil {
		return nil, err
	}
	return d.sources.Add(ctx, externalsource.AddInput{
		ServerID:       a.ServerID,
		Name:           a.Name,
		URL:            a.URL,
		AuthType:       externalsource.AuthType(a.AuthType),
		AuthSecretName: a.AuthSecretName,
		AuthHeaderName: a.AuthHeaderName,
		TransportType:  externalsource.TransportType(a.TransportType),
	})
}

func (d *Dispatcher) listExternalSources(ctx context.Context, _ domain.Principal, args json.RawMessage) (any, error) {
	a, err := decode[listExternalSourcesArgs](d, args)
	if err != nil {
		return nil, err
	}
	sources, err := d.sources.List(ctx, a.ServerID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"sources": sources}, nil
}

func (d *Dispatcher) discoverExternalTools(ctx context.Context, _ domain.Principal, args json.RawMessage) (any, error) {
	a, err := decode[discoverExternalToolsArgs](d, args)
	if err != nil {
		return nil, err
	}
	tools, err := d.sources.Discover(ctx, a.SourceID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"tools": tools, "count": len(tools)}, nil
}

func (d *Dispatcher) importExternalTools(ctx context.Context, caller domain.Principal, args json.RawMessage) (any, error) {
	a, err := decode[importExternalToolsArgs](d, args)
	if err != nil {
		return nil, err
	}
	return d.sources.Import(ctx, a.SourceID, a.ToolNames, callerName(caller))
}
