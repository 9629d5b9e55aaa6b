package management

import (
	"context"
	"encoding/json"

	"mcpbox/internal/domain"
)

type requestPublishArgs struct {
	ToolID string `json:"tool_id" validate:"required" jsonschema:"description=Tool to submit for review"`
	Notes  string `json:"notes,omitempty" jsonschema:"description=Context for the reviewer"`
}

type requestModuleArgs struct {
	ToolID        string `json:"tool_id" validate:"required" jsonschema:"description=Tool that needs the module"`
	ModuleName    string `json:"module_name" validate:"required" jsonschema:"description=Python module to allow (e.g. requests)"`
	Justification string `json:"justification,omitempty" jsonschema:"description=Why the module is needed"`
}

type requestNetworkAccessArgs struct {
	ToolID        string `json:"tool_id" validate:"required" jsonschema:"description=Tool that needs the access"`
	Host          string `json:"host" validate:"required" jsonschema:"description=Host to allow (e.g. api.example.com)"`
	Port          *int   `json:"port,omitempty" jsonschema:"description=Optional port restriction"`
	Justification string `json:"justification,omitempty" jsonschema:"description=Why the access is needed"`
}

type getPendingRequestsArgs struct{}

func (d *Dispatcher) requestPublish(ctx context.Context, caller domain.Principal, args json.RawMessage) (any, error) {
	a, err := decode[requestPublishArgs](d, args)
	if err != nil {
		return nil, err
	}
	return d.tools.RequestPublish(ctx, a.ToolID, a.Notes, callerName(caller))
}

func (d *Dispatcher) requestModule(ctx context.Context, _ domain.Principal, args json.RawMessage) (any, error) {
	a, err := decode[requestModuleArgs](d, args)
	if err != nil {
		return nil, err
	}
	return d.approvals.RequestModule(ctx, a.ToolID, a.ModuleName, a.Justification)
}

func (d *Dispatcher) requestNetworkAccess(ctx context.Context, _ domain.Principal, args json.RawMessage) (any, error) {
	a, err := decode[requestNetworkAccessArgs](d, args)
	if err != nil {
		return nil, err
	}
	return d.approvals.RequestNetworkAccess(ctx, a.ToolID, a.Host, a.Port, a.Justification)
}

func (d *Dispatcher) getPendingRequests(ctx context.Context, _ domain.Principal, args json.RawMessage) (any, error) {
	if _, err := decode[getPendingRequestsArgs](d, args); err != nil {
		return nil, err
	}
	return d.approvals.PendingRequests(ctx)
}
