package management

import (
	"context"
	"encoding/json"

	"mcpbox/internal/domain"
	"mcpbox/internal/domain/query"
	"mcpbox/internal/domain/server"
)

type listServersArgs struct {
	Status string `json:"status,omitempty" jsonschema:"description=Filter by status: imported | ready | running | stopped | error"`
	Search string `json:"search,omitempty" jsonschema:"description=Substring match on server name"`
	Limit  int    `json:"limit,omitempty" jsonschema:"description=Page size (default 50)"`
	Offset int    `json:"offset,omitempty" jsonschema:"description=Page offset"`
}

type getServerArgs struct {
	ServerID string `json:"server_id" validate:"required" jsonschema:"description=Server id"`
}

type createServerArgs struct {
	Name             string   `json:"name" validate:"required" jsonschema:"description=Server name. Lowercase letters then letters/digits/underscores"`
	Description      string   `json:"description,omitempty" jsonschema:"description=Human-readable description"`
	AllowedHosts     []string `json:"allowed_hosts,omitempty" jsonschema:"description=Hosts tools on this server may reach"`
	DefaultTimeoutMS int      `json:"default_timeout_ms,omitempty" jsonschema:"description=Default tool timeout in milliseconds (default 30000)"`
}

type updateServerArgs struct {
	ServerID         string    `json:"server_id" validate:"required" jsonschema:"description=Server id"`
	Name             *string   `json:"name,omitempty" jsonschema:"description=New server name"`
	Description      *string   `json:"description,omitempty" jsonschema:"description=New description"`
	AllowedHosts     *[]string `json:"allowed_hosts,omitempty" jsonschema:"description=Replacement host allowlist"`
	DefaultTimeoutMS *int      `json:"default_timeout_ms,omitempty" jsonschema:"description=New default tool timeout in milliseconds"`
}

type deleteServerArgs struct {
	ServerID string `json:"server_id" validate:"required" jsonschema:"description=Server id"`
}

type startServerArgs struct {
	ServerID string `json:"server_id" validate:"required" jsonschema:"description=Server id"`
}

type stopServerArgs struct {
	ServerID string `json:"server_id" validate:"required" jsonschema:"description=Server id"`
}

type createServerSecretArgs struct {
	ServerID    string `json:"server_id" validate:"required" jsonschema:"description=Server id"`
	KeyName     string `json:"key_name" validate:"required" jsonschema:"description=Environment variable name the secret is exposed as"`
	Description string `json:"description,omitempty" jsonschema:"description=What the secret is for"`
}

type listServerSecretsArgs struct {
	ServerID string `json:"server_id" validate:"required" jsonschema:"description=Server id"`
}

func (d *Dispatcher) listServers(ctx context.Context, _ domain.Principal, args json.RawMessage) (any, error) {
	a, err := decode[listServersArgs](d, args)
	if err != nil {
		return nil, err
	}

	filter := server.Filter{}
	if a.Status != "" {
		status := server.Status(a.Status)
		filter.Status = &status
	}
	if a.Search != "" {
		filter.Search = &a.Search
	}
	p := &query.Pagination{Limit: a.Limit, Offset: a.Offset}
	p.Normalize(50, 200)

	servers, total, err := d.servers.List(ctx, filter, p)
	if err != nil {
		return nil, err
	}
	return map[string]any{"servers": servers, "total": total}, nil
}

func (d *Dispatcher) getServer(ctx context.Context, _ domain.Principal, args json.RawMessage) (any, error) {
	a, err := decode[getServerArgs](d, args)
	if err != nil {
		return nil, err
	}
	return d.servers.Get(ctx, a.ServerID)
}

func (d *Dispatcher) createServer(ctx context.Context, _ domain.Principal, args json.RawMessage) (any, error) {
	a, err := decode[createServerArgs](d, args)
	if err != nil {
		return nil, err
	}
	return d.servers.Create(ctx, a.Name, a.Description, a.AllowedHosts, a.DefaultTimeoutMS)
}

func (d *Dispatcher) updateServer(ctx context.Context, _ domain.Principal, args json.RawMessage) (any, error) {
	a, err := decode[updateServerArgs](d, args)
	if err != nil {
		return nil, err
	}
	return d.servers.Update(ctx, a.ServerID, server.UpdateInput{
		Name:             a.Name,
		Description:      a.Description,
		AllowedHosts:     a.AllowedHosts,
		DefaultTimeoutMS: a.DefaultTimeoutMS,
	})
}

func (d *Dispatcher) deleteServer(ctx context.Context, _ domain.Principal, args json.RawMessage) (any, error) {
	a, err := decode[deleteServerArgs](d, args)
	if err != nil {
		return nil, err
	}
	srv, err := d.servers.Delete(ctx, a.ServerID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"deleted": true, "server": srv}, nil
}

func (d *Dispatcher) startServer(ctx context.Context, _ domain.Principal, args json.RawMessage) (any, error) {
	a, err := decode[startServerArgs](d, args)
	if err != nil {
		return nil, err
	}
	return d.registrar.StartServer(ctx, a.ServerID)
}

func (d *Dispatcher) stopServer(ctx context.Context, _ domain.Principal, args json.RawMessage) (any, error) {
	a, err := decode[stopServerArgs](d, args)
	if err != nil {
		return nil, err
	}
	return d.registrar.StopServer(ctx, a.ServerID)
}

// createServerSecret creates a placeholder only: this surface can never
// carry a secret value.
func (d *Dispatcher) createServerSecret(ctx context.Context, _ domain.Principal, args json.RawMessage) (any, error) {
	a, err := decode[createServerSecretArgs](d, args)
	if err != nil {
		return nil, err
	}
	sec, err := d.secrets.Create(ctx, a.ServerID, a.KeyName, "", a.Description)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":        sec.ID,
		"server_id": sec.ServerID,
		"key_name":  sec.KeyName,
		"has_value": false,
		"message":   "Placeholder created. Set the value in the admin UI.",
	}, nil
}

func (d *Dispatcher) listServerSecrets(ctx context.Context, _ domain.Principal, args json.RawMessage) (any, error) {
	a, err := decode[listServerSecretsArgs](d, args)
	if err != nil {
		return nil, err
	}
	infos, err := d.secrets.List(ctx, a.ServerID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"secrets": infos}, nil
}
