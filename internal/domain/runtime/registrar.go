// Package runtime orchestrates server lifecycle against the sandbox:
// building registration snapshots, start/stop transitions and re-syncs
// after configuration changes.
package runtime

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"mcpbox/internal/domain/activity"
	"mcpbox/internal/domain/externalsource"
	"mcpbox/internal/domain/notify"
	"mcpbox/internal/domain/secret"
	"mcpbox/internal/domain/server"
	"mcpbox/internal/domain/settings"
	"mcpbox/internal/domain/tool"
	"mcpbox/internal/infrastructure/logger"
	"mcpbox/internal/infrastructure/sandbox"
	"mcpbox/internal/utils/platformerrors"
)

// SandboxGateway is the slice of the sandbox client the registrar needs.
type SandboxGateway interface {
	RegisterServer(ctx context.Context, req sandbox.RegisterServerRequest) (*sandbox.RegisterServerResult, error)
	UnregisterServer(ctx context.Context, serverID string) error
	UpdateServerSecrets(ctx context.Context, serverID string, secrets map[string]string) error
}

// StartResult reports a successful server start.
type StartResult struct {
	Server          *server.Server `json:"server"`
	ToolsRegistered int            `json:"tools_registered"`
}

// Registrar owns the running/stopped transitions of servers. It is the
// single writer of sandbox registrations; every observable tool-set change
// funnels through it and ends in a notifier signal.
type Registrar struct {
	servers  server.Repository
	tools    tool.Repository
	secrets  *secret.Service
	settings *settings.Service
	sources  externalsource.Repository
	creds    *externalsource.CredentialResolver
	sandbox  SandboxGateway
	notifier *notify.ToolChangeNotifier
	activity *activity.Logger
	logger   zerolog.Logger
}

// NewRegistrar creates a registrar.
func NewRegistrar(
	servers server.Repository,
	tools tool.Repository,
	secrets *secret.Service,
	settingsService *settings.Service,
	sources externalsource.Repository,
	creds *externalsource.CredentialResolver,
	sandboxGateway SandboxGateway,
	notifier *notify.ToolChangeNotifier,
	activityLogger *activity.Logger,
) *Registrar {
	return &Registrar{
		servers:  servers,
		tools:    tools,
		secrets:  secrets,
		settings: settingsService,
		sources:  sources,
		creds:    creds,
		sandbox:  sandboxGateway,
		notifier: notifier,
		activity: activityLogger,
		logger:   logger.Component("runtime"),
	}
}

// StartServer registers a server with the sandbox and marks it running.
// At least one approved, enabled tool is required.
func (r *Registrar) StartServer(ctx context.Context, serverID string) (*StartResult, error) {
	srv, err := r.servers.FindByID(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if srv.Status == server.StatusRunning {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "server is already running", nil, "runtime-001")
	}

	req, err := r.buildRegistration(ctx, srv)
	if err != nil {
		return nil, err
	}
	if len(req.Tools) == 0 {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "server has no approved, enabled tools to expose", nil, "runtime-002")
	}

	result, err := r.sandbox.RegisterServer(ctx, req)
	if err != nil {
		r.markError(ctx, srv, err)
		return nil, err
	}

	srv.Status = server.StatusRunning
	if err := r.servers.Update(ctx, srv); err != nil {
		return nil, err
	}
	r.notifier.Signal()
	r.activity.LogAudit("Server started: "+srv.Name, map[string]any{
		"server_id": srv.ID, "tools_registered": result.ToolsRegistered,
	})
	return &StartResult{Server: srv, ToolsRegistered: result.ToolsRegistered}, nil
}

// StopServer unregisters a running server and marks it stopped. A sandbox
// that no longer knows the server counts as success.
func (r *Registrar) StopServer(ctx context.Context, serverID string) (*server.Server, error) {
	srv, err := r.servers.FindByID(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if srv.Status != server.StatusRunning {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "server is not running", nil, "runtime-003")
	}

	if err := r.sandbox.UnregisterServer(ctx, srv.ID); err != nil && !isGone(err) {
		return nil, err
	}

	srv.Status = server.StatusStopped
	if err := r.servers.Update(ctx, srv); err != nil {
		return nil, err
	}
	r.notifier.Signal()
	r.activity.LogAudit("Server stopped: "+srv.Name, map[string]any{
		"server_id": srv.ID,
	})
	return srv, nil
}

// ResyncServer rebuilds and re-registers a running server after a change
// to its observable tool set or registration payload. Stopped servers pick
// the change up at their next start. Failures degrade the server to error
// state rather than propagate: callers are mid-write and must not roll
// back a committed change because the sandbox hiccupped.
func (r *Registrar) ResyncServer(ctx context.Context, serverID string) {
	srv, err := r.servers.FindByID(ctx, serverID)
	if err != nil {
		r.logger.Warn().Err(err).Str("server_id", serverID).Msg("resync: server lookup failed")
		return
	}
	if srv.Status != server.StatusRunning {
		return
	}

	req, err := r.buildRegistration(ctx, srv)
	if err != nil {
		r.markError(ctx, srv, err)
		r.notifier.Signal()
		return
	}

	if len(req.Tools) == 0 {
		if err := r.sandbox.UnregisterServer(ctx, srv.ID); err != nil && !isGone(err) {
			r.markError(ctx, srv, err)
			r.notifier.Signal()
			return
		}
		srv.Status = server.StatusStopped
		if err := r.servers.Update(ctx, srv); err != nil {
			r.logger.Error().Err(err).Str("server_id", srv.ID).Msg("resync: status update failed")
			return
		}
		r.notifier.Signal()
		r.activity.LogSystem("Server stopped: no exposable tools remain on "+srv.Name, map[string]any{
			"server_id": srv.ID,
		})
		return
	}

	if _, err := r.sandbox.RegisterServer(ctx, req); err != nil {
		r.markError(ctx, srv, err)
		r.notifier.Signal()
		return
	}

	r.notifier.Signal()
	r.logger.Debug().Str("server_id", srv.ID).Int("tools", len(req.Tools)).Msg("server re-registered")
}

// DeregisterServer removes the sandbox registration without touching the
// database row. Used while the row itself is being deleted.
func (r *Registrar) DeregisterServer(ctx context.Context, serverID string) error {
	if err := r.sandbox.UnregisterServer(ctx, serverID); err != nil && !isGone(err) {
		return err
	}
	r.notifier.Signal()
	return nil
}

// PushSecrets sends a running server's current decrypted secret
// environment to the sandbox without a full re-registration. Stopped
// servers are a no-op.
func (r *Registrar) PushSecrets(ctx context.Context, serverID string) error {
	srv, err := r.servers.FindByID(ctx, serverID)
	if err != nil {
		return err
	}
	if srv.Status != server.StatusRunning {
		return nil
	}
	env, err := r.secrets.DecryptAll(ctx, srv.ID)
	if err != nil {
		return err
	}
	return r.sandbox.UpdateServerSecrets(ctx, serverID, env)
}

// buildRegistration assembles the full runtime snapshot of a server:
// exposable tool defs, decrypted secrets, global allowed modules and
// resolved external source configs.
func (r *Registrar) buildRegistration(ctx context.Context, srv *server.Server) (sandbox.RegisterServerRequest, error) {
	req := sandbox.RegisterServerRequest{
		ServerID:     srv.ID,
		ServerName:   srv.Name,
		AllowedHosts: srv.AllowedHosts,
	}

	enabled := true
	approved := tool.ApprovalApproved
	tools, err := r.tools.FindByFilter(ctx, tool.Filter{ServerID: &srv.ID, Enabled: &enabled, ApprovalStatus: &approved}, nil)
	if err != nil {
		return req, err
	}

	sources, err := r.sources.FindByServer(ctx, srv.ID)
	if err != nil {
		return req, err
	}
	sourceName := make(map[string]string, len(sources))
	for _, src := range sources {
		sourceName[src.ID] = src.Name
	}

	for _, t := range tools {
		def := sandbox.ToolDef{
			Name:             t.Name,
			Description:      t.Description,
			ToolType:         string(t.ToolType),
			PythonCode:       t.PythonCode,
			InputSchema:      t.InputSchema,
			TimeoutMS:        t.TimeoutMS,
			ExternalToolName: t.ExternalToolName,
		}
		if def.TimeoutMS <= 0 {
			def.TimeoutMS = srv.DefaultTimeoutMS
		}
		if t.ExternalSourceID != nil {
			def.ExternalSourceName = sourceName[*t.ExternalSourceID]
		}
		req.Tools = append(req.Tools, def)
	}

	env, err := r.secrets.DecryptAll(ctx, srv.ID)
	if err != nil {
		return req, err
	}
	req.Secrets = env

	modules, err := r.settings.AllowedModules(ctx)
	if err != nil {
		return req, err
	}
	req.AllowedModules = modules

	for _, src := range sources {
		if src.Status == externalsource.StatusDisabled {
			continue
		}
		token, err := r.creds.Token(ctx, src)
		if err != nil {
			return req, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "cannot resolve credentials for source "+src.Name+": "+err.Error(), err, "runtime-004")
		}
		req.ExternalSources = append(req.ExternalSources, sandbox.ExternalSourceConfig{
			Name:           src.Name,
			URL:            src.URL,
			TransportType:  string(src.TransportType),
			AuthType:       string(src.AuthType),
			AuthToken:      token,
			AuthHeaderName: src.AuthHeaderName,
		})
	}

	return req, nil
}

// markError degrades a server to error state and raises an alert.
func (r *Registrar) markError(ctx context.Context, srv *server.Server, cause error) {
	r.logger.Error().Err(cause).Str("server_id", srv.ID).Msg("sandbox registration failed")
	srv.Status = server.StatusError
	if err := r.servers.Update(ctx, srv); err != nil {
		r.logger.Error().Err(err).Str("server_id", srv.ID).Msg("status update failed")
	}
	r.activity.LogAlert("Sandbox registration failed for server "+srv.Name, map[string]any{
		"server_id": srv.ID, "error": cause.Error(),
	})
}

// isGone reports whether the sandbox answered 404 for an unregister, which
// means the desired state already holds.
func isGone(err error) bool {
	var se *sandbox.SandboxError
	return errors.As(err, &se) && se.StatusCode == 404
}
