package domain

import (
	"github.com/google/wire"

	"mcpbox/internal/config"
	"mcpbox/internal/domain/activity"
	"mcpbox/internal/domain/approval"
	"mcpbox/internal/domain/execlog"
	"mcpbox/internal/domain/externalsource"
	"mcpbox/internal/domain/notify"
	"mcpbox/internal/domain/runtime"
	"mcpbox/internal/domain/secret"
	"mcpbox/internal/domain/server"
	"mcpbox/internal/domain/settings"
	"mcpbox/internal/domain/tool"
	"mcpbox/internal/infrastructure/extmcp"
	"mcpbox/internal/infrastructure/policycache"
	"mcpbox/internal/infrastructure/sandbox"
	"mcpbox/internal/utils/crypto"
)

// ServiceProvider provides all domain services
var ServiceProvider = wire.NewSet(
	// Activity logging
	ProvideActivityLogger,

	// Settings
	ProvideSettingsService,
	wire.Bind(new(tool.ApprovalPolicy), new(*settings.Service)),

	// Servers and sandbox registrations
	server.NewService,
	runtime.NewRegistrar,
	wire.Bind(new(server.Resyncer), new(*runtime.Registrar)),
	wire.Bind(new(server.Deregistrar), new(*runtime.Registrar)),
	wire.Bind(new(runtime.SandboxGateway), new(*sandbox.Client)),

	// Tools and versions
	tool.NewService,
	wire.Bind(new(tool.Resyncer), new(*runtime.Registrar)),

	// Approval workflow
	approval.NewService,
	wire.Bind(new(approval.PackageInstaller), new(*sandbox.Client)),
	wire.Bind(new(approval.ServerResyncer), new(*runtime.Registrar)),

	// Secrets
	secret.NewService,

	// External sources
	externalsource.NewOAuthManager,
	externalsource.NewCredentialResolver,
	externalsource.NewService,
	wire.Bind(new(externalsource.Discoverer), new(*extmcp.Client)),
	wire.Bind(new(externalsource.Resyncer), new(*runtime.Registrar)),

	// Execution logs
	execlog.NewService,

	// Tool change broadcast
	notify.NewToolChangeNotifier,
)

// ProvideSettingsService wires the settings service with the policy caches
// it invalidates on writes.
func ProvideSettingsService(
	repo settings.Repository,
	cipher *crypto.Cipher,
	tokens *policycache.ServiceTokenCache,
	emails *policycache.EmailPolicyCache,
) *settings.Service {
	return settings.NewService(repo, cipher, tokens, emails)
}

// ProvideActivityLogger wires the activity logger with the settings-backed
// redaction policy and the configured batching window.
func ProvideActivityLogger(
	repo activity.Repository,
	settingsService *settings.Service,
	cfg *config.Config,
) *activity.Logger {
	return activity.NewLogger(repo, settingsService, cfg.ActivityBatchInterval, cfg.ActivityBatchSize)
}
