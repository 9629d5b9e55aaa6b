package interfaces

import (
	"github.com/google/wire"

	"mcpbox/internal/config"
	"mcpbox/internal/domain/management"
	"mcpbox/internal/domain/notify"
	"mcpbox/internal/domain/runtime"
	"mcpbox/internal/domain/tool"
	"mcpbox/internal/infrastructure/sandbox"
	"mcpbox/internal/interfaces/httpserver"
	"mcpbox/internal/interfaces/httpserver/handlers/adminhandler"
	"mcpbox/internal/interfaces/httpserver/handlers/mcphandler"
	"mcpbox/internal/interfaces/httpserver/middlewares"
)

var InterfacesProvider = wire.NewSet(
	httpserver.NewHttpServer,

	// Gateway collaborators
	wire.Bind(new(mcphandler.SandboxForwarder), new(*sandbox.Client)),
	wire.Bind(new(mcphandler.ManagementDispatcher), new(*management.Dispatcher)),
	wire.Bind(new(mcphandler.ExposedToolSource), new(*tool.Service)),
	wire.Bind(new(mcphandler.ChangeSignal), new(*notify.ToolChangeNotifier)),

	// Admin plane collaborators
	wire.Bind(new(adminhandler.SecretPusher), new(*runtime.Registrar)),

	// Failed auth lockout shared by the gateway auth middleware
	ProvideFailureTracker,
)

// ProvideFailureTracker builds the per-client failed auth tracker.
func ProvideFailureTracker(cfg *config.Config) *middlewares.FailureTracker {
	return middlewares.NewFailureTracker(cfg.FailedAuthMax, cfg.FailedAuthWindow)
}
