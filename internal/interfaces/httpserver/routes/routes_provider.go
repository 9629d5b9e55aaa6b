package routes

import (
	"github.com/google/wire"

	"mcpbox/internal/interfaces/httpserver/handlers/adminhandler"
	"mcpbox/internal/interfaces/httpserver/handlers/internalhandler"
	"mcpbox/internal/interfaces/httpserver/handlers/mcphandler"
	"mcpbox/internal/interfaces/httpserver/handlers/streamhandler"
)

var RouteProvider = wire.NewSet(
	// Handlers
	mcphandler.NewMCPHandler,
	streamhandler.NewStreamHandler,
	internalhandler.NewInternalHandler,
	adminhandler.NewServerAdminHandler,
	adminhandler.NewToolAdminHandler,
	adminhandler.NewApprovalAdminHandler,
	adminhandler.NewSecretAdminHandler,
	adminhandler.NewActivityAdminHandler,
	adminhandler.NewSettingsAdminHandler,
	adminhandler.NewOAuthAdminHandler,

	// Routes
	NewMCPRoute,
	NewAdminRoute,
	NewInternalRoute,
)
