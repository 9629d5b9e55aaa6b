package routes

import (
	"github.com/gin-gonic/gin"

	"mcpbox/internal/infrastructure/policycache"
	"mcpbox/internal/interfaces/httpserver/handlers/mcphandler"
	"mcpbox/internal/interfaces/httpserver/middlewares"
)

// MCPRoute mounts the gateway endpoint behind the auth pipeline. POST
// carries JSON-RPC traffic, GET is the SSE notification stream.
type MCPRoute struct {
	handler  *mcphandler.MCPHandler
	tokens   *policycache.ServiceTokenCache
	emails   *policycache.EmailPolicyCache
	failures *middlewares.FailureTracker
}

func NewMCPRoute(
	handler *mcphandler.MCPHandler,
	tokens *policycache.ServiceTokenCache,
	emails *policycache.EmailPolicyCache,
	failures *middlewares.FailureTracker,
) *MCPRoute {
	return &MCPRoute{
		handler:  handler,
		tokens:   tokens,
		emails:   emails,
		failures: failures,
	}
}

func (r *MCPRoute) RegisterRouter(router gin.IRouter) {
	group := router.Group("/mcp", middlewares.MCPAuth(r.tokens, r.emails, r.failures))
	{
		group.POST("", r.handler.Handle)
		group.GET("", r.handler.Stream)
	}
}
