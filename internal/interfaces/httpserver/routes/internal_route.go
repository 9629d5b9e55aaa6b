package routes

import (
	"github.com/gin-gonic/gin"

	"mcpbox/internal/config"
	"mcpbox/internal/interfaces/httpserver/handlers/internalhandler"
	"mcpbox/internal/interfaces/httpserver/middlewares"
)

// InternalRoute mounts the machine-to-machine endpoints behind the shared
// internal bearer token.
type InternalRoute struct {
	handler *internalhandler.InternalHandler
	cfg     *config.Config
}

func NewInternalRoute(handler *internalhandler.InternalHandler, cfg *config.Config) *InternalRoute {
	return &InternalRoute{handler: handler, cfg: cfg}
}

func (r *InternalRoute) RegisterRouter(router gin.IRouter) {
	group := router.Group("/internal", middlewares.InternalAuth(r.cfg.InternalAPIToken))
	{
		group.GET("/active-tunnel-token", r.handler.ActiveTunnelToken)
		group.GET("/active-service-token", r.handler.ActiveServiceToken)
		group.GET("/worker-deploy-config", r.handler.WorkerDeployConfig)
	}
}
