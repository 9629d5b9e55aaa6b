package httpserver

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mcpbox/internal/config"
	"mcpbox/internal/infrastructure/logger"
	"mcpbox/internal/interfaces/httpserver/middlewares"
	"mcpbox/internal/interfaces/httpserver/routes"
)

// HTTPServer owns the gin engine and every mounted surface: the MCP
// gateway, the admin REST plane, the internal endpoints, and the
// operational endpoints (health, readiness, metrics).
type HTTPServer struct {
	engine        *gin.Engine
	mcpRoute      *routes.MCPRoute
	adminRoute    *routes.AdminRoute
	internalRoute *routes.InternalRoute
	config        *config.Config
}

func NewHttpServer(
	mcpRoute *routes.MCPRoute,
	adminRoute *routes.AdminRoute,
	internalRoute *routes.InternalRoute,
	cfg *config.Config,
) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)
	server := &HTTPServer{
		engine:        gin.New(),
		mcpRoute:      mcpRoute,
		adminRoute:    adminRoute,
		internalRoute: internalRoute,
		config:        cfg,
	}

	server.engine.Use(middlewares.RequestID())
	server.engine.Use(middlewares.TracingMiddleware(cfg.ServiceName))
	server.engine.Use(middlewares.LoggingMiddleware(logger.GetLogger()))
	server.engine.Use(middlewares.CORSMiddleware(cfg.CORSAllowedOrigins))

	server.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	server.engine.GET("/readyz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	server.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return server
}

// Run mounts all routes and blocks serving HTTP traffic.
func (s *HTTPServer) Run() error {
	root := s.engine.Group("/")

	s.mcpRoute.RegisterRouter(root)
	s.adminRoute.RegisterRouter(root)
	s.internalRoute.RegisterRouter(root)

	if err := s.engine.Run(fmt.Sprintf(":%d", s.config.HTTPPort)); err != nil {
		return err
	}
	return nil
}
