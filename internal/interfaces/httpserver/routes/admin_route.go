package routes

import (
	"github.com/gin-gonic/gin"

	"mcpbox/internal/interfaces/httpserver/handlers/adminhandler"
	"mcpbox/internal/interfaces/httpserver/handlers/streamhandler"
)

// AdminRoute aggregates the admin REST plane under /v1/admin, plus the
// public OAuth callback that providers redirect browsers to.
type AdminRoute struct {
	servers   *adminhandler.ServerAdminHandler
	tools     *adminhandler.ToolAdminHandler
	approvals *adminhandler.ApprovalAdminHandler
	secrets   *adminhandler.SecretAdminHandler
	activity  *adminhandler.ActivityAdminHandler
	settings  *adminhandler.SettingsAdminHandler
	oauth     *adminhandler.OAuthAdminHandler
	stream    *streamhandler.StreamHandler
}

func NewAdminRoute(
	servers *adminhandler.ServerAdminHandler,
	tools *adminhandler.ToolAdminHandler,
	approvals *adminhandler.ApprovalAdminHandler,
	secrets *adminhandler.SecretAdminHandler,
	activity *adminhandler.ActivityAdminHandler,
	settings *adminhandler.SettingsAdminHandler,
	oauth *adminhandler.OAuthAdminHandler,
	stream *streamhandler.StreamHandler,
) *AdminRoute {
	return &AdminRoute{
		servers:   servers,
		tools:     tools,
		approvals: approvals,
		secrets:   secrets,
		activity:  activity,
		settings:  settings,
		oauth:     oauth,
		stream:    stream,
	}
}

func (r *AdminRoute) RegisterRouter(router gin.IRouter) {
	admin := router.Group("/v1/admin")
	{
		admin.GET("/servers", r.servers.List)
		admin.POST("/servers", r.servers.Create)
		admin.GET("/servers/:id", r.servers.Get)
		admin.PATCH("/servers/:id", r.servers.Update)
		admin.DELETE("/servers/:id", r.servers.Delete)
		admin.POST("/servers/:id/start", r.servers.Start)
		admin.POST("/servers/:id/stop", r.servers.Stop)

		admin.GET("/servers/:id/tools", r.tools.ListByServer)
		admin.GET("/tools/:id", r.tools.Get)
		admin.PATCH("/tools/:id", r.tools.Update)
		admin.DELETE("/tools/:id", r.tools.Delete)
		admin.GET("/tools/:id/status", r.tools.Status)
		admin.GET("/tools/:id/versions", r.tools.Versions)
		admin.POST("/tools/:id/rollback", r.tools.Rollback)
		admin.GET("/tools/:id/executions", r.tools.Executions)

		admin.POST("/tools/:id/approve", r.approvals.ApproveTool)
		admin.POST("/tools/:id/reject", r.approvals.RejectTool)
		admin.POST("/tools/:id/revoke", r.approvals.RevokeTool)
		admin.GET("/approvals/pending", r.approvals.Pending)
		admin.GET("/dashboard", r.approvals.Dashboard)
		admin.GET("/module-requests", r.approvals.ListModuleRequests)
		admin.POST("/module-requests/:id/approve", r.approvals.ApproveModuleRequest)
		admin.POST("/module-requests/:id/reject", r.approvals.RejectModuleRequest)
		admin.POST("/module-requests/:id/revoke", r.approvals.RevokeModuleApproval)
		admin.GET("/network-requests", r.approvals.ListNetworkRequests)
		admin.POST("/network-requests/:id/approve", r.approvals.ApproveNetworkRequest)
		admin.POST("/network-requests/:id/reject", r.approvals.RejectNetworkRequest)
		admin.POST("/network-requests/:id/revoke", r.approvals.RevokeNetworkApproval)

		admin.GET("/servers/:id/secrets", r.secrets.List)
		admin.POST("/servers/:id/secrets", r.secrets.Create)
		admin.PUT("/secrets/:id/value", r.secrets.SetValue)
		admin.DELETE("/secrets/:id", r.secrets.Delete)

		admin.GET("/logs", r.activity.Logs)
		admin.GET("/logs/recent", r.activity.Recent)
		admin.GET("/logs/stats", r.activity.Stats)

		admin.GET("/settings", r.settings.List)
		admin.GET("/settings/:key", r.settings.Get)
		admin.PUT("/settings/:key", r.settings.Put)
		admin.DELETE("/settings/:key", r.settings.Delete)

		admin.POST("/external-sources/:id/oauth/start", r.oauth.Start)

		admin.GET("/stream", r.stream.Stream)
		admin.POST("/stream/:id/filter", r.stream.UpdateFilter)
	}

	router.GET("/oauth/callback", r.oauth.Callback)
}
