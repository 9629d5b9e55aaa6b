package adminhandler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mcpbox/internal/domain/runtime"
	"mcpbox/internal/domain/server"
	"mcpbox/internal/interfaces/httpserver/responses"
)

// ServerAdminHandler exposes server CRUD and runtime transitions.
type ServerAdminHandler struct {
	servers   *server.Service
	registrar *runtime.Registrar
}

func NewServerAdminHandler(servers *server.Service, registrar *runtime.Registrar) *ServerAdminHandler {
	return &ServerAdminHandler{servers: servers, registrar: registrar}
}

type createServerRequest struct {
	Name             string   `json:"name" binding:"required"`
	Description      string   `json:"description"`
	AllowedHosts     []string `json:"allowed_hosts"`
	DefaultTimeoutMS int      `json:"default_timeout_ms"`
}

type updateServerRequest struct {
	Name             *string   `json:"name"`
	Description      *string   `json:"description"`
	AllowedHosts     *[]string `json:"allowed_hosts"`
	DefaultTimeoutMS *int      `json:"default_timeout_ms"`
}

// List handles GET /v1/admin/servers.
func (h *ServerAdminHandler) List(c *gin.Context) {
	filter := server.Filter{}
	if status := c.Query("status"); status != "" {
		s := server.Status(status)
		filter.Status = &s
	}
	if search := c.Query("search"); search != "" {
		filter.Search = &search
	}
	p := parsePagination(c)

	servers, total, err := h.servers.List(c.Request.Context(), filter, p)
	if err != nil {
		responses.HandleError(c, err, "failed to list servers")
		return
	}
	c.JSON(http.StatusOK, listResponse{Data: servers, Total: total, Limit: p.Limit, Offset: p.Offset})
}

// Create handles POST /v1/admin/servers.
func (h *ServerAdminHandler) Create(c *gin.Context) {
	var req createServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleValidationError(c, err)
		return
	}

	srv, err := h.servers.Create(c.Request.Context(), req.Name, req.Description, req.AllowedHosts, req.DefaultTimeoutMS)
	if err != nil {
		responses.HandleError(c, err, "failed to create server")
		return
	}
	c.JSON(http.StatusCreated, srv)
}

// Get handles GET /v1/admin/servers/:id.
func (h *ServerAdminHandler) Get(c *gin.Context) {
	srv, err := h.servers.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		responses.HandleError(c, err, "failed to get server")
		return
	}
	c.JSON(http.StatusOK, srv)
}

// Update handles PATCH /v1/admin/servers/:id.
func (h *ServerAdminHandler) Update(c *gin.Context) {
	var req updateServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleValidationError(c, err)
		return
	}

	srv, err := h.servers.Update(c.Request.Context(), c.Param("id"), server.UpdateInput{
		Name:             req.Name,
		Description:      req.Description,
		AllowedHosts:     req.AllowedHosts,
		DefaultTimeoutMS: req.DefaultTimeoutMS,
	})
	if err != nil {
		responses.HandleError(c, err, "failed to update server")
		return
	}
	c.JSON(http.StatusOK, srv)
}

// Delete handles DELETE /v1/admin/servers/:id.
func (h *ServerAdminHandler) Delete(c *gin.Context) {
	srv, err := h.servers.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		responses.HandleError(c, err, "failed to delete server")
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "id": srv.ID, "name": srv.Name})
}

// Start handles POST /v1/admin/servers/:id/start.
func (h *ServerAdminHandler) Start(c *gin.Context) {
	result, err := h.registrar.StartServer(c.Request.Context(), c.Param("id"))
	if err != nil {
		responses.HandleError(c, err, "failed to start server")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"server":           result.Server,
		"tools_registered": result.ToolsRegistered,
	})
}

// Stop handles POST /v1/admin/servers/:id/stop.
func (h *ServerAdminHandler) Stop(c *gin.Context) {
	srv, err := h.registrar.StopServer(c.Request.Context(), c.Param("id"))
	if err != nil {
		responses.HandleError(c, err, "failed to stop server")
		return
	}
	c.JSON(http.StatusOK, srv)
}
