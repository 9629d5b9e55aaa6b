package adminhandler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mcpbox/internal/domain/execlog"
	"mcpbox/internal/domain/tool"
	"mcpbox/internal/interfaces/httpserver/responses"
)

// ToolAdminHandler exposes tool CRUD, version history, and execution logs.
type ToolAdminHandler struct {
	tools    *tool.Service
	execlogs *execlog.Service
}

func NewToolAdminHandler(tools *tool.Service, execlogs *execlog.Service) *ToolAdminHandler {
	return &ToolAdminHandler{tools: tools, execlogs: execlogs}
}

type updateToolRequest struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Enabled     *bool           `json:"enabled"`
	TimeoutMS   *int            `json:"timeout_ms"`
	PythonCode  *string         `json:"python_code"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type rollbackRequest struct {
	VersionNumber int `json:"version_number" binding:"required,min=1"`
}

// ListByServer handles GET /v1/admin/servers/:id/tools.
func (h *ToolAdminHandler) ListByServer(c *gin.Context) {
	serverID := c.Param("id")
	filter := tool.Filter{ServerID: &serverID}
	if status := c.Query("approval_status"); status != "" {
		s := tool.ApprovalStatus(status)
		filter.ApprovalStatus = &s
	}
	filter.Enabled = parseBoolQuery(c, "enabled")
	p := parsePagination(c)

	tools, total, err := h.tools.List(c.Request.Context(), filter, p)
	if err != nil {
		responses.HandleError(c, err, "failed to list tools")
		return
	}
	c.JSON(http.StatusOK, listResponse{Data: tools, Total: total, Limit: p.Limit, Offset: p.Offset})
}

// Get handles GET /v1/admin/tools/:id.
func (h *ToolAdminHandler) Get(c *gin.Context) {
	t, err := h.tools.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		responses.HandleError(c, err, "failed to get tool")
		return
	}
	c.JSON(http.StatusOK, t)
}

// Update handles PATCH /v1/admin/tools/:id. Admin edits count as manual
// changes in the version history.
func (h *ToolAdminHandler) Update(c *gin.Context) {
	var req updateToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleValidationError(c, err)
		return
	}

	t, err := h.tools.Update(c.Request.Context(), c.Param("id"), tool.UpdateInput{
		Name:         req.Name,
		Description:  req.Description,
		Enabled:      req.Enabled,
		TimeoutMS:    req.TimeoutMS,
		PythonCode:   req.PythonCode,
		InputSchema:  req.InputSchema,
		ChangeSource: tool.ChangeSourceManual,
	})
	if err != nil {
		responses.HandleError(c, err, "failed to update tool")
		return
	}
	c.JSON(http.StatusOK, t)
}

// Delete handles DELETE /v1/admin/tools/:id.
func (h *ToolAdminHandler) Delete(c *gin.Context) {
	t, err := h.tools.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		responses.HandleError(c, err, "failed to delete tool")
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "id": t.ID, "name": t.Name})
}

// Status handles GET /v1/admin/tools/:id/status.
func (h *ToolAdminHandler) Status(c *gin.Context) {
	view, err := h.tools.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		responses.HandleError(c, err, "failed to get tool status")
		return
	}
	c.JSON(http.StatusOK, view)
}

// Versions handles GET /v1/admin/tools/:id/versions.
func (h *ToolAdminHandler) Versions(c *gin.Context) {
	versions, err := h.tools.ListVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		responses.HandleError(c, err, "failed to list tool versions")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": versions, "total": len(versions)})
}

// Rollback handles POST /v1/admin/tools/:id/rollback.
func (h *ToolAdminHandler) Rollback(c *gin.Context) {
	var req rollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleValidationError(c, err)
		return
	}

	t, err := h.tools.Rollback(c.Request.Context(), c.Param("id"), req.VersionNumber)
	if err != nil {
		responses.HandleError(c, err, "failed to roll back tool")
		return
	}
	c.JSON(http.StatusOK, t)
}

// Executions handles GET /v1/admin/tools/:id/executions.
func (h *ToolAdminHandler) Executions(c *gin.Context) {
	toolID := c.Param("id")
	filter := execlog.Filter{
		ToolID:  &toolID,
		Success: parseBoolQuery(c, "success"),
		IsTest:  parseBoolQuery(c, "is_test"),
	}
	p := parsePagination(c)

	records, total, err := h.execlogs.List(c.Request.Context(), filter, p)
	if err != nil {
		responses.HandleError(c, err, "failed to list executions")
		return
	}
	c.JSON(http.StatusOK, listResponse{Data: records, Total: total, Limit: p.Limit, Offset: p.Offset})
}

// parseBoolQuery reads an optional boolean query parameter.
func parseBoolQuery(c *gin.Context, name string) *bool {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &b
}
