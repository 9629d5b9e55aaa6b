package adminhandler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mcpbox/internal/domain/approval"
	"mcpbox/internal/domain/tool"
	"mcpbox/internal/interfaces/httpserver/responses"
)

// ApprovalAdminHandler exposes the review surface: tool publish decisions,
// module and network access requests, and the workload dashboard.
type ApprovalAdminHandler struct {
	tools     *tool.Service
	approvals *approval.Service
}

func NewApprovalAdminHandler(tools *tool.Service, approvals *approval.Service) *ApprovalAdminHandler {
	return &ApprovalAdminHandler{tools: tools, approvals: approvals}
}

// reviewRequest carries the reviewer identity and optional notes. The admin
// plane performs no authentication, so the identity is self-reported and
// defaults to "admin".
type reviewRequest struct {
	ReviewedBy string `json:"reviewed_by"`
	Notes      string `json:"notes"`
}

type rejectToolRequest struct {
	ReviewedBy string `json:"reviewed_by"`
	Reason     string `json:"reason" binding:"required"`
}

func (r *reviewRequest) reviewer() string {
	if r.ReviewedBy == "" {
		return "admin"
	}
	return r.ReviewedBy
}

func bindReview(c *gin.Context) reviewRequest {
	var req reviewRequest
	// An empty body means an anonymous review with no notes.
	_ = c.ShouldBindJSON(&req)
	return req
}

// ApproveTool handles POST /v1/admin/tools/:id/approve.
func (h *ApprovalAdminHandler) ApproveTool(c *gin.Context) {
	req := bindReview(c)
	t, err := h.tools.Approve(c.Request.Context(), c.Param("id"), req.reviewer())
	if err != nil {
		responses.HandleError(c, err, "failed to approve tool")
		return
	}
	c.JSON(http.StatusOK, t)
}

// RejectTool handles POST /v1/admin/tools/:id/reject.
func (h *ApprovalAdminHandler) RejectTool(c *gin.Context) {
	var req rejectToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleValidationError(c, err)
		return
	}
	if req.ReviewedBy == "" {
		req.ReviewedBy = "admin"
	}

	t, err := h.tools.Reject(c.Request.Context(), c.Param("id"), req.ReviewedBy, req.Reason)
	if err != nil {
		responses.HandleError(c, err, "failed to reject tool")
		return
	}
	c.JSON(http.StatusOK, t)
}

// RevokeTool handles POST /v1/admin/tools/:id/revoke.
func (h *ApprovalAdminHandler) RevokeTool(c *gin.Context) {
	req := bindReview(c)
	t, err := h.tools.Revoke(c.Request.Context(), c.Param("id"), req.reviewer())
	if err != nil {
		responses.HandleError(c, err, "failed to revoke tool approval")
		return
	}
	c.JSON(http.StatusOK, t)
}

// Pending handles GET /v1/admin/approvals/pending.
func (h *ApprovalAdminHandler) Pending(c *gin.Context) {
	set, err := h.approvals.PendingRequests(c.Request.Context())
	if err != nil {
		responses.HandleError(c, err, "failed to load pending approvals")
		return
	}
	c.JSON(http.StatusOK, set)
}

// Dashboard handles GET /v1/admin/dashboard.
func (h *ApprovalAdminHandler) Dashboard(c *gin.Context) {
	stats, err := h.approvals.Dashboard(c.Request.Context())
	if err != nil {
		responses.HandleError(c, err, "failed to load dashboard")
		return
	}
	c.JSON(http.StatusOK, stats)
}

func requestFilterFromQuery(c *gin.Context) approval.RequestFilter {
	filter := approval.RequestFilter{}
	if toolID := c.Query("tool_id"); toolID != "" {
		filter.ToolID = &toolID
	}
	if status := c.Query("status"); status != "" {
		s := approval.RequestStatus(status)
		filter.Status = &s
	}
	return filter
}

// ListModuleRequests handles GET /v1/admin/module-requests.
func (h *ApprovalAdminHandler) ListModuleRequests(c *gin.Context) {
	requests, err := h.approvals.ListModuleRequests(c.Request.Context(), requestFilterFromQuery(c))
	if err != nil {
		responses.HandleError(c, err, "failed to list module requests")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": requests, "total": len(requests)})
}

// ApproveModuleRequest handles POST /v1/admin/module-requests/:id/approve.
func (h *ApprovalAdminHandler) ApproveModuleRequest(c *gin.Context) {
	req := bindReview(c)
	request, err := h.approvals.ApproveModuleRequest(c.Request.Context(), c.Param("id"), req.reviewer(), req.Notes)
	if err != nil {
		responses.HandleError(c, err, "failed to approve module request")
		return
	}
	c.JSON(http.StatusOK, request)
}

// RejectModuleRequest handles POST /v1/admin/module-requests/:id/reject.
func (h *ApprovalAdminHandler) RejectModuleRequest(c *gin.Context) {
	req := bindReview(c)
	request, err := h.approvals.RejectModuleRequest(c.Request.Context(), c.Param("id"), req.reviewer(), req.Notes)
	if err != nil {
		responses.HandleError(c, err, "failed to reject module request")
		return
	}
	c.JSON(http.StatusOK, request)
}

// RevokeModuleApproval handles POST /v1/admin/module-requests/:id/revoke.
func (h *ApprovalAdminHandler) RevokeModuleApproval(c *gin.Context) {
	req := bindReview(c)
	request, err := h.approvals.RevokeModuleApproval(c.Request.Context(), c.Param("id"), req.reviewer())
	if err != nil {
		responses.HandleError(c, err, "failed to revoke module approval")
		return
	}
	c.JSON(http.StatusOK, request)
}

// ListNetworkRequests handles GET /v1/admin/network-requests.
func (h *ApprovalAdminHandler) ListNetworkRequests(c *gin.Context) {
	requests, err := h.approvals.ListNetworkRequests(c.Request.Context(), requestFilterFromQuery(c))
	if err != nil {
		responses.HandleError(c, err, "failed to list network requests")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": requests, "total": len(requests)})
}

// ApproveNetworkRequest handles POST /v1/admin/network-requests/:id/approve.
func (h *ApprovalAdminHandler) ApproveNetworkRequest(c *gin.Context) {
	req := bindReview(c)
	request, err := h.approvals.ApproveNetworkRequest(c.Request.Context(), c.Param("id"), req.reviewer(), req.Notes)
	if err != nil {
		responses.HandleError(c, err, "failed to approve network request")
		return
	}
	c.JSON(http.StatusOK, request)
}

// RejectNetworkRequest handles POST /v1/admin/network-requests/:id/reject.
func (h *ApprovalAdminHandler) RejectNetworkRequest(c *gin.Context) {
	req := bindReview(c)
	request, err := h.approvals.RejectNetworkRequest(c.Request.Context(), c.Param("id"), req.reviewer(), req.Notes)
	if err != nil {
		responses.HandleError(c, err, "failed to reject network request")
		return
	}
	c.JSON(http.StatusOK, request)
}

// RevokeNetworkApproval handles POST /v1/admin/network-requests/:id/revoke.
func (h *ApprovalAdminHandler) RevokeNetworkApproval(c *gin.Context) {
	req := bindReview(c)
	request, err := h.approvals.RevokeNetworkApproval(c.Request.Context(), c.Param("id"), req.reviewer())
	if err != nil {
		responses.HandleError(c, err, "failed to revoke network approval")
		return
	}
	c.JSON(http.StatusOK, request)
}
