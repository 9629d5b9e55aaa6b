package adminhandler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"mcpbox/internal/domain/activity"
	"mcpbox/internal/interfaces/httpserver/responses"
)

// ActivityAdminHandler exposes persisted and in-memory activity logs.
type ActivityAdminHandler struct {
	activity *activity.Logger
}

func NewActivityAdminHandler(activityLogger *activity.Logger) *ActivityAdminHandler {
	return &ActivityAdminHandler{activity: activityLogger}
}

// Logs handles GET /v1/admin/logs.
func (h *ActivityAdminHandler) Logs(c *gin.Context) {
	filter := activity.Filter{}
	if serverID := c.Query("server_id"); serverID != "" {
		filter.ServerID = &serverID
	}
	if requestID := c.Query("request_id"); requestID != "" {
		filter.RequestID = &requestID
	}
	for _, raw := range splitCSV(c.Query("log_types")) {
		filter.LogTypes = append(filter.LogTypes, activity.LogType(raw))
	}
	for _, raw := range splitCSV(c.Query("levels")) {
		filter.Levels = append(filter.Levels, activity.Level(raw))
	}
	var err error
	if filter.Since, err = parseTimeQuery(c, "since"); err != nil {
		responses.HandleValidationError(c, err)
		return
	}
	if filter.Until, err = parseTimeQuery(c, "until"); err != nil {
		responses.HandleValidationError(c, err)
		return
	}
	p := parsePagination(c)

	entries, total, err := h.activity.List(c.Request.Context(), filter, p)
	if err != nil {
		responses.HandleError(c, err, "failed to list activity logs")
		return
	}
	c.JSON(http.StatusOK, listResponse{Data: entries, Total: total, Limit: p.Limit, Offset: p.Offset})
}

// Recent handles GET /v1/admin/logs/recent. It serves from the in-memory
// ring, so entries not yet flushed to the database are visible.
func (h *ActivityAdminHandler) Recent(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	entries := h.activity.RecentLogs(limit)
	c.JSON(http.StatusOK, gin.H{"data": entries, "total": len(entries)})
}

// Stats handles GET /v1/admin/logs/stats.
func (h *ActivityAdminHandler) Stats(c *gin.Context) {
	q := activity.StatsQuery{}
	if serverID := c.Query("server_id"); serverID != "" {
		q.ServerID = &serverID
	}
	var err error
	if q.Since, err = parseTimeQuery(c, "since"); err != nil {
		responses.HandleValidationError(c, err)
		return
	}
	if q.Until, err = parseTimeQuery(c, "until"); err != nil {
		responses.HandleValidationError(c, err)
		return
	}

	stats, err := h.activity.Stats(c.Request.Context(), q)
	if err != nil {
		responses.HandleError(c, err, "failed to compute log stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

func parseTimeQuery(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
