// Package adminhandler implements the admin REST plane: the surface the
// management tools defer to for everything an LLM must not do on its own,
// most importantly setting secret values and reviewing approvals.
package adminhandler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"mcpbox/internal/domain/query"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// listResponse is the envelope for paginated collections.
type listResponse struct {
	Data   any   `json:"data"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

func parsePagination(c *gin.Context) *query.Pagination {
	var p query.Pagination
	_ = c.ShouldBindQuery(&p)
	p.Normalize(defaultPageLimit, maxPageLimit)
	return &p
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
