package adminhandler

import (
	"html"
	"net/http"

	"github.com/gin-gonic/gin"

	"mcpbox/internal/domain/externalsource"
	"mcpbox/internal/interfaces/httpserver/responses"
	"mcpbox/internal/utils/platformerrors"
)

// callbackPage is shown in the admin's browser after the OAuth redirect
// lands. The token exchange has already happened by the time it renders.
const callbackPage = `<!DOCTYPE html>
<html>
<head><title>MCPbox</title></head>
<body>
<p>Authorization complete for <strong>%s</strong>. You can close this window.</p>
</body>
</html>`

// OAuthAdminHandler drives the browser leg of external-source OAuth. Flow
// state lives in the OAuth manager; these endpoints only start flows and
// receive the provider redirect.
type OAuthAdminHandler struct {
	sources *externalsource.Service
}

func NewOAuthAdminHandler(sources *externalsource.Service) *OAuthAdminHandler {
	return &OAuthAdminHandler{sources: sources}
}

// Start handles POST /v1/admin/external-sources/:id/oauth/start.
func (h *OAuthAdminHandler) Start(c *gin.Context) {
	authURL, err := h.sources.StartOAuth(c.Request.Context(), c.Param("id"))
	if err != nil {
		responses.HandleError(c, err, "failed to start OAuth flow")
		return
	}
	c.JSON(http.StatusOK, gin.H{"authorization_url": authURL})
}

// Callback handles the public GET /oauth/callback. Providers redirect the
// admin's browser here; the response is a human-readable page, not JSON.
func (h *OAuthAdminHandler) Callback(c *gin.Context) {
	if errCode := c.Query("error"); errCode != "" {
		description := c.Query("error_description")
		if description == "" {
			description = errCode
		}
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "authorization denied: "+description, "admin-002")
		return
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "missing code or state parameter", "admin-003")
		return
	}

	source, err := h.sources.CompleteOAuth(c.Request.Context(), code, state)
	if err != nil {
		responses.HandleError(c, err, "failed to complete OAuth flow")
		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, callbackPage, html.EscapeString(source.Name))
}
