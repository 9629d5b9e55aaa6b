package adminhandler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"mcpbox/internal/domain/activity"
	"mcpbox/internal/domain/secret"
	"mcpbox/internal/infrastructure/logger"
	"mcpbox/internal/interfaces/httpserver/responses"
)

// SecretPusher is the slice of the registrar that refreshes a running
// server's sandbox secret environment.
type SecretPusher interface {
	PushSecrets(ctx context.Context, serverID string) error
}

// SecretAdminHandler exposes server secret management. Values enter the
// system exclusively through SetValue here; every other surface, including
// the management tools, only ever declares placeholder keys.
type SecretAdminHandler struct {
	secrets  *secret.Service
	pusher   SecretPusher
	activity *activity.Logger
}

func NewSecretAdminHandler(secrets *secret.Service, pusher SecretPusher, activityLogger *activity.Logger) *SecretAdminHandler {
	return &SecretAdminHandler{secrets: secrets, pusher: pusher, activity: activityLogger}
}

// pushSecrets refreshes the secret environment of a running server after a
// value mutation. The stored value is durable either way, so a sandbox
// failure here is logged rather than surfaced.
func (h *SecretAdminHandler) pushSecrets(c *gin.Context, serverID string) {
	if err := h.pusher.PushSecrets(c.Request.Context(), serverID); err != nil {
		log := logger.GetLogger()
		log.Warn().Err(err).
			Str("server_id", serverID).
			Msg("failed to push updated secrets to running server")
	}
}

type createSecretRequest struct {
	KeyName     string `json:"key_name" binding:"required"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

type setSecretValueRequest struct {
	Value string `json:"value" binding:"required"`
}

func infoFor(sec *secret.ServerSecret) *secret.Info {
	return &secret.Info{
		ID:          sec.ID,
		ServerID:    sec.ServerID,
		KeyName:     sec.KeyName,
		Description: sec.Description,
		HasValue:    sec.HasValue(),
		CreatedAt:   sec.CreatedAt,
		UpdatedAt:   sec.UpdatedAt,
	}
}

// List handles GET /v1/admin/servers/:id/secrets. Only key metadata is
// returned; plaintext never leaves the domain layer.
func (h *SecretAdminHandler) List(c *gin.Context) {
	infos, err := h.secrets.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		responses.HandleError(c, err, "failed to list secrets")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": infos, "total": len(infos)})
}

// Create handles POST /v1/admin/servers/:id/secrets. Value may be empty to
// declare a placeholder.
func (h *SecretAdminHandler) Create(c *gin.Context) {
	var req createSecretRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleValidationError(c, err)
		return
	}

	serverID := c.Param("id")
	sec, err := h.secrets.Create(c.Request.Context(), serverID, req.KeyName, req.Value, req.Description)
	if err != nil {
		responses.HandleError(c, err, "failed to create secret")
		return
	}

	h.activity.LogAudit("Secret key created: "+sec.KeyName, map[string]any{
		"server_id": serverID, "secret_id": sec.ID, "has_value": sec.HasValue(),
	})
	if sec.HasValue() {
		h.pushSecrets(c, serverID)
	}
	c.JSON(http.StatusCreated, infoFor(sec))
}

// SetValue handles PUT /v1/admin/secrets/:id/value.
func (h *SecretAdminHandler) SetValue(c *gin.Context) {
	var req setSecretValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleValidationError(c, err)
		return
	}

	sec, err := h.secrets.SetValue(c.Request.Context(), c.Param("id"), req.Value)
	if err != nil {
		responses.HandleError(c, err, "failed to set secret value")
		return
	}

	h.activity.LogAudit("Secret value set: "+sec.KeyName, map[string]any{
		"server_id": sec.ServerID, "secret_id": sec.ID,
	})
	h.pushSecrets(c, sec.ServerID)
	c.JSON(http.StatusOK, infoFor(sec))
}

// Delete handles DELETE /v1/admin/secrets/:id.
func (h *SecretAdminHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	sec, err := h.secrets.Get(ctx, c.Param("id"))
	if err != nil {
		responses.HandleError(c, err, "failed to get secret")
		return
	}
	if err := h.secrets.Delete(ctx, sec.ID); err != nil {
		responses.HandleError(c, err, "failed to delete secret")
		return
	}

	h.activity.LogAudit("Secret deleted: "+sec.KeyName, map[string]any{
		"server_id": sec.ServerID, "secret_id": sec.ID,
	})
	if sec.HasValue() {
		h.pushSecrets(c, sec.ServerID)
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "id": sec.ID, "key_name": sec.KeyName})
}
