// Package internalhandler serves machine-to-machine endpoints for sibling
// services (the tunnel edge and worker deployer). They return stored
// provisioning outputs and are guarded by a shared bearer token.
package internalhandler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"mcpbox/internal/domain/settings"
	"mcpbox/internal/interfaces/httpserver/responses"
	"mcpbox/internal/utils/platformerrors"
)

type InternalHandler struct {
	settings *settings.Service
}

func NewInternalHandler(settingsService *settings.Service) *InternalHandler {
	return &InternalHandler{settings: settingsService}
}

// ActiveTunnelToken serves GET /internal/active-tunnel-token.
func (h *InternalHandler) ActiveTunnelToken(c *gin.Context) {
	token, err := h.settings.DecryptedValue(c.Request.Context(), settings.KeyTunnelToken)
	if err != nil {
		responses.HandleError(c, err, "failed to read tunnel token")
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// ActiveServiceToken serves GET /internal/active-service-token.
func (h *InternalHandler) ActiveServiceToken(c *gin.Context) {
	token, err := h.settings.DecryptedValue(c.Request.Context(), settings.KeyServiceToken)
	if err != nil {
		responses.HandleError(c, err, "failed to read service token")
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// WorkerDeployConfig serves GET /internal/worker-deploy-config. The setting
// value is a JSON document written by the provisioning wizard; it is served
// verbatim.
func (h *InternalHandler) WorkerDeployConfig(c *gin.Context) {
	value, err := h.settings.DecryptedValue(c.Request.Context(), settings.KeyWorkerDeployConfig)
	if err != nil {
		responses.HandleError(c, err, "failed to read worker deploy config")
		return
	}
	if !json.Valid([]byte(value)) {
		responses.HandleNewError(c, platformerrors.ErrorTypeInternal, "stored deploy config is not valid JSON", "internal-001")
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(value))
}
