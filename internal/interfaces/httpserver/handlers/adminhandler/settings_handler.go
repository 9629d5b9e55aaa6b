package adminhandler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mcpbox/internal/domain/activity"
	"mcpbox/internal/domain/settings"
	"mcpbox/internal/interfaces/httpserver/responses"
	"mcpbox/internal/utils/platformerrors"
)

// SettingsAdminHandler exposes the settings key/value surface. Encrypted
// keys are write-only: reads report presence, never the value or its
// ciphertext.
type SettingsAdminHandler struct {
	settings *settings.Service
	activity *activity.Logger
}

func NewSettingsAdminHandler(settingsService *settings.Service, activityLogger *activity.Logger) *SettingsAdminHandler {
	return &SettingsAdminHandler{settings: settingsService, activity: activityLogger}
}

type putSettingRequest struct {
	Value string `json:"value"`
}

// settingView is the read shape of one setting row.
type settingView struct {
	Key         string    `json:"key"`
	Value       string    `json:"value,omitempty"`
	Encrypted   bool      `json:"encrypted"`
	ValueSet    bool      `json:"value_set"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func viewFor(s *settings.Setting) settingView {
	view := settingView{
		Key:         s.Key,
		Encrypted:   s.Encrypted,
		ValueSet:    s.Value != "",
		Description: s.Description,
		UpdatedAt:   s.UpdatedAt,
	}
	if !s.Encrypted {
		view.Value = s.Value
	}
	return view
}

// List handles GET /v1/admin/settings.
func (h *SettingsAdminHandler) List(c *gin.Context) {
	rows, err := h.settings.List(c.Request.Context())
	if err != nil {
		responses.HandleError(c, err, "failed to list settings")
		return
	}
	views := make([]settingView, 0, len(rows))
	for _, row := range rows {
		views = append(views, viewFor(row))
	}
	c.JSON(http.StatusOK, gin.H{"data": views, "total": len(views)})
}

// Get handles GET /v1/admin/settings/:key.
func (h *SettingsAdminHandler) Get(c *gin.Context) {
	key := c.Param("key")
	setting, err := h.settings.Get(c.Request.Context(), key)
	if err != nil {
		responses.HandleError(c, err, "failed to get setting")
		return
	}
	if setting == nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeNotFound, "setting not found", "admin-001")
		return
	}
	c.JSON(http.StatusOK, viewFor(setting))
}

// Put handles PUT /v1/admin/settings/:key. Writing service_token or the
// email policy keys invalidates the corresponding policy cache through the
// settings service.
func (h *SettingsAdminHandler) Put(c *gin.Context) {
	var req putSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleValidationError(c, err)
		return
	}

	key := c.Param("key")
	setting, err := h.settings.Put(c.Request.Context(), key, req.Value)
	if err != nil {
		responses.HandleError(c, err, "failed to store setting")
		return
	}

	h.activity.LogAudit("Setting updated: "+key, map[string]any{
		"key": key, "encrypted": setting.Encrypted,
	})
	c.JSON(http.StatusOK, viewFor(setting))
}

// Delete handles DELETE /v1/admin/settings/:key.
func (h *SettingsAdminHandler) Delete(c *gin.Context) {
	key := c.Param("key")
	if err := h.settings.Delete(c.Request.Context(), key); err != nil {
		responses.HandleError(c, err, "failed to delete setting")
		return
	}

	h.activity.LogAudit("Setting deleted: "+key, map[string]any{"key": key})
	c.JSON(http.StatusOK, gin.H{"deleted": true, "key": key})
}
