package adminhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpbox/internal/domain/activity"
	"mcpbox/internal/domain/settings"
	"mcpbox/internal/utils/crypto"
)

type fakeSettingsRepo struct {
	rows map[string]*settings.Setting
}

func newFakeSettingsRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{rows: make(map[string]*settings.Setting)}
}

func (r *fakeSettingsRepo) Get(_ context.Context, key string) (*settings.Setting, error) {
	if row, ok := r.rows[key]; ok {
		cp := *row
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeSettingsRepo) List(context.Context) ([]*settings.Setting, error) {
	out := make([]*settings.Setting, 0, len(r.rows))
	for _, row := range r.rows {
		cp := *row
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeSettingsRepo) Upsert(_ context.Context, setting *settings.Setting) error {
	cp := *setting
	cp.UpdatedAt = time.Now().UTC()
	r.rows[setting.Key] = &cp
	return nil
}

func (r *fakeSettingsRepo) Delete(_ context.Context, key string) error {
	delete(r.rows, key)
	return nil
}

func newSettingsRig(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cipher, err := crypto.New("adminhandler-settings-test-key")
	require.NoError(t, err)
	service := settings.NewService(newFakeSettingsRepo(), cipher, nil, nil)
	activityLogger := activity.NewLogger(fakeActivityRepo{}, nil, time.Hour, 100)
	handler := NewSettingsAdminHandler(service, activityLogger)

	engine := gin.New()
	engine.GET("/v1/admin/settings", handler.List)
	engine.GET("/v1/admin/settings/:key", handler.Get)
	engine.PUT("/v1/admin/settings/:key", handler.Put)
	engine.DELETE("/v1/admin/settings/:key", handler.Delete)
	return engine
}

func doJSON(engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestSettingsPlaintextRoundTrip(t *testing.T) {
	engine := newSettingsRig(t)

	rec := doJSON(engine, http.MethodPut, "/v1/admin/settings/tool_approval_mode", `{"value":"auto_approve"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(engine, http.MethodGet, "/v1/admin/settings/tool_approval_mode", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var view struct {
		Key      string `json:"key"`
		Value    string `json:"value"`
		ValueSet bool   `json:"value_set"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "auto_approve", view.Value)
	assert.True(t, view.ValueSet)
}

func TestSettingsEncryptedKeysAreWriteOnly(t *testing.T) {
	engine := newSettingsRig(t)

	rec := doJSON(engine, http.MethodPut, "/v1/admin/settings/service_token", `{"value":"super-secret-token"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "super-secret-token")

	rec = doJSON(engine, http.MethodGet, "/v1/admin/settings/service_token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "super-secret-token")

	var view struct {
		Key       string `json:"key"`
		Value     string `json:"value"`
		Encrypted bool   `json:"encrypted"`
		ValueSet  bool   `json:"value_set"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.True(t, view.Encrypted)
	assert.True(t, view.ValueSet)
	assert.Empty(t, view.Value)

	rec = doJSON(engine, http.MethodGet, "/v1/admin/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "super-secret-token")
}

func TestSettingsUnknownKeyReturns404(t *testing.T) {
	engine := newSettingsRig(t)

	rec := doJSON(engine, http.MethodGet, "/v1/admin/settings/never_written", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettingsValidationRejectsBadValues(t *testing.T) {
	engine := newSettingsRig(t)

	rec := doJSON(engine, http.MethodPut, "/v1/admin/settings/tool_approval_mode", `{"value":"whatever"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(engine, http.MethodPut, "/v1/admin/settings/log_retention_days", `{"value":"-4"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettingsDelete(t *testing.T) {
	engine := newSettingsRig(t)

	doJSON(engine, http.MethodPut, "/v1/admin/settings/allowed_modules", `{"value":"[\"requests\"]"}`)
	rec := doJSON(engine, http.MethodDelete, "/v1/admin/settings/allowed_modules", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(engine, http.MethodGet, "/v1/admin/settings/allowed_modules", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
