package internalhandler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpbox/internal/domain/settings"
	"mcpbox/internal/interfaces/httpserver/middlewares"
	"mcpbox/internal/utils/crypto"
)

const testInternalToken = "internal-test-token"

type fakeSettingsRepo struct {
	rows map[string]*settings.Setting
}

func newFakeSettingsRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{rows: make(map[string]*settings.Setting)}
}

func (r *fakeSettingsRepo) Get(_ context.Context, key string) (*settings.Setting, error) {
	if row, ok := r.rows[key]; ok {
		copied := *row
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeSettingsRepo) List(context.Context) ([]*settings.Setting, error) {
	out := make([]*settings.Setting, 0, len(r.rows))
	for _, row := range r.rows {
		copied := *row
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeSettingsRepo) Upsert(_ context.Context, setting *settings.Setting) error {
	copied := *setting
	r.rows[setting.Key] = &copied
	return nil
}

func (r *fakeSettingsRepo) Delete(_ context.Context, key string) error {
	delete(r.rows, key)
	return nil
}

type internalRig struct {
	engine  *gin.Engine
	service *settings.Service
	repo    *fakeSettingsRepo
}

func newInternalRig(t *testing.T) *internalRig {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cipher, err := crypto.New("internalhandler-test-key")
	require.NoError(t, err)
	repo := newFakeSettingsRepo()
	service := settings.NewService(repo, cipher, nil, nil)
	handler := NewInternalHandler(service)

	engine := gin.New()
	group := engine.Group("/internal", middlewares.InternalAuth(testInternalToken))
	group.GET("/active-tunnel-token", handler.ActiveTunnelToken)
	group.GET("/active-service-token", handler.ActiveServiceToken)
	group.GET("/worker-deploy-config", handler.WorkerDeployConfig)

	return &internalRig{engine: engine, service: service, repo: repo}
}

func (rig *internalRig) get(path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	rig.engine.ServeHTTP(rec, req)
	return rec
}

func TestRequiresBearerToken(t *testing.T) {
	rig := newInternalRig(t)

	rec := rig.get("/internal/active-tunnel-token", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = rig.get("/internal/active-tunnel-token", "wrong-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEmptyConfiguredTokenDisablesSurface(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/internal/ping", middlewares.InternalAuth(""), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/internal/ping", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestActiveTunnelToken(t *testing.T) {
	rig := newInternalRig(t)

	rec := rig.get("/internal/active-tunnel-token", testInternalToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err := rig.service.Put(context.Background(), settings.KeyTunnelToken, "tunnel-plain-123")
	require.NoError(t, err)
	require.True(t, rig.repo.rows[settings.KeyTunnelToken].Encrypted)
	require.NotContains(t, rig.repo.rows[settings.KeyTunnelToken].Value, "tunnel-plain-123")

	rec = rig.get("/internal/active-tunnel-token", testInternalToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"token":"tunnel-plain-123"}`, rec.Body.String())
}

func TestActiveServiceToken(t *testing.T) {
	rig := newInternalRig(t)

	_, err := rig.service.Put(context.Background(), settings.KeyServiceToken, "svc-token-456")
	require.NoError(t, err)

	rec := rig.get("/internal/active-service-token", testInternalToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"token":"svc-token-456"}`, rec.Body.String())
}

func TestWorkerDeployConfig(t *testing.T) {
	rig := newInternalRig(t)

	rec := rig.get("/internal/worker-deploy-config", testInternalToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	configJSON := `{"account_id":"abc","worker_name":"mcpbox-edge"}`
	_, err := rig.service.Put(context.Background(), settings.KeyWorkerDeployConfig, configJSON)
	require.NoError(t, err)

	rec = rig.get("/internal/worker-deploy-config", testInternalToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, configJSON, rec.Body.String())
}

func TestDecryptFailureStaysTerse(t *testing.T) {
	rig := newInternalRig(t)

	garbage := "bm90LXJlYWwtY2lwaGVydGV4dA=="
	rig.repo.rows[settings.KeyTunnelToken] = &settings.Setting{
		Key:       settings.KeyTunnelToken,
		Value:     garbage,
		Encrypted: true,
	}

	rec := rig.get("/internal/active-tunnel-token", testInternalToken)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), garbage)
}
