package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpbox/internal/config"
	"mcpbox/internal/domain/activity"
	"mcpbox/internal/domain/externalsource"
	"mcpbox/internal/domain/notify"
	"mcpbox/internal/domain/query"
	"mcpbox/internal/domain/secret"
	"mcpbox/internal/domain/server"
	"mcpbox/internal/domain/settings"
	"mcpbox/internal/domain/tool"
	"mcpbox/internal/infrastructure/sandbox"
	"mcpbox/internal/utils/crypto"
	"mcpbox/internal/utils/platformerrors"
)

type fakeServerRepo struct {
	mu      sync.Mutex
	servers map[string]*server.Server
	updates int
}

func newFakeServerRepo() *fakeServerRepo {
	return &fakeServerRepo{servers: make(map[string]*server.Server)}
}

func (f *fakeServerRepo) Create(ctx context.Context, s *server.Server) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.servers[s.ID] = &cp
	return nil
}

func (f *fakeServerRepo) FindByID(ctx context.Context, id string) (*server.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.servers[id]
	if !ok {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "server not found", nil, "")
	}
	cp := *s
	return &cp, nil
}

func (f *fakeServerRepo) FindByName(ctx context.Context, name string) (*server.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.servers {
		if s.Name == name {
			cp := *s
			return &cp, nil
		}
	}
	return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "server not found", nil, "")
}

func (f *fakeServerRepo) FindByFilter(ctx context.Context, filter server.Filter, p *query.Pagination) ([]*server.Server, error) {
	return nil, nil
}

func (f *fakeServerRepo) Count(ctx context.Context, filter server.Filter) (int64, error) {
	return int64(len(f.servers)), nil
}

func (f *fakeServerRepo) Update(ctx context.Context, s *server.Server) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	cp := *s
	f.servers[s.ID] = &cp
	return nil
}

func (f *fakeServerRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.servers, id)
	return nil
}

func (f *fakeServerRepo) status(id string) server.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.servers[id].Status
}

type fakeToolRepo struct {
	mu    sync.Mutex
	tools []*tool.Tool
}

func (f *fakeToolRepo) Create(ctx context.Context, t *tool.Tool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.tools = append(f.tools, &cp)
	return nil
}

func (f *fakeToolRepo) FindByID(ctx context.Context, id string) (*tool.Tool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tools {
		if t.ID == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "tool not found", nil, "")
}

func (f *fakeToolRepo) FindByServerAndName(ctx context.Context, serverID, name string) (*tool.Tool, error) {
	return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "tool not found", nil, "")
}

func (f *fakeToolRepo) FindByFilter(ctx context.Context, filter tool.Filter, p *query.Pagination) ([]*tool.Tool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*tool.Tool
	for _, t := range f.tools {
		if filter.ServerID != nil && t.ServerID != *filter.ServerID {
			continue
		}
		if filter.Enabled != nil && t.Enabled != *filter.Enabled {
			continue
		}
		if filter.ApprovalStatus != nil && t.ApprovalStatus != *filter.ApprovalStatus {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeToolRepo) FindExposed(ctx context.Context) ([]*tool.ExposedTool, error) {
	return nil, nil
}

func (f *fakeToolRepo) Count(ctx context.Context, filter tool.Filter) (int64, error) {
	return 0, nil
}

func (f *fakeToolRepo) CountApprovedSince(ctx context.Context, since time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeToolRepo) CountRejectedSince(ctx context.Context, since time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeToolRepo) Update(ctx context.Context, t *tool.Tool) error { return nil }

func (f *fakeToolRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.tools {
		if t.ID == id {
			f.tools = append(f.tools[:i], f.tools[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeToolRepo) removeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tools = nil
}

type fakeSecretRepo struct {
	mu      sync.Mutex
	secrets map[string]*secret.ServerSecret
}

func newFakeSecretRepo() *fakeSecretRepo {
	return &fakeSecretRepo{secrets: make(map[string]*secret.ServerSecret)}
}

func (f *fakeSecretRepo) Create(ctx context.Context, s *secret.ServerSecret) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	cp := *s
	f.secrets[s.ID] = &cp
	return nil
}

func (f *fakeSecretRepo) FindByID(ctx context.Context, id string) (*secret.ServerSecret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.secrets[id]
	if !ok {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "secret not found", nil, "")
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSecretRepo) FindByServer(ctx context.Context, serverID string) ([]*secret.ServerSecret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*secret.ServerSecret
	for _, s := range f.secrets {
		if s.ServerID == serverID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeSecretRepo) FindByServerAndKey(ctx context.Context, serverID, keyName string) (*secret.ServerSecret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.secrets {
		if s.ServerID == serverID && s.KeyName == keyName {
			cp := *s
			return &cp, nil
		}
	}
	return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "secret not found", nil, "")
}

func (f *fakeSecretRepo) Update(ctx context.Context, s *secret.ServerSecret) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.secrets[s.ID] = &cp
	return nil
}

func (f *fakeSecretRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.secrets, id)
	return nil
}

type fakeSettingsRepo struct {
	mu       sync.Mutex
	settings map[string]*settings.Setting
}

func newFakeSettingsRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{settings: make(map[string]*settings.Setting)}
}

func (f *fakeSettingsRepo) Get(ctx context.Context, key string) (*settings.Setting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.settings[key]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSettingsRepo) List(ctx context.Context) ([]*settings.Setting, error) {
	return nil, nil
}

func (f *fakeSettingsRepo) Upsert(ctx context.Context, s *settings.Setting) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.settings[s.Key] = &cp
	return nil
}

func (f *fakeSettingsRepo) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.settings, key)
	return nil
}

type fakeSourceRepo struct {
	mu      sync.Mutex
	sources map[string]*externalsource.Source
}

func newFakeSourceRepo() *fakeSourceRepo {
	return &fakeSourceRepo{sources: make(map[string]*externalsource.Source)}
}

func (f *fakeSourceRepo) Create(ctx context.Context, s *externalsource.Source) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	cp := *s
	f.sources[s.ID] = &cp
	return nil
}

func (f *fakeSourceRepo) FindByID(ctx context.Context, id string) (*externalsource.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sources[id]
	if !ok {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "external source not found", nil, "")
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSourceRepo) FindByServer(ctx context.Context, serverID string) ([]*externalsource.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*externalsource.Source
	for _, s := range f.sources {
		if s.ServerID == serverID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeSourceRepo) FindByServerAndName(ctx context.Context, serverID, name string) (*externalsource.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sources {
		if s.ServerID == serverID && s.Name == name {
			cp := *s
			return &cp, nil
		}
	}
	return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "external source not found", nil, "")
}

func (f *fakeSourceRepo) Update(ctx context.Context, s *externalsource.Source) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.sources[s.ID] = &cp
	return nil
}

func (f *fakeSourceRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sources, id)
	return nil
}

type fakeSandboxGateway struct {
	mu            sync.Mutex
	registered    []sandbox.RegisterServerRequest
	unregistered  []string
	secretPushes  []map[string]string
	registerErr   error
	unregisterErr error
}

func (f *fakeSandboxGateway) RegisterServer(ctx context.Context, req sandbox.RegisterServerRequest) (*sandbox.RegisterServerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	f.registered = append(f.registered, req)
	return &sandbox.RegisterServerResult{Success: true, ToolsRegistered: len(req.Tools)}, nil
}

func (f *fakeSandboxGateway) UnregisterServer(ctx context.Context, serverID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unregisterErr != nil {
		return f.unregisterErr
	}
	f.unregistered = append(f.unregistered, serverID)
	return nil
}

func (f *fakeSandboxGateway) UpdateServerSecrets(ctx context.Context, serverID string, secrets map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.secretPushes = append(f.secretPushes, secrets)
	return nil
}

func (f *fakeSandboxGateway) lastRegistered(t *testing.T) sandbox.RegisterServerRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.registered)
	return f.registered[len(f.registered)-1]
}

type nullActivityRepo struct{}

func (nullActivityRepo) CreateBatch(ctx context.Context, entries []*activity.Entry) error {
	return nil
}

func (nullActivityRepo) FindByFilter(ctx context.Context, filter activity.Filter, p *query.Pagination) ([]*activity.Entry, error) {
	return nil, nil
}

func (nullActivityRepo) Count(ctx context.Context, filter activity.Filter) (int64, error) {
	return 0, nil
}

func (nullActivityRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (nullActivityRepo) Stats(ctx context.Context, q activity.StatsQuery) (*activity.Stats, error) {
	return &activity.Stats{}, nil
}

type registrarEnv struct {
	servers  *fakeServerRepo
	tools    *fakeToolRepo
	sources  *fakeSourceRepo
	gateway  *fakeSandboxGateway
	notifier *notify.ToolChangeNotifier
	reg      *Registrar
}

// newRegistrarEnv seeds one stopped server "weather" with an approved
// python tool, an approved passthrough tool bound to a bearer-auth source,
// a draft tool and a disabled tool, one secret and one allowed module.
func newRegistrarEnv(t *testing.T) *registrarEnv {
	t.Helper()

	cipher, err := crypto.New("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	serverRepo := newFakeServerRepo()
	toolRepo := &fakeToolRepo{}
	secretRepo := newFakeSecretRepo()
	settingsRepo := newFakeSettingsRepo()
	sourceRepo := newFakeSourceRepo()
	gateway := &fakeSandboxGateway{}
	notifier := notify.NewToolChangeNotifier()

	secretSvc := secret.NewService(secretRepo, cipher)
	settingsSvc := settings.NewService(settingsRepo, cipher, nil, nil)
	oauthMgr := externalsource.NewOAuthManager(sourceRepo, cipher, &config.Config{
		PublicBaseURL:    "http://gateway.local",
		OAuthFlowExpiry:  10 * time.Minute,
		OAuthHTTPTimeout: 5 * time.Second,
	})
	creds := externalsource.NewCredentialResolver(secretSvc, oauthMgr)
	activityLogger := activity.NewLogger(nullActivityRepo{}, nil, time.Hour, 100)

	ctx := context.Background()
	require.NoError(t, serverRepo.Create(ctx, &server.Server{
		ID:               "srv-1",
		Name:             "weather",
		Status:           server.StatusStopped,
		AllowedHosts:     []string{"api.weather.com"},
		DefaultTimeoutMS: 30000,
	}))

	_, err = secretSvc.Create(ctx, "srv-1", "GITHUB_TOKEN", "s3cret-token", "")
	require.NoError(t, err)

	require.NoError(t, settingsSvc.AddAllowedModule(ctx, "requests"))

	require.NoError(t, sourceRepo.Create(ctx, &externalsource.Source{
		ID:             "src-1",
		ServerID:       "srv-1",
		Name:           "github",
		URL:            "https://mcp.github.example/mcp",
		AuthType:       externalsource.AuthBearer,
		AuthSecretName: "GITHUB_TOKEN",
		TransportType:  externalsource.TransportStreamableHTTP,
		Status:         externalsource.StatusActive,
	}))

	seedTool := func(id, name string, toolType tool.Type, status tool.ApprovalStatus, enabled bool) *tool.Tool {
		tl := &tool.Tool{
			ID:             id,
			ServerID:       "srv-1",
			Name:           name,
			ToolType:       toolType,
			Enabled:        enabled,
			ApprovalStatus: status,
			InputSchema:    json.RawMessage(`{"type":"object"}`),
		}
		require.NoError(t, toolRepo.Create(ctx, tl))
		return tl
	}
	seedTool("tool-1", "get_forecast", tool.TypePythonCode, tool.ApprovalApproved, true)
	srcID := "src-1"
	passthrough := &tool.Tool{
		ID:               "tool-2",
		ServerID:         "srv-1",
		Name:             "list_issues",
		ToolType:         tool.TypeMCPPassthrough,
		Enabled:          true,
		ApprovalStatus:   tool.ApprovalApproved,
		ExternalSourceID: &srcID,
		ExternalToolName: "list-issues",
		TimeoutMS:        45000,
	}
	require.NoError(t, toolRepo.Create(ctx, passthrough))
	seedTool("tool-3", "draft_tool", tool.TypePythonCode, tool.ApprovalDraft, true)
	seedTool("tool-4", "disabled_tool", tool.TypePythonCode, tool.ApprovalApproved, false)

	reg := NewRegistrar(serverRepo, toolRepo, secretSvc, settingsSvc, sourceRepo, creds, gateway, notifier, activityLogger)
	return &registrarEnv{
		servers:  serverRepo,
		tools:    toolRepo,
		sources:  sourceRepo,
		gateway:  gateway,
		notifier: notifier,
		reg:      reg,
	}
}

func TestStartServer_RegistersFullSnapshot(t *testing.T) {
	env := newRegistrarEnv(t)
	before := env.notifier.Generation()

	res, err := env.reg.StartServer(context.Background(), "srv-1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.ToolsRegistered)
	assert.Equal(t, server.StatusRunning, res.Server.Status)
	assert.Equal(t, server.StatusRunning, env.servers.status("srv-1"))
	assert.Greater(t, env.notifier.Generation(), before)

	req := env.gateway.lastRegistered(t)
	assert.Equal(t, "srv-1", req.ServerID)
	assert.Equal(t, "weather", req.ServerName)
	assert.Equal(t, []string{"api.weather.com"}, req.AllowedHosts)
	assert.Equal(t, []string{"requests"}, req.AllowedModules)
	assert.Equal(t, map[string]string{"GITHUB_TOKEN": "s3cret-token"}, req.Secrets)

	require.Len(t, req.Tools, 2)
	byName := make(map[string]sandbox.ToolDef, len(req.Tools))
	for _, def := range req.Tools {
		byName[def.Name] = def
	}
	forecast := byName["get_forecast"]
	assert.Equal(t, string(tool.TypePythonCode), forecast.ToolType)
	assert.Equal(t, 30000, forecast.TimeoutMS, "tool without its own timeout inherits the server default")
	issues := byName["list_issues"]
	assert.Equal(t, string(tool.TypeMCPPassthrough), issues.ToolType)
	assert.Equal(t, 45000, issues.TimeoutMS)
	assert.Equal(t, "github", issues.ExternalSourceName)
	assert.Equal(t, "list-issues", issues.ExternalToolName)

	require.Len(t, req.ExternalSources, 1)
	src := req.ExternalSources[0]
	assert.Equal(t, "github", src.Name)
	assert.Equal(t, string(externalsource.AuthBearer), src.AuthType)
	assert.Equal(t, "s3cret-token", src.AuthToken, "bearer token resolved from the server secret")
}

func TestStartServer_RequiresExposableTool(t *testing.T) {
	env := newRegistrarEnv(t)
	env.tools.removeAll()

	_, err := env.reg.StartServer(context.Background(), "srv-1")
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
	assert.Empty(t, env.gateway.registered)
	assert.Equal(t, server.StatusStopped, env.servers.status("srv-1"))
}

func TestStartServer_AlreadyRunningConflict(t *testing.T) {
	env := newRegistrarEnv(t)
	_, err := env.reg.StartServer(context.Background(), "srv-1")
	require.NoError(t, err)

	_, err = env.reg.StartServer(context.Background(), "srv-1")
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeConflict))
	assert.Len(t, env.gateway.registered, 1)
}

func TestStartServer_SandboxFailureMarksError(t *testing.T) {
	env := newRegistrarEnv(t)
	env.gateway.registerErr = &sandbox.SandboxError{StatusCode: 500, Message: "boom"}

	_, err := env.reg.StartServer(context.Background(), "srv-1")
	require.Error(t, err)
	assert.Equal(t, server.StatusError, env.servers.status("srv-1"))
}

func TestStartServer_DisabledSourceSkipped(t *testing.T) {
	env := newRegistrarEnv(t)
	src, err := env.sources.FindByID(context.Background(), "src-1")
	require.NoError(t, err)
	src.Status = externalsource.StatusDisabled
	require.NoError(t, env.sources.Update(context.Background(), src))

	_, err = env.reg.StartServer(context.Background(), "srv-1")
	require.NoError(t, err)
	req := env.gateway.lastRegistered(t)
	assert.Empty(t, req.ExternalSources, "disabled sources stay out of the registration")
}

func TestStartServer_CredentialFailureAborts(t *testing.T) {
	env := newRegistrarEnv(t)
	src, err := env.sources.FindByID(context.Background(), "src-1")
	require.NoError(t, err)
	src.AuthSecretName = "MISSING_KEY"
	require.NoError(t, env.sources.Update(context.Background(), src))

	_, err = env.reg.StartServer(context.Background(), "srv-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "github")
	assert.Empty(t, env.gateway.registered)
}

func TestStopServer_UnregistersAndSignals(t *testing.T) {
	env := newRegistrarEnv(t)
	_, err := env.reg.StartServer(context.Background(), "srv-1")
	require.NoError(t, err)
	before := env.notifier.Generation()

	srv, err := env.reg.StopServer(context.Background(), "srv-1")
	require.NoError(t, err)
	assert.Equal(t, server.StatusStopped, srv.Status)
	assert.Equal(t, []string{"srv-1"}, env.gateway.unregistered)
	assert.Greater(t, env.notifier.Generation(), before)
}

func TestStopServer_NotRunningConflict(t *testing.T) {
	env := newRegistrarEnv(t)

	_, err := env.reg.StopServer(context.Background(), "srv-1")
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeConflict))
}

func TestStopServer_SandboxAlreadyGone(t *testing.T) {
	env := newRegistrarEnv(t)
	_, err := env.reg.StartServer(context.Background(), "srv-1")
	require.NoError(t, err)
	env.gateway.unregisterErr = &sandbox.SandboxError{StatusCode: 404, Message: "unknown server"}

	srv, err := env.reg.StopServer(context.Background(), "srv-1")
	require.NoError(t, err, "a sandbox that lost the registration still counts as stopped")
	assert.Equal(t, server.StatusStopped, srv.Status)
}

func TestStopServer_SandboxFailureKeepsRunning(t *testing.T) {
	env := newRegistrarEnv(t)
	_, err := env.reg.StartServer(context.Background(), "srv-1")
	require.NoError(t, err)
	env.gateway.unregisterErr = &sandbox.SandboxError{StatusCode: 503, Message: "unavailable"}

	_, err = env.reg.StopServer(context.Background(), "srv-1")
	require.Error(t, err)
	assert.Equal(t, server.StatusRunning, env.servers.status("srv-1"))
}

func TestResyncServer_StoppedServerUntouched(t *testing.T) {
	env := newRegistrarEnv(t)

	env.reg.ResyncServer(context.Background(), "srv-1")
	assert.Empty(t, env.gateway.registered)
	assert.Empty(t, env.gateway.unregistered)
}

func TestResyncServer_ReRegistersRunningServer(t *testing.T) {
	env := newRegistrarEnv(t)
	_, err := env.reg.StartServer(context.Background(), "srv-1")
	require.NoError(t, err)
	before := env.notifier.Generation()

	env.reg.ResyncServer(context.Background(), "srv-1")
	assert.Len(t, env.gateway.registered, 2)
	assert.Equal(t, server.StatusRunning, env.servers.status("srv-1"))
	assert.Greater(t, env.notifier.Generation(), before)
}

func TestResyncServer_ZeroToolsStopsServer(t *testing.T) {
	env := newRegistrarEnv(t)
	_, err := env.reg.StartServer(context.Background(), "srv-1")
	require.NoError(t, err)
	env.tools.removeAll()

	env.reg.ResyncServer(context.Background(), "srv-1")
	assert.Equal(t, server.StatusStopped, env.servers.status("srv-1"))
	assert.Equal(t, []string{"srv-1"}, env.gateway.unregistered)
}

func TestResyncServer_FailureDegradesToError(t *testing.T) {
	env := newRegistrarEnv(t)
	_, err := env.reg.StartServer(context.Background(), "srv-1")
	require.NoError(t, err)
	env.gateway.registerErr = fmt.Errorf("sandbox unreachable")

	env.reg.ResyncServer(context.Background(), "srv-1")
	assert.Equal(t, server.StatusError, env.servers.status("srv-1"))
}

func TestDeregisterServer_NoDatabaseWrites(t *testing.T) {
	env := newRegistrarEnv(t)
	before := env.notifier.Generation()
	updatesBefore := env.servers.updates

	require.NoError(t, env.reg.DeregisterServer(context.Background(), "srv-1"))
	assert.Equal(t, []string{"srv-1"}, env.gateway.unregistered)
	assert.Equal(t, updatesBefore, env.servers.updates)
	assert.Greater(t, env.notifier.Generation(), before)
}

func TestPushSecrets_RunningServerOnly(t *testing.T) {
	env := newRegistrarEnv(t)

	require.NoError(t, env.reg.PushSecrets(context.Background(), "srv-1"))
	assert.Empty(t, env.gateway.secretPushes, "stopped server is a no-op")

	_, err := env.reg.StartServer(context.Background(), "srv-1")
	require.NoError(t, err)
	require.NoError(t, env.reg.PushSecrets(context.Background(), "srv-1"))
	require.Len(t, env.gateway.secretPushes, 1)
	assert.Equal(t, map[string]string{"GITHUB_TOKEN": "s3cret-token"}, env.gateway.secretPushes[0])
}
