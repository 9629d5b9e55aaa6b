package externalsource

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpbox/internal/domain/activity"
	"mcpbox/internal/domain/query"
	"mcpbox/internal/domain/secret"
	"mcpbox/internal/domain/server"
	"mcpbox/internal/domain/tool"
	"mcpbox/internal/infrastructure/extmcp"
	"mcpbox/internal/utils/crypto"
	"mcpbox/internal/utils/platformerrors"
)

type fakeServerRepo struct {
	servers map[string]*server.Server
}

func (r *fakeServerRepo) Create(ctx context.Context, srv *server.Server) error {
	r.servers[srv.ID] = srv
	return nil
}

func (r *fakeServerRepo) FindByID(ctx context.Context, id string) (*server.Server, error) {
	srv, ok := r.servers[id]
	if !ok {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "server not found", nil, "")
	}
	cp := *srv
	return &cp, nil
}

func (r *fakeServerRepo) FindByName(ctx context.Context, name string) (*server.Server, error) {
	for _, srv := range r.servers {
		if srv.Name == name {
			cp := *srv
			return &cp, nil
		}
	}
	return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "server not found", nil, "")
}

func (r *fakeServerRepo) FindByFilter(ctx context.Context, filter server.Filter, p *query.Pagination) ([]*server.Server, error) {
	var out []*server.Server
	for _, srv := range r.servers {
		cp := *srv
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeServerRepo) Count(ctx context.Context, filter server.Filter) (int64, error) {
	return int64(len(r.servers)), nil
}

func (r *fakeServerRepo) Update(ctx context.Context, srv *server.Server) error {
	r.servers[srv.ID] = srv
	return nil
}

func (r *fakeServerRepo) Delete(ctx context.Context, id string) error {
	delete(r.servers, id)
	return nil
}

type fakeToolRepo struct {
	mu    sync.Mutex
	tools map[string]*tool.Tool
}

func (r *fakeToolRepo) Create(ctx context.Context, t *tool.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tools[t.ID] = &cp
	return nil
}

func (r *fakeToolRepo) FindByID(ctx context.Context, id string) (*tool.Tool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tools[id]
	if !ok {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "tool not found", nil, "")
	}
	cp := *t
	return &cp, nil
}

func (r *fakeToolRepo) FindByServerAndName(ctx context.Context, serverID, name string) (*tool.Tool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tools {
		if t.ServerID == serverID && t.Name == name {
			cp := *t
			return &cp, nil
		}
	}
	return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "tool not found", nil, "")
}

func (r *fakeToolRepo) FindByFilter(ctx context.Context, filter tool.Filter, p *query.Pagination) ([]*tool.Tool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*tool.Tool
	for _, t := range r.tools {
		if filter.ExternalSourceID != nil && (t.ExternalSourceID == nil || *t.ExternalSourceID != *filter.ExternalSourceID) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeToolRepo) FindExposed(ctx context.Context) ([]*tool.ExposedTool, error) {
	return nil, nil
}

func (r *fakeToolRepo) Count(ctx context.Context, filter tool.Filter) (int64, error) {
	tools, _ := r.FindByFilter(ctx, filter, nil)
	return int64(len(tools)), nil
}

func (r *fakeToolRepo) CountApprovedSince(ctx context.Context, since time.Time) (int64, error) {
	return 0, nil
}

func (r *fakeToolRepo) CountRejectedSince(ctx context.Context, since time.Time) (int64, error) {
	return 0, nil
}

func (r *fakeToolRepo) Update(ctx context.Context, t *tool.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tools[t.ID] = &cp
	return nil
}

func (r *fakeToolRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, id)
	return nil
}

type fakeVersionRepo struct {
	versions []*tool.Version
}

func (r *fakeVersionRepo) Create(ctx context.Context, v *tool.Version) error {
	r.versions = append(r.versions, v)
	return nil
}

func (r *fakeVersionRepo) FindByTool(ctx context.Context, toolID string) ([]*tool.Version, error) {
	var out []*tool.Version
	for _, v := range r.versions {
		if v.ToolID == toolID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *fakeVersionRepo) FindByToolAndNumber(ctx context.Context, toolID string, number int) (*tool.Version, error) {
	for _, v := range r.versions {
		if v.ToolID == toolID && v.VersionNumber == number {
			return v, nil
		}
	}
	return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "version not found", nil, "")
}

func (r *fakeVersionRepo) CountByTool(ctx context.Context, toolID string) (int64, error) {
	n := int64(0)
	for _, v := range r.versions {
		if v.ToolID == toolID {
			n++
		}
	}
	return n, nil
}

type fakeSecretRepo struct {
	secrets map[string]*secret.ServerSecret
}

func (r *fakeSecretRepo) Create(ctx context.Context, sec *secret.ServerSecret) error {
	r.secrets[sec.ID] = sec
	return nil
}

func (r *fakeSecretRepo) FindByID(ctx context.Context, id string) (*secret.ServerSecret, error) {
	sec, ok := r.secrets[id]
	if !ok {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "secret not found", nil, "")
	}
	return sec, nil
}

func (r *fakeSecretRepo) FindByServer(ctx context.Context, serverID string) ([]*secret.ServerSecret, error) {
	var out []*secret.ServerSecret
	for _, sec := range r.secrets {
		if sec.ServerID == serverID {
			out = append(out, sec)
		}
	}
	return out, nil
}

func (r *fakeSecretRepo) FindByServerAndKey(ctx context.Context, serverID, keyName string) (*secret.ServerSecret, error) {
	for _, sec := range r.secrets {
		if sec.ServerID == serverID && sec.KeyName == keyName {
			return sec, nil
		}
	}
	return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "secret not found", nil, "")
}

func (r *fakeSecretRepo) Update(ctx context.Context, sec *secret.ServerSecret) error {
	r.secrets[sec.ID] = sec
	return nil
}

func (r *fakeSecretRepo) Delete(ctx context.Context, id string) error {
	delete(r.secrets, id)
	return nil
}

type fakeDiscoverer struct {
	tools         []extmcp.DiscoveredTool
	err           error
	lastURL       string
	lastTransport string
	lastHeader    *extmcp.AuthHeader
}

func (d *fakeDiscoverer) Discover(ctx context.Context, url, transportType string, header *extmcp.AuthHeader) ([]extmcp.DiscoveredTool, error) {
	d.lastURL = url
	d.lastTransport = transportType
	d.lastHeader = header
	if d.err != nil {
		return nil, d.err
	}
	return d.tools, nil
}

type fakeResyncer struct {
	calls []string
}

func (r *fakeResyncer) ResyncServer(ctx context.Context, serverID string) {
	r.calls = append(r.calls, serverID)
}

type fakePolicy struct{ mode string }

func (p *fakePolicy) ToolApprovalMode(ctx context.Context) (string, error) { return p.mode, nil }

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

type serviceEnv struct {
	repo      *fakeSourceRepo
	servers   *fakeServerRepo
	toolRepo  *fakeToolRepo
	versions  *fakeVersionRepo
	discovery *fakeDiscoverer
	resync    *fakeResyncer
	svc       *Service
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()
	cipher, err := crypto.New("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	servers := &fakeServerRepo{servers: map[string]*server.Server{
		"srv-1": {ID: "srv-1", Name: "weather", Status: server.StatusRunning, DefaultTimeoutMS: 30000},
	}}

	secretRepo := &fakeSecretRepo{secrets: map[string]*secret.ServerSecret{}}
	secretSvc := secret.NewService(secretRepo, cipher)
	_, err = secretSvc.Create(context.Background(), "srv-1", "GITHUB_TOKEN", "s3cret-token", "")
	require.NoError(t, err)

	activityLogger := activity.NewLogger(nullActivityRepo{}, nil, time.Hour, 100)

	toolRepo := &fakeToolRepo{tools: map[string]*tool.Tool{}}
	versions := &fakeVersionRepo{}
	resync := &fakeResyncer{}
	toolSvc := tool.NewService(toolRepo, versions, servers, &fakePolicy{mode: "require_approval"}, resync, activityLogger)

	repo := newFakeSourceRepo()
	discovery := &fakeDiscoverer{}
	oauth := newTestOAuthManager(t, repo)
	svc := NewService(repo, servers, NewCredentialResolver(secretSvc, oauth), toolSvc, toolRepo, discovery, oauth, resync, activityLogger)

	return &serviceEnv{
		repo:      repo,
		servers:   servers,
		toolRepo:  toolRepo,
		versions:  versions,
		discovery: discovery,
		resync:    resync,
		svc:       svc,
	}
}

func (e *serviceEnv) addSource(t *testing.T, authType AuthType) *Source {
	t.Helper()
	input := AddInput{
		ServerID: "srv-1",
		Name:     "github",
		URL:      "https://mcp.github.example/mcp",
		AuthType: authType,
	}
	if authType == AuthBearer {
		input.AuthSecretName = "GITHUB_TOKEN"
	}
	src, err := e.svc.Add(context.Background(), input)
	require.NoError(t, err)
	return src
}

func TestAdd_Validation(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	_, err := env.svc.Add(ctx, AddInput{ServerID: "srv-404", Name: "github", URL: "https://x.example"})
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))

	_, err = env.svc.Add(ctx, AddInput{ServerID: "srv-1", Name: "GitHub!", URL: "https://x.example"})
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))

	_, err = env.svc.Add(ctx, AddInput{ServerID: "srv-1", Name: "github", URL: "ftp://x.example"})
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))

	_, err = env.svc.Add(ctx, AddInput{ServerID: "srv-1", Name: "github", URL: "https://x.example", AuthType: AuthHeader, AuthSecretName: "K"})
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation), "header auth without header name")

	env.addSource(t, AuthNone)
	_, err = env.svc.Add(ctx, AddInput{ServerID: "srv-1", Name: "github", URL: "https://y.example"})
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeConflict))
}

func TestAdd_DefaultsTransportAndAuth(t *testing.T) {
	env := newServiceEnv(t)
	src := env.addSource(t, "")

	assert.Equal(t, TransportStreamableHTTP, src.TransportType)
	assert.Equal(t, AuthNone, src.AuthType)
	assert.Equal(t, StatusActive, src.Status)
}

func TestDiscover_CachesDescriptorsAndResolvesAuth(t *testing.T) {
	env := newServiceEnv(t)
	src := env.addSource(t, AuthBearer)
	env.discovery.tools = []extmcp.DiscoveredTool{
		{Name: "Get-Weather", Description: "Get weather", InputSchema: json.RawMessage(`{"type":"object"}`)},
		{Name: "list_alerts", Description: "List alerts"},
	}

	discovered, err := env.svc.Discover(context.Background(), src.ID)
	require.NoError(t, err)
	assert.Len(t, discovered, 2)

	require.NotNil(t, env.discovery.lastHeader)
	assert.Equal(t, "Authorization", env.discovery.lastHeader.Name)
	assert.Equal(t, "Bearer s3cret-token", env.discovery.lastHeader.Value)
	assert.Equal(t, src.URL, env.discovery.lastURL)

	stored := env.repo.stored(src.ID)
	assert.Equal(t, 2, stored.ToolCount)
	assert.Equal(t, StatusActive, stored.Status)
	var cached []extmcp.DiscoveredTool
	require.NoError(t, json.Unmarshal(stored.DiscoveredToolsCache, &cached))
	assert.Equal(t, "Get-Weather", cached[0].Name)
}

func TestDiscover_FailureMarksSourceErrored(t *testing.T) {
	env := newServiceEnv(t)
	src := env.addSource(t, AuthNone)
	env.discovery.err = errors.New("connection refused")

	_, err := env.svc.Discover(context.Background(), src.ID)
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeExternal))
	assert.Equal(t, StatusError, env.repo.stored(src.ID).Status)
}

func TestDiscover_DisabledSourceRejected(t *testing.T) {
	env := newServiceEnv(t)
	src := env.addSource(t, AuthNone)
	disabled := StatusDisabled
	_, err := env.svc.Update(context.Background(), src.ID, UpdateInput{Status: &disabled})
	require.NoError(t, err)

	_, err = env.svc.Discover(context.Background(), src.ID)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
}

func TestImport_RequiresDiscoveryCache(t *testing.T) {
	env := newServiceEnv(t)
	src := env.addSource(t, AuthNone)

	_, err := env.svc.Import(context.Background(), src.ID, nil, "admin@example.com")
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
}

func TestImport_CreatesPassthroughTools(t *testing.T) {
	env := newServiceEnv(t)
	src := env.addSource(t, AuthNone)
	env.discovery.tools = []extmcp.DiscoveredTool{
		{Name: "Get-Weather", Description: "Get weather", InputSchema: json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}}}`)},
		{Name: "list_alerts", Description: "List alerts"},
	}
	_, err := env.svc.Discover(context.Background(), src.ID)
	require.NoError(t, err)

	result, err := env.svc.Import(context.Background(), src.ID, nil, "admin@example.com")
	require.NoError(t, err)
	require.Len(t, result.Created, 2)
	assert.Empty(t, result.Skipped)

	byName := map[string]*tool.Tool{}
	for _, created := range result.Created {
		byName[created.Name] = created
	}
	imported, ok := byName["get_weather"]
	require.True(t, ok, "external name normalized to local rules")
	assert.Equal(t, tool.TypeMCPPassthrough, imported.ToolType)
	assert.Equal(t, "Get-Weather", imported.ExternalToolName)
	require.NotNil(t, imported.ExternalSourceID)
	assert.Equal(t, src.ID, *imported.ExternalSourceID)
	assert.Equal(t, tool.ApprovalDraft, imported.ApprovalStatus)
	assert.JSONEq(t, `{"type":"object","properties":{"city":{"type":"string"}}}`, string(imported.InputSchema))

	v, err := env.versions.FindByToolAndNumber(context.Background(), imported.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, tool.ChangeSourceImport, v.ChangeSource)
}

func TestImport_SkipsExistingAndFilters(t *testing.T) {
	env := newServiceEnv(t)
	src := env.addSource(t, AuthNone)
	env.discovery.tools = []extmcp.DiscoveredTool{
		{Name: "get_weather"},
		{Name: "list_alerts"},
	}
	_, err := env.svc.Discover(context.Background(), src.ID)
	require.NoError(t, err)

	first, err := env.svc.Import(context.Background(), src.ID, []string{"get_weather"}, "admin@example.com")
	require.NoError(t, err)
	require.Len(t, first.Created, 1)
	assert.Equal(t, "get_weather", first.Created[0].Name)

	second, err := env.svc.Import(context.Background(), src.ID, nil, "admin@example.com")
	require.NoError(t, err)
	assert.Len(t, second.Created, 1, "only the not-yet-imported tool")
	assert.Len(t, second.Skipped, 1)
	assert.Contains(t, second.Skipped[0], "already exists")
}

func TestDelete_BlockedWhileToolsImported(t *testing.T) {
	env := newServiceEnv(t)
	src := env.addSource(t, AuthNone)
	env.discovery.tools = []extmcp.DiscoveredTool{{Name: "get_weather"}}
	_, err := env.svc.Discover(context.Background(), src.ID)
	require.NoError(t, err)
	_, err = env.svc.Import(context.Background(), src.ID, nil, "admin@example.com")
	require.NoError(t, err)

	err = env.svc.Delete(context.Background(), src.ID)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeConflict))

	tools, err := env.toolRepo.FindByFilter(context.Background(), tool.Filter{ExternalSourceID: &src.ID}, nil)
	require.NoError(t, err)
	for _, tl := range tools {
		require.NoError(t, env.toolRepo.Delete(context.Background(), tl.ID))
	}
	require.NoError(t, env.svc.Delete(context.Background(), src.ID))
	_, err = env.repo.FindByID(context.Background(), src.ID)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))
}

func TestUpdate_URLChangeDropsOAuthTokens(t *testing.T) {
	env := newServiceEnv(t)
	src := env.addSource(t, AuthNone)

	stored := env.repo.stored(src.ID)
	stored.OAuthTokensEncrypted = "opaque"
	require.NoError(t, env.repo.Update(context.Background(), stored))

	newURL := "https://moved.example/mcp"
	updated, err := env.svc.Update(context.Background(), src.ID, UpdateInput{URL: &newURL})
	require.NoError(t, err)
	assert.Empty(t, updated.OAuthTokensEncrypted)
	assert.Contains(t, env.resync.calls, "srv-1")
}

func TestLocalToolName(t *testing.T) {
	assert.Equal(t, "get_weather", localToolName("Get-Weather"))
	assert.Equal(t, "fetch_page", localToolName("fetch.page"))
	assert.Equal(t, "tool", localToolName("123tool"))
	assert.Equal(t, "", localToolName("!!!"))
	assert.Equal(t, "already_fine", localToolName("already_fine"))
}
