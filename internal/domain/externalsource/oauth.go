package externalsource

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mcpbox/internal/config"
	"mcpbox/internal/infrastructure/logger"
	"mcpbox/internal/utils/crypto"
	"mcpbox/internal/utils/platformerrors"
)

// refreshBuffer is subtracted from expires_at so a token is never handed
// out moments before it dies mid-request.
const refreshBuffer = 60 * time.Second

var resourceMetadataPattern = regexp.MustCompile(`resource_metadata="([^"]+)"`)

// initializeProbe is the bare MCP handshake used to elicit a 401 from
// OAuth-protected servers.
const initializeProbe = `{"jsonrpc":"2.0","id":0,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"mcpbox","version":"0"}}}`

// tokenBundle is the OAuth state persisted per source, encrypted with the
// oauth_tokens AAD. The token endpoint and client secret live here so a
// refresh never needs re-discovery.
type tokenBundle struct {
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token,omitempty"`
	TokenType     string    `json:"token_type,omitempty"`
	Scope         string    `json:"scope,omitempty"`
	ExpiresAt     time.Time `json:"expires_at"`
	TokenEndpoint string    `json:"token_endpoint"`
	ClientSecret  string    `json:"client_secret,omitempty"`
}

// pendingFlow is one in-progress authorization, keyed by state.
type pendingFlow struct {
	sourceID      string
	verifier      string
	redirectURI   string
	tokenEndpoint string
	clientID      string
	clientSecret  string
	createdAt     time.Time
}

// resourceMetadata is the RFC 9728 protected-resource document.
type resourceMetadata struct {
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers"`
	ScopesSupported      []string `json:"scopes_supported"`
}

// serverMetadata is the RFC 8414 authorization-server document.
type serverMetadata struct {
	Issuer                string   `json:"issuer"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	RegistrationEndpoint  string   `json:"registration_endpoint"`
	ScopesSupported       []string `json:"scopes_supported"`
}

// clientRegistration is the RFC 7591 registration response.
type clientRegistration struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// OAuthManager runs the authorization-code flow for OAuth-protected
// external sources: endpoint discovery, dynamic client registration, PKCE,
// token exchange and refresh.
type OAuthManager struct {
	repo        Repository
	cipher      *crypto.Cipher
	http        *resty.Client
	redirectURI string
	flowExpiry  time.Duration

	mu    sync.Mutex
	flows map[string]*pendingFlow

	logger zerolog.Logger
	now    func() time.Time
}

// NewOAuthManager creates an OAuth manager.
func NewOAuthManager(repo Repository, cipher *crypto.Cipher, cfg *config.Config) *OAuthManager {
	return &OAuthManager{
		repo:        repo,
		cipher:      cipher,
		http:        resty.New().SetTimeout(cfg.OAuthHTTPTimeout),
		redirectURI: cfg.OAuthRedirectURI(),
		flowExpiry:  cfg.OAuthFlowExpiry,
		flows:       make(map[string]*pendingFlow),
		logger:      logger.Component("oauth-manager"),
		now:         time.Now,
	}
}

// StartFlow discovers the source's authorization server, registers a
// client if the source has none, and returns the authorization URL the
// operator must visit.
func (m *OAuthManager) StartFlow(ctx context.Context, src *Source) (string, error) {
	meta, scopes, err := m.discover(ctx, src.URL)
	if err != nil {
		return "", err
	}

	clientID := src.OAuthClientID
	clientSecret := ""
	if clientID == "" {
		if meta.RegistrationEndpoint == "" {
			return "", platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "authorization server does not offer dynamic registration and no client_id is configured", nil, "oauth-004")
		}
		reg, err := m.registerClient(ctx, meta.RegistrationEndpoint)
		if err != nil {
			return "", err
		}
		clientID = reg.ClientID
		clientSecret = reg.ClientSecret
		src.OAuthClientID = clientID
		src.OAuthIssuer = meta.Issuer
		if err := m.repo.Update(ctx, src); err != nil {
			return "", err
		}
	}

	verifier, err := randomVerifier()
	if err != nil {
		return "", platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal, "failed to generate PKCE verifier", err, "oauth-010")
	}
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])
	state := uuid.NewString()

	m.storeFlow(state, &pendingFlow{
		sourceID:      src.ID,
		verifier:      verifier,
		redirectURI:   m.redirectURI,
		tokenEndpoint: meta.TokenEndpoint,
		clientID:      clientID,
		clientSecret:  clientSecret,
		createdAt:     m.now(),
	})

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", clientID)
	q.Set("redirect_uri", m.redirectURI)
	q.Set("state", state)
	q.Set("code_challenge", challenge)
	q.Set("code_challenge_method", "S256")
	q.Set("resource", src.URL)
	if len(scopes) > 0 {
		q.Set("scope", strings.Join(scopes, " "))
	}

	sep := "?"
	if strings.Contains(meta.AuthorizationEndpoint, "?") {
		sep = "&"
	}
	m.logger.Info().Str("source_id", src.ID).Str("issuer", meta.Issuer).Msg("oauth flow started")
	return meta.AuthorizationEndpoint + sep + q.Encode(), nil
}

// HandleCallback exchanges the authorization code, encrypts the token
// bundle and persists it on the source. The state is single-use.
func (m *OAuthManager) HandleCallback(ctx context.Context, code, state string) (*Source, error) {
	flow, ok := m.popFlow(state)
	if !ok {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "unknown or expired OAuth state", nil, "oauth-005")
	}
	if code == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "authorization code is required", nil, "oauth-005")
	}

	form := map[string]string{
		"grant_type":    "authorization_code",
		"code":          code,
		"redirect_uri":  flow.redirectURI,
		"client_id":     flow.clientID,
		"code_verifier": flow.verifier,
	}
	tok, err := m.requestToken(ctx, flow.tokenEndpoint, flow.clientID, flow.clientSecret, form)
	if err != nil {
		return nil, err
	}

	src, err := m.repo.FindByID(ctx, flow.sourceID)
	if err != nil {
		return nil, err
	}

	bundle := tokenBundle{
		AccessToken:   tok.AccessToken,
		RefreshToken:  tok.RefreshToken,
		TokenType:     tok.TokenType,
		Scope:         tok.Scope,
		ExpiresAt:     m.expiry(tok.ExpiresIn),
		TokenEndpoint: flow.tokenEndpoint,
		ClientSecret:  flow.clientSecret,
	}
	if err := m.persistBundle(ctx, src, bundle); err != nil {
		return nil, err
	}
	m.logger.Info().Str("source_id", src.ID).Msg("oauth tokens obtained")
	return src, nil
}

// AccessToken returns a valid access token for the source, refreshing and
// rotating the stored bundle when it is within the refresh buffer of
// expiry.
func (m *OAuthManager) AccessToken(ctx context.Context, src *Source) (string, error) {
	if src.OAuthTokensEncrypted == "" {
		return "", platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "source has no OAuth tokens; complete the authorization flow first", nil, "oauth-007")
	}
	plain, err := m.cipher.DecryptString(src.OAuthTokensEncrypted, crypto.AADOAuthTokens)
	if err != nil {
		return "", platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal, "failed to decrypt OAuth tokens", err, "oauth-009")
	}
	var bundle tokenBundle
	if err := json.Unmarshal([]byte(plain), &bundle); err != nil {
		return "", platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal, "corrupt OAuth token bundle", err, "oauth-009")
	}

	if m.now().Before(bundle.ExpiresAt.Add(-refreshBuffer)) {
		return bundle.AccessToken, nil
	}
	if bundle.RefreshToken == "" {
		return "", platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "OAuth access token expired and no refresh token is available", nil, "oauth-008")
	}

	form := map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": bundle.RefreshToken,
		"client_id":     src.OAuthClientID,
	}
	tok, err := m.requestToken(ctx, bundle.TokenEndpoint, src.OAuthClientID, bundle.ClientSecret, form)
	if err != nil {
		return "", err
	}

	rotated := tokenBundle{
		AccessToken:   tok.AccessToken,
		RefreshToken:  tok.RefreshToken,
		TokenType:     tok.TokenType,
		Scope:         tok.Scope,
		ExpiresAt:     m.expiry(tok.ExpiresIn),
		TokenEndpoint: bundle.TokenEndpoint,
		ClientSecret:  bundle.ClientSecret,
	}
	if rotated.RefreshToken == "" {
		rotated.RefreshToken = bundle.RefreshToken
	}
	if err := m.persistBundle(ctx, src, rotated); err != nil {
		return "", err
	}
	m.logger.Debug().Str("source_id", src.ID).Msg("oauth tokens refreshed")
	return rotated.AccessToken, nil
}

// PurgeExpiredFlows drops pending flows older than the flow expiry and
// returns how many were removed.
func (m *OAuthManager) PurgeExpiredFlows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.purgeLocked()
}

func (m *OAuthManager) purgeLocked() int {
	cutoff := m.now().Add(-m.flowExpiry)
	purged := 0
	for state, flow := range m.flows {
		if flow.createdAt.Before(cutoff) {
			delete(m.flows, state)
			purged++
		}
	}
	return purged
}

func (m *OAuthManager) storeFlow(state string, flow *pendingFlow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked()
	m.flows[state] = flow
}

func (m *OAuthManager) popFlow(state string) (*pendingFlow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked()
	flow, ok := m.flows[state]
	if ok {
		delete(m.flows, state)
	}
	return flow, ok
}

// discover walks probe → protected-resource metadata → authorization-server
// metadata and returns the server document plus the advertised scopes.
func (m *OAuthManager) discover(ctx context.Context, sourceURL string) (*serverMetadata, []string, error) {
	resp, err := m.http.R().SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json, text/event-stream").
		SetBody(initializeProbe).
		Post(sourceURL)
	if err != nil {
		return nil, nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeExternal, "failed to probe external source", err, "oauth-001")
	}

	metaURL := ""
	if resp.StatusCode() == 401 {
		if match := resourceMetadataPattern.FindStringSubmatch(resp.Header().Get("WWW-Authenticate")); match != nil {
			metaURL = match[1]
		}
	}
	if metaURL == "" {
		u, err := url.Parse(sourceURL)
		if err != nil {
			return nil, nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "invalid source URL", err, "oauth-001")
		}
		metaURL = u.Scheme + "://" + u.Host + "/.well-known/oauth-protected-resource"
	}

	var rm resourceMetadata
	resp, err = m.http.R().SetContext(ctx).SetResult(&rm).Get(metaURL)
	if err != nil || resp.IsError() {
		return nil, nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeExternal, "failed to fetch protected resource metadata", err, "oauth-002")
	}
	if len(rm.AuthorizationServers) == 0 {
		return nil, nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeExternal, "protected resource metadata lists no authorization servers", nil, "oauth-002")
	}

	issuer := strings.TrimRight(rm.AuthorizationServers[0], "/")
	var meta serverMetadata
	for _, wellKnown := range []string{"/.well-known/oauth-authorization-server", "/.well-known/openid-configuration"} {
		resp, err = m.http.R().SetContext(ctx).SetResult(&meta).Get(issuer + wellKnown)
		if err == nil && resp.IsSuccess() && meta.AuthorizationEndpoint != "" {
			break
		}
		meta = serverMetadata{}
	}
	if meta.AuthorizationEndpoint == "" || meta.TokenEndpoint == "" {
		return nil, nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeExternal, "failed to fetch authorization server metadata from "+issuer, err, "oauth-003")
	}
	if meta.Issuer == "" {
		meta.Issuer = issuer
	}

	scopes := rm.ScopesSupported
	if len(scopes) == 0 {
		scopes = meta.ScopesSupported
	}
	return &meta, scopes, nil
}

// registerClient performs RFC 7591 dynamic registration as a public PKCE
// client.
func (m *OAuthManager) registerClient(ctx context.Context, endpoint string) (*clientRegistration, error) {
	payload := map[string]any{
		"client_name":                "mcpbox",
		"redirect_uris":              []string{m.redirectURI},
		"grant_types":                []string{"authorization_code", "refresh_token"},
		"response_types":             []string{"code"},
		"token_endpoint_auth_method": "none",
	}
	var reg clientRegistration
	resp, err := m.http.R().SetContext(ctx).SetBody(payload).SetResult(&reg).Post(endpoint)
	if err != nil || resp.IsError() || reg.ClientID == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeExternal, "dynamic client registration failed", err, "oauth-004")
	}
	return &reg, nil
}

func (m *OAuthManager) requestToken(ctx context.Context, endpoint, clientID, clientSecret string, form map[string]string) (*tokenResponse, error) {
	req := m.http.R().SetContext(ctx).SetFormData(form)
	if clientSecret != "" {
		req.SetBasicAuth(clientID, clientSecret)
	}
	var tok tokenResponse
	resp, err := req.SetResult(&tok).Post(endpoint)
	if err != nil || resp.IsError() || tok.AccessToken == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeExternal, "token request failed", err, "oauth-006")
	}
	return &tok, nil
}

func (m *OAuthManager) persistBundle(ctx context.Context, src *Source, bundle tokenBundle) error {
	raw, err := json.Marshal(bundle)
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal, "failed to encode OAuth token bundle", err, "oauth-009")
	}
	encrypted, err := m.cipher.EncryptString(string(raw), crypto.AADOAuthTokens)
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal, "failed to encrypt OAuth token bundle", err, "oauth-009")
	}
	src.OAuthTokensEncrypted = encrypted
	src.Status = StatusActive
	return m.repo.Update(ctx, src)
}

func (m *OAuthManager) expiry(expiresIn int) time.Time {
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	return m.now().Add(time.Duration(expiresIn) * time.Second)
}

// randomVerifier returns a 96-byte PKCE verifier, base64url without
// padding.
func randomVerifier() (string, error) {
	buf := make([]byte, 96)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
