package externalsource

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mcpbox/internal/domain/activity"
	"mcpbox/internal/domain/server"
	"mcpbox/internal/domain/tool"
	"mcpbox/internal/infrastructure/extmcp"
	"mcpbox/internal/infrastructure/logger"
	"mcpbox/internal/utils/platformerrors"
)

var sourceNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Discoverer opens a short-lived MCP session and lists the tools of an
// external server.
type Discoverer interface {
	Discover(ctx context.Context, url, transportType string, header *extmcp.AuthHeader) ([]extmcp.DiscoveredTool, error)
}

// Resyncer re-registers a running server after its source set changes.
type Resyncer interface {
	ResyncServer(ctx context.Context, serverID string)
}

// AddInput carries the fields accepted when attaching an external source.
type AddInput struct {
	ServerID       string
	Name           string
	URL            string
	AuthType       AuthType
	AuthSecretName string
	AuthHeaderName string
	TransportType  TransportType
}

// UpdateInput carries the optional fields of a source update.
type UpdateInput struct {
	Name           *string
	URL            *string
	AuthType       *AuthType
	AuthSecretName *string
	AuthHeaderName *string
	TransportType  *TransportType
	Status         *Status
}

// ImportResult reports the outcome of an import: tools created and tools
// skipped with the reason.
type ImportResult struct {
	Created []*tool.Tool
	Skipped []string
}

// Service provides business logic for external MCP sources: attachment,
// live discovery with caching, and import of discovered tools as
// passthrough tools.
type Service struct {
	repo      Repository
	servers   server.Repository
	creds     *CredentialResolver
	tools     *tool.Service
	toolRepo  tool.Repository
	discovery Discoverer
	oauth     *OAuthManager
	resync    Resyncer
	activity  *activity.Logger
	logger    zerolog.Logger
}

// NewService creates a new external source service.
func NewService(
	repo Repository,
	servers server.Repository,
	creds *CredentialResolver,
	tools *tool.Service,
	toolRepo tool.Repository,
	discovery Discoverer,
	oauth *OAuthManager,
	resync Resyncer,
	activityLogger *activity.Logger,
) *Service {
	return &Service{
		repo:      repo,
		servers:   servers,
		creds:     creds,
		tools:     tools,
		toolRepo:  toolRepo,
		discovery: discovery,
		oauth:     oauth,
		resync:    resync,
		activity:  activityLogger,
		logger:    logger.Component("externalsource"),
	}
}

// Add validates and attaches an external source to a server.
func (s *Service) Add(ctx context.Context, input AddInput) (*Source, error) {
	if _, err := s.servers.FindByID(ctx, input.ServerID); err != nil {
		return nil, err
	}
	if !sourceNamePattern.MatchString(input.Name) {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "source name must match ^[a-z][a-z0-9_]*$", nil, "extsrc-001")
	}
	if err := validateSourceURL(ctx, input.URL); err != nil {
		return nil, err
	}

	if input.TransportType == "" {
		input.TransportType = TransportStreamableHTTP
	}
	if input.AuthType == "" {
		input.AuthType = AuthNone
	}
	if err := validateAuth(ctx, input.AuthType, input.AuthSecretName, input.AuthHeaderName, input.TransportType); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByServerAndName(ctx, input.ServerID, input.Name)
	if err != nil && !platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "a source named "+input.Name+" already exists for this server", nil, "extsrc-005")
	}

	src := &Source{
		ID:             uuid.NewString(),
		ServerID:       input.ServerID,
		Name:           input.Name,
		URL:            input.URL,
		AuthType:       input.AuthType,
		AuthSecretName: input.AuthSecretName,
		AuthHeaderName: input.AuthHeaderName,
		TransportType:  input.TransportType,
		Status:         StatusActive,
	}
	if err := s.repo.Create(ctx, src); err != nil {
		return nil, err
	}

	s.activity.LogAudit("External source added: "+src.Name, map[string]any{
		"server_id": src.ServerID, "source_id": src.ID, "url": src.URL, "auth_type": string(src.AuthType),
	})
	return src, nil
}

// Get retrieves a source by ID.
func (s *Service) Get(ctx context.Context, id string) (*Source, error) {
	return s.repo.FindByID(ctx, id)
}

// List retrieves the sources of a server.
func (s *Service) List(ctx context.Context, serverID string) ([]*Source, error) {
	return s.repo.FindByServer(ctx, serverID)
}

// Update applies the provided fields and re-registers the owning server if
// it is running, since source config is part of its registration.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (*Source, error) {
	src, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil && *input.Name != src.Name {
		if !sourceNamePattern.MatchString(*input.Name) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "source name must match ^[a-z][a-z0-9_]*$", nil, "extsrc-001")
		}
		dup, err := s.repo.FindByServerAndName(ctx, src.ServerID, *input.Name)
		if err != nil && !platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
			return nil, err
		}
		if dup != nil {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "a source named "+*input.Name+" already exists for this server", nil, "extsrc-005")
		}
		src.Name = *input.Name
	}
	if input.URL != nil {
		if err := validateSourceURL(ctx, *input.URL); err != nil {
			return nil, err
		}
		if *input.URL != src.URL {
			src.URL = *input.URL
			// tokens were issued for the old resource
			src.OAuthTokensEncrypted = ""
		}
	}
	if input.AuthType != nil {
		src.AuthType = *input.AuthType
	}
	if input.AuthSecretName != nil {
		src.AuthSecretName = *input.AuthSecretName
	}
	if input.AuthHeaderName != nil {
		src.AuthHeaderName = *input.AuthHeaderName
	}
	if input.TransportType != nil {
		src.TransportType = *input.TransportType
	}
	if input.Status != nil {
		switch *input.Status {
		case StatusActive, StatusDisabled:
			src.Status = *input.Status
		default:
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "status may only be set to active or disabled", nil, "extsrc-006")
		}
	}
	if err := validateAuth(ctx, src.AuthType, src.AuthSecretName, src.AuthHeaderName, src.TransportType); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, src); err != nil {
		return nil, err
	}
	s.resync.ResyncServer(ctx, src.ServerID)
	s.activity.LogAudit("External source updated: "+src.Name, map[string]any{
		"server_id": src.ServerID, "source_id": src.ID,
	})
	return src, nil
}

// Delete detaches a source. Passthrough tools importing from it must be
// deleted first, otherwise they would dangle with no upstream.
func (s *Service) Delete(ctx context.Context, id string) error {
	src, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	count, err := s.toolRepo.Count(ctx, tool.Filter{ExternalSourceID: &id})
	if err != nil {
		return err
	}
	if count > 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "source still has imported tools; delete them first", nil, "extsrc-007")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.resync.ResyncServer(ctx, src.ServerID)
	s.activity.LogAudit("External source removed: "+src.Name, map[string]any{
		"server_id": src.ServerID, "source_id": src.ID,
	})
	return nil
}

// Discover opens a live session against the source, caches the returned
// descriptors on the row and returns them. A failed discovery marks the
// source as errored.
func (s *Service) Discover(ctx context.Context, id string) ([]extmcp.DiscoveredTool, error) {
	src, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if src.Status == StatusDisabled {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "source is disabled", nil, "extsrc-008")
	}

	header, err := s.authHeader(ctx, src)
	if err != nil {
		return nil, err
	}

	discovered, err := s.discovery.Discover(ctx, src.URL, string(src.TransportType), header)
	if err != nil {
		src.Status = StatusError
		if updateErr := s.repo.Update(ctx, src); updateErr != nil {
			s.logger.Warn().Err(updateErr).Str("source_id", src.ID).Msg("failed to mark source as errored")
		}
		s.activity.LogAlert("Discovery failed for external source "+src.Name, map[string]any{
			"source_id": src.ID, "url": src.URL, "error": err.Error(),
		})
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeExternal, "discovery failed: "+err.Error(), err, "extsrc-009")
	}

	cache, err := json.Marshal(discovered)
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal, "failed to encode discovered tools", err, "extsrc-010")
	}
	src.DiscoveredToolsCache = cache
	src.ToolCount = len(discovered)
	src.Status = StatusActive
	if err := s.repo.Update(ctx, src); err != nil {
		return nil, err
	}

	s.activity.LogSystem("Discovered "+src.Name+" tools", map[string]any{
		"source_id": src.ID, "tool_count": len(discovered),
	})
	return discovered, nil
}

// Import creates passthrough tools from the discovery cache. toolNames
// filters the cache; empty means all. Name collisions and invalid names
// are skipped, not fatal.
func (s *Service) Import(ctx context.Context, id string, toolNames []string, createdBy string) (*ImportResult, error) {
	src, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(src.DiscoveredToolsCache) == 0 {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "no discovered tools cached; run discovery first", nil, "extsrc-011")
	}

	var discovered []extmcp.DiscoveredTool
	if err := json.Unmarshal(src.DiscoveredToolsCache, &discovered); err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal, "corrupt discovery cache", err, "extsrc-010")
	}

	wanted := map[string]bool{}
	for _, name := range toolNames {
		wanted[name] = true
	}

	result := &ImportResult{}
	for _, dt := range discovered {
		if len(wanted) > 0 && !wanted[dt.Name] {
			continue
		}
		localName := localToolName(dt.Name)
		if localName == "" {
			result.Skipped = append(result.Skipped, dt.Name+": cannot derive a valid tool name")
			continue
		}
		created, err := s.tools.Create(ctx, tool.CreateInput{
			ServerID:         src.ServerID,
			Name:             localName,
			Description:      dt.Description,
			ToolType:         tool.TypeMCPPassthrough,
			ExternalSourceID: &src.ID,
			ExternalToolName: dt.Name,
			InputSchema:      dt.InputSchema,
			CreatedBy:        createdBy,
			ChangeSource:     tool.ChangeSourceImport,
		})
		if err != nil {
			if platformerrors.IsErrorType(err, platformerrors.ErrorTypeConflict) {
				result.Skipped = append(result.Skipped, dt.Name+": tool already exists")
				continue
			}
			return nil, err
		}
		result.Created = append(result.Created, created)
	}

	s.activity.LogAudit("Imported tools from "+src.Name, map[string]any{
		"source_id": src.ID, "created": len(result.Created), "skipped": len(result.Skipped),
	})
	return result, nil
}

// StartOAuth begins the authorization flow for an oauth source and returns
// the URL the operator must visit.
func (s *Service) StartOAuth(ctx context.Context, id string) (string, error) {
	src, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	if src.AuthType != AuthOAuth {
		return "", platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "source does not use OAuth", nil, "extsrc-012")
	}
	authURL, err := s.oauth.StartFlow(ctx, src)
	if err != nil {
		return "", err
	}
	s.activity.LogAudit("OAuth flow started for source "+src.Name, map[string]any{
		"source_id": src.ID,
	})
	return authURL, nil
}

// CompleteOAuth finishes the flow from the public callback.
func (s *Service) CompleteOAuth(ctx context.Context, code, state string) (*Source, error) {
	src, err := s.oauth.HandleCallback(ctx, code, state)
	if err != nil {
		return nil, err
	}
	s.resync.ResyncServer(ctx, src.ServerID)
	s.activity.LogAudit("OAuth authorization completed for source "+src.Name, map[string]any{
		"source_id": src.ID,
	})
	return src, nil
}

// authHeader builds the header to inject into a discovery session.
func (s *Service) authHeader(ctx context.Context, src *Source) (*extmcp.AuthHeader, error) {
	token, err := s.creds.Token(ctx, src)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, nil
	}
	if src.AuthType == AuthHeader {
		return &extmcp.AuthHeader{Name: src.AuthHeaderName, Value: token}, nil
	}
	return &extmcp.AuthHeader{Name: "Authorization", Value: "Bearer " + token}, nil
}

func validateSourceURL(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "source URL must be absolute http(s)", err, "extsrc-004")
	}
	return nil
}

func validateAuth(ctx context.Context, authType AuthType, secretName, headerName string, transport TransportType) error {
	switch authType {
	case AuthNone, AuthOAuth:
	case AuthBearer:
		if secretName == "" {
			return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "bearer auth requires auth_secret_name", nil, "extsrc-002")
		}
	case AuthHeader:
		if secretName == "" || headerName == "" {
			return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "header auth requires auth_secret_name and auth_header_name", nil, "extsrc-002")
		}
	default:
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "auth type must be one of none, bearer, header, oauth", nil, "extsrc-003")
	}
	switch transport {
	case TransportStreamableHTTP, TransportSSE:
		return nil
	default:
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "transport type must be streamable_http or sse", nil, "extsrc-013")
	}
}

// localToolName normalizes an external tool name into the local naming
// rules: lowercase, [a-z0-9_], starting with a letter.
func localToolName(external string) string {
	lowered := strings.ToLower(external)
	var b strings.Builder
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_' || r == '-' || r == '.' || r == ' ':
			b.WriteByte('_')
		}
	}
	name := strings.Trim(b.String(), "_")
	for name != "" && (name[0] < 'a' || name[0] > 'z') {
		name = name[1:]
	}
	return name
}
