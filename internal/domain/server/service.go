package server

import (
	"context"
	"regexp"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mcpbox/internal/domain/activity"
	"mcpbox/internal/domain/query"
	"mcpbox/internal/infrastructure/logger"
	"mcpbox/internal/utils/platformerrors"
)

var serverNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

const defaultTimeoutMS = 30000

// Resyncer re-registers a running server after a change to its sandbox
// registration payload.
type Resyncer interface {
	ResyncServer(ctx context.Context, serverID string)
}

// Deregistrar removes a server's sandbox registration without touching the
// database row. Used when the row itself is about to disappear.
type Deregistrar interface {
	DeregisterServer(ctx context.Context, serverID string) error
}

// UpdateInput carries the optional fields of a server update. Nil pointers
// leave the field untouched.
type UpdateInput struct {
	Name             *string
	Description      *string
	AllowedHosts     *[]string
	DefaultTimeoutMS *int
}

// Service provides business logic for server operations. Runtime
// transitions (start, stop, re-register) belong to the runtime registrar;
// this service owns the rows.
type Service struct {
	repo        Repository
	resync      Resyncer
	deregistrar Deregistrar
	activity    *activity.Logger
	logger      zerolog.Logger
}

// NewService creates a new server service.
func NewService(repo Repository, resync Resyncer, deregistrar Deregistrar, activityLogger *activity.Logger) *Service {
	return &Service{
		repo:        repo,
		resync:      resync,
		deregistrar: deregistrar,
		activity:    activityLogger,
		logger:      logger.Component("server"),
	}
}

// Create validates and stores a new server in ready state.
func (s *Service) Create(ctx context.Context, name, description string, allowedHosts []string, timeoutMS int) (*Server, error) {
	if !serverNamePattern.MatchString(name) {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "server name must match ^[a-z][a-z0-9_]*$", nil, "server-001")
	}

	existing, err := s.repo.FindByName(ctx, name)
	if err != nil && !platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "a server named "+name+" already exists", nil, "server-002")
	}

	if timeoutMS <= 0 {
		timeoutMS = defaultTimeoutMS
	}
	if allowedHosts == nil {
		allowedHosts = []string{}
	}

	srv := &Server{
		ID:               uuid.NewString(),
		Name:             name,
		Description:      description,
		Status:           StatusReady,
		AllowedHosts:     allowedHosts,
		DefaultTimeoutMS: timeoutMS,
	}
	if err := s.repo.Create(ctx, srv); err != nil {
		return nil, err
	}

	s.activity.LogAudit("Server created: "+name, map[string]any{
		"server_id": srv.ID, "name": name,
	})
	return srv, nil
}

// Get retrieves a server by ID.
func (s *Service) Get(ctx context.Context, id string) (*Server, error) {
	return s.repo.FindByID(ctx, id)
}

// GetByName retrieves a server by name.
func (s *Service) GetByName(ctx context.Context, name string) (*Server, error) {
	return s.repo.FindByName(ctx, name)
}

// List retrieves servers based on filter and pagination.
func (s *Service) List(ctx context.Context, filter Filter, p *query.Pagination) ([]*Server, int64, error) {
	servers, err := s.repo.FindByFilter(ctx, filter, p)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return servers, count, nil
}

// Update applies the provided fields and re-registers the server if it is
// running, since name and allowed hosts are part of its sandbox
// registration.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (*Server, error) {
	srv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	registrationChanged := false
	if input.Name != nil && *input.Name != srv.Name {
		if !serverNamePattern.MatchString(*input.Name) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "server name must match ^[a-z][a-z0-9_]*$", nil, "server-003")
		}
		dup, err := s.repo.FindByName(ctx, *input.Name)
		if err != nil && !platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
			return nil, err
		}
		if dup != nil {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "a server named "+*input.Name+" already exists", nil, "server-004")
		}
		srv.Name = *input.Name
		registrationChanged = true
	}
	if input.Description != nil {
		srv.Description = *input.Description
	}
	if input.AllowedHosts != nil {
		srv.AllowedHosts = *input.AllowedHosts
		registrationChanged = true
	}
	if input.DefaultTimeoutMS != nil {
		if *input.DefaultTimeoutMS <= 0 {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "default timeout must be positive", nil, "server-005")
		}
		srv.DefaultTimeoutMS = *input.DefaultTimeoutMS
	}

	if err := s.repo.Update(ctx, srv); err != nil {
		return nil, err
	}

	if registrationChanged {
		s.resync.ResyncServer(ctx, srv.ID)
	}
	s.activity.LogAudit("Server updated: "+srv.Name, map[string]any{
		"server_id": srv.ID,
	})
	return srv, nil
}

// Delete removes a server and everything under it (tools, secrets,
// sources cascade in storage). A running server is unregistered from the
// sandbox first; failure to unregister is logged but does not block the
// delete.
func (s *Service) Delete(ctx context.Context, id string) (*Server, error) {
	srv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if srv.Status == StatusRunning {
		if err := s.deregistrar.DeregisterServer(ctx, srv.ID); err != nil {
			s.logger.Warn().Err(err).Str("server_id", srv.ID).Msg("sandbox unregister failed during delete")
			s.activity.LogAlert("Sandbox unregister failed while deleting server "+srv.Name, map[string]any{
				"server_id": srv.ID, "error": err.Error(),
			})
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, err
	}
	s.activity.LogAudit("Server deleted: "+srv.Name, map[string]any{
		"server_id": srv.ID,
	})
	return srv, nil
}

// SetStatus records a runtime state transition.
func (s *Service) SetStatus(ctx context.Context, id string, status Status) error {
	srv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if srv.Status == status {
		return nil
	}
	srv.Status = status
	return s.repo.Update(ctx, srv)
}
