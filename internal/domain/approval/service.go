package approval

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mcpbox/internal/domain/activity"
	"mcpbox/internal/domain/server"
	"mcpbox/internal/domain/settings"
	"mcpbox/internal/domain/tool"
	"mcpbox/internal/infrastructure/logger"
	"mcpbox/internal/utils/platformerrors"
)

var moduleNamePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.\-]*$`)

// PackageInstaller triggers sandbox package installation. Installation is
// best-effort on approval: the sandbox also syncs packages on registration.
type PackageInstaller interface {
	InstallPackage(ctx context.Context, module string) error
}

// ServerResyncer re-registers a running server after a policy change that
// alters its sandbox registration payload.
type ServerResyncer interface {
	ResyncServer(ctx context.Context, serverID string)
}

// PendingSet aggregates everything awaiting review.
type PendingSet struct {
	Tools           []*tool.Tool            `json:"tools"`
	ModuleRequests  []*ModuleRequest        `json:"module_requests"`
	NetworkRequests []*NetworkAccessRequest `json:"network_requests"`
}

// DashboardStats summarizes review workload for the admin dashboard.
type DashboardStats struct {
	PendingTools           int64 `json:"pending_tools"`
	PendingModuleRequests  int64 `json:"pending_module_requests"`
	PendingNetworkRequests int64 `json:"pending_network_requests"`
	TotalPending           int64 `json:"total_pending"`
	TotalServers           int64 `json:"total_servers"`
	TotalTools             int64 `json:"total_tools"`
	ApprovedTools          int64 `json:"approved_tools"`
	RecentlyApproved       int64 `json:"recently_approved"`
	RecentlyRejected       int64 `json:"recently_rejected"`
}

// Service provides business logic for module and network access request
// workflows and the review dashboard.
type Service struct {
	moduleRepo  ModuleRequestRepository
	networkRepo NetworkRequestRepository
	tools       tool.Repository
	servers     server.Repository
	settings    *settings.Service
	installer   PackageInstaller
	resync      ServerResyncer
	activity    *activity.Logger
	logger      zerolog.Logger
}

// NewService creates a new approval service.
func NewService(
	moduleRepo ModuleRequestRepository,
	networkRepo NetworkRequestRepository,
	tools tool.Repository,
	servers server.Repository,
	settingsService *settings.Service,
	installer PackageInstaller,
	resync ServerResyncer,
	activityLogger *activity.Logger,
) *Service {
	return &Service{
		moduleRepo:  moduleRepo,
		networkRepo: networkRepo,
		tools:       tools,
		servers:     servers,
		settings:    settingsService,
		installer:   installer,
		resync:      resync,
		activity:    activityLogger,
		logger:      logger.Component("approval"),
	}
}

// RequestModule files a module allowlist request for a tool. Duplicate
// pending requests surface as a CONFLICT from the unique index; there is
// deliberately no pre-check, so concurrent requests cannot race past it.
func (s *Service) RequestModule(ctx context.Context, toolID, moduleName, justification string) (*ModuleRequest, error) {
	if !moduleNamePattern.MatchString(moduleName) {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "invalid module name", nil, "approval-001")
	}
	if _, err := s.tools.FindByID(ctx, toolID); err != nil {
		return nil, err
	}

	allowed, err := s.settings.AllowedModules(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range allowed {
		if m == moduleName {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "module "+moduleName+" is already allowed", nil, "approval-002")
		}
	}

	req := &ModuleRequest{
		ID:            uuid.NewString(),
		ToolID:        toolID,
		ModuleName:    moduleName,
		Justification: justification,
		Status:        StatusPending,
	}
	if err := s.moduleRepo.Create(ctx, req); err != nil {
		return nil, err
	}
	s.activity.LogAudit("Module requested: "+moduleName, map[string]any{
		"tool_id": toolID, "module": moduleName, "request_id": req.ID,
	})
	return req, nil
}

// ApproveModuleRequest marks a pending module request approved, adds the
// module to the global allowlist, and asks the sandbox to install it.
// Installation failure is logged but does not undo the approval.
func (s *Service) ApproveModuleRequest(ctx context.Context, id, reviewedBy, notes string) (*ModuleRequest, error) {
	req, err := s.moduleRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "request is not pending", nil, "approval-003")
	}

	// Allowlist first: AddAllowedModule is idempotent, so a failed status
	// update leaves a retryable state rather than an approved-but-blocked
	// module.
	if err := s.settings.AddAllowedModule(ctx, req.ModuleName); err != nil {
		return nil, err
	}

	req.review(StatusApproved, reviewedBy, notes)
	if err := s.moduleRepo.Update(ctx, req); err != nil {
		return nil, err
	}

	if err := s.installer.InstallPackage(ctx, req.ModuleName); err != nil {
		s.logger.Warn().Err(err).Str("module", req.ModuleName).Msg("sandbox package install failed")
		s.activity.LogAlert("Sandbox install failed for approved module "+req.ModuleName, map[string]any{
			"module": req.ModuleName, "error": err.Error(),
		})
	}

	s.activity.LogAudit("Module request approved: "+req.ModuleName, map[string]any{
		"request_id": req.ID, "module": req.ModuleName, "reviewed_by": reviewedBy,
	})
	return req, nil
}

// RejectModuleRequest marks a pending module request rejected.
func (s *Service) RejectModuleRequest(ctx context.Context, id, reviewedBy, notes string) (*ModuleRequest, error) {
	req, err := s.moduleRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "request is not pending", nil, "approval-004")
	}
	req.review(StatusRejected, reviewedBy, notes)
	if err := s.moduleRepo.Update(ctx, req); err != nil {
		return nil, err
	}
	s.activity.LogAudit("Module request rejected: "+req.ModuleName, map[string]any{
		"request_id": req.ID, "module": req.ModuleName, "reviewed_by": reviewedBy,
	})
	return req, nil
}

// RevokeModuleApproval returns an approved module request to pending and
// removes the module from the allowlist, unless another approved request
// still covers it.
func (s *Service) RevokeModuleApproval(ctx context.Context, id, reviewedBy string) (*ModuleRequest, error) {
	req, err := s.moduleRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusApproved {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "request is not approved", nil, "approval-005")
	}

	req.Status = StatusPending
	req.ReviewedBy = reviewedBy
	req.ReviewedAt = nil
	req.ReviewNotes = ""
	if err := s.moduleRepo.Update(ctx, req); err != nil {
		return nil, err
	}

	stillCovered, err := s.moduleApprovedElsewhere(ctx, req.ModuleName, req.ID)
	if err != nil {
		return nil, err
	}
	if !stillCovered {
		if err := s.settings.RemoveAllowedModule(ctx, req.ModuleName); err != nil {
			return nil, err
		}
	}

	s.activity.LogAudit("Module approval revoked: "+req.ModuleName, map[string]any{
		"request_id": req.ID, "module": req.ModuleName, "reviewed_by": reviewedBy,
	})
	return req, nil
}

func (s *Service) moduleApprovedElsewhere(ctx context.Context, moduleName, excludeID string) (bool, error) {
	status := StatusApproved
	others, err := s.moduleRepo.FindByFilter(ctx, RequestFilter{ModuleName: &moduleName, Status: &status})
	if err != nil {
		return false, err
	}
	for _, other := range others {
		if other.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

// RequestNetworkAccess files an outbound-host request for a tool.
func (s *Service) RequestNetworkAccess(ctx context.Context, toolID, host string, port *int, justification string) (*NetworkAccessRequest, error) {
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" || strings.ContainsAny(host, "/ ") || strings.Contains(host, "://") {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "host must be a bare hostname", nil, "approval-006")
	}
	if port != nil && (*port < 1 || *port > 65535) {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "port must be between 1 and 65535", nil, "approval-007")
	}
	if _, err := s.tools.FindByID(ctx, toolID); err != nil {
		return nil, err
	}

	req := &NetworkAccessRequest{
		ID:            uuid.NewString(),
		ToolID:        toolID,
		Host:          host,
		Port:          port,
		Justification: justification,
		Status:        StatusPending,
	}
	if err := s.networkRepo.Create(ctx, req); err != nil {
		return nil, err
	}
	s.activity.LogAudit("Network access requested: "+host, map[string]any{
		"tool_id": toolID, "host": host, "request_id": req.ID,
	})
	return req, nil
}

// ApproveNetworkRequest marks a pending network request approved and adds
// the host to the owning server's allow list, re-registering the server if
// it is running.
func (s *Service) ApproveNetworkRequest(ctx context.Context, id, reviewedBy, notes string) (*NetworkAccessRequest, error) {
	req, err := s.networkRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "request is not pending", nil, "approval-008")
	}

	t, err := s.tools.FindByID(ctx, req.ToolID)
	if err != nil {
		return nil, err
	}
	srv, err := s.servers.FindByID(ctx, t.ServerID)
	if err != nil {
		return nil, err
	}

	if !srv.HasAllowedHost(req.Host) {
		srv.AllowedHosts = append(srv.AllowedHosts, req.Host)
		if err := s.servers.Update(ctx, srv); err != nil {
			return nil, err
		}
	}

	req.review(StatusApproved, reviewedBy, notes)
	if err := s.networkRepo.Update(ctx, req); err != nil {
		return nil, err
	}

	s.resync.ResyncServer(ctx, srv.ID)
	s.activity.LogAudit("Network access approved: "+req.Host, map[string]any{
		"request_id": req.ID, "host": req.Host, "server_id": srv.ID, "reviewed_by": reviewedBy,
	})
	return req, nil
}

// RejectNetworkRequest marks a pending network request rejected.
func (s *Service) RejectNetworkRequest(ctx context.Context, id, reviewedBy, notes string) (*NetworkAccessRequest, error) {
	req, err := s.networkRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "request is not pending", nil, "approval-009")
	}
	req.review(StatusRejected, reviewedBy, notes)
	if err := s.networkRepo.Update(ctx, req); err != nil {
		return nil, err
	}
	s.activity.LogAudit("Network access rejected: "+req.Host, map[string]any{
		"request_id": req.ID, "host": req.Host, "reviewed_by": reviewedBy,
	})
	return req, nil
}

// RevokeNetworkApproval returns an approved network request to pending and
// removes the host from the server allow list, unless another approved
// request for the same server still covers it.
func (s *Service) RevokeNetworkApproval(ctx context.Context, id, reviewedBy string) (*NetworkAccessRequest, error) {
	req, err := s.networkRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusApproved {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "request is not approved", nil, "approval-010")
	}

	t, err := s.tools.FindByID(ctx, req.ToolID)
	if err != nil {
		return nil, err
	}
	srv, err := s.servers.FindByID(ctx, t.ServerID)
	if err != nil {
		return nil, err
	}

	req.Status = StatusPending
	req.ReviewedBy = reviewedBy
	req.ReviewedAt = nil
	req.ReviewNotes = ""
	if err := s.networkRepo.Update(ctx, req); err != nil {
		return nil, err
	}

	stillCovered, err := s.hostApprovedElsewhere(ctx, srv.ID, req.Host, req.ID)
	if err != nil {
		return nil, err
	}
	if !stillCovered && srv.HasAllowedHost(req.Host) {
		kept := srv.AllowedHosts[:0]
		for _, h := range srv.AllowedHosts {
			if h != req.Host {
				kept = append(kept, h)
			}
		}
		srv.AllowedHosts = kept
		if err := s.servers.Update(ctx, srv); err != nil {
			return nil, err
		}
		s.resync.ResyncServer(ctx, srv.ID)
	}

	s.activity.LogAudit("Network approval revoked: "+req.Host, map[string]any{
		"request_id": req.ID, "host": req.Host, "server_id": srv.ID, "reviewed_by": reviewedBy,
	})
	return req, nil
}

func (s *Service) hostApprovedElsewhere(ctx context.Context, serverID, host, excludeID string) (bool, error) {
	status := StatusApproved
	others, err := s.networkRepo.FindByFilter(ctx, RequestFilter{Host: &host, Status: &status})
	if err != nil {
		return false, err
	}
	for _, other := range others {
		if other.ID == excludeID {
			continue
		}
		t, err := s.tools.FindByID(ctx, other.ToolID)
		if err != nil {
			continue
		}
		if t.ServerID == serverID {
			return true, nil
		}
	}
	return false, nil
}

// ListModuleRequests retrieves module requests by filter.
func (s *Service) ListModuleRequests(ctx context.Context, filter RequestFilter) ([]*ModuleRequest, error) {
	return s.moduleRepo.FindByFilter(ctx, filter)
}

// ListNetworkRequests retrieves network requests by filter.
func (s *Service) ListNetworkRequests(ctx context.Context, filter RequestFilter) ([]*NetworkAccessRequest, error) {
	return s.networkRepo.FindByFilter(ctx, filter)
}

// PendingRequests aggregates everything awaiting review.
func (s *Service) PendingRequests(ctx context.Context) (*PendingSet, error) {
	pendingReview := tool.ApprovalPendingReview
	tools, err := s.tools.FindByFilter(ctx, tool.Filter{ApprovalStatus: &pendingReview}, nil)
	if err != nil {
		return nil, err
	}
	pending := StatusPending
	modules, err := s.moduleRepo.FindByFilter(ctx, RequestFilter{Status: &pending})
	if err != nil {
		return nil, err
	}
	networks, err := s.networkRepo.FindByFilter(ctx, RequestFilter{Status: &pending})
	if err != nil {
		return nil, err
	}
	return &PendingSet{Tools: tools, ModuleRequests: modules, NetworkRequests: networks}, nil
}

// Dashboard aggregates review counters for the admin dashboard.
func (s *Service) Dashboard(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{}

	pendingReview := tool.ApprovalPendingReview
	approved := tool.ApprovalApproved
	pending := StatusPending

	var err error
	if stats.PendingTools, err = s.tools.Count(ctx, tool.Filter{ApprovalStatus: &pendingReview}); err != nil {
		return nil, err
	}
	if stats.PendingModuleRequests, err = s.moduleRepo.Count(ctx, RequestFilter{Status: &pending}); err != nil {
		return nil, err
	}
	if stats.PendingNetworkRequests, err = s.networkRepo.Count(ctx, RequestFilter{Status: &pending}); err != nil {
		return nil, err
	}
	stats.TotalPending = stats.PendingTools + stats.PendingModuleRequests + stats.PendingNetworkRequests

	if stats.TotalServers, err = s.servers.Count(ctx, server.Filter{}); err != nil {
		return nil, err
	}
	if stats.TotalTools, err = s.tools.Count(ctx, tool.Filter{}); err != nil {
		return nil, err
	}
	if stats.ApprovedTools, err = s.tools.Count(ctx, tool.Filter{ApprovalStatus: &approved}); err != nil {
		return nil, err
	}

	weekAgo := time.Now().UTC().AddDate(0, 0, -7)
	if stats.RecentlyApproved, err = s.tools.CountApprovedSince(ctx, weekAgo); err != nil {
		return nil, err
	}
	if stats.RecentlyRejected, err = s.tools.CountRejectedSince(ctx, weekAgo); err != nil {
		return nil, err
	}
	return stats, nil
}
