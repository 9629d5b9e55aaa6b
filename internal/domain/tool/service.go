package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mcpbox/internal/domain/activity"
	"mcpbox/internal/domain/query"
	"mcpbox/internal/domain/server"
	"mcpbox/internal/domain/settings"
	"mcpbox/internal/infrastructure/logger"
	"mcpbox/internal/utils/platformerrors"
)

var toolNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// trackedFields are the versioned tool fields, in the order they appear in
// change summaries.
var trackedFields = []string{"name", "description", "enabled", "timeout_ms", "python_code", "input_schema"}

// Resyncer re-registers a running server after its observable tool set
// changes. Implementations must be safe to call for stopped servers.
type Resyncer interface {
	ResyncServer(ctx context.Context, serverID string)
}

// ApprovalPolicy reports the publish workflow mode
// (settings.ApprovalModeRequire or settings.ApprovalModeAuto).
type ApprovalPolicy interface {
	ToolApprovalMode(ctx context.Context) (string, error)
}

// CreateInput carries the fields accepted when creating a tool.
type CreateInput struct {
	ServerID         string
	Name             string
	Description      string
	ToolType         Type
	PythonCode       string
	ExternalSourceID *string
	ExternalToolName string
	TimeoutMS        int
	Enabled          *bool
	InputSchema      json.RawMessage
	CreatedBy        string
	ChangeSource     ChangeSource
}

// UpdateInput carries the optional fields of a tool update. Nil pointers
// leave the field untouched.
type UpdateInput struct {
	Name         *string
	Description  *string
	Enabled      *bool
	TimeoutMS    *int
	PythonCode   *string
	InputSchema  json.RawMessage
	ChangeSource ChangeSource
}

// StatusView is the lifecycle summary served by tool status queries.
type StatusView struct {
	ToolID              string         `json:"tool_id"`
	Name                string         `json:"name"`
	ApprovalStatus      ApprovalStatus `json:"approval_status"`
	Enabled             bool           `json:"enabled"`
	CurrentVersion      int            `json:"current_version"`
	ServerID            string         `json:"server_id"`
	ServerName          string         `json:"server_name"`
	ServerStatus        server.Status  `json:"server_status"`
	Exposed             bool           `json:"exposed"`
	ApprovalRequestedAt *time.Time     `json:"approval_requested_at,omitempty"`
	ApprovedAt          *time.Time     `json:"approved_at,omitempty"`
	ApprovedBy          string         `json:"approved_by,omitempty"`
	RejectionReason     string         `json:"rejection_reason,omitempty"`
}

// ExposedKey returns the sandbox-side tool key for a server/tool pair.
func ExposedKey(serverName, toolName string) string {
	return serverName + "__" + toolName
}

// Service provides business logic for tool operations: CRUD with immutable
// version snapshots, and the approval lifecycle gating gateway exposure.
type Service struct {
	repo     Repository
	versions VersionRepository
	servers  server.Repository
	policy   ApprovalPolicy
	resync   Resyncer
	activity *activity.Logger
	logger   zerolog.Logger
}

// NewService creates a new tool service.
func NewService(
	repo Repository,
	versions VersionRepository,
	servers server.Repository,
	policy ApprovalPolicy,
	resync Resyncer,
	activityLogger *activity.Logger,
) *Service {
	return &Service{
		repo:     repo,
		versions: versions,
		servers:  servers,
		policy:   policy,
		resync:   resync,
		activity: activityLogger,
		logger:   logger.Component("tool"),
	}
}

// Create validates and stores a new tool in draft state, writing version 1.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Tool, error) {
	if !toolNamePattern.MatchString(input.Name) {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "tool name must match ^[a-z][a-z0-9_]*$", nil, "tool-001")
	}

	srv, err := s.servers.FindByID(ctx, input.ServerID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByServerAndName(ctx, input.ServerID, input.Name)
	if err != nil && !platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "a tool named "+input.Name+" already exists on this server", nil, "tool-002")
	}

	toolType := input.ToolType
	if toolType == "" {
		toolType = TypePythonCode
	}

	t := &Tool{
		ID:               uuid.NewString(),
		ServerID:         input.ServerID,
		Name:             input.Name,
		Description:      input.Description,
		Enabled:          true,
		TimeoutMS:        input.TimeoutMS,
		ToolType:         toolType,
		PythonCode:       input.PythonCode,
		ExternalSourceID: input.ExternalSourceID,
		ExternalToolName: input.ExternalToolName,
		InputSchema:      input.InputSchema,
		CurrentVersion:   1,
		ApprovalStatus:   ApprovalDraft,
		CreatedBy:        input.CreatedBy,
	}
	if input.Enabled != nil {
		t.Enabled = *input.Enabled
	}
	if t.TimeoutMS <= 0 {
		t.TimeoutMS = srv.DefaultTimeoutMS
	}

	switch toolType {
	case TypePythonCode:
		if issues := ValidateCode(input.PythonCode); len(issues) > 0 {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "invalid tool code: "+issues[0].Message, nil, "tool-003")
		}
		if len(t.InputSchema) == 0 {
			schema, err := DeriveInputSchema(input.PythonCode)
			if err != nil {
				return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "failed to derive input schema", err, "tool-004")
			}
			t.InputSchema = schema
		}
		t.CodeDependencies = ExtractDependencies(input.PythonCode)
	case TypeMCPPassthrough:
		if input.ExternalSourceID == nil || input.ExternalToolName == "" {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "passthrough tools require an external source and tool name", nil, "tool-005")
		}
	default:
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "unknown tool type: "+string(toolType), nil, "tool-006")
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	source := input.ChangeSource
	if source == "" {
		source = ChangeSourceManual
	}
	if err := s.versions.Create(ctx, snapshot(t, "Initial version", source)); err != nil {
		return nil, err
	}

	s.activity.LogAudit("Tool created: "+t.Name, map[string]any{
		"tool_id": t.ID, "server_id": t.ServerID, "tool_type": string(toolType), "created_by": input.CreatedBy,
	})
	return t, nil
}

// Update applies the provided fields, versioning the result. A no-op update
// returns the tool unchanged without writing a version. Any python_code
// change resets approval to pending_review, regardless of previous status.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (*Tool, error) {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	proposed := *t
	if input.Name != nil && *input.Name != t.Name {
		if !toolNamePattern.MatchString(*input.Name) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "tool name must match ^[a-z][a-z0-9_]*$", nil, "tool-007")
		}
		dup, err := s.repo.FindByServerAndName(ctx, t.ServerID, *input.Name)
		if err != nil && !platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
			return nil, err
		}
		if dup != nil {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "a tool named "+*input.Name+" already exists on this server", nil, "tool-008")
		}
		proposed.Name = *input.Name
	}
	if input.Description != nil {
		proposed.Description = *input.Description
	}
	if input.Enabled != nil {
		proposed.Enabled = *input.Enabled
	}
	if input.TimeoutMS != nil {
		proposed.TimeoutMS = *input.TimeoutMS
	}
	if input.PythonCode != nil {
		if t.ToolType != TypePythonCode {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "cannot set python code on a passthrough tool", nil, "tool-009")
		}
		if issues := ValidateCode(*input.PythonCode); len(issues) > 0 {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "invalid tool code: "+issues[0].Message, nil, "tool-010")
		}
		proposed.PythonCode = *input.PythonCode
		proposed.CodeDependencies = ExtractDependencies(*input.PythonCode)
		if input.InputSchema == nil {
			schema, err := DeriveInputSchema(*input.PythonCode)
			if err == nil {
				proposed.InputSchema = schema
			}
		}
	}
	if input.InputSchema != nil {
		proposed.InputSchema = input.InputSchema
	}

	changed := diffTracked(t, &proposed)
	if len(changed) == 0 {
		return t, nil
	}

	if contains(changed, "python_code") {
		proposed.ApprovalStatus = ApprovalPendingReview
		proposed.RejectionReason = ""
	}
	proposed.CurrentVersion++

	if err := s.repo.Update(ctx, &proposed); err != nil {
		return nil, err
	}
	source := input.ChangeSource
	if source == "" {
		source = ChangeSourceManual
	}
	summary := "Updated: " + strings.Join(changed, ", ")
	if err := s.versions.Create(ctx, snapshot(&proposed, summary, source)); err != nil {
		return nil, err
	}

	s.resync.ResyncServer(ctx, proposed.ServerID)
	s.activity.LogAudit("Tool updated: "+proposed.Name, map[string]any{
		"tool_id": proposed.ID, "version": proposed.CurrentVersion, "changed": changed,
	})
	return &proposed, nil
}

// Rollback restores the content of an earlier version as a new version.
// The result always lands in pending_review: old code re-enters the world
// only through review.
func (s *Service) Rollback(ctx context.Context, id string, versionNumber int) (*Tool, error) {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	v, err := s.versions.FindByToolAndNumber(ctx, id, versionNumber)
	if err != nil {
		return nil, err
	}

	t.Name = v.Name
	t.Description = v.Description
	t.Enabled = v.Enabled
	t.TimeoutMS = v.TimeoutMS
	t.PythonCode = v.PythonCode
	t.InputSchema = v.InputSchema
	if t.ToolType == TypePythonCode {
		t.CodeDependencies = ExtractDependencies(v.PythonCode)
	}
	t.ApprovalStatus = ApprovalPendingReview
	t.RejectionReason = ""
	t.CurrentVersion++

	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	summary := "Rolled back to version " + strconv.Itoa(versionNumber)
	if err := s.versions.Create(ctx, snapshot(t, summary, ChangeSourceRollback)); err != nil {
		return nil, err
	}

	s.resync.ResyncServer(ctx, t.ServerID)
	s.activity.LogAudit("Tool rolled back: "+t.Name, map[string]any{
		"tool_id": t.ID, "to_version": versionNumber, "new_version": t.CurrentVersion,
	})
	return t, nil
}

// RequestPublish moves a draft or rejected tool into review. In
// auto_approve mode it lands approved immediately.
func (s *Service) RequestPublish(ctx context.Context, id, notes, requestedBy string) (*Tool, error) {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch t.ApprovalStatus {
	case ApprovalPendingReview:
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "tool is already pending review", nil, "tool-011")
	case ApprovalApproved:
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "tool is already approved", nil, "tool-012")
	}

	now := time.Now().UTC()
	t.ApprovalRequestedAt = &now
	t.PublishNotes = notes
	t.RejectionReason = ""

	mode, err := s.policy.ToolApprovalMode(ctx)
	if err != nil {
		return nil, err
	}
	if mode == settings.ApprovalModeAuto {
		t.ApprovalStatus = ApprovalApproved
		t.ApprovedAt = &now
		t.ApprovedBy = "auto_approve"
	} else {
		t.ApprovalStatus = ApprovalPendingReview
	}

	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	if t.ApprovalStatus == ApprovalApproved {
		s.resync.ResyncServer(ctx, t.ServerID)
	}
	s.activity.LogAudit("Publish requested: "+t.Name, map[string]any{
		"tool_id": t.ID, "mode": mode, "status": string(t.ApprovalStatus), "requested_by": requestedBy,
	})
	return t, nil
}

// Approve marks a pending tool approved.
func (s *Service) Approve(ctx context.Context, id, approvedBy string) (*Tool, error) {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.ApprovalStatus != ApprovalPendingReview {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "tool is not pending review", nil, "tool-013")
	}

	now := time.Now().UTC()
	t.ApprovalStatus = ApprovalApproved
	t.ApprovedAt = &now
	t.ApprovedBy = approvedBy
	t.RejectionReason = ""

	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	s.resync.ResyncServer(ctx, t.ServerID)
	s.activity.LogAudit("Tool approved: "+t.Name, map[string]any{
		"tool_id": t.ID, "approved_by": approvedBy,
	})
	return t, nil
}

// Reject marks a pending tool rejected. A reason is mandatory: the author
// has to know what to fix.
func (s *Service) Reject(ctx context.Context, id, rejectedBy, reason string) (*Tool, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "a rejection reason is required", nil, "tool-014")
	}
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.ApprovalStatus != ApprovalPendingReview {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "tool is not pending review", nil, "tool-015")
	}

	t.ApprovalStatus = ApprovalRejected
	t.RejectionReason = reason

	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	s.activity.LogAudit("Tool rejected: "+t.Name, map[string]any{
		"tool_id": t.ID, "rejected_by": rejectedBy, "reason": reason,
	})
	return t, nil
}

// Revoke pulls an approved tool back into review, removing it from the
// gateway.
func (s *Service) Revoke(ctx context.Context, id, revokedBy string) (*Tool, error) {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.ApprovalStatus != ApprovalApproved {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "tool is not approved", nil, "tool-016")
	}

	t.ApprovalStatus = ApprovalPendingReview
	t.ApprovedAt = nil
	t.ApprovedBy = ""

	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	s.resync.ResyncServer(ctx, t.ServerID)
	s.activity.LogAudit("Tool approval revoked: "+t.Name, map[string]any{
		"tool_id": t.ID, "revoked_by": revokedBy,
	})
	return t, nil
}

// Get retrieves a tool by ID.
func (s *Service) Get(ctx context.Context, id string) (*Tool, error) {
	return s.repo.FindByID(ctx, id)
}

// List retrieves tools based on filter and pagination.
func (s *Service) List(ctx context.Context, filter Filter, p *query.Pagination) ([]*Tool, int64, error) {
	tools, err := s.repo.FindByFilter(ctx, filter, p)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return tools, count, nil
}

// Delete removes a tool and re-registers its server. Returns the deleted
// tool so callers can report what was removed.
func (s *Service) Delete(ctx context.Context, id string) (*Tool, error) {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, err
	}
	s.resync.ResyncServer(ctx, t.ServerID)
	s.activity.LogAudit("Tool deleted: "+t.Name, map[string]any{
		"tool_id": t.ID, "server_id": t.ServerID,
	})
	return t, nil
}

// Status reports the lifecycle summary of a tool, including whether it is
// currently exposed on the gateway.
func (s *Service) Status(ctx context.Context, id string) (*StatusView, error) {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	srv, err := s.servers.FindByID(ctx, t.ServerID)
	if err != nil {
		return nil, err
	}
	return &StatusView{
		ToolID:              t.ID,
		Name:                t.Name,
		ApprovalStatus:      t.ApprovalStatus,
		Enabled:             t.Enabled,
		CurrentVersion:      t.CurrentVersion,
		ServerID:            srv.ID,
		ServerName:          srv.Name,
		ServerStatus:        srv.Status,
		Exposed:             t.Exposable() && srv.Status == server.StatusRunning,
		ApprovalRequestedAt: t.ApprovalRequestedAt,
		ApprovedAt:          t.ApprovedAt,
		ApprovedBy:          t.ApprovedBy,
		RejectionReason:     t.RejectionReason,
	}, nil
}

// ListVersions retrieves the version history of a tool, newest first.
func (s *Service) ListVersions(ctx context.Context, toolID string) ([]*Version, error) {
	if _, err := s.repo.FindByID(ctx, toolID); err != nil {
		return nil, err
	}
	return s.versions.FindByTool(ctx, toolID)
}

// ExposedKeys returns the set of sandbox tool keys currently visible on the
// gateway.
func (s *Service) ExposedKeys(ctx context.Context) (map[string]struct{}, error) {
	exposed, err := s.repo.FindExposed(ctx)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]struct{}, len(exposed))
	for _, e := range exposed {
		keys[ExposedKey(e.ServerName, e.ToolName)] = struct{}{}
	}
	return keys, nil
}

// diffTracked lists the tracked fields that differ between two tools, in
// trackedFields order.
func diffTracked(old, proposed *Tool) []string {
	var changed []string
	for _, field := range trackedFields {
		switch field {
		case "name":
			if old.Name != proposed.Name {
				changed = append(changed, field)
			}
		case "description":
			if old.Description != proposed.Description {
				changed = append(changed, field)
			}
		case "enabled":
			if old.Enabled != proposed.Enabled {
				changed = append(changed, field)
			}
		case "timeout_ms":
			if old.TimeoutMS != proposed.TimeoutMS {
				changed = append(changed, field)
			}
		case "python_code":
			if old.PythonCode != proposed.PythonCode {
				changed = append(changed, field)
			}
		case "input_schema":
			if !sameJSON(old.InputSchema, proposed.InputSchema) {
				changed = append(changed, field)
			}
		}
	}
	return changed
}

func sameJSON(a, b json.RawMessage) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	var bufA, bufB bytes.Buffer
	if json.Compact(&bufA, a) != nil || json.Compact(&bufB, b) != nil {
		return bytes.Equal(a, b)
	}
	return bufA.String() == bufB.String()
}

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
