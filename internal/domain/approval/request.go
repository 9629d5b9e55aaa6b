package approval

import (
	"context"
	"time"
)

// RequestStatus is the review state of a module or network access request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

// ModuleRequest asks for a Python module to be added to the global
// allowlist. At most one pending request may exist per (tool, module);
// the storage layer enforces this with a partial unique index and reports
// duplicates as a conflict.
type ModuleRequest struct {
	ID            string        `json:"id"`
	ToolID        string        `json:"tool_id"`
	ModuleName    string        `json:"module_name"`
	Justification string        `json:"justification,omitempty"`
	Status        RequestStatus `json:"status"`
	ReviewedBy    string        `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time    `json:"reviewed_at,omitempty"`
	ReviewNotes   string        `json:"review_notes,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// NetworkAccessRequest asks for an outbound host to be allowed for the
// tool's server. Uniqueness of pending requests is keyed on
// (tool, host, port) with a missing port treated as 0.
type NetworkAccessRequest struct {
	ID            string        `json:"id"`
	ToolID        string        `json:"tool_id"`
	Host          string        `json:"host"`
	Port          *int          `json:"port,omitempty"`
	Justification string        `json:"justification,omitempty"`
	Status        RequestStatus `json:"status"`
	ReviewedBy    string        `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time    `json:"reviewed_at,omitempty"`
	ReviewNotes   string        `json:"review_notes,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func (r *ModuleRequest) review(to RequestStatus, by, notes string) {
	now := time.Now().UTC()
	r.Status = to
	r.ReviewedBy = by
	r.ReviewedAt = &now
	r.ReviewNotes = notes
}

func (r *NetworkAccessRequest) review(to RequestStatus, by, notes string) {
	now := time.Now().UTC()
	r.Status = to
	r.ReviewedBy = by
	r.ReviewedAt = &now
	r.ReviewNotes = notes
}

// RequestFilter narrows request list queries. ModuleName applies to module
// requests only, Host to network requests only.
type RequestFilter struct {
	ToolID     *string
	Status     *RequestStatus
	ModuleName *string
	Host       *string
}

// ModuleRequestRepository defines the data access interface for module
// requests. Create must surface a duplicate pending request as a CONFLICT
// error from the unique index, not from a racy pre-check.
type ModuleRequestRepository interface {
	Create(ctx context.Context, request *ModuleRequest) error
	FindByID(ctx context.Context, id string) (*ModuleRequest, error)
	FindByFilter(ctx context.Context, filter RequestFilter) ([]*ModuleRequest, error)
	Count(ctx context.Context, filter RequestFilter) (int64, error)
	Update(ctx context.Context, request *ModuleRequest) error
}

// NetworkRequestRepository defines the data access interface for network
// access requests, with the same duplicate-pending contract as module
// requests.
type NetworkRequestRepository interface {
	Create(ctx context.Context, request *NetworkAccessRequest) error
	FindByID(ctx context.Context, id string) (*NetworkAccessRequest, error)
	FindByFilter(ctx context.Context, filter RequestFilter) ([]*NetworkAccessRequest, error)
	Count(ctx context.Context, filter RequestFilter) (int64, error)
	Update(ctx context.Context, request *NetworkAccessRequest) error
}
