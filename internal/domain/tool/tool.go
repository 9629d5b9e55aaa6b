package tool

import (
	"context"
	"encoding/json"
	"time"

	"mcpbox/internal/domain/query"
)

// Type distinguishes locally-executed code tools from proxied external tools.
type Type string

const (
	TypePythonCode     Type = "python_code"
	TypeMCPPassthrough Type = "mcp_passthrough"
)

// ApprovalStatus is the review state that gates gateway exposure.
type ApprovalStatus string

const (
	ApprovalDraft         ApprovalStatus = "draft"
	ApprovalPendingReview ApprovalStatus = "pending_review"
	ApprovalApproved      ApprovalStatus = "approved"
	ApprovalRejected      ApprovalStatus = "rejected"
)

// ChangeSource records who or what produced a tool version.
type ChangeSource string

const (
	ChangeSourceManual   ChangeSource = "manual"
	ChangeSourceLLM      ChangeSource = "llm"
	ChangeSourceImport   ChangeSource = "import"
	ChangeSourceRollback ChangeSource = "rollback"
)

// Tool is a single callable unit belonging to a server.
type Tool struct {
	ID                  string          `json:"id"`
	ServerID            string          `json:"server_id"`
	Name                string          `json:"name"`
	Description         string          `json:"description"`
	Enabled             bool            `json:"enabled"`
	TimeoutMS           int             `json:"timeout_ms"`
	ToolType            Type            `json:"tool_type"`
	PythonCode          string          `json:"python_code,omitempty"`
	ExternalSourceID    *string         `json:"external_source_id,omitempty"`
	ExternalToolName    string          `json:"external_tool_name,omitempty"`
	InputSchema         json.RawMessage `json:"input_schema,omitempty"`
	CodeDependencies    []string        `json:"code_dependencies,omitempty"`
	CurrentVersion      int             `json:"current_version"`
	ApprovalStatus      ApprovalStatus  `json:"approval_status"`
	ApprovalRequestedAt *time.Time      `json:"approval_requested_at,omitempty"`
	ApprovedAt          *time.Time      `json:"approved_at,omitempty"`
	ApprovedBy          string          `json:"approved_by,omitempty"`
	RejectionReason     string          `json:"rejection_reason,omitempty"`
	CreatedBy           string          `json:"created_by,omitempty"`
	PublishNotes        string          `json:"publish_notes,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Exposable reports whether the tool may appear on the gateway, given its
// owning server is running.
func (t *Tool) Exposable() bool {
	return t.Enabled && t.ApprovalStatus == ApprovalApproved
}

// Filter narrows tool list queries.
type Filter struct {
	ServerID         *string
	Enabled          *bool
	ApprovalStatus   *ApprovalStatus
	ToolType         *Type
	ExternalSourceID *string
}

// ExposedTool identifies a tool currently visible on the gateway together
// with its owning server's name. The pair (ServerName, ToolName) forms the
// sandbox-side tool key.
type ExposedTool struct {
	ServerID   string
	ServerName string
	ToolName   string
}

// Repository defines the data access interface for tools.
type Repository interface {
	Create(ctx context.Context, tool *Tool) error
	FindByID(ctx context.Context, id string) (*Tool, error)
	FindByServerAndName(ctx context.Context, serverID, name string) (*Tool, error)
	FindByFilter(ctx context.Context, filter Filter, p *query.Pagination) ([]*Tool, error)
	// FindExposed returns enabled, approved tools whose server is running.
	FindExposed(ctx context.Context) ([]*ExposedTool, error)
	Count(ctx context.Context, filter Filter) (int64, error)
	CountApprovedSince(ctx context.Context, since time.Time) (int64, error)
	CountRejectedSince(ctx context.Context, since time.Time) (int64, error)
	Update(ctx context.Context, tool *Tool) error
	Delete(ctx context.Context, id string) error
}
