package dbschema

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"

	"mcpbox/internal/domain/tool"
	"mcpbox/internal/infrastructure/database"
)

func init() {
	database.RegisterSchemaForAutoMigrate(Tool{})
	database.RegisterSchemaForAutoMigrate(ToolVersion{})
}

// Tool represents the database schema for tools
type Tool struct {
	ID                  string         `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()"`
	ServerID            string         `gorm:"column:server_id;type:uuid;not null;index;uniqueIndex:idx_tools_server_name"`
	Name                string         `gorm:"column:name;size:255;not null;uniqueIndex:idx_tools_server_name"`
	Description         string         `gorm:"column:description;type:text"`
	Enabled             bool           `gorm:"column:enabled;not null;default:true"`
	TimeoutMS           int            `gorm:"column:timeout_ms;not null;default:30000"`
	ToolType            string         `gorm:"column:tool_type;size:20;not null;default:'python_code'"`
	PythonCode          string         `gorm:"column:python_code;type:text"`
	ExternalSourceID    *string        `gorm:"column:external_source_id;type:uuid;index"`
	ExternalToolName    string         `gorm:"column:external_tool_name;size:255"`
	InputSchema         datatypes.JSON `gorm:"column:input_schema;type:jsonb"`
	CodeDependencies    pq.StringArray `gorm:"column:code_dependencies;type:text[]"`
	CurrentVersion      int            `gorm:"column:current_version;not null;default:1"`
	ApprovalStatus      string         `gorm:"column:approval_status;size:20;not null;default:'draft';index"`
	ApprovalRequestedAt *time.Time     `gorm:"column:approval_requested_at"`
	ApprovedAt          *time.Time     `gorm:"column:approved_at"`
	ApprovedBy          string         `gorm:"column:approved_by;size:255"`
	RejectionReason     string         `gorm:"column:rejection_reason;type:text"`
	CreatedBy           string         `gorm:"column:created_by;size:255"`
	PublishNotes        string         `gorm:"column:publish_notes;type:text"`
	CreatedAt           time.Time      `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt           time.Time      `gorm:"column:updated_at;not null;default:now()"`

	Server *Server `gorm:"foreignKey:ServerID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (Tool) TableName() string {
	return "mcpbox.tools"
}

// ToDomain converts a database schema Tool to a domain model
func (t *Tool) ToDomain() *tool.Tool {
	return &tool.Tool{
		ID:                  t.ID,
		ServerID:            t.ServerID,
		Name:                t.Name,
		Description:         t.Description,
		Enabled:             t.Enabled,
		TimeoutMS:           t.TimeoutMS,
		ToolType:            tool.Type(t.ToolType),
		PythonCode:          t.PythonCode,
		ExternalSourceID:    t.ExternalSourceID,
		ExternalToolName:    t.ExternalToolName,
		InputSchema:         json.RawMessage(t.InputSchema),
		CodeDependencies:    []string(t.CodeDependencies),
		CurrentVersion:      t.CurrentVersion,
		ApprovalStatus:      tool.ApprovalStatus(t.ApprovalStatus),
		ApprovalRequestedAt: t.ApprovalRequestedAt,
		ApprovedAt:          t.ApprovedAt,
		ApprovedBy:          t.ApprovedBy,
		RejectionReason:     t.RejectionReason,
		CreatedBy:           t.CreatedBy,
		PublishNotes:        t.PublishNotes,
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
	}
}

// NewSchemaTool converts a domain Tool to a database schema
func NewSchemaTool(t *tool.Tool) *Tool {
	return &Tool{
		ID:                  t.ID,
		ServerID:            t.ServerID,
		Name:                t.Name,
		Description:         t.Description,
		Enabled:             t.Enabled,
		TimeoutMS:           t.TimeoutMS,
		ToolType:            string(t.ToolType),
		PythonCode:          t.PythonCode,
		ExternalSourceID:    t.ExternalSourceID,
		ExternalToolName:    t.ExternalToolName,
		InputSchema:         datatypes.JSON(t.InputSchema),
		CodeDependencies:    pq.StringArray(t.CodeDependencies),
		CurrentVersion:      t.CurrentVersion,
		ApprovalStatus:      string(t.ApprovalStatus),
		ApprovalRequestedAt: t.ApprovalRequestedAt,
		ApprovedAt:          t.ApprovedAt,
		ApprovedBy:          t.ApprovedBy,
		RejectionReason:     t.RejectionReason,
		CreatedBy:           t.CreatedBy,
		PublishNotes:        t.PublishNotes,
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
	}
}

// ToolVersion represents the database schema for immutable tool version
// snapshots. Rows are insert-only.
type ToolVersion struct {
	ID            string         `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()"`
	ToolID        string         `gorm:"column:tool_id;type:uuid;not null;uniqueIndex:idx_tool_versions_tool_number"`
	VersionNumber int            `gorm:"column:version_number;not null;uniqueIndex:idx_tool_versions_tool_number"`
	Name          string         `gorm:"column:name;size:255;not null"`
	Description   string         `gorm:"column:description;type:text"`
	Enabled       bool           `gorm:"column:enabled;not null"`
	TimeoutMS     int            `gorm:"column:timeout_ms;not null"`
	PythonCode    string         `gorm:"column:python_code;type:text"`
	InputSchema   datatypes.JSON `gorm:"column:input_schema;type:jsonb"`
	ChangeSummary string         `gorm:"column:change_summary;type:text"`
	ChangeSource  string         `gorm:"column:change_source;size:20;not null;default:'manual'"`
	CreatedAt     time.Time      `gorm:"column:created_at;not null;default:now()"`

	Tool *Tool `gorm:"foreignKey:ToolID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (ToolVersion) TableName() string {
	return "mcpbox.tool_versions"
}

// ToDomain converts a database schema ToolVersion to a domain model
func (v *ToolVersion) ToDomain() *tool.Version {
	return &tool.Version{
		ID:            v.ID,
		ToolID:        v.ToolID,
		VersionNumber: v.VersionNumber,
		Name:          v.Name,
		Description:   v.Description,
		Enabled:       v.Enabled,
		TimeoutMS:     v.TimeoutMS,
		PythonCode:    v.PythonCode,
		InputSchema:   json.RawMessage(v.InputSchema),
		ChangeSummary: v.ChangeSummary,
		ChangeSource:  tool.ChangeSource(v.ChangeSource),
		CreatedAt:     v.CreatedAt,
	}
}

// NewSchemaToolVersion converts a domain tool Version to a database schema
func NewSchemaToolVersion(v *tool.Version) *ToolVersion {
	return &ToolVersion{
		ID:            v.ID,
		ToolID:        v.ToolID,
		VersionNumber: v.VersionNumber,
		Name:          v.Name,
		Description:   v.Description,
		Enabled:       v.Enabled,
		TimeoutMS:     v.TimeoutMS,
		PythonCode:    v.PythonCode,
		InputSchema:   datatypes.JSON(v.InputSchema),
		ChangeSummary: v.ChangeSummary,
		ChangeSource:  string(v.ChangeSource),
		CreatedAt:     v.CreatedAt,
	}
}
