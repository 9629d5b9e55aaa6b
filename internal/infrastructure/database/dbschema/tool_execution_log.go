package dbschema

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"mcpbox/internal/domain/execlog"
	"mcpbox/internal/infrastructure/database"
)

func init() {
	database.RegisterSchemaForAutoMigrate(ToolExecutionLog{})
}

// ToolExecutionLog represents the database schema for tool execution
// outcomes.
type ToolExecutionLog struct {
	ID         string         `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()"`
	ToolID     string         `gorm:"column:tool_id;type:uuid;not null;index"`
	ServerID   string         `gorm:"column:server_id;type:uuid;not null;index"`
	ToolName   string         `gorm:"column:tool_name;size:255;not null"`
	InputArgs  datatypes.JSON `gorm:"column:input_args;type:jsonb"`
	Result     string         `gorm:"column:result;type:text"`
	Error      string         `gorm:"column:error;type:text"`
	Stdout     string         `gorm:"column:stdout;type:text"`
	DurationMS int            `gorm:"column:duration_ms;not null;default:0"`
	Success    bool           `gorm:"column:success;not null;default:false"`
	IsTest     bool           `gorm:"column:is_test;not null;default:false"`
	ExecutedBy string         `gorm:"column:executed_by;size:255"`
	CreatedAt  time.Time      `gorm:"column:created_at;not null;default:now();index"`

	Tool   *Tool   `gorm:"foreignKey:ToolID;constraint:OnDelete:CASCADE"`
	Server *Server `gorm:"foreignKey:ServerID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (ToolExecutionLog) TableName() string {
	return "mcpbox.tool_execution_logs"
}

// ToDomain converts a database schema ToolExecutionLog to a domain model
func (l *ToolExecutionLog) ToDomain() *execlog.Record {
	var args map[string]any
	if len(l.InputArgs) > 0 {
		_ = json.Unmarshal(l.InputArgs, &args)
	}
	return &execlog.Record{
		ID:         l.ID,
		ToolID:     l.ToolID,
		ServerID:   l.ServerID,
		ToolName:   l.ToolName,
		InputArgs:  args,
		Result:     l.Result,
		Error:      l.Error,
		Stdout:     l.Stdout,
		DurationMS: l.DurationMS,
		Success:    l.Success,
		IsTest:     l.IsTest,
		ExecutedBy: l.ExecutedBy,
		CreatedAt:  l.CreatedAt,
	}
}

// NewSchemaToolExecutionLog converts a domain execlog Record to a database
// schema
func NewSchemaToolExecutionLog(r *execlog.Record) *ToolExecutionLog {
	var args datatypes.JSON
	if len(r.InputArgs) > 0 {
		if raw, err := json.Marshal(r.InputArgs); err == nil {
			args = datatypes.JSON(raw)
		}
	}
	return &ToolExecutionLog{
		ID:         r.ID,
		ToolID:     r.ToolID,
		ServerID:   r.ServerID,
		ToolName:   r.ToolName,
		InputArgs:  args,
		Result:     r.Result,
		Error:      r.Error,
		Stdout:     r.Stdout,
		DurationMS: r.DurationMS,
		Success:    r.Success,
		IsTest:     r.IsTest,
		ExecutedBy: r.ExecutedBy,
		CreatedAt:  r.CreatedAt,
	}
}
