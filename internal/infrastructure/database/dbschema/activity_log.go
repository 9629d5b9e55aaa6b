package dbschema

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"mcpbox/internal/domain/activity"
	"mcpbox/internal/infrastructure/database"
)

func init() {
	database.RegisterSchemaForAutoMigrate(ActivityLog{})
}

// ActivityLog represents the database schema for activity log entries.
// ServerID is nullable so entries outlive the server they reference.
type ActivityLog struct {
	ID         string         `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()"`
	ServerID   *string        `gorm:"column:server_id;type:uuid;index:idx_activity_logs_server_created,priority:1"`
	LogType    string         `gorm:"column:log_type;size:20;not null;index:idx_activity_logs_type_created,priority:1"`
	Level      string         `gorm:"column:level;size:10;not null;index:idx_activity_logs_level_created,priority:1"`
	Message    string         `gorm:"column:message;type:text;not null"`
	Details    datatypes.JSON `gorm:"column:details;type:jsonb"`
	RequestID  string         `gorm:"column:request_id;size:64;index"`
	DurationMS *int           `gorm:"column:duration_ms"`
	CreatedAt  time.Time      `gorm:"column:created_at;not null;default:now();index:idx_activity_logs_server_created,priority:2;index:idx_activity_logs_type_created,priority:2;index:idx_activity_logs_level_created,priority:2"`

	Server *Server `gorm:"foreignKey:ServerID;constraint:OnDelete:SET NULL"`
}

// TableName returns the table name for GORM
func (ActivityLog) TableName() string {
	return "mcpbox.activity_logs"
}

// ToDomain converts a database schema ActivityLog to a domain model
func (l *ActivityLog) ToDomain() *activity.Entry {
	var details map[string]any
	if len(l.Details) > 0 {
		_ = json.Unmarshal(l.Details, &details)
	}
	return &activity.Entry{
		ID:         l.ID,
		ServerID:   l.ServerID,
		LogType:    activity.LogType(l.LogType),
		Level:      activity.Level(l.Level),
		Message:    l.Message,
		Details:    details,
		RequestID:  l.RequestID,
		DurationMS: l.DurationMS,
		CreatedAt:  l.CreatedAt,
	}
}

// NewSchemaActivityLog converts a domain activity Entry to a database schema
func NewSchemaActivityLog(e *activity.Entry) *ActivityLog {
	var details datatypes.JSON
	if len(e.Details) > 0 {
		if raw, err := json.Marshal(e.Details); err == nil {
			details = datatypes.JSON(raw)
		}
	}
	return &ActivityLog{
		ID:         e.ID,
		ServerID:   e.ServerID,
		LogType:    string(e.LogType),
		Level:      string(e.Level),
		Message:    e.Message,
		Details:    details,
		RequestID:  e.RequestID,
		DurationMS: e.DurationMS,
		CreatedAt:  e.CreatedAt,
	}
}
