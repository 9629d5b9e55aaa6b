package activity

import (
	"context"
	"time"

	"mcpbox/internal/domain/query"
)

// LogType classifies activity entries.
type LogType string

const (
	TypeMCPRequest  LogType = "mcp_request"
	TypeMCPResponse LogType = "mcp_response"
	TypeNetwork     LogType = "network"
	TypeAlert       LogType = "alert"
	TypeError       LogType = "error"
	TypeSystem      LogType = "system"
	TypeAudit       LogType = "audit"
)

// Level is the severity of an activity entry.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Entry is one activity log record. ServerID is nullable: entries outlive
// the server they reference.
type Entry struct {
	ID         string         `json:"id"`
	ServerID   *string        `json:"server_id,omitempty"`
	LogType    LogType        `json:"log_type"`
	Level      Level          `json:"level"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	DurationMS *int           `json:"duration_ms,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter narrows activity log queries.
type Filter struct {
	ServerID  *string
	LogTypes  []LogType
	Levels    []Level
	RequestID *string
	Since     *time.Time
	Until     *time.Time
}

// StatsQuery scopes an aggregate query.
type StatsQuery struct {
	ServerID *string
	Since    *time.Time
	Until    *time.Time
}

// Stats is the aggregate view over a log window.
type Stats struct {
	TotalCount    int64            `json:"total_count"`
	ErrorCount    int64            `json:"error_count"`
	AvgDurationMS float64          `json:"avg_duration_ms"`
	ByType        map[string]int64 `json:"by_type"`
	ByLevel       map[string]int64 `json:"by_level"`
}

// Repository defines the data access interface for activity logs.
type Repository interface {
	CreateBatch(ctx context.Context, entries []*Entry) error
	FindByFilter(ctx context.Context, filter Filter, p *query.Pagination) ([]*Entry, error)
	Count(ctx context.Context, filter Filter) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context, q StatsQuery) (*Stats, error)
}
