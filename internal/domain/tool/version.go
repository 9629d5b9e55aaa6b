package tool

import (
	"context"
	"encoding/json"
	"time"
)

// Version is an immutable snapshot of a tool's content at one version
// number. Rows are only ever inserted.
type Version struct {
	ID            string          `json:"id"`
	ToolID        string          `json:"tool_id"`
	VersionNumber int             `json:"version_number"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Enabled       bool            `json:"enabled"`
	TimeoutMS     int             `json:"timeout_ms"`
	PythonCode    string          `json:"python_code,omitempty"`
	InputSchema   json.RawMessage `json:"input_schema,omitempty"`
	ChangeSummary string          `json:"change_summary"`
	ChangeSource  ChangeSource    `json:"change_source"`
	CreatedAt     time.Time       `json:"created_at"`
}

// VersionRepository defines the data access interface for tool versions.
type VersionRepository interface {
	Create(ctx context.Context, version *Version) error
	FindByTool(ctx context.Context, toolID string) ([]*Version, error)
	FindByToolAndNumber(ctx context.Context, toolID string, number int) (*Version, error)
	CountByTool(ctx context.Context, toolID string) (int64, error)
}

// snapshot captures the tool's current mutable content as a version row.
func snapshot(t *Tool, summary string, source ChangeSource) *Version {
	return &Version{
		ToolID:        t.ID,
		VersionNumber: t.CurrentVersion,
		Name:          t.Name,
		Description:   t.Description,
		Enabled:       t.Enabled,
		TimeoutMS:     t.TimeoutMS,
		PythonCode:    t.PythonCode,
		InputSchema:   t.InputSchema,
		ChangeSummary: summary,
		ChangeSource:  source,
	}
}
