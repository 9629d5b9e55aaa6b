package execlog

import (
	"context"
	"time"

	"mcpbox/internal/domain/query"
)

// Record is one tool execution outcome, kept for debugging and audit.
// IsTest marks sandbox runs triggered from the editing surface rather than
// a real gateway call.
type Record struct {
	ID         string         `json:"id"`
	ToolID     string         `json:"tool_id"`
	ServerID   string         `json:"server_id"`
	ToolName   string         `json:"tool_name"`
	InputArgs  map[string]any `json:"input_args,omitempty"`
	Result     string         `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	Stdout     string         `json:"stdout,omitempty"`
	DurationMS int            `json:"duration_ms"`
	Success    bool           `json:"success"`
	IsTest     bool           `json:"is_test"`
	ExecutedBy string         `json:"executed_by,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter narrows execution log queries.
type Filter struct {
	ToolID   *string
	ServerID *string
	Success  *bool
	IsTest   *bool
}

// Repository defines the data access interface for execution logs.
type Repository interface {
	Create(ctx context.Context, record *Record) error
	FindByFilter(ctx context.Context, filter Filter, p *query.Pagination) ([]*Record, error)
	Count(ctx context.Context, filter Filter) (int64, error)
}

// Service provides business logic for execution log operations.
type Service struct {
	repo Repository
}

// NewService creates a new execution log service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Record persists one execution outcome.
func (s *Service) Record(ctx context.Context, record *Record) error {
	return s.repo.Create(ctx, record)
}

// List retrieves execution logs based on filter and pagination, newest
// first.
func (s *Service) List(ctx context.Context, filter Filter, p *query.Pagination) ([]*Record, int64, error) {
	records, err := s.repo.FindByFilter(ctx, filter, p)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return records, count, nil
}
