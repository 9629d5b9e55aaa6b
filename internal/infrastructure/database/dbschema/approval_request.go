package dbschema

import (
	"time"

	"mcpbox/internal/domain/approval"
	"mcpbox/internal/infrastructure/database"
)

func init() {
	database.RegisterSchemaForAutoMigrate(ModuleRequest{})
	database.RegisterSchemaForAutoMigrate(NetworkAccessRequest{})
}

// ModuleRequest represents the database schema for Python module allowlist
// requests. The partial unique index keeping one pending request per
// (tool_id, module_name) lives in the SQL migrations.
type ModuleRequest struct {
	ID            string     `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()"`
	ToolID        string     `gorm:"column:tool_id;type:uuid;not null;index"`
	ModuleName    string     `gorm:"column:module_name;size:255;not null"`
	Justification string     `gorm:"column:justification;type:text"`
	Status        string     `gorm:"column:status;size:20;not null;default:'pending';index"`
	ReviewedBy    string     `gorm:"column:reviewed_by;size:255"`
	ReviewedAt    *time.Time `gorm:"column:reviewed_at"`
	ReviewNotes   string     `gorm:"column:review_notes;type:text"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;not null;default:now()"`

	Tool *Tool `gorm:"foreignKey:ToolID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (ModuleRequest) TableName() string {
	return "mcpbox.module_requests"
}

// ToDomain converts a database schema ModuleRequest to a domain model
func (r *ModuleRequest) ToDomain() *approval.ModuleRequest {
	return &approval.ModuleRequest{
		ID:            r.ID,
		ToolID:        r.ToolID,
		ModuleName:    r.ModuleName,
		Justification: r.Justification,
		Status:        approval.RequestStatus(r.Status),
		ReviewedBy:    r.ReviewedBy,
		ReviewedAt:    r.ReviewedAt,
		ReviewNotes:   r.ReviewNotes,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// NewSchemaModuleRequest converts a domain ModuleRequest to a database schema
func NewSchemaModuleRequest(req *approval.ModuleRequest) *ModuleRequest {
	return &ModuleRequest{
		ID:            req.ID,
		ToolID:        req.ToolID,
		ModuleName:    req.ModuleName,
		Justification: req.Justification,
		Status:        string(req.Status),
		ReviewedBy:    req.ReviewedBy,
		ReviewedAt:    req.ReviewedAt,
		ReviewNotes:   req.ReviewNotes,
		CreatedAt:     req.CreatedAt,
		UpdatedAt:     req.UpdatedAt,
	}
}

// NetworkAccessRequest represents the database schema for outbound host
// allowlist requests. Pending uniqueness on (tool_id, host, COALESCE(port,
// 0)) is enforced by a partial unique index in the SQL migrations.
type NetworkAccessRequest struct {
	ID            string     `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()"`
	ToolID        string     `gorm:"column:tool_id;type:uuid;not null;index"`
	Host          string     `gorm:"column:host;size:255;not null"`
	Port          *int       `gorm:"column:port"`
	Justification string     `gorm:"column:justification;type:text"`
	Status        string     `gorm:"column:status;size:20;not null;default:'pending';index"`
	ReviewedBy    string     `gorm:"column:reviewed_by;size:255"`
	ReviewedAt    *time.Time `gorm:"column:reviewed_at"`
	ReviewNotes   string     `gorm:"column:review_notes;type:text"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;not null;default:now()"`

	Tool *Tool `gorm:"foreignKey:ToolID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (NetworkAccessRequest) TableName() string {
	return "mcpbox.network_access_requests"
}

// ToDomain converts a database schema NetworkAccessRequest to a domain model
func (r *NetworkAccessRequest) ToDomain() *approval.NetworkAccessRequest {
	return &approval.NetworkAccessRequest{
		ID:            r.ID,
		ToolID:        r.ToolID,
		Host:          r.Host,
		Port:          r.Port,
		Justification: r.Justification,
		Status:        approval.RequestStatus(r.Status),
		ReviewedBy:    r.ReviewedBy,
		ReviewedAt:    r.ReviewedAt,
		ReviewNotes:   r.ReviewNotes,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// NewSchemaNetworkAccessRequest converts a domain NetworkAccessRequest to a
// database schema
func NewSchemaNetworkAccessRequest(req *approval.NetworkAccessRequest) *NetworkAccessRequest {
	return &NetworkAccessRequest{
		ID:            req.ID,
		ToolID:        req.ToolID,
		Host:          req.Host,
		Port:          req.Port,
		Justification: req.Justification,
		Status:        string(req.Status),
		ReviewedBy:    req.ReviewedBy,
		ReviewedAt:    req.ReviewedAt,
		ReviewNotes:   req.ReviewNotes,
		CreatedAt:     req.CreatedAt,
		UpdatedAt:     req.UpdatedAt,
	}
}
