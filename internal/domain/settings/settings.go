package settings

import (
	"context"
	"time"
)

// Well-known setting keys. Values are stored as text; JSON-valued keys are
// documented next to their accessors on Service.
const (
	KeyToolApprovalMode   = "tool_approval_mode"
	KeyAllowedModules     = "allowed_modules"
	KeyEmailPolicyType    = "email_policy_type"
	KeyAllowedEmails      = "allowed_emails"
	KeyAllowedEmailDomain = "allowed_email_domain"
	KeyServiceToken       = "service_token"
	KeyTunnelToken        = "tunnel_token"
	KeyWorkerDeployConfig = "worker_deploy_config"
	KeyLogRetentionDays   = "log_retention_days"
	KeyRedactSensitive    = "redact_sensitive_data"
)

// Approval modes for the tool publish workflow.
const (
	ApprovalModeRequire = "require_approval"
	ApprovalModeAuto    = "auto_approve"
)

// Email policy types. An empty policy type means any forwarded email is
// accepted.
const (
	EmailPolicyNone   = ""
	EmailPolicyEmails = "emails"
	EmailPolicyDomain = "email_domain"
)

// Setting is one process-wide key/value row. Encrypted settings hold a
// base64 AEAD blob in Value; the plaintext never reaches this struct.
type Setting struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Encrypted   bool      `json:"encrypted"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Repository defines the data access interface for settings.
type Repository interface {
	Get(ctx context.Context, key string) (*Setting, error)
	List(ctx context.Context) ([]*Setting, error)
	Upsert(ctx context.Context, setting *Setting) error
	Delete(ctx context.Context, key string) error
}
