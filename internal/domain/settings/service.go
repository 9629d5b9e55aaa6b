package settings

import (
	"context"
	"encoding/json"
	"strconv"
	"sync/atomic"

	"github.com/rs/zerolog"

	"mcpbox/internal/infrastructure/logger"
	"mcpbox/internal/utils/crypto"
	"mcpbox/internal/utils/platformerrors"
)

// Invalidator is implemented by caches that must be dropped when the
// setting they mirror changes.
type Invalidator interface {
	Invalidate()
}

// aadForKey maps encrypted setting keys to their AEAD domain-separation
// string. Keys absent from this map are stored in plaintext.
var aadForKey = map[string]string{
	KeyServiceToken: crypto.AADServiceToken,
	KeyTunnelToken:  crypto.AADTunnelToken,
}

// Service provides business logic for settings operations, including typed
// accessors for the well-known keys and transparent encryption for the
// sensitive ones.
type Service struct {
	repo       Repository
	cipher     *crypto.Cipher
	tokenCache Invalidator
	emailCache Invalidator
	logger     zerolog.Logger

	// redact mirrors the redact_sensitive_data setting so hot paths can
	// read it without touching the database. 1 = redact.
	redact atomic.Int32
}

// NewService creates a new settings service. tokenCache and emailCache are
// invalidated when the settings backing them change; either may be nil.
func NewService(repo Repository, cipher *crypto.Cipher, tokenCache, emailCache Invalidator) *Service {
	s := &Service{
		repo:       repo,
		cipher:     cipher,
		tokenCache: tokenCache,
		emailCache: emailCache,
		logger:     logger.Component("settings"),
	}
	s.redact.Store(1)
	return s
}

// Get retrieves a single setting row. Encrypted values are returned as
// stored (ciphertext); use DecryptedValue for the plaintext.
func (s *Service) Get(ctx context.Context, key string) (*Setting, error) {
	if key == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "setting key is required", nil, "settings-001")
	}
	return s.repo.Get(ctx, key)
}

// List retrieves all settings rows.
func (s *Service) List(ctx context.Context) ([]*Setting, error) {
	return s.repo.List(ctx)
}

// Put validates and stores a setting value. Keys listed in aadForKey are
// encrypted before persisting; the dependent caches are invalidated.
func (s *Service) Put(ctx context.Context, key, value string) (*Setting, error) {
	if key == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "setting key is required", nil, "settings-002")
	}
	if err := validateKnownKey(ctx, key, value); err != nil {
		return nil, err
	}

	setting := &Setting{Key: key, Value: value}
	if aad, ok := aadForKey[key]; ok {
		setting.Encrypted = true
		if value != "" {
			encrypted, err := s.cipher.EncryptString(value, aad)
			if err != nil {
				return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal, "failed to encrypt setting value", err, "settings-003")
			}
			setting.Value = encrypted
		}
	}

	if err := s.repo.Upsert(ctx, setting); err != nil {
		return nil, err
	}
	s.afterWrite(key, value)
	return setting, nil
}

// Delete removes a setting row and invalidates dependent caches.
func (s *Service) Delete(ctx context.Context, key string) error {
	if key == "" {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "setting key is required", nil, "settings-004")
	}
	if err := s.repo.Delete(ctx, key); err != nil {
		return err
	}
	s.afterWrite(key, "")
	return nil
}

func (s *Service) afterWrite(key, plaintext string) {
	switch key {
	case KeyServiceToken:
		if s.tokenCache != nil {
			s.tokenCache.Invalidate()
		}
	case KeyEmailPolicyType, KeyAllowedEmails, KeyAllowedEmailDomain:
		if s.emailCache != nil {
			s.emailCache.Invalidate()
		}
	case KeyRedactSensitive:
		s.storeRedact(plaintext)
	}
}

// DecryptedValue returns the plaintext of an encrypted setting. A missing
// row or empty value yields NOT_FOUND so callers can distinguish "never
// configured" from a decryption failure.
func (s *Service) DecryptedValue(ctx context.Context, key string) (string, error) {
	setting, err := s.repo.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if setting == nil || setting.Value == "" {
		return "", platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound, "setting is not configured", nil, "settings-005")
	}
	if !setting.Encrypted {
		return setting.Value, nil
	}
	aad, ok := aadForKey[key]
	if !ok {
		aad = crypto.AADSettings
	}
	plain, err := s.cipher.DecryptString(setting.Value, aad)
	if err != nil {
		return "", platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal, "failed to decrypt setting value", err, "settings-006")
	}
	return plain, nil
}

// ToolApprovalMode returns the publish workflow mode, defaulting to
// require_approval when unset.
func (s *Service) ToolApprovalMode(ctx context.Context) (string, error) {
	setting, err := s.repo.Get(ctx, KeyToolApprovalMode)
	if err != nil {
		return "", err
	}
	if setting == nil || setting.Value == "" {
		return ApprovalModeRequire, nil
	}
	return setting.Value, nil
}

// AllowedModules returns the global Python module allowlist.
func (s *Service) AllowedModules(ctx context.Context) ([]string, error) {
	setting, err := s.repo.Get(ctx, KeyAllowedModules)
	if err != nil {
		return nil, err
	}
	if setting == nil || setting.Value == "" {
		return []string{}, nil
	}
	var modules []string
	if err := json.Unmarshal([]byte(setting.Value), &modules); err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal, "allowed_modules setting is not a JSON array", err, "settings-007")
	}
	return modules, nil
}

// AddAllowedModule appends a module to the global allowlist. Adding a module
// that is already present is a no-op.
func (s *Service) AddAllowedModule(ctx context.Context, module string) error {
	if module == "" {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "module name is required", nil, "settings-008")
	}
	modules, err := s.AllowedModules(ctx)
	if err != nil {
		return err
	}
	for _, m := range modules {
		if m == module {
			return nil
		}
	}
	modules = append(modules, module)
	return s.saveAllowedModules(ctx, modules)
}

// RemoveAllowedModule removes a module from the global allowlist. Removing
// an absent module is a no-op.
func (s *Service) RemoveAllowedModule(ctx context.Context, module string) error {
	modules, err := s.AllowedModules(ctx)
	if err != nil {
		return err
	}
	kept := modules[:0]
	for _, m := range modules {
		if m != module {
			kept = append(kept, m)
		}
	}
	if len(kept) == len(modules) {
		return nil
	}
	return s.saveAllowedModules(ctx, kept)
}

func (s *Service) saveAllowedModules(ctx context.Context, modules []string) error {
	raw, err := json.Marshal(modules)
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal, "failed to encode allowed_modules", err, "settings-009")
	}
	return s.repo.Upsert(ctx, &Setting{Key: KeyAllowedModules, Value: string(raw)})
}

// IsServiceTokenSet reports whether a remote-access service token is
// configured, without exposing its value.
func (s *Service) IsServiceTokenSet(ctx context.Context) (bool, error) {
	setting, err := s.repo.Get(ctx, KeyServiceToken)
	if err != nil {
		return false, err
	}
	return setting != nil && setting.Value != "", nil
}

// LogRetentionDays returns the activity-log retention window, falling back
// to the given default when the setting is unset or malformed.
func (s *Service) LogRetentionDays(ctx context.Context, fallback int) int {
	setting, err := s.repo.Get(ctx, KeyLogRetentionDays)
	if err != nil || setting == nil || setting.Value == "" {
		return fallback
	}
	days, err := strconv.Atoi(setting.Value)
	if err != nil || days <= 0 {
		s.logger.Warn().Str("value", setting.Value).Msg("ignoring malformed log_retention_days setting")
		return fallback
	}
	return days
}

// RedactionEnabled reports the cached redact_sensitive_data flag. It never
// touches the database; RefreshRedaction keeps it in sync.
func (s *Service) RedactionEnabled() bool {
	return s.redact.Load() == 1
}

// RefreshRedaction reloads the redact_sensitive_data setting. Called at
// startup and periodically by the scheduler.
func (s *Service) RefreshRedaction(ctx context.Context) {
	setting, err := s.repo.Get(ctx, KeyRedactSensitive)
	if err != nil {
		return
	}
	if setting == nil {
		s.redact.Store(1)
		return
	}
	s.storeRedact(setting.Value)
}

func (s *Service) storeRedact(value string) {
	if value == "false" {
		s.redact.Store(0)
	} else {
		s.redact.Store(1)
	}
}

// validateKnownKey rejects values that would corrupt a well-known setting.
// Unknown keys are stored as-is.
func validateKnownKey(ctx context.Context, key, value string) error {
	invalid := func(msg string) error {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, msg, nil, "settings-010")
	}
	switch key {
	case KeyToolApprovalMode:
		if value != ApprovalModeRequire && value != ApprovalModeAuto {
			return invalid("tool_approval_mode must be require_approval or auto_approve")
		}
	case KeyEmailPolicyType:
		if value != EmailPolicyNone && value != EmailPolicyEmails && value != EmailPolicyDomain {
			return invalid("email_policy_type must be empty, emails, or email_domain")
		}
	case KeyAllowedModules, KeyAllowedEmails:
		if value == "" {
			return nil
		}
		var list []string
		if err := json.Unmarshal([]byte(value), &list); err != nil {
			return invalid(key + " must be a JSON array of strings")
		}
	case KeyLogRetentionDays:
		days, err := strconv.Atoi(value)
		if err != nil || days <= 0 {
			return invalid("log_retention_days must be a positive integer")
		}
	case KeyRedactSensitive:
		if value != "true" && value != "false" {
			return invalid("redact_sensitive_data must be true or false")
		}
	case KeyWorkerDeployConfig:
		if value == "" {
			return nil
		}
		if !json.Valid([]byte(value)) {
			return invalid("worker_deploy_config must be valid JSON")
		}
	}
	return nil
}
