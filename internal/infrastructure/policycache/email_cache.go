package policycache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mcpbox/internal/config"
	"mcpbox/internal/domain/settings"
	"mcpbox/internal/infrastructure/logger"
)

// Rule names reported by CheckEmail, recorded in auth decisions.
const (
	RuleNoPolicy          = "no_policy"
	RuleAllowedEmail      = "allowed_email"
	RuleEmailNotAllowed   = "email_not_allowed"
	RuleAllowedDomain     = "allowed_domain"
	RuleDomainMismatch    = "domain_mismatch"
	RuleEmptyEmail        = "empty_email"
	RulePolicyUnavailable = "policy_unavailable"
	RuleUnknownPolicy     = "unknown_policy"
)

// EmailPolicyCache mirrors the email access policy settings. With no policy
// configured any forwarded email is accepted; a load failure denies all.
type EmailPolicyCache struct {
	repo   settings.Repository
	ttl    time.Duration
	logger zerolog.Logger

	mu            sync.RWMutex
	policyType    string
	allowedEmails []string
	allowedDomain string
	dbError       bool
	lastLoaded    time.Time
}

// NewEmailPolicyCache creates an email policy cache refreshing at the
// configured auth cache TTL.
func NewEmailPolicyCache(repo settings.Repository, cfg *config.Config) *EmailPolicyCache {
	return NewEmailPolicyCacheWithTTL(repo, cfg.AuthCacheTTL)
}

// NewEmailPolicyCacheWithTTL creates an email policy cache with a custom TTL
// (for testing).
func NewEmailPolicyCacheWithTTL(repo settings.Repository, ttl time.Duration) *EmailPolicyCache {
	return &EmailPolicyCache{
		repo:   repo,
		ttl:    ttl,
		logger: logger.Component("email_cache"),
	}
}

// CheckEmail evaluates the forwarded email against the configured policy and
// returns the decision plus the rule that produced it.
func (c *EmailPolicyCache) CheckEmail(ctx context.Context, email string) (bool, string) {
	c.ensureFresh(ctx)

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.dbError {
		return false, RulePolicyUnavailable
	}

	switch c.policyType {
	case settings.EmailPolicyNone:
		return true, RuleNoPolicy
	case settings.EmailPolicyEmails:
		normalized := strings.ToLower(strings.TrimSpace(email))
		if normalized == "" {
			return false, RuleEmptyEmail
		}
		for _, allowed := range c.allowedEmails {
			if normalized == allowed {
				return true, RuleAllowedEmail
			}
		}
		return false, RuleEmailNotAllowed
	case settings.EmailPolicyDomain:
		normalized := strings.ToLower(strings.TrimSpace(email))
		if normalized == "" {
			return false, RuleEmptyEmail
		}
		if c.allowedDomain != "" && strings.HasSuffix(normalized, "@"+c.allowedDomain) {
			return true, RuleAllowedDomain
		}
		return false, RuleDomainMismatch
	default:
		return false, RuleUnknownPolicy
	}
}

// Invalidate forces a reload on next access. Called when any email policy
// setting changes.
func (c *EmailPolicyCache) Invalidate() {
	c.mu.Lock()
	c.lastLoaded = time.Time{}
	c.mu.Unlock()
}

func (c *EmailPolicyCache) ensureFresh(ctx context.Context) {
	c.mu.RLock()
	if time.Since(c.lastLoaded) < c.ttl {
		c.mu.RUnlock()
		return
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if time.Since(c.lastLoaded) < c.ttl {
		return
	}
	c.load(ctx)
}

// load reads the three policy settings. Caller holds the write lock.
func (c *EmailPolicyCache) load(ctx context.Context) {
	c.policyType = settings.EmailPolicyNone
	c.allowedEmails = nil
	c.allowedDomain = ""
	c.dbError = false
	c.lastLoaded = time.Now()

	policyType, err := c.settingValue(ctx, settings.KeyEmailPolicyType)
	if err != nil {
		c.dbError = true
		c.logger.Warn().Err(err).Msg("failed to load email policy, denying remote users")
		return
	}
	c.policyType = policyType

	switch policyType {
	case settings.EmailPolicyEmails:
		raw, err := c.settingValue(ctx, settings.KeyAllowedEmails)
		if err != nil {
			c.dbError = true
			c.logger.Warn().Err(err).Msg("failed to load allowed emails, denying remote users")
			return
		}
		c.allowedEmails = parseEmailList(raw, c.logger)
	case settings.EmailPolicyDomain:
		raw, err := c.settingValue(ctx, settings.KeyAllowedEmailDomain)
		if err != nil {
			c.dbError = true
			c.logger.Warn().Err(err).Msg("failed to load allowed email domain, denying remote users")
			return
		}
		c.allowedDomain = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(raw, "@")))
	}
}

func (c *EmailPolicyCache) settingValue(ctx context.Context, key string) (string, error) {
	setting, err := c.repo.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if setting == nil {
		return "", nil
	}
	return setting.Value, nil
}

// parseEmailList decodes the allowed_emails JSON array, lower-casing each
// entry. A malformed value yields an empty list, which denies everyone under
// the emails policy.
func parseEmailList(raw string, log zerolog.Logger) []string {
	if raw == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		log.Warn().Err(err).Msg("allowed_emails setting is not a JSON array, treating as empty")
		return nil
	}
	normalized := make([]string, 0, len(list))
	for _, email := range list {
		email = strings.ToLower(strings.TrimSpace(email))
		if email != "" {
			normalized = append(normalized, email)
		}
	}
	return normalized
}
