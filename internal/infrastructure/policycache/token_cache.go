// Package policycache holds the in-memory mirrors of the auth-related
// settings. The gateway consults these on every request, so they refresh
// under a coarse TTL instead of hitting the database per call. Both caches
// fail closed: a load error leaves remote access locked down rather than
// open.
package policycache

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mcpbox/internal/config"
	"mcpbox/internal/domain/settings"
	"mcpbox/internal/infrastructure/logger"
	"mcpbox/internal/utils/crypto"
)

// ServiceTokenCache mirrors the service_token setting, decrypted. Remote
// mode is active whenever a token is configured or the cache could not
// determine one.
type ServiceTokenCache struct {
	repo   settings.Repository
	cipher *crypto.Cipher
	ttl    time.Duration
	logger zerolog.Logger

	mu              sync.RWMutex
	token           string
	dbError         bool
	decryptionError bool
	lastLoaded      time.Time
}

// NewServiceTokenCache creates a token cache refreshing at the configured
// auth cache TTL.
func NewServiceTokenCache(repo settings.Repository, cipher *crypto.Cipher, cfg *config.Config) *ServiceTokenCache {
	return NewServiceTokenCacheWithTTL(repo, cipher, cfg.AuthCacheTTL)
}

// NewServiceTokenCacheWithTTL creates a token cache with a custom TTL (for
// testing).
func NewServiceTokenCacheWithTTL(repo settings.Repository, cipher *crypto.Cipher, ttl time.Duration) *ServiceTokenCache {
	return &ServiceTokenCache{
		repo:   repo,
		cipher: cipher,
		ttl:    ttl,
		logger: logger.Component("token_cache"),
	}
}

// AuthEnabled reports whether requests must present a service token. True
// when a token is configured, and also when the last load failed: an
// unreadable token must not silently open the gateway.
func (c *ServiceTokenCache) AuthEnabled(ctx context.Context) bool {
	c.ensureFresh(ctx)

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != "" || c.dbError || c.decryptionError
}

// Matches compares the presented token against the cached one in constant
// time. It is false whenever no token is loaded, so a fail-closed cache
// rejects every presented value.
func (c *ServiceTokenCache) Matches(ctx context.Context, presented string) bool {
	c.ensureFresh(ctx)

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.token), []byte(presented)) == 1
}

// Invalidate forces a reload on next access. Called when the service_token
// setting changes.
func (c *ServiceTokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.decryptionError = false
	c.lastLoaded = time.Time{}
	c.mu.Unlock()
}

func (c *ServiceTokenCache) ensureFresh(ctx context.Context) {
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

// load reads and decrypts the service_token setting. Caller holds the write
// lock.
func (c *ServiceTokenCache) load(ctx context.Context) {
	c.token = ""
	c.dbError = false
	c.decryptionError = false
	c.lastLoaded = time.Now()

	setting, err := c.repo.Get(ctx, settings.KeyServiceToken)
	if err != nil {
		c.dbError = true
		c.logger.Warn().Err(err).Msg("failed to load service token, remote access locked")
		return
	}
	if setting == nil || setting.Value == "" {
		return
	}

	value := setting.Value
	if setting.Encrypted {
		plain, err := c.cipher.DecryptString(setting.Value, crypto.AADServiceToken)
		if err != nil {
			c.decryptionError = true
			c.logger.Error().Err(err).Msg("failed to decrypt service token, remote access locked")
			return
		}
		value = plain
	}
	c.token = value
}
