package middlewares

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"mcpbox/internal/domain"
	"mcpbox/internal/infrastructure/metrics"
)

// Headers carried by the edge worker on every forwarded MCP request.
const (
	HeaderServiceToken = "X-MCPbox-Service-Token"
	HeaderUserEmail    = "X-MCPbox-User-Email"
)

const principalKey = "mcpbox_principal"

// TokenVerifier reports whether remote auth is enabled and validates
// presented service tokens.
type TokenVerifier interface {
	AuthEnabled(ctx context.Context) bool
	Matches(ctx context.Context, presented string) bool
}

// EmailPolicy evaluates forwarded user emails against the configured access
// policy.
type EmailPolicy interface {
	CheckEmail(ctx context.Context, email string) (bool, string)
}

// MCPAuth classifies the caller of every gateway request. With no service
// token configured the deployment is local-only and everything is trusted.
// Otherwise a matching token is required; the forwarded email decides
// whether the caller gets a verified user identity or stays an anonymous
// remote. The 403 body never reveals whether the token was missing or wrong.
func MCPAuth(tokens TokenVerifier, emails EmailPolicy, failures *FailureTracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		clientIP := c.ClientIP()

		if !tokens.AuthEnabled(ctx) {
			SetPrincipal(c, domain.Principal{Source: domain.SourceLocal, ClientIP: clientIP})
			c.Next()
			return
		}

		if failures.Blocked(clientIP) {
			metrics.RecordAuthFailure("blocked")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many failed authentication attempts"})
			return
		}

		presented := c.GetHeader(HeaderServiceToken)
		if !tokens.Matches(ctx, presented) {
			failures.Record(clientIP)
			if presented == "" {
				metrics.RecordAuthFailure("missing_token")
			} else {
				metrics.RecordAuthFailure("invalid_token")
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Authentication failed"})
			return
		}

		principal := domain.Principal{
			Source:     domain.SourceWorker,
			AuthMethod: domain.AuthMethodOIDC,
			ClientIP:   clientIP,
		}
		if email := c.GetHeader(HeaderUserEmail); email != "" {
			if allowed, _ := emails.CheckEmail(ctx, email); allowed {
				principal.Email = email
				principal.Verified = true
			}
		}
		SetPrincipal(c, principal)
		c.Next()
	}
}

// SetPrincipal stores the caller identity in the gin context.
func SetPrincipal(c *gin.Context, p domain.Principal) {
	c.Set(principalKey, p)
}

// PrincipalFromContext returns the caller identity stored by MCPAuth.
func PrincipalFromContext(c *gin.Context) (domain.Principal, bool) {
	val, ok := c.Get(principalKey)
	if !ok {
		return domain.Principal{}, false
	}
	p, ok := val.(domain.Principal)
	return p, ok
}

// FailureTracker counts failed authentication attempts per client IP within
// a rolling window. An IP at or over the limit is blocked until its window
// expires.
type FailureTracker struct {
	mu        sync.Mutex
	max       int
	window    time.Duration
	entries   map[string]*failureEntry
	lastSweep time.Time
}

type failureEntry struct {
	count       int
	windowStart time.Time
}

// NewFailureTracker creates a tracker blocking after max failures within
// window.
func NewFailureTracker(max int, window time.Duration) *FailureTracker {
	return &FailureTracker{
		max:       max,
		window:    window,
		entries:   make(map[string]*failureEntry),
		lastSweep: time.Now(),
	}
}

// Record registers one failed attempt for the IP.
func (t *FailureTracker) Record(ip string) {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.sweepLocked(now)

	entry, ok := t.entries[ip]
	if !ok || now.Sub(entry.windowStart) > t.window {
		t.entries[ip] = &failureEntry{count: 1, windowStart: now}
		return
	}
	entry.count++
}

// Blocked reports whether the IP has exhausted its failure budget.
func (t *FailureTracker) Blocked(ip string) bool {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.sweepLocked(now)

	entry, ok := t.entries[ip]
	if !ok {
		return false
	}
	if now.Sub(entry.windowStart) > t.window {
		delete(t.entries, ip)
		return false
	}
	return entry.count >= t.max
}

// sweepLocked drops expired entries, at most once per window. Caller holds
// the mutex.
func (t *FailureTracker) sweepLocked(now time.Time) {
	if now.Sub(t.lastSweep) < t.window {
		return
	}
	for ip, entry := range t.entries {
		if now.Sub(entry.windowStart) > t.window {
			delete(t.entries, ip)
		}
	}
	t.lastSweep = now
}
