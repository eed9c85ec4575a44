package auth

import (
	"context"
	"sync"
	"time"

	"github.com/haasonsaas/conduit/pkg/models"
)

// CachingAuthorizer wraps an Authorizer with a TTL cache keyed by
// tenant/provider. Uses sync.Map for lock-free reads on the hot path; the
// dispatcher consults authorization before every tool call, and the backing
// source may be a remote service.
type CachingAuthorizer struct {
	source Authorizer
	ttl    time.Duration
	store  sync.Map // map[cacheKey]*cacheEntry
}

type cacheKey struct {
	tenant   models.TenantID
	provider string
}

type cacheEntry struct {
	allowed   bool
	expiresAt time.Time
}

// NewCachingAuthorizer wraps source with a TTL cache. A non-positive ttl
// defaults to 30 seconds.
func NewCachingAuthorizer(source Authorizer, ttl time.Duration) *CachingAuthorizer {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachingAuthorizer{source: source, ttl: ttl}
}

// Authorized returns the cached decision when fresh, otherwise consults the
// source and caches the result. Source errors are returned uncached so a
// transient failure does not pin a denial for a full TTL.
func (c *CachingAuthorizer) Authorized(ctx context.Context, tenant models.TenantID, provider string) (bool, error) {
	key := cacheKey{tenant: tenant, provider: provider}

	if val, ok := c.store.Load(key); ok {
		entry := val.(*cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			return entry.allowed, nil
		}
	}

	allowed, err := c.source.Authorized(ctx, tenant, provider)
	if err != nil {
		return false, err
	}

	c.store.Store(key, &cacheEntry{
		allowed:   allowed,
		expiresAt: time.Now().Add(c.ttl),
	})
	return allowed, nil
}

// Invalidate drops the cached decision for one tenant/provider pair.
func (c *CachingAuthorizer) Invalidate(tenant models.TenantID, provider string) {
	c.store.Delete(cacheKey{tenant: tenant, provider: provider})
}
