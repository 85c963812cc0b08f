// Package identity manages per-principal credentials. The migration
// engine acts on behalf of each principal in turn, so credentials are
// minted lazily per (tenant, principal) and cached until they expire.
package identity

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Handle is a live credential for acting as one principal in one tenant.
type Handle struct {
	Tenant    string
	Principal string
	Token     string
	ExpiresAt time.Time
}

// Expired reports whether the handle is past its expiry at the given
// instant. Handles with a zero expiry never expire.
func (h Handle) Expired(now time.Time) bool {
	return !h.ExpiresAt.IsZero() && !now.Before(h.ExpiresAt)
}

// Authenticator mints a credential for one principal. Implementations
// wrap whatever delegation mechanism the tenant offers.
type Authenticator interface {
	Authenticate(ctx context.Context, tenant, principal string) (Handle, error)
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(ctx context.Context, tenant, principal string) (Handle, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, tenant, principal string) (Handle, error) {
	return f(ctx, tenant, principal)
}

type cacheKey struct {
	tenant    string
	principal string
}

// Cache hands out handles keyed by (tenant, principal), minting through
// the wrapped Authenticator on first use and again after expiry.
type Cache struct {
	auth Authenticator
	now  func() time.Time

	mu      sync.Mutex
	handles map[cacheKey]Handle
}

// NewCache wraps an Authenticator with a credential cache.
func NewCache(auth Authenticator) *Cache {
	return &Cache{
		auth:    auth,
		now:     time.Now,
		handles: make(map[cacheKey]Handle),
	}
}

// SetClock overrides the cache's time source for tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Handle returns a live credential for the principal, minting one if
// none is cached or the cached one has expired.
func (c *Cache) Handle(ctx context.Context, tenant, principal string) (Handle, error) {
	key := cacheKey{tenant: tenant, principal: principal}

	c.mu.Lock()
	h, ok := c.handles[key]
	now := c.now()
	c.mu.Unlock()
	if ok && !h.Expired(now) {
		return h, nil
	}

	h, err := c.auth.Authenticate(ctx, tenant, principal)
	if err != nil {
		return Handle{}, fmt.Errorf("authenticate %s in %s: %w", principal, tenant, err)
	}

	c.mu.Lock()
	c.handles[key] = h
	c.mu.Unlock()
	return h, nil
}

// Invalidate drops a cached handle, forcing a fresh mint on next use.
// Called when the remote rejects a credential before its stated expiry.
func (c *Cache) Invalidate(tenant, principal string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handles, cacheKey{tenant: tenant, principal: principal})
}

// Len reports the number of cached handles.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}
