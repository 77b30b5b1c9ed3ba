// Package credentials manages short-lived vendor bearer tokens and signed
// assertions with TTL-based reuse. Exchange and refresh logic stay inside
// each adapter; this cache only decides when to reuse, refresh or
// re-exchange, and single-flights concurrent callers per key so a cold
// cache does not trigger redundant vendor exchanges under load.
package credentials

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/carson-networks/bank-bridge/internal/cache"
)

// reuseMargin is the minimum remaining validity required to reuse a
// cached credential without touching the vendor.
const reuseMargin = 5 * time.Minute

// Credential is one cached access credential. The value is opaque: a
// bearer token for most vendors, a signed JWT assertion for vendors that
// require request signing.
type Credential struct {
	Token            string    `json:"token"`
	Refresh          string    `json:"refresh,omitempty"`
	IssuedAt         time.Time `json:"issued_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitempty"`
}

// ExchangeFunc performs a full credential exchange at the vendor.
type ExchangeFunc func(ctx context.Context) (Credential, error)

// RefreshFunc exchanges a refresh credential for a new access credential.
// Nil when the vendor has no refresh flow.
type RefreshFunc func(ctx context.Context, refreshToken string) (Credential, error)

// Cache hands out valid credentials per vendor key.
type Cache struct {
	store cache.Store
	sf    singleflight.Group
	now   func() time.Time
}

// New creates a credential cache on top of the shared KV store.
func New(store cache.Store) *Cache {
	return &Cache{store: store, now: time.Now}
}

// Acquire returns a valid credential for key. A cached credential with
// more than five minutes of remaining validity is reused. Otherwise the
// refresh flow runs when a live refresh credential exists; a refresh
// failure falls through to a full exchange rather than propagating.
func (c *Cache) Acquire(ctx context.Context, key string, exchange ExchangeFunc, refresh RefreshFunc) (Credential, error) {
	if cred, ok := c.cached(ctx, key); ok {
		return cred, nil
	}

	out, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check inside the flight: a concurrent caller may have
		// already filled the cache.
		if cred, ok := c.cached(ctx, key); ok {
			return cred, nil
		}

		if refresh != nil {
			if prev, ok := c.refreshable(ctx, key); ok {
				cred, err := refresh(ctx, prev.Refresh)
				if err == nil {
					c.put(ctx, key, cred)
					return cred, nil
				}
			}
		}

		cred, err := exchange(ctx)
		if err != nil {
			return Credential{}, err
		}
		c.put(ctx, key, cred)
		return cred, nil
	})
	if err != nil {
		return Credential{}, err
	}
	return out.(Credential), nil
}

// Invalidate drops the cached credential for key, forcing the next
// Acquire to hit the vendor.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	_ = c.store.Delete(ctx, key)
}

func (c *Cache) cached(ctx context.Context, key string) (Credential, bool) {
	cred, ok := c.load(ctx, key)
	if !ok {
		return Credential{}, false
	}
	if cred.ExpiresAt.Sub(c.now()) < reuseMargin {
		return Credential{}, false
	}
	return cred, true
}

func (c *Cache) refreshable(ctx context.Context, key string) (Credential, bool) {
	cred, ok := c.load(ctx, key)
	if !ok || cred.Refresh == "" {
		return Credential{}, false
	}
	if !cred.RefreshExpiresAt.IsZero() && !cred.RefreshExpiresAt.After(c.now()) {
		return Credential{}, false
	}
	return cred, true
}

func (c *Cache) load(ctx context.Context, key string) (Credential, bool) {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		return Credential{}, false
	}
	var cred Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return Credential{}, false
	}
	return cred, true
}

// put caches cred until its refresh credential dies, so an expired access
// credential with a live refresh credential is still discoverable.
func (c *Cache) put(ctx context.Context, key string, cred Credential) {
	raw, err := json.Marshal(cred)
	if err != nil {
		return
	}

	ttl := cred.ExpiresAt.Sub(c.now())
	if !cred.RefreshExpiresAt.IsZero() {
		if refreshTTL := cred.RefreshExpiresAt.Sub(c.now()); refreshTTL > ttl {
			ttl = refreshTTL
		}
	}
	if ttl <= 0 {
		return
	}
	_ = c.store.Set(ctx, key, raw, ttl)
}
