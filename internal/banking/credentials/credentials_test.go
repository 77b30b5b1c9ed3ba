package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/carson-networks/bank-bridge/internal/cache/memory"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	store := memory.New(memory.Config{})
	t.Cleanup(store.Close)
	return New(store)
}

func liveCredential(token string, now time.Time) Credential {
	return Credential{
		Token:     token,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestAcquire_ColdCacheExchanges(t *testing.T) {
	c := newTestCache(t)
	now := time.Now()

	exchanges := 0
	cred, err := c.Acquire(context.Background(), "vendor:token", func(ctx context.Context) (Credential, error) {
		exchanges++
		return liveCredential("tok-1", now), nil
	}, nil)

	assert.NoError(t, err)
	assert.Equal(t, "tok-1", cred.Token)
	assert.Equal(t, 1, exchanges)
}

func TestAcquire_WarmCacheReuses(t *testing.T) {
	c := newTestCache(t)
	now := time.Now()

	exchanges := 0
	exchange := func(ctx context.Context) (Credential, error) {
		exchanges++
		return liveCredential("tok-1", now), nil
	}

	for i := 0; i < 5; i++ {
		cred, err := c.Acquire(context.Background(), "vendor:token", exchange, nil)
		assert.NoError(t, err)
		assert.Equal(t, "tok-1", cred.Token)
	}
	assert.Equal(t, 1, exchanges)
}

func TestAcquire_NearExpiryNotReused(t *testing.T) {
	c := newTestCache(t)
	now := time.Now()

	exchanges := 0
	_, err := c.Acquire(context.Background(), "vendor:token", func(ctx context.Context) (Credential, error) {
		exchanges++
		// Four minutes left is inside the reuse margin.
		return Credential{Token: "short", IssuedAt: now, ExpiresAt: now.Add(4 * time.Minute)}, nil
	}, nil)
	assert.NoError(t, err)

	cred, err := c.Acquire(context.Background(), "vendor:token", func(ctx context.Context) (Credential, error) {
		exchanges++
		return liveCredential("fresh", time.Now()), nil
	}, nil)

	assert.NoError(t, err)
	assert.Equal(t, "fresh", cred.Token)
	assert.Equal(t, 2, exchanges)
}

func TestAcquire_RefreshPreferredOverExchange(t *testing.T) {
	c := newTestCache(t)
	now := time.Now()

	// Seed an expired access credential with a live refresh credential.
	c.put(context.Background(), "vendor:token", Credential{
		Token:            "stale",
		Refresh:          "refresh-1",
		IssuedAt:         now.Add(-2 * time.Hour),
		ExpiresAt:        now.Add(time.Minute),
		RefreshExpiresAt: now.Add(24 * time.Hour),
	})

	exchanges := 0
	refreshes := 0
	cred, err := c.Acquire(context.Background(), "vendor:token",
		func(ctx context.Context) (Credential, error) {
			exchanges++
			return liveCredential("exchanged", now), nil
		},
		func(ctx context.Context, refreshToken string) (Credential, error) {
			refreshes++
			assert.Equal(t, "refresh-1", refreshToken)
			return liveCredential("refreshed", now), nil
		})

	assert.NoError(t, err)
	assert.Equal(t, "refreshed", cred.Token)
	assert.Equal(t, 1, refreshes)
	assert.Equal(t, 0, exchanges)
}

func TestAcquire_RefreshFailureFallsThroughToExchange(t *testing.T) {
	c := newTestCache(t)
	now := time.Now()

	c.put(context.Background(), "vendor:token", Credential{
		Token:            "stale",
		Refresh:          "refresh-1",
		IssuedAt:         now.Add(-2 * time.Hour),
		ExpiresAt:        now.Add(time.Minute),
		RefreshExpiresAt: now.Add(24 * time.Hour),
	})

	cred, err := c.Acquire(context.Background(), "vendor:token",
		func(ctx context.Context) (Credential, error) {
			return liveCredential("exchanged", now), nil
		},
		func(ctx context.Context, refreshToken string) (Credential, error) {
			return Credential{}, errors.New("refresh token revoked")
		})

	assert.NoError(t, err)
	assert.Equal(t, "exchanged", cred.Token)
}

func TestAcquire_DeadRefreshSkipsRefreshFlow(t *testing.T) {
	c := newTestCache(t)
	now := time.Now()

	c.put(context.Background(), "vendor:token", Credential{
		Token:            "stale",
		Refresh:          "refresh-1",
		IssuedAt:         now.Add(-48 * time.Hour),
		ExpiresAt:        now.Add(time.Minute),
		RefreshExpiresAt: now.Add(-time.Minute),
	})

	refreshes := 0
	cred, err := c.Acquire(context.Background(), "vendor:token",
		func(ctx context.Context) (Credential, error) {
			return liveCredential("exchanged", now), nil
		},
		func(ctx context.Context, refreshToken string) (Credential, error) {
			refreshes++
			return liveCredential("refreshed", now), nil
		})

	assert.NoError(t, err)
	assert.Equal(t, "exchanged", cred.Token)
	assert.Equal(t, 0, refreshes)
}

func TestAcquire_ExchangeErrorPropagates(t *testing.T) {
	c := newTestCache(t)

	boom := errors.New("vendor is down")
	_, err := c.Acquire(context.Background(), "vendor:token", func(ctx context.Context) (Credential, error) {
		return Credential{}, boom
	}, nil)

	assert.ErrorIs(t, err, boom)
}

func TestInvalidate_ForcesNextExchange(t *testing.T) {
	c := newTestCache(t)
	now := time.Now()

	exchanges := 0
	exchange := func(ctx context.Context) (Credential, error) {
		exchanges++
		return liveCredential("tok", now), nil
	}

	_, err := c.Acquire(context.Background(), "vendor:token", exchange, nil)
	assert.NoError(t, err)

	c.Invalidate(context.Background(), "vendor:token")

	_, err = c.Acquire(context.Background(), "vendor:token", exchange, nil)
	assert.NoError(t, err)
	assert.Equal(t, 2, exchanges)
}
