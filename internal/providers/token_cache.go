package providers

import (
	"context"
	"sync"
	"time"
)

// AuthFunc exchanges credentials for a bearer token and its lifetime.
type AuthFunc func(ctx context.Context) (token string, expiresIn time.Duration, err error)

// TokenCache holds the process-wide cloud gateway credential. The token is
// refreshed lazily on expiry; the mutex is held across the refresh so
// concurrent expiries trigger exactly one re-authentication.
type TokenCache struct {
	mu           sync.Mutex
	authenticate AuthFunc
	token        string
	expiry       time.Time
	leeway       time.Duration
	now          func() time.Time
}

func NewTokenCache(authenticate AuthFunc) *TokenCache {
	return &TokenCache{
		authenticate: authenticate,
		leeway:       30 * time.Second,
		now:          time.Now,
	}
}

// Token returns a valid bearer token, refreshing it first if the cached one
// is absent or within the expiry leeway. cached reports whether the returned
// token was served from cache.
func (c *TokenCache) Token(ctx context.Context) (token string, cached bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiry.Add(-c.leeway)) {
		return c.token, true, nil
	}

	tok, ttl, err := c.authenticate(ctx)
	if err != nil {
		return "", false, err
	}
	c.token = tok
	c.expiry = c.now().Add(ttl)
	return tok, false, nil
}

// Expiry returns the current token expiry (zero if never authenticated).
func (c *TokenCache) Expiry() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expiry
}

// Invalidate drops the cached token so the next caller re-authenticates.
// Used when the gateway rejects a token before its advertised expiry.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiry = time.Time{}
}
