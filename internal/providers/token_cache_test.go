package providers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenCache_Token(t *testing.T) {
	ctx := context.Background()

	t.Run("first call authenticates, second is served from cache", func(t *testing.T) {
		var calls int32
		cache := NewTokenCache(func(ctx context.Context) (string, time.Duration, error) {
			atomic.AddInt32(&calls, 1)
			return "tok-1", time.Hour, nil
		})

		token, cached, err := cache.Token(ctx)
		assert.NoError(t, err)
		assert.Equal(t, "tok-1", token)
		assert.False(t, cached)

		token, cached, err = cache.Token(ctx)
		assert.NoError(t, err)
		assert.Equal(t, "tok-1", token)
		assert.True(t, cached)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("token inside the expiry leeway is refreshed", func(t *testing.T) {
		var calls int32
		cache := NewTokenCache(func(ctx context.Context) (string, time.Duration, error) {
			n := atomic.AddInt32(&calls, 1)
			if n == 1 {
				// Expires within the 30s leeway, so the next call refreshes.
				return "short-lived", 10 * time.Second, nil
			}
			return "fresh", time.Hour, nil
		})

		token, _, err := cache.Token(ctx)
		assert.NoError(t, err)
		assert.Equal(t, "short-lived", token)

		token, cached, err := cache.Token(ctx)
		assert.NoError(t, err)
		assert.Equal(t, "fresh", token)
		assert.False(t, cached)
	})

	t.Run("authentication failure leaves no cached token", func(t *testing.T) {
		authErr := errors.New("invalid client credentials")
		fail := true
		cache := NewTokenCache(func(ctx context.Context) (string, time.Duration, error) {
			if fail {
				return "", 0, authErr
			}
			return "tok-2", time.Hour, nil
		})

		_, _, err := cache.Token(ctx)
		assert.ErrorIs(t, err, authErr)
		assert.True(t, cache.Expiry().IsZero())

		fail = false
		token, cached, err := cache.Token(ctx)
		assert.NoError(t, err)
		assert.Equal(t, "tok-2", token)
		assert.False(t, cached)
	})

	t.Run("invalidate forces re-authentication", func(t *testing.T) {
		var calls int32
		cache := NewTokenCache(func(ctx context.Context) (string, time.Duration, error) {
			atomic.AddInt32(&calls, 1)
			return "tok-3", time.Hour, nil
		})

		_, _, err := cache.Token(ctx)
		assert.NoError(t, err)

		cache.Invalidate()
		assert.True(t, cache.Expiry().IsZero())

		_, cached, err := cache.Token(ctx)
		assert.NoError(t, err)
		assert.False(t, cached)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("concurrent expiries trigger exactly one refresh", func(t *testing.T) {
		var calls int32
		cache := NewTokenCache(func(ctx context.Context) (string, time.Duration, error) {
			atomic.AddInt32(&calls, 1)
			time.Sleep(10 * time.Millisecond)
			return "tok-4", time.Hour, nil
		})

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				token, _, err := cache.Token(ctx)
				assert.NoError(t, err)
				assert.Equal(t, "tok-4", token)
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}
