package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, cfg *RateLimitConfig) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRateLimiter(client, cfg, "ratelimit:test"), srv
}

func TestAllowWithinBudget(t *testing.T) {
	limiter, _ := newTestLimiter(t, &RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "tenant:a")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := limiter.Allow(ctx, "tenant:a")
	require.NoError(t, err)
	assert.False(t, allowed)

	// Other keys have their own budget
	allowed, err = limiter.Allow(ctx, "tenant:b")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestWindowExpiryResetsBudget(t *testing.T) {
	limiter, srv := newTestLimiter(t, &RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute})
	ctx := context.Background()

	allowed, err := limiter.Allow(ctx, "tenant:a")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.Allow(ctx, "tenant:a")
	require.NoError(t, err)
	assert.False(t, allowed)

	srv.FastForward(2 * time.Minute)

	allowed, err = limiter.Allow(ctx, "tenant:a")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRemaining(t *testing.T) {
	limiter, _ := newTestLimiter(t, &RateLimitConfig{RequestsPerWindow: 5, WindowDuration: time.Minute})
	ctx := context.Background()

	remaining, err := limiter.Remaining(ctx, "tenant:a")
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)

	_, err = limiter.Allow(ctx, "tenant:a")
	require.NoError(t, err)

	remaining, err = limiter.Remaining(ctx, "tenant:a")
	require.NoError(t, err)
	assert.Equal(t, 4, remaining)
}

func TestAllowFailsOpenWhenRedisDown(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	limiter := NewRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}, "")

	srv.Close()

	allowed, err := limiter.Allow(context.Background(), "tenant:a")
	assert.True(t, allowed)
	assert.Error(t, err)
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter, _ := newTestLimiter(t, &RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute})
	tenantID := uuid.New()

	handler := TenantAuth(RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/invoices", nil)
		req.Header.Set("X-Tenant-ID", tenantID.String())
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := send()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	send()
	rec = send()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimitKeyedByClientIPWithoutTenant(t *testing.T) {
	limiter, _ := newTestLimiter(t, &RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute})

	handler := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("198.51.100.7:1000").Code)
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.7:1001").Code)
	// A different source address is a different counter
	assert.Equal(t, http.StatusOK, send("203.0.113.9:1000").Code)
}
