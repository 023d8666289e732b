package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T, cfg RateLimiterConfig) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRateLimiter(client, zerolog.Nop(), cfg), mr
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, method, path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("X-Forwarded-For", ip)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl, _ := newLimiter(t, RateLimiterConfig{})
	h := rl.Middleware(okHandler())

	for i := 0; i < 10; i++ {
		rec := hit(h, http.MethodPost, "/api/login", "203.0.113.7")
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
		assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := hit(h, http.MethodPost, "/login", "203.0.113.7")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Other clients keep their own budget.
	rec = hit(h, http.MethodPost, "/login", "203.0.113.8")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiterUnmatchedRoutesPass(t *testing.T) {
	rl, _ := newLimiter(t, RateLimiterConfig{})
	h := rl.Middleware(okHandler())

	rec := hit(h, http.MethodGet, "/health", "203.0.113.7")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))

	_, ok := rl.match(httptest.NewRequest(http.MethodGet, "/api/users/2", nil))
	assert.True(t, ok)
	_, ok = rl.match(httptest.NewRequest(http.MethodDelete, "/users", nil))
	assert.False(t, ok)
}

func TestRateLimiterWhitelist(t *testing.T) {
	rl, _ := newLimiter(t, RateLimiterConfig{Whitelist: []string{"10.0.0.0/8", "198.51.100.4", "not-a-cidr/99"}})
	h := rl.Middleware(okHandler())

	for i := 0; i < 15; i++ {
		require.Equal(t, http.StatusOK, hit(h, http.MethodPost, "/login", "10.1.2.3").Code)
		require.Equal(t, http.StatusOK, hit(h, http.MethodPost, "/login", "198.51.100.4").Code)
	}
	assert.True(t, rl.exempt.contains("10.255.0.1"))
	assert.False(t, rl.exempt.contains("11.0.0.1"))
	assert.False(t, rl.exempt.contains("garbage"))
}

func TestRateLimiterAutoBlock(t *testing.T) {
	rl, _ := newLimiter(t, RateLimiterConfig{AutoBlockEnabled: true})
	h := rl.Middleware(okHandler())
	ip := "203.0.113.9"

	for i := 0; i < 10+violationThreshold; i++ {
		hit(h, http.MethodPost, "/login", ip)
	}

	rec := hit(h, http.MethodGet, "/health", ip)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rl.blocker.Unblock(context.Background(), ip)
	rec = hit(h, http.MethodGet, "/health", ip)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiterWindowSlides(t *testing.T) {
	rl, _ := newLimiter(t, RateLimiterConfig{})
	limit := RateLimit{Requests: 2, Window: 50 * time.Millisecond, KeyFunc: ipKey}
	ctx := context.Background()

	assert.True(t, rl.Allow(ctx, "k", limit).allowed)
	assert.True(t, rl.Allow(ctx, "k", limit).allowed)
	assert.False(t, rl.Allow(ctx, "k", limit).allowed)

	time.Sleep(80 * time.Millisecond)
	assert.True(t, rl.Allow(ctx, "k", limit).allowed)
}

func TestTokenKeyHidesToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	key := tokenOrIPKey(req)
	assert.NotContains(t, key, "secret-token")
	assert.Contains(t, key, "ratelimit:token:")

	anon := httptest.NewRequest(http.MethodGet, "/users", nil)
	assert.Equal(t, "ratelimit:ip:192.0.2.1", tokenOrIPKey(anon))
}
