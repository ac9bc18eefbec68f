package ratelimit_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/shortlink/internal/cache"
	"github.com/koopa0/shortlink/internal/ratelimit"
	"github.com/koopa0/shortlink/pkg/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// lossyExpire 讓前 n 次 EXPIRE 失敗，模擬 INCR 之後連接中斷
type lossyExpire struct {
	*cache.Memory
	mu    sync.Mutex
	drops int
}

func (l *lossyExpire) Expire(ctx context.Context, key string, ttl time.Duration) error {
	l.mu.Lock()
	if l.drops > 0 {
		l.drops--
		l.mu.Unlock()
		return errors.New("connection reset")
	}
	l.mu.Unlock()
	return l.Memory.Expire(ctx, key, ttl)
}

func TestFixedWindow_Admit(t *testing.T) {
	clock := newClock()
	counter := cache.NewMemoryWithClock(clock.Now)
	limiter := ratelimit.NewFixedWindow(counter, "rl:create", logger.Discard())
	ctx := context.Background()

	for i := 1; i <= 20; i++ {
		d := limiter.Admit(ctx, "1.2.3.4", time.Minute, 20)
		require.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, int64(i), d.Count)
	}

	clock.Advance(15 * time.Second)
	denied := limiter.Admit(ctx, "1.2.3.4", time.Minute, 20)
	assert.False(t, denied.Allowed)
	assert.Equal(t, int64(21), denied.Count)
	assert.Equal(t, 45*time.Second, denied.RetryAfter)
	assert.Equal(t, 45, denied.RetryAfterSeconds())
	assert.LessOrEqual(t, denied.RetryAfterSeconds(), 60)

	// 其他身份不受影響
	other := limiter.Admit(ctx, "5.6.7.8", time.Minute, 20)
	assert.True(t, other.Allowed)
	assert.Equal(t, int64(1), other.Count)

	// 新窗口從 1 重新計數
	clock.Advance(46 * time.Second)
	fresh := limiter.Admit(ctx, "1.2.3.4", time.Minute, 20)
	assert.True(t, fresh.Allowed)
	assert.Equal(t, int64(1), fresh.Count)
}

func TestFixedWindow_RetryAfterRoundsUp(t *testing.T) {
	clock := newClock()
	counter := cache.NewMemoryWithClock(clock.Now)
	limiter := ratelimit.NewFixedWindow(counter, "rl", logger.Discard())
	ctx := context.Background()

	require.True(t, limiter.Admit(ctx, "id", time.Minute, 1).Allowed)
	clock.Advance(59*time.Second + 500*time.Millisecond)

	d := limiter.Admit(ctx, "id", time.Minute, 1)
	require.False(t, d.Allowed)
	assert.Equal(t, time.Second, d.RetryAfter)
	assert.Equal(t, 1, d.RetryAfterSeconds())
}

func TestFixedWindow_FailOpen(t *testing.T) {
	counter := cache.NewMemory()
	counter.FailWith(errors.New("redis: connection refused"))
	limiter := ratelimit.NewFixedWindow(counter, "rl:create", logger.Discard())

	for i := 0; i < 50; i++ {
		d := limiter.Admit(context.Background(), "1.2.3.4", time.Minute, 20)
		assert.True(t, d.Allowed)
		assert.True(t, d.Degraded)
	}
}

func TestFixedWindow_RepairsCounterWithoutTTL(t *testing.T) {
	clock := newClock()
	counter := &lossyExpire{Memory: cache.NewMemoryWithClock(clock.Now), drops: 1}
	limiter := ratelimit.NewFixedWindow(counter, "rl", logger.Discard())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, limiter.Admit(ctx, "id", time.Minute, 3).Allowed)
	}

	ttl, err := counter.TTL(ctx, "rl:id")
	require.NoError(t, err)
	require.Equal(t, cache.NoExpiry, ttl, "expire was dropped")

	d := limiter.Admit(ctx, "id", time.Minute, 3)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter)

	ttl, err = counter.TTL(ctx, "rl:id")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	clock.Advance(time.Minute)
	assert.True(t, limiter.Admit(ctx, "id", time.Minute, 3).Allowed)
}

func TestMiddleware(t *testing.T) {
	counter := cache.NewMemory()
	limiter := ratelimit.NewFixedWindow(counter, "rl:create", logger.Discard())

	var served int
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served++
		w.WriteHeader(http.StatusCreated)
	})
	handler := ratelimit.Middleware(limiter, ratelimit.Policy{
		Window: time.Minute,
		Max:    2,
	})(next)

	send := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/links", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusCreated, send("10.0.0.1:1111").Code)
	assert.Equal(t, http.StatusCreated, send("10.0.0.1:2222").Code)

	rec := send("10.0.0.1:3333")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))

	retryAfter := rec.Header().Get("Retry-After")
	assert.NotEmpty(t, retryAfter)

	var body struct {
		Error         string `json:"error"`
		RetryAfterSec int    `json:"retryAfterSec"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Too many requests", body.Error)
	assert.Greater(t, body.RetryAfterSec, 0)
	assert.LessOrEqual(t, body.RetryAfterSec, 60)

	// 不同 IP 獨立計數
	assert.Equal(t, http.StatusCreated, send("10.0.0.2:1111").Code)
	assert.Equal(t, 3, served)
}

func TestMiddleware_FailOpen(t *testing.T) {
	counter := cache.NewMemory()
	counter.FailWith(errors.New("timeout"))
	limiter := ratelimit.NewFixedWindow(counter, "rl:create", logger.Discard())

	handler := ratelimit.Middleware(limiter, ratelimit.Policy{Window: time.Minute, Max: 1})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/links", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestKeyFuncs(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:54321"
	req.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")

	assert.Equal(t, "192.0.2.10", ratelimit.ByIP(false)(req))
	assert.Equal(t, "203.0.113.7", ratelimit.ByIP(true)(req))

	byVisitor := ratelimit.ByVisitor(ratelimit.ByIP(false))
	assert.Equal(t, "192.0.2.10", byVisitor(req))

	withVisitor := req.WithContext(logger.WithVisitorID(req.Context(), "abc"))
	assert.Equal(t, "visitor:abc", byVisitor(withVisitor))

	noPort := httptest.NewRequest(http.MethodGet, "/", nil)
	noPort.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", ratelimit.ClientIP(noPort, false))
}
