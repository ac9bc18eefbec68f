package shortener_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/shortlink/internal/cache"
	"github.com/koopa0/shortlink/internal/shortener"
)

func TestCacheIndex_Keys(t *testing.T) {
	sum := sha256.Sum256([]byte("https://example.com"))
	assert.Equal(t, "u:"+hex.EncodeToString(sum[:]), shortener.URLKey("https://example.com"))
	assert.Len(t, shortener.URLKey("https://example.com/"+string(make([]byte, 4096))), 2+64)
	assert.Equal(t, "c:abc1234", shortener.CodeKey("abc1234"))
}

func TestCacheIndex_RememberAndForget(t *testing.T) {
	kv := cache.NewMemory()
	index := shortener.NewCacheIndex(kv, 0)
	ctx := context.Background()

	assert.Equal(t, shortener.DefaultCacheTTL, index.TTL())

	require.NoError(t, index.Remember(ctx, "abc1234", "https://example.com"))

	code, ok, err := index.LookupCodeByURL(ctx, "https://example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc1234", code)

	longURL, ok, err := index.LookupURLByCode(ctx, "abc1234")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://example.com", longURL)

	require.NoError(t, index.Forget(ctx, "abc1234", "https://example.com"))
	_, ok, err = index.LookupCodeByURL(ctx, "https://example.com")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = index.LookupURLByCode(ctx, "abc1234")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheIndex_DirectionsExpireIndependently(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	kv := cache.NewMemoryWithClock(func() time.Time { return now })
	index := shortener.NewCacheIndex(kv, time.Hour)
	ctx := context.Background()

	require.NoError(t, index.Remember(ctx, "abc1234", "https://example.com"))

	now = now.Add(50 * time.Minute)
	require.NoError(t, index.RefreshURLMapping(ctx, "abc1234", "https://example.com"))

	now = now.Add(20 * time.Minute)
	_, ok, err := index.LookupCodeByURL(ctx, "https://example.com")
	require.NoError(t, err)
	assert.False(t, ok, "u: direction should have expired")

	longURL, ok, err := index.LookupURLByCode(ctx, "abc1234")
	require.NoError(t, err)
	assert.True(t, ok, "c: direction was refreshed")
	assert.Equal(t, "https://example.com", longURL)
}

func TestCacheIndex_PropagatesErrors(t *testing.T) {
	kv := cache.NewMemory()
	kv.FailWith(errors.New("boom"))
	index := shortener.NewCacheIndex(kv, time.Minute)
	ctx := context.Background()

	_, _, err := index.LookupCodeByURL(ctx, "https://example.com")
	assert.Error(t, err)
	assert.Error(t, index.Remember(ctx, "abc1234", "https://example.com"))
	assert.Error(t, index.Forget(ctx, "abc1234", "https://example.com"))
}
