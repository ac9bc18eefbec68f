// Package ratelimit 實現固定窗口限流
//
// 算法（每個請求三次往返以內）：
//
//	count = INCR prefix:identity
//	if count == 1 { EXPIRE prefix:identity window }
//	if count > max { retryAfter = TTL prefix:identity; 拒絕 }
//
// 固定窗口的已知缺陷：窗口邊界前後各打滿，短時間內最多可以通過 2×max 個請求。
// 寫入路徑的保護對精度要求不高，換來的是每個身份只佔一個 key。
//
// 可用性優先：快取不可用時放行（fail-open），只記錄日誌。
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/koopa0/shortlink/internal/cache"
)

// Counter 限流需要的快取操作
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// Decision 一次准入判斷的結果
type Decision struct {
	Allowed bool

	// Count 當前窗口內的請求數（含本次）；降級放行時為 0
	Count int64

	// RetryAfter 被拒絕時距離窗口重置的時間，向上取整到秒
	RetryAfter time.Duration

	// Degraded 快取出錯、降級放行
	Degraded bool
}

// RetryAfterSeconds 重試提示（秒），至少為 1
func (d Decision) RetryAfterSeconds() int {
	secs := int(d.RetryAfter / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// FixedWindow 基於共享計數器的固定窗口限流器
//
// 計數器放在 Redis 中，多個實例共享同一份配額。
type FixedWindow struct {
	counter Counter
	prefix  string
	logger  *slog.Logger
}

// NewFixedWindow 創建限流器
//
// prefix 區分不同的限流場景，如 "rl:create"。
func NewFixedWindow(counter Counter, prefix string, logger *slog.Logger) *FixedWindow {
	return &FixedWindow{
		counter: counter,
		prefix:  prefix,
		logger:  logger.With("component", "ratelimit"),
	}
}

// Key 計數器的 key
func (l *FixedWindow) Key(identity string) string {
	return l.prefix + ":" + identity
}

// Admit 判斷 identity 在當前窗口內是否還有配額
func (l *FixedWindow) Admit(ctx context.Context, identity string, window time.Duration, max int) Decision {
	key := l.Key(identity)

	count, err := l.counter.Incr(ctx, key)
	if err != nil {
		l.logger.WarnContext(ctx, "rate limiter unavailable, allowing request", "key", key, "error", err)
		return Decision{Allowed: true, Degraded: true}
	}

	if count == 1 {
		// EXPIRE 失敗時計數器沒有 TTL，下次被拒絕時會修復
		if err := l.counter.Expire(ctx, key, window); err != nil {
			l.logger.WarnContext(ctx, "set window expiry failed", "key", key, "error", err)
		}
	}

	if count <= int64(max) {
		return Decision{Allowed: true, Count: count}
	}

	ttl, err := l.counter.TTL(ctx, key)
	if err != nil {
		l.logger.WarnContext(ctx, "rate limiter unavailable, allowing request", "key", key, "error", err)
		return Decision{Allowed: true, Count: count, Degraded: true}
	}

	switch {
	case ttl == cache.NoExpiry:
		// INCR 之後 EXPIRE 丟失，計數器永不過期；補上窗口
		l.logger.WarnContext(ctx, "repairing rate counter without ttl", "key", key)
		if err := l.counter.Expire(ctx, key, window); err != nil {
			l.logger.WarnContext(ctx, "repair window expiry failed", "key", key, "error", err)
		}
		ttl = window
	case ttl == cache.NoKey || ttl <= 0:
		// 窗口恰好在 INCR 與 TTL 之間結束
		ttl = time.Second
	case ttl > window:
		ttl = window
	}

	return Decision{
		Allowed:    false,
		Count:      count,
		RetryAfter: ceilSecond(ttl),
	}
}

func ceilSecond(d time.Duration) time.Duration {
	if r := d % time.Second; r != 0 {
		d += time.Second - r
	}
	return d
}
