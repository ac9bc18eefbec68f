package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis 基於 go-redis 的實現
//
// 系統設計考量：
//   - 連接池、超時、重試由 redis.Options 控制（見 config）
//   - 這一層只做類型轉換，不吞錯誤；是否降級由調用方決定
type Redis struct {
	client redis.UniversalClient
}

// NewRedis 創建 Redis 快取
//
// client 的生命週期由調用方管理。
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// Get 讀取 key，不存在時 ok 為 false
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

// Set 寫入 key 並設置過期時間，覆蓋已有值
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Del 刪除 key，不存在的 key 被忽略
func (r *Redis) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Incr 原子遞增，key 不存在時從 0 開始
func (r *Redis) Incr(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return n, nil
}

// Expire 設置過期時間
func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("redis expire %s: %w", key, err)
	}
	return nil
}

// TTL 返回剩餘存活時間
//
// go-redis v9 對 -1/-2 直接返回 time.Duration(-1)/(-2)，
// 這裡統一成 NoExpiry/NoKey，與 Memory 實現對齊。
func (r *Redis) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ttl %s: %w", key, err)
	}
	switch {
	case d == -2 || d == -2*time.Second:
		return NoKey, nil
	case d < 0:
		return NoExpiry, nil
	}
	return d, nil
}

// Ping 健康檢查
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
