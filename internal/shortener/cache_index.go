package shortener

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultCacheTTL 快取兩個方向的預設 TTL
const DefaultCacheTTL = 24 * time.Hour

// CacheIndex 雙向快取索引（Cache-Aside）
//
// 兩組獨立的 key：
//
//	u:{sha256(longURL)} → code     創建時去重
//	c:{code}            → longURL  重定向（熱路徑）
//
// 為什麼不合成一條記錄？
//   - 重定向只讀 c:，永遠不碰去重索引，反之亦然
//   - 兩個方向各自淘汰、各自過期
//   - 過期是唯一的淘汰機制，內存壓力交給 Redis 處理
//
// 兩個方向不是事務性的：可能一個存在、另一個已過期。
type CacheIndex struct {
	kv  KV
	ttl time.Duration
}

// NewCacheIndex 創建快取索引，ttl <= 0 時使用 DefaultCacheTTL
func NewCacheIndex(kv KV, ttl time.Duration) *CacheIndex {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CacheIndex{kv: kv, ttl: ttl}
}

// TTL 返回快取過期時間
func (c *CacheIndex) TTL() time.Duration {
	return c.ttl
}

// URLKey 去重方向的 key
//
// 長 URL 可能很長，用 SHA-256 摘要控制 key 的大小。
func URLKey(longURL string) string {
	sum := sha256.Sum256([]byte(longURL))
	return "u:" + hex.EncodeToString(sum[:])
}

// CodeKey 重定向方向的 key
func CodeKey(code string) string {
	return "c:" + code
}

// LookupCodeByURL 查詢長 URL 對應的短碼
func (c *CacheIndex) LookupCodeByURL(ctx context.Context, longURL string) (string, bool, error) {
	code, ok, err := c.kv.Get(ctx, URLKey(longURL))
	if err != nil {
		return "", false, fmt.Errorf("lookup code by url: %w", err)
	}
	return code, ok && code != "", nil
}

// LookupURLByCode 查詢短碼對應的長 URL
func (c *CacheIndex) LookupURLByCode(ctx context.Context, code string) (string, bool, error) {
	longURL, ok, err := c.kv.Get(ctx, CodeKey(code))
	if err != nil {
		return "", false, fmt.Errorf("lookup url by code: %w", err)
	}
	return longURL, ok && longURL != "", nil
}

// Remember 同時寫入兩個方向，覆蓋已有值
//
// 兩個 key 互相獨立，並發寫入；任一失敗返回第一個錯誤，
// 另一個方向可能已經寫入（快取只是建議性的，可以接受）。
func (c *CacheIndex) Remember(ctx context.Context, code, longURL string) error {
	// 不用 errgroup.WithContext：一個方向失敗不應取消另一個方向
	var g errgroup.Group
	g.Go(func() error {
		return c.RefreshCodeMapping(ctx, longURL, code)
	})
	g.Go(func() error {
		return c.RefreshURLMapping(ctx, code, longURL)
	})
	return g.Wait()
}

// RefreshURLMapping 只刷新 code → longURL
func (c *CacheIndex) RefreshURLMapping(ctx context.Context, code, longURL string) error {
	if err := c.kv.Set(ctx, CodeKey(code), longURL, c.ttl); err != nil {
		return fmt.Errorf("refresh url mapping: %w", err)
	}
	return nil
}

// RefreshCodeMapping 只刷新 hash(longURL) → code
func (c *CacheIndex) RefreshCodeMapping(ctx context.Context, longURL, code string) error {
	if err := c.kv.Set(ctx, URLKey(longURL), code, c.ttl); err != nil {
		return fmt.Errorf("refresh code mapping: %w", err)
	}
	return nil
}

// Forget 清除一個鏈接的兩個方向
func (c *CacheIndex) Forget(ctx context.Context, code, longURL string) error {
	if err := c.kv.Del(ctx, CodeKey(code), URLKey(longURL)); err != nil {
		return fmt.Errorf("forget link: %w", err)
	}
	return nil
}
