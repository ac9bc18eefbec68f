// Package shortener 實現短網址服務的核心業務邏輯
//
// 系統設計要點：
//
//  1. 短碼生成：7 位 Base62 隨機碼（crypto/rand）
//     - 唯一性由存儲層 UNIQUE 約束保證，衝突時重新生成（最多 10 次）
//
//  2. 存儲架構：Redis（快取）+ PostgreSQL（持久化）
//     - 快取是雙向的兩組獨立 key：hash(longURL) → code、code → longURL
//     - 兩個方向各自過期，互不影響
//
//  3. 一致性策略：最終一致性
//     - 讀取時：先查快取，未命中再查資料庫並回填
//     - 刪除時：主動清除快取，不等 TTL 自然過期
//
//  4. 寫入保護：固定窗口限流（見 internal/ratelimit）
package shortener

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/koopa0/shortlink/pkg/errors"
)

// Link 表示一個短網址記錄
//
// 生命週期：
//   - 只由 Engine.Create 創建
//   - 只由軟刪除修改（Deleted false → true，不可逆）
//   - 永不物理刪除，短碼永不複用
type Link struct {
	ID        string    `json:"id"`
	VisitorID string    `json:"-"`
	Code      string    `json:"code"`
	LongURL   string    `json:"longUrl"`
	CreatedAt time.Time `json:"createdAt"`
	Deleted   bool      `json:"-"`
}

// Result Create 的返回值
//
// Created 區分新建（201）與去重命中（200），其餘字段形狀相同。
type Result struct {
	Code     string `json:"code"`
	ShortURL string `json:"shortUrl"`
	LongURL  string `json:"longUrl"`
	Created  bool   `json:"-"`
}

// Store 持久化存儲接口
//
// 所有查詢只返回未刪除的記錄；唯一約束覆蓋全部記錄（含已刪除）。
//
// 錯誤約定：
//   - Insert 短碼衝突 → ErrCodeTaken
//   - 查不到（或不屬於該訪客）→ ErrNotFound
type Store interface {
	// Insert 插入新鏈接
	Insert(ctx context.Context, link *Link) error

	// FindByLongURL 按原始 URL 精確查找未刪除的鏈接
	FindByLongURL(ctx context.Context, longURL string) (*Link, error)

	// FindByCode 按短碼查找未刪除的鏈接
	FindByCode(ctx context.Context, code string) (*Link, error)

	// SoftDelete 刪除訪客擁有的單個鏈接，返回被刪除的記錄（用於清快取）
	SoftDelete(ctx context.Context, id, visitorID string) (*Link, error)

	// SoftDeleteAll 刪除訪客的全部鏈接，返回受影響的記錄
	SoftDeleteAll(ctx context.Context, visitorID string) ([]*Link, error)

	// ListRecent 訪客最近的鏈接，按創建時間倒序
	ListRecent(ctx context.Context, visitorID string, limit int) ([]*Link, error)
}

// KV 快取接口（消費方定義，只包含需要的方法）
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// CodeGenerator 短碼生成器
type CodeGenerator interface {
	Generate() (string, error)
}

// 事件類型
const (
	EventLinkCreated = "link.created"
	EventLinkDeleted = "link.deleted"
)

// Event 鏈接生命週期事件
type Event struct {
	Type      string    `json:"type"`
	LinkID    string    `json:"link_id"`
	Code      string    `json:"code"`
	LongURL   string    `json:"long_url"`
	VisitorID string    `json:"visitor_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher 事件發布接口
//
// 發布是盡力而為：失敗只記錄日誌，不影響請求結果。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher 不發布任何事件
type NopPublisher struct{}

// Publish 空操作
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// 錯誤定義
//
// HTTP 狀態碼映射（見 pkg/errors.HTTPStatus）：
//   - ErrInvalidURL         → 400
//   - ErrNotFound           → 404
//   - ErrCreationExhausted  → 500
var (
	// ErrInvalidURL URL 為空、無法解析或 scheme 不是 http/https
	ErrInvalidURL = apperrors.New(apperrors.ErrCodeInvalidInput, "invalid url")

	// ErrInvalidVisitor 缺少訪客標識
	ErrInvalidVisitor = apperrors.New(apperrors.ErrCodeInvalidInput, "visitor id required")

	// ErrNotFound 短碼或鏈接不存在
	ErrNotFound = apperrors.New(apperrors.ErrCodeNotFound, "link not found")

	// ErrCreationExhausted 重試次數用盡或存儲失敗
	ErrCreationExhausted = apperrors.New(apperrors.ErrCodeCreationExhausted, "could not allocate a unique short code")

	// ErrCodeTaken 短碼已被佔用（存儲層 UNIQUE 衝突）
	//
	// 只在 Engine 的重試循環內部使用，不會返回給調用方。
	ErrCodeTaken = errors.New("short code already taken")
)
