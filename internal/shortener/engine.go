package shortener

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/koopa0/shortlink/pkg/base62"
	apperrors "github.com/koopa0/shortlink/pkg/errors"
)

// DefaultMaxAttempts 短碼衝突時的最大嘗試次數
//
// 7 位 Base62 空間裡連續 10 次衝突視為異常，而不是正常負載。
const DefaultMaxAttempts = 10

// Options 引擎設定
type Options struct {
	// BaseURL 短網址前綴，如 "https://sho.rt"
	BaseURL string

	// CacheTTL 快取兩個方向的 TTL（預設 24 小時）
	CacheTTL time.Duration

	// MaxAttempts 插入重試上限（預設 10）
	MaxAttempts int

	// CodeLength 短碼長度，用於解析前的格式預檢（預設 7）
	CodeLength int

	// BlockPrivateHosts 拒絕指向 localhost / 私有 IP 的 URL
	BlockPrivateHosts bool
}

func (o *Options) applyDefaults() {
	if o.CacheTTL <= 0 {
		o.CacheTTL = DefaultCacheTTL
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.CodeLength <= 0 {
		o.CodeLength = base62.DefaultLength
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
}

// Engine 短網址引擎
//
// 引擎本身沒有可變的共享狀態：所有共享狀態都在存儲層和快取層，
// 由它們各自負責並發控制。Engine 可被任意多個請求並發使用。
type Engine struct {
	store  Store
	index  *CacheIndex
	codes  CodeGenerator
	events Publisher
	opts   Options
	logger *slog.Logger
}

// NewEngine 創建引擎
//
// events 為 nil 時不發布事件。
func NewEngine(store Store, kv KV, codes CodeGenerator, events Publisher, opts Options, logger *slog.Logger) *Engine {
	opts.applyDefaults()
	if events == nil {
		events = NopPublisher{}
	}
	return &Engine{
		store:  store,
		index:  NewCacheIndex(kv, opts.CacheTTL),
		codes:  codes,
		events: events,
		opts:   opts,
		logger: logger.With("component", "shortener"),
	}
}

// Create 創建短網址
//
// 核心流程：
//  1. 快取去重：hash(longURL) → code 命中，刷新 code → longURL 的 TTL 後返回
//  2. 資料庫去重：存在未刪除的相同 longURL，回填兩個方向的快取後返回
//  3. 生成短碼並插入，UNIQUE 衝突時換一個短碼重試（最多 MaxAttempts 次）
//  4. 插入成功後回填兩個方向的快取
//
// 冪等性：同一個 longURL 在沒有刪除的情況下永遠返回同一個短碼，
// 因為步驟 1、2 在生成任何新短碼之前執行。
//
// 每個分支返回的都是該分支實際得到的短碼。
func (e *Engine) Create(ctx context.Context, rawURL, visitorID string) (*Result, error) {
	longURL, err := NormalizeURL(rawURL, e.opts.BlockPrivateHosts)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(visitorID) == "" {
		return nil, ErrInvalidVisitor
	}

	// 1. 快取去重（快取錯誤視為未命中）
	code, hit, err := e.index.LookupCodeByURL(ctx, longURL)
	if err != nil {
		e.logger.WarnContext(ctx, "cache lookup failed", "error", err)
	}
	if hit {
		// 證明反向映射仍可解析
		if err := e.index.RefreshURLMapping(ctx, code, longURL); err != nil {
			e.logger.WarnContext(ctx, "cache refresh failed", "code", code, "error", err)
		}
		return e.result(code, longURL, false), nil
	}

	// 2. 資料庫去重
	existing, err := e.store.FindByLongURL(ctx, longURL)
	switch {
	case err == nil:
		e.remember(ctx, existing.Code, existing.LongURL)
		return e.result(existing.Code, existing.LongURL, false), nil
	case !errors.Is(err, ErrNotFound):
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "find link by url")
	}

	// 3. 生成短碼並插入
	link, err := e.insert(ctx, longURL, visitorID)
	if err != nil {
		return nil, err
	}

	// 4. 回填快取
	e.remember(ctx, link.Code, link.LongURL)
	e.publish(ctx, EventLinkCreated, link)

	e.logger.InfoContext(ctx, "link created", "code", link.Code, "link_id", link.ID)
	return e.result(link.Code, link.LongURL, true), nil
}

// insert 帶衝突重試的插入
//
// 衝突檢測依賴存儲層的 UNIQUE 約束，而不是先查後寫：
// 先查後寫在並發下有競態，約束才是唯一可靠的判斷。
func (e *Engine) insert(ctx context.Context, longURL, visitorID string) (*Link, error) {
	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeCreationExhausted, "create link")
		}

		code, err := e.codes.Generate()
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeCreationExhausted, "generate short code")
		}

		link := &Link{
			ID:        uuid.NewString(),
			VisitorID: visitorID,
			Code:      code,
			LongURL:   longURL,
			CreatedAt: time.Now().UTC(),
		}

		err = e.store.Insert(ctx, link)
		if err == nil {
			return link, nil
		}
		if errors.Is(err, ErrCodeTaken) {
			e.logger.WarnContext(ctx, "short code collision, retrying",
				"code", code,
				"attempt", attempt,
				"max_attempts", e.opts.MaxAttempts)
			continue
		}

		return nil, apperrors.Wrap(err, apperrors.ErrCodeCreationExhausted, "insert link")
	}

	e.logger.ErrorContext(ctx, "short code attempts exhausted", "attempts", e.opts.MaxAttempts)
	return nil, ErrCreationExhausted
}

// Resolve 解析短碼為長網址
//
// 核心流程：
//  1. 查快取 c:{code}，命中直接返回（不回源校驗，這正是快取的意義）
//  2. 未命中查資料庫，找到後回填 c:{code}
//
// 軟刪除時會主動清除快取，所以命中的值不會長期指向已刪除的鏈接。
func (e *Engine) Resolve(ctx context.Context, code string) (string, error) {
	// 格式不對的短碼不可能存在，不浪費一次 I/O
	if len(code) != e.opts.CodeLength || !base62.IsValid(code) {
		return "", ErrNotFound
	}

	longURL, hit, err := e.index.LookupURLByCode(ctx, code)
	if err != nil {
		e.logger.WarnContext(ctx, "cache lookup failed", "code", code, "error", err)
	}
	if hit {
		return longURL, nil
	}

	link, err := e.store.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrNotFound
		}
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "find link by code")
	}

	if err := e.index.RefreshURLMapping(ctx, link.Code, link.LongURL); err != nil {
		e.logger.WarnContext(ctx, "cache populate failed", "code", code, "error", err)
	}

	return link.LongURL, nil
}

// Delete 軟刪除訪客擁有的單個鏈接
//
// 不屬於該訪客的鏈接返回 ErrNotFound，且不做任何修改。
// 短碼不會被釋放。
func (e *Engine) Delete(ctx context.Context, linkID, visitorID string) error {
	if _, err := uuid.Parse(linkID); err != nil {
		return ErrNotFound
	}
	if strings.TrimSpace(visitorID) == "" {
		return ErrInvalidVisitor
	}

	link, err := e.store.SoftDelete(ctx, linkID, visitorID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "soft delete link")
	}

	e.forget(ctx, link)
	e.publish(ctx, EventLinkDeleted, link)

	e.logger.InfoContext(ctx, "link deleted", "code", link.Code, "link_id", link.ID)
	return nil
}

// DeleteAll 軟刪除訪客的全部鏈接，返回刪除數量
func (e *Engine) DeleteAll(ctx context.Context, visitorID string) (int, error) {
	if strings.TrimSpace(visitorID) == "" {
		return 0, ErrInvalidVisitor
	}

	links, err := e.store.SoftDeleteAll(ctx, visitorID)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeInternal, "soft delete links")
	}

	for _, link := range links {
		e.forget(ctx, link)
		e.publish(ctx, EventLinkDeleted, link)
	}

	e.logger.InfoContext(ctx, "links deleted", "count", len(links))
	return len(links), nil
}

// ListRecent 訪客最近創建的鏈接
func (e *Engine) ListRecent(ctx context.Context, visitorID string, limit int) ([]*Link, error) {
	if strings.TrimSpace(visitorID) == "" {
		return nil, ErrInvalidVisitor
	}

	links, err := e.store.ListRecent(ctx, visitorID, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "list recent links")
	}
	return links, nil
}

// ShortURL 拼接短網址
func (e *Engine) ShortURL(code string) string {
	return e.opts.BaseURL + "/" + code
}

func (e *Engine) result(code, longURL string, created bool) *Result {
	return &Result{
		Code:     code,
		ShortURL: e.ShortURL(code),
		LongURL:  longURL,
		Created:  created,
	}
}

// remember 回填快取，失敗只記錄日誌
func (e *Engine) remember(ctx context.Context, code, longURL string) {
	if err := e.index.Remember(ctx, code, longURL); err != nil {
		e.logger.WarnContext(ctx, "cache populate failed", "code", code, "error", err)
	}
}

// forget 清除快取，失敗只記錄日誌（條目仍會在 TTL 後過期）
func (e *Engine) forget(ctx context.Context, link *Link) {
	if err := e.index.Forget(ctx, link.Code, link.LongURL); err != nil {
		e.logger.WarnContext(ctx, "cache evict failed", "code", link.Code, "error", err)
	}
}

func (e *Engine) publish(ctx context.Context, typ string, link *Link) {
	event := Event{
		Type:      typ,
		LinkID:    link.ID,
		Code:      link.Code,
		LongURL:   link.LongURL,
		VisitorID: link.VisitorID,
		Timestamp: time.Now().UTC(),
	}
	if err := e.events.Publish(ctx, event); err != nil {
		e.logger.WarnContext(ctx, "publish event failed", "type", typ, "code", link.Code, "error", err)
	}
}
