// Package storage 實現各種存儲後端
//
// 存儲架構：
//
//	Memory    單機、開發測試
//	SQLite    單機持久化（gorm + 純 Go 驅動，不需要 CGO）
//	Postgres  生產環境（pgx 連接池）
//
// 三者遵守同一份約定（shortener.Store）：
//   - code 全局唯一，包含已刪除的記錄
//   - 查詢只返回未刪除的記錄
//   - 刪除只翻轉 deleted 標誌
package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/koopa0/shortlink/internal/shortener"
)

// Memory 內存存儲實現
//
// 使用場景：
//   - 單元測試（隔離外部依賴）
//   - 本地開發
//
// 並發安全：一把讀寫鎖保護三個索引。
type Memory struct {
	mu     sync.RWMutex
	byID   map[string]*shortener.Link
	byCode map[string]*shortener.Link // 包含已刪除的記錄，保證短碼不被複用
	links  []*shortener.Link          // 按插入順序
}

// NewMemory 創建內存存儲實例
func NewMemory() *Memory {
	return &Memory{
		byID:   make(map[string]*shortener.Link),
		byCode: make(map[string]*shortener.Link),
	}
}

// Insert 插入鏈接
func (m *Memory) Insert(ctx context.Context, link *shortener.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byCode[link.Code]; exists {
		return shortener.ErrCodeTaken
	}

	stored := *link
	m.byID[stored.ID] = &stored
	m.byCode[stored.Code] = &stored
	m.links = append(m.links, &stored)
	return nil
}

// FindByLongURL 按原始 URL 查找
//
// 如果並發創建產生了多條相同 URL 的記錄，返回創建時間最早的一條。
func (m *Memory) FindByLongURL(ctx context.Context, longURL string) (*shortener.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var earliest *shortener.Link
	for _, link := range m.links {
		if link.Deleted || link.LongURL != longURL {
			continue
		}
		if earliest == nil || link.CreatedAt.Before(earliest.CreatedAt) {
			earliest = link
		}
	}
	if earliest == nil {
		return nil, shortener.ErrNotFound
	}
	return copyLink(earliest), nil
}

// FindByCode 按短碼查找
func (m *Memory) FindByCode(ctx context.Context, code string) (*shortener.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, ok := m.byCode[code]
	if !ok || link.Deleted {
		return nil, shortener.ErrNotFound
	}
	return copyLink(link), nil
}

// SoftDelete 軟刪除單個鏈接
func (m *Memory) SoftDelete(ctx context.Context, id, visitorID string) (*shortener.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, ok := m.byID[id]
	if !ok || link.Deleted || link.VisitorID != visitorID {
		return nil, shortener.ErrNotFound
	}
	link.Deleted = true
	return copyLink(link), nil
}

// SoftDeleteAll 軟刪除訪客的全部鏈接
func (m *Memory) SoftDeleteAll(ctx context.Context, visitorID string) ([]*shortener.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted []*shortener.Link
	for _, link := range m.links {
		if link.VisitorID == visitorID && !link.Deleted {
			link.Deleted = true
			deleted = append(deleted, copyLink(link))
		}
	}
	return deleted, nil
}

// ListRecent 按創建時間倒序列出訪客的鏈接
func (m *Memory) ListRecent(ctx context.Context, visitorID string, limit int) ([]*shortener.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// 倒序遍歷 + 穩定排序：同一時間戳時後插入的排在前面
	var result []*shortener.Link
	for i := len(m.links) - 1; i >= 0; i-- {
		link := m.links[i]
		if link.VisitorID == visitorID && !link.Deleted {
			result = append(result, copyLink(link))
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return clampList(result, ClampLimit(limit)), nil
}

// Codes 返回所有短碼（含已刪除，測試用）
func (m *Memory) Codes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	codes := make([]string, 0, len(m.links))
	for _, link := range m.links {
		codes = append(codes, link.Code)
	}
	return codes
}

// Get 按 ID 讀取，包含已刪除的記錄（測試用）
func (m *Memory) Get(id string) (*shortener.Link, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, ok := m.byID[id]
	if !ok {
		return nil, false
	}
	return copyLink(link), true
}

// Ping 健康檢查
func (m *Memory) Ping(ctx context.Context) error {
	return nil
}

// copyLink 返回副本，防止調用方修改內部狀態
func copyLink(link *shortener.Link) *shortener.Link {
	cp := *link
	return &cp
}
