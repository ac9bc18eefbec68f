package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Memory 內存實現
//
// 使用場景：
//   - 單元測試（不需要 Redis 容器）
//   - 單機開發
//
// 過期採用惰性刪除：讀取時檢查，過期即刪。
// 不做容量控制，長時間運行應使用 Redis。
type Memory struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time

	// 錯誤注入（測試用）：非 nil 時所有操作返回該錯誤
	failWith error
}

type memoryItem struct {
	value     string
	expiresAt time.Time // 零值表示永不過期
}

// NewMemory 創建內存快取
func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock 使用自定義時鐘，方便測試時間窗口
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		items: make(map[string]memoryItem),
		now:   now,
	}
}

// FailWith 讓後續所有操作返回 err，傳 nil 恢復正常
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// lookup 調用方必須持有鎖
func (m *Memory) lookup(key string) (memoryItem, bool) {
	item, ok := m.items[key]
	if !ok {
		return memoryItem{}, false
	}
	if !item.expiresAt.IsZero() && !m.now().Before(item.expiresAt) {
		delete(m.items, key)
		return memoryItem{}, false
	}
	return item, true
}

func (m *Memory) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

// Get 讀取 key
func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return "", false, m.failWith
	}
	item, ok := m.lookup(key)
	return item.value, ok, nil
}

// Set 寫入 key，ttl <= 0 表示永不過期
func (m *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return m.failWith
	}
	m.items[key] = memoryItem{value: value, expiresAt: m.expiry(ttl)}
	return nil
}

// Del 刪除 key
func (m *Memory) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return m.failWith
	}
	for _, key := range keys {
		delete(m.items, key)
	}
	return nil
}

// Incr 原子遞增，保留原有過期時間（與 Redis INCR 一致）
func (m *Memory) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return 0, m.failWith
	}

	item, ok := m.lookup(key)
	var n int64
	if ok {
		v, err := strconv.ParseInt(item.value, 10, 64)
		if err != nil {
			return 0, err
		}
		n = v
	}
	n++
	item.value = strconv.FormatInt(n, 10)
	m.items[key] = item
	return n, nil
}

// Expire 設置過期時間，key 不存在時為空操作
func (m *Memory) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return m.failWith
	}
	item, ok := m.lookup(key)
	if !ok {
		return nil
	}
	if ttl <= 0 {
		delete(m.items, key)
		return nil
	}
	item.expiresAt = m.expiry(ttl)
	m.items[key] = item
	return nil
}

// TTL 返回剩餘存活時間
func (m *Memory) TTL(ctx context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return 0, m.failWith
	}
	item, ok := m.lookup(key)
	if !ok {
		return NoKey, nil
	}
	if item.expiresAt.IsZero() {
		return NoExpiry, nil
	}
	return item.expiresAt.Sub(m.now()), nil
}

// Ping 健康檢查
func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failWith
}

// Len 返回未過期的 key 數量（測試用）
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key := range m.items {
		if _, ok := m.lookup(key); ok {
			n++
		}
	}
	return n
}
