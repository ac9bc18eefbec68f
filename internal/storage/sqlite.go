package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/koopa0/shortlink/internal/shortener"
)

// linkRow links 表的 gorm 模型
//
// 與 PostgreSQL 遷移保持相同的列名與約束：code 唯一（含已刪除）。
type linkRow struct {
	ID        string    `gorm:"primaryKey;size:36"`
	VisitorID string    `gorm:"not null;index:idx_links_visitor"`
	Code      string    `gorm:"not null;uniqueIndex:links_code_unique"`
	LongURL   string    `gorm:"not null;index:idx_links_long_url"`
	CreatedAt time.Time `gorm:"not null"`
	Deleted   bool      `gorm:"not null;default:false"`
}

func (linkRow) TableName() string { return "links" }

func (r *linkRow) toLink() *shortener.Link {
	return &shortener.Link{
		ID:        r.ID,
		VisitorID: r.VisitorID,
		Code:      r.Code,
		LongURL:   r.LongURL,
		CreatedAt: r.CreatedAt.UTC(),
		Deleted:   r.Deleted,
	}
}

// SQLite 單機持久化存儲
//
// 使用純 Go 驅動（glebarez/sqlite），不需要 CGO；適合單機部署和命令行工具。
// 表結構由 gorm AutoMigrate 維護，不走 golang-migrate。
type SQLite struct {
	db *gorm.DB
}

// OpenSQLite 打開（或創建）SQLite 資料庫並同步表結構
//
// path 為 ":memory:" 時使用內存資料庫（測試用）。
func OpenSQLite(path string) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite 同一時間只允許一個寫者
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&linkRow{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Insert 插入鏈接
func (s *SQLite) Insert(ctx context.Context, link *shortener.Link) error {
	row := linkRow{
		ID:        link.ID,
		VisitorID: link.VisitorID,
		Code:      link.Code,
		LongURL:   link.LongURL,
		CreatedAt: link.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return shortener.ErrCodeTaken
		}
		return fmt.Errorf("insert link: %w", err)
	}
	return nil
}

// FindByLongURL 按原始 URL 查找最早的未刪除記錄
func (s *SQLite) FindByLongURL(ctx context.Context, longURL string) (*shortener.Link, error) {
	var row linkRow
	err := s.db.WithContext(ctx).
		Where("long_url = ? AND deleted = ?", longURL, false).
		Order("created_at").
		First(&row).Error
	if err != nil {
		return nil, gormNotFoundOr(err, "find link by url")
	}
	return row.toLink(), nil
}

// FindByCode 按短碼查找
func (s *SQLite) FindByCode(ctx context.Context, code string) (*shortener.Link, error) {
	var row linkRow
	err := s.db.WithContext(ctx).
		Where("code = ? AND deleted = ?", code, false).
		First(&row).Error
	if err != nil {
		return nil, gormNotFoundOr(err, "find link by code")
	}
	return row.toLink(), nil
}

// SoftDelete 軟刪除單個鏈接
func (s *SQLite) SoftDelete(ctx context.Context, id, visitorID string) (*shortener.Link, error) {
	var row linkRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND visitor_id = ? AND deleted = ?", id, visitorID, false).
			First(&row).Error; err != nil {
			return err
		}
		return tx.Model(&linkRow{}).Where("id = ?", row.ID).Update("deleted", true).Error
	})
	if err != nil {
		return nil, gormNotFoundOr(err, "soft delete link")
	}
	row.Deleted = true
	return row.toLink(), nil
}

// SoftDeleteAll 軟刪除訪客的全部鏈接
func (s *SQLite) SoftDeleteAll(ctx context.Context, visitorID string) ([]*shortener.Link, error) {
	var rows []linkRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("visitor_id = ? AND deleted = ?", visitorID, false).
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Model(&linkRow{}).
			Where("visitor_id = ? AND deleted = ?", visitorID, false).
			Update("deleted", true).Error
	})
	if err != nil {
		return nil, fmt.Errorf("soft delete links: %w", err)
	}

	links := make([]*shortener.Link, 0, len(rows))
	for i := range rows {
		rows[i].Deleted = true
		links = append(links, rows[i].toLink())
	}
	return links, nil
}

// ListRecent 按創建時間倒序列出訪客的鏈接
func (s *SQLite) ListRecent(ctx context.Context, visitorID string, limit int) ([]*shortener.Link, error) {
	var rows []linkRow
	err := s.db.WithContext(ctx).
		Where("visitor_id = ? AND deleted = ?", visitorID, false).
		Order("created_at DESC").
		Limit(ClampLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list recent links: %w", err)
	}

	links := make([]*shortener.Link, 0, len(rows))
	for i := range rows {
		links = append(links, rows[i].toLink())
	}
	return links, nil
}

// Ping 健康檢查
func (s *SQLite) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 關閉資料庫
func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// isUniqueViolation 判斷是否為唯一約束衝突
//
// 驅動版本不同時 TranslateError 不一定生效，保留錯誤信息匹配作為兜底。
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func gormNotFoundOr(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shortener.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
