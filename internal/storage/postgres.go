package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/shortlink/internal/shortener"
)

// pgUniqueViolation PostgreSQL unique_violation 錯誤碼
const pgUniqueViolation = "23505"

// linkColumns 所有查詢共用的列清單（順序與 scanLink 一致）
const linkColumns = `id::text, visitor_id, code, long_url, created_at, deleted`

// Postgres PostgreSQL 存儲實現
//
// 表結構見 migrations/sql。關鍵約束：
//   - links_code_unique：短碼全局唯一（含已刪除），衝突映射為 ErrCodeTaken
//   - 軟刪除：UPDATE ... SET deleted = true，從不 DELETE
//
// 連接池由調用方創建並管理生命週期。
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres 創建 PostgreSQL 存儲實例
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Insert 插入鏈接
func (p *Postgres) Insert(ctx context.Context, link *shortener.Link) error {
	query := `
		INSERT INTO links (id, visitor_id, code, long_url, created_at, deleted)
		VALUES ($1, $2, $3, $4, $5, false)
	`

	_, err := p.pool.Exec(ctx, query,
		link.ID,
		link.VisitorID,
		link.Code,
		link.LongURL,
		link.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return shortener.ErrCodeTaken
		}
		return fmt.Errorf("insert link: %w", err)
	}
	return nil
}

// FindByLongURL 按原始 URL 查找
//
// 並發創建可能留下多條相同 URL 的記錄，取最早的一條保證結果穩定。
func (p *Postgres) FindByLongURL(ctx context.Context, longURL string) (*shortener.Link, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM links
		WHERE long_url = $1 AND NOT deleted
		ORDER BY created_at
		LIMIT 1
	`
	link, err := scanLink(p.pool.QueryRow(ctx, query, longURL))
	if err != nil {
		return nil, notFoundOr(err, "find link by url")
	}
	return link, nil
}

// FindByCode 按短碼查找
func (p *Postgres) FindByCode(ctx context.Context, code string) (*shortener.Link, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM links
		WHERE code = $1 AND NOT deleted
	`
	link, err := scanLink(p.pool.QueryRow(ctx, query, code))
	if err != nil {
		return nil, notFoundOr(err, "find link by code")
	}
	return link, nil
}

// SoftDelete 軟刪除單個鏈接
//
// 所有權校驗放在 WHERE 條件裡：不屬於該訪客時影響 0 行，與不存在無法區分。
func (p *Postgres) SoftDelete(ctx context.Context, id, visitorID string) (*shortener.Link, error) {
	query := `
		UPDATE links
		SET deleted = true
		WHERE id = $1 AND visitor_id = $2 AND NOT deleted
		RETURNING ` + linkColumns

	link, err := scanLink(p.pool.QueryRow(ctx, query, id, visitorID))
	if err != nil {
		return nil, notFoundOr(err, "soft delete link")
	}
	return link, nil
}

// SoftDeleteAll 軟刪除訪客的全部鏈接
func (p *Postgres) SoftDeleteAll(ctx context.Context, visitorID string) ([]*shortener.Link, error) {
	query := `
		UPDATE links
		SET deleted = true
		WHERE visitor_id = $1 AND NOT deleted
		RETURNING ` + linkColumns

	rows, err := p.pool.Query(ctx, query, visitorID)
	if err != nil {
		return nil, fmt.Errorf("soft delete links: %w", err)
	}
	return collectLinks(rows)
}

// ListRecent 按創建時間倒序列出訪客的鏈接
func (p *Postgres) ListRecent(ctx context.Context, visitorID string, limit int) ([]*shortener.Link, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM links
		WHERE visitor_id = $1 AND NOT deleted
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := p.pool.Query(ctx, query, visitorID, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list recent links: %w", err)
	}
	return collectLinks(rows)
}

// Ping 健康檢查
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func scanLink(row pgx.Row) (*shortener.Link, error) {
	var link shortener.Link
	err := row.Scan(
		&link.ID,
		&link.VisitorID,
		&link.Code,
		&link.LongURL,
		&link.CreatedAt,
		&link.Deleted,
	)
	if err != nil {
		return nil, err
	}
	link.CreatedAt = link.CreatedAt.UTC()
	return &link, nil
}

func collectLinks(rows pgx.Rows) ([]*shortener.Link, error) {
	defer rows.Close()

	var links []*shortener.Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return links, nil
}

func notFoundOr(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shortener.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
