// Package testutils 提供測試用的共用工具
//
// 管理 testcontainers 啟動的 PostgreSQL 與 Redis，
// 容器在測試結束時通過 t.Cleanup 自動終止。
//
// 需要 Docker；go test -short 時直接跳過整合測試。
package testutils

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/koopa0/shortlink/internal/storage/migrations"
)

// Postgres 已遷移的 PostgreSQL 測試環境
type Postgres struct {
	Pool *pgxpool.Pool
	URL  string
}

// Redis Redis 測試環境
type Redis struct {
	Client *redis.Client
	Addr   string
}

// Logger 測試用 logger（丟棄輸出）
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// SkipIfShort 整合測試在 -short 模式下跳過
func SkipIfShort(t testing.TB) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

// SetupPostgres 啟動 PostgreSQL 容器並執行遷移
//
// 使用範例：
//
//	func TestSomething(t *testing.T) {
//	    pg := testutils.SetupPostgres(t)
//	    store := storage.NewPostgres(pg.Pool)
//	}
func SetupPostgres(t testing.TB) *Postgres {
	t.Helper()
	SkipIfShort(t)

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("shortlink"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		tc.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	m, err := migrations.New(url, Logger())
	if err != nil {
		t.Fatalf("failed to create migrator: %v", err)
	}
	if err := m.Up(); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	_ = m.Close()

	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		t.Fatalf("failed to parse postgres config: %v", err)
	}
	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		t.Fatalf("failed to create postgres pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("failed to ping postgres: %v", err)
	}

	return &Postgres{Pool: pool, URL: url}
}

// Truncate 清空 links 表（用於子測試之間的隔離）
func (p *Postgres) Truncate(t testing.TB) {
	t.Helper()
	if _, err := p.Pool.Exec(context.Background(), "TRUNCATE TABLE links"); err != nil {
		t.Fatalf("failed to truncate links: %v", err)
	}
}

// SetupRedis 啟動 Redis 容器
func SetupRedis(t testing.TB) *Redis {
	t.Helper()
	SkipIfShort(t)

	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         endpoint,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	t.Cleanup(func() {
		_ = client.Close()
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		t.Fatalf("failed to ping redis: %v", err)
	}

	return &Redis{Client: client, Addr: endpoint}
}

// Flush 清空 Redis
func (r *Redis) Flush(t testing.TB) {
	t.Helper()
	if err := r.Client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("failed to flush redis: %v", err)
	}
}
