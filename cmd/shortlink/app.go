package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/koopa0/shortlink/internal/cache"
	"github.com/koopa0/shortlink/internal/config"
	"github.com/koopa0/shortlink/internal/events"
	"github.com/koopa0/shortlink/internal/ratelimit"
	"github.com/koopa0/shortlink/internal/shortener"
	"github.com/koopa0/shortlink/internal/storage"
	"github.com/koopa0/shortlink/internal/storage/migrations"
	"github.com/koopa0/shortlink/pkg/base62"
	"github.com/koopa0/shortlink/pkg/logger"
)

// linkStore 存儲實現額外提供健康檢查
type linkStore interface {
	shortener.Store
	Ping(ctx context.Context) error
}

// kvStore 同時滿足快取索引與限流計數器
type kvStore interface {
	shortener.KV
	ratelimit.Counter
	Ping(ctx context.Context) error
}

// app 按配置組裝的依賴
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   linkStore
	kv      kvStore
	engine  *shortener.Engine
	closers []io.Closer
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// loadApp 載入配置並初始化日誌
func loadApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, closer, err := logger.New(logger.Options{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Output:    cfg.Log.Output,
		AddSource: cfg.Log.AddSource,
		TimeZone:  cfg.Log.TimeZone,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	slog.SetDefault(log)

	return &app{
		cfg:     cfg,
		logger:  log,
		closers: []io.Closer{closer},
	}, nil
}

// build 連接存儲、快取、事件並創建引擎
func (a *app) build(ctx context.Context) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	a.store = store

	kv, err := a.openCache(ctx)
	if err != nil {
		return err
	}
	a.kv = kv

	publisher, err := a.openPublisher()
	if err != nil {
		return err
	}

	a.engine = shortener.NewEngine(
		a.store,
		a.kv,
		base62.NewGenerator(a.cfg.Links.CodeLength),
		publisher,
		shortener.Options{
			BaseURL:           a.cfg.Server.BaseURL,
			CacheTTL:          a.cfg.Links.CacheTTL,
			MaxAttempts:       a.cfg.Links.MaxAttempts,
			CodeLength:        a.cfg.Links.CodeLength,
			BlockPrivateHosts: a.cfg.Links.BlockPrivateHosts,
		},
		a.logger,
	)
	return nil
}

func (a *app) openStore(ctx context.Context) (linkStore, error) {
	switch a.cfg.Store.Driver {
	case config.DriverMemory:
		a.logger.Warn("using in-memory store, links are lost on restart")
		return storage.NewMemory(), nil

	case config.DriverSQLite:
		s, err := storage.OpenSQLite(a.cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s)
		a.logger.Info("connected to sqlite", "path", a.cfg.SQLite.Path)
		return s, nil

	default:
		pool, err := a.openPostgres(ctx)
		if err != nil {
			return nil, err
		}
		return storage.NewPostgres(pool), nil
	}
}

func (a *app) openPostgres(ctx context.Context) (*pgxpool.Pool, error) {
	if a.cfg.Postgres.AutoMigrate {
		if err := a.migrate(func(m *migrations.Migrator) error { return m.Up() }); err != nil {
			return nil, err
		}
	}

	pgConfig, err := pgxpool.ParseConfig(a.cfg.PostgresURL())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pgConfig.MaxConns = a.cfg.Postgres.MaxConns
	pgConfig.MinConns = a.cfg.Postgres.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, pgConfig)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	a.closers = append(a.closers, closerFunc(func() error {
		pool.Close()
		return nil
	}))

	a.logger.Info("connected to postgres", "max_conns", pgConfig.MaxConns)
	return pool, nil
}

func (a *app) openCache(ctx context.Context) (kvStore, error) {
	if a.cfg.Cache.Driver == config.DriverMemory {
		a.logger.Warn("using in-memory cache, rate limits are per process")
		return cache.NewMemory(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         a.cfg.Redis.Addr,
		Password:     a.cfg.Redis.Password,
		DB:           a.cfg.Redis.DB,
		PoolSize:     a.cfg.Redis.PoolSize,
		MinIdleConns: a.cfg.Redis.MinIdleConns,
		MaxRetries:   a.cfg.Redis.MaxRetries,
		DialTimeout:  a.cfg.Redis.DialTimeout,
		ReadTimeout:  a.cfg.Redis.ReadTimeout,
		WriteTimeout: a.cfg.Redis.WriteTimeout,
	})
	a.closers = append(a.closers, client)

	// 快取只是加速層：啟動時連不上只告警，運行中按未命中處理
	if err := client.Ping(ctx).Err(); err != nil {
		a.logger.Warn("redis unavailable at startup", "addr", a.cfg.Redis.Addr, "error", err)
	} else {
		a.logger.Info("connected to redis", "addr", a.cfg.Redis.Addr)
	}
	return cache.NewRedis(client), nil
}

func (a *app) openPublisher() (shortener.Publisher, error) {
	if a.cfg.NATS.URL == "" {
		return shortener.NopPublisher{}, nil
	}

	p, err := events.Connect(a.cfg.NATS.URL, a.cfg.NATS.SubjectPrefix, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, p)
	a.logger.Info("connected to nats", "url", a.cfg.NATS.URL)
	return p, nil
}

// migrate 用配置中的 PostgreSQL 執行一次遷移操作
func (a *app) migrate(op func(m *migrations.Migrator) error) error {
	m, err := migrations.New(a.cfg.PostgresURL(), a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			a.logger.Warn("close migrator failed", "error", err)
		}
	}()
	return op(m)
}

// close 逆序釋放資源
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			fmt.Fprintf(os.Stderr, "close: %v\n", err)
		}
	}
}
