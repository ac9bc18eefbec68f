// Package config 載入應用配置
//
// 來源優先級（高 → 低）：
//
//	環境變數（DATABASE_URL、REDIS_ADDR、NATS_URL、BASE_URL）
//	YAML 配置文件
//	內建預設值
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// 存儲與快取驅動
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
)

// 限流身份
const (
	KeyByIP      = "ip"
	KeyByVisitor = "visitor"
)

// Config 整個應用的配置
type Config struct {
	Server struct {
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		IdleTimeout     time.Duration `yaml:"idle_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		RequestTimeout  time.Duration `yaml:"request_timeout"`

		// BaseURL 短網址前綴（不含結尾斜線）
		BaseURL string `yaml:"base_url"`

		// CORSOrigin 允許跨域的前端來源，空表示不開啟 CORS
		CORSOrigin string `yaml:"cors_origin"`

		// CookieSecure 訪客 cookie 是否只在 HTTPS 下發送
		CookieSecure bool `yaml:"cookie_secure"`

		// TrustProxy 信任 X-Forwarded-For（部署在反向代理之後）
		TrustProxy bool `yaml:"trust_proxy"`
	} `yaml:"server"`

	Store struct {
		Driver string `yaml:"driver"` // postgres | sqlite | memory
	} `yaml:"store"`

	Cache struct {
		Driver string `yaml:"driver"` // redis | memory
	} `yaml:"cache"`

	Postgres struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		DBName   string `yaml:"dbname"`
		SSLMode  string `yaml:"sslmode"`
		MaxConns int32  `yaml:"max_conns"`
		MinConns int32  `yaml:"min_conns"`

		// AutoMigrate serve 啟動時執行遷移
		AutoMigrate bool `yaml:"auto_migrate"`
	} `yaml:"postgres"`

	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`

	Redis struct {
		Addr         string        `yaml:"addr"`
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db"`
		PoolSize     int           `yaml:"pool_size"`
		MinIdleConns int           `yaml:"min_idle_conns"`
		MaxRetries   int           `yaml:"max_retries"`
		DialTimeout  time.Duration `yaml:"dial_timeout"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"redis"`

	NATS struct {
		// URL 為空時不發布事件
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	Links struct {
		CacheTTL          time.Duration `yaml:"cache_ttl"`
		MaxAttempts       int           `yaml:"max_attempts"`
		CodeLength        int           `yaml:"code_length"`
		BlockPrivateHosts bool          `yaml:"block_private_hosts"`
	} `yaml:"links"`

	RateLimit struct {
		Enabled bool          `yaml:"enabled"`
		Window  time.Duration `yaml:"window"`
		Max     int           `yaml:"max"`
		Prefix  string        `yaml:"prefix"`
		KeyBy   string        `yaml:"key_by"` // ip | visitor
	} `yaml:"rate_limit"`

	Log struct {
		Level     string `yaml:"level"`
		Format    string `yaml:"format"`
		Output    string `yaml:"output"`
		AddSource bool   `yaml:"add_source"`
		TimeZone  string `yaml:"time_zone"`
	} `yaml:"log"`

	// databaseURL 來自 DATABASE_URL，優先於 postgres 各字段
	databaseURL string
}

// Default 返回全部使用預設值的配置
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Server.ReadTimeout = 5 * time.Second
	cfg.Server.WriteTimeout = 10 * time.Second
	cfg.Server.IdleTimeout = 120 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second
	cfg.Server.RequestTimeout = 5 * time.Second
	cfg.Server.BaseURL = "http://localhost:8080"

	cfg.Store.Driver = DriverPostgres
	cfg.Cache.Driver = DriverRedis

	cfg.Postgres.Host = "localhost"
	cfg.Postgres.Port = 5432
	cfg.Postgres.User = "postgres"
	cfg.Postgres.DBName = "shortlink"
	cfg.Postgres.SSLMode = "disable"
	cfg.Postgres.MaxConns = 10
	cfg.Postgres.MinConns = 2

	cfg.SQLite.Path = "shortlink.db"

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.PoolSize = 10
	cfg.Redis.MinIdleConns = 2
	cfg.Redis.MaxRetries = 3
	cfg.Redis.DialTimeout = 5 * time.Second
	cfg.Redis.ReadTimeout = 3 * time.Second
	cfg.Redis.WriteTimeout = 3 * time.Second

	cfg.NATS.SubjectPrefix = "shortlink"

	cfg.Links.CacheTTL = 24 * time.Hour
	cfg.Links.MaxAttempts = 10
	cfg.Links.CodeLength = 7

	cfg.RateLimit.Enabled = true
	cfg.RateLimit.Window = 60 * time.Second
	cfg.RateLimit.Max = 20
	cfg.RateLimit.Prefix = "rl:create"
	cfg.RateLimit.KeyBy = KeyByIP

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Log.Output = "stdout"
	return cfg
}

// Load 載入配置
//
// path 為空或文件不存在時只使用預設值與環境變數。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			// 在預設值之上解碼：文件中缺失的字段保持預設
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 環境變數覆蓋（生產環境常用）
func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.databaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// Validate 檢查配置是否合法
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if u, err := url.Parse(c.Server.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("server.base_url must be an absolute http(s) url: %q", c.Server.BaseURL))
	}

	switch c.Store.Driver {
	case DriverPostgres, DriverSQLite, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("store.driver must be postgres, sqlite or memory: %q", c.Store.Driver))
	}
	if c.Store.Driver == DriverSQLite && c.SQLite.Path == "" {
		errs = append(errs, errors.New("sqlite.path is required"))
	}

	switch c.Cache.Driver {
	case DriverRedis, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("cache.driver must be redis or memory: %q", c.Cache.Driver))
	}

	if c.Links.MaxAttempts <= 0 {
		errs = append(errs, errors.New("links.max_attempts must be positive"))
	}
	if c.Links.CodeLength <= 0 {
		errs = append(errs, errors.New("links.code_length must be positive"))
	}
	if c.Links.CacheTTL <= 0 {
		errs = append(errs, errors.New("links.cache_ttl must be positive"))
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Window < time.Second {
			errs = append(errs, errors.New("rate_limit.window must be at least 1s"))
		}
		if c.RateLimit.Max <= 0 {
			errs = append(errs, errors.New("rate_limit.max must be positive"))
		}
		if c.RateLimit.KeyBy != KeyByIP && c.RateLimit.KeyBy != KeyByVisitor {
			errs = append(errs, fmt.Errorf("rate_limit.key_by must be ip or visitor: %q", c.RateLimit.KeyBy))
		}
	}

	return errors.Join(errs...)
}

// Addr HTTP 監聽地址
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// PostgresURL 生成 URL 形式的連線字串
//
// pgxpool 與 golang-migrate 共用同一個 URL。
func (c *Config) PostgresURL() string {
	if c.databaseURL != "" {
		return c.databaseURL
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Postgres.User, c.Postgres.Password),
		Host:   net.JoinHostPort(c.Postgres.Host, strconv.Itoa(c.Postgres.Port)),
		Path:   "/" + c.Postgres.DBName,
	}
	if c.Postgres.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.Postgres.SSLMode}}.Encode()
	}
	return u.String()
}
