// Package logger 提供結構化日誌功能
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// contextKey 用於上下文的鍵類型
type contextKey string

const (
	// RequestIDKey 請求 ID 的上下文鍵
	RequestIDKey contextKey = "request_id"
	// VisitorIDKey 匿名訪客 ID 的上下文鍵
	VisitorIDKey contextKey = "visitor_id"
)

// Options 日誌設定
type Options struct {
	Level     string // debug, info, warn, error
	Format    string // text, json
	Output    string // stdout, stderr 或檔案路徑
	AddSource bool
	TimeZone  string // 如 "UTC"、"Asia/Taipei"；空字串使用本地時區
}

// New 依設定建立日誌記錄器
//
// 返回的 closer 在輸出為檔案時負責關閉檔案，其他情況為空操作。
func New(opts Options) (*slog.Logger, io.Closer, error) {
	var output io.Writer
	var closer io.Closer = nopCloser{}

	switch opts.Output {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		// #nosec G304 - 路徑來自配置檔，非使用者輸入
		file, err := os.OpenFile(opts.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, err
		}
		output = file
		closer = file
	}

	return slog.New(NewHandler(output, opts)), closer, nil
}

// NewHandler 建立帶上下文資訊的處理器
func NewHandler(w io.Writer, opts Options) slog.Handler {
	var loc *time.Location
	if opts.TimeZone != "" {
		loc, _ = time.LoadLocation(opts.TimeZone)
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     ParseLevel(opts.Level),
		AddSource: opts.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				if t, ok := a.Value.Any().(time.Time); ok {
					if loc != nil {
						t = t.In(loc)
					}
					a.Value = slog.StringValue(t.Format("2006-01-02 15:04:05.000"))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, handlerOpts)
	default:
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	return &contextHandler{Handler: handler}
}

// ParseLevel 解析日誌級別
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// contextHandler 從上下文中提取資訊的處理器
type contextHandler struct {
	slog.Handler
}

// Handle 處理日誌記錄
func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		r.AddAttrs(slog.String("request_id", requestID))
	}

	if visitorID, ok := ctx.Value(VisitorIDKey).(string); ok && visitorID != "" {
		r.AddAttrs(slog.String("visitor_id", visitorID))
	}

	return h.Handler.Handle(ctx, r)
}

// WithAttrs 保持包裝，避免 logger.With 之後丟失上下文欄位
func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup 同上
func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithGroup(name)}
}

// WithRequestID 添加請求 ID 到上下文
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithVisitorID 添加訪客 ID 到上下文
func WithVisitorID(ctx context.Context, visitorID string) context.Context {
	return context.WithValue(ctx, VisitorIDKey, visitorID)
}

// VisitorID 從上下文取出訪客 ID
func VisitorID(ctx context.Context) string {
	v, _ := ctx.Value(VisitorIDKey).(string)
	return v
}

// Discard 返回丟棄所有輸出的日誌記錄器（測試用）
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
