package ratelimit

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/koopa0/shortlink/pkg/errors"
	"github.com/koopa0/shortlink/pkg/logger"
)

// DefaultTimeout 單次限流判斷的超時，超時後按快取錯誤處理（放行）
const DefaultTimeout = 100 * time.Millisecond

// ErrRateLimited 超出窗口配額
var ErrRateLimited = apperrors.New(apperrors.ErrCodeRateLimited, "Too many requests")

// KeyFunc 從請求提取限流身份
type KeyFunc func(r *http.Request) string

// ByIP 按客戶端 IP 限流
//
// trustProxy 為 true 時取 X-Forwarded-For 的第一跳；
// 只有部署在可信反向代理之後才應該開啟，否則客戶端可以偽造。
func ByIP(trustProxy bool) KeyFunc {
	return func(r *http.Request) string {
		return ClientIP(r, trustProxy)
	}
}

// ByVisitor 按訪客 ID 限流，沒有訪客 ID 時退回 fallback
func ByVisitor(fallback KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		if id := logger.VisitorID(r.Context()); id != "" {
			return "visitor:" + id
		}
		return fallback(r)
	}
}

// ClientIP 提取客戶端 IP
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Policy 一個路由的限流策略
type Policy struct {
	Window  time.Duration
	Max     int
	KeyFunc KeyFunc

	// Timeout 限流判斷的超時（預設 100ms）
	Timeout time.Duration
}

// Middleware 把限流器包裝成 HTTP 中介軟體
//
// 使用範例：
//
//	limit := ratelimit.Middleware(limiter, ratelimit.Policy{
//	    Window:  time.Minute,
//	    Max:     20,
//	    KeyFunc: ratelimit.ByIP(false),
//	})
//	mux.Handle("POST /api/links", limit(createHandler))
func Middleware(l *FixedWindow, p Policy) func(http.Handler) http.Handler {
	if p.KeyFunc == nil {
		p.KeyFunc = ByIP(false)
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := p.KeyFunc(r)

			ctx, cancel := context.WithTimeout(r.Context(), p.Timeout)
			decision := l.Admit(ctx, identity, p.Window, p.Max)
			cancel()

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(p.Max))
			if !decision.Allowed {
				writeRateLimited(w, decision.RetryAfterSeconds())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitedResponse 429 回應體
type rateLimitedResponse struct {
	Error         string `json:"error"`
	RetryAfterSec int    `json:"retryAfterSec"`
}

func writeRateLimited(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.WriteHeader(apperrors.HTTPStatus(ErrRateLimited))
	_ = json.NewEncoder(w).Encode(rateLimitedResponse{
		Error:         ErrRateLimited.Message,
		RetryAfterSec: retryAfter,
	})
}
