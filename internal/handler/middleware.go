package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/koopa0/shortlink/pkg/errors"
	"github.com/koopa0/shortlink/pkg/logger"
)

// 訪客 cookie
const (
	VisitorCookie    = "visitorId"
	visitorCookieAge = 365 * 24 * time.Hour
)

// RequestIDHeader 請求 ID 頭
const RequestIDHeader = "X-Request-ID"

// recovery 恢復 panic
//
// 防止單個請求的 panic 導致整個服務崩潰
func (h *Handler) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.ErrorContext(r.Context(), "panic recovered",
					"error", err,
					"path", r.URL.Path,
				)
				h.writeJSON(w, errorResponse{Error: "internal server error", Code: apperrors.ErrCodeInternal},
					http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// requestID 為每個請求分配 ID，寫入 context（日誌自動帶上）與響應頭
//
// 上游（網關、代理）已經帶了 X-Request-ID 時沿用。
func (h *Handler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}

// logRequest 記錄請求日誌
//
// 記錄內容：方法、路徑、狀態碼、耗時、客戶端地址
func (h *Handler) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// 包裝 ResponseWriter 以捕獲狀態碼
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		h.logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"ip", r.RemoteAddr,
		)
	})
}

// cors 允許配置的前端來源攜帶 cookie 跨域調用 API
func (h *Handler) cors(next http.Handler) http.Handler {
	origin := h.opts.CORSOrigin
	if origin == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Origin")
		if r.Header.Get("Origin") == origin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		// 預檢請求
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+RequestIDHeader)
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// timeout 為請求添加處理超時，保護存儲層
func (h *Handler) timeout(next http.Handler) http.Handler {
	d := h.opts.RequestTimeout
	if d <= 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withVisitor 識別訪客
//
// 讀取 visitorId cookie；缺失或不是合法 UUID 時簽發新的。
// 訪客 ID 只是匿名的所有權標記，不對應任何賬號。
func (h *Handler) withVisitor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(VisitorCookie); err == nil {
			if parsed, err := uuid.Parse(c.Value); err == nil {
				id = parsed.String()
			}
		}

		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     VisitorCookie,
				Value:    id,
				Path:     "/",
				MaxAge:   int(visitorCookieAge / time.Second),
				HttpOnly: true,
				Secure:   h.opts.CookieSecure,
				SameSite: http.SameSiteLaxMode,
			})
		}

		next.ServeHTTP(w, r.WithContext(logger.WithVisitorID(r.Context(), id)))
	})
}

// responseWriter 包裝 http.ResponseWriter 以捕獲狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader 攔截狀態碼
func (w *responseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
		w.ResponseWriter.WriteHeader(code)
	}
}

// Write 確保 WriteHeader 被調用
func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap 讓 http.ResponseController 能訪問底層 writer
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
