// Package handler 實現 HTTP 介面
//
// 路由（Go 1.22+ 方法路由與路徑參數）：
//
//	POST   /api/links        創建短網址（限流）   201 新建 / 200 去重
//	GET    /api/links        訪客最近的鏈接
//	DELETE /api/links/{id}   軟刪除單個鏈接
//	DELETE /api/links        軟刪除訪客的全部鏈接
//	GET    /{code}           302 重定向
//	GET    /health           存活檢查
//	GET    /ready            就緒檢查（存儲與快取）
//
// 錯誤響應統一為 {"error": "...", "code": "..."}，狀態碼由 pkg/errors.HTTPStatus 決定。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/koopa0/shortlink/internal/shortener"
	apperrors "github.com/koopa0/shortlink/pkg/errors"
	"github.com/koopa0/shortlink/pkg/logger"
)

// maxBodyBytes 創建請求體上限
const maxBodyBytes = 16 << 10

// Check 就緒檢查項
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Options HTTP 層設定
type Options struct {
	// CORSOrigin 允許的前端來源，空表示不輸出 CORS 頭
	CORSOrigin string

	// CookieSecure 訪客 cookie 加上 Secure 屬性
	CookieSecure bool

	// RequestTimeout 單個請求的處理超時，0 表示不限制
	RequestTimeout time.Duration

	// RateLimit 包裹創建接口的限流中介軟體，nil 表示不限流
	RateLimit func(http.Handler) http.Handler

	// Checks 就緒檢查
	Checks []Check
}

// Handler HTTP 處理器
type Handler struct {
	engine *shortener.Engine
	opts   Options
	logger *slog.Logger
}

// New 創建 Handler
func New(engine *shortener.Engine, opts Options, logger *slog.Logger) *Handler {
	if opts.RateLimit == nil {
		opts.RateLimit = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{
		engine: engine,
		opts:   opts,
		logger: logger.With("component", "http"),
	}
}

// Routes 設置路由並套上中介軟體
//
// 中介軟體順序（外 → 內）：recovery → requestID → logRequest → cors → timeout → mux
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /api/links", h.withVisitor(h.opts.RateLimit(http.HandlerFunc(h.create))))
	mux.Handle("GET /api/links", h.withVisitor(http.HandlerFunc(h.list)))
	mux.Handle("DELETE /api/links/{id}", h.withVisitor(http.HandlerFunc(h.delete)))
	mux.Handle("DELETE /api/links", h.withVisitor(http.HandlerFunc(h.deleteAll)))

	// 短網址不加前綴，越短越好
	mux.HandleFunc("GET /{code}", h.redirect)

	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /ready", h.ready)

	var handler http.Handler = mux
	handler = h.timeout(handler)
	handler = h.cors(handler)
	handler = h.logRequest(handler)
	handler = h.requestID(handler)
	handler = h.recovery(handler)
	return handler
}

type createRequest struct {
	LongURL string `json:"longUrl"`
}

// create 創建短網址
//
// API: POST /api/links
// Body: {"longUrl": "https://..."}
// Response: {"code": "Ab3xY9z", "shortUrl": "https://sho.rt/Ab3xY9z", "longUrl": "https://..."}
func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.New(apperrors.ErrCodeInvalidInput, "invalid request body"))
		return
	}

	result, err := h.engine.Create(r.Context(), req.LongURL, logger.VisitorID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	h.writeJSON(w, result, status)
}

// linkView 列表中的單個鏈接
type linkView struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	ShortURL  string    `json:"shortUrl"`
	LongURL   string    `json:"longUrl"`
	CreatedAt time.Time `json:"createdAt"`
}

// list 訪客最近的鏈接
//
// API: GET /api/links?limit=20
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, r, apperrors.New(apperrors.ErrCodeInvalidInput, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	links, err := h.engine.ListRecent(r.Context(), logger.VisitorID(r.Context()), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	views := make([]linkView, 0, len(links))
	for _, link := range links {
		views = append(views, linkView{
			ID:        link.ID,
			Code:      link.Code,
			ShortURL:  h.engine.ShortURL(link.Code),
			LongURL:   link.LongURL,
			CreatedAt: link.CreatedAt,
		})
	}
	h.writeJSON(w, map[string]any{"links": views}, http.StatusOK)
}

// delete 軟刪除單個鏈接
//
// API: DELETE /api/links/{id}
func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Delete(r.Context(), r.PathValue("id"), logger.VisitorID(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, map[string]bool{"ok": true}, http.StatusOK)
}

// deleteAll 軟刪除訪客的全部鏈接
//
// API: DELETE /api/links
func (h *Handler) deleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.engine.DeleteAll(r.Context(), logger.VisitorID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, map[string]any{"ok": true, "deleted": n}, http.StatusOK)
}

// redirect 重定向到長網址
//
// 使用 302 而不是 301：301 會被瀏覽器永久快取，刪除後仍然跳轉。
func (h *Handler) redirect(w http.ResponseWriter, r *http.Request) {
	longURL, err := h.engine.Resolve(r.Context(), r.PathValue("code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, longURL, http.StatusFound)
}

// health 存活檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]bool{"ok": true}, http.StatusOK)
}

// ready 就緒檢查：任一依賴不可用返回 503
func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.opts.Checks))
	for _, check := range h.opts.Checks {
		if err := check.Ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "readiness check failed", "check", check.Name, "error", err)
			results[check.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[check.Name] = "ok"
	}

	h.writeJSON(w, map[string]any{
		"ok":     status == http.StatusOK,
		"checks": results,
	}, status)
}

// === 工具函數 ===

// writeJSON 寫入 JSON 響應
func (h *Handler) writeJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("encode json failed", "error", err)
	}
}

// errorResponse 統一的錯誤格式
type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// writeError 根據錯誤碼寫入錯誤響應
//
// 5xx 只返回通用信息，細節只進日誌。
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)

	resp := errorResponse{Code: apperrors.CodeOf(err)}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		resp.Error = appErr.Message
		resp.Details = appErr.Details
	}

	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		resp.Error = "internal server error"
		resp.Details = ""
	}

	h.writeJSON(w, resp, status)
}
