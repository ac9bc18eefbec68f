// Package errors 提供應用程式錯誤處理
//
// 錯誤碼與 HTTP 狀態碼一一對應，handler 只需呼叫 HTTPStatus
// 即可決定回應碼，業務層不需要知道 HTTP。
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// 定義錯誤碼
const (
	// ErrCodeInvalidInput 無效輸入（如格式錯誤的 URL）
	ErrCodeInvalidInput = "INVALID_INPUT"
	// ErrCodeNotFound 資源未找到
	ErrCodeNotFound = "NOT_FOUND"
	// ErrCodeRateLimited 請求過於頻繁
	ErrCodeRateLimited = "RATE_LIMITED"
	// ErrCodeCreationExhausted 短碼重試次數用盡
	ErrCodeCreationExhausted = "CREATION_EXHAUSTED"
	// ErrCodeInternal 內部錯誤
	ErrCodeInternal = "INTERNAL_ERROR"
	// ErrCodeUnavailable 依賴服務不可用
	ErrCodeUnavailable = "SERVICE_UNAVAILABLE"
)

// AppError 應用程式錯誤
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

// Error 實現 error 介面
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 實現 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 實現 errors.Is，相同錯誤碼視為同一類錯誤
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New 創建新的應用程式錯誤
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包裝錯誤
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails 返回附帶詳細資訊的副本
//
// 預定義錯誤是共享的包級變數，不能原地修改。
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// CodeOf 取出錯誤碼，非 AppError 一律視為內部錯誤
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HTTPStatus 將錯誤映射為 HTTP 狀態碼
//
//   - INVALID_INPUT       → 400
//   - NOT_FOUND           → 404
//   - RATE_LIMITED        → 429
//   - SERVICE_UNAVAILABLE → 503
//   - 其他                → 500
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsNotFound 檢查是否為未找到錯誤
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsInvalidInput 檢查是否為無效輸入錯誤
func IsInvalidInput(err error) bool {
	return CodeOf(err) == ErrCodeInvalidInput
}

// IsCreationExhausted 檢查是否為短碼重試用盡錯誤
func IsCreationExhausted(err error) bool {
	return CodeOf(err) == ErrCodeCreationExhausted
}
