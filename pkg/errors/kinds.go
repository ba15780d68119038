package errors

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/scholarly-ai/scholarly/pkg/i18n"
)

var (
	ErrValidation           = stderrors.New("validation error")
	ErrQuotaExceeded        = stderrors.New("quota exceeded")
	ErrEmbeddingUnavailable = stderrors.New("embedding unavailable")
	ErrStorage              = stderrors.New("storage error")
	ErrRateLimited          = stderrors.New("rate limited")
)

// NewValidationError 输入不合法，调用方无需重试
func NewValidationError(trace, message string) *CustomizedError {
	return New(trace, message, nil).Code(http.StatusBadRequest).Kind(ErrValidation)
}

// NewQuotaExceededError 月度 token 预算耗尽
func NewQuotaExceededError(trace string, used, limit int64) *CustomizedError {
	return New(trace, i18n.ERROR_QUOTA_EXCEEDED, nil).
		Code(http.StatusPaymentRequired).
		Kind(ErrQuotaExceeded).
		WithData(map[string]interface{}{
			"used":  used,
			"limit": limit,
		})
}

func NewEmbeddingUnavailableError(trace string, err error) *CustomizedError {
	return New(trace, i18n.ERROR_EMBEDDING_UNAVAILABLE, err).
		Code(http.StatusServiceUnavailable).
		Kind(ErrEmbeddingUnavailable)
}

// NewStorageError 存储层失败，operation 为失败的存储操作名
func NewStorageError(operation string, err error) *CustomizedError {
	ce := New(operation, i18n.ERROR_STORAGE, err).
		Code(http.StatusInternalServerError).
		Kind(ErrStorage)
	ce.operation = operation
	return ce
}

func NewRateLimitError(trace string, retryAfter time.Duration) *CustomizedError {
	ce := New(trace, i18n.ERROR_TOO_MANY_REQUESTS, nil).
		Code(http.StatusTooManyRequests).
		Kind(ErrRateLimited).
		WithData(map[string]interface{}{"retry_after": retryAfter.String()})
	ce.retryAfter = retryAfter
	return ce
}

// StorageOrPass 将非 CustomizedError 的底层错误包装为 StorageError，已分类的错误原样返回
func StorageOrPass(operation string, err error) error {
	if err == nil {
		return nil
	}
	if ce, ok := As(err); ok && ce.kind != nil {
		return Trace(operation, ce)
	}
	return NewStorageError(operation, err)
}
