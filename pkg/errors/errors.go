package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type CustomizedError struct {
	cause   error
	message string
	trace   []string
	wrap    error
	code    int
	data    map[string]interface{}

	kind       error
	operation  string
	retryAfter time.Duration
}

func (e *CustomizedError) WithData(data map[string]interface{}) *CustomizedError {
	e.data = data
	return e
}

func (e *CustomizedError) MergeData(data map[string]interface{}) *CustomizedError {
	if e.data == nil {
		e.data = make(map[string]interface{}, len(data))
	}
	for k, v := range data {
		e.data[k] = v
	}
	return e
}

func (e *CustomizedError) Data() map[string]interface{} {
	return e.data
}

func (e *CustomizedError) Code(c int) *CustomizedError {
	e.code = c
	return e
}

func (e *CustomizedError) GetCode() int {
	return e.code
}

// Kind 标记错误类别，调用方通过 errors.Is(err, ErrXXX) 判断
func (e *CustomizedError) Kind(kind error) *CustomizedError {
	e.kind = kind
	return e
}

func (e *CustomizedError) GetKind() error {
	return e.kind
}

// Operation 返回 StorageError 对应的存储操作名
func (e *CustomizedError) Operation() string {
	return e.operation
}

// RetryAfter 返回 RateLimitError 的重试等待时间
func (e *CustomizedError) RetryAfter() time.Duration {
	return e.retryAfter
}

func New(trace, message string, err error) *CustomizedError {
	code := http.StatusInternalServerError
	return &CustomizedError{
		cause:   err,
		message: message,
		trace:   []string{trace},
		code:    code,
	}
}

func (e *CustomizedError) Trace(trace string) *CustomizedError {
	e.trace = append(e.trace, trace)
	return e
}

func Wrap(err error, trace, message string) *CustomizedError {
	ce := &CustomizedError{
		cause:   err,
		message: message,
		trace:   []string{trace},
		wrap:    err,
		code:    http.StatusInternalServerError,
	}
	if income, ok := err.(*CustomizedError); ok {
		ce.code = income.code
		ce.kind = income.kind
		ce.operation = income.operation
		ce.retryAfter = income.retryAfter
	}
	return ce
}

// Clone 复制 trace 与 data，多个调用方共享同一个错误时各自 Trace 互不影响
func Clone(err error) error {
	ce, ok := err.(*CustomizedError)
	if !ok {
		return err
	}
	cp := *ce
	cp.trace = append([]string(nil), ce.trace...)
	if ce.data != nil {
		cp.data = make(map[string]interface{}, len(ce.data))
		for k, v := range ce.data {
			cp.data[k] = v
		}
	}
	return &cp
}

func (e *CustomizedError) Traces() []string {
	return e.trace
}

func Trace(trace string, err error) *CustomizedError {
	if ce, ok := err.(*CustomizedError); ok {
		ce.trace = append(ce.trace, trace)
		return ce
	}
	return Wrap(err, trace, err.Error())
}

func (e *CustomizedError) Message() string {
	if e.message == "" && e.cause != nil {
		return e.cause.Error()
	}
	return e.message
}

func (e *CustomizedError) Error() string {
	otherDetails := `""`
	if ce, ok := e.wrap.(*CustomizedError); ok {
		otherDetails = ce.Error()
	} else if e.wrap != nil {
		otherDetails = fmt.Sprint("\"", e.wrap.Error(), "\"")
	}
	return fmt.Sprintf(`{"trace":"%s","code":%d,"msg":"%s","error":"%v","wrapd":%s}`, strings.Join(e.trace, "->"), e.code, e.message, e.cause, otherDetails)
}

func (e *CustomizedError) Unwrap() error {
	return e.cause
}

func (e *CustomizedError) Is(target error) bool {
	return e.kind != nil && e.kind == target
}

// As 查找错误链上第一个 CustomizedError
func As(err error) (*CustomizedError, bool) {
	var ce *CustomizedError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}
