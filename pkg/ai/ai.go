package ai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"syscall"

	"github.com/pkoukk/tiktoken-go"
	openai "github.com/sashabaranov/go-openai"
)

const (
	PROVIDER_REMOTE = "remote"
	PROVIDER_LOCAL  = "local"
)

// Embedder 向量化驱动，返回结果与输入一一对应且顺序一致
type Embedder interface {
	Embedding(ctx context.Context, content []string) (EmbeddingResult, error)
	Model() string
	Dimensions() int
}

type EmbeddingResult struct {
	Model string
	Usage *openai.Usage
	Data  [][]float32
}

// Tokens 服务端上报的 token 消耗，TotalTokens 为空时使用 PromptTokens
func (r EmbeddingResult) Tokens() int64 {
	if r.Usage == nil {
		return 0
	}
	if r.Usage.TotalTokens > 0 {
		return int64(r.Usage.TotalTokens)
	}
	return int64(r.Usage.PromptTokens)
}

// IsTransient 判断错误是否值得重试：限流、服务端 5xx 以及网络层错误
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

const TOKEN_ENCODING = "cl100k_base"

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
)

// EstimateTokens 调用前预估 token 数量，用于额度预检；编码表不可用时按 4 字符 1 token 估算
func EstimateTokens(content []string) int64 {
	encoderOnce.Do(func() {
		tkm, err := tiktoken.GetEncoding(TOKEN_ENCODING)
		if err != nil {
			slog.Warn("failed to load token encoding, fallback to rune estimation", slog.String("error", err.Error()), slog.String("component", "ai.EstimateTokens"))
			return
		}
		encoder = tkm
	})

	var total int64
	for _, v := range content {
		if encoder != nil {
			total += int64(len(encoder.Encode(v, nil, nil)))
			continue
		}
		total += RuneEstimate(v)
	}
	return total
}

func RuneEstimate(s string) int64 {
	n := int64(len([]rune(s)))
	return (n + 3) / 4
}
