package testutils

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode"

	openai "github.com/sashabaranov/go-openai"

	"github.com/scholarly-ai/scholarly/pkg/ai"
	"github.com/scholarly-ai/scholarly/pkg/embedding"
)

// HashDriver 按词哈希生成归一化向量，词重叠越多余弦相似度越高
type HashDriver struct {
	dims int

	mu    sync.Mutex
	calls int
	// Fail 返回非空时本次调用失败
	Fail func(call int, content []string) error
}

func NewHashDriver(dims int) *HashDriver {
	return &HashDriver{dims: dims}
}

func (d *HashDriver) Model() string   { return "hash-embedding" }
func (d *HashDriver) Dimensions() int { return d.dims }

func (d *HashDriver) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *HashDriver) Embedding(ctx context.Context, content []string) (ai.EmbeddingResult, error) {
	d.mu.Lock()
	d.calls++
	call := d.calls
	d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return ai.EmbeddingResult{}, err
	}
	if d.Fail != nil {
		if err := d.Fail(call, content); err != nil {
			return ai.EmbeddingResult{}, err
		}
	}

	res := ai.EmbeddingResult{
		Model: d.Model(),
		Usage: &openai.Usage{},
	}
	for _, v := range content {
		vec, words := HashVector(v, d.dims)
		res.Data = append(res.Data, vec)
		res.Usage.PromptTokens += words
	}
	res.Usage.TotalTokens = res.Usage.PromptTokens
	return res, nil
}

func Words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func HashVector(s string, dims int) ([]float32, int) {
	vec := make([]float32, dims)
	words := Words(s)
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%uint32(dims)] += 1
	}
	if len(words) == 0 {
		vec[0] = 1
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, len(words)
}

// NewEmbeddingProvider 基于 HashDriver 的 Provider，token 预估为 1 token/词
func NewEmbeddingProvider(t testing.TB, driver *HashDriver, cfg embedding.Config) *embedding.Provider {
	cfg.Dimensions = driver.Dimensions()
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = time.Millisecond
	}
	p, err := embedding.NewProvider(driver, embedding.NewTokenCounter(cfg.MonthlyTokenLimit, nil), cfg,
		embedding.WithTokenEstimator(func(content []string) int64 {
			var n int64
			for _, v := range content {
				n += int64(len(Words(v)))
			}
			return n
		}))
	if err != nil {
		t.Fatalf("failed to setup embedding provider: %v", err)
	}
	return p
}
