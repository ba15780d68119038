package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/avast/retry-go/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	"github.com/scholarly-ai/scholarly/pkg/ai"
	"github.com/scholarly-ai/scholarly/pkg/errors"
	"github.com/scholarly-ai/scholarly/pkg/i18n"
	"github.com/scholarly-ai/scholarly/pkg/utils"
)

const PING_CONTENT = "ping"

type TokenEstimator func(content []string) int64

// Provider 在 ai.Embedder 之上提供缓存、额度控制和重试
type Provider struct {
	driver   ai.Embedder
	counter  *TokenCounter
	cache    *lru.Cache[string, []float32]
	cfg      Config
	estimate TokenEstimator
	metrics  *Metrics

	// inflight 合并同一内容的并发未命中请求
	inflight singleflight.Group
}

type Option func(p *Provider)

func WithTokenEstimator(f TokenEstimator) Option {
	return func(p *Provider) {
		p.estimate = f
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Provider) {
		p.metrics = m
	}
}

func NewProvider(driver ai.Embedder, counter *TokenCounter, cfg Config, opts ...Option) (*Provider, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if counter == nil {
		counter = NewTokenCounter(cfg.MonthlyTokenLimit, nil)
	}

	cache, err := lru.New[string, []float32](cfg.CacheSize)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		driver:   driver,
		counter:  counter,
		cache:    cache,
		cfg:      cfg,
		estimate: ai.EstimateTokens,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Provider) Model() string {
	return p.driver.Model()
}

func (p *Provider) Dimensions() int {
	return p.cfg.Dimensions
}

// MaxInputLength 单条输入允许的最大字符数
func (p *Provider) MaxInputLength() int {
	return p.cfg.MaxInputLength
}

func (p *Provider) Usage() TokenUsageSnapshot {
	return p.counter.Snapshot()
}

func (p *Provider) validate(trace, content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.NewValidationError(trace, i18n.ERROR_CONTENT_EMPTY)
	}
	if utf8.RuneCountInString(content) > p.cfg.MaxInputLength {
		return errors.NewValidationError(trace, i18n.ERROR_CONTENT_TOO_LONG).WithData(map[string]interface{}{
			"max_length": p.cfg.MaxInputLength,
		})
	}
	return nil
}

func (p *Provider) cacheKey(content string) string {
	return utils.ContentHash(p.driver.Model(), content)
}

func (p *Provider) cacheGet(key string) ([]float32, bool) {
	v, ok := p.cache.Get(key)
	p.metrics.cacheLookup(ok)
	if !ok {
		return nil, false
	}
	return append([]float32(nil), v...), true
}

// Embed 相同内容(归一化后)只计费一次
func (p *Provider) Embed(ctx context.Context, content string) ([]float32, error) {
	trace := "EmbeddingProvider.Embed"
	if err := p.validate(trace, content); err != nil {
		return nil, err
	}

	key := p.cacheKey(content)
	if v, ok := p.cacheGet(key); ok {
		return v, nil
	}

	v, err, shared := p.inflight.Do(key, func() (interface{}, error) {
		vectors, err := p.embedGroup(ctx, []string{content})
		if err != nil {
			return nil, err
		}
		p.cache.Add(key, vectors[0])
		return vectors[0], nil
	})
	if err != nil {
		if shared {
			err = errors.Clone(err)
		}
		return nil, errors.Trace(trace, err)
	}
	return append([]float32(nil), v.([]float32)...), nil
}

type BatchResult struct {
	// Vectors 与输入等长，Failed 中的位置为 nil
	Vectors [][]float32
	// Failed 未能生成向量的输入下标，升序
	Failed []int
}

// EmbedBatch 未命中缓存的内容按 BatchSize 分组依次请求，某组失败时该组及之后的
// 内容全部记为失败，已完成的向量仍然返回
func (p *Provider) EmbedBatch(ctx context.Context, contents []string) (*BatchResult, error) {
	trace := "EmbeddingProvider.EmbedBatch"
	for i, v := range contents {
		if err := p.validate(trace, v); err != nil {
			ce, _ := errors.As(err)
			return nil, ce.MergeData(map[string]interface{}{"index": i})
		}
	}

	result := &BatchResult{
		Vectors: make([][]float32, len(contents)),
	}

	var (
		pending  = make(map[string][]int)
		missKeys []string
	)
	for i, v := range contents {
		key := p.cacheKey(v)
		if idx, exist := pending[key]; exist {
			pending[key] = append(idx, i)
			continue
		}
		if vec, ok := p.cacheGet(key); ok {
			result.Vectors[i] = vec
			continue
		}
		pending[key] = []int{i}
		missKeys = append(missKeys, key)
	}

	groups := lo.Chunk(missKeys, p.cfg.BatchSize)
	for gi, group := range groups {
		texts := lo.Map(group, func(key string, _ int) string {
			return contents[pending[key][0]]
		})

		vectors, err := p.embedGroup(ctx, texts)
		if err != nil {
			for _, rest := range groups[gi:] {
				for _, key := range rest {
					result.Failed = append(result.Failed, pending[key]...)
				}
			}
			sort.Ints(result.Failed)
			slog.Warn("embedding batch stopped", slog.String("component", trace),
				slog.Int("completed", len(contents)-len(result.Failed)),
				slog.Int("failed", len(result.Failed)),
				slog.String("error", err.Error()))
			return result, errors.Trace(trace, err)
		}

		for i, key := range group {
			p.cache.Add(key, append([]float32(nil), vectors[i]...))
			for _, idx := range pending[key] {
				result.Vectors[idx] = append([]float32(nil), vectors[i]...)
			}
		}
	}

	return result, nil
}

// embedGroup 单次 provider 请求：额度预占、带退避的重试、用量结算
func (p *Provider) embedGroup(ctx context.Context, texts []string) ([][]float32, error) {
	trace := "EmbeddingProvider.embedGroup"

	estimate := p.estimate(texts)
	reservation, ok := p.counter.TryReserve(estimate)
	if !ok {
		return nil, errors.NewQuotaExceededError(trace, p.counter.Used(), p.counter.Limit())
	}

	var (
		res      ai.EmbeddingResult
		attempts uint
	)
	done := p.metrics.providerTimer(p.driver.Model())
	err := retry.Do(func() error {
		attempts++
		var err error
		res, err = p.driver.Embedding(ctx, texts)
		return err
	},
		retry.Context(ctx),
		retry.Attempts(uint(p.cfg.MaxRetries)+1),
		retry.Delay(p.cfg.RetryBaseDelay),
		retry.MaxDelay(DEFAULT_RETRY_MAX_DELAY),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(ai.IsTransient),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			p.metrics.providerCall("retry")
			slog.Warn("embedding request failed, retrying", slog.String("component", trace),
				slog.Uint64("attempt", uint64(n+1)), slog.String("error", err.Error()))
		}),
	)
	done()

	if err != nil {
		p.counter.Release(reservation)
		p.metrics.providerCall("failed")
		return nil, errors.NewEmbeddingUnavailableError(trace, err).WithData(map[string]interface{}{
			"attempts": attempts,
		})
	}

	tokens := res.Tokens()
	p.counter.Settle(reservation, tokens)
	p.metrics.tokenAdd(p.driver.Model(), tokens)
	p.metrics.providerCall("success")

	if len(res.Data) != len(texts) {
		return nil, errors.NewEmbeddingUnavailableError(trace, fmt.Errorf("provider returned %d vectors for %d inputs", len(res.Data), len(texts)))
	}
	for _, v := range res.Data {
		if len(v) != p.cfg.Dimensions {
			return nil, errors.NewEmbeddingUnavailableError(trace, fmt.Errorf("provider returned %d dimensions, expected %d", len(v), p.cfg.Dimensions))
		}
	}
	return res.Data, nil
}

// Ping 检查 provider 可达性，不走缓存也不重试
func (p *Provider) Ping(ctx context.Context) error {
	res, err := p.driver.Embedding(ctx, []string{PING_CONTENT})
	if err != nil {
		return errors.NewEmbeddingUnavailableError("EmbeddingProvider.Ping", err)
	}
	p.counter.Add(res.Tokens())
	return nil
}
