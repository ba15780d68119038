package core

import (
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"golang.org/x/time/rate"

	"github.com/scholarly-ai/scholarly/pkg/errors"
)

const (
	DEFAULT_LIMIT_PER_MINUTE = 60
)

type LimitConfig struct {
	// Limit 每个 Every 周期允许的请求数
	Limit int
	Every time.Duration
	Burst int
}

type LimitOption func(l *LimitConfig)

func WithLimit(limit int) LimitOption {
	return func(l *LimitConfig) {
		l.Limit = limit
	}
}

func WithRange(r time.Duration) LimitOption {
	return func(l *LimitConfig) {
		l.Every = r
	}
}

func WithBurst(burst int) LimitOption {
	return func(l *LimitConfig) {
		l.Burst = burst
	}
}

// Limiter 按 (用户, 操作) 维度的令牌桶限流，首次访问时创建桶，
// 之后该 key 的配置不再变化
type Limiter struct {
	base    LimitConfig
	buckets cmap.ConcurrentMap[string, *rate.Limiter]
	now     func() time.Time
}

func NewLimiter(cfg RateLimitConfig) *Limiter {
	base := LimitConfig{
		Limit: cfg.PerMinute,
		Every: time.Minute,
		Burst: cfg.Burst,
	}
	if base.Limit <= 0 {
		base.Limit = DEFAULT_LIMIT_PER_MINUTE
	}
	return &Limiter{
		base:    base,
		buckets: cmap.New[*rate.Limiter](),
		now:     time.Now,
	}
}

func (l *Limiter) bucket(key string, opts ...LimitOption) *rate.Limiter {
	if b, ok := l.buckets.Get(key); ok {
		return b
	}

	cfg := l.base
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.Limit * 2
	}
	l.buckets.SetIfAbsent(key, rate.NewLimiter(rate.Every(cfg.Every/time.Duration(cfg.Limit)), cfg.Burst))
	b, _ := l.buckets.Get(key)
	return b
}

// Allow 超出限制时返回 RateLimitError，RetryAfter 为下一个令牌可用前的等待时间
func (l *Limiter) Allow(user, operation string, opts ...LimitOption) error {
	b := l.bucket(operation+":"+user, opts...)

	now := l.now()
	r := b.ReserveN(now, 1)
	if !r.OK() {
		return errors.NewRateLimitError("Limiter.Allow", time.Second)
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		retryAfter := delay.Round(time.Second)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return errors.NewRateLimitError("Limiter.Allow", retryAfter)
	}
	return nil
}
