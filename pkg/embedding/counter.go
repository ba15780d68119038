package embedding

import (
	"sync"
	"time"
)

const MONTH_FORMAT = "2006-01"

// TokenCounter 按自然月(UTC)累计 token 消耗，跨月后第一次访问时归零
type TokenCounter struct {
	mu    sync.Mutex
	limit int64
	used  int64
	month string
	now   func() time.Time
}

// NewTokenCounter limit <= 0 表示不限制
func NewTokenCounter(limit int64, now func() time.Time) *TokenCounter {
	if now == nil {
		now = time.Now
	}
	c := &TokenCounter{
		limit: limit,
		now:   now,
	}
	c.month = c.currentMonth()
	return c
}

func (c *TokenCounter) currentMonth() string {
	return c.now().UTC().Format(MONTH_FORMAT)
}

// rollover 调用方需持有锁
func (c *TokenCounter) rollover() {
	if m := c.currentMonth(); m != c.month {
		c.month = m
		c.used = 0
	}
}

func (c *TokenCounter) Add(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover()
	c.used += n
}

func (c *TokenCounter) Used() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover()
	return c.used
}

func (c *TokenCounter) Limit() int64 {
	return c.limit
}

func (c *TokenCounter) WouldExceed(n int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover()
	return c.limit > 0 && c.used+n > c.limit
}

type Reservation struct {
	month  string
	amount int64
}

// TryReserve 预占 n 个 token，超出额度时返回 false 且不修改计数
func (c *TokenCounter) TryReserve(n int64) (Reservation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover()
	if c.limit > 0 && c.used+n > c.limit {
		return Reservation{}, false
	}
	c.used += n
	return Reservation{month: c.month, amount: n}, true
}

// Settle 用服务端上报的实际消耗替换预占值
func (c *TokenCounter) Settle(r Reservation, actual int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover()
	if r.month == c.month {
		c.used -= r.amount
	}
	c.used += actual
	if c.used < 0 {
		c.used = 0
	}
}

func (c *TokenCounter) Release(r Reservation) {
	c.Settle(r, 0)
}

type TokenUsageSnapshot struct {
	Month     string `json:"month"`
	Used      int64  `json:"used"`
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
}

func (c *TokenCounter) Snapshot() TokenUsageSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover()
	s := TokenUsageSnapshot{
		Month: c.month,
		Used:  c.used,
		Limit: c.limit,
	}
	if c.limit > 0 {
		s.Remaining = c.limit - c.used
		if s.Remaining < 0 {
			s.Remaining = 0
		}
	}
	return s
}
