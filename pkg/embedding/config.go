package embedding

import (
	"fmt"
	"time"

	"github.com/scholarly-ai/scholarly/pkg/ai"
	"github.com/scholarly-ai/scholarly/pkg/types"
)

const (
	DEFAULT_BATCH_SIZE       = 100
	DEFAULT_MAX_INPUT_LENGTH = 30000
	DEFAULT_CACHE_SIZE       = 10000
	DEFAULT_MAX_RETRIES      = 3
	DEFAULT_RETRY_BASE_DELAY = 500 * time.Millisecond
	DEFAULT_RETRY_MAX_DELAY  = 10 * time.Second
)

// Config 中 MaxRetries 为 0 使用默认值，负数表示不重试
type Config struct {
	Provider          string
	Model             string
	Dimensions        int
	BatchSize         int
	MonthlyTokenLimit int64
	MaxInputLength    int
	CacheSize         int
	MaxRetries        int
	RetryBaseDelay    time.Duration
}

func (c Config) WithDefaults() Config {
	if c.Provider == "" {
		c.Provider = ai.PROVIDER_REMOTE
	}
	if c.Dimensions == 0 {
		c.Dimensions = 1536
	}
	if c.BatchSize == 0 {
		c.BatchSize = DEFAULT_BATCH_SIZE
	}
	if c.MaxInputLength == 0 {
		c.MaxInputLength = DEFAULT_MAX_INPUT_LENGTH
	}
	if c.CacheSize == 0 {
		c.CacheSize = DEFAULT_CACHE_SIZE
	}
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = DEFAULT_MAX_RETRIES
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = DEFAULT_RETRY_BASE_DELAY
	}
	return c
}

func (c Config) Validate() error {
	if c.Provider != ai.PROVIDER_REMOTE && c.Provider != ai.PROVIDER_LOCAL {
		return fmt.Errorf("unknown embedding provider %q", c.Provider)
	}
	if !types.SUPPORTED_EMBEDDING_DIMENSIONS[c.Dimensions] {
		return fmt.Errorf("unsupported embedding dimensions %d", c.Dimensions)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("embedding batch size must be positive, got %d", c.BatchSize)
	}
	return nil
}
