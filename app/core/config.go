package core

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/scholarly-ai/scholarly/pkg/embedding"
	"github.com/scholarly-ai/scholarly/pkg/graphrag"
)

func MustLoadBaseConfig(path string) CoreConfig {
	if path == "" {
		return LoadBaseConfigFromENV()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	conf, err := ParseConfig(raw)
	if err != nil {
		panic(err)
	}
	return conf
}

func ParseConfig(raw []byte) (CoreConfig, error) {
	conf := CoreConfig{}
	if err := toml.Unmarshal(raw, &conf); err != nil {
		return CoreConfig{}, err
	}
	conf.SetConfigBytes(raw)
	return conf, nil
}

func (c CoreConfig) LoadCustomConfig(cfg any) error {
	if len(c.bytes) == 0 {
		return nil
	}
	if err := toml.Unmarshal(c.bytes, cfg); err != nil {
		return err
	}
	return nil
}

func LoadBaseConfigFromENV() CoreConfig {
	var c CoreConfig
	c.FromENV()
	return c
}

type CoreConfig struct {
	Addr        string            `toml:"addr"`
	Log         Log               `toml:"log"`
	Postgres    PGConfig          `toml:"postgres"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	GraphRAG    GraphRAGConfig    `toml:"graphrag"`
	VectorIndex VectorIndexConfig `toml:"vector_index"`
	RateLimit   RateLimitConfig   `toml:"rate_limit"`

	bytes []byte `toml:"-"`
}

func (c *CoreConfig) SetConfigBytes(raw []byte) {
	c.bytes = raw
}

func (c *CoreConfig) FromENV() {
	c.Addr = os.Getenv("SCHOLARLY_API_SERVICE_ADDRESS")
	c.Log.FromENV()
	c.Postgres.FromENV()
	c.Embedding.FromENV()
	c.VectorIndex.FromENV()
}

type PGConfig struct {
	DSN string `toml:"dsn"`
}

func (m *PGConfig) FromENV() {
	m.DSN = os.Getenv("SCHOLARLY_POSTGRESQL_DSN")
}

func (c PGConfig) FormatDSN() string {
	return c.DSN
}

type EmbeddingConfig struct {
	// Provider remote: OpenAI 兼容的云端接口, local: 本地 ollama
	Provider          string `toml:"provider"`
	Token             string `toml:"token"`
	Endpoint          string `toml:"endpoint"`
	Model             string `toml:"model"`
	Dimensions        int    `toml:"dimensions"`
	BatchSize         int    `toml:"batch_size"`
	MonthlyTokenLimit int64  `toml:"monthly_token_limit"` // 0 表示不限制
	MaxInputLength    int    `toml:"max_input_length"`
	CacheSize         int    `toml:"cache_size"`
	MaxRetries        *int   `toml:"max_retries"`
	RetryBaseDelay    string `toml:"retry_base_delay"` // time.ParseDuration 格式，如 500ms
}

func (e *EmbeddingConfig) FromENV() {
	e.Provider = os.Getenv("SCHOLARLY_EMBEDDING_PROVIDER")
	e.Token = os.Getenv("SCHOLARLY_EMBEDDING_TOKEN")
	e.Endpoint = os.Getenv("SCHOLARLY_EMBEDDING_ENDPOINT")
	e.Model = os.Getenv("SCHOLARLY_EMBEDDING_MODEL")
	if v := os.Getenv("SCHOLARLY_EMBEDDING_DIMENSIONS"); v != "" {
		if dims, err := strconv.Atoi(v); err == nil {
			e.Dimensions = dims
		}
	}
	if v := os.Getenv("SCHOLARLY_MONTHLY_TOKEN_LIMIT"); v != "" {
		if limit, err := strconv.ParseInt(v, 10, 64); err == nil {
			e.MonthlyTokenLimit = limit
		}
	}
}

// ProviderConfig 转换为 embedding.Config，retry_base_delay 无法解析时使用默认值
func (e EmbeddingConfig) ProviderConfig() embedding.Config {
	cfg := embedding.Config{
		Provider:          e.Provider,
		Model:             e.Model,
		Dimensions:        e.Dimensions,
		BatchSize:         e.BatchSize,
		MonthlyTokenLimit: e.MonthlyTokenLimit,
		MaxInputLength:    e.MaxInputLength,
		CacheSize:         e.CacheSize,
		MaxRetries:        explicit(e.MaxRetries),
	}
	if e.RetryBaseDelay != "" {
		if d, err := time.ParseDuration(e.RetryBaseDelay); err == nil {
			cfg.RetryBaseDelay = d
		} else {
			slog.Warn("invalid embedding retry_base_delay, using default", slog.String("value", e.RetryBaseDelay))
		}
	}
	return cfg.WithDefaults()
}

// explicit 未配置时返回 0 交给下游取默认值，显式配置的 0 转为 -1
func explicit[T int | float32](v *T) T {
	switch {
	case v == nil:
		return 0
	case *v == 0:
		return -1
	}
	return *v
}

// GraphRAGConfig 指针字段区分未配置与显式的 0，例如 max_similar_edges_per_node = 0 关闭相似边
type GraphRAGConfig struct {
	ChunkSize              int      `toml:"chunk_size"`
	ChunkOverlap           *int     `toml:"chunk_overlap"`
	SimilarEdgeThreshold   *float32 `toml:"similar_edge_threshold"`
	MaxSimilarEdgesPerNode *int     `toml:"max_similar_edges_per_node"`
	MaxSimilarEdges        *int     `toml:"max_similar_edges"`
}

func (g GraphRAGConfig) ServiceConfig() graphrag.Config {
	return graphrag.Config{
		ChunkSize:              g.ChunkSize,
		ChunkOverlap:           explicit(g.ChunkOverlap),
		SimilarEdgeThreshold:   explicit(g.SimilarEdgeThreshold),
		MaxSimilarEdgesPerNode: explicit(g.MaxSimilarEdgesPerNode),
		MaxSimilarEdges:        explicit(g.MaxSimilarEdges),
	}
}

type VectorIndexConfig struct {
	Enabled        bool   `toml:"enabled"`
	QueryCacheSize int    `toml:"query_cache_size"`
	QueryCacheTTL  string `toml:"query_cache_ttl"`
}

func (v *VectorIndexConfig) FromENV() {
	v.Enabled, _ = strconv.ParseBool(os.Getenv("SCHOLARLY_VECTOR_INDEX_ENABLED"))
}

func (v VectorIndexConfig) CacheTTL() time.Duration {
	if v.QueryCacheTTL == "" {
		return 0
	}
	d, err := time.ParseDuration(v.QueryCacheTTL)
	if err != nil {
		slog.Warn("invalid vector_index query_cache_ttl, using default", slog.String("value", v.QueryCacheTTL))
		return 0
	}
	return d
}

type RateLimitConfig struct {
	// PerMinute 每个用户每种操作每分钟允许的请求数，0 使用默认值
	PerMinute int `toml:"per_minute"`
	Burst     int `toml:"burst"`
}

type Log struct {
	Level string `toml:"level"`
	Path  string `toml:"path"`
}

func (l *Log) FromENV() {
	l.Level = os.Getenv("SCHOLARLY_LOG_LEVEL")
	l.Path = os.Getenv("SCHOLARLY_LOG_PATH")
}

func (l *Log) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "info":
		return slog.LevelInfo
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}
