package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarly-ai/scholarly/pkg/ai"
	"github.com/scholarly-ai/scholarly/pkg/embedding"
	"github.com/scholarly-ai/scholarly/pkg/graphrag"
)

func TestSetupConfigFromEnv(t *testing.T) {
	t.Setenv("SCHOLARLY_API_SERVICE_ADDRESS", "localhost:11111")
	t.Setenv("SCHOLARLY_POSTGRESQL_DSN", "postgres://localhost/scholarly")
	t.Setenv("SCHOLARLY_EMBEDDING_PROVIDER", ai.PROVIDER_LOCAL)
	t.Setenv("SCHOLARLY_EMBEDDING_DIMENSIONS", "768")
	t.Setenv("SCHOLARLY_MONTHLY_TOKEN_LIMIT", "100000")
	t.Setenv("SCHOLARLY_VECTOR_INDEX_ENABLED", "true")

	cfg := LoadBaseConfigFromENV()

	assert.Equal(t, "localhost:11111", cfg.Addr)
	assert.Equal(t, "postgres://localhost/scholarly", cfg.Postgres.FormatDSN())
	assert.Equal(t, ai.PROVIDER_LOCAL, cfg.Embedding.Provider)
	assert.Equal(t, 768, cfg.Embedding.Dimensions)
	assert.Equal(t, int64(100000), cfg.Embedding.MonthlyTokenLimit)
	assert.True(t, cfg.VectorIndex.Enabled)
}

func TestParseConfig(t *testing.T) {
	raw := []byte(`
addr = ":33033"

[log]
level = "info"

[postgres]
dsn = "postgres://scholarly:secret@db:5432/scholarly?sslmode=disable"

[embedding]
provider = "remote"
model = "text-embedding-3-small"
dimensions = 1536
batch_size = 50
monthly_token_limit = 2000000
retry_base_delay = "250ms"

[graphrag]
chunk_size = 800
chunk_overlap = 100

[vector_index]
enabled = true
query_cache_size = 200
query_cache_ttl = "2m"

[rate_limit]
per_minute = 30
burst = 5
`)

	cfg, err := ParseConfig(raw)
	require.NoError(t, err)

	assert.Equal(t, ":33033", cfg.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.VectorIndex.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.VectorIndex.CacheTTL())
	assert.Equal(t, 200, cfg.VectorIndex.QueryCacheSize)
	assert.Equal(t, RateLimitConfig{PerMinute: 30, Burst: 5}, cfg.RateLimit)

	pc := cfg.Embedding.ProviderConfig()
	assert.Equal(t, 50, pc.BatchSize)
	assert.Equal(t, 250*time.Millisecond, pc.RetryBaseDelay)
	assert.Equal(t, embedding.DEFAULT_MAX_RETRIES, pc.MaxRetries)
	assert.Equal(t, int64(2000000), pc.MonthlyTokenLimit)

	sc := cfg.GraphRAG.ServiceConfig().WithDefaults()
	assert.Equal(t, 800, sc.ChunkSize)
	assert.Equal(t, 100, sc.ChunkOverlap)
	assert.NoError(t, sc.Validate())

	var custom struct {
		Addr string `toml:"addr"`
	}
	require.NoError(t, cfg.LoadCustomConfig(&custom))
	assert.Equal(t, ":33033", custom.Addr)
}

func TestParseConfigExplicitZero(t *testing.T) {
	raw := []byte(`
[embedding]
max_retries = 0

[graphrag]
chunk_overlap = 0
max_similar_edges_per_node = 0
`)

	cfg, err := ParseConfig(raw)
	require.NoError(t, err)

	assert.Zero(t, cfg.Embedding.ProviderConfig().MaxRetries)

	sc := cfg.GraphRAG.ServiceConfig().WithDefaults()
	assert.Zero(t, sc.ChunkOverlap)
	assert.Zero(t, sc.MaxSimilarEdgesPerNode)
	// 未配置的字段仍使用默认值
	assert.Equal(t, graphrag.DEFAULT_MAX_SIMILAR_EDGES, sc.MaxSimilarEdges)
	assert.Equal(t, float32(graphrag.DEFAULT_SIMILAR_EDGE_THRESHOLD), sc.SimilarEdgeThreshold)
	assert.NoError(t, sc.Validate())
}

func TestInvalidDurationsFallBack(t *testing.T) {
	e := EmbeddingConfig{RetryBaseDelay: "soon"}
	assert.Equal(t, embedding.DEFAULT_RETRY_BASE_DELAY, e.ProviderConfig().RetryBaseDelay)

	v := VectorIndexConfig{QueryCacheTTL: "later"}
	assert.Zero(t, v.CacheTTL())
}
