package graphrag

import (
	"fmt"

	"github.com/scholarly-ai/scholarly/pkg/types"
)

const (
	DEFAULT_CHUNK_SIZE                 = 1000
	DEFAULT_CHUNK_OVERLAP              = 200
	DEFAULT_SIMILAR_EDGE_THRESHOLD     = 0.8
	DEFAULT_MAX_SIMILAR_EDGES_PER_NODE = 3
	DEFAULT_MAX_SIMILAR_EDGES          = 200
)

// Config 中为 0 的字段使用默认值；ChunkOverlap、SimilarEdgeThreshold 与两个边数上限
// 设为负数表示显式的 0，边数上限为 0 时不生成 semantic-similar 边
type Config struct {
	// ChunkSize 与 ChunkOverlap 均以字符(rune)计
	ChunkSize            int
	ChunkOverlap         int
	SimilarEdgeThreshold float32
	// MaxSimilarEdgesPerNode 按端点计，一个节点作为 source 或 target 都占用名额
	MaxSimilarEdgesPerNode int
	MaxSimilarEdges        int
}

func orDefault[T int | float32](v, def T) T {
	switch {
	case v == 0:
		return def
	case v < 0:
		return 0
	}
	return v
}

func (c Config) WithDefaults() Config {
	if c.ChunkSize == 0 {
		c.ChunkSize = DEFAULT_CHUNK_SIZE
	}
	c.ChunkOverlap = orDefault(c.ChunkOverlap, DEFAULT_CHUNK_OVERLAP)
	c.SimilarEdgeThreshold = orDefault(c.SimilarEdgeThreshold, DEFAULT_SIMILAR_EDGE_THRESHOLD)
	c.MaxSimilarEdgesPerNode = orDefault(c.MaxSimilarEdgesPerNode, DEFAULT_MAX_SIMILAR_EDGES_PER_NODE)
	c.MaxSimilarEdges = orDefault(c.MaxSimilarEdges, DEFAULT_MAX_SIMILAR_EDGES)
	return c
}

func (c Config) Validate() error {
	if c.ChunkSize <= 0 || c.ChunkSize > types.MAX_NODE_CONTENT_LENGTH {
		return fmt.Errorf("chunk size must be in (0, %d], got %d", types.MAX_NODE_CONTENT_LENGTH, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, chunk size), got %d", c.ChunkOverlap)
	}
	if c.SimilarEdgeThreshold < 0 || c.SimilarEdgeThreshold > 1 {
		return fmt.Errorf("similar edge threshold must be in [0, 1], got %f", c.SimilarEdgeThreshold)
	}
	if c.MaxSimilarEdgesPerNode < 0 || c.MaxSimilarEdges < 0 {
		return fmt.Errorf("similar edge limits must not be negative")
	}
	return nil
}
