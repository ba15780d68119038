package store

import (
	"context"

	"github.com/pgvector/pgvector-go"

	"github.com/scholarly-ai/scholarly/pkg/embedding"
	"github.com/scholarly-ai/scholarly/pkg/types"
)

const (
	KIND_DATABASE = "database"
	KIND_MEMORY   = "memory"

	DEFAULT_ADMIN_TOP_N = 10
)

// KnowledgeGraphStore 知识图谱存储，数据库与内存两种实现对上层完全一致
type KnowledgeGraphStore interface {
	Kind() string
	// InsertNodes 整批写入，任一节点失败则整批不落库；缺少向量的节点会先生成向量
	InsertNodes(ctx context.Context, nodes []*types.KnowledgeNode) error
	// InsertRelationships 按 (source, target, type) upsert
	InsertRelationships(ctx context.Context, rels []*types.KnowledgeRelationship) error
	Search(ctx context.Context, query types.SearchQuery, opts types.SearchOptions) ([]types.RankedResult, error)
	// DeleteByMaterial 删除资料下的所有节点及相关的边，返回删除的节点数
	DeleteByMaterial(ctx context.Context, materialID string) (int64, error)
	GetByMaterial(ctx context.Context, materialID string) ([]types.KnowledgeNode, error)
	// ReplaceMaterial 用新的节点和边整体替换资料，返回被替换掉的旧节点数
	ReplaceMaterial(ctx context.Context, materialID string, nodes []*types.KnowledgeNode, rels []*types.KnowledgeRelationship) (int64, error)
	Stats(ctx context.Context, courseID string) (types.GraphStats, error)
	AdminStats(ctx context.Context, topN int) (types.AdminStats, error)
}

// Embedder 存储层需要的向量化能力
type Embedder interface {
	Embed(ctx context.Context, content string) ([]float32, error)
	EmbedBatch(ctx context.Context, contents []string) (*embedding.BatchResult, error)
	Dimensions() int
}

type KnowledgeNodeStore interface {
	BatchCreate(ctx context.Context, nodes []*types.KnowledgeNode) error
	ListByMaterial(ctx context.Context, materialID string) ([]types.KnowledgeNode, error)
	// CourseOf 返回节点 id 到课程 id 的映射，不存在的节点不会出现在结果中
	CourseOf(ctx context.Context, ids []string) (map[string]string, error)
	DeleteByMaterial(ctx context.Context, materialID string) (int64, error)
	Query(ctx context.Context, opts types.SearchOptions, vector pgvector.Vector) ([]types.RankedResult, error)
	Count(ctx context.Context, courseID string) (types.GraphStats, error)
	TopMaterials(ctx context.Context, limit int) ([]types.MaterialNodeCount, error)
	ListRecent(ctx context.Context, limit int) ([]types.NodeSummary, error)
}

type KnowledgeRelationshipStore interface {
	BatchUpsert(ctx context.Context, rels []*types.KnowledgeRelationship) error
	ListByMaterial(ctx context.Context, materialID string) ([]types.KnowledgeRelationship, error)
	DeleteByMaterial(ctx context.Context, materialID string) (int64, error)
	Count(ctx context.Context, courseID string) (int64, error)
}

// SearchObserver 每次检索完成后回调，cached 表示结果来自查询缓存
type SearchObserver func(kind string, cached bool)
