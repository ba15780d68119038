package sqlstore

import (
	"context"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/scholarly-ai/scholarly/app/store"
	"github.com/scholarly-ai/scholarly/pkg/errors"
	"github.com/scholarly-ai/scholarly/pkg/i18n"
	"github.com/scholarly-ai/scholarly/pkg/types"
	"github.com/scholarly-ai/scholarly/pkg/utils"
)

const (
	DEFAULT_QUERY_CACHE_SIZE = 1000
	DEFAULT_QUERY_CACHE_TTL  = 5 * time.Minute

	pgUniqueViolation = "23505"
)

type AdapterConfig struct {
	QueryCacheSize int
	QueryCacheTTL  time.Duration
}

func (c AdapterConfig) withDefaults() AdapterConfig {
	if c.QueryCacheSize <= 0 {
		c.QueryCacheSize = DEFAULT_QUERY_CACHE_SIZE
	}
	if c.QueryCacheTTL <= 0 {
		c.QueryCacheTTL = DEFAULT_QUERY_CACHE_TTL
	}
	return c
}

// GraphAdapter 基于 postgres + pgvector 的 KnowledgeGraphStore 实现。
// 查询缓存不会因写入失效，结果最多滞后 QueryCacheTTL
type GraphAdapter struct {
	provider *Provider
	embedder store.Embedder
	cache    *expirable.LRU[string, []types.RankedResult]
	observer store.SearchObserver
}

type AdapterOption func(a *GraphAdapter)

func WithSearchObserver(f store.SearchObserver) AdapterOption {
	return func(a *GraphAdapter) {
		a.observer = f
	}
}

func NewGraphAdapter(provider *Provider, embedder store.Embedder, cfg AdapterConfig, opts ...AdapterOption) *GraphAdapter {
	cfg = cfg.withDefaults()
	a := &GraphAdapter{
		provider: provider,
		embedder: embedder,
		cache:    expirable.NewLRU[string, []types.RankedResult](cfg.QueryCacheSize, nil, cfg.QueryCacheTTL),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ store.KnowledgeGraphStore = (*GraphAdapter)(nil)

func (a *GraphAdapter) Kind() string {
	return store.KIND_DATABASE
}

// storageError 唯一键冲突视为输入错误，其余底层错误包装为 StorageError
func storageError(op string, err error) error {
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
		return errors.NewValidationError(op, i18n.ERROR_CHUNK_DUPLICATED).
			WithData(map[string]interface{}{"constraint": pqErr.Constraint})
	}
	return errors.StorageOrPass(op, err)
}

func (a *GraphAdapter) InsertNodes(ctx context.Context, nodes []*types.KnowledgeNode) error {
	op := "KnowledgeGraphStore.InsertNodes"
	if len(nodes) == 0 {
		return nil
	}
	if err := store.PrepareNodes(ctx, a.embedder, nodes); err != nil {
		return errors.Trace(op, err)
	}

	err := a.provider.Transaction(ctx, func(ctx context.Context) error {
		return a.provider.KnowledgeNodeStore().BatchCreate(ctx, nodes)
	})
	return storageError(op, err)
}

func (a *GraphAdapter) InsertRelationships(ctx context.Context, rels []*types.KnowledgeRelationship) error {
	op := "KnowledgeGraphStore.InsertRelationships"
	if len(rels) == 0 {
		return nil
	}
	rels, err := store.PrepareRelationships(rels)
	if err != nil {
		return errors.Trace(op, err)
	}

	err = a.provider.Transaction(ctx, func(ctx context.Context) error {
		return a.upsertRelationships(ctx, rels)
	})
	return storageError(op, err)
}

// upsertRelationships 需在事务中调用，端点课程以事务内可见的节点为准
func (a *GraphAdapter) upsertRelationships(ctx context.Context, rels []*types.KnowledgeRelationship) error {
	if len(rels) == 0 {
		return nil
	}
	courses, err := a.provider.KnowledgeNodeStore().CourseOf(ctx, store.EndpointIDs(rels))
	if err != nil {
		return err
	}
	if err = store.AssignCourse(rels, func(id string) (string, bool) {
		c, ok := courses[id]
		return c, ok
	}); err != nil {
		return err
	}
	return a.provider.KnowledgeRelationshipStore().BatchUpsert(ctx, rels)
}

func vectorKey(vec []float32) string {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return string(buf)
}

func searchCacheKey(query types.SearchQuery, opts types.SearchOptions) string {
	subject := "text:" + query.Text
	if len(query.Vector) > 0 {
		subject = "vector:" + vectorKey(query.Vector)
	}
	return utils.ContentHash("search", fmt.Sprintf("%s|%s|%s|%d|%f", subject, opts.CourseID, opts.MaterialID, opts.Limit, opts.Threshold()))
}

// Search 未提供向量时先对 query.Text 生成向量，缓存命中时不会调用 embedding
func (a *GraphAdapter) Search(ctx context.Context, query types.SearchQuery, opts types.SearchOptions) ([]types.RankedResult, error) {
	op := "KnowledgeGraphStore.Search"
	if len(query.Vector) == 0 && strings.TrimSpace(query.Text) == "" {
		return nil, errors.NewValidationError(op, i18n.ERROR_QUERY_EMPTY)
	}
	opts = opts.Normalize()

	key := searchCacheKey(query, opts)
	if cached, ok := a.cache.Get(key); ok {
		a.observe(true)
		return append([]types.RankedResult{}, cached...), nil
	}

	vector := query.Vector
	if len(vector) == 0 {
		var err error
		if vector, err = a.embedder.Embed(ctx, query.Text); err != nil {
			return nil, errors.Trace(op, err)
		}
	} else if len(vector) != a.embedder.Dimensions() {
		return nil, errors.NewValidationError(op, i18n.ERROR_EMBEDDING_DIMENSIONS).WithData(map[string]interface{}{
			"expected": a.embedder.Dimensions(),
			"actual":   len(vector),
		})
	}

	res, err := a.provider.KnowledgeNodeStore().Query(ctx, opts, pgvector.NewVector(vector))
	if err != nil {
		return nil, storageError(op, err)
	}
	a.cache.Add(key, res)
	a.observe(false)
	return append([]types.RankedResult{}, res...), nil
}

func (a *GraphAdapter) observe(cached bool) {
	if a.observer != nil {
		a.observer(store.KIND_DATABASE, cached)
	}
}

func (a *GraphAdapter) DeleteByMaterial(ctx context.Context, materialID string) (int64, error) {
	op := "KnowledgeGraphStore.DeleteByMaterial"
	if materialID == "" {
		return 0, errors.NewValidationError(op, i18n.ERROR_MATERIAL_ID_REQUIRED)
	}

	var deleted int64
	err := a.provider.Transaction(ctx, func(ctx context.Context) error {
		if _, err := a.provider.KnowledgeRelationshipStore().DeleteByMaterial(ctx, materialID); err != nil {
			return err
		}
		var err error
		deleted, err = a.provider.KnowledgeNodeStore().DeleteByMaterial(ctx, materialID)
		return err
	})
	if err != nil {
		return 0, storageError(op, err)
	}
	slog.Info("material removed from knowledge graph", slog.String("component", op),
		slog.String("material_id", materialID), slog.Int64("nodes", deleted))
	return deleted, nil
}

func (a *GraphAdapter) GetByMaterial(ctx context.Context, materialID string) ([]types.KnowledgeNode, error) {
	op := "KnowledgeGraphStore.GetByMaterial"
	if materialID == "" {
		return nil, errors.NewValidationError(op, i18n.ERROR_MATERIAL_ID_REQUIRED)
	}
	res, err := a.provider.KnowledgeNodeStore().ListByMaterial(ctx, materialID)
	if err != nil {
		return nil, storageError(op, err)
	}
	if res == nil {
		res = []types.KnowledgeNode{}
	}
	return res, nil
}

// ReplaceMaterial 向量在事务外生成，删除旧数据与写入新数据在同一事务内完成
func (a *GraphAdapter) ReplaceMaterial(ctx context.Context, materialID string, nodes []*types.KnowledgeNode, rels []*types.KnowledgeRelationship) (int64, error) {
	op := "KnowledgeGraphStore.ReplaceMaterial"
	if err := store.CheckMaterial(materialID, nodes); err != nil {
		return 0, errors.Trace(op, err)
	}
	if err := store.PrepareNodes(ctx, a.embedder, nodes); err != nil {
		return 0, errors.Trace(op, err)
	}
	rels, err := store.PrepareRelationships(rels)
	if err != nil {
		return 0, errors.Trace(op, err)
	}

	var replaced int64
	err = a.provider.Transaction(ctx, func(ctx context.Context) error {
		if _, err := a.provider.KnowledgeRelationshipStore().DeleteByMaterial(ctx, materialID); err != nil {
			return err
		}
		var err error
		if replaced, err = a.provider.KnowledgeNodeStore().DeleteByMaterial(ctx, materialID); err != nil {
			return err
		}
		if err = a.provider.KnowledgeNodeStore().BatchCreate(ctx, nodes); err != nil {
			return err
		}
		return a.upsertRelationships(ctx, rels)
	})
	if err != nil {
		return 0, storageError(op, err)
	}
	slog.Info("material replaced in knowledge graph", slog.String("component", op),
		slog.String("material_id", materialID), slog.Int64("replaced", replaced), slog.Int("nodes", len(nodes)))
	return replaced, nil
}

func (a *GraphAdapter) Stats(ctx context.Context, courseID string) (types.GraphStats, error) {
	op := "KnowledgeGraphStore.Stats"
	stats, err := a.provider.KnowledgeNodeStore().Count(ctx, courseID)
	if err != nil {
		return types.GraphStats{}, storageError(op, err)
	}
	if stats.Relationships, err = a.provider.KnowledgeRelationshipStore().Count(ctx, courseID); err != nil {
		return types.GraphStats{}, storageError(op, err)
	}
	return stats, nil
}

func (a *GraphAdapter) AdminStats(ctx context.Context, topN int) (types.AdminStats, error) {
	op := "KnowledgeGraphStore.AdminStats"
	if topN <= 0 {
		topN = store.DEFAULT_ADMIN_TOP_N
	}

	res := types.AdminStats{Adapter: store.KIND_DATABASE}
	var err error
	if res.Graph, err = a.Stats(ctx, ""); err != nil {
		return types.AdminStats{}, errors.Trace(op, err)
	}
	if res.TopMaterials, err = a.provider.KnowledgeNodeStore().TopMaterials(ctx, topN); err != nil {
		return types.AdminStats{}, storageError(op, err)
	}
	if res.RecentNodes, err = a.provider.KnowledgeNodeStore().ListRecent(ctx, topN); err != nil {
		return types.AdminStats{}, storageError(op, err)
	}
	if res.StorageBytes, err = a.provider.TableSizes(ctx); err != nil {
		return types.AdminStats{}, storageError(op, err)
	}
	return res, nil
}
