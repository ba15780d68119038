package sqlstore

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/pgvector/pgvector-go"
	"github.com/samber/lo"

	"github.com/scholarly-ai/scholarly/pkg/register"
	"github.com/scholarly-ai/scholarly/pkg/types"
)

// 单条 INSERT 的行数上限，9 列 * 500 行远低于 postgres 65535 个参数的限制
const INSERT_BATCH_ROWS = 500

func init() {
	register.RegisterFunc[*Provider](RegisterKey{}, func(provider *Provider) {
		provider.stores.KnowledgeNodeStore = NewKnowledgeNodeStore(provider)
	})
}

type KnowledgeNodeStore struct {
	CommonFields
}

func NewKnowledgeNodeStore(provider SqlProviderAchieve) *KnowledgeNodeStore {
	repo := &KnowledgeNodeStore{}
	repo.SetProvider(provider)
	repo.SetTable(types.TABLE_KNOWLEDGE_NODE)
	repo.SetAllColumns("id", "material_id", "course_id", "content", "chunk_index", "embedding", "metadata", "created_at", "updated_at")
	return repo
}

// BatchCreate 批量写入节点，调用方负责事务
func (s *KnowledgeNodeStore) BatchCreate(ctx context.Context, nodes []*types.KnowledgeNode) error {
	for _, batch := range lo.Chunk(nodes, INSERT_BATCH_ROWS) {
		query := sq.Insert(s.GetTable()).Columns(s.GetAllColumns()...)
		for _, n := range batch {
			query = query.Values(n.ID, n.MaterialID, n.CourseID, n.Content, n.ChunkIndex, n.Embedding, n.Metadata, n.CreatedAt, n.UpdatedAt)
		}
		if _, err := s.exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

func (s *KnowledgeNodeStore) ListByMaterial(ctx context.Context, materialID string) ([]types.KnowledgeNode, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).
		Where(sq.Eq{"material_id": materialID}).
		OrderBy("chunk_index ASC")

	var res []types.KnowledgeNode
	if err := s.selectInto(ctx, &res, query); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *KnowledgeNodeStore) CourseOf(ctx context.Context, ids []string) (map[string]string, error) {
	result := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := sq.Select("id", "course_id").From(s.GetTable()).Where(sq.Eq{"id": ids})

	var rows []struct {
		ID       string `db:"id"`
		CourseID string `db:"course_id"`
	}
	if err := s.selectInto(ctx, &rows, query); err != nil {
		return nil, err
	}
	for _, v := range rows {
		result[v.ID] = v.CourseID
	}
	return result, nil
}

func (s *KnowledgeNodeStore) DeleteByMaterial(ctx context.Context, materialID string) (int64, error) {
	res, err := s.exec(ctx, sq.Delete(s.GetTable()).Where(sq.Eq{"material_id": materialID}))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rankedNode struct {
	types.KnowledgeNode
	Similarity float32 `db:"similarity"`
}

// Query 按余弦相似度检索，只返回相似度不低于阈值的节点
func (s *KnowledgeNodeStore) Query(ctx context.Context, opts types.SearchOptions, vector pgvector.Vector) ([]types.RankedResult, error) {
	// pgvector supported distance functions are:
	// <-> - L2 distance
	// <#> - (negative) inner product
	// <=> - cosine distance
	opts = opts.Normalize()
	query := sq.Select(s.GetColumnsExcept("embedding")...).
		Column(sq.Expr("1 - (embedding <=> ?) AS similarity", vector)).
		From(s.GetTable()).
		Where("embedding IS NOT NULL").
		Where(sq.Expr("1 - (embedding <=> ?) >= ?", vector, opts.Threshold())).
		OrderByClause("embedding <=> ?", vector).
		OrderBy("chunk_index ASC").
		Limit(uint64(opts.Limit))
	opts.Apply(&query)

	var rows []rankedNode
	if err := s.selectInto(ctx, &rows, query); err != nil {
		return nil, err
	}

	res := make([]types.RankedResult, 0, len(rows))
	for _, v := range rows {
		res = append(res, types.RankedResult{
			Node:       v.KnowledgeNode,
			Similarity: v.Similarity,
		})
	}
	return res, nil
}

// Count courseID 为空时统计全部课程
func (s *KnowledgeNodeStore) Count(ctx context.Context, courseID string) (types.GraphStats, error) {
	query := sq.Select("COUNT(*) AS nodes", "COUNT(embedding) AS nodes_with_embedding").From(s.GetTable())
	if courseID != "" {
		query = query.Where(sq.Eq{"course_id": courseID})
	}

	var res types.GraphStats
	if err := s.getInto(ctx, &res, query); err != nil {
		return types.GraphStats{}, err
	}
	return res, nil
}

func (s *KnowledgeNodeStore) TopMaterials(ctx context.Context, limit int) ([]types.MaterialNodeCount, error) {
	query := sq.Select("material_id", "course_id", "COUNT(*) AS nodes").From(s.GetTable()).
		GroupBy("material_id", "course_id").
		OrderBy("nodes DESC", "material_id ASC").
		Limit(uint64(limit))

	var res []types.MaterialNodeCount
	if err := s.selectInto(ctx, &res, query); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *KnowledgeNodeStore) ListRecent(ctx context.Context, limit int) ([]types.NodeSummary, error) {
	query := sq.Select("id", "material_id", "course_id", "chunk_index",
		fmt.Sprintf("LEFT(content, %d) AS preview", types.NODE_PREVIEW_LENGTH), "created_at").
		From(s.GetTable()).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit))

	var res []types.NodeSummary
	if err := s.selectInto(ctx, &res, query); err != nil {
		return nil, err
	}
	return res, nil
}
