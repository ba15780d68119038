package sqlstore

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/samber/lo"

	"github.com/scholarly-ai/scholarly/pkg/register"
	"github.com/scholarly-ai/scholarly/pkg/types"
)

func init() {
	register.RegisterFunc[*Provider](RegisterKey{}, func(provider *Provider) {
		provider.stores.KnowledgeRelationshipStore = NewKnowledgeRelationshipStore(provider)
	})
}

type KnowledgeRelationshipStore struct {
	CommonFields
}

func NewKnowledgeRelationshipStore(provider SqlProviderAchieve) *KnowledgeRelationshipStore {
	repo := &KnowledgeRelationshipStore{}
	repo.SetProvider(provider)
	repo.SetTable(types.TABLE_KNOWLEDGE_RELATIONSHIP)
	repo.SetAllColumns("id", "source_node_id", "target_node_id", "relationship_type", "weight", "course_id", "created_at", "updated_at")
	return repo
}

// BatchUpsert 按 (source_node_id, target_node_id, relationship_type) 去重写入，已存在时更新权重。
// 同一条语句内不能出现重复的边
func (s *KnowledgeRelationshipStore) BatchUpsert(ctx context.Context, rels []*types.KnowledgeRelationship) error {
	for _, batch := range lo.Chunk(rels, INSERT_BATCH_ROWS) {
		query := sq.Insert(s.GetTable()).Columns(s.GetAllColumns()...)
		for _, r := range batch {
			query = query.Values(r.ID, r.SourceNodeID, r.TargetNodeID, r.RelationshipType, r.Weight, r.CourseID, r.CreatedAt, r.UpdatedAt)
		}
		query = query.Suffix("ON CONFLICT (source_node_id, target_node_id, relationship_type) DO UPDATE SET weight = EXCLUDED.weight, updated_at = EXCLUDED.updated_at")
		if _, err := s.exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// touchesMaterial 任一端点属于该资料的边
func (s *KnowledgeRelationshipStore) touchesMaterial(materialID string) sq.Sqlizer {
	sub := fmt.Sprintf("SELECT id FROM %s WHERE material_id = ?", types.TABLE_KNOWLEDGE_NODE.Name())
	return sq.Or{
		sq.Expr("source_node_id IN ("+sub+")", materialID),
		sq.Expr("target_node_id IN ("+sub+")", materialID),
	}
}

func (s *KnowledgeRelationshipStore) ListByMaterial(ctx context.Context, materialID string) ([]types.KnowledgeRelationship, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).
		Where(s.touchesMaterial(materialID)).
		OrderBy("created_at ASC", "id ASC")

	var res []types.KnowledgeRelationship
	if err := s.selectInto(ctx, &res, query); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *KnowledgeRelationshipStore) DeleteByMaterial(ctx context.Context, materialID string) (int64, error) {
	res, err := s.exec(ctx, sq.Delete(s.GetTable()).Where(s.touchesMaterial(materialID)))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *KnowledgeRelationshipStore) Count(ctx context.Context, courseID string) (int64, error) {
	query := sq.Select("COUNT(*)").From(s.GetTable())
	if courseID != "" {
		query = query.Where(sq.Eq{"course_id": courseID})
	}

	var count int64
	if err := s.getInto(ctx, &count, query); err != nil {
		return 0, err
	}
	return count, nil
}
