package store

import (
	"context"
	"time"

	"github.com/scholarly-ai/scholarly/pkg/errors"
	"github.com/scholarly-ai/scholarly/pkg/i18n"
	"github.com/scholarly-ai/scholarly/pkg/types"
	"github.com/scholarly-ai/scholarly/pkg/utils"
)

type chunkKey struct {
	materialID string
	chunkIndex int
}

// PrepareNodes 写入前的公共处理：校验、批内唯一性、补全 id/时间、生成缺失的向量。
// 返回错误时调用方不得写入任何节点
func PrepareNodes(ctx context.Context, embedder Embedder, nodes []*types.KnowledgeNode) error {
	trace := "store.PrepareNodes"

	dimensions := 0
	if embedder != nil {
		dimensions = embedder.Dimensions()
	}

	seen := make(map[chunkKey]struct{}, len(nodes))
	for i, n := range nodes {
		if n == nil {
			return errors.NewValidationError(trace, i18n.ERROR_INVALIDARGUMENT).WithData(map[string]interface{}{"index": i})
		}
		if err := n.Validate(dimensions); err != nil {
			ce, _ := errors.As(err)
			return ce.Trace(trace).MergeData(map[string]interface{}{"index": i})
		}
		key := chunkKey{materialID: n.MaterialID, chunkIndex: n.ChunkIndex}
		if _, exist := seen[key]; exist {
			return errors.NewValidationError(trace, i18n.ERROR_CHUNK_DUPLICATED).WithData(map[string]interface{}{"index": i})
		}
		seen[key] = struct{}{}
	}

	now := time.Now().Unix()
	for _, n := range nodes {
		if n.ID == "" {
			n.ID = utils.GenUniqIDStr()
		}
		if n.CreatedAt == 0 {
			n.CreatedAt = now
		}
		n.UpdatedAt = now
	}

	if embedder == nil {
		return nil
	}

	var (
		missing  []int
		contents []string
	)
	for i, n := range nodes {
		if !n.HasEmbedding() {
			missing = append(missing, i)
			contents = append(contents, n.Content)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	res, err := embedder.EmbedBatch(ctx, contents)
	if err != nil {
		return errors.Trace(trace, err)
	}
	for i, idx := range missing {
		nodes[idx].SetEmbedding(res.Vectors[i])
	}
	return nil
}

// PrepareRelationships 校验并补全字段，批内相同 (source, target, type) 的边以最后一条为准
func PrepareRelationships(rels []*types.KnowledgeRelationship) ([]*types.KnowledgeRelationship, error) {
	trace := "store.PrepareRelationships"

	index := make(map[types.RelationshipKey]int, len(rels))
	result := make([]*types.KnowledgeRelationship, 0, len(rels))
	now := time.Now().Unix()
	for i, r := range rels {
		if r == nil {
			return nil, errors.NewValidationError(trace, i18n.ERROR_RELATIONSHIP_INVALID).WithData(map[string]interface{}{"index": i})
		}
		if err := r.Validate(); err != nil {
			ce, _ := errors.As(err)
			return nil, ce.Trace(trace).MergeData(map[string]interface{}{"index": i})
		}
		if r.ID == "" {
			r.ID = utils.GenUniqIDStr()
		}
		if r.CreatedAt == 0 {
			r.CreatedAt = now
		}
		r.UpdatedAt = now

		if pos, exist := index[r.Key()]; exist {
			result[pos] = r
			continue
		}
		index[r.Key()] = len(result)
		result = append(result, r)
	}
	return result, nil
}

// EndpointIDs 返回所有边涉及的节点 id，已去重
func EndpointIDs(rels []*types.KnowledgeRelationship) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, r := range rels {
		for _, id := range []string{r.SourceNodeID, r.TargetNodeID} {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// AssignCourse 校验两端节点存在且属于同一课程，并回填边的 CourseID
func AssignCourse(rels []*types.KnowledgeRelationship, courseOf func(id string) (string, bool)) error {
	trace := "store.AssignCourse"
	for i, r := range rels {
		source, ok := courseOf(r.SourceNodeID)
		if !ok {
			return errors.NewValidationError(trace, i18n.ERROR_RELATIONSHIP_NODE_MISSING).WithData(map[string]interface{}{"index": i, "node_id": r.SourceNodeID})
		}
		target, ok := courseOf(r.TargetNodeID)
		if !ok {
			return errors.NewValidationError(trace, i18n.ERROR_RELATIONSHIP_NODE_MISSING).WithData(map[string]interface{}{"index": i, "node_id": r.TargetNodeID})
		}
		if source != target {
			return errors.NewValidationError(trace, i18n.ERROR_RELATIONSHIP_CROSS_COURSE).WithData(map[string]interface{}{"index": i})
		}
		r.CourseID = source
	}
	return nil
}

// CheckMaterial 替换资料时所有新节点必须属于该资料
func CheckMaterial(materialID string, nodes []*types.KnowledgeNode) error {
	trace := "store.CheckMaterial"
	if materialID == "" {
		return errors.NewValidationError(trace, i18n.ERROR_MATERIAL_ID_REQUIRED)
	}
	for i, n := range nodes {
		if n != nil && n.MaterialID != materialID {
			return errors.NewValidationError(trace, i18n.ERROR_INVALIDARGUMENT).WithData(map[string]interface{}{
				"index":       i,
				"material_id": n.MaterialID,
			})
		}
	}
	return nil
}
