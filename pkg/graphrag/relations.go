package graphrag

import (
	"sort"

	"github.com/scholarly-ai/scholarly/pkg/types"
	"github.com/scholarly-ai/scholarly/pkg/utils"
)

// sequentialEdges 相邻切片 i -> i+1，权重 1
func sequentialEdges(nodes []*types.KnowledgeNode) []*types.KnowledgeRelationship {
	var rels []*types.KnowledgeRelationship
	for i := 0; i+1 < len(nodes); i++ {
		rels = append(rels, &types.KnowledgeRelationship{
			SourceNodeID:     nodes[i].ID,
			TargetNodeID:     nodes[i+1].ID,
			RelationshipType: types.RELATIONSHIP_SEQUENTIAL,
			Weight:           1,
			CourseID:         nodes[i].CourseID,
		})
	}
	return rels
}

type candidate struct {
	source, target int
	similarity     float32
}

// similarEdges 非相邻切片间余弦相似度不低于 threshold 的边，从最相似的开始取，
// 每个节点最多参与 perNode 条，总数最多 total 条
func similarEdges(nodes []*types.KnowledgeNode, threshold float32, perNode, total int) []*types.KnowledgeRelationship {
	if perNode == 0 || total == 0 {
		return nil
	}

	var candidates []candidate
	for i := 0; i < len(nodes); i++ {
		if !nodes[i].HasEmbedding() {
			continue
		}
		for j := i + 2; j < len(nodes); j++ {
			if !nodes[j].HasEmbedding() {
				continue
			}
			sim := utils.Cosine(nodes[i].EmbeddingSlice(), nodes[j].EmbeddingSlice())
			if sim >= threshold {
				candidates = append(candidates, candidate{source: i, target: j, similarity: sim})
			}
		}
	}
	sort.Slice(candidates, func(a, b int) bool {
		x, y := candidates[a], candidates[b]
		if x.similarity != y.similarity {
			return x.similarity > y.similarity
		}
		if x.source != y.source {
			return x.source < y.source
		}
		return x.target < y.target
	})

	degree := make(map[int]int)
	var rels []*types.KnowledgeRelationship
	for _, c := range candidates {
		if len(rels) >= total {
			break
		}
		if degree[c.source] >= perNode || degree[c.target] >= perNode {
			continue
		}
		degree[c.source]++
		degree[c.target]++

		weight := c.similarity
		if weight > 1 {
			weight = 1
		}
		rels = append(rels, &types.KnowledgeRelationship{
			SourceNodeID:     nodes[c.source].ID,
			TargetNodeID:     nodes[c.target].ID,
			RelationshipType: types.RELATIONSHIP_SEMANTIC_SIMILAR,
			Weight:           weight,
			CourseID:         nodes[c.source].CourseID,
		})
	}
	return rels
}
