package memstore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarly-ai/scholarly/pkg/embedding"
	"github.com/scholarly-ai/scholarly/pkg/errors"
	"github.com/scholarly-ai/scholarly/pkg/testutils"
	"github.com/scholarly-ai/scholarly/pkg/types"
)

func newStore(t *testing.T) (*Store, *testutils.HashDriver) {
	driver := testutils.NewHashDriver(384)
	return New(testutils.NewEmbeddingProvider(t, driver, embedding.Config{})), driver
}

func newNodes(material, course string, contents ...string) []*types.KnowledgeNode {
	var res []*types.KnowledgeNode
	for i, c := range contents {
		res = append(res, &types.KnowledgeNode{MaterialID: material, CourseID: course, Content: c, ChunkIndex: i})
	}
	return res
}

func sequential(nodes []*types.KnowledgeNode) []*types.KnowledgeRelationship {
	var rels []*types.KnowledgeRelationship
	for i := 0; i+1 < len(nodes); i++ {
		rels = append(rels, &types.KnowledgeRelationship{
			SourceNodeID:     nodes[i].ID,
			TargetNodeID:     nodes[i+1].ID,
			RelationshipType: types.RELATIONSHIP_SEQUENTIAL,
			Weight:           1,
		})
	}
	return rels
}

func TestInsertAndGetByMaterial(t *testing.T) {
	s, driver := newStore(t)
	ctx := context.Background()

	nodes := newNodes("m1", "bio", "cells divide by mitosis", "meiosis produces gametes", "dna replicates first")
	require.NoError(t, s.InsertNodes(ctx, nodes))
	assert.Equal(t, 1, driver.Calls())

	got, err := s.GetByMaterial(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, n := range got {
		assert.Equal(t, i, n.ChunkIndex)
		assert.True(t, n.HasEmbedding())
	}

	empty, err := s.GetByMaterial(ctx, "unknown")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestInsertNodesRejectsExistingChunk(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertNodes(ctx, newNodes("m1", "bio", "first")))
	err := s.InsertNodes(ctx, newNodes("m1", "bio", "again"))
	assert.True(t, errors.Is(err, errors.ErrValidation))

	stats, _ := s.Stats(ctx, "")
	assert.Equal(t, int64(1), stats.Nodes)
}

func TestInsertNodesEmbeddingFailureWritesNothing(t *testing.T) {
	driver := testutils.NewHashDriver(384)
	driver.Fail = func(int, []string) error { return assert.AnError }
	s := New(testutils.NewEmbeddingProvider(t, driver, embedding.Config{}))

	err := s.InsertNodes(context.Background(), newNodes("m1", "bio", "a chunk"))
	assert.True(t, errors.Is(err, errors.ErrEmbeddingUnavailable))

	stats, _ := s.Stats(context.Background(), "")
	assert.Zero(t, stats.Nodes)
}

func TestSearchKeywordScoring(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	require.NoError(t, s.InsertNodes(ctx, newNodes("m1", "bio",
		"Photosynthesis converts light energy into chemical energy",
		"Chlorophyll absorbs light",
		"The mitochondria is the powerhouse of the cell",
	)))
	require.NoError(t, s.InsertNodes(ctx, newNodes("m2", "chem", "light travels as a wave")))

	res, err := s.Search(ctx, types.SearchQuery{Text: "light energy"}, types.SearchOptions{CourseID: "bio"})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, float32(1), res[0].Similarity)
	assert.Equal(t, 0, res[0].Node.ChunkIndex)
	assert.Equal(t, float32(0.5), res[1].Similarity)
	assert.Equal(t, "bio", res[1].Node.CourseID)

	high := float32(0.9)
	res, err = s.Search(ctx, types.SearchQuery{Text: "light energy"}, types.SearchOptions{CourseID: "bio", SimilarityThreshold: &high})
	require.NoError(t, err)
	assert.Len(t, res, 1)

	res, err = s.Search(ctx, types.SearchQuery{Text: "LIGHT"}, types.SearchOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, res, 1)

	res, err = s.Search(ctx, types.SearchQuery{Text: "quantum chromodynamics"}, types.SearchOptions{CourseID: "bio"})
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Empty(t, res)

	_, err = s.Search(ctx, types.SearchQuery{Text: "  "}, types.SearchOptions{})
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestSearchVectorOnlyQuery(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	require.NoError(t, s.InsertNodes(ctx, newNodes("m1", "bio", "Chlorophyll absorbs light")))

	res, err := s.Search(ctx, types.SearchQuery{Vector: []float32{0.6, 0.8}}, types.SearchOptions{CourseID: "bio"})
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Empty(t, res)
}

func TestInsertRelationships(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	bio := newNodes("m1", "bio", "one", "two")
	chem := newNodes("m2", "chem", "three")
	require.NoError(t, s.InsertNodes(ctx, bio))
	require.NoError(t, s.InsertNodes(ctx, chem))

	require.NoError(t, s.InsertRelationships(ctx, sequential(bio)))
	// upsert keeps a single edge and takes the new weight
	require.NoError(t, s.InsertRelationships(ctx, []*types.KnowledgeRelationship{{
		SourceNodeID: bio[0].ID, TargetNodeID: bio[1].ID, RelationshipType: types.RELATIONSHIP_SEQUENTIAL, Weight: 0.4,
	}}))
	stats, _ := s.Stats(ctx, "bio")
	assert.Equal(t, int64(1), stats.Relationships)
	for _, r := range s.rels {
		assert.Equal(t, float32(0.4), r.Weight)
		assert.Equal(t, "bio", r.CourseID)
	}

	err := s.InsertRelationships(ctx, []*types.KnowledgeRelationship{{
		SourceNodeID: bio[0].ID, TargetNodeID: chem[0].ID, RelationshipType: types.RELATIONSHIP_CROSS_REFERENCE, Weight: 0.5,
	}})
	assert.True(t, errors.Is(err, errors.ErrValidation))

	err = s.InsertRelationships(ctx, []*types.KnowledgeRelationship{{
		SourceNodeID: bio[0].ID, TargetNodeID: "missing", RelationshipType: types.RELATIONSHIP_CROSS_REFERENCE, Weight: 0.5,
	}})
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestDeleteByMaterialRemovesRelationships(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	a := newNodes("m1", "bio", "one", "two", "three")
	b := newNodes("m2", "bio", "four")
	require.NoError(t, s.InsertNodes(ctx, a))
	require.NoError(t, s.InsertNodes(ctx, b))
	require.NoError(t, s.InsertRelationships(ctx, append(sequential(a), &types.KnowledgeRelationship{
		SourceNodeID: b[0].ID, TargetNodeID: a[0].ID, RelationshipType: types.RELATIONSHIP_CROSS_REFERENCE, Weight: 0.7,
	})))

	deleted, err := s.DeleteByMaterial(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	stats, _ := s.Stats(ctx, "")
	assert.Equal(t, types.GraphStats{Nodes: 1, Relationships: 0}, stats)

	deleted, err = s.DeleteByMaterial(ctx, "m1")
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestReplaceMaterial(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	old := newNodes("m1", "bio", "old one", "old two")
	require.NoError(t, s.InsertNodes(ctx, old))
	require.NoError(t, s.InsertRelationships(ctx, sequential(old)))

	fresh := newNodes("m1", "bio", "new one", "new two", "new three")
	for i, n := range fresh {
		n.ID = []string{"f1", "f2", "f3"}[i]
	}
	replaced, err := s.ReplaceMaterial(ctx, "m1", fresh, sequential(fresh))
	require.NoError(t, err)
	assert.Equal(t, int64(2), replaced)

	got, _ := s.GetByMaterial(ctx, "m1")
	require.Len(t, got, 3)
	assert.Equal(t, "new one", got[0].Content)
	stats, _ := s.Stats(ctx, "bio")
	assert.Equal(t, int64(2), stats.Relationships)
}

func TestReplaceMaterialValidationKeepsOldData(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	old := newNodes("m1", "bio", "old one", "old two")
	require.NoError(t, s.InsertNodes(ctx, old))

	fresh := newNodes("m1", "bio", "new one")
	fresh[0].ID = "f1"
	_, err := s.ReplaceMaterial(ctx, "m1", fresh, []*types.KnowledgeRelationship{{
		SourceNodeID: "f1", TargetNodeID: "missing", RelationshipType: types.RELATIONSHIP_SEQUENTIAL, Weight: 1,
	}})
	assert.True(t, errors.Is(err, errors.ErrValidation))

	got, _ := s.GetByMaterial(ctx, "m1")
	require.Len(t, got, 2)
	assert.Equal(t, "old one", got[0].Content)

	_, err = s.ReplaceMaterial(ctx, "m1", newNodes("m2", "bio", "wrong material"), nil)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestReplaceMaterialIsAtomicForReaders(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	require.NoError(t, s.InsertNodes(ctx, newNodes("m1", "bio", "a", "b")))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			got, err := s.GetByMaterial(ctx, "m1")
			assert.NoError(t, err)
			assert.Contains(t, []int{2, 3}, len(got))
		}
	}()

	for i := 0; i < 50; i++ {
		contents := []string{"a", "b"}
		if i%2 == 0 {
			contents = append(contents, "c")
		}
		_, err := s.ReplaceMaterial(ctx, "m1", newNodes("m1", "bio", contents...), nil)
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
}

func TestAdminStats(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertNodes(ctx, newNodes("m1", "bio", "alpha", "beta", "gamma")))
	require.NoError(t, s.InsertNodes(ctx, newNodes("m2", "chem", "delta")))

	stats, err := s.AdminStats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "memory", stats.Adapter)
	assert.Equal(t, int64(4), stats.Graph.Nodes)
	assert.Equal(t, int64(4), stats.Graph.NodesWithEmbedding)
	require.Len(t, stats.TopMaterials, 1)
	assert.Equal(t, types.MaterialNodeCount{MaterialID: "m1", CourseID: "bio", Nodes: 3}, stats.TopMaterials[0])
	assert.Len(t, stats.RecentNodes, 1)
	// 5+4+5+5 content bytes plus 4 float32 vectors of 384 dimensions
	assert.Equal(t, int64(19+4*4*384), stats.StorageBytes)
}
