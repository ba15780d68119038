package graphrag

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarly-ai/scholarly/app/store"
	"github.com/scholarly-ai/scholarly/app/store/graphstore"
	"github.com/scholarly-ai/scholarly/app/store/memstore"
	"github.com/scholarly-ai/scholarly/pkg/embedding"
	"github.com/scholarly-ai/scholarly/pkg/errors"
	"github.com/scholarly-ai/scholarly/pkg/testutils"
	"github.com/scholarly-ai/scholarly/pkg/types"
	"github.com/scholarly-ai/scholarly/pkg/utils"
)

const document = "Photosynthesis converts light energy into chemical energy. It happens in the chloroplasts of plant cells.\n\n" +
	"Cellular respiration releases energy stored in glucose. Mitochondria are the site of respiration.\n\n" +
	"Enzymes speed up chemical reactions in cells."

var testConfig = Config{ChunkSize: 80, ChunkOverlap: 20}

type fixture struct {
	srv    *Service
	store  store.KnowledgeGraphStore
	driver *testutils.HashDriver
}

func newFixture(t *testing.T, embeddingCfg embedding.Config) *fixture {
	driver := testutils.NewHashDriver(384)
	embedder := testutils.NewEmbeddingProvider(t, driver, embeddingCfg)
	s := memstore.New(embedder)
	srv, err := New(s, embedder, testConfig, WithAdapterReason("vector index disabled by configuration"))
	require.NoError(t, err)
	return &fixture{srv: srv, store: s, driver: driver}
}

func meta() DocumentMeta {
	return DocumentMeta{MaterialID: "m1", CourseID: "bio-101", FileName: "chapter1.pdf", FileType: "pdf"}
}

func TestProcessDocumentValidation(t *testing.T) {
	f := newFixture(t, embedding.Config{})
	ctx := context.Background()

	_, err := f.srv.ProcessDocument(ctx, document, DocumentMeta{CourseID: "bio-101"})
	assert.True(t, errors.Is(err, errors.ErrValidation))
	_, err = f.srv.ProcessDocument(ctx, document, DocumentMeta{MaterialID: "m1"})
	assert.True(t, errors.Is(err, errors.ErrValidation))
	_, err = f.srv.ProcessDocument(ctx, "   ", meta())
	assert.True(t, errors.Is(err, errors.ErrValidation))

	assert.Equal(t, 0, f.driver.Calls())
}

func TestProcessDocument(t *testing.T) {
	f := newFixture(t, embedding.Config{})
	ctx := context.Background()

	res, err := f.srv.ProcessDocument(ctx, document, meta())
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(res.Nodes), 3)

	for i, n := range res.Nodes {
		assert.Equal(t, i, n.ChunkIndex)
		assert.Equal(t, "bio-101", n.CourseID)
		assert.LessOrEqual(t, len([]rune(n.Content)), testConfig.ChunkSize)
		assert.Len(t, n.EmbeddingSlice(), 384)
		assert.Equal(t, "chapter1.pdf", n.Metadata[types.METADATA_FILE_NAME])
		assert.Equal(t, "pdf", n.Metadata[types.METADATA_FILE_TYPE])
		assert.Equal(t, len(res.Nodes), n.Metadata[types.METADATA_CHUNK_COUNT])
	}

	var sequential int
	for _, r := range res.Relationships {
		if r.RelationshipType == types.RELATIONSHIP_SEQUENTIAL {
			sequential++
		}
	}
	assert.Equal(t, len(res.Nodes)-1, sequential)

	stored, err := f.store.GetByMaterial(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, stored, len(res.Nodes))

	stats, err := f.store.Stats(ctx, "bio-101")
	require.NoError(t, err)
	assert.Equal(t, int64(len(res.Relationships)), stats.Relationships)
}

func TestProcessDocumentTwiceIsRejected(t *testing.T) {
	f := newFixture(t, embedding.Config{})
	ctx := context.Background()

	first, err := f.srv.ProcessDocument(ctx, document, meta())
	require.NoError(t, err)

	_, err = f.srv.ProcessDocument(ctx, document, meta())
	assert.True(t, errors.Is(err, errors.ErrValidation))

	stored, _ := f.store.GetByMaterial(ctx, "m1")
	assert.Len(t, stored, len(first.Nodes))
}

func TestProcessDocumentEmbeddingFailurePersistsNothing(t *testing.T) {
	f := newFixture(t, embedding.Config{})
	f.driver.Fail = func(int, []string) error { return assert.AnError }

	_, err := f.srv.ProcessDocument(context.Background(), document, meta())
	assert.True(t, errors.Is(err, errors.ErrEmbeddingUnavailable))

	stats, _ := f.store.Stats(context.Background(), "")
	assert.Zero(t, stats.Nodes)
}

func TestProcessDocumentQuotaExceeded(t *testing.T) {
	f := newFixture(t, embedding.Config{MonthlyTokenLimit: 5})

	_, err := f.srv.ProcessDocument(context.Background(), document, meta())
	assert.True(t, errors.Is(err, errors.ErrQuotaExceeded))
	assert.Equal(t, 0, f.driver.Calls())

	stats, _ := f.store.Stats(context.Background(), "")
	assert.Zero(t, stats.Nodes)
}

type failingRelationships struct {
	store.KnowledgeGraphStore
}

func (failingRelationships) InsertRelationships(ctx context.Context, rels []*types.KnowledgeRelationship) error {
	return errors.NewStorageError("KnowledgeGraphStore.InsertRelationships", assert.AnError)
}

func TestProcessDocumentCleansUpAfterRelationshipFailure(t *testing.T) {
	driver := testutils.NewHashDriver(384)
	embedder := testutils.NewEmbeddingProvider(t, driver, embedding.Config{})
	inner := memstore.New(embedder)
	srv, err := New(failingRelationships{inner}, embedder, testConfig)
	require.NoError(t, err)

	_, err = srv.ProcessDocument(context.Background(), document, meta())
	require.True(t, errors.Is(err, errors.ErrStorage))
	ce, _ := errors.As(err)
	assert.Equal(t, "KnowledgeGraphStore.InsertRelationships", ce.Operation())

	stored, _ := inner.GetByMaterial(context.Background(), "m1")
	assert.Empty(t, stored)
}

func TestQueryKnowledge(t *testing.T) {
	f := newFixture(t, embedding.Config{})
	ctx := context.Background()
	_, err := f.srv.ProcessDocument(ctx, document, meta())
	require.NoError(t, err)

	res, err := f.srv.QueryKnowledge(ctx, "mitochondria", "bio-101", QueryOptions{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Contains(t, strings.ToLower(res[0].Node.Content), "mitochondria")
	for i := 1; i < len(res); i++ {
		assert.GreaterOrEqual(t, res[i-1].Similarity, res[i].Similarity)
	}

	res, err = f.srv.QueryKnowledge(ctx, "quantum chromodynamics", "bio-101", QueryOptions{})
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Empty(t, res)

	res, err = f.srv.QueryKnowledge(ctx, "mitochondria", "chem-201", QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, res)

	_, err = f.srv.QueryKnowledge(ctx, " ", "bio-101", QueryOptions{})
	assert.True(t, errors.Is(err, errors.ErrValidation))
	_, err = f.srv.QueryKnowledge(ctx, "mitochondria", "", QueryOptions{})
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestUpdateKnowledgeBase(t *testing.T) {
	f := newFixture(t, embedding.Config{})
	ctx := context.Background()
	_, err := f.srv.ProcessDocument(ctx, document, meta())
	require.NoError(t, err)

	updated := "Genetics studies heredity. Genes are made of DNA."
	res, err := f.srv.UpdateKnowledgeBase(ctx, "m1", "bio-101", updated)
	require.NoError(t, err)
	require.Len(t, res.Nodes, 1)

	stored, err := f.store.GetByMaterial(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, updated, stored[0].Content)
	assert.Equal(t, "chapter1.pdf", stored[0].Metadata[types.METADATA_FILE_NAME])

	stats, _ := f.store.Stats(ctx, "bio-101")
	assert.Equal(t, types.GraphStats{Nodes: 1, NodesWithEmbedding: 1, Relationships: 0}, stats)

	_, err = f.srv.UpdateKnowledgeBase(ctx, "", "bio-101", updated)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestDeleteFromKnowledgeBase(t *testing.T) {
	f := newFixture(t, embedding.Config{})
	ctx := context.Background()
	res, err := f.srv.ProcessDocument(ctx, document, meta())
	require.NoError(t, err)

	deleted, err := f.srv.DeleteFromKnowledgeBase(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(len(res.Nodes)), deleted)

	nodes, err := f.srv.MaterialNodes(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, nodes)

	stats, _ := f.store.Stats(ctx, "")
	assert.Equal(t, types.GraphStats{}, stats)

	_, err = f.srv.DeleteFromKnowledgeBase(ctx, "")
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestStatus(t *testing.T) {
	f := newFixture(t, embedding.Config{})
	ctx := context.Background()
	_, err := f.srv.ProcessDocument(ctx, document, meta())
	require.NoError(t, err)

	status := f.srv.Status(ctx)
	assert.True(t, status.Healthy)
	assert.Equal(t, store.KIND_MEMORY, status.Adapter)
	assert.Equal(t, "vector index disabled by configuration", status.AdapterReason)
	assert.True(t, status.EmbeddingReachable)
	assert.Equal(t, "hash-embedding", status.EmbeddingModel)
	assert.Positive(t, status.Nodes)
	assert.InDelta(t, 100.0, status.EmbeddingCoverage, 1e-9)
	assert.Positive(t, status.TokenUsage.Used)

	f.driver.Fail = func(int, []string) error { return assert.AnError }
	status = f.srv.Status(ctx)
	assert.False(t, status.Healthy)
	assert.False(t, status.EmbeddingReachable)
	assert.NotEmpty(t, status.EmbeddingError)
}

func TestAdminStats(t *testing.T) {
	f := newFixture(t, embedding.Config{})
	ctx := context.Background()
	_, err := f.srv.ProcessDocument(ctx, document, meta())
	require.NoError(t, err)

	stats, err := f.srv.AdminStats(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, store.KIND_MEMORY, stats.Adapter)
	require.Len(t, stats.TopMaterials, 1)
	assert.Equal(t, "m1", stats.TopMaterials[0].MaterialID)
	assert.Positive(t, stats.StorageBytes)
}

// the service contract holds when the factory falls back to the in-memory store
func TestServiceOnFactoryFallback(t *testing.T) {
	driver := testutils.NewHashDriver(384)
	embedder := testutils.NewEmbeddingProvider(t, driver, embedding.Config{})
	factory := graphstore.NewFactory(graphstore.Config{VectorIndexEnabled: false}, embedder)
	s := factory.Create(context.Background())

	srv, err := New(s, embedder, testConfig, WithAdapterReason(factory.Decision().Reason))
	require.NoError(t, err)

	res, err := srv.ProcessDocument(context.Background(), document, meta())
	require.NoError(t, err)
	require.NotEmpty(t, res.Nodes)

	results, err := srv.QueryKnowledge(context.Background(), res.Nodes[0].Content, "bio-101", QueryOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, res.Nodes[0].ID, results[0].Node.ID)
	assert.Equal(t, float32(1), results[0].Similarity)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(memstore.New(nil), nil, Config{ChunkSize: 100, ChunkOverlap: 100})
	assert.Error(t, err)
}

func TestNewRejectsChunkLongerThanEmbeddingInput(t *testing.T) {
	driver := testutils.NewHashDriver(384)
	embedder := testutils.NewEmbeddingProvider(t, driver, embedding.Config{MaxInputLength: 500})

	_, err := New(memstore.New(embedder), embedder, Config{ChunkSize: 501})
	assert.ErrorContains(t, err, "exceeds embedding max input length")

	_, err = New(memstore.New(embedder), embedder, Config{ChunkSize: 500, ChunkOverlap: 50})
	assert.NoError(t, err)
}

func TestProcessDocumentWithoutSimilarEdges(t *testing.T) {
	driver := testutils.NewHashDriver(384)
	embedder := testutils.NewEmbeddingProvider(t, driver, embedding.Config{})
	// 阈值为 0 时所有非相邻切片都满足条件，上限为 0 则一条也不生成
	srv, err := New(memstore.New(embedder), embedder, Config{
		ChunkSize:              80,
		ChunkOverlap:           20,
		SimilarEdgeThreshold:   -1,
		MaxSimilarEdgesPerNode: -1,
	})
	require.NoError(t, err)

	res, err := srv.ProcessDocument(context.Background(), document, meta())
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(res.Nodes), 3)
	assert.Len(t, res.Relationships, len(res.Nodes)-1)
	for _, r := range res.Relationships {
		assert.Equal(t, types.RELATIONSHIP_SEQUENTIAL, r.RelationshipType)
	}
}

func TestServiceOnPostgres(t *testing.T) {
	dsn := testutils.PostgresDSNOrSkip(t)
	ctx := context.Background()

	driver := testutils.NewHashDriver(384)
	embedder := testutils.NewEmbeddingProvider(t, driver, embedding.Config{})
	factory := graphstore.NewFactory(graphstore.Config{
		VectorIndexEnabled: true,
		PostgresDSN:        dsn,
		Dimensions:         384,
	}, embedder)
	s := factory.Create(ctx)
	if s.Kind() != store.KIND_DATABASE {
		t.Skipf("pgvector unavailable: %s", factory.Decision().Reason)
	}

	srv, err := New(s, embedder, testConfig)
	require.NoError(t, err)

	materialID := "it-" + utils.GenUniqIDStr()
	m := DocumentMeta{MaterialID: materialID, CourseID: "it-course"}
	t.Cleanup(func() {
		srv.DeleteFromKnowledgeBase(context.Background(), materialID)
	})

	res, err := srv.ProcessDocument(ctx, document, m)
	require.NoError(t, err)

	results, err := srv.QueryKnowledge(ctx, res.Nodes[1].Content, "it-course", QueryOptions{MaterialID: materialID})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, res.Nodes[1].ID, results[0].Node.ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-4)

	_, err = srv.UpdateKnowledgeBase(ctx, materialID, "it-course", "Genetics studies heredity.")
	require.NoError(t, err)
	nodes, err := srv.MaterialNodes(ctx, materialID)
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	deleted, err := srv.DeleteFromKnowledgeBase(ctx, materialID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
