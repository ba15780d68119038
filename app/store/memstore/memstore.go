package memstore

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/scholarly-ai/scholarly/app/store"
	"github.com/scholarly-ai/scholarly/pkg/errors"
	"github.com/scholarly-ai/scholarly/pkg/i18n"
	"github.com/scholarly-ai/scholarly/pkg/types"
)

type chunkKey struct {
	materialID string
	chunkIndex int
}

// Store 进程内的 KnowledgeGraphStore 实现，数据不落盘，进程退出即丢失。
// 检索只做关键词匹配，不使用向量
type Store struct {
	embedder store.Embedder
	observer store.SearchObserver

	mu         sync.RWMutex
	nodes      map[string]*types.KnowledgeNode
	byMaterial map[string]map[string]struct{}
	chunks     map[chunkKey]string
	rels       map[types.RelationshipKey]*types.KnowledgeRelationship
}

type Option func(s *Store)

func WithSearchObserver(f store.SearchObserver) Option {
	return func(s *Store) {
		s.observer = f
	}
}

// New embedder 为空时节点不会生成向量
func New(embedder store.Embedder, opts ...Option) *Store {
	s := &Store{
		embedder:   embedder,
		nodes:      make(map[string]*types.KnowledgeNode),
		byMaterial: make(map[string]map[string]struct{}),
		chunks:     make(map[chunkKey]string),
		rels:       make(map[types.RelationshipKey]*types.KnowledgeRelationship),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ store.KnowledgeGraphStore = (*Store)(nil)

func (s *Store) Kind() string {
	return store.KIND_MEMORY
}

func copyNode(n *types.KnowledgeNode) *types.KnowledgeNode {
	c := *n
	c.Metadata = maps.Clone(n.Metadata)
	return &c
}

func copyRelationship(r *types.KnowledgeRelationship) *types.KnowledgeRelationship {
	c := *r
	return &c
}

// checkConflicts 需持有锁，replacing 中的节点视为已删除
func (s *Store) checkConflicts(trace string, nodes []*types.KnowledgeNode, replacing map[string]struct{}) error {
	for i, n := range nodes {
		if _, exist := s.nodes[n.ID]; exist {
			if _, ok := replacing[n.ID]; !ok {
				return errors.NewValidationError(trace, i18n.ERROR_CHUNK_DUPLICATED).WithData(map[string]interface{}{"index": i, "id": n.ID})
			}
		}
		if id, exist := s.chunks[chunkKey{materialID: n.MaterialID, chunkIndex: n.ChunkIndex}]; exist {
			if _, ok := replacing[id]; !ok {
				return errors.NewValidationError(trace, i18n.ERROR_CHUNK_DUPLICATED).WithData(map[string]interface{}{"index": i})
			}
		}
	}
	return nil
}

// 需持有写锁
func (s *Store) putNodes(nodes []*types.KnowledgeNode) {
	for _, n := range nodes {
		c := copyNode(n)
		s.nodes[c.ID] = c
		s.chunks[chunkKey{materialID: c.MaterialID, chunkIndex: c.ChunkIndex}] = c.ID
		ids, ok := s.byMaterial[c.MaterialID]
		if !ok {
			ids = make(map[string]struct{})
			s.byMaterial[c.MaterialID] = ids
		}
		ids[c.ID] = struct{}{}
	}
}

// 需持有写锁
func (s *Store) upsertRelationships(rels []*types.KnowledgeRelationship) {
	for _, r := range rels {
		if exist, ok := s.rels[r.Key()]; ok {
			exist.Weight = r.Weight
			exist.UpdatedAt = r.UpdatedAt
			continue
		}
		s.rels[r.Key()] = copyRelationship(r)
	}
}

// 需持有写锁，返回删除的节点数
func (s *Store) removeMaterial(materialID string) int64 {
	ids := s.byMaterial[materialID]
	if len(ids) == 0 {
		return 0
	}
	for key := range s.rels {
		_, source := ids[key.SourceNodeID]
		_, target := ids[key.TargetNodeID]
		if source || target {
			delete(s.rels, key)
		}
	}
	for id := range ids {
		n := s.nodes[id]
		delete(s.chunks, chunkKey{materialID: n.MaterialID, chunkIndex: n.ChunkIndex})
		delete(s.nodes, id)
	}
	delete(s.byMaterial, materialID)
	return int64(len(ids))
}

func (s *Store) InsertNodes(ctx context.Context, nodes []*types.KnowledgeNode) error {
	op := "KnowledgeGraphStore.InsertNodes"
	if len(nodes) == 0 {
		return nil
	}
	if err := store.PrepareNodes(ctx, s.embedder, nodes); err != nil {
		return errors.Trace(op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkConflicts(op, nodes, nil); err != nil {
		return err
	}
	s.putNodes(nodes)
	return nil
}

func (s *Store) InsertRelationships(ctx context.Context, rels []*types.KnowledgeRelationship) error {
	op := "KnowledgeGraphStore.InsertRelationships"
	if len(rels) == 0 {
		return nil
	}
	rels, err := store.PrepareRelationships(rels)
	if err != nil {
		return errors.Trace(op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err = store.AssignCourse(rels, s.courseOf(nil, nil)); err != nil {
		return errors.Trace(op, err)
	}
	s.upsertRelationships(rels)
	return nil
}

// courseOf 需持有锁，pending 中的节点优先，removed 中的节点视为不存在
func (s *Store) courseOf(pending map[string]string, removed map[string]struct{}) func(id string) (string, bool) {
	return func(id string) (string, bool) {
		if c, ok := pending[id]; ok {
			return c, true
		}
		if _, ok := removed[id]; ok {
			return "", false
		}
		n, ok := s.nodes[id]
		if !ok {
			return "", false
		}
		return n.CourseID, true
	}
}

func (s *Store) DeleteByMaterial(ctx context.Context, materialID string) (int64, error) {
	if materialID == "" {
		return 0, errors.NewValidationError("KnowledgeGraphStore.DeleteByMaterial", i18n.ERROR_MATERIAL_ID_REQUIRED)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeMaterial(materialID), nil
}

func (s *Store) GetByMaterial(ctx context.Context, materialID string) ([]types.KnowledgeNode, error) {
	if materialID == "" {
		return nil, errors.NewValidationError("KnowledgeGraphStore.GetByMaterial", i18n.ERROR_MATERIAL_ID_REQUIRED)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]types.KnowledgeNode, 0, len(s.byMaterial[materialID]))
	for id := range s.byMaterial[materialID] {
		res = append(res, *copyNode(s.nodes[id]))
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].ChunkIndex < res[j].ChunkIndex
	})
	return res, nil
}

// ReplaceMaterial 删除与写入在同一把写锁内完成，读者看不到中间状态
func (s *Store) ReplaceMaterial(ctx context.Context, materialID string, nodes []*types.KnowledgeNode, rels []*types.KnowledgeRelationship) (int64, error) {
	op := "KnowledgeGraphStore.ReplaceMaterial"
	if err := store.CheckMaterial(materialID, nodes); err != nil {
		return 0, errors.Trace(op, err)
	}
	if err := store.PrepareNodes(ctx, s.embedder, nodes); err != nil {
		return 0, errors.Trace(op, err)
	}
	rels, err := store.PrepareRelationships(rels)
	if err != nil {
		return 0, errors.Trace(op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.byMaterial[materialID]
	if err = s.checkConflicts(op, nodes, removed); err != nil {
		return 0, err
	}
	pending := make(map[string]string, len(nodes))
	for _, n := range nodes {
		pending[n.ID] = n.CourseID
	}
	if err = store.AssignCourse(rels, s.courseOf(pending, removed)); err != nil {
		return 0, errors.Trace(op, err)
	}

	replaced := s.removeMaterial(materialID)
	s.putNodes(nodes)
	s.upsertRelationships(rels)
	return replaced, nil
}

func (s *Store) Stats(ctx context.Context, courseID string) (types.GraphStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats(courseID), nil
}

// 需持有锁
func (s *Store) stats(courseID string) types.GraphStats {
	var res types.GraphStats
	for _, n := range s.nodes {
		if courseID != "" && n.CourseID != courseID {
			continue
		}
		res.Nodes++
		if n.HasEmbedding() {
			res.NodesWithEmbedding++
		}
	}
	for _, r := range s.rels {
		if courseID == "" || r.CourseID == courseID {
			res.Relationships++
		}
	}
	return res
}

func (s *Store) AdminStats(ctx context.Context, topN int) (types.AdminStats, error) {
	if topN <= 0 {
		topN = store.DEFAULT_ADMIN_TOP_N
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := types.AdminStats{
		Adapter:      store.KIND_MEMORY,
		Graph:        s.stats(""),
		TopMaterials: []types.MaterialNodeCount{},
		RecentNodes:  []types.NodeSummary{},
	}

	for materialID, ids := range s.byMaterial {
		var courseID string
		for id := range ids {
			courseID = s.nodes[id].CourseID
			break
		}
		res.TopMaterials = append(res.TopMaterials, types.MaterialNodeCount{
			MaterialID: materialID,
			CourseID:   courseID,
			Nodes:      int64(len(ids)),
		})
	}
	sort.Slice(res.TopMaterials, func(i, j int) bool {
		a, b := res.TopMaterials[i], res.TopMaterials[j]
		if a.Nodes != b.Nodes {
			return a.Nodes > b.Nodes
		}
		return a.MaterialID < b.MaterialID
	})
	if len(res.TopMaterials) > topN {
		res.TopMaterials = res.TopMaterials[:topN]
	}

	recent := make([]*types.KnowledgeNode, 0, len(s.nodes))
	for _, n := range s.nodes {
		recent = append(recent, n)
		// content + float32 向量
		res.StorageBytes += int64(len(n.Content)) + 4*int64(len(n.EmbeddingSlice()))
	}
	sort.Slice(recent, func(i, j int) bool {
		if recent[i].CreatedAt != recent[j].CreatedAt {
			return recent[i].CreatedAt > recent[j].CreatedAt
		}
		return recent[i].ID > recent[j].ID
	})
	if len(recent) > topN {
		recent = recent[:topN]
	}
	for _, n := range recent {
		res.RecentNodes = append(res.RecentNodes, types.NodeSummary{
			ID:         n.ID,
			MaterialID: n.MaterialID,
			CourseID:   n.CourseID,
			ChunkIndex: n.ChunkIndex,
			Preview:    truncate(n.Content),
			CreatedAt:  n.CreatedAt,
		})
	}
	return res, nil
}
