package types

type GraphStats struct {
	Nodes              int64 `json:"nodes" db:"nodes"`
	NodesWithEmbedding int64 `json:"nodes_with_embedding" db:"nodes_with_embedding"`
	Relationships      int64 `json:"relationships" db:"relationships"`
}

// EmbeddingCoverage 已生成向量的节点占比，百分数
func (s GraphStats) EmbeddingCoverage() float64 {
	if s.Nodes == 0 {
		return 0
	}
	return float64(s.NodesWithEmbedding) * 100 / float64(s.Nodes)
}

type MaterialNodeCount struct {
	MaterialID string `json:"material_id" db:"material_id"`
	CourseID   string `json:"course_id" db:"course_id"`
	Nodes      int64  `json:"nodes" db:"nodes"`
}

type NodeSummary struct {
	ID         string `json:"id" db:"id"`
	MaterialID string `json:"material_id" db:"material_id"`
	CourseID   string `json:"course_id" db:"course_id"`
	ChunkIndex int    `json:"chunk_index" db:"chunk_index"`
	Preview    string `json:"preview" db:"preview"`
	CreatedAt  int64  `json:"created_at" db:"created_at"`
}

const NODE_PREVIEW_LENGTH = 120

type AdminStats struct {
	Adapter      string              `json:"adapter"`
	Graph        GraphStats          `json:"graph"`
	TopMaterials []MaterialNodeCount `json:"top_materials"`
	RecentNodes  []NodeSummary       `json:"recent_nodes"`
	StorageBytes int64               `json:"storage_bytes"`
}
