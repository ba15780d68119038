package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/pgvector/pgvector-go"

	"github.com/scholarly-ai/scholarly/pkg/errors"
	"github.com/scholarly-ai/scholarly/pkg/i18n"
)

const MAX_NODE_CONTENT_LENGTH = 100000

var SUPPORTED_EMBEDDING_DIMENSIONS = map[int]bool{
	384:  true,
	768:  true,
	1536: true,
	3072: true,
}

// KnowledgeNode 课程资料切分后的一个片段，(material_id, chunk_index) 唯一
type KnowledgeNode struct {
	ID         string           `json:"id" db:"id"`
	MaterialID string           `json:"material_id" db:"material_id"`
	CourseID   string           `json:"course_id" db:"course_id"`
	Content    string           `json:"content" db:"content"`
	ChunkIndex int              `json:"chunk_index" db:"chunk_index"`
	Embedding  *pgvector.Vector `json:"-" db:"embedding"` // 为空表示尚未生成向量
	Metadata   NodeMetadata     `json:"metadata" db:"metadata"`
	CreatedAt  int64            `json:"created_at" db:"created_at"`
	UpdatedAt  int64            `json:"updated_at" db:"updated_at"`
}

func (n *KnowledgeNode) HasEmbedding() bool {
	return n.Embedding != nil && len(n.Embedding.Slice()) > 0
}

func (n *KnowledgeNode) EmbeddingSlice() []float32 {
	if n.Embedding == nil {
		return nil
	}
	return n.Embedding.Slice()
}

func (n *KnowledgeNode) SetEmbedding(vec []float32) {
	v := pgvector.NewVector(vec)
	n.Embedding = &v
}

// Validate 校验节点字段，dimensions 为当前模型的向量维度，0 表示不校验维度
func (n *KnowledgeNode) Validate(dimensions int) error {
	trace := "KnowledgeNode.Validate"
	if n.MaterialID == "" {
		return errors.NewValidationError(trace, i18n.ERROR_MATERIAL_ID_REQUIRED)
	}
	if n.CourseID == "" {
		return errors.NewValidationError(trace, i18n.ERROR_COURSE_ID_REQUIRED)
	}
	if n.Content == "" {
		return errors.NewValidationError(trace, i18n.ERROR_CONTENT_EMPTY)
	}
	if utf8.RuneCountInString(n.Content) > MAX_NODE_CONTENT_LENGTH {
		return errors.NewValidationError(trace, i18n.ERROR_CONTENT_TOO_LONG)
	}
	if n.ChunkIndex < 0 {
		return errors.NewValidationError(trace, i18n.ERROR_CHUNK_INDEX_INVALID)
	}
	if dimensions > 0 && n.Embedding != nil && len(n.Embedding.Slice()) != dimensions {
		return errors.NewValidationError(trace, i18n.ERROR_EMBEDDING_DIMENSIONS).WithData(map[string]interface{}{
			"expected": dimensions,
			"actual":   len(n.Embedding.Slice()),
		})
	}
	return nil
}

// NodeMetadata 节点元数据，常用 key 见 METADATA_*
type NodeMetadata map[string]interface{}

const (
	METADATA_FILE_NAME    = "file_name"
	METADATA_FILE_TYPE    = "file_type"
	METADATA_PROCESSED_AT = "processed_at"
	METADATA_LANGUAGE     = "language"
	METADATA_CHUNK_COUNT  = "chunk_count"
)

func (m NodeMetadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *NodeMetadata) Scan(src interface{}) error {
	switch src := src.(type) {
	case []byte:
		return m.scanBytes(src)
	case string:
		return m.scanBytes([]byte(src))
	case nil:
		*m = nil
		return nil
	}

	return fmt.Errorf("pq: cannot convert %T to NodeMetadata", src)
}

func (m *NodeMetadata) scanBytes(src []byte) error {
	if len(src) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(src, m)
}
