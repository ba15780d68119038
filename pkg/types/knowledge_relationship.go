package types

import (
	"github.com/scholarly-ai/scholarly/pkg/errors"
	"github.com/scholarly-ai/scholarly/pkg/i18n"
)

type RelationshipType string

const (
	RELATIONSHIP_SEQUENTIAL       RelationshipType = "sequential"
	RELATIONSHIP_SEMANTIC_SIMILAR RelationshipType = "semantic-similar"
	RELATIONSHIP_CROSS_REFERENCE  RelationshipType = "cross-reference"
)

func (t RelationshipType) Valid() bool {
	switch t {
	case RELATIONSHIP_SEQUENTIAL, RELATIONSHIP_SEMANTIC_SIMILAR, RELATIONSHIP_CROSS_REFERENCE:
		return true
	}
	return false
}

// KnowledgeRelationship 两个节点之间的有向边，(source, target, type) 唯一
type KnowledgeRelationship struct {
	ID               string           `json:"id" db:"id"`
	SourceNodeID     string           `json:"source_node_id" db:"source_node_id"`
	TargetNodeID     string           `json:"target_node_id" db:"target_node_id"`
	RelationshipType RelationshipType `json:"relationship_type" db:"relationship_type"`
	Weight           float32          `json:"weight" db:"weight"`
	CourseID         string           `json:"course_id" db:"course_id"`
	CreatedAt        int64            `json:"created_at" db:"created_at"`
	UpdatedAt        int64            `json:"updated_at" db:"updated_at"`
}

type RelationshipKey struct {
	SourceNodeID     string
	TargetNodeID     string
	RelationshipType RelationshipType
}

func (r *KnowledgeRelationship) Key() RelationshipKey {
	return RelationshipKey{
		SourceNodeID:     r.SourceNodeID,
		TargetNodeID:     r.TargetNodeID,
		RelationshipType: r.RelationshipType,
	}
}

// Validate 只校验边自身的字段，节点存在性与课程一致性由存储层检查
func (r *KnowledgeRelationship) Validate() error {
	trace := "KnowledgeRelationship.Validate"
	if r.SourceNodeID == "" || r.TargetNodeID == "" {
		return errors.NewValidationError(trace, i18n.ERROR_RELATIONSHIP_INVALID)
	}
	if r.SourceNodeID == r.TargetNodeID {
		return errors.NewValidationError(trace, i18n.ERROR_RELATIONSHIP_SELF)
	}
	if !r.RelationshipType.Valid() {
		return errors.NewValidationError(trace, i18n.ERROR_RELATIONSHIP_TYPE)
	}
	if r.Weight < 0 || r.Weight > 1 {
		return errors.NewValidationError(trace, i18n.ERROR_RELATIONSHIP_WEIGHT)
	}
	return nil
}
