package types

import (
	sq "github.com/Masterminds/squirrel"
)

const (
	DEFAULT_SEARCH_LIMIT     = 10
	MAX_SEARCH_LIMIT         = 100
	DEFAULT_SEARCH_THRESHOLD = 0.3
)

// SearchQuery 检索输入，Vector 为空时由存储实现决定如何使用 Text
type SearchQuery struct {
	Text   string
	Vector []float32
}

type SearchOptions struct {
	CourseID            string
	MaterialID          string
	Limit               int
	SimilarityThreshold *float32
}

// Normalize 填充默认值，limit 默认 10，threshold 默认 0.3 并限制在 [0,1]
func (opts SearchOptions) Normalize() SearchOptions {
	if opts.Limit <= 0 {
		opts.Limit = DEFAULT_SEARCH_LIMIT
	}
	if opts.Limit > MAX_SEARCH_LIMIT {
		opts.Limit = MAX_SEARCH_LIMIT
	}
	threshold := float32(DEFAULT_SEARCH_THRESHOLD)
	if opts.SimilarityThreshold != nil {
		threshold = *opts.SimilarityThreshold
	}
	if threshold < 0 {
		threshold = 0
	}
	if threshold > 1 {
		threshold = 1
	}
	opts.SimilarityThreshold = &threshold
	return opts
}

func (opts SearchOptions) Threshold() float32 {
	if opts.SimilarityThreshold == nil {
		return DEFAULT_SEARCH_THRESHOLD
	}
	return *opts.SimilarityThreshold
}

func (opts SearchOptions) Apply(query *sq.SelectBuilder) {
	if opts.CourseID != "" {
		*query = query.Where(sq.Eq{"course_id": opts.CourseID})
	}
	if opts.MaterialID != "" {
		*query = query.Where(sq.Eq{"material_id": opts.MaterialID})
	}
}

type RankedResult struct {
	Node       KnowledgeNode `json:"node"`
	Similarity float32       `json:"similarity"`
}
