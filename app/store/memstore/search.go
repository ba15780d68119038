package memstore

import (
	"context"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/scholarly-ai/scholarly/app/store"
	"github.com/scholarly-ai/scholarly/pkg/errors"
	"github.com/scholarly-ai/scholarly/pkg/i18n"
	"github.com/scholarly-ai/scholarly/pkg/types"
	"github.com/scholarly-ai/scholarly/pkg/utils"
)

// 参与匹配的查询词最少字符数
const MIN_TERM_LENGTH = 2

func truncate(content string) string {
	return utils.TruncateRunes(content, types.NODE_PREVIEW_LENGTH)
}

func normalize(s string) string {
	return strings.ToLower(utils.NormalizeText(s))
}

func queryTerms(query string) []string {
	words := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return lo.Uniq(lo.Filter(words, func(w string, _ int) bool {
		return utf8.RuneCountInString(w) >= MIN_TERM_LENGTH
	}))
}

// keywordScore 整句命中为 1，否则为命中的查询词占比
func keywordScore(query string, terms []string, content string) float32 {
	content = normalize(content)
	if strings.Contains(content, query) {
		return 1
	}
	if len(terms) == 0 {
		return 0
	}
	matched := lo.CountBy(terms, func(t string) bool {
		return strings.Contains(content, t)
	})
	return float32(matched) / float32(len(terms))
}

// Search 忽略 query.Vector，按关键词打分。得分为 0 的节点不会返回，
// 只有向量没有文本的查询没有可匹配的关键词，返回空结果
func (s *Store) Search(ctx context.Context, query types.SearchQuery, opts types.SearchOptions) ([]types.RankedResult, error) {
	op := "KnowledgeGraphStore.Search"
	text := normalize(query.Text)
	if text == "" {
		if len(query.Vector) > 0 {
			return []types.RankedResult{}, nil
		}
		return nil, errors.NewValidationError(op, i18n.ERROR_QUERY_EMPTY)
	}
	opts = opts.Normalize()
	terms := queryTerms(text)

	s.mu.RLock()
	res := []types.RankedResult{}
	for _, n := range s.nodes {
		if opts.CourseID != "" && n.CourseID != opts.CourseID {
			continue
		}
		if opts.MaterialID != "" && n.MaterialID != opts.MaterialID {
			continue
		}
		score := keywordScore(text, terms, n.Content)
		if score <= 0 || score < opts.Threshold() {
			continue
		}
		res = append(res, types.RankedResult{Node: *copyNode(n), Similarity: score})
	}
	s.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool {
		a, b := res[i], res[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.Node.ChunkIndex != b.Node.ChunkIndex {
			return a.Node.ChunkIndex < b.Node.ChunkIndex
		}
		return a.Node.ID < b.Node.ID
	})
	if len(res) > opts.Limit {
		res = res[:opts.Limit]
	}

	if s.observer != nil {
		s.observer(store.KIND_MEMORY, false)
	}
	return res, nil
}
