package graphrag

import (
	"context"
	"time"

	"github.com/scholarly-ai/scholarly/pkg/embedding"
	"github.com/scholarly-ai/scholarly/pkg/errors"
	"github.com/scholarly-ai/scholarly/pkg/types"
)

const PING_TIMEOUT = 5 * time.Second

type Status struct {
	Healthy            bool                         `json:"healthy"`
	Adapter            string                       `json:"adapter"`
	AdapterReason      string                       `json:"adapter_reason,omitempty"`
	EmbeddingModel     string                       `json:"embedding_model"`
	EmbeddingReachable bool                         `json:"embedding_reachable"`
	EmbeddingError     string                       `json:"embedding_error,omitempty"`
	StorageError       string                       `json:"storage_error,omitempty"`
	Nodes              int64                        `json:"nodes"`
	Relationships      int64                        `json:"relationships"`
	EmbeddingCoverage  float64                      `json:"embedding_coverage"`
	TokenUsage         embedding.TokenUsageSnapshot `json:"token_usage"`
}

// errorMessage 优先返回底层原因，状态接口只面向运维
func errorMessage(err error) string {
	if ce, ok := errors.As(err); ok {
		if cause := ce.Unwrap(); cause != nil {
			return cause.Error()
		}
		return ce.Message()
	}
	return err.Error()
}

// Status 只读的运行状态，任何一项检查失败都不会返回错误
func (s *Service) Status(ctx context.Context) Status {
	res := Status{
		Adapter:        s.store.Kind(),
		AdapterReason:  s.adapterReason,
		EmbeddingModel: s.embedder.Model(),
		TokenUsage:     s.embedder.Usage(),
	}

	pingCtx, cancel := context.WithTimeout(ctx, PING_TIMEOUT)
	defer cancel()
	if err := s.embedder.Ping(pingCtx); err != nil {
		res.EmbeddingError = errorMessage(err)
	} else {
		res.EmbeddingReachable = true
	}

	stats, err := s.store.Stats(ctx, "")
	if err != nil {
		res.StorageError = errorMessage(err)
	} else {
		res.Nodes = stats.Nodes
		res.Relationships = stats.Relationships
		res.EmbeddingCoverage = stats.EmbeddingCoverage()
	}

	res.Healthy = res.EmbeddingReachable && res.StorageError == ""
	return res
}

func (s *Service) AdminStats(ctx context.Context, topN int) (types.AdminStats, error) {
	res, err := s.store.AdminStats(ctx, topN)
	if err != nil {
		return types.AdminStats{}, errors.Trace("GraphRAGService.AdminStats", err)
	}
	return res, nil
}
