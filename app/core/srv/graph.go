package srv

import (
	"context"

	"github.com/scholarly-ai/scholarly/app/store/graphstore"
	"github.com/scholarly-ai/scholarly/pkg/graphrag"
)

// ApplyGraphRAG 需在 ApplyEmbedding 之后执行，存储实现在此时完成一次性探测
func ApplyGraphRAG(storeCfg graphstore.Config, cfg graphrag.Config, opts ...graphstore.Option) ApplyFunc {
	return func(s *Srv) {
		if s.embedder == nil {
			panic("graphrag requires an embedding provider")
		}

		s.factory = graphstore.NewFactory(storeCfg, s.embedder, opts...)
		knowledgeStore := s.factory.Create(context.Background())

		var err error
		if s.graph, err = graphrag.New(knowledgeStore, s.embedder, cfg,
			graphrag.WithAdapterReason(s.factory.Decision().Reason)); err != nil {
			panic(err)
		}
	}
}
