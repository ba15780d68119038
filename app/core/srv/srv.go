package srv

import (
	"github.com/scholarly-ai/scholarly/app/store/graphstore"
	"github.com/scholarly-ai/scholarly/pkg/embedding"
	"github.com/scholarly-ai/scholarly/pkg/graphrag"
)

type Srv struct {
	embedder *embedding.Provider
	factory  *graphstore.Factory
	graph    *graphrag.Service
}

// SetupSrvs 按顺序执行 opts，后面的 ApplyFunc 可以依赖前面已初始化的服务
func SetupSrvs(opts ...ApplyFunc) *Srv {
	a := &Srv{}

	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (s *Srv) Embedder() *embedding.Provider {
	return s.embedder
}

func (s *Srv) GraphRAG() *graphrag.Service {
	return s.graph
}

// StoreDecision 存储实现的选择结果
func (s *Srv) StoreDecision() graphstore.Decision {
	if s.factory == nil {
		return graphstore.Decision{}
	}
	return s.factory.Decision()
}
