package srv

import (
	"fmt"
	"log/slog"

	"github.com/scholarly-ai/scholarly/pkg/ai"
	"github.com/scholarly-ai/scholarly/pkg/ai/ollama"
	"github.com/scholarly-ai/scholarly/pkg/ai/openai"
	"github.com/scholarly-ai/scholarly/pkg/embedding"
)

type ApplyFunc func(s *Srv)

type EmbeddingDriverConfig struct {
	Token    string
	Endpoint string
}

// SetupEmbeddingDriver remote 使用 OpenAI 兼容接口，local 使用本地 ollama
func SetupEmbeddingDriver(cfg embedding.Config, driverCfg EmbeddingDriverConfig) (ai.Embedder, error) {
	switch cfg.Provider {
	case ai.PROVIDER_REMOTE:
		return openai.New(driverCfg.Token, driverCfg.Endpoint, cfg.Model, cfg.Dimensions), nil
	case ai.PROVIDER_LOCAL:
		return ollama.New(driverCfg.Token, driverCfg.Endpoint, cfg.Model, cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// ApplyEmbedding driver 为空时按 cfg.Provider 创建
func ApplyEmbedding(driver ai.Embedder, cfg embedding.Config, driverCfg EmbeddingDriverConfig, m *embedding.Metrics) ApplyFunc {
	return func(s *Srv) {
		var err error
		if driver == nil {
			if driver, err = SetupEmbeddingDriver(cfg, driverCfg); err != nil {
				panic(err)
			}
		}

		counter := embedding.NewTokenCounter(cfg.MonthlyTokenLimit, nil)
		if s.embedder, err = embedding.NewProvider(driver, counter, cfg, embedding.WithMetrics(m)); err != nil {
			panic(err)
		}
		slog.Info("embedding provider ready", slog.String("component", "srv.ApplyEmbedding"),
			slog.String("provider", cfg.Provider), slog.String("model", driver.Model()),
			slog.Int("dimensions", cfg.Dimensions), slog.Int64("monthly_token_limit", cfg.MonthlyTokenLimit))
	}
}
