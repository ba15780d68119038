package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"

	"github.com/scholarly-ai/scholarly/pkg/ai"
)

const (
	NAME = "ollama"

	DEFAULT_ENDPOINT = "http://localhost:11434/v1"
)

// Driver 本地 ollama 服务，走 OpenAI 兼容接口
type Driver struct {
	client     *openai.Client
	model      string
	dimensions int
}

func New(token, endpoint, model string, dimensions int) *Driver {
	if endpoint == "" {
		endpoint = DEFAULT_ENDPOINT
	}
	cfg := openai.DefaultConfig(token)
	cfg.BaseURL = endpoint

	if model == "" {
		model = "nomic-embed-text"
	}

	return &Driver{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		dimensions: dimensions,
	}
}

func (s *Driver) Model() string {
	return s.model
}

func (s *Driver) Dimensions() int {
	return s.dimensions
}

func (s *Driver) Embedding(ctx context.Context, content []string) (ai.EmbeddingResult, error) {
	slog.Debug("Embedding", slog.String("driver", NAME), slog.Int("inputs", len(content)))
	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(s.model),
		Input: content,
	}

	r := ai.EmbeddingResult{
		Usage: &openai.Usage{},
	}
	resp, err := s.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return r, fmt.Errorf("Error creating embedding: %w", err)
	}
	if len(resp.Data) != len(content) {
		return r, fmt.Errorf("embedding result count mismatch, want %d, got %d", len(content), len(resp.Data))
	}

	r.Data = make([][]float32, len(content))
	for i, v := range resp.Data {
		r.Data[i] = v.Embedding
	}

	r.Usage.PromptTokens = resp.Usage.PromptTokens
	r.Usage.TotalTokens = resp.Usage.TotalTokens
	// 部分本地模型不返回 usage
	if r.Usage.TotalTokens == 0 && r.Usage.PromptTokens == 0 {
		for _, v := range content {
			r.Usage.PromptTokens += (utf8.RuneCountInString(v) + 3) / 4
		}
		r.Usage.TotalTokens = r.Usage.PromptTokens
	}
	r.Model = s.model

	return r, nil
}
