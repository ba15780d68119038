package openai

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/scholarly-ai/scholarly/pkg/ai"
)

const (
	NAME = "openai"
)

type Driver struct {
	client     *openai.Client
	model      string
	dimensions int
}

func NewClient(token, proxy string) *openai.Client {
	cfg := openai.DefaultConfig(token)
	if proxy != "" {
		cfg.BaseURL = proxy
	}

	return openai.NewClientWithConfig(cfg)
}

func New(token, proxy, model string, dimensions int) *Driver {
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	return &Driver{
		client:     NewClient(token, proxy),
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

// Embedding 单次请求，分批由调用方负责
func (s *Driver) Embedding(ctx context.Context, content []string) (ai.EmbeddingResult, error) {
	slog.Debug("Embedding", slog.String("driver", NAME), slog.Int("inputs", len(content)))
	req := openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(s.model),
		Dimensions: s.dimensions,
		Input:      content,
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
	for _, v := range resp.Data {
		if v.Index < 0 || v.Index >= len(content) {
			return r, fmt.Errorf("embedding result index %d out of range", v.Index)
		}
		r.Data[v.Index] = v.Embedding
	}

	r.Usage.PromptTokens = resp.Usage.PromptTokens
	r.Usage.TotalTokens = resp.Usage.TotalTokens
	r.Model = string(resp.Model)

	return r, nil
}
