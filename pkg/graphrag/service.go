package graphrag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/scholarly-ai/scholarly/app/store"
	"github.com/scholarly-ai/scholarly/pkg/embedding"
	"github.com/scholarly-ai/scholarly/pkg/errors"
	"github.com/scholarly-ai/scholarly/pkg/i18n"
	"github.com/scholarly-ai/scholarly/pkg/types"
	"github.com/scholarly-ai/scholarly/pkg/utils"
)

// Embedder GraphRAGService 需要的向量化能力，由 embedding.Provider 实现
type Embedder interface {
	store.Embedder
	Model() string
	Ping(ctx context.Context) error
	Usage() embedding.TokenUsageSnapshot
	MaxInputLength() int
}

type DocumentMeta struct {
	MaterialID string `json:"material_id"`
	CourseID   string `json:"course_id"`
	FileName   string `json:"file_name,omitempty"`
	FileType   string `json:"file_type,omitempty"`
}

type ProcessResult struct {
	Nodes         []*types.KnowledgeNode         `json:"nodes"`
	Relationships []*types.KnowledgeRelationship `json:"relationships"`
}

type QueryOptions struct {
	MaterialID          string
	Limit               int
	SimilarityThreshold *float32
}

// Service 文档处理与检索的唯一入口，存储实现对调用方透明
type Service struct {
	store         store.KnowledgeGraphStore
	embedder      Embedder
	cfg           Config
	chunker       chunker
	adapterReason string
}

type Option func(s *Service)

// WithAdapterReason 记录存储实现的选择原因，用于状态查询
func WithAdapterReason(reason string) Option {
	return func(s *Service) {
		s.adapterReason = reason
	}
}

func New(s store.KnowledgeGraphStore, embedder Embedder, cfg Config, opts ...Option) (*Service, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if embedder != nil && cfg.ChunkSize > embedder.MaxInputLength() {
		return nil, fmt.Errorf("chunk size %d exceeds embedding max input length %d", cfg.ChunkSize, embedder.MaxInputLength())
	}
	srv := &Service{
		store:    s,
		embedder: embedder,
		cfg:      cfg,
		chunker:  chunker{size: cfg.ChunkSize, overlap: cfg.ChunkOverlap},
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv, nil
}

func (s *Service) AdapterKind() string {
	return s.store.Kind()
}

func validateMeta(trace string, meta DocumentMeta, content string) error {
	if meta.MaterialID == "" {
		return errors.NewValidationError(trace, i18n.ERROR_MATERIAL_ID_REQUIRED)
	}
	if meta.CourseID == "" {
		return errors.NewValidationError(trace, i18n.ERROR_COURSE_ID_REQUIRED)
	}
	if strings.TrimSpace(content) == "" {
		return errors.NewValidationError(trace, i18n.ERROR_CONTENT_EMPTY)
	}
	return nil
}

// buildGraph 切分、生成向量并推导边，不做任何写入
func (s *Service) buildGraph(ctx context.Context, content string, meta DocumentMeta) (*ProcessResult, error) {
	trace := "GraphRAGService.buildGraph"

	chunks := s.chunker.Split(content)
	batch, err := s.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		if batch != nil && len(batch.Failed) > 0 {
			slog.Warn("document embedding incomplete, nothing persisted", slog.String("component", trace),
				slog.String("material_id", meta.MaterialID),
				slog.Int("chunks", len(chunks)), slog.Int("failed", len(batch.Failed)))
		}
		return nil, errors.Trace(trace, err)
	}

	now := time.Now()
	nodes := make([]*types.KnowledgeNode, 0, len(chunks))
	for i, chunk := range chunks {
		metadata := types.NodeMetadata{
			types.METADATA_PROCESSED_AT: now.UTC().Format(time.RFC3339),
			types.METADATA_CHUNK_COUNT:  len(chunks),
		}
		if meta.FileName != "" {
			metadata[types.METADATA_FILE_NAME] = meta.FileName
		}
		if meta.FileType != "" {
			metadata[types.METADATA_FILE_TYPE] = meta.FileType
		}
		if lang := utils.WhatLang(chunk); lang != "" {
			metadata[types.METADATA_LANGUAGE] = lang
		}

		node := &types.KnowledgeNode{
			ID:         utils.GenUniqIDStr(),
			MaterialID: meta.MaterialID,
			CourseID:   meta.CourseID,
			Content:    chunk,
			ChunkIndex: i,
			Metadata:   metadata,
			CreatedAt:  now.Unix(),
			UpdatedAt:  now.Unix(),
		}
		node.SetEmbedding(batch.Vectors[i])
		nodes = append(nodes, node)
	}

	rels := sequentialEdges(nodes)
	rels = append(rels, similarEdges(nodes, s.cfg.SimilarEdgeThreshold, s.cfg.MaxSimilarEdgesPerNode, s.cfg.MaxSimilarEdges)...)

	return &ProcessResult{
		Nodes:         nodes,
		Relationships: rels,
	}, nil
}

// ProcessDocument 将一份新资料写入知识图谱。向量全部生成成功后才会写入，
// 边写入失败时会删除本次写入的节点
func (s *Service) ProcessDocument(ctx context.Context, content string, meta DocumentMeta) (*ProcessResult, error) {
	trace := "GraphRAGService.ProcessDocument"
	if err := validateMeta(trace, meta, content); err != nil {
		return nil, err
	}

	res, err := s.buildGraph(ctx, content, meta)
	if err != nil {
		return nil, errors.Trace(trace, err)
	}

	if err = s.store.InsertNodes(ctx, res.Nodes); err != nil {
		return nil, errors.Trace(trace, err)
	}
	if err = s.store.InsertRelationships(ctx, res.Relationships); err != nil {
		if _, cerr := s.store.DeleteByMaterial(ctx, meta.MaterialID); cerr != nil {
			slog.Error("failed to clean up nodes after relationship insert failure", slog.String("component", trace),
				slog.String("material_id", meta.MaterialID), slog.String("error", cerr.Error()))
		}
		return nil, errors.Trace(trace, err)
	}

	slog.Info("document processed", slog.String("component", trace),
		slog.String("material_id", meta.MaterialID), slog.String("course_id", meta.CourseID),
		slog.String("adapter", s.store.Kind()),
		slog.Int("nodes", len(res.Nodes)), slog.Int("relationships", len(res.Relationships)))
	return res, nil
}

// QueryKnowledge 没有满足阈值的结果时返回空切片
func (s *Service) QueryKnowledge(ctx context.Context, query, courseID string, opts QueryOptions) ([]types.RankedResult, error) {
	trace := "GraphRAGService.QueryKnowledge"
	if strings.TrimSpace(query) == "" {
		return nil, errors.NewValidationError(trace, i18n.ERROR_QUERY_EMPTY)
	}
	if courseID == "" {
		return nil, errors.NewValidationError(trace, i18n.ERROR_COURSE_ID_REQUIRED)
	}

	res, err := s.store.Search(ctx, types.SearchQuery{Text: query}, types.SearchOptions{
		CourseID:            courseID,
		MaterialID:          opts.MaterialID,
		Limit:               opts.Limit,
		SimilarityThreshold: opts.SimilarityThreshold,
	})
	if err != nil {
		return nil, errors.Trace(trace, err)
	}
	if res == nil {
		res = []types.RankedResult{}
	}
	return res, nil
}

// UpdateKnowledgeBase 重新处理整份资料并整体替换旧的节点与边
func (s *Service) UpdateKnowledgeBase(ctx context.Context, materialID, courseID, content string) (*ProcessResult, error) {
	trace := "GraphRAGService.UpdateKnowledgeBase"
	meta := DocumentMeta{MaterialID: materialID, CourseID: courseID}
	if err := validateMeta(trace, meta, content); err != nil {
		return nil, err
	}

	// 沿用旧节点上的文件信息
	if old, err := s.store.GetByMaterial(ctx, materialID); err == nil && len(old) > 0 {
		if v, ok := old[0].Metadata[types.METADATA_FILE_NAME].(string); ok {
			meta.FileName = v
		}
		if v, ok := old[0].Metadata[types.METADATA_FILE_TYPE].(string); ok {
			meta.FileType = v
		}
	}

	res, err := s.buildGraph(ctx, content, meta)
	if err != nil {
		return nil, errors.Trace(trace, err)
	}

	replaced, err := s.store.ReplaceMaterial(ctx, materialID, res.Nodes, res.Relationships)
	if err != nil {
		return nil, errors.Trace(trace, err)
	}

	slog.Info("knowledge base updated", slog.String("component", trace),
		slog.String("material_id", materialID), slog.Int64("replaced", replaced),
		slog.Int("nodes", len(res.Nodes)), slog.Int("relationships", len(res.Relationships)))
	return res, nil
}

func (s *Service) DeleteFromKnowledgeBase(ctx context.Context, materialID string) (int64, error) {
	trace := "GraphRAGService.DeleteFromKnowledgeBase"
	if materialID == "" {
		return 0, errors.NewValidationError(trace, i18n.ERROR_MATERIAL_ID_REQUIRED)
	}
	n, err := s.store.DeleteByMaterial(ctx, materialID)
	if err != nil {
		return 0, errors.Trace(trace, err)
	}
	return n, nil
}

func (s *Service) MaterialNodes(ctx context.Context, materialID string) ([]types.KnowledgeNode, error) {
	trace := "GraphRAGService.MaterialNodes"
	if materialID == "" {
		return nil, errors.NewValidationError(trace, i18n.ERROR_MATERIAL_ID_REQUIRED)
	}
	res, err := s.store.GetByMaterial(ctx, materialID)
	if err != nil {
		return nil, errors.Trace(trace, err)
	}
	return res, nil
}
