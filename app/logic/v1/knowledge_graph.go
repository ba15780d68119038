package v1

import (
	"context"

	"github.com/scholarly-ai/scholarly/app/core"
	"github.com/scholarly-ai/scholarly/pkg/errors"
	"github.com/scholarly-ai/scholarly/pkg/graphrag"
	"github.com/scholarly-ai/scholarly/pkg/types"
)

const (
	OPERATION_PROCESS = "knowledge.process"
	OPERATION_UPDATE  = "knowledge.update"
	OPERATION_DELETE  = "knowledge.delete"
	OPERATION_QUERY   = "knowledge.query"
)

// 写操作需要切分和向量化，限流比查询更严格
var operationLimits = map[string][]core.LimitOption{
	OPERATION_PROCESS: {core.WithLimit(10)},
	OPERATION_UPDATE:  {core.WithLimit(10)},
}

type KnowledgeGraphLogic struct {
	UserInfo
	ctx  context.Context
	core *core.Core
	srv  *graphrag.Service
}

func NewKnowledgeGraphLogic(ctx context.Context, core *core.Core) *KnowledgeGraphLogic {
	return &KnowledgeGraphLogic{
		UserInfo: SetupUserInfo(ctx),
		ctx:      ctx,
		core:     core,
		srv:      core.Srv().GraphRAG(),
	}
}

func (l *KnowledgeGraphLogic) limit(trace, operation string) error {
	if err := l.core.UseLimit(l.GetUserID(), operation, operationLimits[operation]...); err != nil {
		return errors.Trace(trace, err)
	}
	return nil
}

type ProcessDocumentArgs struct {
	MaterialID string
	CourseID   string
	FileName   string
	FileType   string
	Content    string
}

func (l *KnowledgeGraphLogic) ProcessDocument(args ProcessDocumentArgs) (*graphrag.ProcessResult, error) {
	trace := "KnowledgeGraphLogic.ProcessDocument"
	if err := l.limit(trace, OPERATION_PROCESS); err != nil {
		return nil, err
	}

	res, err := l.srv.ProcessDocument(l.ctx, args.Content, graphrag.DocumentMeta{
		MaterialID: args.MaterialID,
		CourseID:   args.CourseID,
		FileName:   args.FileName,
		FileType:   args.FileType,
	})
	if err != nil {
		return nil, errors.Trace(trace, err)
	}
	return res, nil
}

func (l *KnowledgeGraphLogic) UpdateKnowledgeBase(materialID, courseID, content string) (*graphrag.ProcessResult, error) {
	trace := "KnowledgeGraphLogic.UpdateKnowledgeBase"
	if err := l.limit(trace, OPERATION_UPDATE); err != nil {
		return nil, err
	}

	res, err := l.srv.UpdateKnowledgeBase(l.ctx, materialID, courseID, content)
	if err != nil {
		return nil, errors.Trace(trace, err)
	}
	return res, nil
}

func (l *KnowledgeGraphLogic) DeleteFromKnowledgeBase(materialID string) (int64, error) {
	trace := "KnowledgeGraphLogic.DeleteFromKnowledgeBase"
	if err := l.limit(trace, OPERATION_DELETE); err != nil {
		return 0, err
	}

	n, err := l.srv.DeleteFromKnowledgeBase(l.ctx, materialID)
	if err != nil {
		return 0, errors.Trace(trace, err)
	}
	return n, nil
}

func (l *KnowledgeGraphLogic) QueryKnowledge(query, courseID string, opts graphrag.QueryOptions) ([]types.RankedResult, error) {
	trace := "KnowledgeGraphLogic.QueryKnowledge"
	if err := l.limit(trace, OPERATION_QUERY); err != nil {
		return nil, err
	}

	res, err := l.srv.QueryKnowledge(l.ctx, query, courseID, opts)
	if err != nil {
		return nil, errors.Trace(trace, err)
	}
	return res, nil
}

func (l *KnowledgeGraphLogic) MaterialNodes(materialID string) ([]types.KnowledgeNode, error) {
	res, err := l.srv.MaterialNodes(l.ctx, materialID)
	if err != nil {
		return nil, errors.Trace("KnowledgeGraphLogic.MaterialNodes", err)
	}
	return res, nil
}

func (l *KnowledgeGraphLogic) Status() graphrag.Status {
	status := l.srv.Status(l.ctx)
	if status.StorageError == "" {
		l.core.Metrics().GraphSizeSet(status.Adapter, status.Nodes, status.Relationships)
	}
	return status
}

func (l *KnowledgeGraphLogic) AdminStats(topN int) (types.AdminStats, error) {
	res, err := l.srv.AdminStats(l.ctx, topN)
	if err != nil {
		return types.AdminStats{}, errors.Trace("KnowledgeGraphLogic.AdminStats", err)
	}
	return res, nil
}
