package handler

import (
	"github.com/gin-gonic/gin"

	v1 "github.com/scholarly-ai/scholarly/app/logic/v1"
	"github.com/scholarly-ai/scholarly/app/response"
	"github.com/scholarly-ai/scholarly/pkg/graphrag"
	"github.com/scholarly-ai/scholarly/pkg/types"
	"github.com/scholarly-ai/scholarly/pkg/utils"
)

type ProcessDocumentRequest struct {
	MaterialID string `json:"material_id" binding:"required"`
	CourseID   string `json:"course_id" binding:"required"`
	FileName   string `json:"file_name"`
	FileType   string `json:"file_type"`
	Content    string `json:"content" binding:"required"`
}

type ProcessDocumentResponse struct {
	MaterialID    string `json:"material_id"`
	Nodes         int    `json:"nodes"`
	Relationships int    `json:"relationships"`
}

func summarize(materialID string, res *graphrag.ProcessResult) ProcessDocumentResponse {
	return ProcessDocumentResponse{
		MaterialID:    materialID,
		Nodes:         len(res.Nodes),
		Relationships: len(res.Relationships),
	}
}

func (s *HttpSrv) ProcessDocument(c *gin.Context) {
	var req ProcessDocumentRequest
	if err := utils.BindArgsWithGin(c, &req); err != nil {
		response.APIError(c, err)
		return
	}

	res, err := v1.NewKnowledgeGraphLogic(c, s.Core).ProcessDocument(v1.ProcessDocumentArgs{
		MaterialID: req.MaterialID,
		CourseID:   req.CourseID,
		FileName:   req.FileName,
		FileType:   req.FileType,
		Content:    req.Content,
	})
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, summarize(req.MaterialID, res))
}

type UpdateKnowledgeRequest struct {
	CourseID string `json:"course_id" binding:"required"`
	Content  string `json:"content" binding:"required"`
}

func (s *HttpSrv) UpdateKnowledgeBase(c *gin.Context) {
	var req UpdateKnowledgeRequest
	if err := utils.BindArgsWithGin(c, &req); err != nil {
		response.APIError(c, err)
		return
	}

	materialID := c.Param("materialid")
	res, err := v1.NewKnowledgeGraphLogic(c, s.Core).UpdateKnowledgeBase(materialID, req.CourseID, req.Content)
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, summarize(materialID, res))
}

type DeleteKnowledgeResponse struct {
	Deleted int64 `json:"deleted"`
}

func (s *HttpSrv) DeleteFromKnowledgeBase(c *gin.Context) {
	n, err := v1.NewKnowledgeGraphLogic(c, s.Core).DeleteFromKnowledgeBase(c.Param("materialid"))
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, DeleteKnowledgeResponse{Deleted: n})
}

type QueryKnowledgeRequest struct {
	Query               string   `json:"query" binding:"required"`
	CourseID            string   `json:"course_id" binding:"required"`
	MaterialID          string   `json:"material_id"`
	Limit               int      `json:"limit"`
	SimilarityThreshold *float32 `json:"similarity_threshold"`
}

type QueryResult struct {
	NodeID     string             `json:"node_id"`
	MaterialID string             `json:"material_id"`
	ChunkIndex int                `json:"chunk_index"`
	Content    string             `json:"content"`
	Similarity float32            `json:"similarity"`
	Metadata   types.NodeMetadata `json:"metadata,omitempty"`
}

type QueryKnowledgeResponse struct {
	List []QueryResult `json:"list"`
}

func (s *HttpSrv) QueryKnowledge(c *gin.Context) {
	var req QueryKnowledgeRequest
	if err := utils.BindArgsWithGin(c, &req); err != nil {
		response.APIError(c, err)
		return
	}

	res, err := v1.NewKnowledgeGraphLogic(c, s.Core).QueryKnowledge(req.Query, req.CourseID, graphrag.QueryOptions{
		MaterialID:          req.MaterialID,
		Limit:               req.Limit,
		SimilarityThreshold: req.SimilarityThreshold,
	})
	if err != nil {
		response.APIError(c, err)
		return
	}

	list := make([]QueryResult, 0, len(res))
	for _, v := range res {
		list = append(list, QueryResult{
			NodeID:     v.Node.ID,
			MaterialID: v.Node.MaterialID,
			ChunkIndex: v.Node.ChunkIndex,
			Content:    v.Node.Content,
			Similarity: v.Similarity,
			Metadata:   v.Node.Metadata,
		})
	}
	response.APISuccess(c, QueryKnowledgeResponse{List: list})
}

type MaterialNodesResponse struct {
	List []types.KnowledgeNode `json:"list"`
}

func (s *HttpSrv) GetMaterialNodes(c *gin.Context) {
	res, err := v1.NewKnowledgeGraphLogic(c, s.Core).MaterialNodes(c.Param("materialid"))
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, MaterialNodesResponse{List: res})
}
