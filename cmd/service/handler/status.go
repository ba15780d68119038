package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	v1 "github.com/scholarly-ai/scholarly/app/logic/v1"
	"github.com/scholarly-ai/scholarly/app/response"
)

// GetStatus 只读的健康状态，检查失败体现在返回内容中而不是错误码
func (s *HttpSrv) GetStatus(c *gin.Context) {
	response.APISuccess(c, v1.NewKnowledgeGraphLogic(c, s.Core).Status())
}

func (s *HttpSrv) GetAdminStats(c *gin.Context) {
	topN, _ := strconv.Atoi(c.Query("top"))
	res, err := v1.NewKnowledgeGraphLogic(c, s.Core).AdminStats(topN)
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, res)
}
