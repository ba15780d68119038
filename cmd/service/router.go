package service

import (
	"github.com/gin-gonic/gin"

	"github.com/scholarly-ai/scholarly/app/core"
	v1 "github.com/scholarly-ai/scholarly/app/logic/v1"
	"github.com/scholarly-ai/scholarly/app/response"
	"github.com/scholarly-ai/scholarly/cmd/service/handler"
	"github.com/scholarly-ai/scholarly/cmd/service/middleware"
	"github.com/scholarly-ai/scholarly/pkg/metrics"
)

func GetIPLimitBuilder(appCore *core.Core) middleware.LimiterFunc {
	return func(key string, opts ...core.LimitOption) gin.HandlerFunc {
		return middleware.UseLimit(appCore, key, func(c *gin.Context) string {
			return c.ClientIP()
		}, opts...)
	}
}

func GetUserLimitBuilder(appCore *core.Core) middleware.LimiterFunc {
	return func(key string, opts ...core.LimitOption) gin.HandlerFunc {
		return middleware.UseLimit(appCore, key, func(c *gin.Context) string {
			user, _ := v1.InjectUserID(c)
			return user
		}, opts...)
	}
}

func setupHttpRouter(s *handler.HttpSrv) {
	ipLimit := GetIPLimitBuilder(s.Core)
	userLimit := GetUserLimitBuilder(s.Core)

	s.Engine.Use(gin.Recovery())
	s.Engine.GET("/metrics", metrics.DefaultExportHandler())

	s.Engine.Use(middleware.I18n(), response.NewResponse(), middleware.AcceptLanguage())
	s.Engine.Use(middleware.Cors, middleware.Metrics(s.Core))
	apiV1 := s.Engine.Group("/api/v1")
	{
		apiV1.GET("/status", ipLimit("status", core.WithLimit(120)), s.GetStatus)

		authed := apiV1.Group("")
		authed.Use(middleware.Identify())

		knowledge := authed.Group("/knowledge")
		{
			knowledge.POST("/process", s.ProcessDocument)
			knowledge.POST("/query", s.QueryKnowledge)
			knowledge.PUT("/:materialid", s.UpdateKnowledgeBase)
			knowledge.DELETE("/:materialid", s.DeleteFromKnowledgeBase)
			knowledge.GET("/material/:materialid", s.GetMaterialNodes)
		}

		admin := authed.Group("/admin")
		{
			admin.GET("/stats", userLimit("admin.stats", core.WithLimit(10)), s.GetAdminStats)
		}
	}
}
