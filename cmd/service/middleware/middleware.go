package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scholarly-ai/scholarly/app/core"
	v1 "github.com/scholarly-ai/scholarly/app/logic/v1"
	"github.com/scholarly-ai/scholarly/app/response"
	"github.com/scholarly-ai/scholarly/pkg/errors"
	"github.com/scholarly-ai/scholarly/pkg/i18n"
)

const (
	USER_ID_HEADER = "X-User-ID"
)

func I18n() gin.HandlerFunc {
	var allowList []string
	for k := range i18n.ALLOW_LANG {
		allowList = append(allowList, k)
	}
	l := i18n.NewLocalizer(allowList...)

	return response.ProvideResponseLocalizer(l)
}

// AcceptLanguage 目前服务端支持 en: English, zh-CN: 简体中文
func AcceptLanguage() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(v1.LANGUAGE_KEY, i18n.ResolveLang(c.Request.Header.Get("Accept-Language")))
	}
}

// Identify 用户身份由上游网关认证后通过 X-User-ID 传入
func Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(USER_ID_HEADER)
		if userID == "" {
			response.APIError(c, errors.New("middleware.Identify", i18n.ERROR_UNAUTHORIZED, nil).Code(http.StatusUnauthorized))
			return
		}
		c.Set(v1.USER_CONTEXT_KEY, userID)
	}
}

func Cors(c *gin.Context) {
	method := c.Request.Method
	origin := c.Request.Header.Get("Origin")
	if origin != "" {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		c.Header("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept, Accept-Language, X-User-ID")
		c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Language, Content-Type, Retry-After")
		c.Header("Access-Control-Allow-Credentials", "true")
	}
	if method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
	}
	c.Next()
}

// Metrics 记录接口耗时与失败次数，未匹配路由不计入
func Metrics(appCore *core.Core) gin.HandlerFunc {
	return func(c *gin.Context) {
		api := c.FullPath()
		if api == "" {
			c.Next()
			return
		}
		timer := appCore.Metrics().ApiResponseTimer(api)
		c.Next()
		timer.ObserveDuration()

		if status := c.Writer.Status(); status >= http.StatusBadRequest {
			appCore.Metrics().ApiErrorInc(c.Request.Method, api, status)
		}
	}
}

type LimiterFunc func(key string, opts ...core.LimitOption) gin.HandlerFunc

func UseLimit(appCore *core.Core, operation string, genKeyFunc func(c *gin.Context) string, opts ...core.LimitOption) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := appCore.UseLimit(genKeyFunc(c), operation, opts...); err != nil {
			response.APIError(c, errors.Trace("middleware.limiter", err))
		}
	}
}
