package response

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/scholarly-ai/scholarly/pkg/errors"
	"github.com/scholarly-ai/scholarly/pkg/i18n"
	"github.com/scholarly-ai/scholarly/pkg/utils"
)

func ProvideResponseLocalizer(l i18n.Localizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("i18n", l)
	}
}

func InjectResponseLocalizer(c *gin.Context) i18n.Localizer {
	return c.MustGet("i18n").(i18n.Localizer)
}

// 常量定义
const (
	RequestIDKey = "request_id"
	ResponseKey  = "response_key"

	RETRY_AFTER_HEADER = "Retry-After"
)

// Response 响应结构体定义
type Response struct {
	Meta Meta        `json:"meta"`
	Data interface{} `json:"data"`
}

// Meta 响应meta定义
type Meta struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func GetLangFromRequestOrDefault(c *gin.Context) string {
	return i18n.ResolveLang(c.Request.Header.Get("Accept-Language"))
}

// APIError api响应失败，未分类的错误统一按内部错误返回，不向调用方暴露底层错误信息
func APIError(c *gin.Context, err error) {
	c.Abort()
	l := InjectResponseLocalizer(c)
	lang := GetLangFromRequestOrDefault(c)

	res := c.MustGet(ResponseKey).(*Response)
	ce, ok := errors.As(err)
	if !ok || (ce.GetKind() == nil && ce.GetCode() >= http.StatusInternalServerError) {
		res.Meta.Code = http.StatusInternalServerError
		res.Meta.Message = l.Get(lang, i18n.ERROR_INTERNAL)
	} else {
		res.Meta.Code = ce.GetCode()
		res.Meta.Message = l.GetWithData(lang, ce.Message(), ce.Data())
	}

	if errors.Is(err, errors.ErrRateLimited) {
		seconds := int(math.Ceil(ce.RetryAfter().Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		c.Header(RETRY_AFTER_HEADER, strconv.Itoa(seconds))
	}

	c.JSON(res.Meta.Code, res)
	printErrorLog(c, res, err)
}

func printErrorLog(c *gin.Context, res *Response, err error) {
	attrs := []any{
		slog.String("request_uri", c.Request.URL.Path),
		slog.String("method", c.Request.Method),
		slog.String("request_id", res.Meta.RequestID),
		slog.Int("code", res.Meta.Code),
		slog.String("error", err.Error()),
	}
	if ce, ok := errors.As(err); ok && ce.Operation() != "" {
		attrs = append(attrs, slog.String("operation", ce.Operation()))
	}

	if res.Meta.Code >= http.StatusInternalServerError {
		slog.Error("response error", attrs...)
		return
	}
	slog.Warn("response error", attrs...)
}

func printSuccessLog(c *gin.Context, res *Response) {
	slog.Info("request success",
		slog.String("request_uri", c.Request.URL.Path),
		slog.String("method", c.Request.Method),
		slog.String("request_id", res.Meta.RequestID),
		slog.String("params", c.Request.URL.Query().Encode()))
}

// APISuccess api响应成功
func APISuccess(c *gin.Context, response interface{}) {
	c.Abort()
	res := c.MustGet(ResponseKey).(*Response)
	if response != nil {
		res.Data = response
	}
	c.JSON(http.StatusOK, res)
	printSuccessLog(c, res)
}

// NewResponse 为每个请求生成 request id
func NewResponse() gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := &Response{
			Meta: Meta{
				RequestID: utils.GenRandomID(),
			},
		}
		c.Set(ResponseKey, resp)
		c.Set(RequestIDKey, resp.Meta.RequestID)
	}
}
