package response

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarly-ai/scholarly/pkg/errors"
	"github.com/scholarly-ai/scholarly/pkg/i18n"
)

func serve(t *testing.T, lang string, err error) (*httptest.ResponseRecorder, Response) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(ProvideResponseLocalizer(i18n.NewLocalizer("en", "zh-CN")), NewResponse())
	engine.GET("/", func(c *gin.Context) {
		if err != nil {
			APIError(c, err)
			return
		}
		APISuccess(c, map[string]string{"ok": "yes"})
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if lang != "" {
		req.Header.Set("Accept-Language", lang)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestAPIErrorStatusCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"validation", errors.NewValidationError("t", i18n.ERROR_QUERY_EMPTY), http.StatusBadRequest},
		{"quota", errors.NewQuotaExceededError("t", 10, 5), http.StatusPaymentRequired},
		{"embedding", errors.NewEmbeddingUnavailableError("t", stderrors.New("timeout")), http.StatusServiceUnavailable},
		{"storage", errors.NewStorageError("KnowledgeGraphStore.Search", stderrors.New("conn refused")), http.StatusInternalServerError},
		{"ratelimit", errors.NewRateLimitError("t", 2*time.Second), http.StatusTooManyRequests},
		{"raw", stderrors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w, body := serve(t, "", c.err)
			assert.Equal(t, c.code, w.Code)
			assert.Equal(t, c.code, body.Meta.Code)
			assert.NotEmpty(t, body.Meta.RequestID)
		})
	}
}

func TestAPIErrorHidesStorageDetails(t *testing.T) {
	_, body := serve(t, "en", errors.NewStorageError("KnowledgeNodeStore.Query", stderrors.New("pq: password authentication failed")))
	assert.NotContains(t, body.Meta.Message, "password")
	assert.Contains(t, body.Meta.Message, "try again")

	_, body = serve(t, "en", stderrors.New("dial tcp 10.0.0.1:5432"))
	assert.NotContains(t, body.Meta.Message, "10.0.0.1")
}

func TestAPIErrorRetryAfter(t *testing.T) {
	w, _ := serve(t, "", errors.Trace("logic", errors.NewRateLimitError("limiter", 1500*time.Millisecond)))
	assert.Equal(t, "2", w.Header().Get(RETRY_AFTER_HEADER))

	w, _ = serve(t, "", errors.NewValidationError("t", i18n.ERROR_QUERY_EMPTY))
	assert.Empty(t, w.Header().Get(RETRY_AFTER_HEADER))
}

func TestAPIErrorLocalized(t *testing.T) {
	_, en := serve(t, "en-US,en;q=0.9", errors.NewValidationError("t", i18n.ERROR_QUERY_EMPTY))
	assert.Equal(t, "Query must not be empty", en.Meta.Message)

	_, zh := serve(t, "zh-CN,zh;q=0.9", errors.NewValidationError("t", i18n.ERROR_QUERY_EMPTY))
	assert.NotEqual(t, en.Meta.Message, zh.Meta.Message)
	assert.NotEmpty(t, zh.Meta.Message)
}

func TestAPISuccess(t *testing.T) {
	w, body := serve(t, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]interface{}{"ok": "yes"}, body.Data)
}
