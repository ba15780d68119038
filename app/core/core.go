package core

import (
	"io"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/scholarly-ai/scholarly/app/core/srv"
	"github.com/scholarly-ai/scholarly/app/store/graphstore"
	"github.com/scholarly-ai/scholarly/app/store/sqlstore"
	"github.com/scholarly-ai/scholarly/pkg/ai"
	"github.com/scholarly-ai/scholarly/pkg/embedding"
)

type Core struct {
	cfg        CoreConfig
	srv        *srv.Srv
	httpEngine *gin.Engine

	limiter *Limiter
	metrics *Metrics
}

type setupOptions struct {
	driver   ai.Embedder
	prober   graphstore.Prober
	registry *prometheus.Registry
	logger   io.Writer
}

type SetupOption func(o *setupOptions)

// WithEmbeddingDriver 替换按配置创建的 embedding 驱动
func WithEmbeddingDriver(d ai.Embedder) SetupOption {
	return func(o *setupOptions) {
		o.driver = d
	}
}

func WithStoreProber(p graphstore.Prober) SetupOption {
	return func(o *setupOptions) {
		o.prober = p
	}
}

func WithRegistry(r *prometheus.Registry) SetupOption {
	return func(o *setupOptions) {
		o.registry = r
	}
}

func WithLogWriter(w io.Writer) SetupOption {
	return func(o *setupOptions) {
		o.logger = w
	}
}

func setupLogger(cfg Log, writer io.Writer) {
	if writer == nil {
		writer = os.Stdout
		if cfg.Path != "" {
			writer = &lumberjack.Logger{
				Filename:   cfg.Path,
				MaxSize:    500, // megabytes
				MaxBackups: 3,
				MaxAge:     28,   //days
				Compress:   true, // disabled by default
			}
		}
	}
	l := slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(l)
}

func MustSetupCore(cfg CoreConfig, opts ...SetupOption) *Core {
	o := &setupOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}

	setupLogger(cfg.Log, o.logger)

	core := &Core{
		cfg:        cfg,
		metrics:    NewMetrics("scholarly", "core", o.registry),
		httpEngine: gin.New(),
		limiter:    NewLimiter(cfg.RateLimit),
	}

	embeddingCfg := cfg.Embedding.ProviderConfig()
	storeCfg := graphstore.Config{
		VectorIndexEnabled: cfg.VectorIndex.Enabled,
		PostgresDSN:        cfg.Postgres.FormatDSN(),
		Dimensions:         embeddingCfg.Dimensions,
		Adapter: sqlstore.AdapterConfig{
			QueryCacheSize: cfg.VectorIndex.QueryCacheSize,
			QueryCacheTTL:  cfg.VectorIndex.CacheTTL(),
		},
	}
	storeOpts := []graphstore.Option{graphstore.WithSearchObserver(core.metrics.GraphSearchInc)}
	if o.prober != nil {
		storeOpts = append(storeOpts, graphstore.WithProber(o.prober))
	}

	core.srv = srv.SetupSrvs(
		// embedding provider select
		srv.ApplyEmbedding(o.driver, embeddingCfg, srv.EmbeddingDriverConfig{
			Token:    cfg.Embedding.Token,
			Endpoint: cfg.Embedding.Endpoint,
		}, embedding.NewMetrics()),
		// storage probe + service
		srv.ApplyGraphRAG(storeCfg, cfg.GraphRAG.ServiceConfig(), storeOpts...),
	)

	return core
}

func (s *Core) Cfg() CoreConfig {
	return s.cfg
}

func (s *Core) HttpEngine() *gin.Engine {
	return s.httpEngine
}

func (s *Core) Metrics() *Metrics {
	return s.metrics
}

func (s *Core) Limiter() *Limiter {
	return s.limiter
}

func (s *Core) Srv() *srv.Srv {
	return s.srv
}

// UseLimit 检查 user 在 operation 上的限流，超限时返回 RateLimitError
func (s *Core) UseLimit(user, operation string, opts ...LimitOption) error {
	if err := s.limiter.Allow(user, operation, opts...); err != nil {
		s.metrics.RateLimitedInc(operation)
		return err
	}
	return nil
}
