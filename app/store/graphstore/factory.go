package graphstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/scholarly-ai/scholarly/app/store"
	"github.com/scholarly-ai/scholarly/app/store/memstore"
	"github.com/scholarly-ai/scholarly/app/store/sqlstore"
	"github.com/scholarly-ai/scholarly/pkg/safe"
	pkgsqlstore "github.com/scholarly-ai/scholarly/pkg/sqlstore"
)

const DEFAULT_PROBE_TIMEOUT = 10 * time.Second

type Config struct {
	VectorIndexEnabled bool
	PostgresDSN        string
	Dimensions         int
	ProbeTimeout       time.Duration
	Adapter            sqlstore.AdapterConfig
}

// Decision 记录最终选用的存储实现及原因
type Decision struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// Prober 检查数据库是否满足向量检索条件，成功时返回已完成 schema 安装的 Provider
type Prober func(ctx context.Context) (*sqlstore.Provider, error)

type Factory struct {
	cfg      Config
	embedder store.Embedder
	probe    Prober
	observer store.SearchObserver

	once     sync.Once
	store    store.KnowledgeGraphStore
	decision Decision
}

type Option func(f *Factory)

func WithProber(p Prober) Option {
	return func(f *Factory) {
		f.probe = p
	}
}

func WithSearchObserver(o store.SearchObserver) Option {
	return func(f *Factory) {
		f.observer = o
	}
}

func NewFactory(cfg Config, embedder store.Embedder, opts ...Option) *Factory {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DEFAULT_PROBE_TIMEOUT
	}
	f := &Factory{
		cfg:      cfg,
		embedder: embedder,
	}
	f.probe = PostgresProber(cfg.PostgresDSN, cfg.Dimensions)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create 只在第一次调用时探测，并发的首次调用会等待同一次探测结果
func (f *Factory) Create(ctx context.Context) store.KnowledgeGraphStore {
	f.once.Do(func() {
		f.store, f.decision = f.create(ctx)
		slog.Info("knowledge graph storage selected", slog.String("component", "graphstore.Factory"),
			slog.String("adapter", f.decision.Kind), slog.String("reason", f.decision.Reason))
	})
	return f.store
}

// Decision 在 Create 之前调用返回零值
func (f *Factory) Decision() Decision {
	return f.decision
}

func (f *Factory) memory(reason string) (store.KnowledgeGraphStore, Decision) {
	return memstore.New(f.embedder, memstore.WithSearchObserver(f.observer)), Decision{
		Kind:   store.KIND_MEMORY,
		Reason: reason,
	}
}

func (f *Factory) create(ctx context.Context) (store.KnowledgeGraphStore, Decision) {
	if !f.cfg.VectorIndexEnabled {
		return f.memory("vector index disabled by configuration")
	}
	if f.cfg.PostgresDSN == "" {
		return f.memory("postgres dsn not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.ProbeTimeout)
	defer cancel()

	var provider *sqlstore.Provider
	err := safe.Call("graphstore.probe", func() error {
		var err error
		provider, err = f.probe(ctx)
		if err == nil && provider == nil {
			err = fmt.Errorf("probe returned no provider")
		}
		return err
	})
	if err != nil {
		slog.Warn("vector store probe failed, falling back to memory", slog.String("component", "graphstore.Factory"),
			slog.String("error", err.Error()))
		return f.memory(fmt.Sprintf("probe failed: %s", err))
	}

	adapter := sqlstore.NewGraphAdapter(provider, f.embedder, f.cfg.Adapter, sqlstore.WithSearchObserver(f.observer))
	return adapter, Decision{
		Kind:   store.KIND_DATABASE,
		Reason: "pgvector extension available",
	}
}

// PostgresProber 连接数据库、安装 schema 并确认 pgvector 扩展存在
func PostgresProber(dsn string, dimensions int) Prober {
	return func(ctx context.Context) (*sqlstore.Provider, error) {
		db, err := sqlx.Open("postgres", dsn)
		if err != nil {
			return nil, err
		}
		provider := sqlstore.NewProvider(pkgsqlstore.NewSqlProvider(db))

		if err = probe(ctx, provider, dimensions); err != nil {
			provider.Close()
			return nil, err
		}
		return provider, nil
	}
}

func probe(ctx context.Context, provider *sqlstore.Provider, dimensions int) error {
	if err := provider.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if err := provider.Install(ctx, dimensions); err != nil {
		return fmt.Errorf("install schema: %w", err)
	}
	ok, err := provider.HasVectorExtension(ctx)
	if err != nil {
		return fmt.Errorf("check extension: %w", err)
	}
	if !ok {
		return fmt.Errorf("pgvector extension not installed")
	}
	return nil
}
