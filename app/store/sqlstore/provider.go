package sqlstore

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"github.com/scholarly-ai/scholarly/app/store"
	"github.com/scholarly-ai/scholarly/pkg/register"
	"github.com/scholarly-ai/scholarly/pkg/sqlstore"
	"github.com/scholarly-ai/scholarly/pkg/types"
)

func init() {
	sq.StatementBuilder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

//go:embed schema/*.sql
var CreateTableFiles embed.FS

const (
	SCHEMA_DIR = "schema"

	DIMENSIONS_PLACEHOLDER = "${EMBEDDING_DIMENSIONS}"
	// pgvector 的 hnsw 索引最多支持 2000 维
	MAX_HNSW_DIMENSIONS = 2000
	VECTOR_INDEX_FILE   = "002_knowledge_nodes_vector_index.sql"
)

type Provider struct {
	*sqlstore.SqlProvider
	stores *Stores
}

type Stores struct {
	store.KnowledgeNodeStore
	store.KnowledgeRelationshipStore
}

type RegisterKey struct{}

// NewProvider 基于已有连接创建 Provider，并装配所有通过 RegisterKey 登记的 store
func NewProvider(p *sqlstore.SqlProvider) *Provider {
	provider := &Provider{
		SqlProvider: p,
		stores:      &Stores{},
	}
	register.Apply(RegisterKey{}, provider)
	return provider
}

func MustSetup(m sqlstore.ConnectConfig, s ...sqlstore.ConnectConfig) func() *Provider {
	provider := NewProvider(sqlstore.MustSetupProvider(m, s...))

	return func() *Provider {
		return provider
	}
}

func (p *Provider) KnowledgeNodeStore() store.KnowledgeNodeStore {
	return p.stores.KnowledgeNodeStore
}

func (p *Provider) KnowledgeRelationshipStore() store.KnowledgeRelationshipStore {
	return p.stores.KnowledgeRelationshipStore
}

// HasVectorExtension 检查当前数据库是否已安装 pgvector
func (p *Provider) HasVectorExtension(ctx context.Context) (bool, error) {
	var exist bool
	err := p.GetReplica().GetContext(ctx, &exist, "SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')")
	return exist, err
}

// TableSizes 知识图谱相关表(含索引)占用的存储空间，单位 byte
func (p *Provider) TableSizes(ctx context.Context) (int64, error) {
	var size int64
	err := p.GetReplica().GetContext(ctx, &size,
		"SELECT pg_total_relation_size($1::regclass) + pg_total_relation_size($2::regclass)",
		types.TABLE_KNOWLEDGE_NODE.Name(), types.TABLE_KNOWLEDGE_RELATIONSHIP.Name())
	return size, err
}

// Install 初始化所有数据表，dimensions 为 embedding 列的向量维度
func (p *Provider) Install(ctx context.Context, dimensions int) error {
	// 首先启用必要的数据库扩展
	if err := p.enableExtensions(ctx); err != nil {
		return err
	}

	// 确保迁移记录表存在
	if err := p.ensureMigrationTable(ctx); err != nil {
		return err
	}

	files, err := CreateTableFiles.ReadDir(SCHEMA_DIR)
	if err != nil {
		return err
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}
		if file.Name() == VECTOR_INDEX_FILE && dimensions > MAX_HNSW_DIMENSIONS {
			slog.Warn("vector index skipped, dimensions exceed hnsw limit", slog.String("component", "sqlstore.Install"),
				slog.Int("dimensions", dimensions))
			continue
		}

		// 检查文件是否已经执行过
		if executed, err := p.isFileExecuted(ctx, file.Name()); err != nil {
			return err
		} else if executed {
			continue
		}

		raw, err := CreateTableFiles.ReadFile(path.Join(SCHEMA_DIR, file.Name()))
		if err != nil {
			return err
		}

		if err = p.executeSQLFile(ctx, string(raw), dimensions); err != nil {
			return fmt.Errorf("failed to execute %s: %w", file.Name(), err)
		}

		if err = p.markFileExecuted(ctx, file.Name()); err != nil {
			return err
		}
		slog.Info("schema file installed", slog.String("component", "sqlstore.Install"), slog.String("file", file.Name()))
	}
	return nil
}

// enableExtensions 启用必要的数据库扩展
func (p *Provider) enableExtensions(ctx context.Context) error {
	extensions := []string{
		"CREATE EXTENSION IF NOT EXISTS vector;", // pgvector 扩展，用于向量操作
	}

	for _, ext := range extensions {
		if _, err := p.GetMaster().ExecContext(ctx, ext); err != nil {
			return fmt.Errorf("failed to enable extension: %w\nSQL: %s", err, ext)
		}
	}
	return nil
}

// ensureMigrationTable 确保迁移记录表存在
func (p *Provider) ensureMigrationTable(ctx context.Context) error {
	createTableSQL := `
CREATE TABLE IF NOT EXISTS ` + types.TABLE_SCHEMA_MIGRATIONS.Name() + ` (
    filename VARCHAR(255) PRIMARY KEY,
    executed_at BIGINT NOT NULL
);`
	_, err := p.GetMaster().ExecContext(ctx, createTableSQL)
	return err
}

// isFileExecuted 检查文件是否已经执行过
func (p *Provider) isFileExecuted(ctx context.Context, filename string) (bool, error) {
	var count int
	err := p.GetMaster().GetContext(ctx, &count,
		"SELECT COUNT(*) FROM "+types.TABLE_SCHEMA_MIGRATIONS.Name()+" WHERE filename = $1", filename)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// markFileExecuted 标记文件为已执行
func (p *Provider) markFileExecuted(ctx context.Context, filename string) error {
	_, err := p.GetMaster().ExecContext(ctx,
		"INSERT INTO "+types.TABLE_SCHEMA_MIGRATIONS.Name()+" (filename, executed_at) VALUES ($1, $2) ON CONFLICT (filename) DO NOTHING",
		filename, time.Now().Unix())
	return err
}

func (p *Provider) executeSQLFile(ctx context.Context, content string, dimensions int) error {
	content = strings.ReplaceAll(content, DIMENSIONS_PLACEHOLDER, strconv.Itoa(dimensions))
	_, err := p.GetMaster().ExecContext(ctx, content)
	return err
}
