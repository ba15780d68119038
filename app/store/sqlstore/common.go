package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/scholarly-ai/scholarly/pkg/types"
)

func ErrorSqlBuild(err error) error {
	return fmt.Errorf("failed to build sql query, %w", err)
}

type SqlProviderAchieve interface {
	GetMaster() *sqlx.DB
	GetReplica() *sqlx.DB
	GetTxFromCtx(ctx context.Context) *sqlx.Tx
}

// store 基础设置
type CommonFields struct {
	table      string
	provider   SqlProviderAchieve
	allColumns []string
}

func (c *CommonFields) GetTable() string {
	return c.table
}

func (c *CommonFields) SetAllColumns(str ...string) {
	c.allColumns = str
}

func (c *CommonFields) GetAllColumns() []string {
	return c.allColumns
}

// GetColumnsExcept 返回去掉指定列后的列名，保持原有顺序
func (c *CommonFields) GetColumnsExcept(exclude ...string) []string {
	skip := make(map[string]struct{}, len(exclude))
	for _, v := range exclude {
		skip[v] = struct{}{}
	}
	var columns []string
	for _, v := range c.allColumns {
		if _, ok := skip[v]; !ok {
			columns = append(columns, v)
		}
	}
	return columns
}

func (c *CommonFields) SetTable(table types.TableName) {
	c.table = table.Name()
}

func (c *CommonFields) SetProvider(p SqlProviderAchieve) {
	c.provider = p
}

type Master interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func (c *CommonFields) GetMaster(ctx context.Context) Master {
	if ctx == nil {
		return c.provider.GetMaster()
	}

	tx := c.provider.GetTxFromCtx(ctx)
	if tx != nil {
		return &txWithContext{tx: tx, ctx: ctx}
	}

	return &dbWithContext{
		db:  c.provider.GetMaster(),
		ctx: ctx,
	}
}

type Replica interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
}

// GetReplica 事务中读取走事务连接，保证能读到未提交的写入
func (c *CommonFields) GetReplica(ctx context.Context) Replica {
	if ctx == nil {
		return c.provider.GetReplica()
	}

	tx := c.provider.GetTxFromCtx(ctx)
	if tx != nil {
		return &txWithContext{tx: tx, ctx: ctx}
	}

	return &dbWithContext{
		db:  c.provider.GetReplica(),
		ctx: ctx,
	}
}

// exec 构建并在 master 上执行写语句
func (c *CommonFields) exec(ctx context.Context, query sq.Sqlizer) (sql.Result, error) {
	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}
	return c.GetMaster(ctx).Exec(queryString, args...)
}

func (c *CommonFields) selectInto(ctx context.Context, dest interface{}, query sq.Sqlizer) error {
	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}
	return c.GetReplica(ctx).Select(dest, queryString, args...)
}

func (c *CommonFields) getInto(ctx context.Context, dest interface{}, query sq.Sqlizer) error {
	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}
	return c.GetReplica(ctx).Get(dest, queryString, args...)
}

type dbWithContext struct {
	db  *sqlx.DB
	ctx context.Context
}

func (d *dbWithContext) Get(dest interface{}, query string, args ...interface{}) error {
	return d.db.GetContext(d.ctx, dest, query, args...)
}

func (d *dbWithContext) Select(dest interface{}, query string, args ...interface{}) error {
	return d.db.SelectContext(d.ctx, dest, query, args...)
}

func (d *dbWithContext) Exec(query string, args ...interface{}) (sql.Result, error) {
	return d.db.ExecContext(d.ctx, query, args...)
}

type txWithContext struct {
	tx  *sqlx.Tx
	ctx context.Context
}

func (d *txWithContext) Get(dest interface{}, query string, args ...interface{}) error {
	return d.tx.GetContext(d.ctx, dest, query, args...)
}

func (d *txWithContext) Select(dest interface{}, query string, args ...interface{}) error {
	return d.tx.SelectContext(d.ctx, dest, query, args...)
}

func (d *txWithContext) Exec(query string, args ...interface{}) (sql.Result, error) {
	return d.tx.ExecContext(d.ctx, query, args...)
}
