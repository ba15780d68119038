package sqlstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/scholarly-ai/scholarly/pkg/utils"
)

type ConnectConfig interface {
	FormatDSN() string
}

type SqlProvider struct {
	master   *sqlx.DB
	replicas []*sqlx.DB
}

func (s *SqlProvider) GetTxFromCtx(ctx context.Context) *sqlx.Tx {
	if driver, ok := ctx.Value(TransactionKey{}).(*sqlx.Tx); ok {
		return driver
	}
	return nil
}

func (s *SqlProvider) GetMaster() *sqlx.DB {
	return s.master
}

func (s *SqlProvider) GetReplica() *sqlx.DB {
	return s.replicas[utils.Random(0, len(s.replicas)-1)]
}

type TransactionKey struct{}

// Transaction 在 ctx 中开启事务，嵌套调用复用外层事务
func (s *SqlProvider) Transaction(ctx context.Context, next func(ctx context.Context) error) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if s.GetTxFromCtx(ctx) != nil {
		return next(ctx)
	}

	var tx *sqlx.Tx
	if tx, err = s.GetMaster().BeginTxx(ctx, nil); err != nil {
		return err
	}

	defer func() {
		r := recover()
		if r == nil && err == nil {
			return
		}
		if r != nil {
			err = fmt.Errorf("transaction panic: %v", r)
		}
		slog.Error("Transaction rollbacked", slog.Any("recover", r), slog.String("error", err.Error()), slog.String("component", "sqlstore.Transaction"))
		_ = tx.Rollback()
	}()

	if err = next(context.WithValue(ctx, TransactionKey{}, tx)); err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

// 建立数据库连接
func (s *SqlProvider) initConnection(conf ConnectConfig) (*sqlx.DB, error) {
	return sqlx.Open("postgres", conf.FormatDSN())
}

// NewSqlProvider 使用已建立的连接，replicas 为空时读写都走 master
func NewSqlProvider(master *sqlx.DB, replicas ...*sqlx.DB) *SqlProvider {
	if len(replicas) == 0 {
		replicas = []*sqlx.DB{master}
	}
	return &SqlProvider{
		master:   master,
		replicas: replicas,
	}
}

func MustSetupProvider(m ConnectConfig, s ...ConnectConfig) *SqlProvider {
	provider := &SqlProvider{}

	engine, err := provider.initConnection(m)
	if err != nil {
		panic(err)
	}

	var slaves []*sqlx.DB
	for _, v := range s {
		slave, err := provider.initConnection(v)
		if err != nil {
			panic(err)
		}
		slaves = append(slaves, slave)
	}

	return NewSqlProvider(engine, slaves...)
}

func (s *SqlProvider) Ping(ctx context.Context) error {
	return s.master.PingContext(ctx)
}

func (s *SqlProvider) Close() error {
	seen := map[*sqlx.DB]bool{s.master: true}
	err := s.master.Close()
	for _, r := range s.replicas {
		if seen[r] {
			continue
		}
		seen[r] = true
		if cerr := r.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
