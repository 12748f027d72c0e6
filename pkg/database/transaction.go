package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type txContextKey struct{}

// Tx is the transaction Conn returns while one is bound to the context
type Tx interface {
	Querier
	IsOpen() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transaction is a sqlx.Tx bound to a context. A repository joining a transaction
// begun further up gets a non-owning handle whose Commit and Rollback do nothing.
type Transaction struct {
	*sqlx.Tx
	logger ectologger.Logger
	owner  bool
	closed bool
}

var (
	errBeginTx    = errors.New("failed to begin transaction")
	errCommitTx   = errors.New("failed to commit transaction")
	errRollbackTx = errors.New("failed to roll back transaction")
)

func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if outer, ok := ctx.Value(txContextKey{}).(*Transaction); ok && outer.IsOpen() {
		return ctx, &Transaction{Tx: outer.Tx, logger: logger}, nil
	}

	sqlTx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Error("Failed to begin transaction")
		return ctx, nil, errBeginTx
	}
	tx := &Transaction{Tx: sqlTx, logger: logger, owner: true}
	return context.WithValue(ctx, txContextKey{}, tx), tx, nil
}

// WithTx runs fn in a transaction bound to ctx. The transaction is rolled back when
// fn fails or panics and committed otherwise.
func WithTx(ctx context.Context, db DB, fn func(ctx context.Context) error) error {
	ctx, tx, err := db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (t *Transaction) IsOpen() bool {
	return !t.closed
}

func (t *Transaction) Commit(ctx context.Context) error {
	return t.finish(ctx, t.Tx.Commit, errCommitTx)
}

func (t *Transaction) Rollback(ctx context.Context) error {
	return t.finish(ctx, t.Tx.Rollback, errRollbackTx)
}

func (t *Transaction) finish(ctx context.Context, fn func() error, failure error) error {
	if t.closed || !t.owner {
		return nil
	}
	t.closed = true
	if err := fn(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Error(failure.Error())
		return failure
	}
	return nil
}
