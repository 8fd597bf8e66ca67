package xcontext

import (
	"context"

	"gorm.io/gorm"
)

type dbTxKey struct{}

type dbTxHolder struct {
	tx   *gorm.DB
	done bool
}

// DB returns the gorm.DB of this context. If a transaction began with
// WithDBTransaction and hasn't finished yet, the transaction is returned
// instead.
func DB(ctx context.Context) *gorm.DB {
	if holder, ok := ctx.Value(dbTxKey{}).(*dbTxHolder); ok && !holder.done {
		return holder.tx
	}

	return ctx.Value(dbKey{}).(*gorm.DB)
}

// WithDBTransaction begins a database transaction and replaces the returned
// value of DB() by it until the transaction is committed or rolled back.
func WithDBTransaction(ctx context.Context) context.Context {
	return context.WithValue(ctx, dbTxKey{}, &dbTxHolder{tx: DB(ctx).Begin()})
}

// WithCommitDBTransaction commits the current transaction if it exists.
func WithCommitDBTransaction(ctx context.Context) context.Context {
	if holder, ok := ctx.Value(dbTxKey{}).(*dbTxHolder); ok && !holder.done {
		holder.tx.Commit()
		holder.done = true
	}

	return ctx
}

// WithRollbackDBTransaction rollbacks the current transaction if it exists
// and hasn't been committed. It is safe to defer right after
// WithDBTransaction.
func WithRollbackDBTransaction(ctx context.Context) context.Context {
	if holder, ok := ctx.Value(dbTxKey{}).(*dbTxHolder); ok && !holder.done {
		holder.tx.Rollback()
		holder.done = true
	}

	return ctx
}
