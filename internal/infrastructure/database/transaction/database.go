package transaction

import (
	"context"

	"gorm.io/gorm"
)

// TransactionContextKey binds an open transaction to a context. Repositories
// resolve their handle through GetTx, so every call made with that context
// joins the transaction.
type TransactionContextKey struct{}

// WithTx returns a context carrying tx.
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, TransactionContextKey{}, tx)
}

// Database hands repositories their gorm handle, transaction-aware.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db}
}

// GetTx returns the transaction bound to the context, falling back to the
// base handle when none is set.
func (t *Database) GetTx(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TransactionContextKey{}).(*gorm.DB); ok {
		return tx
	}
	return t.db
}

// RunInTx executes fn inside a transaction. The context passed to fn
// resolves GetTx to that transaction, so nested repository calls join it.
// Inside an existing transaction gorm falls back to savepoints.
func (t *Database) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return t.GetTx(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(WithTx(ctx, tx))
	})
}
