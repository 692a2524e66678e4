package database

import "context"

type txKey struct{}

// TxInfo is the transaction carried by a unit of work. Owned is false for
// nested units that joined an outer transaction.
type TxInfo struct {
	Tx    Transaction
	Owned bool
}

// WithTx stores the transaction in ctx.
func WithTx(ctx context.Context, tx Transaction, owned bool) context.Context {
	return context.WithValue(ctx, txKey{}, TxInfo{Tx: tx, Owned: owned})
}

// TxInfoFromContext returns the transaction stored in ctx, if any.
func TxInfoFromContext(ctx context.Context) (TxInfo, bool) {
	info, ok := ctx.Value(txKey{}).(TxInfo)
	if !ok || info.Tx == nil {
		return TxInfo{}, false
	}
	return info, true
}

// ExecutorFromContext prefers the ambient transaction over the pool.
func ExecutorFromContext(ctx context.Context, conn Connection) Executor {
	if info, ok := TxInfoFromContext(ctx); ok {
		return info.Tx
	}
	return conn
}

// InTx runs fn on the ambient transaction, or opens and finishes a new one
// when the caller did not start a unit of work.
func InTx(ctx context.Context, conn Connection, fn func(exec Executor) error) error {
	if info, ok := TxInfoFromContext(ctx); ok {
		return fn(info.Tx)
	}

	tx, err := conn.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
