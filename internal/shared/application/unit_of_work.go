package application

import "context"

// UnitOfWork scopes repository calls to a single transaction carried in the context.
type UnitOfWork interface {
	Begin(ctx context.Context) (context.Context, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UnitOfWorkFunc runs with the transactional context.
type UnitOfWorkFunc func(ctx context.Context) error

// WithUnitOfWork runs fn inside a transaction. Any error or panic from fn
// rolls the transaction back, so callers never observe a partial write.
func WithUnitOfWork(ctx context.Context, uow UnitOfWork, fn UnitOfWorkFunc) (err error) {
	txCtx, err := uow.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = uow.Rollback(txCtx)
			panic(r)
		}
	}()

	if err := fn(txCtx); err != nil {
		_ = uow.Rollback(txCtx)
		return err
	}

	return uow.Commit(txCtx)
}

// NoopUnitOfWork is used with in-memory repositories.
type NoopUnitOfWork struct{}

func (NoopUnitOfWork) Begin(ctx context.Context) (context.Context, error) { return ctx, nil }
func (NoopUnitOfWork) Commit(context.Context) error                       { return nil }
func (NoopUnitOfWork) Rollback(context.Context) error                     { return nil }
