package database

import (
	"context"

	"github.com/orderflow/payment-core/internal/port/output"
	"gorm.io/gorm"
)

type txContextKey struct{}

// withTx returns a ctx carrying the transaction handle so repository calls
// made inside a unit of work join it.
func withTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// handle returns the transaction from ctx when inside a unit of work, the
// base connection otherwise.
func handle(ctx context.Context, base *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txContextKey{}).(*gorm.DB); ok {
		return tx
	}
	return base.WithContext(ctx)
}

// GormUnitOfWork implements the UnitOfWork output port over a GORM
// transaction. The status write and the order side effect run through it so
// "transaction succeeded but order never marked paid" cannot be observed.
type GormUnitOfWork struct {
	db *gorm.DB
}

// NewGormUnitOfWork creates the unit of work.
func NewGormUnitOfWork(db *gorm.DB) output.UnitOfWork {
	return &GormUnitOfWork{db: db}
}

// Do runs fn inside one database transaction.
func (u *GormUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(withTx(ctx, tx))
	})
}
