package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/orderflow/payment-core/internal/constant/model/db"
	"github.com/orderflow/payment-core/internal/core"
	"github.com/orderflow/payment-core/internal/port/output"
	"gorm.io/gorm"
)

// GormOrderGateway resolves order IDs against the shared orders table. In a
// deployment where the order domain lives in another service this adapter is
// replaced; the core only ever sees the core.Order interface.
type GormOrderGateway struct {
	gormDB *gorm.DB
}

// NewGormOrderGateway creates the gateway.
func NewGormOrderGateway(gormDB *gorm.DB) output.OrderGateway {
	return &GormOrderGateway{gormDB: gormDB}
}

// GetByID loads an order; core.ErrNotFound when absent.
func (g *GormOrderGateway) GetByID(ctx context.Context, id uuid.UUID) (core.Order, error) {
	var row db.Order
	if err := handle(ctx, g.gormDB).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &gormOrder{gormDB: g.gormDB, row: row}, nil
}

// gormOrder implements the core.Order collaborator over an orders row.
type gormOrder struct {
	gormDB *gorm.DB
	row    db.Order
}

func (o *gormOrder) ID() uuid.UUID            { return o.row.ID }
func (o *gormOrder) TotalMinor() int64        { return o.row.TotalMinor }
func (o *gormOrder) Currency() string         { return o.row.Currency }
func (o *gormOrder) Status() core.OrderStatus { return core.OrderStatus(o.row.Status) }

// IsPayable reports whether the order can still take a payment.
func (o *gormOrder) IsPayable() bool {
	switch core.OrderStatus(o.row.Status) {
	case core.OrderStatusDraft, core.OrderStatusPendingPayment:
		return true
	}
	return false
}

// MarkAsPaid advances the order to paid within the caller's unit of work.
func (o *gormOrder) MarkAsPaid(ctx context.Context) error {
	return o.setStatus(ctx, core.OrderStatusPaid)
}

// MarkPendingPayment advances a draft order awaiting its payment.
func (o *gormOrder) MarkPendingPayment(ctx context.Context) error {
	return o.setStatus(ctx, core.OrderStatusPendingPayment)
}

func (o *gormOrder) setStatus(ctx context.Context, status core.OrderStatus) error {
	err := handle(ctx, o.gormDB).
		Model(&db.Order{}).
		Where("id = ?", o.row.ID).
		Update("status", string(status)).Error
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	o.row.Status = string(status)
	return nil
}
