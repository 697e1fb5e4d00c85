package core

import (
	"context"

	"github.com/google/uuid"
)

// OrderStatus mirrors the order domain's status vocabulary as far as this
// subsystem needs to see it.
type OrderStatus string

const (
	OrderStatusDraft          OrderStatus = "draft"
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// Order is the collaborator interface onto the order domain. The order/cart
// subsystem itself is out of scope; payments only consume this surface.
// MarkAsPaid and MarkPendingPayment join the database transaction carried by
// ctx so the status write and the order side effect land atomically.
type Order interface {
	ID() uuid.UUID
	TotalMinor() int64
	Currency() string
	Status() OrderStatus
	IsPayable() bool
	MarkAsPaid(ctx context.Context) error
	MarkPendingPayment(ctx context.Context) error
}
