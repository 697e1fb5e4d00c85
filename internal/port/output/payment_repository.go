package output

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/orderflow/payment-core/internal/core"
)

// PaymentTransactionRepository is an output port for transaction persistence.
// Methods called with a ctx produced by UnitOfWork.Do join that database
// transaction.
type PaymentTransactionRepository interface {
	// Create inserts a new transaction row.
	Create(ctx context.Context, txn *core.PaymentTransaction) error

	// GetByID retrieves a transaction by its ID; core.ErrNotFound when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*core.PaymentTransaction, error)

	// GetByProviderPaymentID locates the transaction a webhook refers to.
	GetByProviderPaymentID(ctx context.Context, provider, providerPaymentID string) (*core.PaymentTransaction, error)

	// UpdateStatus persists the transaction's current status and error message.
	UpdateStatus(ctx context.Context, txn *core.PaymentTransaction) error

	// ListStaleNonTerminal returns non-terminal transactions not touched
	// since updatedBefore, oldest first, for reconciliation sweeps.
	ListStaleNonTerminal(ctx context.Context, updatedBefore time.Time, limit int) ([]*core.PaymentTransaction, error)
}

// WebhookEventRepository is an output port for inbound webhook storage.
type WebhookEventRepository interface {
	// Insert stores the event. created is false when a row for the event's
	// (provider, event_id) already exists; the unique constraint is the
	// dedup mechanism under concurrent delivery.
	Insert(ctx context.Context, event *core.WebhookEvent) (created bool, err error)

	// MarkProcessed stamps processed_at and records a processing error, if
	// any. Never reverted once set.
	MarkProcessed(ctx context.Context, event *core.WebhookEvent, processingError string) error
}

// OrderGateway resolves order IDs to the external order collaborator.
type OrderGateway interface {
	GetByID(ctx context.Context, id uuid.UUID) (core.Order, error)
}

// UnitOfWork runs fn within one database transaction. Repository and order
// calls made with the ctx passed to fn are applied atomically; returning an
// error rolls everything back.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}
