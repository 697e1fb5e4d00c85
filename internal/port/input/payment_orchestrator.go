package input

import (
	"context"

	"github.com/google/uuid"
	"github.com/orderflow/payment-core/internal/core"
)

// CreatePaymentInput is the request to open a payment for an order.
// Provider and AmountMinor are optional; the orchestrator falls back to the
// configured default provider and the order total. IdempotencyKey is
// mandatory; the boundary must never invoke CreatePayment without one.
type CreatePaymentInput struct {
	OrderID        uuid.UUID
	IdempotencyKey string
	Provider       string
	AmountMinor    int64
}

// PaymentOrchestrator is the input port composing idempotency, providers and
// the transaction state machine. Primary adapters (HTTP handlers, the
// reconcile worker) drive the system through it.
type PaymentOrchestrator interface {
	// CreatePayment creates a provider payment for an order with
	// exactly-once semantics for client retries.
	CreatePayment(ctx context.Context, in CreatePaymentInput) (core.CreatePaymentResult, error)

	// GetPayment retrieves a transaction by ID.
	GetPayment(ctx context.Context, id uuid.UUID) (*core.PaymentTransaction, error)

	// ProcessWebhook ingests a verified, parsed provider callback. Signature
	// verification happens at the boundary before this is invoked.
	ProcessWebhook(ctx context.Context, provider string, event core.ProviderWebhookEvent, signatureValid bool) (core.WebhookResult, error)

	// Reconcile polls the provider's source of truth for a transaction and
	// resolves or reports divergence from local state.
	Reconcile(ctx context.Context, transactionID uuid.UUID) (core.ReconcileResult, error)
}
