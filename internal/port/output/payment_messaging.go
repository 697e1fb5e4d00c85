package output

import (
	"context"

	"github.com/google/uuid"
	"github.com/orderflow/payment-core/internal/core"
)

// Payment lifecycle events published to the message broker.
const (
	EventPaymentCreated   = "payment.created"
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
	EventPaymentCancelled = "payment.cancelled"
	EventPaymentExpired   = "payment.expired"
)

// EventPublisher is an output port for payment lifecycle notifications.
// Publishing is best-effort from the orchestrator's point of view: a publish
// failure is logged, never surfaced to the caller.
type EventPublisher interface {
	// PublishPaymentEvent announces a lifecycle event for a transaction.
	PublishPaymentEvent(ctx context.Context, event string, txn *core.PaymentTransaction) error
	// RequestReconcile enqueues a reconcile request for the worker.
	RequestReconcile(ctx context.Context, transactionID uuid.UUID, requestedBy string) error
	// Close closes the messaging connection.
	Close() error
}
