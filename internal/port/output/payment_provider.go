package output

import (
	"context"

	"github.com/google/uuid"
	"github.com/orderflow/payment-core/internal/core"
)

// CreatePaymentRequest carries everything a provider needs to open a charge
// or checkout session on its network.
type CreatePaymentRequest struct {
	OrderID        uuid.UUID
	AmountMinor    int64
	Currency       string
	IdempotencyKey string
	Metadata       map[string]string
}

// PaymentProvider is an output port wrapping one external payment network.
// Implementations own the status mapping from their native vocabulary to the
// canonical one and the signature scheme of their webhooks; nothing outside
// an implementation references either.
type PaymentProvider interface {
	// Name returns the registry name of the provider.
	Name() string

	// CreatePayment initiates a charge/session on the provider network.
	CreatePayment(ctx context.Context, req CreatePaymentRequest) core.PaymentResult

	// ConfirmPayment runs the explicit confirmation step for providers that
	// require one; providers without such a step report success unchanged.
	ConfirmPayment(ctx context.Context, txn *core.PaymentTransaction, metadata map[string]string) core.PaymentResult

	// FetchStatus polls the provider for the current status of a payment.
	FetchStatus(ctx context.Context, txn *core.PaymentTransaction) core.PaymentStatusResult

	// VerifyWebhook validates the authenticity of an inbound callback.
	VerifyWebhook(req core.WebhookRequest) core.WebhookVerification

	// ParseWebhook extracts the canonical event shape from a provider payload.
	ParseWebhook(req core.WebhookRequest) (core.ProviderWebhookEvent, error)
}

// ProviderFactory resolves a provider name to an implementation. The registry
// is closed and built once at process start; an unknown name is a
// configuration error, never a panic.
type ProviderFactory interface {
	Make(name string) (PaymentProvider, error)
}
