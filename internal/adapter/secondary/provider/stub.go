package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/orderflow/payment-core/internal/core"
	"github.com/orderflow/payment-core/internal/port/output"
)

// StubProvider is the development/test provider. Every operation succeeds
// immediately and every webhook verifies. The factory keeps it out of
// production registries.
type StubProvider struct{}

// NewStubProvider creates the stub provider.
func NewStubProvider() *StubProvider {
	return &StubProvider{}
}

var _ output.PaymentProvider = (*StubProvider)(nil)

func (p *StubProvider) Name() string { return "stub" }

func (p *StubProvider) CreatePayment(_ context.Context, req output.CreatePaymentRequest) core.PaymentResult {
	return core.PaymentResult{
		Success:           true,
		ProviderPaymentID: "stub_" + uuid.NewString(),
		Status:            core.StatusSucceeded,
		Metadata:          req.Metadata,
	}
}

func (p *StubProvider) ConfirmPayment(_ context.Context, txn *core.PaymentTransaction, _ map[string]string) core.PaymentResult {
	return core.PaymentResult{
		Success:           true,
		ProviderPaymentID: txn.ProviderPaymentID,
		Status:            core.StatusSucceeded,
	}
}

func (p *StubProvider) FetchStatus(_ context.Context, txn *core.PaymentTransaction) core.PaymentStatusResult {
	raw, _ := json.Marshal(map[string]string{
		"payment_id": txn.ProviderPaymentID,
		"status":     "succeeded",
	})
	return core.PaymentStatusResult{Success: true, Status: core.StatusSucceeded, Raw: raw}
}

func (p *StubProvider) VerifyWebhook(core.WebhookRequest) core.WebhookVerification {
	return core.WebhookVerification{Valid: true}
}

// stubWebhookPayload is the callback shape the stub emits in tests and
// development tooling.
type stubWebhookPayload struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

func (p *StubProvider) ParseWebhook(req core.WebhookRequest) (core.ProviderWebhookEvent, error) {
	var payload stubWebhookPayload
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return core.ProviderWebhookEvent{}, fmt.Errorf("malformed stub webhook payload: %w", err)
	}
	if payload.ID == "" {
		return core.ProviderWebhookEvent{}, fmt.Errorf("stub webhook payload has no event id")
	}
	return core.ProviderWebhookEvent{
		EventID:           payload.ID,
		EventType:         payload.Type,
		ProviderPaymentID: payload.PaymentID,
		Status:            core.TransactionStatus(payload.Status),
		RawPayload:        req.Body,
	}, nil
}
