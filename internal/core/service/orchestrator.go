package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/orderflow/payment-core/internal/core"
	"github.com/orderflow/payment-core/internal/port/input"
	"github.com/orderflow/payment-core/internal/port/output"
)

// PaymentOrchestrator implements the input port by composing the idempotency
// store, the provider registry, the transaction state machine and the order
// collaborator.
type PaymentOrchestrator struct {
	transactions output.PaymentTransactionRepository
	webhooks     output.WebhookEventRepository
	idempotency  output.IdempotencyStore
	orders       output.OrderGateway
	providers    output.ProviderFactory
	publisher    output.EventPublisher
	uow          output.UnitOfWork

	defaultProvider string
	log             *slog.Logger
	now             func() time.Time
}

// NewPaymentOrchestrator wires the orchestrator from its output ports.
func NewPaymentOrchestrator(
	transactions output.PaymentTransactionRepository,
	webhooks output.WebhookEventRepository,
	idempotency output.IdempotencyStore,
	orders output.OrderGateway,
	providers output.ProviderFactory,
	publisher output.EventPublisher,
	uow output.UnitOfWork,
	defaultProvider string,
	log *slog.Logger,
) *PaymentOrchestrator {
	return &PaymentOrchestrator{
		transactions:    transactions,
		webhooks:        webhooks,
		idempotency:     idempotency,
		orders:          orders,
		providers:       providers,
		publisher:       publisher,
		uow:             uow,
		defaultProvider: defaultProvider,
		log:             log,
		now:             time.Now,
	}
}

var _ input.PaymentOrchestrator = (*PaymentOrchestrator)(nil)

// paymentResponseBody is the reply cached against the idempotency record and
// replayed verbatim on retries.
type paymentResponseBody struct {
	TransactionID string `json:"transaction_id"`
	OrderID       string `json:"order_id"`
	Provider      string `json:"provider"`
	Status        string `json:"status"`
	AmountMinor   int64  `json:"amount_minor"`
	Currency      string `json:"currency"`
	CheckoutURL   string `json:"checkout_url,omitempty"`
	ClientSecret  string `json:"client_secret,omitempty"`
}

// CreatePayment creates a provider payment for an order. Retries with the
// same idempotency key and payload replay the original response; key reuse
// with a different payload is a conflict and never reaches the provider.
func (o *PaymentOrchestrator) CreatePayment(ctx context.Context, in input.CreatePaymentInput) (core.CreatePaymentResult, error) {
	if in.IdempotencyKey == "" {
		return core.CreatePaymentResult{}, fmt.Errorf("idempotency key is required")
	}

	order, err := o.orders.GetByID(ctx, in.OrderID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.CreateFailed(core.ErrCodeOrderNotFound, "order not found"), nil
		}
		return core.CreatePaymentResult{}, fmt.Errorf("failed to load order: %w", err)
	}

	amount := in.AmountMinor
	if amount == 0 {
		amount = order.TotalMinor()
	}
	currency := order.Currency()
	providerName := in.Provider
	if providerName == "" {
		providerName = o.defaultProvider
	}

	scope := "payment_create_" + in.OrderID.String()
	payload := map[string]any{
		"order_id": in.OrderID.String(),
		"provider": providerName,
		"amount":   amount,
	}
	check, err := o.idempotency.Check(ctx, in.IdempotencyKey, scope, payload)
	if err != nil {
		return core.CreatePaymentResult{}, fmt.Errorf("idempotency check failed: %w", err)
	}
	switch check.Outcome {
	case core.CheckConflict:
		o.log.Warn("idempotency key reused with different payload",
			"order_id", in.OrderID, "provider", providerName)
		return core.CreateConflicted(), nil
	case core.CheckCached:
		return core.CreateReplayed(check.Cached), nil
	}
	record := check.Record

	// The record stays pending here so a retry after the order becomes
	// payable carries the same payload and is not blocked as a conflict.
	if !order.IsPayable() {
		return core.CreateFailed(core.ErrCodeOrderNotPayable, "order is not payable"), nil
	}

	provider, err := o.providers.Make(providerName)
	if err != nil {
		o.markFailed(ctx, record)
		return core.CreateFailed(core.ErrCodeUnknownProvider, err.Error()), nil
	}

	result := provider.CreatePayment(ctx, output.CreatePaymentRequest{
		OrderID:        in.OrderID,
		AmountMinor:    amount,
		Currency:       currency,
		IdempotencyKey: in.IdempotencyKey,
		Metadata:       map[string]string{"order_id": in.OrderID.String()},
	})
	if !result.Success {
		o.log.Error("provider rejected payment creation",
			"order_id", in.OrderID, "provider", providerName,
			"error_code", result.ErrorCode, "error", result.ErrorMessage)
		o.markFailed(ctx, record)
		return core.CreateFailed(result.ErrorCode, result.ErrorMessage), nil
	}

	status := result.Status
	if status == "" {
		status = core.StatusPending
	}
	txn := &core.PaymentTransaction{
		ID:                 uuid.New(),
		OrderID:            in.OrderID,
		Provider:           provider.Name(),
		ProviderPaymentID:  result.ProviderPaymentID,
		Status:             status,
		AmountMinor:        amount,
		Currency:           currency,
		IdempotencyKeyHash: core.KeyHash(in.IdempotencyKey),
		CheckoutURL:        result.CheckoutURL,
		ClientSecret:       result.ClientSecret,
		Metadata:           result.Metadata,
	}

	err = o.uow.Do(ctx, func(ctx context.Context) error {
		if err := o.transactions.Create(ctx, txn); err != nil {
			return err
		}
		if txn.Status == core.StatusSucceeded {
			return order.MarkAsPaid(ctx)
		}
		if order.Status() == core.OrderStatusDraft {
			return order.MarkPendingPayment(ctx)
		}
		return nil
	})
	if err != nil {
		// Raw error text never reaches the caller.
		o.log.Error("failed to persist payment transaction",
			"order_id", in.OrderID, "provider", providerName, "error", err)
		o.markFailed(ctx, record)
		return core.CreateFailed(core.ErrCodeInternal, "payment could not be recorded"), nil
	}

	body, err := json.Marshal(paymentResponseBody{
		TransactionID: txn.ID.String(),
		OrderID:       txn.OrderID.String(),
		Provider:      txn.Provider,
		Status:        string(txn.Status),
		AmountMinor:   txn.AmountMinor,
		Currency:      txn.Currency,
		CheckoutURL:   txn.CheckoutURL,
		ClientSecret:  txn.ClientSecret,
	})
	if err != nil {
		return core.CreatePaymentResult{}, fmt.Errorf("failed to encode payment response: %w", err)
	}
	response := core.CachedResponse{
		StatusCode:  http.StatusCreated,
		ContentType: "application/json",
		Body:        body,
	}
	if err := o.idempotency.MarkCompleted(ctx, record, response); err != nil {
		o.log.Error("failed to complete idempotency record",
			"order_id", in.OrderID, "error", err)
	}

	o.publish(ctx, output.EventPaymentCreated, txn)
	if txn.Status == core.StatusSucceeded {
		o.publish(ctx, output.EventPaymentSucceeded, txn)
	}

	return core.CreateSucceeded(txn, &response), nil
}

// GetPayment retrieves a transaction by ID.
func (o *PaymentOrchestrator) GetPayment(ctx context.Context, id uuid.UUID) (*core.PaymentTransaction, error) {
	return o.transactions.GetByID(ctx, id)
}

// ProcessWebhook ingests a provider callback that already passed signature
// verification at the boundary. Duplicates, orphaned events and rejected
// transitions are absorbed and acknowledged; only infrastructure faults
// return an error so the provider redelivers.
func (o *PaymentOrchestrator) ProcessWebhook(ctx context.Context, provider string, event core.ProviderWebhookEvent, signatureValid bool) (core.WebhookResult, error) {
	stored := &core.WebhookEvent{
		Provider:       provider,
		EventID:        event.EventID,
		EventType:      event.EventType,
		SignatureValid: signatureValid,
		Payload:        event.RawPayload,
		ReceivedAt:     o.now(),
	}
	created, err := o.webhooks.Insert(ctx, stored)
	if err != nil {
		return core.WebhookResult{}, fmt.Errorf("failed to store webhook event: %w", err)
	}
	if !created {
		o.log.Info("duplicate webhook ignored", "provider", provider, "event_id", event.EventID)
		return core.WebhookDuplicate(), nil
	}

	if event.ProviderPaymentID == "" {
		if err := o.webhooks.MarkProcessed(ctx, stored, ""); err != nil {
			return core.WebhookResult{}, err
		}
		return core.WebhookProcessed("event carries no payment id"), nil
	}

	txn, err := o.transactions.GetByProviderPaymentID(ctx, provider, event.ProviderPaymentID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			// An unmatched webhook is not a caller-facing error; keep the
			// event with its error for later inspection.
			o.log.Warn("webhook references unknown transaction",
				"provider", provider, "event_id", event.EventID,
				"provider_payment_id", event.ProviderPaymentID)
			if err := o.webhooks.MarkProcessed(ctx, stored, "transaction not found"); err != nil {
				return core.WebhookResult{}, err
			}
			return core.WebhookProcessed("transaction not found, event stored"), nil
		}
		return core.WebhookResult{}, fmt.Errorf("failed to locate transaction: %w", err)
	}

	if !txn.IsTerminal() && event.Status != "" {
		if txn.Status.CanTransitionTo(event.Status) {
			if err := o.applyTransition(ctx, txn, event.Status); err != nil {
				return core.WebhookResult{}, err
			}
		} else {
			// Deliberately reject-and-log, including the pending→succeeded
			// jump; reconcile surfaces the divergence as a mismatch.
			o.log.Warn("webhook transition rejected",
				"provider", provider, "event_id", event.EventID,
				"transaction_id", txn.ID, "from", txn.Status, "to", event.Status)
		}
	}

	if err := o.webhooks.MarkProcessed(ctx, stored, ""); err != nil {
		return core.WebhookResult{}, err
	}
	return core.WebhookProcessed("ok"), nil
}

// Reconcile polls the provider's source of truth and applies the reported
// status when the transition table allows it.
func (o *PaymentOrchestrator) Reconcile(ctx context.Context, transactionID uuid.UUID) (core.ReconcileResult, error) {
	txn, err := o.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return core.ReconcileResult{}, fmt.Errorf("failed to load transaction: %w", err)
	}

	if txn.IsTerminal() {
		return core.ReconcileSkipped("transaction is in a terminal state"), nil
	}
	if txn.ProviderPaymentID == "" {
		return core.ReconcileSkipped("transaction has no provider payment id"), nil
	}

	provider, err := o.providers.Make(txn.Provider)
	if err != nil {
		return core.ReconcileFailed(err.Error()), nil
	}
	status := provider.FetchStatus(ctx, txn)
	if !status.Success {
		return core.ReconcileFailed(status.ErrorMessage), nil
	}

	if status.Status == txn.Status {
		return core.ReconcileUnchanged(txn.Status), nil
	}
	if !txn.Status.CanTransitionTo(status.Status) {
		o.log.Warn("reconciliation found unresolvable divergence",
			"transaction_id", txn.ID, "local", txn.Status, "provider", status.Status)
		return core.ReconcileMismatched(txn.Status, status.Status), nil
	}

	old := txn.Status
	if err := o.applyTransition(ctx, txn, status.Status); err != nil {
		return core.ReconcileResult{}, err
	}
	return core.ReconcileUpdated(old, txn.Status), nil
}

// applyTransition writes the guarded status change and the order side effect
// in one unit of work, then announces the lifecycle event.
func (o *PaymentOrchestrator) applyTransition(ctx context.Context, txn *core.PaymentTransaction, target core.TransactionStatus) error {
	err := o.uow.Do(ctx, func(ctx context.Context) error {
		if !txn.TransitionTo(target) {
			return fmt.Errorf("transition %s -> %s rejected", txn.Status, target)
		}
		if err := o.transactions.UpdateStatus(ctx, txn); err != nil {
			return err
		}
		if txn.Status == core.StatusSucceeded {
			order, err := o.orders.GetByID(ctx, txn.OrderID)
			if err != nil {
				return fmt.Errorf("failed to load order for side effect: %w", err)
			}
			return order.MarkAsPaid(ctx)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to apply status transition: %w", err)
	}

	switch txn.Status {
	case core.StatusSucceeded:
		o.publish(ctx, output.EventPaymentSucceeded, txn)
	case core.StatusFailed:
		o.publish(ctx, output.EventPaymentFailed, txn)
	case core.StatusCancelled:
		o.publish(ctx, output.EventPaymentCancelled, txn)
	case core.StatusExpired:
		o.publish(ctx, output.EventPaymentExpired, txn)
	}
	return nil
}

func (o *PaymentOrchestrator) markFailed(ctx context.Context, record *core.IdempotencyRecord) {
	if err := o.idempotency.MarkFailed(ctx, record); err != nil {
		o.log.Error("failed to mark idempotency record failed", "error", err)
	}
}

func (o *PaymentOrchestrator) publish(ctx context.Context, event string, txn *core.PaymentTransaction) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishPaymentEvent(ctx, event, txn); err != nil {
		o.log.Error("failed to publish payment event",
			"event", event, "transaction_id", txn.ID, "error", err)
	}
}
