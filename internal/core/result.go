package core

import "errors"

// ErrNotFound is returned by repositories and gateways when a row does not
// exist. Callers branch on it with errors.Is.
var ErrNotFound = errors.New("not found")

// PaymentResult is what a provider reports back from a create or confirm
// call. Status is already mapped to the canonical vocabulary.
type PaymentResult struct {
	Success           bool
	ProviderPaymentID string
	CheckoutURL       string
	ClientSecret      string
	Status            TransactionStatus
	Metadata          map[string]string
	ErrorCode         string
	ErrorMessage      string
}

// PaymentStatusResult is the outcome of polling a provider for the current
// status of a payment. Raw keeps the unmapped provider response for audit.
type PaymentStatusResult struct {
	Success      bool
	Status       TransactionStatus
	Raw          []byte
	ErrorMessage string
}

// CreateOutcome discriminates the result of CreatePayment.
type CreateOutcome string

const (
	CreateSuccess  CreateOutcome = "success"
	CreateCached   CreateOutcome = "cached"
	CreateConflict CreateOutcome = "conflict"
	CreateFailure  CreateOutcome = "failure"
)

// Failure codes CreatePayment reports without ever reaching the provider.
const (
	ErrCodeOrderNotFound   = "order_not_found"
	ErrCodeOrderNotPayable = "order_not_payable"
	ErrCodeUnknownProvider = "unknown_provider"
	ErrCodeInternal        = "internal_error"
)

// CreatePaymentResult is the tagged result of CreatePayment.
type CreatePaymentResult struct {
	Outcome      CreateOutcome
	Transaction  *PaymentTransaction // set on success
	Response     *CachedResponse     // set on success and cached
	ErrorCode    string              // set on failure
	ErrorMessage string              // set on failure
}

func CreateSucceeded(txn *PaymentTransaction, resp *CachedResponse) CreatePaymentResult {
	return CreatePaymentResult{Outcome: CreateSuccess, Transaction: txn, Response: resp}
}

func CreateReplayed(resp *CachedResponse) CreatePaymentResult {
	return CreatePaymentResult{Outcome: CreateCached, Response: resp}
}

func CreateConflicted() CreatePaymentResult {
	return CreatePaymentResult{Outcome: CreateConflict}
}

func CreateFailed(code, message string) CreatePaymentResult {
	return CreatePaymentResult{Outcome: CreateFailure, ErrorCode: code, ErrorMessage: message}
}

// WebhookOutcome discriminates the result of ProcessWebhook.
type WebhookOutcome string

const (
	WebhookHandled     WebhookOutcome = "processed"
	WebhookIsDuplicate WebhookOutcome = "duplicate"
)

// WebhookResult is the tagged result of ProcessWebhook. Domain-level
// oddities (orphaned events, rejected transitions) are absorbed into a
// processed result with a Detail; they are never caller-facing errors.
type WebhookResult struct {
	Outcome WebhookOutcome
	Detail  string
}

func WebhookProcessed(detail string) WebhookResult {
	return WebhookResult{Outcome: WebhookHandled, Detail: detail}
}

func WebhookDuplicate() WebhookResult {
	return WebhookResult{Outcome: WebhookIsDuplicate, Detail: "event already stored"}
}

// ReconcileOutcome discriminates the result of Reconcile.
type ReconcileOutcome string

const (
	ReconcileOutcomeSkipped   ReconcileOutcome = "skipped"
	ReconcileOutcomeFailure   ReconcileOutcome = "failure"
	ReconcileOutcomeUnchanged ReconcileOutcome = "unchanged"
	ReconcileOutcomeUpdated   ReconcileOutcome = "updated"
	ReconcileOutcomeMismatch  ReconcileOutcome = "mismatch"
)

// ReconcileResult is the tagged result of Reconcile. Mismatch carries both
// sides of an unresolvable divergence for manual handling; state is never
// force-overwritten outside the transition table.
type ReconcileResult struct {
	Outcome        ReconcileOutcome
	Detail         string
	OldStatus      TransactionStatus // updated
	NewStatus      TransactionStatus // updated
	LocalStatus    TransactionStatus // mismatch
	ProviderStatus TransactionStatus // mismatch
}

func ReconcileSkipped(reason string) ReconcileResult {
	return ReconcileResult{Outcome: ReconcileOutcomeSkipped, Detail: reason}
}

func ReconcileFailed(message string) ReconcileResult {
	return ReconcileResult{Outcome: ReconcileOutcomeFailure, Detail: message}
}

func ReconcileUnchanged(status TransactionStatus) ReconcileResult {
	return ReconcileResult{Outcome: ReconcileOutcomeUnchanged, LocalStatus: status, ProviderStatus: status}
}

func ReconcileUpdated(old, new TransactionStatus) ReconcileResult {
	return ReconcileResult{Outcome: ReconcileOutcomeUpdated, OldStatus: old, NewStatus: new}
}

func ReconcileMismatched(local, provider TransactionStatus) ReconcileResult {
	return ReconcileResult{Outcome: ReconcileOutcomeMismatch, LocalStatus: local, ProviderStatus: provider}
}
