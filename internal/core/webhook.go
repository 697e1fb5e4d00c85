package core

import (
	"net/http"
	"time"
)

// WebhookEvent is the stored record of an inbound provider callback, unique
// on (Provider, EventID). At-least-once delivery is collapsed to exactly-one
// row by that constraint.
type WebhookEvent struct {
	ID              uint
	Provider        string
	EventID         string
	EventType       string
	SignatureValid  bool
	Payload         []byte
	ReceivedAt      time.Time
	ProcessedAt     *time.Time
	ProcessingError string
}

// WebhookRequest is the raw inbound callback handed to a provider for
// signature verification and parsing.
type WebhookRequest struct {
	Headers http.Header
	Body    []byte
}

// WebhookVerification is the outcome of a provider signature check.
type WebhookVerification struct {
	Valid  bool
	Reason string
}

// ProviderWebhookEvent is the canonical event shape extracted from a
// provider-specific payload. Status is already mapped to the canonical
// vocabulary; it is empty when the event carries no status.
type ProviderWebhookEvent struct {
	EventID           string
	EventType         string
	ProviderPaymentID string
	Status            TransactionStatus
	RawPayload        []byte
}
