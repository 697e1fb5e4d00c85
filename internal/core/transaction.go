package core

import (
	"time"

	"github.com/google/uuid"
)

// TransactionStatus represents the canonical status of a payment transaction.
// Provider-native vocabularies are mapped to this set at the provider boundary
// and nothing else in the system sees them.
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusProcessing TransactionStatus = "processing"
	StatusSucceeded  TransactionStatus = "succeeded"
	StatusFailed     TransactionStatus = "failed"
	StatusCancelled  TransactionStatus = "cancelled"
	StatusExpired    TransactionStatus = "expired"
)

// allowedTransitions is the fixed transition table. Statuses absent from the
// map are terminal and have no outgoing edges.
var allowedTransitions = map[TransactionStatus][]TransactionStatus{
	StatusPending:    {StatusProcessing, StatusExpired, StatusCancelled},
	StatusProcessing: {StatusSucceeded, StatusFailed, StatusCancelled},
}

// IsTerminal reports whether no further transitions are permitted from s.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// CanTransitionTo consults the transition table.
func (s TransactionStatus) CanTransitionTo(target TransactionStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// PaymentTransaction is the canonical local record of a payment's lifecycle.
// Rows are created only by the orchestrator's CreatePayment and the status is
// mutated only through TransitionTo.
type PaymentTransaction struct {
	ID                 uuid.UUID
	OrderID            uuid.UUID
	Provider           string
	ProviderPaymentID  string // empty until the provider responds
	Status             TransactionStatus
	AmountMinor        int64
	Currency           string
	IdempotencyKeyHash string
	CheckoutURL        string
	ClientSecret       string
	Metadata           map[string]string
	ErrorMessage       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsTerminal reports whether the transaction has reached a terminal status.
func (t *PaymentTransaction) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// TransitionTo applies the status change if the transition table allows it and
// reports whether it was applied. Callers decide whether a rejection is fatal.
func (t *PaymentTransaction) TransitionTo(target TransactionStatus) bool {
	if !t.Status.CanTransitionTo(target) {
		return false
	}
	t.Status = target
	return true
}
