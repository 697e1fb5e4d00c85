package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/orderflow/payment-core/internal/core"
	"github.com/orderflow/payment-core/internal/port/input"
)

// PaymentHandler is a primary adapter (HTTP handler)
type PaymentHandler struct {
	orchestrator input.PaymentOrchestrator
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(orchestrator input.PaymentOrchestrator) *PaymentHandler {
	return &PaymentHandler{orchestrator: orchestrator}
}

// CreatePaymentRequest represents the HTTP request to create a payment
type CreatePaymentRequest struct {
	OrderID     string `json:"order_id"`
	Provider    string `json:"provider,omitempty"`
	AmountMinor int64  `json:"amount_minor,omitempty"`
}

// TransactionResponse represents the HTTP response for a transaction
type TransactionResponse struct {
	ID                string `json:"id"`
	OrderID           string `json:"order_id"`
	Provider          string `json:"provider"`
	ProviderPaymentID string `json:"provider_payment_id,omitempty"`
	Status            string `json:"status"`
	AmountMinor       int64  `json:"amount_minor"`
	Currency          string `json:"currency"`
	CheckoutURL       string `json:"checkout_url,omitempty"`
	ErrorMessage      string `json:"error_message,omitempty"`
	CreatedAt         string `json:"created_at"`
}

// CreatePayment handles payment creation. The Idempotency-Key header is
// mandatory; the orchestrator is never invoked without one.
func (h *PaymentHandler) CreatePayment(c echo.Context) error {
	idempotencyKey := c.Request().Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Idempotency-Key header is required",
		})
	}

	var req CreatePaymentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid order ID",
		})
	}

	result, err := h.orchestrator.CreatePayment(c.Request().Context(), input.CreatePaymentInput{
		OrderID:        orderID,
		IdempotencyKey: idempotencyKey,
		Provider:       req.Provider,
		AmountMinor:    req.AmountMinor,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to create payment",
		})
	}

	switch result.Outcome {
	case core.CreateSuccess:
		return c.Blob(result.Response.StatusCode, result.Response.ContentType, result.Response.Body)
	case core.CreateCached:
		// Exact replay of the original reply, status code included.
		return c.Blob(result.Response.StatusCode, result.Response.ContentType, result.Response.Body)
	case core.CreateConflict:
		return c.JSON(http.StatusConflict, map[string]string{
			"error": "idempotency key was reused with a different payload",
		})
	default:
		return c.JSON(failureStatus(result.ErrorCode), map[string]string{
			"error_code": result.ErrorCode,
			"error":      result.ErrorMessage,
		})
	}
}

// failureStatus maps failure codes to HTTP statuses: local validation and
// configuration problems are the caller's to fix, provider rejections are
// upstream failures.
func failureStatus(errorCode string) int {
	switch errorCode {
	case core.ErrCodeOrderNotFound:
		return http.StatusNotFound
	case core.ErrCodeOrderNotPayable, core.ErrCodeUnknownProvider:
		return http.StatusUnprocessableEntity
	case core.ErrCodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

// GetPayment handles transaction retrieval by ID
func (h *PaymentHandler) GetPayment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid payment ID",
		})
	}

	txn, err := h.orchestrator.GetPayment(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{
				"error": "Payment not found",
			})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to retrieve payment",
		})
	}

	return c.JSON(http.StatusOK, TransactionResponse{
		ID:                txn.ID.String(),
		OrderID:           txn.OrderID.String(),
		Provider:          txn.Provider,
		ProviderPaymentID: txn.ProviderPaymentID,
		Status:            string(txn.Status),
		AmountMinor:       txn.AmountMinor,
		Currency:          txn.Currency,
		CheckoutURL:       txn.CheckoutURL,
		ErrorMessage:      txn.ErrorMessage,
		CreatedAt:         txn.CreatedAt.Format(time.RFC3339),
	})
}

// ReconcileResponse represents the HTTP response for a reconcile run
type ReconcileResponse struct {
	Outcome        string `json:"outcome"`
	Detail         string `json:"detail,omitempty"`
	OldStatus      string `json:"old_status,omitempty"`
	NewStatus      string `json:"new_status,omitempty"`
	LocalStatus    string `json:"local_status,omitempty"`
	ProviderStatus string `json:"provider_status,omitempty"`
}

// Reconcile triggers an on-demand reconciliation of one transaction.
func (h *PaymentHandler) Reconcile(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid payment ID",
		})
	}

	result, err := h.orchestrator.Reconcile(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{
				"error": "Payment not found",
			})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to reconcile payment",
		})
	}

	return c.JSON(http.StatusOK, ReconcileResponse{
		Outcome:        string(result.Outcome),
		Detail:         result.Detail,
		OldStatus:      string(result.OldStatus),
		NewStatus:      string(result.NewStatus),
		LocalStatus:    string(result.LocalStatus),
		ProviderStatus: string(result.ProviderStatus),
	})
}
