package http

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/orderflow/payment-core/internal/core"
	"github.com/orderflow/payment-core/internal/port/input"
	"github.com/orderflow/payment-core/internal/port/output"
)

// WebhookHandler is the boundary for inbound provider callbacks. Signature
// verification happens here, before the orchestrator ever sees the event.
type WebhookHandler struct {
	providers    output.ProviderFactory
	orchestrator input.PaymentOrchestrator
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(providers output.ProviderFactory, orchestrator input.PaymentOrchestrator) *WebhookHandler {
	return &WebhookHandler{providers: providers, orchestrator: orchestrator}
}

// Handle receives one provider's callback, verifies its signature, parses it
// and hands it to the orchestrator. Duplicates and absorbed oddities are
// acknowledged with 200 so the provider stops redelivering.
func (h *WebhookHandler) Handle(c echo.Context) error {
	provider, err := h.providers.Make(c.Param("provider"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "unknown provider",
		})
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "failed to read request body",
		})
	}
	request := core.WebhookRequest{
		Headers: c.Request().Header,
		Body:    body,
	}

	verification := provider.VerifyWebhook(request)
	if !verification.Valid {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": verification.Reason,
		})
	}

	event, err := provider.ParseWebhook(request)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "malformed webhook payload",
		})
	}

	result, err := h.orchestrator.ProcessWebhook(c.Request().Context(), provider.Name(), event, true)
	if err != nil {
		// Infrastructure fault; a non-2xx makes the provider redeliver.
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to process webhook",
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": string(result.Outcome),
	})
}
