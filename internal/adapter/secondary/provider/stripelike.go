package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/orderflow/payment-core/internal/core"
	"github.com/orderflow/payment-core/internal/port/output"
)

// signatureTolerance bounds how old a webhook timestamp may be before the
// signature is rejected, in either direction.
const signatureTolerance = 300 * time.Second

// stripeLikeStatusMap is the only place allowed to know this provider's
// native status vocabulary.
var stripeLikeStatusMap = map[string]core.TransactionStatus{
	"requires_payment_method": core.StatusPending,
	"requires_confirmation":   core.StatusPending,
	"requires_action":         core.StatusPending,
	"processing":              core.StatusProcessing,
	"succeeded":               core.StatusSucceeded,
	"canceled":                core.StatusCancelled,
}

func mapStripeLikeStatus(native string) core.TransactionStatus {
	if mapped, ok := stripeLikeStatusMap[native]; ok {
		return mapped
	}
	return core.StatusFailed
}

// StripeLikeConfig carries credentials and endpoint for the card-rail
// provider.
type StripeLikeConfig struct {
	APIKey        string
	WebhookSecret string
	BaseURL       string
	Timeout       time.Duration
}

// StripeLikeProvider talks to a card-processor network with payment-intent
// semantics: create, optional confirm, poll, HMAC-signed webhooks.
type StripeLikeProvider struct {
	cfg    StripeLikeConfig
	client *http.Client
	now    func() time.Time
}

// NewStripeLikeProvider creates the provider with a bounded HTTP timeout.
func NewStripeLikeProvider(cfg StripeLikeConfig) *StripeLikeProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &StripeLikeProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}
}

var _ output.PaymentProvider = (*StripeLikeProvider)(nil)

func (p *StripeLikeProvider) Name() string { return "stripelike" }

// paymentIntent is the provider's wire shape for an intent.
type paymentIntent struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ClientSecret string `json:"client_secret"`
	NextAction   *struct {
		RedirectToURL *struct {
			URL string `json:"url"`
		} `json:"redirect_to_url"`
	} `json:"next_action"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *StripeLikeProvider) CreatePayment(ctx context.Context, req output.CreatePaymentRequest) core.PaymentResult {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.AmountMinor, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	for k, v := range req.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	intent, errResult := p.doIntentRequest(ctx, http.MethodPost, "/v1/payment_intents", form, req.IdempotencyKey)
	if errResult != nil {
		return *errResult
	}
	return p.intentToResult(intent)
}

func (p *StripeLikeProvider) ConfirmPayment(ctx context.Context, txn *core.PaymentTransaction, _ map[string]string) core.PaymentResult {
	path := fmt.Sprintf("/v1/payment_intents/%s/confirm", txn.ProviderPaymentID)
	intent, errResult := p.doIntentRequest(ctx, http.MethodPost, path, url.Values{}, "")
	if errResult != nil {
		return *errResult
	}
	return p.intentToResult(intent)
}

func (p *StripeLikeProvider) FetchStatus(ctx context.Context, txn *core.PaymentTransaction) core.PaymentStatusResult {
	endpoint := p.cfg.BaseURL + "/v1/payment_intents/" + txn.ProviderPaymentID
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return core.PaymentStatusResult{ErrorMessage: err.Error()}
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return core.PaymentStatusResult{ErrorMessage: fmt.Sprintf("provider request failed: %v", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.PaymentStatusResult{ErrorMessage: fmt.Sprintf("failed to read provider response: %v", err)}
	}
	var intent paymentIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return core.PaymentStatusResult{ErrorMessage: fmt.Sprintf("malformed provider response: %v", err), Raw: raw}
	}
	if resp.StatusCode != http.StatusOK || intent.Error != nil {
		msg := fmt.Sprintf("provider returned status %d", resp.StatusCode)
		if intent.Error != nil {
			msg = intent.Error.Message
		}
		return core.PaymentStatusResult{ErrorMessage: msg, Raw: raw}
	}
	return core.PaymentStatusResult{
		Success: true,
		Status:  mapStripeLikeStatus(intent.Status),
		Raw:     raw,
	}
}

// VerifyWebhook validates `Signature: t=<unix-seconds>,v1=<hex>` headers:
// HMAC-SHA256(secret, "{t}.{raw_body}") compared in constant time, with the
// timestamp bounded by the tolerance window.
func (p *StripeLikeProvider) VerifyWebhook(req core.WebhookRequest) core.WebhookVerification {
	if p.cfg.WebhookSecret == "" {
		return core.WebhookVerification{Reason: "webhook secret is not configured"}
	}
	header := req.Headers.Get("Signature")
	if header == "" {
		return core.WebhookVerification{Reason: "missing Signature header"}
	}

	var timestamp int64 = -1
	var signature []byte
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return core.WebhookVerification{Reason: "malformed timestamp in Signature header"}
			}
			timestamp = parsed
		case "v1":
			decoded, err := hex.DecodeString(value)
			if err != nil {
				return core.WebhookVerification{Reason: "malformed signature in Signature header"}
			}
			signature = decoded
		}
	}
	if timestamp < 0 || len(signature) == 0 {
		return core.WebhookVerification{Reason: "malformed Signature header"}
	}

	age := p.now().Unix() - timestamp
	if age > int64(signatureTolerance.Seconds()) || -age > int64(signatureTolerance.Seconds()) {
		return core.WebhookVerification{Reason: "signature timestamp outside tolerance"}
	}

	mac := hmac.New(sha256.New, []byte(p.cfg.WebhookSecret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(req.Body)
	if !hmac.Equal(mac.Sum(nil), signature) {
		return core.WebhookVerification{Reason: "signature mismatch"}
	}
	return core.WebhookVerification{Valid: true}
}

// stripeLikeEvent is the webhook envelope shape.
type stripeLikeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"object"`
	} `json:"data"`
}

func (p *StripeLikeProvider) ParseWebhook(req core.WebhookRequest) (core.ProviderWebhookEvent, error) {
	var event stripeLikeEvent
	if err := json.Unmarshal(req.Body, &event); err != nil {
		return core.ProviderWebhookEvent{}, fmt.Errorf("malformed webhook payload: %w", err)
	}
	if event.ID == "" {
		return core.ProviderWebhookEvent{}, fmt.Errorf("webhook payload has no event id")
	}
	parsed := core.ProviderWebhookEvent{
		EventID:           event.ID,
		EventType:         event.Type,
		ProviderPaymentID: event.Data.Object.ID,
		RawPayload:        req.Body,
	}
	if event.Data.Object.Status != "" {
		parsed.Status = mapStripeLikeStatus(event.Data.Object.Status)
	}
	return parsed, nil
}

// doIntentRequest issues a form-encoded intent call and decodes the reply.
// A non-nil second return is the failure result to hand back unchanged.
func (p *StripeLikeProvider) doIntentRequest(ctx context.Context, method, path string, form url.Values, idempotencyKey string) (paymentIntent, *core.PaymentResult) {
	httpReq, err := http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+path, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return paymentIntent{}, &core.PaymentResult{ErrorCode: "request_error", ErrorMessage: err.Error()}
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return paymentIntent{}, &core.PaymentResult{ErrorCode: "network_error", ErrorMessage: fmt.Sprintf("provider request failed: %v", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return paymentIntent{}, &core.PaymentResult{ErrorCode: "network_error", ErrorMessage: fmt.Sprintf("failed to read provider response: %v", err)}
	}
	var intent paymentIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return paymentIntent{}, &core.PaymentResult{ErrorCode: "protocol_error", ErrorMessage: fmt.Sprintf("malformed provider response: %v", err)}
	}
	if resp.StatusCode >= 400 || intent.Error != nil {
		code := "provider_error"
		message := fmt.Sprintf("provider returned status %d", resp.StatusCode)
		if intent.Error != nil {
			code = intent.Error.Code
			message = intent.Error.Message
		}
		return paymentIntent{}, &core.PaymentResult{ErrorCode: code, ErrorMessage: message}
	}
	return intent, nil
}

func (p *StripeLikeProvider) intentToResult(intent paymentIntent) core.PaymentResult {
	result := core.PaymentResult{
		Success:           true,
		ProviderPaymentID: intent.ID,
		ClientSecret:      intent.ClientSecret,
		Status:            mapStripeLikeStatus(intent.Status),
	}
	if intent.NextAction != nil && intent.NextAction.RedirectToURL != nil {
		result.CheckoutURL = intent.NextAction.RedirectToURL.URL
	}
	return result
}
