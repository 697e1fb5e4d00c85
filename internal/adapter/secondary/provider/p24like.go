package provider

import (
	"bytes"
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/orderflow/payment-core/internal/core"
	"github.com/orderflow/payment-core/internal/port/output"
)

// mapP24LikeStatus translates the bank rail's numeric status codes.
func mapP24LikeStatus(code int) core.TransactionStatus {
	switch code {
	case 0:
		return core.StatusPending
	case 1, 2:
		return core.StatusProcessing
	case 3:
		return core.StatusSucceeded
	default:
		return core.StatusFailed
	}
}

// P24LikeConfig carries merchant credentials for the bank-rail provider.
type P24LikeConfig struct {
	MerchantID int
	PosID      int
	CRC        string
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
}

// P24LikeProvider talks to a redirect-based bank rail: register a session,
// send the customer to a checkout URL, receive a signed notification, verify
// the settlement.
type P24LikeProvider struct {
	cfg    P24LikeConfig
	client *http.Client
}

// NewP24LikeProvider creates the provider with a bounded HTTP timeout.
func NewP24LikeProvider(cfg P24LikeConfig) *P24LikeProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &P24LikeProvider{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

var _ output.PaymentProvider = (*P24LikeProvider)(nil)

func (p *P24LikeProvider) Name() string { return "p24like" }

// sha384JSON signs the provider's checksum material: the JSON encoding of v
// with struct field order preserved and no HTML escaping, hashed with
// SHA-384. The field order of each sign struct is part of the wire contract.
func sha384JSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("failed to encode sign material: %w", err)
	}
	material := bytes.TrimRight(buf.Bytes(), "\n")
	sum := sha512.Sum384(material)
	return hex.EncodeToString(sum[:]), nil
}

// registerSignMaterial is the checksum input for session registration.
type registerSignMaterial struct {
	SessionID  string `json:"sessionId"`
	MerchantID int    `json:"merchantId"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	CRC        string `json:"crc"`
}

// notificationSignMaterial is the checksum input for inbound notifications.
// Field order matches the provider's documentation exactly.
type notificationSignMaterial struct {
	MerchantID   int    `json:"merchantId"`
	PosID        int    `json:"posId"`
	SessionID    string `json:"sessionId"`
	Amount       int64  `json:"amount"`
	OriginAmount int64  `json:"originAmount"`
	Currency     string `json:"currency"`
	OrderID      int64  `json:"orderId"`
	MethodID     int    `json:"methodId"`
	Statement    string `json:"statement"`
	CRC          string `json:"crc"`
}

type registerRequest struct {
	MerchantID  int    `json:"merchantId"`
	PosID       int    `json:"posId"`
	SessionID   string `json:"sessionId"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	Sign        string `json:"sign"`
}

type registerResponse struct {
	Data struct {
		Token string `json:"token"`
	} `json:"data"`
	Error string `json:"error"`
}

func (p *P24LikeProvider) CreatePayment(ctx context.Context, req output.CreatePaymentRequest) core.PaymentResult {
	sessionID := uuid.NewString()
	sign, err := sha384JSON(registerSignMaterial{
		SessionID:  sessionID,
		MerchantID: p.cfg.MerchantID,
		Amount:     req.AmountMinor,
		Currency:   req.Currency,
		CRC:        p.cfg.CRC,
	})
	if err != nil {
		return core.PaymentResult{ErrorCode: "request_error", ErrorMessage: err.Error()}
	}

	body, err := json.Marshal(registerRequest{
		MerchantID:  p.cfg.MerchantID,
		PosID:       p.cfg.PosID,
		SessionID:   sessionID,
		Amount:      req.AmountMinor,
		Currency:    req.Currency,
		Description: "order " + req.OrderID.String(),
		Sign:        sign,
	})
	if err != nil {
		return core.PaymentResult{ErrorCode: "request_error", ErrorMessage: err.Error()}
	}

	raw, status, err := p.do(ctx, http.MethodPost, "/api/v1/transaction/register", body)
	if err != nil {
		return core.PaymentResult{ErrorCode: "network_error", ErrorMessage: err.Error()}
	}
	var reply registerResponse
	if err := json.Unmarshal(raw, &reply); err != nil {
		return core.PaymentResult{ErrorCode: "protocol_error", ErrorMessage: fmt.Sprintf("malformed provider response: %v", err)}
	}
	if status >= 400 || reply.Data.Token == "" {
		message := reply.Error
		if message == "" {
			message = fmt.Sprintf("provider returned status %d", status)
		}
		return core.PaymentResult{ErrorCode: "provider_error", ErrorMessage: message}
	}

	return core.PaymentResult{
		Success:           true,
		ProviderPaymentID: sessionID,
		CheckoutURL:       p.cfg.BaseURL + "/trnRequest/" + reply.Data.Token,
		Status:            core.StatusPending,
		Metadata:          map[string]string{"token": reply.Data.Token},
	}
}

type verifyRequest struct {
	MerchantID int    `json:"merchantId"`
	PosID      int    `json:"posId"`
	SessionID  string `json:"sessionId"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	OrderID    int64  `json:"orderId"`
	Sign       string `json:"sign"`
}

// verifySignMaterial is the checksum input for the settlement verification.
type verifySignMaterial struct {
	SessionID string `json:"sessionId"`
	OrderID   int64  `json:"orderId"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	CRC       string `json:"crc"`
}

// ConfirmPayment runs the settlement verification call the rail requires
// before funds are released to the merchant.
func (p *P24LikeProvider) ConfirmPayment(ctx context.Context, txn *core.PaymentTransaction, metadata map[string]string) core.PaymentResult {
	rawOrderID, ok := metadata["orderId"]
	if !ok || rawOrderID == "" {
		return core.PaymentResult{ErrorCode: "request_error", ErrorMessage: "verification requires an orderId"}
	}
	orderID, err := strconv.ParseInt(rawOrderID, 10, 64)
	if err != nil {
		return core.PaymentResult{ErrorCode: "request_error", ErrorMessage: fmt.Sprintf("invalid orderId %q: %v", rawOrderID, err)}
	}
	sign, err := sha384JSON(verifySignMaterial{
		SessionID: txn.ProviderPaymentID,
		OrderID:   orderID,
		Amount:    txn.AmountMinor,
		Currency:  txn.Currency,
		CRC:       p.cfg.CRC,
	})
	if err != nil {
		return core.PaymentResult{ErrorCode: "request_error", ErrorMessage: err.Error()}
	}

	body, err := json.Marshal(verifyRequest{
		MerchantID: p.cfg.MerchantID,
		PosID:      p.cfg.PosID,
		SessionID:  txn.ProviderPaymentID,
		Amount:     txn.AmountMinor,
		Currency:   txn.Currency,
		OrderID:    orderID,
		Sign:       sign,
	})
	if err != nil {
		return core.PaymentResult{ErrorCode: "request_error", ErrorMessage: err.Error()}
	}

	raw, status, err := p.do(ctx, http.MethodPut, "/api/v1/transaction/verify", body)
	if err != nil {
		return core.PaymentResult{ErrorCode: "network_error", ErrorMessage: err.Error()}
	}
	if status >= 400 {
		return core.PaymentResult{ErrorCode: "provider_error", ErrorMessage: fmt.Sprintf("verification rejected: status %d, body %s", status, raw)}
	}
	return core.PaymentResult{
		Success:           true,
		ProviderPaymentID: txn.ProviderPaymentID,
		Status:            core.StatusSucceeded,
	}
}

type statusResponse struct {
	Data struct {
		Status  int   `json:"status"`
		OrderID int64 `json:"orderId"`
	} `json:"data"`
	Error string `json:"error"`
}

func (p *P24LikeProvider) FetchStatus(ctx context.Context, txn *core.PaymentTransaction) core.PaymentStatusResult {
	raw, status, err := p.do(ctx, http.MethodGet, "/api/v1/transaction/by/sessionId/"+txn.ProviderPaymentID, nil)
	if err != nil {
		return core.PaymentStatusResult{ErrorMessage: err.Error()}
	}
	var reply statusResponse
	if err := json.Unmarshal(raw, &reply); err != nil {
		return core.PaymentStatusResult{ErrorMessage: fmt.Sprintf("malformed provider response: %v", err), Raw: raw}
	}
	if status >= 400 {
		message := reply.Error
		if message == "" {
			message = fmt.Sprintf("provider returned status %d", status)
		}
		return core.PaymentStatusResult{ErrorMessage: message, Raw: raw}
	}
	return core.PaymentStatusResult{
		Success: true,
		Status:  mapP24LikeStatus(reply.Data.Status),
		Raw:     raw,
	}
}

// notificationPayload is the inbound webhook body.
type notificationPayload struct {
	MerchantID   int    `json:"merchantId"`
	PosID        int    `json:"posId"`
	SessionID    string `json:"sessionId"`
	Amount       int64  `json:"amount"`
	OriginAmount int64  `json:"originAmount"`
	Currency     string `json:"currency"`
	OrderID      int64  `json:"orderId"`
	MethodID     int    `json:"methodId"`
	Statement    string `json:"statement"`
	Sign         string `json:"sign"`
}

// VerifyWebhook recomputes the notification checksum over the documented
// field order with the shared CRC secret and compares it to the carried sign.
func (p *P24LikeProvider) VerifyWebhook(req core.WebhookRequest) core.WebhookVerification {
	if p.cfg.CRC == "" {
		return core.WebhookVerification{Reason: "crc secret is not configured"}
	}
	var payload notificationPayload
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return core.WebhookVerification{Reason: "malformed notification payload"}
	}
	if payload.Sign == "" {
		return core.WebhookVerification{Reason: "notification carries no sign"}
	}

	expected, err := sha384JSON(notificationSignMaterial{
		MerchantID:   payload.MerchantID,
		PosID:        payload.PosID,
		SessionID:    payload.SessionID,
		Amount:       payload.Amount,
		OriginAmount: payload.OriginAmount,
		Currency:     payload.Currency,
		OrderID:      payload.OrderID,
		MethodID:     payload.MethodID,
		Statement:    payload.Statement,
		CRC:          p.cfg.CRC,
	})
	if err != nil {
		return core.WebhookVerification{Reason: "failed to compute expected sign"}
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(payload.Sign)) != 1 {
		return core.WebhookVerification{Reason: "sign mismatch"}
	}
	return core.WebhookVerification{Valid: true}
}

// ParseWebhook normalizes the notification. The rail has no event id of its
// own, so the dedup key is derived from the session and rail-side order id,
// which a redelivered notification repeats verbatim. A notification means
// funds were received and verification is pending, hence processing.
func (p *P24LikeProvider) ParseWebhook(req core.WebhookRequest) (core.ProviderWebhookEvent, error) {
	var payload notificationPayload
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return core.ProviderWebhookEvent{}, fmt.Errorf("malformed notification payload: %w", err)
	}
	if payload.SessionID == "" {
		return core.ProviderWebhookEvent{}, fmt.Errorf("notification has no session id")
	}
	return core.ProviderWebhookEvent{
		EventID:           fmt.Sprintf("%s:%d", payload.SessionID, payload.OrderID),
		EventType:         "transaction.notification",
		ProviderPaymentID: payload.SessionID,
		Status:            core.StatusProcessing,
		RawPayload:        req.Body,
	}, nil
}

func (p *P24LikeProvider) do(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	httpReq.SetBasicAuth(strconv.Itoa(p.cfg.PosID), p.cfg.APIKey)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read provider response: %w", err)
	}
	return raw, resp.StatusCode, nil
}
