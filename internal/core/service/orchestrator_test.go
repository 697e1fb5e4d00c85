package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/payment-core/internal/core"
	"github.com/orderflow/payment-core/internal/port/input"
	"github.com/orderflow/payment-core/internal/port/output"
)

// --- in-memory fakes for the output ports ---

type fakeTxnRepo struct {
	byID    map[uuid.UUID]*core.PaymentTransaction
	creates int
}

func newFakeTxnRepo() *fakeTxnRepo {
	return &fakeTxnRepo{byID: map[uuid.UUID]*core.PaymentTransaction{}}
}

func (r *fakeTxnRepo) Create(_ context.Context, txn *core.PaymentTransaction) error {
	r.creates++
	r.byID[txn.ID] = txn
	return nil
}

func (r *fakeTxnRepo) GetByID(_ context.Context, id uuid.UUID) (*core.PaymentTransaction, error) {
	txn, ok := r.byID[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return txn, nil
}

func (r *fakeTxnRepo) GetByProviderPaymentID(_ context.Context, provider, ppid string) (*core.PaymentTransaction, error) {
	for _, txn := range r.byID {
		if txn.Provider == provider && txn.ProviderPaymentID == ppid {
			return txn, nil
		}
	}
	return nil, core.ErrNotFound
}

func (r *fakeTxnRepo) UpdateStatus(_ context.Context, txn *core.PaymentTransaction) error {
	if _, ok := r.byID[txn.ID]; !ok {
		return core.ErrNotFound
	}
	r.byID[txn.ID] = txn
	return nil
}

func (r *fakeTxnRepo) ListStaleNonTerminal(_ context.Context, updatedBefore time.Time, limit int) ([]*core.PaymentTransaction, error) {
	var stale []*core.PaymentTransaction
	for _, txn := range r.byID {
		if txn.IsTerminal() || !txn.UpdatedAt.Before(updatedBefore) {
			continue
		}
		stale = append(stale, txn)
		if len(stale) == limit {
			break
		}
	}
	return stale, nil
}

type fakeWebhookRepo struct {
	events map[string]*core.WebhookEvent
}

func newFakeWebhookRepo() *fakeWebhookRepo {
	return &fakeWebhookRepo{events: map[string]*core.WebhookEvent{}}
}

func (r *fakeWebhookRepo) Insert(_ context.Context, event *core.WebhookEvent) (bool, error) {
	key := event.Provider + ":" + event.EventID
	if _, ok := r.events[key]; ok {
		return false, nil
	}
	r.events[key] = event
	return true, nil
}

func (r *fakeWebhookRepo) MarkProcessed(_ context.Context, event *core.WebhookEvent, processingError string) error {
	now := event.ReceivedAt
	event.ProcessedAt = &now
	event.ProcessingError = processingError
	return nil
}

type idemEntry struct {
	record   *core.IdempotencyRecord
	response *core.CachedResponse
}

type fakeIdemStore struct {
	entries map[string]*idemEntry
}

func newFakeIdemStore() *fakeIdemStore {
	return &fakeIdemStore{entries: map[string]*idemEntry{}}
}

func (s *fakeIdemStore) Check(_ context.Context, rawKey, scope string, payload map[string]any) (core.IdempotencyCheck, error) {
	requestHash, err := core.RequestHash(payload)
	if err != nil {
		return core.IdempotencyCheck{}, err
	}
	key := scope + ":" + core.KeyHash(rawKey)
	if entry, ok := s.entries[key]; ok {
		if entry.record.RequestHash != requestHash {
			return core.IdempotencyCheck{Outcome: core.CheckConflict}, nil
		}
		if entry.record.Status == core.IdempotencyCompleted {
			return core.IdempotencyCheck{Outcome: core.CheckCached, Cached: entry.response}, nil
		}
		return core.IdempotencyCheck{Outcome: core.CheckProceed, Record: entry.record}, nil
	}
	record := &core.IdempotencyRecord{
		KeyHash:     core.KeyHash(rawKey),
		Scope:       scope,
		RequestHash: requestHash,
		Status:      core.IdempotencyPending,
	}
	s.entries[key] = &idemEntry{record: record}
	return core.IdempotencyCheck{Outcome: core.CheckProceed, Record: record}, nil
}

func (s *fakeIdemStore) MarkCompleted(_ context.Context, record *core.IdempotencyRecord, response core.CachedResponse) error {
	key := record.Scope + ":" + record.KeyHash
	entry, ok := s.entries[key]
	if !ok || entry.record.Status == core.IdempotencyCompleted {
		return nil
	}
	entry.record.Status = core.IdempotencyCompleted
	entry.response = &response
	return nil
}

func (s *fakeIdemStore) MarkFailed(_ context.Context, record *core.IdempotencyRecord) error {
	key := record.Scope + ":" + record.KeyHash
	entry, ok := s.entries[key]
	if !ok || entry.record.Status == core.IdempotencyCompleted {
		return nil
	}
	entry.record.Status = core.IdempotencyFailed
	return nil
}

func (s *fakeIdemStore) CleanupExpired(context.Context) (int64, error) { return 0, nil }

func (s *fakeIdemStore) recordFor(rawKey, scope string) *core.IdempotencyRecord {
	entry, ok := s.entries[scope+":"+core.KeyHash(rawKey)]
	if !ok {
		return nil
	}
	return entry.record
}

type fakeOrder struct {
	id       uuid.UUID
	total    int64
	currency string
	status   core.OrderStatus
}

func (o *fakeOrder) ID() uuid.UUID           { return o.id }
func (o *fakeOrder) TotalMinor() int64       { return o.total }
func (o *fakeOrder) Currency() string        { return o.currency }
func (o *fakeOrder) Status() core.OrderStatus { return o.status }

func (o *fakeOrder) IsPayable() bool {
	return o.status == core.OrderStatusDraft || o.status == core.OrderStatusPendingPayment
}

func (o *fakeOrder) MarkAsPaid(context.Context) error {
	o.status = core.OrderStatusPaid
	return nil
}

func (o *fakeOrder) MarkPendingPayment(context.Context) error {
	o.status = core.OrderStatusPendingPayment
	return nil
}

type fakeOrderGateway struct {
	orders map[uuid.UUID]*fakeOrder
}

func (g *fakeOrderGateway) GetByID(_ context.Context, id uuid.UUID) (core.Order, error) {
	order, ok := g.orders[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return order, nil
}

// scriptedProvider returns canned results and counts calls.
type scriptedProvider struct {
	name         string
	createResult core.PaymentResult
	statusResult core.PaymentStatusResult
	createCalls  int
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) CreatePayment(context.Context, output.CreatePaymentRequest) core.PaymentResult {
	p.createCalls++
	return p.createResult
}

func (p *scriptedProvider) ConfirmPayment(context.Context, *core.PaymentTransaction, map[string]string) core.PaymentResult {
	return p.createResult
}

func (p *scriptedProvider) FetchStatus(context.Context, *core.PaymentTransaction) core.PaymentStatusResult {
	return p.statusResult
}

func (p *scriptedProvider) VerifyWebhook(core.WebhookRequest) core.WebhookVerification {
	return core.WebhookVerification{Valid: true}
}

func (p *scriptedProvider) ParseWebhook(core.WebhookRequest) (core.ProviderWebhookEvent, error) {
	return core.ProviderWebhookEvent{}, nil
}

type fakeFactory struct {
	providers map[string]output.PaymentProvider
}

func (f *fakeFactory) Make(name string) (output.PaymentProvider, error) {
	p, ok := f.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown payment provider %q", name)
	}
	return p, nil
}

type fakePublisher struct {
	events     []string
	reconciles []uuid.UUID
}

func (p *fakePublisher) PublishPaymentEvent(_ context.Context, event string, _ *core.PaymentTransaction) error {
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) RequestReconcile(_ context.Context, transactionID uuid.UUID, _ string) error {
	p.reconciles = append(p.reconciles, transactionID)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeUOW struct{}

func (fakeUOW) Do(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// --- harness ---

type harness struct {
	orchestrator *PaymentOrchestrator
	txns         *fakeTxnRepo
	webhooks     *fakeWebhookRepo
	idem         *fakeIdemStore
	order        *fakeOrder
	provider     *scriptedProvider
	publisher    *fakePublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	order := &fakeOrder{
		id:       uuid.New(),
		total:    5000,
		currency: "PLN",
		status:   core.OrderStatusPendingPayment,
	}
	provider := &scriptedProvider{
		name: "scripted",
		createResult: core.PaymentResult{
			Success:           true,
			ProviderPaymentID: "pp_1",
			Status:            core.StatusPending,
			CheckoutURL:       "https://pay.example/pp_1",
		},
	}
	h := &harness{
		txns:      newFakeTxnRepo(),
		webhooks:  newFakeWebhookRepo(),
		idem:      newFakeIdemStore(),
		order:     order,
		provider:  provider,
		publisher: &fakePublisher{},
	}
	h.orchestrator = NewPaymentOrchestrator(
		h.txns,
		h.webhooks,
		h.idem,
		&fakeOrderGateway{orders: map[uuid.UUID]*fakeOrder{order.id: order}},
		&fakeFactory{providers: map[string]output.PaymentProvider{"scripted": provider}},
		h.publisher,
		fakeUOW{},
		"scripted",
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return h
}

func (h *harness) createInput(key string) input.CreatePaymentInput {
	return input.CreatePaymentInput{OrderID: h.order.id, IdempotencyKey: key}
}

// --- CreatePayment ---

func TestCreatePaymentSuccess(t *testing.T) {
	h := newHarness(t)

	result, err := h.orchestrator.CreatePayment(context.Background(), h.createInput("key-1"))
	require.NoError(t, err)
	require.Equal(t, core.CreateSuccess, result.Outcome)

	txn := result.Transaction
	require.NotNil(t, txn)
	assert.Equal(t, h.order.id, txn.OrderID)
	assert.Equal(t, "scripted", txn.Provider)
	assert.Equal(t, "pp_1", txn.ProviderPaymentID)
	assert.Equal(t, core.StatusPending, txn.Status)
	assert.Equal(t, int64(5000), txn.AmountMinor)
	assert.Equal(t, "PLN", txn.Currency)
	assert.Equal(t, core.KeyHash("key-1"), txn.IdempotencyKeyHash)

	require.NotNil(t, result.Response)
	assert.Equal(t, 201, result.Response.StatusCode)
	assert.Contains(t, string(result.Response.Body), txn.ID.String())

	assert.Equal(t, []string{output.EventPaymentCreated}, h.publisher.events)
	assert.Equal(t, 1, h.txns.creates)
}

func TestCreatePaymentImmediateSuccessMarksOrderPaid(t *testing.T) {
	h := newHarness(t)
	h.provider.createResult.Status = core.StatusSucceeded

	result, err := h.orchestrator.CreatePayment(context.Background(), h.createInput("key-1"))
	require.NoError(t, err)
	require.Equal(t, core.CreateSuccess, result.Outcome)

	assert.Equal(t, core.OrderStatusPaid, h.order.status)
	assert.Equal(t, []string{output.EventPaymentCreated, output.EventPaymentSucceeded}, h.publisher.events)
}

func TestCreatePaymentRetryReplaysResponse(t *testing.T) {
	h := newHarness(t)

	first, err := h.orchestrator.CreatePayment(context.Background(), h.createInput("key-1"))
	require.NoError(t, err)
	require.Equal(t, core.CreateSuccess, first.Outcome)

	second, err := h.orchestrator.CreatePayment(context.Background(), h.createInput("key-1"))
	require.NoError(t, err)
	require.Equal(t, core.CreateCached, second.Outcome)

	require.NotNil(t, second.Response)
	assert.Equal(t, first.Response.StatusCode, second.Response.StatusCode)
	assert.Equal(t, first.Response.Body, second.Response.Body)

	assert.Equal(t, 1, h.provider.createCalls)
	assert.Equal(t, 1, h.txns.creates)
}

func TestCreatePaymentKeyReuseWithDifferentPayloadConflicts(t *testing.T) {
	h := newHarness(t)

	first, err := h.orchestrator.CreatePayment(context.Background(), h.createInput("key-1"))
	require.NoError(t, err)
	require.Equal(t, core.CreateSuccess, first.Outcome)

	in := h.createInput("key-1")
	in.AmountMinor = 9999
	second, err := h.orchestrator.CreatePayment(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, core.CreateConflict, second.Outcome)

	assert.Equal(t, 1, h.provider.createCalls)
	assert.Equal(t, 1, h.txns.creates)
}

func TestCreatePaymentMissingIdempotencyKey(t *testing.T) {
	h := newHarness(t)

	_, err := h.orchestrator.CreatePayment(context.Background(), h.createInput(""))
	assert.Error(t, err)
}

func TestCreatePaymentOrderNotFound(t *testing.T) {
	h := newHarness(t)

	result, err := h.orchestrator.CreatePayment(context.Background(), input.CreatePaymentInput{
		OrderID:        uuid.New(),
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, core.CreateFailure, result.Outcome)
	assert.Equal(t, core.ErrCodeOrderNotFound, result.ErrorCode)
	assert.Equal(t, 0, h.provider.createCalls)
}

func TestCreatePaymentOrderNotPayableLeavesRecordPending(t *testing.T) {
	h := newHarness(t)
	h.order.status = core.OrderStatusPaid

	result, err := h.orchestrator.CreatePayment(context.Background(), h.createInput("key-1"))
	require.NoError(t, err)
	assert.Equal(t, core.CreateFailure, result.Outcome)
	assert.Equal(t, core.ErrCodeOrderNotPayable, result.ErrorCode)
	assert.Equal(t, 0, h.provider.createCalls)

	// A retry after the order becomes payable again must proceed, so the
	// record may not go terminal here.
	record := h.idem.recordFor("key-1", "payment_create_"+h.order.id.String())
	require.NotNil(t, record)
	assert.Equal(t, core.IdempotencyPending, record.Status)
}

func TestCreatePaymentUnknownProvider(t *testing.T) {
	h := newHarness(t)

	in := h.createInput("key-1")
	in.Provider = "paypal"
	result, err := h.orchestrator.CreatePayment(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, core.CreateFailure, result.Outcome)
	assert.Equal(t, core.ErrCodeUnknownProvider, result.ErrorCode)

	record := h.idem.recordFor("key-1", "payment_create_"+h.order.id.String())
	require.NotNil(t, record)
	assert.Equal(t, core.IdempotencyFailed, record.Status)
}

func TestCreatePaymentProviderRejectionMarksRecordFailed(t *testing.T) {
	h := newHarness(t)
	h.provider.createResult = core.PaymentResult{
		ErrorCode:    "card_declined",
		ErrorMessage: "declined",
	}

	result, err := h.orchestrator.CreatePayment(context.Background(), h.createInput("key-1"))
	require.NoError(t, err)
	assert.Equal(t, core.CreateFailure, result.Outcome)
	assert.Equal(t, "card_declined", result.ErrorCode)
	assert.Equal(t, 0, h.txns.creates)

	record := h.idem.recordFor("key-1", "payment_create_"+h.order.id.String())
	require.NotNil(t, record)
	assert.Equal(t, core.IdempotencyFailed, record.Status)
}

func TestCreatePaymentRetryAfterRejectionCachesSuccess(t *testing.T) {
	h := newHarness(t)
	h.provider.createResult = core.PaymentResult{
		ErrorCode:    "card_declined",
		ErrorMessage: "declined",
	}

	first, err := h.orchestrator.CreatePayment(context.Background(), h.createInput("key-1"))
	require.NoError(t, err)
	require.Equal(t, core.CreateFailure, first.Outcome)

	// The card goes through on the retried attempt.
	h.provider.createResult = core.PaymentResult{
		Success:           true,
		ProviderPaymentID: "pp_1",
		Status:            core.StatusPending,
		CheckoutURL:       "https://pay.example/pp_1",
	}
	second, err := h.orchestrator.CreatePayment(context.Background(), h.createInput("key-1"))
	require.NoError(t, err)
	require.Equal(t, core.CreateSuccess, second.Outcome)

	// The retry's success is cached, so a third attempt replays it
	// instead of charging again.
	third, err := h.orchestrator.CreatePayment(context.Background(), h.createInput("key-1"))
	require.NoError(t, err)
	assert.Equal(t, core.CreateCached, third.Outcome)
	require.NotNil(t, third.Response)
	assert.Equal(t, second.Response.StatusCode, third.Response.StatusCode)
	assert.Equal(t, second.Response.Body, third.Response.Body)

	assert.Equal(t, 2, h.provider.createCalls)
	assert.Equal(t, 1, h.txns.creates)
}

func TestCreatePaymentMovesDraftOrderToPendingPayment(t *testing.T) {
	h := newHarness(t)
	h.order.status = core.OrderStatusDraft

	result, err := h.orchestrator.CreatePayment(context.Background(), h.createInput("key-1"))
	require.NoError(t, err)
	require.Equal(t, core.CreateSuccess, result.Outcome)
	assert.Equal(t, core.OrderStatusPendingPayment, h.order.status)
}

// --- ProcessWebhook ---

func seedTransaction(h *harness, status core.TransactionStatus) *core.PaymentTransaction {
	txn := &core.PaymentTransaction{
		ID:                uuid.New(),
		OrderID:           h.order.id,
		Provider:          "scripted",
		ProviderPaymentID: "pp_1",
		Status:            status,
		AmountMinor:       5000,
		Currency:          "PLN",
	}
	h.txns.byID[txn.ID] = txn
	return txn
}

func webhookEvent(status core.TransactionStatus) core.ProviderWebhookEvent {
	return core.ProviderWebhookEvent{
		EventID:           "evt_1",
		EventType:         "payment.update",
		ProviderPaymentID: "pp_1",
		Status:            status,
		RawPayload:        []byte(`{}`),
	}
}

func TestProcessWebhookAppliesAllowedTransition(t *testing.T) {
	h := newHarness(t)
	txn := seedTransaction(h, core.StatusProcessing)

	result, err := h.orchestrator.ProcessWebhook(context.Background(), "scripted", webhookEvent(core.StatusSucceeded), true)
	require.NoError(t, err)
	assert.Equal(t, core.WebhookHandled, result.Outcome)

	assert.Equal(t, core.StatusSucceeded, txn.Status)
	assert.Equal(t, core.OrderStatusPaid, h.order.status)
	assert.Equal(t, []string{output.EventPaymentSucceeded}, h.publisher.events)
}

func TestProcessWebhookDuplicateEventIsIgnored(t *testing.T) {
	h := newHarness(t)
	txn := seedTransaction(h, core.StatusProcessing)

	first, err := h.orchestrator.ProcessWebhook(context.Background(), "scripted", webhookEvent(core.StatusSucceeded), true)
	require.NoError(t, err)
	require.Equal(t, core.WebhookHandled, first.Outcome)

	second, err := h.orchestrator.ProcessWebhook(context.Background(), "scripted", webhookEvent(core.StatusSucceeded), true)
	require.NoError(t, err)
	assert.Equal(t, core.WebhookIsDuplicate, second.Outcome)

	assert.Len(t, h.webhooks.events, 1)
	assert.Equal(t, core.StatusSucceeded, txn.Status)
	// The transition side effects ran once.
	assert.Equal(t, []string{output.EventPaymentSucceeded}, h.publisher.events)
}

func TestProcessWebhookRejectsForbiddenTransition(t *testing.T) {
	h := newHarness(t)
	txn := seedTransaction(h, core.StatusPending)

	result, err := h.orchestrator.ProcessWebhook(context.Background(), "scripted", webhookEvent(core.StatusSucceeded), true)
	require.NoError(t, err)
	assert.Equal(t, core.WebhookHandled, result.Outcome)

	// pending -> succeeded skips processing and is rejected; the event is
	// still stored and acknowledged.
	assert.Equal(t, core.StatusPending, txn.Status)
	assert.Empty(t, h.publisher.events)
	assert.Len(t, h.webhooks.events, 1)
}

func TestProcessWebhookIgnoresTerminalTransaction(t *testing.T) {
	h := newHarness(t)
	txn := seedTransaction(h, core.StatusSucceeded)

	result, err := h.orchestrator.ProcessWebhook(context.Background(), "scripted", webhookEvent(core.StatusFailed), true)
	require.NoError(t, err)
	assert.Equal(t, core.WebhookHandled, result.Outcome)
	assert.Equal(t, core.StatusSucceeded, txn.Status)
}

func TestProcessWebhookUnmatchedTransactionIsStored(t *testing.T) {
	h := newHarness(t)

	result, err := h.orchestrator.ProcessWebhook(context.Background(), "scripted", webhookEvent(core.StatusSucceeded), true)
	require.NoError(t, err)
	assert.Equal(t, core.WebhookHandled, result.Outcome)
	assert.Equal(t, "transaction not found, event stored", result.Detail)

	stored := h.webhooks.events["scripted:evt_1"]
	require.NotNil(t, stored)
	require.NotNil(t, stored.ProcessedAt)
	assert.Equal(t, "transaction not found", stored.ProcessingError)
}

func TestProcessWebhookWithoutPaymentID(t *testing.T) {
	h := newHarness(t)

	event := core.ProviderWebhookEvent{EventID: "evt_2", EventType: "ping", RawPayload: []byte(`{}`)}
	result, err := h.orchestrator.ProcessWebhook(context.Background(), "scripted", event, true)
	require.NoError(t, err)
	assert.Equal(t, core.WebhookHandled, result.Outcome)
	assert.Equal(t, "event carries no payment id", result.Detail)
}

// --- Reconcile ---

func TestReconcileSkipsTerminalTransaction(t *testing.T) {
	h := newHarness(t)
	txn := seedTransaction(h, core.StatusFailed)

	result, err := h.orchestrator.Reconcile(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ReconcileOutcomeSkipped, result.Outcome)
}

func TestReconcileSkipsTransactionWithoutProviderID(t *testing.T) {
	h := newHarness(t)
	txn := seedTransaction(h, core.StatusPending)
	txn.ProviderPaymentID = ""

	result, err := h.orchestrator.Reconcile(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ReconcileOutcomeSkipped, result.Outcome)
}

func TestReconcileUnchanged(t *testing.T) {
	h := newHarness(t)
	txn := seedTransaction(h, core.StatusProcessing)
	h.provider.statusResult = core.PaymentStatusResult{Success: true, Status: core.StatusProcessing}

	result, err := h.orchestrator.Reconcile(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ReconcileOutcomeUnchanged, result.Outcome)
	assert.Empty(t, h.publisher.events)
}

func TestReconcileAppliesProviderStatus(t *testing.T) {
	h := newHarness(t)
	txn := seedTransaction(h, core.StatusProcessing)
	h.provider.statusResult = core.PaymentStatusResult{Success: true, Status: core.StatusSucceeded}

	result, err := h.orchestrator.Reconcile(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ReconcileOutcomeUpdated, result.Outcome)
	assert.Equal(t, core.StatusProcessing, result.OldStatus)
	assert.Equal(t, core.StatusSucceeded, result.NewStatus)

	assert.Equal(t, core.StatusSucceeded, txn.Status)
	assert.Equal(t, core.OrderStatusPaid, h.order.status)
	assert.Equal(t, []string{output.EventPaymentSucceeded}, h.publisher.events)
}

func TestReconcileReportsMismatch(t *testing.T) {
	h := newHarness(t)
	txn := seedTransaction(h, core.StatusPending)
	h.provider.statusResult = core.PaymentStatusResult{Success: true, Status: core.StatusSucceeded}

	result, err := h.orchestrator.Reconcile(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ReconcileOutcomeMismatch, result.Outcome)
	assert.Equal(t, core.StatusPending, result.LocalStatus)
	assert.Equal(t, core.StatusSucceeded, result.ProviderStatus)

	// Local state is never force-overwritten.
	assert.Equal(t, core.StatusPending, txn.Status)
}

func TestReconcileProviderFailure(t *testing.T) {
	h := newHarness(t)
	txn := seedTransaction(h, core.StatusProcessing)
	h.provider.statusResult = core.PaymentStatusResult{ErrorMessage: "provider unavailable"}

	result, err := h.orchestrator.Reconcile(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ReconcileOutcomeFailure, result.Outcome)
	assert.Equal(t, "provider unavailable", result.Detail)
	assert.Equal(t, core.StatusProcessing, txn.Status)
}

func TestReconcileUnknownTransaction(t *testing.T) {
	h := newHarness(t)

	_, err := h.orchestrator.Reconcile(context.Background(), uuid.New())
	assert.Error(t, err)
}
