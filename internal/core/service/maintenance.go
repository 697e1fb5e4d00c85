package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/orderflow/payment-core/internal/port/output"
)

// reconcileBatchSize bounds how many stale transactions one sweep enqueues.
const reconcileBatchSize = 100

// Maintenance runs periodic housekeeping: sweeping expired idempotency
// records and enqueueing reconcile requests for transactions the provider
// never called back about. It is housed in the worker process.
type Maintenance struct {
	idempotency  output.IdempotencyStore
	transactions output.PaymentTransactionRepository
	publisher    output.EventPublisher
	log          *slog.Logger
	now          func() time.Time
}

// NewMaintenance creates the maintenance service.
func NewMaintenance(
	idempotency output.IdempotencyStore,
	transactions output.PaymentTransactionRepository,
	publisher output.EventPublisher,
	log *slog.Logger,
) *Maintenance {
	return &Maintenance{
		idempotency:  idempotency,
		transactions: transactions,
		publisher:    publisher,
		log:          log,
		now:          time.Now,
	}
}

// SweepExpiredIdempotencyRecords removes records past their TTL once.
func (m *Maintenance) SweepExpiredIdempotencyRecords(ctx context.Context) (int64, error) {
	removed, err := m.idempotency.CleanupExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up idempotency records: %w", err)
	}
	return removed, nil
}

// EnqueueStaleReconciles requests reconciliation for non-terminal
// transactions untouched for longer than staleAfter and returns how many
// were enqueued.
func (m *Maintenance) EnqueueStaleReconciles(ctx context.Context, staleAfter time.Duration) (int, error) {
	stale, err := m.transactions.ListStaleNonTerminal(ctx, m.now().Add(-staleAfter), reconcileBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale transactions: %w", err)
	}

	enqueued := 0
	for _, txn := range stale {
		if err := m.publisher.RequestReconcile(ctx, txn.ID, "maintenance"); err != nil {
			return enqueued, fmt.Errorf("failed to enqueue reconcile request: %w", err)
		}
		enqueued++
	}
	return enqueued, nil
}

// Run sweeps on the given interval until ctx is cancelled.
func (m *Maintenance) Run(ctx context.Context, interval, staleAfter time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := m.SweepExpiredIdempotencyRecords(ctx)
			if err != nil {
				m.log.Error("idempotency sweep failed", "error", err)
			} else if removed > 0 {
				m.log.Info("swept expired idempotency records", "removed", removed)
			}

			enqueued, err := m.EnqueueStaleReconciles(ctx, staleAfter)
			if err != nil {
				m.log.Error("reconcile sweep failed", "error", err)
			} else if enqueued > 0 {
				m.log.Info("enqueued stale transactions for reconciliation", "count", enqueued)
			}
		}
	}
}
