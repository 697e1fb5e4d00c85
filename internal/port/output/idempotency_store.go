package output

import (
	"context"

	"github.com/orderflow/payment-core/internal/core"
)

// IdempotencyStore is an output port enforcing exactly-once semantics for
// client retries. First-sight record creation must be atomic (insert-or-fail
// on the key+scope uniqueness, or an equivalent server-side primitive) so two
// concurrent requests with an identical new key cannot both proceed
// unnoticed.
type IdempotencyStore interface {
	// Check classifies a request as proceed, cached replay, or conflict.
	Check(ctx context.Context, rawKey, scope string, payload map[string]any) (core.IdempotencyCheck, error)

	// MarkCompleted records the response to replay on retries. A completed
	// record is immutable; a failed one may still be completed, so the
	// success of a retried attempt gets cached.
	MarkCompleted(ctx context.Context, record *core.IdempotencyRecord, response core.CachedResponse) error

	// MarkFailed marks the attempt failed. A completed record is left
	// untouched.
	MarkFailed(ctx context.Context, record *core.IdempotencyRecord) error

	// CleanupExpired removes records past their TTL and returns the count.
	// Called by an external scheduler (our worker's sweeper).
	CleanupExpired(ctx context.Context) (int64, error)
}
