package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/orderflow/payment-core/internal/constant/model/db"
	"github.com/orderflow/payment-core/internal/core"
	"github.com/orderflow/payment-core/internal/port/output"
	"gorm.io/gorm"
)

// GormIdempotencyStore is the database-backed IdempotencyStore. First-sight
// creation is an atomic insert against the (key_hash, scope) unique index; a
// duplicate-key error re-reads the existing row and classifies it, closing
// the window between "not found" and "inserted".
type GormIdempotencyStore struct {
	gormDB *gorm.DB
	ttl    time.Duration
	now    func() time.Time
}

// NewGormIdempotencyStore creates the store with the standard TTL.
func NewGormIdempotencyStore(gormDB *gorm.DB) *GormIdempotencyStore {
	return &GormIdempotencyStore{
		gormDB: gormDB,
		ttl:    core.IdempotencyTTL,
		now:    time.Now,
	}
}

var _ output.IdempotencyStore = (*GormIdempotencyStore)(nil)

// Check classifies a request as proceed, cached replay, or conflict.
func (s *GormIdempotencyStore) Check(ctx context.Context, rawKey, scope string, payload map[string]any) (core.IdempotencyCheck, error) {
	keyHash := core.KeyHash(rawKey)
	requestHash, err := core.RequestHash(payload)
	if err != nil {
		return core.IdempotencyCheck{}, err
	}

	row := &db.IdempotencyRecord{
		KeyHash:     keyHash,
		Scope:       scope,
		RequestHash: requestHash,
		Status:      string(core.IdempotencyPending),
		ExpiresAt:   s.now().Add(s.ttl),
	}
	err = handle(ctx, s.gormDB).Create(row).Error
	if err == nil {
		return core.IdempotencyCheck{Outcome: core.CheckProceed, Record: toRecord(row)}, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return core.IdempotencyCheck{}, fmt.Errorf("failed to create idempotency record: %w", err)
	}

	// Someone saw this key first (possibly concurrently); classify their row.
	var existing db.IdempotencyRecord
	err = handle(ctx, s.gormDB).
		Where("key_hash = ? AND scope = ?", keyHash, scope).
		First(&existing).Error
	if err != nil {
		return core.IdempotencyCheck{}, fmt.Errorf("failed to load idempotency record: %w", err)
	}

	if s.now().After(existing.ExpiresAt) {
		// The shield lapsed; reset the row in place and treat as first sight.
		won, err := s.resetExpired(ctx, &existing, requestHash)
		if err != nil {
			return core.IdempotencyCheck{}, err
		}
		if won {
			return core.IdempotencyCheck{Outcome: core.CheckProceed, Record: toRecord(&existing)}, nil
		}
		// A concurrent request reset the row first; classify its state.
		err = handle(ctx, s.gormDB).
			Where("key_hash = ? AND scope = ?", keyHash, scope).
			First(&existing).Error
		if err != nil {
			return core.IdempotencyCheck{}, fmt.Errorf("failed to reload idempotency record: %w", err)
		}
	}

	if existing.RequestHash != requestHash {
		return core.IdempotencyCheck{Outcome: core.CheckConflict}, nil
	}
	if existing.Status == string(core.IdempotencyCompleted) {
		return core.IdempotencyCheck{
			Outcome: core.CheckCached,
			Cached: &core.CachedResponse{
				StatusCode:  existing.ResponseStatus,
				ContentType: existing.ContentType,
				Body:        existing.ResponseBody,
			},
		}, nil
	}
	// Pending or failed: the caller may attempt (or re-attempt) the
	// operation against the existing record.
	return core.IdempotencyCheck{Outcome: core.CheckProceed, Record: toRecord(&existing)}, nil
}

// resetExpired returns an expired row to a fresh pending state. The guard on
// the observed expires_at picks one winner among concurrent resets; the loser
// reports false and must re-read the row.
func (s *GormIdempotencyStore) resetExpired(ctx context.Context, existing *db.IdempotencyRecord, requestHash string) (bool, error) {
	result := handle(ctx, s.gormDB).
		Model(&db.IdempotencyRecord{}).
		Where("id = ? AND expires_at = ?", existing.ID, existing.ExpiresAt).
		Updates(map[string]any{
			"request_hash":    requestHash,
			"status":          string(core.IdempotencyPending),
			"response_status": 0,
			"response_body":   []byte(nil),
			"content_type":    "",
			"expires_at":      s.now().Add(s.ttl),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to reset expired idempotency record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	existing.RequestHash = requestHash
	existing.Status = string(core.IdempotencyPending)
	return true, nil
}

// MarkCompleted stores the response to replay. Completed records are
// immutable; failed records may be completed because Check lets an identical
// retry proceed after a failure, and that retry's success must be cached.
func (s *GormIdempotencyStore) MarkCompleted(ctx context.Context, record *core.IdempotencyRecord, response core.CachedResponse) error {
	err := handle(ctx, s.gormDB).
		Model(&db.IdempotencyRecord{}).
		Where("key_hash = ? AND scope = ? AND status IN ?",
			record.KeyHash, record.Scope,
			[]string{string(core.IdempotencyPending), string(core.IdempotencyFailed)}).
		Updates(map[string]any{
			"status":          string(core.IdempotencyCompleted),
			"response_status": response.StatusCode,
			"response_body":   response.Body,
			"content_type":    response.ContentType,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to complete idempotency record: %w", err)
	}
	record.Status = core.IdempotencyCompleted
	record.Response = &response
	return nil
}

// MarkFailed marks the attempt failed. No-op when the record already
// completed; a cached response is never discarded.
func (s *GormIdempotencyStore) MarkFailed(ctx context.Context, record *core.IdempotencyRecord) error {
	err := handle(ctx, s.gormDB).
		Model(&db.IdempotencyRecord{}).
		Where("key_hash = ? AND scope = ? AND status IN ?",
			record.KeyHash, record.Scope,
			[]string{string(core.IdempotencyPending), string(core.IdempotencyFailed)}).
		Update("status", string(core.IdempotencyFailed)).Error
	if err != nil {
		return fmt.Errorf("failed to mark idempotency record failed: %w", err)
	}
	record.Status = core.IdempotencyFailed
	return nil
}

// CleanupExpired deletes rows past expires_at and returns the count removed.
func (s *GormIdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	result := handle(ctx, s.gormDB).
		Where("expires_at < ?", s.now()).
		Delete(&db.IdempotencyRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete expired idempotency records: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func toRecord(row *db.IdempotencyRecord) *core.IdempotencyRecord {
	return &core.IdempotencyRecord{
		ID:          row.ID,
		KeyHash:     row.KeyHash,
		Scope:       row.Scope,
		RequestHash: row.RequestHash,
		Status:      core.IdempotencyStatus(row.Status),
		ExpiresAt:   row.ExpiresAt,
	}
}
