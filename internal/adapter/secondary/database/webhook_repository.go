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

// GormWebhookRepository is a secondary adapter implementing the
// WebhookEventRepository output port. The (provider, event_id) unique index
// carries the dedup guarantee; a violation on insert means a concurrent or
// repeated delivery.
type GormWebhookRepository struct {
	gormDB *gorm.DB
}

// NewGormWebhookRepository creates a new GORM webhook event repository.
func NewGormWebhookRepository(gormDB *gorm.DB) output.WebhookEventRepository {
	return &GormWebhookRepository{gormDB: gormDB}
}

// Insert stores the event; created is false on a duplicate (provider,
// event_id).
func (r *GormWebhookRepository) Insert(ctx context.Context, event *core.WebhookEvent) (bool, error) {
	row := &db.WebhookEvent{
		Provider:        event.Provider,
		EventID:         event.EventID,
		EventType:       event.EventType,
		SignatureValid:  event.SignatureValid,
		Payload:         event.Payload,
		ReceivedAt:      event.ReceivedAt,
		ProcessingError: event.ProcessingError,
	}
	if err := handle(ctx, r.gormDB).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, fmt.Errorf("failed to store webhook event: %w", err)
	}
	event.ID = row.ID
	return true, nil
}

// MarkProcessed stamps processed_at and records a processing error, if any.
func (r *GormWebhookRepository) MarkProcessed(ctx context.Context, event *core.WebhookEvent, processingError string) error {
	now := time.Now()
	err := handle(ctx, r.gormDB).
		Model(&db.WebhookEvent{}).
		Where("id = ? AND processed_at IS NULL", event.ID).
		Updates(map[string]any{
			"processed_at":     now,
			"processing_error": processingError,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark webhook event processed: %w", err)
	}
	event.ProcessedAt = &now
	event.ProcessingError = processingError
	return nil
}
