package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/orderflow/payment-core/internal/constant/model/db"
	"github.com/orderflow/payment-core/internal/core"
	"github.com/orderflow/payment-core/internal/port/output"
	"gorm.io/gorm"
)

// GormTransactionRepository is a secondary adapter implementing the
// PaymentTransactionRepository output port.
type GormTransactionRepository struct {
	gormDB *gorm.DB
}

// NewGormTransactionRepository creates a new GORM transaction repository.
func NewGormTransactionRepository(gormDB *gorm.DB) output.PaymentTransactionRepository {
	return &GormTransactionRepository{gormDB: gormDB}
}

// toCore converts db.PaymentTransaction to core.PaymentTransaction.
func toCore(t *db.PaymentTransaction) (*core.PaymentTransaction, error) {
	var metadata map[string]string
	if t.Metadata != "" {
		if err := json.Unmarshal([]byte(t.Metadata), &metadata); err != nil {
			return nil, fmt.Errorf("corrupt transaction metadata: %w", err)
		}
	}
	providerPaymentID := ""
	if t.ProviderPaymentID != nil {
		providerPaymentID = *t.ProviderPaymentID
	}
	return &core.PaymentTransaction{
		ID:                 t.ID,
		OrderID:            t.OrderID,
		Provider:           t.Provider,
		ProviderPaymentID:  providerPaymentID,
		Status:             core.TransactionStatus(t.Status),
		AmountMinor:        t.AmountMinor,
		Currency:           t.Currency,
		IdempotencyKeyHash: t.IdempotencyKeyHash,
		CheckoutURL:        t.CheckoutURL,
		ClientSecret:       t.ClientSecret,
		Metadata:           metadata,
		ErrorMessage:       t.ErrorMessage,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}, nil
}

// fromCore converts core.PaymentTransaction to db.PaymentTransaction.
func fromCore(t *core.PaymentTransaction) (*db.PaymentTransaction, error) {
	metadata := ""
	if len(t.Metadata) > 0 {
		raw, err := json.Marshal(t.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode transaction metadata: %w", err)
		}
		metadata = string(raw)
	}
	var providerPaymentID *string
	if t.ProviderPaymentID != "" {
		v := t.ProviderPaymentID
		providerPaymentID = &v
	}
	return &db.PaymentTransaction{
		ID:                 t.ID,
		OrderID:            t.OrderID,
		Provider:           t.Provider,
		ProviderPaymentID:  providerPaymentID,
		Status:             string(t.Status),
		AmountMinor:        t.AmountMinor,
		Currency:           t.Currency,
		IdempotencyKeyHash: t.IdempotencyKeyHash,
		CheckoutURL:        t.CheckoutURL,
		ClientSecret:       t.ClientSecret,
		Metadata:           metadata,
		ErrorMessage:       t.ErrorMessage,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}, nil
}

// Create inserts a new transaction row.
func (r *GormTransactionRepository) Create(ctx context.Context, txn *core.PaymentTransaction) error {
	row, err := fromCore(txn)
	if err != nil {
		return err
	}
	if err := handle(ctx, r.gormDB).Create(row).Error; err != nil {
		return fmt.Errorf("failed to create payment transaction: %w", err)
	}
	txn.ID = row.ID
	txn.CreatedAt = row.CreatedAt
	txn.UpdatedAt = row.UpdatedAt
	return nil
}

// GetByID retrieves a transaction by its ID.
func (r *GormTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*core.PaymentTransaction, error) {
	var row db.PaymentTransaction
	if err := handle(ctx, r.gormDB).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment transaction: %w", err)
	}
	return toCore(&row)
}

// GetByProviderPaymentID locates the transaction a webhook refers to.
func (r *GormTransactionRepository) GetByProviderPaymentID(ctx context.Context, provider, providerPaymentID string) (*core.PaymentTransaction, error) {
	var row db.PaymentTransaction
	err := handle(ctx, r.gormDB).
		Where("provider = ? AND provider_payment_id = ?", provider, providerPaymentID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment transaction: %w", err)
	}
	return toCore(&row)
}

// ListStaleNonTerminal returns non-terminal transactions not touched since
// updatedBefore, oldest first.
func (r *GormTransactionRepository) ListStaleNonTerminal(ctx context.Context, updatedBefore time.Time, limit int) ([]*core.PaymentTransaction, error) {
	var rows []db.PaymentTransaction
	err := handle(ctx, r.gormDB).
		Where("status IN ? AND updated_at < ?",
			[]string{string(core.StatusPending), string(core.StatusProcessing)},
			updatedBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale payment transactions: %w", err)
	}
	txns := make([]*core.PaymentTransaction, 0, len(rows))
	for i := range rows {
		txn, err := toCore(&rows[i])
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

// UpdateStatus persists the transaction's current status and error message.
func (r *GormTransactionRepository) UpdateStatus(ctx context.Context, txn *core.PaymentTransaction) error {
	result := handle(ctx, r.gormDB).
		Model(&db.PaymentTransaction{}).
		Where("id = ?", txn.ID).
		Updates(map[string]any{
			"status":        string(txn.Status),
			"error_message": txn.ErrorMessage,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update payment transaction: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return core.ErrNotFound
	}
	return nil
}
