package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentTransaction is the transactions table. (provider,
// provider_payment_id) is indexed for webhook lookups.
type PaymentTransaction struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID            uuid.UUID `gorm:"type:uuid;not null;index" json:"order_id"`
	Provider           string    `gorm:"type:varchar(32);not null;index:idx_payment_transactions_provider_ppid,priority:1" json:"provider"`
	ProviderPaymentID  *string   `gorm:"type:varchar(191);index:idx_payment_transactions_provider_ppid,priority:2" json:"provider_payment_id"`
	Status             string    `gorm:"type:varchar(20);not null;index" json:"status"`
	AmountMinor        int64     `gorm:"not null" json:"amount_minor"`
	Currency           string    `gorm:"type:varchar(3);not null" json:"currency"`
	IdempotencyKeyHash string    `gorm:"type:varchar(64);not null" json:"-"`
	CheckoutURL        string    `gorm:"type:text" json:"checkout_url"`
	ClientSecret       string    `gorm:"type:text" json:"-"`
	Metadata           string    `gorm:"type:text" json:"metadata"`
	ErrorMessage       string    `gorm:"type:text" json:"error_message"`
	CreatedAt          time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}

// BeforeCreate assigns an ID when the caller did not.
func (t *PaymentTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// IdempotencyRecord is the request-deduplication table, unique on
// (key_hash, scope). The unique index is the concurrency-safety mechanism:
// a violation on insert means a concurrent duplicate attempt.
type IdempotencyRecord struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	KeyHash        string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_idempotency_records_key_scope,priority:1" json:"-"`
	Scope          string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_idempotency_records_key_scope,priority:2" json:"-"`
	RequestHash    string    `gorm:"type:varchar(64);not null" json:"-"`
	Status         string    `gorm:"type:varchar(16);not null" json:"status"`
	ResponseStatus int       `json:"-"`
	ResponseBody   []byte    `gorm:"type:bytes" json:"-"`
	ContentType    string    `gorm:"type:varchar(128)" json:"-"`
	ExpiresAt      time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt      time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (IdempotencyRecord) TableName() string {
	return "idempotency_records"
}

// WebhookEvent is the inbound callback table, unique on (provider, event_id)
// so at-least-once delivery collapses to one row.
type WebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(32);not null;uniqueIndex:ux_webhook_events_provider_event,priority:1" json:"provider"`
	EventID         string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_webhook_events_provider_event,priority:2" json:"event_id"`
	EventType       string     `gorm:"type:varchar(100);index" json:"event_type"`
	SignatureValid  bool       `gorm:"not null;default:false" json:"signature_valid"`
	Payload         []byte     `gorm:"type:bytes" json:"-"`
	ReceivedAt      time.Time  `gorm:"not null" json:"received_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}

// Order is the slice of the order domain this subsystem reads and writes.
// The full order model belongs to the fulfillment service; payments only
// touches status and the payable amount.
type Order struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Status     string    `gorm:"type:varchar(32);not null" json:"status"`
	TotalMinor int64     `gorm:"not null" json:"total_minor"`
	Currency   string    `gorm:"type:varchar(3);not null" json:"currency"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}
