package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreditTransactionType represents the direction of a credit movement
type CreditTransactionType string

const (
	CreditTransactionDebit  CreditTransactionType = "debit"
	CreditTransactionRefund CreditTransactionType = "refund"
)

// CreditTransaction is an immutable credit movement. Debits and refunds that
// belong to the same step attempt share IdempotencyKey.
type CreditTransaction struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID          uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`
	CorrelationID uuid.UUID `gorm:"type:uuid;index;not null" json:"correlation_id"`

	Type           CreditTransactionType `gorm:"type:varchar(16);not null;index:idx_credit_tx_key,priority:2" json:"type"`
	UsageType      string                `gorm:"type:varchar(64);not null" json:"usage_type"`
	Amount         int64                 `gorm:"not null" json:"amount"`
	IdempotencyKey string                `gorm:"type:varchar(255);not null;index:idx_credit_tx_key,priority:1" json:"idempotency_key"`

	WalletID uint   `gorm:"not null;index" json:"wallet_id"`
	TenantID string `gorm:"type:varchar(64);not null;index" json:"tenant_id"`

	// Balance snapshots before and after transaction (immutable)
	BalanceBefore int64 `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64 `gorm:"not null" json:"balance_after"`

	Reason   string          `gorm:"type:text" json:"reason,omitempty"`
	Metadata json.RawMessage `gorm:"type:jsonb;default:'{}'" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName returns the table name for the model
func (CreditTransaction) TableName() string {
	return "credit_transactions"
}

// BeforeCreate ensures UUID and CorrelationID are set
func (t *CreditTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.UUID == uuid.Nil {
		t.UUID = uuid.New()
	}
	if t.CorrelationID == uuid.Nil {
		t.CorrelationID = uuid.New()
	}
	if len(t.Metadata) == 0 {
		t.Metadata = json.RawMessage("{}")
	}
	return nil
}

// CreditTransactionFilter represents filter criteria for credit transaction queries
type CreditTransactionFilter struct {
	ID             *uint                  `json:"id,omitempty"`
	TenantID       *string                `json:"tenant_id,omitempty"`
	WalletID       *uint                  `json:"wallet_id,omitempty"`
	Type           *CreditTransactionType `json:"type,omitempty"`
	IdempotencyKey *string                `json:"idempotency_key,omitempty"`
	CreatedAfter   *time.Time             `json:"created_after,omitempty"`
	CreatedBefore  *time.Time             `json:"created_before,omitempty"`
}
