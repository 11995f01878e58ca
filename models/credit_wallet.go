package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreditWallet holds a tenant's spendable credit balance
type CreditWallet struct {
	ID       uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID     uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`
	TenantID string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"tenant_id"`
	Balance  int64     `gorm:"not null;default:0" json:"balance"`

	// Audit fields
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// Relationships
	Transactions []CreditTransaction `gorm:"foreignKey:WalletID" json:"transactions,omitempty"`
}

// TableName returns the table name for the model
func (CreditWallet) TableName() string {
	return "credit_wallets"
}

// BeforeCreate ensures UUID is set
func (w *CreditWallet) BeforeCreate(tx *gorm.DB) error {
	if w.UUID == uuid.Nil {
		w.UUID = uuid.New()
	}
	return nil
}

// CreditWalletFilter represents filter criteria for wallet queries
type CreditWalletFilter struct {
	ID       *uint   `json:"id,omitempty"`
	TenantID *string `json:"tenant_id,omitempty"`
}
