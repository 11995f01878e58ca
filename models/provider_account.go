package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
	"gorm.io/gorm"
)

// ProviderAccountStatus is the credential state of a connected account
type ProviderAccountStatus string

const (
	ProviderAccountStatusActive       ProviderAccountStatus = "active"
	ProviderAccountStatusExpired      ProviderAccountStatus = "expired"
	ProviderAccountStatusDisconnected ProviderAccountStatus = "disconnected"
)

const ProviderLinkedIn = "linkedin"

// ProviderAccount is a tenant's connected account on an outreach provider
type ProviderAccount struct {
	ID                uint                  `gorm:"primaryKey" json:"id"`
	UUID              uuid.UUID             `gorm:"type:uuid;not null;uniqueIndex" json:"uuid"`
	TenantID          string                `gorm:"type:varchar(64);not null;index:idx_provider_accounts_tenant,priority:1" json:"tenant_id"`
	Provider          string                `gorm:"type:varchar(32);not null;index:idx_provider_accounts_tenant,priority:2" json:"provider"`
	ExternalAccountID string                `gorm:"type:varchar(128);not null;uniqueIndex:uk_provider_accounts_external" json:"external_account_id"`
	DisplayName       string                `gorm:"type:varchar(255)" json:"display_name"`
	Status            ProviderAccountStatus `gorm:"type:varchar(20);not null;default:'active';index:idx_provider_accounts_tenant,priority:3" json:"status"`
	LastUsedAt        *time.Time            `json:"last_used_at,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         *time.Time            `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (ProviderAccount) TableName() string {
	return "provider_accounts"
}

// BeforeCreate is called before creating a new record
func (a *ProviderAccount) BeforeCreate(tx *gorm.DB) error {
	if a.UUID == uuid.Nil {
		a.UUID = uuid.New()
	}
	if a.Status == "" {
		a.Status = ProviderAccountStatusActive
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = utils.UTCNow()
	}
	return nil
}

// IsActive reports whether the account can be used for outreach
func (a *ProviderAccount) IsActive() bool {
	return a.Status == ProviderAccountStatusActive
}

// ProviderAccountFilter represents filter criteria for provider accounts
type ProviderAccountFilter struct {
	ID       *uint                  `json:"id,omitempty"`
	TenantID *string                `json:"tenant_id,omitempty"`
	Provider *string                `json:"provider,omitempty"`
	Status   *ProviderAccountStatus `json:"status,omitempty"`
}
