package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
	"gorm.io/gorm"
)

// ActionType classifies a ledger record
type ActionType string

const (
	ActionConnectionSent      ActionType = "CONNECTION_SENT"
	ActionConnectionAccepted  ActionType = "CONNECTION_ACCEPTED"
	ActionMessageSent         ActionType = "MESSAGE_SENT"
	ActionMessageSkipped      ActionType = "MESSAGE_SKIPPED"
	ActionProfileVisited      ActionType = "PROFILE_VISITED"
	ActionProfileFollowed     ActionType = "PROFILE_FOLLOWED"
	ActionEmailSent           ActionType = "EMAIL_SENT"
	ActionWhatsAppSent        ActionType = "WHATSAPP_SENT"
	ActionVoiceCallPlaced     ActionType = "VOICE_CALL_PLACED"
	ActionLeadGenerated       ActionType = "LEAD_GENERATED"
	ActionEnrichmentCompleted ActionType = "ENRICHMENT_COMPLETED"
	ActionDelayScheduled      ActionType = "DELAY_SCHEDULED"
	ActionConditionEvaluated  ActionType = "CONDITION_EVALUATED"
)

func (t ActionType) String() string {
	return string(t)
}

// Terminal action types may be recorded at most once per (campaign, lead)
func (t ActionType) Terminal() bool {
	return t == ActionConnectionAccepted || t == ActionEnrichmentCompleted
}

// ActionStatus is the outcome of a recorded action
type ActionStatus string

const (
	ActionStatusSuccess ActionStatus = "success"
	ActionStatusFailed  ActionStatus = "failed"
	ActionStatusSkipped ActionStatus = "skipped"
)

func (s ActionStatus) String() string {
	return string(s)
}

// ActionRecord is an immutable entry of the action ledger
type ActionRecord struct {
	ID                   uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID                 uuid.UUID       `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`
	TenantID             string          `gorm:"type:varchar(64);not null;index:idx_action_records_tenant_url,priority:1" json:"tenant_id"`
	CampaignID           uint            `gorm:"not null;index:idx_action_records_lead,priority:1" json:"campaign_id"`
	LeadID               uint            `gorm:"not null;index:idx_action_records_lead,priority:2" json:"lead_id"`
	StepID               *uint           `gorm:"index" json:"step_id,omitempty"`
	ActionType           ActionType      `gorm:"type:varchar(32);not null;index:idx_action_records_lead,priority:3;index:idx_action_records_tenant_url,priority:2" json:"action_type"`
	Status               ActionStatus    `gorm:"type:varchar(16);not null" json:"status"`
	NormalizedProfileURL string          `gorm:"type:varchar(512);index:idx_action_records_tenant_url,priority:3" json:"normalized_profile_url,omitempty"`
	ProviderAccountID    *uint           `gorm:"index" json:"provider_account_id,omitempty"`
	WithMessage          bool            `gorm:"not null;default:false" json:"with_message"`
	ErrorCode            string          `gorm:"type:varchar(64)" json:"error_code,omitempty"`
	ErrorMessage         string          `gorm:"type:text" json:"error_message,omitempty"`
	Metadata             json.RawMessage `gorm:"type:jsonb;default:'{}'" json:"metadata,omitempty"`
	CreatedAt            time.Time       `gorm:"not null;index" json:"created_at"`
}

// TableName returns the table name for the model
func (ActionRecord) TableName() string {
	return "campaign_action_records"
}

// BeforeCreate ensures UUID and timestamp are set
func (r *ActionRecord) BeforeCreate(tx *gorm.DB) error {
	if r.UUID == uuid.Nil {
		r.UUID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = utils.UTCNow()
	}
	if len(r.Metadata) == 0 {
		r.Metadata = json.RawMessage("{}")
	}
	return nil
}

// ActionRecordFilter represents filter criteria for ledger queries
type ActionRecordFilter struct {
	TenantID             *string       `json:"tenant_id,omitempty"`
	CampaignID           *uint         `json:"campaign_id,omitempty"`
	LeadID               *uint         `json:"lead_id,omitempty"`
	StepID               *uint         `json:"step_id,omitempty"`
	ActionType           *ActionType   `json:"action_type,omitempty"`
	Status               *ActionStatus `json:"status,omitempty"`
	NormalizedProfileURL *string       `json:"normalized_profile_url,omitempty"`
	WithMessage          *bool         `json:"with_message,omitempty"`
	CreatedAfter         *time.Time    `json:"created_after,omitempty"`
	CreatedBefore        *time.Time    `json:"created_before,omitempty"`
}
