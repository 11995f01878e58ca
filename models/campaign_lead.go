package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
	"gorm.io/gorm"
)

// LeadStatus represents the progression status of a lead inside a campaign
type LeadStatus string

const (
	LeadStatusActive    LeadStatus = "active"
	LeadStatusCompleted LeadStatus = "completed"
	LeadStatusStopped   LeadStatus = "stopped"
	LeadStatusFailed    LeadStatus = "failed"
)

func (s LeadStatus) String() string {
	return string(s)
}

func (s LeadStatus) Valid() bool {
	switch s {
	case LeadStatusActive, LeadStatusCompleted, LeadStatusStopped, LeadStatusFailed:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for LeadStatus
func (s *LeadStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = LeadStatus(v)
	case []byte:
		*s = LeadStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into LeadStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for LeadStatus
func (s LeadStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid LeadStatus: %s", s)
	}
	return string(s), nil
}

// CampaignLead is one person enrolled in a campaign. Identity fields are a
// snapshot taken at generation time; enrichment fields override them.
type CampaignLead struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UUID           uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_campaign_leads_uuid" json:"uuid"`
	TenantID       string    `gorm:"type:varchar(64);not null;index:idx_campaign_leads_tenant_id" json:"tenant_id"`
	CampaignID     uint      `gorm:"not null;uniqueIndex:uk_campaign_leads_person,priority:1;index:idx_campaign_leads_due,priority:1" json:"campaign_id"`
	SourcePersonID string    `gorm:"type:varchar(128);not null;uniqueIndex:uk_campaign_leads_person,priority:2;index:idx_campaign_leads_person_id" json:"source_person_id"`

	FirstName   string         `gorm:"type:varchar(255)" json:"first_name"`
	LastName    string         `gorm:"type:varchar(255)" json:"last_name"`
	Email       string         `gorm:"type:varchar(255);index:idx_campaign_leads_email" json:"email,omitempty"`
	Phone       string         `gorm:"type:varchar(64)" json:"phone,omitempty"`
	Company     string         `gorm:"type:varchar(255)" json:"company,omitempty"`
	Title       string         `gorm:"type:varchar(255)" json:"title,omitempty"`
	LinkedInURL *string        `gorm:"type:varchar(512)" json:"linkedin_url,omitempty"`
	Tags        pq.StringArray `gorm:"type:text[]" json:"tags,omitempty"`

	EnrichedEmail       *string    `gorm:"type:varchar(255)" json:"enriched_email,omitempty"`
	EnrichedLinkedInURL *string    `gorm:"type:varchar(512)" json:"enriched_linkedin_url,omitempty"`
	EnrichedPhone       *string    `gorm:"type:varchar(64)" json:"enriched_phone,omitempty"`
	EnrichedAt          *time.Time `json:"enriched_at,omitempty"`

	Status           LeadStatus `gorm:"type:varchar(20);not null;default:'active';index:idx_campaign_leads_due,priority:2" json:"status"`
	CurrentStepOrder int        `gorm:"not null;default:0" json:"current_step_order"`
	NextActionAt     *time.Time `gorm:"index:idx_campaign_leads_due,priority:3" json:"next_action_at,omitempty"`
	LastError        *string    `gorm:"type:text" json:"last_error,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt *time.Time     `json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// TableName returns the table name for the model
func (CampaignLead) TableName() string {
	return "campaign_leads"
}

// BeforeCreate is called before creating a new record
func (l *CampaignLead) BeforeCreate(tx *gorm.DB) error {
	if l.UUID == uuid.Nil {
		l.UUID = uuid.New()
	}
	if l.Status == "" {
		l.Status = LeadStatusActive
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = utils.UTCNow()
	}
	return nil
}

// EffectiveEmail prefers the enriched email over the snapshot
func (l *CampaignLead) EffectiveEmail() string {
	return utils.FirstNonEmpty(utils.Deref(l.EnrichedEmail), l.Email)
}

// EffectiveLinkedInURL prefers the enriched profile URL over the snapshot
func (l *CampaignLead) EffectiveLinkedInURL() string {
	return utils.FirstNonEmpty(utils.Deref(l.EnrichedLinkedInURL), utils.Deref(l.LinkedInURL))
}

// EffectivePhone prefers the enriched phone over the snapshot
func (l *CampaignLead) EffectivePhone() string {
	return utils.FirstNonEmpty(utils.Deref(l.EnrichedPhone), l.Phone)
}

// FullName joins first and last name
func (l *CampaignLead) FullName() string {
	return strings.TrimSpace(l.FirstName + " " + l.LastName)
}

// IsDue reports whether the lead can be processed at now
func (l *CampaignLead) IsDue(now time.Time) bool {
	return l.Status == LeadStatusActive && (l.NextActionAt == nil || !l.NextActionAt.After(now))
}

// LeadEnrichment carries contact data found for a lead; nil fields are unknown
type LeadEnrichment struct {
	Email       *string
	LinkedInURL *string
	Phone       *string
	FirstName   *string
	LastName    *string
}

// Empty reports whether nothing was found
func (e LeadEnrichment) Empty() bool {
	return e.Email == nil && e.LinkedInURL == nil && e.Phone == nil && e.FirstName == nil && e.LastName == nil
}

// CampaignLeadFilter represents filter criteria for campaign leads
type CampaignLeadFilter struct {
	ID             *uint       `json:"id,omitempty"`
	TenantID       *string     `json:"tenant_id,omitempty"`
	CampaignID     *uint       `json:"campaign_id,omitempty"`
	SourcePersonID *string     `json:"source_person_id,omitempty"`
	Status         *LeadStatus `json:"status,omitempty"`
	Email          *string     `json:"email,omitempty"`
	DueBefore      *time.Time  `json:"due_before,omitempty"`
}
