package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
	"gorm.io/gorm"
)

// CampaignStatus represents the lifecycle status of a campaign
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusStopped   CampaignStatus = "stopped"
	CampaignStatusCompleted CampaignStatus = "completed"
)

// String returns the string representation of the status
func (s CampaignStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusRunning, CampaignStatusPaused,
		CampaignStatusStopped, CampaignStatusCompleted:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for CampaignStatus
func (s *CampaignStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = CampaignStatus(v)
	case []byte:
		*s = CampaignStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for CampaignStatus
func (s CampaignStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid CampaignStatus: %s", s)
	}
	return string(s), nil
}

// ExecutionState tracks where a running campaign is in its daily cycle.
// It is independent of CampaignStatus.
type ExecutionState string

const (
	ExecutionStateActive               ExecutionState = "active"
	ExecutionStateSleepingUntilNextDay ExecutionState = "sleeping_until_next_day"
	ExecutionStateWaitingForLeads      ExecutionState = "waiting_for_leads"
)

func (s ExecutionState) String() string {
	return string(s)
}

func (s ExecutionState) Valid() bool {
	switch s {
	case ExecutionStateActive, ExecutionStateSleepingUntilNextDay, ExecutionStateWaitingForLeads:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for ExecutionState
func (s *ExecutionState) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = ExecutionState(v)
	case []byte:
		*s = ExecutionState(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ExecutionState", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for ExecutionState
func (s ExecutionState) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid ExecutionState: %s", s)
	}
	return string(s), nil
}

// QuotaState is the durable lead-generation cursor of a campaign
type QuotaState struct {
	LeadsPerDay     int    `json:"leads_per_day" validate:"gte=0,lte=1000"`
	LeadGenOffset   int    `json:"lead_gen_offset" validate:"gte=0"`
	LastLeadGenDate string `json:"last_lead_gen_date,omitempty"`
}

// RanOn reports whether generation already ran on the given local date
func (q QuotaState) RanOn(date string) bool {
	return q.LastLeadGenDate != "" && q.LastLeadGenDate == date
}

// Page returns the 1-based provider page and the index inside it where the cursor points
func (q QuotaState) Page(pageSize int) (page int, skip int) {
	if pageSize <= 0 {
		pageSize = utils.LeadSourcePageSize
	}
	return q.LeadGenOffset/pageSize + 1, q.LeadGenOffset % pageSize
}

// Advance returns the state after saving n leads on date
func (q QuotaState) Advance(saved int, date string) QuotaState {
	q.LeadGenOffset += saved
	q.LastLeadGenDate = date
	return q
}

// CampaignConfig represents the JSON configuration of a campaign
type CampaignConfig struct {
	Quota      QuotaState     `json:"quota"`
	LeadSearch map[string]any `json:"lead_search,omitempty"`
	Timezone   string         `json:"timezone,omitempty"`
}

// Value implements the driver.Valuer interface for CampaignConfig
func (c CampaignConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements the sql.Scanner interface for CampaignConfig
func (c *CampaignConfig) Scan(value any) error {
	if value == nil {
		*c = CampaignConfig{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into CampaignConfig", value)
	}

	return json.Unmarshal(bytes, c)
}

// CampaignStats is the aggregate recomputed after every processing pass
type CampaignStats struct {
	LeadsTotal     int64            `json:"leads_total"`
	LeadsByStatus  map[string]int64 `json:"leads_by_status,omitempty"`
	ActionsByType  map[string]int64 `json:"actions_by_type,omitempty"`
	FailedActions  int64            `json:"failed_actions"`
	SkippedActions int64            `json:"skipped_actions"`
	UpdatedAt      *time.Time       `json:"updated_at,omitempty"`
}

// Value implements the driver.Valuer interface for CampaignStats
func (s CampaignStats) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements the sql.Scanner interface for CampaignStats
func (s *CampaignStats) Scan(value any) error {
	if value == nil {
		*s = CampaignStats{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into CampaignStats", value)
	}

	return json.Unmarshal(bytes, s)
}

// Campaign represents an outreach campaign in the database
type Campaign struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	UUID           uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uk_campaigns_uuid" json:"uuid"`
	TenantID       string         `gorm:"type:varchar(64);not null;index:idx_campaigns_tenant_id" json:"tenant_id"`
	Name           string         `gorm:"type:varchar(255);not null" json:"name"`
	Status         CampaignStatus `gorm:"type:varchar(20);not null;default:'draft';index:idx_campaigns_runnable,priority:1" json:"status"`
	ExecutionState ExecutionState `gorm:"type:varchar(32);not null;default:'active';index:idx_campaigns_runnable,priority:2" json:"execution_state"`
	NextRunAt      *time.Time     `gorm:"index:idx_campaigns_runnable,priority:3" json:"next_run_at,omitempty"`
	Config         CampaignConfig `gorm:"type:jsonb;not null" json:"config"`
	QuotaVersion   int            `gorm:"not null;default:0" json:"quota_version"`
	Stats          CampaignStats  `gorm:"type:jsonb" json:"stats"`
	CreatedAt      time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt      *time.Time     `json:"updated_at,omitempty"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// Relations
	Steps []CampaignStep `gorm:"foreignKey:CampaignID" json:"steps,omitempty"`
}

// TableName returns the table name for the model
func (Campaign) TableName() string {
	return "campaigns"
}

// BeforeCreate is called before creating a new record
func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Status == "" {
		c.Status = CampaignStatusDraft
	}
	if c.ExecutionState == "" {
		c.ExecutionState = ExecutionStateActive
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (c *Campaign) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	c.UpdatedAt = &now
	return nil
}

// Location returns the campaign's timezone, UTC when unset or invalid
func (c *Campaign) Location() *time.Location {
	loc, err := utils.LoadLocation(c.Config.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsRunnable reports whether the scheduler should pick the campaign up at now
func (c *Campaign) IsRunnable(now time.Time) bool {
	if c.Status != CampaignStatusRunning || c.DeletedAt.Valid {
		return false
	}
	switch c.ExecutionState {
	case ExecutionStateActive:
		return true
	case ExecutionStateSleepingUntilNextDay, ExecutionStateWaitingForLeads:
		return c.NextRunAt != nil && !c.NextRunAt.After(now)
	default:
		return false
	}
}

// CanTransitionTo checks if the campaign can transition to the given status
func (c *Campaign) CanTransitionTo(newStatus CampaignStatus) bool {
	switch c.Status {
	case CampaignStatusDraft:
		return newStatus == CampaignStatusRunning || newStatus == CampaignStatusStopped
	case CampaignStatusRunning:
		return newStatus == CampaignStatusPaused ||
			newStatus == CampaignStatusStopped ||
			newStatus == CampaignStatusCompleted
	case CampaignStatusPaused:
		return newStatus == CampaignStatusRunning || newStatus == CampaignStatusStopped
	default:
		return false
	}
}

// CampaignFilter represents filter criteria for campaigns
type CampaignFilter struct {
	ID             *uint           `json:"id,omitempty"`
	UUID           *uuid.UUID      `json:"uuid,omitempty"`
	TenantID       *string         `json:"tenant_id,omitempty"`
	Status         *CampaignStatus `json:"status,omitempty"`
	ExecutionState *ExecutionState `json:"execution_state,omitempty"`
	CreatedAfter   *time.Time      `json:"created_after,omitempty"`
	CreatedBefore  *time.Time      `json:"created_before,omitempty"`
}
