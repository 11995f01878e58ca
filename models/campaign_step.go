package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
	"gorm.io/gorm"
)

// StepType identifies the action a campaign step performs
type StepType string

const (
	StepTypeLeadGeneration  StepType = "lead_generation"
	StepTypeLinkedInConnect StepType = "linkedin_connect"
	StepTypeLinkedInMessage StepType = "linkedin_message"
	StepTypeLinkedInVisit   StepType = "linkedin_visit"
	StepTypeLinkedInFollow  StepType = "linkedin_follow"
	StepTypeEmail           StepType = "email"
	StepTypeWhatsApp        StepType = "whatsapp"
	StepTypeVoice           StepType = "voice"
	StepTypeDelay           StepType = "delay"
	StepTypeCondition       StepType = "condition"
)

func (t StepType) String() string {
	return string(t)
}

func (t StepType) Valid() bool {
	switch t {
	case StepTypeLeadGeneration, StepTypeLinkedInConnect, StepTypeLinkedInMessage,
		StepTypeLinkedInVisit, StepTypeLinkedInFollow, StepTypeEmail,
		StepTypeWhatsApp, StepTypeVoice, StepTypeDelay, StepTypeCondition:
		return true
	default:
		return false
	}
}

// PerLead reports whether the step runs once per lead rather than once per campaign
func (t StepType) PerLead() bool {
	return t != StepTypeLeadGeneration
}

var ErrUnknownStepType = errors.New("unknown step type")

// StepSpec is the typed configuration of one step. Each step type has exactly
// one implementation.
type StepSpec interface {
	StepType() StepType
}

// LeadGenerationSpec configures the per-campaign lead generation step
type LeadGenerationSpec struct {
	LeadsPerDay int            `json:"leads_per_day" validate:"gte=0,lte=1000"`
	Filters     map[string]any `json:"filters,omitempty"`
}

// LinkedInConnectSpec configures a connection request
type LinkedInConnectSpec struct {
	Message     string `json:"message,omitempty" validate:"max=300"`
	SendMessage bool   `json:"send_message"`
}

// LinkedInMessageSpec configures a direct message, gated on an accepted connection
type LinkedInMessageSpec struct {
	Message string `json:"message" validate:"required,max=8000"`
}

type LinkedInVisitSpec struct{}

type LinkedInFollowSpec struct{}

// EmailSpec configures an outbound email
type EmailSpec struct {
	Subject string `json:"subject" validate:"required,max=255"`
	Body    string `json:"body" validate:"required"`
}

// WhatsAppSpec configures an outbound WhatsApp message
type WhatsAppSpec struct {
	Message      string `json:"message" validate:"required,max=4096"`
	TemplateName string `json:"template_name,omitempty"`
	Region       string `json:"region,omitempty" validate:"omitempty,len=2"`
}

// VoiceSpec configures an outbound call
type VoiceSpec struct {
	Script  string `json:"script" validate:"required"`
	AgentID string `json:"agent_id,omitempty"`
	Region  string `json:"region,omitempty" validate:"omitempty,len=2"`
}

// DelaySpec pauses a lead before the next step
type DelaySpec struct {
	Days    int `json:"days" validate:"gte=0,lte=365"`
	Hours   int `json:"hours" validate:"gte=0,lte=23"`
	Minutes int `json:"minutes" validate:"gte=0,lte=59"`
}

// Duration returns the total wait
func (s DelaySpec) Duration() time.Duration {
	return time.Duration(s.Days)*24*time.Hour +
		time.Duration(s.Hours)*time.Hour +
		time.Duration(s.Minutes)*time.Minute
}

// ConditionCheck names a predicate evaluated against the action ledger or lead data
type ConditionCheck string

const (
	ConditionConnectionAccepted ConditionCheck = "connection_accepted"
	ConditionConnectionSent     ConditionCheck = "connection_sent"
	ConditionMessageSent        ConditionCheck = "message_sent"
	ConditionProfileVisited     ConditionCheck = "profile_visited"
	ConditionEmailSent          ConditionCheck = "email_sent"
	ConditionHasEmail           ConditionCheck = "has_email"
	ConditionHasLinkedIn        ConditionCheck = "has_linkedin"
	ConditionHasPhone           ConditionCheck = "has_phone"
)

// ConditionOnFalse decides what happens when the predicate does not hold
type ConditionOnFalse string

const (
	ConditionOnFalseContinue ConditionOnFalse = "continue"
	ConditionOnFalseJump     ConditionOnFalse = "jump"
	ConditionOnFalseStop     ConditionOnFalse = "stop"
)

// ConditionSpec branches a lead's progression
type ConditionSpec struct {
	Check            ConditionCheck   `json:"check" validate:"required,oneof=connection_accepted connection_sent message_sent profile_visited email_sent has_email has_linkedin has_phone"`
	OnFalse          ConditionOnFalse `json:"on_false,omitempty" validate:"omitempty,oneof=continue jump stop"`
	OnFalseStepOrder int              `json:"on_false_step_order,omitempty" validate:"gte=0"`
}

func (LeadGenerationSpec) StepType() StepType  { return StepTypeLeadGeneration }
func (LinkedInConnectSpec) StepType() StepType { return StepTypeLinkedInConnect }
func (LinkedInMessageSpec) StepType() StepType { return StepTypeLinkedInMessage }
func (LinkedInVisitSpec) StepType() StepType   { return StepTypeLinkedInVisit }
func (LinkedInFollowSpec) StepType() StepType  { return StepTypeLinkedInFollow }
func (EmailSpec) StepType() StepType           { return StepTypeEmail }
func (WhatsAppSpec) StepType() StepType        { return StepTypeWhatsApp }
func (VoiceSpec) StepType() StepType           { return StepTypeVoice }
func (DelaySpec) StepType() StepType           { return StepTypeDelay }
func (ConditionSpec) StepType() StepType       { return StepTypeCondition }

// StepConfig is the raw jsonb configuration of a step
type StepConfig json.RawMessage

// Value implements the driver.Valuer interface for StepConfig
func (c StepConfig) Value() (driver.Value, error) {
	if len(c) == 0 {
		return []byte("{}"), nil
	}
	return []byte(c), nil
}

// Scan implements the sql.Scanner interface for StepConfig
func (c *StepConfig) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*c = StepConfig("{}")
	case []byte:
		*c = append(StepConfig(nil), v...)
	case string:
		*c = StepConfig(v)
	default:
		return fmt.Errorf("cannot scan %T into StepConfig", value)
	}
	return nil
}

// MarshalJSON keeps the raw configuration inline
func (c StepConfig) MarshalJSON() ([]byte, error) {
	if len(c) == 0 {
		return []byte("{}"), nil
	}
	return []byte(c), nil
}

// UnmarshalJSON stores the raw configuration
func (c *StepConfig) UnmarshalJSON(data []byte) error {
	*c = append(StepConfig(nil), data...)
	return nil
}

// CampaignStep is one ordered step of a campaign
type CampaignStep struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	CampaignID uint       `gorm:"not null;uniqueIndex:uk_campaign_steps_order,priority:1" json:"campaign_id"`
	Type       StepType   `gorm:"type:varchar(32);not null" json:"type"`
	StepOrder  int        `gorm:"not null;uniqueIndex:uk_campaign_steps_order,priority:2" json:"step_order"`
	Config     StepConfig `gorm:"type:jsonb;not null;default:'{}'" json:"config"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (CampaignStep) TableName() string {
	return "campaign_steps"
}

// BeforeCreate is called before creating a new record
func (s *CampaignStep) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = utils.UTCNow()
	}
	if len(s.Config) == 0 {
		s.Config = StepConfig("{}")
	}
	return nil
}

// Spec decodes the step configuration into its typed form
func (s *CampaignStep) Spec() (StepSpec, error) {
	raw := []byte(s.Config)
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	var spec StepSpec
	switch s.Type {
	case StepTypeLeadGeneration:
		spec = &LeadGenerationSpec{}
	case StepTypeLinkedInConnect:
		spec = &LinkedInConnectSpec{}
	case StepTypeLinkedInMessage:
		spec = &LinkedInMessageSpec{}
	case StepTypeLinkedInVisit:
		spec = &LinkedInVisitSpec{}
	case StepTypeLinkedInFollow:
		spec = &LinkedInFollowSpec{}
	case StepTypeEmail:
		spec = &EmailSpec{}
	case StepTypeWhatsApp:
		spec = &WhatsAppSpec{}
	case StepTypeVoice:
		spec = &VoiceSpec{}
	case StepTypeDelay:
		spec = &DelaySpec{}
	case StepTypeCondition:
		spec = &ConditionSpec{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStepType, s.Type)
	}

	if err := json.Unmarshal(raw, spec); err != nil {
		return nil, fmt.Errorf("invalid %s step config: %w", s.Type, err)
	}
	return spec, nil
}

// NewCampaignStep builds a step from a typed spec
func NewCampaignStep(campaignID uint, order int, spec StepSpec) (*CampaignStep, error) {
	raw, err := json.Marshal(spec)
	if err != nil {
		return nil, err
	}
	return &CampaignStep{
		CampaignID: campaignID,
		Type:       spec.StepType(),
		StepOrder:  order,
		Config:     StepConfig(raw),
	}, nil
}

// CampaignStepFilter represents filter criteria for campaign steps
type CampaignStepFilter struct {
	ID         *uint     `json:"id,omitempty"`
	CampaignID *uint     `json:"campaign_id,omitempty"`
	Type       *StepType `json:"type,omitempty"`
}
