package dto

import (
	"encoding/json"
)

// CampaignStepRequest describes one step of a new campaign
type CampaignStepRequest struct {
	Type   string          `json:"type" validate:"required"`
	Order  int             `json:"order" validate:"gte=1"`
	Config json.RawMessage `json:"config,omitempty"`
}

// CreateCampaignRequest represents the request to create a new campaign
type CreateCampaignRequest struct {
	TenantID    string                `json:"-"`
	Name        string                `json:"name" validate:"required,max=255"`
	Timezone    string                `json:"timezone,omitempty" validate:"omitempty,timezone"`
	LeadsPerDay int                   `json:"leads_per_day" validate:"gte=0,lte=1000"`
	LeadSearch  map[string]any        `json:"lead_search,omitempty"`
	Steps       []CampaignStepRequest `json:"steps" validate:"required,min=1,dive"`
}

// CampaignStepResponse represents a campaign step in responses
type CampaignStepResponse struct {
	ID     uint            `json:"id"`
	Type   string          `json:"type"`
	Order  int             `json:"order"`
	Config json.RawMessage `json:"config"`
}

// CampaignResponse represents a campaign in responses
type CampaignResponse struct {
	UUID            string                 `json:"uuid"`
	Name            string                 `json:"name"`
	Status          string                 `json:"status"`
	ExecutionState  string                 `json:"execution_state"`
	NextRunAt       *string                `json:"next_run_at,omitempty"`
	Timezone        string                 `json:"timezone,omitempty"`
	LeadsPerDay     int                    `json:"leads_per_day"`
	LeadGenOffset   int                    `json:"lead_gen_offset"`
	LastLeadGenDate string                 `json:"last_lead_gen_date,omitempty"`
	Steps           []CampaignStepResponse `json:"steps"`
	CreatedAt       string                 `json:"created_at"`
}

// CampaignActionRequest addresses one campaign of the calling tenant
type CampaignActionRequest struct {
	TenantID     string `json:"-"`
	CampaignUUID string `json:"-" validate:"required,uuid"`
}

// CampaignStatusResponse is returned by lifecycle transitions
type CampaignStatusResponse struct {
	Message        string `json:"message"`
	UUID           string `json:"uuid"`
	Status         string `json:"status"`
	ExecutionState string `json:"execution_state"`
	StoppedLeads   int64  `json:"stopped_leads,omitempty"`
}

// SendNowRequest asks to execute a lead's current step immediately
type SendNowRequest struct {
	TenantID     string `json:"-"`
	CampaignUUID string `json:"-" validate:"required,uuid"`
	LeadID       uint   `json:"lead_id" validate:"required"`
}

// EnqueueTaskResponse is returned when work was handed to the task queue
type EnqueueTaskResponse struct {
	Message string `json:"message"`
	TaskID  string `json:"task_id"`
	Kind    string `json:"kind"`
}

// CampaignStatsResponse represents campaign statistics
type CampaignStatsResponse struct {
	UUID           string           `json:"uuid"`
	Status         string           `json:"status"`
	ExecutionState string           `json:"execution_state"`
	NextRunAt      *string          `json:"next_run_at,omitempty"`
	LeadsTotal     int64            `json:"leads_total"`
	LeadsByStatus  map[string]int64 `json:"leads_by_status"`
	ActionsByType  map[string]int64 `json:"actions_by_type"`
	FailedActions  int64            `json:"failed_actions"`
	SkippedActions int64            `json:"skipped_actions"`
	UpdatedAt      *string          `json:"updated_at,omitempty"`
}
