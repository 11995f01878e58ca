package dto

import "time"

// LinkedInConnectionDTO is one accepted connection pushed by the provider
type LinkedInConnectionDTO struct {
	ProfileURL  string     `json:"profile_url" validate:"required,max=512"`
	ProviderID  string     `json:"provider_id,omitempty"`
	Name        string     `json:"name,omitempty"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
}

// LinkedInConnectionsWebhookRequest carries accepted connections of one tenant
type LinkedInConnectionsWebhookRequest struct {
	TenantID    string                  `json:"-"`
	Connections []LinkedInConnectionDTO `json:"connections" validate:"required,min=1,max=500,dive"`
}

// LinkedInConnectionsWebhookResponse summarises the handled connections
type LinkedInConnectionsWebhookResponse struct {
	Received  int `json:"received"`
	Matched   int `json:"matched"`
	Accepted  int `json:"accepted"`
	Unblocked int `json:"unblocked"`
	Failed    int `json:"failed"`
}
