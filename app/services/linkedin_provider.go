// Package services provides external provider contracts and technical concerns like queues, caches and tokens
package services

import (
	"context"
	"time"

	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/models"
)

// ActionResult is the outcome of one provider call
type ActionResult struct {
	Success        bool
	AccountUsed    string
	StatusCode     int
	Error          string
	AccountExpired bool
	TransientError bool
}

// Rejected reports a 4xx answer that will not succeed on retry
func (r *ActionResult) Rejected() bool {
	return r != nil && !r.Success && !r.AccountExpired && !r.TransientError &&
		r.StatusCode >= 400 && r.StatusCode < 500
}

// Unavailable reports a 5xx or transient failure
func (r *ActionResult) Unavailable() bool {
	return r != nil && !r.Success && (r.TransientError || r.StatusCode >= 500)
}

// ProfileResult is returned by a profile visit
type ProfileResult struct {
	ActionResult
	FullName string
	Headline string
	Company  string
}

// Connection is an accepted connection reported by the provider
type Connection struct {
	ProfileURL  string    `json:"profile_url"`
	ProviderID  string    `json:"provider_id,omitempty"`
	Name        string    `json:"name,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

// LinkedInProvider is the outbound contract to the LinkedIn automation provider
type LinkedInProvider interface {
	SendConnectionRequest(ctx context.Context, account *models.ProviderAccount, profileURL, message string) (*ActionResult, error)
	SendMessage(ctx context.Context, account *models.ProviderAccount, profileURL, text string) (*ActionResult, error)
	FollowProfile(ctx context.Context, account *models.ProviderAccount, profileURL string) (*ActionResult, error)
	GetProfileDetails(ctx context.Context, account *models.ProviderAccount, profileURL string) (*ProfileResult, error)
	GetRecentConnections(ctx context.Context, account *models.ProviderAccount, since time.Time) ([]Connection, error)
}
