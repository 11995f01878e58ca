package utils

import (
	"time"
)

// Request-scoped context keys
type contextKey string

const (
	RequestIDKey  contextKey = "request_id"
	UserAgentKey  contextKey = "user_agent"
	IPAddressKey  contextKey = "ip_address"
	EndpointKey   contextKey = "endpoint"
	TimeoutKey    contextKey = "timeout"
	CancelFuncKey contextKey = "cancel_func"
	TenantIDKey   contextKey = "tenant_id"
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Lead generation constants
const (
	// LeadSourcePageSize is the fixed page size of the people-search provider
	LeadSourcePageSize = 100

	// DefaultLeadGenMaxPages bounds a single daily generation pass
	DefaultLeadGenMaxPages = 20

	// LeadGenDateLayout is the layout of QuotaState.LastLeadGenDate
	LeadGenDateLayout = "2006-01-02"
)

// Execution timing constants
const (
	DefaultProviderCallTimeout = 30 * time.Second
	DefaultConnectCooldown     = 10 * time.Second
	DefaultMessageRecheck      = 4 * time.Hour
	DefaultReconcileLookback   = 24 * time.Hour
)

// Credit usage types
const (
	UsageLeadGeneration  = "lead_generation"
	UsageContactReveal   = "contact_reveal"
	UsageLinkedInConnect = "linkedin_connect"
	UsageLinkedInMessage = "linkedin_message"
	UsageLinkedInVisit   = "linkedin_visit"
	UsageLinkedInFollow  = "linkedin_follow"
	UsageEmailSend       = "email_send"
	UsageWhatsAppSend    = "whatsapp_send"
	UsageVoiceCall       = "voice_call"
)
