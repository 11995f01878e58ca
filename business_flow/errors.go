// Package businessflow contains the campaign execution, quota, credit and reconciliation use cases
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Campaign-related errors
	ErrCampaignNotFound          = errors.New("campaign not found")
	ErrCampaignAccessDenied      = errors.New("campaign access denied")
	ErrCampaignTransitionInvalid = errors.New("campaign status transition not allowed")
	ErrCampaignNotRunning        = errors.New("campaign is not running")
	ErrCampaignHasNoSteps        = errors.New("campaign has no steps")
	ErrCampaignBusy              = errors.New("campaign is being processed by another worker")
	ErrCampaignUUIDRequired      = errors.New("campaign UUID is required")

	// Lead-related errors
	ErrLeadNotFound  = errors.New("lead not found")
	ErrLeadNotActive = errors.New("lead is not active")

	// Step-related errors
	ErrStepNotFound      = errors.New("step not found")
	ErrStepConfigInvalid = errors.New("step configuration is invalid")

	// Credit-related errors
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidCreditAmount = errors.New("credit amount must be positive")

	// Provider-related errors
	ErrNoProviderAccount     = errors.New("no active provider account")
	ErrEnrichmentFailed      = errors.New("contact enrichment failed")
	ErrLeadSourceUnavailable = errors.New("lead source unavailable")
	ErrQueueNotAvailable     = errors.New("task queue not available")
	// ErrCooldownPastDeadline means the account's next connect slot opens after the caller's deadline
	ErrCooldownPastDeadline = errors.New("connect cooldown ends after the deadline")
)

// Step failure codes carried by StepResult and ledger records
const (
	CodeContactMissing          = "CONTACT_MISSING"
	CodeContactInvalid          = "CONTACT_INVALID"
	CodeLinkedInURLUnresolved   = "LINKEDIN_URL_UNRESOLVED"
	CodeNoProviderAccount       = "NO_PROVIDER_ACCOUNT"
	CodeAccountExpired          = "ACCOUNT_EXPIRED"
	CodeProviderRejected        = "PROVIDER_REJECTED"
	CodeProviderUnavailable     = "PROVIDER_UNAVAILABLE"
	CodeInsufficientCredits     = "INSUFFICIENT_CREDITS"
	CodeStepConfigInvalid       = "STEP_CONFIG_INVALID"
	CodeConnectionNotAccepted   = "CONNECTION_NOT_ACCEPTED"
	RemediationReconnectAccount = "reconnect_account"
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

// ErrorCode returns the code of the outermost BusinessError in err's chain
func ErrorCode(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}

func IsCampaignAccessDenied(err error) bool {
	return errors.Is(err, ErrCampaignAccessDenied)
}

func IsCampaignTransitionInvalid(err error) bool {
	return errors.Is(err, ErrCampaignTransitionInvalid)
}

func IsCampaignBusy(err error) bool {
	return errors.Is(err, ErrCampaignBusy)
}

func IsLeadNotFound(err error) bool {
	return errors.Is(err, ErrLeadNotFound)
}

func IsInsufficientCredits(err error) bool {
	return errors.Is(err, ErrInsufficientCredits)
}

func IsStepConfigInvalid(err error) bool {
	return errors.Is(err, ErrStepConfigInvalid)
}
