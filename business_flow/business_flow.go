// Package businessflow contains the business logic for the application.
package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/models"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
	"golang.org/x/time/rate"
)

// StepStatus is the outcome of executing one step for one lead
type StepStatus string

const (
	StepStatusSuccess StepStatus = "success"
	StepStatusFailed  StepStatus = "failed"
	StepStatusSkipped StepStatus = "skipped"
)

// StepResult is the business outcome of a step. Infrastructure failures are
// returned as errors instead.
type StepResult struct {
	Status       StepStatus     `json:"status"`
	ErrorCode    string         `json:"error_code,omitempty"`
	Error        string         `json:"error,omitempty"`
	Retryable    bool           `json:"retryable"`
	Remediation  string         `json:"remediation,omitempty"`
	Delay        time.Duration  `json:"delay,omitempty"`
	ConditionMet *bool          `json:"condition_met,omitempty"`
	LeadGen      *LeadGenResult `json:"lead_gen,omitempty"`
}

// LastError renders the failure for CampaignLead.LastError
func (r *StepResult) LastError() string {
	if r.Error == "" {
		return r.ErrorCode
	}
	return fmt.Sprintf("%s: %s", r.ErrorCode, r.Error)
}

func stepSuccess() *StepResult {
	return &StepResult{Status: StepStatusSuccess}
}

func stepSkipped(code, reason string) *StepResult {
	return &StepResult{Status: StepStatusSkipped, ErrorCode: code, Error: reason}
}

func stepFailed(code, reason string, retryable bool) *StepResult {
	return &StepResult{Status: StepStatusFailed, ErrorCode: code, Error: reason, Retryable: retryable}
}

// LeadGenResult summarises one daily lead generation pass
type LeadGenResult struct {
	Saved               int  `json:"saved"`
	Duplicates          int  `json:"duplicates"`
	PagesRead           int  `json:"pages_read"`
	AlreadyRanToday     bool `json:"already_ran_today"`
	SourceExhausted     bool `json:"source_exhausted"`
	InsufficientCredits bool `json:"insufficient_credits"`
}

var validate = validator.New()

// ValidateStep decodes and validates a step's configuration
func ValidateStep(step *models.CampaignStep) (models.StepSpec, error) {
	spec, err := step.Spec()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStepConfigInvalid, err)
	}
	if err := validate.Struct(spec); err != nil {
		return nil, fmt.Errorf("%w: step %d: %v", ErrStepConfigInvalid, step.StepOrder, err)
	}
	return spec, nil
}

// RenderTemplate fills lead placeholders in outreach text
func RenderTemplate(text string, lead *models.CampaignLead) string {
	if lead == nil || !strings.Contains(text, "{{") {
		return text
	}
	return strings.NewReplacer(
		"{{first_name}}", lead.FirstName,
		"{{last_name}}", lead.LastName,
		"{{company}}", lead.Company,
		"{{title}}", lead.Title,
	).Replace(text)
}

// perLeadSteps returns the steps a lead walks through, ordered
func perLeadSteps(campaign *models.Campaign) []*models.CampaignStep {
	steps := make([]*models.CampaignStep, 0, len(campaign.Steps))
	for i := range campaign.Steps {
		if campaign.Steps[i].Type.PerLead() {
			steps = append(steps, &campaign.Steps[i])
		}
	}
	slices.SortFunc(steps, func(a, b *models.CampaignStep) int {
		return a.StepOrder - b.StepOrder
	})
	return steps
}

// leadGenerationStep returns the campaign's lead generation step, if any
func leadGenerationStep(campaign *models.Campaign) *models.CampaignStep {
	for i := range campaign.Steps {
		if campaign.Steps[i].Type == models.StepTypeLeadGeneration {
			return &campaign.Steps[i]
		}
	}
	return nil
}

// CurrentStep returns the step a lead has to execute next, nil when it has none left
func CurrentStep(campaign *models.Campaign, lead *models.CampaignLead) *models.CampaignStep {
	return stepAtOrAfter(perLeadSteps(campaign), lead.CurrentStepOrder)
}

func stepAtOrAfter(steps []*models.CampaignStep, order int) *models.CampaignStep {
	for _, s := range steps {
		if s.StepOrder >= order {
			return s
		}
	}
	return nil
}

func stepAfter(steps []*models.CampaignStep, order int) *models.CampaignStep {
	return stepAtOrAfter(steps, order+1)
}

// AccountRateLimiter serialises connect attempts per account and keeps a fixed
// cooldown between the end of one attempt and the start of the next.
type AccountRateLimiter struct {
	mu    sync.Mutex
	every time.Duration
	slots map[uint]*accountSlot
}

type accountSlot struct {
	busy    chan struct{}
	limiter *rate.Limiter
}

// NewAccountRateLimiter creates a limiter; a cooldown <= 0 disables it
func NewAccountRateLimiter(cooldown time.Duration) *AccountRateLimiter {
	return &AccountRateLimiter{
		every: cooldown,
		slots: make(map[uint]*accountSlot),
	}
}

func (l *AccountRateLimiter) slot(accountID uint) *accountSlot {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, ok := l.slots[accountID]
	if !ok {
		slot = &accountSlot{
			busy:    make(chan struct{}, 1),
			limiter: rate.NewLimiter(rate.Every(l.every), 1),
		}
		l.slots[accountID] = slot
	}
	return slot
}

// Acquire waits until the account is free and its cooldown has passed. It returns
// ErrCooldownPastDeadline without waiting when that moment lies beyond ctx's deadline.
// The caller must end the returned slot with Done or Abandon.
func (l *AccountRateLimiter) Acquire(ctx context.Context, accountID uint) (*ConnectSlot, error) {
	if l == nil || l.every <= 0 {
		return nil, ctx.Err()
	}

	slot := l.slot(accountID)
	select {
	case slot.busy <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	now := time.Now()
	reservation := slot.limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	if deadline, ok := ctx.Deadline(); ok && now.Add(delay).After(deadline) {
		reservation.CancelAt(now)
		<-slot.busy
		return nil, ErrCooldownPastDeadline
	}

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			reservation.Cancel()
			<-slot.busy
			return nil, ctx.Err()
		}
	}

	return &ConnectSlot{limiter: l, slot: slot}, nil
}

// ConnectSlot is an account held for one connect attempt
type ConnectSlot struct {
	limiter *AccountRateLimiter
	slot    *accountSlot
	once    sync.Once
}

// Done ends the attempt; the cooldown runs from now
func (s *ConnectSlot) Done() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		limiter := rate.NewLimiter(rate.Every(s.limiter.every), 1)
		limiter.ReserveN(time.Now(), 1)
		s.slot.limiter = limiter
		<-s.slot.busy
	})
}

// Abandon frees the account without starting a cooldown; no attempt was made
func (s *ConnectSlot) Abandon() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.slot.limiter = rate.NewLimiter(rate.Every(s.limiter.every), 1)
		<-s.slot.busy
	})
}

func metadataJSON(fields map[string]any) json.RawMessage {
	if len(fields) == 0 {
		return json.RawMessage("{}")
	}
	bs, err := json.Marshal(fields)
	if err != nil {
		return json.RawMessage("{}")
	}
	return bs
}

func newActionRecord(lead *models.CampaignLead, step *models.CampaignStep, actionType models.ActionType, status models.ActionStatus, at time.Time) *models.ActionRecord {
	record := &models.ActionRecord{
		TenantID:   lead.TenantID,
		CampaignID: lead.CampaignID,
		LeadID:     lead.ID,
		ActionType: actionType,
		Status:     status,
		CreatedAt:  at,
	}
	if step != nil {
		record.StepID = utils.ToPtr(step.ID)
	}
	return record
}
