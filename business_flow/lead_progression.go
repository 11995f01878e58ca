package businessflow

import (
	"context"
	"fmt"
	"time"

	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/config"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/models"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/repository"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
)

// LeadProgression moves a lead through the campaign after a step outcome
type LeadProgression interface {
	Apply(ctx context.Context, campaign *models.Campaign, lead *models.CampaignLead, step *models.CampaignStep, result *StepResult) error
}

// LeadProgressionImpl implements LeadProgression
type LeadProgressionImpl struct {
	leadRepo repository.CampaignLeadRepository
	cfg      config.SchedulerConfig
	clock    utils.Clock
}

// NewLeadProgression creates a new lead progression instance
func NewLeadProgression(leadRepo repository.CampaignLeadRepository, cfg config.SchedulerConfig, clock utils.Clock) LeadProgression {
	if cfg.MessageRecheck <= 0 {
		cfg.MessageRecheck = utils.DefaultMessageRecheck
	}
	if clock == nil {
		clock = utils.SystemClock()
	}
	return &LeadProgressionImpl{leadRepo: leadRepo, cfg: cfg, clock: clock}
}

// Apply persists the lead's next position. Skipped steps are rechecked
// later, retryable failures stay on the step and everything else advances.
func (p *LeadProgressionImpl) Apply(ctx context.Context, campaign *models.Campaign, lead *models.CampaignLead, step *models.CampaignStep, result *StepResult) error {
	now := p.clock()
	steps := perLeadSteps(campaign)

	switch result.Status {
	case StepStatusSkipped:
		next := now.Add(p.cfg.MessageRecheck)
		return p.save(ctx, lead, models.LeadStatusActive, step.StepOrder, &next, lead.LastError)

	case StepStatusFailed:
		lastError := utils.ToPtr(result.LastError())
		if result.Retryable {
			return p.save(ctx, lead, models.LeadStatusActive, step.StepOrder, nil, lastError)
		}
		return p.advance(ctx, lead, stepAfter(steps, step.StepOrder), step.StepOrder, 0, now, lastError)

	case StepStatusSuccess:
		if result.ConditionMet != nil && !*result.ConditionMet {
			return p.branch(ctx, lead, step, steps, now)
		}
		return p.advance(ctx, lead, stepAfter(steps, step.StepOrder), step.StepOrder, result.Delay, now, nil)

	default:
		return fmt.Errorf("unknown step status %q", result.Status)
	}
}

// branch handles a condition that did not hold
func (p *LeadProgressionImpl) branch(ctx context.Context, lead *models.CampaignLead, step *models.CampaignStep, steps []*models.CampaignStep, now time.Time) error {
	spec, err := step.Spec()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStepConfigInvalid, err)
	}
	cond, ok := spec.(*models.ConditionSpec)
	if !ok {
		return p.advance(ctx, lead, stepAfter(steps, step.StepOrder), step.StepOrder, 0, now, nil)
	}

	switch cond.OnFalse {
	case models.ConditionOnFalseStop:
		return p.save(ctx, lead, models.LeadStatusStopped, step.StepOrder, nil, nil)
	case models.ConditionOnFalseJump:
		return p.advance(ctx, lead, stepAtOrAfter(steps, cond.OnFalseStepOrder), step.StepOrder, 0, now, nil)
	default:
		return p.advance(ctx, lead, stepAfter(steps, step.StepOrder), step.StepOrder, 0, now, nil)
	}
}

func (p *LeadProgressionImpl) advance(ctx context.Context, lead *models.CampaignLead, next *models.CampaignStep, currentOrder int, delay time.Duration, now time.Time, lastError *string) error {
	if next == nil {
		return p.save(ctx, lead, models.LeadStatusCompleted, currentOrder, nil, lastError)
	}

	var nextAt *time.Time
	if delay > 0 {
		nextAt = utils.ToPtr(now.Add(delay))
	}
	return p.save(ctx, lead, models.LeadStatusActive, next.StepOrder, nextAt, lastError)
}

func (p *LeadProgressionImpl) save(ctx context.Context, lead *models.CampaignLead, status models.LeadStatus, order int, nextAt *time.Time, lastError *string) error {
	if err := p.leadRepo.UpdateProgress(ctx, lead.ID, status, order, nextAt, lastError); err != nil {
		return fmt.Errorf("failed to update lead progress: %w", err)
	}
	lead.Status = status
	lead.CurrentStepOrder = order
	lead.NextActionAt = nextAt
	lead.LastError = lastError
	return nil
}
