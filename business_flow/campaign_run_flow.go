package businessflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/services"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/config"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/models"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/repository"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
	"go.uber.org/zap"
)

// CampaignRunSummary describes one processing pass over a campaign
type CampaignRunSummary struct {
	CampaignID     uint                  `json:"campaign_id"`
	LeadGen        *LeadGenResult        `json:"lead_gen,omitempty"`
	LeadsProcessed int                   `json:"leads_processed"`
	Succeeded      int                   `json:"succeeded"`
	Failed         int                   `json:"failed"`
	Skipped        int                   `json:"skipped"`
	Deferred       int                   `json:"deferred"`
	Status         models.CampaignStatus `json:"status"`
	ExecutionState models.ExecutionState `json:"execution_state"`
	NextRunAt      *time.Time            `json:"next_run_at,omitempty"`
}

// CampaignRunFlow processes running campaigns and single leads
type CampaignRunFlow interface {
	ProcessCampaign(ctx context.Context, campaignID uint) (*CampaignRunSummary, error)
	// ProcessLead executes the lead's current step now, ignoring next_action_at
	ProcessLead(ctx context.Context, campaignID, leadID uint) (*StepResult, error)
}

// CampaignRunFlowImpl implements CampaignRunFlow
type CampaignRunFlowImpl struct {
	campaignRepo repository.CampaignRepository
	leadRepo     repository.CampaignLeadRepository
	actionRepo   repository.ActionRecordRepository
	executor     StepExecutorFlow
	progression  LeadProgression
	publisher    services.EventPublisher
	locker       services.CampaignLocker
	cfg          config.SchedulerConfig
	clock        utils.Clock
	logger       *zap.Logger
}

// NewCampaignRunFlow creates a new campaign run flow instance; locker may be nil
func NewCampaignRunFlow(
	campaignRepo repository.CampaignRepository,
	leadRepo repository.CampaignLeadRepository,
	actionRepo repository.ActionRecordRepository,
	executor StepExecutorFlow,
	progression LeadProgression,
	publisher services.EventPublisher,
	locker services.CampaignLocker,
	cfg config.SchedulerConfig,
	clock utils.Clock,
	logger *zap.Logger,
) CampaignRunFlow {
	if cfg.LeadBatchSize <= 0 {
		cfg.LeadBatchSize = 50
	}
	if cfg.CampaignTimeout <= 0 {
		cfg.CampaignTimeout = 5 * time.Minute
	}
	if publisher == nil {
		publisher = services.NoopEventPublisher{}
	}
	if clock == nil {
		clock = utils.SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CampaignRunFlowImpl{
		campaignRepo: campaignRepo,
		leadRepo:     leadRepo,
		actionRepo:   actionRepo,
		executor:     executor,
		progression:  progression,
		publisher:    publisher,
		locker:       locker,
		cfg:          cfg,
		clock:        clock,
		logger:       logger.Named("run"),
	}
}

// ProcessCampaign generates today's leads, runs one batch of due leads and
// decides when the campaign has to be looked at again.
func (s *CampaignRunFlowImpl) ProcessCampaign(ctx context.Context, campaignID uint) (*CampaignRunSummary, error) {
	campaign, err := s.loadRunning(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	if s.locker != nil {
		unlock, err := s.locker.TryLock(ctx, campaign.ID, s.cfg.CampaignTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to lock campaign: %w", err)
		}
		if unlock == nil {
			return nil, ErrCampaignBusy
		}
		defer unlock()
	}

	summary := &CampaignRunSummary{CampaignID: campaign.ID, Status: campaign.Status}

	leadGenRetry := false
	leadGenStep := leadGenerationStep(campaign)
	if leadGenStep != nil {
		result, err := s.executor.Execute(ctx, campaign, nil, leadGenStep)
		if err != nil {
			return nil, fmt.Errorf("lead generation failed: %w", err)
		}
		summary.LeadGen = result.LeadGen
		if result.Status == StepStatusFailed {
			leadGenRetry = result.Retryable
			s.logger.Warn("lead generation failed",
				zap.Uint("campaign_id", campaign.ID),
				zap.String("code", result.ErrorCode),
				zap.String("error", result.Error))
		}
	}

	leads, err := s.leadRepo.ListDue(ctx, campaign.ID, s.clock(), s.cfg.LeadBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list due leads: %w", err)
	}

	for _, lead := range leads {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := s.processLead(ctx, campaign, lead)
		if errors.Is(err, ErrCooldownPastDeadline) {
			// the lead stays due for the next tick
			summary.Deferred++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lead %d: %w", lead.ID, err)
		}
		summary.LeadsProcessed++
		if result == nil {
			continue
		}
		switch result.Status {
		case StepStatusSuccess:
			summary.Succeeded++
		case StepStatusFailed:
			summary.Failed++
		case StepStatusSkipped:
			summary.Skipped++
		}
	}

	stats, err := s.recomputeStats(ctx, campaign)
	if err != nil {
		return nil, err
	}

	if err := s.updateExecutionState(ctx, campaign, leadGenStep != nil, leadGenRetry, summary); err != nil {
		return nil, err
	}

	s.publish(ctx, campaign, stats, "campaign_processed")

	s.logger.Info("campaign processed",
		zap.Uint("campaign_id", campaign.ID),
		zap.Int("leads", summary.LeadsProcessed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("deferred", summary.Deferred),
		zap.String("status", string(summary.Status)),
		zap.String("execution_state", string(summary.ExecutionState)))

	return summary, nil
}

func (s *CampaignRunFlowImpl) ProcessLead(ctx context.Context, campaignID, leadID uint) (*StepResult, error) {
	campaign, err := s.loadRunning(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	lead, err := s.leadRepo.ByID(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lead: %w", err)
	}
	if lead == nil || lead.CampaignID != campaign.ID {
		return nil, ErrLeadNotFound
	}
	if lead.Status != models.LeadStatusActive {
		return nil, ErrLeadNotActive
	}

	result, err := s.processLead(ctx, campaign, lead)
	if err != nil {
		return nil, err
	}

	if stats, err := s.recomputeStats(ctx, campaign); err != nil {
		s.logger.Warn("failed to recompute stats", zap.Uint("campaign_id", campaign.ID), zap.Error(err))
	} else {
		s.publish(ctx, campaign, stats, "lead_processed")
	}

	if result == nil {
		return stepSuccess(), nil
	}
	return result, nil
}

func (s *CampaignRunFlowImpl) loadRunning(ctx context.Context, campaignID uint) (*models.Campaign, error) {
	campaign, err := s.campaignRepo.ByID(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign == nil {
		return nil, ErrCampaignNotFound
	}
	if campaign.Status != models.CampaignStatusRunning {
		return nil, ErrCampaignNotRunning
	}
	return campaign, nil
}

// processLead runs the lead's current step; a nil result means the lead had nothing left
func (s *CampaignRunFlowImpl) processLead(ctx context.Context, campaign *models.Campaign, lead *models.CampaignLead) (*StepResult, error) {
	step := CurrentStep(campaign, lead)
	if step == nil {
		if err := s.leadRepo.UpdateProgress(ctx, lead.ID, models.LeadStatusCompleted, lead.CurrentStepOrder, nil, lead.LastError); err != nil {
			return nil, fmt.Errorf("failed to complete lead: %w", err)
		}
		lead.Status = models.LeadStatusCompleted
		return nil, nil
	}

	result, err := s.executor.Execute(ctx, campaign, lead, step)
	if err != nil {
		return nil, err
	}
	if err := s.progression.Apply(ctx, campaign, lead, step, result); err != nil {
		return nil, err
	}
	return result, nil
}

// updateExecutionState decides whether the campaign stays active, sleeps or completes.
// A retryable lead generation failure keeps it active so the next tick tries again.
func (s *CampaignRunFlowImpl) updateExecutionState(ctx context.Context, campaign *models.Campaign, hasLeadGen, leadGenRetry bool, summary *CampaignRunSummary) error {
	now := s.clock()

	due, err := s.leadRepo.ListDue(ctx, campaign.ID, now, 1)
	if err != nil {
		return fmt.Errorf("failed to check due leads: %w", err)
	}
	earliest, err := s.leadRepo.EarliestNextAction(ctx, campaign.ID)
	if err != nil {
		return fmt.Errorf("failed to find next action: %w", err)
	}

	var (
		state     models.ExecutionState
		nextRunAt *time.Time
	)
	switch {
	case len(due) > 0, leadGenRetry:
		state = models.ExecutionStateActive
	case hasLeadGen:
		tomorrow := utils.StartOfNextDay(now, campaign.Location())
		nextRunAt = utils.EarliestOf(&tomorrow, earliest)
		state = models.ExecutionStateSleepingUntilNextDay
		if lg := summary.LeadGen; lg != nil && lg.SourceExhausted && lg.Saved == 0 {
			state = models.ExecutionStateWaitingForLeads
		}
	case earliest != nil:
		state = models.ExecutionStateSleepingUntilNextDay
		nextRunAt = earliest
	default:
		if err := s.campaignRepo.UpdateStatus(ctx, campaign.ID, models.CampaignStatusCompleted); err != nil {
			return fmt.Errorf("failed to complete campaign: %w", err)
		}
		campaign.Status = models.CampaignStatusCompleted
		summary.Status = campaign.Status
		summary.ExecutionState = campaign.ExecutionState
		return nil
	}

	if err := s.campaignRepo.UpdateExecutionState(ctx, campaign.ID, state, nextRunAt); err != nil {
		return fmt.Errorf("failed to update execution state: %w", err)
	}
	campaign.ExecutionState = state
	campaign.NextRunAt = nextRunAt
	summary.ExecutionState = state
	summary.NextRunAt = nextRunAt
	return nil
}

func (s *CampaignRunFlowImpl) recomputeStats(ctx context.Context, campaign *models.Campaign) (models.CampaignStats, error) {
	byStatus, err := s.leadRepo.CountByStatus(ctx, campaign.ID)
	if err != nil {
		return models.CampaignStats{}, fmt.Errorf("failed to count leads: %w", err)
	}
	byType, err := s.actionRepo.CountByTypeAndStatus(ctx, campaign.ID)
	if err != nil {
		return models.CampaignStats{}, fmt.Errorf("failed to count actions: %w", err)
	}

	stats := buildStats(byStatus, byType, s.clock())
	if err := s.campaignRepo.UpdateStats(ctx, campaign.ID, stats); err != nil {
		return models.CampaignStats{}, fmt.Errorf("failed to update stats: %w", err)
	}
	campaign.Stats = stats
	return stats, nil
}

func buildStats(byStatus map[models.LeadStatus]int64, byType map[models.ActionType]map[models.ActionStatus]int64, at time.Time) models.CampaignStats {
	stats := models.CampaignStats{
		LeadsByStatus: make(map[string]int64, len(byStatus)),
		ActionsByType: make(map[string]int64, len(byType)),
		UpdatedAt:     &at,
	}
	for status, n := range byStatus {
		stats.LeadsByStatus[string(status)] = n
		stats.LeadsTotal += n
	}
	for actionType, statuses := range byType {
		for status, n := range statuses {
			switch status {
			case models.ActionStatusSuccess:
				stats.ActionsByType[string(actionType)] += n
			case models.ActionStatusFailed:
				stats.FailedActions += n
			case models.ActionStatusSkipped:
				stats.SkippedActions += n
			}
		}
	}
	return stats
}

// publish is fire-and-forget
func (s *CampaignRunFlowImpl) publish(ctx context.Context, campaign *models.Campaign, stats models.CampaignStats, reason string) {
	event := services.ListUpdateEvent{
		TenantID:   campaign.TenantID,
		CampaignID: campaign.ID,
		Reason:     reason,
		LeadsTotal: stats.LeadsTotal,
		ByStatus:   stats.LeadsByStatus,
		At:         s.clock(),
	}
	if err := s.publisher.PublishListUpdate(ctx, event); err != nil {
		s.logger.Warn("failed to publish list update",
			zap.Uint("campaign_id", campaign.ID),
			zap.Error(err))
	}
}
