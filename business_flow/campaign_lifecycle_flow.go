package businessflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/dto"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/services"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/models"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/repository"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
	"go.uber.org/zap"
)

// CampaignLifecycleFlow handles campaign creation and status transitions
type CampaignLifecycleFlow interface {
	CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest) (*dto.CampaignResponse, error)
	GetCampaign(ctx context.Context, req *dto.CampaignActionRequest) (*dto.CampaignResponse, error)
	StartCampaign(ctx context.Context, req *dto.CampaignActionRequest) (*dto.CampaignStatusResponse, error)
	PauseCampaign(ctx context.Context, req *dto.CampaignActionRequest) (*dto.CampaignStatusResponse, error)
	StopCampaign(ctx context.Context, req *dto.CampaignActionRequest) (*dto.CampaignStatusResponse, error)
	// RunNow queues an immediate processing pass, or runs it inline without a queue
	RunNow(ctx context.Context, req *dto.CampaignActionRequest) (*dto.EnqueueTaskResponse, error)
	SendNow(ctx context.Context, req *dto.SendNowRequest) (*dto.EnqueueTaskResponse, error)
	GetCampaignStats(ctx context.Context, req *dto.CampaignActionRequest) (*dto.CampaignStatsResponse, error)
}

// CampaignLifecycleFlowImpl implements CampaignLifecycleFlow
type CampaignLifecycleFlowImpl struct {
	campaignRepo repository.CampaignRepository
	stepRepo     repository.CampaignStepRepository
	leadRepo     repository.CampaignLeadRepository
	txManager    repository.TxManager
	runner       CampaignRunFlow
	queue        services.TaskQueue
	clock        utils.Clock
	logger       *zap.Logger
}

// NewCampaignLifecycleFlow creates a new lifecycle flow; queue may be nil
func NewCampaignLifecycleFlow(
	campaignRepo repository.CampaignRepository,
	stepRepo repository.CampaignStepRepository,
	leadRepo repository.CampaignLeadRepository,
	txManager repository.TxManager,
	runner CampaignRunFlow,
	queue services.TaskQueue,
	clock utils.Clock,
	logger *zap.Logger,
) CampaignLifecycleFlow {
	if clock == nil {
		clock = utils.SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CampaignLifecycleFlowImpl{
		campaignRepo: campaignRepo,
		stepRepo:     stepRepo,
		leadRepo:     leadRepo,
		txManager:    txManager,
		runner:       runner,
		queue:        queue,
		clock:        clock,
		logger:       logger.Named("lifecycle"),
	}
}

// CreateCampaign validates every step configuration and stores a draft campaign
func (s *CampaignLifecycleFlowImpl) CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest) (*dto.CampaignResponse, error) {
	if req == nil {
		return nil, NewBusinessError("CAMPAIGN_VALIDATION_FAILED", "Campaign validation failed", errors.New("request is required"))
	}
	if err := validate.Struct(req); err != nil {
		return nil, NewBusinessError("CAMPAIGN_VALIDATION_FAILED", "Campaign validation failed", err)
	}
	if req.TenantID == "" {
		return nil, NewBusinessError("CAMPAIGN_VALIDATION_FAILED", "Campaign validation failed", errors.New("tenant is required"))
	}

	steps, leadsPerDay, err := buildSteps(req)
	if err != nil {
		return nil, NewBusinessError("STEP_CONFIG_INVALID", "Campaign step validation failed", err)
	}

	campaign := &models.Campaign{
		TenantID:       req.TenantID,
		Name:           req.Name,
		Status:         models.CampaignStatusDraft,
		ExecutionState: models.ExecutionStateActive,
		Config: models.CampaignConfig{
			Quota:      models.QuotaState{LeadsPerDay: leadsPerDay},
			LeadSearch: req.LeadSearch,
			Timezone:   req.Timezone,
		},
		CreatedAt: s.clock(),
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.campaignRepo.Save(txCtx, campaign); err != nil {
			return err
		}
		for _, step := range steps {
			step.CampaignID = campaign.ID
		}
		return s.stepRepo.SaveBatch(txCtx, steps)
	})
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_CREATION_FAILED", "Campaign creation failed", err)
	}

	campaign.Steps = make([]models.CampaignStep, 0, len(steps))
	for _, step := range steps {
		campaign.Steps = append(campaign.Steps, *step)
	}

	s.logger.Info("campaign created",
		zap.Uint("campaign_id", campaign.ID),
		zap.String("tenant_id", campaign.TenantID),
		zap.Int("steps", len(steps)))

	return toCampaignResponse(campaign), nil
}

func buildSteps(req *dto.CreateCampaignRequest) ([]*models.CampaignStep, int, error) {
	leadsPerDay := req.LeadsPerDay
	seen := make(map[int]bool, len(req.Steps))
	steps := make([]*models.CampaignStep, 0, len(req.Steps))
	hasLeadGen := false

	for _, s := range req.Steps {
		if seen[s.Order] {
			return nil, 0, fmt.Errorf("%w: duplicate step order %d", ErrStepConfigInvalid, s.Order)
		}
		seen[s.Order] = true

		step := &models.CampaignStep{
			Type:      models.StepType(s.Type),
			StepOrder: s.Order,
			Config:    models.StepConfig(s.Config),
		}
		spec, err := ValidateStep(step)
		if err != nil {
			return nil, 0, err
		}
		if lg, ok := spec.(*models.LeadGenerationSpec); ok {
			if hasLeadGen {
				return nil, 0, fmt.Errorf("%w: more than one lead generation step", ErrStepConfigInvalid)
			}
			hasLeadGen = true
			if lg.LeadsPerDay > 0 {
				leadsPerDay = lg.LeadsPerDay
			}
		}
		if cond, ok := spec.(*models.ConditionSpec); ok && cond.OnFalse == models.ConditionOnFalseJump && cond.OnFalseStepOrder <= s.Order {
			return nil, 0, fmt.Errorf("%w: step %d can only jump forward", ErrStepConfigInvalid, s.Order)
		}
		steps = append(steps, step)
	}

	return steps, leadsPerDay, nil
}

func (s *CampaignLifecycleFlowImpl) GetCampaign(ctx context.Context, req *dto.CampaignActionRequest) (*dto.CampaignResponse, error) {
	campaign, err := s.loadOwned(ctx, req.TenantID, req.CampaignUUID)
	if err != nil {
		return nil, err
	}
	return toCampaignResponse(campaign), nil
}

// StartCampaign moves a draft or paused campaign to running and queues a first pass
func (s *CampaignLifecycleFlowImpl) StartCampaign(ctx context.Context, req *dto.CampaignActionRequest) (*dto.CampaignStatusResponse, error) {
	campaign, err := s.loadOwned(ctx, req.TenantID, req.CampaignUUID)
	if err != nil {
		return nil, err
	}
	if len(campaign.Steps) == 0 {
		return nil, NewBusinessError("CAMPAIGN_HAS_NO_STEPS", "Campaign has no steps", ErrCampaignHasNoSteps)
	}
	if !campaign.CanTransitionTo(models.CampaignStatusRunning) {
		return nil, NewBusinessErrorf("CAMPAIGN_TRANSITION_INVALID", "Cannot start a %s campaign", ErrCampaignTransitionInvalid, campaign.Status)
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.campaignRepo.UpdateStatus(txCtx, campaign.ID, models.CampaignStatusRunning); err != nil {
			return err
		}
		return s.campaignRepo.UpdateExecutionState(txCtx, campaign.ID, models.ExecutionStateActive, nil)
	})
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_START_FAILED", "Failed to start campaign", err)
	}
	campaign.Status = models.CampaignStatusRunning
	campaign.ExecutionState = models.ExecutionStateActive
	campaign.NextRunAt = nil

	if s.queue != nil {
		task := &services.Task{Kind: services.TaskKindRunCampaign, TenantID: campaign.TenantID, CampaignID: campaign.ID}
		if err := s.queue.Enqueue(ctx, task); err != nil {
			// the periodic scheduler picks active campaigns up anyway
			s.logger.Warn("failed to enqueue first run", zap.Uint("campaign_id", campaign.ID), zap.Error(err))
		}
	}

	s.logger.Info("campaign started", zap.Uint("campaign_id", campaign.ID))

	return &dto.CampaignStatusResponse{
		Message:        "Campaign started",
		UUID:           campaign.UUID.String(),
		Status:         string(campaign.Status),
		ExecutionState: string(campaign.ExecutionState),
	}, nil
}

// PauseCampaign halts processing; leads keep their position
func (s *CampaignLifecycleFlowImpl) PauseCampaign(ctx context.Context, req *dto.CampaignActionRequest) (*dto.CampaignStatusResponse, error) {
	campaign, err := s.loadOwned(ctx, req.TenantID, req.CampaignUUID)
	if err != nil {
		return nil, err
	}
	if !campaign.CanTransitionTo(models.CampaignStatusPaused) {
		return nil, NewBusinessErrorf("CAMPAIGN_TRANSITION_INVALID", "Cannot pause a %s campaign", ErrCampaignTransitionInvalid, campaign.Status)
	}

	if err := s.campaignRepo.UpdateStatus(ctx, campaign.ID, models.CampaignStatusPaused); err != nil {
		return nil, NewBusinessError("CAMPAIGN_PAUSE_FAILED", "Failed to pause campaign", err)
	}
	campaign.Status = models.CampaignStatusPaused

	s.logger.Info("campaign paused", zap.Uint("campaign_id", campaign.ID))

	return &dto.CampaignStatusResponse{
		Message:        "Campaign paused",
		UUID:           campaign.UUID.String(),
		Status:         string(campaign.Status),
		ExecutionState: string(campaign.ExecutionState),
	}, nil
}

// StopCampaign ends the campaign and stops all of its active leads
func (s *CampaignLifecycleFlowImpl) StopCampaign(ctx context.Context, req *dto.CampaignActionRequest) (*dto.CampaignStatusResponse, error) {
	campaign, err := s.loadOwned(ctx, req.TenantID, req.CampaignUUID)
	if err != nil {
		return nil, err
	}
	if !campaign.CanTransitionTo(models.CampaignStatusStopped) {
		return nil, NewBusinessErrorf("CAMPAIGN_TRANSITION_INVALID", "Cannot stop a %s campaign", ErrCampaignTransitionInvalid, campaign.Status)
	}

	var stopped int64
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.campaignRepo.UpdateStatus(txCtx, campaign.ID, models.CampaignStatusStopped); err != nil {
			return err
		}
		n, err := s.leadRepo.StopActive(txCtx, campaign.ID)
		stopped = n
		return err
	})
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_STOP_FAILED", "Failed to stop campaign", err)
	}
	campaign.Status = models.CampaignStatusStopped

	s.logger.Info("campaign stopped", zap.Uint("campaign_id", campaign.ID), zap.Int64("stopped_leads", stopped))

	return &dto.CampaignStatusResponse{
		Message:        "Campaign stopped",
		UUID:           campaign.UUID.String(),
		Status:         string(campaign.Status),
		ExecutionState: string(campaign.ExecutionState),
		StoppedLeads:   stopped,
	}, nil
}

func (s *CampaignLifecycleFlowImpl) RunNow(ctx context.Context, req *dto.CampaignActionRequest) (*dto.EnqueueTaskResponse, error) {
	campaign, err := s.loadOwned(ctx, req.TenantID, req.CampaignUUID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != models.CampaignStatusRunning {
		return nil, NewBusinessError("CAMPAIGN_NOT_RUNNING", "Campaign is not running", ErrCampaignNotRunning)
	}

	task := &services.Task{Kind: services.TaskKindRunCampaign, TenantID: campaign.TenantID, CampaignID: campaign.ID}
	return s.dispatch(ctx, task, func() error {
		_, err := s.runner.ProcessCampaign(ctx, campaign.ID)
		return err
	})
}

func (s *CampaignLifecycleFlowImpl) SendNow(ctx context.Context, req *dto.SendNowRequest) (*dto.EnqueueTaskResponse, error) {
	if req == nil || req.LeadID == 0 {
		return nil, NewBusinessError("LEAD_NOT_FOUND", "Lead is required", ErrLeadNotFound)
	}
	campaign, err := s.loadOwned(ctx, req.TenantID, req.CampaignUUID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != models.CampaignStatusRunning {
		return nil, NewBusinessError("CAMPAIGN_NOT_RUNNING", "Campaign is not running", ErrCampaignNotRunning)
	}

	lead, err := s.leadRepo.ByID(ctx, req.LeadID)
	if err != nil {
		return nil, NewBusinessError("LEAD_LOOKUP_FAILED", "Failed to lookup lead", err)
	}
	if lead == nil || lead.CampaignID != campaign.ID {
		return nil, NewBusinessError("LEAD_NOT_FOUND", "Lead not found", ErrLeadNotFound)
	}
	if lead.Status != models.LeadStatusActive {
		return nil, NewBusinessError("LEAD_NOT_ACTIVE", "Lead is not active", ErrLeadNotActive)
	}

	task := &services.Task{Kind: services.TaskKindSendNow, TenantID: campaign.TenantID, CampaignID: campaign.ID, LeadID: lead.ID}
	return s.dispatch(ctx, task, func() error {
		_, err := s.runner.ProcessLead(ctx, campaign.ID, lead.ID)
		return err
	})
}

func (s *CampaignLifecycleFlowImpl) dispatch(ctx context.Context, task *services.Task, inline func() error) (*dto.EnqueueTaskResponse, error) {
	if s.queue == nil {
		if s.runner == nil {
			return nil, NewBusinessError("QUEUE_NOT_AVAILABLE", "Task queue not available", ErrQueueNotAvailable)
		}
		if err := inline(); err != nil {
			if errors.Is(err, ErrCampaignBusy) {
				return nil, NewBusinessError("CAMPAIGN_BUSY", "Campaign is being processed", err)
			}
			return nil, NewBusinessError("CAMPAIGN_RUN_FAILED", "Campaign run failed", err)
		}
		return &dto.EnqueueTaskResponse{Message: "Processed", Kind: string(task.Kind)}, nil
	}

	if err := s.queue.Enqueue(ctx, task); err != nil {
		return nil, NewBusinessError("TASK_ENQUEUE_FAILED", "Failed to enqueue task", err)
	}
	s.logger.Info("task enqueued",
		zap.String("task_id", task.ID),
		zap.String("kind", string(task.Kind)),
		zap.Uint("campaign_id", task.CampaignID),
		zap.Uint("lead_id", task.LeadID))

	return &dto.EnqueueTaskResponse{Message: "Queued", TaskID: task.ID, Kind: string(task.Kind)}, nil
}

func (s *CampaignLifecycleFlowImpl) GetCampaignStats(ctx context.Context, req *dto.CampaignActionRequest) (*dto.CampaignStatsResponse, error) {
	campaign, err := s.loadOwned(ctx, req.TenantID, req.CampaignUUID)
	if err != nil {
		return nil, err
	}

	stats := campaign.Stats
	if stats.UpdatedAt == nil {
		byStatus, err := s.leadRepo.CountByStatus(ctx, campaign.ID)
		if err != nil {
			return nil, NewBusinessError("CAMPAIGN_STATS_FAILED", "Failed to compute statistics", err)
		}
		stats = buildStats(byStatus, nil, s.clock())
	}

	return &dto.CampaignStatsResponse{
		UUID:           campaign.UUID.String(),
		Status:         string(campaign.Status),
		ExecutionState: string(campaign.ExecutionState),
		NextRunAt:      formatTime(campaign.NextRunAt),
		LeadsTotal:     stats.LeadsTotal,
		LeadsByStatus:  stats.LeadsByStatus,
		ActionsByType:  stats.ActionsByType,
		FailedActions:  stats.FailedActions,
		SkippedActions: stats.SkippedActions,
		UpdatedAt:      formatTime(stats.UpdatedAt),
	}, nil
}

// loadOwned loads a campaign by UUID and checks it belongs to tenantID
func (s *CampaignLifecycleFlowImpl) loadOwned(ctx context.Context, tenantID, campaignUUID string) (*models.Campaign, error) {
	if campaignUUID == "" {
		return nil, NewBusinessError("CAMPAIGN_UUID_REQUIRED", "Campaign UUID is required", ErrCampaignUUIDRequired)
	}
	if _, err := utils.ParseUUID(campaignUUID); err != nil {
		return nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", ErrCampaignNotFound)
	}

	campaign, err := s.campaignRepo.ByUUID(ctx, campaignUUID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	if campaign == nil {
		return nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", ErrCampaignNotFound)
	}
	if campaign.TenantID != tenantID {
		return nil, NewBusinessError("CAMPAIGN_ACCESS_DENIED", "Access denied", ErrCampaignAccessDenied)
	}
	return campaign, nil
}

func toCampaignResponse(c *models.Campaign) *dto.CampaignResponse {
	steps := make([]dto.CampaignStepResponse, 0, len(c.Steps))
	for _, st := range c.Steps {
		cfg, _ := st.Config.MarshalJSON()
		steps = append(steps, dto.CampaignStepResponse{
			ID:     st.ID,
			Type:   string(st.Type),
			Order:  st.StepOrder,
			Config: cfg,
		})
	}
	return &dto.CampaignResponse{
		UUID:            c.UUID.String(),
		Name:            c.Name,
		Status:          string(c.Status),
		ExecutionState:  string(c.ExecutionState),
		NextRunAt:       formatTime(c.NextRunAt),
		Timezone:        c.Config.Timezone,
		LeadsPerDay:     c.Config.Quota.LeadsPerDay,
		LeadGenOffset:   c.Config.Quota.LeadGenOffset,
		LastLeadGenDate: c.Config.Quota.LastLeadGenDate,
		Steps:           steps,
		CreatedAt:       c.CreatedAt.Format(time.RFC3339),
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
