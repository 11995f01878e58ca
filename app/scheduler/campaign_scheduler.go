// Package scheduler runs campaign passes, acceptance reconciliation and queued tasks in the background
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	businessflow "github.com/techiemaya-admin/lad-feature-campaigns-sub003/business_flow"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/config"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/repository"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CampaignScheduler periodically picks runnable campaigns and processes each one
type CampaignScheduler struct {
	campaignRepo repository.CampaignRepository
	runner       businessflow.CampaignRunFlow
	cfg          config.SchedulerConfig
	clock        utils.Clock
	logger       *zap.Logger

	wg sync.WaitGroup
}

func NewCampaignScheduler(
	campaignRepo repository.CampaignRepository,
	runner businessflow.CampaignRunFlow,
	cfg config.SchedulerConfig,
	clock utils.Clock,
	logger *zap.Logger,
) *CampaignScheduler {
	if cfg.CampaignInterval <= 0 {
		cfg.CampaignInterval = time.Minute
	}
	if cfg.CampaignTimeout <= 0 {
		cfg.CampaignTimeout = 5 * time.Minute
	}
	if cfg.CampaignsPerTick <= 0 {
		cfg.CampaignsPerTick = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if clock == nil {
		clock = utils.SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CampaignScheduler{
		campaignRepo: campaignRepo,
		runner:       runner,
		cfg:          cfg,
		clock:        clock,
		logger:       logger.Named("campaign_scheduler"),
	}
}

// Start launches the scheduler loop in a background goroutine and returns a
// stop function that waits for in-flight passes.
func (s *CampaignScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.cfg.CampaignInterval)
		defer ticker.Stop()

		s.RunOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()

	s.logger.Info("campaign scheduler started",
		zap.Duration("interval", s.cfg.CampaignInterval),
		zap.Int("concurrency", s.cfg.Concurrency))

	return func() {
		cancel()
		s.wg.Wait()
	}
}

// RunOnce processes the currently runnable campaigns and returns how many were picked
func (s *CampaignScheduler) RunOnce(ctx context.Context) int {
	campaigns, err := s.campaignRepo.ListRunnable(ctx, s.clock(), s.cfg.CampaignsPerTick)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("failed to list runnable campaigns", zap.Error(err))
			sentry.CaptureException(err)
		}
		return 0
	}
	if len(campaigns) == 0 {
		return 0
	}
	s.logger.Debug("runnable campaigns listed", zap.Int("count", len(campaigns)))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, c := range campaigns {
		campaignID := c.ID
		g.Go(func() error {
			s.processCampaign(ctx, campaignID)
			return nil
		})
	}
	_ = g.Wait()

	return len(campaigns)
}

func (s *CampaignScheduler) processCampaign(parent context.Context, campaignID uint) {
	defer func() {
		if r := recover(); r != nil {
			campaignPassesTotal.WithLabelValues("error").Inc()
			s.logger.Error("campaign pass panicked", zap.Uint("campaign_id", campaignID), zap.Any("panic", r))
			sentry.CurrentHub().Recover(r)
		}
	}()

	ctx, cancel := context.WithTimeout(parent, s.cfg.CampaignTimeout)
	defer cancel()

	start := time.Now()
	summary, err := s.runner.ProcessCampaign(ctx, campaignID)
	campaignPassDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		campaignPassesTotal.WithLabelValues("ok").Inc()
		s.logger.Debug("campaign pass finished",
			zap.Uint("campaign_id", campaignID),
			zap.Int("leads", summary.LeadsProcessed),
			zap.String("execution_state", string(summary.ExecutionState)))
	case errors.Is(err, businessflow.ErrCampaignBusy):
		campaignPassesTotal.WithLabelValues("busy").Inc()
		s.logger.Debug("campaign is busy", zap.Uint("campaign_id", campaignID))
	case errors.Is(err, businessflow.ErrCampaignNotRunning), errors.Is(err, businessflow.ErrCampaignNotFound):
		// paused or deleted between listing and processing
		campaignPassesTotal.WithLabelValues("skipped").Inc()
	case parent.Err() != nil:
		campaignPassesTotal.WithLabelValues("skipped").Inc()
	default:
		campaignPassesTotal.WithLabelValues("error").Inc()
		s.logger.Error("campaign pass failed", zap.Uint("campaign_id", campaignID), zap.Error(err))
		captureWithTags(err, map[string]string{"campaign_id": fmt.Sprint(campaignID), "job": "campaign_pass"})
	}
}

func captureWithTags(err error, tags map[string]string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CaptureException(err)
	})
}
