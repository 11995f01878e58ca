package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	businessflow "github.com/techiemaya-admin/lad-feature-campaigns-sub003/business_flow"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/config"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
	"go.uber.org/zap"
)

const defaultReconcileCron = "0 9,13,17 * * 1-5"

// AcceptanceScheduler runs the connection acceptance reconciler on a cron schedule
type AcceptanceScheduler struct {
	reconciler businessflow.AcceptanceReconcileFlow
	cron       *cron.Cron
	timeout    time.Duration
	logger     *zap.Logger
}

// NewAcceptanceScheduler registers the reconcile job; overlapping runs are skipped
func NewAcceptanceScheduler(reconciler businessflow.AcceptanceReconcileFlow, cfg config.ReconcilerConfig, logger *zap.Logger) (*AcceptanceScheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("acceptance_scheduler")

	loc, err := utils.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid reconciler timezone: %w", err)
	}
	spec := utils.FirstNonEmpty(cfg.Cron, defaultReconcileCron)

	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	s := &AcceptanceScheduler{
		reconciler: reconciler,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		timeout: time.Hour,
		logger:  logger,
	}

	if _, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		_, _ = s.RunOnce(ctx)
	}); err != nil {
		return nil, fmt.Errorf("invalid reconciler schedule %q: %w", spec, err)
	}

	return s, nil
}

// Start begins the cron loop and returns a stop function that waits for a running job
func (s *AcceptanceScheduler) Start() func() {
	s.cron.Start()
	s.logger.Info("acceptance scheduler started")
	return func() {
		<-s.cron.Stop().Done()
	}
}

// RunOnce reconciles every tenant now
func (s *AcceptanceScheduler) RunOnce(ctx context.Context) (*businessflow.ReconcileSummary, error) {
	summary, err := s.reconciler.ReconcileAll(ctx)
	if err != nil {
		reconcileRunsTotal.WithLabelValues("error").Inc()
		s.logger.Error("reconciliation failed", zap.Error(err))
		captureWithTags(err, map[string]string{"job": "reconcile"})
		return summary, err
	}

	result := "ok"
	if len(summary.Failures) > 0 {
		result = "partial"
		for _, f := range summary.Failures {
			s.logger.Warn("reconciliation failure",
				zap.String("tenant_id", f.TenantID),
				zap.Uint("account_id", f.AccountID),
				zap.String("error", f.Error))
		}
	}
	reconcileRunsTotal.WithLabelValues(result).Inc()

	return summary, nil
}
