package businessflow

import (
	"context"
	"fmt"
	"time"

	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/services"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/config"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/models"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/repository"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
	"go.uber.org/zap"
)

// ReconcileFailure is one isolated tenant or account failure
type ReconcileFailure struct {
	TenantID  string `json:"tenant_id"`
	AccountID uint   `json:"account_id,omitempty"`
	Error     string `json:"error"`
}

// ReconcileSummary aggregates one reconciliation run
type ReconcileSummary struct {
	Tenants     int                `json:"tenants"`
	Accounts    int                `json:"accounts"`
	Connections int                `json:"connections"`
	Matched     int                `json:"matched"`
	Accepted    int                `json:"accepted"`
	Unblocked   int                `json:"unblocked"`
	Failures    []ReconcileFailure `json:"failures,omitempty"`
}

func (s *ReconcileSummary) fail(tenantID string, accountID uint, err error) {
	s.Failures = append(s.Failures, ReconcileFailure{TenantID: tenantID, AccountID: accountID, Error: err.Error()})
}

// AcceptanceOutcome describes how one accepted connection was handled
type AcceptanceOutcome struct {
	Matched    bool        `json:"matched"`
	Recorded   bool        `json:"recorded"`
	Unblocked  bool        `json:"unblocked"`
	CampaignID uint        `json:"campaign_id,omitempty"`
	LeadID     uint        `json:"lead_id,omitempty"`
	Result     *StepResult `json:"result,omitempty"`
}

// AcceptanceReconcileFlow records accepted connections and releases deferred messages
type AcceptanceReconcileFlow interface {
	ReconcileAll(ctx context.Context) (*ReconcileSummary, error)
	ReconcileTenant(ctx context.Context, tenantID string) (*ReconcileSummary, error)
	// HandleAcceptedConnection serves both the reconciler and provider webhooks
	HandleAcceptedConnection(ctx context.Context, tenantID string, conn services.Connection) (*AcceptanceOutcome, error)
}

// AcceptanceReconcileFlowImpl implements AcceptanceReconcileFlow
type AcceptanceReconcileFlowImpl struct {
	accountRepo  repository.ProviderAccountRepository
	campaignRepo repository.CampaignRepository
	leadRepo     repository.CampaignLeadRepository
	actionRepo   repository.ActionRecordRepository
	linkedIn     services.LinkedInProvider
	executor     StepExecutorFlow
	progression  LeadProgression
	cfg          config.ReconcilerConfig
	clock        utils.Clock
	logger       *zap.Logger
}

// NewAcceptanceReconcileFlow creates a new reconcile flow instance
func NewAcceptanceReconcileFlow(
	accountRepo repository.ProviderAccountRepository,
	campaignRepo repository.CampaignRepository,
	leadRepo repository.CampaignLeadRepository,
	actionRepo repository.ActionRecordRepository,
	linkedIn services.LinkedInProvider,
	executor StepExecutorFlow,
	progression LeadProgression,
	cfg config.ReconcilerConfig,
	clock utils.Clock,
	logger *zap.Logger,
) AcceptanceReconcileFlow {
	if cfg.Lookback <= 0 {
		cfg.Lookback = utils.DefaultReconcileLookback
	}
	if cfg.AccountTimeout <= 0 {
		cfg.AccountTimeout = 2 * time.Minute
	}
	if clock == nil {
		clock = utils.SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AcceptanceReconcileFlowImpl{
		accountRepo:  accountRepo,
		campaignRepo: campaignRepo,
		leadRepo:     leadRepo,
		actionRepo:   actionRepo,
		linkedIn:     linkedIn,
		executor:     executor,
		progression:  progression,
		cfg:          cfg,
		clock:        clock,
		logger:       logger.Named("reconciler"),
	}
}

// ReconcileAll walks every tenant with an active LinkedIn account, one at a time
func (s *AcceptanceReconcileFlowImpl) ReconcileAll(ctx context.Context) (*ReconcileSummary, error) {
	tenants, err := s.accountRepo.ListTenantsWithActiveAccounts(ctx, models.ProviderLinkedIn)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}

	summary := &ReconcileSummary{}
	for _, tenantID := range tenants {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := s.reconcileTenant(ctx, tenantID, summary); err != nil {
			summary.fail(tenantID, 0, err)
			s.logger.Error("tenant reconciliation failed", zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}

	s.logger.Info("reconciliation finished",
		zap.Int("tenants", summary.Tenants),
		zap.Int("accounts", summary.Accounts),
		zap.Int("connections", summary.Connections),
		zap.Int("accepted", summary.Accepted),
		zap.Int("unblocked", summary.Unblocked),
		zap.Int("failures", len(summary.Failures)))

	return summary, nil
}

func (s *AcceptanceReconcileFlowImpl) ReconcileTenant(ctx context.Context, tenantID string) (*ReconcileSummary, error) {
	summary := &ReconcileSummary{}
	if err := s.reconcileTenant(ctx, tenantID, summary); err != nil {
		return nil, err
	}
	return summary, nil
}

func (s *AcceptanceReconcileFlowImpl) reconcileTenant(ctx context.Context, tenantID string, summary *ReconcileSummary) error {
	accounts, err := s.accountRepo.ListActiveByTenant(ctx, tenantID, models.ProviderLinkedIn)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	summary.Tenants++

	since := s.clock().Add(-s.cfg.Lookback)
	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return err
		}
		summary.Accounts++

		connections, err := s.fetchConnections(ctx, account, since)
		if err != nil {
			summary.fail(tenantID, account.ID, err)
			s.logger.Warn("failed to fetch connections",
				zap.String("tenant_id", tenantID),
				zap.Uint("account_id", account.ID),
				zap.Error(err))
			continue
		}

		for _, conn := range connections {
			summary.Connections++
			outcome, err := s.HandleAcceptedConnection(ctx, tenantID, conn)
			if err != nil {
				summary.fail(tenantID, account.ID, fmt.Errorf("connection %s: %w", conn.ProfileURL, err))
				continue
			}
			if outcome.Matched {
				summary.Matched++
			}
			if outcome.Recorded {
				summary.Accepted++
			}
			if outcome.Unblocked {
				summary.Unblocked++
			}
		}
	}
	return nil
}

func (s *AcceptanceReconcileFlowImpl) fetchConnections(ctx context.Context, account *models.ProviderAccount, since time.Time) ([]services.Connection, error) {
	accountCtx, cancel := context.WithTimeout(ctx, s.cfg.AccountTimeout)
	defer cancel()
	return s.linkedIn.GetRecentConnections(accountCtx, account, since)
}

// HandleAcceptedConnection matches the connection to the tenant's latest
// request, records the acceptance once and re-runs a deferred message.
func (s *AcceptanceReconcileFlowImpl) HandleAcceptedConnection(ctx context.Context, tenantID string, conn services.Connection) (*AcceptanceOutcome, error) {
	outcome := &AcceptanceOutcome{}

	normalized, err := utils.NormalizeProfileURL(conn.ProfileURL)
	if err != nil {
		return outcome, nil
	}

	sentType := models.ActionConnectionSent
	sent, err := s.actionRepo.Latest(ctx, models.ActionRecordFilter{
		TenantID:             &tenantID,
		ActionType:           &sentType,
		NormalizedProfileURL: &normalized,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find connection request: %w", err)
	}
	if sent == nil {
		return outcome, nil
	}
	outcome.Matched = true
	outcome.CampaignID = sent.CampaignID
	outcome.LeadID = sent.LeadID

	connectedAt := conn.ConnectedAt
	if connectedAt.IsZero() {
		connectedAt = s.clock()
	}
	accepted := &models.ActionRecord{
		TenantID:             tenantID,
		CampaignID:           sent.CampaignID,
		LeadID:               sent.LeadID,
		StepID:               sent.StepID,
		ActionType:           models.ActionConnectionAccepted,
		Status:               models.ActionStatusSuccess,
		NormalizedProfileURL: normalized,
		ProviderAccountID:    sent.ProviderAccountID,
		Metadata: metadataJSON(map[string]any{
			"provider_id":  conn.ProviderID,
			"connected_at": connectedAt,
		}),
		CreatedAt: s.clock(),
	}
	inserted, err := s.actionRepo.SaveOnce(ctx, accepted)
	if err != nil {
		return nil, fmt.Errorf("failed to record acceptance: %w", err)
	}
	if !inserted {
		return outcome, nil
	}
	outcome.Recorded = true
	connectionsAcceptedTotal.Inc()

	s.logger.Info("connection accepted",
		zap.String("tenant_id", tenantID),
		zap.Uint("campaign_id", sent.CampaignID),
		zap.Uint("lead_id", sent.LeadID))

	result, err := s.unblock(ctx, sent.CampaignID, sent.LeadID)
	if err != nil {
		return nil, err
	}
	outcome.Result = result
	outcome.Unblocked = result != nil && result.Status == StepStatusSuccess
	return outcome, nil
}

// unblock re-runs a message step that was skipped while waiting for the acceptance
func (s *AcceptanceReconcileFlowImpl) unblock(ctx context.Context, campaignID, leadID uint) (*StepResult, error) {
	skippedType := models.ActionMessageSkipped
	skipped, err := s.actionRepo.Exists(ctx, models.ActionRecordFilter{
		CampaignID: &campaignID,
		LeadID:     &leadID,
		ActionType: &skippedType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check skipped messages: %w", err)
	}
	if !skipped {
		return nil, nil
	}

	campaign, err := s.campaignRepo.ByID(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign == nil || campaign.Status != models.CampaignStatusRunning {
		return nil, nil
	}

	lead, err := s.leadRepo.ByID(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lead: %w", err)
	}
	if lead == nil || lead.Status != models.LeadStatusActive {
		return nil, nil
	}

	step := CurrentStep(campaign, lead)
	if step == nil || step.Type != models.StepTypeLinkedInMessage || step.StepOrder != lead.CurrentStepOrder {
		return nil, nil
	}

	result, err := s.executor.Execute(ctx, campaign, lead, step)
	if err != nil {
		return nil, fmt.Errorf("failed to send deferred message: %w", err)
	}
	if err := s.progression.Apply(ctx, campaign, lead, step, result); err != nil {
		return nil, err
	}
	return result, nil
}
