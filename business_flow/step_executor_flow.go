package businessflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/badoux/checkmail"
	"github.com/nyaruka/phonenumbers"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/services"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/config"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/models"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/repository"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
	"go.uber.org/zap"
)

// StepExecutorFlow runs one campaign step for one lead
type StepExecutorFlow interface {
	// Execute returns the business outcome of the step. lead is nil for the
	// per-campaign lead generation step.
	Execute(ctx context.Context, campaign *models.Campaign, lead *models.CampaignLead, step *models.CampaignStep) (*StepResult, error)
}

// StepExecutorFlowImpl implements StepExecutorFlow
type StepExecutorFlowImpl struct {
	leadRepo    repository.CampaignLeadRepository
	actionRepo  repository.ActionRecordRepository
	accountRepo repository.ProviderAccountRepository
	linkedIn    services.LinkedInProvider
	outreach    services.OutreachProvider
	quota       QuotaFlow
	enrichment  EnrichmentFlow
	credits     CreditFlow
	limiter     *AccountRateLimiter
	cfg         config.ProviderConfig
	clock       utils.Clock
	logger      *zap.Logger
}

// NewStepExecutorFlow creates a new step executor instance
func NewStepExecutorFlow(
	leadRepo repository.CampaignLeadRepository,
	actionRepo repository.ActionRecordRepository,
	accountRepo repository.ProviderAccountRepository,
	linkedIn services.LinkedInProvider,
	outreach services.OutreachProvider,
	quota QuotaFlow,
	enrichment EnrichmentFlow,
	credits CreditFlow,
	limiter *AccountRateLimiter,
	cfg config.ProviderConfig,
	clock utils.Clock,
	logger *zap.Logger,
) StepExecutorFlow {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = utils.DefaultProviderCallTimeout
	}
	if clock == nil {
		clock = utils.SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StepExecutorFlowImpl{
		leadRepo:    leadRepo,
		actionRepo:  actionRepo,
		accountRepo: accountRepo,
		linkedIn:    linkedIn,
		outreach:    outreach,
		quota:       quota,
		enrichment:  enrichment,
		credits:     credits,
		limiter:     limiter,
		cfg:         cfg,
		clock:       clock,
		logger:      logger.Named("executor"),
	}
}

// providerAction describes one metered provider call
type providerAction struct {
	actionType  models.ActionType
	usage       string
	target      string
	profileURL  string
	withMessage bool
	// needsAccount selects a LinkedIn account; cooldown holds its connect slot for the call
	needsAccount bool
	cooldown     bool
	metadata     map[string]any
	call         func(ctx context.Context, account *models.ProviderAccount) (*services.ActionResult, error)
}

func (s *StepExecutorFlowImpl) Execute(ctx context.Context, campaign *models.Campaign, lead *models.CampaignLead, step *models.CampaignStep) (*StepResult, error) {
	result, err := s.execute(ctx, campaign, lead, step)
	if err != nil {
		return nil, err
	}
	stepOutcomesTotal.WithLabelValues(string(step.Type), string(result.Status), result.ErrorCode).Inc()
	return result, nil
}

func (s *StepExecutorFlowImpl) execute(ctx context.Context, campaign *models.Campaign, lead *models.CampaignLead, step *models.CampaignStep) (*StepResult, error) {
	spec, err := ValidateStep(step)
	if err != nil {
		if lead != nil {
			if rerr := s.recordFailure(ctx, lead, step, actionTypeFor(step.Type), CodeStepConfigInvalid, err.Error(), ""); rerr != nil {
				return nil, rerr
			}
		}
		return stepFailed(CodeStepConfigInvalid, err.Error(), false), nil
	}

	if leadGen, ok := spec.(*models.LeadGenerationSpec); ok {
		return s.generateLeads(ctx, campaign, leadGen)
	}
	if lead == nil {
		return nil, fmt.Errorf("%w: %s step needs a lead", ErrLeadNotFound, step.Type)
	}

	switch spec := spec.(type) {
	case *models.DelaySpec:
		return s.delay(ctx, lead, step, spec)
	case *models.ConditionSpec:
		return s.condition(ctx, lead, step, spec)
	case *models.LinkedInConnectSpec:
		return s.connect(ctx, campaign, lead, step, spec)
	case *models.LinkedInMessageSpec:
		return s.message(ctx, lead, step, spec)
	case *models.LinkedInVisitSpec:
		return s.visit(ctx, lead, step)
	case *models.LinkedInFollowSpec:
		return s.follow(ctx, lead, step)
	case *models.EmailSpec:
		return s.email(ctx, lead, step, spec)
	case *models.WhatsAppSpec:
		return s.whatsApp(ctx, lead, step, spec)
	case *models.VoiceSpec:
		return s.voice(ctx, lead, step, spec)
	default:
		return stepFailed(CodeStepConfigInvalid, fmt.Sprintf("unsupported step type %s", step.Type), false), nil
	}
}

func (s *StepExecutorFlowImpl) generateLeads(ctx context.Context, campaign *models.Campaign, spec *models.LeadGenerationSpec) (*StepResult, error) {
	res, err := s.quota.GenerateDailyLeads(ctx, campaign, spec)
	switch {
	case err == nil:
		result := stepSuccess()
		result.LeadGen = res
		return result, nil
	case errors.Is(err, repository.ErrQuotaConflict):
		s.logger.Info("lead generation skipped, cursor moved by another worker", zap.Uint("campaign_id", campaign.ID))
		result := stepSuccess()
		result.LeadGen = &LeadGenResult{AlreadyRanToday: true}
		return result, nil
	case errors.Is(err, ErrLeadSourceUnavailable):
		return stepFailed(CodeProviderUnavailable, err.Error(), true), nil
	default:
		return nil, err
	}
}

func (s *StepExecutorFlowImpl) delay(ctx context.Context, lead *models.CampaignLead, step *models.CampaignStep, spec *models.DelaySpec) (*StepResult, error) {
	d := spec.Duration()
	record := newActionRecord(lead, step, models.ActionDelayScheduled, models.ActionStatusSuccess, s.clock())
	record.Metadata = metadataJSON(map[string]any{"delay_seconds": int64(d.Seconds())})
	if err := s.actionRepo.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to record delay: %w", err)
	}

	result := stepSuccess()
	result.Delay = d
	return result, nil
}

func (s *StepExecutorFlowImpl) condition(ctx context.Context, lead *models.CampaignLead, step *models.CampaignStep, spec *models.ConditionSpec) (*StepResult, error) {
	met, err := s.evaluate(ctx, lead, spec.Check)
	if err != nil {
		return nil, err
	}

	record := newActionRecord(lead, step, models.ActionConditionEvaluated, models.ActionStatusSuccess, s.clock())
	record.Metadata = metadataJSON(map[string]any{"check": spec.Check, "met": met})
	if err := s.actionRepo.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to record condition: %w", err)
	}

	result := stepSuccess()
	result.ConditionMet = utils.ToPtr(met)
	return result, nil
}

func (s *StepExecutorFlowImpl) evaluate(ctx context.Context, lead *models.CampaignLead, check models.ConditionCheck) (bool, error) {
	success := models.ActionStatusSuccess
	ledger := func(actionType models.ActionType, status *models.ActionStatus) (bool, error) {
		return s.actionRepo.Exists(ctx, models.ActionRecordFilter{
			CampaignID: &lead.CampaignID,
			LeadID:     &lead.ID,
			ActionType: &actionType,
			Status:     status,
		})
	}

	switch check {
	case models.ConditionConnectionAccepted:
		return ledger(models.ActionConnectionAccepted, nil)
	case models.ConditionConnectionSent:
		return ledger(models.ActionConnectionSent, &success)
	case models.ConditionMessageSent:
		return ledger(models.ActionMessageSent, &success)
	case models.ConditionProfileVisited:
		return ledger(models.ActionProfileVisited, &success)
	case models.ConditionEmailSent:
		return ledger(models.ActionEmailSent, &success)
	case models.ConditionHasEmail:
		return lead.EffectiveEmail() != "", nil
	case models.ConditionHasLinkedIn:
		return lead.EffectiveLinkedInURL() != "", nil
	case models.ConditionHasPhone:
		return lead.EffectivePhone() != "", nil
	default:
		return false, fmt.Errorf("%w: unknown condition %q", ErrStepConfigInvalid, check)
	}
}

func (s *StepExecutorFlowImpl) connect(ctx context.Context, campaign *models.Campaign, lead *models.CampaignLead, step *models.CampaignStep, spec *models.LinkedInConnectSpec) (*StepResult, error) {
	if done, err := s.alreadyDone(ctx, lead, step, models.ActionConnectionSent); err != nil || done != nil {
		return done, err
	}

	profileURL, failure, err := s.resolveProfileURL(ctx, lead, step, models.ActionConnectionSent, true)
	if err != nil || failure != nil {
		return failure, err
	}

	note := ""
	metadata := map[string]any{}
	if spec.SendMessage && strings.TrimSpace(spec.Message) != "" {
		available, err := s.noteQuotaAvailable(ctx, campaign)
		if err != nil {
			return nil, err
		}
		if available {
			note = RenderTemplate(spec.Message, lead)
		} else {
			metadata["note_quota_exhausted"] = true
		}
	}

	return s.perform(ctx, lead, step, providerAction{
		actionType:   models.ActionConnectionSent,
		usage:        utils.UsageLinkedInConnect,
		target:       profileURL,
		profileURL:   profileURL,
		withMessage:  note != "",
		needsAccount: true,
		cooldown:     true,
		metadata:     metadata,
		call: func(ctx context.Context, account *models.ProviderAccount) (*services.ActionResult, error) {
			return s.linkedIn.SendConnectionRequest(ctx, account, profileURL, note)
		},
	})
}

// noteQuotaAvailable counts this month's connection notes of the tenant
func (s *StepExecutorFlowImpl) noteQuotaAvailable(ctx context.Context, campaign *models.Campaign) (bool, error) {
	if s.cfg.MonthlyConnectNoteLimit <= 0 {
		return false, nil
	}

	since := utils.StartOfMonth(s.clock(), campaign.Location())
	actionType := models.ActionConnectionSent
	status := models.ActionStatusSuccess
	withMessage := true
	sent, err := s.actionRepo.Count(ctx, models.ActionRecordFilter{
		TenantID:     &campaign.TenantID,
		ActionType:   &actionType,
		Status:       &status,
		WithMessage:  &withMessage,
		CreatedAfter: &since,
	})
	if err != nil {
		return false, fmt.Errorf("failed to count connection notes: %w", err)
	}
	return sent < int64(s.cfg.MonthlyConnectNoteLimit), nil
}

func (s *StepExecutorFlowImpl) message(ctx context.Context, lead *models.CampaignLead, step *models.CampaignStep, spec *models.LinkedInMessageSpec) (*StepResult, error) {
	acceptedType := models.ActionConnectionAccepted
	accepted, err := s.actionRepo.Exists(ctx, models.ActionRecordFilter{
		CampaignID: &lead.CampaignID,
		LeadID:     &lead.ID,
		ActionType: &acceptedType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check acceptance: %w", err)
	}
	if !accepted {
		return s.skipMessage(ctx, lead, step)
	}

	if done, err := s.alreadyDone(ctx, lead, step, models.ActionMessageSent); err != nil || done != nil {
		return done, err
	}

	profileURL, failure, err := s.resolveProfileURL(ctx, lead, step, models.ActionMessageSent, true)
	if err != nil || failure != nil {
		return failure, err
	}

	text := RenderTemplate(spec.Message, lead)
	return s.perform(ctx, lead, step, providerAction{
		actionType:   models.ActionMessageSent,
		usage:        utils.UsageLinkedInMessage,
		target:       profileURL,
		profileURL:   profileURL,
		withMessage:  true,
		needsAccount: true,
		call: func(ctx context.Context, account *models.ProviderAccount) (*services.ActionResult, error) {
			return s.linkedIn.SendMessage(ctx, account, profileURL, text)
		},
	})
}

// skipMessage defers a message until the connection is accepted
func (s *StepExecutorFlowImpl) skipMessage(ctx context.Context, lead *models.CampaignLead, step *models.CampaignStep) (*StepResult, error) {
	skippedType := models.ActionMessageSkipped
	exists, err := s.actionRepo.Exists(ctx, models.ActionRecordFilter{
		CampaignID: &lead.CampaignID,
		LeadID:     &lead.ID,
		StepID:     &step.ID,
		ActionType: &skippedType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check skipped message: %w", err)
	}

	if !exists {
		record := newActionRecord(lead, step, models.ActionMessageSkipped, models.ActionStatusSkipped, s.clock())
		record.NormalizedProfileURL = utils.MustNormalizeProfileURL(lead.EffectiveLinkedInURL())
		record.ErrorCode = CodeConnectionNotAccepted
		if err := s.actionRepo.Save(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to record skipped message: %w", err)
		}
	}

	return stepSkipped(CodeConnectionNotAccepted, "connection not accepted yet"), nil
}

func (s *StepExecutorFlowImpl) visit(ctx context.Context, lead *models.CampaignLead, step *models.CampaignStep) (*StepResult, error) {
	if done, err := s.alreadyDone(ctx, lead, step, models.ActionProfileVisited); err != nil || done != nil {
		return done, err
	}

	profileURL, failure, err := s.resolveProfileURL(ctx, lead, step, models.ActionProfileVisited, true)
	if err != nil || failure != nil {
		return failure, err
	}

	return s.perform(ctx, lead, step, providerAction{
		actionType:   models.ActionProfileVisited,
		usage:        utils.UsageLinkedInVisit,
		target:       profileURL,
		profileURL:   profileURL,
		needsAccount: true,
		call: func(ctx context.Context, account *models.ProviderAccount) (*services.ActionResult, error) {
			res, err := s.linkedIn.GetProfileDetails(ctx, account, profileURL)
			if err != nil || res == nil {
				return nil, err
			}
			return &res.ActionResult, nil
		},
	})
}

func (s *StepExecutorFlowImpl) follow(ctx context.Context, lead *models.CampaignLead, step *models.CampaignStep) (*StepResult, error) {
	if done, err := s.alreadyDone(ctx, lead, step, models.ActionProfileFollowed); err != nil || done != nil {
		return done, err
	}

	profileURL, failure, err := s.resolveProfileURL(ctx, lead, step, models.ActionProfileFollowed, false)
	if err != nil || failure != nil {
		return failure, err
	}

	return s.perform(ctx, lead, step, providerAction{
		actionType:   models.ActionProfileFollowed,
		usage:        utils.UsageLinkedInFollow,
		target:       profileURL,
		profileURL:   profileURL,
		needsAccount: true,
		call: func(ctx context.Context, account *models.ProviderAccount) (*services.ActionResult, error) {
			return s.linkedIn.FollowProfile(ctx, account, profileURL)
		},
	})
}

func (s *StepExecutorFlowImpl) email(ctx context.Context, lead *models.CampaignLead, step *models.CampaignStep, spec *models.EmailSpec) (*StepResult, error) {
	if done, err := s.alreadyDone(ctx, lead, step, models.ActionEmailSent); err != nil || done != nil {
		return done, err
	}

	to := lead.EffectiveEmail()
	if to == "" {
		return s.failValidation(ctx, lead, step, models.ActionEmailSent, CodeContactMissing, "lead has no email address")
	}
	if err := checkmail.ValidateFormat(to); err != nil {
		return s.failValidation(ctx, lead, step, models.ActionEmailSent, CodeContactInvalid, fmt.Sprintf("invalid email %q: %v", to, err))
	}

	subject := RenderTemplate(spec.Subject, lead)
	body := RenderTemplate(spec.Body, lead)
	return s.perform(ctx, lead, step, providerAction{
		actionType:  models.ActionEmailSent,
		usage:       utils.UsageEmailSend,
		target:      to,
		withMessage: true,
		call: func(ctx context.Context, _ *models.ProviderAccount) (*services.ActionResult, error) {
			return s.outreach.SendEmail(ctx, to, subject, body)
		},
	})
}

func (s *StepExecutorFlowImpl) whatsApp(ctx context.Context, lead *models.CampaignLead, step *models.CampaignStep, spec *models.WhatsAppSpec) (*StepResult, error) {
	if done, err := s.alreadyDone(ctx, lead, step, models.ActionWhatsAppSent); err != nil || done != nil {
		return done, err
	}

	to, code, reason := s.resolvePhone(lead, spec.Region)
	if code != "" {
		return s.failValidation(ctx, lead, step, models.ActionWhatsAppSent, code, reason)
	}

	text := RenderTemplate(spec.Message, lead)
	return s.perform(ctx, lead, step, providerAction{
		actionType:  models.ActionWhatsAppSent,
		usage:       utils.UsageWhatsAppSend,
		target:      to,
		withMessage: true,
		call: func(ctx context.Context, _ *models.ProviderAccount) (*services.ActionResult, error) {
			return s.outreach.SendWhatsApp(ctx, to, text, spec.TemplateName)
		},
	})
}

func (s *StepExecutorFlowImpl) voice(ctx context.Context, lead *models.CampaignLead, step *models.CampaignStep, spec *models.VoiceSpec) (*StepResult, error) {
	if done, err := s.alreadyDone(ctx, lead, step, models.ActionVoiceCallPlaced); err != nil || done != nil {
		return done, err
	}

	to, code, reason := s.resolvePhone(lead, spec.Region)
	if code != "" {
		return s.failValidation(ctx, lead, step, models.ActionVoiceCallPlaced, code, reason)
	}

	script := RenderTemplate(spec.Script, lead)
	return s.perform(ctx, lead, step, providerAction{
		actionType: models.ActionVoiceCallPlaced,
		usage:      utils.UsageVoiceCall,
		target:     to,
		call: func(ctx context.Context, _ *models.ProviderAccount) (*services.ActionResult, error) {
			return s.outreach.PlaceCall(ctx, to, script, spec.AgentID)
		},
	})
}

// resolvePhone returns the lead's phone in E.164, or a failure code and reason
func (s *StepExecutorFlowImpl) resolvePhone(lead *models.CampaignLead, region string) (string, string, string) {
	raw := lead.EffectivePhone()
	if raw == "" {
		return "", CodeContactMissing, "lead has no phone number"
	}

	region = strings.ToUpper(utils.FirstNonEmpty(region, s.cfg.DefaultPhoneRegion))
	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", CodeContactInvalid, fmt.Sprintf("invalid phone %q: %v", raw, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", CodeContactInvalid, fmt.Sprintf("invalid phone %q", raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), "", ""
}

// resolveProfileURL returns the normalized profile URL, enriching the lead when allowed
func (s *StepExecutorFlowImpl) resolveProfileURL(ctx context.Context, lead *models.CampaignLead, step *models.CampaignStep, actionType models.ActionType, enrich bool) (string, *StepResult, error) {
	if enrich && lead.EffectiveLinkedInURL() == "" {
		enriched, err := s.enrichment.EnsureLinkedInURL(ctx, lead)
		switch {
		case err == nil:
			*lead = *enriched
		case errors.Is(err, ErrInsufficientCredits):
			result, rerr := s.failWith(ctx, lead, step, actionType, stepFailed(CodeInsufficientCredits, err.Error(), true))
			return "", result, rerr
		case errors.Is(err, ErrEnrichmentFailed):
			result, rerr := s.failWith(ctx, lead, step, actionType, stepFailed(CodeProviderUnavailable, err.Error(), true))
			return "", result, rerr
		default:
			return "", nil, err
		}
	}

	normalized, err := utils.NormalizeProfileURL(lead.EffectiveLinkedInURL())
	if err != nil {
		result, rerr := s.failValidation(ctx, lead, step, actionType, CodeLinkedInURLUnresolved, "lead has no resolvable LinkedIn profile")
		return "", result, rerr
	}
	return normalized, nil, nil
}

// alreadyDone returns success when the step already succeeded for the lead
func (s *StepExecutorFlowImpl) alreadyDone(ctx context.Context, lead *models.CampaignLead, step *models.CampaignStep, actionType models.ActionType) (*StepResult, error) {
	status := models.ActionStatusSuccess
	done, err := s.actionRepo.Exists(ctx, models.ActionRecordFilter{
		CampaignID: &lead.CampaignID,
		LeadID:     &lead.ID,
		StepID:     &step.ID,
		ActionType: &actionType,
		Status:     &status,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check ledger: %w", err)
	}
	if !done {
		return nil, nil
	}
	return stepSuccess(), nil
}

// perform picks an account, waits for its connect slot, debits, calls the
// provider and records the outcome
func (s *StepExecutorFlowImpl) perform(ctx context.Context, lead *models.CampaignLead, step *models.CampaignStep, action providerAction) (*StepResult, error) {
	var (
		accounts []*models.ProviderAccount
		slot     *ConnectSlot
	)
	if action.needsAccount {
		var err error
		accounts, err = s.accountRepo.ListActiveByTenant(ctx, lead.TenantID, models.ProviderLinkedIn)
		if err != nil {
			return nil, fmt.Errorf("failed to list provider accounts: %w", err)
		}
		if len(accounts) == 0 {
			result := stepFailed(CodeNoProviderAccount, ErrNoProviderAccount.Error(), false)
			result.Remediation = RemediationReconnectAccount
			return s.failWith(ctx, lead, step, action.actionType, result)
		}

		slot, err = s.acquire(ctx, accounts[0], action)
		if err != nil {
			return nil, err
		}
	}

	price := s.credits.Price(action.usage)
	key := utils.StepIdempotencyKey(lead.CampaignID, lead.ID, step.ID)

	if err := s.credits.Debit(ctx, lead.TenantID, action.usage, price, key); err != nil {
		slot.Abandon()
		if errors.Is(err, ErrInsufficientCredits) {
			return s.failWith(ctx, lead, step, action.actionType, stepFailed(CodeInsufficientCredits, err.Error(), true))
		}
		return nil, fmt.Errorf("failed to debit %s: %w", action.usage, err)
	}
	refund := func(reason string) {
		refundQuietly(ctx, s.credits, s.logger, lead.TenantID, action.usage, price, key, reason)
	}

	res, account, err := s.callWithFallback(ctx, accounts, action, slot)
	if err != nil {
		if errors.Is(err, ErrCooldownPastDeadline) {
			refund("fallback account cooling down")
		}
		return nil, err
	}

	record := newActionRecord(lead, step, action.actionType, models.ActionStatusSuccess, s.clock())
	record.NormalizedProfileURL = action.profileURL
	record.WithMessage = action.withMessage
	if account != nil {
		record.ProviderAccountID = utils.ToPtr(account.ID)
	}
	metadata := map[string]any{"target": action.target, "status_code": res.StatusCode}
	for k, v := range action.metadata {
		metadata[k] = v
	}

	var result *StepResult
	switch {
	case res.Success:
		result = stepSuccess()
	case res.AccountExpired:
		refund(CodeAccountExpired)
		result = stepFailed(CodeAccountExpired, utils.FirstNonEmpty(res.Error, "provider account credentials expired"), false)
		result.Remediation = RemediationReconnectAccount
	case res.Unavailable():
		result = stepFailed(CodeProviderUnavailable, utils.FirstNonEmpty(res.Error, "provider unavailable"), true)
	default:
		refund(CodeProviderRejected)
		result = stepFailed(CodeProviderRejected, utils.FirstNonEmpty(res.Error, fmt.Sprintf("provider rejected with status %d", res.StatusCode)), false)
	}

	if result.Status == StepStatusFailed {
		record.Status = models.ActionStatusFailed
		record.ErrorCode = result.ErrorCode
		record.ErrorMessage = result.Error
	}
	record.Metadata = metadataJSON(metadata)
	if err := s.actionRepo.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to record %s: %w", action.actionType, err)
	}

	if account != nil && !res.AccountExpired {
		if err := s.accountRepo.TouchLastUsed(ctx, account.ID, s.clock()); err != nil {
			s.logger.Warn("failed to touch provider account", zap.Uint("account_id", account.ID), zap.Error(err))
		}
	}

	s.logger.Debug("step executed",
		zap.Uint("campaign_id", lead.CampaignID),
		zap.Uint("lead_id", lead.ID),
		zap.String("step_type", string(step.Type)),
		zap.String("status", string(result.Status)),
		zap.String("code", result.ErrorCode))

	return result, nil
}

// callWithFallback calls the provider, retrying once on another account when
// credentials expired. first is the already held slot of accounts[0].
func (s *StepExecutorFlowImpl) callWithFallback(ctx context.Context, accounts []*models.ProviderAccount, action providerAction, first *ConnectSlot) (*services.ActionResult, *models.ProviderAccount, error) {
	if !action.needsAccount {
		res, err := s.call(ctx, nil, action)
		return res, nil, err
	}

	var (
		res     *services.ActionResult
		account *models.ProviderAccount
	)
	slot := first
	for attempt := 0; attempt < 2 && attempt < len(accounts); attempt++ {
		account = accounts[attempt]
		var err error
		if attempt > 0 {
			if slot, err = s.acquire(ctx, account, action); err != nil {
				return nil, nil, err
			}
		}

		res, err = s.call(ctx, account, action)
		slot.Done()
		if err != nil {
			return nil, nil, err
		}
		if !res.AccountExpired {
			return res, account, nil
		}

		s.logger.Warn("provider account expired",
			zap.Uint("account_id", account.ID),
			zap.String("tenant_id", account.TenantID))
		if err := s.accountRepo.UpdateStatus(ctx, account.ID, models.ProviderAccountStatusExpired); err != nil {
			return nil, nil, fmt.Errorf("failed to expire provider account: %w", err)
		}
	}
	return res, account, nil
}

// acquire holds the account's connect slot for actions under the cooldown
func (s *StepExecutorFlowImpl) acquire(ctx context.Context, account *models.ProviderAccount, action providerAction) (*ConnectSlot, error) {
	if !action.cooldown || account == nil {
		return nil, nil
	}
	return s.limiter.Acquire(ctx, account.ID)
}

// call runs one provider call under the call timeout; transport errors become transient results
func (s *StepExecutorFlowImpl) call(ctx context.Context, account *models.ProviderAccount, action providerAction) (*services.ActionResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	res, err := action.call(callCtx, account)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return &services.ActionResult{TransientError: true, Error: err.Error()}, nil
	}
	if res == nil {
		return &services.ActionResult{TransientError: true, Error: "empty provider response"}, nil
	}
	return res, nil
}

// failValidation records a contact or configuration failure; nothing was debited yet
func (s *StepExecutorFlowImpl) failValidation(ctx context.Context, lead *models.CampaignLead, step *models.CampaignStep, actionType models.ActionType, code, reason string) (*StepResult, error) {
	return s.failWith(ctx, lead, step, actionType, stepFailed(code, reason, false))
}

func (s *StepExecutorFlowImpl) failWith(ctx context.Context, lead *models.CampaignLead, step *models.CampaignStep, actionType models.ActionType, result *StepResult) (*StepResult, error) {
	if err := s.recordFailure(ctx, lead, step, actionType, result.ErrorCode, result.Error, result.Remediation); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *StepExecutorFlowImpl) recordFailure(ctx context.Context, lead *models.CampaignLead, step *models.CampaignStep, actionType models.ActionType, code, reason, remediation string) error {
	if actionType == "" {
		return nil
	}
	record := newActionRecord(lead, step, actionType, models.ActionStatusFailed, s.clock())
	record.ErrorCode = code
	record.ErrorMessage = reason
	if remediation != "" {
		record.Metadata = metadataJSON(map[string]any{"remediation": remediation})
	}
	if err := s.actionRepo.Save(ctx, record); err != nil {
		return fmt.Errorf("failed to record %s failure: %w", actionType, err)
	}
	return nil
}

// actionTypeFor maps a step to the ledger type it writes
func actionTypeFor(t models.StepType) models.ActionType {
	switch t {
	case models.StepTypeLinkedInConnect:
		return models.ActionConnectionSent
	case models.StepTypeLinkedInMessage:
		return models.ActionMessageSent
	case models.StepTypeLinkedInVisit:
		return models.ActionProfileVisited
	case models.StepTypeLinkedInFollow:
		return models.ActionProfileFollowed
	case models.StepTypeEmail:
		return models.ActionEmailSent
	case models.StepTypeWhatsApp:
		return models.ActionWhatsAppSent
	case models.StepTypeVoice:
		return models.ActionVoiceCallPlaced
	case models.StepTypeDelay:
		return models.ActionDelayScheduled
	case models.StepTypeCondition:
		return models.ActionConditionEvaluated
	default:
		return ""
	}
}
