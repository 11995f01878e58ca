package businessflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/services"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/config"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/models"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/repository"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
	"go.uber.org/zap"
)

// QuotaFlow generates a campaign's daily leads from its durable cursor
type QuotaFlow interface {
	// GenerateDailyLeads runs at most once per local day. A lost race on the
	// cursor returns repository.ErrQuotaConflict.
	GenerateDailyLeads(ctx context.Context, campaign *models.Campaign, spec *models.LeadGenerationSpec) (*LeadGenResult, error)
}

// QuotaFlowImpl implements QuotaFlow
type QuotaFlowImpl struct {
	campaignRepo repository.CampaignRepository
	leadRepo     repository.CampaignLeadRepository
	actionRepo   repository.ActionRecordRepository
	source       services.LeadSource
	credits      CreditFlow
	cfg          config.LeadGenConfig
	clock        utils.Clock
	logger       *zap.Logger
}

// NewQuotaFlow creates a new quota flow instance
func NewQuotaFlow(
	campaignRepo repository.CampaignRepository,
	leadRepo repository.CampaignLeadRepository,
	actionRepo repository.ActionRecordRepository,
	source services.LeadSource,
	credits CreditFlow,
	cfg config.LeadGenConfig,
	clock utils.Clock,
	logger *zap.Logger,
) QuotaFlow {
	if cfg.PageSize <= 0 {
		cfg.PageSize = utils.LeadSourcePageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = utils.DefaultLeadGenMaxPages
	}
	if clock == nil {
		clock = utils.SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuotaFlowImpl{
		campaignRepo: campaignRepo,
		leadRepo:     leadRepo,
		actionRepo:   actionRepo,
		source:       source,
		credits:      credits,
		cfg:          cfg,
		clock:        clock,
		logger:       logger.Named("quota"),
	}
}

// GenerateDailyLeads claims today on the cursor, walks the source from the
// saved offset and then advances the offset by the number of leads saved.
func (s *QuotaFlowImpl) GenerateDailyLeads(ctx context.Context, campaign *models.Campaign, spec *models.LeadGenerationSpec) (*LeadGenResult, error) {
	quota := campaign.Config.Quota
	perDay := quota.LeadsPerDay
	if spec != nil && spec.LeadsPerDay > 0 {
		perDay = spec.LeadsPerDay
	}
	if perDay <= 0 {
		return &LeadGenResult{}, nil
	}

	today := utils.LocalDate(s.clock(), campaign.Location())
	if quota.RanOn(today) {
		return &LeadGenResult{AlreadyRanToday: true}, nil
	}

	// Claim the day before touching the source so that a concurrent pass loses the race
	claimed := quota
	claimed.LastLeadGenDate = today
	if err := s.campaignRepo.UpdateQuotaState(ctx, campaign.ID, campaign.QuotaVersion, claimed); err != nil {
		return nil, err
	}
	version := campaign.QuotaVersion + 1

	filters := campaign.Config.LeadSearch
	if spec != nil && len(spec.Filters) > 0 {
		filters = spec.Filters
	}

	result, walkErr := s.walk(ctx, campaign, quota, filters, perDay)

	final := quota.Advance(result.Saved, today)
	if walkErr != nil {
		// Reopen the day so the next tick retries; saved leads still move the cursor
		final.LastLeadGenDate = quota.LastLeadGenDate
	}
	if err := s.campaignRepo.UpdateQuotaState(ctx, campaign.ID, version, final); err != nil {
		if walkErr != nil {
			return nil, errors.Join(walkErr, err)
		}
		return nil, err
	}
	campaign.Config.Quota = final
	campaign.QuotaVersion = version + 1

	if walkErr != nil {
		return nil, walkErr
	}

	leadsGeneratedTotal.Add(float64(result.Saved))
	s.logger.Info("daily leads generated",
		zap.Uint("campaign_id", campaign.ID),
		zap.String("date", today),
		zap.Int("saved", result.Saved),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("pages", result.PagesRead),
		zap.Int("offset", final.LeadGenOffset),
		zap.Bool("exhausted", result.SourceExhausted),
		zap.Bool("insufficient_credits", result.InsufficientCredits))

	return result, nil
}

func (s *QuotaFlowImpl) walk(ctx context.Context, campaign *models.Campaign, quota models.QuotaState, filters map[string]any, perDay int) (*LeadGenResult, error) {
	result := &LeadGenResult{}
	page, skip := quota.Page(s.cfg.PageSize)

	for result.PagesRead < s.cfg.MaxPages && result.Saved < perDay {
		candidates, err := s.source.SearchPeople(ctx, filters, page, s.cfg.PageSize)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			return result, fmt.Errorf("%w: page %d: %v", ErrLeadSourceUnavailable, page, err)
		}
		result.PagesRead++

		start := 0
		if result.PagesRead == 1 {
			start = min(skip, len(candidates))
		}

		for _, candidate := range candidates[start:] {
			if result.Saved >= perDay {
				break
			}
			stop, err := s.save(ctx, campaign, candidate, result)
			if err != nil {
				return result, err
			}
			if stop {
				return result, nil
			}
		}

		if len(candidates) < s.cfg.PageSize {
			result.SourceExhausted = true
			break
		}
		page++
	}

	return result, nil
}

// save enrolls one candidate; stop is true when credits ran out
func (s *QuotaFlowImpl) save(ctx context.Context, campaign *models.Campaign, candidate services.LeadCandidate, result *LeadGenResult) (bool, error) {
	if candidate.PersonID == "" {
		return false, nil
	}

	exists, err := s.leadRepo.ExistsByPerson(ctx, campaign.ID, candidate.PersonID)
	if err != nil {
		return false, fmt.Errorf("failed to check lead: %w", err)
	}
	if exists {
		result.Duplicates++
		return false, nil
	}

	price := s.credits.Price(utils.UsageLeadGeneration)
	key := fmt.Sprintf("leadgen:%d:%s", campaign.ID, candidate.PersonID)
	if err := s.credits.Debit(ctx, campaign.TenantID, utils.UsageLeadGeneration, price, key); err != nil {
		if errors.Is(err, ErrInsufficientCredits) {
			result.InsufficientCredits = true
			return true, nil
		}
		return false, fmt.Errorf("failed to debit lead generation: %w", err)
	}

	lead := &models.CampaignLead{
		TenantID:       campaign.TenantID,
		CampaignID:     campaign.ID,
		SourcePersonID: candidate.PersonID,
		FirstName:      candidate.FirstName,
		LastName:       candidate.LastName,
		Email:          candidate.Email,
		Phone:          candidate.Phone,
		Company:        candidate.Company,
		Title:          candidate.Title,
		Tags:           candidate.Tags,
		Status:         models.LeadStatusActive,
		CreatedAt:      s.clock(),
	}
	if candidate.LinkedInURL != "" {
		lead.LinkedInURL = utils.ToPtr(candidate.LinkedInURL)
	}

	inserted, err := s.leadRepo.InsertIfAbsent(ctx, lead)
	if err != nil {
		refundQuietly(ctx, s.credits, s.logger, campaign.TenantID, utils.UsageLeadGeneration, price, key, "lead insert failed")
		return false, fmt.Errorf("failed to insert lead: %w", err)
	}
	if !inserted {
		refundQuietly(ctx, s.credits, s.logger, campaign.TenantID, utils.UsageLeadGeneration, price, key, "duplicate lead")
		result.Duplicates++
		return false, nil
	}

	record := newActionRecord(lead, nil, models.ActionLeadGenerated, models.ActionStatusSuccess, s.clock())
	if candidate.LinkedInURL != "" {
		record.NormalizedProfileURL = utils.MustNormalizeProfileURL(candidate.LinkedInURL)
	}
	record.Metadata = metadataJSON(map[string]any{"source_person_id": candidate.PersonID})
	if err := s.actionRepo.Save(ctx, record); err != nil {
		return false, fmt.Errorf("failed to record generated lead: %w", err)
	}

	result.Saved++
	return false, nil
}
