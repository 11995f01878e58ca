package businessflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/services"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/models"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/repository"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Enrichment sources recorded in ENRICHMENT_COMPLETED metadata
const (
	EnrichmentSourceLead     = "lead"
	EnrichmentSourceCache    = "cache"
	EnrichmentSourceIdentity = "identity"
	EnrichmentSourceReveal   = "reveal"
	EnrichmentSourceNone     = "none"
)

// EnrichmentFlow resolves missing contact data of a lead
type EnrichmentFlow interface {
	// EnsureLinkedInURL enriches lead at most once and returns the merged lead.
	// ErrInsufficientCredits and ErrEnrichmentFailed are business outcomes.
	EnsureLinkedInURL(ctx context.Context, lead *models.CampaignLead) (*models.CampaignLead, error)
}

// EnrichmentFlowImpl implements EnrichmentFlow
type EnrichmentFlowImpl struct {
	leadRepo   repository.CampaignLeadRepository
	actionRepo repository.ActionRecordRepository
	source     services.LeadSource
	cache      services.RevealCache
	credits    CreditFlow
	clock      utils.Clock
	logger     *zap.Logger
	group      singleflight.Group
}

// NewEnrichmentFlow creates a new enrichment flow instance; cache may be nil
func NewEnrichmentFlow(
	leadRepo repository.CampaignLeadRepository,
	actionRepo repository.ActionRecordRepository,
	source services.LeadSource,
	cache services.RevealCache,
	credits CreditFlow,
	clock utils.Clock,
	logger *zap.Logger,
) EnrichmentFlow {
	if clock == nil {
		clock = utils.SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrichmentFlowImpl{
		leadRepo:   leadRepo,
		actionRepo: actionRepo,
		source:     source,
		cache:      cache,
		credits:    credits,
		clock:      clock,
		logger:     logger.Named("enrichment"),
	}
}

func (s *EnrichmentFlowImpl) EnsureLinkedInURL(ctx context.Context, lead *models.CampaignLead) (*models.CampaignLead, error) {
	if lead.EffectiveLinkedInURL() != "" || lead.EnrichedAt != nil {
		return lead, nil
	}

	v, err, _ := s.group.Do(fmt.Sprintf("lead:%d", lead.ID), func() (any, error) {
		return s.enrich(ctx, lead.ID)
	})
	if err != nil {
		return nil, err
	}

	out := *v.(*models.CampaignLead)
	return &out, nil
}

func (s *EnrichmentFlowImpl) enrich(ctx context.Context, leadID uint) (*models.CampaignLead, error) {
	lead, err := s.leadRepo.ByID(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lead: %w", err)
	}
	if lead == nil {
		return nil, ErrLeadNotFound
	}
	if lead.EffectiveLinkedInURL() != "" || lead.EnrichedAt != nil {
		return lead, nil
	}

	found, source, err := s.lookup(ctx, lead)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	if err := s.leadRepo.UpdateEnrichment(ctx, lead.ID, found, now); err != nil {
		return nil, fmt.Errorf("failed to persist enrichment: %w", err)
	}
	applyEnrichment(lead, found)
	lead.EnrichedAt = &now

	record := newActionRecord(lead, nil, models.ActionEnrichmentCompleted, models.ActionStatusSuccess, now)
	record.NormalizedProfileURL = utils.MustNormalizeProfileURL(lead.EffectiveLinkedInURL())
	record.Metadata = metadataJSON(map[string]any{
		"source":       source,
		"linkedin_url": found.LinkedInURL != nil,
		"email":        found.Email != nil,
		"phone":        found.Phone != nil,
	})
	if _, err := s.actionRepo.SaveOnce(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to record enrichment: %w", err)
	}

	s.logger.Info("lead enriched",
		zap.Uint("lead_id", lead.ID),
		zap.Uint("campaign_id", lead.CampaignID),
		zap.String("source", source),
		zap.Bool("resolved", lead.EffectiveLinkedInURL() != ""))

	return lead, nil
}

// lookup tries free sources before paying for a reveal
func (s *EnrichmentFlowImpl) lookup(ctx context.Context, lead *models.CampaignLead) (models.LeadEnrichment, string, error) {
	other, err := s.leadRepo.FindEnrichedByPerson(ctx, lead.TenantID, lead.SourcePersonID, lead.ID)
	if err != nil {
		return models.LeadEnrichment{}, "", fmt.Errorf("failed to find enriched lead: %w", err)
	}
	if other != nil && other.EffectiveLinkedInURL() != "" {
		return enrichmentFromLead(lead, other), EnrichmentSourceLead, nil
	}

	if s.cache != nil && lead.SourcePersonID != "" {
		cached, err := s.cache.Get(ctx, lead.TenantID, lead.SourcePersonID)
		if err != nil {
			s.logger.Warn("reveal cache read failed", zap.Uint("lead_id", lead.ID), zap.Error(err))
		} else if cached != nil {
			return enrichmentFromReveal(lead, cached), EnrichmentSourceCache, nil
		}
	}

	other, err = s.leadRepo.FindEnrichedByIdentity(ctx, lead.TenantID, lead.EffectiveEmail(), lead.FirstName, lead.Company, lead.ID)
	if err != nil {
		return models.LeadEnrichment{}, "", fmt.Errorf("failed to match enriched lead: %w", err)
	}
	if other != nil {
		return enrichmentFromLead(lead, other), EnrichmentSourceIdentity, nil
	}

	if lead.SourcePersonID == "" || s.source == nil {
		return models.LeadEnrichment{}, EnrichmentSourceNone, nil
	}

	revealed, err := s.reveal(ctx, lead)
	if err != nil {
		return models.LeadEnrichment{}, "", err
	}
	return enrichmentFromReveal(lead, revealed), EnrichmentSourceReveal, nil
}

func (s *EnrichmentFlowImpl) reveal(ctx context.Context, lead *models.CampaignLead) (*services.RevealResult, error) {
	price := s.credits.Price(utils.UsageContactReveal)
	key := fmt.Sprintf("reveal:%s:%s", lead.TenantID, lead.SourcePersonID)

	if err := s.credits.Debit(ctx, lead.TenantID, utils.UsageContactReveal, price, key); err != nil {
		return nil, err
	}

	result, err := s.source.RevealContact(ctx, lead.SourcePersonID)
	if err != nil || result == nil {
		refundQuietly(ctx, s.credits, s.logger, lead.TenantID, utils.UsageContactReveal, price, key, "reveal failed")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err == nil {
			err = errors.New("empty reveal result")
		}
		return nil, fmt.Errorf("%w: %v", ErrEnrichmentFailed, err)
	}

	if result.PersonID == "" {
		result.PersonID = lead.SourcePersonID
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, lead.TenantID, result); err != nil {
			s.logger.Warn("reveal cache write failed", zap.Uint("lead_id", lead.ID), zap.Error(err))
		}
	}
	return result, nil
}

// enrichmentFromLead copies what other knows and lead lacks
func enrichmentFromLead(lead, other *models.CampaignLead) models.LeadEnrichment {
	return models.LeadEnrichment{
		Email:       missing(lead.EffectiveEmail(), other.EffectiveEmail()),
		LinkedInURL: missing(lead.EffectiveLinkedInURL(), other.EffectiveLinkedInURL()),
		Phone:       missing(lead.EffectivePhone(), other.EffectivePhone()),
		FirstName:   missing(lead.FirstName, other.FirstName),
		LastName:    missing(lead.LastName, other.LastName),
	}
}

func enrichmentFromReveal(lead *models.CampaignLead, r *services.RevealResult) models.LeadEnrichment {
	return models.LeadEnrichment{
		Email:       missing(lead.EffectiveEmail(), r.Email),
		LinkedInURL: missing(lead.EffectiveLinkedInURL(), r.LinkedInURL),
		Phone:       missing(lead.EffectivePhone(), r.Phone),
		FirstName:   missing(lead.FirstName, r.FirstName),
		LastName:    missing(lead.LastName, r.LastName),
	}
}

func missing(have, found string) *string {
	if strings.TrimSpace(have) != "" || strings.TrimSpace(found) == "" {
		return nil
	}
	return utils.ToPtr(strings.TrimSpace(found))
}

func applyEnrichment(lead *models.CampaignLead, e models.LeadEnrichment) {
	if e.Email != nil {
		lead.EnrichedEmail = e.Email
	}
	if e.LinkedInURL != nil {
		lead.EnrichedLinkedInURL = e.LinkedInURL
	}
	if e.Phone != nil {
		lead.EnrichedPhone = e.Phone
	}
	if e.FirstName != nil {
		lead.FirstName = *e.FirstName
	}
	if e.LastName != nil {
		lead.LastName = *e.LastName
	}
}
