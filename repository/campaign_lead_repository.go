package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/models"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CampaignLeadRepositoryImpl implements the CampaignLeadRepository interface
type CampaignLeadRepositoryImpl struct {
	*BaseRepository[models.CampaignLead, models.CampaignLeadFilter]
}

// NewCampaignLeadRepository creates a new campaign lead repository
func NewCampaignLeadRepository(db *gorm.DB) CampaignLeadRepository {
	return &CampaignLeadRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CampaignLead, models.CampaignLeadFilter](db),
	}
}

// InsertIfAbsent inserts a lead, ignoring conflicts on (campaign_id, source_person_id)
func (r *CampaignLeadRepositoryImpl) InsertIfAbsent(ctx context.Context, lead *models.CampaignLead) (bool, error) {
	db := r.getDB(ctx)

	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "source_person_id"}},
		DoNothing: true,
	}).Create(lead)
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}

// ExistsByPerson checks whether the provider person is already enrolled in the campaign
func (r *CampaignLeadRepositoryImpl) ExistsByPerson(ctx context.Context, campaignID uint, sourcePersonID string) (bool, error) {
	return r.Exists(ctx, models.CampaignLeadFilter{CampaignID: &campaignID, SourcePersonID: &sourcePersonID})
}

// ListDue returns active leads whose next action is unset or due, oldest first
func (r *CampaignLeadRepositoryImpl) ListDue(ctx context.Context, campaignID uint, now time.Time, limit int) ([]*models.CampaignLead, error) {
	status := models.LeadStatusActive
	filter := models.CampaignLeadFilter{CampaignID: &campaignID, Status: &status, DueBefore: &now}
	return r.ByFilter(ctx, filter, "id ASC", limit, 0)
}

// FindEnrichedByPerson looks for an enriched lead of the same provider person in the tenant
func (r *CampaignLeadRepositoryImpl) FindEnrichedByPerson(ctx context.Context, tenantID, sourcePersonID string, excludeID uint) (*models.CampaignLead, error) {
	if sourcePersonID == "" {
		return nil, nil
	}

	db := r.getDB(ctx)

	var lead models.CampaignLead
	err := db.Where("tenant_id = ? AND source_person_id = ? AND id <> ? AND enriched_at IS NOT NULL", tenantID, sourcePersonID, excludeID).
		Order("enriched_at DESC").
		First(&lead).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &lead, nil
}

// FindEnrichedByIdentity matches on email first, then on first name and company
func (r *CampaignLeadRepositoryImpl) FindEnrichedByIdentity(ctx context.Context, tenantID, email, firstName, company string, excludeID uint) (*models.CampaignLead, error) {
	db := r.getDB(ctx)

	base := db.Model(&models.CampaignLead{}).
		Where("tenant_id = ? AND id <> ? AND enriched_at IS NOT NULL AND enriched_linkedin_url IS NOT NULL", tenantID, excludeID)

	var lead models.CampaignLead
	if email = strings.TrimSpace(email); email != "" {
		err := base.Session(&gorm.Session{}).
			Where("LOWER(email) = LOWER(?) OR LOWER(enriched_email) = LOWER(?)", email, email).
			Order("enriched_at DESC").
			First(&lead).Error
		if err == nil {
			return &lead, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	firstName, company = strings.TrimSpace(firstName), strings.TrimSpace(company)
	if firstName == "" || company == "" {
		return nil, nil
	}

	err := base.Session(&gorm.Session{}).
		Where("LOWER(first_name) = LOWER(?) AND LOWER(company) = LOWER(?)", firstName, company).
		Order("enriched_at DESC").
		First(&lead).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &lead, nil
}

// UpdateEnrichment persists enrichment results; nil fields are left unchanged
func (r *CampaignLeadRepositoryImpl) UpdateEnrichment(ctx context.Context, id uint, enrichment models.LeadEnrichment, enrichedAt time.Time) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	updates := map[string]any{
		"enriched_at": enrichedAt,
		"updated_at":  utils.UTCNow(),
	}
	if enrichment.Email != nil {
		updates["enriched_email"] = *enrichment.Email
	}
	if enrichment.LinkedInURL != nil {
		updates["enriched_linkedin_url"] = *enrichment.LinkedInURL
	}
	if enrichment.Phone != nil {
		updates["enriched_phone"] = *enrichment.Phone
	}
	if enrichment.FirstName != nil {
		updates["first_name"] = *enrichment.FirstName
	}
	if enrichment.LastName != nil {
		updates["last_name"] = *enrichment.LastName
	}

	err = db.Model(&models.CampaignLead{}).Where("id = ?", id).Updates(updates).Error

	return finish(db, shouldCommit, err)
}

// UpdateProgress moves a lead through the campaign's steps
func (r *CampaignLeadRepositoryImpl) UpdateProgress(ctx context.Context, id uint, status models.LeadStatus, stepOrder int, nextActionAt *time.Time, lastError *string) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	err = db.Model(&models.CampaignLead{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":             status,
			"current_step_order": stepOrder,
			"next_action_at":     nextActionAt,
			"last_error":         lastError,
			"updated_at":         utils.UTCNow(),
		}).Error

	return finish(db, shouldCommit, err)
}

// CountByStatus returns lead counts per status for a campaign
func (r *CampaignLeadRepositoryImpl) CountByStatus(ctx context.Context, campaignID uint) (map[models.LeadStatus]int64, error) {
	type row struct {
		Status models.LeadStatus
		Total  int64
	}

	var rows []row
	db := r.getDB(ctx)
	if err := db.Model(&models.CampaignLead{}).
		Select("status, COUNT(*) AS total").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[models.LeadStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Total
	}
	return out, nil
}

// EarliestNextAction returns the soonest scheduled action among active leads
func (r *CampaignLeadRepositoryImpl) EarliestNextAction(ctx context.Context, campaignID uint) (*time.Time, error) {
	var earliest *time.Time
	db := r.getDB(ctx)
	err := db.Model(&models.CampaignLead{}).
		Select("MIN(next_action_at)").
		Where("campaign_id = ? AND status = ? AND next_action_at IS NOT NULL", campaignID, models.LeadStatusActive).
		Scan(&earliest).Error
	if err != nil {
		return nil, err
	}
	return earliest, nil
}

// StopActive stops every active lead of a campaign
func (r *CampaignLeadRepositoryImpl) StopActive(ctx context.Context, campaignID uint) (int64, error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return 0, err
	}

	res := db.Model(&models.CampaignLead{}).
		Where("campaign_id = ? AND status = ?", campaignID, models.LeadStatusActive).
		Updates(map[string]any{
			"status":     models.LeadStatusStopped,
			"updated_at": utils.UTCNow(),
		})

	if err := finish(db, shouldCommit, res.Error); err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

// ByFilter retrieves leads based on filter criteria
func (r *CampaignLeadRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignLeadFilter, orderBy string, limit, offset int) ([]*models.CampaignLead, error) {
	db := r.getDB(ctx)

	var leads []*models.CampaignLead
	query := paginate(r.applyFilter(db, filter), orderBy, limit, offset)

	if err := query.Find(&leads).Error; err != nil {
		return nil, err
	}

	return leads, nil
}

// Count returns the number of leads matching the filter
func (r *CampaignLeadRepositoryImpl) Count(ctx context.Context, filter models.CampaignLeadFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	if err := r.applyFilter(db.Model(&models.CampaignLead{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if a lead matching the filter exists
func (r *CampaignLeadRepositoryImpl) Exists(ctx context.Context, filter models.CampaignLeadFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *CampaignLeadRepositoryImpl) applyFilter(query *gorm.DB, filter models.CampaignLeadFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.CampaignID != nil {
		query = query.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.SourcePersonID != nil {
		query = query.Where("source_person_id = ?", *filter.SourcePersonID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Email != nil {
		query = query.Where("LOWER(email) = LOWER(?)", *filter.Email)
	}
	if filter.DueBefore != nil {
		query = query.Where("(next_action_at IS NULL OR next_action_at <= ?)", *filter.DueBefore)
	}
	return query
}
