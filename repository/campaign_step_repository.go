package repository

import (
	"context"

	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/models"
	"gorm.io/gorm"
)

// CampaignStepRepositoryImpl implements the CampaignStepRepository interface
type CampaignStepRepositoryImpl struct {
	*BaseRepository[models.CampaignStep, models.CampaignStepFilter]
}

// NewCampaignStepRepository creates a new campaign step repository
func NewCampaignStepRepository(db *gorm.DB) CampaignStepRepository {
	return &CampaignStepRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CampaignStep, models.CampaignStepFilter](db),
	}
}

// ListByCampaign returns the steps of a campaign in execution order
func (r *CampaignStepRepositoryImpl) ListByCampaign(ctx context.Context, campaignID uint) ([]*models.CampaignStep, error) {
	return r.ByFilter(ctx, models.CampaignStepFilter{CampaignID: &campaignID}, "step_order ASC", 0, 0)
}

// ByFilter retrieves steps based on filter criteria
func (r *CampaignStepRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignStepFilter, orderBy string, limit, offset int) ([]*models.CampaignStep, error) {
	db := r.getDB(ctx)

	var steps []*models.CampaignStep
	query := paginate(r.applyFilter(db, filter), orderBy, limit, offset)

	if err := query.Find(&steps).Error; err != nil {
		return nil, err
	}

	return steps, nil
}

// Count returns the number of steps matching the filter
func (r *CampaignStepRepositoryImpl) Count(ctx context.Context, filter models.CampaignStepFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	if err := r.applyFilter(db.Model(&models.CampaignStep{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if a step matching the filter exists
func (r *CampaignStepRepositoryImpl) Exists(ctx context.Context, filter models.CampaignStepFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *CampaignStepRepositoryImpl) applyFilter(query *gorm.DB, filter models.CampaignStepFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.CampaignID != nil {
		query = query.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	return query
}
