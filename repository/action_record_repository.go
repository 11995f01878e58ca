package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/models"
	"gorm.io/gorm"
)

// ActionRecordRepositoryImpl implements the ActionRecordRepository interface
type ActionRecordRepositoryImpl struct {
	*BaseRepository[models.ActionRecord, models.ActionRecordFilter]
}

// NewActionRecordRepository creates a new action ledger repository
func NewActionRecordRepository(db *gorm.DB) ActionRecordRepository {
	return &ActionRecordRepositoryImpl{
		BaseRepository: NewBaseRepository[models.ActionRecord, models.ActionRecordFilter](db),
	}
}

// SaveOnce checks for an existing record of the same type for the lead and
// inserts otherwise. The partial unique index catches concurrent writers.
func (r *ActionRecordRepositoryImpl) SaveOnce(ctx context.Context, record *models.ActionRecord) (bool, error) {
	campaignID, leadID, actionType := record.CampaignID, record.LeadID, record.ActionType
	exists, err := r.Exists(ctx, models.ActionRecordFilter{
		CampaignID: &campaignID,
		LeadID:     &leadID,
		ActionType: &actionType,
	})
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	db := r.getDB(ctx)
	if err := db.Create(record).Error; err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to save %s record: %w", record.ActionType, err)
	}

	return true, nil
}

// Latest returns the most recent record matching the filter
func (r *ActionRecordRepositoryImpl) Latest(ctx context.Context, filter models.ActionRecordFilter) (*models.ActionRecord, error) {
	db := r.getDB(ctx)

	var record models.ActionRecord
	err := r.applyFilter(db, filter).Order("created_at DESC, id DESC").First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &record, nil
}

// CountByTypeAndStatus aggregates the ledger of a campaign
func (r *ActionRecordRepositoryImpl) CountByTypeAndStatus(ctx context.Context, campaignID uint) (map[models.ActionType]map[models.ActionStatus]int64, error) {
	type row struct {
		ActionType models.ActionType
		Status     models.ActionStatus
		Total      int64
	}

	var rows []row
	db := r.getDB(ctx)
	if err := db.Model(&models.ActionRecord{}).
		Select("action_type, status, COUNT(*) AS total").
		Where("campaign_id = ?", campaignID).
		Group("action_type, status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[models.ActionType]map[models.ActionStatus]int64)
	for _, r := range rows {
		if out[r.ActionType] == nil {
			out[r.ActionType] = make(map[models.ActionStatus]int64)
		}
		out[r.ActionType][r.Status] = r.Total
	}
	return out, nil
}

// ByFilter retrieves records based on filter criteria
func (r *ActionRecordRepositoryImpl) ByFilter(ctx context.Context, filter models.ActionRecordFilter, orderBy string, limit, offset int) ([]*models.ActionRecord, error) {
	db := r.getDB(ctx)

	var records []*models.ActionRecord
	query := paginate(r.applyFilter(db, filter), orderBy, limit, offset)

	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}

// Count returns the number of records matching the filter
func (r *ActionRecordRepositoryImpl) Count(ctx context.Context, filter models.ActionRecordFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	if err := r.applyFilter(db.Model(&models.ActionRecord{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if a record matching the filter exists
func (r *ActionRecordRepositoryImpl) Exists(ctx context.Context, filter models.ActionRecordFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *ActionRecordRepositoryImpl) applyFilter(query *gorm.DB, filter models.ActionRecordFilter) *gorm.DB {
	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.CampaignID != nil {
		query = query.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.LeadID != nil {
		query = query.Where("lead_id = ?", *filter.LeadID)
	}
	if filter.StepID != nil {
		query = query.Where("step_id = ?", *filter.StepID)
	}
	if filter.ActionType != nil {
		query = query.Where("action_type = ?", *filter.ActionType)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.NormalizedProfileURL != nil {
		query = query.Where("normalized_profile_url = ?", *filter.NormalizedProfileURL)
	}
	if filter.WithMessage != nil {
		query = query.Where("with_message = ?", *filter.WithMessage)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return query
}
