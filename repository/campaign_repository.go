package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/models"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
	"gorm.io/gorm"
)

// CampaignRepositoryImpl implements the CampaignRepository interface
type CampaignRepositoryImpl struct {
	*BaseRepository[models.Campaign, models.CampaignFilter]
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &CampaignRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Campaign, models.CampaignFilter](db),
	}
}

// ByID retrieves a campaign by ID with its steps ordered
func (r *CampaignRepositoryImpl) ByID(ctx context.Context, id uint) (*models.Campaign, error) {
	db := r.getDB(ctx)

	var campaign models.Campaign
	err := db.Preload("Steps", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("step_order ASC")
	}).Last(&campaign, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &campaign, nil
}

// ByUUID retrieves a campaign by UUID
func (r *CampaignRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Campaign, error) {
	parsedUUID, err := utils.ParseUUID(uuid)
	if err != nil {
		return nil, err
	}

	filter := models.CampaignFilter{UUID: &parsedUUID}
	campaigns, err := r.ByFilter(ctx, filter, "", 1, 0)
	if err != nil {
		return nil, err
	}

	if len(campaigns) == 0 {
		return nil, nil
	}

	return campaigns[0], nil
}

// ListRunnable returns running campaigns that are active, or sleeping/waiting with a due next_run_at
func (r *CampaignRepositoryImpl) ListRunnable(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error) {
	db := r.getDB(ctx)

	var campaigns []*models.Campaign
	query := db.Model(&models.Campaign{}).
		Where("status = ?", models.CampaignStatusRunning).
		Where(
			db.Where("execution_state = ?", models.ExecutionStateActive).
				Or("execution_state IN ? AND next_run_at IS NOT NULL AND next_run_at <= ?",
					[]models.ExecutionState{models.ExecutionStateSleepingUntilNextDay, models.ExecutionStateWaitingForLeads}, now),
		)
	query = paginate(query, "id ASC", limit, 0)

	err := query.Preload("Steps", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("step_order ASC")
	}).Find(&campaigns).Error
	if err != nil {
		return nil, err
	}

	return campaigns, nil
}

// UpdateStatus updates only the lifecycle status of a campaign
func (r *CampaignRepositoryImpl) UpdateStatus(ctx context.Context, id uint, status models.CampaignStatus) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	err = db.Model(&models.Campaign{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": utils.UTCNow(),
		}).Error

	return finish(db, shouldCommit, err)
}

// UpdateExecutionState updates the execution state and the next wake-up time
func (r *CampaignRepositoryImpl) UpdateExecutionState(ctx context.Context, id uint, state models.ExecutionState, nextRunAt *time.Time) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	err = db.Model(&models.Campaign{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"execution_state": state,
			"next_run_at":     nextRunAt,
			"updated_at":      utils.UTCNow(),
		}).Error

	return finish(db, shouldCommit, err)
}

// UpdateQuotaState performs the optimistic read-modify-write of the lead generation cursor
func (r *CampaignRepositoryImpl) UpdateQuotaState(ctx context.Context, id uint, expectedVersion int, quota models.QuotaState) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	res := db.Exec(
		`UPDATE campaigns
		    SET config = jsonb_set(config, '{quota}', ?::jsonb, true),
		        quota_version = quota_version + 1,
		        updated_at = ?
		  WHERE id = ? AND quota_version = ? AND deleted_at IS NULL`,
		quotaJSON(quota), utils.UTCNow(), id, expectedVersion,
	)
	err = res.Error
	if err == nil && res.RowsAffected == 0 {
		err = ErrQuotaConflict
	}

	return finish(db, shouldCommit, err)
}

// UpdateStats stores recomputed campaign statistics
func (r *CampaignRepositoryImpl) UpdateStats(ctx context.Context, id uint, stats models.CampaignStats) error {
	db := r.getDB(ctx)
	return db.Model(&models.Campaign{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"stats":      stats,
			"updated_at": utils.UTCNow(),
		}).Error
}

// ByFilter retrieves campaigns based on filter criteria
func (r *CampaignRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	db := r.getDB(ctx)

	var campaigns []*models.Campaign
	query := paginate(r.applyFilter(db, filter), orderBy, limit, offset)

	err := query.Preload("Steps", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("step_order ASC")
	}).Find(&campaigns).Error
	if err != nil {
		return nil, err
	}

	return campaigns, nil
}

// Count returns the number of campaigns matching the filter
func (r *CampaignRepositoryImpl) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.Campaign{}), filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if a campaign matching the filter exists
func (r *CampaignRepositoryImpl) Exists(ctx context.Context, filter models.CampaignFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// applyFilter applies filter conditions to the query
func (r *CampaignRepositoryImpl) applyFilter(query *gorm.DB, filter models.CampaignFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.ExecutionState != nil {
		query = query.Where("execution_state = ?", *filter.ExecutionState)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return query
}

func quotaJSON(q models.QuotaState) string {
	b, err := json.Marshal(q)
	if err != nil {
		return "{}"
	}
	return string(b)
}
