package repository

import (
	"context"
	"time"

	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/models"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
	"gorm.io/gorm"
)

// ProviderAccountRepositoryImpl implements the ProviderAccountRepository interface
type ProviderAccountRepositoryImpl struct {
	*BaseRepository[models.ProviderAccount, models.ProviderAccountFilter]
}

// NewProviderAccountRepository creates a new provider account repository
func NewProviderAccountRepository(db *gorm.DB) ProviderAccountRepository {
	return &ProviderAccountRepositoryImpl{
		BaseRepository: NewBaseRepository[models.ProviderAccount, models.ProviderAccountFilter](db),
	}
}

// ListActiveByTenant returns usable accounts, least recently used first
func (r *ProviderAccountRepositoryImpl) ListActiveByTenant(ctx context.Context, tenantID, provider string) ([]*models.ProviderAccount, error) {
	status := models.ProviderAccountStatusActive
	filter := models.ProviderAccountFilter{TenantID: &tenantID, Provider: &provider, Status: &status}
	return r.ByFilter(ctx, filter, "last_used_at ASC NULLS FIRST, id ASC", 0, 0)
}

// ListTenantsWithActiveAccounts returns the distinct tenants that own an active account
func (r *ProviderAccountRepositoryImpl) ListTenantsWithActiveAccounts(ctx context.Context, provider string) ([]string, error) {
	db := r.getDB(ctx)

	var tenants []string
	err := db.Model(&models.ProviderAccount{}).
		Distinct("tenant_id").
		Where("provider = ? AND status = ?", provider, models.ProviderAccountStatusActive).
		Order("tenant_id ASC").
		Pluck("tenant_id", &tenants).Error
	if err != nil {
		return nil, err
	}

	return tenants, nil
}

// UpdateStatus changes the credential state of an account
func (r *ProviderAccountRepositoryImpl) UpdateStatus(ctx context.Context, id uint, status models.ProviderAccountStatus) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	err = db.Model(&models.ProviderAccount{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": utils.UTCNow(),
		}).Error

	return finish(db, shouldCommit, err)
}

// TouchLastUsed records when an account last performed an action
func (r *ProviderAccountRepositoryImpl) TouchLastUsed(ctx context.Context, id uint, at time.Time) error {
	db := r.getDB(ctx)
	return db.Model(&models.ProviderAccount{}).
		Where("id = ?", id).
		Update("last_used_at", at).Error
}

// ByFilter retrieves accounts based on filter criteria
func (r *ProviderAccountRepositoryImpl) ByFilter(ctx context.Context, filter models.ProviderAccountFilter, orderBy string, limit, offset int) ([]*models.ProviderAccount, error) {
	db := r.getDB(ctx)

	var accounts []*models.ProviderAccount
	query := paginate(r.applyFilter(db, filter), orderBy, limit, offset)

	if err := query.Find(&accounts).Error; err != nil {
		return nil, err
	}

	return accounts, nil
}

// Count returns the number of accounts matching the filter
func (r *ProviderAccountRepositoryImpl) Count(ctx context.Context, filter models.ProviderAccountFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	if err := r.applyFilter(db.Model(&models.ProviderAccount{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if an account matching the filter exists
func (r *ProviderAccountRepositoryImpl) Exists(ctx context.Context, filter models.ProviderAccountFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *ProviderAccountRepositoryImpl) applyFilter(query *gorm.DB, filter models.ProviderAccountFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.Provider != nil {
		query = query.Where("provider = ?", *filter.Provider)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	return query
}
