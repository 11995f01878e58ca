package repository

import (
	"context"
	"errors"

	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/models"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreditWalletRepositoryImpl implements the CreditWalletRepository interface
type CreditWalletRepositoryImpl struct {
	*BaseRepository[models.CreditWallet, models.CreditWalletFilter]
}

// NewCreditWalletRepository creates a new credit wallet repository
func NewCreditWalletRepository(db *gorm.DB) CreditWalletRepository {
	return &CreditWalletRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CreditWallet, models.CreditWalletFilter](db),
	}
}

// ByTenantID finds the wallet of a tenant
func (r *CreditWalletRepositoryImpl) ByTenantID(ctx context.Context, tenantID string) (*models.CreditWallet, error) {
	db := r.getDB(ctx)
	var wallet models.CreditWallet
	err := db.Where("tenant_id = ?", tenantID).Last(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &wallet, nil
}

// ByTenantIDForUpdate finds the wallet of a tenant and holds a row lock until the transaction ends
func (r *CreditWalletRepositoryImpl) ByTenantIDForUpdate(ctx context.Context, tenantID string) (*models.CreditWallet, error) {
	db := r.getDB(ctx)
	var wallet models.CreditWallet
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ?", tenantID).
		Last(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &wallet, nil
}

// UpdateBalance sets the wallet balance
func (r *CreditWalletRepositoryImpl) UpdateBalance(ctx context.Context, id uint, balance int64) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	err = db.Model(&models.CreditWallet{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"balance":    balance,
			"updated_at": utils.UTCNow(),
		}).Error

	return finish(db, shouldCommit, err)
}

// ByFilter retrieves wallets based on filter criteria
func (r *CreditWalletRepositoryImpl) ByFilter(ctx context.Context, filter models.CreditWalletFilter, orderBy string, limit, offset int) ([]*models.CreditWallet, error) {
	db := r.getDB(ctx)

	var wallets []*models.CreditWallet
	query := paginate(r.applyFilter(db, filter), orderBy, limit, offset)

	if err := query.Find(&wallets).Error; err != nil {
		return nil, err
	}

	return wallets, nil
}

// Count returns the number of wallets matching the filter
func (r *CreditWalletRepositoryImpl) Count(ctx context.Context, filter models.CreditWalletFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	if err := r.applyFilter(db.Model(&models.CreditWallet{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if a wallet matching the filter exists
func (r *CreditWalletRepositoryImpl) Exists(ctx context.Context, filter models.CreditWalletFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *CreditWalletRepositoryImpl) applyFilter(query *gorm.DB, filter models.CreditWalletFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	return query
}
