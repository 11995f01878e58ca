package repository

import (
	"context"

	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/models"
	"gorm.io/gorm"
)

// CreditTransactionRepositoryImpl implements the CreditTransactionRepository interface
type CreditTransactionRepositoryImpl struct {
	*BaseRepository[models.CreditTransaction, models.CreditTransactionFilter]
}

// NewCreditTransactionRepository creates a new credit transaction repository
func NewCreditTransactionRepository(db *gorm.DB) CreditTransactionRepository {
	return &CreditTransactionRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CreditTransaction, models.CreditTransactionFilter](db),
	}
}

// ByIdempotencyKey returns every movement recorded under key, oldest first
func (r *CreditTransactionRepositoryImpl) ByIdempotencyKey(ctx context.Context, tenantID, key string) ([]*models.CreditTransaction, error) {
	filter := models.CreditTransactionFilter{TenantID: &tenantID, IdempotencyKey: &key}
	return r.ByFilter(ctx, filter, "id ASC", 0, 0)
}

// ByFilter retrieves transactions based on filter criteria
func (r *CreditTransactionRepositoryImpl) ByFilter(ctx context.Context, filter models.CreditTransactionFilter, orderBy string, limit, offset int) ([]*models.CreditTransaction, error) {
	db := r.getDB(ctx)

	var txs []*models.CreditTransaction
	query := paginate(r.applyFilter(db, filter), orderBy, limit, offset)

	if err := query.Find(&txs).Error; err != nil {
		return nil, err
	}

	return txs, nil
}

// Count returns the number of transactions matching the filter
func (r *CreditTransactionRepositoryImpl) Count(ctx context.Context, filter models.CreditTransactionFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	if err := r.applyFilter(db.Model(&models.CreditTransaction{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if a transaction matching the filter exists
func (r *CreditTransactionRepositoryImpl) Exists(ctx context.Context, filter models.CreditTransactionFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *CreditTransactionRepositoryImpl) applyFilter(query *gorm.DB, filter models.CreditTransactionFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.WalletID != nil {
		query = query.Where("wallet_id = ?", *filter.WalletID)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.IdempotencyKey != nil {
		query = query.Where("idempotency_key = ?", *filter.IdempotencyKey)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return query
}
