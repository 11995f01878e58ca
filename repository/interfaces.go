// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

var (
	// ErrQuotaConflict is returned when the quota version changed since it was read
	ErrQuotaConflict = errors.New("campaign quota state was modified concurrently")
	// ErrWalletNotFound is returned when a tenant has no credit wallet
	ErrWalletNotFound = errors.New("credit wallet not found")
)

// TxManager runs a unit of work atomically. Repositories called with the
// context passed to fn join the transaction.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(context.Context) error) error
}

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// CampaignRepository defines operations for campaigns
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Campaign, error)
	ListRunnable(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error)
	UpdateStatus(ctx context.Context, id uint, status models.CampaignStatus) error
	UpdateExecutionState(ctx context.Context, id uint, state models.ExecutionState, nextRunAt *time.Time) error
	// UpdateQuotaState writes quota only if quota_version still equals expectedVersion
	UpdateQuotaState(ctx context.Context, id uint, expectedVersion int, quota models.QuotaState) error
	UpdateStats(ctx context.Context, id uint, stats models.CampaignStats) error
}

// CampaignStepRepository defines operations for campaign steps
type CampaignStepRepository interface {
	Repository[models.CampaignStep, models.CampaignStepFilter]
	ListByCampaign(ctx context.Context, campaignID uint) ([]*models.CampaignStep, error)
}

// CampaignLeadRepository defines operations for campaign leads
type CampaignLeadRepository interface {
	Repository[models.CampaignLead, models.CampaignLeadFilter]
	// InsertIfAbsent inserts the lead unless (campaign, source person) exists; it reports whether a row was written
	InsertIfAbsent(ctx context.Context, lead *models.CampaignLead) (bool, error)
	ExistsByPerson(ctx context.Context, campaignID uint, sourcePersonID string) (bool, error)
	ListDue(ctx context.Context, campaignID uint, now time.Time, limit int) ([]*models.CampaignLead, error)
	// FindEnrichedByPerson returns an already enriched lead of the tenant for the same provider person
	FindEnrichedByPerson(ctx context.Context, tenantID, sourcePersonID string, excludeID uint) (*models.CampaignLead, error)
	// FindEnrichedByIdentity is a best-effort match on email, or first name and company
	FindEnrichedByIdentity(ctx context.Context, tenantID, email, firstName, company string, excludeID uint) (*models.CampaignLead, error)
	UpdateEnrichment(ctx context.Context, id uint, enrichment models.LeadEnrichment, enrichedAt time.Time) error
	UpdateProgress(ctx context.Context, id uint, status models.LeadStatus, stepOrder int, nextActionAt *time.Time, lastError *string) error
	CountByStatus(ctx context.Context, campaignID uint) (map[models.LeadStatus]int64, error)
	EarliestNextAction(ctx context.Context, campaignID uint) (*time.Time, error)
	StopActive(ctx context.Context, campaignID uint) (int64, error)
}

// ActionRecordRepository defines operations for the append-only action ledger
type ActionRecordRepository interface {
	Repository[models.ActionRecord, models.ActionRecordFilter]
	// SaveOnce inserts a terminal record unless one exists for (campaign, lead, type); it reports whether a row was written
	SaveOnce(ctx context.Context, record *models.ActionRecord) (bool, error)
	Latest(ctx context.Context, filter models.ActionRecordFilter) (*models.ActionRecord, error)
	CountByTypeAndStatus(ctx context.Context, campaignID uint) (map[models.ActionType]map[models.ActionStatus]int64, error)
}

// ProviderAccountRepository defines operations for connected provider accounts
type ProviderAccountRepository interface {
	Repository[models.ProviderAccount, models.ProviderAccountFilter]
	// ListActiveByTenant orders least recently used first
	ListActiveByTenant(ctx context.Context, tenantID, provider string) ([]*models.ProviderAccount, error)
	ListTenantsWithActiveAccounts(ctx context.Context, provider string) ([]string, error)
	UpdateStatus(ctx context.Context, id uint, status models.ProviderAccountStatus) error
	TouchLastUsed(ctx context.Context, id uint, at time.Time) error
}

// CreditWalletRepository defines operations for credit wallets
type CreditWalletRepository interface {
	Repository[models.CreditWallet, models.CreditWalletFilter]
	ByTenantID(ctx context.Context, tenantID string) (*models.CreditWallet, error)
	// ByTenantIDForUpdate locks the wallet row for the surrounding transaction
	ByTenantIDForUpdate(ctx context.Context, tenantID string) (*models.CreditWallet, error)
	UpdateBalance(ctx context.Context, id uint, balance int64) error
}

// CreditTransactionRepository defines operations for credit transactions
type CreditTransactionRepository interface {
	Repository[models.CreditTransaction, models.CreditTransactionFilter]
	ByIdempotencyKey(ctx context.Context, tenantID, key string) ([]*models.CreditTransaction, error)
}
