package businessflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/models"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/repository"
	"go.uber.org/zap"
)

// CreditPricer prices one unit of a usage type
type CreditPricer interface {
	Price(usage string) int64
}

// CreditFlow meters provider usage against a tenant's wallet. Debits and
// refunds are keyed: a key holds at most one unrefunded debit.
type CreditFlow interface {
	Price(usage string) int64
	Debit(ctx context.Context, tenantID, usage string, amount int64, key string) error
	// Refund returns a prior debit of key; callers log failures and move on
	Refund(ctx context.Context, tenantID, usage string, amount int64, key, reason string) error
	Balance(ctx context.Context, tenantID string) (int64, error)
}

// CreditFlowImpl implements CreditFlow on the wallet and transaction ledger
type CreditFlowImpl struct {
	walletRepo repository.CreditWalletRepository
	txRepo     repository.CreditTransactionRepository
	txManager  repository.TxManager
	pricer     CreditPricer
	logger     *zap.Logger
}

// NewCreditFlow creates a new credit flow instance
func NewCreditFlow(
	walletRepo repository.CreditWalletRepository,
	txRepo repository.CreditTransactionRepository,
	txManager repository.TxManager,
	pricer CreditPricer,
	logger *zap.Logger,
) CreditFlow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CreditFlowImpl{
		walletRepo: walletRepo,
		txRepo:     txRepo,
		txManager:  txManager,
		pricer:     pricer,
		logger:     logger.Named("credits"),
	}
}

func (s *CreditFlowImpl) Price(usage string) int64 {
	if s.pricer == nil {
		return 0
	}
	return s.pricer.Price(usage)
}

// Debit takes amount from the tenant's wallet unless key already holds an unrefunded debit
func (s *CreditFlowImpl) Debit(ctx context.Context, tenantID, usage string, amount int64, key string) error {
	if amount == 0 {
		return nil
	}
	if amount < 0 {
		return ErrInvalidCreditAmount
	}

	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		wallet, err := s.walletRepo.ByTenantIDForUpdate(txCtx, tenantID)
		if err != nil {
			return fmt.Errorf("failed to lock wallet: %w", err)
		}
		if wallet == nil {
			return fmt.Errorf("%w: %w", ErrInsufficientCredits, repository.ErrWalletNotFound)
		}

		debits, refunds, err := s.movements(txCtx, tenantID, key)
		if err != nil {
			return err
		}
		if debits > refunds {
			return nil
		}

		if wallet.Balance < amount {
			return fmt.Errorf("%w: balance %d, required %d", ErrInsufficientCredits, wallet.Balance, amount)
		}

		if err := s.move(txCtx, wallet, models.CreditTransactionDebit, usage, -amount, key, ""); err != nil {
			return err
		}
		creditMovementsTotal.WithLabelValues(string(models.CreditTransactionDebit), usage).Inc()
		return nil
	})
}

// Refund gives back amount if key holds an unrefunded debit
func (s *CreditFlowImpl) Refund(ctx context.Context, tenantID, usage string, amount int64, key, reason string) error {
	if amount == 0 {
		return nil
	}
	if amount < 0 {
		return ErrInvalidCreditAmount
	}

	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		wallet, err := s.walletRepo.ByTenantIDForUpdate(txCtx, tenantID)
		if err != nil {
			return fmt.Errorf("failed to lock wallet: %w", err)
		}
		if wallet == nil {
			return repository.ErrWalletNotFound
		}

		debits, refunds, err := s.movements(txCtx, tenantID, key)
		if err != nil {
			return err
		}
		if debits <= refunds {
			return nil
		}

		if err := s.move(txCtx, wallet, models.CreditTransactionRefund, usage, amount, key, reason); err != nil {
			return err
		}
		creditMovementsTotal.WithLabelValues(string(models.CreditTransactionRefund), usage).Inc()
		return nil
	})
}

// Balance returns the tenant's current balance, zero without a wallet
func (s *CreditFlowImpl) Balance(ctx context.Context, tenantID string) (int64, error) {
	wallet, err := s.walletRepo.ByTenantID(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	if wallet == nil {
		return 0, nil
	}
	return wallet.Balance, nil
}

func (s *CreditFlowImpl) movements(ctx context.Context, tenantID, key string) (debits, refunds int, err error) {
	txs, err := s.txRepo.ByIdempotencyKey(ctx, tenantID, key)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load credit transactions: %w", err)
	}
	for _, tx := range txs {
		switch tx.Type {
		case models.CreditTransactionDebit:
			debits++
		case models.CreditTransactionRefund:
			refunds++
		}
	}
	return debits, refunds, nil
}

func (s *CreditFlowImpl) move(ctx context.Context, wallet *models.CreditWallet, txType models.CreditTransactionType, usage string, delta int64, key, reason string) error {
	before := wallet.Balance
	after := before + delta

	if err := s.walletRepo.UpdateBalance(ctx, wallet.ID, after); err != nil {
		return fmt.Errorf("failed to update wallet balance: %w", err)
	}

	amount := delta
	if amount < 0 {
		amount = -amount
	}
	tx := &models.CreditTransaction{
		Type:           txType,
		UsageType:      usage,
		Amount:         amount,
		IdempotencyKey: key,
		WalletID:       wallet.ID,
		TenantID:       wallet.TenantID,
		BalanceBefore:  before,
		BalanceAfter:   after,
		Reason:         reason,
	}
	if err := s.txRepo.Save(ctx, tx); err != nil {
		return fmt.Errorf("failed to save credit transaction: %w", err)
	}

	wallet.Balance = after
	s.logger.Debug("credit movement",
		zap.String("tenant_id", wallet.TenantID),
		zap.String("type", string(txType)),
		zap.String("usage", usage),
		zap.Int64("amount", amount),
		zap.String("key", key),
		zap.Int64("balance", after))
	return nil
}

// refundQuietly refunds and logs failures; refunds never change a step outcome
func refundQuietly(ctx context.Context, credits CreditFlow, logger *zap.Logger, tenantID, usage string, amount int64, key, reason string) {
	if amount == 0 {
		return
	}
	if err := credits.Refund(ctx, tenantID, usage, amount, key, reason); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("credit refund failed",
			zap.String("tenant_id", tenantID),
			zap.String("key", key),
			zap.Error(err))
	}
}
