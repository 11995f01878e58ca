package businessflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/models"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/repository"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
)

func TestCreditFlow_DebitIsIdempotentPerKey(t *testing.T) {
	h := newHarness(t)
	h.fx.Wallet(testTenant, 100)

	require.NoError(t, h.credits.Debit(h.ctx, testTenant, utils.UsageLinkedInConnect, 2, "step:1:2:3"))
	require.NoError(t, h.credits.Debit(h.ctx, testTenant, utils.UsageLinkedInConnect, 2, "step:1:2:3"))
	assert.Equal(t, int64(98), h.balance())

	require.NoError(t, h.credits.Debit(h.ctx, testTenant, utils.UsageLinkedInConnect, 2, "step:1:2:4"))
	assert.Equal(t, int64(96), h.balance())

	movements := h.store.CreditMovements()
	require.Len(t, movements, 2)
	assert.Equal(t, models.CreditTransactionDebit, movements[0].Type)
	assert.Equal(t, int64(100), movements[0].BalanceBefore)
	assert.Equal(t, int64(98), movements[0].BalanceAfter)
}

func TestCreditFlow_RefundOnlyReturnsOpenDebits(t *testing.T) {
	h := newHarness(t)
	h.fx.Wallet(testTenant, 10)

	// nothing was debited under this key
	require.NoError(t, h.credits.Refund(h.ctx, testTenant, utils.UsageEmailSend, 1, "k", "rejected"))
	assert.Equal(t, int64(10), h.balance())

	require.NoError(t, h.credits.Debit(h.ctx, testTenant, utils.UsageEmailSend, 1, "k"))
	require.NoError(t, h.credits.Refund(h.ctx, testTenant, utils.UsageEmailSend, 1, "k", "rejected"))
	require.NoError(t, h.credits.Refund(h.ctx, testTenant, utils.UsageEmailSend, 1, "k", "rejected"))
	assert.Equal(t, int64(10), h.balance())

	// a refunded key can be charged again by a later attempt
	require.NoError(t, h.credits.Debit(h.ctx, testTenant, utils.UsageEmailSend, 1, "k"))
	assert.Equal(t, int64(9), h.balance())

	movements := h.store.CreditMovements()
	require.Len(t, movements, 3)
	assert.Equal(t, models.CreditTransactionRefund, movements[1].Type)
	assert.Equal(t, "rejected", movements[1].Reason)
}

func TestCreditFlow_InsufficientCredits(t *testing.T) {
	h := newHarness(t)
	h.fx.Wallet(testTenant, 1)

	err := h.credits.Debit(h.ctx, testTenant, utils.UsageVoiceCall, 3, "call")
	require.Error(t, err)
	assert.True(t, IsInsufficientCredits(err))
	assert.Equal(t, int64(1), h.balance())
	assert.Empty(t, h.store.CreditMovements())
}

func TestCreditFlow_MissingWallet(t *testing.T) {
	h := newHarness(t)

	err := h.credits.Debit(h.ctx, testTenant, utils.UsageVoiceCall, 3, "call")
	assert.ErrorIs(t, err, ErrInsufficientCredits)
	assert.ErrorIs(t, err, repository.ErrWalletNotFound)

	balance, err := h.credits.Balance(h.ctx, testTenant)
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestCreditFlow_Amounts(t *testing.T) {
	h := newHarness(t)
	h.fx.Wallet(testTenant, 5)

	require.NoError(t, h.credits.Debit(h.ctx, testTenant, utils.UsageLinkedInVisit, 0, "free"))
	assert.ErrorIs(t, h.credits.Debit(h.ctx, testTenant, utils.UsageLinkedInVisit, -1, "neg"), ErrInvalidCreditAmount)
	assert.ErrorIs(t, h.credits.Refund(h.ctx, testTenant, utils.UsageLinkedInVisit, -1, "neg", ""), ErrInvalidCreditAmount)
	assert.Empty(t, h.store.CreditMovements())

	assert.Equal(t, int64(2), h.credits.Price(utils.UsageLinkedInConnect))
	assert.Equal(t, int64(5), h.credits.Price(utils.UsageContactReveal))
	assert.Zero(t, h.credits.Price("unknown"))
}
