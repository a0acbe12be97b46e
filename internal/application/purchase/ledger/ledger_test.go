package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iscoin/purchase/internal/application/purchase/testutil"
	"github.com/iscoin/purchase/internal/domain/purchase"
	vo "github.com/iscoin/purchase/internal/domain/purchase/valueobjects"
	apperrors "github.com/iscoin/purchase/internal/shared/errors"
	"github.com/iscoin/purchase/internal/shared/logger"
)

var fixedNow = time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T) (*Ledger, *testutil.MockTransactionRepository, *testutil.MockRateSource) {
	t.Helper()
	repo := testutil.NewMockTransactionRepository()
	rates := &testutil.MockRateSource{Rates: map[string]decimal.Decimal{
		"BTC": decimal.RequireFromString("0.5"),
		"EOS": decimal.RequireFromString("2"),
	}}
	l := NewLedger(repo, rates, Config{
		TimeLimit:       time.Hour,
		UtxoCurrency:    "BTC",
		AccountCurrency: "EOS",
		DepositAccount:  "iscdeposit11",
	}, logger.NewNop())
	l.now = func() time.Time { return fixedNow }
	return l, repo, rates
}

func TestLedger_CreateTransaction_Utxo(t *testing.T) {
	l, repo, rates := newTestLedger(t)
	slot := purchase.SlotRef{KeyGroup: 1, DerivationIndex: 7}

	tx, err := l.CreateTransaction(context.Background(), CreateTransactionCommand{
		Variant:         vo.VariantUtxo,
		ExternalAccount: "alice",
		PurchaseAmount:  decimal.NewFromInt(10),
		Slot:            &slot,
	})

	require.NoError(t, err)
	assert.True(t, tx.AmountDue().Equal(decimal.NewFromInt(5)))
	assert.Equal(t, fixedNow.Add(time.Hour), tx.ExpiresAt())
	assert.Equal(t, slot, tx.Utxo().Slot)
	assert.Equal(t, 1, rates.Calls, "rate is fetched once per creation")
	assert.Len(t, repo.All(), 1)
}

func TestLedger_CreateTransaction_AccountUsesDepositAccount(t *testing.T) {
	l, _, _ := newTestLedger(t)

	tx, err := l.CreateTransaction(context.Background(), CreateTransactionCommand{
		Variant:         vo.VariantAccount,
		ExternalAccount: "bob",
		PurchaseAmount:  decimal.NewFromInt(3),
	})

	require.NoError(t, err)
	assert.True(t, tx.AmountDue().Equal(decimal.NewFromInt(6)))
	assert.Equal(t, "iscdeposit11", tx.Account().DepositAccount)
	assert.Equal(t, "bob1778400000000", tx.Account().Memo)
}

func TestLedger_CreateTransaction_RejectsDuplicateActive(t *testing.T) {
	l, repo, _ := newTestLedger(t)
	cmd := CreateTransactionCommand{
		Variant:         vo.VariantAccount,
		ExternalAccount: "bob",
		PurchaseAmount:  decimal.NewFromInt(3),
	}

	_, err := l.CreateTransaction(context.Background(), cmd)
	require.NoError(t, err)

	_, err = l.CreateTransaction(context.Background(), cmd)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflictError(err))
	assert.Contains(t, err.Error(), "transaction exists")
	assert.Len(t, repo.All(), 1)

	// the other variant is independent
	slot := purchase.SlotRef{}
	cmd.Variant = vo.VariantUtxo
	cmd.Slot = &slot
	_, err = l.CreateTransaction(context.Background(), cmd)
	assert.NoError(t, err)
}

func TestLedger_CreateTransaction_StoreConstraintMapsToConflict(t *testing.T) {
	l, repo, _ := newTestLedger(t)
	repo.CreateErr = purchase.ErrActiveTransactionExists

	_, err := l.CreateTransaction(context.Background(), CreateTransactionCommand{
		Variant:         vo.VariantAccount,
		ExternalAccount: "carol",
		PurchaseAmount:  decimal.NewFromInt(1),
	})

	assert.True(t, apperrors.IsConflictError(err))
}

func TestLedger_CreateTransaction_RateErrors(t *testing.T) {
	t.Run("unknown currency is a validation error", func(t *testing.T) {
		l, repo, rates := newTestLedger(t)
		delete(rates.Rates, "EOS")

		_, err := l.CreateTransaction(context.Background(), CreateTransactionCommand{
			Variant:         vo.VariantAccount,
			ExternalAccount: "bob",
			PurchaseAmount:  decimal.NewFromInt(1),
		})

		require.Error(t, err)
		assert.True(t, apperrors.IsValidationError(err))
		assert.Contains(t, err.Error(), "invalid exchange rate")
		assert.Empty(t, repo.All())
	})

	t.Run("unreachable source is unavailable", func(t *testing.T) {
		l, repo, rates := newTestLedger(t)
		rates.Err = errors.New("connection refused")

		_, err := l.CreateTransaction(context.Background(), CreateTransactionCommand{
			Variant:         vo.VariantAccount,
			ExternalAccount: "bob",
			PurchaseAmount:  decimal.NewFromInt(1),
		})

		appErr := apperrors.GetAppError(err)
		require.NotNil(t, appErr)
		assert.Equal(t, apperrors.ErrorTypeUnavailable, appErr.Type)
		assert.Empty(t, repo.All())
	})
}

func TestLedger_CreateTransaction_UtxoWithoutSlot(t *testing.T) {
	l, _, _ := newTestLedger(t)

	_, err := l.CreateTransaction(context.Background(), CreateTransactionCommand{
		Variant:         vo.VariantUtxo,
		ExternalAccount: "alice",
		PurchaseAmount:  decimal.NewFromInt(1),
	})

	assert.Error(t, err)
}

func TestLedger_ApplyReceivedAmount(t *testing.T) {
	l, repo, _ := newTestLedger(t)
	ctx := context.Background()
	tx, err := l.CreateTransaction(ctx, CreateTransactionCommand{
		Variant:         vo.VariantAccount,
		ExternalAccount: "bob",
		PurchaseAmount:  decimal.NewFromInt(3),
	})
	require.NoError(t, err)

	changed, err := l.ApplyReceivedAmount(ctx, tx, decimal.NewFromInt(4))
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = l.ApplyReceivedAmount(ctx, tx, decimal.NewFromInt(2))
	require.NoError(t, err)
	assert.False(t, changed)

	stored, err := repo.GetByID(ctx, tx.ID())
	require.NoError(t, err)
	assert.True(t, stored.AmountReceived().Equal(decimal.NewFromInt(4)))
}

func TestLedger_ApplyReceivedAmount_VersionConflict(t *testing.T) {
	l, repo, _ := newTestLedger(t)
	ctx := context.Background()
	tx, err := l.CreateTransaction(ctx, CreateTransactionCommand{
		Variant:         vo.VariantAccount,
		ExternalAccount: "bob",
		PurchaseAmount:  decimal.NewFromInt(3),
	})
	require.NoError(t, err)
	stale, err := repo.GetByID(ctx, tx.ID())
	require.NoError(t, err)

	_, err = l.ApplyReceivedAmount(ctx, tx, decimal.NewFromInt(2))
	require.NoError(t, err)

	changed, err := l.ApplyReceivedAmount(ctx, stale, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, purchase.ErrVersionConflict)
	assert.False(t, changed)

	stored, err := repo.GetByID(ctx, tx.ID())
	require.NoError(t, err)
	assert.True(t, stored.AmountReceived().Equal(decimal.NewFromInt(2)))
}

func TestLedger_Close_OnlyOnce(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	tx, err := l.CreateTransaction(ctx, CreateTransactionCommand{
		Variant:         vo.VariantAccount,
		ExternalAccount: "bob",
		PurchaseAmount:  decimal.NewFromInt(3),
	})
	require.NoError(t, err)

	_, err = l.Close(ctx, tx)
	assert.Error(t, err, "active transactions cannot be closed")

	other, err := l.GetActiveTransaction(ctx, vo.VariantAccount, "bob")
	require.NoError(t, err)
	require.NotNil(t, other)

	require.NoError(t, tx.Expire(tx.ExpiresAt()))
	require.NoError(t, other.Expire(other.ExpiresAt()))

	closed, err := l.Close(ctx, tx)
	require.NoError(t, err)
	assert.True(t, closed)

	closed, err = l.Close(ctx, other)
	require.NoError(t, err)
	assert.False(t, closed, "second close of the same transaction loses")

	active, err := l.GetActiveTransaction(ctx, vo.VariantAccount, "bob")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestLedger_RecordSettlementFailure(t *testing.T) {
	l, repo, _ := newTestLedger(t)
	ctx := context.Background()
	tx, err := l.CreateTransaction(ctx, CreateTransactionCommand{
		Variant:         vo.VariantAccount,
		ExternalAccount: "bob",
		PurchaseAmount:  decimal.NewFromInt(3),
	})
	require.NoError(t, err)

	require.NoError(t, l.RecordSettlementFailure(ctx, tx, errors.New("issuer down")))

	stored, err := repo.GetByID(ctx, tx.ID())
	require.NoError(t, err)
	assert.Equal(t, "issuer down", stored.Metadata()[purchase.MetaSettlementError])
}
