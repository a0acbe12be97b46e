package repository

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iscoin/purchase/internal/application/purchase/ratesource"
	"github.com/iscoin/purchase/internal/infrastructure/persistence/testutil"
)

func TestExchangeRateRepository(t *testing.T) {
	repo := NewExchangeRateRepository(testutil.NewSQLiteDB(t))
	ctx := context.Background()

	_, err := repo.GetExchangeRate(ctx, "BTC")
	assert.ErrorIs(t, err, ratesource.ErrRateNotFound)

	require.NoError(t, repo.Set(ctx, "BTC", decimal.RequireFromString("0.00001")))
	require.NoError(t, repo.Set(ctx, "EOS", decimal.RequireFromString("0.25")))
	require.NoError(t, repo.Set(ctx, "BTC", decimal.RequireFromString("0.00002")))

	rate, err := repo.GetExchangeRate(ctx, "BTC")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.00002")))

	rates, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, rates, 2)
	assert.Equal(t, "BTC", rates[0].CurrencyCode)
	assert.Equal(t, "EOS", rates[1].CurrencyCode)

	assert.Error(t, repo.Set(ctx, "EOS", decimal.Zero))
}
