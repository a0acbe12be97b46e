package exchangerate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iscoin/purchase/internal/application/purchase/ratesource"
	"github.com/iscoin/purchase/internal/application/purchase/testutil"
	"github.com/iscoin/purchase/internal/shared/logger"
)

func setup(t *testing.T) (*miniredis.Miniredis, *redis.Client, *testutil.MockRateSource) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	src := &testutil.MockRateSource{Rates: map[string]decimal.Decimal{
		"BTC": decimal.RequireFromString("0.00001"),
	}}
	return mr, client, src
}

func TestCachedRateSource_CachesHits(t *testing.T) {
	mr, client, src := setup(t)
	s := NewCachedRateSource(src, client, time.Minute, logger.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rate, err := s.GetExchangeRate(ctx, "BTC")
		require.NoError(t, err)
		assert.True(t, rate.Equal(decimal.RequireFromString("0.00001")))
	}
	assert.Equal(t, 1, src.Calls, "source is read once")

	got, err := mr.Get("purchase:rate:BTC")
	require.NoError(t, err)
	assert.Equal(t, "0.00001", got)

	mr.FastForward(2 * time.Minute)
	_, err = s.GetExchangeRate(ctx, "BTC")
	require.NoError(t, err)
	assert.Equal(t, 2, src.Calls, "expired entry is refreshed")
}

func TestCachedRateSource_MissingRateNotCached(t *testing.T) {
	mr, client, src := setup(t)
	s := NewCachedRateSource(src, client, time.Minute, logger.NewNop())

	_, err := s.GetExchangeRate(context.Background(), "EOS")
	assert.ErrorIs(t, err, ratesource.ErrRateNotFound)
	assert.False(t, mr.Exists("purchase:rate:EOS"))
}

func TestCachedRateSource_MalformedEntryIgnored(t *testing.T) {
	mr, client, src := setup(t)
	s := NewCachedRateSource(src, client, time.Minute, logger.NewNop())
	require.NoError(t, mr.Set("purchase:rate:BTC", "garbage"))

	rate, err := s.GetExchangeRate(context.Background(), "BTC")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.00001")))
	assert.Equal(t, 1, src.Calls)
}

func TestCachedRateSource_RedisDownFallsThrough(t *testing.T) {
	mr, client, src := setup(t)
	s := NewCachedRateSource(src, client, time.Minute, logger.NewNop())
	mr.Close()

	rate, err := s.GetExchangeRate(context.Background(), "BTC")
	require.NoError(t, err)
	assert.True(t, rate.IsPositive())
}

func TestCachedRateSource_SourceError(t *testing.T) {
	_, client, src := setup(t)
	src.Err = errors.New("db down")
	s := NewCachedRateSource(src, client, time.Minute, logger.NewNop())

	_, err := s.GetExchangeRate(context.Background(), "BTC")
	assert.EqualError(t, err, "db down")
}

func TestCachedRateSource_Invalidate(t *testing.T) {
	mr, client, src := setup(t)
	s := NewCachedRateSource(src, client, time.Minute, logger.NewNop())
	ctx := context.Background()

	_, err := s.GetExchangeRate(ctx, "BTC")
	require.NoError(t, err)
	require.NoError(t, s.Invalidate(ctx, "BTC"))
	assert.False(t, mr.Exists("purchase:rate:BTC"))
}
