package rates

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iscoin/purchase/internal/infrastructure/exchangerate"
	dbtestutil "github.com/iscoin/purchase/internal/infrastructure/persistence/testutil"
	"github.com/iscoin/purchase/internal/infrastructure/repository"
	"github.com/iscoin/purchase/internal/shared/constants"
	"github.com/iscoin/purchase/internal/shared/logger"
)

func TestSetRate_InvalidatesCache(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewExchangeRateRepository(dbtestutil.NewSQLiteDB(t))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := exchangerate.NewCachedRateSource(repo, client, time.Minute, logger.NewNop())

	var out bytes.Buffer
	require.NoError(t, setRate(ctx, repo, cache, "btc", "0.00001", &out))
	assert.Equal(t, "BTC = 0.00001\n", out.String())

	// Warm the cache, then replace the rate.
	_, err := cache.GetExchangeRate(ctx, "BTC")
	require.NoError(t, err)
	require.True(t, mr.Exists(constants.RedisKeyExchangeRate+"BTC"))

	require.NoError(t, setRate(ctx, repo, cache, "BTC", "0.00002", &out))
	assert.False(t, mr.Exists(constants.RedisKeyExchangeRate+"BTC"))

	rate, err := cache.GetExchangeRate(ctx, "BTC")
	require.NoError(t, err)
	assert.Equal(t, "0.00002", rate.String())
}

func TestSetRate_Invalid(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewExchangeRateRepository(dbtestutil.NewSQLiteDB(t))
	var out bytes.Buffer

	assert.Error(t, setRate(ctx, repo, nil, "", "1", &out))
	assert.Error(t, setRate(ctx, repo, nil, "EOS", "abc", &out))
	assert.Error(t, setRate(ctx, repo, nil, "EOS", "-1", &out))
	assert.Empty(t, out.String())
}

func TestListRates(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewExchangeRateRepository(dbtestutil.NewSQLiteDB(t))
	require.NoError(t, setRate(ctx, repo, nil, "EOS", "0.5", &bytes.Buffer{}))
	require.NoError(t, setRate(ctx, repo, nil, "BTC", "0.00001", &bytes.Buffer{}))

	var out bytes.Buffer
	require.NoError(t, listRates(ctx, repo, &out))

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), "CURRENCY")
	assert.Contains(t, string(lines[1]), "BTC")
	assert.Contains(t, string(lines[2]), "EOS")
}
