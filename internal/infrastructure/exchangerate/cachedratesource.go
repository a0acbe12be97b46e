package exchangerate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/iscoin/purchase/internal/application/purchase/ratesource"
	"github.com/iscoin/purchase/internal/shared/constants"
	"github.com/iscoin/purchase/internal/shared/logger"
)

const defaultCacheTTL = 5 * time.Minute

// CachedRateSource serves rates from Redis and falls through to the
// underlying source on a miss. Redis errors are logged and bypassed; a
// missing rate is never cached.
type CachedRateSource struct {
	source ratesource.RateSource
	client *redis.Client
	ttl    time.Duration
	logger logger.Interface
}

func NewCachedRateSource(source ratesource.RateSource, client *redis.Client, ttl time.Duration, logger logger.Interface) *CachedRateSource {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedRateSource{
		source: source,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

var _ ratesource.RateSource = (*CachedRateSource)(nil)

func (s *CachedRateSource) key(currencyCode string) string {
	return constants.RedisKeyExchangeRate + currencyCode
}

func (s *CachedRateSource) GetExchangeRate(ctx context.Context, currencyCode string) (decimal.Decimal, error) {
	cached, err := s.client.Get(ctx, s.key(currencyCode)).Result()
	switch {
	case err == nil:
		rate, parseErr := decimal.NewFromString(cached)
		if parseErr == nil && rate.IsPositive() {
			return rate, nil
		}
		s.logger.Warnw("discarding malformed cached exchange rate",
			"currency", currencyCode,
			"value", cached,
		)
	case errors.Is(err, redis.Nil):
	default:
		s.logger.Warnw("exchange rate cache unavailable, reading source",
			"currency", currencyCode,
			"error", err,
		)
	}

	rate, err := s.source.GetExchangeRate(ctx, currencyCode)
	if err != nil {
		return decimal.Zero, err
	}

	if err := s.client.Set(ctx, s.key(currencyCode), rate.String(), s.ttl).Err(); err != nil {
		s.logger.Warnw("failed to cache exchange rate",
			"currency", currencyCode,
			"error", err,
		)
	}

	return rate, nil
}

// Invalidate drops the cached rate so the next read goes to the source.
func (s *CachedRateSource) Invalidate(ctx context.Context, currencyCode string) error {
	if err := s.client.Del(ctx, s.key(currencyCode)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate exchange rate %s: %w", currencyCode, err)
	}
	return nil
}
