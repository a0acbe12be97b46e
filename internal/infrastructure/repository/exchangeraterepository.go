package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/iscoin/purchase/internal/application/purchase/ratesource"
	"github.com/iscoin/purchase/internal/infrastructure/persistence/models"
	"github.com/iscoin/purchase/internal/shared/biztime"
	"github.com/iscoin/purchase/internal/shared/db"
)

// ExchangeRateRepository reads and maintains the exchange_rates table. It is
// the RateSource used at purchase creation.
type ExchangeRateRepository struct {
	db *gorm.DB
}

func NewExchangeRateRepository(db *gorm.DB) *ExchangeRateRepository {
	return &ExchangeRateRepository{db: db}
}

var _ ratesource.RateSource = (*ExchangeRateRepository)(nil)

func (r *ExchangeRateRepository) GetExchangeRate(ctx context.Context, currencyCode string) (decimal.Decimal, error) {
	var model models.ExchangeRateModel

	if err := db.GetTxFromContext(ctx, r.db).
		Where("currency_code = ?", currencyCode).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ratesource.ErrRateNotFound
		}
		return decimal.Zero, fmt.Errorf("failed to get exchange rate: %w", err)
	}

	return model.Rate, nil
}

// Set creates or replaces the rate of a currency.
func (r *ExchangeRateRepository) Set(ctx context.Context, currencyCode string, rate decimal.Decimal) error {
	if !rate.IsPositive() {
		return fmt.Errorf("exchange rate must be positive, got %s", rate)
	}

	now := biztime.NowUTC()
	model := &models.ExchangeRateModel{
		CurrencyCode: currencyCode,
		Rate:         rate,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := db.GetTxFromContext(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "currency_code"}},
			DoUpdates: clause.AssignmentColumns([]string{"rate", "updated_at"}),
		}).
		Create(model).Error; err != nil {
		return fmt.Errorf("failed to set exchange rate: %w", err)
	}

	return nil
}

func (r *ExchangeRateRepository) List(ctx context.Context) ([]models.ExchangeRateModel, error) {
	var rates []models.ExchangeRateModel

	if err := db.GetTxFromContext(ctx, r.db).
		Order("currency_code ASC").
		Find(&rates).Error; err != nil {
		return nil, fmt.Errorf("failed to list exchange rates: %w", err)
	}

	return rates, nil
}
