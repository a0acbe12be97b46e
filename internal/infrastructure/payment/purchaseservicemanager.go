package payment

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/iscoin/purchase/internal/application/purchase/chain"
	"github.com/iscoin/purchase/internal/application/purchase/ledger"
	"github.com/iscoin/purchase/internal/application/purchase/ratesource"
	"github.com/iscoin/purchase/internal/application/purchase/usecases"
	"github.com/iscoin/purchase/internal/infrastructure/blockchain"
	infraExchangerate "github.com/iscoin/purchase/internal/infrastructure/exchangerate"
	"github.com/iscoin/purchase/internal/infrastructure/repository"
	"github.com/iscoin/purchase/internal/shared/config"
	"github.com/iscoin/purchase/internal/shared/db"
	"github.com/iscoin/purchase/internal/shared/logger"
)

// PurchaseClients are the outbound chain integrations. Nil fields are built
// from configuration.
type PurchaseClients struct {
	Utxo      chain.UtxoLedgerClient
	Account   chain.AccountLedgerClient
	Submitter chain.TransferSubmitter
}

// PurchaseServiceManager builds every purchase component from configuration.
// The API server and the worker share it so both sides agree on currencies,
// key groups and the deposit account.
type PurchaseServiceManager struct {
	config config.PurchaseConfig
	logger logger.Interface

	rateRepo  *repository.ExchangeRateRepository
	rates     ratesource.RateSource
	ledger    *ledger.Ledger
	allocator *AddressAllocator
	deriver   *HDAddressDeriver

	requestUtxo    *usecases.RequestUtxoPurchaseUseCase
	requestAccount *usecases.RequestAccountPurchaseUseCase
	status         *usecases.GetPurchaseStatusUseCase
	reconcile      *usecases.ReconcilePurchasesUseCase
}

// NewPurchaseServiceManager validates cfg and wires the purchase flow. When
// redisClient is non-nil exchange rates are cached in Redis for rateTTL.
func NewPurchaseServiceManager(
	gdb *gorm.DB,
	redisClient *redis.Client,
	cfg config.PurchaseConfig,
	rateTTL time.Duration,
	clients PurchaseClients,
	metrics usecases.Metrics,
	log logger.Interface,
) (*PurchaseServiceManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid purchase configuration: %w", err)
	}

	deriver, err := NewHDAddressDeriver(cfg.Utxo.Xpubs, cfg.Utxo.Network)
	if err != nil {
		return nil, fmt.Errorf("failed to load extended public keys: %w", err)
	}

	if metrics == nil {
		metrics = usecases.NewNopMetrics()
	}

	m := &PurchaseServiceManager{
		config:    cfg,
		logger:    log,
		rateRepo:  repository.NewExchangeRateRepository(gdb),
		allocator: NewAddressAllocator(gdb, log.With("component", "address-allocator")),
		deriver:   deriver,
	}

	m.rates = m.rateRepo
	if redisClient != nil {
		m.rates = infraExchangerate.NewCachedRateSource(m.rateRepo, redisClient, rateTTL, log)
	}

	if clients.Utxo == nil {
		clients.Utxo = blockchain.NewInsightClient(cfg.Utxo.InsightAPI, cfg.CallTimeout, log)
	}
	if clients.Account == nil {
		clients.Account = blockchain.NewHyperionClient(cfg.Account.HistoryAPI, 0, cfg.CallTimeout, log)
	}
	if clients.Submitter == nil {
		clients.Submitter = blockchain.NewIssuerClient(
			cfg.Settlement.IssuerURL,
			cfg.Settlement.IssuerAccount,
			cfg.Settlement.APIKey,
			cfg.TokenDecimals,
			cfg.CallTimeout,
			log,
		)
	}

	m.ledger = ledger.NewLedger(
		repository.NewPurchaseTransactionRepository(gdb),
		m.rates,
		ledger.Config{
			TimeLimit:       cfg.TimeLimit,
			UtxoCurrency:    cfg.Utxo.CurrencyCode,
			AccountCurrency: cfg.Account.CurrencyCode,
			DepositAccount:  cfg.Account.DepositAccount,
		},
		log.With("component", "purchase-ledger"),
	)

	m.requestUtxo = usecases.NewRequestUtxoPurchaseUseCase(m.ledger, m.allocator, m.deriver, cfg.Utxo.CurrentKeyGroup, metrics, log)
	m.requestAccount = usecases.NewRequestAccountPurchaseUseCase(m.ledger, metrics, log)
	m.status = usecases.NewGetPurchaseStatusUseCase(m.ledger, m.deriver, log)
	m.reconcile = usecases.NewReconcilePurchasesUseCase(
		m.ledger,
		m.allocator,
		m.deriver,
		clients.Utxo,
		clients.Account,
		clients.Submitter,
		db.NewTransactionManager(gdb),
		metrics,
		usecases.ReconcileConfig{
			Concurrency: cfg.Concurrency,
			CallTimeout: cfg.CallTimeout,
			TokenCode:   cfg.TokenCode,
		},
		log.With("component", "purchase-reconciler"),
	)

	log.Infow("purchase services initialized",
		"utxo_currency", cfg.Utxo.CurrencyCode,
		"account_currency", cfg.Account.CurrencyCode,
		"key_groups", len(cfg.Utxo.Xpubs),
		"current_key_group", cfg.Utxo.CurrentKeyGroup,
		"deposit_account", cfg.Account.DepositAccount,
		"rate_cache", redisClient != nil,
	)

	return m, nil
}

func (m *PurchaseServiceManager) RequestUtxoPurchase() *usecases.RequestUtxoPurchaseUseCase {
	return m.requestUtxo
}

func (m *PurchaseServiceManager) RequestAccountPurchase() *usecases.RequestAccountPurchaseUseCase {
	return m.requestAccount
}

func (m *PurchaseServiceManager) GetPurchaseStatus() *usecases.GetPurchaseStatusUseCase {
	return m.status
}

func (m *PurchaseServiceManager) ReconcilePurchases() *usecases.ReconcilePurchasesUseCase {
	return m.reconcile
}

// ExchangeRates is the writable rate table, bypassing the cache.
func (m *PurchaseServiceManager) ExchangeRates() *repository.ExchangeRateRepository {
	return m.rateRepo
}

func (m *PurchaseServiceManager) Allocator() *AddressAllocator {
	return m.allocator
}

func (m *PurchaseServiceManager) Deriver() *HDAddressDeriver {
	return m.deriver
}

func (m *PurchaseServiceManager) Config() config.PurchaseConfig {
	return m.config
}
