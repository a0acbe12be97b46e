package payment

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/iscoin/purchase/internal/application/purchase/chain"
	"github.com/iscoin/purchase/internal/application/purchase/testutil"
	"github.com/iscoin/purchase/internal/application/purchase/usecases"
	dbtestutil "github.com/iscoin/purchase/internal/infrastructure/persistence/testutil"
	"github.com/iscoin/purchase/internal/shared/config"
	"github.com/iscoin/purchase/internal/shared/logger"
)

func testPurchaseConfig() config.PurchaseConfig {
	return config.PurchaseConfig{
		TimeLimit:      30 * time.Minute,
		UpdateInterval: time.Minute,
		Concurrency:    2,
		CallTimeout:    5 * time.Second,
		TokenCode:      "ISC",
		TokenDecimals:  4,
		Utxo: config.UtxoChainConfig{
			CurrencyCode: "BTC",
			Network:      "mainnet",
			Xpubs:        []string{testXpub},
		},
		Account: config.AccountChainConfig{
			CurrencyCode:   "EOS",
			DepositAccount: "iscdeposit11",
		},
	}
}

type endToEnd struct {
	db        *gorm.DB
	manager   *PurchaseServiceManager
	utxo      *testutil.MockUtxoLedgerClient
	account   *testutil.MockAccountLedgerClient
	submitter *testutil.MockTransferSubmitter
}

func newEndToEnd(t *testing.T) *endToEnd {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	e := &endToEnd{
		db:        dbtestutil.NewSQLiteDB(t),
		utxo:      testutil.NewMockUtxoLedgerClient(),
		account:   testutil.NewMockAccountLedgerClient(),
		submitter: &testutil.MockTransferSubmitter{},
	}

	m, err := NewPurchaseServiceManager(
		e.db,
		rdb,
		testPurchaseConfig(),
		time.Minute,
		PurchaseClients{Utxo: e.utxo, Account: e.account, Submitter: e.submitter},
		nil,
		logger.NewNop(),
	)
	require.NoError(t, err)
	e.manager = m

	ctx := context.Background()
	require.NoError(t, m.ExchangeRates().Set(ctx, "BTC", decimal.RequireFromString("0.00001")))
	require.NoError(t, m.ExchangeRates().Set(ctx, "EOS", decimal.RequireFromString("0.5")))
	return e
}

func TestPurchaseServiceManager_UtxoPurchaseSettles(t *testing.T) {
	e := newEndToEnd(t)
	ctx := context.Background()

	res, err := e.manager.RequestUtxoPurchase().Execute(ctx, usecases.RequestPurchaseCommand{
		ExternalAccount: "alice",
		PurchaseAmount:  decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	assert.Equal(t, "1FHz8bpEE5qUZ9XhfjzAbCCwo5bT1HMNAc", res.Address, "first slot derives child 0")
	assert.True(t, res.AmountDue.Equal(decimal.RequireFromString("0.001")))

	status, err := e.manager.GetPurchaseStatus().Execute(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, status.Utxo)
	assert.Equal(t, res.Address, status.Utxo.Address)

	e.utxo.SetBalance(res.Address, decimal.RequireFromString("0.001"))

	closed, err := e.manager.ReconcilePurchases().Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	submitted := e.submitter.Submitted()
	require.Len(t, submitted, 1)
	assert.Equal(t, "alice", submitted[0].Destination)
	assert.Equal(t, "ISC", submitted[0].CurrencyCode)
	assert.True(t, submitted[0].Amount.Equal(decimal.NewFromInt(100)))

	status, err = e.manager.GetPurchaseStatus().Execute(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, status.Utxo)

	// A paid slot is not returned to the pool.
	total, available, err := e.manager.Allocator().Stats(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Zero(t, available)
}

func TestPurchaseServiceManager_AccountPurchaseSettles(t *testing.T) {
	e := newEndToEnd(t)
	ctx := context.Background()

	res, err := e.manager.RequestAccountPurchase().Execute(ctx, usecases.RequestPurchaseCommand{
		ExternalAccount: "bob",
		PurchaseAmount:  decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	assert.Equal(t, "iscdeposit11", res.DepositAccount)
	assert.True(t, res.AmountDue.Equal(decimal.NewFromInt(5)))

	e.account.AddTransfer(chain.Transfer{
		From: "bob", To: "iscdeposit11", Memo: res.Memo,
		Amount: decimal.NewFromInt(5), CurrencyCode: "EOS",
	})

	closed, err := e.manager.ReconcilePurchases().Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)
	require.Len(t, e.submitter.Submitted(), 1)
}

// A utxo request priced in a currency without a rate leaves no slot row behind.
func TestPurchaseServiceManager_UnknownRateCreatesNoSlot(t *testing.T) {
	e := newEndToEnd(t)
	cfg := testPurchaseConfig()
	cfg.Utxo.CurrencyCode = "LTC"

	m, err := NewPurchaseServiceManager(
		e.db,
		nil,
		cfg,
		time.Minute,
		PurchaseClients{Utxo: e.utxo, Account: e.account, Submitter: e.submitter},
		nil,
		logger.NewNop(),
	)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = m.RequestUtxoPurchase().Execute(ctx, usecases.RequestPurchaseCommand{
		ExternalAccount: "alice",
		PurchaseAmount:  decimal.NewFromInt(100),
	})
	require.Error(t, err)

	total, _, err := m.Allocator().Stats(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestPurchaseServiceManager_InvalidConfig(t *testing.T) {
	cfg := testPurchaseConfig()
	cfg.Utxo.Xpubs = []string{"not-an-xpub"}

	_, err := NewPurchaseServiceManager(dbtestutil.NewSQLiteDB(t), nil, cfg, 0, PurchaseClients{}, nil, logger.NewNop())
	assert.Error(t, err)

	cfg = testPurchaseConfig()
	cfg.Account.DepositAccount = ""
	_, err = NewPurchaseServiceManager(dbtestutil.NewSQLiteDB(t), nil, cfg, 0, PurchaseClients{}, nil, logger.NewNop())
	assert.Error(t, err)
}
