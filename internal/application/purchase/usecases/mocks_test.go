package usecases

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iscoin/purchase/internal/application/purchase/ledger"
	"github.com/iscoin/purchase/internal/application/purchase/testutil"
	vo "github.com/iscoin/purchase/internal/domain/purchase/valueobjects"
	"github.com/iscoin/purchase/internal/shared/logger"
)

type mockMetrics struct {
	mu               sync.Mutex
	created          map[vo.Variant]int
	settled          int
	settlementFailed int
	expired          int
	released         int
	queryFailed      int
	ticks            int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{created: make(map[vo.Variant]int)}
}

func (m *mockMetrics) PurchaseCreated(v vo.Variant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created[v]++
}

func (m *mockMetrics) Settled(vo.Variant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settled++
}

func (m *mockMetrics) SettlementFailed(vo.Variant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settlementFailed++
}

func (m *mockMetrics) Expired(_ vo.Variant, released bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired++
	if released {
		m.released++
	}
}

func (m *mockMetrics) LedgerQueryFailed(vo.Variant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryFailed++
}

func (m *mockMetrics) ObserveTick(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks++
}

// clock is a settable time source shared by the ledger under test.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const (
	testDeposit   = "iscdeposit11"
	testTimeLimit = 30 * time.Minute
)

type harness struct {
	clock     *clock
	repo      *testutil.MockTransactionRepository
	rates     *testutil.MockRateSource
	allocator *testutil.MockAddressAllocator
	deriver   *testutil.MockAddressDeriver
	utxo      *testutil.MockUtxoLedgerClient
	account   *testutil.MockAccountLedgerClient
	submitter *testutil.MockTransferSubmitter
	metrics   *mockMetrics

	ledger         *ledger.Ledger
	requestUtxo    *RequestUtxoPurchaseUseCase
	requestAccount *RequestAccountPurchaseUseCase
	status         *GetPurchaseStatusUseCase
	reconcile      *ReconcilePurchasesUseCase
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:     &clock{now: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)},
		repo:      testutil.NewMockTransactionRepository(),
		rates:     &testutil.MockRateSource{Rates: map[string]decimal.Decimal{"BTC": decimal.RequireFromString("0.5"), "EOS": decimal.RequireFromString("0.5")}},
		allocator: testutil.NewMockAddressAllocator(),
		deriver:   &testutil.MockAddressDeriver{},
		utxo:      testutil.NewMockUtxoLedgerClient(),
		account:   testutil.NewMockAccountLedgerClient(),
		submitter: &testutil.MockTransferSubmitter{},
		metrics:   newMockMetrics(),
	}
	log := logger.NewNop()

	h.ledger = ledger.NewLedger(h.repo, h.rates, ledger.Config{
		TimeLimit:       testTimeLimit,
		UtxoCurrency:    "BTC",
		AccountCurrency: "EOS",
		DepositAccount:  testDeposit,
		Now:             h.clock.Now,
	}, log)
	h.requestUtxo = NewRequestUtxoPurchaseUseCase(h.ledger, h.allocator, h.deriver, 0, h.metrics, log)
	h.requestAccount = NewRequestAccountPurchaseUseCase(h.ledger, h.metrics, log)
	h.status = NewGetPurchaseStatusUseCase(h.ledger, h.deriver, log)
	h.reconcile = NewReconcilePurchasesUseCase(
		h.ledger, h.allocator, h.deriver, h.utxo, h.account, h.submitter,
		testutil.PassthroughTransactionRunner{}, h.metrics,
		ReconcileConfig{Concurrency: 2, CallTimeout: time.Second, TokenCode: "ISC"},
		log,
	)
	return h
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func buy(account, amount string) RequestPurchaseCommand {
	return RequestPurchaseCommand{ExternalAccount: account, PurchaseAmount: dec(amount)}
}
