// Package testutil provides in-memory implementations of the purchase ports for testing.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iscoin/purchase/internal/application/purchase/addressalloc"
	"github.com/iscoin/purchase/internal/application/purchase/chain"
	"github.com/iscoin/purchase/internal/application/purchase/ratesource"
	"github.com/iscoin/purchase/internal/domain/purchase"
	vo "github.com/iscoin/purchase/internal/domain/purchase/valueobjects"
)

// clone copies a transaction so the repository never shares state with callers.
func clone(tx *purchase.Transaction) *purchase.Transaction {
	metadata := make(map[string]interface{}, len(tx.Metadata()))
	for k, v := range tx.Metadata() {
		metadata[k] = v
	}
	var utxo *purchase.UtxoPayment
	if tx.Utxo() != nil {
		u := *tx.Utxo()
		utxo = &u
	}
	var account *purchase.AccountPayment
	if tx.Account() != nil {
		a := *tx.Account()
		account = &a
	}
	return purchase.ReconstructTransaction(purchase.TransactionReconstructParams{
		ID:              tx.ID(),
		Variant:         tx.Variant(),
		ExternalAccount: tx.ExternalAccount(),
		PurchaseAmount:  tx.PurchaseAmount(),
		AmountDue:       tx.AmountDue(),
		AmountReceived:  tx.AmountReceived(),
		ExpiresAt:       tx.ExpiresAt(),
		Active:          tx.IsActive(),
		Resolution:      tx.Resolution(),
		Utxo:            utxo,
		Account:         account,
		Metadata:        metadata,
		ClosedAt:        tx.ClosedAt(),
		Version:         tx.Version(),
		CreatedAt:       tx.CreatedAt(),
		UpdatedAt:       tx.UpdatedAt(),
	})
}

// MockTransactionRepository keeps transactions in memory and applies the same
// conditional updates as the database implementation.
type MockTransactionRepository struct {
	mu    sync.Mutex
	txs   map[string]*purchase.Transaction
	order []string

	CreateErr     error
	GetActiveErr  error
	ListActiveErr error
	UpdateErr     error
	CloseErr      error
}

func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{txs: make(map[string]*purchase.Transaction)}
}

func (m *MockTransactionRepository) Create(ctx context.Context, tx *purchase.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateErr != nil {
		return m.CreateErr
	}
	for _, existing := range m.txs {
		if existing.IsActive() && existing.Variant() == tx.Variant() && existing.ExternalAccount() == tx.ExternalAccount() {
			return purchase.ErrActiveTransactionExists
		}
	}
	m.txs[tx.ID()] = clone(tx)
	m.order = append(m.order, tx.ID())
	return nil
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, id string) (*purchase.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.txs[id]
	if !ok {
		return nil, purchase.ErrTransactionNotFound
	}
	return clone(tx), nil
}

func (m *MockTransactionRepository) GetActive(ctx context.Context, variant vo.Variant, externalAccount string) (*purchase.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetActiveErr != nil {
		return nil, m.GetActiveErr
	}
	for _, tx := range m.txs {
		if tx.IsActive() && tx.Variant() == variant && tx.ExternalAccount() == externalAccount {
			return clone(tx), nil
		}
	}
	return nil, nil
}

func (m *MockTransactionRepository) ListActive(ctx context.Context, variant vo.Variant) ([]*purchase.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListActiveErr != nil {
		return nil, m.ListActiveErr
	}
	var result []*purchase.Transaction
	for _, id := range m.order {
		tx := m.txs[id]
		if tx.IsActive() && tx.Variant() == variant {
			result = append(result, clone(tx))
		}
	}
	return result, nil
}

func (m *MockTransactionRepository) UpdateAmountReceived(ctx context.Context, tx *purchase.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	stored, ok := m.txs[tx.ID()]
	if !ok {
		return purchase.ErrTransactionNotFound
	}
	if !stored.IsActive() || stored.Version() != tx.Version()-1 {
		return purchase.ErrVersionConflict
	}
	m.txs[tx.ID()] = clone(tx)
	return nil
}

func (m *MockTransactionRepository) Close(ctx context.Context, tx *purchase.Transaction) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CloseErr != nil {
		return false, m.CloseErr
	}
	stored, ok := m.txs[tx.ID()]
	if !ok || !stored.IsActive() || stored.Version() != tx.Version()-1 {
		return false, nil
	}
	m.txs[tx.ID()] = clone(tx)
	return true, nil
}

func (m *MockTransactionRepository) UpdateMetadata(ctx context.Context, tx *purchase.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.txs[tx.ID()]
	if !ok {
		return purchase.ErrTransactionNotFound
	}
	updated := clone(stored)
	for k, v := range tx.Metadata() {
		updated.SetMetadata(k, v)
	}
	m.txs[tx.ID()] = updated
	return nil
}

// All returns every stored transaction in creation order.
func (m *MockTransactionRepository) All() []*purchase.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*purchase.Transaction, 0, len(m.order))
	for _, id := range m.order {
		result = append(result, clone(m.txs[id]))
	}
	return result
}

var _ purchase.TransactionRepository = (*MockTransactionRepository)(nil)

// MockRateSource serves fixed rates.
type MockRateSource struct {
	mu    sync.Mutex
	Rates map[string]decimal.Decimal
	Err   error
	Calls int
}

func (m *MockRateSource) GetExchangeRate(ctx context.Context, currencyCode string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	if m.Err != nil {
		return decimal.Zero, m.Err
	}
	rate, ok := m.Rates[currencyCode]
	if !ok {
		return decimal.Zero, ratesource.ErrRateNotFound
	}
	return rate, nil
}

// MockAddressAllocator hands out the lowest free index per key group.
type MockAddressAllocator struct {
	mu    sync.Mutex
	slots map[purchase.SlotRef]bool // ref -> available

	AcquireErr error
	Released   []purchase.SlotRef
}

func NewMockAddressAllocator() *MockAddressAllocator {
	return &MockAddressAllocator{slots: make(map[purchase.SlotRef]bool)}
}

func (m *MockAddressAllocator) Acquire(ctx context.Context, keyGroup int) (*purchase.AddressSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AcquireErr != nil {
		return nil, m.AcquireErr
	}
	var index uint32
	for {
		ref := purchase.SlotRef{KeyGroup: keyGroup, DerivationIndex: index}
		available, exists := m.slots[ref]
		if !exists || available {
			m.slots[ref] = false
			return &purchase.AddressSlot{KeyGroup: keyGroup, DerivationIndex: index}, nil
		}
		index++
	}
}

func (m *MockAddressAllocator) Release(ctx context.Context, ref purchase.SlotRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.slots[ref] = true
	m.Released = append(m.Released, ref)
	return nil
}

// IsAvailable reports whether ref was acquired and not released. Unknown
// slots count as available.
func (m *MockAddressAllocator) IsAvailable(ref purchase.SlotRef) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	available, exists := m.slots[ref]
	return !exists || available
}

// SlotCount returns how many slots have ever been created.
func (m *MockAddressAllocator) SlotCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

var _ addressalloc.AddressAllocator = (*MockAddressAllocator)(nil)

// MockAddressDeriver formats slot references as fake addresses.
type MockAddressDeriver struct {
	Err error
}

func (m *MockAddressDeriver) Derive(ref purchase.SlotRef) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	return Address(ref), nil
}

// Address is the address MockAddressDeriver returns for ref.
func Address(ref purchase.SlotRef) string {
	return fmt.Sprintf("addr-%d-%d", ref.KeyGroup, ref.DerivationIndex)
}

// MockUtxoLedgerClient returns configured balances per address.
type MockUtxoLedgerClient struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	errs     map[string]error
}

func NewMockUtxoLedgerClient() *MockUtxoLedgerClient {
	return &MockUtxoLedgerClient{
		balances: make(map[string]decimal.Decimal),
		errs:     make(map[string]error),
	}
}

func (m *MockUtxoLedgerClient) SetBalance(address string, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[address] = amount
}

func (m *MockUtxoLedgerClient) SetError(address string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[address] = err
}

func (m *MockUtxoLedgerClient) GetReceivedBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.errs[address]; err != nil {
		return decimal.Zero, err
	}
	return m.balances[address], nil
}

// MockAccountLedgerClient returns configured transfers per account.
type MockAccountLedgerClient struct {
	mu        sync.Mutex
	transfers map[string][]chain.Transfer
	after     map[string]time.Time
	Err       error
}

func NewMockAccountLedgerClient() *MockAccountLedgerClient {
	return &MockAccountLedgerClient{
		transfers: make(map[string][]chain.Transfer),
		after:     make(map[string]time.Time),
	}
}

func (m *MockAccountLedgerClient) AddTransfer(t chain.Transfer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers[t.To] = append(m.transfers[t.To], t)
}

func (m *MockAccountLedgerClient) GetIncomingTransfers(ctx context.Context, account string, after time.Time) ([]chain.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.after[account] = after
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]chain.Transfer(nil), m.transfers[account]...), nil
}

// LastAfter returns the lower time bound of the last history query for account.
func (m *MockAccountLedgerClient) LastAfter(account string) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.after[account]
}

// SubmittedTransfer is one call recorded by MockTransferSubmitter.
type SubmittedTransfer struct {
	Destination  string
	Amount       decimal.Decimal
	CurrencyCode string
}

// MockTransferSubmitter records transfers and optionally fails them.
type MockTransferSubmitter struct {
	mu        sync.Mutex
	submitted []SubmittedTransfer
	Err       error
}

func (m *MockTransferSubmitter) SubmitTransfer(ctx context.Context, destination string, amount decimal.Decimal, currencyCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.submitted = append(m.submitted, SubmittedTransfer{Destination: destination, Amount: amount, CurrencyCode: currencyCode})
	return m.Err
}

func (m *MockTransferSubmitter) Submitted() []SubmittedTransfer {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := append([]SubmittedTransfer(nil), m.submitted...)
	sort.SliceStable(result, func(i, j int) bool { return result[i].Destination < result[j].Destination })
	return result
}

// PassthroughTransactionRunner runs fn without a database transaction.
type PassthroughTransactionRunner struct{}

func (PassthroughTransactionRunner) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
