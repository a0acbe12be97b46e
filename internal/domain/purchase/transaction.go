package purchase

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	vo "github.com/iscoin/purchase/internal/domain/purchase/valueobjects"
)

// Metadata keys written by the reconciliation loop.
const (
	MetaRequiresManualResolution = "requires_manual_resolution"
	MetaSettlementError          = "settlement_error"
	MetaSettlementFailedAt       = "settlement_failed_at"
)

// UtxoPayment is the payload of a utxo purchase: the slot whose derived
// address receives the payment.
type UtxoPayment struct {
	Slot SlotRef
}

// AccountPayment is the payload of an account-chain purchase. Payments go to a
// shared deposit account and are told apart by Memo.
type AccountPayment struct {
	DepositAccount string
	Memo           string
}

// Transaction is a purchase of the token, paid on one of two chains. Exactly
// one of utxo and account is set, matching variant.
type Transaction struct {
	id              string
	variant         vo.Variant
	externalAccount string
	purchaseAmount  decimal.Decimal
	amountDue       decimal.Decimal
	amountReceived  decimal.Decimal
	expiresAt       time.Time
	active          bool
	resolution      vo.Resolution

	utxo    *UtxoPayment
	account *AccountPayment

	metadata map[string]interface{}
	closedAt *time.Time

	version   int
	createdAt time.Time
	updatedAt time.Time
}

// Decision is the outcome of the settlement/expiry policy for one transaction.
type Decision int

const (
	DecisionKeep Decision = iota
	DecisionSettle
	DecisionExpire
)

func (d Decision) String() string {
	switch d {
	case DecisionSettle:
		return "settle"
	case DecisionExpire:
		return "expire"
	default:
		return "keep"
	}
}

// NewTransactionParams carries what every variant needs at creation. Rate is
// the price of one token unit in the payment currency.
type NewTransactionParams struct {
	ExternalAccount string
	PurchaseAmount  decimal.Decimal
	Rate            decimal.Decimal
	TimeLimit       time.Duration
	Now             time.Time
}

func (p NewTransactionParams) validate() error {
	if p.ExternalAccount == "" {
		return fmt.Errorf("external account is required")
	}
	if !p.PurchaseAmount.IsPositive() {
		return fmt.Errorf("purchase amount must be positive")
	}
	if !p.Rate.IsPositive() {
		return fmt.Errorf("exchange rate must be positive")
	}
	if p.TimeLimit <= 0 {
		return fmt.Errorf("time limit must be positive")
	}
	return nil
}

func newTransaction(variant vo.Variant, p NewTransactionParams) *Transaction {
	now := p.Now.UTC()
	return &Transaction{
		id:              uuid.NewString(),
		variant:         variant,
		externalAccount: p.ExternalAccount,
		purchaseAmount:  p.PurchaseAmount,
		amountDue:       p.PurchaseAmount.Mul(p.Rate),
		amountReceived:  decimal.Zero,
		expiresAt:       now.Add(p.TimeLimit),
		active:          true,
		metadata:        make(map[string]interface{}),
		createdAt:       now,
		updatedAt:       now,
	}
}

// NewUtxoTransaction creates an active utxo purchase paying to the address of slot.
func NewUtxoTransaction(p NewTransactionParams, slot SlotRef) (*Transaction, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	t := newTransaction(vo.VariantUtxo, p)
	t.utxo = &UtxoPayment{Slot: slot}
	return t, nil
}

// NewAccountTransaction creates an active account-chain purchase. The memo is
// the external account followed by the creation time in milliseconds.
func NewAccountTransaction(p NewTransactionParams, depositAccount string) (*Transaction, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if depositAccount == "" {
		return nil, fmt.Errorf("deposit account is required")
	}
	t := newTransaction(vo.VariantAccount, p)
	t.account = &AccountPayment{
		DepositAccount: depositAccount,
		Memo:           p.ExternalAccount + strconv.FormatInt(t.createdAt.UnixMilli(), 10),
	}
	return t, nil
}

// ApplyReceivedAmount raises amountReceived to amount. Lower or equal values
// are ignored so that reorgs and lagging indexers never reduce it. It reports
// whether the value changed.
func (t *Transaction) ApplyReceivedAmount(amount decimal.Decimal, now time.Time) bool {
	if !t.active || amount.LessThanOrEqual(t.amountReceived) {
		return false
	}
	t.amountReceived = amount
	t.updatedAt = now.UTC()
	t.version++
	return true
}

// Decide applies the settlement/expiry policy at now. Inactive transactions
// always yield DecisionKeep.
func (t *Transaction) Decide(now time.Time) Decision {
	if !t.active {
		return DecisionKeep
	}
	if t.amountReceived.GreaterThanOrEqual(t.amountDue) {
		return DecisionSettle
	}
	if !now.Before(t.expiresAt) {
		return DecisionExpire
	}
	return DecisionKeep
}

// Settle marks a fully paid transaction inactive.
func (t *Transaction) Settle(now time.Time) error {
	if !t.active {
		return ErrTransactionInactive
	}
	if t.amountReceived.LessThan(t.amountDue) {
		return fmt.Errorf("cannot settle: received %s of %s", t.amountReceived, t.amountDue)
	}
	t.close(vo.ResolutionSettled, now)
	return nil
}

// Expire marks an unpaid or partially paid transaction inactive. A partial
// payment is flagged for manual resolution.
func (t *Transaction) Expire(now time.Time) error {
	if !t.active {
		return ErrTransactionInactive
	}
	if t.amountReceived.IsZero() {
		t.close(vo.ResolutionExpired, now)
		return nil
	}
	t.close(vo.ResolutionUnsettled, now)
	t.metadata[MetaRequiresManualResolution] = true
	return nil
}

func (t *Transaction) close(resolution vo.Resolution, now time.Time) {
	now = now.UTC()
	t.active = false
	t.resolution = resolution
	t.closedAt = &now
	t.updatedAt = now
	t.version++
}

// ReleasesSlot reports whether the address slot of this transaction goes back
// to the pool: only a utxo purchase that closed without receiving anything.
func (t *Transaction) ReleasesSlot() bool {
	return t.variant == vo.VariantUtxo && !t.active && t.amountReceived.IsZero()
}

// RecordSettlementFailure keeps the error of a failed token transfer for operators.
func (t *Transaction) RecordSettlementFailure(reason string, now time.Time) {
	now = now.UTC()
	t.SetMetadata(MetaSettlementError, reason)
	t.SetMetadata(MetaSettlementFailedAt, now.Format(time.RFC3339))
	t.SetMetadata(MetaRequiresManualResolution, true)
	t.updatedAt = now
}

func (t *Transaction) SetMetadata(key string, value interface{}) {
	if t.metadata == nil {
		t.metadata = make(map[string]interface{})
	}
	t.metadata[key] = value
}

func (t *Transaction) ID() string                      { return t.id }
func (t *Transaction) Variant() vo.Variant             { return t.variant }
func (t *Transaction) ExternalAccount() string         { return t.externalAccount }
func (t *Transaction) PurchaseAmount() decimal.Decimal { return t.purchaseAmount }
func (t *Transaction) AmountDue() decimal.Decimal      { return t.amountDue }
func (t *Transaction) AmountReceived() decimal.Decimal { return t.amountReceived }
func (t *Transaction) ExpiresAt() time.Time            { return t.expiresAt }
func (t *Transaction) IsActive() bool                  { return t.active }
func (t *Transaction) Resolution() vo.Resolution       { return t.resolution }
func (t *Transaction) Utxo() *UtxoPayment              { return t.utxo }
func (t *Transaction) Account() *AccountPayment        { return t.account }
func (t *Transaction) Metadata() map[string]interface{} {
	return t.metadata
}
func (t *Transaction) ClosedAt() *time.Time { return t.closedAt }
func (t *Transaction) Version() int         { return t.version }
func (t *Transaction) CreatedAt() time.Time { return t.createdAt }
func (t *Transaction) UpdatedAt() time.Time { return t.updatedAt }

// TransactionReconstructParams holds persisted state for ReconstructTransaction.
type TransactionReconstructParams struct {
	ID              string
	Variant         vo.Variant
	ExternalAccount string
	PurchaseAmount  decimal.Decimal
	AmountDue       decimal.Decimal
	AmountReceived  decimal.Decimal
	ExpiresAt       time.Time
	Active          bool
	Resolution      vo.Resolution
	Utxo            *UtxoPayment
	Account         *AccountPayment
	Metadata        map[string]interface{}
	ClosedAt        *time.Time
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ReconstructTransaction rebuilds a Transaction from storage without validation.
func ReconstructTransaction(p TransactionReconstructParams) *Transaction {
	metadata := p.Metadata
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	return &Transaction{
		id:              p.ID,
		variant:         p.Variant,
		externalAccount: p.ExternalAccount,
		purchaseAmount:  p.PurchaseAmount,
		amountDue:       p.AmountDue,
		amountReceived:  p.AmountReceived,
		expiresAt:       p.ExpiresAt,
		active:          p.Active,
		resolution:      p.Resolution,
		utxo:            p.Utxo,
		account:         p.Account,
		metadata:        metadata,
		closedAt:        p.ClosedAt,
		version:         p.Version,
		createdAt:       p.CreatedAt,
		updatedAt:       p.UpdatedAt,
	}
}
