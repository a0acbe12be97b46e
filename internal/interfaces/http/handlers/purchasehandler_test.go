package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iscoin/purchase/internal/application/purchase/usecases"
	"github.com/iscoin/purchase/internal/interfaces/http/handlers/testutil"
	"github.com/iscoin/purchase/internal/shared/errors"
	"github.com/iscoin/purchase/internal/shared/logger"
)

// =====================================================================
// Mock use cases
// =====================================================================

type mockRequestUtxoUC struct {
	result *usecases.UtxoPurchaseResult
	err    error
	cmd    usecases.RequestPurchaseCommand
	called bool
}

func (m *mockRequestUtxoUC) Execute(ctx context.Context, cmd usecases.RequestPurchaseCommand) (*usecases.UtxoPurchaseResult, error) {
	m.called = true
	m.cmd = cmd
	return m.result, m.err
}

type mockRequestAccountUC struct {
	result *usecases.AccountPurchaseResult
	err    error
}

func (m *mockRequestAccountUC) Execute(ctx context.Context, cmd usecases.RequestPurchaseCommand) (*usecases.AccountPurchaseResult, error) {
	return m.result, m.err
}

type mockGetStatusUC struct {
	result  *usecases.PurchaseStatus
	err     error
	account string
}

func (m *mockGetStatusUC) Execute(ctx context.Context, externalAccount string) (*usecases.PurchaseStatus, error) {
	m.account = externalAccount
	return m.result, m.err
}

var expiry = time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

func utxoResult() *usecases.UtxoPurchaseResult {
	return &usecases.UtxoPurchaseResult{
		ID:             "9f2c",
		Address:        "1FHz8bpEE5qUZ9XhfjzAbCCwo5bT1HMNAc",
		AmountDue:      decimal.RequireFromString("0.001"),
		AmountReceived: decimal.Zero,
		PurchaseAmount: decimal.NewFromInt(100),
		ExpiresAt:      expiry,
	}
}

func accountResult() *usecases.AccountPurchaseResult {
	return &usecases.AccountPurchaseResult{
		ID:             "7a1d",
		DepositAccount: "iscdeposit11",
		Memo:           "bob1772368200000",
		AmountDue:      decimal.NewFromInt(5),
		AmountReceived: decimal.Zero,
		PurchaseAmount: decimal.NewFromInt(10),
		ExpiresAt:      expiry,
	}
}

type handlerFixture struct {
	utxo    *mockRequestUtxoUC
	account *mockRequestAccountUC
	status  *mockGetStatusUC
	handler *PurchaseHandler
}

func newHandlerFixture() *handlerFixture {
	f := &handlerFixture{
		utxo:    &mockRequestUtxoUC{result: utxoResult()},
		account: &mockRequestAccountUC{result: accountResult()},
		status:  &mockGetStatusUC{result: &usecases.PurchaseStatus{}},
	}
	f.handler = NewPurchaseHandler(f.utxo, f.account, f.status, logger.NewNop())
	return f
}

func decodeResponse(t *testing.T, body []byte) testutil.APIResponse {
	t.Helper()
	var resp testutil.APIResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}

// =====================================================================
// RequestUtxoPurchase
// =====================================================================

func TestRequestUtxoPurchase_Success(t *testing.T) {
	f := newHandlerFixture()
	c, w := testutil.NewTestContext(http.MethodPost, "/api/v1/purchases/utxo", PurchaseRequest{
		ExternalAccount: "alice",
		PurchaseAmount:  "100",
	})

	f.handler.RequestUtxoPurchase(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "alice", f.utxo.cmd.ExternalAccount)
	assert.True(t, f.utxo.cmd.PurchaseAmount.Equal(decimal.NewFromInt(100)))

	resp := decodeResponse(t, w.Body.Bytes())
	assert.True(t, resp.Success)

	var data UtxoPurchaseResponse
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "1FHz8bpEE5qUZ9XhfjzAbCCwo5bT1HMNAc", data.Address)
	assert.Equal(t, "0.001", data.AmountDue)
	assert.Equal(t, "0", data.AmountReceived)
	assert.Equal(t, "2026-03-01T12:30:00Z", data.ExpiresAt)
}

func TestRequestUtxoPurchase_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		body interface{}
	}{
		{"malformed json", `{"external_account":`},
		{"missing account", PurchaseRequest{PurchaseAmount: "1"}},
		{"bad account charset", PurchaseRequest{ExternalAccount: "Alice", PurchaseAmount: "1"}},
		{"account too long", PurchaseRequest{ExternalAccount: "abcdefghijklm", PurchaseAmount: "1"}},
		{"zero amount", PurchaseRequest{ExternalAccount: "alice", PurchaseAmount: "0"}},
		{"not a number", PurchaseRequest{ExternalAccount: "alice", PurchaseAmount: "ten"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newHandlerFixture()
			c, w := testutil.NewTestContext(http.MethodPost, "/api/v1/purchases/utxo", tc.body)

			f.handler.RequestUtxoPurchase(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, f.utxo.called, "use case must not run on invalid input")
			assert.False(t, decodeResponse(t, w.Body.Bytes()).Success)
		})
	}
}

func TestRequestUtxoPurchase_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantType string
	}{
		{"active purchase exists", errors.NewConflictError("active transaction exists"), http.StatusConflict, "conflict"},
		{"unknown rate", errors.NewValidationError("invalid exchange rate", "BTC"), http.StatusBadRequest, "validation_error"},
		{"store failure", fmt.Errorf("database is locked"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newHandlerFixture()
			f.utxo.result = nil
			f.utxo.err = tc.err
			c, w := testutil.NewTestContext(http.MethodPost, "/api/v1/purchases/utxo", PurchaseRequest{
				ExternalAccount: "alice",
				PurchaseAmount:  "1",
			})

			f.handler.RequestUtxoPurchase(c)

			assert.Equal(t, tc.wantCode, w.Code)
			resp := decodeResponse(t, w.Body.Bytes())
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.wantType, resp.Error.Type)
			assert.NotContains(t, resp.Error.Message, "database is locked")
		})
	}
}

// =====================================================================
// RequestAccountPurchase
// =====================================================================

func TestRequestAccountPurchase_Success(t *testing.T) {
	f := newHandlerFixture()
	c, w := testutil.NewTestContext(http.MethodPost, "/api/v1/purchases/account", PurchaseRequest{
		ExternalAccount: "bob",
		PurchaseAmount:  "10",
	})

	f.handler.RequestAccountPurchase(c)

	require.Equal(t, http.StatusCreated, w.Code)
	var data AccountPurchaseResponse
	require.NoError(t, json.Unmarshal(decodeResponse(t, w.Body.Bytes()).Data, &data))
	assert.Equal(t, "iscdeposit11", data.DepositAccount)
	assert.Equal(t, "bob1772368200000", data.Memo)
	assert.Equal(t, "5", data.AmountDue)
}

// =====================================================================
// GetPurchaseStatus
// =====================================================================

func TestGetPurchaseStatus(t *testing.T) {
	f := newHandlerFixture()
	f.status.result = &usecases.PurchaseStatus{Utxo: utxoResult()}
	c, w := testutil.NewTestContext(http.MethodGet, "/api/v1/purchases/alice", nil)
	testutil.SetURLParam(c, "account", "alice")

	f.handler.GetPurchaseStatus(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", f.status.account)

	var data map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(decodeResponse(t, w.Body.Bytes()).Data, &data))
	assert.Contains(t, data, "utxo")
	assert.NotContains(t, data, "account", "variants without an active purchase are omitted")
}

func TestGetPurchaseStatus_InvalidAccount(t *testing.T) {
	f := newHandlerFixture()
	c, w := testutil.NewTestContext(http.MethodGet, "/api/v1/purchases/NOPE", nil)
	testutil.SetURLParam(c, "account", "NOPE")

	f.handler.GetPurchaseStatus(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.status.account)
}
