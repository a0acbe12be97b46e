package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iscoin/purchase/internal/shared/errors"
)

func TestIsChainAccount(t *testing.T) {
	valid := []string{"alice", "bob.isc", "a", "abcde12345.z"}
	for _, name := range valid {
		assert.True(t, IsChainAccount(name), name)
	}

	invalid := []string{"", "Alice", "carol6", "thirteenchars", "has space", "dash-name"}
	for _, name := range invalid {
		assert.False(t, IsChainAccount(name), name)
	}
}

type purchaseForm struct {
	Account string `json:"external_account" validate:"required,chainaccount"`
	Amount  string `json:"purchase_amount" validate:"required,positive_decimal"`
}

func TestValidateStruct(t *testing.T) {
	require.NoError(t, ValidateStruct(purchaseForm{Account: "alice", Amount: "10.5"}))

	err := ValidateStruct(purchaseForm{Account: "Alice!", Amount: "-3"})
	require.Error(t, err)

	appErr := errors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrorTypeValidation, appErr.Type)
	assert.Contains(t, appErr.Details, "external_account must be 1-12 characters")
	assert.Contains(t, appErr.Details, "purchase_amount must be a positive decimal number")

	err = ValidateStruct(purchaseForm{})
	require.Error(t, err)
	assert.Contains(t, errors.GetAppError(err).Details, "external_account is required")
}
