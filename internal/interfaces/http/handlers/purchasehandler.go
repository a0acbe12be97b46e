package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/iscoin/purchase/internal/application/purchase/usecases"
	"github.com/iscoin/purchase/internal/shared/biztime"
	"github.com/iscoin/purchase/internal/shared/errors"
	"github.com/iscoin/purchase/internal/shared/logger"
	"github.com/iscoin/purchase/internal/shared/utils"
)

type PurchaseHandler struct {
	requestUtxoUC    requestUtxoPurchaseUseCase
	requestAccountUC requestAccountPurchaseUseCase
	getStatusUC      getPurchaseStatusUseCase
	logger           logger.Interface
}

func NewPurchaseHandler(
	requestUtxoUC requestUtxoPurchaseUseCase,
	requestAccountUC requestAccountPurchaseUseCase,
	getStatusUC getPurchaseStatusUseCase,
	logger logger.Interface,
) *PurchaseHandler {
	return &PurchaseHandler{
		requestUtxoUC:    requestUtxoUC,
		requestAccountUC: requestAccountUC,
		getStatusUC:      getStatusUC,
		logger:           logger,
	}
}

// PurchaseRequest is the body of both purchase endpoints. The amount is a
// decimal string so no precision is lost in JSON.
type PurchaseRequest struct {
	ExternalAccount string `json:"external_account" validate:"required,chainaccount"`
	PurchaseAmount  string `json:"purchase_amount" validate:"required,positive_decimal"`
}

type UtxoPurchaseResponse struct {
	ID             string `json:"id"`
	Address        string `json:"address"`
	AmountDue      string `json:"amount_due"`
	AmountReceived string `json:"amount_received"`
	PurchaseAmount string `json:"purchase_amount"`
	ExpiresAt      string `json:"expires_at"`
}

type AccountPurchaseResponse struct {
	ID             string `json:"id"`
	DepositAccount string `json:"deposit_account"`
	Memo           string `json:"memo"`
	AmountDue      string `json:"amount_due"`
	AmountReceived string `json:"amount_received"`
	PurchaseAmount string `json:"purchase_amount"`
	ExpiresAt      string `json:"expires_at"`
}

// PurchaseStatusResponse carries the active purchase of each variant; a
// variant without one is omitted.
type PurchaseStatusResponse struct {
	Utxo    *UtxoPurchaseResponse    `json:"utxo,omitempty"`
	Account *AccountPurchaseResponse `json:"account,omitempty"`
}

func toUtxoPurchaseResponse(r *usecases.UtxoPurchaseResult) *UtxoPurchaseResponse {
	if r == nil {
		return nil
	}
	return &UtxoPurchaseResponse{
		ID:             r.ID,
		Address:        r.Address,
		AmountDue:      r.AmountDue.String(),
		AmountReceived: r.AmountReceived.String(),
		PurchaseAmount: r.PurchaseAmount.String(),
		ExpiresAt:      biztime.FormatAPI(r.ExpiresAt),
	}
}

func toAccountPurchaseResponse(r *usecases.AccountPurchaseResult) *AccountPurchaseResponse {
	if r == nil {
		return nil
	}
	return &AccountPurchaseResponse{
		ID:             r.ID,
		DepositAccount: r.DepositAccount,
		Memo:           r.Memo,
		AmountDue:      r.AmountDue.String(),
		AmountReceived: r.AmountReceived.String(),
		PurchaseAmount: r.PurchaseAmount.String(),
		ExpiresAt:      biztime.FormatAPI(r.ExpiresAt),
	}
}

// bindPurchaseRequest decodes and validates the body. On failure the error
// response has already been written.
func (h *PurchaseHandler) bindPurchaseRequest(c *gin.Context) (usecases.RequestPurchaseCommand, bool) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warnw("failed to bind purchase request", "error", err)
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return usecases.RequestPurchaseCommand{}, false
	}

	req.ExternalAccount = strings.TrimSpace(req.ExternalAccount)
	req.PurchaseAmount = strings.TrimSpace(req.PurchaseAmount)
	if err := utils.ValidateStruct(req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return usecases.RequestPurchaseCommand{}, false
	}

	amount, err := decimal.NewFromString(req.PurchaseAmount)
	if err != nil {
		utils.ErrorResponseWithError(c, errors.NewValidationError("purchase_amount must be a positive decimal number"))
		return usecases.RequestPurchaseCommand{}, false
	}

	return usecases.RequestPurchaseCommand{
		ExternalAccount: req.ExternalAccount,
		PurchaseAmount:  amount,
	}, true
}

// RequestUtxoPurchase handles POST /api/v1/purchases/utxo
func (h *PurchaseHandler) RequestUtxoPurchase(c *gin.Context) {
	cmd, ok := h.bindPurchaseRequest(c)
	if !ok {
		return
	}

	result, err := h.requestUtxoUC.Execute(c.Request.Context(), cmd)
	if err != nil {
		h.logger.Errorw("failed to request utxo purchase", "error", err, "external_account", cmd.ExternalAccount)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.CreatedResponse(c, toUtxoPurchaseResponse(result), "purchase created")
}

// RequestAccountPurchase handles POST /api/v1/purchases/account
func (h *PurchaseHandler) RequestAccountPurchase(c *gin.Context) {
	cmd, ok := h.bindPurchaseRequest(c)
	if !ok {
		return
	}

	result, err := h.requestAccountUC.Execute(c.Request.Context(), cmd)
	if err != nil {
		h.logger.Errorw("failed to request account purchase", "error", err, "external_account", cmd.ExternalAccount)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.CreatedResponse(c, toAccountPurchaseResponse(result), "purchase created")
}

// GetPurchaseStatus handles GET /api/v1/purchases/:account
func (h *PurchaseHandler) GetPurchaseStatus(c *gin.Context) {
	account := c.Param("account")
	if !utils.IsChainAccount(account) {
		utils.ErrorResponseWithError(c, errors.NewValidationError("invalid external account"))
		return
	}

	status, err := h.getStatusUC.Execute(c.Request.Context(), account)
	if err != nil {
		h.logger.Errorw("failed to get purchase status", "error", err, "external_account", account)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", PurchaseStatusResponse{
		Utxo:    toUtxoPurchaseResponse(status.Utxo),
		Account: toAccountPurchaseResponse(status.Account),
	})
}
