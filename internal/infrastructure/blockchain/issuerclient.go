package blockchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iscoin/purchase/internal/application/purchase/chain"
	"github.com/iscoin/purchase/internal/shared/logger"
)

const apiKeyHeader = "X-API-Key"

type issueTransferRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Quantity string `json:"quantity"`
	Memo     string `json:"memo"`
}

// IssuerClient submits token transfers from the issuer account through a
// signing service.
type IssuerClient struct {
	baseURL       string
	issuerAccount string
	apiKey        string
	decimals      int32
	httpClient    *http.Client
	logger        logger.Interface
}

func NewIssuerClient(baseURL, issuerAccount, apiKey string, decimals int32, timeout time.Duration, logger logger.Interface) *IssuerClient {
	return &IssuerClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		issuerAccount: issuerAccount,
		apiKey:        apiKey,
		decimals:      decimals,
		httpClient:    newHTTPClient(timeout),
		logger:        logger,
	}
}

var _ chain.TransferSubmitter = (*IssuerClient)(nil)

func (c *IssuerClient) SubmitTransfer(ctx context.Context, destination string, amount decimal.Decimal, currencyCode string) error {
	if destination == "" {
		return fmt.Errorf("destination is required")
	}
	if !amount.IsPositive() {
		return fmt.Errorf("transfer amount must be positive, got %s", amount)
	}

	payload, err := json.Marshal(issueTransferRequest{
		From:     c.issuerAccount,
		To:       destination,
		Quantity: FormatAsset(amount, c.decimals, currencyCode),
		Memo:     "",
	})
	if err != nil {
		return fmt.Errorf("failed to encode transfer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transfers", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to submit transfer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("issuer rejected transfer with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	c.logger.Infow("token transfer submitted",
		"to", destination,
		"quantity", FormatAsset(amount, c.decimals, currencyCode),
	)
	return nil
}
