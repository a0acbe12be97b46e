package blockchain

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iscoin/purchase/internal/application/purchase/chain"
	"github.com/iscoin/purchase/internal/shared/logger"
)

const satoshiExponent = -8

// insightAddress is the subset of the Insight /addr/{address} response we read.
type insightAddress struct {
	AddrStr          string `json:"addrStr"`
	TotalReceivedSat int64  `json:"totalReceivedSat"`
	BalanceSat       int64  `json:"balanceSat"`
	TxApperances     int    `json:"txApperances"`
}

// InsightClient reads address totals from an Insight block explorer API.
type InsightClient struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.Interface
}

func NewInsightClient(baseURL string, timeout time.Duration, logger logger.Interface) *InsightClient {
	return &InsightClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: newHTTPClient(timeout),
		logger:     logger,
	}
}

var _ chain.UtxoLedgerClient = (*InsightClient)(nil)

// GetReceivedBalance returns the total ever received by address. Spending
// from the address does not lower it.
func (c *InsightClient) GetReceivedBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	if address == "" {
		return decimal.Zero, fmt.Errorf("address is required")
	}

	var resp insightAddress
	endpoint := fmt.Sprintf("%s/addr/%s?noTxList=1", c.baseURL, url.PathEscape(address))
	if err := getJSON(ctx, c.httpClient, endpoint, nil, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch address %s: %w", address, err)
	}

	if resp.TotalReceivedSat < 0 {
		return decimal.Zero, fmt.Errorf("negative total received for %s: %d", address, resp.TotalReceivedSat)
	}

	received := decimal.New(resp.TotalReceivedSat, satoshiExponent)
	c.logger.Debugw("fetched address total",
		"address", address,
		"total_received", received.String(),
		"tx_count", resp.TxApperances,
	)
	return received, nil
}
