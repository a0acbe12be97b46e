package blockchain

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iscoin/purchase/internal/application/purchase/chain"
	"github.com/iscoin/purchase/internal/shared/logger"
)

const (
	transferFilter  = "eosio.token:transfer"
	defaultPageSize = 1000
	// Upper bound on pages read for one history query.
	maxHistoryPages = 200
	hyperionTime    = "2006-01-02T15:04:05.000Z"
)

type hyperionAction struct {
	TrxID          string `json:"trx_id"`
	GlobalSequence uint64 `json:"global_sequence"`
	Act            struct {
		Account string `json:"account"`
		Name    string `json:"name"`
		Data    struct {
			From     string `json:"from"`
			To       string `json:"to"`
			Quantity string `json:"quantity"`
			Memo     string `json:"memo"`
		} `json:"data"`
	} `json:"act"`
}

type hyperionActionsResponse struct {
	Actions []hyperionAction `json:"actions"`
}

// HyperionClient reads token transfer history from a Hyperion history API.
type HyperionClient struct {
	baseURL    string
	pageSize   int
	httpClient *http.Client
	logger     logger.Interface
}

// NewHyperionClient creates a client reading pageSize actions per request.
func NewHyperionClient(baseURL string, pageSize int, timeout time.Duration, logger logger.Interface) *HyperionClient {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &HyperionClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		pageSize:   pageSize,
		httpClient: newHTTPClient(timeout),
		logger:     logger,
	}
}

var _ chain.AccountLedgerClient = (*HyperionClient)(nil)

// GetIncomingTransfers pages through the history oldest first until a short
// page comes back. New actions only append to the end in that order, so skip
// offsets stay stable while paging; actions seen twice are dropped by their
// global sequence.
func (c *HyperionClient) GetIncomingTransfers(ctx context.Context, account string, after time.Time) ([]chain.Transfer, error) {
	if account == "" {
		return nil, fmt.Errorf("account is required")
	}

	var (
		transfers []chain.Transfer
		seen      = make(map[uint64]struct{})
		actions   int
	)
	for page := 0; ; page++ {
		if page == maxHistoryPages {
			return nil, fmt.Errorf("transfer history of %s exceeds %d pages", account, maxHistoryPages)
		}

		resp, err := c.fetchPage(ctx, account, after, page*c.pageSize)
		if err != nil {
			return nil, err
		}
		actions += len(resp.Actions)

		for _, action := range resp.Actions {
			if action.GlobalSequence != 0 {
				if _, dup := seen[action.GlobalSequence]; dup {
					continue
				}
				seen[action.GlobalSequence] = struct{}{}
			}
			if transfer, ok := c.toTransfer(account, action); ok {
				transfers = append(transfers, transfer)
			}
		}

		if len(resp.Actions) < c.pageSize {
			break
		}
	}

	c.logger.Debugw("fetched incoming transfers",
		"account", account,
		"actions", actions,
		"incoming", len(transfers),
	)
	return transfers, nil
}

func (c *HyperionClient) fetchPage(ctx context.Context, account string, after time.Time, skip int) (*hyperionActionsResponse, error) {
	q := url.Values{}
	q.Set("account", account)
	q.Set("filter", transferFilter)
	q.Set("sort", "asc")
	q.Set("limit", strconv.Itoa(c.pageSize))
	q.Set("skip", strconv.Itoa(skip))
	if !after.IsZero() {
		q.Set("after", after.UTC().Format(hyperionTime))
	}
	endpoint := c.baseURL + "/v2/history/get_actions?" + q.Encode()

	var resp hyperionActionsResponse
	if err := getJSON(ctx, c.httpClient, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch transfers of %s (skip %d): %w", account, skip, err)
	}
	return &resp, nil
}

func (c *HyperionClient) toTransfer(account string, action hyperionAction) (chain.Transfer, bool) {
	data := action.Act.Data
	if data.To != account {
		return chain.Transfer{}, false
	}
	amount, code, err := ParseAsset(data.Quantity)
	if err != nil {
		c.logger.Warnw("skipping transfer with unparseable quantity",
			"trx_id", action.TrxID,
			"quantity", data.Quantity,
			"error", err,
		)
		return chain.Transfer{}, false
	}
	return chain.Transfer{
		From:         data.From,
		To:           data.To,
		Memo:         data.Memo,
		Amount:       amount,
		CurrencyCode: code,
	}, true
}

// ParseAsset splits an asset string such as "1.2500 EOS" into amount and symbol.
func ParseAsset(quantity string) (decimal.Decimal, string, error) {
	fields := strings.Fields(quantity)
	if len(fields) != 2 {
		return decimal.Zero, "", fmt.Errorf("malformed asset %q", quantity)
	}
	amount, err := decimal.NewFromString(fields[0])
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("malformed asset amount %q: %w", quantity, err)
	}
	return amount, fields[1], nil
}

// FormatAsset renders amount with a fixed number of decimals followed by code.
func FormatAsset(amount decimal.Decimal, decimals int32, code string) string {
	return amount.StringFixed(decimals) + " " + code
}
