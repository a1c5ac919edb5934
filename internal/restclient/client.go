// Package restclient provides the resty-based Binance USD-M futures REST
// client used to bootstrap and recover the order book, and to refresh the
// Volatility Estimator's klines.
//
// Grounded on 0xtitan6-polymarket-mm's internal/exchange/client.go: a resty
// client configured once with base URL, timeout, and a 5xx/err retry
// condition, wrapped by a small typed Client rather than used bare.
package restclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/orderflow/futures-core/internal/model"
	"github.com/orderflow/futures-core/internal/wiremodel"
)

// Client is the REST client for Binance USD-M futures market data.
type Client struct {
	http    *resty.Client
	baseURL string
}

// New constructs a Client against baseURL (e.g. https://fapi.binance.com),
// with a 10s timeout and up to 3 retries on 5xx or transport error.
func New(baseURL string) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})
	return &Client{http: httpClient, baseURL: baseURL}
}

// FetchSnapshot fetches a REST depth snapshot for symbol with a limit of
// 1000, satisfying syncbook.SnapshotFetcher.
func (c *Client) FetchSnapshot(ctx context.Context, symbol string) (uint64, []model.PriceLevel, []model.PriceLevel, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": symbol,
			"limit":  "1000",
		}).
		Get("/fapi/v1/depth")
	if err != nil {
		return 0, nil, nil, fmt.Errorf("depth snapshot request: %w", err)
	}
	if resp.IsError() {
		return 0, nil, nil, fmt.Errorf("depth snapshot: status %d", resp.StatusCode())
	}
	var snap wiremodel.DepthSnapshot
	if err := json.Unmarshal(resp.Body(), &snap); err != nil {
		return 0, nil, nil, fmt.Errorf("decode depth snapshot: %w", err)
	}
	bids, asks, err := snap.ToLevels()
	if err != nil {
		return 0, nil, nil, fmt.Errorf("parse depth snapshot: %w", err)
	}
	return snap.LastUpdateID, bids, asks, nil
}

// FetchRecentKlines fetches the most recent 1-minute klines for symbol,
// satisfying volatility.KlineFetcher.
func (c *Client) FetchRecentKlines(ctx context.Context, symbol string, limit int) ([]wiremodel.Kline, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":   symbol,
			"interval": "1m",
			"limit":    fmt.Sprintf("%d", limit),
		}).
		Get("/fapi/v1/klines")
	if err != nil {
		return nil, fmt.Errorf("klines request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("klines: status %d", resp.StatusCode())
	}
	var raw [][]interface{}
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}
	return wiremodel.ParseKlines(raw)
}

// ForSymbol binds a fixed symbol to this client, returning adapters matching
// syncbook.SnapshotFetcher and volatility.KlineFetcher exactly.
func (c *Client) ForSymbol(symbol string) *SymbolClient {
	return &SymbolClient{client: c, symbol: symbol}
}

// SymbolClient is a Client bound to one trading symbol.
type SymbolClient struct {
	client *Client
	symbol string
}

// FetchSnapshot implements syncbook.SnapshotFetcher.
func (s *SymbolClient) FetchSnapshot(ctx context.Context) (uint64, []model.PriceLevel, []model.PriceLevel, error) {
	return s.client.FetchSnapshot(ctx, s.symbol)
}

// FetchRecentKlines implements volatility.KlineFetcher.
func (s *SymbolClient) FetchRecentKlines(ctx context.Context, limit int) ([]wiremodel.Kline, error) {
	return s.client.FetchRecentKlines(ctx, s.symbol, limit)
}
