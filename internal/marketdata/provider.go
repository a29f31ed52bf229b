package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yourorg/tradesim/internal/domain"
)

// Provider is the remote market-data collaborator. Both calls are read-only
// and idempotent.
type Provider interface {
	LatestQuote(ctx context.Context, symbol string) (domain.Quote, error)
	HistoricalClose(ctx context.Context, symbol string, day time.Time) (decimal.Decimal, error)
}

// HTTPProvider talks to a Binance-compatible REST API: the ticker endpoint
// for the latest price and the daily klines endpoint for historical closes.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

func NewHTTPProvider(baseURL string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 8 * time.Second},
	}
}

type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func (p *HTTPProvider) LatestQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	endpoint, err := url.Parse(p.baseURL)
	if err != nil {
		return domain.Quote{}, err
	}
	endpoint.Path = "/api/v3/ticker/price"
	q := endpoint.Query()
	q.Set("symbol", symbol)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return domain.Quote{}, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return domain.Quote{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
		return domain.Quote{}, fmt.Errorf("%w: %s", domain.ErrSymbolNotFound, symbol)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, fmt.Errorf("ticker endpoint returned status %d", resp.StatusCode)
	}

	var parsed tickerPriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.Quote{}, err
	}
	price, err := decimal.NewFromString(parsed.Price)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parse ticker price %q: %w", parsed.Price, err)
	}
	return domain.Quote{Symbol: symbol, Price: price, Timestamp: time.Now().UTC()}, nil
}

// HistoricalClose returns the daily close for the trading day containing
// day. Closed trading days are immutable upstream, so callers memoize reuse
// themselves.
func (p *HTTPProvider) HistoricalClose(ctx context.Context, symbol string, day time.Time) (decimal.Decimal, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	endpoint, err := url.Parse(p.baseURL)
	if err != nil {
		return decimal.Zero, err
	}
	endpoint.Path = "/api/v3/klines"
	q := endpoint.Query()
	q.Set("symbol", symbol)
	q.Set("interval", "1d")
	q.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	q.Set("limit", "1")
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrSymbolNotFound, symbol)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("klines endpoint returned status %d", resp.StatusCode)
	}

	var klines [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&klines); err != nil {
		return decimal.Zero, err
	}
	if len(klines) == 0 || len(klines[0]) < 5 {
		return decimal.Zero, fmt.Errorf("%w: no close for %s on %s", domain.ErrSymbolNotFound, symbol, start.Format("2006-01-02"))
	}

	var closeStr string
	if err := json.Unmarshal(klines[0][4], &closeStr); err != nil {
		return decimal.Zero, err
	}
	price, err := decimal.NewFromString(closeStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse close price %q: %w", closeStr, err)
	}
	return price, nil
}
