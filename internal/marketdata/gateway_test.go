package marketdata

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/tradesim/internal/domain"
)

type fakeProvider struct {
	latestCalls int
	price       decimal.Decimal
	err         error
	closes      map[string]decimal.Decimal
}

func (f *fakeProvider) LatestQuote(_ context.Context, symbol string) (domain.Quote, error) {
	f.latestCalls++
	if f.err != nil {
		return domain.Quote{}, f.err
	}
	return domain.Quote{Symbol: symbol, Price: f.price, Timestamp: time.Now()}, nil
}

func (f *fakeProvider) HistoricalClose(_ context.Context, symbol string, day time.Time) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, f.err
	}
	price, ok := f.closes[symbol+"@"+day.Format("2006-01-02")]
	if !ok {
		return decimal.Zero, domain.ErrSymbolNotFound
	}
	return price, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLatestCachesWithinTTL(t *testing.T) {
	provider := &fakeProvider{price: decimal.NewFromInt(100)}
	g := NewGateway(provider, nil, testLogger())
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	q1, err := g.Latest(context.Background(), "AAPL")
	require.NoError(t, err)
	q2, err := g.Latest(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.True(t, q1.Price.Equal(q2.Price))
	assert.Equal(t, 1, provider.latestCalls)

	// Past the TTL the provider is consulted again.
	now = now.Add(6 * time.Second)
	_, err = g.Latest(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 2, provider.latestCalls)
}

func TestLatestMapsProviderFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("connection refused")}
	g := NewGateway(provider, nil, testLogger())

	_, err := g.Latest(context.Background(), "AAPL")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrQuoteUnavailable))
}

func TestLatestRejectsNonPositivePrice(t *testing.T) {
	provider := &fakeProvider{price: decimal.Zero}
	g := NewGateway(provider, nil, testLogger())

	_, err := g.Latest(context.Background(), "AAPL")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrQuoteUnavailable))
}

func TestLatestUnknownSymbol(t *testing.T) {
	provider := &fakeProvider{err: domain.ErrSymbolNotFound}
	g := NewGateway(provider, nil, testLogger())

	_, err := g.Latest(context.Background(), "NOPE")
	assert.True(t, errors.Is(err, domain.ErrSymbolNotFound))
}

func TestHistoricalCloseNotCached(t *testing.T) {
	day := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	provider := &fakeProvider{closes: map[string]decimal.Decimal{
		"AAPL@2024-02-01": decimal.RequireFromString("187.42"),
	}}
	g := NewGateway(provider, nil, testLogger())

	price, err := g.HistoricalClose(context.Background(), "AAPL", day)
	require.NoError(t, err)
	assert.Equal(t, "187.42", price.String())

	_, err = g.HistoricalClose(context.Background(), "MSFT", day)
	assert.True(t, errors.Is(err, domain.ErrSymbolNotFound))
}
