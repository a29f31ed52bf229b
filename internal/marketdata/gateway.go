package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yourorg/tradesim/internal/domain"
)

const (
	DefaultQuoteTTL     = 5 * time.Second
	DefaultQuoteTimeout = 4 * time.Second
)

type cachedQuote struct {
	quote     domain.Quote
	fetchedAt time.Time
}

// Gateway normalizes latest-quote and historical-close lookups. Latest
// quotes go through a short per-symbol cache so bursts of concurrent
// requests for the same symbol hit the provider once; historical closes are
// never cached here because closed trading days are immutable and callers
// memoize per run.
type Gateway struct {
	provider Provider
	ticks    *TickStore // optional fast path fed by the ingestion stream
	ttl      time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cached map[string]cachedQuote
	now    func() time.Time
}

func NewGateway(provider Provider, ticks *TickStore, logger *slog.Logger) *Gateway {
	return &Gateway{
		provider: provider,
		ticks:    ticks,
		ttl:      DefaultQuoteTTL,
		timeout:  DefaultQuoteTimeout,
		logger:   logger,
		cached:   make(map[string]cachedQuote),
		now:      time.Now,
	}
}

// Latest returns the current quote for symbol. A missing or non-positive
// price is ErrQuoteUnavailable; callers must treat that as "cannot execute",
// never as a zero price.
func (g *Gateway) Latest(ctx context.Context, symbol string) (domain.Quote, error) {
	g.mu.Lock()
	if c, ok := g.cached[symbol]; ok && g.now().Sub(c.fetchedAt) < g.ttl {
		g.mu.Unlock()
		return c.quote, nil
	}
	g.mu.Unlock()

	if quote, ok := g.fromTickStore(ctx, symbol); ok {
		g.store(symbol, quote)
		return quote, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	quote, err := g.provider.LatestQuote(ctx, symbol)
	if err != nil {
		if errors.Is(err, domain.ErrSymbolNotFound) {
			return domain.Quote{}, err
		}
		return domain.Quote{}, fmt.Errorf("%w: %s: %v", domain.ErrQuoteUnavailable, symbol, err)
	}
	if !quote.Price.IsPositive() {
		return domain.Quote{}, fmt.Errorf("%w: %s: non-positive price", domain.ErrQuoteUnavailable, symbol)
	}

	g.store(symbol, quote)
	return quote, nil
}

// HistoricalClose returns the close price for symbol on the given day.
func (g *Gateway) HistoricalClose(ctx context.Context, symbol string, day time.Time) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	price, err := g.provider.HistoricalClose(ctx, symbol, day)
	if err != nil {
		if errors.Is(err, domain.ErrSymbolNotFound) {
			return decimal.Zero, err
		}
		return decimal.Zero, fmt.Errorf("%w: %s@%s: %v", domain.ErrQuoteUnavailable, symbol, day.Format("2006-01-02"), err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s@%s: non-positive close", domain.ErrQuoteUnavailable, symbol, day.Format("2006-01-02"))
	}
	return price, nil
}

func (g *Gateway) fromTickStore(ctx context.Context, symbol string) (domain.Quote, bool) {
	if g.ticks == nil {
		return domain.Quote{}, false
	}
	tick, err := g.ticks.Last(ctx, symbol)
	if err != nil {
		g.logger.Warn("tick store lookup failed", "symbol", symbol, "err", err)
		return domain.Quote{}, false
	}
	if tick == nil || !tick.Price.IsPositive() {
		return domain.Quote{}, false
	}
	return domain.Quote{Symbol: symbol, Price: tick.Price, Timestamp: tick.Timestamp}, true
}

func (g *Gateway) store(symbol string, quote domain.Quote) {
	g.mu.Lock()
	g.cached[symbol] = cachedQuote{quote: quote, fetchedAt: g.now()}
	g.mu.Unlock()
}
