package summary

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/tradesim/internal/cache"
	"github.com/yourorg/tradesim/internal/domain"
	"github.com/yourorg/tradesim/internal/history"
	"github.com/yourorg/tradesim/internal/ledger"
	"github.com/yourorg/tradesim/internal/ledger/ledgertest"
)

type fakeQuotes struct {
	latest map[string]decimal.Decimal
}

func (f *fakeQuotes) HistoricalClose(context.Context, string, time.Time) (decimal.Decimal, error) {
	return decimal.Zero, domain.ErrQuoteUnavailable
}

func (f *fakeQuotes) Latest(_ context.Context, symbol string) (domain.Quote, error) {
	price, ok := f.latest[symbol]
	if !ok {
		return domain.Quote{}, domain.ErrQuoteUnavailable
	}
	return domain.Quote{Symbol: symbol, Price: price, Timestamp: time.Now()}, nil
}

type fixture struct {
	store  *ledgertest.Store
	quotes *fakeQuotes
	svc    *Service
	user   uuid.UUID
}

func newFixture() *fixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := ledgertest.NewStore()
	quotes := &fakeQuotes{latest: map[string]decimal.Decimal{}}
	engine := history.NewEngine(store, quotes, logger)
	return &fixture{
		store:  store,
		quotes: quotes,
		svc:    NewService(store, engine, cache.NewMemory(), logger),
		user:   uuid.New(),
	}
}

func (f *fixture) deposit(t *testing.T, amount string, at time.Time) {
	t.Helper()
	amt := decimal.RequireFromString(amount)
	err := f.store.RunInTx(context.Background(), func(tx ledger.Tx) error {
		bal, err := tx.BalanceForUpdate(context.Background(), f.user)
		if err != nil {
			return err
		}
		if err := tx.SetBalance(context.Background(), f.user, bal.CashBalance.Add(amt)); err != nil {
			return err
		}
		return tx.InsertTransaction(context.Background(), &domain.Transaction{
			UserID: f.user, InitiatorID: uuid.New(),
			Amount: amt, Type: domain.TxnFundAddition, CreatedAt: at,
		})
	})
	require.NoError(t, err)
}

func (f *fixture) trade(t *testing.T, symbol string, side domain.OrderSide, qty int64, price string, at time.Time) {
	t.Helper()
	p := decimal.RequireFromString(price)
	total := domain.RoundMoney(p.Mul(decimal.NewFromInt(qty)))
	err := f.store.RunInTx(context.Background(), func(tx ledger.Tx) error {
		bal, err := tx.BalanceForUpdate(context.Background(), f.user)
		if err != nil {
			return err
		}
		newBal := bal.CashBalance.Sub(total)
		if side == domain.SideSell {
			newBal = bal.CashBalance.Add(total)
		}
		if err := tx.SetBalance(context.Background(), f.user, newBal); err != nil {
			return err
		}
		return tx.InsertOrder(context.Background(), &domain.TradeOrder{
			UserID: f.user, Symbol: symbol, Side: side, Quantity: qty,
			ExecutedPrice: p, TotalAmount: total,
			Status: domain.StatusFilled, ExecutedAt: at,
		})
	})
	require.NoError(t, err)
}

func TestGetComputesProfit(t *testing.T) {
	f := newFixture()
	yesterday := time.Now().UTC().Add(-24 * time.Hour)

	f.deposit(t, "10000.00", yesterday)
	f.deposit(t, "500.00", yesterday.Add(time.Hour))
	f.trade(t, "AAPL", domain.SideBuy, 10, "100.00", yesterday.Add(2*time.Hour))
	f.quotes.latest["AAPL"] = decimal.RequireFromString("150.00")

	got, err := f.svc.Get(context.Background(), f.user)
	require.NoError(t, err)

	assert.Equal(t, "10000", got.StartingCapital.String())
	assert.Equal(t, "9500", got.CurrentBalance.String())
	// 9500 cash + 1500 holdings - 10500 deposited = +500
	assert.Equal(t, "500", got.TradingProfit.String())
	assert.True(t, got.TradingLoss.IsZero())
}

func TestGetComputesLoss(t *testing.T) {
	f := newFixture()
	yesterday := time.Now().UTC().Add(-24 * time.Hour)

	f.deposit(t, "10000.00", yesterday)
	f.trade(t, "AAPL", domain.SideBuy, 10, "100.00", yesterday.Add(time.Hour))
	f.quotes.latest["AAPL"] = decimal.RequireFromString("60.00")

	got, err := f.svc.Get(context.Background(), f.user)
	require.NoError(t, err)

	// 9000 cash + 600 holdings - 10000 deposited = -400
	assert.True(t, got.TradingProfit.IsZero())
	assert.Equal(t, "400", got.TradingLoss.String())
}

func TestGetServesCachedValueUntilInvalidated(t *testing.T) {
	f := newFixture()
	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	f.deposit(t, "10000.00", yesterday)

	first, err := f.svc.Get(context.Background(), f.user)
	require.NoError(t, err)
	assert.Equal(t, "10000", first.CurrentBalance.String())

	// A write that bypasses invalidation is not visible yet.
	f.deposit(t, "500.00", time.Now().UTC())
	stale, err := f.svc.Get(context.Background(), f.user)
	require.NoError(t, err)
	assert.Equal(t, "10000", stale.CurrentBalance.String())

	require.NoError(t, f.svc.Invalidate(context.Background(), f.user))
	fresh, err := f.svc.Get(context.Background(), f.user)
	require.NoError(t, err)
	assert.Equal(t, "10500", fresh.CurrentBalance.String())
}

func TestInvalidateAllFlushesEveryUser(t *testing.T) {
	f := newFixture()
	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	f.deposit(t, "10000.00", yesterday)

	_, err := f.svc.Get(context.Background(), f.user)
	require.NoError(t, err)

	f.deposit(t, "500.00", time.Now().UTC())
	require.NoError(t, f.svc.InvalidateAll(context.Background()))

	fresh, err := f.svc.Get(context.Background(), f.user)
	require.NoError(t, err)
	assert.Equal(t, "10500", fresh.CurrentBalance.String())
}

func TestGetNoHistoryIsAllZero(t *testing.T) {
	f := newFixture()
	got, err := f.svc.Get(context.Background(), f.user)
	require.NoError(t, err)
	assert.True(t, got.StartingCapital.IsZero())
	assert.True(t, got.CurrentBalance.IsZero())
	assert.True(t, got.TradingProfit.IsZero())
	assert.True(t, got.TradingLoss.IsZero())
}
