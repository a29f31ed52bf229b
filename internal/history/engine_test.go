package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/tradesim/internal/domain"
	"github.com/yourorg/tradesim/internal/ledger"
	"github.com/yourorg/tradesim/internal/ledger/ledgertest"
)

type fakeQuotes struct {
	closes map[string]decimal.Decimal // key: SYMBOL@2006-01-02
	latest map[string]decimal.Decimal
}

func (f *fakeQuotes) HistoricalClose(_ context.Context, symbol string, day time.Time) (decimal.Decimal, error) {
	price, ok := f.closes[symbol+"@"+Day(day).Format("2006-01-02")]
	if !ok {
		return decimal.Zero, domain.ErrQuoteUnavailable
	}
	return price, nil
}

func (f *fakeQuotes) Latest(_ context.Context, symbol string) (domain.Quote, error) {
	price, ok := f.latest[symbol]
	if !ok {
		return domain.Quote{}, domain.ErrQuoteUnavailable
	}
	return domain.Quote{Symbol: symbol, Price: price, Timestamp: time.Now()}, nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newEngine(store *ledgertest.Store, quotes *fakeQuotes) *Engine {
	return NewEngine(store, quotes, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func seedDeposit(t *testing.T, store *ledgertest.Store, userID uuid.UUID, amount string, at time.Time) {
	t.Helper()
	amt := decimal.RequireFromString(amount)
	err := store.RunInTx(context.Background(), func(tx ledger.Tx) error {
		bal, err := tx.BalanceForUpdate(context.Background(), userID)
		if err != nil {
			return err
		}
		if err := tx.SetBalance(context.Background(), userID, bal.CashBalance.Add(amt)); err != nil {
			return err
		}
		return tx.InsertTransaction(context.Background(), &domain.Transaction{
			UserID:      userID,
			InitiatorID: uuid.New(),
			Amount:      amt,
			Type:        domain.TxnFundAddition,
			CreatedAt:   at,
		})
	})
	require.NoError(t, err)
}

func seedOrder(t *testing.T, store *ledgertest.Store, userID uuid.UUID, symbol string, side domain.OrderSide, qty int64, price string, at time.Time) {
	t.Helper()
	p := decimal.RequireFromString(price)
	total := domain.RoundMoney(p.Mul(decimal.NewFromInt(qty)))
	err := store.RunInTx(context.Background(), func(tx ledger.Tx) error {
		return tx.InsertOrder(context.Background(), &domain.TradeOrder{
			UserID:        userID,
			Symbol:        symbol,
			Side:          side,
			Quantity:      qty,
			ExecutedPrice: p,
			TotalAmount:   total,
			Status:        domain.StatusFilled,
			ExecutedAt:    at,
		})
	})
	require.NoError(t, err)
}

func TestHoldingsAtFoldsHistory(t *testing.T) {
	store := ledgertest.NewStore()
	user := uuid.New()
	e := newEngine(store, &fakeQuotes{})

	seedOrder(t, store, user, "AAPL", domain.SideBuy, 10, "100.00", date(2024, 1, 2).Add(10*time.Hour))
	seedOrder(t, store, user, "MSFT", domain.SideBuy, 5, "300.00", date(2024, 1, 3).Add(10*time.Hour))
	seedOrder(t, store, user, "AAPL", domain.SideSell, 10, "110.00", date(2024, 1, 5).Add(10*time.Hour))

	holdings, err := e.HoldingsAt(context.Background(), user, date(2024, 1, 1))
	require.NoError(t, err)
	assert.Empty(t, holdings)

	holdings, err = e.HoldingsAt(context.Background(), user, date(2024, 1, 3))
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"AAPL": 10, "MSFT": 5}, holdings)

	// The liquidated symbol disappears, it is not kept as a zero entry.
	holdings, err = e.HoldingsAt(context.Background(), user, date(2024, 1, 5))
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"MSFT": 5}, holdings)
}

func TestCashBalanceAtReplaysDepositsAndTrades(t *testing.T) {
	store := ledgertest.NewStore()
	user := uuid.New()
	e := newEngine(store, &fakeQuotes{})

	seedDeposit(t, store, user, "10000.00", date(2024, 1, 1).Add(9*time.Hour))
	seedOrder(t, store, user, "AAPL", domain.SideBuy, 10, "100.00", date(2024, 1, 2).Add(10*time.Hour))
	seedOrder(t, store, user, "AAPL", domain.SideSell, 4, "120.00", date(2024, 1, 4).Add(10*time.Hour))

	cash, err := e.CashBalanceAt(context.Background(), user, date(2024, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, "10000", cash.String())

	cash, err = e.CashBalanceAt(context.Background(), user, date(2024, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, "9000", cash.String())

	cash, err = e.CashBalanceAt(context.Background(), user, date(2024, 1, 4))
	require.NoError(t, err)
	assert.Equal(t, "9480", cash.String())
}

func TestReplayMatchesLiveState(t *testing.T) {
	// Replaying the full history up to today must agree with the mutable
	// rows the settlement path maintains.
	store := ledgertest.NewStore()
	user := uuid.New()
	e := newEngine(store, &fakeQuotes{})
	now := time.Now().UTC()

	seedDeposit(t, store, user, "10000.00", now.Add(-72*time.Hour))
	seedOrder(t, store, user, "AAPL", domain.SideBuy, 50, "100.00", now.Add(-48*time.Hour))
	seedOrder(t, store, user, "AAPL", domain.SideSell, 20, "110.00", now.Add(-24*time.Hour))

	// Maintain the live rows the way the executor would.
	err := store.RunInTx(context.Background(), func(tx ledger.Tx) error {
		if err := tx.SetBalance(context.Background(), user, decimal.RequireFromString("7200.00")); err != nil {
			return err
		}
		return tx.SavePosition(context.Background(), &domain.Position{
			UserID: user, Symbol: "AAPL", Quantity: 30,
			AvgPrice: decimal.RequireFromString("100.00"),
		})
	})
	require.NoError(t, err)

	holdings, err := e.HoldingsAt(context.Background(), user, now)
	require.NoError(t, err)
	positions, err := store.Positions(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, map[string]int64{"AAPL": 30}, holdings)
	assert.EqualValues(t, holdings["AAPL"], positions[0].Quantity)

	cash, err := e.CashBalanceAt(context.Background(), user, now)
	require.NoError(t, err)
	bal, err := store.Balance(context.Background(), user)
	require.NoError(t, err)
	assert.True(t, cash.Equal(bal.CashBalance), "replayed %s live %s", cash, bal.CashBalance)
}

func TestPortfolioValueAtDegradesPerSymbol(t *testing.T) {
	store := ledgertest.NewStore()
	quotes := &fakeQuotes{
		closes: map[string]decimal.Decimal{
			"AAPL@2024-01-05": decimal.RequireFromString("110.00"),
		},
		latest: map[string]decimal.Decimal{
			"MSFT": decimal.RequireFromString("310.00"),
		},
	}
	e := newEngine(store, quotes)

	holdings := map[string]int64{
		"AAPL":  10, // close available
		"MSFT":  2,  // close missing, falls back to latest
		"GHOST": 7,  // nothing available, degrades to zero
	}
	value := e.PortfolioValueAt(context.Background(), holdings, date(2024, 1, 5))
	assert.Equal(t, "1720", value.String())
}

func TestPortfolioHistoryOnePointPerDay(t *testing.T) {
	store := ledgertest.NewStore()
	user := uuid.New()
	quotes := &fakeQuotes{closes: map[string]decimal.Decimal{
		"AAPL@2024-01-02": decimal.RequireFromString("100.00"),
		"AAPL@2024-01-03": decimal.RequireFromString("105.00"),
		"AAPL@2024-01-04": decimal.RequireFromString("103.00"),
		"AAPL@2024-01-05": decimal.RequireFromString("108.00"),
	}}
	e := newEngine(store, quotes)

	seedOrder(t, store, user, "AAPL", domain.SideBuy, 10, "100.00", date(2024, 1, 2).Add(15*time.Hour))

	points, err := e.PortfolioHistory(context.Background(), user, date(2024, 1, 1), date(2024, 1, 5))
	require.NoError(t, err)
	require.Len(t, points, 5)

	assert.Equal(t, date(2024, 1, 1), points[0].Date)
	assert.True(t, points[0].Value.IsZero(), "no holdings before the first buy")
	assert.Equal(t, "1000", points[1].Value.String())
	assert.Equal(t, "1050", points[2].Value.String())
	// No trade on the 4th: holdings carry forward, only the price moves.
	assert.Equal(t, "1030", points[3].Value.String())
	assert.Equal(t, "1080", points[4].Value.String())
}

func TestPortfolioHistoryRejectsInvertedRange(t *testing.T) {
	store := ledgertest.NewStore()
	e := newEngine(store, &fakeQuotes{})
	_, err := e.PortfolioHistory(context.Background(), uuid.New(), date(2024, 1, 5), date(2024, 1, 1))
	assert.True(t, errors.Is(err, domain.ErrDateRangeInvalid))
	_, err = e.BalanceHistory(context.Background(), uuid.New(), date(2024, 1, 5), date(2024, 1, 1))
	assert.True(t, errors.Is(err, domain.ErrDateRangeInvalid))
	_, err = e.PeriodPnL(context.Background(), uuid.New(), date(2024, 1, 5), date(2024, 1, 1))
	assert.True(t, errors.Is(err, domain.ErrDateRangeInvalid))
}

func TestBalanceHistoryFlatBetweenEvents(t *testing.T) {
	store := ledgertest.NewStore()
	user := uuid.New()
	e := newEngine(store, &fakeQuotes{})

	seedDeposit(t, store, user, "5000.00", date(2024, 1, 1).Add(9*time.Hour))
	seedOrder(t, store, user, "AAPL", domain.SideBuy, 10, "100.00", date(2024, 1, 3).Add(10*time.Hour))

	points, err := e.BalanceHistory(context.Background(), user, date(2024, 1, 1), date(2024, 1, 4))
	require.NoError(t, err)
	require.Len(t, points, 4)
	assert.Equal(t, "5000", points[0].Cash.String())
	assert.Equal(t, "5000", points[1].Cash.String())
	assert.Equal(t, "4000", points[2].Cash.String())
	assert.Equal(t, "4000", points[3].Cash.String())
}

func TestPeriodPnLExcludesDeposits(t *testing.T) {
	store := ledgertest.NewStore()
	user := uuid.New()
	// Flat prices across the whole window.
	quotes := &fakeQuotes{closes: map[string]decimal.Decimal{
		"AAPL@2024-01-01": decimal.RequireFromString("100.00"),
		"AAPL@2024-01-10": decimal.RequireFromString("100.00"),
	}}
	e := newEngine(store, quotes)

	seedDeposit(t, store, user, "10000.00", date(2023, 12, 20).Add(9*time.Hour))
	seedOrder(t, store, user, "AAPL", domain.SideBuy, 10, "100.00", date(2023, 12, 21).Add(10*time.Hour))
	// Mid-window deposit must not look like gain.
	seedDeposit(t, store, user, "1000.00", date(2024, 1, 5).Add(9*time.Hour))

	report, err := e.PeriodPnL(context.Background(), user, date(2024, 1, 1), date(2024, 1, 10))
	require.NoError(t, err)
	assert.Equal(t, "1000", report.NetCashFlow.String())
	assert.True(t, report.PeriodPnL.IsZero(), "pnl %s", report.PeriodPnL)
}

func TestPeriodPnLCapturesPriceMove(t *testing.T) {
	store := ledgertest.NewStore()
	user := uuid.New()
	quotes := &fakeQuotes{closes: map[string]decimal.Decimal{
		"AAPL@2024-01-01": decimal.RequireFromString("100.00"),
		"AAPL@2024-01-10": decimal.RequireFromString("120.00"),
	}}
	e := newEngine(store, quotes)

	seedDeposit(t, store, user, "10000.00", date(2023, 12, 20).Add(9*time.Hour))
	seedOrder(t, store, user, "AAPL", domain.SideBuy, 10, "100.00", date(2023, 12, 21).Add(10*time.Hour))

	report, err := e.PeriodPnL(context.Background(), user, date(2024, 1, 1), date(2024, 1, 10))
	require.NoError(t, err)
	// 10 shares moved 100 -> 120.
	assert.Equal(t, "200", report.PeriodPnL.String())
}
