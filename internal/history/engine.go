// Package history reconstructs point-in-time portfolio state by folding over
// the append-only order and transaction history. It never reads the mutable
// balance or position rows, which is what makes "replayed to today equals
// live state" a checkable invariant.
package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yourorg/tradesim/internal/domain"
	"github.com/yourorg/tradesim/internal/ledger"
)

// QuoteSource is the slice of the quote gateway the engine needs.
type QuoteSource interface {
	Latest(ctx context.Context, symbol string) (domain.Quote, error)
	HistoricalClose(ctx context.Context, symbol string, day time.Time) (decimal.Decimal, error)
}

type Engine struct {
	store  ledger.Store
	quotes QuoteSource
	logger *slog.Logger
}

func NewEngine(store ledger.Store, quotes QuoteSource, logger *slog.Logger) *Engine {
	return &Engine{store: store, quotes: quotes, logger: logger}
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// dayEnd is the exclusive upper bound for "on or before this day".
func dayEnd(day time.Time) time.Time {
	return Day(day).Add(24 * time.Hour)
}

// HoldingsAt folds the filled orders up to and including date into a
// symbol -> quantity map.
func (e *Engine) HoldingsAt(ctx context.Context, userID uuid.UUID, date time.Time) (map[string]int64, error) {
	orders, err := e.store.OrdersThrough(ctx, userID, dayEnd(date))
	if err != nil {
		return nil, err
	}
	return foldHoldings(nil, orders), nil
}

func foldHoldings(seed map[string]int64, orders []domain.TradeOrder) map[string]int64 {
	holdings := make(map[string]int64, len(seed))
	for sym, qty := range seed {
		holdings[sym] = qty
	}
	for _, o := range orders {
		switch o.Side {
		case domain.SideBuy:
			holdings[o.Symbol] += o.Quantity
		case domain.SideSell:
			holdings[o.Symbol] -= o.Quantity
		}
		if holdings[o.Symbol] <= 0 {
			delete(holdings, o.Symbol)
		}
	}
	return holdings
}

// CashBalanceAt replays fund additions and trade cash flows up to and
// including date.
func (e *Engine) CashBalanceAt(ctx context.Context, userID uuid.UUID, date time.Time) (decimal.Decimal, error) {
	until := dayEnd(date)
	txns, err := e.store.TransactionsThrough(ctx, userID, until)
	if err != nil {
		return decimal.Zero, err
	}
	orders, err := e.store.OrdersThrough(ctx, userID, until)
	if err != nil {
		return decimal.Zero, err
	}

	cash := decimal.Zero
	for _, txn := range txns {
		if txn.Type == domain.TxnFundAddition {
			cash = cash.Add(txn.Amount)
		}
	}
	for _, o := range orders {
		switch o.Side {
		case domain.SideBuy:
			cash = cash.Sub(o.TotalAmount)
		case domain.SideSell:
			cash = cash.Add(o.TotalAmount)
		}
	}
	return cash, nil
}

// PortfolioValueAt prices the holdings as of date. Lookups run concurrently,
// one per symbol; a symbol whose price cannot be resolved contributes zero
// and is logged, it never fails the whole valuation.
func (e *Engine) PortfolioValueAt(ctx context.Context, holdings map[string]int64, date time.Time) decimal.Decimal {
	if len(holdings) == 0 {
		return decimal.Zero
	}

	var (
		mu    sync.Mutex
		total decimal.Decimal
		wg    sync.WaitGroup
	)
	for symbol, qty := range holdings {
		if qty <= 0 {
			continue
		}
		wg.Add(1)
		go func(symbol string, qty int64) {
			defer wg.Done()
			price, ok := e.priceAt(ctx, symbol, date)
			if !ok {
				return
			}
			value := price.Mul(decimal.NewFromInt(qty))
			mu.Lock()
			total = total.Add(value)
			mu.Unlock()
		}(symbol, qty)
	}
	wg.Wait()
	return total
}

func (e *Engine) priceAt(ctx context.Context, symbol string, date time.Time) (decimal.Decimal, bool) {
	price, err := e.quotes.HistoricalClose(ctx, symbol, date)
	if err == nil {
		return price, true
	}
	quote, err2 := e.quotes.Latest(ctx, symbol)
	if err2 == nil {
		return quote.Price, true
	}
	e.logger.Warn("no price for valuation, degrading to zero",
		"symbol", symbol, "date", Day(date).Format("2006-01-02"),
		"close_err", err, "latest_err", err2)
	return decimal.Zero, false
}

type DailyValue struct {
	Date  time.Time       `json:"date"`
	Value decimal.Decimal `json:"value"`
}

// PortfolioHistory produces one valuation per calendar day in [from, to],
// carrying holdings forward so days without trades still get a point.
func (e *Engine) PortfolioHistory(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]DailyValue, error) {
	from, to = Day(from), Day(to)
	if from.After(to) {
		return nil, domain.ErrDateRangeInvalid
	}

	holdings, err := e.HoldingsAt(ctx, userID, from.AddDate(0, 0, -1))
	if err != nil {
		return nil, err
	}
	orders, err := e.store.OrdersThrough(ctx, userID, dayEnd(to))
	if err != nil {
		return nil, err
	}

	byDay := make(map[time.Time][]domain.TradeOrder)
	for _, o := range orders {
		d := Day(o.ExecutedAt)
		if d.Before(from) {
			continue
		}
		byDay[d] = append(byDay[d], o)
	}

	var points []DailyValue
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		holdings = foldHoldings(holdings, byDay[day])
		points = append(points, DailyValue{
			Date:  day,
			Value: e.PortfolioValueAt(ctx, holdings, day),
		})
	}
	return points, nil
}

type DailyBalance struct {
	Date time.Time       `json:"date"`
	Cash decimal.Decimal `json:"cash"`
}

// BalanceHistory replays the cash ledger into one balance per calendar day
// in [from, to].
func (e *Engine) BalanceHistory(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]DailyBalance, error) {
	from, to = Day(from), Day(to)
	if from.After(to) {
		return nil, domain.ErrDateRangeInvalid
	}

	cash, err := e.CashBalanceAt(ctx, userID, from.AddDate(0, 0, -1))
	if err != nil {
		return nil, err
	}
	until := dayEnd(to)
	txns, err := e.store.TransactionsThrough(ctx, userID, until)
	if err != nil {
		return nil, err
	}
	orders, err := e.store.OrdersThrough(ctx, userID, until)
	if err != nil {
		return nil, err
	}

	deltaByDay := make(map[time.Time]decimal.Decimal)
	add := func(day time.Time, amount decimal.Decimal) {
		deltaByDay[day] = deltaByDay[day].Add(amount)
	}
	for _, txn := range txns {
		if txn.Type == domain.TxnFundAddition {
			add(Day(txn.CreatedAt), txn.Amount)
		}
	}
	for _, o := range orders {
		if o.Side == domain.SideBuy {
			add(Day(o.ExecutedAt), o.TotalAmount.Neg())
		} else {
			add(Day(o.ExecutedAt), o.TotalAmount)
		}
	}

	var points []DailyBalance
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		cash = cash.Add(deltaByDay[day])
		points = append(points, DailyBalance{Date: day, Cash: cash})
	}
	return points, nil
}

type PnLReport struct {
	StartValue  decimal.Decimal `json:"start_value"`
	EndValue    decimal.Decimal `json:"end_value"`
	NetCashFlow decimal.Decimal `json:"net_cash_flow"`
	PeriodPnL   decimal.Decimal `json:"period_pnl"`
}

// PeriodPnL computes profit over (from, to], excluding deposits made inside
// the window so a mid-period fund addition never shows up as investment
// gain.
func (e *Engine) PeriodPnL(ctx context.Context, userID uuid.UUID, from, to time.Time) (*PnLReport, error) {
	from, to = Day(from), Day(to)
	if from.After(to) {
		return nil, domain.ErrDateRangeInvalid
	}

	startCash, err := e.CashBalanceAt(ctx, userID, from)
	if err != nil {
		return nil, err
	}
	startHoldings, err := e.HoldingsAt(ctx, userID, from)
	if err != nil {
		return nil, err
	}
	endCash, err := e.CashBalanceAt(ctx, userID, to)
	if err != nil {
		return nil, err
	}
	endHoldings, err := e.HoldingsAt(ctx, userID, to)
	if err != nil {
		return nil, err
	}

	startValue := startCash.Add(e.PortfolioValueAt(ctx, startHoldings, from))
	endValue := endCash.Add(e.PortfolioValueAt(ctx, endHoldings, to))

	// Fund additions strictly after from, up to and including to. There are
	// no withdrawals in this design, so the flow is always >= 0.
	netFlow := decimal.Zero
	txns, err := e.store.TransactionsThrough(ctx, userID, dayEnd(to))
	if err != nil {
		return nil, err
	}
	for _, txn := range txns {
		if txn.Type == domain.TxnFundAddition && !txn.CreatedAt.Before(dayEnd(from)) {
			netFlow = netFlow.Add(txn.Amount)
		}
	}

	return &PnLReport{
		StartValue:  startValue,
		EndValue:    endValue,
		NetCashFlow: netFlow,
		PeriodPnL:   endValue.Sub(startValue).Sub(netFlow),
	}, nil
}
