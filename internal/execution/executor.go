package execution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yourorg/tradesim/internal/domain"
	"github.com/yourorg/tradesim/internal/ledger"
)

// Quotes is the slice of the quote gateway the executor needs.
type Quotes interface {
	Latest(ctx context.Context, symbol string) (domain.Quote, error)
}

// Admitter gates order submission frequency.
type Admitter interface {
	Allow(userID uuid.UUID) error
}

// SummaryInvalidator drops the cached trading summary after a settle.
type SummaryInvalidator interface {
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

// Executor validates and executes orders against the ledger. It is the only
// component that mutates balance and position rows.
type Executor struct {
	store   ledger.Store
	quotes  Quotes
	limiter Admitter
	summary SummaryInvalidator
	logger  *slog.Logger
	now     func() time.Time
}

func NewExecutor(store ledger.Store, quotes Quotes, limiter Admitter, summary SummaryInvalidator, logger *slog.Logger) *Executor {
	return &Executor{
		store:   store,
		quotes:  quotes,
		limiter: limiter,
		summary: summary,
		logger:  logger,
		now:     time.Now,
	}
}

type OrderRequest struct {
	UserID         uuid.UUID
	Symbol         string
	Side           domain.OrderSide
	Quantity       int64
	RequestedPrice *decimal.Decimal // advisory only, never used for pricing
}

type OrderResult struct {
	Order domain.TradeOrder `json:"order"`
	// RealizedPnL is quantity_sold * (executed_price - average_price) on
	// sells, zero on buys. Derived at execution time, not persisted.
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
}

// PlaceOrder runs the full Requested -> Admitted -> Priced -> Settled chain.
// All ledger writes commit as one unit; a failure after pricing leaves no
// partial state and the caller is expected to resubmit.
func (e *Executor) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if err := validateRequest(&req); err != nil {
		return nil, err
	}
	if err := e.limiter.Allow(req.UserID); err != nil {
		return nil, err
	}

	quote, err := e.quotes.Latest(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	qty := decimal.NewFromInt(req.Quantity)
	total := domain.RoundMoney(quote.Price.Mul(qty))

	order := domain.TradeOrder{
		ID:            uuid.New(),
		UserID:        req.UserID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Quantity:      req.Quantity,
		ExecutedPrice: quote.Price,
		TotalAmount:   total,
		Status:        domain.StatusFilled,
		ExecutedAt:    e.now().UTC(),
	}
	if req.RequestedPrice != nil {
		order.RequestedPrice = decimal.NewNullDecimal(*req.RequestedPrice)
	}

	var realized decimal.Decimal
	err = e.store.RunInTx(ctx, func(tx ledger.Tx) error {
		bal, err := tx.BalanceForUpdate(ctx, req.UserID)
		if err != nil {
			return fmt.Errorf("get balance: %w", err)
		}

		var newBalance decimal.Decimal
		switch req.Side {
		case domain.SideBuy:
			if bal.CashBalance.LessThan(total) {
				return fmt.Errorf("%w: need %s, have %s",
					domain.ErrInsufficientFunds, total, bal.CashBalance)
			}
			newBalance = bal.CashBalance.Sub(total)
			if err := e.applyBuy(ctx, tx, &order, quote.Price, qty); err != nil {
				return err
			}
		case domain.SideSell:
			newBalance = bal.CashBalance.Add(total)
			realized, err = e.applySell(ctx, tx, &order, quote.Price, qty)
			if err != nil {
				return err
			}
		}

		if err := tx.SetBalance(ctx, req.UserID, newBalance); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		if err := tx.InsertOrder(ctx, &order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := e.summary.Invalidate(ctx, req.UserID); err != nil {
		e.logger.Warn("summary invalidation failed", "user_id", req.UserID, "err", err)
	}

	e.logger.Info("order settled",
		"user_id", req.UserID, "symbol", req.Symbol, "side", req.Side,
		"quantity", req.Quantity, "executed_price", quote.Price, "total", total)

	return &OrderResult{Order: order, RealizedPnL: realized}, nil
}

func (e *Executor) applyBuy(ctx context.Context, tx ledger.Tx, order *domain.TradeOrder, price, qty decimal.Decimal) error {
	pos, err := tx.PositionForUpdate(ctx, order.UserID, order.Symbol)
	if err != nil {
		return fmt.Errorf("get position: %w", err)
	}
	if pos == nil {
		pos = &domain.Position{
			UserID:   order.UserID,
			Symbol:   order.Symbol,
			Quantity: order.Quantity,
			AvgPrice: price,
		}
	} else {
		// Weighted-average cost basis, all in decimal: no float intermediate
		// ever touches the math.
		oldQty := decimal.NewFromInt(pos.Quantity)
		oldCost := oldQty.Mul(pos.AvgPrice)
		newCost := qty.Mul(price)
		pos.AvgPrice = oldCost.Add(newCost).Div(oldQty.Add(qty))
		pos.Quantity += order.Quantity
	}
	if err := tx.SavePosition(ctx, pos); err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	return nil
}

func (e *Executor) applySell(ctx context.Context, tx ledger.Tx, order *domain.TradeOrder, price, qty decimal.Decimal) (decimal.Decimal, error) {
	pos, err := tx.PositionForUpdate(ctx, order.UserID, order.Symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get position: %w", err)
	}
	if pos == nil {
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrNoPosition, order.Symbol)
	}
	if pos.Quantity < order.Quantity {
		return decimal.Zero, fmt.Errorf("%w: hold %d, selling %d",
			domain.ErrInsufficientShares, pos.Quantity, order.Quantity)
	}

	realized := domain.RoundMoney(price.Sub(pos.AvgPrice).Mul(qty))

	pos.Quantity -= order.Quantity
	if pos.Quantity == 0 {
		if err := tx.DeletePosition(ctx, order.UserID, order.Symbol); err != nil {
			return decimal.Zero, fmt.Errorf("delete position: %w", err)
		}
	} else {
		// Average price is untouched on a partial sell.
		if err := tx.SavePosition(ctx, pos); err != nil {
			return decimal.Zero, fmt.Errorf("save position: %w", err)
		}
	}
	return realized, nil
}

func validateRequest(req *OrderRequest) error {
	if req.Quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	if req.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", domain.ErrSymbolNotFound)
	}
	switch req.Side {
	case domain.SideBuy, domain.SideSell:
		return nil
	default:
		return fmt.Errorf("invalid order side: %q", req.Side)
	}
}
