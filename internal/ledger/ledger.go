// Package ledger defines the persistence contract for the trading ledger:
// the mutable current-state rows (balance, positions) and the append-only
// history (orders, transactions) that replay is built on.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yourorg/tradesim/internal/domain"
)

// Tx is the settlement view of the store. Row reads take write locks so
// concurrent orders for the same user serialize on the balance and position
// rows instead of losing updates.
type Tx interface {
	// BalanceForUpdate locks and returns the user's balance row, creating a
	// zero row first if none exists.
	BalanceForUpdate(ctx context.Context, userID uuid.UUID) (*domain.AccountBalance, error)
	SetBalance(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error

	// PositionForUpdate locks and returns the position, or nil when the user
	// holds none.
	PositionForUpdate(ctx context.Context, userID uuid.UUID, symbol string) (*domain.Position, error)
	SavePosition(ctx context.Context, p *domain.Position) error
	DeletePosition(ctx context.Context, userID uuid.UUID, symbol string) error

	InsertOrder(ctx context.Context, o *domain.TradeOrder) error
	InsertTransaction(ctx context.Context, t *domain.Transaction) error
}

// Store is the full persistence collaborator. RunInTx applies fn as a single
// atomic unit: every write commits together or none do.
type Store interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	// Balance creates the row lazily on first query.
	Balance(ctx context.Context, userID uuid.UUID) (*domain.AccountBalance, error)
	Positions(ctx context.Context, userID uuid.UUID) ([]domain.Position, error)

	// Orders lists newest first, for the API surface.
	Orders(ctx context.Context, userID uuid.UUID) ([]domain.TradeOrder, error)
	// OrdersThrough lists filled orders with executed_at before until, oldest
	// first, for replay.
	OrdersThrough(ctx context.Context, userID uuid.UUID, until time.Time) ([]domain.TradeOrder, error)

	// Transactions lists oldest first.
	Transactions(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error)
	TransactionsThrough(ctx context.Context, userID uuid.UUID, until time.Time) ([]domain.Transaction, error)
}
