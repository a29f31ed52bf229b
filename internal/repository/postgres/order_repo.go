package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yourorg/tradesim/internal/domain"
)

func (t *storeTx) InsertOrder(ctx context.Context, o *domain.TradeOrder) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	query := `
		INSERT INTO trade_orders
			(id, user_id, symbol, side, quantity, requested_price, executed_price, total_amount, status, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING executed_at`
	return t.tx.QueryRowContext(ctx, query,
		o.ID, o.UserID, o.Symbol, o.Side, o.Quantity,
		o.RequestedPrice, o.ExecutedPrice, o.TotalAmount, o.Status, o.ExecutedAt).
		Scan(&o.ExecutedAt)
}

func (s *Store) Orders(ctx context.Context, userID uuid.UUID) ([]domain.TradeOrder, error) {
	var orders []domain.TradeOrder
	err := s.db.SelectContext(ctx, &orders,
		`SELECT * FROM trade_orders WHERE user_id = $1 ORDER BY executed_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) OrdersThrough(ctx context.Context, userID uuid.UUID, until time.Time) ([]domain.TradeOrder, error) {
	var orders []domain.TradeOrder
	err := s.db.SelectContext(ctx, &orders, `
		SELECT * FROM trade_orders
		WHERE user_id = $1 AND status = $2 AND executed_at < $3
		ORDER BY executed_at ASC`,
		userID, domain.StatusFilled, until)
	if err != nil {
		return nil, err
	}
	return orders, nil
}
