package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/yourorg/tradesim/internal/domain"
)

func (s *Store) Positions(ctx context.Context, userID uuid.UUID) ([]domain.Position, error) {
	var positions []domain.Position
	err := s.db.SelectContext(ctx, &positions,
		`SELECT * FROM positions WHERE user_id = $1 ORDER BY symbol`, userID)
	if err != nil {
		return nil, err
	}
	return positions, nil
}

func (t *storeTx) PositionForUpdate(ctx context.Context, userID uuid.UUID, symbol string) (*domain.Position, error) {
	var p domain.Position
	err := t.tx.GetContext(ctx, &p,
		`SELECT * FROM positions WHERE user_id = $1 AND symbol = $2 FOR UPDATE`, userID, symbol)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (t *storeTx) SavePosition(ctx context.Context, p *domain.Position) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO positions (id, user_id, symbol, quantity, avg_price)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, symbol) DO UPDATE SET
			quantity   = EXCLUDED.quantity,
			avg_price  = EXCLUDED.avg_price,
			updated_at = NOW()`,
		p.ID, p.UserID, p.Symbol, p.Quantity, p.AvgPrice)
	return err
}

func (t *storeTx) DeletePosition(ctx context.Context, userID uuid.UUID, symbol string) error {
	_, err := t.tx.ExecContext(ctx,
		`DELETE FROM positions WHERE user_id = $1 AND symbol = $2`, userID, symbol)
	return err
}
