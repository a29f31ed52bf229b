package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yourorg/tradesim/internal/domain"
)

func (s *Store) Balance(ctx context.Context, userID uuid.UUID) (*domain.AccountBalance, error) {
	var b domain.AccountBalance
	err := s.db.GetContext(ctx, &b, `
		INSERT INTO account_balances (user_id, cash_balance)
		VALUES ($1, 0)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING *`, userID)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (t *storeTx) BalanceForUpdate(ctx context.Context, userID uuid.UUID) (*domain.AccountBalance, error) {
	// The no-op upsert makes the lazy-created row visible to the FOR UPDATE
	// read in the same transaction.
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO account_balances (user_id, cash_balance)
		VALUES ($1, 0)
		ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return nil, err
	}
	var b domain.AccountBalance
	err := t.tx.GetContext(ctx, &b,
		`SELECT * FROM account_balances WHERE user_id = $1 FOR UPDATE`, userID)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (t *storeTx) SetBalance(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE account_balances SET cash_balance = $1, updated_at = NOW() WHERE user_id = $2`,
		amount, userID)
	return err
}
