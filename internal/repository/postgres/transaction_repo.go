package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yourorg/tradesim/internal/domain"
)

func (t *storeTx) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	query := `
		INSERT INTO transactions (user_id, initiator_id, amount, transaction_type)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	return t.tx.QueryRowContext(ctx, query,
		txn.UserID, txn.InitiatorID, txn.Amount, txn.Type).
		Scan(&txn.ID, &txn.CreatedAt)
}

func (s *Store) Transactions(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	var txns []domain.Transaction
	err := s.db.SelectContext(ctx, &txns,
		`SELECT * FROM transactions WHERE user_id = $1 ORDER BY id ASC`, userID)
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (s *Store) TransactionsThrough(ctx context.Context, userID uuid.UUID, until time.Time) ([]domain.Transaction, error) {
	var txns []domain.Transaction
	err := s.db.SelectContext(ctx, &txns, `
		SELECT * FROM transactions
		WHERE user_id = $1 AND created_at < $2
		ORDER BY id ASC`,
		userID, until)
	if err != nil {
		return nil, err
	}
	return txns, nil
}
