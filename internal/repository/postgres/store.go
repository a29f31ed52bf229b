package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/yourorg/tradesim/internal/ledger"
)

// Store implements ledger.Store on postgres via sqlx.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

type storeTx struct {
	tx *sqlx.Tx
}

var (
	_ ledger.Store = (*Store)(nil)
	_ ledger.Tx    = (*storeTx)(nil)
)

func (s *Store) RunInTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&storeTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
