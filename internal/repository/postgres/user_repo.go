package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/yourorg/tradesim/internal/domain"
)

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	u.ID = uuid.New()
	query := `
		INSERT INTO users (id, email, password_hash, is_admin)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`
	return s.db.QueryRowContext(ctx, query, u.ID, u.Email, u.PasswordHash, u.IsAdmin).
		Scan(&u.CreatedAt, &u.UpdatedAt)
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := s.db.GetContext(ctx, &u, `SELECT * FROM users WHERE email = $1`, email)
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}
	return &u, nil
}

func (s *Store) UserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	err := s.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}
	return &u, nil
}
