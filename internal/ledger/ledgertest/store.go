// Package ledgertest provides an in-memory ledger.Store for tests. RunInTx
// mutates a copy of the state and swaps it in on success, so a failed
// settlement leaves no partial writes, matching the postgres transaction
// semantics.
package ledgertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yourorg/tradesim/internal/domain"
	"github.com/yourorg/tradesim/internal/ledger"
)

type state struct {
	balances     map[uuid.UUID]domain.AccountBalance
	positions    map[uuid.UUID]map[string]domain.Position
	orders       []domain.TradeOrder
	transactions []domain.Transaction
	nextTxnID    int64
}

type Store struct {
	mu sync.Mutex
	st state

	// Now is the clock used for lazily created rows and transaction
	// timestamps. Tests override it for deterministic history.
	Now func() time.Time
}

func NewStore() *Store {
	return &Store{
		st: state{
			balances:  make(map[uuid.UUID]domain.AccountBalance),
			positions: make(map[uuid.UUID]map[string]domain.Position),
			nextTxnID: 1,
		},
		Now: time.Now,
	}
}

func (s *state) clone() state {
	c := state{
		balances:     make(map[uuid.UUID]domain.AccountBalance, len(s.balances)),
		positions:    make(map[uuid.UUID]map[string]domain.Position, len(s.positions)),
		orders:       append([]domain.TradeOrder(nil), s.orders...),
		transactions: append([]domain.Transaction(nil), s.transactions...),
		nextTxnID:    s.nextTxnID,
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for user, bySymbol := range s.positions {
		m := make(map[string]domain.Position, len(bySymbol))
		for sym, p := range bySymbol {
			m[sym] = p
		}
		c.positions[user] = m
	}
	return c
}

type memTx struct {
	st  *state
	now func() time.Time
}

func (s *Store) RunInTx(_ context.Context, fn func(tx ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.st.clone()
	if err := fn(&memTx{st: &working, now: s.Now}); err != nil {
		return err
	}
	s.st = working
	return nil
}

func (t *memTx) BalanceForUpdate(_ context.Context, userID uuid.UUID) (*domain.AccountBalance, error) {
	b, ok := t.st.balances[userID]
	if !ok {
		b = domain.AccountBalance{
			UserID:      userID,
			CashBalance: decimal.Zero,
			CreatedAt:   t.now(),
			UpdatedAt:   t.now(),
		}
		t.st.balances[userID] = b
	}
	out := b
	return &out, nil
}

func (t *memTx) SetBalance(_ context.Context, userID uuid.UUID, amount decimal.Decimal) error {
	b := t.st.balances[userID]
	b.UserID = userID
	b.CashBalance = amount
	b.UpdatedAt = t.now()
	t.st.balances[userID] = b
	return nil
}

func (t *memTx) PositionForUpdate(_ context.Context, userID uuid.UUID, symbol string) (*domain.Position, error) {
	p, ok := t.st.positions[userID][symbol]
	if !ok {
		return nil, nil
	}
	out := p
	return &out, nil
}

func (t *memTx) SavePosition(_ context.Context, p *domain.Position) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if t.st.positions[p.UserID] == nil {
		t.st.positions[p.UserID] = make(map[string]domain.Position)
	}
	p.UpdatedAt = t.now()
	t.st.positions[p.UserID][p.Symbol] = *p
	return nil
}

func (t *memTx) DeletePosition(_ context.Context, userID uuid.UUID, symbol string) error {
	delete(t.st.positions[userID], symbol)
	return nil
}

func (t *memTx) InsertOrder(_ context.Context, o *domain.TradeOrder) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.ExecutedAt.IsZero() {
		o.ExecutedAt = t.now()
	}
	t.st.orders = append(t.st.orders, *o)
	return nil
}

func (t *memTx) InsertTransaction(_ context.Context, txn *domain.Transaction) error {
	txn.ID = t.st.nextTxnID
	t.st.nextTxnID++
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = t.now()
	}
	t.st.transactions = append(t.st.transactions, *txn)
	return nil
}

func (s *Store) Balance(_ context.Context, userID uuid.UUID) (*domain.AccountBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.st.balances[userID]
	if !ok {
		b = domain.AccountBalance{
			UserID:      userID,
			CashBalance: decimal.Zero,
			CreatedAt:   s.Now(),
			UpdatedAt:   s.Now(),
		}
		s.st.balances[userID] = b
	}
	out := b
	return &out, nil
}

func (s *Store) Positions(_ context.Context, userID uuid.UUID) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, p := range s.st.positions[userID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *Store) Orders(_ context.Context, userID uuid.UUID) ([]domain.TradeOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TradeOrder
	for _, o := range s.st.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExecutedAt.After(out[j].ExecutedAt) })
	return out, nil
}

func (s *Store) OrdersThrough(_ context.Context, userID uuid.UUID, until time.Time) ([]domain.TradeOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TradeOrder
	for _, o := range s.st.orders {
		if o.UserID == userID && o.Status == domain.StatusFilled && o.ExecutedAt.Before(until) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExecutedAt.Before(out[j].ExecutedAt) })
	return out, nil
}

func (s *Store) Transactions(_ context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	return s.TransactionsThrough(context.Background(), userID, time.Time{})
}

func (s *Store) TransactionsThrough(_ context.Context, userID uuid.UUID, until time.Time) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Transaction
	for _, txn := range s.st.transactions {
		if txn.UserID != userID {
			continue
		}
		if !until.IsZero() && !txn.CreatedAt.Before(until) {
			continue
		}
		out = append(out, txn)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ ledger.Store = (*Store)(nil)
