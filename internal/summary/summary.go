// Package summary serves the cached trading aggregate: starting capital,
// current balance, and net trading profit/loss.
package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yourorg/tradesim/internal/cache"
	"github.com/yourorg/tradesim/internal/domain"
	"github.com/yourorg/tradesim/internal/history"
	"github.com/yourorg/tradesim/internal/ledger"
)

const DefaultTTL = 300 * time.Second

type Service struct {
	store  ledger.Store
	engine *history.Engine
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store ledger.Store, engine *history.Engine, c cache.Cache, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		engine: engine,
		cache:  c,
		ttl:    DefaultTTL,
		logger: logger,
		now:    time.Now,
	}
}

func cacheKey(userID uuid.UUID) string {
	return "summary:user:" + userID.String()
}

// Get returns the cached summary, computing and storing it on a miss.
// Staleness up to the TTL is accepted; settled orders invalidate eagerly.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*domain.TradingSummary, error) {
	if data, ok, err := s.cache.Get(ctx, cacheKey(userID)); err != nil {
		s.logger.Warn("summary cache read failed", "user_id", userID, "err", err)
	} else if ok {
		var cached domain.TradingSummary
		if err := json.Unmarshal(data, &cached); err == nil {
			return &cached, nil
		}
	}

	computed, err := s.compute(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(computed); err == nil {
		if err := s.cache.Set(ctx, cacheKey(userID), data, s.ttl); err != nil {
			s.logger.Warn("summary cache write failed", "user_id", userID, "err", err)
		}
	}
	return computed, nil
}

func (s *Service) compute(ctx context.Context, userID uuid.UUID) (*domain.TradingSummary, error) {
	txns, err := s.store.Transactions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	starting := decimal.Zero
	deposited := decimal.Zero
	for _, txn := range txns {
		if txn.Type != domain.TxnFundAddition {
			continue
		}
		if starting.IsZero() && deposited.IsZero() {
			starting = txn.Amount
		}
		deposited = deposited.Add(txn.Amount)
	}

	bal, err := s.store.Balance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}

	now := s.now()
	holdings, err := s.engine.HoldingsAt(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("replay holdings: %w", err)
	}
	totalValue := bal.CashBalance.Add(s.engine.PortfolioValueAt(ctx, holdings, now))

	netPL := totalValue.Sub(deposited)
	result := &domain.TradingSummary{
		StartingCapital: starting,
		CurrentBalance:  bal.CashBalance,
		TradingProfit:   decimal.Zero,
		TradingLoss:     decimal.Zero,
	}
	if netPL.IsPositive() {
		result.TradingProfit = netPL
	} else {
		result.TradingLoss = netPL.Abs()
	}
	return result, nil
}

// Invalidate drops one user's cached summary. The executor calls it on every
// settle; fund additions deliberately do not.
func (s *Service) Invalidate(ctx context.Context, userID uuid.UUID) error {
	return s.cache.Delete(ctx, cacheKey(userID))
}

// InvalidateAll flushes every cached summary, for operator use after bulk
// corrections.
func (s *Service) InvalidateAll(ctx context.Context) error {
	return s.cache.DeletePattern(ctx, "summary:user:*")
}
