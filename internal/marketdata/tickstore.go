package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yourorg/tradesim/internal/domain"
)

const lastTickTTL = 60 * time.Second

// TickStore shares live price ticks between the ingestion feed, the quote
// gateway and the websocket hub through redis.
type TickStore struct {
	client *redis.Client
}

func NewTickStore(client *redis.Client) *TickStore {
	return &TickStore{client: client}
}

func (s *TickStore) Publish(ctx context.Context, tick domain.PriceTick) error {
	data, err := json.Marshal(tick)
	if err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	pipe.Publish(ctx, "prices."+tick.Symbol, data)
	pipe.Set(ctx, "last_price:"+tick.Symbol, data, lastTickTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// Last returns the most recent tick for symbol, or nil when none is stored.
func (s *TickStore) Last(ctx context.Context, symbol string) (*domain.PriceTick, error) {
	val, err := s.client.Get(ctx, "last_price:"+symbol).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get last tick: %w", err)
	}
	var tick domain.PriceTick
	if err := json.Unmarshal([]byte(val), &tick); err != nil {
		return nil, err
	}
	return &tick, nil
}

func (s *TickStore) Subscribe(ctx context.Context, symbol string) *redis.PubSub {
	return s.client.Subscribe(ctx, "prices."+symbol)
}
