package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yourorg/tradesim/internal/domain"
)

const (
	DefaultMaxOrders = 10
	DefaultWindow    = time.Minute
)

// Limiter gates order submission frequency with a per-user sliding window of
// admission timestamps. State is process-local and resets on restart; it
// throttles abuse, it does not carry correctness.
type Limiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	history map[uuid.UUID][]time.Time
	now     func() time.Time
}

func New(max int, window time.Duration) *Limiter {
	if max <= 0 {
		max = DefaultMaxOrders
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		max:     max,
		window:  window,
		history: make(map[uuid.UUID][]time.Time),
		now:     time.Now,
	}
}

// Allow admits the call or returns ErrRateLimited. Rejected calls do not
// consume a slot.
func (l *Limiter) Allow(userID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	recent := l.history[userID][:0]
	for _, ts := range l.history[userID] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= l.max {
		l.history[userID] = recent
		return fmt.Errorf("%w: max %d orders per %s", domain.ErrRateLimited, l.max, l.window)
	}

	l.history[userID] = append(recent, now)
	return nil
}
