package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/tradesim/internal/domain"
)

func TestAllowEleventhOrderRejected(t *testing.T) {
	l := New(10, time.Minute)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	alice := uuid.New()
	bob := uuid.New()

	for i := 0; i < 10; i++ {
		require.NoError(t, l.Allow(alice))
		now = now.Add(time.Second)
	}

	err := l.Allow(alice)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRateLimited))

	// A different user in the same window is unaffected.
	require.NoError(t, l.Allow(bob))
}

func TestAllowWindowSlides(t *testing.T) {
	l := New(2, time.Minute)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	user := uuid.New()
	require.NoError(t, l.Allow(user))
	require.NoError(t, l.Allow(user))
	require.Error(t, l.Allow(user))

	// Once the first admission ages out, a slot frees up.
	now = now.Add(61 * time.Second)
	require.NoError(t, l.Allow(user))
}

func TestRejectionDoesNotConsumeSlot(t *testing.T) {
	l := New(1, time.Minute)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	user := uuid.New()
	require.NoError(t, l.Allow(user))
	for i := 0; i < 5; i++ {
		require.Error(t, l.Allow(user))
	}

	now = now.Add(61 * time.Second)
	require.NoError(t, l.Allow(user))
}
