package gateway

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/tradesim/internal/domain"
)

func TestStatusForError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{domain.ErrQuoteUnavailable, http.StatusServiceUnavailable},
		{domain.ErrSymbolNotFound, http.StatusNotFound},
		{domain.ErrDateRangeInvalid, http.StatusBadRequest},
		{domain.ErrInvalidQuantity, http.StatusUnprocessableEntity},
		{domain.ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{domain.ErrNoPosition, http.StatusUnprocessableEntity},
		{domain.ErrInsufficientShares, http.StatusUnprocessableEntity},
		{fmt.Errorf("wrapped: %w", domain.ErrInsufficientFunds), http.StatusUnprocessableEntity},
		{fmt.Errorf("database on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusForError(tc.err), "err=%v", tc.err)
	}
}

func TestOptionalDateRange(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/balance", nil)
	_, _, ok, err := optionalDateRange(r)
	require.NoError(t, err)
	assert.False(t, ok)

	r = httptest.NewRequest(http.MethodGet, "/api/balance?from=2024-01-01&to=2024-01-31", nil)
	from, to, ok, err := optionalDateRange(r)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-01-01", from.Format(dateLayout))
	assert.Equal(t, "2024-01-31", to.Format(dateLayout))

	r = httptest.NewRequest(http.MethodGet, "/api/balance?from=garbage&to=2024-01-31", nil)
	_, _, _, err = optionalDateRange(r)
	assert.Error(t, err)

	// A lone from without to is malformed, not ignored.
	r = httptest.NewRequest(http.MethodGet, "/api/balance?from=2024-01-01", nil)
	_, _, _, err = optionalDateRange(r)
	assert.Error(t, err)
}

func TestRequiredDateRange(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/portfolio/history", nil)
	_, _, err := requiredDateRange(r)
	assert.Error(t, err)
}
