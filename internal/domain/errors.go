package domain

import "errors"

// Business-rule failures surfaced to the caller. None of these are retried
// by the core; the API layer decides what to do with them.
var (
	ErrInvalidQuantity    = errors.New("quantity must be greater than zero")
	ErrRateLimited        = errors.New("order rate limit exceeded")
	ErrQuoteUnavailable   = errors.New("no usable quote for symbol")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrNoPosition         = errors.New("no position held for symbol")
	ErrInsufficientShares = errors.New("insufficient shares to sell")
	ErrDateRangeInvalid   = errors.New("from date is after to date")
	ErrSymbolNotFound     = errors.New("symbol not found")
)
