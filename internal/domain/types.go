package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

type OrderStatus string

// Every order executes synchronously at the quoted price, so FILLED is the
// only status ever persisted.
const (
	StatusFilled OrderStatus = "FILLED"
)

type TransactionType string

const (
	TxnFundAddition TransactionType = "fund_addition"
)

type User struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	Email        string    `db:"email"         json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	IsAdmin      bool      `db:"is_admin"      json:"is_admin"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"    json:"updated_at"`
}

// AccountBalance is the single mutable cash row per user. It is created
// lazily on first balance query or fund addition and mutated only inside a
// settlement or fund-addition transaction.
type AccountBalance struct {
	UserID      uuid.UUID       `db:"user_id"      json:"user_id"`
	CashBalance decimal.Decimal `db:"cash_balance" json:"cash_balance"`
	CreatedAt   time.Time       `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"   json:"updated_at"`
}

// Position holds the cost-basis average for one (user, symbol) pair.
// Quantity is strictly positive while the row exists; a fill that brings it
// to zero deletes the row.
type Position struct {
	ID        uuid.UUID       `db:"id"         json:"id"`
	UserID    uuid.UUID       `db:"user_id"    json:"user_id"`
	Symbol    string          `db:"symbol"     json:"symbol"`
	Quantity  int64           `db:"quantity"   json:"quantity"`
	AvgPrice  decimal.Decimal `db:"avg_price"  json:"avg_price"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// TradeOrder is append-only and the canonical input for historical replay.
type TradeOrder struct {
	ID             uuid.UUID           `db:"id"              json:"id"`
	UserID         uuid.UUID           `db:"user_id"         json:"user_id"`
	Symbol         string              `db:"symbol"          json:"symbol"`
	Side           OrderSide           `db:"side"            json:"side"`
	Quantity       int64               `db:"quantity"        json:"quantity"`
	RequestedPrice decimal.NullDecimal `db:"requested_price" json:"requested_price,omitempty"`
	ExecutedPrice  decimal.Decimal     `db:"executed_price"  json:"executed_price"`
	TotalAmount    decimal.Decimal     `db:"total_amount"    json:"total_amount"`
	Status         OrderStatus         `db:"status"          json:"status"`
	ExecutedAt     time.Time           `db:"executed_at"     json:"executed_at"`
}

// Transaction records cash movements that are not trades, currently only
// administrator fund additions. Together with TradeOrder it forms the full
// cash ledger.
type Transaction struct {
	ID          int64           `db:"id"               json:"id"`
	UserID      uuid.UUID       `db:"user_id"          json:"user_id"`
	InitiatorID uuid.UUID       `db:"initiator_id"     json:"initiator_id"`
	Amount      decimal.Decimal `db:"amount"           json:"amount"`
	Type        TransactionType `db:"transaction_type" json:"transaction_type"`
	CreatedAt   time.Time       `db:"created_at"       json:"created_at"`
}

// Quote is an external value object; the ledger only reads the latest value
// at the moment of use and never persists it.
type Quote struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

type PriceTick struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Size      float64         `json:"size"`
	Timestamp time.Time       `json:"timestamp"`
}

type TradingSummary struct {
	StartingCapital decimal.Decimal `json:"starting_capital"`
	CurrentBalance  decimal.Decimal `json:"current_balance"`
	TradingProfit   decimal.Decimal `json:"trading_profit"`
	TradingLoss     decimal.Decimal `json:"trading_loss"`
}

// RoundMoney rounds to 2 decimal places, half up. Every persisted cash
// amount passes through it.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
