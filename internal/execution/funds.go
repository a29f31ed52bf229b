package execution

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yourorg/tradesim/internal/domain"
	"github.com/yourorg/tradesim/internal/ledger"
)

// AddFunds credits a student's account and records the fund_addition
// transaction, both in one unit. It bypasses the order path entirely and
// does not touch the summary cache; the summary's TTL bounds the staleness
// window after a deposit.
func (e *Executor) AddFunds(ctx context.Context, initiatorID, userID uuid.UUID, amount decimal.Decimal) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("fund amount must be positive, got %s", amount)
	}
	amount = domain.RoundMoney(amount)

	txn := domain.Transaction{
		UserID:      userID,
		InitiatorID: initiatorID,
		Amount:      amount,
		Type:        domain.TxnFundAddition,
	}
	err := e.store.RunInTx(ctx, func(tx ledger.Tx) error {
		bal, err := tx.BalanceForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("get balance: %w", err)
		}
		if err := tx.SetBalance(ctx, userID, bal.CashBalance.Add(amount)); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		if err := tx.InsertTransaction(ctx, &txn); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("funds added",
		"user_id", userID, "initiator_id", initiatorID, "amount", amount)
	return &txn, nil
}
