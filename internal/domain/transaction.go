package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	KindTransfer TransactionKind = "transfer"
	KindTopUp    TransactionKind = "topup"
)

type TransactionStatus string

const (
	StatusPending TransactionStatus = "pending"
	StatusSuccess TransactionStatus = "success"
	StatusFailed  TransactionStatus = "failed"
)

// MonetaryScale is the number of decimal places an amount may carry.
const MonetaryScale = 2

// MaxAmount caps a single transfer, top-up or opening balance.
var MaxAmount = decimal.NewFromInt(10_000_000_000)

type Transaction struct {
	ID             uuid.UUID         `json:"id"`
	Reference      string            `json:"reference"`
	Seq            int64             `json:"-"`
	FromAccountID  *uuid.UUID        `json:"from_account_id,omitempty"`
	ToAccountID    *uuid.UUID        `json:"to_account_id,omitempty"`
	ToRef          string            `json:"to_ref,omitempty"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency"`
	Kind           TransactionKind   `json:"kind"`
	Status         TransactionStatus `json:"status"`
	IdempotencyKey *uuid.UUID        `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// ErrReferenceTaken is returned by AppendTransaction when the generated
// reference already exists.
var ErrReferenceTaken = errors.New("transaction reference already assigned")

type TransactionRepository interface {
	AppendTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	GetTransactionByIdempotencyKey(ctx context.Context, key uuid.UUID) (*Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status TransactionStatus) (*Transaction, error)
	ListForAccount(ctx context.Context, accountID uuid.UUID, externalRef string) ([]*Transaction, error)
}

// ValidAmount reports whether amount is strictly positive, at most MaxAmount
// and fits the monetary scale.
func ValidAmount(amount decimal.Decimal) bool {
	if !amount.IsPositive() || amount.GreaterThan(MaxAmount) {
		return false
	}
	return amount.Equal(amount.Truncate(MonetaryScale))
}

// CanTransition reports whether a status change is allowed. Only pending
// transactions move, and only to a terminal status.
func (s TransactionStatus) CanTransition(to TransactionStatus) bool {
	if s != StatusPending {
		return false
	}
	return to == StatusSuccess || to == StatusFailed
}

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// Involves reports whether the account took part in the transaction as
// sender or receiver.
func (t *Transaction) Involves(accountID uuid.UUID) bool {
	if t.FromAccountID != nil && *t.FromAccountID == accountID {
		return true
	}
	return t.ToAccountID != nil && *t.ToAccountID == accountID
}

// IsExternal is true for transfers addressed to a recipient outside the system.
func (t *Transaction) IsExternal() bool {
	return t.Kind == KindTransfer && t.ToAccountID == nil
}

// EffectOn returns the signed amount this transaction contributes to the
// account's balance. Pending debits hold funds; pending credits do not count
// until settled.
func (t *Transaction) EffectOn(accountID uuid.UUID) decimal.Decimal {
	effect := decimal.Zero
	if t.Status == StatusFailed {
		return effect
	}
	if t.FromAccountID != nil && *t.FromAccountID == accountID {
		effect = effect.Sub(t.Amount)
	}
	if t.Status == StatusSuccess && t.ToAccountID != nil && *t.ToAccountID == accountID {
		effect = effect.Add(t.Amount)
	}
	return effect
}
