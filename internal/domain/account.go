package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Account struct {
	ID             uuid.UUID       `json:"account_id"`
	ExternalRef    string          `json:"external_ref"`
	AccountNo      string          `json:"account_no"`
	Balance        decimal.Decimal `json:"balance"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// AccountRepository is the Account Store. AdjustBalance applies delta in a
// single conditional write and refuses to take the balance below zero.
// AdjustBalance is only called inside a LedgerService unit of work, paired
// with the transaction that explains the change; no handler or command
// reaches it directly.
type AccountRepository interface {
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	GetAccountByRef(ctx context.Context, ref string) (*Account, error)
	GetAccountByNumber(ctx context.Context, accountNo string) (*Account, error)
	AdjustBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (*Account, error)
	ListAccounts(ctx context.Context) ([]*Account, error)
}

// ErrAccountNoTaken is returned by CreateAccount when the generated account
// number collides with an existing one. Callers pick a new number and retry.
var ErrAccountNoTaken = errors.New("account number already assigned")
