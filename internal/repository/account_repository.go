package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finpay-ledger/internal/domain"
	apperrors "finpay-ledger/internal/errors"
)

const accountColumns = `id, external_ref, account_no, balance, opening_balance, created_at, updated_at`

type accountRepository struct {
	db      SQLExecutor
	dialect Dialect
	logger  *slog.Logger
}

func NewAccountRepository(db SQLExecutor, dialect Dialect, logger *slog.Logger) domain.AccountRepository {
	return &accountRepository{
		db:      db,
		dialect: dialect,
		logger:  logger,
	}
}

func (r *accountRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, external_ref, account_no, balance, opening_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	balance, err := toMinorUnits(account.Balance)
	if err != nil {
		return err
	}
	opening, err := toMinorUnits(account.OpeningBalance)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, r.dialect.Rebind(query),
		account.ID,
		account.ExternalRef,
		account.AccountNo,
		balance,
		opening,
		now,
		now,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			if strings.Contains(constraint, "account_no") {
				r.logger.Warn("Account number collision", "account_no", account.AccountNo)
				return domain.ErrAccountNoTaken
			}
			r.logger.Warn("Duplicate external reference", "external_ref", account.ExternalRef)
			return apperrors.ErrDuplicateRef
		}
		if checkViolation(err) {
			return apperrors.ErrInvalidAmount.WithDetails("opening balance must not be negative")
		}
		return storageError(r.logger, "create account", err)
	}

	account.CreatedAt = now
	account.UpdatedAt = now
	r.logger.Info("Account created successfully", "account_id", account.ID, "account_no", account.AccountNo)
	return nil
}

func (r *accountRepository) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.scanAccount(ctx, query, id)
}

func (r *accountRepository) GetAccountByRef(ctx context.Context, ref string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE external_ref = $1`
	return r.scanAccount(ctx, query, ref)
}

func (r *accountRepository) GetAccountByNumber(ctx context.Context, accountNo string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_no = $1`
	return r.scanAccount(ctx, query, accountNo)
}

// AdjustBalance adds delta to the balance only if the result stays
// non-negative. The check and the write are the same statement, so two
// concurrent debits can never both pass against the same funds.
func (r *accountRepository) AdjustBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (*domain.Account, error) {
	query := `
		UPDATE accounts
		SET balance = balance + $1, updated_at = $2
		WHERE id = $3 AND balance + $1 >= 0
		RETURNING ` + accountColumns

	cents, err := toMinorUnits(delta)
	if err != nil {
		return nil, err
	}

	account, err := r.scanAccount(ctx, query, cents, time.Now().UTC(), id)
	if err == nil {
		r.logger.Debug("Account balance adjusted", "account_id", id, "delta", delta, "balance", account.Balance)
		return account, nil
	}
	if !errors.Is(err, apperrors.ErrAccountNotFound) {
		return nil, err
	}

	// No row matched: either the account is missing or the guard refused.
	if _, err := r.GetAccount(ctx, id); err != nil {
		return nil, err
	}
	r.logger.Warn("Insufficient funds", "account_id", id, "delta", delta)
	return nil, apperrors.ErrInsufficientFunds
}

// ListAccounts returns every account, oldest first.
func (r *accountRepository) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query))
	if err != nil {
		return nil, storageError(r.logger, "list accounts", err)
	}
	defer rows.Close()

	accounts := make([]*domain.Account, 0)
	for rows.Next() {
		account, err := scanAccountRow(rows)
		if err != nil {
			return nil, storageError(r.logger, "scan account", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(r.logger, "list accounts", err)
	}
	return accounts, nil
}

func (r *accountRepository) scanAccount(ctx context.Context, query string, args ...interface{}) (*domain.Account, error) {
	account, err := scanAccountRow(r.db.QueryRowContext(ctx, r.dialect.Rebind(query), args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, storageError(r.logger, "get account", err)
	}
	return account, nil
}

func scanAccountRow(row rowScanner) (*domain.Account, error) {
	var account domain.Account
	var balance, opening int64

	err := row.Scan(
		&account.ID,
		&account.ExternalRef,
		&account.AccountNo,
		&balance,
		&opening,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.Balance = fromMinorUnits(balance)
	account.OpeningBalance = fromMinorUnits(opening)
	return &account, nil
}

// toMinorUnits converts a two-place decimal to cents for storage. Values
// with more places or outside the BIGINT range are rejected, never truncated.
func toMinorUnits(d decimal.Decimal) (int64, error) {
	shifted := d.Shift(domain.MonetaryScale)
	if !shifted.IsInteger() || !shifted.BigInt().IsInt64() {
		return 0, apperrors.ErrInvalidAmount.WithDetails("amount " + d.String() + " cannot be stored")
	}
	return shifted.IntPart(), nil
}

func fromMinorUnits(v int64) decimal.Decimal {
	return decimal.New(v, -domain.MonetaryScale)
}
