package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"finpay-ledger/internal/domain"
	apperrors "finpay-ledger/internal/errors"
)

const transactionColumns = `seq, id, reference, from_account_id, to_account_id, to_ref, amount, currency, kind, status, idempotency_key, created_at, updated_at`

type transactionRepository struct {
	db      SQLExecutor
	dialect Dialect
	logger  *slog.Logger
}

func NewTransactionRepository(db SQLExecutor, dialect Dialect, logger *slog.Logger) domain.TransactionRepository {
	return &transactionRepository{
		db:      db,
		dialect: dialect,
		logger:  logger,
	}
}

// AppendTransaction inserts tx and fills in Seq and the timestamps.
func (r *transactionRepository) AppendTransaction(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions
		(id, reference, from_account_id, to_account_id, to_ref, amount, currency, kind, status, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING seq
	`

	amount, err := toMinorUnits(tx.Amount)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	err = r.db.QueryRowContext(ctx, r.dialect.Rebind(query),
		tx.ID,
		tx.Reference,
		nullableUUID(tx.FromAccountID),
		nullableUUID(tx.ToAccountID),
		sql.NullString{String: tx.ToRef, Valid: tx.ToRef != ""},
		amount,
		tx.Currency,
		string(tx.Kind),
		string(tx.Status),
		nullableUUID(tx.IdempotencyKey),
		now,
		now,
	).Scan(&tx.Seq)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			switch {
			case strings.Contains(constraint, "idempotency_key"):
				r.logger.Warn("Duplicate idempotency key", "idempotency_key", tx.IdempotencyKey)
				return apperrors.ErrDuplicateTransaction
			case strings.Contains(constraint, "reference"):
				return domain.ErrReferenceTaken
			}
		}
		if checkViolation(err) {
			return apperrors.ErrInvalidAmount
		}
		return storageError(r.logger, "append transaction", err)
	}

	tx.CreatedAt = now
	tx.UpdatedAt = now
	r.logger.Info("Transaction recorded",
		"transaction_id", tx.ID,
		"reference", tx.Reference,
		"kind", tx.Kind,
		"status", tx.Status,
		"amount", tx.Amount)
	return nil
}

func (r *transactionRepository) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

func (r *transactionRepository) GetTransactionByIdempotencyKey(ctx context.Context, key uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE idempotency_key = $1`
	return r.scanOne(ctx, query, key)
}

// UpdateTransactionStatus moves a pending transaction to status. Anything not
// pending is left alone and reported as an invalid transition.
func (r *transactionRepository) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus) (*domain.Transaction, error) {
	if !domain.StatusPending.CanTransition(status) {
		return nil, apperrors.ErrInvalidTransition.WithDetails("target status " + string(status))
	}

	query := `
		UPDATE transactions
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = 'pending'
		RETURNING ` + transactionColumns

	tx, err := r.scanOne(ctx, query, string(status), time.Now().UTC(), id)
	if err == nil {
		r.logger.Info("Transaction status updated", "transaction_id", id, "status", status)
		return tx, nil
	}
	if !errors.Is(err, apperrors.ErrTransactionNotFound) {
		return nil, err
	}

	current, err := r.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	r.logger.Warn("Rejected status transition", "transaction_id", id, "from", current.Status, "to", status)
	return nil, apperrors.ErrInvalidTransition.WithDetails(string(current.Status) + " -> " + string(status))
}

// ListForAccount returns every transaction the account sent or received,
// newest first. externalRef also matches transfers that were addressed to the
// account's reference from outside.
func (r *transactionRepository) ListForAccount(ctx context.Context, accountID uuid.UUID, externalRef string) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE from_account_id = $1 OR to_account_id = $1 OR to_ref = $2
		ORDER BY created_at DESC, seq DESC
	`

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), accountID, externalRef)
	if err != nil {
		return nil, storageError(r.logger, "list transactions", err)
	}
	defer rows.Close()

	transactions := make([]*domain.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, storageError(r.logger, "scan transaction", err)
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(r.logger, "list transactions", err)
	}
	return transactions, nil
}

func (r *transactionRepository) scanOne(ctx context.Context, query string, args ...interface{}) (*domain.Transaction, error) {
	tx, err := scanTransaction(r.db.QueryRowContext(ctx, r.dialect.Rebind(query), args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, storageError(r.logger, "get transaction", err)
	}
	return tx, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var from, to, key uuid.NullUUID
	var toRef sql.NullString
	var amount int64
	var kind, status string

	err := row.Scan(
		&tx.Seq,
		&tx.ID,
		&tx.Reference,
		&from,
		&to,
		&toRef,
		&amount,
		&tx.Currency,
		&kind,
		&status,
		&key,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.FromAccountID = uuidPtr(from)
	tx.ToAccountID = uuidPtr(to)
	tx.IdempotencyKey = uuidPtr(key)
	tx.ToRef = toRef.String
	tx.Amount = fromMinorUnits(amount)
	tx.Kind = domain.TransactionKind(kind)
	tx.Status = domain.TransactionStatus(status)
	return &tx, nil
}

func nullableUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func uuidPtr(n uuid.NullUUID) *uuid.UUID {
	if !n.Valid {
		return nil
	}
	id := n.UUID
	return &id
}
