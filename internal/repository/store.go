package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"finpay-ledger/internal/domain"
	apperrors "finpay-ledger/internal/errors"
)

// Store provides a unified interface for all repository operations with transaction support
type Store struct {
	db       *sql.DB
	executor SQLExecutor
	dialect  Dialect
	logger   *slog.Logger
}

// NewStore creates a new Store instance
func NewStore(db *sql.DB, dialect Dialect, logger *slog.Logger) *Store {
	return &Store{
		db:       db,
		executor: db,
		dialect:  dialect,
		logger:   logger,
	}
}

// Account returns an AccountRepository using the current executor
func (s *Store) Account() domain.AccountRepository {
	return NewAccountRepository(s.executor, s.dialect, s.logger)
}

// Transaction returns a TransactionRepository using the current executor
func (s *Store) Transaction() domain.TransactionRepository {
	return NewTransactionRepository(s.executor, s.dialect, s.logger)
}

// Ping checks that the database is reachable. A transactional store is
// always considered reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

// WithTransaction executes fn within a database transaction. Every repository
// obtained from the Store passed to fn shares the transaction; the work is
// committed only if fn returns nil and is rolled back otherwise, including
// when ctx is cancelled.
func (s *Store) WithTransaction(ctx context.Context, fn func(*Store) error) (err error) {
	// Only the root store can begin transactions
	if s.db == nil {
		return apperrors.ErrCannotBeginTransaction
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError(s.logger, "begin transaction", err)
	}

	txStore := &Store{
		executor: tx,
		dialect:  s.dialect,
		logger:   s.logger,
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("Failed to roll back transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return storageError(s.logger, "commit transaction", err)
	}
	return nil
}

// storageError turns an unexpected driver failure into StorageUnavailable.
func storageError(logger *slog.Logger, op string, err error) error {
	logger.Error("Storage operation failed", "operation", op, "error", err)
	return apperrors.ErrStorageUnavailable.WithDetails(op + ": " + err.Error())
}
