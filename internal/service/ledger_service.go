package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finpay-ledger/internal/config"
	"finpay-ledger/internal/domain"
	apperrors "finpay-ledger/internal/errors"
	"finpay-ledger/internal/repository"
)

const (
	referenceAttempts = 3
	publishTimeout    = 5 * time.Second
)

// LedgerService executes every balance-changing operation as one unit of
// work: either all of its writes commit or none do.
type LedgerService struct {
	store     *repository.Store
	publisher domain.EventPublisher
	cfg       *config.Config
	locks     *accountLocks
	logger    *slog.Logger
}

func NewLedgerService(
	store *repository.Store,
	publisher domain.EventPublisher,
	cfg *config.Config,
	logger *slog.Logger,
) *LedgerService {
	return &LedgerService{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		locks:     newAccountLocks(),
		logger:    logger,
	}
}

type TransferRequest struct {
	SenderID uuid.UUID
	// To is an account id, external reference or account number. Anything
	// that matches no account is treated as an external recipient.
	To             string
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey *uuid.UUID
}

type TopUpRequest struct {
	AccountID      uuid.UUID
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey *uuid.UUID
}

type ReconciliationReport struct {
	AccountID    uuid.UUID       `json:"account_id"`
	Stored       decimal.Decimal `json:"stored"`
	Derived      decimal.Decimal `json:"derived"`
	Drift        decimal.Decimal `json:"drift"`
	Transactions int             `json:"transactions"`
}

func (r *ReconciliationReport) Consistent() bool {
	return r.Drift.IsZero()
}

func (s *LedgerService) Transfer(ctx context.Context, req *TransferRequest) (*domain.Transaction, error) {
	s.logger.Info("Processing transfer",
		"sender_id", req.SenderID,
		"to", req.To,
		"amount", req.Amount,
		"idempotency_key", req.IdempotencyKey)

	currency, err := s.validate(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}
	to := strings.TrimSpace(req.To)
	if to == "" {
		return nil, apperrors.NewAppError(apperrors.InvalidInput, "recipient is required")
	}

	if existing, err := s.findExisting(ctx, req.IdempotencyKey); err != nil || existing != nil {
		if existing != nil && !sentBy(existing, req.SenderID) {
			return nil, apperrors.ErrDuplicateTransaction
		}
		return existing, err
	}

	sender, err := s.store.Account().GetAccount(ctx, req.SenderID)
	if err != nil {
		return nil, err
	}
	recipient, err := s.resolveRecipient(ctx, to)
	if err != nil {
		return nil, err
	}
	if recipient != nil && recipient.ID == sender.ID {
		return nil, apperrors.ErrSameAccountTransfer
	}

	transaction := &domain.Transaction{
		ID:             uuid.New(),
		FromAccountID:  &sender.ID,
		Amount:         req.Amount,
		Currency:       currency,
		Kind:           domain.KindTransfer,
		IdempotencyKey: req.IdempotencyKey,
	}
	lockIDs := []uuid.UUID{sender.ID}
	if recipient != nil {
		transaction.ToAccountID = &recipient.ID
		transaction.Status = domain.StatusSuccess
		lockIDs = append(lockIDs, recipient.ID)
	} else {
		transaction.ToRef = to
		transaction.Status = domain.StatusPending
	}

	unlock := s.locks.lock(lockIDs...)
	defer unlock()

	err = s.record(ctx, transaction, transferPrefix, func(txStore *repository.Store) error {
		// Check and debit happen in one conditional write.
		if _, err := txStore.Account().AdjustBalance(ctx, sender.ID, req.Amount.Neg()); err != nil {
			return err
		}
		if recipient != nil {
			if _, err := txStore.Account().AdjustBalance(ctx, recipient.ID, req.Amount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if existing := s.raceWinner(ctx, err, req.IdempotencyKey); existing != nil {
			if !sentBy(existing, sender.ID) {
				return nil, apperrors.ErrDuplicateTransaction
			}
			return existing, nil
		}
		s.logger.Warn("Transfer failed", "sender_id", sender.ID, "error", err)
		return nil, err
	}

	s.logger.Info("Transfer completed successfully",
		"transaction_id", transaction.ID,
		"reference", transaction.Reference,
		"status", transaction.Status)
	s.publish(ctx, domain.EventTransactionRecorded, transaction)
	return transaction, nil
}

func (s *LedgerService) TopUp(ctx context.Context, req *TopUpRequest) (*domain.Transaction, error) {
	s.logger.Info("Processing top-up", "account_id", req.AccountID, "amount", req.Amount)

	currency, err := s.validate(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}

	if existing, err := s.findExisting(ctx, req.IdempotencyKey); err != nil || existing != nil {
		if existing != nil && (existing.Kind != domain.KindTopUp || !existing.Involves(req.AccountID)) {
			return nil, apperrors.ErrDuplicateTransaction
		}
		return existing, err
	}

	transaction := &domain.Transaction{
		ID:             uuid.New(),
		ToAccountID:    &req.AccountID,
		Amount:         req.Amount,
		Currency:       currency,
		Kind:           domain.KindTopUp,
		Status:         domain.StatusSuccess,
		IdempotencyKey: req.IdempotencyKey,
	}

	unlock := s.locks.lock(req.AccountID)
	defer unlock()

	err = s.record(ctx, transaction, topUpPrefix, func(txStore *repository.Store) error {
		_, err := txStore.Account().AdjustBalance(ctx, req.AccountID, req.Amount)
		return err
	})
	if err != nil {
		if existing := s.raceWinner(ctx, err, req.IdempotencyKey); existing != nil {
			if existing.Kind != domain.KindTopUp || !existing.Involves(req.AccountID) {
				return nil, apperrors.ErrDuplicateTransaction
			}
			return existing, nil
		}
		return nil, err
	}

	s.logger.Info("Top-up completed successfully", "transaction_id", transaction.ID, "reference", transaction.Reference)
	s.publish(ctx, domain.EventTransactionRecorded, transaction)
	return transaction, nil
}

func (s *LedgerService) BalanceOf(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	account, err := s.store.Account().GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// ListTransactions returns the account's transactions, newest first.
func (s *LedgerService) ListTransactions(ctx context.Context, accountID uuid.UUID) ([]*domain.Transaction, error) {
	account, err := s.store.Account().GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.store.Transaction().ListForAccount(ctx, account.ID, account.ExternalRef)
}

func (s *LedgerService) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return s.store.Transaction().GetTransaction(ctx, id)
}

// Settle moves a pending transaction to success or failed. A failed transfer
// gives the held amount back to the sender in the same unit of work.
func (s *LedgerService) Settle(ctx context.Context, id uuid.UUID, status domain.TransactionStatus) (*domain.Transaction, error) {
	s.logger.Info("Settling transaction", "transaction_id", id, "status", status)

	if !status.Valid() {
		return nil, apperrors.NewAppErrorf(apperrors.InvalidInput, "unknown status %q", status)
	}

	current, err := s.store.Transaction().GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransition(status) {
		return nil, apperrors.ErrInvalidTransition.WithDetails(string(current.Status) + " -> " + string(status))
	}

	if current.FromAccountID != nil {
		unlock := s.locks.lock(*current.FromAccountID)
		defer unlock()
	}

	var settled *domain.Transaction
	err = s.store.WithTransaction(ctx, func(txStore *repository.Store) error {
		updated, err := txStore.Transaction().UpdateTransactionStatus(ctx, id, status)
		if err != nil {
			return err
		}
		if status == domain.StatusFailed && updated.FromAccountID != nil {
			if _, err := txStore.Account().AdjustBalance(ctx, *updated.FromAccountID, updated.Amount); err != nil {
				return err
			}
		}
		settled = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Transaction settled", "transaction_id", id, "status", settled.Status)
	s.publish(ctx, domain.EventTransactionSettled, settled)
	return settled, nil
}

// Reconcile recomputes the account balance from its opening balance and the
// transaction log and reports any difference from the stored balance.
func (s *LedgerService) Reconcile(ctx context.Context, accountID uuid.UUID) (*ReconciliationReport, error) {
	account, err := s.store.Account().GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.reconcileAccount(ctx, account)
}

func (s *LedgerService) ReconcileAll(ctx context.Context) ([]*ReconciliationReport, error) {
	accounts, err := s.store.Account().ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	reports := make([]*ReconciliationReport, 0, len(accounts))
	for _, account := range accounts {
		report, err := s.reconcileAccount(ctx, account)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (s *LedgerService) reconcileAccount(ctx context.Context, account *domain.Account) (*ReconciliationReport, error) {
	unlock := s.locks.lock(account.ID)
	defer unlock()

	// Re-read under the lock so the balance and the log describe the same moment.
	account, err := s.store.Account().GetAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	transactions, err := s.store.Transaction().ListForAccount(ctx, account.ID, account.ExternalRef)
	if err != nil {
		return nil, err
	}

	derived := account.OpeningBalance
	for _, tx := range transactions {
		derived = derived.Add(tx.EffectOn(account.ID))
	}

	report := &ReconciliationReport{
		AccountID:    account.ID,
		Stored:       account.Balance,
		Derived:      derived,
		Drift:        account.Balance.Sub(derived),
		Transactions: len(transactions),
	}
	if !report.Consistent() {
		s.logger.Error("Balance drift detected",
			"account_id", account.ID,
			"stored", report.Stored,
			"derived", report.Derived)
	}
	return report, nil
}

func (s *LedgerService) validate(amount decimal.Decimal, currency string) (string, error) {
	if !domain.ValidAmount(amount) {
		return "", apperrors.ErrInvalidAmount
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	if !s.cfg.SupportsCurrency(currency) {
		return "", apperrors.NewAppErrorf(apperrors.InvalidInput, "unsupported currency %q", currency)
	}
	return currency, nil
}

// resolveRecipient looks the recipient up by id, external reference and
// account number in that order. A nil account means an external recipient.
func (s *LedgerService) resolveRecipient(ctx context.Context, to string) (*domain.Account, error) {
	accounts := s.store.Account()
	lookups := make([]func() (*domain.Account, error), 0, 3)
	if id, err := uuid.Parse(to); err == nil {
		lookups = append(lookups, func() (*domain.Account, error) { return accounts.GetAccount(ctx, id) })
	}
	lookups = append(lookups,
		func() (*domain.Account, error) { return accounts.GetAccountByRef(ctx, to) },
		func() (*domain.Account, error) { return accounts.GetAccountByNumber(ctx, to) },
	)

	for _, lookup := range lookups {
		account, err := lookup()
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, apperrors.ErrAccountNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

// record runs apply and appends transaction in one unit of work, drawing a
// fresh reference if the generated one is already taken.
func (s *LedgerService) record(ctx context.Context, transaction *domain.Transaction, prefix string, apply func(*repository.Store) error) error {
	var err error
	for attempt := 0; attempt < referenceAttempts; attempt++ {
		transaction.Reference = newReference(prefix)
		err = s.store.WithTransaction(ctx, func(txStore *repository.Store) error {
			if err := apply(txStore); err != nil {
				return err
			}
			return txStore.Transaction().AppendTransaction(ctx, transaction)
		})
		if !errors.Is(err, domain.ErrReferenceTaken) {
			return err
		}
	}
	return apperrors.NewAppError(apperrors.InternalError, "could not allocate a transaction reference")
}

func (s *LedgerService) findExisting(ctx context.Context, key *uuid.UUID) (*domain.Transaction, error) {
	if key == nil {
		return nil, nil
	}
	existing, err := s.store.Transaction().GetTransactionByIdempotencyKey(ctx, *key)
	if errors.Is(err, apperrors.ErrTransactionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("Returning existing transaction for idempotency key",
		"idempotency_key", *key,
		"transaction_id", existing.ID)
	return existing, nil
}

// raceWinner returns the transaction committed by a concurrent request that
// used the same idempotency key.
func (s *LedgerService) raceWinner(ctx context.Context, err error, key *uuid.UUID) *domain.Transaction {
	if key == nil || !errors.Is(err, apperrors.ErrDuplicateTransaction) {
		return nil
	}
	existing, lookupErr := s.findExisting(ctx, key)
	if lookupErr != nil {
		return nil
	}
	return existing
}

func (s *LedgerService) publish(ctx context.Context, eventType string, tx *domain.Transaction) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(pubCtx, domain.NewLedgerEvent(eventType, tx)); err != nil {
		s.logger.Error("Failed to publish ledger event",
			"event_type", eventType,
			"transaction_id", tx.ID,
			"error", err)
	}
}

func sentBy(tx *domain.Transaction, senderID uuid.UUID) bool {
	return tx.Kind == domain.KindTransfer && tx.FromAccountID != nil && *tx.FromAccountID == senderID
}
