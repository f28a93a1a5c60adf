package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finpay-ledger/internal/domain"
	apperrors "finpay-ledger/internal/errors"
	"finpay-ledger/internal/repository"
)

const accountNoAttempts = 5

type AccountService struct {
	store  *repository.Store
	logger *slog.Logger
}

func NewAccountService(store *repository.Store, logger *slog.Logger) *AccountService {
	return &AccountService{
		store:  store,
		logger: logger,
	}
}

// CreateAccount registers externalRef (an email or phone number) with the
// given opening balance and a freshly generated account number.
func (s *AccountService) CreateAccount(ctx context.Context, externalRef string, openingBalance decimal.Decimal) (*domain.Account, error) {
	externalRef = strings.TrimSpace(externalRef)
	s.logger.Info("Creating account", "external_ref", externalRef, "opening_balance", openingBalance)

	if externalRef == "" {
		return nil, apperrors.NewAppError(apperrors.InvalidInput, "external_ref is required")
	}
	if openingBalance.IsNegative() || !openingBalance.Equal(openingBalance.Truncate(domain.MonetaryScale)) {
		return nil, apperrors.ErrInvalidAmount
	}
	if openingBalance.GreaterThan(domain.MaxAmount) {
		return nil, apperrors.NewAppError(apperrors.InvalidAmount, "opening balance exceeds maximum limit")
	}

	account := &domain.Account{
		ID:             uuid.New(),
		ExternalRef:    externalRef,
		Balance:        openingBalance,
		OpeningBalance: openingBalance,
	}

	var err error
	for attempt := 0; attempt < accountNoAttempts; attempt++ {
		account.AccountNo = newAccountNo()
		err = s.store.Account().CreateAccount(ctx, account)
		if !errors.Is(err, domain.ErrAccountNoTaken) {
			break
		}
		s.logger.Warn("Account number taken, retrying", "account_no", account.AccountNo, "attempt", attempt+1)
	}
	if errors.Is(err, domain.ErrAccountNoTaken) {
		return nil, apperrors.NewAppError(apperrors.InternalError, "could not allocate an account number")
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("Account created successfully", "account_id", account.ID, "account_no", account.AccountNo)
	return account, nil
}

func (s *AccountService) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	id, err := ParseAccountID(accountID)
	if err != nil {
		return nil, err
	}
	return s.store.Account().GetAccount(ctx, id)
}

// ParseAccountID parses a textual account id.
func ParseAccountID(accountID string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(accountID))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, apperrors.ErrInvalidAccountID
	}
	return id, nil
}
