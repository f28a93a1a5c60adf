package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"finpay-ledger/internal/domain"
	"finpay-ledger/internal/errors"
	"finpay-ledger/internal/service"
)

type AccountHandler struct {
	accountService *service.AccountService
	ledgerService  *service.LedgerService
}

func NewAccountHandler(accountService *service.AccountService, ledgerService *service.LedgerService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		ledgerService:  ledgerService,
	}
}

type CreateAccountRequest struct {
	ExternalRef    string `json:"external_ref"`
	OpeningBalance string `json:"opening_balance,omitempty"`
}

type AccountResponse struct {
	AccountID   string `json:"account_id"`
	ExternalRef string `json:"external_ref"`
	AccountNo   string `json:"account_no"`
	Balance     string `json:"balance"`
	CreatedAt   string `json:"created_at"`
}

type BalanceResponse struct {
	AccountID string `json:"account_id"`
	Balance   string `json:"balance"`
}

func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	openingBalance := decimal.Zero
	if req.OpeningBalance != "" {
		amount, err := parseAmount(req.OpeningBalance)
		if err != nil {
			writeError(w, err)
			return
		}
		openingBalance = amount
	}

	account, err := h.accountService.CreateAccount(r.Context(), req.ExternalRef, openingBalance)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, newAccountResponse(account))
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := h.authorizedAccount(r)
	if err != nil {
		writeError(w, err)
		return
	}

	account, err := h.accountService.GetAccount(r.Context(), accountID.String())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newAccountResponse(account))
}

func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, err := h.authorizedAccount(r)
	if err != nil {
		writeError(w, err)
		return
	}

	balance, err := h.ledgerService.BalanceOf(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{
		AccountID: accountID.String(),
		Balance:   balance.StringFixed(domain.MonetaryScale),
	})
}

func (h *AccountHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, err := h.authorizedAccount(r)
	if err != nil {
		writeError(w, err)
		return
	}

	transactions, err := h.ledgerService.ListTransactions(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}

	response := make([]TransactionResponse, 0, len(transactions))
	for _, tx := range transactions {
		response = append(response, newTransactionResponse(tx))
	}
	writeJSON(w, http.StatusOK, response)
}

// authorizedAccount parses the {account_id} path variable and checks that the
// caller may read it.
func (h *AccountHandler) authorizedAccount(r *http.Request) (uuid.UUID, error) {
	caller, err := identity(r)
	if err != nil {
		return uuid.Nil, err
	}

	accountID, err := service.ParseAccountID(mux.Vars(r)["account_id"])
	if err != nil {
		return uuid.Nil, err
	}
	if !caller.CanAccess(accountID) {
		return uuid.Nil, errors.ErrForbidden
	}
	return accountID, nil
}

func newAccountResponse(account *domain.Account) AccountResponse {
	return AccountResponse{
		AccountID:   account.ID.String(),
		ExternalRef: account.ExternalRef,
		AccountNo:   account.AccountNo,
		Balance:     account.Balance.StringFixed(domain.MonetaryScale),
		CreatedAt:   account.CreatedAt.UTC().Format(timeFormat),
	}
}
