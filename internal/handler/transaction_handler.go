package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"finpay-ledger/internal/domain"
	"finpay-ledger/internal/errors"
	"finpay-ledger/internal/service"
)

type TransactionHandler struct {
	ledgerService *service.LedgerService
}

func NewTransactionHandler(ledgerService *service.LedgerService) *TransactionHandler {
	return &TransactionHandler{
		ledgerService: ledgerService,
	}
}

type TransferRequest struct {
	To             string `json:"to"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type TopUpRequest struct {
	Amount         string `json:"amount"`
	Currency       string `json:"currency,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type SettleRequest struct {
	Status string `json:"status"`
}

type TransferResponse struct {
	TransactionID  string  `json:"transaction_id"`
	Reference      string  `json:"reference"`
	Status         string  `json:"status"`
	Amount         string  `json:"amount"`
	Currency       string  `json:"currency"`
	IdempotencyKey *string `json:"idempotency_key,omitempty"`
}

// Transfer moves funds from the caller's account to the recipient in "to".
func (h *TransactionHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req TransferRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	key, err := idempotencyKey(r, req.IdempotencyKey)
	if err != nil {
		writeError(w, err)
		return
	}

	transaction, err := h.ledgerService.Transfer(r.Context(), &service.TransferRequest{
		SenderID:       caller.AccountID,
		To:             req.To,
		Amount:         amount,
		Currency:       req.Currency,
		IdempotencyKey: key,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, newTransferResponse(transaction))
}

// TopUp credits the caller's own account.
func (h *TransactionHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req TopUpRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	key, err := idempotencyKey(r, req.IdempotencyKey)
	if err != nil {
		writeError(w, err)
		return
	}

	transaction, err := h.ledgerService.TopUp(r.Context(), &service.TopUpRequest{
		AccountID:      caller.AccountID,
		Amount:         amount,
		Currency:       req.Currency,
		IdempotencyKey: key,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, newTransferResponse(transaction))
}

func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		writeError(w, err)
		return
	}

	id, err := transactionID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	transaction, err := h.ledgerService.GetTransaction(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	// Hide existence from callers who are not a party to it.
	if !caller.IsAdmin() && !transaction.Involves(caller.AccountID) {
		writeError(w, errors.ErrTransactionNotFound)
		return
	}

	writeJSON(w, http.StatusOK, newTransactionResponse(transaction))
}

// Settle resolves a pending transaction. Only administrators may call it.
func (h *TransactionHandler) Settle(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if !caller.IsAdmin() {
		writeError(w, errors.ErrForbidden)
		return
	}

	id, err := transactionID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req SettleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	transaction, err := h.ledgerService.Settle(r.Context(), id, domain.TransactionStatus(req.Status))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newTransactionResponse(transaction))
}

func newTransferResponse(tx *domain.Transaction) TransferResponse {
	return TransferResponse{
		TransactionID:  tx.ID.String(),
		Reference:      tx.Reference,
		Status:         string(tx.Status),
		Amount:         tx.Amount.StringFixed(domain.MonetaryScale),
		Currency:       tx.Currency,
		IdempotencyKey: uuidString(tx.IdempotencyKey),
	}
}

func transactionID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["transaction_id"])
	if err != nil {
		return uuid.Nil, errors.NewAppError(errors.InvalidInput, "invalid transaction id")
	}
	return id, nil
}
