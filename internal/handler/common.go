package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finpay-ledger/internal/auth"
	"finpay-ledger/internal/domain"
	"finpay-ledger/internal/errors"
)

type Response struct {
	Data  interface{} `json:"data,omitempty"`
	Error *Error      `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type TransactionResponse struct {
	TransactionID  string  `json:"transaction_id"`
	Reference      string  `json:"reference"`
	Kind           string  `json:"kind"`
	Status         string  `json:"status"`
	FromAccountID  *string `json:"from_account_id,omitempty"`
	ToAccountID    *string `json:"to_account_id,omitempty"`
	ToRef          string  `json:"to_ref,omitempty"`
	Amount         string  `json:"amount"`
	Currency       string  `json:"currency"`
	IdempotencyKey *string `json:"idempotency_key,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := Response{Data: data}
	json.NewEncoder(w).Encode(response)
}

// writeError renders err in the error envelope; anything that is not an
// AppError is reported as an internal error.
func writeError(w http.ResponseWriter, err error) {
	appErr := errors.From(err)
	w.Header().Set("Content-Type", "application/json")
	if appErr.Retryable() {
		w.Header().Set("Retry-After", "1")
	}

	errResponse := Error{
		Code:    string(appErr.Code),
		Message: appErr.Message,
		Details: appErr.Details,
	}

	w.WriteHeader(appErr.HTTPStatus())
	json.NewEncoder(w).Encode(Response{Error: &errResponse})
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.NewAppError(errors.InvalidInput, "invalid request body").WithDetails(err.Error())
	}
	return nil
}

// parseAmount accepts amounts as decimal strings, e.g. "10.50".
func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, errors.NewAppError(errors.InvalidAmount, "invalid amount format").WithDetails(err.Error())
	}
	return amount, nil
}

// idempotencyKey reads the key from the body field, falling back to the
// Idempotency-Key header.
func idempotencyKey(r *http.Request, fromBody string) (*uuid.UUID, error) {
	raw := strings.TrimSpace(fromBody)
	if raw == "" {
		raw = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}
	if raw == "" {
		return nil, nil
	}
	key, err := uuid.Parse(raw)
	if err != nil {
		return nil, errors.NewAppError(errors.InvalidInput, "invalid idempotency_key format").WithDetails(err.Error())
	}
	return &key, nil
}

func identity(r *http.Request) (auth.Identity, error) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		return auth.Identity{}, errors.ErrUnauthorized
	}
	return id, nil
}

func newTransactionResponse(tx *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		TransactionID:  tx.ID.String(),
		Reference:      tx.Reference,
		Kind:           string(tx.Kind),
		Status:         string(tx.Status),
		FromAccountID:  uuidString(tx.FromAccountID),
		ToAccountID:    uuidString(tx.ToAccountID),
		ToRef:          tx.ToRef,
		Amount:         tx.Amount.StringFixed(domain.MonetaryScale),
		Currency:       tx.Currency,
		IdempotencyKey: uuidString(tx.IdempotencyKey),
		CreatedAt:      tx.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt:      tx.UpdatedAt.UTC().Format(timeFormat),
	}
}

const timeFormat = "2006-01-02T15:04:05.000000Z07:00"

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
