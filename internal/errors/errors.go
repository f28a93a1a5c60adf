package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	InvalidAmount        ErrorCode = "invalid_amount"
	InsufficientFunds    ErrorCode = "insufficient_funds"
	DuplicateRef         ErrorCode = "duplicate_ref"
	AccountNotFound      ErrorCode = "account_not_found"
	InvalidTransition    ErrorCode = "invalid_transition"
	StorageUnavailable   ErrorCode = "storage_unavailable"
	InvalidInput         ErrorCode = "invalid_input"
	InvalidAccountID     ErrorCode = "invalid_account_id"
	SameAccountTransfer  ErrorCode = "same_account_transfer"
	TransactionNotFound  ErrorCode = "transaction_not_found"
	DuplicateTransaction ErrorCode = "duplicate_transaction"
	Unauthorized         ErrorCode = "unauthorized"
	Forbidden            ErrorCode = "forbidden"
	InternalError        ErrorCode = "internal_error"
)

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any AppError carrying the same code, so callers can use errors.Is
// against the predefined values even after WithDetails.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithDetails returns a copy carrying details; predefined errors stay untouched.
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// HTTPStatus maps the error code to the response status used by the API.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case InvalidAmount, InvalidInput, InvalidAccountID, SameAccountTransfer:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case AccountNotFound, TransactionNotFound:
		return http.StatusNotFound
	case DuplicateRef, DuplicateTransaction, InvalidTransition:
		return http.StatusConflict
	case InsufficientFunds:
		return http.StatusUnprocessableEntity
	case StorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller may repeat the request. Only storage
// outages qualify; every other code is terminal for the invocation.
func (e *AppError) Retryable() bool {
	return e.Code == StorageUnavailable
}

// Predefined errors for common cases
var (
	ErrInvalidAmount        = NewAppError(InvalidAmount, "amount must be positive with at most two decimal places")
	ErrInsufficientFunds    = NewAppError(InsufficientFunds, "insufficient funds")
	ErrDuplicateRef         = NewAppError(DuplicateRef, "external reference already registered")
	ErrAccountNotFound      = NewAppError(AccountNotFound, "account not found")
	ErrInvalidTransition    = NewAppError(InvalidTransition, "transaction status transition not allowed")
	ErrStorageUnavailable   = NewAppError(StorageUnavailable, "storage unavailable")
	ErrInvalidAccountID     = NewAppError(InvalidAccountID, "invalid account id")
	ErrSameAccountTransfer  = NewAppError(SameAccountTransfer, "cannot transfer to the same account")
	ErrTransactionNotFound  = NewAppError(TransactionNotFound, "transaction not found")
	ErrDuplicateTransaction = NewAppError(DuplicateTransaction, "transaction already processed")
	ErrUnauthorized         = NewAppError(Unauthorized, "missing or invalid token")
	ErrForbidden            = NewAppError(Forbidden, "operation not permitted for this caller")
)

var ErrCannotBeginTransaction = NewAppError(InternalError, "store is already inside a transaction")

// From converts any error into an AppError, treating unknown errors as internal.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return NewAppError(InternalError, "an unexpected error occurred").WithDetails(err.Error())
}
