package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := map[*AppError]int{
		ErrInvalidAmount:        http.StatusBadRequest,
		ErrSameAccountTransfer:  http.StatusBadRequest,
		ErrUnauthorized:         http.StatusUnauthorized,
		ErrForbidden:            http.StatusForbidden,
		ErrAccountNotFound:      http.StatusNotFound,
		ErrTransactionNotFound:  http.StatusNotFound,
		ErrDuplicateRef:         http.StatusConflict,
		ErrInvalidTransition:    http.StatusConflict,
		ErrInsufficientFunds:    http.StatusUnprocessableEntity,
		ErrStorageUnavailable:   http.StatusServiceUnavailable,
	}

	for err, status := range tests {
		assert.Equal(t, status, err.HTTPStatus(), err.Code)
	}
	assert.Equal(t, http.StatusInternalServerError, NewAppError("bogus", "").HTTPStatus())
}

func TestWithDetailsKeepsSentinel(t *testing.T) {
	detailed := ErrStorageUnavailable.WithDetails("connection refused")

	assert.Empty(t, ErrStorageUnavailable.Details)
	assert.Equal(t, "storage_unavailable: storage unavailable (connection refused)", detailed.Error())
	assert.ErrorIs(t, detailed, ErrStorageUnavailable)
	assert.NotErrorIs(t, detailed, ErrInsufficientFunds)
	assert.True(t, detailed.Retryable())
	assert.False(t, ErrInsufficientFunds.Retryable())
}

func TestFrom(t *testing.T) {
	assert.Nil(t, From(nil))

	wrapped := fmt.Errorf("transfer: %w", ErrInsufficientFunds)
	assert.Equal(t, InsufficientFunds, From(wrapped).Code)

	unknown := From(stderrors.New("boom"))
	assert.Equal(t, InternalError, unknown.Code)
	assert.Equal(t, "boom", unknown.Details)
}
