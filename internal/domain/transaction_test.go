package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidAmount(t *testing.T) {
	tests := []struct {
		amount string
		valid  bool
	}{
		{"0.01", true},
		{"100", true},
		{"99.90", true},
		{"0", false},
		{"-1", false},
		{"0.001", false},
		{"10.555", false},
		{"10000000000", true},
		{"10000000000.01", false},
		{"184467440737095517.16", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.valid, ValidAmount(decimal.RequireFromString(tt.amount)), tt.amount)
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, StatusPending.CanTransition(StatusSuccess))
	assert.True(t, StatusPending.CanTransition(StatusFailed))
	assert.False(t, StatusPending.CanTransition(StatusPending))
	assert.False(t, StatusSuccess.CanTransition(StatusPending))
	assert.False(t, StatusSuccess.CanTransition(StatusSuccess))
	assert.False(t, StatusSuccess.CanTransition(StatusFailed))
	assert.False(t, StatusFailed.CanTransition(StatusSuccess))
	assert.False(t, TransactionStatus("reversed").Valid())
}

func TestEffectOn(t *testing.T) {
	alice, bob := uuid.New(), uuid.New()
	amount := decimal.RequireFromString("25.50")

	internal := &Transaction{FromAccountID: &alice, ToAccountID: &bob, Amount: amount, Kind: KindTransfer, Status: StatusSuccess}
	assert.Equal(t, "-25.5", internal.EffectOn(alice).String())
	assert.Equal(t, "25.5", internal.EffectOn(bob).String())
	assert.True(t, internal.EffectOn(uuid.New()).IsZero())
	assert.False(t, internal.IsExternal())

	external := &Transaction{FromAccountID: &alice, ToRef: "x@y.z", Amount: amount, Kind: KindTransfer, Status: StatusPending}
	assert.True(t, external.IsExternal())
	assert.Equal(t, "-25.5", external.EffectOn(alice).String())

	external.Status = StatusFailed
	assert.True(t, external.EffectOn(alice).IsZero())

	topUp := &Transaction{ToAccountID: &bob, Amount: amount, Kind: KindTopUp, Status: StatusSuccess}
	assert.Equal(t, "25.5", topUp.EffectOn(bob).String())
	assert.True(t, topUp.Involves(bob))
	assert.False(t, topUp.Involves(alice))
	assert.False(t, topUp.IsExternal())
}

func TestNewLedgerEvent(t *testing.T) {
	from := uuid.New()
	tx := &Transaction{
		ID:            uuid.New(),
		Reference:     "TX-1-abcdef",
		FromAccountID: &from,
		ToRef:         "x@y.z",
		Amount:        decimal.NewFromInt(3),
		Currency:      "USD",
		Kind:          KindTransfer,
		Status:        StatusPending,
	}

	event := NewLedgerEvent(EventTransactionRecorded, tx)
	assert.Equal(t, EventTransactionRecorded, event.Type)
	assert.Equal(t, tx.ID, event.TransactionID)
	assert.Equal(t, tx.Reference, event.Reference)
	assert.Equal(t, "x@y.z", event.ToRef)
	assert.False(t, event.OccurredAt.IsZero())
}
