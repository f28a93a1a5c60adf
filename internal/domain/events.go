package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventTransactionRecorded = "transaction.recorded"
	EventTransactionSettled  = "transaction.settled"
)

// EventPublisher delivers ledger events to downstream consumers. Delivery is
// best effort; the ledger never rolls back because a publish failed.
type EventPublisher interface {
	Publish(ctx context.Context, event LedgerEvent) error
	Close() error
}

// LedgerEvent is published after a unit of work commits.
type LedgerEvent struct {
	Type          string            `json:"type"`
	TransactionID uuid.UUID         `json:"transaction_id"`
	Reference     string            `json:"reference"`
	Kind          TransactionKind   `json:"kind"`
	Status        TransactionStatus `json:"status"`
	FromAccountID *uuid.UUID        `json:"from_account_id,omitempty"`
	ToAccountID   *uuid.UUID        `json:"to_account_id,omitempty"`
	ToRef         string            `json:"to_ref,omitempty"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

func NewLedgerEvent(eventType string, tx *Transaction) LedgerEvent {
	return LedgerEvent{
		Type:          eventType,
		TransactionID: tx.ID,
		Reference:     tx.Reference,
		Kind:          tx.Kind,
		Status:        tx.Status,
		FromAccountID: tx.FromAccountID,
		ToAccountID:   tx.ToAccountID,
		ToRef:         tx.ToRef,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		OccurredAt:    time.Now().UTC(),
	}
}
