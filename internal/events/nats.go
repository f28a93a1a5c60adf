package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"finpay-ledger/internal/domain"
)

type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

func NewNATSPublisher(conn *nats.Conn, subject string, logger *slog.Logger) *NATSPublisher {
	return &NATSPublisher{
		conn:    conn,
		subject: subject,
		logger:  logger,
	}
}

// Publish sends the event on <subject>.<event type>, e.g.
// ledger.events.transaction.recorded.
func (p *NATSPublisher) Publish(ctx context.Context, event domain.LedgerEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := nats.NewMsg(p.subject + "." + event.Type)
	msg.Data = data
	msg.Header.Set("Nats-Msg-Id", event.TransactionID.String()+":"+event.Type)
	return p.conn.PublishMsg(msg)
}

func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}
