package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"

	"finpay-ledger/internal/config"
	"finpay-ledger/internal/domain"
)

const (
	DriverNone  = "none"
	DriverKafka = "kafka"
	DriverNATS  = "nats"
)

// New builds the publisher selected by cfg.EventsDriver.
func New(cfg *config.Config, logger *slog.Logger) (domain.EventPublisher, error) {
	switch cfg.EventsDriver {
	case "", DriverNone:
		return NewNoopPublisher(), nil
	case DriverKafka:
		writer := &kafka.Writer{
			Addr:         kafka.TCP(cfg.KafkaBrokers...),
			Topic:        cfg.KafkaTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 5 * time.Second,
		}
		logger.Info("Publishing ledger events to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		return NewKafkaPublisher(writer, logger), nil
	case DriverNATS:
		conn, err := nats.Connect(cfg.NATSURL,
			nats.Name("finpay-ledger"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn("Disconnected from NATS server", "error", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				logger.Info("Reconnected to NATS server")
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("NATS connection failed: %w", err)
		}
		logger.Info("Publishing ledger events to NATS", "url", cfg.NATSURL, "subject", cfg.NATSSubject)
		return NewNATSPublisher(conn, cfg.NATSSubject, logger), nil
	}
	return nil, fmt.Errorf("unsupported events driver %q", cfg.EventsDriver)
}

type noopPublisher struct{}

// NewNoopPublisher returns a publisher that drops every event.
func NewNoopPublisher() domain.EventPublisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(context.Context, domain.LedgerEvent) error { return nil }

func (noopPublisher) Close() error { return nil }
