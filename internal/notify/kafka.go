package notify

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/identity/pkg/kafka"
	"github.com/utafrali/identity/pkg/logger"
)

// Event identifiers for the kafka transport.
const (
	AggregateTypeNotification = "notification"
	SourceIdentityService     = "identity-service"
)

// EventEmailRequested is the event type of a rendered email handed to the
// downstream mailer.
var EventEmailRequested = pkgkafka.Topic(AggregateTypeNotification, "email_requested")

// EmailRequestedData is the payload of an email_requested event. A mailer
// downstream renders and delivers it.
type EmailRequestedData struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// EventPublisher publishes events to a topic. *pkgkafka.Producer satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// KafkaSender hands messages to a downstream mailer through a Kafka topic.
type KafkaSender struct {
	publisher EventPublisher
	topic     string
	logger    *slog.Logger
}

// NewKafkaSender creates a sender publishing to topic.
func NewKafkaSender(publisher EventPublisher, topic string, logger *slog.Logger) *KafkaSender {
	return &KafkaSender{
		publisher: publisher,
		topic:     topic,
		logger:    logger,
	}
}

// Dispatch publishes an email_requested event keyed by the recipient.
func (s *KafkaSender) Dispatch(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("empty recipient: %w", ErrInvalidMessage)
	}

	data := EmailRequestedData{
		To:      msg.To,
		Subject: msg.Subject,
		Body:    msg.Body,
	}

	event, err := pkgkafka.NewEvent(EventEmailRequested, AggregateTypeNotification, msg.To, data,
		pkgkafka.WithSource(SourceIdentityService),
		pkgkafka.WithCorrelationID(logger.CorrelationIDFromContext(ctx)),
	)
	if err != nil {
		return fmt.Errorf("create %s event: %w", EventEmailRequested, err)
	}

	if err := s.publisher.Publish(ctx, s.topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", EventEmailRequested, err)
	}

	s.logger.DebugContext(ctx, "published email_requested event",
		slog.String("topic", s.topic),
		slog.String("event_id", event.EventID),
	)

	return nil
}
