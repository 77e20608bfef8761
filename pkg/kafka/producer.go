package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/identity/pkg/logger"
	"github.com/utafrali/identity/pkg/tracing"
)

const tracerName = "github.com/utafrali/identity/pkg/kafka"

// Message header names.
const (
	HeaderEventType     = "event_type"
	HeaderSource        = "source"
	HeaderCorrelationID = "correlation_id"
)

// ProducerConfig holds Kafka producer configuration.
type ProducerConfig struct {
	Brokers []string
	// Source is stamped on events published without one.
	Source       string
	BatchSize    int
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// DefaultProducerConfig suits low-volume, latency-tolerant traffic: messages
// are written one at a time and acknowledged by every in-sync replica.
func DefaultProducerConfig(brokers []string, source string) ProducerConfig {
	return ProducerConfig{
		Brokers:      brokers,
		Source:       source,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}
}

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes Events. It is safe for concurrent use.
type Producer struct {
	writer  messageWriter
	brokers []string
	source  string
	logger  *slog.Logger
}

// NewProducer builds a producer. Brokers are dialed lazily on first publish.
func NewProducer(cfg ProducerConfig, log *slog.Logger) *Producer {
	if log == nil {
		log = slog.Default()
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			BatchSize:              cfg.BatchSize,
			BatchTimeout:           cfg.BatchTimeout,
			WriteTimeout:           cfg.WriteTimeout,
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		brokers: cfg.Brokers,
		source:  cfg.Source,
		logger:  log.With(slog.String("component", "kafka_producer")),
	}
}

// Publish writes event to topic, keyed by its aggregate id so events of one
// aggregate stay ordered. The request's correlation id and trace context
// travel as headers.
func (p *Producer) Publish(ctx context.Context, topic string, event *Event) (err error) {
	if event.Source == "" {
		event.Source = p.source
	}
	if event.CorrelationID == "" {
		event.CorrelationID = logger.CorrelationIDFromContext(ctx)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "publish "+topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationPublish,
			semconv.MessagingDestinationName(topic),
			semconv.MessagingMessageID(event.EventID),
			semconv.MessagingKafkaMessageKey(event.AggregateID),
		),
	)
	defer func() {
		tracing.Fail(span, err)
		span.End()
	}()

	value, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Topic:   topic,
		Key:     []byte(event.AggregateID),
		Value:   value,
		Headers: eventHeaders(event),
	}
	injectTraceContext(ctx, &msg.Headers)

	start := time.Now()
	err = p.writer.WriteMessages(ctx, msg)
	observePublish(topic, start, err)
	if err != nil {
		p.logger.ErrorContext(ctx, "publish failed",
			slog.String("topic", topic),
			slog.String("event_type", event.EventType),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("publish event to %s: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "event published",
		slog.String("topic", topic),
		slog.String("event_type", event.EventType),
		slog.String("event_id", event.EventID),
	)
	return nil
}

func eventHeaders(event *Event) []kafka.Header {
	headers := []kafka.Header{{Key: HeaderEventType, Value: []byte(event.EventType)}}
	if event.Source != "" {
		headers = append(headers, kafka.Header{Key: HeaderSource, Value: []byte(event.Source)})
	}
	if event.CorrelationID != "" {
		headers = append(headers, kafka.Header{Key: HeaderCorrelationID, Value: []byte(event.CorrelationID)})
	}
	return headers
}

// Ping reports whether any configured broker answers a metadata request.
func (p *Producer) Ping(ctx context.Context) error {
	return PingBrokers(ctx, p.brokers)
}

// PingBrokers tries each broker in turn and succeeds on the first one that
// lists the cluster.
func PingBrokers(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}

	var errs []error
	for _, addr := range brokers {
		if err := pingBroker(ctx, addr); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", addr, err))
			continue
		}
		return nil
	}
	return fmt.Errorf("kafka ping: all brokers unreachable: %w", errors.Join(errs...))
}

func pingBroker(ctx context.Context, addr string) error {
	conn, err := kafka.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Brokers()
	return err
}

// Close flushes pending writes and releases the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
