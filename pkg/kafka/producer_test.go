package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/identity/pkg/logger"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func newTestProducer(w *fakeWriter) *Producer {
	p := NewProducer(DefaultProducerConfig([]string{"localhost:19092"}, "identity-service"), nil)
	p.writer = w
	return p
}

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return exporter
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestDefaultProducerConfig(t *testing.T) {
	cfg := DefaultProducerConfig([]string{"broker1:9092", "broker2:9092"}, "identity-service")

	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.Brokers)
	assert.Equal(t, "identity-service", cfg.Source)
	assert.Equal(t, 1, cfg.BatchSize)
	assert.Positive(t, cfg.WriteTimeout)
}

func TestNewProducer_IsLazy(t *testing.T) {
	p := NewProducer(DefaultProducerConfig([]string{"localhost:19092"}, "svc"), nil)
	require.NotNil(t, p)
	assert.Equal(t, []string{"localhost:19092"}, p.brokers)
	assert.NoError(t, p.Close())
}

func TestPublish_KeyedMessageWithHeaders(t *testing.T) {
	w := &fakeWriter{}
	p := newTestProducer(w)
	topic := "publish-test-topic"
	before := publishCount(t, topic, outcomePublished)

	event, err := NewEvent(Topic("notification", "email_requested"), "notification", "alice@example.com",
		map[string]string{"to": "alice@example.com"}, WithCorrelationID("corr-1"))
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), topic, event))

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, topic, msg.Topic)
	assert.Equal(t, "alice@example.com", string(msg.Key))
	assert.Equal(t, "identity.notification.email_requested", headerValue(msg, HeaderEventType))
	assert.Equal(t, "identity-service", headerValue(msg, HeaderSource))
	assert.Equal(t, "corr-1", headerValue(msg, HeaderCorrelationID))

	decoded, err := DecodeEvent(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, event.EventID, decoded.EventID)
	assert.Equal(t, "identity-service", decoded.Source)

	assert.InDelta(t, before+1, publishCount(t, topic, outcomePublished), 0.001)
}

func TestPublish_KeepsExplicitSource(t *testing.T) {
	w := &fakeWriter{}
	p := newTestProducer(w)

	event, err := NewEvent("t", "a", "1", nil, WithSource("other-service"))
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), "t", event))

	assert.Equal(t, "other-service", headerValue(w.messages[0], HeaderSource))
}

func TestPublish_CorrelationIDFromContext(t *testing.T) {
	w := &fakeWriter{}
	p := newTestProducer(w)

	event, err := NewEvent("t", "a", "1", nil)
	require.NoError(t, err)

	ctx := logger.WithCorrelationID(context.Background(), "corr-ctx")
	require.NoError(t, p.Publish(ctx, "t", event))

	assert.Equal(t, "corr-ctx", event.CorrelationID)
	assert.Equal(t, "corr-ctx", headerValue(w.messages[0], HeaderCorrelationID))
}

func TestPublish_NoCorrelationHeaderWhenUnknown(t *testing.T) {
	w := &fakeWriter{}
	p := newTestProducer(w)

	event, err := NewEvent("t", "a", "1", nil)
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), "t", event))

	assert.Empty(t, headerValue(w.messages[0], HeaderCorrelationID))
}

func TestPublish_WriteError(t *testing.T) {
	exporter := setupTestTracer(t)
	w := &fakeWriter{err: errors.New("leader not available")}
	p := newTestProducer(w)
	topic := "publish-error-topic"
	before := publishCount(t, topic, outcomeFailed)

	event, err := NewEvent("t", "a", "1", nil)
	require.NoError(t, err)

	err = p.Publish(context.Background(), topic, event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish event to publish-error-topic")
	assert.InDelta(t, before+1, publishCount(t, topic, outcomeFailed), 0.001)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
}

func TestPublish_ProducerSpanPropagated(t *testing.T) {
	exporter := setupTestTracer(t)
	w := &fakeWriter{}
	p := newTestProducer(w)

	event, err := NewEvent("t", "a", "key-1", nil)
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), "notifications", event))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "publish notifications", span.Name)
	assert.Equal(t, trace.SpanKindProducer, span.SpanKind)

	attrs := map[string]string{}
	for _, kv := range span.Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "kafka", attrs["messaging.system"])
	assert.Equal(t, "notifications", attrs["messaging.destination.name"])
	assert.Equal(t, event.EventID, attrs["messaging.message.id"])

	// The injected traceparent names the producer span.
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), NewKafkaHeaderCarrier(&w.messages[0].Headers))
	sc := trace.SpanContextFromContext(ctx)
	assert.Equal(t, span.SpanContext.TraceID(), sc.TraceID())
	assert.Equal(t, span.SpanContext.SpanID(), sc.SpanID())
}

func TestProducer_Close_ClosesWriter(t *testing.T) {
	w := &fakeWriter{}
	p := newTestProducer(w)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestTopic_Format(t *testing.T) {
	assert.Equal(t, "identity.notification.email_requested", Topic("notification", "email_requested"))
	assert.Equal(t, "identity.account.deleted", Topic("account", "deleted"))
}

func TestPingBrokers(t *testing.T) {
	for _, brokers := range [][]string{nil, {}} {
		err := PingBrokers(context.Background(), brokers)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no brokers configured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := PingBrokers(ctx, []string{"127.0.0.1:1", "127.0.0.1:2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all brokers unreachable")
	assert.Contains(t, err.Error(), "127.0.0.1:2")
}
