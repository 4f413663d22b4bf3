package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/webshop/api/internal/services"
)

type stubWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (s *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, msgs...)
	return nil
}

func (s *stubWriter) Close() error {
	s.closed = true
	return nil
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafkaPublisherWritesKeyedMessage(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	writer := &stubWriter{}
	publisher, err := NewKafkaPublisher(writer)
	if err != nil {
		t.Fatalf("NewKafkaPublisher: %v", err)
	}

	occurred := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	event := services.OrderEvent{
		ID:            "01HX0000000000000000000001",
		Type:          "order.completed",
		OrderID:       9,
		UserID:        7,
		CurrentStatus: "OrderCompleted",
		ActorID:       1,
		ActorRole:     "admin",
		OccurredAt:    occurred,
	}
	if err := publisher.PublishOrderEvent(ctx, event); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	if len(writer.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(writer.messages))
	}
	msg := writer.messages[0]
	if string(msg.Key) != "9" {
		t.Fatalf("expected key 9, got %q", msg.Key)
	}
	if !msg.Time.Equal(occurred) {
		t.Fatalf("expected message time %v, got %v", occurred, msg.Time)
	}
	var payload OrderMessage
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.ID != event.ID || payload.Type != event.Type {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if got := headerValue(msg, "eventType"); got != "order.completed" {
		t.Fatalf("expected eventType header, got %q", got)
	}
	if got := headerValue(msg, "traceparent"); got != "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01" {
		t.Fatalf("expected traceparent header, got %q", got)
	}

	if err := publisher.Close(); err != nil || !writer.closed {
		t.Fatalf("expected writer to be closed, err=%v", err)
	}
}

func TestKafkaPublisherWrapsWriteErrors(t *testing.T) {
	boom := errors.New("broker down")
	publisher, err := NewKafkaPublisher(&stubWriter{err: boom})
	if err != nil {
		t.Fatalf("NewKafkaPublisher: %v", err)
	}
	err = publisher.PublishOrderEvent(context.Background(), services.OrderEvent{OrderID: 1})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped write error, got %v", err)
	}
}
