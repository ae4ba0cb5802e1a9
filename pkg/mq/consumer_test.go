package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"frontsync/pkg/trace"
)

type fakeAck struct {
	acks, nacks int
	requeued    bool
}

func (f *fakeAck) Ack(tag uint64, multiple bool) error {
	f.acks++
	return nil
}

func (f *fakeAck) Nack(tag uint64, multiple, requeue bool) error {
	f.nacks++
	f.requeued = requeue
	return nil
}

func (f *fakeAck) Reject(tag uint64, requeue bool) error {
	return nil
}

func testConsumer(h MessageHandler) *Consumer {
	return &Consumer{
		queue:      amqp091.Queue{Name: "test.q"},
		routingKey: "test.key",
		handler:    h,
		logger:     zap.NewNop(),
	}
}

func TestHandleAcksOnSuccessAndPropagatesTraceID(t *testing.T) {
	var gotTrace string
	c := testConsumer(func(ctx context.Context, data json.RawMessage) error {
		gotTrace = trace.FromContext(ctx)
		return nil
	})
	ack := &fakeAck{}
	c.handle(context.Background(), amqp091.Delivery{
		Acknowledger: ack,
		Body:         []byte(`{}`),
		Headers:      amqp091.Table{TraceIDHeader: "trace-42"},
	})
	if ack.acks != 1 || ack.nacks != 0 {
		t.Fatalf("expected ack, got acks=%d nacks=%d", ack.acks, ack.nacks)
	}
	if gotTrace != "trace-42" {
		t.Fatalf("expected trace id from header, got %q", gotTrace)
	}
}

func TestHandleRequeuesOnError(t *testing.T) {
	c := testConsumer(func(ctx context.Context, data json.RawMessage) error {
		return errors.New("boom")
	})
	ack := &fakeAck{}
	c.handle(context.Background(), amqp091.Delivery{Acknowledger: ack, Body: []byte(`{}`)})
	if ack.nacks != 1 || !ack.requeued || ack.acks != 0 {
		t.Fatalf("expected requeue nack, got %+v", ack)
	}
}

func TestHandleRecoversPanic(t *testing.T) {
	var gotTrace string
	c := testConsumer(func(ctx context.Context, data json.RawMessage) error {
		gotTrace = trace.FromContext(ctx)
		panic("handler bug")
	})
	ack := &fakeAck{}
	c.handle(context.Background(), amqp091.Delivery{Acknowledger: ack})
	if ack.nacks != 1 || !ack.requeued {
		t.Fatalf("expected nack after panic, got %+v", ack)
	}
	if gotTrace == "" {
		t.Fatalf("expected a generated trace id when header missing")
	}
}
