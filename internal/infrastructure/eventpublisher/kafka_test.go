package eventpublisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/bankledger/internal/domain"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
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

func TestKafkaPublisherWritesKeyedEnvelope(t *testing.T) {
	w := &fakeWriter{}
	pub := newKafkaPublisherWithWriter(w)

	createdAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	err := pub.Publish(context.Background(), &domain.OutboxEvent{
		ID:            "evt-1",
		EventType:     domain.EventTypeTransactionRecorded,
		AggregateType: domain.AggregateTypeTransaction,
		AggregateID:   "7",
		Payload:       map[string]any{"kind": "deposit"},
		CreatedAt:     createdAt,
	})
	require.NoError(t, err)
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, "7", string(msg.Key))
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "event_type", msg.Headers[1].Key)
	assert.Equal(t, domain.EventTypeTransactionRecorded, string(msg.Headers[1].Value))

	var got envelope
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "evt-1", got.ID)
	assert.Equal(t, "deposit", got.Payload["kind"])
	assert.True(t, got.CreatedAt.Equal(createdAt))

	require.NoError(t, pub.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisherWrapsWriteError(t *testing.T) {
	cause := errors.New("broker down")
	pub := newKafkaPublisherWithWriter(&fakeWriter{err: cause})

	err := pub.Publish(context.Background(), &domain.OutboxEvent{ID: "evt-1"})
	assert.ErrorIs(t, err, cause)
}

func TestNewKafkaPublisherConfiguresWriter(t *testing.T) {
	pub := NewKafkaPublisher([]string{"localhost:9092"}, "ledger")

	w, ok := pub.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "ledger", w.Topic)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
}
