package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/distribution-service/pkg/cloudevents"
	"github.com/wms-platform/distribution-service/pkg/resilience"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func newTestProducer(w *recordingWriter) *Producer {
	p := NewProducer(DefaultConfig())
	p.newWriter = func(topic string) messageWriter { return w }
	return p
}

func testEvent() *cloudevents.WMSCloudEvent {
	factory := cloudevents.NewEventFactory(cloudevents.SourceDistribution).
		WithClock(func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) })
	return factory.CreateBatchCreatedEvent(context.Background(), cloudevents.BatchCreatedData{
		BatchID:            "batch-1",
		DestinationStoreID: "S1",
		SourceWarehouseID:  "W1",
	})
}

func TestProducer_PublishEvent(t *testing.T) {
	w := &recordingWriter{}
	p := newTestProducer(w)

	require.NoError(t, p.PublishEvent(context.Background(), Topics.DistributionEvents, testEvent()))
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, "batch/batch-1", string(msg.Key))

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, cloudevents.BatchCreated, headers["ce-type"])
	assert.Equal(t, "S1", headers["ce-wmsstoreid"])
	assert.Equal(t, "2024-01-02T03:04:05Z", headers["ce-time"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestProducer_PublishEventError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	p := newTestProducer(w)

	err := p.PublishEvent(context.Background(), Topics.DistributionEvents, testEvent())
	assert.ErrorContains(t, err, "broker down")
}

func TestCircuitBreakerProducer_OpensAfterFailures(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	cbp := NewCircuitBreakerProducer(NewInstrumentedProducer(newTestProducer(w), nil, nil), nil, nil)

	for i := 0; i < 5; i++ {
		_ = cbp.PublishEvent(context.Background(), Topics.DistributionEvents, testEvent())
	}

	err := cbp.PublishEvent(context.Background(), Topics.DistributionEvents, testEvent())
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092 "))
	assert.Nil(t, ParseBrokers(""))
}
