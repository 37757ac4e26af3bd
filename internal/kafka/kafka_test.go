package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/ariefcatur/go-qr-orders/internal/events"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	env, err := events.New(events.EventPaymentNotification, "order-api", "T-1",
		events.PaymentNotificationPayload{TrackingID: "T-1", MerchantReference: "o-1"})
	require.NoError(t, err)

	key, value, headers, err := Encode(env)
	require.NoError(t, err)
	assert.Equal(t, []byte("T-1"), key)

	m := kafka.Message{Topic: events.TopicPaymentNotification, Key: key, Value: value, Headers: headers}
	assert.Equal(t, events.EventPaymentNotification, Header(m, HeaderEventType))
	assert.Equal(t, "1", Header(m, HeaderEventVersion))
	assert.Empty(t, Header(m, "missing"))

	got, err := Decode(m)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, got.EventID)
	p, err := events.Decode[events.PaymentNotificationPayload](got)
	require.NoError(t, err)
	assert.Equal(t, "o-1", p.MerchantReference)
}

func TestEnvelopeHandlerSkipsGarbage(t *testing.T) {
	called := 0
	h := EnvelopeHandler(func(context.Context, events.Envelope) error {
		called++
		return errors.New("retry me")
	})

	assert.NoError(t, h(context.Background(), kafka.Message{Value: []byte("not json")}))
	assert.Equal(t, 0, called)

	env, err := events.New(events.EventOrderCreated, "order-api", "o-1", map[string]string{})
	require.NoError(t, err)
	_, value, _, err := Encode(env)
	require.NoError(t, err)
	assert.Error(t, h(context.Background(), kafka.Message{Value: value}))
	assert.Equal(t, 1, called)
}

func TestConsumerHandleRetries(t *testing.T) {
	c := &Consumer{Retries: 2}
	calls := 0
	err := c.handle(context.Background(), func(context.Context, kafka.Message) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, kafka.Message{})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestBusRejectsUnknownTopic(t *testing.T) {
	b := NewBus([]string{"localhost:9092"}, []string{events.TopicOrderCreated}, 1)
	env, err := events.New(events.EventOrderCreated, "order-api", "o-1", struct{}{})
	require.NoError(t, err)

	err = b.Publish(context.Background(), "nope", env)
	assert.ErrorContains(t, err, "no producer")
}

func TestProducerPublishAfterClose(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, events.TopicOrderCreated, 1)
	p.Close()
	p.Close()

	err := p.Publish(context.Background(), []byte("k"), []byte("v"))
	assert.ErrorIs(t, err, ErrClosed)
}
