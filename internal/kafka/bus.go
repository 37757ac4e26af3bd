package kafka

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-qr-orders/internal/events"
)

// Bus is an events.Publisher with one async producer per topic.
type Bus struct {
	producers map[string]*Producer
}

func NewBus(brokers, topics []string, buf int) *Bus {
	b := &Bus{producers: make(map[string]*Producer, len(topics))}
	for _, t := range topics {
		b.producers[t] = NewProducer(brokers, t, buf)
	}
	return b
}

func (b *Bus) Start(ctx context.Context) {
	for _, p := range b.producers {
		p.Start(ctx)
	}
}

func (b *Bus) Publish(ctx context.Context, topic string, env events.Envelope) error {
	p, ok := b.producers[topic]
	if !ok {
		return fmt.Errorf("kafka: no producer for topic %q", topic)
	}
	key, value, headers, err := Encode(env)
	if err != nil {
		return err
	}
	return p.Publish(ctx, key, value, headers...)
}

// Close flushes every producer and waits for the writers to finish.
func (b *Bus) Close() {
	for _, p := range b.producers {
		p.Close()
	}
	for _, p := range b.producers {
		p.WaitClosed()
	}
}
