package kafka

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ariefcatur/go-qr-orders/internal/events"
	"github.com/segmentio/kafka-go"
)

// Handler harus return nil hanya jika proses sukses & boleh commit offset.
type Handler func(ctx context.Context, m kafka.Message) error

// EnvelopeHandler decodes each message before calling h. Messages that are
// not envelopes are logged and committed.
func EnvelopeHandler(h func(ctx context.Context, env events.Envelope) error) Handler {
	return func(ctx context.Context, m kafka.Message) error {
		env, err := Decode(m)
		if err != nil {
			log.Printf("skip message: %v", err)
			return nil
		}
		return h(ctx, env)
	}
}

type Consumer struct {
	r       *kafka.Reader
	workers int
	// Retries is how often a failing message is handed back to the handler
	// before it is left uncommitted.
	Retries int
}

func NewConsumer(brokers []string, group, topic string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, Retries: 3}
}

func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, 1024)
	var wg sync.WaitGroup

	// workers
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for m := range jobs {
				if err := c.handle(ctx, h, m); err != nil {
					log.Printf("worker %d: topic=%s partition=%d offset=%d: %v", id, m.Topic, m.Partition, m.Offset, err)
					continue
				}
				// commit on success
				if err := c.r.CommitMessages(ctx, m); err != nil {
					log.Printf("worker %d: commit offset %d: %v", id, m.Offset, err)
				}
			}
		}(i)
	}
	defer wg.Wait()

	// dispatcher loop
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			close(jobs)
			// kecilkan noise saat shutdown
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			close(jobs)
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) error {
	var err error
	for attempt := 0; attempt <= c.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond): // backoff ringan
			}
		}
		if err = h(ctx, m); err == nil {
			return nil
		}
	}
	return err
}
