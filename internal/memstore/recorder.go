package memstore

import (
	"context"
	"sync"

	"github.com/ariefcatur/go-qr-orders/internal/events"
)

// Recorder is a Publisher that keeps what it was given.
type Recorder struct {
	mu   sync.Mutex
	sent []Published
}

type Published struct {
	Topic    string
	Envelope events.Envelope
}

func (r *Recorder) Publish(_ context.Context, topic string, env events.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Published{Topic: topic, Envelope: env})
	return nil
}

func (r *Recorder) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, p := range r.sent {
		out = append(out, p.Topic)
	}
	return out
}

func (r *Recorder) Sent() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Published(nil), r.sent...)
}
