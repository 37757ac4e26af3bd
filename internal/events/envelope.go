package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated        = "OrderCreated"
	EventOrderStatusChanged  = "OrderStatusChanged"
	EventStockAdjusted       = "StockAdjusted"
	EventPaymentInitiated    = "PaymentInitiated"
	EventPaymentReconciled   = "PaymentReconciled"
	EventPaymentRefunded     = "PaymentRefunded"
	EventPaymentNotification = "PaymentNotification"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id, or tracking id for notifications
	Payload       json.RawMessage `json:"payload"`
}

// New builds a v1 envelope around payload.
func New(eventType, producer, correlationID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}

// Decode unmarshals the payload of env into T.
func Decode[T any](env Envelope) (T, error) {
	var t T
	err := json.Unmarshal(env.Payload, &t)
	return t, err
}

// Publisher hands an envelope to a topic. Implementations may deliver
// asynchronously; a nil error only means the envelope was accepted.
type Publisher interface {
	Publish(ctx context.Context, topic string, env Envelope) error
}

type Discard struct{}

func (Discard) Publish(context.Context, string, Envelope) error { return nil }
