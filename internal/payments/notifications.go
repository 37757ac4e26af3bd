package payments

import (
	"context"
	"log"

	"github.com/ariefcatur/go-qr-orders/internal/apperr"
	"github.com/ariefcatur/go-qr-orders/internal/events"
	"github.com/ariefcatur/go-qr-orders/internal/redisx"
)

// Enqueue hands a gateway push to the reconciler instead of settling inline.
// A lost write is picked up later by the Sweeper.
func (s *Service) Enqueue(ctx context.Context, n events.PaymentNotificationPayload) error {
	if n.TrackingID == "" {
		return apperr.Validation("tracking id is required")
	}
	env, err := events.New(events.EventPaymentNotification, s.ServiceName, n.TrackingID, n)
	if err != nil {
		return err
	}
	return s.Events.Publish(ctx, events.TopicPaymentNotification, env)
}

// NotificationHandler consumes queued notifications. Each event is claimed
// once in the dedup store; deterministic failures are logged and dropped,
// gateway failures are returned so the event is redelivered.
type NotificationHandler struct {
	Service *Service
	Dedup   redisx.KV
	Name    string
}

func (h *NotificationHandler) Handle(ctx context.Context, env events.Envelope) error {
	if env.EventType != events.EventPaymentNotification {
		return nil
	}
	if h.Dedup != nil {
		first, err := redisx.Claim(ctx, h.Dedup, h.Name, env.EventID)
		if err != nil {
			log.Printf("dedup claim %s: %v", env.EventID, err)
		} else if !first {
			return nil
		}
	}

	n, err := events.Decode[events.PaymentNotificationPayload](env)
	if err != nil {
		log.Printf("notification %s: bad payload: %v", env.EventID, err)
		return nil
	}
	_, err = h.Service.Reconcile(ctx, n.TrackingID, SourceIPN)
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) == apperr.KindExternal || apperr.KindOf(err) == apperr.KindInternal {
		if h.Dedup != nil {
			_ = redisx.Forget(ctx, h.Dedup, h.Name, env.EventID)
		}
		return err
	}
	log.Printf("notification %s: tracking=%s dropped: %v", env.EventID, n.TrackingID, err)
	return nil
}
