package inventory

import (
	"context"
	"log"

	"github.com/ariefcatur/go-qr-orders/internal/apperr"
	"github.com/ariefcatur/go-qr-orders/internal/events"
)

// Service exposes operator stock corrections on top of the Ledger.
type Service struct {
	Ledger      Ledger
	Events      events.Publisher
	ServiceName string
}

// Adjust restocks (delta > 0) or writes off (delta < 0) units of a product.
func (s *Service) Adjust(ctx context.Context, productID string, delta int, reason string) (int, error) {
	if productID == "" {
		return 0, apperr.Validation("product id is required")
	}
	if delta == 0 {
		return 0, apperr.Validation("delta must not be zero")
	}
	if delta > MaxAdjust || delta < -MaxAdjust {
		return 0, apperr.Validation("delta %d out of range", delta)
	}
	stock, err := s.Ledger.Adjust(ctx, productID, delta)
	if err != nil {
		return 0, err
	}
	log.Printf("stock adjusted: product=%s delta=%d stock=%d reason=%q", productID, delta, stock, reason)
	if s.Events == nil {
		return stock, nil
	}

	env, err := events.New(events.EventStockAdjusted, s.ServiceName, productID, events.StockAdjustedPayload{
		ProductID: productID, Delta: delta, Stock: stock, Reason: reason,
	})
	if err == nil {
		err = s.Events.Publish(ctx, events.TopicStockAdjusted, env)
	}
	if err != nil {
		log.Printf("publish stock adjusted: product=%s: %v", productID, err)
	}
	return stock, nil
}
