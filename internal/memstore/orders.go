package memstore

import (
	"context"

	"github.com/ariefcatur/go-qr-orders/internal/apperr"
	"github.com/ariefcatur/go-qr-orders/internal/orders"
)

type Orders struct{ db *DB }

func (s *Orders) Create(_ context.Context, o orders.Order) (orders.Order, bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if o.ExternalID != "" {
		if id, ok := s.db.external[o.ExternalID]; ok {
			return cloneOrder(s.db.orders[id]), true, nil
		}
	}
	if err := s.db.reserve(o.Items()); err != nil {
		return orders.Order{}, false, err
	}
	o = cloneOrder(o)
	s.db.orders[o.ID] = o
	if o.ExternalID != "" {
		s.db.external[o.ExternalID] = o.ID
	}
	return cloneOrder(o), false, nil
}

func (s *Orders) Get(_ context.Context, id string) (orders.Order, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, ok := s.db.orders[id]
	if !ok {
		return orders.Order{}, apperr.Errorf(apperr.ErrNotFound, "order %s not found", id)
	}
	return cloneOrder(o), nil
}

func (s *Orders) Apply(_ context.Context, t orders.Transition) (orders.Order, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, ok := s.db.orders[t.OrderID]
	if !ok {
		return orders.Order{}, apperr.Errorf(apperr.ErrNotFound, "order %s not found", t.OrderID)
	}
	if o.Status != t.From {
		return orders.Order{}, apperr.Errorf(apperr.ErrInvalidTransition, "order %s is %s, expected %s", t.OrderID, o.Status, t.From)
	}
	if t.To == orders.StatusCancelled {
		if err := s.db.release(o.Items()); err != nil {
			return orders.Order{}, err
		}
		o.CancellationReason = t.Reason
		o.CancelledBy = t.By
	}
	o.Status = t.To
	o.Stamp(t.To, t.At)
	s.db.orders[o.ID] = o
	return cloneOrder(o), nil
}
