package memstore

import (
	"context"
	"time"

	"github.com/ariefcatur/go-qr-orders/internal/apperr"
	"github.com/ariefcatur/go-qr-orders/internal/inventory"
)

type Inventory struct{ db *DB }

func (s *Inventory) Product(_ context.Context, businessID, productID string) (inventory.Product, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.products[productID]
	if !ok || p.BusinessID != businessID {
		return inventory.Product{}, apperr.Errorf(apperr.ErrNotFound, "product %s not found", productID)
	}
	return p, nil
}

func (s *Inventory) Adjust(_ context.Context, productID string, delta int) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.products[productID]
	if !ok {
		return 0, apperr.Errorf(apperr.ErrNotFound, "product %s not found", productID)
	}
	if p.Stock+delta < 0 {
		return 0, apperr.Errorf(apperr.ErrInsufficientStock, "insufficient stock for product %s: required %d, available %d",
			productID, -delta, p.Stock)
	}
	p.Stock += delta
	p.UpdatedAt = time.Now().UTC()
	s.db.products[productID] = p
	return p.Stock, nil
}

func (s *Inventory) Reserve(_ context.Context, items []inventory.Item) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.reserve(items)
}

func (s *Inventory) Release(_ context.Context, items []inventory.Item) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.release(items)
}

// reserve checks every item before touching any, so a failure leaves stock
// unchanged. Callers hold mu.
func (db *DB) reserve(items []inventory.Item) error {
	if err := inventory.Validate(items); err != nil {
		return err
	}
	items = inventory.Merge(items)
	for _, it := range items {
		p, ok := db.products[it.ProductID]
		if !ok {
			return apperr.Errorf(apperr.ErrNotFound, "product %s not found", it.ProductID)
		}
		if p.Stock < it.Qty {
			return apperr.Errorf(apperr.ErrInsufficientStock, "insufficient stock for product %s: required %d, available %d",
				it.ProductID, it.Qty, p.Stock)
		}
	}
	for _, it := range items {
		p := db.products[it.ProductID]
		p.Stock -= it.Qty
		db.products[it.ProductID] = p
	}
	return nil
}

func (db *DB) release(items []inventory.Item) error {
	if err := inventory.Validate(items); err != nil {
		return err
	}
	items = inventory.Merge(items)
	for _, it := range items {
		if _, ok := db.products[it.ProductID]; !ok {
			return apperr.Errorf(apperr.ErrNotFound, "product %s not found", it.ProductID)
		}
	}
	for _, it := range items {
		p := db.products[it.ProductID]
		p.Stock += it.Qty
		db.products[it.ProductID] = p
	}
	return nil
}
