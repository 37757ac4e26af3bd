package inventory

import (
	"context"

	"github.com/ariefcatur/go-qr-orders/internal/apperr"
)

// Ledger is the only path that mutates product stock.
type Ledger interface {
	// Adjust applies delta to the product stock if the result stays >= 0 and
	// returns the new stock.
	Adjust(ctx context.Context, productID string, delta int) (int, error)
	// Reserve consumes every item or none of them.
	Reserve(ctx context.Context, items []Item) error
	// Release restores what Reserve consumed.
	Release(ctx context.Context, items []Item) error
}

// Catalog is the read path keyed by (business, product).
type Catalog interface {
	Product(ctx context.Context, businessID, productID string) (Product, error)
}

const (
	// MaxQty bounds the units of one product in a single movement, after
	// repeated lines are folded together.
	MaxQty = 10_000
	// MaxAdjust bounds one operator stock correction either way.
	MaxAdjust = 1_000_000
)

func Validate(items []Item) error {
	if len(items) == 0 {
		return apperr.Validation("at least one item is required")
	}
	total := make(map[string]int, len(items))
	for _, it := range items {
		if it.ProductID == "" {
			return apperr.Validation("item without product id")
		}
		if it.Qty <= 0 || it.Qty > MaxQty {
			return apperr.Validation("invalid qty %d for product %s", it.Qty, it.ProductID)
		}
		total[it.ProductID] += it.Qty
		if total[it.ProductID] > MaxQty {
			return apperr.Validation("qty for product %s exceeds %d", it.ProductID, MaxQty)
		}
	}
	return nil
}

func shortage(productID string, required, available int) error {
	return apperr.Errorf(apperr.ErrInsufficientStock, "insufficient stock for product %s: required %d, available %d",
		productID, required, available)
}
