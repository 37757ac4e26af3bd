package inventory

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string
	BusinessID  string
	Name        string
	SKU         string
	Price       decimal.Decimal
	Stock       int
	IsAvailable bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Item is one stock movement request: Qty units of ProductID.
type Item struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// Merge folds repeated products into one item each and orders the result by
// product id, so reservations always lock rows in the same order.
func Merge(items []Item) []Item {
	qty := make(map[string]int, len(items))
	for _, it := range items {
		qty[it.ProductID] += it.Qty
	}
	out := make([]Item, 0, len(qty))
	for id, q := range qty {
		out = append(out, Item{ProductID: id, Qty: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func split(items []Item) (ids []string, qtys []int32) {
	ids = make([]string, len(items))
	qtys = make([]int32, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
		qtys[i] = int32(it.Qty)
	}
	return ids, qtys
}
