// Package memstore keeps every store contract in process memory behind one
// mutex. It backs STORE_DRIVER=memory and the service tests.
package memstore

import (
	"sync"

	"github.com/ariefcatur/go-qr-orders/internal/inventory"
	"github.com/ariefcatur/go-qr-orders/internal/orders"
	"github.com/ariefcatur/go-qr-orders/internal/payments"
	"github.com/ariefcatur/go-qr-orders/internal/qr"
)

type DB struct {
	mu       sync.Mutex
	products map[string]inventory.Product
	tokens   map[string]qr.Token
	orders   map[string]orders.Order
	external map[string]string // external id -> order id
	txs      map[string]payments.Transaction
	tracking map[string]string // tracking id -> transaction id
	txOrder  []string          // insertion order of transactions
}

func New() *DB {
	return &DB{
		products: map[string]inventory.Product{},
		tokens:   map[string]qr.Token{},
		orders:   map[string]orders.Order{},
		external: map[string]string{},
		txs:      map[string]payments.Transaction{},
		tracking: map[string]string{},
	}
}

func (db *DB) Inventory() *Inventory { return &Inventory{db} }
func (db *DB) Tokens() *Tokens       { return &Tokens{db} }
func (db *DB) Orders() *Orders       { return &Orders{db} }
func (db *DB) Payments() *Payments   { return &Payments{db} }

// PutProduct seeds or replaces a product.
func (db *DB) PutProduct(p inventory.Product) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.products[p.ID] = p
}

// PutToken seeds or replaces a token.
func (db *DB) PutToken(t qr.Token) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tokens[t.ID] = t
}

func (db *DB) Stock(productID string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.products[productID].Stock
}

func cloneOrder(o orders.Order) orders.Order {
	o.Lines = append([]orders.Line(nil), o.Lines...)
	return o
}
