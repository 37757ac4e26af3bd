package orders_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-qr-orders/internal/apperr"
	"github.com/ariefcatur/go-qr-orders/internal/events"
	"github.com/ariefcatur/go-qr-orders/internal/inventory"
	"github.com/ariefcatur/go-qr-orders/internal/memstore"
	"github.com/ariefcatur/go-qr-orders/internal/orders"
	"github.com/ariefcatur/go-qr-orders/internal/qr"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db  *memstore.DB
	svc *orders.Service
	pub *memstore.Recorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := memstore.New()
	db.PutToken(qr.Token{ID: "QR-001", BusinessID: "B1", Code: "QR000001", UserID: "U1", IsActive: true})
	db.PutToken(qr.Token{ID: "QR-002", BusinessID: "B1", Code: "QR000002", IsActive: true})
	db.PutProduct(inventory.Product{ID: "widget", BusinessID: "B1", Name: "Widget", Price: decimal.NewFromInt(100), Stock: 5, IsAvailable: true})
	db.PutProduct(inventory.Product{ID: "gadget", BusinessID: "B1", Name: "Gadget", Price: decimal.RequireFromString("12.50"), Stock: 10, IsAvailable: true})
	db.PutProduct(inventory.Product{ID: "retired", BusinessID: "B1", Name: "Retired", Price: decimal.NewFromInt(1), Stock: 10, IsAvailable: false})
	db.PutProduct(inventory.Product{ID: "foreign", BusinessID: "B2", Name: "Foreign", Price: decimal.NewFromInt(1), Stock: 10, IsAvailable: true})

	pub := &memstore.Recorder{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := &orders.Service{
		Store:   db.Orders(),
		Catalog: db.Inventory(),
		Tokens:  &qr.Service{Store: db.Tokens()},
		Events:  pub,
		Idem:    memstore.NewKV(),
		Now:     func() time.Time { return now },
	}
	return fixture{db: db, svc: svc, pub: pub}
}

func (f fixture) create(t *testing.T, items ...inventory.Item) orders.Order {
	t.Helper()
	o, existed, err := f.svc.Create(context.Background(), orders.CreateRequest{TokenID: "QR-001", Items: items})
	require.NoError(t, err)
	require.False(t, existed)
	return o
}

func TestCreateSnapshotsPricesAndReservesStock(t *testing.T) {
	f := newFixture(t)

	o := f.create(t, inventory.Item{ProductID: "widget", Qty: 1}, inventory.Item{ProductID: "gadget", Qty: 2})

	assert.Equal(t, "B1", o.BusinessID)
	assert.Equal(t, "U1", o.UserID)
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, orders.PaymentPending, o.PaymentStatus)
	assert.Equal(t, orders.MethodCash, o.PaymentMethod)
	assert.True(t, decimal.NewFromInt(125).Equal(o.Total), o.Total.String())
	assert.Equal(t, 4, f.db.Stock("widget"))
	assert.Equal(t, 8, f.db.Stock("gadget"))
	assert.Equal(t, []string{events.TopicOrderCreated}, f.pub.Topics())

	// a later price change does not touch the placed order
	f.db.PutProduct(inventory.Product{ID: "widget", BusinessID: "B1", Name: "Widget", Price: decimal.NewFromInt(999), Stock: 4, IsAvailable: true})
	got, err := f.svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(125).Equal(got.Total))
	assert.Equal(t, "widget", got.Lines[1].ProductID)
	assert.True(t, decimal.NewFromInt(100).Equal(got.Lines[1].UnitPrice))
}

func TestCreateRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := []struct {
		name string
		req  orders.CreateRequest
		want error
	}{
		{"unbound token", orders.CreateRequest{TokenID: "QR-002", Items: []inventory.Item{{ProductID: "widget", Qty: 1}}}, apperr.ErrInvalidToken},
		{"unknown token", orders.CreateRequest{TokenID: "nope", Items: []inventory.Item{{ProductID: "widget", Qty: 1}}}, apperr.ErrInvalidToken},
		{"unavailable product", orders.CreateRequest{TokenID: "QR-001", Items: []inventory.Item{{ProductID: "retired", Qty: 1}}}, apperr.ErrProductUnavailable},
		{"other business product", orders.CreateRequest{TokenID: "QR-001", Items: []inventory.Item{{ProductID: "foreign", Qty: 1}}}, apperr.ErrProductUnavailable},
		{"no items", orders.CreateRequest{TokenID: "QR-001"}, apperr.ErrValidation},
		{"zero qty", orders.CreateRequest{TokenID: "QR-001", Items: []inventory.Item{{ProductID: "widget", Qty: 0}}}, apperr.ErrValidation},
		{"bad method", orders.CreateRequest{TokenID: "QR-001", PaymentMethod: "barter", Items: []inventory.Item{{ProductID: "widget", Qty: 1}}}, apperr.ErrValidation},
		{"insufficient stock", orders.CreateRequest{TokenID: "QR-001", Items: []inventory.Item{{ProductID: "gadget", Qty: 1}, {ProductID: "widget", Qty: 6}}}, apperr.ErrInsufficientStock},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, _, err := f.svc.Create(ctx, c.req)
			assert.True(t, errors.Is(err, c.want), "got %v", err)
		})
	}
	assert.Equal(t, 5, f.db.Stock("widget"))
	assert.Equal(t, 10, f.db.Stock("gadget"))
	assert.Empty(t, f.pub.Topics())
}

func TestCreateRejectsOversizedQuantities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Create(ctx, orders.CreateRequest{TokenID: "QR-001", Items: []inventory.Item{
		{ProductID: "widget", Qty: math.MaxInt}, {ProductID: "widget", Qty: 2},
	}})

	assert.True(t, errors.Is(err, apperr.ErrValidation))
	assert.Equal(t, 5, f.db.Stock("widget"))
	assert.Empty(t, f.pub.Topics())

	err = f.db.Inventory().Reserve(ctx, []inventory.Item{{ProductID: "widget", Qty: math.MaxInt}, {ProductID: "widget", Qty: 2}})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	assert.Equal(t, 5, f.db.Stock("widget"))
}

func TestCreateWithIdempotencyKeyReservesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := orders.CreateRequest{TokenID: "QR-001", IdempotencyKey: "k-1", Items: []inventory.Item{{ProductID: "widget", Qty: 2}}}

	first, existed, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	assert.False(t, existed)

	second, existed, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 3, f.db.Stock("widget"))
}

func TestConcurrentCreatesNeverOversell(t *testing.T) {
	f := newFixture(t)
	var wg sync.WaitGroup
	var mu sync.Mutex
	placed := 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.svc.Create(context.Background(), orders.CreateRequest{
				TokenID: "QR-001", Items: []inventory.Item{{ProductID: "widget", Qty: 2}},
			})
			if err == nil {
				mu.Lock()
				placed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 2, placed)
	assert.Equal(t, 1, f.db.Stock("widget"))
}

func TestStatusGraph(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.create(t, inventory.Item{ProductID: "widget", Qty: 1})

	_, err := f.svc.UpdateStatus(ctx, o.ID, orders.StatusDelivered)
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))

	for _, s := range []orders.Status{orders.StatusConfirmed, orders.StatusPreparing, orders.StatusReady} {
		o, err = f.svc.UpdateStatus(ctx, o.ID, s)
		require.NoError(t, err)
	}
	_, err = f.svc.Cancel(ctx, o.ID, "changed mind", "U1")
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))

	o, err = f.svc.UpdateStatus(ctx, o.ID, orders.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusDelivered, o.Status)
	assert.NotNil(t, o.ConfirmedAt)
	assert.NotNil(t, o.ReadyAt)
	assert.NotNil(t, o.DeliveredAt)

	_, err = f.svc.Cancel(ctx, o.ID, "", "")
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))
	assert.Equal(t, 4, f.db.Stock("widget"))

	_, err = f.svc.UpdateStatus(ctx, o.ID, "shipped")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestCancelRestoresStockExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.create(t, inventory.Item{ProductID: "widget", Qty: 2})
	require.Equal(t, 3, f.db.Stock("widget"))

	cancelled, err := f.svc.Cancel(ctx, o.ID, "customer left", "staff-7")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, cancelled.Status)
	assert.Equal(t, "customer left", cancelled.CancellationReason)
	assert.Equal(t, "staff-7", cancelled.CancelledBy)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, 5, f.db.Stock("widget"))

	_, err = f.svc.Cancel(ctx, o.ID, "again", "staff-7")
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))
	assert.Equal(t, 5, f.db.Stock("widget"))
	assert.Equal(t, []string{events.TopicOrderCreated, events.TopicOrderStatusChanged}, f.pub.Topics())
}

func TestCanTransition(t *testing.T) {
	assert.True(t, orders.CanTransition(orders.StatusPending, orders.StatusConfirmed))
	assert.True(t, orders.CanTransition(orders.StatusPreparing, orders.StatusCancelled))
	assert.False(t, orders.CanTransition(orders.StatusReady, orders.StatusCancelled))
	assert.False(t, orders.CanTransition(orders.StatusCancelled, orders.StatusPending))
	assert.True(t, orders.StatusDelivered.Terminal())
	assert.False(t, orders.StatusReady.Terminal())
}
