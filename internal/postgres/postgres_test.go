package postgres_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ariefcatur/go-qr-orders/internal/apperr"
	"github.com/ariefcatur/go-qr-orders/internal/gateway"
	"github.com/ariefcatur/go-qr-orders/internal/inventory"
	"github.com/ariefcatur/go-qr-orders/internal/orders"
	"github.com/ariefcatur/go-qr-orders/internal/payments"
	"github.com/ariefcatur/go-qr-orders/internal/postgres"
	"github.com/ariefcatur/go-qr-orders/internal/qr"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These run against a real database: POSTGRES_TEST_DSN=postgres://... go test ./internal/postgres
func connect(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()
	db, err := postgres.Connect(ctx, dsn, 3)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, postgres.Migrate(ctx, db))
	require.NoError(t, postgres.Migrate(ctx, db), "migrations are repeatable")
	return db
}

type world struct {
	business, product string
	tokens            *qr.Service
	orders            *orders.Service
	payments          *payments.Service
	db                *pgxpool.Pool
}

type completingGateway struct{}

func (completingGateway) Ready(context.Context) error { return nil }

func (completingGateway) SubmitOrder(_ context.Context, req gateway.ChargeRequest) (gateway.Session, error) {
	return gateway.Session{TrackingID: "T-" + req.MerchantReference, MerchantReference: req.MerchantReference}, nil
}

func (completingGateway) Status(_ context.Context, trackingID string) (gateway.Status, error) {
	return gateway.Status{TrackingID: trackingID, Description: "COMPLETED", MerchantReference: trackingID[2:]}, nil
}

func seed(t *testing.T, db *pgxpool.Pool, stock int) *world {
	t.Helper()
	ctx := context.Background()
	w := &world{business: "B-" + uuid.NewString(), product: "P-" + uuid.NewString(), db: db}
	_, err := db.Exec(ctx, `INSERT INTO products (id, business_id, name, price, stock) VALUES ($1, $2, 'Widget', 100, $3)`,
		w.product, w.business, stock)
	require.NoError(t, err)

	inv := &inventory.Repo{DB: db}
	w.tokens = &qr.Service{Store: &qr.Repo{DB: db}}
	w.orders = &orders.Service{Store: &orders.Repo{DB: db}, Catalog: inv, Tokens: w.tokens}
	w.payments = &payments.Service{Store: &payments.Repo{DB: db}, Orders: w.orders, Gateway: completingGateway{}, Currency: "KES"}
	return w
}

func (w *world) token(t *testing.T, user string) string {
	t.Helper()
	ts, err := w.tokens.Generate(context.Background(), w.business, 1)
	require.NoError(t, err)
	_, err = w.tokens.Bind(context.Background(), ts[0].ID, user)
	require.NoError(t, err)
	return ts[0].ID
}

func (w *world) stock(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, w.db.QueryRow(context.Background(), `SELECT stock FROM products WHERE id = $1`, w.product).Scan(&n))
	return n
}

func TestConcurrentOrdersNeverOversell(t *testing.T) {
	w := seed(t, connect(t), 5)
	tok := w.token(t, "U1")

	var placed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := w.orders.Create(context.Background(), orders.CreateRequest{
				TokenID: tok, Items: []inventory.Item{{ProductID: w.product, Qty: 2}},
			})
			if err == nil {
				placed.Add(1)
			} else {
				assert.True(t, errors.Is(err, apperr.ErrInsufficientStock), err.Error())
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), placed.Load())
	assert.Equal(t, 1, w.stock(t))
}

func TestIdempotencyKeyAndCancel(t *testing.T) {
	w := seed(t, connect(t), 5)
	tok := w.token(t, "U1")
	ctx := context.Background()
	req := orders.CreateRequest{TokenID: tok, Items: []inventory.Item{{ProductID: w.product, Qty: 3}}, IdempotencyKey: uuid.NewString()}

	o, existed, err := w.orders.Create(ctx, req)
	require.NoError(t, err)
	assert.False(t, existed)
	again, existed, err := w.orders.Create(ctx, req)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, o.ID, again.ID)
	assert.Equal(t, 2, w.stock(t))

	c, err := w.orders.Cancel(ctx, o.ID, "changed mind", "U1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, c.Status)
	assert.NotNil(t, c.CancelledAt)
	assert.Equal(t, 5, w.stock(t))

	_, err = w.orders.Cancel(ctx, o.ID, "again", "U1")
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))
	assert.Equal(t, 5, w.stock(t))
}

func TestDuplicateBindingPerBusiness(t *testing.T) {
	w := seed(t, connect(t), 1)
	w.token(t, "U1")
	ts, err := w.tokens.Generate(context.Background(), w.business, 1)
	require.NoError(t, err)

	_, err = w.tokens.Bind(context.Background(), ts[0].ID, "U1")

	assert.True(t, errors.Is(err, apperr.ErrDuplicateBinding))
}

func TestPaymentSettleAndRefund(t *testing.T) {
	w := seed(t, connect(t), 5)
	tok := w.token(t, "U1")
	ctx := context.Background()
	o, _, err := w.orders.Create(ctx, orders.CreateRequest{TokenID: tok, Items: []inventory.Item{{ProductID: w.product, Qty: 1}}})
	require.NoError(t, err)

	s, err := w.payments.Initiate(ctx, payments.InitiateRequest{OrderID: o.ID})
	require.NoError(t, err)
	_, err = w.payments.Initiate(ctx, payments.InitiateRequest{OrderID: o.ID})
	assert.True(t, errors.Is(err, apperr.ErrPaymentAlreadyInitiated))

	res, err := w.payments.Reconcile(ctx, s.TrackingID, payments.SourceIPN)
	require.NoError(t, err)
	assert.Equal(t, payments.OutcomeApplied, res.Outcome)
	assert.Equal(t, orders.StatusConfirmed, res.OrderStatus)

	dup, err := w.payments.Reconcile(ctx, s.TrackingID, payments.SourceCallback)
	require.NoError(t, err)
	assert.Equal(t, payments.OutcomeDuplicate, dup.Outcome)

	_, err = w.payments.Refund(ctx, payments.RefundRequest{TransactionID: s.TransactionID, Amount: decimal.NewFromInt(40)})
	require.NoError(t, err)
	_, err = w.payments.Refund(ctx, payments.RefundRequest{TransactionID: s.TransactionID, Amount: decimal.NewFromInt(61)})
	assert.True(t, errors.Is(err, apperr.ErrRefundExceedsBalance))
	r, err := w.payments.Refund(ctx, payments.RefundRequest{TransactionID: s.TransactionID, Amount: decimal.NewFromInt(60)})
	require.NoError(t, err)
	assert.Equal(t, payments.StatusRefunded, r.Original.Status)

	got, err := w.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentRefunded, got.PaymentStatus)

	history, err := w.payments.History(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}
