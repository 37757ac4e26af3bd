package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-qr-orders/internal/apperr"
	"github.com/ariefcatur/go-qr-orders/internal/inventory"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

// querier is satisfied by both the pool and a tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var stampColumn = map[Status]string{
	StatusConfirmed: "confirmed_at",
	StatusPreparing: "preparing_at",
	StatusReady:     "ready_at",
	StatusDelivered: "delivered_at",
	StatusCancelled: "cancelled_at",
}

const orderColumns = `id, COALESCE(external_id, ''), business_id, user_id, token_id, total, status, payment_status,
	payment_method, delivery_address, delivery_phone, delivery_notes, cancellation_reason, cancelled_by,
	created_at, updated_at, confirmed_at, preparing_at, ready_at, delivered_at, cancelled_at, paid_at`

// Create: idempotent via external_id.
// - if external_id already exists -> existing order, existed=true, no stock touched.
func (r *Repo) Create(ctx context.Context, o Order) (Order, bool, error) {
	if o.ExternalID != "" {
		if prior, err := r.byExternalID(ctx, r.DB, o.ExternalID); err == nil {
			return prior, true, nil
		} else if !errors.Is(err, apperr.ErrNotFound) {
			return Order{}, false, err
		}
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := inventory.ReserveTx(ctx, tx, o.Items()); err != nil {
		return Order{}, false, err
	}

	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO orders(id, external_id, business_id, user_id, token_id, total, status, payment_status,
			payment_method, delivery_address, delivery_phone, delivery_notes, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		ON CONFLICT (external_id) DO NOTHING
		RETURNING id`,
		o.ID, o.ExternalID, o.BusinessID, o.UserID, o.TokenID, o.Total, o.Status, o.PaymentStatus,
		o.PaymentMethod, o.Delivery.Address, o.Delivery.Phone, o.Delivery.Notes, o.CreatedAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		// lost the race on external_id: the rollback returns the stock
		_ = tx.Rollback(ctx)
		prior, err := r.byExternalID(ctx, r.DB, o.ExternalID)
		if err != nil {
			return Order{}, false, err
		}
		return prior, true, nil
	}
	if err != nil {
		return Order{}, false, fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for i, l := range o.Lines {
		batch.Queue(`INSERT INTO order_lines(order_id, line_no, product_id, name, qty, unit_price, total)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`, o.ID, i, l.ProductID, l.Name, l.Qty, l.UnitPrice, l.Total)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return Order{}, false, fmt.Errorf("insert order lines: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, false, err
	}
	return o, false, nil
}

func (r *Repo) Get(ctx context.Context, id string) (Order, error) {
	return get(ctx, r.DB, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
}

func (r *Repo) byExternalID(ctx context.Context, q querier, externalID string) (Order, error) {
	return get(ctx, q, `SELECT `+orderColumns+` FROM orders WHERE external_id=$1`, externalID)
}

func (r *Repo) Apply(ctx context.Context, t Transition) (Order, error) {
	col, ok := stampColumn[t.To]
	if !ok {
		return Order{}, apperr.Validation("cannot stamp status %q", t.To)
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE orders SET status=$3, `+col+`=$4, updated_at=$4,
			cancellation_reason = CASE WHEN $3 = 'cancelled' THEN $5 ELSE cancellation_reason END,
			cancelled_by = CASE WHEN $3 = 'cancelled' THEN $6 ELSE cancelled_by END
		WHERE id=$1 AND status=$2`, t.OrderID, t.From, t.To, t.At, t.Reason, t.By)
	if err != nil {
		return Order{}, fmt.Errorf("update order status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		cur, err := get(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, t.OrderID)
		if err != nil {
			return Order{}, err
		}
		return Order{}, apperr.Errorf(apperr.ErrInvalidTransition, "order %s is %s, expected %s", t.OrderID, cur.Status, t.From)
	}

	o, err := get(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, t.OrderID)
	if err != nil {
		return Order{}, err
	}
	if t.To == StatusCancelled {
		if err := inventory.ReleaseTx(ctx, tx, o.Items()); err != nil {
			return Order{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return o, nil
}

func get(ctx context.Context, q querier, sql string, arg any) (Order, error) {
	var o Order
	err := q.QueryRow(ctx, sql, arg).Scan(
		&o.ID, &o.ExternalID, &o.BusinessID, &o.UserID, &o.TokenID, &o.Total, &o.Status, &o.PaymentStatus,
		&o.PaymentMethod, &o.Delivery.Address, &o.Delivery.Phone, &o.Delivery.Notes, &o.CancellationReason, &o.CancelledBy,
		&o.CreatedAt, &o.UpdatedAt, &o.ConfirmedAt, &o.PreparingAt, &o.ReadyAt, &o.DeliveredAt, &o.CancelledAt, &o.PaidAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, apperr.Errorf(apperr.ErrNotFound, "order %v not found", arg)
	}
	if err != nil {
		return Order{}, fmt.Errorf("load order: %w", err)
	}

	rows, err := q.Query(ctx, `SELECT product_id, name, qty, unit_price, total FROM order_lines
		WHERE order_id=$1 ORDER BY line_no`, o.ID)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ProductID, &l.Name, &l.Qty, &l.UnitPrice, &l.Total); err != nil {
			return Order{}, err
		}
		o.Lines = append(o.Lines, l)
	}
	return o, rows.Err()
}
