package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-qr-orders/internal/apperr"
	"github.com/ariefcatur/go-qr-orders/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation   = "23505"
	constraintOpenBuy = "transactions_open_purchase_key"
)

type Repo struct{ DB *pgxpool.Pool }

const txColumns = `id, order_id, business_id, user_id, type, amount, currency, status, refunded_amount,
	COALESCE(tracking_id, ''), redirect_url, COALESCE(parent_id, ''), confirmation_code, gateway_method, note,
	created_at, updated_at`

func scanTx(row pgx.Row) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.OrderID, &t.BusinessID, &t.UserID, &t.Type, &t.Amount, &t.Currency, &t.Status,
		&t.RefundedAmount, &t.TrackingID, &t.RedirectURL, &t.ParentID, &t.ConfirmationCode, &t.GatewayMethod, &t.Note,
		&t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (r *Repo) OpenPurchase(ctx context.Context, t Transaction) (Transaction, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transaction{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var pay orders.PaymentStatus
	var status orders.Status
	err = tx.QueryRow(ctx, `SELECT payment_status, status FROM orders WHERE id=$1 FOR UPDATE`, t.OrderID).Scan(&pay, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, apperr.Errorf(apperr.ErrNotFound, "order %s not found", t.OrderID)
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("lock order %s: %w", t.OrderID, err)
	}
	if status == orders.StatusCancelled {
		return Transaction{}, apperr.Errorf(apperr.ErrOrderNotPayable, "order %s is cancelled", t.OrderID)
	}
	if pay != orders.PaymentPending && pay != orders.PaymentFailed {
		return Transaction{}, apperr.Errorf(apperr.ErrPaymentAlreadyInitiated, "order %s payment is %s", t.OrderID, pay)
	}

	t, err = scanTx(tx.QueryRow(ctx, `
		INSERT INTO transactions(id, order_id, business_id, user_id, type, amount, currency, status, refunded_amount,
			note, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)
		RETURNING `+txColumns,
		t.ID, t.OrderID, t.BusinessID, t.UserID, t.Type, t.Amount, t.Currency, t.Status, t.RefundedAmount, t.Note, t.CreatedAt))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraintOpenBuy {
			return Transaction{}, apperr.Errorf(apperr.ErrPaymentAlreadyInitiated, "order %s already has an open payment", t.OrderID)
		}
		return Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE orders SET payment_status='pending', updated_at=$2
		WHERE id=$1 AND payment_status='failed'`, t.OrderID, t.CreatedAt); err != nil {
		return Transaction{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

func (r *Repo) AttachTracking(ctx context.Context, txID, trackingID, redirectURL string) (Transaction, error) {
	t, err := scanTx(r.DB.QueryRow(ctx, `
		UPDATE transactions SET tracking_id=$2, redirect_url=COALESCE(NULLIF($3, ''), redirect_url), updated_at=now()
		WHERE id=$1 AND (tracking_id IS NULL OR tracking_id=$2)
		RETURNING `+txColumns, txID, trackingID, redirectURL))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, fmt.Errorf("attach tracking %s: %w", trackingID, err)
	}
	cur, err := r.Get(ctx, txID)
	if err != nil {
		return Transaction{}, err
	}
	return Transaction{}, apperr.Errorf(apperr.ErrConcurrentUpdate, "transaction %s already tracked as %s", txID, cur.TrackingID)
}

func (r *Repo) Get(ctx context.Context, id string) (Transaction, error) {
	return r.one(ctx, `SELECT `+txColumns+` FROM transactions WHERE id=$1`, id)
}

func (r *Repo) ByTracking(ctx context.Context, trackingID string) (Transaction, error) {
	return r.one(ctx, `SELECT `+txColumns+` FROM transactions WHERE tracking_id=$1`, trackingID)
}

func (r *Repo) PendingUntracked(ctx context.Context, orderID string) (Transaction, error) {
	return r.one(ctx, `SELECT `+txColumns+` FROM transactions
		WHERE order_id=$1 AND type='purchase' AND status='pending' AND tracking_id IS NULL`, orderID)
}

func (r *Repo) one(ctx context.Context, sql string, arg string) (Transaction, error) {
	t, err := scanTx(r.DB.QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, apperr.Errorf(apperr.ErrNotFound, "transaction %s not found", arg)
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("load transaction: %w", err)
	}
	return t, nil
}

func (r *Repo) ListByOrder(ctx context.Context, orderID string) ([]Transaction, error) {
	return r.list(ctx, `SELECT `+txColumns+` FROM transactions WHERE order_id=$1 ORDER BY created_at, id`, orderID)
}

func (r *Repo) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]Transaction, error) {
	return r.list(ctx, `SELECT `+txColumns+` FROM transactions
		WHERE type='purchase' AND status='pending' AND tracking_id IS NOT NULL AND created_at < $1
		ORDER BY created_at LIMIT $2`, olderThan, limit)
}

func (r *Repo) list(ctx context.Context, sql string, args ...any) ([]Transaction, error) {
	rows, err := r.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repo) Settle(ctx context.Context, s Settlement) (SettleResult, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return SettleResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	t, err := scanTx(tx.QueryRow(ctx, `
		UPDATE transactions SET status=$3,
			confirmation_code = COALESCE(NULLIF($4, ''), confirmation_code),
			gateway_method = COALESCE(NULLIF($5, ''), gateway_method),
			note = COALESCE(NULLIF($6, ''), note),
			updated_at=$7
		WHERE id=$1 AND status=$2
		RETURNING `+txColumns, s.TransactionID, s.From, s.To, s.ConfirmationCode, s.GatewayMethod, s.Note, s.At))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := r.Get(ctx, s.TransactionID); err != nil {
			return SettleResult{}, err
		}
		return SettleResult{}, apperr.Errorf(apperr.ErrConcurrentUpdate, "transaction %s is no longer %s", s.TransactionID, s.From)
	}
	if err != nil {
		return SettleResult{}, fmt.Errorf("settle transaction %s: %w", s.TransactionID, err)
	}

	res := SettleResult{Transaction: t}
	switch s.To {
	case StatusPaid:
		var prev orders.Status
		err = tx.QueryRow(ctx, `
			WITH prev AS (SELECT id, status FROM orders WHERE id=$1 FOR UPDATE)
			UPDATE orders o SET payment_status='paid', paid_at=$2, updated_at=$2,
				status = CASE WHEN prev.status='pending' THEN 'confirmed' ELSE o.status END,
				confirmed_at = CASE WHEN prev.status='pending' THEN $2 ELSE o.confirmed_at END
			FROM prev WHERE o.id = prev.id
			RETURNING prev.status, o.status`, t.OrderID, s.At).Scan(&prev, &res.OrderStatus)
		res.OrderAdvanced = prev == orders.StatusPending
	case StatusFailed:
		err = tx.QueryRow(ctx, `
			UPDATE orders SET payment_status = CASE WHEN payment_status='pending' THEN 'failed' ELSE payment_status END,
				updated_at=$2
			WHERE id=$1
			RETURNING status`, t.OrderID, s.At).Scan(&res.OrderStatus)
	}
	if err != nil {
		return SettleResult{}, fmt.Errorf("update order %s payment: %w", t.OrderID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return SettleResult{}, err
	}
	return res, nil
}

func (r *Repo) Refund(ctx context.Context, e RefundEntry) (Transaction, Transaction, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transaction{}, Transaction{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	orig, err := scanTx(tx.QueryRow(ctx, `
		UPDATE transactions SET refunded_amount = refunded_amount + $3,
			status = CASE WHEN refunded_amount + $3 >= amount THEN 'refunded' ELSE status END,
			updated_at=$4
		WHERE id=$1 AND status='paid' AND refunded_amount=$2 AND refunded_amount + $3 <= amount
		RETURNING `+txColumns, e.OriginalID, e.ExpectedRefunded, e.Amount, e.At))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, Transaction{}, apperr.Errorf(apperr.ErrConcurrentUpdate, "transaction %s changed during refund", e.OriginalID)
	}
	if err != nil {
		return Transaction{}, Transaction{}, fmt.Errorf("refund transaction %s: %w", e.OriginalID, err)
	}

	f := e.Refund
	refund, err := scanTx(tx.QueryRow(ctx, `
		INSERT INTO transactions(id, order_id, business_id, user_id, type, amount, currency, status, refunded_amount,
			parent_id, note, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
		RETURNING `+txColumns,
		f.ID, f.OrderID, f.BusinessID, f.UserID, f.Type, f.Amount, f.Currency, f.Status, f.RefundedAmount,
		f.ParentID, f.Note, f.CreatedAt))
	if err != nil {
		return Transaction{}, Transaction{}, fmt.Errorf("insert refund: %w", err)
	}
	if orig.Status == StatusRefunded {
		if _, err := tx.Exec(ctx, `UPDATE orders SET payment_status='refunded', updated_at=$2 WHERE id=$1`,
			orig.OrderID, e.At); err != nil {
			return Transaction{}, Transaction{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, Transaction{}, err
	}
	return orig, refund, nil
}
