package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-qr-orders/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Product(ctx context.Context, businessID, productID string) (Product, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `
		SELECT id, business_id, name, sku, price, stock, is_available, created_at, updated_at
		FROM products WHERE id=$1 AND business_id=$2`, productID, businessID).
		Scan(&p.ID, &p.BusinessID, &p.Name, &p.SKU, &p.Price, &p.Stock, &p.IsAvailable, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, apperr.Errorf(apperr.ErrNotFound, "product %s not found", productID)
	}
	if err != nil {
		return Product{}, fmt.Errorf("load product %s: %w", productID, err)
	}
	return p, nil
}

// Adjust is a single conditional update; no read happens before the write.
func (r *Repo) Adjust(ctx context.Context, productID string, delta int) (int, error) {
	var stock int
	err := r.DB.QueryRow(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id=$1 AND stock + $2 >= 0
		RETURNING stock`, productID, delta).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("adjust stock %s: %w", productID, err)
	}
	// the condition failed: tell a missing product apart from a shortage
	if err := r.DB.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, productID).Scan(&stock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperr.Errorf(apperr.ErrNotFound, "product %s not found", productID)
		}
		return 0, fmt.Errorf("adjust stock %s: %w", productID, err)
	}
	return 0, shortage(productID, -delta, stock)
}

func (r *Repo) Reserve(ctx context.Context, items []Item) error {
	return r.inTx(ctx, func(tx pgx.Tx) error { return ReserveTx(ctx, tx, items) })
}

func (r *Repo) Release(ctx context.Context, items []Item) error {
	return r.inTx(ctx, func(tx pgx.Tx) error { return ReleaseTx(ctx, tx, items) })
}

func (r *Repo) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ReserveTx decrements every item inside tx with one multi-row conditional
// update. Rows are locked in product id order first so that two concurrent
// reservations over overlapping products cannot deadlock, and so a shortage
// can be reported with the stock that caused it. Callers own the tx.
func ReserveTx(ctx context.Context, tx pgx.Tx, items []Item) error {
	if err := Validate(items); err != nil {
		return err
	}
	items = Merge(items)
	ids, qtys := split(items)

	rows, err := tx.Query(ctx, `SELECT id, stock FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return fmt.Errorf("lock products: %w", err)
	}
	stock := make(map[string]int, len(items))
	for rows.Next() {
		var id string
		var s int
		if err := rows.Scan(&id, &s); err != nil {
			rows.Close()
			return err
		}
		stock[id] = s
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, it := range items {
		s, ok := stock[it.ProductID]
		if !ok {
			return apperr.Errorf(apperr.ErrNotFound, "product %s not found", it.ProductID)
		}
		if s < it.Qty {
			return shortage(it.ProductID, it.Qty, s)
		}
	}

	ct, err := tx.Exec(ctx, `
		UPDATE products p SET stock = p.stock - r.qty, updated_at = now()
		FROM unnest($1::text[], $2::int[]) AS r(id, qty)
		WHERE p.id = r.id AND p.stock >= r.qty`, ids, qtys)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	if ct.RowsAffected() != int64(len(items)) {
		return apperr.Errorf(apperr.ErrInsufficientStock, "insufficient stock for %d products", len(items)-int(ct.RowsAffected()))
	}
	return nil
}

func ReleaseTx(ctx context.Context, tx pgx.Tx, items []Item) error {
	if err := Validate(items); err != nil {
		return err
	}
	items = Merge(items)
	ids, qtys := split(items)
	ct, err := tx.Exec(ctx, `
		UPDATE products p SET stock = p.stock + r.qty, updated_at = now()
		FROM unnest($1::text[], $2::int[]) AS r(id, qty)
		WHERE p.id = r.id`, ids, qtys)
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	if ct.RowsAffected() != int64(len(items)) {
		return apperr.Errorf(apperr.ErrNotFound, "release stock: %d of %d products missing",
			len(items)-int(ct.RowsAffected()), len(items))
	}
	return nil
}
