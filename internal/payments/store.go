package payments

import (
	"context"
	"time"
)

type Store interface {
	// OpenPurchase inserts tx as a pending purchase unless the order already
	// has a pending, paid or refunded purchase (ErrPaymentAlreadyInitiated).
	// An order whose payment had failed goes back to payment status pending.
	OpenPurchase(ctx context.Context, tx Transaction) (Transaction, error)
	AttachTracking(ctx context.Context, txID, trackingID, redirectURL string) (Transaction, error)
	Get(ctx context.Context, id string) (Transaction, error)
	ByTracking(ctx context.Context, trackingID string) (Transaction, error)
	// PendingUntracked is the open purchase of an order that has no tracking
	// id yet.
	PendingUntracked(ctx context.Context, orderID string) (Transaction, error)
	ListByOrder(ctx context.Context, orderID string) ([]Transaction, error)
	// Settle moves the transaction s.From -> s.To and updates the owning
	// order in the same atomic step. ErrConcurrentUpdate when it is no
	// longer in s.From.
	Settle(ctx context.Context, s Settlement) (SettleResult, error)
	// Refund records e.Refund and bumps the original's accumulator, marking
	// it refunded once fully offset. ErrConcurrentUpdate when the original
	// is no longer paid with e.ExpectedRefunded.
	Refund(ctx context.Context, e RefundEntry) (original Transaction, refund Transaction, err error)
	// ListStalePending returns tracked pending purchases created before
	// olderThan, oldest first.
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]Transaction, error)
}
