package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/ariefcatur/go-qr-orders/internal/apperr"
	"github.com/ariefcatur/go-qr-orders/internal/orders"
	"github.com/ariefcatur/go-qr-orders/internal/payments"
)

type Payments struct{ db *DB }

func (s *Payments) OpenPurchase(_ context.Context, t payments.Transaction) (payments.Transaction, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, ok := s.db.orders[t.OrderID]
	if !ok {
		return payments.Transaction{}, apperr.Errorf(apperr.ErrNotFound, "order %s not found", t.OrderID)
	}
	if o.Status == orders.StatusCancelled {
		return payments.Transaction{}, apperr.Errorf(apperr.ErrOrderNotPayable, "order %s is cancelled", t.OrderID)
	}
	if o.PaymentStatus != orders.PaymentPending && o.PaymentStatus != orders.PaymentFailed {
		return payments.Transaction{}, apperr.Errorf(apperr.ErrPaymentAlreadyInitiated, "order %s payment is %s", t.OrderID, o.PaymentStatus)
	}
	for _, x := range s.db.txs {
		if x.OrderID == t.OrderID && x.Type == payments.TypePurchase && x.Status != payments.StatusFailed {
			return payments.Transaction{}, apperr.Errorf(apperr.ErrPaymentAlreadyInitiated, "order %s already has an open payment", t.OrderID)
		}
	}
	s.db.put(t)
	if o.PaymentStatus == orders.PaymentFailed {
		o.PaymentStatus = orders.PaymentPending
		o.UpdatedAt = t.CreatedAt
		s.db.orders[o.ID] = o
	}
	return t, nil
}

func (db *DB) put(t payments.Transaction) {
	if _, ok := db.txs[t.ID]; !ok {
		db.txOrder = append(db.txOrder, t.ID)
	}
	db.txs[t.ID] = t
	if t.TrackingID != "" {
		db.tracking[t.TrackingID] = t.ID
	}
}

func (s *Payments) AttachTracking(_ context.Context, txID, trackingID, redirectURL string) (payments.Transaction, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t, ok := s.db.txs[txID]
	if !ok {
		return payments.Transaction{}, apperr.Errorf(apperr.ErrNotFound, "transaction %s not found", txID)
	}
	if t.TrackingID != "" && t.TrackingID != trackingID {
		return payments.Transaction{}, apperr.Errorf(apperr.ErrConcurrentUpdate, "transaction %s already tracked as %s", txID, t.TrackingID)
	}
	if other, ok := s.db.tracking[trackingID]; ok && other != txID {
		return payments.Transaction{}, apperr.Errorf(apperr.ErrConcurrentUpdate, "tracking %s belongs to transaction %s", trackingID, other)
	}
	t.TrackingID = trackingID
	if redirectURL != "" {
		t.RedirectURL = redirectURL
	}
	t.UpdatedAt = time.Now().UTC()
	s.db.put(t)
	return t, nil
}

func (s *Payments) Get(_ context.Context, id string) (payments.Transaction, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t, ok := s.db.txs[id]
	if !ok {
		return payments.Transaction{}, apperr.Errorf(apperr.ErrNotFound, "transaction %s not found", id)
	}
	return t, nil
}

func (s *Payments) ByTracking(_ context.Context, trackingID string) (payments.Transaction, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	id, ok := s.db.tracking[trackingID]
	if !ok {
		return payments.Transaction{}, apperr.Errorf(apperr.ErrNotFound, "transaction %s not found", trackingID)
	}
	return s.db.txs[id], nil
}

func (s *Payments) PendingUntracked(_ context.Context, orderID string) (payments.Transaction, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, id := range s.db.txOrder {
		t := s.db.txs[id]
		if t.OrderID == orderID && t.Type == payments.TypePurchase && t.Status == payments.StatusPending && t.TrackingID == "" {
			return t, nil
		}
	}
	return payments.Transaction{}, apperr.Errorf(apperr.ErrNotFound, "no untracked transaction for order %s", orderID)
}

func (s *Payments) ListByOrder(_ context.Context, orderID string) ([]payments.Transaction, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []payments.Transaction
	for _, id := range s.db.txOrder {
		if t := s.db.txs[id]; t.OrderID == orderID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Payments) ListStalePending(_ context.Context, olderThan time.Time, limit int) ([]payments.Transaction, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []payments.Transaction
	for _, t := range s.db.txs {
		if t.Type == payments.TypePurchase && t.Status == payments.StatusPending && t.TrackingID != "" && t.CreatedAt.Before(olderThan) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Payments) Settle(_ context.Context, st payments.Settlement) (payments.SettleResult, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t, ok := s.db.txs[st.TransactionID]
	if !ok {
		return payments.SettleResult{}, apperr.Errorf(apperr.ErrNotFound, "transaction %s not found", st.TransactionID)
	}
	if t.Status != st.From {
		return payments.SettleResult{}, apperr.Errorf(apperr.ErrConcurrentUpdate, "transaction %s is no longer %s", t.ID, st.From)
	}
	o, ok := s.db.orders[t.OrderID]
	if !ok {
		return payments.SettleResult{}, apperr.Errorf(apperr.ErrNotFound, "order %s not found", t.OrderID)
	}

	t.Status = st.To
	if st.ConfirmationCode != "" {
		t.ConfirmationCode = st.ConfirmationCode
	}
	if st.GatewayMethod != "" {
		t.GatewayMethod = st.GatewayMethod
	}
	if st.Note != "" {
		t.Note = st.Note
	}
	t.UpdatedAt = st.At

	res := payments.SettleResult{}
	switch st.To {
	case payments.StatusPaid:
		at := st.At
		o.PaymentStatus = orders.PaymentPaid
		o.PaidAt = &at
		if o.Status == orders.StatusPending {
			o.Status = orders.StatusConfirmed
			o.Stamp(orders.StatusConfirmed, st.At)
			res.OrderAdvanced = true
		}
	case payments.StatusFailed:
		if o.PaymentStatus == orders.PaymentPending {
			o.PaymentStatus = orders.PaymentFailed
		}
	}
	o.UpdatedAt = st.At
	s.db.put(t)
	s.db.orders[o.ID] = o
	res.Transaction = t
	res.OrderStatus = o.Status
	return res, nil
}

func (s *Payments) Refund(_ context.Context, e payments.RefundEntry) (payments.Transaction, payments.Transaction, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	orig, ok := s.db.txs[e.OriginalID]
	if !ok {
		return payments.Transaction{}, payments.Transaction{}, apperr.Errorf(apperr.ErrNotFound, "transaction %s not found", e.OriginalID)
	}
	next := orig.RefundedAmount.Add(e.Amount)
	if orig.Status != payments.StatusPaid || !orig.RefundedAmount.Equal(e.ExpectedRefunded) || next.GreaterThan(orig.Amount) {
		return payments.Transaction{}, payments.Transaction{}, apperr.Errorf(apperr.ErrConcurrentUpdate, "transaction %s changed during refund", e.OriginalID)
	}
	orig.RefundedAmount = next
	if next.GreaterThanOrEqual(orig.Amount) {
		orig.Status = payments.StatusRefunded
		if o, ok := s.db.orders[orig.OrderID]; ok {
			o.PaymentStatus = orders.PaymentRefunded
			o.UpdatedAt = e.At
			s.db.orders[o.ID] = o
		}
	}
	orig.UpdatedAt = e.At
	s.db.put(orig)
	s.db.put(e.Refund)
	return orig, e.Refund, nil
}
