package payments

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/ariefcatur/go-qr-orders/internal/apperr"
	"github.com/ariefcatur/go-qr-orders/internal/events"
	"github.com/ariefcatur/go-qr-orders/internal/gateway"
	"github.com/ariefcatur/go-qr-orders/internal/orders"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scope = "github.com/ariefcatur/go-qr-orders/internal/payments"

var (
	tracer      = otel.Tracer(scope)
	outcomes, _ = otel.Meter(scope).Int64Counter("payments.reconcile.outcomes",
		metric.WithDescription("reconciliation attempts by outcome"))
)

const (
	// refund CAS attempts before giving up on a hot transaction
	refundAttempts = 3
	moneyScale     = 2
)

type Gateway interface {
	// Ready obtains the credentials a submission needs (token, IPN id).
	Ready(ctx context.Context) error
	SubmitOrder(ctx context.Context, req gateway.ChargeRequest) (gateway.Session, error)
	Status(ctx context.Context, trackingID string) (gateway.Status, error)
}

type OrderReader interface {
	Get(ctx context.Context, id string) (orders.Order, error)
}

type Service struct {
	Store       Store
	Orders      OrderReader
	Gateway     Gateway
	Events      events.Publisher
	Currency    string
	ServiceName string
	Now         func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

type InitiateRequest struct {
	OrderID  string           `json:"order_id"`
	Customer gateway.Customer `json:"customer"`
}

type Session struct {
	TransactionID string          `json:"transaction_id"`
	OrderID       string          `json:"order_id"`
	TrackingID    string          `json:"tracking_id"`
	RedirectURL   string          `json:"redirect_url"`
	Amount        decimal.Decimal `json:"amount"`
}

// Initiate opens a gateway charge session for an order. Gateway credentials
// are checked first so a failure there leaves no state behind. The pending
// transaction is claimed before the charge is submitted and carries the
// tracking id before Initiate returns.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (sess Session, err error) {
	ctx, span := tracer.Start(ctx, "payments.initiate", trace.WithAttributes(attribute.String("order.id", req.OrderID)))
	defer func() { endSpan(span, err) }()

	if req.OrderID == "" {
		return Session{}, apperr.Validation("order id is required")
	}
	o, err := s.Orders.Get(ctx, req.OrderID)
	if err != nil {
		return Session{}, err
	}
	if o.Status == orders.StatusCancelled {
		return Session{}, apperr.Errorf(apperr.ErrOrderNotPayable, "order %s is cancelled", o.ID)
	}
	if o.PaymentStatus != orders.PaymentPending && o.PaymentStatus != orders.PaymentFailed {
		return Session{}, apperr.Errorf(apperr.ErrPaymentAlreadyInitiated, "order %s payment is %s", o.ID, o.PaymentStatus)
	}
	if !o.Total.IsPositive() {
		return Session{}, apperr.Errorf(apperr.ErrOrderNotPayable, "order %s has nothing to pay", o.ID)
	}

	if err := s.Gateway.Ready(ctx); err != nil {
		log.Printf("payment gateway not ready: order=%s: %v", o.ID, err)
		return Session{}, err
	}

	now := s.now()
	tx, err := s.Store.OpenPurchase(ctx, Transaction{
		ID:             uuid.NewString(),
		OrderID:        o.ID,
		BusinessID:     o.BusinessID,
		UserID:         o.UserID,
		Type:           TypePurchase,
		Amount:         o.Total,
		Currency:       s.Currency,
		Status:         StatusPending,
		RefundedAmount: decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return Session{}, err
	}

	gs, err := s.Gateway.SubmitOrder(ctx, gateway.ChargeRequest{
		MerchantReference: o.ID,
		Amount:            o.Total,
		Description:       "Order " + o.ID,
		Customer:          req.Customer,
	})
	if errors.Is(err, gateway.ErrSubmitAmbiguous) {
		log.Printf("payment submission ambiguous: order=%s transaction=%s: %v", o.ID, tx.ID, err)
		return Session{}, apperr.Wrap(apperr.ErrGatewayUnavailable, err,
			"order %s transaction %s: submission outcome unknown, manual reconciliation required", o.ID, tx.ID)
	}
	if err != nil {
		if _, ferr := s.Store.Settle(ctx, Settlement{
			TransactionID: tx.ID, From: StatusPending, To: StatusFailed, Note: "submission rejected", At: s.now(),
		}); ferr != nil {
			log.Printf("mark transaction failed: order=%s transaction=%s: %v", o.ID, tx.ID, ferr)
		}
		return Session{}, err
	}

	attached, err := s.Store.AttachTracking(ctx, tx.ID, gs.TrackingID, gs.RedirectURL)
	if err != nil {
		log.Printf("attach tracking failed: order=%s transaction=%s tracking=%s: %v", o.ID, tx.ID, gs.TrackingID, err)
		return Session{}, err
	}
	tx = attached
	log.Printf("payment initiated: order=%s transaction=%s tracking=%s", o.ID, tx.ID, gs.TrackingID)
	s.publish(ctx, events.TopicPaymentInitiated, events.EventPaymentInitiated, o.ID, events.PaymentInitiatedPayload{
		OrderID: o.ID, TransactionID: tx.ID, TrackingID: gs.TrackingID, Amount: tx.Amount.String(),
	})
	return Session{
		TransactionID: tx.ID,
		OrderID:       o.ID,
		TrackingID:    gs.TrackingID,
		RedirectURL:   gs.RedirectURL,
		Amount:        tx.Amount,
	}, nil
}

// Reconcile settles the transaction behind trackingID from the gateway's
// authoritative status. Repeated calls with an unchanged gateway status are
// no-ops.
func (s *Service) Reconcile(ctx context.Context, trackingID string, src Source) (res Result, err error) {
	ctx, span := tracer.Start(ctx, "payments.reconcile", trace.WithAttributes(
		attribute.String("payment.tracking_id", trackingID), attribute.String("payment.source", string(src))))
	defer func() {
		outcome := string(res.Outcome)
		if err != nil {
			outcome = apperr.CodeOf(err)
		}
		outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome), attribute.String("source", string(src))))
		endSpan(span, err)
	}()

	if trackingID == "" {
		return Result{}, apperr.Validation("tracking id is required")
	}
	st, err := s.Gateway.Status(ctx, trackingID)
	if err != nil {
		return Result{}, err
	}
	tx, err := s.lookup(ctx, trackingID, st.MerchantReference)
	if err != nil {
		return Result{}, err
	}
	if !gateway.Known(st.Description) {
		log.Printf("unmapped gateway status %q: tracking=%s treated as pending", st.Description, trackingID)
	}

	mapped := st.Local()
	next, outcome, err := decide(tx.Status, mapped)
	if err != nil {
		log.Printf("stale notification: tracking=%s transaction=%s local=%s gateway=%s", trackingID, tx.ID, tx.Status, mapped)
		return Result{}, apperr.Wrap(apperr.ErrStaleNotification, err, "transaction %s is %s, gateway reports %s", tx.ID, tx.Status, mapped)
	}
	if outcome != OutcomeApplied {
		return Result{Transaction: tx, Previous: tx.Status, Outcome: outcome}, nil
	}

	sr, err := s.Store.Settle(ctx, Settlement{
		TransactionID:    tx.ID,
		From:             tx.Status,
		To:               next,
		ConfirmationCode: st.ConfirmationCode,
		GatewayMethod:    st.PaymentMethod,
		At:               s.now(),
	})
	if errors.Is(err, apperr.ErrConcurrentUpdate) {
		// another delivery got there first
		cur, gerr := s.Store.Get(ctx, tx.ID)
		if gerr != nil {
			return Result{}, gerr
		}
		if _, o, derr := decide(cur.Status, mapped); derr == nil && o == OutcomeDuplicate {
			return Result{Transaction: cur, Previous: cur.Status, Outcome: OutcomeDuplicate}, nil
		}
		return Result{}, apperr.Wrap(apperr.ErrStaleNotification, err, "transaction %s moved to %s concurrently", tx.ID, cur.Status)
	}
	if err != nil {
		return Result{}, err
	}

	if next == StatusPaid && !sr.OrderAdvanced {
		log.Printf("payment conflict: order=%s is %s, payment recorded without advancing (tracking=%s)",
			tx.OrderID, sr.OrderStatus, trackingID)
	}
	log.Printf("payment reconciled: order=%s transaction=%s tracking=%s %s -> %s source=%s",
		tx.OrderID, tx.ID, trackingID, tx.Status, next, src)
	s.publish(ctx, events.TopicPaymentReconciled, events.EventPaymentReconciled, tx.OrderID, events.PaymentReconciledPayload{
		OrderID: tx.OrderID, TransactionID: tx.ID, TrackingID: trackingID,
		From: string(tx.Status), To: string(next), OrderStatus: string(sr.OrderStatus), Source: string(src),
	})
	return Result{Transaction: sr.Transaction, Previous: tx.Status, Outcome: OutcomeApplied, OrderStatus: sr.OrderStatus}, nil
}

// lookup resolves the local transaction for trackingID. A notification that
// beats AttachTracking is matched through the merchant reference to the
// order's untracked pending purchase.
func (s *Service) lookup(ctx context.Context, trackingID, merchantRef string) (Transaction, error) {
	tx, err := s.Store.ByTracking(ctx, trackingID)
	if err == nil || !errors.Is(err, apperr.ErrNotFound) {
		return tx, err
	}
	if merchantRef != "" {
		if tx, err := s.Store.PendingUntracked(ctx, merchantRef); err == nil {
			log.Printf("tracking %s matched to untracked transaction %s of order %s", trackingID, tx.ID, merchantRef)
			return s.Store.AttachTracking(ctx, tx.ID, trackingID, "")
		}
	}
	return Transaction{}, apperr.Errorf(apperr.ErrTransactionNotFound, "no transaction for tracking %s (merchant reference %q)", trackingID, merchantRef)
}

var errDowngrade = errors.New("status would move backwards")

// decide maps (local, gateway) to the next local status. Transactions only
// move pending -> paid|failed; anything else is a duplicate or stale.
func decide(cur Status, mapped gateway.LocalStatus) (Status, Outcome, error) {
	switch mapped {
	case gateway.LocalPaid:
		switch cur {
		case StatusPending:
			return StatusPaid, OutcomeApplied, nil
		case StatusPaid, StatusRefunded:
			return cur, OutcomeDuplicate, nil
		}
	case gateway.LocalFailed:
		switch cur {
		case StatusPending:
			return StatusFailed, OutcomeApplied, nil
		case StatusFailed:
			return cur, OutcomeDuplicate, nil
		}
	default:
		if cur == StatusPending {
			return cur, OutcomePending, nil
		}
	}
	return cur, "", errDowngrade
}

type RefundRequest struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
}

type RefundResult struct {
	Original Transaction `json:"original"`
	Refund   Transaction `json:"refund"`
}

// Refund gives back part or all of a paid purchase. Stock is not restored.
func (s *Service) Refund(ctx context.Context, req RefundRequest) (res RefundResult, err error) {
	ctx, span := tracer.Start(ctx, "payments.refund", trace.WithAttributes(attribute.String("transaction.id", req.TransactionID)))
	defer func() { endSpan(span, err) }()

	if req.TransactionID == "" {
		return RefundResult{}, apperr.Validation("transaction id is required")
	}
	if !req.Amount.IsPositive() {
		return RefundResult{}, apperr.Validation("refund amount must be positive")
	}
	// amounts are stored with cents precision
	if !req.Amount.Equal(req.Amount.Truncate(moneyScale)) {
		return RefundResult{}, apperr.Validation("refund amount %s has more than %d decimal places", req.Amount, moneyScale)
	}

	for attempt := 0; attempt < refundAttempts; attempt++ {
		orig, err := s.Store.Get(ctx, req.TransactionID)
		if err != nil {
			return RefundResult{}, err
		}
		if orig.Type != TypePurchase || orig.Status != StatusPaid {
			return RefundResult{}, apperr.Errorf(apperr.ErrNotRefundable, "transaction %s is a %s %s", orig.ID, orig.Status, orig.Type)
		}
		if req.Amount.GreaterThan(orig.Refundable()) {
			return RefundResult{}, apperr.Errorf(apperr.ErrRefundExceedsBalance, "refund %s exceeds refundable %s on transaction %s",
				req.Amount, orig.Refundable(), orig.ID)
		}
		now := s.now()
		orig, refund, err := s.Store.Refund(ctx, RefundEntry{
			OriginalID:       orig.ID,
			ExpectedRefunded: orig.RefundedAmount,
			Amount:           req.Amount,
			At:               now,
			Refund: Transaction{
				ID:             uuid.NewString(),
				OrderID:        orig.OrderID,
				BusinessID:     orig.BusinessID,
				UserID:         orig.UserID,
				Type:           TypeRefund,
				Amount:         req.Amount.Neg(),
				Currency:       orig.Currency,
				Status:         StatusPaid,
				RefundedAmount: decimal.Zero,
				ParentID:       orig.ID,
				Note:           req.Reason,
				CreatedAt:      now,
				UpdatedAt:      now,
			},
		})
		if errors.Is(err, apperr.ErrConcurrentUpdate) {
			continue
		}
		if err != nil {
			return RefundResult{}, err
		}
		log.Printf("refund recorded: order=%s transaction=%s refund=%s amount=%s refunded=%s status=%s",
			orig.OrderID, orig.ID, refund.ID, req.Amount, orig.RefundedAmount, orig.Status)
		s.publish(ctx, events.TopicPaymentRefunded, events.EventPaymentRefunded, orig.OrderID, events.PaymentRefundedPayload{
			OrderID: orig.OrderID, TransactionID: orig.ID, RefundID: refund.ID, Amount: req.Amount.String(),
			RefundedAmount: orig.RefundedAmount.String(), Status: string(orig.Status),
		})
		return RefundResult{Original: orig, Refund: refund}, nil
	}
	return RefundResult{}, apperr.Errorf(apperr.ErrConcurrentUpdate, "transaction %s kept changing, refund not applied", req.TransactionID)
}

// Abandon fails a pending purchase whose submission never produced a tracking
// id, after an operator confirmed out of band that no charge exists.
func (s *Service) Abandon(ctx context.Context, txID, note string) (Transaction, error) {
	tx, err := s.Store.Get(ctx, txID)
	if err != nil {
		return Transaction{}, err
	}
	if tx.Status != StatusPending {
		return Transaction{}, apperr.Errorf(apperr.ErrInvalidTransition, "transaction %s is %s", tx.ID, tx.Status)
	}
	if tx.TrackingID != "" {
		return Transaction{}, apperr.Validation("transaction %s has tracking id %s, reconcile it instead", tx.ID, tx.TrackingID)
	}
	sr, err := s.Store.Settle(ctx, Settlement{
		TransactionID: tx.ID, From: StatusPending, To: StatusFailed, Note: note, At: s.now(),
	})
	if err != nil {
		return Transaction{}, err
	}
	log.Printf("transaction abandoned: order=%s transaction=%s note=%q", tx.OrderID, tx.ID, note)
	return sr.Transaction, nil
}

func (s *Service) History(ctx context.Context, orderID string) ([]Transaction, error) {
	if orderID == "" {
		return nil, apperr.Validation("order id is required")
	}
	if _, err := s.Orders.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return s.Store.ListByOrder(ctx, orderID)
}

func (s *Service) ByTracking(ctx context.Context, trackingID string) (Transaction, error) {
	tx, err := s.Store.ByTracking(ctx, trackingID)
	if errors.Is(err, apperr.ErrNotFound) {
		return Transaction{}, apperr.Errorf(apperr.ErrTransactionNotFound, "no transaction for tracking %s", trackingID)
	}
	return tx, err
}

func (s *Service) publish(ctx context.Context, topic, eventType, orderID string, payload any) {
	if s.Events == nil {
		return
	}
	env, err := events.New(eventType, s.ServiceName, orderID, payload)
	if err == nil {
		env.TraceID = trace.SpanContextFromContext(ctx).TraceID().String()
		err = s.Events.Publish(ctx, topic, env)
	}
	if err != nil {
		log.Printf("publish %s: order=%s: %v", eventType, orderID, err)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.CodeOf(err))
	}
	span.End()
}
