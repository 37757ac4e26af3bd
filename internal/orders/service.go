package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ariefcatur/go-qr-orders/internal/apperr"
	"github.com/ariefcatur/go-qr-orders/internal/events"
	"github.com/ariefcatur/go-qr-orders/internal/inventory"
	"github.com/ariefcatur/go-qr-orders/internal/qr"
	"github.com/ariefcatur/go-qr-orders/internal/redisx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/ariefcatur/go-qr-orders/internal/orders")

type TokenResolver interface {
	Resolve(ctx context.Context, tokenID string) (qr.Binding, error)
}

type Service struct {
	Store   Store
	Catalog inventory.Catalog
	Tokens  TokenResolver
	Events  events.Publisher
	// Idem is an optional fast path for Idempotency-Key lookups; the store
	// stays authoritative.
	Idem        redisx.KV
	ServiceName string
	Now         func() time.Time
}

type CreateRequest struct {
	TokenID        string           `json:"token_id"`
	Items          []inventory.Item `json:"items"`
	PaymentMethod  PaymentMethod    `json:"payment_method"`
	Delivery       Delivery         `json:"delivery"`
	IdempotencyKey string           `json:"-"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Create places an order for the user bound to req.TokenID. The returned
// bool reports whether an order for the same idempotency key already existed.
func (s *Service) Create(ctx context.Context, req CreateRequest) (o Order, existed bool, err error) {
	ctx, span := tracer.Start(ctx, "orders.create")
	defer func() { endSpan(span, err) }()

	if err := inventory.Validate(req.Items); err != nil {
		return Order{}, false, err
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = MethodCash
	}
	if !req.PaymentMethod.Valid() {
		return Order{}, false, apperr.Validation("unknown payment method %q", req.PaymentMethod)
	}

	b, err := s.Tokens.Resolve(ctx, req.TokenID)
	if err != nil {
		return Order{}, false, err
	}
	span.SetAttributes(attribute.String("business.id", b.BusinessID))

	var externalID, idemKey string
	if req.IdempotencyKey != "" {
		externalID = b.UserID + ":" + req.IdempotencyKey
		idemKey = fmt.Sprintf(redisx.KeyIdemOrderCreate, externalID)
		if prior, ok := s.cachedOrder(ctx, idemKey); ok {
			return prior, true, nil
		}
	}

	now := s.now()
	o = Order{
		ID:            uuid.NewString(),
		ExternalID:    externalID,
		BusinessID:    b.BusinessID,
		UserID:        b.UserID,
		TokenID:       b.TokenID,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		PaymentMethod: req.PaymentMethod,
		Delivery:      req.Delivery,
		Total:         decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, it := range inventory.Merge(req.Items) {
		p, err := s.Catalog.Product(ctx, b.BusinessID, it.ProductID)
		if errors.Is(err, apperr.ErrNotFound) {
			return Order{}, false, apperr.Errorf(apperr.ErrProductUnavailable, "product %s not found", it.ProductID)
		}
		if err != nil {
			return Order{}, false, err
		}
		if !p.IsAvailable {
			return Order{}, false, apperr.Errorf(apperr.ErrProductUnavailable, "product %s is not available", it.ProductID)
		}
		line := Line{
			ProductID: p.ID,
			Name:      p.Name,
			Qty:       it.Qty,
			UnitPrice: p.Price,
			Total:     p.Price.Mul(decimal.NewFromInt(int64(it.Qty))),
		}
		o.Lines = append(o.Lines, line)
		o.Total = o.Total.Add(line.Total)
	}

	o, existed, err = s.Store.Create(ctx, o)
	if err != nil {
		return Order{}, false, err
	}
	span.SetAttributes(attribute.String("order.id", o.ID))
	if idemKey != "" && s.Idem != nil {
		if err := s.Idem.Set(ctx, idemKey, o.ID, redisx.TTLIdempotency); err != nil {
			log.Printf("idempotency cache: order=%s: %v", o.ID, err)
		}
	}
	if existed {
		return o, true, nil
	}
	log.Printf("order created: order=%s business=%s user=%s total=%s", o.ID, o.BusinessID, o.UserID, o.Total)
	s.publish(ctx, events.TopicOrderCreated, events.EventOrderCreated, o.ID, createdPayload(o))
	return o, false, nil
}

func (s *Service) cachedOrder(ctx context.Context, key string) (Order, bool) {
	if s.Idem == nil {
		return Order{}, false
	}
	id, ok, err := s.Idem.Get(ctx, key)
	if err != nil || !ok {
		return Order{}, false
	}
	o, err := s.Store.Get(ctx, id)
	if err != nil {
		return Order{}, false
	}
	return o, true
}

func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	if id == "" {
		return Order{}, apperr.Validation("order id is required")
	}
	return s.Store.Get(ctx, id)
}

// UpdateStatus advances the order along the status graph.
func (s *Service) UpdateStatus(ctx context.Context, id string, target Status) (Order, error) {
	return s.transition(ctx, id, target, "", "")
}

// Cancel moves the order to cancelled and restores its stock. Cancelling a
// delivered or already cancelled order is an ErrInvalidTransition.
func (s *Service) Cancel(ctx context.Context, id, reason, by string) (Order, error) {
	return s.transition(ctx, id, StatusCancelled, reason, by)
}

func (s *Service) transition(ctx context.Context, id string, target Status, reason, by string) (o Order, err error) {
	ctx, span := tracer.Start(ctx, "orders.transition", trace.WithAttributes(
		attribute.String("order.id", id), attribute.String("order.target", string(target))))
	defer func() { endSpan(span, err) }()

	if !target.Valid() {
		return Order{}, apperr.Validation("unknown order status %q", target)
	}
	cur, err := s.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(cur.Status, target) {
		return Order{}, apperr.Errorf(apperr.ErrInvalidTransition, "order %s cannot move from %s to %s", id, cur.Status, target)
	}
	o, err = s.Store.Apply(ctx, Transition{
		OrderID: id, From: cur.Status, To: target, At: s.now(), Reason: reason, By: by,
	})
	if err != nil {
		return Order{}, err
	}
	log.Printf("order status: order=%s %s -> %s", id, cur.Status, target)
	s.publish(ctx, events.TopicOrderStatusChanged, events.EventOrderStatusChanged, id, events.OrderStatusChangedPayload{
		OrderID: id, From: string(cur.Status), To: string(target), Reason: reason, By: by,
	})
	return o, nil
}

// publish runs after the state change is committed; failures are logged.
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

func createdPayload(o Order) events.OrderCreatedPayload {
	p := events.OrderCreatedPayload{
		OrderID:       o.ID,
		ExternalID:    o.ExternalID,
		BusinessID:    o.BusinessID,
		UserID:        o.UserID,
		PaymentMethod: string(o.PaymentMethod),
		Total:         o.Total.String(),
	}
	for _, l := range o.Lines {
		p.Lines = append(p.Lines, events.LinePayload{ProductID: l.ProductID, Qty: l.Qty, UnitPrice: l.UnitPrice.String()})
	}
	return p
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.CodeOf(err))
	}
	span.End()
}
