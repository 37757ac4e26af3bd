package httpx

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/ariefcatur/go-qr-orders/internal/apperr"
	"github.com/ariefcatur/go-qr-orders/internal/events"
	"github.com/ariefcatur/go-qr-orders/internal/payments"
	"github.com/go-chi/chi/v5"
)

type PaymentsHandler struct {
	Payments    *payments.Service
	FrontendURL string
	// Queue hands IPNs to the reconciler through Kafka instead of settling
	// them in the request.
	Queue bool
}

// ipnAck is what the gateway expects back from a notification.
type ipnAck struct {
	OrderNotificationType  string `json:"orderNotificationType"`
	OrderTrackingID        string `json:"orderTrackingId"`
	OrderMerchantReference string `json:"orderMerchantReference"`
	Status                 int    `json:"status"`
}

type ipnReq struct {
	OrderNotificationType  string `json:"OrderNotificationType"`
	OrderTrackingID        string `json:"OrderTrackingId"`
	OrderMerchantReference string `json:"OrderMerchantReference"`
}

type abandonReq struct {
	Note string `json:"note"`
}

func (h *PaymentsHandler) Register(r chi.Router) {
	r.Post("/payments/initiate", h.initiate)
	r.Get("/payments/callback", h.callback)
	r.Get("/payments/ipn", h.ipn)
	r.Post("/payments/ipn", h.ipn)
	r.Post("/payments/refunds", h.refund)
	r.Post("/payments/transactions/{id}/abandon", h.abandon)
	r.Get("/payments/{trackingId}", h.verify)
}

func (h *PaymentsHandler) initiate(w http.ResponseWriter, r *http.Request) {
	var req payments.InitiateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	// gateway calls carry their own timeout and retries
	ctx, cancel := context.WithTimeout(r.Context(), 14*time.Second)
	defer cancel()

	s, err := h.Payments.Initiate(ctx, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// callback is where the gateway sends the customer's browser back to.
func (h *PaymentsHandler) callback(w http.ResponseWriter, r *http.Request) {
	trackingID := r.URL.Query().Get("OrderTrackingId")
	res, err := h.Payments.Reconcile(r.Context(), trackingID, payments.SourceCallback)
	tx := res.Transaction
	if errors.Is(err, apperr.ErrStaleNotification) {
		// already settled, show what we have
		tx, err = h.Payments.ByTracking(r.Context(), trackingID)
	}
	if err != nil {
		log.Printf("payment callback: tracking=%s: %v", trackingID, err)
		http.Redirect(w, r, h.FrontendURL+"/payment/error", http.StatusFound)
		return
	}
	page := "/payment/failed"
	if tx.Status == payments.StatusPaid || tx.Status == payments.StatusRefunded {
		page = "/payment/success"
	}
	http.Redirect(w, r, h.FrontendURL+page+"?orderId="+url.QueryEscape(tx.OrderID), http.StatusFound)
}

func (h *PaymentsHandler) ipn(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ipnReq{
		OrderNotificationType:  q.Get("OrderNotificationType"),
		OrderTrackingID:        q.Get("OrderTrackingId"),
		OrderMerchantReference: q.Get("OrderMerchantReference"),
	}
	if r.Method == http.MethodPost {
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	ack := ipnAck{
		OrderNotificationType:  req.OrderNotificationType,
		OrderTrackingID:        req.OrderTrackingID,
		OrderMerchantReference: req.OrderMerchantReference,
		Status:                 http.StatusOK,
	}

	var err error
	if h.Queue {
		err = h.Payments.Enqueue(r.Context(), events.PaymentNotificationPayload{
			TrackingID:        req.OrderTrackingID,
			MerchantReference: req.OrderMerchantReference,
			NotificationType:  req.OrderNotificationType,
		})
	} else {
		_, err = h.Payments.Reconcile(r.Context(), req.OrderTrackingID, payments.SourceIPN)
	}
	if err != nil {
		log.Printf("payment ipn: tracking=%s: %v", req.OrderTrackingID, err)
		// only ask for redelivery when trying again can help
		if k := apperr.KindOf(err); k == apperr.KindExternal || k == apperr.KindInternal {
			ack.Status = http.StatusInternalServerError
		}
	}
	writeJSON(w, ack.Status, ack)
}

func (h *PaymentsHandler) refund(w http.ResponseWriter, r *http.Request) {
	var req payments.RefundRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Payments.Refund(ctx, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *PaymentsHandler) abandon(w http.ResponseWriter, r *http.Request) {
	var req abandonReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tx, err := h.Payments.Abandon(r.Context(), chi.URLParam(r, "id"), req.Note)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *PaymentsHandler) verify(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Payments.ByTracking(r.Context(), chi.URLParam(r, "trackingId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}
