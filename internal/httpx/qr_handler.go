package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-qr-orders/internal/qr"
	"github.com/go-chi/chi/v5"
)

type QRHandler struct {
	QR *qr.Service
}

type generateReq struct {
	Quantity int `json:"quantity"`
}

type bindReq struct {
	UserID string `json:"user_id"`
}

type activeReq struct {
	IsActive bool `json:"is_active"`
}

func (h *QRHandler) Register(r chi.Router) {
	r.Post("/businesses/{businessID}/qr-codes", h.generate)
	r.Post("/businesses/{businessID}/qr-codes/{code}/scan", h.scan)
	r.Post("/qr-codes/{id}/bind", h.bind)
	r.Post("/qr-codes/{id}/unbind", h.unbind)
	r.Patch("/qr-codes/{id}/active", h.setActive)
}

func (h *QRHandler) generate(w http.ResponseWriter, r *http.Request) {
	var req generateReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ts, err := h.QR.Generate(r.Context(), chi.URLParam(r, "businessID"), req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ts)
}

func (h *QRHandler) scan(w http.ResponseWriter, r *http.Request) {
	t, err := h.QR.Scan(r.Context(), chi.URLParam(r, "businessID"), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *QRHandler) bind(w http.ResponseWriter, r *http.Request) {
	var req bindReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := h.QR.Bind(r.Context(), chi.URLParam(r, "id"), req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *QRHandler) unbind(w http.ResponseWriter, r *http.Request) {
	t, err := h.QR.Unbind(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *QRHandler) setActive(w http.ResponseWriter, r *http.Request) {
	var req activeReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := h.QR.SetActive(r.Context(), chi.URLParam(r, "id"), req.IsActive)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
