package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-qr-orders/internal/inventory"
	"github.com/go-chi/chi/v5"
)

type StockHandler struct {
	Inventory *inventory.Service
}

type adjustReq struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

type adjustResp struct {
	ProductID string `json:"product_id"`
	Stock     int    `json:"stock"`
}

func (h *StockHandler) Register(r chi.Router) {
	r.Post("/products/{id}/stock", h.adjust)
}

func (h *StockHandler) adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	stock, err := h.Inventory.Adjust(r.Context(), id, req.Delta, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adjustResp{ProductID: id, Stock: stock})
}
