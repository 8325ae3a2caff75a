package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lanepos/backend/internal/services"
)

type SyncHandler struct {
	sync   *services.SyncService
	orders *services.OrderService
}

func NewSyncHandler(sync *services.SyncService, orders *services.OrderService) *SyncHandler {
	return &SyncHandler{
		sync:   sync,
		orders: orders,
	}
}

// RetrySync re-runs the accounting sync for one order
// @Summary Retry Zoho Sync
// @Description Re-run the Zoho Books forwarding for a paid order
// @Tags Sync
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Success 200 {object} models.Order
// @Failure 404 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Router /orders/{id}/sync [post]
func (h *SyncHandler) RetrySync(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	if err := h.sync.RetrySync(r.Context(), orderID); err != nil {
		writeServiceError(w, err)
		return
	}

	order, err := h.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(order)
}
