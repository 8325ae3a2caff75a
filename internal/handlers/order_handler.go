package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/lanepos/backend/internal/middleware"
	"github.com/lanepos/backend/internal/services"
)

type OrderHandler struct {
	orders    *services.OrderService
	validator *services.ValidationHelper
}

func NewOrderHandler(orders *services.OrderService) *OrderHandler {
	return &OrderHandler{
		orders:    orders,
		validator: services.NewValidationHelper(),
	}
}

// CreateOrder opens a new order in the ledger
// @Summary Create Order
// @Description Open a new order for an invoice and amount
// @Tags Orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{invoiceNumber=string,laneId=string,amount=string,notes=string} true "Order creation request"
// @Success 201 {object} models.Order
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /orders [post]
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value(middleware.UserIDKey).(string)

	var req struct {
		InvoiceNumber string `json:"invoiceNumber" validate:"required,max=64"`
		LaneID        string `json:"laneId" validate:"required,max=32"`
		Amount        string `json:"amount" validate:"required"`
		Notes         string `json:"notes" validate:"max=500"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		services.SendErrorResponse(w, "Amount must be a positive decimal", http.StatusBadRequest, nil)
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), req.InvoiceNumber, req.LaneID, amount, userID, req.Notes)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(order)
}

// GetOrder returns one order with its payment attempts
// @Summary Get Order
// @Description Fetch an order and its payment attempts by id
// @Tags Orders
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Success 200 {object} object{order=models.Order,payments=[]models.Payment}
// @Failure 404 {object} services.ErrorResponse
// @Router /orders/{id} [get]
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	order, err := h.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	payments, err := h.orders.ListPayments(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"order":    order,
		"payments": payments,
	})
}

// ListOrders returns recent orders, optionally filtered
// @Summary List Orders
// @Description List recent orders filtered by status and lane
// @Tags Orders
// @Produce json
// @Security BearerAuth
// @Param status query string false "Order status filter"
// @Param laneId query string false "Lane filter"
// @Param limit query int false "Max rows (default 50)"
// @Success 200 {object} object{orders=[]models.Order,count=int}
// @Router /orders [get]
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			services.SendErrorResponse(w, "limit must be between 1 and 500", http.StatusBadRequest, nil)
			return
		}
		limit = parsed
	}

	orders, err := h.orders.ListOrders(r.Context(), r.URL.Query().Get("status"), r.URL.Query().Get("laneId"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"orders": orders,
		"count":  len(orders),
	})
}
