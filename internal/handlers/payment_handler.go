package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lanepos/backend/internal/providers"
	"github.com/lanepos/backend/internal/services"
)

type PaymentHandler struct {
	payments   *services.PaymentService
	reconciler *services.ReconcilerService
	validator  *services.ValidationHelper
}

func NewPaymentHandler(payments *services.PaymentService, reconciler *services.ReconcilerService) *PaymentHandler {
	return &PaymentHandler{
		payments:   payments,
		reconciler: reconciler,
		validator:  services.NewValidationHelper(),
	}
}

type attachPaymentRequest struct {
	Provider    string                 `json:"provider" validate:"required"`
	TargetKind  string                 `json:"targetKind"`
	TargetValue string                 `json:"targetValue"`
	Token       string                 `json:"token"`
	Card        *providers.CardDetails `json:"card"`
	PollTimeout int                    `json:"pollTimeoutSeconds" validate:"omitempty,min=1,max=600"`
}

// AttachPayment starts a payment attempt on an open order
// @Summary Attach Payment
// @Description Collect payment for an open order through the named provider
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Param request body attachPaymentRequest true "Payment attempt request"
// @Success 200 {object} services.PaymentOutcome
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Router /orders/{id}/payment [post]
func (h *PaymentHandler) AttachPayment(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	var req attachPaymentRequest

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
	if req.Card != nil {
		if err := h.validator.ValidateStruct(req.Card); err != nil {
			services.SendErrorResponse(w, "Card validation failed", http.StatusBadRequest, err)
			return
		}
	}

	attach := services.AttachRequest{
		OrderID:  orderID,
		Provider: req.Provider,
		Target:   providers.Target{Kind: providers.TargetKind(req.TargetKind), Value: req.TargetValue},
		Token:    req.Token,
		Card:     req.Card,
	}
	if req.PollTimeout > 0 {
		attach.Poll = &services.PollConfig{
			MaxAttempts: req.PollTimeout / 2,
			Interval:    2 * time.Second,
		}
		if attach.Poll.MaxAttempts < 1 {
			attach.Poll.MaxAttempts = 1
		}
	}

	outcome, err := h.payments.AttachPayment(r.Context(), attach)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(outcome)
}

// GetPaymentStatus returns the ledger view of a payment
// @Summary Get Payment Status
// @Description Fetch the recorded state of a payment by transaction id
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param transactionId path string true "Transaction ID"
// @Success 200 {object} models.Payment
// @Failure 404 {object} services.ErrorResponse
// @Router /payments/{transactionId} [get]
func (h *PaymentHandler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	payment, err := h.payments.PaymentStatus(r.Context(), chi.URLParam(r, "transactionId"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payment)
}

type pollPaymentRequest struct {
	MaxAttempts int  `json:"maxAttempts" validate:"omitempty,min=1,max=600"`
	IntervalMs  *int `json:"intervalMs" validate:"omitempty,min=0,max=60000"`
}

// decodePollConfig reads the optional pacing body. An absent or empty body
// leaves the coordinator defaults in charge; an explicit intervalMs of 0
// polls back to back.
func (h *PaymentHandler) decodePollConfig(w http.ResponseWriter, r *http.Request) (services.PollConfig, error) {
	var req pollPaymentRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		if err == io.EOF {
			return services.PollConfig{}, nil
		}
		return services.PollConfig{}, errInvalidBody
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return services.PollConfig{}, errInvalidBody
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		return services.PollConfig{}, err
	}

	cfg := services.PollConfig{MaxAttempts: req.MaxAttempts}
	if req.IntervalMs != nil {
		cfg.Interval = time.Duration(*req.IntervalMs) * time.Millisecond
		if cfg.Interval == 0 {
			cfg.Interval = services.PollNoWait
		}
	}
	return cfg, nil
}

// PollPayment re-polls a timed-out payment to a terminal outcome
// @Summary Poll Payment
// @Description Resume polling a pending payment that previously timed out
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param transactionId path string true "Transaction ID"
// @Param request body pollPaymentRequest false "Polling bounds"
// @Success 200 {object} services.PaymentOutcome
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /payments/{transactionId}/poll [post]
func (h *PaymentHandler) PollPayment(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.decodePollConfig(w, r)
	if err != nil {
		if err == errInvalidBody {
			services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		} else {
			services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		}
		return
	}

	outcome, err := h.payments.PollPayment(r.Context(), chi.URLParam(r, "transactionId"), cfg)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(outcome)
}

// VoidPayment cancels an unsettled payment on an order
// @Summary Void Order Payment
// @Description Void the authorized-but-unsettled payment on an order
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Success 200 {object} services.ReversalReport
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Router /orders/{id}/void [post]
func (h *PaymentHandler) VoidPayment(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.VoidOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// RefundPayment reverses a settled payment on an order
// @Summary Refund Order Payment
// @Description Refund the captured payment on a paid order
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Success 200 {object} services.ReversalReport
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Router /orders/{id}/refund [post]
func (h *PaymentHandler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.RefundOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
