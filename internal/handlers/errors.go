package handlers

import (
	"errors"
	"net/http"

	"github.com/lanepos/backend/internal/providers"
	"github.com/lanepos/backend/internal/services"
)

// errInvalidBody marks a malformed or trailing-data request body, as opposed
// to a well-formed body that fails field validation.
var errInvalidBody = errors.New("invalid request body")

// writeServiceError maps service and provider errors onto HTTP statuses so
// every handler reports conflicts, lookups and gateway failures the same way.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrPaymentNotFound):
		services.SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
	case errors.Is(err, services.ErrDuplicateInvoice),
		errors.Is(err, services.ErrDuplicateTransaction),
		errors.Is(err, services.ErrOrderNotOpen),
		errors.Is(err, services.ErrPaymentInProgress),
		errors.Is(err, services.ErrAmountMismatch),
		errors.Is(err, services.ErrInvalidTransition):
		services.SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
	case errors.Is(err, providers.ErrUnknownProvider),
		errors.Is(err, providers.ErrInvalidAmount),
		errors.Is(err, providers.ErrMissingTarget):
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, providers.ErrGatewayUnreachable):
		services.SendErrorResponse(w, err.Error(), http.StatusBadGateway, nil)
	default:
		var gw *providers.GatewayError
		if errors.As(err, &gw) {
			services.SendErrorResponse(w, err.Error(), http.StatusBadGateway, nil)
			return
		}
		services.SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)
	}
}
