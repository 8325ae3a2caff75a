package services

import (
	"context"
	"fmt"
	"log"

	"github.com/lanepos/backend/internal/audit"
	"github.com/lanepos/backend/internal/models"
	"github.com/lanepos/backend/internal/providers"
)

// ReversalReport is the result of a void/refund request. Performed is false
// when there was nothing left to reverse; the prior state is returned instead
// of re-issuing against the gateway.
type ReversalReport struct {
	Performed bool            `json:"performed"`
	Kind      string          `json:"kind,omitempty"`
	Order     *models.Order   `json:"order"`
	Payment   *models.Payment `json:"payment,omitempty"`
	Detail    string          `json:"detail,omitempty"`
}

// ReconcilerService applies compensating actions consistent with ledger
// state: void for a charge that has not settled, refund for one that has.
type ReconcilerService struct {
	orders   *OrderService
	registry *providers.Registry
	audit    *audit.Logger
}

func NewReconcilerService(orders *OrderService, registry *providers.Registry) *ReconcilerService {
	return &ReconcilerService{
		orders:   orders,
		registry: registry,
		audit:    audit.NewLogger(),
	}
}

// VoidOrder cancels an authorized-but-unsettled payment and moves the order
// to VOIDED. Calling it again once the order is already VOIDED reports the
// prior result without a gateway call.
func (s *ReconcilerService) VoidOrder(ctx context.Context, orderID string) (*ReversalReport, error) {
	return s.reverse(ctx, orderID, providers.ReversalVoid)
}

// RefundOrder reverses a settled payment and moves the order to REFUNDED.
func (s *ReconcilerService) RefundOrder(ctx context.Context, orderID string) (*ReversalReport, error) {
	return s.reverse(ctx, orderID, providers.ReversalRefund)
}

func (s *ReconcilerService) reverse(ctx context.Context, orderID string, requested providers.ReversalKind) (*ReversalReport, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	payment, err := s.orders.CurrentPayment(ctx, orderID)
	if err == ErrPaymentNotFound {
		return &ReversalReport{
			Performed: false,
			Order:     order,
			Detail:    ErrNothingToReverse.Error(),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	// Already reversed: idempotent no-op report, no gateway call.
	if payment.Terminal() {
		log.Printf("[RECONCILE] Order %s payment %s already %s, nothing to reverse", orderID, payment.ID, payment.Status)
		return &ReversalReport{
			Performed: false,
			Order:     order,
			Payment:   payment,
			Detail:    ErrNothingToReverse.Error(),
		}, nil
	}

	// The ledger decides the semantics; the caller's verb must agree.
	var decided providers.ReversalKind
	switch payment.Status {
	case models.PaymentStatusAuthorized:
		decided = providers.ReversalVoid
	case models.PaymentStatusCaptured:
		decided = providers.ReversalRefund
	default:
		return nil, fmt.Errorf("%w: payment %s is %s", ErrInvalidTransition, payment.ID, payment.Status)
	}
	if requested != decided {
		if decided == providers.ReversalRefund {
			return nil, fmt.Errorf("%w: payment already settled, use refund", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("%w: payment not settled, use void", ErrInvalidTransition)
	}

	adapter, err := s.registry.Get(payment.Provider)
	if err != nil {
		return nil, err
	}

	target := providers.Target{Kind: providers.TargetKind(payment.TargetKind), Value: payment.TargetValue}
	result, err := adapter.Reverse(ctx, payment.TransactionID, target, decided)
	if err != nil {
		s.audit.LogError(orderID, payment.TransactionID, err)
		return nil, err
	}

	var paymentStatus string
	if decided == providers.ReversalVoid {
		paymentStatus = models.PaymentStatusVoided
	} else {
		paymentStatus = models.PaymentStatusRefunded
	}

	if err := s.orders.UpdatePaymentStatus(ctx, payment.ID, payment.Status, paymentStatus, "", result.RawResponse, nil); err != nil {
		// Lost the race against another resolution; the gateway call already
		// went through, so surface the conflict rather than retrying.
		return nil, err
	}
	payment.Status = paymentStatus

	if decided == providers.ReversalVoid {
		err = s.orders.MarkVoided(ctx, orderID)
		order.Status = models.OrderStatusVoided
	} else {
		err = s.orders.MarkRefunded(ctx, orderID)
		order.Status = models.OrderStatusRefunded
	}
	if err != nil {
		return nil, err
	}

	s.audit.LogPayment("PAYMENT_"+paymentStatus, orderID, payment.TransactionID, payment.Provider, payment.Amount, paymentStatus)
	return &ReversalReport{
		Performed: true,
		Kind:      string(decided),
		Order:     order,
		Payment:   payment,
	}, nil
}
