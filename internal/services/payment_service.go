package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/lanepos/backend/internal/audit"
	"github.com/lanepos/backend/internal/models"
	"github.com/lanepos/backend/internal/providers"
)

// SyncScheduler is how the payment flow hands a freshly paid order to the
// accounting forwarder. Scheduling must never fail the sale.
type SyncScheduler interface {
	ScheduleSync(ctx context.Context, orderID string)
}

// AttachRequest carries everything needed to start one collection attempt.
type AttachRequest struct {
	OrderID  string
	Provider string
	Target   providers.Target
	Token    string
	Card     *providers.CardDetails
	Poll     *PollConfig
}

// PaymentOutcome is the resolved result of an attach or poll call. Declined
// and timed-out attempts are outcomes, not errors: the order stays OPEN.
type PaymentOutcome struct {
	Outcome       PollOutcome     `json:"outcome"`
	Order         *models.Order   `json:"order"`
	Payment       *models.Payment `json:"payment,omitempty"`
	DeclineReason string          `json:"declineReason,omitempty"`
	Attempts      int             `json:"attempts,omitempty"`
}

// PaymentService drives a payment attempt end to end: adapter initiation,
// pending-handle resolution and the resulting ledger transitions.
type PaymentService struct {
	orders      *OrderService
	registry    *providers.Registry
	poller      *PollingCoordinator
	sync        SyncScheduler
	audit       *audit.Logger
	autoCapture bool

	// flights holds the per-order single-flight guard for the whole
	// attach -> resolve window, before any payment row exists.
	flights sync.Map
}

func NewPaymentService(orders *OrderService, registry *providers.Registry, poller *PollingCoordinator, scheduler SyncScheduler) *PaymentService {
	return &PaymentService{
		orders:      orders,
		registry:    registry,
		poller:      poller,
		sync:        scheduler,
		audit:       audit.NewLogger(),
		autoCapture: true,
	}
}

func (s *PaymentService) acquireFlight(orderID string) bool {
	_, loaded := s.flights.LoadOrStore(orderID, struct{}{})
	return !loaded
}

func (s *PaymentService) releaseFlight(orderID string) {
	s.flights.Delete(orderID)
}

// AttachPayment starts one collection attempt against an OPEN order. A second
// call for the same order while one is outstanding fails fast with
// ErrPaymentInProgress; it does not queue.
func (s *PaymentService) AttachPayment(ctx context.Context, req AttachRequest) (*PaymentOutcome, error) {
	adapter, err := s.registry.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	if !s.acquireFlight(req.OrderID) {
		return nil, ErrPaymentInProgress
	}
	defer s.releaseFlight(req.OrderID)

	order, err := s.orders.EnsureAttachable(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	outcome, err := adapter.InitiatePayment(ctx, providers.PaymentRequest{
		Amount:        order.Amount,
		InvoiceNumber: order.InvoiceNumber,
		Description:   order.Notes,
		Target:        req.Target,
		Token:         req.Token,
		Card:          req.Card,
	})
	if err != nil {
		var declined *providers.DeclinedError
		if errors.As(err, &declined) {
			// Terminal decline before any ledger write: the order stays OPEN
			// so a new attempt can be made.
			s.audit.LogPayment("PAYMENT_DECLINED", order.ID, "", req.Provider, order.Amount, "DECLINED")
			return &PaymentOutcome{
				Outcome:       PollDeclined,
				Order:         order,
				DeclineReason: declined.Reason,
			}, nil
		}
		s.audit.LogError(order.ID, "", err)
		return nil, err
	}

	if outcome.Result != nil {
		return s.settleSynchronous(ctx, order, adapter.Name(), req.Target, outcome.Result)
	}
	return s.trackPending(ctx, order, adapter, req, outcome.Pending)
}

// settleSynchronous records a synchronous provider result and settles the order.
func (s *PaymentService) settleSynchronous(ctx context.Context, order *models.Order, provider string, target providers.Target, result *providers.Result) (*PaymentOutcome, error) {
	now := time.Now()
	payment := &models.Payment{
		OrderID:       order.ID,
		Provider:      provider,
		TransactionID: result.TransactionID,
		AuthCode:      result.AuthCode,
		Status:        models.PaymentStatusAuthorized,
		Amount:        order.Amount,
		TargetKind:    string(target.Kind),
		TargetValue:   target.Value,
		RawResponse:   result.RawResponse,
	}
	if result.Captured {
		payment.Status = models.PaymentStatusCaptured
		payment.SettledAt = &now
	}

	if err := s.orders.InsertPayment(ctx, payment); err != nil {
		return nil, err
	}
	if err := s.orders.MarkPaid(ctx, order, payment, s.autoCapture); err != nil {
		return nil, err
	}

	s.audit.LogPayment("PAYMENT_CAPTURED", order.ID, payment.TransactionID, provider, payment.Amount, payment.Status)
	s.sync.ScheduleSync(ctx, order.ID)

	return &PaymentOutcome{Outcome: PollApproved, Order: order, Payment: payment, Attempts: 1}, nil
}

// trackPending persists the pending handle as an AUTHORIZED payment and polls
// it to a terminal outcome.
func (s *PaymentService) trackPending(ctx context.Context, order *models.Order, adapter providers.Adapter, req AttachRequest, handle *providers.PendingHandle) (*PaymentOutcome, error) {
	payment := &models.Payment{
		OrderID:       order.ID,
		Provider:      adapter.Name(),
		TransactionID: handle.TransactionID,
		Status:        models.PaymentStatusAuthorized,
		Amount:        order.Amount,
		TargetKind:    string(req.Target.Kind),
		TargetValue:   req.Target.Value,
	}
	if err := s.orders.InsertPayment(ctx, payment); err != nil {
		return nil, err
	}

	cfg := s.poller.Defaults()
	if req.Poll != nil {
		cfg = *req.Poll
	}
	return s.resolvePending(ctx, order, payment, adapter, cfg)
}

// resolvePending polls a stored AUTHORIZED payment and applies the outcome to
// the ledger. On timeout the payment stays AUTHORIZED: the terminal may still
// complete the charge after the window closes, so an operator must reconcile
// before another attempt is allowed.
func (s *PaymentService) resolvePending(ctx context.Context, order *models.Order, payment *models.Payment, adapter providers.Adapter, cfg PollConfig) (*PaymentOutcome, error) {
	target := providers.Target{Kind: providers.TargetKind(payment.TargetKind), Value: payment.TargetValue}

	poll, err := s.poller.Resolve(ctx, adapter, payment.TransactionID, target, cfg)
	if err != nil {
		// Cancellation or a gateway failure: the payment stays AUTHORIZED
		// and can be re-polled or reconciled later.
		s.audit.LogError(order.ID, payment.TransactionID, err)
		return nil, err
	}

	switch poll.Outcome {
	case PollApproved:
		now := time.Now()
		result := poll.Result
		if err := s.orders.UpdatePaymentStatus(ctx, payment.ID, models.PaymentStatusAuthorized,
			models.PaymentStatusCaptured, result.AuthCode, result.RawResponse, &now); err != nil {
			return nil, err
		}
		payment.Status = models.PaymentStatusCaptured
		payment.AuthCode = result.AuthCode
		payment.SettledAt = &now

		if err := s.orders.MarkPaid(ctx, order, payment, s.autoCapture); err != nil {
			return nil, err
		}
		s.audit.LogPayment("PAYMENT_CAPTURED", order.ID, payment.TransactionID, payment.Provider, payment.Amount, payment.Status)
		s.sync.ScheduleSync(ctx, order.ID)

		return &PaymentOutcome{Outcome: PollApproved, Order: order, Payment: payment, Attempts: poll.Attempts}, nil

	case PollDeclined:
		reason := "declined by gateway"
		var raw []byte
		if poll.Decline != nil {
			reason = poll.Decline.Reason
			raw = poll.Decline.Raw
		}
		// Close the attempt so the order can accept a fresh payment.
		if err := s.orders.UpdatePaymentStatus(ctx, payment.ID, models.PaymentStatusAuthorized,
			models.PaymentStatusVoided, "", raw, nil); err != nil {
			return nil, err
		}
		payment.Status = models.PaymentStatusVoided
		s.audit.LogPayment("PAYMENT_DECLINED", order.ID, payment.TransactionID, payment.Provider, payment.Amount, "DECLINED")

		return &PaymentOutcome{
			Outcome:       PollDeclined,
			Order:         order,
			Payment:       payment,
			DeclineReason: reason,
			Attempts:      poll.Attempts,
		}, nil

	default:
		log.Printf("[PAYMENT] Order %s transaction %s timed out after %d polls, flagged for manual reconciliation",
			order.ID, payment.TransactionID, poll.Attempts)
		s.audit.LogPayment("PAYMENT_TIMEOUT", order.ID, payment.TransactionID, payment.Provider, payment.Amount, "TIMEOUT")

		return &PaymentOutcome{Outcome: PollTimeout, Order: order, Payment: payment, Attempts: poll.Attempts}, nil
	}
}

// PollPayment re-polls a previously timed-out (still AUTHORIZED) payment
// identified by its transaction id.
func (s *PaymentService) PollPayment(ctx context.Context, transactionID string, cfg PollConfig) (*PaymentOutcome, error) {
	payment, err := s.orders.GetPaymentByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusAuthorized {
		return nil, ErrInvalidTransition
	}

	order, err := s.orders.GetOrder(ctx, payment.OrderID)
	if err != nil {
		return nil, err
	}

	adapter, err := s.registry.Get(payment.Provider)
	if err != nil {
		return nil, err
	}

	if !s.acquireFlight(order.ID) {
		return nil, ErrPaymentInProgress
	}
	defer s.releaseFlight(order.ID)

	return s.resolvePending(ctx, order, payment, adapter, cfg)
}

// PaymentStatus returns the ledger's view of a payment by transaction id.
func (s *PaymentService) PaymentStatus(ctx context.Context, transactionID string) (*models.Payment, error) {
	return s.orders.GetPaymentByTransactionID(ctx, transactionID)
}
