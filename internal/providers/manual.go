package providers

import (
	"context"
	"time"
)

// ManualEntryAdapter charges manually keyed card details straight through to
// the processor. Card fields live only for the duration of the call: they are
// never persisted, logged or echoed back.
type ManualEntryAdapter struct {
	processor *processorClient
}

func NewManualEntryAdapter(baseURL, apiKey string, timeout time.Duration) *ManualEntryAdapter {
	return &ManualEntryAdapter{processor: newProcessorClient(baseURL, apiKey, timeout)}
}

func (a *ManualEntryAdapter) Name() string {
	return "MANUAL_ENTRY"
}

func (a *ManualEntryAdapter) Discover(ctx context.Context) ([]Device, error) {
	return []Device{}, nil
}

func (a *ManualEntryAdapter) TestConnection(ctx context.Context, target Target) (*ConnectionHealth, error) {
	start := time.Now()
	_, err := a.processor.do(ctx, a.Name(), "GET", "/v1/ping", nil)
	if err != nil {
		return &ConnectionHealth{Target: "processor", Reachable: false, Detail: err.Error()}, nil
	}
	return &ConnectionHealth{Target: "processor", Reachable: true, Latency: time.Since(start)}, nil
}

func (a *ManualEntryAdapter) InitiatePayment(ctx context.Context, req PaymentRequest) (*InitiateOutcome, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if req.Card == nil {
		return nil, ErrMissingTarget
	}

	result, err := a.processor.charge(ctx, a.Name(), "/v1/charges", map[string]any{
		"card": map[string]any{
			"number":   req.Card.Number,
			"expMonth": req.Card.ExpMonth,
			"expYear":  req.Card.ExpYear,
			"cvv":      req.Card.CVV,
			"holder":   req.Card.HolderName,
		},
		"amount":      req.Amount.StringFixed(2),
		"invoice":     req.InvoiceNumber,
		"description": req.Description,
	})
	if err != nil {
		return nil, err
	}
	return &InitiateOutcome{Result: result}, nil
}

func (a *ManualEntryAdapter) CheckStatus(ctx context.Context, transactionID string, target Target) (*StatusResult, error) {
	return a.processor.status(ctx, a.Name(), transactionID)
}

func (a *ManualEntryAdapter) Reverse(ctx context.Context, transactionID string, target Target, kind ReversalKind) (*Result, error) {
	return a.processor.reverse(ctx, a.Name(), transactionID, kind)
}
