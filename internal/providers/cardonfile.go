package providers

import (
	"context"
	"time"
)

// CardOnFileAdapter charges a previously stored payment profile. There is no
// physical device; the charge is synchronous against the processor.
type CardOnFileAdapter struct {
	processor *processorClient
}

func NewCardOnFileAdapter(baseURL, apiKey string, timeout time.Duration) *CardOnFileAdapter {
	return &CardOnFileAdapter{processor: newProcessorClient(baseURL, apiKey, timeout)}
}

func (a *CardOnFileAdapter) Name() string {
	return "CARD_ON_FILE"
}

func (a *CardOnFileAdapter) Discover(ctx context.Context) ([]Device, error) {
	return []Device{}, nil
}

func (a *CardOnFileAdapter) TestConnection(ctx context.Context, target Target) (*ConnectionHealth, error) {
	start := time.Now()
	_, err := a.processor.do(ctx, a.Name(), "GET", "/v1/ping", nil)
	if err != nil {
		return &ConnectionHealth{Target: "processor", Reachable: false, Detail: err.Error()}, nil
	}
	return &ConnectionHealth{Target: "processor", Reachable: true, Latency: time.Since(start)}, nil
}

func (a *CardOnFileAdapter) InitiatePayment(ctx context.Context, req PaymentRequest) (*InitiateOutcome, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if req.Target.Kind != TargetProfile || req.Target.Value == "" {
		return nil, ErrMissingTarget
	}

	result, err := a.processor.charge(ctx, a.Name(), "/v1/profiles/"+req.Target.Value+"/charges", map[string]any{
		"amount":      req.Amount.StringFixed(2),
		"invoice":     req.InvoiceNumber,
		"description": req.Description,
	})
	if err != nil {
		return nil, err
	}
	return &InitiateOutcome{Result: result}, nil
}

func (a *CardOnFileAdapter) CheckStatus(ctx context.Context, transactionID string, target Target) (*StatusResult, error) {
	return a.processor.status(ctx, a.Name(), transactionID)
}

func (a *CardOnFileAdapter) Reverse(ctx context.Context, transactionID string, target Target, kind ReversalKind) (*Result, error) {
	return a.processor.reverse(ctx, a.Name(), transactionID, kind)
}
