package providers

import (
	"context"
	"time"
)

// BluetoothReaderAdapter charges payloads tokenized by the mobile SDK.
// Pairing and card capture happen on the client; this adapter only forwards
// the opaque token to the processor and never sees raw card data.
type BluetoothReaderAdapter struct {
	processor *processorClient
}

func NewBluetoothReaderAdapter(baseURL, apiKey string, timeout time.Duration) *BluetoothReaderAdapter {
	return &BluetoothReaderAdapter{processor: newProcessorClient(baseURL, apiKey, timeout)}
}

func (a *BluetoothReaderAdapter) Name() string {
	return "BLUETOOTH_READER"
}

// Discover is unsupported: readers pair with the client device, not with
// this backend.
func (a *BluetoothReaderAdapter) Discover(ctx context.Context) ([]Device, error) {
	return []Device{}, nil
}

func (a *BluetoothReaderAdapter) TestConnection(ctx context.Context, target Target) (*ConnectionHealth, error) {
	start := time.Now()
	_, err := a.processor.do(ctx, a.Name(), "GET", "/v1/ping", nil)
	if err != nil {
		return &ConnectionHealth{Target: "processor", Reachable: false, Detail: err.Error()}, nil
	}
	return &ConnectionHealth{Target: "processor", Reachable: true, Latency: time.Since(start)}, nil
}

func (a *BluetoothReaderAdapter) InitiatePayment(ctx context.Context, req PaymentRequest) (*InitiateOutcome, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if req.Token == "" {
		return nil, ErrMissingTarget
	}

	result, err := a.processor.charge(ctx, a.Name(), "/v1/charges", map[string]any{
		"token":       req.Token,
		"amount":      req.Amount.StringFixed(2),
		"invoice":     req.InvoiceNumber,
		"description": req.Description,
	})
	if err != nil {
		return nil, err
	}
	return &InitiateOutcome{Result: result}, nil
}

func (a *BluetoothReaderAdapter) CheckStatus(ctx context.Context, transactionID string, target Target) (*StatusResult, error) {
	return a.processor.status(ctx, a.Name(), transactionID)
}

func (a *BluetoothReaderAdapter) Reverse(ctx context.Context, transactionID string, target Target, kind ReversalKind) (*Result, error) {
	return a.processor.reverse(ctx, a.Name(), transactionID, kind)
}
