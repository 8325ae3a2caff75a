package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/lanepos/backend/internal/providers"
	"github.com/lanepos/backend/internal/zoho"
)

type MockAdapter struct {
	mock.Mock
	name string
}

func NewMockAdapter(name string) *MockAdapter {
	return &MockAdapter{name: name}
}

func (m *MockAdapter) Name() string {
	return m.name
}

func (m *MockAdapter) Discover(ctx context.Context) ([]providers.Device, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]providers.Device), args.Error(1)
}

func (m *MockAdapter) TestConnection(ctx context.Context, target providers.Target) (*providers.ConnectionHealth, error) {
	args := m.Called(ctx, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*providers.ConnectionHealth), args.Error(1)
}

func (m *MockAdapter) InitiatePayment(ctx context.Context, req providers.PaymentRequest) (*providers.InitiateOutcome, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*providers.InitiateOutcome), args.Error(1)
}

func (m *MockAdapter) CheckStatus(ctx context.Context, transactionID string, target providers.Target) (*providers.StatusResult, error) {
	args := m.Called(ctx, transactionID, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*providers.StatusResult), args.Error(1)
}

func (m *MockAdapter) Reverse(ctx context.Context, transactionID string, target providers.Target, kind providers.ReversalKind) (*providers.Result, error) {
	args := m.Called(ctx, transactionID, target, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*providers.Result), args.Error(1)
}

type MockZohoClient struct {
	mock.Mock
}

func (m *MockZohoClient) FindReceiptByReference(ctx context.Context, invoiceNumber string) (string, error) {
	args := m.Called(ctx, invoiceNumber)
	return args.String(0), args.Error(1)
}

func (m *MockZohoClient) CreateSalesReceipt(ctx context.Context, snapshot *zoho.SaleSnapshot) (string, error) {
	args := m.Called(ctx, snapshot)
	return args.String(0), args.Error(1)
}

// recordingScheduler captures sync scheduling without touching Redis.
type recordingScheduler struct {
	scheduled []string
}

func (r *recordingScheduler) ScheduleSync(ctx context.Context, orderID string) {
	r.scheduled = append(r.scheduled, orderID)
}
