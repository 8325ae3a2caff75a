package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/lanepos/backend/internal/models"
	"github.com/lanepos/backend/internal/providers"
)

func newReconcilerFixture(t *testing.T) (*ReconcilerService, sqlmock.Sqlmock, *MockAdapter, func()) {
	t.Helper()

	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)

	adapter := NewMockAdapter(models.ProviderCloudTerminal)
	registry := providers.NewRegistry()
	registry.Register(adapter)

	service := NewReconcilerService(NewOrderService(db), registry)
	return service, dbMock, adapter, func() { db.Close() }
}

func expectOrderAndPayment(dbMock sqlmock.Sqlmock, orderID, orderStatus, paymentStatus string) {
	now := time.Now()
	dbMock.ExpectQuery("(?s)SELECT (.+) FROM orders WHERE id =").
		WithArgs(orderID).
		WillReturnRows(orderRows().
			AddRow(orderID, "INV-"+orderID, "lane-1", "40.00", orderStatus,
				"", "", false, "", "", now, now))
	dbMock.ExpectQuery("(?s)SELECT (.+) FROM payments").
		WithArgs(orderID).
		WillReturnRows(paymentRows().
			AddRow("pay-"+orderID, orderID, models.ProviderCloudTerminal, "txn-"+orderID, "A1",
				paymentStatus, "40.00", "serial", "SN-1", nil, nil, now, now))
}

func TestReconcilerService_VoidOrder(t *testing.T) {
	service, dbMock, adapter, cleanup := newReconcilerFixture(t)
	defer cleanup()
	ctx := context.Background()
	target := providers.Target{Kind: providers.TargetSerial, Value: "SN-1"}

	t.Run("voids an authorized payment", func(t *testing.T) {
		expectOrderAndPayment(dbMock, "o1", models.OrderStatusOpen, models.PaymentStatusAuthorized)

		adapter.On("Reverse", mock.Anything, "txn-o1", target, providers.ReversalVoid).
			Return(&providers.Result{TransactionID: "txn-o1"}, nil).Once()

		dbMock.ExpectExec("UPDATE payments").
			WithArgs(models.PaymentStatusVoided, "", sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), "pay-o1", models.PaymentStatusAuthorized).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectExec("UPDATE orders SET status").
			WithArgs(models.OrderStatusVoided, sqlmock.AnyArg(), "o1", models.OrderStatusOpen).
			WillReturnResult(sqlmock.NewResult(0, 1))

		report, err := service.VoidOrder(ctx, "o1")
		assert.NoError(t, err)
		assert.True(t, report.Performed)
		assert.Equal(t, "void", report.Kind)
		assert.Equal(t, models.OrderStatusVoided, report.Order.Status)
		assert.Equal(t, models.PaymentStatusVoided, report.Payment.Status)
		assert.NoError(t, dbMock.ExpectationsWereMet())
		adapter.AssertExpectations(t)
	})

	t.Run("void of a settled payment directs the caller to refund", func(t *testing.T) {
		expectOrderAndPayment(dbMock, "o2", models.OrderStatusPaid, models.PaymentStatusCaptured)

		_, err := service.VoidOrder(ctx, "o2")
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Contains(t, err.Error(), "use refund")
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("already reversed payment reports idempotently without a gateway call", func(t *testing.T) {
		expectOrderAndPayment(dbMock, "o3", models.OrderStatusVoided, models.PaymentStatusVoided)

		report, err := service.VoidOrder(ctx, "o3")
		assert.NoError(t, err)
		assert.False(t, report.Performed)
		assert.Equal(t, ErrNothingToReverse.Error(), report.Detail)
		assert.NoError(t, dbMock.ExpectationsWereMet())
		adapter.AssertNotCalled(t, "Reverse", mock.Anything, "txn-o3", mock.Anything, mock.Anything)
	})

	t.Run("order with no payment has nothing to reverse", func(t *testing.T) {
		now := time.Now()
		dbMock.ExpectQuery("(?s)SELECT (.+) FROM orders WHERE id =").
			WithArgs("o4").
			WillReturnRows(orderRows().
				AddRow("o4", "INV-o4", "lane-1", "40.00", models.OrderStatusOpen,
					"", "", false, "", "", now, now))
		dbMock.ExpectQuery("(?s)SELECT (.+) FROM payments").
			WithArgs("o4").
			WillReturnRows(paymentRows())

		report, err := service.VoidOrder(ctx, "o4")
		assert.NoError(t, err)
		assert.False(t, report.Performed)
		assert.Nil(t, report.Payment)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestReconcilerService_RefundOrder(t *testing.T) {
	service, dbMock, adapter, cleanup := newReconcilerFixture(t)
	defer cleanup()
	ctx := context.Background()
	target := providers.Target{Kind: providers.TargetSerial, Value: "SN-1"}

	t.Run("refunds a captured payment", func(t *testing.T) {
		expectOrderAndPayment(dbMock, "o5", models.OrderStatusPaid, models.PaymentStatusCaptured)

		adapter.On("Reverse", mock.Anything, "txn-o5", target, providers.ReversalRefund).
			Return(&providers.Result{TransactionID: "txn-o5"}, nil).Once()

		dbMock.ExpectExec("UPDATE payments").
			WithArgs(models.PaymentStatusRefunded, "", sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), "pay-o5", models.PaymentStatusCaptured).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectExec("UPDATE orders SET status").
			WithArgs(models.OrderStatusRefunded, sqlmock.AnyArg(), "o5", models.OrderStatusPaid).
			WillReturnResult(sqlmock.NewResult(0, 1))

		report, err := service.RefundOrder(ctx, "o5")
		assert.NoError(t, err)
		assert.True(t, report.Performed)
		assert.Equal(t, "refund", report.Kind)
		assert.Equal(t, models.OrderStatusRefunded, report.Order.Status)
		assert.NoError(t, dbMock.ExpectationsWereMet())
		adapter.AssertExpectations(t)
	})

	t.Run("refund of an unsettled payment directs the caller to void", func(t *testing.T) {
		expectOrderAndPayment(dbMock, "o6", models.OrderStatusOpen, models.PaymentStatusAuthorized)

		_, err := service.RefundOrder(ctx, "o6")
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Contains(t, err.Error(), "use void")
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("gateway failure leaves the ledger untouched", func(t *testing.T) {
		expectOrderAndPayment(dbMock, "o7", models.OrderStatusPaid, models.PaymentStatusCaptured)

		adapter.On("Reverse", mock.Anything, "txn-o7", target, providers.ReversalRefund).
			Return(nil, providers.ErrGatewayUnreachable).Once()

		_, err := service.RefundOrder(ctx, "o7")
		assert.ErrorIs(t, err, providers.ErrGatewayUnreachable)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}
