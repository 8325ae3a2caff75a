package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/lanepos/backend/internal/models"
)

func orderRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "invoice_number", "lane_id", "amount", "status",
		"user_id", "notes", "synced_to_zoho", "zoho_sales_receipt_id", "sync_error",
		"created_at", "updated_at",
	})
}

func paymentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "order_id", "provider", "transaction_id", "auth_code", "status", "amount",
		"target_kind", "target_value", "raw_response", "settled_at", "created_at", "updated_at",
	})
}

func TestOrderService_CreateOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewOrderService(db)
	ctx := context.Background()
	amount := decimal.NewFromFloat(25.50)

	t.Run("successful creation", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO orders").
			WithArgs(sqlmock.AnyArg(), "INV-1001", "lane-3", sqlmock.AnyArg(), models.OrderStatusOpen,
				"user-1", "two coffees", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		order, err := service.CreateOrder(ctx, "INV-1001", "lane-3", amount, "user-1", "two coffees")
		assert.NoError(t, err)
		assert.NotEmpty(t, order.ID)
		assert.Equal(t, models.OrderStatusOpen, order.Status)
		assert.True(t, order.Amount.Equal(amount))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate invoice rejected without side effects", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO orders").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "orders_invoice_number_key"})

		order, err := service.CreateOrder(ctx, "INV-1001", "lane-3", amount, "user-1", "")
		assert.ErrorIs(t, err, ErrDuplicateInvoice)
		assert.Nil(t, order)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-positive amount rejected before hitting the database", func(t *testing.T) {
		_, err := service.CreateOrder(ctx, "INV-1002", "lane-3", decimal.Zero, "user-1", "")
		assert.Error(t, err)

		_, err = service.CreateOrder(ctx, "INV-1002", "lane-3", decimal.NewFromInt(-5), "user-1", "")
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOrderService_EnsureAttachable(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewOrderService(db)
	ctx := context.Background()
	now := time.Now()

	t.Run("open order with no in-flight payment", func(t *testing.T) {
		mock.ExpectQuery("(?s)SELECT (.+) FROM orders WHERE id =").
			WithArgs("order-1").
			WillReturnRows(orderRows().
				AddRow("order-1", "INV-1", "lane-1", "10.00", models.OrderStatusOpen,
					"", "", false, "", "", now, now))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("order-1", models.PaymentStatusAuthorized).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		order, err := service.EnsureAttachable(ctx, "order-1")
		assert.NoError(t, err)
		assert.Equal(t, "order-1", order.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("paid order is not attachable", func(t *testing.T) {
		mock.ExpectQuery("(?s)SELECT (.+) FROM orders WHERE id =").
			WithArgs("order-2").
			WillReturnRows(orderRows().
				AddRow("order-2", "INV-2", "lane-1", "10.00", models.OrderStatusPaid,
					"", "", false, "", "", now, now))

		_, err := service.EnsureAttachable(ctx, "order-2")
		assert.ErrorIs(t, err, ErrOrderNotOpen)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("in-flight payment blocks a second attempt", func(t *testing.T) {
		mock.ExpectQuery("(?s)SELECT (.+) FROM orders WHERE id =").
			WithArgs("order-3").
			WillReturnRows(orderRows().
				AddRow("order-3", "INV-3", "lane-1", "10.00", models.OrderStatusOpen,
					"", "", false, "", "", now, now))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("order-3", models.PaymentStatusAuthorized).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		_, err := service.EnsureAttachable(ctx, "order-3")
		assert.ErrorIs(t, err, ErrPaymentInProgress)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown order", func(t *testing.T) {
		mock.ExpectQuery("(?s)SELECT (.+) FROM orders WHERE id =").
			WithArgs("missing").
			WillReturnRows(orderRows())

		_, err := service.EnsureAttachable(ctx, "missing")
		assert.ErrorIs(t, err, ErrOrderNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOrderService_InsertPayment(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewOrderService(db)
	ctx := context.Background()

	t.Run("duplicate transaction id rejected", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO payments").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "payments_provider_txn_unique"})

		err := service.InsertPayment(ctx, &models.Payment{
			OrderID:       "order-1",
			Provider:      models.ProviderLANTerminal,
			TransactionID: "txn-1",
			Status:        models.PaymentStatusCaptured,
			Amount:        decimal.NewFromInt(10),
		})
		assert.ErrorIs(t, err, ErrDuplicateTransaction)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOrderService_MarkPaid(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewOrderService(db)
	ctx := context.Background()

	order := &models.Order{ID: "order-1", Amount: decimal.NewFromFloat(20.00), Status: models.OrderStatusOpen}

	t.Run("captured payment settles the order", func(t *testing.T) {
		mock.ExpectExec("UPDATE orders SET status").
			WithArgs(models.OrderStatusPaid, sqlmock.AnyArg(), "order-1", models.OrderStatusOpen).
			WillReturnResult(sqlmock.NewResult(0, 1))

		payment := &models.Payment{ID: "pay-1", Status: models.PaymentStatusCaptured, Amount: decimal.NewFromFloat(20.00)}
		err := service.MarkPaid(ctx, order, payment, true)
		assert.NoError(t, err)
		assert.Equal(t, models.OrderStatusPaid, order.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("amount mismatch rejected before any write", func(t *testing.T) {
		order := &models.Order{ID: "order-2", Amount: decimal.NewFromFloat(20.00), Status: models.OrderStatusOpen}
		payment := &models.Payment{ID: "pay-2", Status: models.PaymentStatusCaptured, Amount: decimal.NewFromFloat(19.99)}

		err := service.MarkPaid(ctx, order, payment, true)
		assert.ErrorIs(t, err, ErrAmountMismatch)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rounding-equal amounts accepted", func(t *testing.T) {
		order := &models.Order{ID: "order-3", Amount: decimal.NewFromFloat(20.00), Status: models.OrderStatusOpen}
		payment := &models.Payment{ID: "pay-3", Status: models.PaymentStatusCaptured, Amount: decimal.RequireFromString("20.004")}

		mock.ExpectExec("UPDATE orders SET status").
			WithArgs(models.OrderStatusPaid, sqlmock.AnyArg(), "order-3", models.OrderStatusOpen).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := service.MarkPaid(ctx, order, payment, true)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("voided payment cannot settle", func(t *testing.T) {
		order := &models.Order{ID: "order-4", Amount: decimal.NewFromFloat(20.00), Status: models.OrderStatusOpen}
		payment := &models.Payment{ID: "pay-4", Status: models.PaymentStatusVoided, Amount: decimal.NewFromFloat(20.00)}

		err := service.MarkPaid(ctx, order, payment, true)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOrderService_Transitions(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewOrderService(db)
	ctx := context.Background()

	t.Run("lost race surfaces as invalid transition", func(t *testing.T) {
		mock.ExpectExec("UPDATE orders SET status").
			WithArgs(models.OrderStatusVoided, sqlmock.AnyArg(), "order-1", models.OrderStatusOpen).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := service.MarkVoided(ctx, "order-1")
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("refund requires PAID origin state", func(t *testing.T) {
		mock.ExpectExec("UPDATE orders SET status").
			WithArgs(models.OrderStatusRefunded, sqlmock.AnyArg(), "order-2", models.OrderStatusPaid).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := service.MarkRefunded(ctx, "order-2")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOrderService_UpdatePaymentStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewOrderService(db)
	ctx := context.Background()

	t.Run("compare-and-set succeeds from expected state", func(t *testing.T) {
		now := time.Now()
		mock.ExpectExec("UPDATE payments").
			WithArgs(models.PaymentStatusCaptured, "AUTH99", sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), "pay-1", models.PaymentStatusAuthorized).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := service.UpdatePaymentStatus(ctx, "pay-1", models.PaymentStatusAuthorized,
			models.PaymentStatusCaptured, "AUTH99", nil, &now)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale origin state loses the race", func(t *testing.T) {
		mock.ExpectExec("UPDATE payments").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := service.UpdatePaymentStatus(ctx, "pay-1", models.PaymentStatusAuthorized,
			models.PaymentStatusVoided, "", nil, nil)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
