package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/lanepos/backend/internal/audit"
	"github.com/lanepos/backend/internal/models"
)

// OrderService is the order ledger: the single source of truth for a sale and
// its payment attempts. All status transitions go through conditional updates
// so two racing resolutions cannot both succeed.
type OrderService struct {
	db    *sql.DB
	audit *audit.Logger
}

func NewOrderService(db *sql.DB) *OrderService {
	return &OrderService{
		db:    db,
		audit: audit.NewLogger(),
	}
}

const orderColumns = `id, invoice_number, lane_id, amount, status,
	COALESCE(user_id, '') AS user_id, COALESCE(notes, '') AS notes,
	synced_to_zoho, COALESCE(zoho_sales_receipt_id, '') AS zoho_sales_receipt_id,
	COALESCE(sync_error, '') AS sync_error, created_at, updated_at`

const paymentColumns = `id, order_id, provider, transaction_id,
	COALESCE(auth_code, '') AS auth_code, status, amount,
	COALESCE(target_kind, '') AS target_kind, COALESCE(target_value, '') AS target_value,
	COALESCE(raw_response, 'null'::jsonb) AS raw_response, settled_at, created_at, updated_at`

// CreateOrder opens a new order. The invoice number is globally unique for
// the lifetime of the system; a duplicate fails with ErrDuplicateInvoice and
// creates no record.
func (s *OrderService) CreateOrder(ctx context.Context, invoiceNumber, laneID string, amount decimal.Decimal, userID, notes string) (*models.Order, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("order amount must be positive, got %s", amount.String())
	}

	now := time.Now()
	order := &models.Order{
		ID:            uuid.NewString(),
		InvoiceNumber: invoiceNumber,
		LaneID:        laneID,
		Amount:        amount,
		Status:        models.OrderStatusOpen,
		UserID:        userID,
		Notes:         notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, invoice_number, lane_id, amount, status, user_id, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, order.ID, order.InvoiceNumber, order.LaneID, order.Amount, order.Status,
		order.UserID, order.Notes, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			log.Printf("[ORDER] Duplicate invoice rejected: %s", invoiceNumber)
			return nil, ErrDuplicateInvoice
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}

	log.Printf("[ORDER] Created order %s invoice=%s lane=%s amount=%s", order.ID, invoiceNumber, laneID, amount.StringFixed(2))
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	return scanOrder(row)
}

func (s *OrderService) GetOrderByInvoice(ctx context.Context, invoiceNumber string) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE invoice_number = $1`, invoiceNumber)
	return scanOrder(row)
}

// ListOrders returns orders matching the optional status and lane filters,
// newest first.
func (s *OrderService) ListOrders(ctx context.Context, status, laneID string, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 50
	}

	var conditions []string
	var args []interface{}
	argIndex := 1

	if status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, status)
		argIndex++
	}
	if laneID != "" {
		conditions = append(conditions, fmt.Sprintf("lane_id = $%d", argIndex))
		args = append(args, laneID)
		argIndex++
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		o, err := scanOrderRows(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// EnsureAttachable verifies the single-flight guard at the ledger level: the
// order must be OPEN and must not already have a payment in a non-terminal
// state.
func (s *OrderService) EnsureAttachable(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusOpen {
		return nil, ErrOrderNotOpen
	}

	var inFlight bool
	err = s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM payments
			WHERE order_id = $1 AND status = $2
		)
	`, orderID, models.PaymentStatusAuthorized).Scan(&inFlight)
	if err != nil {
		return nil, fmt.Errorf("check in-flight payment: %w", err)
	}
	if inFlight {
		return nil, ErrPaymentInProgress
	}
	return order, nil
}

// InsertPayment records a new payment attempt. Transaction ids are unique per
// provider namespace.
func (s *OrderService) InsertPayment(ctx context.Context, p *models.Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	var raw interface{}
	if len(p.RawResponse) > 0 {
		raw = []byte(p.RawResponse)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, provider, transaction_id, auth_code, status, amount,
			target_kind, target_value, raw_response, settled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, p.ID, p.OrderID, p.Provider, p.TransactionID, p.AuthCode, p.Status, p.Amount,
		p.TargetKind, p.TargetValue, raw, p.SettledAt, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateTransaction
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// UpdatePaymentStatus is a compare-and-set from one payment status to
// another. A lost race (zero rows) surfaces as ErrInvalidTransition.
func (s *OrderService) UpdatePaymentStatus(ctx context.Context, paymentID, fromStatus, toStatus, authCode string, raw json.RawMessage, settledAt *time.Time) error {
	var rawArg interface{}
	if len(raw) > 0 {
		rawArg = []byte(raw)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $1, auth_code = COALESCE(NULLIF($2, ''), auth_code),
			raw_response = COALESCE($3, raw_response), settled_at = COALESCE($4, settled_at),
			updated_at = $5
		WHERE id = $6 AND status = $7
	`, toStatus, authCode, rawArg, settledAt, time.Now(), paymentID, fromStatus)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// CurrentPayment returns the most recent payment attempt for the order, or
// ErrPaymentNotFound if there has never been one.
func (s *OrderService) CurrentPayment(ctx context.Context, orderID string) (*models.Payment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE order_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, orderID)
	return scanPayment(row)
}

func (s *OrderService) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE transaction_id = $1
	`, transactionID)
	return scanPayment(row)
}

func (s *OrderService) ListPayments(ctx context.Context, orderID string) ([]models.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE order_id = $1
		ORDER BY created_at ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := []models.Payment{}
	for rows.Next() {
		p, err := scanPaymentRows(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

// MarkPaid moves an OPEN order to PAID. The payment must be CAPTURED (or
// AUTHORIZED under an auto-capture channel) and its amount must equal the
// order amount within currency rounding tolerance.
func (s *OrderService) MarkPaid(ctx context.Context, order *models.Order, payment *models.Payment, autoCapture bool) error {
	switch payment.Status {
	case models.PaymentStatusCaptured:
	case models.PaymentStatusAuthorized:
		if !autoCapture {
			return fmt.Errorf("%w: payment %s not captured", ErrInvalidTransition, payment.ID)
		}
	default:
		return fmt.Errorf("%w: payment %s is %s", ErrInvalidTransition, payment.ID, payment.Status)
	}

	if !payment.Amount.Round(2).Equal(order.Amount.Round(2)) {
		return ErrAmountMismatch
	}

	if err := s.transition(ctx, order.ID, models.OrderStatusOpen, models.OrderStatusPaid); err != nil {
		return err
	}

	order.Status = models.OrderStatusPaid
	s.audit.LogPayment("ORDER_PAID", order.ID, payment.TransactionID, payment.Provider, payment.Amount, models.OrderStatusPaid)
	return nil
}

// MarkVoided moves an OPEN order to VOIDED.
func (s *OrderService) MarkVoided(ctx context.Context, orderID string) error {
	return s.transition(ctx, orderID, models.OrderStatusOpen, models.OrderStatusVoided)
}

// MarkRefunded moves a PAID order to REFUNDED.
func (s *OrderService) MarkRefunded(ctx context.Context, orderID string) error {
	return s.transition(ctx, orderID, models.OrderStatusPaid, models.OrderStatusRefunded)
}

// transition applies one state-machine edge as a compare-and-set on the
// order status. Zero rows affected means another resolution won the race or
// the edge is illegal from the current state.
func (s *OrderService) transition(ctx context.Context, orderID, from, to string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4
	`, to, time.Now(), orderID, from)
	if err != nil {
		return fmt.Errorf("transition order %s to %s: %w", orderID, to, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	log.Printf("[ORDER] Order %s transitioned %s -> %s", orderID, from, to)
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row *sql.Row) (*models.Order, error) {
	o, err := scanOrderFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	return o, err
}

func scanOrderRows(rows *sql.Rows) (*models.Order, error) {
	return scanOrderFrom(rows)
}

func scanOrderFrom(r rowScanner) (*models.Order, error) {
	o := &models.Order{}
	err := r.Scan(&o.ID, &o.InvoiceNumber, &o.LaneID, &o.Amount, &o.Status,
		&o.UserID, &o.Notes, &o.SyncedToZoho, &o.ZohoSalesReceiptID, &o.SyncError,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func scanPayment(row *sql.Row) (*models.Payment, error) {
	p, err := scanPaymentFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

func scanPaymentRows(rows *sql.Rows) (*models.Payment, error) {
	return scanPaymentFrom(rows)
}

func scanPaymentFrom(r rowScanner) (*models.Payment, error) {
	p := &models.Payment{}
	var raw []byte
	err := r.Scan(&p.ID, &p.OrderID, &p.Provider, &p.TransactionID, &p.AuthCode,
		&p.Status, &p.Amount, &p.TargetKind, &p.TargetValue, &raw, &p.SettledAt,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 && string(raw) != "null" {
		p.RawResponse = json.RawMessage(raw)
	}
	return p, nil
}
