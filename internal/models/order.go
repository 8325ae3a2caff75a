package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order status values. Transitions are monotonic:
// OPEN -> PAID or VOIDED, PAID -> REFUNDED. VOIDED and REFUNDED are terminal.
const (
	OrderStatusOpen     = "OPEN"
	OrderStatusPaid     = "PAID"
	OrderStatusVoided   = "VOIDED"
	OrderStatusRefunded = "REFUNDED"
)

// Order is the ledger record of one sale transaction. Orders are never
// physically deleted; voids and refunds are recorded as status transitions.
type Order struct {
	ID                 string          `json:"id" db:"id"`
	InvoiceNumber      string          `json:"invoiceNumber" db:"invoice_number"`
	LaneID             string          `json:"laneId" db:"lane_id"`
	Amount             decimal.Decimal `json:"amount" db:"amount"`
	Status             string          `json:"status" db:"status"`
	UserID             string          `json:"userId,omitempty" db:"user_id"`
	Notes              string          `json:"notes,omitempty" db:"notes"`
	SyncedToZoho       bool            `json:"syncedToZoho" db:"synced_to_zoho"`
	ZohoSalesReceiptID string          `json:"zohoSalesReceiptId,omitempty" db:"zoho_sales_receipt_id"`
	SyncError          string          `json:"syncError,omitempty" db:"sync_error"`
	CreatedAt          time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time       `json:"updatedAt" db:"updated_at"`
}

// Terminal reports whether the order can no longer transition.
func (o *Order) Terminal() bool {
	return o.Status == OrderStatusVoided || o.Status == OrderStatusRefunded
}
