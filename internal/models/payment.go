package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Payment status values.
const (
	PaymentStatusAuthorized = "AUTHORIZED"
	PaymentStatusCaptured   = "CAPTURED"
	PaymentStatusVoided     = "VOIDED"
	PaymentStatusRefunded   = "REFUNDED"
)

// Payment channel identifiers. One adapter implementation exists per channel.
const (
	ProviderLANTerminal     = "LAN_TERMINAL"
	ProviderCloudTerminal   = "CLOUD_TERMINAL"
	ProviderBluetoothReader = "BLUETOOTH_READER"
	ProviderCardOnFile      = "CARD_ON_FILE"
	ProviderManualEntry     = "MANUAL_ENTRY"
)

// Payment is one attempt by a specific provider to collect money for an
// Order. RawResponse holds the provider payload verbatim for audit/dispute.
type Payment struct {
	ID            string          `json:"id" db:"id"`
	OrderID       string          `json:"orderId" db:"order_id"`
	Provider      string          `json:"provider" db:"provider"`
	TransactionID string          `json:"transactionId" db:"transaction_id"`
	AuthCode      string          `json:"authCode,omitempty" db:"auth_code"`
	Status        string          `json:"status" db:"status"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	TargetKind    string          `json:"targetKind,omitempty" db:"target_kind"`
	TargetValue   string          `json:"targetValue,omitempty" db:"target_value"`
	RawResponse   json.RawMessage `json:"rawResponse,omitempty" db:"raw_response"`
	SettledAt     *time.Time      `json:"settledAt,omitempty" db:"settled_at"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time       `json:"updatedAt" db:"updated_at"`
}

// Terminal reports whether the payment attempt has been fully resolved and
// reversed. A CAPTURED payment is settled but still refundable.
func (p *Payment) Terminal() bool {
	return p.Status == PaymentStatusVoided || p.Status == PaymentStatusRefunded
}

// InFlight reports whether the payment still counts against the
// one-non-terminal-payment-per-order guard.
func (p *Payment) InFlight() bool {
	return p.Status == PaymentStatusAuthorized
}
