package providers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TargetKind identifies how a payment target is addressed.
type TargetKind string

const (
	TargetIP      TargetKind = "ip"      // LAN terminal, host or host:port
	TargetSerial  TargetKind = "serial"  // cloud terminal by serial number
	TargetEPI     TargetKind = "epi"     // cloud terminal by EPI
	TargetProfile TargetKind = "profile" // stored payment profile
	TargetNone    TargetKind = ""        // channels with no device target
)

// Target addresses the device or profile a payment should be collected on.
type Target struct {
	Kind  TargetKind `json:"kind"`
	Value string     `json:"value"`
}

// CardDetails carries manually keyed card fields. They are forwarded to the
// processor and never persisted or logged.
type CardDetails struct {
	Number     string `json:"number" validate:"required,credit_card"`
	ExpMonth   int    `json:"expMonth" validate:"required,min=1,max=12"`
	ExpYear    int    `json:"expYear" validate:"required,min=2000"`
	CVV        string `json:"cvv" validate:"required,len=3|len=4"`
	HolderName string `json:"holderName"`
}

// PaymentRequest is the adapter-facing shape of one collection attempt.
// Token is set only for the Bluetooth reader channel (client-side tokenized
// payload); Card only for manual entry.
type PaymentRequest struct {
	Amount        decimal.Decimal
	InvoiceNumber string
	Description   string
	Target        Target
	Token         string
	Card          *CardDetails
}

// Result is a terminal outcome reported by a provider.
type Result struct {
	TransactionID string          `json:"transactionId"`
	AuthCode      string          `json:"authCode,omitempty"`
	Captured      bool            `json:"captured"`
	RawResponse   json.RawMessage `json:"rawResponse,omitempty"`
}

// PendingHandle correlates an asynchronous payment that a physical terminal
// confirms out-of-band. It is resolved by polling CheckStatus.
type PendingHandle struct {
	TransactionID string `json:"transactionId"`
}

// InitiateOutcome is either a synchronous Result or a PendingHandle, never both.
type InitiateOutcome struct {
	Result  *Result
	Pending *PendingHandle
}

// Status is the externally observed state of an in-flight payment.
type Status string

const (
	StatusApproved Status = "approved"
	StatusDeclined Status = "declined"
	StatusPending  Status = "pending"
)

// StatusResult carries a poll observation. Result is set once Status is
// approved; Decline is set once Status is declined.
type StatusResult struct {
	Status  Status
	Result  *Result
	Decline *DeclinedError
}

// ReversalKind selects void (unsettled charge) or refund (settled charge)
// semantics. The reconciler decides which one; the adapter just executes it.
type ReversalKind string

const (
	ReversalVoid   ReversalKind = "void"
	ReversalRefund ReversalKind = "refund"
)

// Device is a reachable payment device reported by discovery.
type Device struct {
	Provider   string `json:"provider"`
	Identifier string `json:"identifier"`
	Name       string `json:"name,omitempty"`
	Model      string `json:"model,omitempty"`
}

// ConnectionHealth is the result of probing a specific target.
type ConnectionHealth struct {
	Target    string        `json:"target"`
	Reachable bool          `json:"reachable"`
	Latency   time.Duration `json:"latencyMs"`
	Detail    string        `json:"detail,omitempty"`
}

// Adapter is the uniform capability contract over heterogeneous payment
// channels. Channels that do not support discovery return an empty device
// list, not an error. Adapters are stateless per call except for the shared
// credential cache held by the cloud variant.
type Adapter interface {
	Name() string
	Discover(ctx context.Context) ([]Device, error)
	TestConnection(ctx context.Context, target Target) (*ConnectionHealth, error)
	InitiatePayment(ctx context.Context, req PaymentRequest) (*InitiateOutcome, error)
	CheckStatus(ctx context.Context, transactionID string, target Target) (*StatusResult, error)
	Reverse(ctx context.Context, transactionID string, target Target, kind ReversalKind) (*Result, error)
}
