package services

import "errors"

// Conflict errors are rejected without side effects: the ledger is exactly as
// it was before the call, so the caller may retry or give up freely.
var (
	ErrDuplicateInvoice     = errors.New("invoice number already exists")
	ErrDuplicateTransaction = errors.New("transaction id already recorded for this provider")
	ErrOrderNotFound        = errors.New("order not found")
	ErrOrderNotOpen         = errors.New("order is not open")
	ErrPaymentInProgress    = errors.New("a payment is already in progress for this order")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrNothingToReverse     = errors.New("nothing to reverse")
	ErrAmountMismatch       = errors.New("payment amount does not match order amount")
	ErrInvalidTransition    = errors.New("illegal order status transition")
)
