package providers

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Errors common to all channel variants. Validation errors are returned
// before any external call is made, so a retry is always safe.
var (
	ErrInvalidAmount      = errors.New("amount must be greater than zero")
	ErrMissingTarget      = errors.New("required device or profile target is missing")
	ErrGatewayUnreachable = errors.New("payment gateway unreachable")
	ErrUnknownProvider    = errors.New("unknown payment provider")
)

// DeclinedError is a terminal processor decline. The order stays OPEN so a
// new payment attempt can be made.
type DeclinedError struct {
	Reason string
	Raw    json.RawMessage
}

func (e *DeclinedError) Error() string {
	return fmt.Sprintf("payment declined: %s", e.Reason)
}

// GatewayError is a malformed or unexpected gateway response. The order
// remains in its prior state so an operator-initiated retry is safe.
type GatewayError struct {
	Provider string
	Detail   string
	Err      error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s gateway error: %s: %v", e.Provider, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s gateway error: %s", e.Provider, e.Detail)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
