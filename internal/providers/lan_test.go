package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func lanTestServer(t *testing.T, handler http.HandlerFunc) (*LANTerminalAdapter, Target) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	addr := strings.TrimPrefix(srv.URL, "http://")
	return NewLANTerminalAdapter(LANConfig{}), Target{Kind: TargetIP, Value: addr}
}

func TestLANTerminalAdapter_InitiatePayment(t *testing.T) {
	ctx := context.Background()

	t.Run("approved sale returns a captured result", func(t *testing.T) {
		adapter, target := lanTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/sale", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)

			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "19.99", body["amount"])
			assert.Equal(t, "INV-77", body["invoice"])

			json.NewEncoder(w).Encode(map[string]any{
				"approved":      true,
				"transactionId": "T-900",
				"authCode":      "AB12",
			})
		})

		outcome, err := adapter.InitiatePayment(ctx, PaymentRequest{
			Amount:        decimal.NewFromFloat(19.99),
			InvoiceNumber: "INV-77",
			Target:        target,
		})
		assert.NoError(t, err)
		assert.Nil(t, outcome.Pending)
		assert.Equal(t, "T-900", outcome.Result.TransactionID)
		assert.Equal(t, "AB12", outcome.Result.AuthCode)
		assert.True(t, outcome.Result.Captured)
		assert.NotEmpty(t, outcome.Result.RawResponse)
	})

	t.Run("declined sale carries reason and raw payload", func(t *testing.T) {
		adapter, target := lanTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"approved":     false,
				"responseCode": "05",
				"message":      "do not honor",
			})
		})

		_, err := adapter.InitiatePayment(ctx, PaymentRequest{
			Amount: decimal.NewFromInt(10),
			Target: target,
		})

		var declined *DeclinedError
		assert.ErrorAs(t, err, &declined)
		assert.Equal(t, "do not honor", declined.Reason)
		assert.Contains(t, string(declined.Raw), "05")
	})

	t.Run("non-positive amount rejected before any network call", func(t *testing.T) {
		adapter := NewLANTerminalAdapter(LANConfig{})
		_, err := adapter.InitiatePayment(ctx, PaymentRequest{
			Amount: decimal.Zero,
			Target: Target{Kind: TargetIP, Value: "10.0.0.5"},
		})
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("missing target rejected", func(t *testing.T) {
		adapter := NewLANTerminalAdapter(LANConfig{})
		_, err := adapter.InitiatePayment(ctx, PaymentRequest{Amount: decimal.NewFromInt(5)})
		assert.ErrorIs(t, err, ErrMissingTarget)
	})

	t.Run("unreachable terminal maps to gateway unreachable", func(t *testing.T) {
		adapter := NewLANTerminalAdapter(LANConfig{})
		_, err := adapter.InitiatePayment(ctx, PaymentRequest{
			Amount: decimal.NewFromInt(5),
			Target: Target{Kind: TargetIP, Value: "127.0.0.1:1"},
		})
		assert.ErrorIs(t, err, ErrGatewayUnreachable)
	})

	t.Run("terminal error status surfaces as gateway error", func(t *testing.T) {
		adapter, target := lanTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "busy", http.StatusServiceUnavailable)
		})

		_, err := adapter.InitiatePayment(ctx, PaymentRequest{
			Amount: decimal.NewFromInt(5),
			Target: target,
		})

		var gw *GatewayError
		assert.True(t, errors.As(err, &gw))
		assert.Contains(t, gw.Detail, "503")
	})
}

func TestLANTerminalAdapter_CheckStatus(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name     string
		payload  map[string]any
		expected Status
	}{
		{"approved", map[string]any{"status": "approved", "authCode": "A1"}, StatusApproved},
		{"captured maps to approved", map[string]any{"status": "captured"}, StatusApproved},
		{"declined", map[string]any{"status": "declined", "message": "timeout at terminal"}, StatusDeclined},
		{"anything else is pending", map[string]any{"status": "processing"}, StatusPending},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			adapter, target := lanTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/sale/T-1", r.URL.Path)
				json.NewEncoder(w).Encode(tc.payload)
			})

			result, err := adapter.CheckStatus(ctx, "T-1", target)
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, result.Status)
		})
	}
}

func TestLANTerminalAdapter_Reverse(t *testing.T) {
	ctx := context.Background()

	t.Run("void posts to the void path", func(t *testing.T) {
		adapter, target := lanTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/sale/T-5/void", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]any{"approved": true, "authCode": "V1"})
		})

		result, err := adapter.Reverse(ctx, "T-5", target, ReversalVoid)
		assert.NoError(t, err)
		assert.Equal(t, "T-5", result.TransactionID)
		assert.Equal(t, "V1", result.AuthCode)
	})

	t.Run("refund posts to the refund path", func(t *testing.T) {
		adapter, target := lanTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/sale/T-6/refund", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]any{"approved": true})
		})

		_, err := adapter.Reverse(ctx, "T-6", target, ReversalRefund)
		assert.NoError(t, err)
	})
}

func TestLANTerminalAdapter_HostPort(t *testing.T) {
	adapter := NewLANTerminalAdapter(LANConfig{DefaultPort: 9100})

	addr, err := adapter.hostPort(Target{Kind: TargetIP, Value: "192.168.1.40"})
	assert.NoError(t, err)
	assert.Equal(t, "192.168.1.40:9100", addr)

	addr, err = adapter.hostPort(Target{Kind: TargetIP, Value: "192.168.1.40:8443"})
	assert.NoError(t, err)
	assert.Equal(t, "192.168.1.40:8443", addr)

	_, err = adapter.hostPort(Target{Kind: TargetIP})
	assert.ErrorIs(t, err, ErrMissingTarget)
}
