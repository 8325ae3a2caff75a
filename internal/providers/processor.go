package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// processorClient talks to the card processor's REST API. The Bluetooth
// reader, card-on-file and manual entry channels all charge through it; only
// the request payload differs per channel.
type processorClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func newProcessorClient(baseURL, apiKey string, timeout time.Duration) *processorClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &processorClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

type processorChargeResponse struct {
	Approved      bool   `json:"approved"`
	TransactionID string `json:"transactionId"`
	AuthCode      string `json:"authCode"`
	ResponseCode  string `json:"responseCode"`
	Message       string `json:"message"`
}

func (c *processorClient) do(ctx context.Context, provider, method, path string, payload any) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal processor payload: %w", err)
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("processor request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &GatewayError{Provider: provider, Detail: "reading response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &GatewayError{
			Provider: provider,
			Detail:   fmt.Sprintf("status %d: %s", resp.StatusCode, string(raw)),
		}
	}

	return raw, nil
}

// charge posts a charge and maps the processor verdict. A decline is a
// DeclinedError carrying the processor reason and the verbatim payload.
func (c *processorClient) charge(ctx context.Context, provider, path string, payload any) (*Result, error) {
	raw, err := c.do(ctx, provider, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}

	var out processorChargeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &GatewayError{Provider: provider, Detail: "malformed charge response", Err: err}
	}

	if !out.Approved {
		reason := out.Message
		if reason == "" {
			reason = "declined by processor (" + out.ResponseCode + ")"
		}
		return nil, &DeclinedError{Reason: reason, Raw: raw}
	}

	return &Result{
		TransactionID: out.TransactionID,
		AuthCode:      out.AuthCode,
		Captured:      true,
		RawResponse:   raw,
	}, nil
}

func (c *processorClient) status(ctx context.Context, provider, transactionID string) (*StatusResult, error) {
	raw, err := c.do(ctx, provider, http.MethodGet, "/v1/charges/"+transactionID, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		processorChargeResponse
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &GatewayError{Provider: provider, Detail: "malformed status response", Err: err}
	}

	switch out.Status {
	case "approved", "captured", "settled":
		return &StatusResult{
			Status: StatusApproved,
			Result: &Result{
				TransactionID: transactionID,
				AuthCode:      out.AuthCode,
				Captured:      true,
				RawResponse:   raw,
			},
		}, nil
	case "declined", "failed":
		return &StatusResult{
			Status:  StatusDeclined,
			Decline: &DeclinedError{Reason: out.Message, Raw: raw},
		}, nil
	default:
		return &StatusResult{Status: StatusPending}, nil
	}
}

func (c *processorClient) reverse(ctx context.Context, provider, transactionID string, kind ReversalKind) (*Result, error) {
	path := fmt.Sprintf("/v1/charges/%s/%s", transactionID, string(kind))
	raw, err := c.do(ctx, provider, http.MethodPost, path, nil)
	if err != nil {
		return nil, err
	}

	var out processorChargeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &GatewayError{Provider: provider, Detail: "malformed reversal response", Err: err}
	}
	if !out.Approved {
		return nil, &DeclinedError{Reason: out.Message, Raw: raw}
	}

	return &Result{
		TransactionID: transactionID,
		AuthCode:      out.AuthCode,
		Captured:      true,
		RawResponse:   raw,
	}, nil
}
