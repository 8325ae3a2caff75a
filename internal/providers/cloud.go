package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CloudTerminalAdapter drives terminals attached to the cloud gateway. The
// gateway accepts a payment request immediately and the physical terminal
// confirms out-of-band, so InitiatePayment always returns a pending handle.
// Terminals are addressed either by serial number or by EPI; both route to
// the same payment resource.
type CloudTerminalAdapter struct {
	httpClient *http.Client
	baseURL    string
	tokens     *TokenCache
}

type CloudConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

func NewCloudTerminalAdapter(cfg CloudConfig) *CloudTerminalAdapter {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}

	a := &CloudTerminalAdapter{
		httpClient: httpClient,
		baseURL:    cfg.BaseURL,
	}
	a.tokens = NewTokenCache(func(ctx context.Context) (string, time.Duration, error) {
		return a.fetchToken(ctx, cfg.ClientID, cfg.ClientSecret)
	})
	return a
}

func (a *CloudTerminalAdapter) Name() string {
	return "CLOUD_TERMINAL"
}

func (a *CloudTerminalAdapter) fetchToken(ctx context.Context, clientID, clientSecret string) (string, time.Duration, error) {
	auth := base64.StdEncoding.EncodeToString([]byte(clientID + ":" + clientSecret))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/oauth2/token",
		bytes.NewBufferString("grant_type=client_credentials"))
	if err != nil {
		return "", 0, fmt.Errorf("token request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", 0, &GatewayError{
			Provider: a.Name(),
			Detail:   fmt.Sprintf("authentication failed: status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, &GatewayError{Provider: a.Name(), Detail: "malformed token response", Err: err}
	}
	if out.AccessToken == "" {
		return "", 0, &GatewayError{Provider: a.Name(), Detail: "token response missing access_token"}
	}
	return out.AccessToken, time.Duration(out.ExpiresIn) * time.Second, nil
}

// Authenticate forces token resolution and reports whether it was served
// from cache, plus the expiry. Backs the cloud authenticate endpoint.
func (a *CloudTerminalAdapter) Authenticate(ctx context.Context) (cached bool, expiry time.Time, err error) {
	_, cached, err = a.tokens.Token(ctx)
	if err != nil {
		return false, time.Time{}, err
	}
	return cached, a.tokens.Expiry(), nil
}

func (a *CloudTerminalAdapter) terminalPath(target Target) (string, error) {
	switch target.Kind {
	case TargetSerial:
		if target.Value == "" {
			return "", ErrMissingTarget
		}
		return "/v2/terminals/" + target.Value, nil
	case TargetEPI:
		if target.Value == "" {
			return "", ErrMissingTarget
		}
		return "/v2/epi/" + target.Value, nil
	default:
		return "", ErrMissingTarget
	}
}

func (a *CloudTerminalAdapter) Discover(ctx context.Context) ([]Device, error) {
	raw, err := a.do(ctx, http.MethodGet, "/v2/terminals", nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Terminals []struct {
			Serial string `json:"serial"`
			EPI    string `json:"epi"`
			Name   string `json:"name"`
			Model  string `json:"model"`
		} `json:"terminals"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &GatewayError{Provider: a.Name(), Detail: "malformed terminal list", Err: err}
	}

	devices := make([]Device, 0, len(out.Terminals))
	for _, t := range out.Terminals {
		id := t.Serial
		if id == "" {
			id = t.EPI
		}
		devices = append(devices, Device{
			Provider:   a.Name(),
			Identifier: id,
			Name:       t.Name,
			Model:      t.Model,
		})
	}
	return devices, nil
}

func (a *CloudTerminalAdapter) TestConnection(ctx context.Context, target Target) (*ConnectionHealth, error) {
	path, err := a.terminalPath(target)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := a.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return &ConnectionHealth{Target: target.Value, Reachable: false, Detail: err.Error()}, nil
	}

	var out struct {
		Online bool   `json:"online"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &GatewayError{Provider: a.Name(), Detail: "malformed terminal status", Err: err}
	}

	return &ConnectionHealth{
		Target:    target.Value,
		Reachable: out.Online,
		Latency:   time.Since(start),
		Detail:    out.Status,
	}, nil
}

func (a *CloudTerminalAdapter) InitiatePayment(ctx context.Context, req PaymentRequest) (*InitiateOutcome, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	path, err := a.terminalPath(req.Target)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"amount":      req.Amount.StringFixed(2),
		"invoice":     req.InvoiceNumber,
		"description": req.Description,
	}
	raw, err := a.do(ctx, http.MethodPost, path+"/payments", payload)
	if err != nil {
		return nil, err
	}

	var out struct {
		PaymentID string `json:"paymentId"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &GatewayError{Provider: a.Name(), Detail: "malformed payment response", Err: err}
	}
	if out.PaymentID == "" {
		return nil, &GatewayError{Provider: a.Name(), Detail: "payment response missing paymentId"}
	}

	return &InitiateOutcome{Pending: &PendingHandle{TransactionID: out.PaymentID}}, nil
}

func (a *CloudTerminalAdapter) CheckStatus(ctx context.Context, transactionID string, target Target) (*StatusResult, error) {
	raw, err := a.do(ctx, http.MethodGet, "/v2/payments/"+transactionID, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Status   string `json:"status"`
		AuthCode string `json:"authCode"`
		Message  string `json:"message"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &GatewayError{Provider: a.Name(), Detail: "malformed payment status", Err: err}
	}

	switch out.Status {
	case "approved", "captured":
		return &StatusResult{Status: StatusApproved, Result: &Result{
			TransactionID: transactionID,
			AuthCode:      out.AuthCode,
			Captured:      true,
			RawResponse:   raw,
		}}, nil
	case "declined", "cancelled":
		return &StatusResult{Status: StatusDeclined, Decline: &DeclinedError{Reason: out.Message, Raw: raw}}, nil
	default:
		return &StatusResult{Status: StatusPending}, nil
	}
}

func (a *CloudTerminalAdapter) Reverse(ctx context.Context, transactionID string, target Target, kind ReversalKind) (*Result, error) {
	path := fmt.Sprintf("/v2/payments/%s/%s", transactionID, string(kind))
	raw, err := a.do(ctx, http.MethodPost, path, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Status   string `json:"status"`
		AuthCode string `json:"authCode"`
		Message  string `json:"message"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &GatewayError{Provider: a.Name(), Detail: "malformed reversal response", Err: err}
	}
	if out.Status != "approved" && out.Status != "reversed" {
		return nil, &DeclinedError{Reason: out.Message, Raw: raw}
	}

	return &Result{
		TransactionID: transactionID,
		AuthCode:      out.AuthCode,
		Captured:      true,
		RawResponse:   raw,
	}, nil
}

func (a *CloudTerminalAdapter) do(ctx context.Context, method, path string, payload any) (json.RawMessage, error) {
	token, _, err := a.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal gateway payload: %w", err)
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("gateway request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &GatewayError{Provider: a.Name(), Detail: "reading gateway response", Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// Gateway revoked the token before its advertised expiry.
		a.tokens.Invalidate()
		return nil, &GatewayError{Provider: a.Name(), Detail: "authentication rejected by gateway"}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &GatewayError{
			Provider: a.Name(),
			Detail:   fmt.Sprintf("status %d: %s", resp.StatusCode, string(raw)),
		}
	}
	return raw, nil
}
