package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// LANTerminalAdapter drives card terminals reachable over the local network.
// Targets are host or host:port; the sale call is near-synchronous, the
// terminal answers once the cardholder completes the prompt.
type LANTerminalAdapter struct {
	httpClient  *http.Client
	subnet      string
	defaultPort int
	scanTimeout time.Duration
}

type LANConfig struct {
	Subnet      string
	DefaultPort int
	SaleTimeout time.Duration
	ScanTimeout time.Duration
}

func NewLANTerminalAdapter(cfg LANConfig) *LANTerminalAdapter {
	if cfg.DefaultPort == 0 {
		cfg.DefaultPort = 8443
	}
	if cfg.SaleTimeout == 0 {
		// Cardholder interaction happens inside this window.
		cfg.SaleTimeout = 120 * time.Second
	}
	if cfg.ScanTimeout == 0 {
		cfg.ScanTimeout = 500 * time.Millisecond
	}
	return &LANTerminalAdapter{
		httpClient:  &http.Client{Timeout: cfg.SaleTimeout},
		subnet:      cfg.Subnet,
		defaultPort: cfg.DefaultPort,
		scanTimeout: cfg.ScanTimeout,
	}
}

func (a *LANTerminalAdapter) Name() string {
	return "LAN_TERMINAL"
}

func (a *LANTerminalAdapter) hostPort(target Target) (string, error) {
	if target.Value == "" {
		return "", ErrMissingTarget
	}
	if _, _, err := net.SplitHostPort(target.Value); err == nil {
		return target.Value, nil
	}
	return net.JoinHostPort(target.Value, strconv.Itoa(a.defaultPort)), nil
}

// Discover scans the configured subnet for terminals answering on the
// default port. An empty subnet yields an empty list.
func (a *LANTerminalAdapter) Discover(ctx context.Context) ([]Device, error) {
	if a.subnet == "" {
		return []Device{}, nil
	}

	_, ipNet, err := net.ParseCIDR(a.subnet)
	if err != nil {
		return nil, fmt.Errorf("parse lan subnet %q: %w", a.subnet, err)
	}

	var (
		mu      sync.Mutex
		devices []Device
		wg      sync.WaitGroup
	)
	sem := make(chan struct{}, 32)

	for ip := ipNet.IP.Mask(ipNet.Mask); ipNet.Contains(ip); incrementIP(ip) {
		if ctx.Err() != nil {
			break
		}
		host := ip.String()
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			addr := net.JoinHostPort(host, strconv.Itoa(a.defaultPort))
			conn, err := net.DialTimeout("tcp", addr, a.scanTimeout)
			if err != nil {
				return
			}
			conn.Close()

			dev := Device{Provider: a.Name(), Identifier: addr}
			if info, err := a.terminalInfo(ctx, addr); err == nil {
				dev.Name = info.Name
				dev.Model = info.Model
			}
			mu.Lock()
			devices = append(devices, dev)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if devices == nil {
		devices = []Device{}
	}
	return devices, nil
}

type lanTerminalInfo struct {
	Name   string `json:"name"`
	Model  string `json:"model"`
	Serial string `json:"serial"`
}

func (a *LANTerminalAdapter) terminalInfo(ctx context.Context, addr string) (*lanTerminalInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/v1/info", nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var info lanTerminalInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (a *LANTerminalAdapter) TestConnection(ctx context.Context, target Target) (*ConnectionHealth, error) {
	addr, err := a.hostPort(target)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/v1/ping", nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &ConnectionHealth{Target: addr, Reachable: false, Detail: err.Error()}, nil
	}
	defer resp.Body.Close()

	health := &ConnectionHealth{
		Target:    addr,
		Reachable: resp.StatusCode == http.StatusOK,
		Latency:   time.Since(start),
	}
	if !health.Reachable {
		health.Detail = fmt.Sprintf("terminal answered with status %d", resp.StatusCode)
	}
	return health, nil
}

type lanSaleResponse struct {
	Approved      bool   `json:"approved"`
	TransactionID string `json:"transactionId"`
	AuthCode      string `json:"authCode"`
	ResponseCode  string `json:"responseCode"`
	Message       string `json:"message"`
}

func (a *LANTerminalAdapter) InitiatePayment(ctx context.Context, req PaymentRequest) (*InitiateOutcome, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	addr, err := a.hostPort(req.Target)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"amount":      req.Amount.StringFixed(2),
		"invoice":     req.InvoiceNumber,
		"description": req.Description,
	}
	out, raw, err := a.post(ctx, addr, "/v1/sale", payload)
	if err != nil {
		return nil, err
	}
	if !out.Approved {
		return nil, &DeclinedError{Reason: out.Message, Raw: raw}
	}

	return &InitiateOutcome{Result: &Result{
		TransactionID: out.TransactionID,
		AuthCode:      out.AuthCode,
		Captured:      true,
		RawResponse:   raw,
	}}, nil
}

func (a *LANTerminalAdapter) CheckStatus(ctx context.Context, transactionID string, target Target) (*StatusResult, error) {
	addr, err := a.hostPort(target)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/v1/sale/"+transactionID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &GatewayError{Provider: a.Name(), Detail: "reading status response", Err: err}
	}

	var out struct {
		lanSaleResponse
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &GatewayError{Provider: a.Name(), Detail: "malformed status response", Err: err}
	}

	switch out.Status {
	case "approved", "captured":
		return &StatusResult{Status: StatusApproved, Result: &Result{
			TransactionID: transactionID,
			AuthCode:      out.AuthCode,
			Captured:      true,
			RawResponse:   raw,
		}}, nil
	case "declined":
		return &StatusResult{Status: StatusDeclined, Decline: &DeclinedError{Reason: out.Message, Raw: raw}}, nil
	default:
		return &StatusResult{Status: StatusPending}, nil
	}
}

func (a *LANTerminalAdapter) Reverse(ctx context.Context, transactionID string, target Target, kind ReversalKind) (*Result, error) {
	addr, err := a.hostPort(target)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/v1/sale/%s/%s", transactionID, string(kind))
	out, raw, err := a.post(ctx, addr, path, nil)
	if err != nil {
		return nil, err
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

func (a *LANTerminalAdapter) post(ctx context.Context, addr, path string, payload any) (*lanSaleResponse, json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal terminal payload: %w", err)
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+addr+path, body)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &GatewayError{Provider: a.Name(), Detail: "reading terminal response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, &GatewayError{
			Provider: a.Name(),
			Detail:   fmt.Sprintf("status %d: %s", resp.StatusCode, string(raw)),
		}
	}

	var out lanSaleResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, nil, &GatewayError{Provider: a.Name(), Detail: "malformed terminal response", Err: err}
	}
	return &out, raw, nil
}

func incrementIP(ip net.IP) {
	for i := len(ip) - 1; i >= 0; i-- {
		ip[i]++
		if ip[i] != 0 {
			break
		}
	}
}
