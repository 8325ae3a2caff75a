package zoho

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// SaleSnapshot is the settled-sale view forwarded to Zoho Books.
type SaleSnapshot struct {
	OrderID       string
	InvoiceNumber string
	LaneID        string
	Amount        decimal.Decimal
	Provider      string
	TransactionID string
	PaidAt        time.Time
	Notes         string
}

// Client is the boundary to the external accounting system. Receipt creation
// is idempotent on the remote side keyed by invoice number; FindReceipt
// exists so a lost success response can be reconciled without creating a
// duplicate.
type Client interface {
	FindReceiptByReference(ctx context.Context, invoiceNumber string) (string, error)
	CreateSalesReceipt(ctx context.Context, snapshot *SaleSnapshot) (string, error)
}

type Config struct {
	BaseURL      string
	AccountsURL  string
	OrgID        string
	ClientID     string
	ClientSecret string
	RefreshToken string
	Timeout      time.Duration
}

type booksClient struct {
	httpClient *http.Client
	cfg        Config

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func NewClient(cfg Config) Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &booksClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
	}
}

func (c *booksClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.expiry.Add(-30*time.Second)) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", c.cfg.RefreshToken)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.AccountsURL+"/oauth/v2/token", bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("zoho token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("zoho token request: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode zoho token response: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("zoho token response missing access_token")
	}

	c.token = out.AccessToken
	c.expiry = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	return c.token, nil
}

// FindReceiptByReference looks up an existing sales receipt by its reference
// number. Returns "" when none exists.
func (c *booksClient) FindReceiptByReference(ctx context.Context, invoiceNumber string) (string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/books/v3/salesreceipts?organization_id=%s&reference_number=%s",
		c.cfg.BaseURL, url.QueryEscape(c.cfg.OrgID), url.QueryEscape(invoiceNumber))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("zoho lookup request: %w", err)
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("zoho lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("zoho lookup failed: status %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		SalesReceipts []struct {
			SalesReceiptID string `json:"salesreceipt_id"`
		} `json:"salesreceipts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode zoho lookup response: %w", err)
	}
	if len(out.SalesReceipts) == 0 {
		return "", nil
	}
	return out.SalesReceipts[0].SalesReceiptID, nil
}

func (c *booksClient) CreateSalesReceipt(ctx context.Context, snapshot *SaleSnapshot) (string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"reference_number": snapshot.InvoiceNumber,
		"date":             snapshot.PaidAt.Format("2006-01-02"),
		"payment_mode":     snapshot.Provider,
		"notes":            snapshot.Notes,
		"line_items": []map[string]any{
			{
				"description": fmt.Sprintf("POS sale %s (lane %s)", snapshot.InvoiceNumber, snapshot.LaneID),
				"rate":        snapshot.Amount.StringFixed(2),
				"quantity":    1,
			},
		},
		"custom_fields": []map[string]any{
			{"label": "transaction_id", "value": snapshot.TransactionID},
			{"label": "lane_id", "value": snapshot.LaneID},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal zoho receipt: %w", err)
	}

	endpoint := fmt.Sprintf("%s/books/v3/salesreceipts?organization_id=%s",
		c.cfg.BaseURL, url.QueryEscape(c.cfg.OrgID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("zoho create request: %w", err)
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("zoho create: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("zoho create failed: status %d: %s", resp.StatusCode, string(raw))
	}

	var out struct {
		SalesReceipt struct {
			SalesReceiptID string `json:"salesreceipt_id"`
		} `json:"salesreceipt"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode zoho create response: %w", err)
	}
	if out.SalesReceipt.SalesReceiptID == "" {
		return "", fmt.Errorf("zoho create response missing salesreceipt_id")
	}
	return out.SalesReceipt.SalesReceiptID, nil
}
