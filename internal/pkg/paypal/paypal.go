package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/FitLedger/FitLedger/internal/pkg/cache"
	"github.com/FitLedger/FitLedger/internal/pkg/env"
)

const (
	defaultSandboxBaseURL = "https://api-m.sandbox.paypal.com"
	defaultLiveBaseURL    = "https://api-m.paypal.com"

	accessTokenCacheKey = "paypal:access_token"
	// Tokens are cached slightly shorter than their reported lifetime so a
	// cached token is never presented right at its expiry.
	accessTokenExpirySlack = 60 * time.Second
)

// Provider-side order statuses as reported by the checkout API.
const (
	OrderStatusCreated             = "CREATED"
	OrderStatusSaved               = "SAVED"
	OrderStatusApproved            = "APPROVED"
	OrderStatusPayerActionRequired = "PAYER_ACTION_REQUIRED"
	OrderStatusCompleted           = "COMPLETED"
	OrderStatusVoided              = "VOIDED"
)

// APIError is returned for non-2xx provider responses. It carries enough
// detail for operator diagnosis but never credentials.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paypal api error: status=%d message=%s", e.StatusCode, e.Message)
}

type Client struct {
	ClientID     string
	ClientSecret string
	BaseURL      string

	HTTPClient *http.Client
}

type CreateOrderParams struct {
	Amount      float64
	Currency    string
	Description string
	ReferenceID string // internal public order id, echoed back by the provider
	ReturnURL   string
	CancelURL   string
}

type CreatedOrder struct {
	ProviderOrderID string
	ApprovalURL     string
}

type CaptureResult struct {
	Status        string
	TransactionID string
}

func NewClientFromEnv() *Client {
	base := strings.TrimSpace(env.GetEnv("PAYPAL_API_BASE_URL", ""))
	if base == "" {
		if env.GetEnv("PAYPAL_MODE", "sandbox") == "live" {
			base = defaultLiveBaseURL
		} else {
			base = defaultSandboxBaseURL
		}
	}

	return &Client{
		ClientID:     strings.TrimSpace(env.GetEnv("PAYPAL_CLIENT_ID", "")),
		ClientSecret: strings.TrimSpace(env.GetEnv("PAYPAL_CLIENT_SECRET", "")),
		BaseURL:      strings.TrimRight(base, "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// GetAccessToken returns a bearer token for the API, reusing a cached token
// while it is still comfortably valid.
func (c *Client) GetAccessToken(ctx context.Context) (string, error) {
	if token, err := cache.Get(accessTokenCacheKey); err == nil && token != "" {
		return token, nil
	}

	if c.ClientID == "" || c.ClientSecret == "" {
		return "", errors.New("PAYPAL_CLIENT_ID/PAYPAL_CLIENT_SECRET are not configured")
	}

	form := strings.NewReader("grant_type=client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/oauth2/token", form)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.ClientID, c.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{StatusCode: resp.StatusCode, Message: providerMessage(body)}
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return "", errors.New("paypal token response returned empty access_token")
	}

	ttl := time.Duration(out.ExpiresIn)*time.Second - accessTokenExpirySlack
	if ttl > 0 {
		_ = cache.Set(accessTokenCacheKey, out.AccessToken, ttl)
	}
	return out.AccessToken, nil
}

// CreateOrder creates a provider-side order with CAPTURE intent and returns
// the provider order id plus the buyer approval URL.
func (c *Client) CreateOrder(ctx context.Context, p CreateOrderParams) (*CreatedOrder, error) {
	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{
			{
				"reference_id": p.ReferenceID,
				"description":  p.Description,
				"amount": map[string]string{
					"currency_code": p.Currency,
					"value":         FormatAmount(p.Amount),
				},
			},
		},
		"application_context": map[string]string{
			"return_url": p.ReturnURL,
			"cancel_url": p.CancelURL,
		},
	}

	body, err := c.doAuthorized(ctx, http.MethodPost, "/v2/checkout/orders", payload)
	if err != nil {
		return nil, err
	}

	var raw struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Links  []struct {
			Href string `json:"href"`
			Rel  string `json:"rel"`
		} `json:"links"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.ID) == "" {
		return nil, errors.New("paypal create order response missing order id")
	}

	approvalURL := ""
	for _, l := range raw.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			approvalURL = l.Href
			break
		}
	}

	return &CreatedOrder{ProviderOrderID: raw.ID, ApprovalURL: approvalURL}, nil
}

// GetOrderStatus queries the current provider-side status of an order.
func (c *Client) GetOrderStatus(ctx context.Context, providerOrderID string) (string, error) {
	id := strings.TrimSpace(providerOrderID)
	if id == "" {
		return "", errors.New("provider order id is required")
	}

	body, err := c.doAuthorized(ctx, http.MethodGet, "/v2/checkout/orders/"+id, nil)
	if err != nil {
		return "", err
	}

	var raw struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", err
	}
	if strings.TrimSpace(raw.Status) == "" {
		return "", errors.New("paypal order status response missing status")
	}
	return raw.Status, nil
}

// CaptureOrder finalizes an approved order. The returned transaction id is
// the capture id of the first purchase unit.
func (c *Client) CaptureOrder(ctx context.Context, providerOrderID string) (*CaptureResult, error) {
	id := strings.TrimSpace(providerOrderID)
	if id == "" {
		return nil, errors.New("provider order id is required")
	}

	body, err := c.doAuthorized(ctx, http.MethodPost, "/v2/checkout/orders/"+id+"/capture", map[string]any{})
	if err != nil {
		return nil, err
	}

	var raw struct {
		Status        string `json:"status"`
		PurchaseUnits []struct {
			Payments struct {
				Captures []struct {
					ID     string `json:"id"`
					Status string `json:"status"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	out := &CaptureResult{Status: raw.Status}
	for _, pu := range raw.PurchaseUnits {
		if len(pu.Payments.Captures) > 0 {
			out.TransactionID = pu.Payments.Captures[0].ID
			break
		}
	}
	return out, nil
}

func (c *Client) doAuthorized(ctx context.Context, method, path string, payload any) ([]byte, error) {
	token, err := c.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: providerMessage(body)}
	}
	return body, nil
}

// FormatAmount renders a decimal amount the way the checkout API expects it.
func FormatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}

// providerMessage extracts a short diagnostic message from an error payload.
func providerMessage(body []byte) string {
	var raw struct {
		Message string `json:"message"`
		Name    string `json:"name"`
		Error   string `json:"error"`
		Desc    string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &raw); err == nil {
		switch {
		case raw.Message != "":
			return raw.Message
		case raw.Desc != "":
			return raw.Desc
		case raw.Name != "":
			return raw.Name
		case raw.Error != "":
			return raw.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}
