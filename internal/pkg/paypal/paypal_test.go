package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(baseURL string) *Client {
	return &Client{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		BaseURL:      baseURL,
		HTTPClient:   &http.Client{Timeout: 2 * time.Second},
	}
}

func tokenHandler(t *testing.T, mux *http.ServeMux) {
	t.Helper()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		// expires_in below the cache slack keeps tokens out of the shared cache
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "test-token", "expires_in": 30})
	})
}

func TestCreateOrder(t *testing.T) {
	mux := http.NewServeMux()
	tokenHandler(t, mux)
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Fatalf("unexpected auth header %q", got)
		}
		var payload struct {
			Intent        string `json:"intent"`
			PurchaseUnits []struct {
				ReferenceID string `json:"reference_id"`
				Amount      struct {
					CurrencyCode string `json:"currency_code"`
					Value        string `json:"value"`
				} `json:"amount"`
			} `json:"purchase_units"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("failed to decode create order payload: %v", err)
		}
		if payload.Intent != "CAPTURE" {
			t.Fatalf("expected CAPTURE intent, got %q", payload.Intent)
		}
		if payload.PurchaseUnits[0].Amount.Value != "9.99" {
			t.Fatalf("expected amount 9.99, got %q", payload.PurchaseUnits[0].Amount.Value)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "PP-ORDER-1",
			"status": "CREATED",
			"links": []map[string]string{
				{"rel": "self", "href": "https://example.test/self"},
				{"rel": "approve", "href": "https://example.test/approve"},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv.URL)
	out, err := c.CreateOrder(context.Background(), CreateOrderParams{
		Amount:      9.99,
		Currency:    "EUR",
		Description: "Premium subscription",
		ReferenceID: "order-public-id",
		ReturnURL:   "https://app.test/payments/return",
		CancelURL:   "https://app.test/payments/cancel",
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if out.ProviderOrderID != "PP-ORDER-1" {
		t.Fatalf("unexpected provider order id %q", out.ProviderOrderID)
	}
	if out.ApprovalURL != "https://example.test/approve" {
		t.Fatalf("unexpected approval url %q", out.ApprovalURL)
	}
}

func TestGetOrderStatus(t *testing.T) {
	mux := http.NewServeMux()
	tokenHandler(t, mux)
	mux.HandleFunc("/v2/checkout/orders/PP-ORDER-2", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": OrderStatusApproved})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv.URL)
	status, err := c.GetOrderStatus(context.Background(), "PP-ORDER-2")
	if err != nil {
		t.Fatalf("GetOrderStatus failed: %v", err)
	}
	if status != OrderStatusApproved {
		t.Fatalf("expected APPROVED, got %q", status)
	}
}

func TestCaptureOrder(t *testing.T) {
	mux := http.NewServeMux()
	tokenHandler(t, mux)
	mux.HandleFunc("/v2/checkout/orders/PP-ORDER-3/capture", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": OrderStatusCompleted,
			"purchase_units": []map[string]any{
				{"payments": map[string]any{"captures": []map[string]string{{"id": "CAP-1", "status": "COMPLETED"}}}},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv.URL)
	out, err := c.CaptureOrder(context.Background(), "PP-ORDER-3")
	if err != nil {
		t.Fatalf("CaptureOrder failed: %v", err)
	}
	if out.Status != OrderStatusCompleted || out.TransactionID != "CAP-1" {
		t.Fatalf("unexpected capture result %+v", out)
	}
}

func TestNon2xxMapsToAPIError(t *testing.T) {
	mux := http.NewServeMux()
	tokenHandler(t, mux)
	mux.HandleFunc("/v2/checkout/orders/BROKEN", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY","message":"order already captured"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.GetOrderStatus(context.Background(), "BROKEN")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status code %d", apiErr.StatusCode)
	}
	if apiErr.Message != "order already captured" {
		t.Fatalf("unexpected message %q", apiErr.Message)
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{in: 9.99, want: "9.99"},
		{in: 10, want: "10.00"},
		{in: 0.5, want: "0.50"},
	}
	for _, tt := range tests {
		if got := FormatAmount(tt.in); got != tt.want {
			t.Fatalf("FormatAmount(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
