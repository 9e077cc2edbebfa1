package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCreateOrder_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v1/orders" {
			t.Fatalf("path = %s, want /v1/orders", r.URL.Path)
		}

		user, pass, ok := r.BasicAuth()
		if !ok || user != "rzp_test_key" || pass != "rzp_test_secret" {
			t.Fatalf("basic auth = %q/%q, want key pair", user, pass)
		}

		var req orderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Amount != 110000 {
			t.Fatalf("amount = %d, want 110000", req.Amount)
		}
		if req.Currency != "INR" {
			t.Fatalf("currency = %s, want INR", req.Currency)
		}
		if req.Receipt != "order_7" {
			t.Fatalf("receipt = %s, want order_7", req.Receipt)
		}
		if req.Notes["customer"] != "madhuri" {
			t.Fatalf("notes customer = %s, want madhuri", req.Notes["customer"])
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(Order{
			ID:       "order_RZP123",
			Amount:   req.Amount,
			Currency: req.Currency,
			Receipt:  req.Receipt,
			Status:   "created",
		}); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	client := NewClient("rzp_test_key", "rzp_test_secret", "INR")
	client.SetBaseURL(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	order, err := client.CreateOrder(ctx, 110000, "order_7", map[string]string{
		"orderId":  "7",
		"customer": "madhuri",
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}
	if order.ID != "order_RZP123" {
		t.Fatalf("order id = %s, want order_RZP123", order.ID)
	}
	if order.Status != "created" {
		t.Fatalf("order status = %s, want created", order.Status)
	}
}

func TestCreateOrder_GatewayError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	client := NewClient("bad_key", "bad_secret", "INR")
	client.SetBaseURL(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := client.CreateOrder(ctx, 100, "order_1", nil); err == nil {
		t.Fatalf("expected error for gateway 401")
	}
}

func TestVerifySignature(t *testing.T) {
	client := NewClient("rzp_test_key", "rzp_test_secret", "INR")

	mac := hmac.New(sha256.New, []byte("rzp_test_secret"))
	mac.Write([]byte("order_RZP123|pay_RZP456"))
	valid := hex.EncodeToString(mac.Sum(nil))

	if !client.VerifySignature("order_RZP123", "pay_RZP456", valid) {
		t.Fatalf("valid signature rejected")
	}
	if client.VerifySignature("order_RZP123", "pay_RZP456", valid+"00") {
		t.Fatalf("tampered signature accepted")
	}
	if client.VerifySignature("order_OTHER", "pay_RZP456", valid) {
		t.Fatalf("signature for another order accepted")
	}
	if client.VerifySignature("order_RZP123", "pay_RZP456", "") {
		t.Fatalf("empty signature accepted")
	}
}
