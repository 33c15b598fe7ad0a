package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("https://api.example.com", "key", "user", "pass")

		if c.baseURL != "https://api.example.com" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "https://api.example.com")
		}
		if c.apiKey != "key" {
			t.Errorf("apiKey = %q, want %q", c.apiKey, "key")
		}
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
		if c.maxRetries != 3 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 3)
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with options", func(t *testing.T) {
		c := NewClient("https://api.example.com", "", "", "",
			WithTimeout(5*time.Second),
			WithRetries(5, 2*time.Second),
		)
		if c.httpClient.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 5*time.Second)
		}
		if c.maxRetries != 5 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 5)
		}
		if c.retryBackoff != 2*time.Second {
			t.Errorf("retryBackoff = %v, want %v", c.retryBackoff, 2*time.Second)
		}
	})
}

// TestLogin verifies session creation harvests tokens from response headers
// and attaches them to subsequent requests.
func TestLogin(t *testing.T) {
	var pingCST, pingToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/session":
			if r.Header.Get("X-CAP-API-KEY") != "test-key" {
				t.Errorf("X-CAP-API-KEY = %q, want %q", r.Header.Get("X-CAP-API-KEY"), "test-key")
			}
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatalf("decode session body: %v", err)
			}
			if body["identifier"] != "user@example.com" {
				t.Errorf("identifier = %v, want user@example.com", body["identifier"])
			}
			w.Header().Set("CST", "cst-value")
			w.Header().Set("X-SECURITY-TOKEN", "sec-value")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{}`))
		case "/api/v1/ping":
			pingCST = r.Header.Get("CST")
			pingToken = r.Header.Get("X-SECURITY-TOKEN")
			w.Write([]byte(`{"status":"OK"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := NewClient(server.URL, "test-key", "user@example.com", "secret")
	if err := c.Login(context.Background()); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	cst, token := c.Tokens()
	if cst != "cst-value" || token != "sec-value" {
		t.Errorf("Tokens() = (%q, %q), want (cst-value, sec-value)", cst, token)
	}

	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if pingCST != "cst-value" || pingToken != "sec-value" {
		t.Errorf("ping headers = (%q, %q), want harvested tokens", pingCST, pingToken)
	}
}

// TestLoginMissingTokens verifies a session response without tokens fails.
func TestLoginMissingTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", "user", "pass")
	if err := c.Login(context.Background()); err == nil {
		t.Fatal("Login() should fail when tokens are absent")
	}
}

// TestAPIError verifies error responses become APIErrors carrying the
// exchange error code.
func TestAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errorCode":"error.prices.not-found"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", "user", "pass")
	_, err := c.GetCandles(context.Background(), "GOLD", "MINUTE", time.Now().Add(-time.Hour), time.Now(), 10)
	if err == nil {
		t.Fatal("GetCandles() should fail")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
	if !apiErr.IsPricesNotFound() {
		t.Error("IsPricesNotFound() = false, want true")
	}
	if apiErr.IsRetryable() {
		t.Error("IsRetryable() = true for 404, want false")
	}
}

// TestGetRetries verifies GETs retry on 5xx and succeed once the server
// recovers.
func TestGetRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"status":"OK"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", "user", "pass", WithRetries(3, time.Millisecond))
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

// TestPostNeverRetries verifies order placement is attempted exactly once
// even on a retryable status.
func TestPostNeverRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"errorCode":"error.service.unavailable"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", "user", "pass", WithRetries(3, time.Millisecond))
	_, err := c.OpenPosition(context.Background(), OrderRequest{Epic: "GOLD", Direction: "BUY", Size: 1})
	if err == nil {
		t.Fatal("OpenPosition() should fail")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (placements never retry)", calls.Load())
	}
}

// TestGetCandles verifies candle payloads decode into bid/ask candles.
func TestGetCandles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("resolution"); got != "MINUTE" {
			t.Errorf("resolution = %q, want MINUTE", got)
		}
		if got := r.URL.Query().Get("max"); got != "100" {
			t.Errorf("max = %q, want 100", got)
		}
		w.Write([]byte(`{"prices":[
			{"snapshotTimeUTC":"2026-03-02T10:00:00",
			 "openPrice":{"bid":1.1,"ask":1.2},
			 "highPrice":{"bid":1.3,"ask":1.4},
			 "lowPrice":{"bid":1.0,"ask":1.1},
			 "closePrice":{"bid":1.2,"ask":1.3},
			 "lastTradedVolume":42}
		]}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", "user", "pass")
	candles, err := c.GetCandles(context.Background(), "EURUSD", "MINUTE",
		time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC), 100)
	if err != nil {
		t.Fatalf("GetCandles() error = %v", err)
	}
	if len(candles) != 1 {
		t.Fatalf("len(candles) = %d, want 1", len(candles))
	}

	c0 := candles[0]
	if !c0.Time.Equal(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("Time = %v, want 2026-03-02T10:00:00Z", c0.Time)
	}
	if c0.OpenBid != 1.1 || c0.OpenAsk != 1.2 {
		t.Errorf("open = (%v, %v), want (1.1, 1.2)", c0.OpenBid, c0.OpenAsk)
	}
	if c0.Volume != 42 {
		t.Errorf("Volume = %v, want 42", c0.Volume)
	}
}

// TestGetConfirmation verifies affected deals and signed size decoding.
func TestGetConfirmation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/confirms/ref-1" {
			t.Errorf("path = %s, want /api/v1/confirms/ref-1", r.URL.Path)
		}
		w.Write([]byte(`{
			"dealId":"deal-1","dealReference":"ref-1","status":"CLOSED",
			"direction":"SELL","size":2.5,"level":100.5,"profit":12.5,
			"affectedDeals":[{"dealId":"d1","status":"FULLY_CLOSED"},{"dealId":"d2","status":"FULLY_CLOSED"}]
		}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", "user", "pass")
	conf, err := c.GetConfirmation(context.Background(), "ref-1")
	if err != nil {
		t.Fatalf("GetConfirmation() error = %v", err)
	}
	if conf.DealID != "deal-1" || conf.Status != "CLOSED" {
		t.Errorf("confirmation = %+v", conf)
	}
	if got := conf.SignedSize(); got != -2.5 {
		t.Errorf("SignedSize() = %v, want -2.5 for SELL", got)
	}
	if len(conf.AffectedDeals) != 2 {
		t.Errorf("len(AffectedDeals) = %d, want 2", len(conf.AffectedDeals))
	}
}
