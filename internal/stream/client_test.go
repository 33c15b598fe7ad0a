package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

// testServer upgrades each request and hands the connection to handler.
func testServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func staticTokens(cst, token string) TokenSource {
	return func() (string, string) { return cst, token }
}

// TestConnectSubscribes verifies the subscribe command is sent on connect
// with session tokens and a correlation id.
func TestConnectSubscribes(t *testing.T) {
	got := make(chan request, 1)
	server := testServer(t, func(conn *websocket.Conn) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req request
		if err := json.Unmarshal(data, &req); err != nil {
			t.Errorf("unmarshal subscribe: %v", err)
			return
		}
		got <- req
		// Keep the socket open until the client closes.
		conn.ReadMessage()
	})
	defer server.Close()

	c := NewClient(Config{URL: wsURL(server), WriteTimeout: time.Second, BufferSize: 8},
		staticTokens("cst-1", "sec-1"), nil)
	if err := c.Connect(context.Background(), "EURUSD"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	select {
	case req := <-got:
		if req.Destination != "marketData.subscribe" {
			t.Errorf("destination = %q, want marketData.subscribe", req.Destination)
		}
		if req.CST != "cst-1" || req.SecurityToken != "sec-1" {
			t.Errorf("tokens = (%q, %q), want (cst-1, sec-1)", req.CST, req.SecurityToken)
		}
		if req.CorrelationID == "" {
			t.Error("correlation id should not be empty")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe received")
	}
}

// TestQuotesDecode verifies quote messages become ticks with millisecond
// timestamps and the offer mapped to ask.
func TestQuotesDecode(t *testing.T) {
	server := testServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage() // subscribe
		conn.WriteMessage(websocket.TextMessage, []byte(`{
			"status":"OK","destination":"quote",
			"payload":{"epic":"EURUSD","bid":1.0951,"ofr":1.0953,"timestamp":1772445600123}
		}`))
		conn.ReadMessage()
	})
	defer server.Close()

	c := NewClient(Config{URL: wsURL(server), WriteTimeout: time.Second, BufferSize: 8},
		staticTokens("c", "s"), nil)
	if err := c.Connect(context.Background(), "EURUSD"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	select {
	case tick := <-c.Quotes():
		if tick.Epic != "EURUSD" {
			t.Errorf("Epic = %q, want EURUSD", tick.Epic)
		}
		if tick.Bid != 1.0951 || tick.Ask != 1.0953 {
			t.Errorf("quote = (%v, %v), want (1.0951, 1.0953)", tick.Bid, tick.Ask)
		}
		want := time.UnixMilli(1772445600123).UTC()
		if !tick.Time.Equal(want) {
			t.Errorf("Time = %v, want %v", tick.Time, want)
		}
		if tick.ReceivedAt.IsZero() {
			t.Error("ReceivedAt should be set")
		}
		if tick.Sentinel {
			t.Error("Sentinel should be false for a live quote")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no tick received")
	}
}

// TestPing verifies the keepalive carries the current tokens.
func TestPing(t *testing.T) {
	pings := make(chan request, 1)
	server := testServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage() // subscribe
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req request
		json.Unmarshal(data, &req)
		pings <- req
		conn.ReadMessage()
	})
	defer server.Close()

	c := NewClient(Config{URL: wsURL(server), WriteTimeout: time.Second, BufferSize: 8},
		staticTokens("cst-2", "sec-2"), nil)
	if err := c.Connect(context.Background(), "EURUSD"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	if err := c.Ping(); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	select {
	case req := <-pings:
		if req.Destination != "ping" {
			t.Errorf("destination = %q, want ping", req.Destination)
		}
		if req.CST != "cst-2" {
			t.Errorf("CST = %q, want cst-2", req.CST)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received")
	}
}

// TestErrorOnServerClose verifies a dropped socket surfaces exactly one
// error and flips the connected state.
func TestErrorOnServerClose(t *testing.T) {
	server := testServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage() // subscribe
		// Drop the connection without a close handshake.
		conn.Close()
	})
	defer server.Close()

	c := NewClient(Config{URL: wsURL(server), WriteTimeout: time.Second, BufferSize: 8},
		staticTokens("c", "s"), nil)
	if err := c.Connect(context.Background(), "EURUSD"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	select {
	case err := <-c.Errors():
		if err == nil {
			t.Fatal("expected non-nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error received")
	}

	// readLoop exit marks the client disconnected.
	deadline := time.Now().Add(time.Second)
	for c.IsConnected() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after server close")
	}
}

// TestSendAfterClose verifies commands fail once closed.
func TestSendAfterClose(t *testing.T) {
	server := testServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage()
		conn.ReadMessage()
	})
	defer server.Close()

	c := NewClient(Config{URL: wsURL(server), WriteTimeout: time.Second, BufferSize: 8},
		staticTokens("c", "s"), nil)
	if err := c.Connect(context.Background(), "EURUSD"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	c.Close()

	if err := c.Ping(); err != ErrNotConnected {
		t.Errorf("Ping() after close = %v, want ErrNotConnected", err)
	}
	if err := c.Connect(context.Background(), "EURUSD"); err != ErrAlreadyClosed {
		t.Errorf("Connect() after close = %v, want ErrAlreadyClosed", err)
	}
}
