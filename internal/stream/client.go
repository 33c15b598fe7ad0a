package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/capbridge/capbridge/internal/model"
)

// TokenSource yields the current session tokens. The REST client owns the
// session; the stream borrows whatever tokens are valid right now, so a
// rebuilt session is picked up on the next command without reconnecting.
type TokenSource func() (cst, securityToken string)

// Config configures a stream client.
type Config struct {
	URL          string
	WriteTimeout time.Duration
	BufferSize   int // quote channel capacity
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 5 * time.Second,
		BufferSize:   1024,
	}
}

// Client is a single WebSocket connection to the quote stream.
type Client interface {
	// Connect dials the stream and subscribes to the given epics.
	Connect(ctx context.Context, epics ...string) error

	// Close gracefully closes the connection.
	Close() error

	// Ping sends the application-level keepalive command. The server kills
	// quiet connections, so this must run on a schedule while connected.
	Ping() error

	// Quotes returns the channel of decoded ticks.
	Quotes() <-chan model.Tick

	// Errors returns a channel of connection errors. One error at most is
	// delivered per connection; the owner reconnects or gives up.
	Errors() <-chan error

	// IsConnected returns current connection state.
	IsConnected() bool
}

type client struct {
	cfg    Config
	tokens TokenSource
	logger *slog.Logger

	conn *websocket.Conn

	quotes chan model.Tick
	errors chan error
	done   chan struct{}

	writeMu sync.Mutex

	mu        sync.RWMutex
	connected bool
	closed    bool
}

// NewClient creates a stream client. Connect must be called before use.
func NewClient(cfg Config, tokens TokenSource, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &client{
		cfg:    cfg,
		tokens: tokens,
		logger: logger,
		quotes: make(chan model.Tick, cfg.BufferSize),
		errors: make(chan error, 1),
		done:   make(chan struct{}),
	}
}

// Connect dials the stream and sends the subscribe command.
func (c *client) Connect(ctx context.Context, epics ...string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readLoop()

	if err := c.send("marketData.subscribe", subscribePayload{Epics: epics}); err != nil {
		c.Close()
		return err
	}

	c.logger.Debug("stream connected", "url", c.cfg.URL, "epics", epics)
	return nil
}

// Close gracefully closes the connection. The quote channel stays open so
// buffered ticks drain; consumers detect loss through Errors.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	c.mu.Unlock()

	close(c.done)

	if c.conn != nil {
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return c.conn.Close()
	}

	return nil
}

// Ping sends the application-level keepalive.
func (c *client) Ping() error {
	return c.send("ping", nil)
}

func (c *client) Quotes() <-chan model.Tick {
	return c.quotes
}

func (c *client) Errors() <-chan error {
	return c.errors
}

func (c *client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// send serializes one command. Every command carries the current session
// tokens and a fresh correlation id.
func (c *client) send(destination string, payload any) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	c.mu.RUnlock()

	cst, token := c.tokens()
	req := request{
		Destination:   destination,
		CorrelationID: uuid.NewString(),
		CST:           cst,
		SecurityToken: token,
		Payload:       payload,
	}

	data, err := json.Marshal(req)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads server messages and routes quotes to the quote channel.
func (c *client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now().UTC()

		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-c.done:
				return
			default:
				select {
				case c.errors <- err:
				default:
				}
				return
			}
		}

		c.handleMessage(data, receivedAt)
	}
}

func (c *client) handleMessage(data []byte, receivedAt time.Time) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("undecodable stream message", "error", err)
		return
	}

	if msg.Status != "OK" {
		c.logger.Warn("stream message with non-OK status",
			"status", msg.Status,
			"destination", msg.Destination,
		)
		return
	}

	switch msg.Destination {
	case "quote":
		var q quotePayload
		if err := json.Unmarshal(msg.Payload, &q); err != nil {
			c.logger.Warn("undecodable quote payload", "error", err)
			return
		}

		tick := model.Tick{
			Epic:       q.Epic,
			Time:       time.UnixMilli(q.Timestamp).UTC(),
			Bid:        q.Bid,
			Ask:        q.Ofr,
			ReceivedAt: receivedAt,
		}

		select {
		case c.quotes <- tick:
		case <-c.done:
		default:
			c.logger.Warn("quote buffer full, dropping tick", "epic", q.Epic)
		}

	case "marketData.subscribe":
		var sub subscriptionsPayload
		if err := json.Unmarshal(msg.Payload, &sub); err != nil {
			c.logger.Warn("undecodable subscribe ack", "error", err)
			return
		}
		c.logger.Info("stream subscribed", "subscriptions", sub.Subscriptions)

	case "ping":
		c.logger.Debug("stream keepalive acknowledged")

	default:
		c.logger.Warn("unexpected stream message", "destination", msg.Destination)
	}
}
