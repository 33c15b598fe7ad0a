package exchange

import (
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Client provides access to the exchange REST API. One Client serves one
// credential set; session tokens are refreshed in place by Login.
type Client struct {
	baseURL    string
	apiKey     string
	identifier string
	password   string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration

	// Session tokens, replaced wholesale on (re-)login.
	tokenMu       sync.RWMutex
	cst           string
	securityToken string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client. Login must be called before any
// authenticated endpoint.
func NewClient(baseURL, apiKey, identifier, password string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		identifier: identifier,
		password:   password,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Tokens returns the current session tokens for the streaming transport.
func (c *Client) Tokens() (cst, securityToken string) {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.cst, c.securityToken
}

func (c *Client) setTokens(cst, securityToken string) {
	c.tokenMu.Lock()
	c.cst = cst
	c.securityToken = securityToken
	c.tokenMu.Unlock()
}
