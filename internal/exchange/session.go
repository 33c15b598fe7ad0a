package exchange

import (
	"context"
	"fmt"
	"net/http"
)

type sessionRequest struct {
	Identifier        string `json:"identifier"`
	Password          string `json:"password"`
	EncryptedPassword bool   `json:"encryptedPassword"`
}

type switchAccountRequest struct {
	AccountID string `json:"accountId"`
}

// Login creates a new session and stores the returned tokens. Safe to call
// again to rebuild a dead session; streaming consumers pick up the fresh
// tokens via Tokens.
func (c *Client) Login(ctx context.Context) error {
	payload := sessionRequest{
		Identifier: c.identifier,
		Password:   c.password,
	}

	_, header, err := c.doRequest(ctx, http.MethodPost, "/api/v1/session", nil, payload)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	cst := header.Get("CST")
	token := header.Get("X-SECURITY-TOKEN")
	if cst == "" || token == "" {
		return fmt.Errorf("create session: missing session tokens in response")
	}

	c.setTokens(cst, token)
	c.logger.Debug("session created")
	return nil
}

// SwitchAccount selects the sub-account all further calls operate on.
func (c *Client) SwitchAccount(ctx context.Context, accountID string) error {
	if accountID == "" {
		return nil
	}
	payload := switchAccountRequest{AccountID: accountID}
	if _, _, err := c.doRequest(ctx, http.MethodPut, "/api/v1/session", nil, payload); err != nil {
		return fmt.Errorf("switch account: %w", err)
	}
	return nil
}

// Ping performs the lightweight keepalive call. The session dies server-side
// without periodic pings.
func (c *Client) Ping(ctx context.Context) error {
	var resp pingResponse
	if err := c.get(ctx, "/api/v1/ping", nil, &resp); err != nil {
		return err
	}
	if resp.Status != "OK" {
		return fmt.Errorf("ping status %q", resp.Status)
	}
	return nil
}

// Logout destroys the current session.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.del(ctx, "/api/v1/session", nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	c.setTokens("", "")
	return nil
}
