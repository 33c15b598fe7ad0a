package exchange

import (
	"context"
	"fmt"
)

// OpenPosition places a market order through the position endpoint and
// returns the deal reference for confirmation lookup.
func (c *Client) OpenPosition(ctx context.Context, req OrderRequest) (string, error) {
	var ref DealReference
	if err := c.post(ctx, "/api/v1/positions", req, &ref); err != nil {
		return "", fmt.Errorf("open position: %w", err)
	}
	return ref.Reference, nil
}

// ClosePosition closes the remote deal with the given id.
func (c *Client) ClosePosition(ctx context.Context, dealID string) (string, error) {
	var ref DealReference
	if err := c.del(ctx, "/api/v1/positions/"+dealID, &ref); err != nil {
		return "", fmt.Errorf("close position %s: %w", dealID, err)
	}
	return ref.Reference, nil
}

// PlaceWorkingOrder places a resting (limit/stop) order.
func (c *Client) PlaceWorkingOrder(ctx context.Context, req OrderRequest) (string, error) {
	var ref DealReference
	if err := c.post(ctx, "/api/v1/workingorders", req, &ref); err != nil {
		return "", fmt.Errorf("place working order: %w", err)
	}
	return ref.Reference, nil
}

// CancelWorkingOrder cancels the resting order with the given deal id.
func (c *Client) CancelWorkingOrder(ctx context.Context, dealID string) error {
	if err := c.del(ctx, "/api/v1/workingorders/"+dealID, nil); err != nil {
		return fmt.Errorf("cancel working order %s: %w", dealID, err)
	}
	return nil
}

// GetConfirmation resolves a deal reference to its confirmation record,
// yielding the deal id and the set of affected deals.
func (c *Client) GetConfirmation(ctx context.Context, dealReference string) (Confirmation, error) {
	var conf Confirmation
	if err := c.get(ctx, "/api/v1/confirms/"+dealReference, nil, &conf); err != nil {
		return Confirmation{}, fmt.Errorf("confirmation %s: %w", dealReference, err)
	}
	return conf, nil
}

// GetPositions lists all open positions on the active account.
func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	var resp positionsResponse
	if err := c.get(ctx, "/api/v1/positions", nil, &resp); err != nil {
		return nil, err
	}

	positions := make([]Position, 0, len(resp.Positions))
	for _, env := range resp.Positions {
		positions = append(positions, env.Position)
	}
	return positions, nil
}

// GetAccounts lists all accounts on the credential set.
func (c *Client) GetAccounts(ctx context.Context) ([]Account, error) {
	var resp accountsResponse
	if err := c.get(ctx, "/api/v1/accounts", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}
