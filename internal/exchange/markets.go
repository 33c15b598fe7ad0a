package exchange

import (
	"context"
	"fmt"
	"net/url"
)

// GetMarketDetails looks up instrument details for an epic.
func (c *Client) GetMarketDetails(ctx context.Context, epic string) (MarketDetails, error) {
	query := url.Values{}
	query.Set("epics", epic)

	var resp marketDetailsResponse
	if err := c.get(ctx, "/api/v1/markets", query, &resp); err != nil {
		return MarketDetails{}, err
	}
	if len(resp.MarketDetails) == 0 {
		return MarketDetails{}, fmt.Errorf("no market details for epic %q", epic)
	}
	return resp.MarketDetails[0].Instrument, nil
}
