package exchange

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/capbridge/capbridge/internal/model"
)

// GetCandles fetches one page of historical candles. The exchange caps max
// at 1000 records per call.
func (c *Client) GetCandles(ctx context.Context, epic, resolution string, from, to time.Time, max int) ([]model.Candle, error) {
	query := url.Values{}
	query.Set("resolution", resolution)
	query.Set("from", from.UTC().Format(snapshotTimeLayout))
	query.Set("to", to.UTC().Format(snapshotTimeLayout))
	query.Set("max", strconv.Itoa(max))

	var resp pricesResponse
	if err := c.get(ctx, "/api/v1/prices/"+epic, query, &resp); err != nil {
		return nil, err
	}

	candles := make([]model.Candle, 0, len(resp.Prices))
	for _, p := range resp.Prices {
		candle, err := p.toCandle()
		if err != nil {
			return nil, fmt.Errorf("convert candle: %w", err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// CandlesPager generates consecutive candle requests covering [from, to],
// each spanning at most pageSize bars of the given resolution. Consecutive
// windows abut so no record gap appears between pages.
type CandlesPager struct {
	client      *Client
	epic        string
	resolution  string
	granSeconds int
	pageSize    int

	cursor time.Time
	end    time.Time
	done   bool
}

// NewCandlesPager creates a pager. A zero "to" means "now".
func NewCandlesPager(client *Client, epic, resolution string, granSeconds, pageSize int, from, to time.Time) *CandlesPager {
	now := time.Now().UTC()
	if to.IsZero() || to.After(now) {
		to = now
	}
	return &CandlesPager{
		client:      client,
		epic:        epic,
		resolution:  resolution,
		granSeconds: granSeconds,
		pageSize:    pageSize,
		cursor:      from.UTC(),
		end:         to.UTC(),
	}
}

// Next fetches the next page. Done is true once the range is exhausted; the
// final call may return both candles and done. A *APIError carrying the
// prices-not-found code is returned without marking the pager done, so the
// caller can log the window and keep paging.
func (p *CandlesPager) Next(ctx context.Context) (candles []model.Candle, done bool, err error) {
	if p.done || !p.cursor.Before(p.end) {
		p.done = true
		return nil, true, nil
	}

	windowEnd := p.cursor.Add(time.Duration(p.pageSize*p.granSeconds) * time.Second)
	if windowEnd.After(p.end) {
		windowEnd = p.end
	}

	candles, err = p.client.GetCandles(ctx, p.epic, p.resolution, p.cursor, windowEnd, p.pageSize)

	// Advance past the window even on a not-found page: part of the range
	// may simply have no data (market closed, instrument listed late).
	p.cursor = windowEnd
	if !p.cursor.Before(p.end) {
		p.done = true
	}

	if err != nil {
		if apiErr, ok := err.(*APIError); ok && apiErr.IsPricesNotFound() {
			return nil, p.done, apiErr
		}
		return nil, true, err
	}
	return candles, p.done, nil
}
