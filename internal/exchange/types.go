package exchange

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/capbridge/capbridge/internal/model"
)

// snapshotTimeLayout is the exchange's RFC3339-without-zone timestamp format.
const snapshotTimeLayout = "2006-01-02T15:04:05"

// APIError represents an error response from the exchange REST API.
type APIError struct {
	StatusCode int
	Code       string // e.g. "error.prices.not-found"
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("exchange api error %d: %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("exchange api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// IsPricesNotFound reports the partial "no data in this window" condition.
// Historical paging tolerates it mid-range without aborting the sequence.
func (e *APIError) IsPricesNotFound() bool {
	return strings.Contains(e.Code, "prices.not-found")
}

// priceQuote is a bid/ask pair as serialized in candle payloads.
type priceQuote struct {
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
}

// candlePayload is one record of a /prices response.
type candlePayload struct {
	SnapshotTimeUTC  string     `json:"snapshotTimeUTC"`
	OpenPrice        priceQuote `json:"openPrice"`
	HighPrice        priceQuote `json:"highPrice"`
	LowPrice         priceQuote `json:"lowPrice"`
	ClosePrice       priceQuote `json:"closePrice"`
	LastTradedVolume float64    `json:"lastTradedVolume"`
}

func (p candlePayload) toCandle() (model.Candle, error) {
	ts, err := time.Parse(snapshotTimeLayout, p.SnapshotTimeUTC)
	if err != nil {
		return model.Candle{}, fmt.Errorf("parse snapshot time %q: %w", p.SnapshotTimeUTC, err)
	}
	return model.Candle{
		Time:     ts.UTC(),
		OpenBid:  p.OpenPrice.Bid,
		OpenAsk:  p.OpenPrice.Ask,
		HighBid:  p.HighPrice.Bid,
		HighAsk:  p.HighPrice.Ask,
		LowBid:   p.LowPrice.Bid,
		LowAsk:   p.LowPrice.Ask,
		CloseBid: p.ClosePrice.Bid,
		CloseAsk: p.ClosePrice.Ask,
		Volume:   p.LastTradedVolume,
	}, nil
}

type pricesResponse struct {
	Prices []candlePayload `json:"prices"`
}

// MarketDetails describes an instrument as returned by the market lookup.
type MarketDetails struct {
	Epic        string  `json:"epic"`
	Name        string  `json:"name"`
	LotSize     float64 `json:"lotSize"`
	MinDealSize float64 `json:"minDealSize"`
	Currency    string  `json:"currency"`
}

type marketDetailsEnvelope struct {
	Instrument MarketDetails `json:"instrument"`
}

type marketDetailsResponse struct {
	MarketDetails []marketDetailsEnvelope `json:"marketDetails"`
}

// DealReference is the handle returned by order/position placement,
// resolved to a deal id through the confirmation endpoint.
type DealReference struct {
	Reference string `json:"dealReference"`
}

// AffectedDeal is a remote deal impacted by an operation. A single logical
// position may be realized as several remote deals.
type AffectedDeal struct {
	DealID string `json:"dealId"`
	Status string `json:"status"`
}

// Confirmation is the result of a deal-confirmation lookup.
type Confirmation struct {
	DealID        string         `json:"dealId"`
	DealReference string         `json:"dealReference"`
	Status        string         `json:"status"` // "OPEN", "CLOSED", "DELETED", ...
	Direction     string         `json:"direction"`
	Size          float64        `json:"size"`
	Level         float64        `json:"level"`
	ProfitLoss    float64        `json:"profit"`
	AffectedDeals []AffectedDeal `json:"affectedDeals"`
}

// SignedSize returns the confirmation size signed by direction.
func (c Confirmation) SignedSize() float64 {
	if c.Direction == "SELL" {
		return -c.Size
	}
	return c.Size
}

// Position is one open remote position.
type Position struct {
	DealID         string  `json:"dealId"`
	DealReference  string  `json:"dealReference"`
	WorkingOrderID string  `json:"workingOrderId"`
	Size           float64 `json:"size"`
	Direction      string  `json:"direction"`
	Level          float64 `json:"level"`
	UPL            float64 `json:"upl"`
}

type positionEnvelope struct {
	Position Position `json:"position"`
}

type positionsResponse struct {
	Positions []positionEnvelope `json:"positions"`
}

// AccountBalance is the balance block of an account record.
type AccountBalance struct {
	Balance   float64 `json:"balance"`
	Deposit   float64 `json:"deposit"`
	PnL       float64 `json:"profitLoss"`
	Available float64 `json:"available"`
}

// Account is one account on the credential set.
type Account struct {
	AccountID   string         `json:"accountId"`
	AccountName string         `json:"accountName"`
	Currency    string         `json:"currency"`
	Balance     AccountBalance `json:"balance"`
}

type accountsResponse struct {
	Accounts []Account `json:"accounts"`
}

// OrderRequest is the body of a working-order or position-open placement.
type OrderRequest struct {
	Epic         string  `json:"epic"`
	Direction    string  `json:"direction"`
	Size         float64 `json:"size"`
	Level        float64 `json:"level,omitempty"`        // resting orders only
	Type         string  `json:"type,omitempty"`         // "LIMIT" or "STOP"
	GoodTillDate string  `json:"goodTillDate,omitempty"` // RFC3339 w/o zone
	StopLevel    float64 `json:"stopLevel,omitempty"`
	ProfitLevel  float64 `json:"profitLevel,omitempty"`
	TrailingStop float64 `json:"trailingStop,omitempty"`
}

// pingResponse is the body of the keepalive ping.
type pingResponse struct {
	Status string `json:"status"`
}

type errorBody struct {
	ErrorCode string `json:"errorCode"`
}

// parseErrorCode extracts the exchange error code from a response body.
func parseErrorCode(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	return eb.ErrorCode
}
