package model

import "time"

// -----------------------------------------------------------------------------
// Market Data Types
// -----------------------------------------------------------------------------

// Tick is a single streamed quote for an instrument.
type Tick struct {
	Epic       string    // Instrument identifier
	Time       time.Time // Exchange timestamp (UTC)
	Bid        float64   // Best bid
	Ask        float64   // Best offer ("ofr" on the wire)
	ReceivedAt time.Time // Local receive timestamp
	Sentinel   bool      // true = connection-loss marker, not a quote
}

// SentinelTick returns the connection-loss marker pushed onto a tick queue.
func SentinelTick() Tick {
	return Tick{Sentinel: true}
}

// Bar is one OHLCV data point delivered to the engine. For a given feed,
// delivered bar timestamps are strictly increasing.
type Bar struct {
	Time         time.Time // Bar timestamp (UTC)
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       float64
	OpenInterest float64
}

// BarFromTick builds a flat bar from a live quote. Live ticks carry no volume
// or open interest; all four prices collapse onto the selected side.
func BarFromTick(t Tick, useAsk bool) Bar {
	price := t.Bid
	if useAsk {
		price = t.Ask
	}
	return Bar{
		Time:  t.Time,
		Open:  price,
		High:  price,
		Low:   price,
		Close: price,
	}
}

// Candle is a historical data point as returned by the exchange, carrying
// bid and ask prices for each OHLC component.
type Candle struct {
	Time      time.Time // snapshotTimeUTC
	OpenBid   float64
	OpenAsk   float64
	HighBid   float64
	HighAsk   float64
	LowBid    float64
	LowAsk    float64
	CloseBid  float64
	CloseAsk  float64
	Volume    float64   // lastTradedVolume
	Sentinel  bool      // true = transport failure marker
	EndOfData bool      // true = end-of-transmission marker
}

// Bar converts the candle to an engine bar using the configured side.
func (c Candle) Bar(useAsk bool) Bar {
	if useAsk {
		return Bar{
			Time:   c.Time,
			Open:   c.OpenAsk,
			High:   c.HighAsk,
			Low:    c.LowAsk,
			Close:  c.CloseAsk,
			Volume: c.Volume,
		}
	}
	return Bar{
		Time:   c.Time,
		Open:   c.OpenBid,
		High:   c.HighBid,
		Low:    c.LowBid,
		Close:  c.CloseBid,
		Volume: c.Volume,
	}
}

// -----------------------------------------------------------------------------
// Order Types
// -----------------------------------------------------------------------------

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// ExecType is the execution type of an order intent.
type ExecType string

const (
	ExecMarket    ExecType = "MARKET"
	ExecLimit     ExecType = "LIMIT"
	ExecStop      ExecType = "STOP"
	ExecStopLimit ExecType = "STOP_LIMIT" // not supported by the exchange
	ExecTrail     ExecType = "TRAILING_STOP"
)

// OrderIntent is a local order request submitted by the engine. Immutable
// once submitted.
type OrderIntent struct {
	Ref         string    // Local reference, caller-assigned, opaque
	TradeID     int       // Correlation key pairing an opening intent with its close
	Epic        string    // Instrument identifier
	Size        float64   // Requested size (signed: negative = sell)
	Side        Side      // Direction
	Exec        ExecType  // Execution type
	Price       float64   // Level for resting orders
	ValidTo     time.Time // Good-till-date, zero = none
	StopLevel   float64   // Optional stop level, 0 = none
	ProfitLevel float64   // Optional profit level, 0 = none
	TrailAmount float64   // Trailing distance for ExecTrail
}

// IsBuy reports the direction of the intent.
func (o OrderIntent) IsBuy() bool { return o.Side == Buy }

// OrderStatus is the ledger-side lifecycle state of an order.
type OrderStatus string

const (
	StatusCreated  OrderStatus = "Created"
	StatusAccepted OrderStatus = "Accepted"
	StatusPosition OrderStatus = "Position"
	StatusClosed   OrderStatus = "Closed"
	StatusCanceled OrderStatus = "Canceled"
	StatusRejected OrderStatus = "Rejected"
)

// Terminal reports whether the status is absorbing. A ledger entry is only
// removed after a terminal state has remote confirmation.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusClosed, StatusCanceled, StatusRejected:
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// Engine Notifications
// -----------------------------------------------------------------------------

// NotifyStatus is the engine-facing order notification vocabulary.
type NotifyStatus string

const (
	NotifySubmitted NotifyStatus = "Submitted"
	NotifyAccepted  NotifyStatus = "Accepted"
	NotifyPartial   NotifyStatus = "Partial"
	NotifyCompleted NotifyStatus = "Completed"
	NotifyCanceled  NotifyStatus = "Canceled"
	NotifyExpired   NotifyStatus = "Expired"
	NotifyMargin    NotifyStatus = "Margin"
	NotifyRejected  NotifyStatus = "Rejected"
)

// OrderNotification reports an order lifecycle transition to the engine.
// For a given Ref, notifications arrive Submitted -> Accepted -> terminal.
type OrderNotification struct {
	Ref           string
	Status        NotifyStatus
	ExecutedPrice float64
	ExecutedSize  float64
	Reason        string
	At            time.Time
}

// TradeNotification reports a closed trade with its realized result.
type TradeNotification struct {
	Ref    string
	Closed bool
	PnL    float64
	At     time.Time
}

// FeedEvent is a feed status notification toward the engine.
type FeedEvent string

const (
	FeedDelayed          FeedEvent = "DELAYED"
	FeedLive             FeedEvent = "LIVE"
	FeedConnBroken       FeedEvent = "CONNBROKEN"
	FeedDisconnected     FeedEvent = "DISCONNECTED"
	FeedNotSubscribed    FeedEvent = "NOTSUBSCRIBED"
	FeedUnsupportedTF    FeedEvent = "NOTSUPPORTED_TF"
)

// -----------------------------------------------------------------------------
// Account Types
// -----------------------------------------------------------------------------

// AccountSnapshot is the periodically refreshed account state. Readers
// tolerate momentarily stale values.
type AccountSnapshot struct {
	Cash      float64 // balance.balance
	Available float64 // balance.available
	UpdatedAt time.Time
}
