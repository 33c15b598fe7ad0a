package model

import (
	"testing"
	"time"
)

func TestBarFromTick(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := Tick{Epic: "GOLD", Time: ts, Bid: 2100.5, Ask: 2101.0}

	tests := []struct {
		name   string
		useAsk bool
		want   float64
	}{
		{"bid side", false, 2100.5},
		{"ask side", true, 2101.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := BarFromTick(tick, tt.useAsk)
			if bar.Open != tt.want || bar.High != tt.want || bar.Low != tt.want || bar.Close != tt.want {
				t.Errorf("BarFromTick OHLC = %v/%v/%v/%v, want all %v",
					bar.Open, bar.High, bar.Low, bar.Close, tt.want)
			}
			if bar.Volume != 0 || bar.OpenInterest != 0 {
				t.Errorf("live bar volume/oi = %v/%v, want 0/0", bar.Volume, bar.OpenInterest)
			}
			if !bar.Time.Equal(ts) {
				t.Errorf("bar time = %v, want %v", bar.Time, ts)
			}
		})
	}
}

func TestCandleBarSideSelection(t *testing.T) {
	c := Candle{
		Time:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		OpenBid: 1.0, OpenAsk: 1.1,
		HighBid: 2.0, HighAsk: 2.1,
		LowBid: 0.5, LowAsk: 0.6,
		CloseBid: 1.5, CloseAsk: 1.6,
		Volume: 42,
	}

	bid := c.Bar(false)
	if bid.Open != 1.0 || bid.High != 2.0 || bid.Low != 0.5 || bid.Close != 1.5 {
		t.Errorf("bid bar = %+v", bid)
	}

	ask := c.Bar(true)
	if ask.Open != 1.1 || ask.High != 2.1 || ask.Low != 0.6 || ask.Close != 1.6 {
		t.Errorf("ask bar = %+v", ask)
	}

	if bid.Volume != 42 || ask.Volume != 42 {
		t.Errorf("volume not carried: bid=%v ask=%v", bid.Volume, ask.Volume)
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	terminal := []OrderStatus{StatusClosed, StatusCanceled, StatusRejected}
	live := []OrderStatus{StatusCreated, StatusAccepted, StatusPosition}

	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
}
