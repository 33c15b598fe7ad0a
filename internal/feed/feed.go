package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/capbridge/capbridge/internal/config"
	"github.com/capbridge/capbridge/internal/exchange"
	"github.com/capbridge/capbridge/internal/model"
	"github.com/capbridge/capbridge/internal/queue"
)

// state is the position of the feed in its lifecycle.
type state int

const (
	stateSeed state = iota // replaying the seed source
	stateStart             // deciding between backfill and live
	stateHistory           // draining a historical pager
	stateLive              // polling the tick queue
	stateOver              // terminal, no more bars
)

// Pager yields pages of historical candles.
type Pager interface {
	Next(ctx context.Context) (candles []model.Candle, done bool, err error)
}

// HistoryFunc builds a pager covering one backfill range.
type HistoryFunc func(resolution string, granSeconds int, from, to time.Time) Pager

// Connection is the quote transport surface the feed drives. A lost
// connection appears in the tick queue as a sentinel tick.
type Connection interface {
	Ticks() *queue.Queue[model.Tick]
	Connect(ctx context.Context) error
}

// InstrumentSource resolves the instrument before any data flows.
type InstrumentSource interface {
	GetMarketDetails(ctx context.Context, epic string) (exchange.MarketDetails, error)
}

// SeedSource replays an initial layer of bars from elsewhere, typically a
// file or a database. Depleted before any exchange backfill begins.
type SeedSource interface {
	Next() (model.Bar, bool)
}

// Feed turns historical candles and live quotes into one strictly
// monotonic bar sequence with in-band status events.
type Feed struct {
	cfg         config.FeedConfig
	res         Resolution
	conn        Connection
	history     HistoryFunc
	instruments InstrumentSource
	seed        SeedSource
	logger      *slog.Logger

	bars   chan model.Bar
	events chan model.FeedEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	state       state
	pager       Pager
	lastBarTime time.Time // last delivered bar timestamp
	lastTick    time.Time // last live tick timestamp, backfill anchor
	attempts    int       // remaining reconnection attempts
	delayedSent bool      // a DELAYED/CONNBROKEN was sent, LIVE pending
	instrument  exchange.MarketDetails
}

// Option configures a Feed.
type Option func(*Feed)

// WithSeedSource sets an initial bar source replayed before backfill.
func WithSeedSource(s SeedSource) Option {
	return func(f *Feed) {
		f.seed = s
	}
}

// New creates a Feed. Start validates the timeframe and instrument.
func New(cfg config.FeedConfig, conn Connection, history HistoryFunc, instruments InstrumentSource, logger *slog.Logger, opts ...Option) *Feed {
	if logger == nil {
		logger = slog.Default()
	}

	f := &Feed{
		cfg:         cfg,
		conn:        conn,
		history:     history,
		instruments: instruments,
		logger:      logger,
		bars:        make(chan model.Bar, 256),
		events:      make(chan model.FeedEvent, 16),
		state:       stateOver,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Bars returns the bar channel. Closed when the feed reaches its terminal
// state; every delivered timestamp is strictly greater than the previous.
func (f *Feed) Bars() <-chan model.Bar {
	return f.bars
}

// Events returns the feed status channel.
func (f *Feed) Events() <-chan model.FeedEvent {
	return f.events
}

// Instrument returns the resolved market details. Valid after Start.
func (f *Feed) Instrument() exchange.MarketDetails {
	return f.instrument
}

// Start validates the configuration against the venue and launches the
// state machine. An unsupported timeframe or unknown instrument emits the
// matching event, closes the bar channel and fails.
func (f *Feed) Start(ctx context.Context) error {
	f.ctx, f.cancel = context.WithCancel(ctx)

	res, err := Resolve(f.cfg.Timeframe)
	if err != nil {
		f.emit(model.FeedUnsupportedTF)
		close(f.bars)
		return err
	}
	f.res = res

	inst, err := f.instruments.GetMarketDetails(f.ctx, f.cfg.Epic)
	if err != nil {
		f.emit(model.FeedNotSubscribed)
		close(f.bars)
		return err
	}
	f.instrument = inst

	f.attempts = f.cfg.Reconnect.MaxAttempts
	if f.seed != nil {
		f.state = stateSeed
	} else {
		f.state = stateStart
	}

	f.wg.Add(1)
	go f.run()

	f.logger.Info("feed started",
		"epic", f.cfg.Epic,
		"resolution", f.res.Label,
		"historical", f.cfg.Historical,
	)

	return nil
}

// Stop terminates the feed.
func (f *Feed) Stop(ctx context.Context) error {
	if f.cancel != nil {
		f.cancel()
	}

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		f.logger.Info("feed stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run drives the state machine until terminal.
func (f *Feed) run() {
	defer f.wg.Done()
	defer close(f.bars)

	for {
		select {
		case <-f.ctx.Done():
			return
		default:
		}

		switch f.state {
		case stateSeed:
			f.drainSeed()
		case stateStart:
			f.start(true)
		case stateHistory:
			f.loadHistory()
		case stateLive:
			f.loadLive()
		case stateOver:
			return
		}
	}
}

// drainSeed replays the seed source to exhaustion.
func (f *Feed) drainSeed() {
	for {
		bar, ok := f.seed.Next()
		if !ok {
			f.state = stateStart
			return
		}
		if !f.deliver(bar) {
			return
		}
	}
}

// start decides the next phase. At startup (instart) the backfill anchor is
// the configured from date; on reconnect it is the last live tick.
func (f *Feed) start(instart bool) {
	if f.cfg.Historical {
		f.markDelayed(model.FeedDelayed)
		f.pager = f.history(f.res.Request, f.res.Seconds, f.cfg.From, f.cfg.To)
		f.state = stateHistory
		return
	}

	backfill := (instart && f.cfg.Backfill.OnStart) || (!instart && f.cfg.Backfill.OnReconnect)
	if backfill {
		f.markDelayed(model.FeedDelayed)

		from := f.cfg.From
		if !instart && !f.lastTick.IsZero() {
			from = f.lastTick
		}

		f.pager = f.history(f.res.Request, f.res.Seconds, from, time.Time{})
		f.state = stateHistory
		return
	}

	f.goLive()
}

// goLive opens (or reopens) the quote stream. A failed dial is converted
// into an in-band sentinel so the live loop runs the reconnect accounting.
func (f *Feed) goLive() {
	if err := f.conn.Connect(f.ctx); err != nil {
		f.logger.Warn("stream connect failed", "error", err)
		f.conn.Ticks().Send(model.SentinelTick())
	}
	f.state = stateLive
}

// loadHistory drains the current pager into the bar channel.
func (f *Feed) loadHistory() {
	for {
		select {
		case <-f.ctx.Done():
			return
		default:
		}

		candles, done, err := f.pager.Next(f.ctx)
		if err != nil {
			var apiErr *exchange.APIError
			if errors.As(err, &apiErr) && apiErr.IsPricesNotFound() {
				// Part of the range has no data. Keep paging.
				f.logger.Warn("no prices in window", "epic", f.cfg.Epic)
			} else {
				f.logger.Error("historical load failed", "error", err)
				f.emit(model.FeedDisconnected)
				f.state = stateOver
				return
			}
		}

		for _, candle := range candles {
			if !f.deliverCandle(candle) {
				return
			}
		}

		if done {
			break
		}
	}

	if f.cfg.Historical {
		f.emit(model.FeedDisconnected)
		f.state = stateOver
		return
	}

	f.goLive()
}

// loadLive polls the tick queue once with the qcheck bound.
func (f *Feed) loadLive() {
	tick, ok, timedOut := f.conn.Ticks().ReceiveTimeout(f.cfg.QCheck)
	if timedOut || !ok {
		return
	}

	if tick.Sentinel {
		f.markDelayed(model.FeedConnBroken)

		if !f.cfg.Reconnect.Enabled || f.attempts == 0 {
			f.emit(model.FeedDisconnected)
			f.state = stateOver
			return
		}
		if f.attempts > 0 {
			f.attempts--
		}

		select {
		case <-f.ctx.Done():
			return
		case <-time.After(f.cfg.Reconnect.CoolDown):
		}

		f.start(false)
		return
	}

	// Any real message restores the full reconnection budget.
	f.attempts = f.cfg.Reconnect.MaxAttempts

	f.lastTick = tick.Time
	if !tick.Time.After(f.lastBarTime) {
		return // time already seen
	}

	if !f.deliver(model.BarFromTick(tick, f.cfg.UseAsk)) {
		return
	}

	// Caught up once the queue is (nearly) empty.
	if f.delayedSent && f.conn.Ticks().Len() <= 1 {
		f.emit(model.FeedLive)
		f.delayedSent = false
	}
}

// deliverCandle fans a historical candle out into bars. Synthetic
// resolutions produce several identical children per candle.
func (f *Feed) deliverCandle(candle model.Candle) bool {
	if !f.res.Synthetic() {
		bar := candle.Bar(f.cfg.UseAsk)
		if !bar.Time.After(f.lastBarTime) {
			return true
		}
		return f.deliver(bar)
	}

	for s := 0; s < f.res.Seconds; s += f.res.Step {
		bar := candle.Bar(f.cfg.UseAsk)
		bar.Time = candle.Time.Add(time.Duration(s) * time.Second)
		if !bar.Time.After(f.lastBarTime) {
			continue
		}
		if !f.deliver(bar) {
			return false
		}
	}
	return true
}

// deliver pushes one bar, maintaining the monotonic watermark. Returns
// false when the feed is shutting down.
func (f *Feed) deliver(bar model.Bar) bool {
	select {
	case f.bars <- bar:
		f.lastBarTime = bar.Time
		return true
	case <-f.ctx.Done():
		return false
	}
}

// markDelayed emits the given event once per delayed phase.
func (f *Feed) markDelayed(ev model.FeedEvent) {
	if f.delayedSent {
		return
	}
	f.emit(ev)
	f.delayedSent = true
}

// emit sends a status event without ever blocking the data path.
func (f *Feed) emit(ev model.FeedEvent) {
	select {
	case f.events <- ev:
	default:
		f.logger.Warn("event buffer full, dropping feed event", "event", ev)
	}
}
