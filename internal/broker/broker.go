package broker

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/capbridge/capbridge/internal/config"
	"github.com/capbridge/capbridge/internal/exchange"
	"github.com/capbridge/capbridge/internal/ledger"
	"github.com/capbridge/capbridge/internal/model"
	"github.com/capbridge/capbridge/internal/queue"
)

const goodTillLayout = "2006-01-02T15:04:05"

// Workers is the ledger pool surface the facade drives.
type Workers interface {
	Create(ref string, req exchange.OrderRequest, market bool)
	Close(ref, notifyRef string, deals []exchange.AffectedDeal)
	CancelOrder(ref, dealID string, deals []exchange.AffectedDeal)
	Snapshot() model.AccountSnapshot
}

// Broker is the engine-facing order entry point. It validates intents,
// routes them to the right worker queue, and translates worker callbacks
// into ordered notifications.
//
// Per reference, notifications always arrive Submitted, then Accepted, then
// a terminal status. The notification queues are bounded drop-oldest so a
// stalled consumer can never block a worker.
type Broker struct {
	epic    string
	book    *ledger.Book
	workers Workers
	logger  *slog.Logger

	orders *queue.Queue[model.OrderNotification]
	trades *queue.Queue[model.TradeNotification]

	// Fill accounting for partial-vs-complete classification.
	fillMu    sync.Mutex
	requested map[string]float64
	filled    map[string]float64
}

var _ ledger.Notifier = (*Broker)(nil)

// New creates the facade over a ledger book and its worker pool.
func New(cfg config.BrokerConfig, epic string, book *ledger.Book, workers Workers, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Broker{
		epic:      epic,
		book:      book,
		workers:   workers,
		logger:    logger,
		orders:    queue.NewBounded[model.OrderNotification](cfg.NotificationBuffer),
		trades:    queue.NewBounded[model.TradeNotification](cfg.NotificationBuffer),
		requested: make(map[string]float64),
		filled:    make(map[string]float64),
	}
}

// Notifications returns the order notification queue.
func (b *Broker) Notifications() *queue.Queue[model.OrderNotification] {
	return b.orders
}

// Trades returns the closed-trade notification queue.
func (b *Broker) Trades() *queue.Queue[model.TradeNotification] {
	return b.trades
}

// Cash returns the account balance from the latest snapshot.
func (b *Broker) Cash() float64 {
	return b.workers.Snapshot().Cash
}

// Value returns the available account value from the latest snapshot.
func (b *Broker) Value() float64 {
	return b.workers.Snapshot().Available
}

// Submit routes an order intent. An intent whose trade id already holds a
// position closes that position; anything else opens a new order.
func (b *Broker) Submit(intent model.OrderIntent) error {
	if intent.TradeID == 0 {
		err := fmt.Errorf("order %s: trade id 0 is reserved", intent.Ref)
		b.reject(intent.Ref, err.Error())
		return err
	}
	if intent.Exec == model.ExecStopLimit {
		err := fmt.Errorf("order %s: stop-limit not supported by the venue", intent.Ref)
		b.reject(intent.Ref, err.Error())
		return err
	}

	if entry, ok := b.book.ByTrade(intent.TradeID); ok {
		return b.submitClose(intent, entry)
	}
	return b.submitOpen(intent)
}

// submitClose fans the close of an existing position out to the workers.
func (b *Broker) submitClose(intent model.OrderIntent, entry ledger.Entry) error {
	if len(entry.AffectedDeals) == 0 {
		err := fmt.Errorf("order %s: position %s has no remote deals yet", intent.Ref, entry.Ref)
		b.reject(intent.Ref, err.Error())
		return err
	}

	b.trackFills(intent.Ref, entry.Size)
	b.push(intent.Ref, model.NotifySubmitted, 0, 0, "")
	b.workers.Close(entry.Ref, intent.Ref, entry.AffectedDeals)

	b.logger.Debug("close submitted",
		"ref", intent.Ref,
		"trade_id", intent.TradeID,
		"deals", len(entry.AffectedDeals),
	)
	return nil
}

// submitOpen registers a new entry and enqueues the placement.
func (b *Broker) submitOpen(intent model.OrderIntent) error {
	req := b.buildRequest(intent)
	market := intent.Exec == model.ExecMarket

	b.trackFills(intent.Ref, intent.Size)
	b.book.Add(ledger.Entry{
		Ref:     intent.Ref,
		TradeID: intent.TradeID,
		Size:    intent.Size,
		Exec:    intent.Exec,
	})
	b.workers.Create(intent.Ref, req, market)

	b.logger.Debug("order submitted",
		"ref", intent.Ref,
		"trade_id", intent.TradeID,
		"exec", intent.Exec,
		"size", intent.Size,
	)
	return nil
}

// buildRequest translates an intent to the exchange order body.
func (b *Broker) buildRequest(intent model.OrderIntent) exchange.OrderRequest {
	req := exchange.OrderRequest{
		Epic:        b.epic,
		Size:        math.Abs(intent.Size),
		Direction:   string(intent.Side),
		StopLevel:   intent.StopLevel,
		ProfitLevel: intent.ProfitLevel,
	}
	if intent.Epic != "" {
		req.Epic = intent.Epic
	}

	switch intent.Exec {
	case model.ExecLimit:
		req.Type = "LIMIT"
		req.Level = intent.Price
	case model.ExecStop:
		req.Type = "STOP"
		req.Level = intent.Price
	case model.ExecTrail:
		req.TrailingStop = intent.TrailAmount
	}

	if !intent.ValidTo.IsZero() {
		req.GoodTillDate = intent.ValidTo.UTC().Format(goodTillLayout)
	}

	return req
}

// Cancel requests cancellation of a resting order. A reference that is
// unknown or has no remote deals yet is a no-op: nothing reached the venue,
// so there is nothing to acknowledge.
func (b *Broker) Cancel(ref string) error {
	entry, ok := b.book.Get(ref)
	if !ok {
		b.logger.Warn("cancel for unknown reference", "ref", ref)
		return nil
	}
	if len(entry.AffectedDeals) == 0 {
		b.logger.Warn("cancel before placement resolved", "ref", ref)
		return nil
	}

	b.push(ref, model.NotifyAccepted, 0, 0, "")
	b.workers.CancelOrder(ref, entry.DealID, entry.AffectedDeals)
	return nil
}

// -----------------------------------------------------------------------------
// ledger.Notifier implementation (worker callbacks)
// -----------------------------------------------------------------------------

// Submitted reports the placement reaching the venue.
func (b *Broker) Submitted(ref string) {
	b.push(ref, model.NotifySubmitted, 0, 0, "")
}

// Accepted reports the venue acknowledging the order.
func (b *Broker) Accepted(ref string) {
	b.push(ref, model.NotifyAccepted, 0, 0, "")
}

// Filled reports an execution. Cumulative fills below the requested size
// are partial.
func (b *Broker) Filled(ref string, size, price float64, reason string) {
	status := model.NotifyCompleted

	b.fillMu.Lock()
	if want, ok := b.requested[ref]; ok {
		b.filled[ref] += math.Abs(size)
		if b.filled[ref] < want {
			status = model.NotifyPartial
		} else {
			delete(b.requested, ref)
			delete(b.filled, ref)
		}
	}
	b.fillMu.Unlock()

	b.push(ref, status, price, size, reason)
}

// Canceled reports the order removed at the venue.
func (b *Broker) Canceled(ref string) {
	b.clearFills(ref)
	b.push(ref, model.NotifyCanceled, 0, 0, "")
}

// Rejected reports a terminal failure.
func (b *Broker) Rejected(ref string, reason string) {
	b.reject(ref, reason)
}

// ClosedTrade reports the realized result once a position fully closes.
func (b *Broker) ClosedTrade(ref string, pnl float64) {
	b.trades.Send(model.TradeNotification{
		Ref:    ref,
		Closed: true,
		PnL:    pnl,
		At:     time.Now().UTC(),
	})
}

// MarginCall reports the account crossing the close-out threshold; every
// open position gets a margin notification.
func (b *Broker) MarginCall(refs []string) {
	for _, ref := range refs {
		b.push(ref, model.NotifyMargin, 0, 0, "margin close-out level reached")
	}
}

func (b *Broker) reject(ref, reason string) {
	b.clearFills(ref)
	b.push(ref, model.NotifyRejected, 0, 0, reason)
}

func (b *Broker) trackFills(ref string, size float64) {
	b.fillMu.Lock()
	b.requested[ref] = math.Abs(size)
	b.filled[ref] = 0
	b.fillMu.Unlock()
}

func (b *Broker) clearFills(ref string) {
	b.fillMu.Lock()
	delete(b.requested, ref)
	delete(b.filled, ref)
	b.fillMu.Unlock()
}

func (b *Broker) push(ref string, status model.NotifyStatus, price, size float64, reason string) {
	b.orders.Send(model.OrderNotification{
		Ref:           ref,
		Status:        status,
		ExecutedPrice: price,
		ExecutedSize:  size,
		Reason:        reason,
		At:            time.Now().UTC(),
	})
}
