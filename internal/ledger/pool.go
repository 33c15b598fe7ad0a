package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/capbridge/capbridge/internal/config"
	"github.com/capbridge/capbridge/internal/exchange"
	"github.com/capbridge/capbridge/internal/model"
	"github.com/capbridge/capbridge/internal/queue"
)

// Trader is the exchange surface the workers drive.
type Trader interface {
	OpenPosition(ctx context.Context, req exchange.OrderRequest) (string, error)
	PlaceWorkingOrder(ctx context.Context, req exchange.OrderRequest) (string, error)
	ClosePosition(ctx context.Context, dealID string) (string, error)
	CancelWorkingOrder(ctx context.Context, dealID string) error
	GetConfirmation(ctx context.Context, dealReference string) (exchange.Confirmation, error)
	GetPositions(ctx context.Context) ([]exchange.Position, error)
	GetAccounts(ctx context.Context) ([]exchange.Account, error)
}

// Notifier receives order lifecycle callbacks from the workers.
type Notifier interface {
	Submitted(ref string)
	Accepted(ref string)
	Filled(ref string, size, price float64, reason string)
	Canceled(ref string)
	Rejected(ref string, reason string)
	ClosedTrade(ref string, pnl float64)
	MarginCall(refs []string)
}

// Messages carried by the worker queues.

type createMsg struct {
	Ref    string
	Req    exchange.OrderRequest
	Market bool
}

type closeMsg struct {
	Ref            string // book entry holding the position
	NotifyRef      string // closing order's local reference
	AffectedDealID string
}

type cancelMsg struct {
	Ref            string
	DealID         string
	AffectedDealID string
}

type accountMsg struct{} // forced refresh

// Pool runs one worker goroutine per concern: order creation, position
// close, working-order cancel, order monitoring and account refresh. Each
// worker owns its queue; closing the queue stops the worker after a drain.
type Pool struct {
	brokerCfg  config.BrokerConfig
	accountCfg config.AccountConfig
	accountID  string

	trader Trader
	book   *Book
	notify Notifier
	logger *slog.Logger

	createQ  *queue.Queue[createMsg]
	closeQ   *queue.Queue[closeMsg]
	cancelQ  *queue.Queue[cancelMsg]
	accountQ *queue.Queue[accountMsg]

	acctMu    sync.RWMutex
	cash      float64
	value     float64
	updatedAt time.Time
	inMCO     bool

	acctReady chan struct{}
	readyOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates the worker pool around a ledger book.
func NewPool(brokerCfg config.BrokerConfig, accountCfg config.AccountConfig, accountID string,
	trader Trader, book *Book, notify Notifier, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}

	return &Pool{
		brokerCfg:  brokerCfg,
		accountCfg: accountCfg,
		accountID:  accountID,
		trader:     trader,
		book:       book,
		notify:     notify,
		logger:     logger,
		createQ:    queue.New[createMsg](16),
		closeQ:     queue.New[closeMsg](16),
		cancelQ:    queue.New[cancelMsg](16),
		accountQ:   queue.New[accountMsg](4),
		acctReady:  make(chan struct{}),
	}
}

// SetNotifier installs the callback target. The facade and the pool
// reference each other, so one side has to be attached after construction.
// Must be called before Start.
func (p *Pool) SetNotifier(notify Notifier) {
	p.notify = notify
}

// Start launches the workers and forces an immediate account refresh.
func (p *Pool) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(5)
	go p.createWorker()
	go p.closeWorker()
	go p.cancelWorker()
	go p.monitorWorker()
	go p.accountWorker()

	p.accountQ.Send(accountMsg{})

	p.logger.Info("order workers started",
		"monitor_idle", p.brokerCfg.MonitorIdle,
		"monitor_active", p.brokerCfg.MonitorActive,
		"account_refresh", p.accountCfg.RefreshInterval,
	)

	return nil
}

// Stop closes the queues and waits for the workers to drain.
func (p *Pool) Stop(ctx context.Context) error {
	p.createQ.Close()
	p.closeQ.Close()
	p.cancelQ.Close()
	p.accountQ.Close()
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("order workers stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AwaitAccount blocks until the first account snapshot has landed.
func (p *Pool) AwaitAccount(ctx context.Context) error {
	select {
	case <-p.acctReady:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the latest account values.
func (p *Pool) Snapshot() model.AccountSnapshot {
	p.acctMu.RLock()
	defer p.acctMu.RUnlock()
	return model.AccountSnapshot{Cash: p.cash, Available: p.value, UpdatedAt: p.updatedAt}
}

// RefreshAccount forces an out-of-cycle account update.
func (p *Pool) RefreshAccount() {
	p.accountQ.Send(accountMsg{})
}

// Create enqueues a placement for an entry already added to the book.
func (p *Pool) Create(ref string, req exchange.OrderRequest, market bool) {
	p.createQ.Send(createMsg{Ref: ref, Req: req, Market: market})
}

// Close fans a position close out across its remote deals. The book entry
// is removed only after every deal confirms closed; notifications go to the
// closing order's reference, which may differ from the entry's.
func (p *Pool) Close(ref, notifyRef string, deals []exchange.AffectedDeal) {
	p.book.BeginClose(ref, len(deals))
	for _, deal := range deals {
		p.closeQ.Send(closeMsg{Ref: ref, NotifyRef: notifyRef, AffectedDealID: deal.DealID})
	}
}

// CancelOrder enqueues cancellation of a resting order's remote deals.
func (p *Pool) CancelOrder(ref, dealID string, deals []exchange.AffectedDeal) {
	for _, deal := range deals {
		p.cancelQ.Send(cancelMsg{Ref: ref, DealID: dealID, AffectedDealID: deal.DealID})
	}
}

// createWorker places orders and resolves their confirmations. Placement
// never retries: any failure rejects the local reference.
func (p *Pool) createWorker() {
	defer p.wg.Done()

	for {
		msg, ok := p.createQ.Receive()
		if !ok {
			return
		}

		var (
			ref string
			err error
		)
		if msg.Market {
			ref, err = p.trader.OpenPosition(p.ctx, msg.Req)
		} else {
			ref, err = p.trader.PlaceWorkingOrder(p.ctx, msg.Req)
		}
		if err != nil {
			p.logger.Warn("placement failed", "ref", msg.Ref, "error", err)
			p.book.Remove(msg.Ref)
			p.notify.Rejected(msg.Ref, err.Error())
			continue
		}

		conf, err := p.trader.GetConfirmation(p.ctx, ref)
		if err != nil {
			p.logger.Warn("confirmation failed", "ref", msg.Ref, "error", err)
			p.book.Remove(msg.Ref)
			p.notify.Rejected(msg.Ref, err.Error())
			continue
		}

		p.book.SetDeal(msg.Ref, conf.DealID, conf.DealReference, conf.AffectedDeals)
		p.notify.Submitted(msg.Ref)
		p.notify.Accepted(msg.Ref)

		if msg.Market {
			p.book.SetStatus(msg.Ref, model.StatusPosition)
			if conf.Status == "OPEN" {
				p.notify.Filled(msg.Ref, conf.SignedSize(), conf.Level, "ORDER_FILLED")
			}
		} else {
			p.book.SetStatus(msg.Ref, model.StatusAccepted)
			p.book.SetMonitor(msg.Ref, true)
		}
	}
}

// closeWorker closes one remote deal per message.
func (p *Pool) closeWorker() {
	defer p.wg.Done()

	for {
		msg, ok := p.closeQ.Receive()
		if !ok {
			return
		}

		ref, err := p.trader.ClosePosition(p.ctx, msg.AffectedDealID)
		if err != nil {
			p.logger.Warn("close failed", "ref", msg.NotifyRef, "deal", msg.AffectedDealID, "error", err)
			p.book.Remove(msg.Ref)
			p.notify.Rejected(msg.NotifyRef, err.Error())
			continue
		}

		conf, err := p.trader.GetConfirmation(p.ctx, ref)
		if err != nil {
			p.logger.Warn("close confirmation failed", "ref", msg.NotifyRef, "error", err)
			p.book.Remove(msg.Ref)
			p.notify.Rejected(msg.NotifyRef, err.Error())
			continue
		}

		if conf.Status != "CLOSED" {
			p.logger.Warn("close not confirmed", "ref", msg.NotifyRef, "status", conf.Status)
			continue
		}

		removed, first := p.book.FinishCloseDeal(msg.Ref)
		if first {
			p.notify.Accepted(msg.NotifyRef)
		}
		p.notify.Filled(msg.NotifyRef, conf.SignedSize(), conf.Level, "ORDER_FILLED")
		if removed {
			p.logger.Debug("position fully closed", "ref", msg.Ref)
			p.notify.ClosedTrade(msg.NotifyRef, conf.ProfitLoss)
		}
	}
}

// cancelWorker deletes resting orders.
func (p *Pool) cancelWorker() {
	defer p.wg.Done()

	for {
		msg, ok := p.cancelQ.Receive()
		if !ok {
			return
		}

		if err := p.trader.CancelWorkingOrder(p.ctx, msg.AffectedDealID); err != nil {
			p.logger.Warn("cancel failed", "ref", msg.Ref, "deal", msg.AffectedDealID, "error", err)
			p.notify.Rejected(msg.Ref, err.Error())
			continue
		}

		p.book.RemoveByDealID(msg.DealID)
		p.notify.Canceled(msg.Ref)
	}
}

// monitorWorker watches resting orders and monitored positions. Idle cadence
// applies while nothing is flagged; it tightens once a resting order is live.
func (p *Pool) monitorWorker() {
	defer p.wg.Done()

	for {
		interval := p.brokerCfg.MonitorIdle
		if p.book.AnyMonitored() {
			p.sweepOrders()
			p.sweepPositions()
			interval = p.brokerCfg.MonitorActive
		}

		select {
		case <-p.ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// sweepOrders promotes filled resting orders to positions.
func (p *Pool) sweepOrders() {
	accepted := p.book.Monitored(model.StatusAccepted)
	if len(accepted) == 0 {
		return
	}

	positions, err := p.trader.GetPositions(p.ctx)
	if err != nil {
		p.logger.Warn("position sweep failed", "error", err)
		return
	}

	for _, entry := range accepted {
		for _, pos := range positions {
			if pos.WorkingOrderID != entry.DealID {
				continue
			}
			p.book.PromoteWorkingOrder(entry.Ref, pos.DealID, pos.DealReference)
			p.notify.Filled(entry.Ref, entry.Size, pos.Level, "ORDER_FILLED")
			break
		}
	}
}

// sweepPositions detects monitored positions closed remotely by their stop
// or profit level.
func (p *Pool) sweepPositions() {
	for _, entry := range p.book.Monitored(model.StatusPosition) {
		conf, err := p.trader.GetConfirmation(p.ctx, entry.DealReference)
		if err != nil {
			p.logger.Warn("position confirmation failed", "ref", entry.Ref, "error", err)
			continue
		}
		if conf.Status != "CLOSED" {
			continue
		}

		p.book.Remove(entry.Ref)
		p.notify.Filled(entry.Ref, conf.SignedSize(), conf.Level, "POSITION_CLOSED")
		p.notify.ClosedTrade(entry.Ref, conf.ProfitLoss)
	}
}

// accountWorker refreshes cash and available value on a cadence, or sooner
// when a refresh is forced.
func (p *Pool) accountWorker() {
	defer p.wg.Done()

	for {
		_, ok, timedOut := p.accountQ.ReceiveTimeout(p.accountCfg.RefreshInterval)
		if !ok && !timedOut {
			return // closed and drained
		}

		p.refreshAccount()
	}
}

// refreshAccount pulls account balances and runs the margin check.
func (p *Pool) refreshAccount() {
	accounts, err := p.trader.GetAccounts(p.ctx)
	if err != nil {
		p.logger.Warn("account refresh failed", "error", err)
		return
	}

	for _, acct := range accounts {
		if acct.AccountID != p.accountID {
			continue
		}

		p.acctMu.Lock()
		p.cash = acct.Balance.Balance
		p.value = acct.Balance.Available
		p.updatedAt = time.Now().UTC()

		mco := MarginCloseOut(p.cash, p.cash-p.value)
		rising := mco && !p.inMCO
		p.inMCO = mco
		p.acctMu.Unlock()

		p.readyOnce.Do(func() { close(p.acctReady) })

		if rising {
			if refs := p.book.OpenRefs(); len(refs) > 0 {
				p.logger.Warn("margin close-out level reached", "open_positions", len(refs))
				p.notify.MarginCall(refs)
			}
		}
		return
	}

	p.logger.Warn("configured account missing from response", "account_id", p.accountID)
}

// MarginCloseOut reports whether the margin level, account value over used
// margin, has dropped below 150%. A flat account (no margin in use) is never
// in close-out.
func MarginCloseOut(value, marginUsed float64) bool {
	if marginUsed == 0 {
		return false
	}
	return 100*value/marginUsed < 150
}
