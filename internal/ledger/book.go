package ledger

import (
	"sync"

	"github.com/capbridge/capbridge/internal/exchange"
	"github.com/capbridge/capbridge/internal/model"
)

// Entry is the ledger record for one local order reference. Workers mutate
// entries only through Book methods; each field has a single writing worker.
type Entry struct {
	Ref           string
	TradeID       int
	Size          float64 // requested size, signed
	Exec          model.ExecType
	Status        model.OrderStatus
	DealID        string
	DealReference string
	AffectedDeals []exchange.AffectedDeal
	Monitor       bool

	// Close fan-out accounting. A logical position may span several remote
	// deals; the entry survives until every one of them confirms closed.
	PendingClose int
	acceptedOnce bool
}

// Book is the synchronized order ledger, keyed by local reference and by
// trade id.
type Book struct {
	mu      sync.RWMutex
	byRef   map[string]*Entry
	byTrade map[int]*Entry
}

// NewBook creates an empty ledger.
func NewBook() *Book {
	return &Book{
		byRef:   make(map[string]*Entry),
		byTrade: make(map[int]*Entry),
	}
}

// Add inserts a new entry in Created state.
func (b *Book) Add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry := e
	entry.Status = model.StatusCreated
	b.byRef[entry.Ref] = &entry
	b.byTrade[entry.TradeID] = &entry
}

// Get returns a copy of the entry for ref.
func (b *Book) Get(ref string) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.byRef[ref]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// ByTrade returns a copy of the entry holding the given trade id. A hit
// means a subsequent intent with this trade id closes the position instead
// of opening a new one.
func (b *Book) ByTrade(tradeID int) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.byTrade[tradeID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// SetDeal records the remote identifiers after a confirmed placement.
func (b *Book) SetDeal(ref, dealID, dealReference string, affected []exchange.AffectedDeal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.byRef[ref]; ok {
		e.DealID = dealID
		e.DealReference = dealReference
		e.AffectedDeals = affected
	}
}

// SetStatus moves the entry to a new lifecycle state.
func (b *Book) SetStatus(ref string, status model.OrderStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.byRef[ref]; ok {
		e.Status = status
	}
}

// SetMonitor flags the entry for the monitor worker.
func (b *Book) SetMonitor(ref string, monitor bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.byRef[ref]; ok {
		e.Monitor = monitor
	}
}

// PromoteWorkingOrder rewrites the deal id when a resting order fills into
// a position.
func (b *Book) PromoteWorkingOrder(ref, dealID, dealReference string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.byRef[ref]; ok {
		e.DealID = dealID
		e.DealReference = dealReference
		e.Status = model.StatusPosition
	}
}

// BeginClose arms the fan-out counter for a close across n remote deals.
func (b *Book) BeginClose(ref string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.byRef[ref]; ok {
		e.PendingClose = n
	}
}

// FinishCloseDeal records one confirmed deal closure. The entry is removed
// only when every affected deal has confirmed; the second return reports
// whether this call was the first confirmation for the reference.
func (b *Book) FinishCloseDeal(ref string) (removed, first bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.byRef[ref]
	if !ok {
		return false, false
	}

	first = !e.acceptedOnce
	e.acceptedOnce = true

	e.PendingClose--
	if e.PendingClose > 0 {
		return false, first
	}

	delete(b.byRef, e.Ref)
	delete(b.byTrade, e.TradeID)
	return true, first
}

// Remove deletes the entry for ref.
func (b *Book) Remove(ref string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.byRef[ref]; ok {
		delete(b.byRef, ref)
		delete(b.byTrade, e.TradeID)
	}
}

// RemoveByDealID deletes the entry holding the given remote deal id.
func (b *Book) RemoveByDealID(dealID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ref, e := range b.byRef {
		if e.DealID == dealID {
			delete(b.byRef, ref)
			delete(b.byTrade, e.TradeID)
			return
		}
	}
}

// Monitored returns copies of flagged entries in the given status.
func (b *Book) Monitored(status model.OrderStatus) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Entry
	for _, e := range b.byRef {
		if e.Monitor && e.Status == status {
			out = append(out, *e)
		}
	}
	return out
}

// AnyMonitored reports whether any entry still needs the monitor.
func (b *Book) AnyMonitored() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, e := range b.byRef {
		if e.Monitor {
			return true
		}
	}
	return false
}

// OpenRefs returns the references of all entries holding a position.
func (b *Book) OpenRefs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var refs []string
	for ref, e := range b.byRef {
		if e.Status == model.StatusPosition {
			refs = append(refs, ref)
		}
	}
	return refs
}

// Len returns the number of live entries.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byRef)
}
