package queue

import (
	"sync"
	"time"
)

// Queue is a thread-safe FIFO buffer. All cross-worker communication in the
// bridge travels through queues of immutable messages.
//
// Two modes exist:
//   - growable (New): capacity doubles when the buffer reaches 70% full.
//   - bounded drop-oldest (NewBounded): when full, the oldest item is
//     discarded to admit the new one. Used at the notification boundary so a
//     slow reader cannot stall the workers.
type Queue[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	bounded  bool
	closed   bool

	// Stats
	totalSent     int64
	totalReceived int64
	totalDropped  int64
	resizeCount   int
}

// New creates a growable queue with the given initial capacity.
func New[T any](initialCapacity int) *Queue[T] {
	return newQueue[T](initialCapacity, false)
}

// NewBounded creates a fixed-capacity queue with drop-oldest overflow policy.
func NewBounded[T any](capacity int) *Queue[T] {
	return newQueue[T](capacity, true)
}

func newQueue[T any](capacity int, bounded bool) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
		bounded:  bounded,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Send adds an item to the queue. Returns false if the queue is closed.
func (q *Queue[T]) Send(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if q.bounded {
		if q.count == q.capacity {
			// Drop oldest
			var zero T
			q.buf[q.head] = zero
			q.head = (q.head + 1) % q.capacity
			q.count--
			q.totalDropped++
		}
	} else {
		threshold := (q.capacity * 70) / 100
		if threshold < 1 {
			threshold = 1
		}
		if q.count+1 >= threshold {
			q.grow()
		}
	}

	q.buf[q.tail] = item
	q.tail = (q.tail + 1) % q.capacity
	q.count++
	q.totalSent++

	q.cond.Signal()
	return true
}

// Receive removes and returns an item, blocking until one is available or
// the queue is closed. The second return value is false when the queue is
// closed and drained.
func (q *Queue[T]) Receive() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.cond.Wait()
	}
	return q.takeLocked()
}

// ReceiveTimeout behaves like Receive but waits at most d. The third return
// value reports whether the wait timed out with the queue still open.
func (q *Queue[T]) ReceiveTimeout(d time.Duration) (item T, ok bool, timedOut bool) {
	deadline := time.Now().Add(d)
	timer := time.AfterFunc(d, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer timer.Stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		if !time.Now().Before(deadline) {
			var zero T
			return zero, false, true
		}
		q.cond.Wait()
	}
	item, ok = q.takeLocked()
	return item, ok, false
}

// TryReceive attempts to receive without blocking.
func (q *Queue[T]) TryReceive() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.takeLocked()
}

// takeLocked removes the head item. Must be called with lock held and is
// only valid when count > 0 or the queue is closed.
func (q *Queue[T]) takeLocked() (T, bool) {
	if q.count == 0 {
		var zero T
		return zero, false
	}

	item := q.buf[q.head]
	var zero T
	q.buf[q.head] = zero // clear reference for GC
	q.head = (q.head + 1) % q.capacity
	q.count--
	q.totalReceived++
	return item, true
}

// DrainTo removes up to max items (all items if max <= 0) without blocking.
func (q *Queue[T]) DrainTo(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil
	}

	n := q.count
	if max > 0 && max < n {
		n = max
	}

	result := make([]T, n)
	for i := 0; i < n; i++ {
		result[i], _ = q.takeLocked()
	}
	return result
}

// Close closes the queue. After closing, Send returns false; receivers drain
// remaining items and then observe the closed signal.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Len returns the current number of items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Count:         q.count,
		Capacity:      q.capacity,
		TotalSent:     q.totalSent,
		TotalReceived: q.totalReceived,
		TotalDropped:  q.totalDropped,
		ResizeCount:   q.resizeCount,
	}
}

// Stats contains queue statistics.
type Stats struct {
	Count         int
	Capacity      int
	TotalSent     int64
	TotalReceived int64
	TotalDropped  int64
	ResizeCount   int
}

// grow doubles the capacity. Must be called with lock held.
func (q *Queue[T]) grow() {
	newCapacity := q.capacity * 2
	newBuf := make([]T, newCapacity)

	if q.count > 0 {
		if q.head < q.tail {
			copy(newBuf, q.buf[q.head:q.tail])
		} else {
			n := copy(newBuf, q.buf[q.head:])
			copy(newBuf[n:], q.buf[:q.tail])
		}
	}

	q.buf = newBuf
	q.head = 0
	q.tail = q.count
	q.capacity = newCapacity
	q.resizeCount++
}
