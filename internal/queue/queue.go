package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

var (
	// ErrFull is returned by Offer when the queue holds Cap() items.
	ErrFull = errors.New("queue is full")
	// ErrClosed is returned by Offer after Close, and by Receive once a
	// closed queue has been drained.
	ErrClosed = errors.New("queue is closed")
)

// MaxCapacity guards against accidental misconfiguration.
const MaxCapacity = 1024 * 1024

// Queue is a bounded FIFO handoff between producer callbacks and a consumer.
//
// Producers never block: Offer either accepts the item or rejects it with
// ErrFull. Accepted items are never dropped or overwritten, and items queued
// before Close stay receivable after it.
//
//	q, _ := queue.New[[]byte](256)
//
//	// producer (e.g., a BLE notification callback)
//	if err := q.Offer(payload); err != nil { ... }
//
//	// consumer
//	for {
//	    v, err := q.Receive(ctx)
//	    if errors.Is(err, queue.ErrClosed) { break }
//	}
//
// All methods are thread-safe.
type Queue[T any] struct {
	ring     mpmc.RingBuffer[T]
	capacity int

	mu     sync.Mutex
	size   int
	closed bool

	ready   chan struct{} // level signal: at least one item may be available
	done    chan struct{} // closed by Close
	metrics Metrics
}

// New creates a queue that accepts at most capacity pending items.
func New[T any](capacity int) (*Queue[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("queue capacity must be > 0, got %d", capacity)
	}
	if capacity > MaxCapacity {
		return nil, fmt.Errorf("queue capacity %d exceeds maximum %d", capacity, MaxCapacity)
	}

	// the ring reserves a slot and rounds up to a power of two, so size it
	// past capacity and enforce the bound here
	return &Queue[T]{
		ring:     mpmc.New[T](uint32(capacity) * 2),
		capacity: capacity,
		ready:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}, nil
}

// Offer enqueues v without blocking.
func (q *Queue[T]) Offer(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.metrics.addRejected()
		return ErrClosed
	}
	if q.size >= q.capacity {
		q.metrics.addRejected()
		return ErrFull
	}
	if err := q.ring.Enqueue(v); err != nil {
		q.metrics.addRejected()
		if errors.Is(err, mpmc.ErrQueueFull) {
			return ErrFull
		}
		return fmt.Errorf("unexpected ring buffer enqueue error: %w", err)
	}

	q.size++
	q.metrics.addAccepted()
	q.signal()
	return nil
}

// TryReceive dequeues the oldest item if one is ready.
func (q *Queue[T]) TryReceive() (v T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		return v, false
	}
	v, err := q.ring.Dequeue()
	if err != nil {
		var zero T
		return zero, false
	}

	q.size--
	q.metrics.addDelivered()
	if q.size > 0 {
		// another consumer may be parked on ready
		q.signal()
	}
	return v, true
}

// Receive blocks until an item is available, the queue is closed and
// drained (ErrClosed), or ctx is done (ctx.Err()).
func (q *Queue[T]) Receive(ctx context.Context) (T, error) {
	for {
		if v, ok := q.TryReceive(); ok {
			return v, nil
		}

		select {
		case <-q.done:
			// items offered right before Close are still delivered
			if v, ok := q.TryReceive(); ok {
				return v, nil
			}
			var zero T
			return zero, ErrClosed
		default:
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-q.ready:
		case <-q.done:
		}
	}
}

// Close stops accepting new items. Safe to call more than once.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Done is closed once Close has been called.
func (q *Queue[T]) Done() <-chan struct{} {
	return q.done
}

// Len returns the number of pending items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the maximum number of pending items.
func (q *Queue[T]) Cap() int {
	return q.capacity
}

// GetMetrics returns a snapshot of the counters.
func (q *Queue[T]) GetMetrics() Metrics {
	return Metrics{
		Accepted:  atomic.LoadInt64(&q.metrics.Accepted),
		Rejected:  atomic.LoadInt64(&q.metrics.Rejected),
		Delivered: atomic.LoadInt64(&q.metrics.Delivered),
	}
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Metrics provides lock-free counters for a Queue.
type Metrics struct {
	Accepted  int64
	Rejected  int64
	Delivered int64
}

func (m *Metrics) addAccepted() {
	atomic.AddInt64(&m.Accepted, 1)
}

func (m *Metrics) addRejected() {
	atomic.AddInt64(&m.Rejected, 1)
}

func (m *Metrics) addDelivered() {
	atomic.AddInt64(&m.Delivered, 1)
}
