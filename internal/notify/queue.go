package notify

import "sync"

// notification is one queued identifier change.
type notification struct {
	identifier string
	present    bool
}

// queue is a thread-safe unbounded FIFO of notifications.
//
// Stores enqueue while holding the resolver lock, so Enqueue must never
// block. The signal channel lets the worker wait without polling.
type queue struct {
	mu     sync.Mutex
	items  []notification
	closed bool
	signal chan struct{} // buffered, size 1
}

func newQueue() *queue {
	return &queue{
		items:  make([]notification, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds n to the back of the queue.
// Returns false if the queue is closed.
func (q *queue) Enqueue(n notification) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, n)

	// Coalesce signals; the worker drains everything on wake-up.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front notification without blocking.
func (q *queue) TryDequeue() (notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return notification{}, false
	}
	n := q.items[0]
	q.items[0] = notification{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return n, true
}

// Wait returns a channel that receives when items may be available.
// It is closed by Close.
func (q *queue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued notifications.
func (q *queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops further enqueues and wakes the worker.
func (q *queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
