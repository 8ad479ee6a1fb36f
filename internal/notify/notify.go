// Package notify delivers identifier changes to a single observer.
//
// Notifications are queued in firing order and dispatched by exactly one
// worker goroutine, so an observer never runs concurrently with itself.
// The observer slot is read at dispatch time; setting it to nil drops
// later notifications. A panicking observer is recovered and logged.
package notify

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/reflink/internal/metrics"
)

// Observer receives the identifier current at the time of a store.
// The identifier is empty when none resolved.
type Observer func(identifier string)

// Notifier owns the observer slot and the dispatch worker.
type Notifier struct {
	queue  *queue
	logger *slog.Logger

	mu       sync.Mutex
	observer Observer

	// pending counts notifications enqueued but not yet dispatched.
	pendingMu sync.Mutex
	pending   int
	idle      *sync.Cond

	done chan struct{}
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) {
		if l != nil {
			n.logger = l
		}
	}
}

// New starts a Notifier and its worker. Call Close to stop it.
func New(opts ...Option) *Notifier {
	n := &Notifier{
		queue:  newQueue(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		done:   make(chan struct{}),
	}
	n.idle = sync.NewCond(&n.pendingMu)
	for _, opt := range opts {
		opt(n)
	}
	go n.run()
	return n
}

// SetObserver replaces the observer. nil clears it.
func (n *Notifier) SetObserver(o Observer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.observer = o
}

// Notify queues a notification and returns immediately.
// Returns false once the Notifier is closed.
func (n *Notifier) Notify(identifier string, present bool) bool {
	n.pendingMu.Lock()
	n.pending++
	n.pendingMu.Unlock()

	if !n.queue.Enqueue(notification{identifier: identifier, present: present}) {
		n.finish()
		return false
	}
	metrics.SetQueueDepth(n.queue.Len())
	return true
}

// Idle reports whether every queued notification has been dispatched.
func (n *Notifier) Idle() bool {
	n.pendingMu.Lock()
	defer n.pendingMu.Unlock()
	return n.pending == 0
}

// Flush blocks until every notification queued so far has been dispatched.
func (n *Notifier) Flush() {
	n.pendingMu.Lock()
	defer n.pendingMu.Unlock()
	for n.pending > 0 {
		n.idle.Wait()
	}
}

// Close dispatches the notifications already queued, then stops the worker.
// Safe to call more than once.
func (n *Notifier) Close() {
	n.queue.Close()
	<-n.done
}

func (n *Notifier) run() {
	defer close(n.done)
	for {
		for {
			item, ok := n.queue.TryDequeue()
			if !ok {
				break
			}
			metrics.SetQueueDepth(n.queue.Len())
			n.dispatch(item)
			n.finish()
		}
		if _, open := <-n.queue.Wait(); !open {
			// Closed: drain anything enqueued before Close won the lock.
			for {
				item, ok := n.queue.TryDequeue()
				if !ok {
					return
				}
				n.dispatch(item)
				n.finish()
			}
		}
	}
}

func (n *Notifier) dispatch(item notification) {
	n.mu.Lock()
	observer := n.observer
	n.mu.Unlock()

	if observer == nil {
		n.logger.Debug("identifier changed, no observer set", "identifier", item.identifier)
		metrics.ObserveNotification(false)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("identifier observer panicked", "identifier", item.identifier, "panic", fmt.Sprint(r))
			metrics.ObserveObserverPanic()
		}
	}()
	n.logger.Debug("notifying identifier observer", "identifier", item.identifier, "present", item.present)
	metrics.ObserveNotification(true)
	observer(item.identifier)
}

func (n *Notifier) finish() {
	n.pendingMu.Lock()
	defer n.pendingMu.Unlock()
	n.pending--
	if n.pending == 0 {
		n.idle.Broadcast()
	}
}
