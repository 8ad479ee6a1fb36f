package testutil

import (
	"sync"
	"time"
)

// RecordingObserver collects identifier notifications in delivery order.
//
// Pass Observe as the observer function. WaitFor blocks until at least n
// notifications have arrived.
type RecordingObserver struct {
	mu     sync.Mutex
	cond   *sync.Cond
	values []string
}

// NewRecordingObserver creates an empty recorder.
func NewRecordingObserver() *RecordingObserver {
	r := &RecordingObserver{}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Observe records one notification.
func (r *RecordingObserver) Observe(identifier string) {
	r.mu.Lock()
	r.values = append(r.values, identifier)
	r.mu.Unlock()
	r.cond.Broadcast()
}

// Values returns a copy of the notifications received so far.
func (r *RecordingObserver) Values() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.values...)
}

// Len returns the number of notifications received so far.
func (r *RecordingObserver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// WaitFor blocks until n notifications have been recorded or timeout passes.
// It reports whether n was reached.
func (r *RecordingObserver) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.AfterFunc(timeout, r.cond.Broadcast)
	defer deadline.Stop()

	start := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.values) < n {
		if time.Since(start) >= timeout {
			return false
		}
		r.cond.Wait()
	}
	return true
}
