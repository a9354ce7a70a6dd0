// Package alert turns bursts of per-user expense-change signals into one
// delayed budget-alert evaluation per user. Rapid calls for the same key
// cancel and replace the pending timer, so only the last one fires.
package alert

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultWindow is how long a key's timer waits for further signals.
const DefaultWindow = 5 * time.Second

// Handler processes one coalesced trigger. It runs on a timer goroutine;
// failures are its own problem and must not propagate anywhere.
type Handler func(userID string)

// Debouncer coalesces rapid-fire triggers per user id.
type Debouncer struct {
	window  time.Duration
	handler Handler

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
}

func NewDebouncer(window time.Duration, handler Handler) *Debouncer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Debouncer{
		window:  window,
		handler: handler,
		pending: make(map[string]*time.Timer),
	}
}

// OnExpenseTransactionsChanged schedules (or reschedules) the user's
// delayed alert evaluation.
func (d *Debouncer) OnExpenseTransactionsChanged(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if timer, ok := d.pending[userID]; ok {
		timer.Stop()
	}
	d.pending[userID] = time.AfterFunc(d.window, func() {
		d.fire(userID)
	})
}

func (d *Debouncer) fire(userID string) {
	d.mu.Lock()
	delete(d.pending, userID)
	stopped := d.stopped
	d.mu.Unlock()

	if stopped {
		return
	}

	d.invoke(userID)
}

// invoke runs the handler with panic containment; a broken handler must
// never take down the process, whether on a timer or a shutdown flush.
func (d *Debouncer) invoke(userID string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Alert handler panicked", "user_id", userID, "panic", r)
		}
	}()
	d.handler(userID)
}

// Flush fires every pending key immediately. Used on shutdown so queued
// triggers are not silently dropped.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	keys := make([]string, 0, len(d.pending))
	for userID, timer := range d.pending {
		timer.Stop()
		keys = append(keys, userID)
	}
	d.pending = make(map[string]*time.Timer)
	d.mu.Unlock()

	for _, userID := range keys {
		d.invoke(userID)
	}
}

// Stop cancels all pending timers without firing them.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for _, timer := range d.pending {
		timer.Stop()
	}
	d.pending = make(map[string]*time.Timer)
}

// PendingCount reports how many keys currently have a queued trigger.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
