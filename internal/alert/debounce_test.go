package alert

import (
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) handle(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, userID)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestDebouncer_CoalescesRapidCalls(t *testing.T) {
	rec := &recorder{}
	d := NewDebouncer(30*time.Millisecond, rec.handle)
	defer d.Stop()

	for i := 0; i < 5; i++ {
		d.OnExpenseTransactionsChanged("user-a")
	}

	time.Sleep(100 * time.Millisecond)

	if calls := rec.snapshot(); len(calls) != 1 || calls[0] != "user-a" {
		t.Errorf("expected one coalesced call for user-a, got %v", calls)
	}
}

func TestDebouncer_IndependentKeys(t *testing.T) {
	rec := &recorder{}
	d := NewDebouncer(20*time.Millisecond, rec.handle)
	defer d.Stop()

	d.OnExpenseTransactionsChanged("user-a")
	d.OnExpenseTransactionsChanged("user-b")

	time.Sleep(80 * time.Millisecond)

	calls := rec.snapshot()
	if len(calls) != 2 {
		t.Fatalf("expected both users to fire, got %v", calls)
	}
}

func TestDebouncer_CancelAndReplaceExtendsWindow(t *testing.T) {
	rec := &recorder{}
	d := NewDebouncer(60*time.Millisecond, rec.handle)
	defer d.Stop()

	d.OnExpenseTransactionsChanged("user-a")
	time.Sleep(40 * time.Millisecond)
	// Re-trigger inside the window: the first timer must be replaced.
	d.OnExpenseTransactionsChanged("user-a")
	time.Sleep(40 * time.Millisecond)

	if calls := rec.snapshot(); len(calls) != 0 {
		t.Errorf("handler fired before the replaced window elapsed: %v", calls)
	}

	time.Sleep(50 * time.Millisecond)
	if calls := rec.snapshot(); len(calls) != 1 {
		t.Errorf("expected exactly one call after the extended window, got %v", calls)
	}
}

func TestDebouncer_FlushFiresPendingImmediately(t *testing.T) {
	rec := &recorder{}
	d := NewDebouncer(time.Hour, rec.handle)
	defer d.Stop()

	d.OnExpenseTransactionsChanged("user-a")
	d.OnExpenseTransactionsChanged("user-b")
	d.Flush()

	if calls := rec.snapshot(); len(calls) != 2 {
		t.Errorf("flush should fire all pending keys, got %v", calls)
	}
	if d.PendingCount() != 0 {
		t.Errorf("expected no pending timers after flush, got %d", d.PendingCount())
	}
}

func TestDebouncer_StopDropsPending(t *testing.T) {
	rec := &recorder{}
	d := NewDebouncer(20*time.Millisecond, rec.handle)

	d.OnExpenseTransactionsChanged("user-a")
	d.Stop()

	time.Sleep(60 * time.Millisecond)
	if calls := rec.snapshot(); len(calls) != 0 {
		t.Errorf("stopped debouncer must not fire, got %v", calls)
	}

	// Triggers after Stop are ignored.
	d.OnExpenseTransactionsChanged("user-b")
	if d.PendingCount() != 0 {
		t.Error("stopped debouncer must not queue new timers")
	}
}

func TestDebouncer_HandlerPanicContained(t *testing.T) {
	d := NewDebouncer(10*time.Millisecond, func(string) {
		panic("boom")
	})
	defer d.Stop()

	d.OnExpenseTransactionsChanged("user-a")
	time.Sleep(50 * time.Millisecond)
	// Reaching this point without crashing is the assertion.
}

func TestDebouncer_FlushContainsHandlerPanic(t *testing.T) {
	rec := &recorder{}
	d := NewDebouncer(time.Hour, func(userID string) {
		if userID == "user-a" {
			panic("boom")
		}
		rec.handle(userID)
	})
	defer d.Stop()

	d.OnExpenseTransactionsChanged("user-a")
	d.OnExpenseTransactionsChanged("user-b")
	d.Flush()

	// The panicking key must not crash the flush or starve the other key.
	if calls := rec.snapshot(); len(calls) != 1 || calls[0] != "user-b" {
		t.Errorf("expected user-b to still fire through the flush, got %v", calls)
	}
	if d.PendingCount() != 0 {
		t.Errorf("expected no pending timers after flush, got %d", d.PendingCount())
	}
}
