package watcher

import (
	"testing"
	"time"
)

func receive(t *testing.T, d *debouncer) firing {
	t.Helper()
	select {
	case f := <-d.out:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no report")
		return firing{}
	}
}

func TestDebouncer_RescheduleAfterFireReportsOnce(t *testing.T) {
	done := make(chan struct{})
	defer close(done)
	d := newDebouncer(10*time.Millisecond, done)

	d.schedule("a.md")
	stale := receive(t, d)

	// An event arrives after the timer fired but before its report was
	// handled.
	d.schedule("a.md")
	if d.accept(stale) {
		t.Error("report of the replaced timer was accepted")
	}

	current := receive(t, d)
	if current.rel != "a.md" || !d.accept(current) {
		t.Errorf("current report = %+v not accepted", current)
	}
	if d.accept(current) {
		t.Error("a report must be accepted only once")
	}
}

func TestDebouncer_ResetPendingTimer(t *testing.T) {
	done := make(chan struct{})
	defer close(done)
	d := newDebouncer(50*time.Millisecond, done)

	d.schedule("a.md")
	d.schedule("a.md")
	d.schedule("a.md")
	if d.gen != 1 {
		t.Errorf("gen = %d, want a single timer", d.gen)
	}
	if f := receive(t, d); !d.accept(f) {
		t.Errorf("report %+v not accepted", f)
	}
}

func TestDebouncer_Cancel(t *testing.T) {
	done := make(chan struct{})
	defer close(done)
	d := newDebouncer(10*time.Millisecond, done)

	d.schedule("a.md")
	d.cancel("a.md")
	select {
	case f := <-d.out:
		if d.accept(f) {
			t.Errorf("cancelled report accepted: %+v", f)
		}
	case <-time.After(50 * time.Millisecond):
	}
}
