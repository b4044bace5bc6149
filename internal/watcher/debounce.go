package watcher

import "time"

// firing is a settled path together with the timer generation that
// reported it.
type firing struct {
	rel string
	gen uint64
}

type pending struct {
	timer *time.Timer
	gen   uint64
}

// debouncer delays reports per path until the path has been quiet for
// delay. It is owned by a single goroutine; only the timer funcs run
// elsewhere and they only send on out.
type debouncer struct {
	delay  time.Duration
	done   <-chan struct{}
	out    chan firing
	gen    uint64
	timers map[string]*pending
}

func newDebouncer(delay time.Duration, done <-chan struct{}) *debouncer {
	return &debouncer{
		delay:  delay,
		done:   done,
		out:    make(chan firing),
		timers: make(map[string]*pending),
	}
}

// schedule (re)starts the quiet period of rel. A timer whose func already
// ran cannot be reset, so it is replaced by a new generation and its
// in-flight report is rejected by accept.
func (d *debouncer) schedule(rel string) {
	if p, ok := d.timers[rel]; ok && p.timer.Stop() {
		p.timer.Reset(d.delay)
		return
	}
	d.gen++
	f := firing{rel: rel, gen: d.gen}
	d.timers[rel] = &pending{gen: d.gen, timer: time.AfterFunc(d.delay, func() {
		select {
		case d.out <- f:
		case <-d.done:
		}
	})}
}

// accept reports whether f is the current timer for its path and forgets
// the path if so.
func (d *debouncer) accept(f firing) bool {
	p, ok := d.timers[f.rel]
	if !ok || p.gen != f.gen {
		return false
	}
	delete(d.timers, f.rel)
	return true
}

func (d *debouncer) cancel(rel string) {
	if p, ok := d.timers[rel]; ok {
		p.timer.Stop()
		delete(d.timers, rel)
	}
}

func (d *debouncer) stop() {
	for rel := range d.timers {
		d.cancel(rel)
	}
}
