package watcher

import (
	"sync"
	"time"
)

// Change is a settled modification of one log file. Writes arrive as many
// events while the agent appends to a session; Count says how many were
// collapsed into this one.
type Change struct {
	Path  string
	Count int
	At    time.Time
}

// Debouncer waits for a quiet window on each path before emitting a single
// Change for it. It is safe for concurrent use.
type Debouncer struct {
	window time.Duration
	emit   func(Change)

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]Change
	stopped bool
}

// NewDebouncer creates a Debouncer that calls emit once a path has been
// quiet for window.
func NewDebouncer(window time.Duration, emit func(Change)) *Debouncer {
	return &Debouncer{
		window:  window,
		emit:    emit,
		timers:  make(map[string]*time.Timer),
		pending: make(map[string]Change),
	}
}

// Touch records activity on path and restarts its quiet window.
func (d *Debouncer) Touch(path string, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	c := d.pending[path]
	c.Path = path
	c.Count++
	c.At = at
	d.pending[path] = c

	if t, ok := d.timers[path]; ok {
		t.Reset(d.window)
		return
	}
	d.timers[path] = time.AfterFunc(d.window, func() { d.fire(path) })
}

func (d *Debouncer) fire(path string) {
	d.mu.Lock()
	c, ok := d.pending[path]
	delete(d.timers, path)
	delete(d.pending, path)
	d.mu.Unlock()
	if ok {
		d.emit(c)
	}
}

// Stop cancels all timers and emits whatever is still pending. Touch is a
// no-op afterwards.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	var flush []Change
	for path, t := range d.timers {
		t.Stop()
		if c, ok := d.pending[path]; ok {
			flush = append(flush, c)
		}
	}
	d.timers = nil
	d.pending = nil
	d.mu.Unlock()

	for _, c := range flush {
		d.emit(c)
	}
}
