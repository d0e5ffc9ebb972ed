package scheduler

import (
	"sync"
	"time"
)

// Debouncer calls fn once after a quiet period. Every Reset restarts the
// period.
type Debouncer struct {
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer == nil {
		d.timer = time.AfterFunc(d.delay, d.fn)
		return
	}
	d.timer.Reset(d.delay)
}

// Start re-enables a stopped debouncer without arming it.
func (d *Debouncer) Start() {
	d.mu.Lock()
	d.stopped = false
	d.mu.Unlock()
}

// Stop disarms the timer. Later Resets are ignored until Start.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
