package gateway

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiet period before a submission fires.
const DefaultDebounce = 300 * time.Millisecond

// Debouncer runs only the last function triggered within the quiet window.
type Debouncer struct {
	wait    time.Duration
	mu      sync.Mutex
	timer   *time.Timer
	pending func()
	gen     uint64
	running sync.WaitGroup
}

func NewDebouncer(wait time.Duration) *Debouncer {
	return &Debouncer{wait: wait}
}

func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = fn
	d.timer = time.AfterFunc(d.wait, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	fn := d.pending
	d.pending = nil
	d.running.Add(1)
	d.mu.Unlock()
	defer d.running.Done()
	fn()
}

// Flush runs the pending function now, if any, and waits for fired ones to return.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	fn := d.pending
	d.pending = nil
	d.gen++
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
	d.running.Wait()
}

// Stop drops the pending function.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = nil
	d.gen++
}
