package reindex

import (
	"context"
	"sync/atomic"
	"time"
)

// Watchdog detects a task that stopped making progress. The task pokes it
// between steps; when no poke arrives within the timeout, onStall runs
// once. Recovering from a stall is left to the operator.
type Watchdog struct {
	timeout time.Duration
	onStall func(idle time.Duration)
	last    atomic.Int64
	stalled atomic.Bool
	now     func() time.Time
}

// NewWatchdog creates a Watchdog. A zero timeout disables it.
func NewWatchdog(timeout time.Duration, onStall func(idle time.Duration)) *Watchdog {
	w := &Watchdog{timeout: timeout, onStall: onStall, now: time.Now}
	w.Poke()
	return w
}

// Poke signals liveness.
func (w *Watchdog) Poke() {
	w.last.Store(w.now().UnixNano())
}

// Stalled reports whether the deadline was missed.
func (w *Watchdog) Stalled() bool {
	return w.stalled.Load()
}

// Run checks the deadline until ctx is done.
func (w *Watchdog) Run(ctx context.Context) {
	if w.timeout <= 0 {
		return
	}
	interval := w.timeout / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.check() {
				return
			}
		}
	}
}

// check fires onStall once the deadline is missed and reports whether it
// did.
func (w *Watchdog) check() bool {
	idle := w.now().Sub(time.Unix(0, w.last.Load()))
	if idle <= w.timeout {
		return false
	}
	if w.stalled.CompareAndSwap(false, true) && w.onStall != nil {
		w.onStall(idle)
	}
	return true
}
