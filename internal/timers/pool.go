package timers

import (
	"sync"
	"time"
)

var timerPool sync.Pool

// AcquireTimer returns a timer from the pool, reset to fire after d.
func AcquireTimer(d time.Duration) *time.Timer {
	v := timerPool.Get()
	if v == nil {
		return time.NewTimer(d)
	}
	tm := v.(*time.Timer)
	if tm.Reset(d) {
		// Timer was still active, should not happen for a pooled timer.
		return time.NewTimer(d)
	}
	return tm
}

// ReleaseTimer returns a timer to the pool.
func ReleaseTimer(tm *time.Timer) {
	if !tm.Stop() {
		// Drain the value if the timer fired and nobody collected it.
		select {
		case <-tm.C:
		default:
		}
	}
	timerPool.Put(tm)
}
