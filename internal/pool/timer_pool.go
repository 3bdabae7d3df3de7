// Package pool recycles timers used on hot wait paths: per-site join
// deadlines and per-phase zombie deadlines.
package pool

import (
	"sync"
	"time"
)

var timerPool sync.Pool

// GetTimer returns a stopped-and-drained timer from the pool, reset to fire
// after d. Return it with PutTimer once the wait is over.
func GetTimer(d time.Duration) *time.Timer {
	v := timerPool.Get()
	if v == nil {
		return time.NewTimer(d)
	}

	t, _ := v.(*time.Timer)
	t.Reset(d)

	return t
}

// PutTimer stops t, drains a pending tick and returns it to the pool.
// t must not be used after this call.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}
