package api

import (
	"sync/atomic"
	"time"
)

// eventClock stamps the entry events of one process. Stamps strictly increase
// so the batches of a user stay ordered even when the wall clock stalls or
// steps back between requests.
type eventClock struct {
	last atomic.Int64
}

func (c *eventClock) next(now time.Time) int64 {
	for {
		stamp := now.UnixNano()
		last := c.last.Load()
		if stamp <= last {
			stamp = last + 1
		}
		if c.last.CompareAndSwap(last, stamp) {
			return stamp
		}
	}
}
