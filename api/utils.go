package api

import (
	"sync/atomic"
	"time"
)

var lastCreation int64

// nextCreationTime returns a strictly increasing UTC timestamp. List
// ordering sorts on creation time, so two todos created back to back on the
// same instance must never share a timestamp.
func nextCreationTime() time.Time {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastCreation)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastCreation, last, now) {
			return time.Unix(0, now).UTC()
		}
	}
}
